package modmanager

import (
	"testing"

	"github.com/AntelopeJS/antelopejs-sub002/fsx"
	"github.com/AntelopeJS/antelopejs-sub002/loaderregistry"
	"github.com/AntelopeJS/antelopejs-sub002/manifest"
	"github.com/AntelopeJS/antelopejs-sub002/modcache"
	"github.com/AntelopeJS/antelopejs-sub002/modsource"
	"github.com/AntelopeJS/antelopejs-sub002/pathresolve"
)

type stubLoader struct {
	manifests map[string]*manifest.Manifest // keyed by source.Path
}

func (s *stubLoader) Load(_ *modcache.Cache, source modsource.Source) ([]*manifest.Manifest, error) {
	m := s.manifests[source.Path]
	return []*manifest.Manifest{m}, nil
}

type stubInstance struct {
	log *[]string
	id  string
}

func (s *stubInstance) Construct(map[string]interface{}) error { *s.log = append(*s.log, s.id+":construct"); return nil }
func (s *stubInstance) Start() error                            { *s.log = append(*s.log, s.id+":start"); return nil }
func (s *stubInstance) Stop() error                             { *s.log = append(*s.log, s.id+":stop"); return nil }
func (s *stubInstance) Destroy() error                          { *s.log = append(*s.log, s.id+":destroy"); return nil }

func newTestManager(t *testing.T) (*Manager, *loaderregistry.Registry) {
	t.Helper()
	fs := fsx.NewMemory()
	cache, err := modcache.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cache.Close() })

	registry := loaderregistry.New("/proj")
	resolver := pathresolve.NewResolver(fs)
	mgr := New(fs, cache, registry, resolver)
	return mgr, registry
}

func TestAddModulesResolvesUniqueProvider(t *testing.T) {
	mgr, registry := newTestManager(t)

	providerManifest := &manifest.Manifest{
		Name: "provider", Folder: "/proj/mods/provider", ExportsPath: "/proj/mods/provider/interfaces",
		Exports:         map[string]string{"logging@1": "/proj/mods/provider/interfaces/logging/1"},
		DeclaredExports: []string{"logging@1"},
	}
	consumerManifest := &manifest.Manifest{
		Name: "consumer", Folder: "/proj/mods/consumer", ExportsPath: "/proj/mods/consumer/interfaces",
		Exports: map[string]string{}, Imports: []string{"logging@1"},
	}

	loader := &stubLoader{manifests: map[string]*manifest.Manifest{
		"/proj/mods/provider": providerManifest,
		"/proj/mods/consumer": consumerManifest,
	}}
	registry.Register(modsource.TypeLocal, "path", loader)

	err := mgr.AddModules([]ModuleRequest{
		{ID: "provider", Source: modsource.Source{Type: modsource.TypeLocal, Path: "/proj/mods/provider"}},
		{ID: "consumer", Source: modsource.Source{Type: modsource.TypeLocal, Path: "/proj/mods/consumer"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := mgr.EnsureGraphValid(); err != nil {
		t.Fatalf("expected resolved graph, got %v", err)
	}

	providerModule, ok := pathresolveLookup(mgr, "consumer", "logging@1")
	if !ok || providerModule != "provider" {
		t.Fatalf("expected consumer's logging@1 to resolve to provider, got %q ok=%v", providerModule, ok)
	}
}

// pathresolveLookup reaches into the manager's private association table
// for assertions; tests live in-package so this is just a field read.
func pathresolveLookup(mgr *Manager, ownerID, iface string) (string, bool) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	table, ok := mgr.assoc[ownerID]
	if !ok {
		return "", false
	}
	entry, ok := table[iface]
	if !ok || entry == nil {
		return "", false
	}
	return entry.ID, true
}

func TestAddModulesRejectsDuplicateID(t *testing.T) {
	mgr, registry := newTestManager(t)
	m := &manifest.Manifest{Name: "dup", Folder: "/proj/mods/dup", ExportsPath: "/proj/mods/dup/interfaces", Exports: map[string]string{}}
	loader := &stubLoader{manifests: map[string]*manifest.Manifest{"/proj/mods/dup": m}}
	registry.Register(modsource.TypeLocal, "path", loader)

	if err := mgr.AddModules([]ModuleRequest{{ID: "dup", Source: modsource.Source{Type: modsource.TypeLocal, Path: "/proj/mods/dup"}}}); err != nil {
		t.Fatal(err)
	}
	err := mgr.AddModules([]ModuleRequest{{ID: "dup", Source: modsource.Source{Type: modsource.TypeLocal, Path: "/proj/mods/dup"}}})
	if err == nil {
		t.Fatal("expected duplicate-id error")
	}
}

func TestEnsureGraphValidReportsUnresolvedImport(t *testing.T) {
	mgr, registry := newTestManager(t)
	m := &manifest.Manifest{
		Name: "lonely", Folder: "/proj/mods/lonely", ExportsPath: "/proj/mods/lonely/interfaces",
		Exports: map[string]string{}, Imports: []string{"storage@2"},
	}
	loader := &stubLoader{manifests: map[string]*manifest.Manifest{"/proj/mods/lonely": m}}
	registry.Register(modsource.TypeLocal, "path", loader)

	if err := mgr.AddModules([]ModuleRequest{{ID: "lonely", Source: modsource.Source{Type: modsource.TypeLocal, Path: "/proj/mods/lonely"}}}); err != nil {
		t.Fatal(err)
	}
	if err := mgr.EnsureGraphValid(); err == nil {
		t.Fatal("expected unresolved-import error")
	}
}

func TestLifecycleRunsConstructStartStopDestroyInOrder(t *testing.T) {
	mgr, registry := newTestManager(t)
	a := &manifest.Manifest{Name: "a", Folder: "/proj/mods/a", ExportsPath: "/proj/mods/a/interfaces", Exports: map[string]string{}}
	b := &manifest.Manifest{Name: "b", Folder: "/proj/mods/b", ExportsPath: "/proj/mods/b/interfaces", Exports: map[string]string{}}
	loader := &stubLoader{manifests: map[string]*manifest.Manifest{"/proj/mods/a": a, "/proj/mods/b": b}}
	registry.Register(modsource.TypeLocal, "path", loader)

	if err := mgr.AddModules([]ModuleRequest{
		{ID: "a", Source: modsource.Source{Type: modsource.TypeLocal, Path: "/proj/mods/a"}},
		{ID: "b", Source: modsource.Source{Type: modsource.TypeLocal, Path: "/proj/mods/b"}},
	}); err != nil {
		t.Fatal(err)
	}

	var log []string
	mgr.Factory = func(entry *Entry) (Instance, error) {
		return &stubInstance{log: &log, id: entry.ID}, nil
	}

	if err := mgr.ConstructAll(); err != nil {
		t.Fatal(err)
	}
	if err := mgr.StartAll(); err != nil {
		t.Fatal(err)
	}
	if err := mgr.DestroyAll(); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"a:construct", "b:construct",
		"a:start", "b:start",
		"b:stop", "b:destroy",
		"a:stop", "a:destroy",
	}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log[%d] = %q, want %q (full log %v)", i, log[i], want[i], log)
		}
	}

	entry, _ := mgr.GetModuleEntry("a")
	if entry.State != StateLoaded {
		t.Fatalf("expected module a back to loaded after destroy, got %v", entry.State)
	}
}

func TestStopAllowsRestartWithoutReload(t *testing.T) {
	mgr, registry := newTestManager(t)
	a := &manifest.Manifest{Name: "a", Folder: "/proj/mods/a", ExportsPath: "/proj/mods/a/interfaces", Exports: map[string]string{}}
	loader := &stubLoader{manifests: map[string]*manifest.Manifest{"/proj/mods/a": a}}
	registry.Register(modsource.TypeLocal, "path", loader)

	if err := mgr.AddModules([]ModuleRequest{{ID: "a", Source: modsource.Source{Type: modsource.TypeLocal, Path: "/proj/mods/a"}}}); err != nil {
		t.Fatal(err)
	}

	var log []string
	mgr.Factory = func(entry *Entry) (Instance, error) {
		return &stubInstance{log: &log, id: entry.ID}, nil
	}

	if err := mgr.ConstructAll(); err != nil {
		t.Fatal(err)
	}
	if err := mgr.StartAll(); err != nil {
		t.Fatal(err)
	}
	if err := mgr.StopAll(); err != nil {
		t.Fatal(err)
	}

	entry, _ := mgr.GetModuleEntry("a")
	if entry.State != StateConstructed {
		t.Fatalf("expected module a back to constructed after stop, got %v", entry.State)
	}

	if err := mgr.StartAll(); err != nil {
		t.Fatal(err)
	}
	entry, _ = mgr.GetModuleEntry("a")
	if entry.State != StateActive {
		t.Fatalf("expected module a active again after restart, got %v", entry.State)
	}

	want := []string{"a:construct", "a:start", "a:stop", "a:start"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log[%d] = %q, want %q (full log %v)", i, log[i], want[i], log)
		}
	}
}

func TestDestroyAllowsReconstructWithoutReload(t *testing.T) {
	mgr, registry := newTestManager(t)
	a := &manifest.Manifest{Name: "a", Folder: "/proj/mods/a", ExportsPath: "/proj/mods/a/interfaces", Exports: map[string]string{}}
	loader := &stubLoader{manifests: map[string]*manifest.Manifest{"/proj/mods/a": a}}
	registry.Register(modsource.TypeLocal, "path", loader)

	if err := mgr.AddModules([]ModuleRequest{{ID: "a", Source: modsource.Source{Type: modsource.TypeLocal, Path: "/proj/mods/a"}}}); err != nil {
		t.Fatal(err)
	}

	var log []string
	mgr.Factory = func(entry *Entry) (Instance, error) {
		return &stubInstance{log: &log, id: entry.ID}, nil
	}

	if err := mgr.ConstructAll(); err != nil {
		t.Fatal(err)
	}
	if err := mgr.StartAll(); err != nil {
		t.Fatal(err)
	}
	if err := mgr.DestroyAll(); err != nil {
		t.Fatal(err)
	}

	entry, _ := mgr.GetModuleEntry("a")
	if entry.State != StateLoaded || entry.Instance != nil {
		t.Fatalf("expected module a reset to loaded with no instance after destroy, got state=%v instance=%v", entry.State, entry.Instance)
	}

	if err := mgr.ConstructAll(); err != nil {
		t.Fatal(err)
	}
	if err := mgr.StartAll(); err != nil {
		t.Fatal(err)
	}
	entry, _ = mgr.GetModuleEntry("a")
	if entry.State != StateActive {
		t.Fatalf("expected module a active again after reconstruct, got %v", entry.State)
	}

	want := []string{"a:construct", "a:start", "a:stop", "a:destroy", "a:construct", "a:start"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log[%d] = %q, want %q (full log %v)", i, log[i], want[i], log)
		}
	}
}

func TestReplaceLoadedModuleRetainsOrderAndResetsState(t *testing.T) {
	mgr, registry := newTestManager(t)
	m := &manifest.Manifest{Name: "m", Folder: "/proj/mods/m", ExportsPath: "/proj/mods/m/interfaces", Exports: map[string]string{}}
	loader := &stubLoader{manifests: map[string]*manifest.Manifest{"/proj/mods/m": m}}
	registry.Register(modsource.TypeLocal, "path", loader)
	if err := mgr.AddModules([]ModuleRequest{{ID: "m", Source: modsource.Source{Type: modsource.TypeLocal, Path: "/proj/mods/m"}}}); err != nil {
		t.Fatal(err)
	}

	var log []string
	mgr.Factory = func(entry *Entry) (Instance, error) { return &stubInstance{log: &log, id: entry.ID}, nil }
	if err := mgr.ConstructAll(); err != nil {
		t.Fatal(err)
	}

	updated := &manifest.Manifest{Name: "m", Folder: "/proj/mods/m", ExportsPath: "/proj/mods/m/interfaces", Exports: map[string]string{}, Version: "2.0.0"}
	if err := mgr.ReplaceLoadedModule("m", updated); err != nil {
		t.Fatal(err)
	}

	entry, ok := mgr.GetModuleEntry("m")
	if !ok || entry.State != StateLoaded || entry.Manifest.Version != "2.0.0" {
		t.Fatalf("expected entry reset to Loaded with new manifest, got %+v", entry)
	}
	if len(mgr.ListModules()) != 1 || mgr.ListModules()[0].ID != "m" {
		t.Fatal("expected order preserved after replace")
	}
}
