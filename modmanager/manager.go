// Package modmanager owns the loaded-module registry and the lifecycle
// state machine driving each module through construct/start/stop/destroy,
// plus the association table pathresolve.Resolver consults to rewrite
// `@ajs/<iface>/<ver>` requests. Concurrency follows the teacher's own
// source-manager pattern: unrelated loader/export work runs in parallel via
// golang.org/x/sync/errgroup, while lifecycle transitions stay strictly
// sequential across modules so construction order is deterministic.
package modmanager

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/AntelopeJS/antelopejs-sub002/config"
	"github.com/AntelopeJS/antelopejs-sub002/fsx"
	"github.com/AntelopeJS/antelopejs-sub002/loaderregistry"
	"github.com/AntelopeJS/antelopejs-sub002/manifest"
	"github.com/AntelopeJS/antelopejs-sub002/modcache"
	"github.com/AntelopeJS/antelopejs-sub002/modsource"
	"github.com/AntelopeJS/antelopejs-sub002/pathresolve"
	"github.com/AntelopeJS/antelopejs-sub002/rterrors"
)

// State names one stage of a module's lifecycle: Loaded -> Constructed ->
// Active, with stop returning to Constructed and destroy returning to
// Loaded, so a module can be reconstructed and restarted without ever
// being reloaded from disk.
type State int

const (
	StateLoaded State = iota
	StateConstructed
	StateActive
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateConstructed:
		return "constructed"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Instance is the hook a loaded module's own runtime code implements to
// participate in the lifecycle; the manager only calls these in the right
// order at the right time, it never constructs module code itself — that
// is delegated to Manager.Factory, since executing a module's code is
// outside this core's scope.
type Instance interface {
	Construct(cfg map[string]interface{}) error
	Start() error
	Stop() error
	Destroy() error
}

// Entry is one loaded module and everything the manager tracks about it.
type Entry struct {
	ID       string
	Manifest *manifest.Manifest
	Config   config.ExpandedModuleConfig
	Instance Instance
	State    State
}

// ModuleRequest is one module the caller wants materialized and loaded;
// AddModules fans these out to the loader registry concurrently.
type ModuleRequest struct {
	ID     string
	Source modsource.Source
	Config config.ExpandedModuleConfig
}

// Manager holds the loaded-module registry, the derived association
// table, and the resolver snapshot kept in sync with both.
type Manager struct {
	FS             fsx.FS
	Cache          *modcache.Cache
	Registry       *loaderregistry.Registry
	Resolver       *pathresolve.Resolver
	Factory        func(entry *Entry) (Instance, error)
	UnrequireFiles func(folder string)

	mu      sync.Mutex
	order   []string
	entries map[string]*Entry
	assoc   map[string]map[string]*Entry
}

// New returns an empty Manager.
func New(fs fsx.FS, cache *modcache.Cache, registry *loaderregistry.Registry, resolver *pathresolve.Resolver) *Manager {
	return &Manager{
		FS:       fs,
		Cache:    cache,
		Registry: registry,
		Resolver: resolver,
		entries:  map[string]*Entry{},
		assoc:    map[string]map[string]*Entry{},
	}
}

type loadedBatch struct {
	req       ModuleRequest
	manifests []*manifest.Manifest
}

// AddModules loads every request's source concurrently, scans exports for
// the resulting manifests concurrently, then appends one Entry per
// manifest (a LocalFolder request may yield several), refuses duplicate
// ids, and refreshes associations and the resolver snapshot.
func (m *Manager) AddModules(requests []ModuleRequest) error {
	batches := make([]loadedBatch, len(requests))

	g, _ := errgroup.WithContext(context.Background())
	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			ms, err := m.Registry.Load(m.Cache, req.Source)
			if err != nil {
				return rterrors.Wrapf(err, "loading module %s", req.ID)
			}
			batches[i] = loadedBatch{req: req, manifests: ms}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var allManifests []*manifest.Manifest
	for _, b := range batches {
		allManifests = append(allManifests, b.manifests...)
	}

	g2, _ := errgroup.WithContext(context.Background())
	for _, mf := range allManifests {
		mf := mf
		g2.Go(func() error { return manifest.LoadExports(m.FS, mf) })
	}
	if err := g2.Wait(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range batches {
		for _, mf := range b.manifests {
			id := mf.Source.ID
			if id == "" {
				id = b.req.ID
			}
			if _, exists := m.entries[id]; exists {
				return rterrors.NewConfigInvalid(id, "duplicate module id", nil)
			}
			m.entries[id] = &Entry{ID: id, Manifest: mf, Config: b.req.Config, State: StateLoaded}
			m.order = append(m.order, id)
		}
	}

	m.refreshAssociationsLocked()
	m.rebuildResolverLocked()
	return nil
}

// refreshAssociationsLocked recomputes, for every loaded module and every
// interface it imports, which module provides it: the explicit
// importOverrides entry when present, else the single module whose
// exports contain the interface and whose disabledExports does not;
// anything else (zero or multiple candidates) records no provider.
func (m *Manager) refreshAssociationsLocked() {
	assoc := make(map[string]map[string]*Entry, len(m.entries))
	for _, entry := range m.entries {
		table := map[string]*Entry{}
		for _, iface := range entry.Manifest.Imports {
			table[iface] = m.resolveProviderLocked(entry, iface)
		}
		assoc[entry.ID] = table
	}
	m.assoc = assoc
}

func (m *Manager) resolveProviderLocked(entry *Entry, iface string) *Entry {
	for _, ov := range entry.Config.ImportOverrides {
		if ov.Interface != iface {
			continue
		}
		if ov.Source == "" {
			return nil
		}
		if p, ok := m.entries[ov.Source]; ok {
			return p
		}
		return nil
	}

	var match *Entry
	count := 0
	for _, candidate := range m.entries {
		if _, has := candidate.Manifest.Exports[iface]; !has {
			continue
		}
		if hasString(candidate.Config.DisabledExports, iface) {
			continue
		}
		match = candidate
		count++
	}
	if count != 1 {
		return nil
	}
	return match
}

func hasString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (m *Manager) rebuildResolverLocked() {
	modules := make([]*pathresolve.Module, 0, len(m.entries))
	for _, e := range m.entries {
		modules = append(modules, &pathresolve.Module{ID: e.ID, Manifest: e.Manifest})
	}
	assoc := make(map[string]map[string]*pathresolve.Module, len(m.assoc))
	for owner, table := range m.assoc {
		t := map[string]*pathresolve.Module{}
		for iface, provider := range table {
			if provider == nil {
				continue
			}
			t[iface] = &pathresolve.Module{ID: provider.ID, Manifest: provider.Manifest}
		}
		assoc[owner] = t
	}
	m.Resolver.Rebuild(modules, assoc)
}

// EnsureGraphValid returns a *rterrors.GraphUnresolved naming every
// (moduleID, interface) pair with no resolved provider, or nil if the
// graph is fully resolved.
func (m *Manager) EnsureGraphValid() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var missing []rterrors.UnresolvedImport
	for _, id := range m.order {
		entry := m.entries[id]
		for _, iface := range entry.Manifest.Imports {
			if m.assoc[id][iface] == nil {
				missing = append(missing, rterrors.UnresolvedImport{ModuleID: id, Interface: iface})
			}
		}
	}
	sort.Slice(missing, func(i, j int) bool {
		if missing[i].ModuleID != missing[j].ModuleID {
			return missing[i].ModuleID < missing[j].ModuleID
		}
		return missing[i].Interface < missing[j].Interface
	})
	return rterrors.NewGraphUnresolved(missing)
}

// GetModule returns the constructed Instance for id, if loaded and
// constructed.
func (m *Manager) GetModule(id string) (Instance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, false
	}
	return e.Instance, e.Instance != nil
}

// GetModuleEntry returns the full Entry for id.
func (m *Manager) GetModuleEntry(id string) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	return e, ok
}

// ListModules returns every loaded entry in insertion order.
func (m *Manager) ListModules() []*Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Entry, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.entries[id])
	}
	return out
}

// ReplaceLoadedModule swaps id's manifest in place, retaining its
// insertion position, and resets it to StateLoaded so the lifecycle can
// be re-driven — used by Reload.
func (m *Manager) ReplaceLoadedModule(id string, newManifest *manifest.Manifest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok {
		return rterrors.NewConfigInvalid(id, "unknown module id", nil)
	}
	entry.Manifest = newManifest
	entry.Instance = nil
	entry.State = StateLoaded
	m.refreshAssociationsLocked()
	m.rebuildResolverLocked()
	return nil
}

// UnrequireModuleFiles asks the surrounding runtime to forget any cached
// compiled artifacts under id's folder, via the out-of-core callback.
func (m *Manager) UnrequireModuleFiles(id string) {
	entry, ok := m.GetModuleEntry(id)
	if !ok || m.UnrequireFiles == nil {
		return
	}
	m.UnrequireFiles(entry.Manifest.Folder)
}
