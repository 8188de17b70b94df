package pathresolve

import (
	"testing"

	"github.com/AntelopeJS/antelopejs-sub002/fsx"
	"github.com/AntelopeJS/antelopejs-sub002/manifest"
)

func newModule(id, folder, exportsPath string) *Module {
	return &Module{
		ID: id,
		Manifest: &manifest.Manifest{
			Name:        id,
			Folder:      folder,
			ExportsPath: exportsPath,
			Exports:     map[string]string{},
		},
	}
}

func TestResolveAjsLocal(t *testing.T) {
	r := NewResolver(fsx.NewMemory())
	owner := newModule("owner", "/proj/mods/owner", "/proj/mods/owner/interfaces")
	r.Rebuild([]*Module{owner}, nil)

	got, err := r.Resolve("@ajs.local/foo/bar", "/proj/mods/owner/src/index.js")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/proj/mods/owner/interfaces/foo/bar" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveAjsInterfaceUsesAssociation(t *testing.T) {
	r := NewResolver(fsx.NewMemory())
	owner := newModule("owner", "/proj/mods/owner", "/proj/mods/owner/interfaces")
	provider := newModule("provider", "/proj/mods/provider", "/proj/mods/provider/interfaces")
	r.Rebuild([]*Module{owner, provider}, map[string]map[string]*Module{
		"owner": {"logging@1": provider},
	})

	got, err := r.Resolve("@ajs/logging/1/sink.js", "/proj/mods/owner/src/index.js")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/proj/mods/provider/interfaces/logging/1/sink.js" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveAjsInterfaceUnresolvedErrors(t *testing.T) {
	r := NewResolver(fsx.NewMemory())
	owner := newModule("owner", "/proj/mods/owner", "/proj/mods/owner/interfaces")
	r.Rebuild([]*Module{owner}, map[string]map[string]*Module{})

	_, err := r.Resolve("@ajs/logging/1", "/proj/mods/owner/src/index.js")
	if err == nil {
		t.Fatal("expected error for un-imported interface")
	}
}

func TestResolveAjsRawLocatesRightmostSegment(t *testing.T) {
	r := NewResolver(fsx.NewMemory())
	provider := newModule("@scope/provider", "/proj/mods/provider", "/proj/mods/provider/interfaces")
	r.Rebuild([]*Module{provider}, nil)

	got, err := r.Resolve("@ajs.raw/@scope/provider/logging@1/sink.js", "")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/proj/mods/provider/interfaces/logging/1/sink.js" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveAjsRawUnknownModuleReturnsEmpty(t *testing.T) {
	r := NewResolver(fsx.NewMemory())
	r.Rebuild(nil, nil)

	got, err := r.Resolve("@ajs.raw/nobody/logging@1", "")
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}

func TestResolveSrcAliasLongestPrefix(t *testing.T) {
	fs := fsx.NewMemory()
	r := NewResolver(fs)
	owner := newModule("owner", "/proj/mods/owner", "/proj/mods/owner/interfaces")
	owner.Manifest.SrcAliases = map[string]string{
		"lib":      "/proj/mods/owner/lib-old",
		"lib/sub":  "/proj/mods/owner/lib-sub-new",
	}
	r.Rebuild([]*Module{owner}, nil)

	got, err := r.Resolve("lib/sub/thing", "/proj/mods/owner/src/index.js")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/proj/mods/owner/lib-sub-new/thing" {
		t.Fatalf("expected longest-prefix alias match, got %q", got)
	}
}

func TestResolvePathsProbesCandidates(t *testing.T) {
	fs := fsx.NewMemory()
	fs.WriteFile("/proj/mods/owner/base/widgets/button/index.js", []byte("x"), 0o644)

	r := NewResolver(fs)
	owner := newModule("owner", "/proj/mods/owner", "/proj/mods/owner/interfaces")
	owner.Manifest.Paths = []manifest.PathRule{
		{Key: "widgets", Values: []string{"/proj/mods/owner/base/widgets"}},
	}
	r.Rebuild([]*Module{owner}, nil)

	got, err := r.Resolve("widgets/button", "/proj/mods/owner/src/index.js")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/proj/mods/owner/base/widgets/button/index.js" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveUnknownRequestReturnsEmpty(t *testing.T) {
	r := NewResolver(fsx.NewMemory())
	owner := newModule("owner", "/proj/mods/owner", "/proj/mods/owner/interfaces")
	r.Rebuild([]*Module{owner}, nil)

	got, err := r.Resolve("lodash", "/proj/mods/owner/src/index.js")
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Fatalf("expected empty result for an ordinary package request, got %q", got)
	}
}
