// Package pathresolve rewrites the special `@ajs*` import strings a
// module's own code uses into concrete filesystem paths: `@ajs.local/...`
// into the owning module's own exports tree, `@ajs/<iface>/<ver>` into
// whichever module the owner's import graph associates with that
// interface, `@ajs.raw/<module-id>/<iface>@<ver>` straight into a named
// module regardless of import declarations, plus the owner manifest's own
// `srcAliases`/`paths` tables — all via longest-prefix radix lookups, the
// same structure the teacher uses for import-path and project-root prefix
// matching (`typed_radix.go`, `deducers.go`, `rootdata.go`).
package pathresolve

import (
	"path/filepath"
	"regexp"
	"strings"

	radix "github.com/armon/go-radix"

	"github.com/AntelopeJS/antelopejs-sub002/fsx"
	"github.com/AntelopeJS/antelopejs-sub002/manifest"
	"github.com/AntelopeJS/antelopejs-sub002/rterrors"
)

// Module is the minimal per-module view the resolver consults. The module
// manager owns the authoritative records; Rebuild takes a snapshot of them.
type Module struct {
	ID       string
	Manifest *manifest.Manifest
}

// Resolver answers resolve() requests against a snapshot of the loaded
// module graph. Resolution itself never mutates the snapshot; the module
// manager calls Rebuild whenever the module set or associations change,
// matching the teacher's own pattern of radix trees rebuilt wholesale on
// every solve rather than incrementally maintained.
type Resolver struct {
	FS fsx.FS

	byFolder *radix.Tree
	byID     map[string]*Module
	assoc    map[string]map[string]*Module // ownerID -> "iface@ver" -> provider (absent key = unresolved)
}

// NewResolver returns an empty Resolver; call Rebuild before resolving.
func NewResolver(fs fsx.FS) *Resolver {
	return &Resolver{
		FS:       fs,
		byFolder: radix.New(),
		byID:     map[string]*Module{},
		assoc:    map[string]map[string]*Module{},
	}
}

// Rebuild replaces the resolver's snapshot in one atomic swap. assoc maps
// an owning module id to its resolved "iface@ver" -> provider table, with
// a missing entry meaning "no provider": the table does not distinguish an
// import that could not be resolved from one that was never declared, and
// Resolve reports both as ImportNotPermitted.
func (r *Resolver) Rebuild(modules []*Module, assoc map[string]map[string]*Module) {
	t := radix.New()
	byID := make(map[string]*Module, len(modules))
	for _, m := range modules {
		if m.Manifest != nil {
			t.Insert(m.Manifest.Folder, m)
		}
		byID[m.ID] = m
	}
	r.byFolder = t
	r.byID = byID
	r.assoc = assoc
}

// ownerOf finds the module whose folder is the longest prefix of filename.
func (r *Resolver) ownerOf(filename string) (*Module, bool) {
	if filename == "" {
		return nil, false
	}
	_, v, ok := r.byFolder.LongestPrefix(filename)
	if !ok {
		return nil, false
	}
	return v.(*Module), true
}

// ModuleByID looks up a loaded module by id.
func (r *Resolver) ModuleByID(id string) (*Module, bool) {
	m, ok := r.byID[id]
	return m, ok
}

var rawTailPattern = regexp.MustCompile(`^(.*)/([^/@]+)@([^/]+?)(?:/(.*))?$`)

// Resolve rewrites one import request string on behalf of the module whose
// file is executing (parentFilename), per the four cases of the distilled
// spec: @ajs.raw (owner-independent), @ajs.local, @ajs/<iface>/<ver>, then
// the owner manifest's own srcAliases/paths tables. A ("", nil) result
// means "not one of ours" — the caller's normal module resolution should
// proceed untouched.
func (r *Resolver) Resolve(request, parentFilename string) (string, error) {
	if rest, ok := cutPrefix(request, "@ajs.raw/"); ok {
		return r.resolveRaw(rest)
	}

	owner, ok := r.ownerOf(parentFilename)
	if !ok {
		return "", nil
	}

	if rest, ok := cutPrefix(request, "@ajs.local/"); ok {
		return filepath.Join(owner.Manifest.ExportsPath, rest), nil
	}

	if rest, ok := cutPrefix(request, "@ajs/"); ok {
		return r.resolveAssociated(owner, rest)
	}

	if target, ok := matchLongestPrefix(owner.Manifest.SrcAliases, request); ok {
		return target, nil
	}

	if target, ok := r.matchPaths(owner.Manifest.Paths, request); ok {
		return target, nil
	}

	return "", nil
}

func (r *Resolver) resolveAssociated(owner *Module, rest string) (string, error) {
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 2 {
		return "", &rterrors.ImportNotPermitted{ModuleID: owner.ID, Interface: rest}
	}
	key := parts[0] + "@" + parts[1]
	var tail string
	if len(parts) == 3 {
		tail = parts[2]
	}

	providers := r.assoc[owner.ID]
	provider, ok := providers[key]
	if !ok || provider == nil {
		return "", &rterrors.ImportNotPermitted{ModuleID: owner.ID, Interface: key}
	}
	return filepath.Join(provider.Manifest.ExportsPath, parts[0], parts[1], tail), nil
}

// resolveRaw implements @ajs.raw/<module-id>/<iface>@<ver>[/<rest>],
// locating the rightmost /iface@ver segment so a module id that itself
// contains "/" (e.g. a scoped package path) still parses correctly.
func (r *Resolver) resolveRaw(rest string) (string, error) {
	m := rawTailPattern.FindStringSubmatch(rest)
	if m == nil {
		return "", nil
	}
	moduleID, iface, ver, tail := m[1], m[2], m[3], m[4]

	module, ok := r.byID[moduleID]
	if !ok {
		return "", nil
	}
	return filepath.Join(module.Manifest.ExportsPath, iface, ver, tail), nil
}

// matchLongestPrefix builds an ephemeral radix tree over aliases (a
// manifest-scoped table, too small and too short-lived to cache) and
// returns the replacement folder joined with whatever followed the
// matched prefix in request.
func matchLongestPrefix(aliases map[string]string, request string) (string, bool) {
	if len(aliases) == 0 {
		return "", false
	}
	t := radix.New()
	for alias, folder := range aliases {
		t.Insert(alias, folder)
	}
	prefix, v, ok := t.LongestPrefix(request)
	if !ok {
		return "", false
	}
	folder := v.(string)
	remainder := strings.TrimPrefix(request[len(prefix):], "/")
	return filepath.Join(folder, remainder), true
}

// matchPaths mirrors antelopeJs.paths: longest-prefix match on rule.Key,
// then probe each candidate replacement for a ".js" file or an
// "/index.js" before accepting it.
func (r *Resolver) matchPaths(rules []manifest.PathRule, request string) (string, bool) {
	if len(rules) == 0 {
		return "", false
	}
	t := radix.New()
	for i, rule := range rules {
		t.Insert(rule.Key, i)
	}
	prefix, v, ok := t.LongestPrefix(request)
	if !ok {
		return "", false
	}
	rule := rules[v.(int)]
	remainder := strings.TrimPrefix(request[len(prefix):], "/")

	for _, candidate := range rule.Values {
		target := filepath.Join(candidate, remainder)
		if ok, _ := r.FS.Exists(target + ".js"); ok {
			return target + ".js", true
		}
		indexTarget := filepath.Join(target, "index.js")
		if ok, _ := r.FS.Exists(indexTarget); ok {
			return indexTarget, true
		}
	}
	return "", false
}

func cutPrefix(s, prefix string) (string, bool) {
	if !strings.HasPrefix(s, prefix) {
		return "", false
	}
	return s[len(prefix):], true
}
