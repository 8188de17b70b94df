// Package loaderregistry dispatches a source descriptor to its registered
// loader, queuing callers when no loader for that source type has been
// registered yet. This mirrors the teacher's source_manager.go
// unifiedFuture/waitlist idiom, which lets the CLI compose its own set of
// loaders (including test doubles) without this package needing
// compile-time knowledge of them.
package loaderregistry

import (
	"path/filepath"
	"sync"

	"github.com/AntelopeJS/antelopejs-sub002/manifest"
	"github.com/AntelopeJS/antelopejs-sub002/modcache"
	"github.com/AntelopeJS/antelopejs-sub002/modsource"
	"github.com/AntelopeJS/antelopejs-sub002/rterrors"
)

// Loader materializes one source variant into one or more manifests on
// disk.
type Loader interface {
	Load(cache *modcache.Cache, source modsource.Source) ([]*manifest.Manifest, error)
}

type registration struct {
	identifierField string
	loader          Loader
}

type pending struct {
	cache   *modcache.Cache
	source  modsource.Source
	resultC chan loadResult
}

type loadResult struct {
	manifests []*manifest.Manifest
	err       error
}

// Registry is the dispatch table from source type to loader.
type Registry struct {
	projectFolder string

	mu         sync.Mutex
	registered map[modsource.Type]registration
	waiting    map[modsource.Type][]*pending
}

// New returns an empty Registry. projectFolder is used to resolve relative
// Local/LocalFolder paths before dispatch.
func New(projectFolder string) *Registry {
	return &Registry{
		projectFolder: projectFolder,
		registered:    map[modsource.Type]registration{},
		waiting:       map[modsource.Type][]*pending{},
	}
}

// Register installs loader as the handler for sourceType, identified by
// identifierField ("path", "package", or "remote"), and drains any queued
// requests for that type.
func (r *Registry) Register(sourceType modsource.Type, identifierField string, loader Loader) {
	r.mu.Lock()
	r.registered[sourceType] = registration{identifierField: identifierField, loader: loader}
	queued := r.waiting[sourceType]
	delete(r.waiting, sourceType)
	r.mu.Unlock()

	for _, p := range queued {
		p := p
		go func() {
			p.resultC <- r.invoke(loader, identifierField, p.cache, p.source)
		}()
	}
}

// Load dispatches source to its registered loader. If none is registered
// yet, the call blocks until a matching Register call drains it.
func (r *Registry) Load(cache *modcache.Cache, source modsource.Source) ([]*manifest.Manifest, error) {
	r.mu.Lock()
	reg, ok := r.registered[source.Type]
	if ok {
		r.mu.Unlock()
		res := r.invoke(reg.loader, reg.identifierField, cache, source)
		return res.manifests, res.err
	}

	p := &pending{cache: cache, source: source, resultC: make(chan loadResult, 1)}
	r.waiting[source.Type] = append(r.waiting[source.Type], p)
	r.mu.Unlock()

	res := <-p.resultC
	return res.manifests, res.err
}

func (r *Registry) invoke(loader Loader, identifierField string, cache *modcache.Cache, source modsource.Source) loadResult {
	if identifierField == "path" {
		if p := source.Field("path"); p != "" && !filepath.IsAbs(p) {
			source = source.WithField("path", filepath.Join(r.projectFolder, p))
		}
	}
	manifests, err := loader.Load(cache, source)
	if err != nil {
		return loadResult{err: err}
	}
	return loadResult{manifests: manifests}
}

// GetLoaderIdentifier returns the value of source's declared identifier
// field according to whichever loader is registered for its type, for
// callers that need to name a future installation request. It fails with
// ConfigInvalid when no loader is registered for that type.
func (r *Registry) GetLoaderIdentifier(source modsource.Source) (string, error) {
	r.mu.Lock()
	reg, ok := r.registered[source.Type]
	r.mu.Unlock()
	if !ok {
		return "", rterrors.NewConfigInvalid("", "no loader registered for source type "+string(source.Type), nil)
	}
	return source.Field(reg.identifierField), nil
}
