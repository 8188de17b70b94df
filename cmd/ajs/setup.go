package main

import (
	"sort"

	"github.com/AntelopeJS/antelopejs-sub002/config"
	"github.com/AntelopeJS/antelopejs-sub002/fsx"
	"github.com/AntelopeJS/antelopejs-sub002/loader"
	"github.com/AntelopeJS/antelopejs-sub002/loaderregistry"
	"github.com/AntelopeJS/antelopejs-sub002/modcache"
	"github.com/AntelopeJS/antelopejs-sub002/modmanager"
	"github.com/AntelopeJS/antelopejs-sub002/modsource"
	"github.com/AntelopeJS/antelopejs-sub002/pathresolve"
	"github.com/AntelopeJS/antelopejs-sub002/registryauth"
)

// runtime bundles together everything a command needs to resolve config
// and drive the module manager through a load.
type runtime struct {
	fs       fsx.FS
	cfg      *config.ResolvedConfig
	cache    *modcache.Cache
	registry *loaderregistry.Registry
	resolver *pathresolve.Resolver
	manager  *modmanager.Manager
}

// newRuntime resolves the project's configuration and wires up a module
// manager with every loader registered against its matching source type.
func newRuntime(projectFolder, env string) (*runtime, error) {
	fs := fsx.OS{}

	cfg, err := config.Resolve(fs, projectFolder, env)
	if err != nil {
		return nil, err
	}

	cache, err := modcache.Open(cfg.CacheFolder)
	if err != nil {
		return nil, err
	}

	auth, err := registryauth.Load(fs, cfg.CacheFolder)
	if err != nil {
		return nil, err
	}

	registry := loaderregistry.New(projectFolder)
	registry.Register(modsource.TypeLocal, "path", loader.NewLocal(fs))
	registry.Register(modsource.TypeLocalFolder, "path", loader.NewLocalFolder(fs))
	registry.Register(modsource.TypePackage, "package", loader.NewPackage(fs, cache, auth))
	registry.Register(modsource.TypeGit, "remote", loader.NewGit(fs))

	resolver := pathresolve.NewResolver(fs)
	manager := modmanager.New(fs, cache, registry, resolver)

	return &runtime{fs: fs, cfg: cfg, cache: cache, registry: registry, resolver: resolver, manager: manager}, nil
}

func (rt *runtime) close() {
	rt.cache.Close()
}

// requests turns the resolved per-module configuration into the module
// manager's load requests, sorted by module id for deterministic output.
func (rt *runtime) requests() []modmanager.ModuleRequest {
	ids := make([]string, 0, len(rt.cfg.Modules))
	for id := range rt.cfg.Modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]modmanager.ModuleRequest, 0, len(ids))
	for _, id := range ids {
		mc := rt.cfg.Modules[id]
		out = append(out, modmanager.ModuleRequest{ID: id, Source: mc.Source, Config: mc})
	}
	return out
}

// loadAll loads every configured module and validates the resulting
// import graph.
func (rt *runtime) loadAll() error {
	if err := rt.manager.AddModules(rt.requests()); err != nil {
		return err
	}
	return rt.manager.EnsureGraphValid()
}
