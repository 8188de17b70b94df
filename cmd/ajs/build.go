package main

import (
	"flag"

	"github.com/AntelopeJS/antelopejs-sub002/buildartifact"
)

type buildCommand struct {
	env string
}

func (c *buildCommand) Name() string      { return "build" }
func (c *buildCommand) Args() string      { return "[--env E]" }
func (c *buildCommand) ShortHelp() string { return "resolve config and freeze a build artifact" }
func (c *buildCommand) LongHelp() string {
	return "Resolves the project's configuration, loads every configured module, " +
		"and writes .antelope/build/build.json so launchFromBuild can replay it later."
}
func (c *buildCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&c.env, "env", "", "environment to resolve (default: none)")
}

func (c *buildCommand) Run(_ []string) error {
	projectFolder, err := projectFolderFromWD()
	if err != nil {
		return err
	}

	rt, err := newRuntime(projectFolder, c.env)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.loadAll(); err != nil {
		return err
	}

	hash, err := buildartifact.ComputeConfigHash(rt.fs, projectFolder, c.env)
	if err != nil {
		return err
	}

	modules := make([]buildartifact.BuiltModule, 0, len(rt.manager.ListModules()))
	for _, entry := range rt.manager.ListModules() {
		modules = append(modules, buildartifact.BuiltModule{
			ID:     entry.ID,
			Folder: entry.Manifest.Folder,
			Source: entry.Config.Source,
		})
	}

	artifact := &buildartifact.Artifact{Env: c.env, ConfigHash: hash, Modules: modules}
	if err := buildartifact.WriteBuildArtifact(rt.fs, projectFolder, artifact); err != nil {
		return err
	}

	logf("build complete: %d modules frozen into %s/%s", len(modules), buildartifact.BuildDir, buildartifact.FileName)
	return nil
}
