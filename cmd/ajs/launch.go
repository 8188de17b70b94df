package main

import (
	"context"
	"flag"

	"github.com/AntelopeJS/antelopejs-sub002/buildartifact"
	"github.com/AntelopeJS/antelopejs-sub002/modmanager"
	"github.com/AntelopeJS/antelopejs-sub002/shutdown"
)

type launchCommand struct {
	env         string
	watch       bool
	interactive bool
}

func (c *launchCommand) Name() string { return "launch" }
func (c *launchCommand) Args() string { return "[--env E] [--watch] [--interactive]" }
func (c *launchCommand) ShortHelp() string {
	return "resolve config, load modules, and run until shutdown"
}
func (c *launchCommand) LongHelp() string {
	return "Resolves the project's configuration, loads and constructs every configured " +
		"module, starts them, and blocks until SIGINT/SIGTERM. With --watch, each module's " +
		"source folder is watched for changes and hot-reloaded."
}
func (c *launchCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&c.env, "env", "", "environment to resolve (default: none)")
	fs.BoolVar(&c.watch, "watch", false, "hot-reload modules on file change")
	fs.BoolVar(&c.interactive, "interactive", false, "accepted and ignored: launch reads no commands from stdin")
}

func (c *launchCommand) Run(_ []string) error {
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

	return runLifecycle(rt, c.watch)
}

type launchFromBuildCommand struct{}

func (c *launchFromBuildCommand) Name() string      { return "launchFromBuild" }
func (c *launchFromBuildCommand) Args() string      { return "" }
func (c *launchFromBuildCommand) ShortHelp() string { return "replay a frozen build artifact" }
func (c *launchFromBuildCommand) LongHelp() string {
	return "Reads .antelope/build/build.json, verifies every recorded module folder still " +
		"exists, warns if the current configuration has drifted, and launches the module " +
		"set recorded in the artifact rather than the one the configuration lists."
}
func (c *launchFromBuildCommand) Register(*flag.FlagSet) {}

func (c *launchFromBuildCommand) Run(_ []string) error {
	projectFolder, err := projectFolderFromWD()
	if err != nil {
		return err
	}

	rt, err := newRuntime(projectFolder, "")
	if err != nil {
		return err
	}
	defer rt.close()

	artifact, err := buildartifact.ReadBuildArtifact(rt.fs, projectFolder)
	if err != nil {
		return err
	}
	if err := buildartifact.EnsureBuildModulesExist(rt.fs, artifact); err != nil {
		return err
	}
	buildartifact.WarnIfBuildIsStale(rt.fs, projectFolder, artifact, stdLogger)

	requests := make([]modmanager.ModuleRequest, 0, len(artifact.Modules))
	for _, mod := range artifact.Modules {
		requests = append(requests, modmanager.ModuleRequest{ID: mod.ID, Source: mod.Source})
	}
	if err := rt.manager.AddModules(requests); err != nil {
		return err
	}
	if err := rt.manager.EnsureGraphValid(); err != nil {
		return err
	}

	return runLifecycle(rt, false)
}

func runLifecycle(rt *runtime, watch bool) error {
	if err := rt.manager.ConstructAll(); err != nil {
		return err
	}
	if err := rt.manager.StartAll(); err != nil {
		return err
	}

	sd := shutdown.New()
	sd.Logger = stdLogger
	sd.Register(100, func() error {
		vlogf("stopping all modules")
		return rt.manager.StopAll()
	})
	sd.Register(50, func() error {
		vlogf("destroying all modules")
		return rt.manager.DestroyAll()
	})
	sd.Register(0, func() error {
		rt.close()
		return nil
	})

	var watcher *modmanager.Watch
	if watch {
		debouncer := modmanager.NewDebouncer(0, rt.manager.Reload)
		w, err := modmanager.NewWatch(debouncer)
		if err != nil {
			return err
		}
		for _, entry := range rt.manager.ListModules() {
			dir := entry.Config.Source.WatchDir
			if dir == "" {
				dir = entry.Manifest.Folder
			}
			if err := w.Add(entry.ID, dir); err != nil {
				return err
			}
		}
		watcher = w
		ctx, cancel := context.WithCancel(context.Background())
		sd.Register(200, func() error { cancel(); return nil })
		go watcher.Run(ctx)
	}

	sd.UseDefaultSignalHandling()
	logf("launched %d modules, waiting for shutdown signal", len(rt.manager.ListModules()))
	select {}
}
