// Package loader implements the per-source-type acquisition logic (C4):
// Local, LocalFolder, Package, and Git, each satisfying
// loaderregistry.Loader.
package loader

import (
	"context"
	"time"

	"github.com/AntelopeJS/antelopejs-sub002/fsx"
	"github.com/AntelopeJS/antelopejs-sub002/manifest"
	"github.com/AntelopeJS/antelopejs-sub002/modcache"
	"github.com/AntelopeJS/antelopejs-sub002/modsource"
	"github.com/AntelopeJS/antelopejs-sub002/procrun"
	"github.com/AntelopeJS/antelopejs-sub002/rterrors"
)

// DefaultInstallTimeout bounds how long an installCommand may run without
// producing output before it is considered stalled and killed.
const DefaultInstallTimeout = 2 * time.Minute

// LocalLoader materializes a Local source: a directory already present on
// disk, with an optional installCommand run in it first.
type LocalLoader struct {
	FS fsx.FS
}

// NewLocal returns a LocalLoader backed by fs (fsx.OS{} in production,
// fsx.Memory in tests).
func NewLocal(fs fsx.FS) *LocalLoader { return &LocalLoader{FS: fs} }

func (l *LocalLoader) Load(_ *modcache.Cache, source modsource.Source) ([]*manifest.Manifest, error) {
	ok, err := l.FS.Exists(source.Path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, rterrors.NewConfigInvalid(source.Path, "local module path does not exist", nil)
	}

	if err := runInstallCommands(source.Path, source.InstallCommands()); err != nil {
		return nil, err
	}

	m, err := manifest.Load(l.FS, source.Path, source)
	if err != nil {
		return nil, err
	}
	return []*manifest.Manifest{m}, nil
}

// runInstallCommands runs each command as a shell invocation with cwd=dir,
// in order, aborting on the first failure with the combined stderr/stdout.
func runInstallCommands(dir string, commands []string) error {
	for _, c := range commands {
		res, err := procrun.Run(context.Background(), dir, "sh", []string{"-c", c}, DefaultInstallTimeout)
		if err != nil {
			return rterrors.Wrapf(err, "running installCommand %q in %s", c, dir)
		}
		if res.Code != 0 {
			out := string(res.Stderr)
			if out == "" {
				out = string(res.Stdout)
			}
			return &rterrors.AcquisitionFailed{Source: dir, Command: c, Output: out}
		}
	}
	return nil
}
