package loader

import (
	vcslib "github.com/Masterminds/vcs"

	"github.com/AntelopeJS/antelopejs-sub002/fsx"
	"github.com/AntelopeJS/antelopejs-sub002/manifest"
	"github.com/AntelopeJS/antelopejs-sub002/modcache"
	"github.com/AntelopeJS/antelopejs-sub002/modsource"
	"github.com/AntelopeJS/antelopejs-sub002/rterrors"
)

// GitLoader materializes a Git source: a clone of a remote repository kept
// in the module cache, checked out at a pinned commit, branch head, or
// (absent either) the remote's default branch, exactly the way the
// teacher's vcs_source.go/vcs_repo.go drive github.com/Masterminds/vcs.
type GitLoader struct {
	FS fsx.FS
}

// NewGit returns a GitLoader backed by fs.
func NewGit(fs fsx.FS) *GitLoader { return &GitLoader{FS: fs} }

func (l *GitLoader) Load(cache *modcache.Cache, source modsource.Source) ([]*manifest.Manifest, error) {
	key := modsource.SanitizeRemote(source.Remote)

	probeFolder, err := cache.GetFolder(key, true, false)
	if err != nil {
		return nil, err
	}
	probe, err := vcslib.NewGitRepo(source.Remote, probeFolder)
	if err != nil {
		return nil, &rterrors.AcquisitionFailed{Source: source.Remote, Cause: err}
	}

	fresh := !probe.CheckLocal() || source.IgnoreCache
	folder, err := cache.GetFolder(key, !fresh, true)
	if err != nil {
		return nil, err
	}

	repo, err := vcslib.NewGitRepo(source.Remote, folder)
	if err != nil {
		return nil, &rterrors.AcquisitionFailed{Source: source.Remote, Cause: err}
	}

	if fresh {
		if err := repo.Get(); err != nil {
			return nil, &rterrors.AcquisitionFailed{Source: source.Remote, Command: "git clone", Cause: err}
		}
	}

	ref := source.Commit
	if ref == "" {
		ref = source.Branch
	}
	if ref != "" {
		if err := repo.UpdateVersion(ref); err != nil {
			return nil, &rterrors.AcquisitionFailed{Source: source.Remote, Command: "git checkout " + ref, Cause: err}
		}
	}
	if source.Commit == "" && !fresh {
		if err := repo.Update(); err != nil {
			return nil, &rterrors.AcquisitionFailed{Source: source.Remote, Command: "git pull", Cause: err}
		}
	}

	branch := source.Branch
	if branch == "" && source.Commit == "" {
		branch, err = repo.Current()
		if err != nil {
			return nil, &rterrors.AcquisitionFailed{Source: source.Remote, Command: "git rev-parse --abbrev-ref HEAD", Cause: err}
		}
	}

	rev, err := repo.Version()
	if err != nil {
		return nil, &rterrors.AcquisitionFailed{Source: source.Remote, Command: "git rev-parse HEAD", Cause: err}
	}

	recorded := branch + ":" + rev
	changed := true
	if prev, ok := cache.GetVersion(key); ok {
		changed = prev != recorded
	}
	if err := cache.SetVersion(key, recorded); err != nil {
		return nil, err
	}

	if changed {
		if err := runInstallCommands(folder, source.InstallCommands()); err != nil {
			return nil, err
		}
	}

	m, err := manifest.Load(l.FS, folder, source)
	if err != nil {
		return nil, err
	}
	return []*manifest.Manifest{m}, nil
}
