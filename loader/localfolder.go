package loader

import (
	"path/filepath"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"

	"github.com/AntelopeJS/antelopejs-sub002/fsx"
	"github.com/AntelopeJS/antelopejs-sub002/manifest"
	"github.com/AntelopeJS/antelopejs-sub002/modcache"
	"github.com/AntelopeJS/antelopejs-sub002/modsource"
)

// LocalFolderLoader materializes a LocalFolder source: a directory whose
// immediate subdirectories are each an independent module, sharing the
// parent's installCommand and watchDir.
type LocalFolderLoader struct {
	FS fsx.FS
}

// NewLocalFolder returns a LocalFolderLoader backed by fs.
func NewLocalFolder(fs fsx.FS) *LocalFolderLoader { return &LocalFolderLoader{FS: fs} }

func (l *LocalFolderLoader) Load(cache *modcache.Cache, source modsource.Source) ([]*manifest.Manifest, error) {
	children, err := listImmediateSubdirs(source.Path)
	if err != nil {
		return nil, err
	}

	local := NewLocal(l.FS)
	manifests := make([]*manifest.Manifest, 0, len(children))
	for _, child := range children {
		childSource := modsource.Source{
			Type:           modsource.TypeLocal,
			ID:             childModuleName(source.ID, child),
			Path:           filepath.Join(source.Path, child),
			WatchDir:       source.WatchDir,
			InstallCommand: source.InstallCommand,
		}
		ms, err := local.Load(cache, childSource)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, ms...)
	}
	return manifests, nil
}

// listImmediateSubdirs returns the names of dir's immediate subdirectories,
// skipping regular files, using godirwalk for a fast single-level scan
// instead of the heavier recursive walk most of the stdlib examples reach
// for.
func listImmediateSubdirs(dir string) ([]string, error) {
	entries, err := godirwalk.ReadDirents(dir, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", dir)
	}
	entries.Sort()

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func childModuleName(parentID, childName string) string {
	if parentID == "" {
		return childName
	}
	return parentID + "-" + childName
}
