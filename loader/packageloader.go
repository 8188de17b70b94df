package loader

import (
	"archive/tar"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/klauspost/compress/gzip"

	"github.com/AntelopeJS/antelopejs-sub002/fsx"
	"github.com/AntelopeJS/antelopejs-sub002/manifest"
	"github.com/AntelopeJS/antelopejs-sub002/modcache"
	"github.com/AntelopeJS/antelopejs-sub002/modsource"
	"github.com/AntelopeJS/antelopejs-sub002/procrun"
	"github.com/AntelopeJS/antelopejs-sub002/registryauth"
	"github.com/AntelopeJS/antelopejs-sub002/rterrors"
)

// packTool is the external command used to fetch a registry tarball. It is
// a package-level var so tests can redirect it to a stub.
var packTool = "npm"

// PackageLoader materializes a Package source: a published artifact
// fetched from a registry into the module cache, keyed by resolved
// version.
type PackageLoader struct {
	FS       fsx.FS
	Cache    *modcache.Cache
	Registry *registryauth.Config
}

// NewPackage returns a PackageLoader. registry may be registryauth.Empty()
// to always use the public default endpoint.
func NewPackage(fs fsx.FS, cache *modcache.Cache, registry *registryauth.Config) *PackageLoader {
	return &PackageLoader{FS: fs, Cache: cache, Registry: registry}
}

func (l *PackageLoader) Load(cache *modcache.Cache, source modsource.Source) ([]*manifest.Manifest, error) {
	if cache == nil {
		cache = l.Cache
	}

	constraint, err := parseConstraint(source.Version)
	if err != nil {
		return nil, rterrors.NewConfigInvalid(source.Package, "invalid version range", err)
	}

	if !source.IgnoreCache {
		if cached, ok := cache.GetVersion(source.Package); ok {
			if satisfies(constraint, cached) {
				folder, err := cache.GetFolder(source.Package, true, false)
				if err != nil {
					return nil, err
				}
				m, err := manifest.Load(l.FS, folder, source)
				if err != nil {
					return nil, err
				}
				return []*manifest.Manifest{m}, nil
			}
		}
	}

	folder, version, err := l.fetch(cache, source)
	if err != nil {
		return nil, err
	}
	if !satisfies(constraint, version) {
		return nil, &rterrors.AcquisitionFailed{
			Source: source.Package,
			Output: "resolved version " + version + " does not satisfy requested range " + source.Version,
		}
	}

	if err := runInstallCommands(folder, source.InstallCommands()); err != nil {
		return nil, err
	}

	m, err := manifest.Load(l.FS, folder, source)
	if err != nil {
		return nil, err
	}
	return []*manifest.Manifest{m}, nil
}

// fetch downloads the requested package spec via the registry packaging
// tool into a scratch directory, extracts it, and transfers the result
// into the cache keyed by its own declared version.
func (l *PackageLoader) fetch(cache *modcache.Cache, source modsource.Source) (folder, version string, err error) {
	tmp, err := cache.GetTemp()
	if err != nil {
		return "", "", err
	}
	defer os.RemoveAll(tmp)

	endpoint, token := l.Registry.For(source.Package)

	spec := source.Package
	if source.Version != "" {
		spec = source.Package + "@" + source.Version
	}

	args := []string{"pack", spec, "--registry", endpoint, "--pack-destination", tmp}
	env := []string{}
	if token != "" {
		env = append(env, "NPM_CONFIG__AUTH="+token)
	}
	res, err := procrun.RunEnv(context.Background(), tmp, packTool, args, env, procrun.DefaultQuietWindow)
	if err != nil {
		return "", "", rterrors.Wrapf(err, "fetching %s", spec)
	}
	if res.Code != 0 {
		return "", "", &rterrors.AcquisitionFailed{Source: source.Package, Command: packTool + " " + strings.Join(args, " "), Output: string(res.CombinedOutput())}
	}

	tarball, err := findTarball(tmp)
	if err != nil {
		return "", "", err
	}

	extracted := filepath.Join(tmp, "extracted")
	if err := extractNpmTarball(tarball, extracted); err != nil {
		return "", "", rterrors.Wrapf(err, "extracting %s", tarball)
	}

	version, err = readPackageVersion(extracted)
	if err != nil {
		return "", "", err
	}

	stage, err := cache.GetTemp()
	if err != nil {
		return "", "", err
	}
	if err := os.RemoveAll(stage); err != nil {
		return "", "", err
	}
	if err := os.Rename(extracted, stage); err != nil {
		return "", "", err
	}

	if err := cache.Transfer(stage, source.Package, version); err != nil {
		return "", "", err
	}
	folder, err = cache.GetFolder(source.Package, true, false)
	return folder, version, err
}

func findTarball(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".tgz") {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", rterrors.NewConfigInvalid(dir, "registry packaging tool produced no .tgz artifact", nil)
}

// extractNpmTarball unpacks tarball (gzip-compressed tar) into dest,
// stripping the conventional leading "package/" path component that npm
// tarballs always carry.
func extractNpmTarball(tarball, dest string) error {
	f, err := os.Open(tarball)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		name := strings.TrimPrefix(hdr.Name, "package/")
		if name == "" || strings.HasPrefix(name, "..") {
			continue
		}
		target := filepath.Join(dest, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
	return nil
}

func readPackageVersion(folder string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(folder, "package.json"))
	if err != nil {
		return "", rterrors.Wrapf(err, "reading extracted package.json")
	}
	var pkg struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(raw, &pkg); err != nil {
		return "", rterrors.NewConfigInvalid(folder, "extracted package.json is not valid JSON", err)
	}
	return pkg.Version, nil
}

func parseConstraint(v string) (semver.Constraint, error) {
	if v == "" {
		return nil, nil
	}
	return semver.NewConstraint(v)
}

func satisfies(c semver.Constraint, version string) bool {
	if c == nil {
		return true
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	return c.Matches(v) == nil
}
