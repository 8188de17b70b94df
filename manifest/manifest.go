// Package manifest parses a module's on-disk metadata (package.json, with an
// optional antelope.module.json overlay) into the Manifest the rest of the
// runtime works with: name, version, folder, exports, and imports.
package manifest

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/AntelopeJS/antelopejs-sub002/fsx"
	"github.com/AntelopeJS/antelopejs-sub002/modsource"
	"github.com/AntelopeJS/antelopejs-sub002/rterrors"
)

// Manifest is the parsed, on-disk description of a single loaded module.
type Manifest struct {
	Name    string
	Version string
	Folder  string // absolute
	Main    string // absolute, under Folder

	BaseURL     string
	ExportsPath string
	Paths       []PathRule

	Exports map[string]string // "iface@version" -> absolute path
	Imports []string          // "iface@version"

	// DeclaredExports holds antelopeJs.exports verbatim ("iface@version" or
	// bare "iface"); LoadExports consults it to know what to scan for.
	DeclaredExports []string

	SrcAliases map[string]string // alias -> absolute replacement folder

	Source modsource.Source
}

// PathRule is one entry of antelopeJs.paths, expanded to absolute
// candidate directories.
type PathRule struct {
	Key    string
	Values []string // absolute, trailing "*" stripped
}

// rawPackageJSON is the subset of package.json this runtime reads.
type rawPackageJSON struct {
	Name    string          `json:"name"`
	Version string          `json:"version"`
	Main    string          `json:"main"`
	AJS     *rawAntelopeJS  `json:"antelopeJs"`
	Aliases map[string]string `json:"_moduleAliases"`
}

type rawAntelopeJS struct {
	ExportsPath   string              `json:"exportsPath"`
	BaseURL       string              `json:"baseUrl"`
	Paths         map[string][]string `json:"paths"`
	ModuleAliases map[string]string   `json:"moduleAliases"`
	Imports       []json.RawMessage   `json:"imports"`
	Exports       []string            `json:"exports"`
}

// Load parses {folder}/package.json, overlaid (wholesale, never merged) by
// {folder}/antelope.module.json's antelopeJs subtree if that file exists.
// Exports are not yet populated; call LoadExports for that.
func Load(fs fsx.FS, folder string, source modsource.Source) (*Manifest, error) {
	pkgPath := filepath.Join(folder, "package.json")
	ok, err := fs.Exists(pkgPath)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &rterrors.ManifestMissing{Folder: folder}
	}

	raw, err := fs.ReadFile(pkgPath)
	if err != nil {
		return nil, err
	}
	var pkg rawPackageJSON
	if err := json.Unmarshal(raw, &pkg); err != nil {
		return nil, rterrors.NewConfigInvalid(pkgPath, "invalid JSON", err)
	}

	overlayPath := filepath.Join(folder, "antelope.module.json")
	if hasOverlay, err := fs.Exists(overlayPath); err != nil {
		return nil, err
	} else if hasOverlay {
		overlayRaw, err := fs.ReadFile(overlayPath)
		if err != nil {
			return nil, err
		}
		var overlay struct {
			AJS *rawAntelopeJS `json:"antelopeJs"`
		}
		if err := json.Unmarshal(overlayRaw, &overlay); err != nil {
			return nil, rterrors.NewConfigInvalid(overlayPath, "invalid JSON", err)
		}
		// overlay replaces the antelopeJs subtree entirely, never merged.
		if overlay.AJS != nil {
			pkg.AJS = overlay.AJS
		}
	}

	ajs := pkg.AJS
	if ajs == nil {
		ajs = &rawAntelopeJS{}
	}

	exportsPath := ajs.ExportsPath
	if exportsPath == "" {
		exportsPath = "interfaces"
	}
	exportsPath = filepath.Join(folder, exportsPath)

	baseURL := filepath.Join(folder, ajs.BaseURL)

	paths := make([]PathRule, 0, len(ajs.Paths))
	for key, values := range ajs.Paths {
		abs := make([]string, 0, len(values))
		for _, v := range values {
			abs = append(abs, filepath.Join(baseURL, strings.TrimSuffix(v, "*")))
		}
		paths = append(paths, PathRule{Key: strings.TrimSuffix(key, "*"), Values: abs})
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i].Key < paths[j].Key })

	aliases := map[string]string{}
	for alias, repl := range pkg.Aliases {
		aliases[alias] = filepath.Join(folder, repl)
	}
	for alias, repl := range ajs.ModuleAliases {
		aliases[alias] = filepath.Join(folder, repl)
	}

	imports, err := parseImports(ajs.Imports)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing imports in %s", pkgPath)
	}

	main := pkg.Main
	if main == "" {
		main = "index.js"
	}

	return &Manifest{
		Name:            pkg.Name,
		Version:         pkg.Version,
		Folder:          folder,
		Main:            filepath.Join(folder, main),
		BaseURL:         baseURL,
		ExportsPath:     exportsPath,
		Paths:           paths,
		Exports:         map[string]string{},
		Imports:         imports,
		DeclaredExports: ajs.Exports,
		SrcAliases:      aliases,
		Source:          source,
	}, nil
}

// importEntry is either a bare string or {name, git?, skipInstall?}.
type importEntry struct {
	Name string `json:"name"`
}

func parseImports(raw []json.RawMessage) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			out = append(out, s)
			continue
		}
		var e importEntry
		if err := json.Unmarshal(r, &e); err != nil {
			return nil, fmt.Errorf("import entry %s is neither a string nor an object with a name", string(r))
		}
		if e.Name == "" {
			return nil, fmt.Errorf("import entry %s is missing a name", string(r))
		}
		out = append(out, e.Name)
	}
	return out, nil
}

// LoadExports populates m.Exports by scanning ExportsPath, and appends the
// module's own exported interfaces to m.Imports (a module always implicitly
// "imports" the things it exports, since its own code may request them via
// @ajs.local or @ajs).
func LoadExports(fs fsx.FS, m *Manifest) error {
	exports := map[string]string{}

	if len(m.DeclaredExports) > 0 {
		for _, e := range m.DeclaredExports {
			if strings.Contains(e, "@") {
				exports[e] = filepath.Join(m.ExportsPath, toPathParts(e)...)
				continue
			}
			versions, err := listVersionChildren(fs, filepath.Join(m.ExportsPath, e))
			if err != nil {
				return err
			}
			for _, v := range versions {
				key := e + "@" + v
				exports[key] = filepath.Join(m.ExportsPath, e, v)
			}
		}
	} else if ok, err := fs.Exists(m.ExportsPath); err != nil {
		return err
	} else if ok {
		entries, err := fs.ListDir(m.ExportsPath)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if !e.IsDir {
				continue
			}
			versions, err := listVersionChildren(fs, filepath.Join(m.ExportsPath, e.Name))
			if err != nil {
				return err
			}
			for _, v := range versions {
				key := e.Name + "@" + v
				exports[key] = filepath.Join(m.ExportsPath, e.Name, v)
			}
		}
	}

	m.Exports = exports

	for key := range exports {
		if !contains(m.Imports, key) {
			m.Imports = append(m.Imports, key)
		}
	}
	return nil
}

// listVersionChildren enumerates exportsPath/iface/'s directory or .js-file
// children, each treated as one declared version.
func listVersionChildren(fs fsx.FS, ifaceDir string) ([]string, error) {
	ok, err := fs.Exists(ifaceDir)
	if err != nil || !ok {
		return nil, err
	}
	entries, err := fs.ListDir(ifaceDir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name
		if !e.IsDir {
			name = strings.TrimSuffix(name, ".js")
		}
		out = append(out, name)
	}
	return out, nil
}

func toPathParts(ifaceAtVersion string) []string {
	parts := strings.SplitN(ifaceAtVersion, "@", 2)
	return parts
}

func contains(list []string, v string) bool {
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}

// Reload reparses the manifest in place and reruns LoadExports. If no
// imports remain declared after reparsing, the import list is reset to
// empty rather than retaining the previous, now-stale, set.
func Reload(fs fsx.FS, m *Manifest) error {
	fresh, err := Load(fs, m.Folder, m.Source)
	if err != nil {
		return err
	}
	if len(fresh.Imports) == 0 {
		fresh.Imports = nil
	}
	if err := LoadExports(fs, fresh); err != nil {
		return err
	}
	*m = *fresh
	return nil
}
