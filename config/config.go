// Package config implements the configuration resolver (C7): locating
// antelope.json, layering the selected environment, sidecar and per-module
// overlays on top of it with dario.cat/mergo, expanding module shorthand,
// applying environment-variable overrides, and expanding `${...}` templates
// — grounded on the teacher's project.go/context.go config-loading sequence,
// generalized from a single Gopkg.toml read into the multi-layer merge this
// runtime needs.
package config

import (
	"encoding/json"
	"path/filepath"
	"regexp"
	"sort"

	"dario.cat/mergo"

	"github.com/AntelopeJS/antelopejs-sub002/fsx"
	"github.com/AntelopeJS/antelopejs-sub002/modsource"
	"github.com/AntelopeJS/antelopejs-sub002/rterrors"
)

// FileName is the base project configuration file.
const FileName = "antelope.json"

// DefaultEnvironment is used when the caller does not name one.
const DefaultEnvironment = "default"

// ResolvedConfig is the fully merged, expanded, absolutized configuration
// for one (projectFolder, environment) pair.
type ResolvedConfig struct {
	Name          string                          `json:"name"`
	CacheFolder   string                          `json:"cacheFolder"`
	ProjectFolder string                          `json:"projectFolder"`
	Logging       map[string]interface{}          `json:"logging,omitempty"`
	EnvOverrides  map[string]interface{}          `json:"envOverrides,omitempty"`
	Modules       map[string]ExpandedModuleConfig `json:"modules"`
}

// ExpandedModuleConfig is one module entry after shorthand normalization.
type ExpandedModuleConfig struct {
	Source          modsource.Source       `json:"source"`
	Config          map[string]interface{} `json:"config,omitempty"`
	ImportOverrides []ImportOverride        `json:"importOverrides,omitempty"`
	DisabledExports []string                `json:"disabledExports,omitempty"`
}

// ImportOverride pins one declared import to a specific provider module.
type ImportOverride struct {
	Interface string `json:"interface"`
	Source    string `json:"source"`
	ID        string `json:"id,omitempty"`
}

var sidecarPattern = regexp.MustCompile(`^antelope\.([A-Za-z0-9_@/.-]+)\.json$`)

// Resolve runs the full resolution pipeline for projectFolder under env
// (DefaultEnvironment when env == "").
func Resolve(fs fsx.FS, projectFolder, env string) (*ResolvedConfig, error) {
	if env == "" {
		env = DefaultEnvironment
	}

	base, err := loadBase(fs, projectFolder)
	if err != nil {
		return nil, err
	}

	if env != DefaultEnvironment {
		if envs, ok := asMap(base["environments"]); ok {
			if overlay, ok := asMap(envs[env]); ok {
				if err := mergo.Merge(&base, map[string]interface{}(overlay), mergo.WithOverride); err != nil {
					return nil, rterrors.Wrapf(err, "merging environment %q", env)
				}
			}
		}
	}
	delete(base, "environments")

	modules, _ := asMap(base["modules"])

	if err := mergeSidecars(fs, projectFolder, modules); err != nil {
		return nil, err
	}
	if err := mergeLocalModuleConfigs(fs, projectFolder, modules); err != nil {
		return nil, err
	}

	expanded, err := expandModules(modules)
	if err != nil {
		return nil, err
	}

	resolved := &ResolvedConfig{
		Name:          stringField(base, "name"),
		CacheFolder:   stringField(base, "cacheFolder"),
		ProjectFolder: projectFolder,
		Modules:       expanded,
	}
	if logging, ok := asMap(base["logging"]); ok {
		resolved.Logging = logging
	}
	if overrides, ok := asMap(base["envOverrides"]); ok {
		resolved.EnvOverrides = overrides
	}

	raw, err := json.Marshal(resolved)
	if err != nil {
		return nil, rterrors.Wrapf(err, "marshaling resolved config")
	}

	raw, err = applyEnvOverrides(raw, resolved.EnvOverrides)
	if err != nil {
		return nil, err
	}

	raw, err = expandTemplates(raw)
	if err != nil {
		return nil, err
	}

	final := &ResolvedConfig{}
	if err := json.Unmarshal(raw, final); err != nil {
		return nil, rterrors.Wrapf(err, "unmarshaling expanded config")
	}

	if !filepath.IsAbs(final.CacheFolder) {
		cache := final.CacheFolder
		if cache == "" {
			cache = ".antelope/cache"
		}
		final.CacheFolder = filepath.Join(projectFolder, cache)
	}
	final.ProjectFolder = projectFolder

	return final, nil
}

func loadBase(fs fsx.FS, projectFolder string) (map[string]interface{}, error) {
	path := filepath.Join(projectFolder, FileName)
	ok, err := fs.Exists(path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, rterrors.NewConfigInvalid(path, "no "+FileName+" found", nil)
	}
	raw, err := fs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var base map[string]interface{}
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, rterrors.NewConfigInvalid(path, "invalid JSON", err)
	}
	return base, nil
}

// mergeSidecars finds antelope.<moduleName>.json files in projectFolder and
// deep-merges each onto the matching module entry's config, when that
// module name is referenced in modules.
func mergeSidecars(fs fsx.FS, projectFolder string, modules map[string]interface{}) error {
	entries, err := fs.ListDir(projectFolder)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	for _, e := range entries {
		if e.IsDir {
			continue
		}
		m := sidecarPattern.FindStringSubmatch(e.Name)
		if m == nil {
			continue
		}
		moduleName := m[1]
		entry, ok := modules[moduleName]
		if !ok {
			continue
		}
		raw, err := fs.ReadFile(filepath.Join(projectFolder, e.Name))
		if err != nil {
			return err
		}
		var overlay map[string]interface{}
		if err := json.Unmarshal(raw, &overlay); err != nil {
			return rterrors.NewConfigInvalid(e.Name, "invalid JSON", err)
		}
		if err := mergeIntoModuleConfig(entry, modules, moduleName, overlay); err != nil {
			return err
		}
	}
	return nil
}

// mergeIntoModuleConfig merges overlay onto modules[name]'s "config"
// sub-object, normalizing a bare-string/shorthand entry to {config:{}}
// first so the merge always has an object to target.
func mergeIntoModuleConfig(entry interface{}, modules map[string]interface{}, name string, overlay map[string]interface{}) error {
	obj, ok := entry.(map[string]interface{})
	if !ok {
		obj = shorthandToObject(entry)
	}
	cfg, _ := asMap(obj["config"])
	if cfg == nil {
		cfg = map[string]interface{}{}
	}
	if err := mergo.Merge(&cfg, overlay, mergo.WithOverride); err != nil {
		return rterrors.Wrapf(err, "merging sidecar config for module %q", name)
	}
	obj["config"] = cfg
	modules[name] = obj
	return nil
}

// mergeLocalModuleConfigs, for every module whose (already-shorthand) source
// is Local, merges {path}/antelope.module.json's config (preferred) and/or
// package.json's antelopeJs.config onto the module entry's config, package
// first so antelope.module.json takes precedence.
func mergeLocalModuleConfigs(fs fsx.FS, projectFolder string, modules map[string]interface{}) error {
	for name, entry := range modules {
		obj, ok := entry.(map[string]interface{})
		if !ok {
			obj = shorthandToObject(entry)
			modules[name] = obj
		}
		source, ok := asMap(obj["source"])
		if !ok || source["type"] != string(modsource.TypeLocal) {
			continue
		}
		modPath, _ := source["path"].(string)
		if modPath == "" {
			continue
		}
		if !filepath.IsAbs(modPath) {
			modPath = filepath.Join(projectFolder, modPath)
		}

		cfg, _ := asMap(obj["config"])
		if cfg == nil {
			cfg = map[string]interface{}{}
		}

		if pkgCfg, err := readPackageJSONConfig(fs, modPath); err != nil {
			return err
		} else if pkgCfg != nil {
			if err := mergo.Merge(&cfg, pkgCfg, mergo.WithOverride); err != nil {
				return rterrors.Wrapf(err, "merging package.json config for module %q", name)
			}
		}
		if moduleCfg, err := readModuleJSONConfig(fs, modPath); err != nil {
			return err
		} else if moduleCfg != nil {
			if err := mergo.Merge(&cfg, moduleCfg, mergo.WithOverride); err != nil {
				return rterrors.Wrapf(err, "merging antelope.module.json config for module %q", name)
			}
		}

		obj["config"] = cfg
		modules[name] = obj
	}
	return nil
}

func readPackageJSONConfig(fs fsx.FS, modPath string) (map[string]interface{}, error) {
	path := filepath.Join(modPath, "package.json")
	ok, err := fs.Exists(path)
	if err != nil || !ok {
		return nil, err
	}
	raw, err := fs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pkg struct {
		AJS struct {
			Config map[string]interface{} `json:"config"`
		} `json:"antelopeJs"`
	}
	if err := json.Unmarshal(raw, &pkg); err != nil {
		return nil, rterrors.NewConfigInvalid(path, "invalid JSON", err)
	}
	return pkg.AJS.Config, nil
}

func readModuleJSONConfig(fs fsx.FS, modPath string) (map[string]interface{}, error) {
	path := filepath.Join(modPath, "antelope.module.json")
	ok, err := fs.Exists(path)
	if err != nil || !ok {
		return nil, err
	}
	raw, err := fs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var overlay struct {
		AntelopeJs struct {
			Config map[string]interface{} `json:"config"`
		} `json:"antelopeJs"`
	}
	if err := json.Unmarshal(raw, &overlay); err != nil {
		return nil, rterrors.NewConfigInvalid(path, "invalid JSON", err)
	}
	return overlay.AntelopeJs.Config, nil
}

// expandModules normalizes shorthand and produces the final typed map.
func expandModules(modules map[string]interface{}) (map[string]ExpandedModuleConfig, error) {
	out := make(map[string]ExpandedModuleConfig, len(modules))
	for name, raw := range modules {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			obj = shorthandToObject(raw)
		}

		source, err := decodeSource(name, obj)
		if err != nil {
			return nil, err
		}

		cfg, _ := asMap(obj["config"])

		overrides, err := decodeImportOverrides(obj["importOverrides"])
		if err != nil {
			return nil, rterrors.NewConfigInvalid(name, "invalid importOverrides", err)
		}

		var disabled []string
		if list, ok := obj["disabledExports"].([]interface{}); ok {
			for _, v := range list {
				if s, ok := v.(string); ok {
					disabled = append(disabled, s)
				}
			}
		}

		out[name] = ExpandedModuleConfig{
			Source:          source,
			Config:          cfg,
			ImportOverrides: overrides,
			DisabledExports: disabled,
		}
	}
	return out, nil
}

// shorthandToObject normalizes a bare version string, or a
// {version, ...} entry without an explicit source, to {source:{...}}.
func shorthandToObject(raw interface{}) map[string]interface{} {
	switch v := raw.(type) {
	case string:
		return map[string]interface{}{
			"source": map[string]interface{}{
				"type":    string(modsource.TypePackage),
				"package": "", // filled in by decodeSource from the module name
				"version": v,
			},
		}
	case map[string]interface{}:
		if _, hasSource := v["source"]; !hasSource {
			if version, ok := v["version"].(string); ok {
				cp := map[string]interface{}{}
				for k, val := range v {
					cp[k] = val
				}
				delete(cp, "version")
				cp["source"] = map[string]interface{}{
					"type":    string(modsource.TypePackage),
					"version": version,
				}
				return cp
			}
		}
		return v
	default:
		return map[string]interface{}{}
	}
}

func decodeSource(moduleName string, obj map[string]interface{}) (modsource.Source, error) {
	raw, _ := json.Marshal(obj["source"])
	var source modsource.Source
	if err := json.Unmarshal(raw, &source); err != nil {
		return source, rterrors.NewConfigInvalid(moduleName, "invalid source", err)
	}
	if source.Type == modsource.TypePackage && source.Package == "" {
		source.Package = moduleName
	}
	return source, nil
}

func decodeImportOverrides(raw interface{}) ([]ImportOverride, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		out := make([]ImportOverride, 0, len(v))
		for _, e := range v {
			m, _ := e.(map[string]interface{})
			out = append(out, ImportOverride{
				Interface: stringField(m, "interface"),
				Source:    stringField(m, "source"),
				ID:        stringField(m, "id"),
			})
		}
		return out, nil
	case map[string]interface{}:
		out := make([]ImportOverride, 0, len(v))
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, iface := range keys {
			provider, _ := v[iface].(string)
			out = append(out, ImportOverride{Interface: iface, Source: provider})
		}
		return out, nil
	default:
		return nil, nil
	}
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}

func stringField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
