// Package registryauth reads the per-registry endpoint/token table consulted
// by the Package loader, grounded on the teacher's registryConfig
// (registry_config.go), generalized from a single registry to one row per
// package-name prefix.
package registryauth

import (
	"bytes"
	"io"

	"github.com/pelletier/go-toml"

	"github.com/AntelopeJS/antelopejs-sub002/fsx"
	"github.com/AntelopeJS/antelopejs-sub002/rterrors"
)

// FileName is the registry credentials file read from the module cache
// root.
const FileName = "registry.toml"

// Entry is one registry's endpoint and auth token.
type Entry struct {
	URL   string
	Token string
}

// rawConfig mirrors the on-disk TOML shape:
//
//	[registries.default]
//	url = "https://registry.npmjs.org"
//	token = "..."
//
//	[registries."@myscope"]
//	url = "https://npm.example.com"
//	token = "..."
type rawConfig struct {
	Registries map[string]rawEntry `toml:"registries"`
}

type rawEntry struct {
	URL   string `toml:"url"`
	Token string `toml:"token"`
}

// Config is the parsed registry credentials table, keyed by scope/prefix
// ("default" is used when no scope-specific entry matches).
type Config struct {
	entries map[string]Entry
}

// Empty returns a Config with no registered registries; For always falls
// back to the public default endpoint.
func Empty() *Config {
	return &Config{entries: map[string]Entry{}}
}

// Load reads FileName from folder via fs. A missing file is not an error;
// it yields an Empty Config.
func Load(fs fsx.FS, folder string) (*Config, error) {
	path := folder + "/" + FileName
	ok, err := fs.Exists(path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return Empty(), nil
	}
	raw, err := fs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parse(bytes.NewReader(raw), path)
}

func parse(r io.Reader, path string) (*Config, error) {
	buf := &bytes.Buffer{}
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, rterrors.Wrapf(err, "reading %s", path)
	}
	var raw rawConfig
	if err := toml.Unmarshal(buf.Bytes(), &raw); err != nil {
		return nil, rterrors.NewConfigInvalid(path, "not a valid registry.toml", err)
	}

	c := Empty()
	for scope, e := range raw.Registries {
		c.entries[scope] = Entry{URL: e.URL, Token: e.Token}
	}
	return c, nil
}

// defaultEndpoint is used when no registry entry, scoped or default,
// matches packageName.
const defaultEndpoint = "https://registry.npmjs.org"

// For returns the endpoint and token to use when fetching packageName: the
// entry for packageName's scope (everything up to the first "/" when the
// name starts with "@"), else the "default" entry, else the public
// registry with no token.
func (c *Config) For(packageName string) (endpoint, token string) {
	if scope := scopeOf(packageName); scope != "" {
		if e, ok := c.entries[scope]; ok {
			return e.URL, e.Token
		}
	}
	if e, ok := c.entries["default"]; ok {
		return e.URL, e.Token
	}
	return defaultEndpoint, ""
}

func scopeOf(packageName string) string {
	if len(packageName) == 0 || packageName[0] != '@' {
		return ""
	}
	for i, r := range packageName {
		if r == '/' {
			return packageName[:i]
		}
	}
	return ""
}

// MarshalTOML serializes c back into the registries-table TOML form that
// Load reads.
func (c *Config) MarshalTOML() ([]byte, error) {
	raw := rawConfig{Registries: map[string]rawEntry{}}
	for scope, e := range c.entries {
		raw.Registries[scope] = rawEntry{URL: e.URL, Token: e.Token}
	}
	return toml.Marshal(raw)
}
