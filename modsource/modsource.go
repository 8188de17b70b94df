// Package modsource defines ModuleSource, the tagged union describing how a
// module is obtained: a local directory, a local directory-of-directories, a
// registry package, or a git repository.
package modsource

// Type names one of the four source variants.
type Type string

const (
	TypeLocal       Type = "local"
	TypeLocalFolder Type = "localFolder"
	TypePackage     Type = "package"
	TypeGit         Type = "git"
)

// Source is the user-facing reference to a module artifact. Exactly one of
// the Local/LocalFolder/Package/Git fields is meaningful, selected by Type.
// Every variant may carry an optional ID used for disambiguation (e.g. when
// a LocalFolder produces several children, or for @ajs.raw addressing).
type Source struct {
	Type Type   `json:"type"`
	ID   string `json:"id,omitempty"`

	// Local / LocalFolder
	Path           string `json:"path,omitempty"`
	WatchDir       string `json:"watchDir,omitempty"`
	InstallCommand any    `json:"installCommand,omitempty"` // string or []string

	// Package
	Package      string `json:"package,omitempty"`
	Version      string `json:"version,omitempty"`
	IgnoreCache  bool   `json:"ignoreCache,omitempty"`

	// Git
	Remote string `json:"remote,omitempty"`
	Branch string `json:"branch,omitempty"`
	Commit string `json:"commit,omitempty"`
}

// InstallCommands normalizes the InstallCommand field (a bare string or a
// list of strings) into a list of individual shell invocations.
func (s Source) InstallCommands() []string {
	switch v := s.InstallCommand.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

// CacheKey is a name used to key the module cache for Package and Git
// sources. Local/LocalFolder sources are never cached.
func (s Source) CacheKey() string {
	switch s.Type {
	case TypePackage:
		return s.Package
	case TypeGit:
		return SanitizeRemote(s.Remote)
	default:
		return ""
	}
}

// Field returns the value of one of the source's identifying string fields
// ("path", "package", "remote"), used by the loader registry to rewrite
// relative paths and to name pending-registration requests.
func (s Source) Field(name string) string {
	switch name {
	case "path":
		return s.Path
	case "package":
		return s.Package
	case "remote":
		return s.Remote
	default:
		return ""
	}
}

// WithField returns a copy of s with the named identifying field rewritten
// to value (used to resolve a relative Local/LocalFolder path against the
// project folder before dispatch).
func (s Source) WithField(name, value string) Source {
	switch name {
	case "path":
		s.Path = value
	case "package":
		s.Package = value
	case "remote":
		s.Remote = value
	}
	return s
}

// SanitizeRemote turns a remote URL into a filesystem-safe cache folder
// name, the way the teacher's source manager derives a cache path from a
// repository URL.
func SanitizeRemote(remote string) string {
	replacer := sanitizer
	return replacer.Replace(remote)
}
