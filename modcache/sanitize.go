package modcache

import "strings"

// newNameSanitizer builds the replacer used to turn a module name (which
// may be a scoped package name like "@scope/name") into a single path
// segment safe to use as a cache subfolder.
func newNameSanitizer() *strings.Replacer {
	return strings.NewReplacer("@", "", "/", "-")
}
