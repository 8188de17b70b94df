package modsource

import "strings"

// sanitizer mirrors the teacher's source_manager.go replacer used to compute
// a friendly filepath from a URL-shaped input.
var sanitizer = strings.NewReplacer("-", "--", ":", "-", "/", "-", "+", "-")
