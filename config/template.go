package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/AntelopeJS/antelopejs-sub002/rterrors"
)

// templatePattern matches one ${expr} reference; expr is a dot-path into
// the flattened scope built from the resolved config tree.
var templatePattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// applyEnvOverrides assigns process environment-variable values onto doc at
// the dot-delimited paths named by overrides (envVar -> path, or envVar ->
// []path), the same shorthand-or-list shape module import overrides use.
// sjson does the path-based write: the envOverrides/template layer is
// specified to operate on the JSON-text form rather than on typed structs,
// so a path can address config keys this package's own types never name.
func applyEnvOverrides(doc []byte, overrides map[string]interface{}) ([]byte, error) {
	for envVar, pathsRaw := range overrides {
		value, ok := os.LookupEnv(envVar)
		if !ok {
			continue
		}
		for _, path := range overridePaths(pathsRaw) {
			var err error
			doc, err = sjson.SetBytes(doc, path, value)
			if err != nil {
				return nil, rterrors.Wrapf(err, "applying env override %s -> %s", envVar, path)
			}
		}
	}
	return doc, nil
}

func overridePaths(raw interface{}) []string {
	switch v := raw.(type) {
	case string:
		return []string{v}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// expandTemplates builds a flat dot-path scope from doc with gjson (every
// scalar leaf, keyed by its path) and substitutes every ${expr} occurrence
// found in string leaves elsewhere in doc against that scope, in a single
// pass — pure substitution, no expression evaluator, per the runtime's
// template design: a reference to an unresolvable path is left untouched
// rather than erroring, so a typo surfaces as a literal string in the
// resolved config instead of aborting the whole run.
func expandTemplates(doc []byte) ([]byte, error) {
	scope := map[string]string{}
	rawScope := map[string]string{}
	walkScope("", gjson.ParseBytes(doc), scope, rawScope)

	return substituteValue("", gjson.ParseBytes(doc), doc, scope, rawScope)
}

func walkScope(prefix string, value gjson.Result, scope, rawScope map[string]string) {
	switch {
	case value.IsObject():
		value.ForEach(func(key, v gjson.Result) bool {
			walkScope(joinPath(prefix, key.String()), v, scope, rawScope)
			return true
		})
	case value.IsArray():
		i := 0
		value.ForEach(func(_, v gjson.Result) bool {
			walkScope(joinPath(prefix, strconv.Itoa(i)), v, scope, rawScope)
			i++
			return true
		})
	default:
		if prefix == "" {
			return
		}
		scope[prefix] = value.String()
		rawScope[prefix] = value.Raw
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// substituteValue walks doc the same way walkScope did, rewriting every
// string leaf that contains a ${...} reference and leaving everything else
// untouched.
func substituteValue(path string, value gjson.Result, doc []byte, scope, rawScope map[string]string) ([]byte, error) {
	switch {
	case value.IsObject():
		var err error
		value.ForEach(func(key, v gjson.Result) bool {
			doc, err = substituteValue(joinPath(path, key.String()), v, doc, scope, rawScope)
			return err == nil
		})
		return doc, err

	case value.IsArray():
		var err error
		i := 0
		value.ForEach(func(_, v gjson.Result) bool {
			doc, err = substituteValue(joinPath(path, strconv.Itoa(i)), v, doc, scope, rawScope)
			i++
			return err == nil
		})
		return doc, err

	case value.Type == gjson.String:
		s := value.String()
		if !templatePattern.MatchString(s) {
			return doc, nil
		}
		if m := templatePattern.FindStringSubmatch(s); m != nil && m[0] == s {
			expr := strings.TrimSpace(m[1])
			if raw, ok := rawScope[expr]; ok {
				return sjson.SetRawBytes(doc, path, []byte(raw))
			}
			return doc, nil
		}
		replaced := templatePattern.ReplaceAllStringFunc(s, func(m string) string {
			expr := strings.TrimSpace(m[2 : len(m)-1])
			if v, ok := scope[expr]; ok {
				return v
			}
			return m
		})
		return sjson.SetBytes(doc, path, replaced)

	default:
		return doc, nil
	}
}
