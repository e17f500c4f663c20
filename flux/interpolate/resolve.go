// Package interpolate implements the `${…}` expression language: value
// resolution (spec.md §4.3 resolve/lookup) and boolean condition evaluation
// over a hand-written recursive-descent parser (spec.md §4.3
// evaluateCondition).
package interpolate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Jeffail/gabs/v2"
)

// fullExprPattern matches a string that is *exactly* one `${…}` placeholder
// — spec.md §4.3 "full-expression" value mode.
var fullExprPattern = regexp.MustCompile(`^\$\{([^}]+)\}$`)

// embeddedExprPattern matches every `${…}` occurrence inside a larger
// string — spec.md §4.3 string mode.
var embeddedExprPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Resolve recursively substitutes `${path}` expressions found in value
// against ctx, per spec.md §4.3:
//   - non-string primitives, nil: returned unchanged
//   - arrays: element-wise Resolve
//   - objects: key-preserving recursive Resolve on each value
//   - strings without "${": returned unchanged
//   - strings that are exactly "${path}": Lookup's native value, type
//     preserved
//   - any other string: each "${path}" substring replaced by the string
//     form of Lookup(path, ctx); nil renders as empty string
func Resolve(value any, ctx map[string]any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return resolveString(v, ctx)
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = Resolve(elem, ctx)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, elem := range v {
			out[k] = Resolve(elem, ctx)
		}
		return out
	default:
		return v
	}
}

func resolveString(s string, ctx map[string]any) any {
	if !strings.Contains(s, "${") {
		return s
	}

	if m := fullExprPattern.FindStringSubmatch(s); m != nil {
		v, _ := Lookup(strings.TrimSpace(m[1]), ctx)
		return v
	}

	return embeddedExprPattern.ReplaceAllStringFunc(s, func(match string) string {
		path := strings.TrimSpace(match[2 : len(match)-1])
		v, _ := Lookup(path, ctx)
		return stringify(v)
	})
}

// stringify renders a resolved value for string-mode substitution. nil
// (covering both "missing" and JSON null, since Go has no separate
// undefined) renders as empty string (spec.md §8: zero is NOT blanked, only
// nil/undefined are).
func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Lookup resolves a dotted path against ctx, walking fields and array
// indices. Any nil/missing intermediate yields (nil, false) — spec.md
// §4.3's lookup. The walk itself is delegated to gabs, whose Path() method
// implements exactly this dotted/indexed traversal over
// map[string]any/[]any trees.
func Lookup(path string, ctx map[string]any) (any, bool) {
	if path == "" {
		return nil, false
	}
	container := gabs.Wrap(ctx)
	if !container.ExistsP(path) {
		return nil, false
	}
	return container.Path(path).Data(), true
}
