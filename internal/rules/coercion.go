// internal/rules/coercion.go
package rules

import (
	"regexp"
	"strconv"
	"strings"
)

/*
 * Key and value coercion for rule binding.
 *
 * Keys: "field(selector[, modifier])" splits into a field key and a selector,
 * both trimmed. Values: every kept YAML leaf becomes a list of strings so the
 * evaluator handles scalars and lists the same way.
 *
 * Falsy values: empty strings, empty lists and zero integers are skipped like
 * an absent key. Booleans are always kept so "false" flags stay visible.
 */

var selectorKeyPattern = regexp.MustCompile(`^([^(]*)\((.*)\)\s*$`)

// splitKey separates the field key from its optional parenthesized selector.
func splitKey(key string) (field, selector string) {
	if m := selectorKeyPattern.FindStringSubmatch(key); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	}
	return strings.TrimSpace(key), ""
}

// resolveKey maps a raw configuration key to its field and selector.
// "author(satisfy_any_threshold)" resolves as "author.satisfy_any_threshold"
// because "author" on its own is not a field.
func resolveKey(key string) (Field, string, bool) {
	name, selector := splitKey(key)
	if f, ok := ResolveField(name); ok {
		return f, selector, true
	}
	if selector != "" && !strings.Contains(selector, ",") {
		if f, ok := ResolveField(name + "." + selector); ok {
			return f, "", true
		}
	}
	return 0, "", false
}

// isSkippable reports falsy-but-not-boolean values.
func isSkippable(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case bool:
		return false
	case string:
		return v == ""
	case int64:
		return v == 0
	case []any:
		return len(v) == 0
	default:
		return false
	}
}

// coerceValues normalizes a leaf value to an ordered list of strings.
func coerceValues(value any) []string {
	if list, ok := value.([]any); ok {
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, coerceText(item))
		}
		return out
	}
	return []string{coerceText(value)}
}

func coerceText(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// splitEscapedLines splits comment text on the two-character sequence `\n`.
func splitEscapedLines(s string) []string {
	return strings.Split(s, `\n`)
}

// coerceFlag reads the first value as a boolean flag. Missing or unparseable is false.
func coerceFlag(values []string) bool {
	if len(values) == 0 {
		return false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(values[0]))
	if err != nil {
		return false
	}
	return b
}
