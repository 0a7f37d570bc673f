// internal/rules/selector.go
package rules

import (
	"fmt"
	"regexp"
	"strings"
)

/*
 * Selector matching for content and subject fields.
 *
 * A selector is a dialect plus optional modifiers, written as the parenthesized
 * key suffix: content(includes-word, case-sensitive). Values are joined into an
 * alternation group and wrapped in the dialect's template.
 *
 * Patterns always run with (?s). Word characters are Unicode letters, digits
 * and underscore so includes-word and full-text behave for non-ASCII text;
 * Go's \b and \W are ASCII-only.
 */

// Dialect selects the anchoring template.
type Dialect string

const (
	DialectIncludesWord Dialect = "includes-word"
	DialectIncludes     Dialect = "includes"
	DialectStartsWith   Dialect = "starts-with"
	DialectEndsWith     Dialect = "ends-with"
	DialectFullExact    Dialect = "full-exact"
	DialectFullText     Dialect = "full-text"
)

// Modifier names accepted after the dialect.
const (
	ModifierCaseInsensitive = "case-insensitive"
	ModifierCaseSensitive   = "case-sensitive"
	ModifierRegex           = "regex"
)

const nonWord = `[^\p{L}\p{N}_]`

var dialectTemplates = map[Dialect]string{
	DialectIncludesWord: `(?:^|` + nonWord + `)(%s)(?:$|` + nonWord + `)`,
	DialectIncludes:     `(%s)`,
	DialectStartsWith:   `^(%s)`,
	DialectEndsWith:     `(%s)$`,
	DialectFullExact:    `^(%s)$`,
	DialectFullText:     `^` + nonWord + `*(%s)` + nonWord + `*$`,
}

// Selector is a parsed dialect with its modifiers.
type Selector struct {
	Dialect       Dialect
	CaseSensitive bool
	Regex         bool
}

// ParseSelector reads "dialect[, modifier...]". Unknown tokens are ignored and
// a missing dialect defaults to includes-word.
func ParseSelector(s string) Selector {
	sel := Selector{Dialect: DialectIncludesWord}
	for _, token := range strings.Split(s, ",") {
		token = strings.ToLower(strings.TrimSpace(token))
		switch token {
		case ModifierCaseInsensitive:
			sel.CaseSensitive = false
		case ModifierCaseSensitive:
			sel.CaseSensitive = true
		case ModifierRegex:
			sel.Regex = true
		default:
			if _, ok := dialectTemplates[Dialect(token)]; ok {
				sel.Dialect = Dialect(token)
			}
		}
	}
	return sel
}

// Compile builds the pattern for values.
// Returns an error only for regex-modifier values that are not valid patterns.
func (s Selector) Compile(values []string) (*regexp.Regexp, error) {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if s.Regex {
			parts = append(parts, v)
		} else {
			parts = append(parts, regexp.QuoteMeta(v))
		}
	}

	template, ok := dialectTemplates[s.Dialect]
	if !ok {
		template = dialectTemplates[DialectIncludesWord]
	}

	flags := "(?s)"
	if !s.CaseSensitive {
		flags = "(?si)"
	}

	pattern := flags + fmt.Sprintf(template, strings.Join(parts, "|"))
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("selector %s: %w", s.Dialect, err)
	}
	return re, nil
}

// Match reports whether any value matches text under the selector.
func (s Selector) Match(values []string, text string) (bool, error) {
	if len(values) == 0 {
		return false, nil
	}
	re, err := s.Compile(values)
	if err != nil {
		return false, err
	}
	return re.MatchString(text), nil
}
