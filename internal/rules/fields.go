// internal/rules/fields.go
package rules

import "strings"

/*
 * Rule field vocabulary.
 *
 * Fixed, ordered table of the fields a rule document may use. Each field has
 * an external key (the YAML key authors write), a priority equal to its
 * declaration order, and a required flag.
 *
 * Priority ordering: records are evaluated highest priority first. Declaring
 * type and is_top_level last makes them the cheapest gates; declaring
 * author.satisfy_any_threshold after the individual author checks makes the
 * relaxation flag visible before the checks it relaxes.
 *
 * External key derivation: AUTHOR_ prefix becomes "author.", remainder is
 * lowercased (AUTHOR_POST_KARMA -> author.post_karma).
 */

// Field identifies one rule field.
type Field int

const (
	FieldAction Field = iota
	FieldComment
	FieldContent
	FieldSubject
	FieldContentLongerThan
	FieldContentShorterThan
	FieldAuthorPostKarma
	FieldAuthorCommentKarma
	FieldAuthorCombinedKarma
	FieldAuthorAccountAge
	FieldAuthorHasVerifiedEmail
	FieldAuthorIsContributor
	FieldAuthorIsModerator
	FieldAuthorSatisfyAnyThreshold
	FieldIsTopLevel
	FieldType

	fieldCount
)

// RequiredCount is the number of required-category fields a valid rule carries:
// type, action, and one of content/subject.
const RequiredCount = 3

var fieldNames = [fieldCount]string{
	FieldAction:                    "ACTION",
	FieldComment:                   "COMMENT",
	FieldContent:                   "CONTENT",
	FieldSubject:                   "SUBJECT",
	FieldContentLongerThan:         "CONTENT_LONGER_THAN",
	FieldContentShorterThan:        "CONTENT_SHORTER_THAN",
	FieldAuthorPostKarma:           "AUTHOR_POST_KARMA",
	FieldAuthorCommentKarma:        "AUTHOR_COMMENT_KARMA",
	FieldAuthorCombinedKarma:       "AUTHOR_COMBINED_KARMA",
	FieldAuthorAccountAge:          "AUTHOR_ACCOUNT_AGE",
	FieldAuthorHasVerifiedEmail:    "AUTHOR_HAS_VERIFIED_EMAIL",
	FieldAuthorIsContributor:       "AUTHOR_IS_CONTRIBUTOR",
	FieldAuthorIsModerator:         "AUTHOR_IS_MODERATOR",
	FieldAuthorSatisfyAnyThreshold: "AUTHOR_SATISFY_ANY_THRESHOLD",
	FieldIsTopLevel:                "IS_TOP_LEVEL",
	FieldType:                      "TYPE",
}

type fieldInfo struct {
	key      string
	priority int
	required bool
}

var (
	vocabulary [fieldCount]fieldInfo
	fieldByKey = make(map[string]Field, fieldCount)
)

func init() {
	for f := Field(0); f < fieldCount; f++ {
		info := fieldInfo{
			key:      externalKey(fieldNames[f]),
			priority: int(f),
		}
		switch f {
		case FieldType, FieldAction, FieldContent, FieldSubject:
			info.required = true
		}
		vocabulary[f] = info
		fieldByKey[info.key] = f
	}
}

func externalKey(name string) string {
	if rest, ok := strings.CutPrefix(name, "AUTHOR_"); ok {
		name = "author." + rest
	}
	return strings.ToLower(name)
}

// ResolveField maps an external key (without selector suffix) to its field.
func ResolveField(key string) (Field, bool) {
	f, ok := fieldByKey[key]
	return f, ok
}

// Key returns the external key authors write in rule documents.
func (f Field) Key() string {
	if f < 0 || f >= fieldCount {
		return ""
	}
	return vocabulary[f].key
}

// Priority returns the evaluation priority; higher runs first.
func (f Field) Priority() int {
	if f < 0 || f >= fieldCount {
		return -1
	}
	return vocabulary[f].priority
}

// IsRequired reports whether the field counts towards RequiredCount.
func (f Field) IsRequired() bool {
	if f < 0 || f >= fieldCount {
		return false
	}
	return vocabulary[f].required
}

// IsAuthorCheck reports whether the field needs the author profile.
// author.satisfy_any_threshold is a mode switch, not a check.
func (f Field) IsAuthorCheck() bool {
	switch f {
	case FieldAuthorPostKarma, FieldAuthorCommentKarma, FieldAuthorCombinedKarma,
		FieldAuthorAccountAge, FieldAuthorHasVerifiedEmail,
		FieldAuthorIsContributor, FieldAuthorIsModerator:
		return true
	default:
		return false
	}
}

func (f Field) String() string {
	if k := f.Key(); k != "" {
		return k
	}
	return "unknown"
}
