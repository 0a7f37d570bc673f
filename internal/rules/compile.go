// internal/rules/compile.go
package rules

import (
	"sort"

	"github.com/solatis/modmail/internal/types"
)

/*
 * Rule binding and validation.
 *
 * Binds one flattened document to the field vocabulary and produces a
 * RuleAction with records ordered by descending field priority.
 *
 * Binding workflow, per entry in declaration order:
 *   1. Skip falsy non-boolean values
 *   2. Split "field(selector)" and resolve the field; unknown keys are ignored
 *   3. Split comment text on escaped `\n` into lines
 *   4. Normalize the value to a list of strings
 *   5. Replace any earlier record for the same field (last declaration wins)
 *
 * Validation: at least RequiredCount records overall, at least RequiredCount
 * required-category records, and concretely type + action + (content or
 * subject). Anything else returns ErrRuleIncomplete and the document is
 * discarded by the dispatcher.
 */

// Record is one bound rule field.
type Record struct {
	Field    Field
	Selector string
	Values   []string
}

// RuleAction is a validated rule ready for evaluation and execution.
type RuleAction struct {
	Records []Record
}

// Compile binds a document to the vocabulary.
// Returns types.ErrRuleIncomplete when required fields are missing.
func Compile(doc Document) (*RuleAction, error) {
	var records []Record

	for _, entry := range doc {
		if isSkippable(entry.Value) {
			continue
		}

		field, selector, ok := resolveKey(entry.Key)
		if !ok {
			continue
		}

		var values []string
		if s, isString := entry.Value.(string); isString && field == FieldComment {
			values = splitEscapedLines(s)
		} else {
			values = coerceValues(entry.Value)
		}

		records = removeField(records, field)
		records = append(records, Record{Field: field, Selector: selector, Values: values})
	}

	if !isComplete(records) {
		return nil, types.ErrRuleIncomplete
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Field.Priority() > records[j].Field.Priority()
	})

	return &RuleAction{Records: records}, nil
}

func removeField(records []Record, field Field) []Record {
	out := records[:0]
	for _, r := range records {
		if r.Field != field {
			out = append(out, r)
		}
	}
	return out
}

func isComplete(records []Record) bool {
	if len(records) < RequiredCount {
		return false
	}

	required := 0
	seen := make(map[Field]bool, len(records))
	for _, r := range records {
		seen[r.Field] = true
		if r.Field.IsRequired() {
			required++
		}
	}
	if required < RequiredCount {
		return false
	}

	return seen[FieldType] && seen[FieldAction] && (seen[FieldContent] || seen[FieldSubject])
}

// Record returns the record bound to field, if any.
func (r *RuleAction) Record(field Field) (Record, bool) {
	for _, rec := range r.Records {
		if rec.Field == field {
			return rec, true
		}
	}
	return Record{}, false
}
