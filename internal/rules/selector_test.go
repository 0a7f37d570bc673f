package rules

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestParseSelector(t *testing.T) {
	tests := []struct {
		in   string
		want Selector
	}{
		{"", Selector{Dialect: DialectIncludesWord}},
		{"includes", Selector{Dialect: DialectIncludes}},
		{"starts-with, case-sensitive", Selector{Dialect: DialectStartsWith, CaseSensitive: true}},
		{" Full-Exact , REGEX ", Selector{Dialect: DialectFullExact, Regex: true}},
		{"case-sensitive, case-insensitive", Selector{Dialect: DialectIncludesWord}},
		{"bogus, ends-with", Selector{Dialect: DialectEndsWith}},
	}

	for _, tt := range tests {
		if got := ParseSelector(tt.in); got != tt.want {
			t.Errorf("ParseSelector(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestSelector_Match(t *testing.T) {
	tests := []struct {
		name     string
		selector string
		values   []string
		text     string
		want     bool
	}{
		{"word present", "", []string{"refund"}, "I want a refund please", true},
		{"word is prefix of longer word", "", []string{"refund"}, "refunds are late", false},
		{"word case-insensitive by default", "includes-word", []string{"REFUND"}, "refund now", true},
		{"word alternation", "includes-word", []string{"ban", "appeal"}, "please appeal", true},
		{"includes substring", "includes", []string{"fund"}, "refund", true},
		{"starts-with hit", "starts-with", []string{"hello"}, "hello there", true},
		{"starts-with miss", "starts-with", []string{"hello"}, "say hello", false},
		{"ends-with hit", "ends-with", []string{"please"}, "refund please", true},
		{"full-exact hit", "full-exact", []string{"hi"}, "hi", true},
		{"full-exact punctuation", "full-exact", []string{"hi"}, "hi!", false},
		{"full-text tolerates punctuation", "full-text", []string{"hi"}, "  hi!!", true},
		{"full-text rejects extra words", "full-text", []string{"hi"}, "oh hi", false},
		{"case-sensitive miss", "includes, case-sensitive", []string{"Refund"}, "refund", false},
		{"case-sensitive hit", "includes, case-sensitive", []string{"Refund"}, "Refund", true},
		{"literal dot escaped", "includes", []string{"a.c"}, "abc", false},
		{"regex modifier", "includes, regex", []string{"ref+und"}, "reffund", true},
		{"regex dotall", "includes, regex", []string{"start.*end"}, "start\nmiddle\nend", true},
		{"unicode word", "includes-word", []string{"café"}, "un café noir", true},
		{"unicode letters are word characters", "includes-word", []string{"na"}, "naïve", false},
		{"unicode case folding", "includes", []string{"ÉTÉ"}, "un été", true},
		{"no values", "includes", nil, "anything", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSelector(tt.selector).Match(tt.values, tt.text)
			if err != nil {
				t.Fatalf("Match() error = %v, want nil", err)
			}
			if got != tt.want {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.values, tt.text, got, tt.want)
			}
		})
	}
}

func TestSelector_InvalidRegex(t *testing.T) {
	_, err := ParseSelector("regex").Match([]string{"("}, "text")
	if err == nil {
		t.Errorf("Match() error = nil, want compile error")
	}

	// Without the regex modifier the same value is escaped.
	got, err := ParseSelector("includes").Match([]string{"("}, "a ( b")
	if err != nil || !got {
		t.Errorf("Match() = %v, %v, want true, nil", got, err)
	}
}

// Property-based test: every escaped value matches itself under any dialect
func TestSelector_PropertySelfMatch(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	dialects := []Dialect{
		DialectIncludesWord,
		DialectIncludes,
		DialectStartsWith,
		DialectEndsWith,
		DialectFullExact,
		DialectFullText,
	}

	properties.Property("value matches itself in every dialect", prop.ForAll(
		func(value string, d int, upper bool) bool {
			if value == "" {
				return true
			}
			text := value
			if upper {
				text = strings.ToUpper(value)
			}
			matched, err := Selector{Dialect: dialects[d]}.Match([]string{value}, text)
			return err == nil && matched
		},
		gen.AlphaString(),
		gen.IntRange(0, len(dialects)-1),
		gen.Bool(),
	))

	properties.Property("includes-word finds a value between spaces", prop.ForAll(
		func(value string) bool {
			if value == "" {
				return true
			}
			matched, err := ParseSelector("").Match([]string{value}, "before "+value+" after")
			return err == nil && matched
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
