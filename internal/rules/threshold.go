// internal/rules/threshold.go
package rules

import (
	"strconv"
	"strings"
	"time"
)

/*
 * Threshold expressions for karma and account-age fields.
 *
 * Grammar: comparator number [unit], e.g. ">100", "< 5", ">30 days". The unit is
 * the text after the first space; a recognized unit scales the number to
 * milliseconds, an unrecognized one leaves it unscaled. Anything else fails to
 * parse, and the evaluator treats that as a non-match for the whole rule.
 *
 * Account age compares "now - created" in milliseconds against the value, so
 * ">30 days" means the account is strictly older than 30 days.
 */

// Comparator is the threshold direction.
type Comparator byte

const (
	CompareGreater Comparator = '>'
	CompareLess    Comparator = '<'
)

// Fixed millisecond lengths of time units. Months and years are calendar-free.
const (
	MillisMinute = int64(60 * 1000)
	MillisHour   = 60 * MillisMinute
	MillisDay    = 24 * MillisHour
	MillisWeek   = 7 * MillisDay
	MillisMonth  = 30 * MillisDay
	MillisYear   = 365 * MillisDay
)

var timeUnits = map[string]int64{
	"minute":  MillisMinute,
	"minutes": MillisMinute,
	"hour":    MillisHour,
	"hours":   MillisHour,
	"day":     MillisDay,
	"days":    MillisDay,
	"week":    MillisWeek,
	"weeks":   MillisWeek,
	"month":   MillisMonth,
	"months":  MillisMonth,
	"year":    MillisYear,
	"years":   MillisYear,
}

// Threshold is a parsed comparison expression.
type Threshold struct {
	Comparator Comparator
	Value      int64
	Scaled     bool // value was multiplied by a time unit
}

// ParseThreshold parses a comparison expression. Returns false on any parse failure.
func ParseThreshold(s string) (Threshold, bool) {
	s = strings.TrimSpace(s)
	// A comparator and one digit is the shortest valid form: ">1".
	if len(s) < 2 {
		return Threshold{}, false
	}

	cmp := Comparator(s[0])
	if cmp != CompareGreater && cmp != CompareLess {
		return Threshold{}, false
	}

	rest := strings.TrimSpace(s[1:])
	number, unit, _ := strings.Cut(rest, " ")

	value, err := strconv.ParseInt(number, 10, 64)
	if err != nil {
		return Threshold{}, false
	}

	t := Threshold{Comparator: cmp, Value: value}
	if mult, ok := timeUnits[strings.ToLower(strings.TrimSpace(unit))]; ok {
		t.Value = value * mult
		t.Scaled = true
	}
	return t, true
}

// Compare applies the threshold to an attribute value.
func (t Threshold) Compare(v int64) bool {
	switch t.Comparator {
	case CompareGreater:
		return v > t.Value
	case CompareLess:
		return v < t.Value
	default:
		return false
	}
}

// CompareAge applies the threshold to the account age at now, in milliseconds.
func (t Threshold) CompareAge(created, now time.Time) bool {
	return t.Compare(now.Sub(created).Milliseconds())
}

func (t Threshold) String() string {
	return string(t.Comparator) + strconv.FormatInt(t.Value, 10)
}
