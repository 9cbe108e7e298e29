package automation

import (
	"strconv"
	"strings"
)

// matchKeyword applies a trigger keyword to already-normalized text.
func matchKeyword(text string, kw Keyword) bool {
	value := normalize(kw.Value)
	if value == "" {
		return false
	}

	switch strings.ToLower(kw.MatchType) {
	case "contains":
		return strings.Contains(text, value)
	case "starts_with":
		return strings.HasPrefix(text, value)
	default: // exact
		return text == value
	}
}

// Matches reports whether any keyword matches the inbound text.
func (t *TriggerData) Matches(text string) bool {
	text = normalize(text)
	for _, kw := range t.Keywords {
		if matchKeyword(text, kw) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// evaluate compares actual against the condition's value.
// == and != compare numerically when both sides are numbers and as trimmed,
// case-insensitive strings otherwise. > and < are numeric only.
func evaluate(cond Condition, actual string) bool {
	expected := string(cond.Value)

	switch cond.Operator {
	case "==":
		return equal(actual, expected)
	case "!=":
		return !equal(actual, expected)
	case ">":
		a, aok := ToFloat(actual)
		b, bok := ToFloat(expected)
		return aok && bok && a > b
	case "<":
		a, aok := ToFloat(actual)
		b, bok := ToFloat(expected)
		return aok && bok && a < b
	case "contains":
		return strings.Contains(normalize(actual), normalize(expected))
	default:
		return false
	}
}

func equal(a, b string) bool {
	af, aok := ToFloat(a)
	bf, bok := ToFloat(b)
	if aok && bok {
		return af == bf
	}
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// ToFloat parses a trimmed decimal number, accepting a comma as decimal separator.
func ToFloat(v string) (float64, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if res, err := strconv.ParseFloat(v, 64); err == nil {
		return res, true
	}
	if strings.Count(v, ",") == 1 && !strings.Contains(v, ".") {
		if res, err := strconv.ParseFloat(strings.Replace(v, ",", ".", 1), 64); err == nil {
			return res, true
		}
	}
	return 0, false
}
