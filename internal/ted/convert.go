package ted

// convert.go holds the per-type coercion and formatting functions.
//
// Each SemanticType maps to exactly one coerceFunc. Coercion is strict:
// anything that is not a clean representation of the declared type fails,
// and the caller decides whether the text was the missing-value token
// before coercion is ever attempted.

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// numericRegex matches integers, decimals and scientific notation.
// strconv.ParseFloat alone would also accept hex floats, "Inf" and "NaN".
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

var integerRegex = regexp.MustCompile(`^[+-]?\d+$`)

// instantLayouts are tried in order when parsing absolute timestamps.
// Layouts without a zone are read as UTC.
var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

type coerceFunc func(text string) (Value, error)

var coercers = map[SemanticType]coerceFunc{
	TypeReal:      coerceReal,
	TypeInteger:   coerceInteger,
	TypeTimestamp: coerceTimestamp,
	TypeLabel:     coerceLabel,
	TypeBool:      coerceBool,
}

// Coerce converts field text to a value of the declared type.
// It never returns the missing sentinel.
func Coerce(t SemanticType, text string) (Value, error) {
	fn, ok := coercers[t]
	if !ok {
		return Missing, fmt.Errorf("no coercion for %s", t)
	}
	return fn(text)
}

func coerceReal(text string) (Value, error) {
	f, digits, err := parseDecimal(text)
	if err != nil {
		return Missing, err
	}
	return Value{kind: KindReal, num: f, digits: digits}, nil
}

func coerceInteger(text string) (Value, error) {
	if !integerRegex.MatchString(text) {
		return Missing, fmt.Errorf("not an integer")
	}
	i, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return Missing, fmt.Errorf("integer out of range")
	}
	return Integer(i), nil
}

// coerceTimestamp reads numeric text as an offset from the origin and
// anything else as an absolute instant.
func coerceTimestamp(text string) (Value, error) {
	if numericRegex.MatchString(text) {
		f, digits, err := parseDecimal(text)
		if err != nil {
			return Missing, err
		}
		return Value{kind: KindOffset, num: f, digits: digits}, nil
	}
	t, err := parseInstant(text)
	if err != nil {
		return Missing, err
	}
	return Instant(t), nil
}

func coerceLabel(text string) (Value, error) {
	return Label(text), nil
}

func coerceBool(text string) (Value, error) {
	switch strings.ToLower(text) {
	case "true", "t", "yes", "y", "1":
		return Bool(true), nil
	case "false", "f", "no", "n", "0":
		return Bool(false), nil
	default:
		return Missing, fmt.Errorf("must be true/false, yes/no or 1/0")
	}
}

// parseDecimal parses a finite number and reports how many decimals the
// text carried. Scientific notation reports -1.
func parseDecimal(text string) (float64, int, error) {
	if !numericRegex.MatchString(text) {
		return 0, 0, fmt.Errorf("not a number")
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, 0, fmt.Errorf("number out of range")
	}
	digits := -1
	if !strings.ContainsAny(text, "eE") {
		digits = 0
		if _, frac, ok := strings.Cut(text, "."); ok {
			digits = len(frac)
		}
	}
	return f, digits, nil
}

func parseInstant(text string) (time.Time, error) {
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("not a timestamp (use a number or RFC 3339)")
}

// formatValue renders v as field text for a column declared by spec.
// The missing sentinel is handled by the caller.
func formatValue(v Value, spec ColumnSpec) (string, error) {
	if !spec.Type.Accepts(v) || v.IsMissing() {
		return "", fmt.Errorf("%s value in %s column", v.Kind(), spec.Type)
	}
	switch v.kind {
	case KindReal:
		if spec.Precision > 0 {
			return formatFloat(v.num, spec.Precision), nil
		}
		return formatFloat(v.num, v.digits), nil
	case KindOffset:
		return formatFloat(v.num, v.digits), nil
	case KindInteger:
		return strconv.FormatInt(v.i64, 10), nil
	case KindInstant:
		return formatInstant(v.ts), nil
	case KindLabel:
		return v.text, nil
	case KindBool:
		return strconv.FormatBool(v.flag), nil
	}
	return "", fmt.Errorf("unsupported value kind %s", v.Kind())
}

// formatFloat writes f with a fixed number of decimals, or in the shortest
// form that parses back to f when digits is negative.
func formatFloat(f float64, digits int) string {
	return strconv.FormatFloat(f, 'f', digits, 64)
}

func formatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// encodable reports whether formatting then coercing v yields v again.
func encodable(v Value, spec ColumnSpec) bool {
	text, err := formatValue(v, spec)
	if err != nil {
		return false
	}
	back, err := Coerce(spec.Type, text)
	if err != nil {
		return false
	}
	return back.Equal(v)
}
