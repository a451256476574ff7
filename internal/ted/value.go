package ted

import (
	"math"
	"strconv"
	"time"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindMissing Kind = iota
	KindReal
	KindInteger
	KindOffset  // timestamp relative to the recording origin
	KindInstant // absolute timestamp
	KindLabel
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindReal:
		return "real"
	case KindInteger:
		return "integer"
	case KindOffset:
		return "offset"
	case KindInstant:
		return "instant"
	case KindLabel:
		return "label"
	case KindBool:
		return "bool"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a single cell. The zero Value is the missing sentinel.
type Value struct {
	kind   Kind
	num    float64
	i64    int64
	ts     time.Time
	text   string
	flag   bool
	digits int // decimals seen when parsed, -1 for shortest form
}

// Missing is the sentinel for absent data. It is distinct from zero,
// the empty label and false.
var Missing = Value{}

// Real returns a numeric-real value written in its shortest exact form.
func Real(f float64) Value {
	return Value{kind: KindReal, num: f, digits: -1}
}

// Integer returns a numeric-integer value.
func Integer(i int64) Value {
	return Value{kind: KindInteger, i64: i}
}

// Offset returns a relative timestamp, expressed in the header's sampling unit.
func Offset(f float64) Value {
	return Value{kind: KindOffset, num: f, digits: -1}
}

// Instant returns an absolute timestamp.
func Instant(t time.Time) Value {
	return Value{kind: KindInstant, ts: t}
}

// Label returns a categorical-label value.
func Label(s string) Value {
	return Value{kind: KindLabel, text: s}
}

// Bool returns a boolean value.
func Bool(b bool) Value {
	return Value{kind: KindBool, flag: b}
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsMissing reports whether v is the missing sentinel.
func (v Value) IsMissing() bool { return v.kind == KindMissing }

// Float returns the numeric value of a real, offset or integer.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindReal, KindOffset:
		return v.num, true
	case KindInteger:
		return float64(v.i64), true
	default:
		return 0, false
	}
}

// Int returns the value of an integer.
func (v Value) Int() (int64, bool) {
	return v.i64, v.kind == KindInteger
}

// Time returns the value of an absolute timestamp.
func (v Value) Time() (time.Time, bool) {
	return v.ts, v.kind == KindInstant
}

// Text returns the value of a label.
func (v Value) Text() (string, bool) {
	return v.text, v.kind == KindLabel
}

// Bool returns the value of a boolean.
func (v Value) Bool() (bool, bool) {
	return v.flag, v.kind == KindBool
}

// Digits returns the number of decimals a real or offset was parsed with,
// or -1 when it carries no textual precision.
func (v Value) Digits() int {
	if v.kind != KindReal && v.kind != KindOffset {
		return -1
	}
	return v.digits
}

// WithDigits returns a copy of a real or offset that is written with n
// decimals. Other kinds are returned unchanged.
func (v Value) WithDigits(n int) Value {
	if v.kind == KindReal || v.kind == KindOffset {
		if n < 0 {
			n = -1
		}
		v.digits = n
	}
	return v
}

// Equal compares kind and payload. Textual precision is not compared,
// so 12.5 parsed from "12.50" equals Real(12.5).
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindMissing:
		return true
	case KindReal, KindOffset:
		return v.num == o.num || (math.IsNaN(v.num) && math.IsNaN(o.num))
	case KindInteger:
		return v.i64 == o.i64
	case KindInstant:
		return v.ts.Equal(o.ts)
	case KindLabel:
		return v.text == o.text
	case KindBool:
		return v.flag == o.flag
	default:
		return false
	}
}

// String renders v for diagnostics. Use the codec to produce file text.
func (v Value) String() string {
	switch v.kind {
	case KindMissing:
		return "<missing>"
	case KindReal, KindOffset:
		return formatFloat(v.num, v.digits)
	case KindInteger:
		return strconv.FormatInt(v.i64, 10)
	case KindInstant:
		return formatInstant(v.ts)
	case KindLabel:
		return strconv.Quote(v.text)
	case KindBool:
		return strconv.FormatBool(v.flag)
	default:
		return v.kind.String()
	}
}
