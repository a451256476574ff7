package ted

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// SemanticType is the declared meaning of a column's values.
// The set is closed; every type has exactly one coercion function.
type SemanticType int

const (
	TypeUnknown SemanticType = iota
	TypeReal
	TypeInteger
	TypeTimestamp
	TypeLabel
	TypeBool
)

var semanticTypeNames = map[SemanticType]string{
	TypeReal:      "numeric-real",
	TypeInteger:   "numeric-integer",
	TypeTimestamp: "timestamp",
	TypeLabel:     "categorical-label",
	TypeBool:      "boolean",
}

// String returns the name used for the type in COLUMN declarations.
func (t SemanticType) String() string {
	if name, ok := semanticTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("SemanticType(%d)", int(t))
}

// ParseSemanticType converts a declared type name to a SemanticType.
func ParseSemanticType(s string) (SemanticType, error) {
	for t, name := range semanticTypeNames {
		if name == s {
			return t, nil
		}
	}
	return TypeUnknown, fmt.Errorf("unknown semantic type %q", s)
}

// MarshalText encodes t by its declared name.
func (t SemanticType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a declared type name.
func (t *SemanticType) UnmarshalText(b []byte) error {
	parsed, err := ParseSemanticType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Valid reports whether t is one of the declared semantic types.
func (t SemanticType) Valid() bool {
	_, ok := semanticTypeNames[t]
	return ok
}

// Numeric reports whether bounds apply to values of this type.
func (t SemanticType) Numeric() bool {
	return t == TypeReal || t == TypeInteger || t == TypeTimestamp
}

// Accepts reports whether v may appear in a column of type t.
// The missing sentinel is accepted by every type.
func (t SemanticType) Accepts(v Value) bool {
	switch v.Kind() {
	case KindMissing:
		return true
	case KindReal:
		return t == TypeReal
	case KindInteger:
		return t == TypeInteger
	case KindOffset, KindInstant:
		return t == TypeTimestamp
	case KindLabel:
		return t == TypeLabel
	case KindBool:
		return t == TypeBool
	default:
		return false
	}
}

// ColumnSpec declares one column of the body block.
type ColumnSpec struct {
	Name string
	Type SemanticType
	Unit string // Physical unit, optional

	// Min and Max bound numeric values. Nil means unbounded.
	Min *float64
	Max *float64

	// Precision fixes the number of decimals written for numeric-real
	// values. Zero keeps the precision each value was parsed with.
	Precision int

	// Levels lists the allowed categorical-label values. Empty allows any.
	Levels []string
}

// Bound returns a pointer suitable for ColumnSpec.Min or ColumnSpec.Max.
func Bound(f float64) *float64 {
	return &f
}

// Equal reports whether two specs declare the same column.
func (s ColumnSpec) Equal(o ColumnSpec) bool {
	return s.Name == o.Name &&
		s.Type == o.Type &&
		s.Unit == o.Unit &&
		boundEqual(s.Min, o.Min) &&
		boundEqual(s.Max, o.Max) &&
		s.Precision == o.Precision &&
		slices.Equal(s.Levels, o.Levels)
}

func (s ColumnSpec) clone() ColumnSpec {
	c := s
	if s.Min != nil {
		c.Min = Bound(*s.Min)
	}
	if s.Max != nil {
		c.Max = Bound(*s.Max)
	}
	c.Levels = slices.Clone(s.Levels)
	return c
}

func boundEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b || (math.IsNaN(*a) && math.IsNaN(*b))
}

// Header describes the recording context of a dataset and declares its columns.
type Header struct {
	Version      string // TED_VERSION
	StudyID      string // STUDYID
	ExperimentID string // EXPID

	ReportTitle       string
	ReportVersion     string
	ReportDate        string
	ReportDescription string

	DeviceID       string
	DeviceCode     string
	DeviceModel    string
	DeviceSoftware string

	SamplingInterval float64
	SamplingUnit     string

	// Origin is the absolute time of sample zero. Zero means unset.
	Origin time.Time

	Channels []string
	Sweeps   []int

	// Delimiter and Missing override the codec options for this file.
	// Zero values defer to the options and are not written.
	Delimiter rune
	Missing   string

	// Extra holds user-defined X_* keys.
	Extra map[string]string

	Columns []ColumnSpec
}

// NewHeader returns a header for the current format version with the
// required identification fields set.
func NewHeader(experimentID, deviceID string, samplingInterval float64, columns ...ColumnSpec) Header {
	return Header{
		Version:          CurrentVersion,
		ExperimentID:     experimentID,
		DeviceID:         deviceID,
		SamplingInterval: samplingInterval,
		Columns:          columns,
	}
}

// ColumnIndex returns the position of the named column spec, or -1.
func (h Header) ColumnIndex(name string) int {
	for i, spec := range h.Columns {
		if spec.Name == name {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of h.
func (h Header) Clone() Header {
	c := h
	c.Channels = slices.Clone(h.Channels)
	c.Sweeps = slices.Clone(h.Sweeps)
	if h.Extra != nil {
		c.Extra = make(map[string]string, len(h.Extra))
		for k, v := range h.Extra {
			c.Extra[k] = v
		}
	}
	if h.Columns != nil {
		c.Columns = make([]ColumnSpec, len(h.Columns))
		for i, spec := range h.Columns {
			c.Columns[i] = spec.clone()
		}
	}
	return c
}

// Equal reports whether two headers carry the same metadata.
// Nil and empty collections compare equal.
func (h Header) Equal(o Header) bool {
	if h.Version != o.Version || h.StudyID != o.StudyID || h.ExperimentID != o.ExperimentID ||
		h.ReportTitle != o.ReportTitle || h.ReportVersion != o.ReportVersion ||
		h.ReportDate != o.ReportDate || h.ReportDescription != o.ReportDescription ||
		h.DeviceID != o.DeviceID || h.DeviceCode != o.DeviceCode ||
		h.DeviceModel != o.DeviceModel || h.DeviceSoftware != o.DeviceSoftware ||
		h.SamplingInterval != o.SamplingInterval || h.SamplingUnit != o.SamplingUnit ||
		h.Delimiter != o.Delimiter || h.Missing != o.Missing {
		return false
	}
	if !h.Origin.Equal(o.Origin) {
		return false
	}
	if !slices.Equal(h.Channels, o.Channels) || !slices.Equal(h.Sweeps, o.Sweeps) {
		return false
	}
	if len(h.Extra) != len(o.Extra) {
		return false
	}
	for k, v := range h.Extra {
		if ov, ok := o.Extra[k]; !ok || ov != v {
			return false
		}
	}
	return slices.EqualFunc(h.Columns, o.Columns, ColumnSpec.Equal)
}

// Column is an ordered sequence of values for one declared column.
type Column struct {
	Name   string
	Values []Value
}

// NewColumn builds a column from values.
func NewColumn(name string, values ...Value) Column {
	return Column{Name: name, Values: values}
}

// Len returns the number of values in the column.
func (c Column) Len() int {
	return len(c.Values)
}

// Equal reports whether two columns have the same name and values,
// including the positions of missing values.
func (c Column) Equal(o Column) bool {
	return c.Name == o.Name && slices.EqualFunc(c.Values, o.Values, Value.Equal)
}

func (c Column) clone() Column {
	return Column{Name: c.Name, Values: slices.Clone(c.Values)}
}

func cloneColumns(cols []Column) []Column {
	if cols == nil {
		return nil
	}
	out := make([]Column, len(cols))
	for i, c := range cols {
		out[i] = c.clone()
	}
	return out
}
