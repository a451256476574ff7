// Package ted reads, writes and validates Tabulated Experimental Data files.
//
// This package re-exports the internal implementation as the public API.
//
// Example usage:
//
//	import "github.com/JonMunkholm/ted/ted"
//
//	d, err := ted.LoadFile("recording.ted")
//	if err != nil {
//	    log.Fatal(err) // *ted.FormatError, *ted.RowShapeError or *ted.TypeCoercionError
//	}
//	if !d.IsValid() {
//	    for code, issues := range d.Issues() {
//	        fmt.Println(code, len(issues))
//	    }
//	}
//
//	col, _ := d.Column("current")
//	for _, v := range col.Values {
//	    if f, ok := v.Float(); ok {
//	        fmt.Println(f)
//	    }
//	}
package ted

import (
	"io"

	"github.com/JonMunkholm/ted/internal/ted"
)

// Data model.
type (
	SemanticType = ted.SemanticType
	ColumnSpec   = ted.ColumnSpec
	Header       = ted.Header
	Column       = ted.Column
	Value        = ted.Value
	Kind         = ted.Kind
	Dataset      = ted.Dataset
	State        = ted.State
	Signal       = ted.Signal
	TableKind    = ted.TableKind
)

// Semantic types.
const (
	TypeReal      SemanticType = ted.TypeReal
	TypeInteger   SemanticType = ted.TypeInteger
	TypeTimestamp SemanticType = ted.TypeTimestamp
	TypeLabel     SemanticType = ted.TypeLabel
	TypeBool      SemanticType = ted.TypeBool
)

// Table kinds.
const (
	TableCellProperties    TableKind = ted.TableCellProperties
	TableLiquidAdditions   TableKind = ted.TableLiquidAdditions
	TableCursorDefinitions TableKind = ted.TableCursorDefinitions
	TableResultsWide       TableKind = ted.TableResultsWide

	KeyTable = ted.KeyTable
)

// Dataset states.
const (
	StateUnvalidated State = ted.StateUnvalidated
	StateValid       State = ted.StateValid
	StateInvalid     State = ted.StateInvalid
)

// Waveform signals.
const (
	SignalCurrent     Signal = ted.SignalCurrent
	SignalVoltage     Signal = ted.SignalVoltage
	SignalTemperature Signal = ted.SignalTemperature
)

// CurrentVersion is the TED_VERSION written by NewHeader.
const CurrentVersion = ted.CurrentVersion

// Missing is the sentinel for an absent value.
var Missing = ted.Missing

// Value constructors.
var (
	Real    = ted.Real
	Integer = ted.Integer
	Offset  = ted.Offset
	Instant = ted.Instant
	Label   = ted.Label
	Bool    = ted.Bool
)

// Codec binds Options for loading and saving.
type (
	Codec   = ted.Codec
	Options = ted.Options
)

// DefaultOptions returns the comma delimiter and "NA" missing token.
func DefaultOptions() Options { return ted.DefaultOptions() }

// NewCodec returns a codec for opts.
func NewCodec(opts Options) (*Codec, error) { return ted.NewCodec(opts) }

// Validation.
type (
	IssueCode        = ted.IssueCode
	Issue            = ted.Issue
	ValidationResult = ted.ValidationResult
	ColumnSummary    = ted.ColumnSummary
)

// Errors.
type (
	FormatError             = ted.FormatError
	RowShapeError           = ted.RowShapeError
	TypeCoercionError       = ted.TypeCoercionError
	UnvalidatedDatasetError = ted.UnvalidatedDatasetError
)

// Sentinels matched by the typed errors.
var (
	ErrFormat        = ted.ErrFormat
	ErrRowShape      = ted.ErrRowShape
	ErrTypeCoercion  = ted.ErrTypeCoercion
	ErrUnvalidated   = ted.ErrUnvalidated
	ErrInputTooLarge = ted.ErrInputTooLarge
)

// Load reads a TED file from r with the default options.
func Load(r io.Reader) (*Dataset, error) { return ted.Load(r) }

// LoadFile loads path with the default options.
func LoadFile(path string) (*Dataset, error) { return ted.LoadFile(path) }

// Save writes a valid dataset to w.
func Save(d *Dataset, w io.Writer) error { return ted.Save(d, w) }

// SaveFile writes a valid dataset to path, replacing it atomically.
func SaveFile(d *Dataset, path string) error { return ted.SaveFile(d, path) }

// NewDataset builds an unvalidated dataset.
func NewDataset(h Header, cols []Column) *Dataset { return ted.NewDataset(h, cols) }

// NewHeader returns a header for the current version.
func NewHeader(experimentID, deviceID string, samplingInterval float64, columns ...ColumnSpec) Header {
	return ted.NewHeader(experimentID, deviceID, samplingInterval, columns...)
}

// NewColumn builds a column from values.
func NewColumn(name string, values ...Value) Column { return ted.NewColumn(name, values...) }

// Validate checks a header and columns without building a dataset.
func Validate(h Header, cols []Column) ValidationResult { return ted.Validate(h, cols) }

// Bound returns a pointer for ColumnSpec.Min or ColumnSpec.Max.
func Bound(f float64) *float64 { return ted.Bound(f) }

// SupportedVersions lists the TED_VERSION values that can be read.
func SupportedVersions() []string { return ted.SupportedVersions() }

// ExpandTraceList expands "1-3;5" into [1 2 3 5].
func ExpandTraceList(s string) ([]int, error) { return ted.ExpandTraceList(s) }

// CompactTraceList is the inverse of ExpandTraceList.
func CompactTraceList(traces []int) string { return ted.CompactTraceList(traces) }

// WaveformColumnName returns e.g. "trace_#3_current_pA".
func WaveformColumnName(trace int, signal Signal, unit string) string {
	return ted.WaveformColumnName(trace, signal, unit)
}

// TableKinds lists the known table kinds.
func TableKinds() []TableKind { return ted.TableKinds() }

// NewTableHeader returns a header laid out for a table of kind.
func NewTableHeader(kind TableKind, experimentID, deviceID string, samplingInterval float64, cursors ...string) (Header, error) {
	return ted.NewTableHeader(kind, experimentID, deviceID, samplingInterval, cursors...)
}

// TableKindOf returns the table kind h declares, if any.
func TableKindOf(h Header) (TableKind, bool) { return ted.TableKindOf(h) }

// CheckTable reports whether h follows the layout of its table kind.
func CheckTable(h Header) error { return ted.CheckTable(h) }
