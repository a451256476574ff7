package ted

import (
	"fmt"
	"slices"
)

// TableKind names a tabular record kind exchanged alongside waveform
// recordings. A table is an ordinary TED file whose columns follow a
// fixed layout and whose header carries KeyTable.
type TableKind string

const (
	TableCellProperties    TableKind = "CellProperties"
	TableLiquidAdditions   TableKind = "LiquidAdditions"
	TableCursorDefinitions TableKind = "CursorsDefinitions"
	TableResultsWide       TableKind = "ResultsWide"
)

// KeyTable is the header key naming the table kind.
const KeyTable = "X_TED_TABLE"

// TableKinds lists the known kinds.
func TableKinds() []TableKind {
	return []TableKind{TableCellProperties, TableLiquidAdditions, TableCursorDefinitions, TableResultsWide}
}

var (
	flagLevels       = []string{"Y"}
	concTypeLevels   = []string{"NOMINAL", "CALCULATED", "MEASURED", "SATELLITE", "UNKNOWN"}
	cursorTypeLevels = []string{"AVERAGE", "MAXIMUM", "MINIMUM", "CUSTOM"}

	resultTypeLevels = []string{
		"CIPA_RESULT_TYPE_VOLTAGE",
		"CIPA_RESULT_TYPE_CURRENT",
		"CIPA_RESULT_TYPE_TEMPERATURE",
		"CIPA_RESULT_TYPE_SERIES_RESISTANCE",
		"CIPA_RESULT_TYPE_SERIES_RESISTANCE_COMPENSATION",
		"CIPA_RESULT_TYPE_SEAL_RESISTANCE",
		"CIPA_RESULT_TYPE_MEMBRANE_CAPACITANCE",
		"CIPA_RESULT_TYPE_INPUT_RESISTANCE",
		"CIPA_RESULT_TYPE_UNKNOWN",
	}

	leakMethodLevels = []string{
		"CIPA_LEAK_METHOD_NONE",
		"CIPA_LEAK_METHOD_SMALL_PULSE",
		"CIPA_LEAK_METHOD_FAST_LEAK",
		"CIPA_LEAK_METHOD_SWEEP",
		"CIPA_LEAK_METHOD_ZERO_CURSOR",
		"CIPA_LEAK_METHOD_UNKNOWN",
	}
)

func labelCol(name string, levels ...string) ColumnSpec {
	return ColumnSpec{Name: name, Type: TypeLabel, Levels: levels}
}

func realCol(name string, min *float64) ColumnSpec {
	return ColumnSpec{Name: name, Type: TypeReal, Min: min}
}

func traceNumber(name string) ColumnSpec {
	return ColumnSpec{Name: name, Type: TypeInteger, Min: Bound(1)}
}

// fixedColumns returns a fresh copy of the columns every table of kind
// starts with.
func fixedColumns(kind TableKind) ([]ColumnSpec, bool) {
	switch kind {
	case TableCellProperties:
		return []ColumnSpec{
			labelCol("EXPID"), labelCol("CELLID"), labelCol("PARAMCD"),
			labelCol("PARAM"), labelCol("VALUE"), labelCol("UNIT"),
		}, true
	case TableLiquidAdditions:
		return []ColumnSpec{
			labelCol("EXPID"),
			labelCol("CELLID"),
			{Name: "STIME", Type: TypeTimestamp},
			realCol("LJP", nil),
			labelCol("LJPU"),
			labelCol("LIQUID"),
			realCol("CONC", Bound(0)),
			labelCol("CONCU"),
			labelCol("CONCT", concTypeLevels...),
			traceNumber("FIRST"),
			traceNumber("LAST"),
			labelCol("CTLFL", flagLevels...),
			labelCol("SBFL", flagLevels...),
			labelCol("ANL"),
			labelCol("SRCXFN"),
			labelCol("NOTES"),
		}, true
	case TableCursorDefinitions:
		return []ColumnSpec{
			labelCol("CURSOR"),
			realCol("STIME", nil),
			labelCol("STIMEU"),
			realCol("ETIME", nil),
			labelCol("ETIMEU"),
			labelCol("CURSORT", cursorTypeLevels...),
		}, true
	case TableResultsWide:
		return []ColumnSpec{
			labelCol("EXPID"),
			labelCol("CELLID"),
			labelCol("RESTYPE", resultTypeLevels...),
			labelCol("LEAKMTH", leakMethodLevels...),
			realCol("ELTIME", Bound(0)),
			labelCol("ELTIMEU"),
			traceNumber("TRACENUM"),
			labelCol("ANLFL", flagLevels...),
			labelCol("LIQUID"),
			realCol("CONC", Bound(0)),
			labelCol("CONCU"),
			labelCol("CONCT", concTypeLevels...),
			labelCol("CTLFL", flagLevels...),
			labelCol("SBFL", flagLevels...),
		}, true
	}
	return nil, false
}

// Columns returns the column layout of kind. Cursor names add one
// numeric-real column each and are only accepted for TableResultsWide.
func (k TableKind) Columns(cursors ...string) ([]ColumnSpec, error) {
	cols, ok := fixedColumns(k)
	if !ok {
		return nil, fmt.Errorf("unknown table kind %q", k)
	}
	if len(cursors) > 0 && k != TableResultsWide {
		return nil, fmt.Errorf("%s tables have no cursor columns", k)
	}
	for _, name := range cursors {
		if name == "" {
			return nil, fmt.Errorf("cursor name must not be empty")
		}
		if slices.ContainsFunc(cols, func(s ColumnSpec) bool { return s.Name == name }) {
			return nil, fmt.Errorf("cursor %q clashes with another column", name)
		}
		cols = append(cols, realCol(name, nil))
	}
	return cols, nil
}

// NewTableHeader returns a header for a table of kind with the required
// identification fields set.
func NewTableHeader(kind TableKind, experimentID, deviceID string, samplingInterval float64, cursors ...string) (Header, error) {
	cols, err := kind.Columns(cursors...)
	if err != nil {
		return Header{}, err
	}
	h := NewHeader(experimentID, deviceID, samplingInterval, cols...)
	h.Extra = map[string]string{KeyTable: string(kind)}
	return h, nil
}

// TableKindOf returns the table kind h declares, if any.
func TableKindOf(h Header) (TableKind, bool) {
	v, ok := h.Extra[KeyTable]
	return TableKind(v), ok
}

// CheckTable reports whether the columns of h follow the layout of the
// table kind it declares. Headers without KeyTable always pass.
func CheckTable(h Header) error {
	kind, ok := TableKindOf(h)
	if !ok {
		return nil
	}
	want, ok := fixedColumns(kind)
	if !ok {
		return fmt.Errorf("unknown table kind %q", kind)
	}
	if len(h.Columns) < len(want) {
		return fmt.Errorf("%s table needs %d columns, has %d", kind, len(want), len(h.Columns))
	}
	for i, spec := range want {
		got := h.Columns[i]
		if got.Name != spec.Name || got.Type != spec.Type {
			return fmt.Errorf("%s column %d is %s %s, want %s %s", kind, i+1, got.Name, got.Type, spec.Name, spec.Type)
		}
	}
	extra := h.Columns[len(want):]
	if len(extra) > 0 && kind != TableResultsWide {
		return fmt.Errorf("%s table has %d unexpected columns", kind, len(extra))
	}
	for _, spec := range extra {
		if spec.Type != TypeReal {
			return fmt.Errorf("cursor column %q must be %s", spec.Name, TypeReal)
		}
	}
	return nil
}

// checkTableRows reports rows whose paired columns are out of order:
// FIRST after LAST in liquid additions and STIME after ETIME in cursor
// definitions.
func checkTableRows(res ValidationResult, h Header, cols []Column) {
	kind, _ := TableKindOf(h)
	var lo, hi string
	switch kind {
	case TableLiquidAdditions:
		lo, hi = "FIRST", "LAST"
	case TableCursorDefinitions:
		lo, hi = "STIME", "ETIME"
	default:
		return
	}
	i, j := h.ColumnIndex(lo), h.ColumnIndex(hi)
	if i < 0 || j < 0 || i >= len(cols) || j >= len(cols) {
		return
	}
	n := min(cols[i].Len(), cols[j].Len())
	for row := 0; row < n; row++ {
		a, aok := cols[i].Values[row].Float()
		b, bok := cols[j].Values[row].Float()
		if aok && bok && a > b {
			res.add(IssueValueRange, row, hi, "%s %g is before %s %g", hi, b, lo, a)
		}
	}
}
