package ted

import (
	"fmt"
	"math"
)

// State is the validation state of a Dataset.
type State int

const (
	StateUnvalidated State = iota
	StateValid
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateUnvalidated:
		return "unvalidated"
	case StateValid:
		return "valid"
	case StateInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Dataset is a header plus its columns and the result of the last
// validation. It owns copies of everything it is given; accessors return
// copies, and every mutation returns it to StateUnvalidated.
type Dataset struct {
	header  Header
	columns []Column
	state   State
	issues  ValidationResult
	opts    Options
}

// NewDataset builds an unvalidated dataset checked against the default
// options. Call Validate before saving.
func NewDataset(h Header, cols []Column) *Dataset {
	return newDataset(h.Clone(), cloneColumns(cols), DefaultOptions())
}

// NewDataset builds an unvalidated dataset checked against the codec's
// options.
func (c *Codec) NewDataset(h Header, cols []Column) *Dataset {
	return newDataset(h.Clone(), cloneColumns(cols), c.opts)
}

func newDataset(h Header, cols []Column, opts Options) *Dataset {
	return &Dataset{header: h, columns: cols, opts: opts}
}

// Header returns a copy of the header.
func (d *Dataset) Header() Header { return d.header.Clone() }

// Columns returns a copy of the columns.
func (d *Dataset) Columns() []Column { return cloneColumns(d.columns) }

// Column returns a copy of the named column.
func (d *Dataset) Column(name string) (Column, bool) {
	for _, c := range d.columns {
		if c.Name == name {
			return c.clone(), true
		}
	}
	return Column{}, false
}

// RowCount returns the length of the first column.
func (d *Dataset) RowCount() int {
	if len(d.columns) == 0 {
		return 0
	}
	return d.columns[0].Len()
}

// State returns the current validation state.
func (d *Dataset) State() State { return d.state }

// IsValid reports whether the last validation found no issues and nothing
// has changed since.
func (d *Dataset) IsValid() bool { return d.state == StateValid }

// Issues returns the result of the last validation. It is empty for an
// unvalidated dataset.
func (d *Dataset) Issues() ValidationResult {
	if d.issues == nil {
		return ValidationResult{}
	}
	return d.issues.clone()
}

// Validate checks the dataset and moves it to StateValid or StateInvalid.
func (d *Dataset) Validate() ValidationResult {
	c := &Codec{opts: d.opts}
	d.issues = c.Validate(d.header, d.columns)
	if d.issues.Empty() {
		d.state = StateValid
	} else {
		d.state = StateInvalid
	}
	return d.issues.clone()
}

func (d *Dataset) demote() {
	d.state = StateUnvalidated
	d.issues = nil
}

// SetHeader replaces the header.
func (d *Dataset) SetHeader(h Header) {
	d.header = h.Clone()
	d.demote()
}

// SetColumns replaces all columns.
func (d *Dataset) SetColumns(cols []Column) {
	d.columns = cloneColumns(cols)
	d.demote()
}

// SetValue replaces one cell.
func (d *Dataset) SetValue(column string, row int, v Value) error {
	for i := range d.columns {
		if d.columns[i].Name != column {
			continue
		}
		if row < 0 || row >= d.columns[i].Len() {
			return fmt.Errorf("row %d out of range [0, %d)", row, d.columns[i].Len())
		}
		d.columns[i].Values[row] = v
		d.demote()
		return nil
	}
	return fmt.Errorf("no column %q", column)
}

// AppendRow adds one value to each column, in column order.
func (d *Dataset) AppendRow(values ...Value) error {
	if len(values) != len(d.columns) {
		return fmt.Errorf("%d values for %d columns", len(values), len(d.columns))
	}
	for i, v := range values {
		d.columns[i].Values = append(d.columns[i].Values, v)
	}
	d.demote()
	return nil
}

// Equal reports whether two datasets carry equal headers and columns.
// Validation state is not compared.
func (d *Dataset) Equal(o *Dataset) bool {
	if d == nil || o == nil {
		return d == o
	}
	if !d.header.Equal(o.header) || len(d.columns) != len(o.columns) {
		return false
	}
	for i := range d.columns {
		if !d.columns[i].Equal(o.columns[i]) {
			return false
		}
	}
	return true
}

// ColumnSummary describes the numeric content of one column.
type ColumnSummary struct {
	Name    string       `json:"name"`
	Type    SemanticType `json:"type"`
	Unit    string       `json:"unit,omitempty"`
	Count   int          `json:"count"`
	Missing int          `json:"missing"`
	Min     *float64     `json:"min,omitempty"`
	Max     *float64     `json:"max,omitempty"`
	Mean    *float64     `json:"mean,omitempty"`
}

// Summarize returns per-column counts, with min, max and mean for columns
// holding numeric values.
func (d *Dataset) Summarize() []ColumnSummary {
	out := make([]ColumnSummary, 0, len(d.columns))
	for i, col := range d.columns {
		s := ColumnSummary{Name: col.Name, Count: col.Len()}
		if i < len(d.header.Columns) {
			s.Type = d.header.Columns[i].Type
			s.Unit = d.header.Columns[i].Unit
		}

		lo, hi, sum, n := math.Inf(1), math.Inf(-1), 0.0, 0
		for _, v := range col.Values {
			if v.IsMissing() {
				s.Missing++
				continue
			}
			f, ok := v.Float()
			if !ok {
				continue
			}
			lo, hi, sum, n = math.Min(lo, f), math.Max(hi, f), sum+f, n+1
		}
		if n > 0 {
			s.Min, s.Max, s.Mean = Bound(lo), Bound(hi), Bound(sum/float64(n))
		}
		out = append(out, s)
	}
	return out
}
