package ted

// validate.go cross-checks a header against its columns.
//
// Validation never mutates its input and never stops at the first problem:
// every issue found is recorded under its code so a linter can report the
// whole file at once.

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// IssueCode classifies a validation issue.
type IssueCode string

const (
	IssueColumnCount   IssueCode = "COL_COUNT"         // columns and declarations differ in number
	IssueColumnName    IssueCode = "COL_NAME"          // name mismatch or unencodable name
	IssueDuplicate     IssueCode = "COL_DUPLICATE"     // declared name used twice
	IssueColumnLength  IssueCode = "COL_LENGTH"        // column length differs from row count
	IssueValueType     IssueCode = "VALUE_TYPE"        // value kind does not match declared type
	IssueValueRange    IssueCode = "VALUE_RANGE"       // numeric value outside declared bounds
	IssueValueLevel    IssueCode = "VALUE_LEVEL"       // label not among declared levels
	IssueUnencodable   IssueCode = "VALUE_UNENCODABLE" // value would not survive save and load
	IssueTimeMixed     IssueCode = "TIME_MIXED"        // offsets and instants in one column
	IssueHeaderField   IssueCode = "HEADER_FIELD"      // header metadata unusable
	IssueSpecInvalid   IssueCode = "SPEC_INVALID"      // contradictory column declaration
	IssuePrecisionLoss IssueCode = "VALUE_PRECISION"   // real changes when written at declared precision
)

// NoRow marks an issue that does not belong to a single row.
const NoRow = -1

// Issue is one non-fatal finding.
type Issue struct {
	Row     int    `json:"row"`
	Column  string `json:"column,omitempty"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	var b strings.Builder
	if i.Row != NoRow {
		fmt.Fprintf(&b, "row %d: ", i.Row)
	}
	if i.Column != "" {
		fmt.Fprintf(&b, "column %q: ", i.Column)
	}
	b.WriteString(i.Message)
	return b.String()
}

// ValidationResult maps issue codes to their issues. Empty means the
// dataset is well-formed.
type ValidationResult map[IssueCode][]Issue

func (r ValidationResult) add(code IssueCode, row int, column, format string, args ...any) {
	r[code] = append(r[code], Issue{Row: row, Column: column, Message: fmt.Sprintf(format, args...)})
}

// Empty reports whether no issues were found.
func (r ValidationResult) Empty() bool {
	return len(r) == 0
}

// Count returns the total number of issues.
func (r ValidationResult) Count() int {
	n := 0
	for _, issues := range r {
		n += len(issues)
	}
	return n
}

// Codes returns the issue codes present, sorted.
func (r ValidationResult) Codes() []IssueCode {
	codes := make([]IssueCode, 0, len(r))
	for code := range r {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// Has reports whether any issue carries code.
func (r ValidationResult) Has(code IssueCode) bool {
	return len(r[code]) > 0
}

func (r ValidationResult) clone() ValidationResult {
	out := make(ValidationResult, len(r))
	for code, issues := range r {
		out[code] = append([]Issue(nil), issues...)
	}
	return out
}

// Validate checks h and cols with the default options.
func Validate(h Header, cols []Column) ValidationResult {
	return (&Codec{opts: DefaultOptions()}).Validate(h, cols)
}

// Validate checks the structural invariants (column count, names, lengths,
// value types) plus declared bounds, levels and encodability.
func (c *Codec) Validate(h Header, cols []Column) ValidationResult {
	res := make(ValidationResult)
	delim, missing := c.opts.effective(h)

	for _, p := range headerEncodable(h) {
		res.add(IssueHeaderField, NoRow, "", "%s", p)
	}
	if err := checkMissingToken(missing, delim); err != nil {
		res.add(IssueHeaderField, NoRow, "", "%s: %v", KeyMissing, err)
	}

	seen := make(map[string]bool)
	for _, spec := range h.Columns {
		if seen[spec.Name] {
			res.add(IssueDuplicate, NoRow, spec.Name, "column name declared more than once")
		}
		seen[spec.Name] = true
		checkSpec(res, spec)
	}

	if len(cols) != len(h.Columns) {
		res.add(IssueColumnCount, NoRow, "", "%d columns for %d declarations", len(cols), len(h.Columns))
	}

	rows := 0
	if len(cols) > 0 {
		rows = cols[0].Len()
	}
	for _, col := range cols {
		if col.Len() != rows {
			res.add(IssueColumnLength, NoRow, col.Name, "%d values, want %d", col.Len(), rows)
		}
	}

	for i := 0; i < len(cols) && i < len(h.Columns); i++ {
		spec, col := h.Columns[i], cols[i]
		if col.Name != spec.Name {
			res.add(IssueColumnName, NoRow, col.Name, "position %d is declared as %q", i, spec.Name)
		}
		if spec.Type.Valid() {
			checkValues(res, spec, col, delim, missing)
		}
	}

	if err := CheckTable(h); err != nil {
		res.add(IssueSpecInvalid, NoRow, "", "%s: %v", KeyTable, err)
	} else {
		checkTableRows(res, h, cols)
	}
	return res
}

func checkSpec(res ValidationResult, spec ColumnSpec) {
	if spec.Name == "" || strings.ContainsAny(spec.Name, ";\r\n") {
		res.add(IssueColumnName, NoRow, spec.Name, "name must be non-empty and free of ';' and line breaks")
	}
	if !spec.Type.Valid() {
		res.add(IssueSpecInvalid, NoRow, spec.Name, "unknown semantic type %s", spec.Type)
	}
	if strings.ContainsAny(spec.Unit, ";\r\n") {
		res.add(IssueSpecInvalid, NoRow, spec.Name, "unit %q must be free of ';' and line breaks", spec.Unit)
	}
	if (spec.Min != nil || spec.Max != nil) && !spec.Type.Numeric() {
		res.add(IssueSpecInvalid, NoRow, spec.Name, "bounds declared on %s column", spec.Type)
	}
	for _, b := range []*float64{spec.Min, spec.Max} {
		if b != nil && (math.IsNaN(*b) || math.IsInf(*b, 0)) {
			res.add(IssueSpecInvalid, NoRow, spec.Name, "bounds must be finite")
		}
	}
	if spec.Min != nil && spec.Max != nil && *spec.Min > *spec.Max {
		res.add(IssueSpecInvalid, NoRow, spec.Name, "min %g is greater than max %g", *spec.Min, *spec.Max)
	}
	if spec.Precision < 0 {
		res.add(IssueSpecInvalid, NoRow, spec.Name, "precision %d is negative", spec.Precision)
	}
	if spec.Precision > 0 && spec.Type != TypeReal {
		res.add(IssueSpecInvalid, NoRow, spec.Name, "precision declared on %s column", spec.Type)
	}
	if len(spec.Levels) > 0 && spec.Type != TypeLabel {
		res.add(IssueSpecInvalid, NoRow, spec.Name, "levels declared on %s column", spec.Type)
	}
	for _, level := range spec.Levels {
		if level == "" || strings.ContainsAny(level, "|;\r\n") {
			res.add(IssueSpecInvalid, NoRow, spec.Name, "level %q must be non-empty and free of '|', ';' and line breaks", level)
		}
	}
}

func checkValues(res ValidationResult, spec ColumnSpec, col Column, delim rune, missing string) {
	var levels map[string]bool
	if len(spec.Levels) > 0 {
		levels = make(map[string]bool, len(spec.Levels))
		for _, l := range spec.Levels {
			levels[l] = true
		}
	}
	offsets, instants := 0, 0

	for row, v := range col.Values {
		if v.IsMissing() {
			continue
		}
		if !spec.Type.Accepts(v) {
			res.add(IssueValueType, row, col.Name, "%s value in %s column", v.Kind(), spec.Type)
			continue
		}

		switch v.Kind() {
		case KindOffset:
			offsets++
		case KindInstant:
			instants++
		}

		if f, ok := v.Float(); ok {
			if spec.Min != nil && f < *spec.Min {
				res.add(IssueValueRange, row, col.Name, "%s is below min %g", v, *spec.Min)
			}
			if spec.Max != nil && f > *spec.Max {
				res.add(IssueValueRange, row, col.Name, "%s is above max %g", v, *spec.Max)
			}
		}

		if text, ok := v.Text(); ok {
			if levels != nil && !levels[text] {
				res.add(IssueValueLevel, row, col.Name, "%q is not one of %s", text, strings.Join(spec.Levels, ", "))
			}
			if strings.ContainsRune(text, delim) || strings.ContainsAny(text, "\r\n") {
				res.add(IssueUnencodable, row, col.Name, "label %q contains the delimiter or a line break", text)
				continue
			}
		}

		if text, err := formatValue(v, spec); err == nil && text == missing {
			res.add(IssueUnencodable, row, col.Name, "%s is written as the missing-value token %q", v, missing)
			continue
		}
		if !encodable(v, spec) {
			if v.Kind() == KindReal && spec.Precision > 0 {
				res.add(IssuePrecisionLoss, row, col.Name, "%s changes when written with %d decimals", v, spec.Precision)
			} else {
				res.add(IssueUnencodable, row, col.Name, "%s cannot be written and read back", v)
			}
		}
	}

	if offsets > 0 && instants > 0 {
		res.add(IssueTimeMixed, NoRow, col.Name, "%d relative and %d absolute timestamps", offsets, instants)
	}
}
