package ted

import (
	"fmt"
	"strings"
)

// ParseBody converts delimited rows into typed columns following the
// header's column declarations. Fields equal to the missing-value token
// become the Missing sentinel without a coercion attempt.
func (c *Codec) ParseBody(rows []string, h Header) ([]Column, error) {
	return c.parseBody(rows, h, 0)
}

// parseBody is ParseBody with the file line of rows[0], or 0 if unknown.
func (c *Codec) parseBody(rows []string, h Header, firstLine int) ([]Column, error) {
	delim, missing := c.opts.effective(h)
	sep := string(delim)

	cols := make([]Column, len(h.Columns))
	for i, spec := range h.Columns {
		cols[i] = Column{Name: spec.Name, Values: make([]Value, 0, len(rows))}
	}

	for r, row := range rows {
		line := 0
		if firstLine > 0 {
			line = firstLine + r
		}
		fields := strings.Split(strings.TrimSuffix(row, "\r"), sep)
		if len(fields) != len(h.Columns) {
			return nil, &RowShapeError{Row: r, Line: line, Want: len(h.Columns), Got: len(fields)}
		}

		for i, text := range fields {
			if text == missing {
				cols[i].Values = append(cols[i].Values, Missing)
				continue
			}
			spec := h.Columns[i]
			v, err := Coerce(spec.Type, text)
			if err != nil {
				return nil, &TypeCoercionError{
					Row:    r,
					Line:   line,
					Column: spec.Name,
					Type:   spec.Type,
					Text:   text,
					Reason: err.Error(),
				}
			}
			cols[i].Values = append(cols[i].Values, v)
		}
	}
	return cols, nil
}

// WriteBody renders columns as delimited rows, one string per row without
// a line terminator. Columns must line up with the header's declarations.
func (c *Codec) WriteBody(cols []Column, h Header) ([]string, error) {
	if len(cols) != len(h.Columns) {
		return nil, fmt.Errorf("%w: %d columns for %d declarations", ErrRowShape, len(cols), len(h.Columns))
	}
	delim, missing := c.opts.effective(h)

	n := 0
	if len(cols) > 0 {
		n = cols[0].Len()
	}
	for _, col := range cols {
		if col.Len() != n {
			return nil, fmt.Errorf("%w: column %q has %d values, want %d", ErrRowShape, col.Name, col.Len(), n)
		}
	}

	rows := make([]string, n)
	fields := make([]string, len(cols))
	for r := 0; r < n; r++ {
		for i, col := range cols {
			v := col.Values[r]
			if v.IsMissing() {
				fields[i] = missing
				continue
			}
			text, err := formatValue(v, h.Columns[i])
			if err != nil {
				return nil, &TypeCoercionError{
					Row:    r,
					Column: col.Name,
					Type:   h.Columns[i].Type,
					Text:   v.String(),
					Reason: err.Error(),
				}
			}
			fields[i] = text
		}
		rows[r] = strings.Join(fields, string(delim))
	}
	return rows, nil
}
