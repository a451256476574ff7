package ted

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. The typed errors below match them with errors.Is.
var (
	ErrFormat        = errors.New("ted: malformed header")
	ErrRowShape      = errors.New("ted: row field count mismatch")
	ErrTypeCoercion  = errors.New("ted: value does not match declared type")
	ErrUnvalidated   = errors.New("ted: dataset is not valid")
	ErrInputTooLarge = errors.New("ted: input exceeds size limit")
	ErrOptions       = errors.New("ted: invalid options")
)

// FormatError reports a structural problem that aborts a load:
// a missing, duplicated, unknown or malformed header field, or
// unreadable input.
type FormatError struct {
	Line int    // 1-based file line, 0 when not tied to a line
	Key  string // header key, if known
	Msg  string
}

func (e *FormatError) Error() string {
	var b strings.Builder
	b.WriteString("ted: format error")
	if e.Line > 0 {
		fmt.Fprintf(&b, " at line %d", e.Line)
	}
	if e.Key != "" {
		fmt.Fprintf(&b, " (%s)", e.Key)
	}
	b.WriteString(": ")
	b.WriteString(e.Msg)
	return b.String()
}

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// RowShapeError reports a body row whose field count differs from the
// number of declared columns.
type RowShapeError struct {
	Row  int // 0-based body row
	Line int // 1-based file line, 0 when unknown
	Want int
	Got  int
}

func (e *RowShapeError) Error() string {
	msg := fmt.Sprintf("ted: row %d has %d fields, header declares %d columns", e.Row, e.Got, e.Want)
	if e.Line > 0 {
		msg += fmt.Sprintf(" (line %d)", e.Line)
	}
	return msg
}

func (e *RowShapeError) Is(target error) bool { return target == ErrRowShape }

// TypeCoercionError reports field text that is neither the missing-value
// token nor a valid representation of the column's declared type.
type TypeCoercionError struct {
	Row    int
	Line   int
	Column string
	Type   SemanticType
	Text   string
	Reason string
}

func (e *TypeCoercionError) Error() string {
	msg := fmt.Sprintf("ted: row %d column %q: cannot read %q as %s", e.Row, e.Column, e.Text, e.Type)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Line > 0 {
		msg += fmt.Sprintf(" (line %d)", e.Line)
	}
	return msg
}

func (e *TypeCoercionError) Is(target error) bool { return target == ErrTypeCoercion }

// UnvalidatedDatasetError is returned by Save for a dataset that is not
// in the Valid state. Nothing is written.
type UnvalidatedDatasetError struct {
	State  State
	Issues int
}

func (e *UnvalidatedDatasetError) Error() string {
	if e.State == StateInvalid {
		return fmt.Sprintf("ted: refusing to save invalid dataset (%d issues)", e.Issues)
	}
	return fmt.Sprintf("ted: refusing to save %s dataset, call Validate first", e.State)
}

func (e *UnvalidatedDatasetError) Is(target error) bool { return target == ErrUnvalidated }
