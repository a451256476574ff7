package service

// # Error Codes Reference
//
// Every error leaving the service is mapped to a user message with a code
// that can be quoted to support. Codes are grouped by category:
//
// # Format Errors (FMT001-FMT099)
//
//	FMT001 - Malformed header (any *ted.FormatError not listed below)
//	FMT002 - Invalid UTF-8            Patterns: "invalid utf-8"
//	FMT003 - END_HEADER not found     Patterns: "missing end_header"
//	FMT004 - Unsupported TED_VERSION  Patterns: "unsupported version"
//	FMT005 - Required key missing     Patterns: "required key is missing", "required value is empty"
//	FMT006 - Unknown header key       Patterns: "unknown key"
//
// # Body Errors
//
//	ROW001 - Row field count differs from the declared columns (*ted.RowShapeError)
//	TYP001 - Field text does not match the column type (*ted.TypeCoercionError)
//	VAL001 - Dataset has validation issues and cannot be written (*ted.UnvalidatedDatasetError)
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large (ted.ErrInputTooLarge, "request body too large")
//	FILE004 - No file in the request (ErrNoInput)
//
// # Archive Errors (STO001-STO099)
//
//	STO001 - Archive entry not found (store.ErrNotFound)
//	STO002 - Archive not configured (ErrNoArchive)
//	STO003 - Invalid archive id (ErrBadID)
//	STO004 - Database unreachable     Patterns: "connection refused"
//	STO005 - Database interrupted     Patterns: "connection reset"
//
// # Job Errors (JOB001-JOB099)
//
//	JOB001 - Too many jobs (ErrTooManyJobs)
//	JOB002 - Request cancelled (context.Canceled)
//	JOB003 - Request timed out (context.DeadlineExceeded)
//
// # Rate Limiting
//
//	RATE001 - Too many requests       Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check the application log for the
// technical error.
//
// # Matching
//
// Entries are tried in order and the first match wins. An entry matches
// when err wraps its target (errors.Is) and, if it has a pattern, the
// lowercased error text contains the pattern. Specific entries for a
// target come before the catch-all entry for the same target.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/ted/internal/store"
	"github.com/JonMunkholm/ted/internal/ted"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	target  error  // matched with errors.Is; nil matches any error
	pattern string // lowercase substring; empty matches any text
	msg     UserMessage
}

func (p errorPattern) matches(err error, text string) bool {
	if p.target != nil && !errors.Is(err, p.target) {
		return false
	}
	return p.pattern == "" || strings.Contains(text, p.pattern)
}

var errorPatterns = []errorPattern{
	// Format errors: specific causes first, then the catch-all.
	{
		target:  ted.ErrFormat,
		pattern: "invalid utf-8",
		msg: UserMessage{
			Message: "File contains invalid characters",
			Action:  "Save the file as UTF-8 and upload it again",
			Code:    "FMT002",
		},
	},
	{
		target:  ted.ErrFormat,
		pattern: "missing end_header",
		msg: UserMessage{
			Message: "Header terminator END_HEADER not found",
			Action:  "End the header block with a line reading END_HEADER",
			Code:    "FMT003",
		},
	},
	{
		target:  ted.ErrFormat,
		pattern: "unsupported version",
		msg: UserMessage{
			Message: "TED version is not supported",
			Action:  "Set TED_VERSION to one of " + strings.Join(ted.SupportedVersions(), ", "),
			Code:    "FMT004",
		},
	},
	{
		target:  ted.ErrFormat,
		pattern: "required key is missing",
		msg: UserMessage{
			Message: "A required header key is missing",
			Action:  "Add TED_VERSION, EXPID, DEVICE_ID and SAMPLING_INTERVAL to the header",
			Code:    "FMT005",
		},
	},
	{
		target:  ted.ErrFormat,
		pattern: "required value is empty",
		msg: UserMessage{
			Message: "A required header key has no value",
			Action:  "Fill in the value after the = sign",
			Code:    "FMT005",
		},
	},
	{
		target:  ted.ErrFormat,
		pattern: "unknown key",
		msg: UserMessage{
			Message: "Header contains an unknown key",
			Action:  "Remove the key or prefix custom keys with X_",
			Code:    "FMT006",
		},
	},
	{
		target: ted.ErrFormat,
		msg: UserMessage{
			Message: "The file header is malformed",
			Action:  "Fix the header line named in the error details",
			Code:    "FMT001",
		},
	},

	// Body errors.
	{
		target: ted.ErrRowShape,
		msg: UserMessage{
			Message: "A data row has the wrong number of fields",
			Action:  "Check the delimiter and that every row has one field per COLUMN",
			Code:    "ROW001",
		},
	},
	{
		target: ted.ErrTypeCoercion,
		msg: UserMessage{
			Message: "A value does not match its column type",
			Action:  "Fix the value or use the missing-value token for absent data",
			Code:    "TYP001",
		},
	},
	{
		target: ted.ErrUnvalidated,
		msg: UserMessage{
			Message: "The dataset has validation issues",
			Action:  "Run lint and fix the reported issues first",
			Code:    "VAL001",
		},
	},

	// File errors.
	{
		target: ted.ErrInputTooLarge,
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the recording into smaller files",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the recording into smaller files",
			Code:    "FILE001",
		},
	},
	{
		target: ErrNoInput,
		msg: UserMessage{
			Message: "No file was provided",
			Action:  "Send the TED file as the request body or a form field named file",
			Code:    "FILE004",
		},
	},

	// Archive errors.
	{
		target: store.ErrNotFound,
		msg: UserMessage{
			Message: "Archive entry not found",
			Action:  "Check the id against GET /api/archive",
			Code:    "STO001",
		},
	},
	{
		target: ErrNoArchive,
		msg: UserMessage{
			Message: "The archive is not configured on this server",
			Action:  "Set DATABASE_URL to enable archiving",
			Code:    "STO002",
		},
	},
	{
		target: ErrBadID,
		msg: UserMessage{
			Message: "Invalid archive id",
			Action:  "Use the id returned when the file was archived",
			Code:    "STO003",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the archive database",
			Action:  "Please try again in a few moments",
			Code:    "STO004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Archive database connection was interrupted",
			Action:  "Please try again",
			Code:    "STO005",
		},
	},

	// Job errors.
	{
		target: ErrTooManyJobs,
		msg: UserMessage{
			Message: "Server is busy processing other files",
			Action:  "Please wait a moment and try again",
			Code:    "JOB001",
		},
	},
	{
		target: context.Canceled,
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "JOB002",
		},
	},
	{
		target: context.DeadlineExceeded,
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "JOB003",
		},
	},

	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user message. It returns the zero
// UserMessage for nil and ERR000 when nothing matches.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	text := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if ep.matches(err, text) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback. The technical text of user-facing errors is safe to
// show: it names lines, keys and columns of the caller's own file.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. It returns nil for nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
