package ted

import (
	"fmt"
	"strings"
)

// CurrentVersion is the format version written by NewHeader.
const CurrentVersion = "2022.03"

var supportedVersions = []string{"2022.03.rc1", "2022.03"}

// SupportedVersions returns the TED_VERSION values this package reads.
func SupportedVersions() []string {
	return append([]string(nil), supportedVersions...)
}

func versionSupported(v string) bool {
	for _, s := range supportedVersions {
		if s == v {
			return true
		}
	}
	return false
}

// Allowed body delimiters.
var delimiters = []rune{',', ';', '\t', '|'}

// Options configures a Codec. A header's DELIMITER and MISSING keys take
// precedence over the options for that file.
type Options struct {
	// Delimiter separates fields in body rows (default ',').
	Delimiter rune

	// Missing is the token written for missing values (default "NA").
	Missing string

	// MaxBytes caps the input read by Load. Zero means unlimited.
	MaxBytes int64
}

// DefaultOptions returns the conventional comma delimiter and "NA" token.
func DefaultOptions() Options {
	return Options{
		Delimiter: ',',
		Missing:   "NA",
	}
}

// Validate checks that the options can produce readable files.
func (o Options) Validate() error {
	var errs []string
	if !delimiterAllowed(o.Delimiter) {
		errs = append(errs, fmt.Sprintf("delimiter %q must be one of %s", o.Delimiter, delimiterList()))
	}
	if err := checkMissingToken(o.Missing, o.Delimiter); err != nil {
		errs = append(errs, err.Error())
	}
	if o.MaxBytes < 0 {
		errs = append(errs, "max bytes must be non-negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrOptions, strings.Join(errs, "; "))
	}
	return nil
}

func delimiterAllowed(r rune) bool {
	for _, d := range delimiters {
		if d == r {
			return true
		}
	}
	return false
}

func delimiterList() string {
	names := make([]string, len(delimiters))
	for i, d := range delimiters {
		names[i] = formatDelimiter(d)
	}
	return strings.Join(names, " ")
}

func checkMissingToken(token string, delim rune) error {
	switch {
	case token == "":
		return fmt.Errorf("missing-value token must not be empty")
	case strings.ContainsRune(token, delim):
		return fmt.Errorf("missing-value token %q contains the delimiter", token)
	case strings.ContainsAny(token, "\r\n"):
		return fmt.Errorf("missing-value token must be a single line")
	}
	return nil
}

// effective returns the delimiter and missing token in force for h.
func (o Options) effective(h Header) (rune, string) {
	delim, missing := o.Delimiter, o.Missing
	if h.Delimiter != 0 {
		delim = h.Delimiter
	}
	if h.Missing != "" {
		missing = h.Missing
	}
	return delim, missing
}
