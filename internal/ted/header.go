package ted

// header.go translates the header block to and from a Header.
//
// The block is a sequence of KEY=value lines ending with END_HEADER.
// Values are taken verbatim. Blank lines and lines starting with '#' are
// skipped. COLUMN may repeat, once per body column, in body order; any
// other key may appear once. Keys starting with X_ are kept in
// Header.Extra. The writer emits keys in the order of headerFields, which
// is also the documented canonical order.

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// HeaderTerminator is the sentinel line ending the header block.
const HeaderTerminator = "END_HEADER"

// Header keys.
const (
	KeyVersion           = "TED_VERSION"
	KeyStudyID           = "STUDYID"
	KeyExperimentID      = "EXPID"
	KeyReportTitle       = "REPORT_TITLE"
	KeyReportVersion     = "REPORT_VERSION"
	KeyReportDate        = "REPORT_DATE"
	KeyReportDescription = "REPORT_DESCRIPTION"
	KeyDeviceID          = "DEVICE_ID"
	KeyDeviceCode        = "DEVICE_CODE"
	KeyDeviceModel       = "DEVICE_MODEL"
	KeyDeviceSoftware    = "DEVICE_SOFTWARE"
	KeySamplingInterval  = "SAMPLING_INTERVAL"
	KeySamplingUnit      = "SAMPLING_UNIT"
	KeyOrigin            = "ORIGIN"
	KeyChannels          = "CHANNELS"
	KeySweeps            = "SWEEPS"
	KeyDelimiter         = "DELIMITER"
	KeyMissing           = "MISSING"
	KeyColumn            = "COLUMN"
	extraPrefix          = "X_"
)

var extraKeyRegex = regexp.MustCompile(`^X_[A-Z0-9_]+$`)

// headerField binds a key to its Header field. format returns "" to omit
// the line.
type headerField struct {
	key      string
	required bool
	parse    func(h *Header, v string) error
	format   func(h Header) string
}

func textField(key string, required bool, field func(h *Header) *string) headerField {
	return headerField{
		key:      key,
		required: required,
		parse: func(h *Header, v string) error {
			*field(h) = v
			return nil
		},
		format: func(h Header) string { return *field(&h) },
	}
}

var headerFields = []headerField{
	{
		key:      KeyVersion,
		required: true,
		parse: func(h *Header, v string) error {
			if !versionSupported(v) {
				return fmt.Errorf("unsupported version %q (supported: %s)", v, strings.Join(supportedVersions, ", "))
			}
			h.Version = v
			return nil
		},
		format: func(h Header) string { return h.Version },
	},
	textField(KeyStudyID, false, func(h *Header) *string { return &h.StudyID }),
	textField(KeyExperimentID, true, func(h *Header) *string { return &h.ExperimentID }),
	textField(KeyReportTitle, false, func(h *Header) *string { return &h.ReportTitle }),
	textField(KeyReportVersion, false, func(h *Header) *string { return &h.ReportVersion }),
	textField(KeyReportDate, false, func(h *Header) *string { return &h.ReportDate }),
	textField(KeyReportDescription, false, func(h *Header) *string { return &h.ReportDescription }),
	textField(KeyDeviceID, true, func(h *Header) *string { return &h.DeviceID }),
	textField(KeyDeviceCode, false, func(h *Header) *string { return &h.DeviceCode }),
	textField(KeyDeviceModel, false, func(h *Header) *string { return &h.DeviceModel }),
	textField(KeyDeviceSoftware, false, func(h *Header) *string { return &h.DeviceSoftware }),
	{
		key:      KeySamplingInterval,
		required: true,
		parse: func(h *Header, v string) error {
			f, _, err := parseDecimal(v)
			if err != nil {
				return fmt.Errorf("sampling interval %q: %v", v, err)
			}
			if f <= 0 {
				return fmt.Errorf("sampling interval must be positive, got %s", v)
			}
			h.SamplingInterval = f
			return nil
		},
		format: func(h Header) string {
			if h.SamplingInterval == 0 {
				return ""
			}
			return strconv.FormatFloat(h.SamplingInterval, 'g', -1, 64)
		},
	},
	textField(KeySamplingUnit, false, func(h *Header) *string { return &h.SamplingUnit }),
	{
		key: KeyOrigin,
		parse: func(h *Header, v string) error {
			if v == "" {
				return nil
			}
			t, err := parseInstant(v)
			if err != nil {
				return fmt.Errorf("origin %q: %v", v, err)
			}
			h.Origin = t
			return nil
		},
		format: func(h Header) string {
			if h.Origin.IsZero() {
				return ""
			}
			return formatInstant(h.Origin)
		},
	},
	{
		key: KeyChannels,
		parse: func(h *Header, v string) error {
			if v == "" {
				return nil
			}
			h.Channels = strings.Split(v, ";")
			return nil
		},
		format: func(h Header) string { return strings.Join(h.Channels, ";") },
	},
	{
		key: KeySweeps,
		parse: func(h *Header, v string) error {
			traces, err := ExpandTraceList(v)
			if err != nil {
				return err
			}
			h.Sweeps = traces
			return nil
		},
		format: func(h Header) string { return CompactTraceList(h.Sweeps) },
	},
	{
		key: KeyDelimiter,
		parse: func(h *Header, v string) error {
			r, err := parseDelimiter(v)
			if err != nil {
				return err
			}
			h.Delimiter = r
			return nil
		},
		format: func(h Header) string {
			if h.Delimiter == 0 {
				return ""
			}
			return formatDelimiter(h.Delimiter)
		},
	},
	{
		key: KeyMissing,
		parse: func(h *Header, v string) error {
			if v == "" {
				return fmt.Errorf("missing-value token must not be empty")
			}
			h.Missing = v
			return nil
		},
		format: func(h Header) string { return h.Missing },
	},
}

func lookupField(key string) (headerField, bool) {
	for _, f := range headerFields {
		if f.key == key {
			return f, true
		}
	}
	return headerField{}, false
}

func parseDelimiter(v string) (rune, error) {
	if v == `\t` {
		return '\t', nil
	}
	r := []rune(v)
	if len(r) != 1 || !delimiterAllowed(r[0]) {
		return 0, fmt.Errorf("delimiter %q must be one of %s", v, delimiterList())
	}
	return r[0], nil
}

func formatDelimiter(r rune) string {
	if r == '\t' {
		return `\t`
	}
	return string(r)
}

// ParseHeader parses a header block. The END_HEADER terminator is
// optional; nothing but blank lines may follow it.
func (c *Codec) ParseHeader(raw string) (Header, error) {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		if strings.TrimSuffix(line, "\r") != HeaderTerminator {
			continue
		}
		for j, rest := range lines[i+1:] {
			if strings.TrimSpace(rest) != "" {
				return Header{}, &FormatError{Line: i + j + 2, Msg: "content after " + HeaderTerminator}
			}
		}
		lines = lines[:i]
		break
	}
	return c.parseHeaderLines(lines, 1)
}

// parseHeaderLines parses header lines; firstLine is the file line number
// of lines[0].
func (c *Codec) parseHeaderLines(lines []string, firstLine int) (Header, error) {
	var h Header
	seen := make(map[string]int)

	for i, line := range lines {
		lineNo := firstLine + i
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return Header{}, &FormatError{Line: lineNo, Msg: fmt.Sprintf("expected KEY=value, got %q", line)}
		}
		key = strings.TrimSpace(key)

		if key == KeyColumn {
			spec, err := parseColumnSpec(value)
			if err != nil {
				return Header{}, &FormatError{Line: lineNo, Key: key, Msg: err.Error()}
			}
			h.Columns = append(h.Columns, spec)
			continue
		}

		if prev, dup := seen[key]; dup {
			return Header{}, &FormatError{Line: lineNo, Key: key, Msg: fmt.Sprintf("duplicate key, first set on line %d", prev)}
		}
		seen[key] = lineNo

		if strings.HasPrefix(key, extraPrefix) {
			if !extraKeyRegex.MatchString(key) {
				return Header{}, &FormatError{Line: lineNo, Key: key, Msg: "extra keys must match X_[A-Z0-9_]+"}
			}
			if h.Extra == nil {
				h.Extra = make(map[string]string)
			}
			h.Extra[key] = value
			continue
		}

		field, known := lookupField(key)
		if !known {
			return Header{}, &FormatError{Line: lineNo, Key: key, Msg: "unknown key"}
		}
		if field.required && value == "" {
			return Header{}, &FormatError{Line: lineNo, Key: key, Msg: "required value is empty"}
		}
		if err := field.parse(&h, value); err != nil {
			return Header{}, &FormatError{Line: lineNo, Key: key, Msg: err.Error()}
		}
	}

	for _, field := range headerFields {
		if _, ok := seen[field.key]; field.required && !ok {
			return Header{}, &FormatError{Key: field.key, Msg: "required key is missing"}
		}
	}
	if len(h.Columns) == 0 {
		return Header{}, &FormatError{Key: KeyColumn, Msg: "at least one column must be declared"}
	}

	delim, missing := c.opts.effective(h)
	if err := checkMissingToken(missing, delim); err != nil {
		return Header{}, &FormatError{Key: KeyMissing, Msg: err.Error()}
	}
	return h, nil
}

// parseColumnSpec reads "name;type[;unit=U][;min=N][;max=N][;precision=P][;levels=a|b]".
func parseColumnSpec(v string) (ColumnSpec, error) {
	parts := strings.Split(v, ";")
	if len(parts) < 2 {
		return ColumnSpec{}, fmt.Errorf("column %q must be name;type", v)
	}
	spec := ColumnSpec{Name: parts[0]}
	if spec.Name == "" {
		return ColumnSpec{}, fmt.Errorf("column name is empty")
	}
	t, err := ParseSemanticType(parts[1])
	if err != nil {
		return ColumnSpec{}, fmt.Errorf("column %q: %v", spec.Name, err)
	}
	spec.Type = t

	seen := make(map[string]bool)
	for _, attr := range parts[2:] {
		name, val, ok := strings.Cut(attr, "=")
		if !ok {
			return ColumnSpec{}, fmt.Errorf("column %q: attribute %q must be name=value", spec.Name, attr)
		}
		if seen[name] {
			return ColumnSpec{}, fmt.Errorf("column %q: duplicate attribute %q", spec.Name, name)
		}
		seen[name] = true

		switch name {
		case "unit":
			spec.Unit = val
		case "min", "max":
			f, _, err := parseDecimal(val)
			if err != nil {
				return ColumnSpec{}, fmt.Errorf("column %q: %s %q: %v", spec.Name, name, val, err)
			}
			if name == "min" {
				spec.Min = Bound(f)
			} else {
				spec.Max = Bound(f)
			}
		case "precision":
			p, err := strconv.Atoi(val)
			if err != nil || p < 0 {
				return ColumnSpec{}, fmt.Errorf("column %q: precision %q must be a non-negative integer", spec.Name, val)
			}
			spec.Precision = p
		case "levels":
			for _, level := range strings.Split(val, "|") {
				if level == "" {
					return ColumnSpec{}, fmt.Errorf("column %q: empty level", spec.Name)
				}
				spec.Levels = append(spec.Levels, level)
			}
		default:
			return ColumnSpec{}, fmt.Errorf("column %q: unknown attribute %q", spec.Name, name)
		}
	}
	return spec, nil
}

func formatColumnSpec(s ColumnSpec) string {
	var b strings.Builder
	b.WriteString(s.Name)
	b.WriteByte(';')
	b.WriteString(s.Type.String())
	if s.Unit != "" {
		b.WriteString(";unit=" + s.Unit)
	}
	if s.Min != nil {
		b.WriteString(";min=" + strconv.FormatFloat(*s.Min, 'g', -1, 64))
	}
	if s.Max != nil {
		b.WriteString(";max=" + strconv.FormatFloat(*s.Max, 'g', -1, 64))
	}
	if s.Precision > 0 {
		b.WriteString(";precision=" + strconv.Itoa(s.Precision))
	}
	if len(s.Levels) > 0 {
		b.WriteString(";levels=" + strings.Join(s.Levels, "|"))
	}
	return b.String()
}

// WriteHeader renders h as a header block in canonical key order,
// terminator included. Empty optional fields are omitted.
func (c *Codec) WriteHeader(h Header) string {
	var b strings.Builder
	for _, field := range headerFields {
		if v := field.format(h); v != "" {
			b.WriteString(field.key + "=" + v + "\n")
		}
	}

	extra := make([]string, 0, len(h.Extra))
	for k := range h.Extra {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	for _, k := range extra {
		b.WriteString(k + "=" + h.Extra[k] + "\n")
	}

	for _, spec := range h.Columns {
		b.WriteString(KeyColumn + "=" + formatColumnSpec(spec) + "\n")
	}
	b.WriteString(HeaderTerminator + "\n")
	return b.String()
}

// headerEncodable lists header fields that would not survive a write and
// parse. Each entry is "KEY: reason".
func headerEncodable(h Header) []string {
	var problems []string
	add := func(key, format string, args ...any) {
		problems = append(problems, key+": "+fmt.Sprintf(format, args...))
	}

	for _, field := range headerFields {
		v := field.format(h)
		if field.required && v == "" {
			add(field.key, "required value is empty")
			continue
		}
		if strings.ContainsAny(v, "\r\n") {
			add(field.key, "value must be a single line")
		}
	}
	if h.Version != "" && !versionSupported(h.Version) {
		add(KeyVersion, "unsupported version %q", h.Version)
	}
	if h.SamplingInterval < 0 || math.IsNaN(h.SamplingInterval) || math.IsInf(h.SamplingInterval, 0) {
		add(KeySamplingInterval, "must be a positive finite number")
	}
	if !h.Origin.IsZero() {
		if _, err := parseInstant(formatInstant(h.Origin)); err != nil {
			add(KeyOrigin, "year out of range")
		}
	}
	for _, ch := range h.Channels {
		if ch == "" || strings.Contains(ch, ";") {
			add(KeyChannels, "channel label %q must be non-empty and free of ';'", ch)
		}
	}
	for _, s := range h.Sweeps {
		if s < 1 {
			add(KeySweeps, "trace number %d must be positive", s)
		}
	}
	if h.Delimiter != 0 && !delimiterAllowed(h.Delimiter) {
		add(KeyDelimiter, "delimiter %q must be one of %s", h.Delimiter, delimiterList())
	}
	for k, v := range h.Extra {
		if !extraKeyRegex.MatchString(k) {
			add(k, "extra keys must match X_[A-Z0-9_]+")
		}
		if strings.ContainsAny(v, "\r\n") {
			add(k, "value must be a single line")
		}
	}
	if len(h.Columns) == 0 {
		add(KeyColumn, "at least one column must be declared")
	}
	sort.Strings(problems)
	return problems
}

// InstantAt resolves a timestamp value to an absolute time. Offsets are
// added to Origin using SamplingUnit (s, ms, us or ns); they do not
// resolve when Origin is unset or the unit is unknown.
func (h Header) InstantAt(v Value) (time.Time, bool) {
	switch v.Kind() {
	case KindInstant:
		return v.ts, true
	case KindOffset:
		if h.Origin.IsZero() {
			return time.Time{}, false
		}
		scale, ok := unitScale[h.SamplingUnit]
		if !ok {
			return time.Time{}, false
		}
		return h.Origin.Add(time.Duration(math.Round(v.num * scale))), true
	default:
		return time.Time{}, false
	}
}

var unitScale = map[string]float64{
	"s":  float64(time.Second),
	"ms": float64(time.Millisecond),
	"us": float64(time.Microsecond),
	"µs": float64(time.Microsecond),
	"ns": 1,
}
