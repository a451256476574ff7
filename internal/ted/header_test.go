package ted

import (
	"strings"
	"testing"
	"time"
)

func testCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(DefaultOptions())
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	return c
}

func TestHeader_ParseWriteRoundTrip(t *testing.T) {
	c := testCodec(t)
	headers := []struct {
		name string
		h    Header
	}{
		{
			name: "minimal",
			h:    NewHeader("EXP-1", "rig-1", 0.0001, ColumnSpec{Name: "t", Type: TypeTimestamp}),
		},
		{
			name: "every field",
			h: Header{
				Version:           "2022.03.rc1",
				StudyID:           "S1",
				ExperimentID:      "EXP-2",
				ReportTitle:       "title with = sign",
				ReportVersion:     "3",
				ReportDate:        "2022-03-15",
				ReportDescription: "  leading spaces kept",
				DeviceID:          "D",
				DeviceCode:        "C",
				DeviceModel:       "M",
				DeviceSoftware:    "SW 1.0",
				SamplingInterval:  2.5e-5,
				SamplingUnit:      "ms",
				Origin:            time.Date(2021, 12, 31, 23, 59, 59, 0, time.FixedZone("CET", 3600)),
				Channels:          []string{"Vm", "Im", "Temp"},
				Sweeps:            []int{7, 1, 2, 3, 9},
				Delimiter:         '|',
				Missing:           "nan?",
				Extra:             map[string]string{"X_Z": "last", "X_A": "first", "X_EMPTY": ""},
				Columns: []ColumnSpec{
					{Name: "t_ms", Type: TypeTimestamp, Unit: "ms", Min: Bound(0)},
					{Name: "i", Type: TypeReal, Unit: "pA", Min: Bound(-1e4), Max: Bound(1e4), Precision: 3},
					{Name: "n", Type: TypeInteger, Max: Bound(100)},
					{Name: "group", Type: TypeLabel, Levels: []string{"a", "b c"}},
					{Name: "ok", Type: TypeBool},
				},
			},
		},
	}

	for _, tt := range headers {
		t.Run(tt.name, func(t *testing.T) {
			raw := c.WriteHeader(tt.h)
			got, err := c.ParseHeader(raw)
			if err != nil {
				t.Fatalf("ParseHeader(WriteHeader(h)) error = %v\n%s", err, raw)
			}
			if !got.Equal(tt.h) {
				t.Errorf("ParseHeader(WriteHeader(h)) = %+v, want %+v", got, tt.h)
			}
			if again := c.WriteHeader(got); again != raw {
				t.Errorf("WriteHeader not stable:\n%s\nvs\n%s", again, raw)
			}
		})
	}
}

func TestWriteHeader_CanonicalOrder(t *testing.T) {
	c := testCodec(t)
	h := Header{
		Version:          CurrentVersion,
		ExperimentID:     "E",
		DeviceID:         "D",
		DeviceModel:      "M",
		SamplingInterval: 0.5,
		Sweeps:           []int{1, 2, 3, 5},
		Delimiter:        '\t',
		Extra:            map[string]string{"X_B": "2", "X_A": "1"},
		Columns:          []ColumnSpec{{Name: "a", Type: TypeReal, Unit: "mV", Precision: 2}},
	}

	want := strings.Join([]string{
		"TED_VERSION=2022.03",
		"EXPID=E",
		"DEVICE_ID=D",
		"DEVICE_MODEL=M",
		"SAMPLING_INTERVAL=0.5",
		"SWEEPS=1-3;5",
		`DELIMITER=\t`,
		"X_A=1",
		"X_B=2",
		"COLUMN=a;numeric-real;unit=mV;precision=2",
		"END_HEADER",
	}, "\n") + "\n"

	if got := c.WriteHeader(h); got != want {
		t.Errorf("WriteHeader() =\n%s\nwant\n%s", got, want)
	}
}

func TestParseHeader_SkipsCommentsAndBlankLines(t *testing.T) {
	c := testCodec(t)
	raw := "# exported by rig software\n\nTED_VERSION=2022.03\r\nEXPID=E\nDEVICE_ID=D\n\nSAMPLING_INTERVAL=1\nCOLUMN=v;numeric-real\nEND_HEADER\n\n"

	h, err := c.ParseHeader(raw)
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	if h.Version != "2022.03" {
		t.Errorf("Version = %q, want %q", h.Version, "2022.03")
	}
	if len(h.Columns) != 1 || h.Columns[0].Name != "v" {
		t.Errorf("Columns = %+v, want one column v", h.Columns)
	}
}

func TestParseHeader_ContentAfterTerminator(t *testing.T) {
	c := testCodec(t)
	raw := "TED_VERSION=2022.03\nEXPID=E\nDEVICE_ID=D\nSAMPLING_INTERVAL=1\nCOLUMN=v;numeric-real\nEND_HEADER\n1.0\n"

	_, err := c.ParseHeader(raw)
	fe, ok := err.(*FormatError)
	if !ok {
		t.Fatalf("ParseHeader() error = %v, want *FormatError", err)
	}
	if fe.Line != 7 {
		t.Errorf("FormatError.Line = %d, want 7", fe.Line)
	}
}

func TestParseColumnSpec(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ColumnSpec
		wantErr bool
	}{
		{
			name:  "name and type",
			input: "time;timestamp",
			want:  ColumnSpec{Name: "time", Type: TypeTimestamp},
		},
		{
			name:  "all attributes",
			input: "i;numeric-real;unit=pA;min=-5;max=5.5;precision=2",
			want:  ColumnSpec{Name: "i", Type: TypeReal, Unit: "pA", Min: Bound(-5), Max: Bound(5.5), Precision: 2},
		},
		{
			name:  "levels",
			input: "drug;categorical-label;levels=vehicle|E-4031",
			want:  ColumnSpec{Name: "drug", Type: TypeLabel, Levels: []string{"vehicle", "E-4031"}},
		},
		{name: "missing type", input: "time", wantErr: true},
		{name: "empty name", input: ";timestamp", wantErr: true},
		{name: "unknown type", input: "x;float", wantErr: true},
		{name: "attribute without value", input: "x;numeric-real;unit", wantErr: true},
		{name: "unknown attribute", input: "x;numeric-real;scale=2", wantErr: true},
		{name: "duplicate attribute", input: "x;numeric-real;unit=a;unit=b", wantErr: true},
		{name: "non-numeric bound", input: "x;numeric-real;min=low", wantErr: true},
		{name: "negative precision", input: "x;numeric-real;precision=-1", wantErr: true},
		{name: "empty level", input: "x;categorical-label;levels=a||b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseColumnSpec(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseColumnSpec(%q) = %+v, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseColumnSpec(%q) error = %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseColumnSpec(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
			if back := formatColumnSpec(got); back != tt.input {
				t.Errorf("formatColumnSpec() = %q, want %q", back, tt.input)
			}
		})
	}
}

func TestHeader_InstantAt(t *testing.T) {
	origin := time.Date(2022, 3, 1, 12, 0, 0, 0, time.UTC)
	h := Header{Origin: origin, SamplingUnit: "ms"}

	got, ok := h.InstantAt(Offset(1.5))
	if !ok {
		t.Fatal("InstantAt(offset) not resolved")
	}
	if want := origin.Add(1500 * time.Microsecond); !got.Equal(want) {
		t.Errorf("InstantAt(1.5ms) = %v, want %v", got, want)
	}

	if _, ok := (Header{SamplingUnit: "ms"}).InstantAt(Offset(1)); ok {
		t.Error("InstantAt without origin should not resolve")
	}
	if _, ok := (Header{Origin: origin, SamplingUnit: "sweeps"}).InstantAt(Offset(1)); ok {
		t.Error("InstantAt with unknown unit should not resolve")
	}
	if got, ok := h.InstantAt(Instant(origin)); !ok || !got.Equal(origin) {
		t.Errorf("InstantAt(instant) = %v, %v", got, ok)
	}
}
