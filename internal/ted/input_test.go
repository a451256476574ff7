package ted

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestBOMSkippingReader(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "file with BOM",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, []byte("TED_VERSION=2022.03")...),
			expected: "TED_VERSION=2022.03",
		},
		{
			name:     "file without BOM",
			input:    []byte("TED_VERSION=2022.03"),
			expected: "TED_VERSION=2022.03",
		},
		{
			name:     "empty file",
			input:    []byte{},
			expected: "",
		},
		{
			name:     "only BOM",
			input:    []byte{0xEF, 0xBB, 0xBF},
			expected: "",
		},
		{
			name:     "partial BOM at start",
			input:    []byte{0xEF, 0xBB, 'a', 'b', 'c'},
			expected: string([]byte{0xEF, 0xBB, 'a', 'b', 'c'}),
		},
		{
			name:     "shorter than BOM",
			input:    []byte("ab"),
			expected: "ab",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := NewBOMSkippingReader(bytes.NewReader(tt.input))
			result, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

func TestReadInput_SizeLimit(t *testing.T) {
	input := strings.Repeat("x", 100)

	data, err := readInput(strings.NewReader(input), 100)
	if err != nil {
		t.Fatalf("readInput at limit: %v", err)
	}
	if len(data) != 100 {
		t.Errorf("read %d bytes, want 100", len(data))
	}

	_, err = readInput(strings.NewReader(input), 99)
	if !errors.Is(err, ErrInputTooLarge) {
		t.Errorf("readInput over limit error = %v, want ErrInputTooLarge", err)
	}

	if _, err := readInput(strings.NewReader(input), 0); err != nil {
		t.Errorf("readInput without limit: %v", err)
	}
}

func TestCheckUTF8(t *testing.T) {
	if err := checkUTF8([]byte("a\nb\n")); err != nil {
		t.Errorf("checkUTF8(valid) = %v", err)
	}

	err := checkUTF8([]byte("a\nb\nc\xff\n"))
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("checkUTF8(invalid) = %v, want *FormatError", err)
	}
	if fe.Line != 3 {
		t.Errorf("Line = %d, want 3", fe.Line)
	}
}
