package ted

// input.go prepares raw bytes for parsing.
//
//   - BOMSkippingReader drops the UTF-8 byte order mark written by
//     Windows tools.
//   - sizeLimitReader fails with ErrInputTooLarge instead of truncating.
//
// Invalid UTF-8 is rejected with a FormatError naming the line rather
// than replaced, so no byte of a recording changes silently.

import (
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// BOMSkippingReader wraps an io.Reader and skips a leading UTF-8 BOM.
type BOMSkippingReader struct {
	reader  io.Reader
	checked bool
	pending []byte
}

// NewBOMSkippingReader creates a new BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{reader: r}
}

// Read implements io.Reader. The first call looks at up to three bytes and
// keeps them unless they are the BOM.
func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true
		buf := make([]byte, len(utf8BOM))
		n, err := io.ReadFull(r.reader, buf)
		switch {
		case err == io.ErrUnexpectedEOF || err == io.EOF:
			err = nil
		case err != nil:
			return 0, err
		}
		if n == len(utf8BOM) && bytes.Equal(buf, utf8BOM) {
			buf = buf[:0]
		}
		r.pending = buf[:min(n, len(buf))]
	}

	if len(r.pending) > 0 {
		n := copy(p, r.pending)
		r.pending = r.pending[n:]
		return n, nil
	}
	return r.reader.Read(p)
}

// sizeLimitReader reads at most limit bytes and reports ErrInputTooLarge
// if the source holds more.
type sizeLimitReader struct {
	reader io.Reader
	limit  int64
	read   int64
}

func (r *sizeLimitReader) Read(p []byte) (int, error) {
	if r.read > r.limit {
		return 0, ErrInputTooLarge
	}
	if remaining := r.limit + 1 - r.read; int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := r.reader.Read(p)
	r.read += int64(n)
	if r.read > r.limit {
		return n, ErrInputTooLarge
	}
	return n, err
}

// readInput reads all of r, skipping a BOM and honouring maxBytes.
func readInput(r io.Reader, maxBytes int64) ([]byte, error) {
	r = NewBOMSkippingReader(r)
	if maxBytes > 0 {
		r = &sizeLimitReader{reader: r, limit: maxBytes}
	}
	return io.ReadAll(r)
}

// checkUTF8 returns a FormatError for the first line holding invalid UTF-8.
func checkUTF8(data []byte) error {
	if utf8.Valid(data) {
		return nil
	}
	for i, line := range bytes.Split(data, []byte("\n")) {
		if !utf8.Valid(line) {
			return &FormatError{Line: i + 1, Msg: "invalid UTF-8"}
		}
	}
	return &FormatError{Msg: "invalid UTF-8"}
}
