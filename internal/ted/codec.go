package ted

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Codec reads and writes TED files with a fixed set of options.
// A Codec is immutable and safe for concurrent use.
type Codec struct {
	opts Options
}

// NewCodec returns a codec for opts.
func NewCodec(opts Options) (*Codec, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Codec{opts: opts}, nil
}

// Options returns the codec's options.
func (c *Codec) Options() Options { return c.opts }

// Load reads a TED file from r. Unreadable or malformed input fails with
// a FormatError, RowShapeError or TypeCoercionError and no dataset.
// Semantic problems do not fail: the dataset comes back in StateInvalid
// with its issues attached.
func (c *Codec) Load(r io.Reader) (*Dataset, error) {
	data, err := readInput(r, c.opts.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	return c.Decode(data)
}

// Decode is Load over bytes already in memory.
func (c *Codec) Decode(data []byte) (*Dataset, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if err := checkUTF8(data); err != nil {
		return nil, err
	}

	headerLines, rows, bodyLine, err := splitBlocks(string(data))
	if err != nil {
		return nil, err
	}
	h, err := c.parseHeaderLines(headerLines, 1)
	if err != nil {
		return nil, err
	}
	cols, err := c.parseBody(rows, h, bodyLine)
	if err != nil {
		return nil, err
	}

	d := newDataset(h, cols, c.opts)
	d.Validate()
	return d, nil
}

// splitBlocks separates header lines from body rows at the first
// END_HEADER line. bodyLine is the file line of the first row.
func splitBlocks(text string) (header []string, rows []string, bodyLine int, err error) {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.TrimSuffix(line, "\r") != HeaderTerminator {
			continue
		}
		rows = lines[i+1:]
		if n := len(rows); n > 0 && rows[n-1] == "" {
			rows = rows[:n-1]
		}
		return lines[:i], rows, i + 2, nil
	}
	return nil, nil, 0, &FormatError{Msg: "missing " + HeaderTerminator + " line"}
}

// LoadFile opens path and loads it. The file is closed on every path.
func (c *Codec) LoadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	defer f.Close()

	d, err := c.Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Encode renders a valid dataset to its canonical bytes.
func (c *Codec) Encode(d *Dataset) ([]byte, error) {
	if d.state != StateValid {
		return nil, &UnvalidatedDatasetError{State: d.state, Issues: d.issues.Count()}
	}
	// Options that differ from the ones the dataset was validated with can
	// make a valid dataset unencodable, e.g. a label equal to another token.
	if d.opts != c.opts {
		if res := c.Validate(d.header, d.columns); !res.Empty() {
			return nil, &UnvalidatedDatasetError{State: StateInvalid, Issues: res.Count()}
		}
	}

	rows, err := c.WriteBody(d.columns, d.header)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(c.WriteHeader(d.header))
	for _, row := range rows {
		buf.WriteString(row)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// Save writes a valid dataset to w. A dataset that is not valid fails with
// UnvalidatedDatasetError before anything is written. Output is rendered
// in full before the single write.
func (c *Codec) Save(d *Dataset, w io.Writer) error {
	data, err := c.Encode(d)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

// SaveFile writes a valid dataset to path through a temporary file in the
// same directory, so an existing file is replaced whole or not at all.
func (c *Codec) SaveFile(d *Dataset, path string) (err error) {
	data, err := c.Encode(d)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

// Digest returns the hex SHA-256 of the dataset's canonical encoding.
func (c *Codec) Digest(d *Dataset) (string, error) {
	data, err := c.Encode(d)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Digest returns the hex SHA-256 of the dataset's canonical encoding under
// the options it was loaded or created with.
func (d *Dataset) Digest() (string, error) {
	return (&Codec{opts: d.opts}).Digest(d)
}

func defaultCodec() *Codec {
	return &Codec{opts: DefaultOptions()}
}

// Load reads a TED file from r with the default options.
func Load(r io.Reader) (*Dataset, error) { return defaultCodec().Load(r) }

// LoadFile loads path with the default options.
func LoadFile(path string) (*Dataset, error) { return defaultCodec().LoadFile(path) }

// Save writes d to w with the default options.
func Save(d *Dataset, w io.Writer) error { return defaultCodec().Save(d, w) }

// SaveFile writes d to path with the default options.
func SaveFile(d *Dataset, path string) error { return defaultCodec().SaveFile(d, path) }
