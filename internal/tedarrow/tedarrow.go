// Package tedarrow converts TED datasets to Apache Arrow tables and
// Parquet files.
//
// Each declared column becomes one nullable Arrow field; missing values
// become nulls. Semantic type and unit travel in field metadata, and the
// canonical header block is stored in the schema metadata so a Parquet
// export still names the experiment and device it came from.
//
//	numeric-real       float64
//	numeric-integer    int64
//	categorical-label  utf8
//	boolean            bool
//	timestamp          timestamp[ns, UTC] when every value resolves to an
//	                   instant, float64 offsets otherwise
package tedarrow

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/JonMunkholm/ted/internal/ted"
)

// Metadata keys.
const (
	MetaHeader = "ted.header" // schema: canonical header block
	MetaType   = "ted.type"   // field: semantic type name
	MetaUnit   = "ted.unit"   // field: physical unit
	MetaTime   = "ted.time"   // field: "instant" or "offset" for timestamp columns
)

const (
	timeInstant = "instant"
	timeOffset  = "offset"
)

var compressionCodecs = map[string]compress.Compression{
	"none":   compress.Codecs.Uncompressed,
	"snappy": compress.Codecs.Snappy,
	"gzip":   compress.Codecs.Gzip,
	"zstd":   compress.Codecs.Zstd,
}

// Compressions lists the accepted Options.Compression names.
func Compressions() []string {
	names := make([]string, 0, len(compressionCodecs))
	for name := range compressionCodecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Options configures an Exporter.
type Options struct {
	// Compression is one of Compressions(). Empty means snappy.
	Compression string

	// RowGroupSize caps rows per Parquet row group. Zero writes one group.
	RowGroupSize int64

	// Allocator backs every Arrow buffer. Nil uses the Go allocator.
	Allocator memory.Allocator
}

// Exporter builds Arrow tables and Parquet files from datasets.
// It is safe for concurrent use.
type Exporter struct {
	codec       *ted.Codec
	mem         memory.Allocator
	compression compress.Compression
	rowGroup    int64
}

// NewExporter returns an exporter that renders headers with codec.
func NewExporter(codec *ted.Codec, opts Options) (*Exporter, error) {
	name := strings.ToLower(opts.Compression)
	if name == "" {
		name = "snappy"
	}
	c, ok := compressionCodecs[name]
	if !ok {
		return nil, fmt.Errorf("unknown compression %q (use %s)", opts.Compression, strings.Join(Compressions(), ", "))
	}
	if opts.RowGroupSize < 0 {
		return nil, fmt.Errorf("row group size must be non-negative, got %d", opts.RowGroupSize)
	}
	mem := opts.Allocator
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	return &Exporter{
		codec:       codec,
		mem:         mem,
		compression: c,
		rowGroup:    opts.RowGroupSize,
	}, nil
}

// Table converts a valid dataset to an Arrow table. The caller must
// Release it.
func (e *Exporter) Table(d *ted.Dataset) (arrow.Table, error) {
	if !d.IsValid() {
		return nil, &ted.UnvalidatedDatasetError{State: d.State(), Issues: d.Issues().Count()}
	}
	h := d.Header()
	cols := d.Columns()

	fields := make([]arrow.Field, len(cols))
	chunks := make([][]arrow.Array, len(cols))
	defer func() {
		for _, c := range chunks {
			for _, a := range c {
				a.Release()
			}
		}
	}()

	for i, col := range cols {
		field, arr, err := e.buildColumn(h, h.Columns[i], col)
		if err != nil {
			return nil, err
		}
		fields[i] = field
		chunks[i] = []arrow.Array{arr}
	}

	meta := arrow.NewMetadata([]string{MetaHeader}, []string{e.codec.WriteHeader(h)})
	schema := arrow.NewSchema(fields, &meta)
	return array.NewTableFromSlice(schema, chunks), nil
}

func (e *Exporter) buildColumn(h ted.Header, spec ted.ColumnSpec, col ted.Column) (arrow.Field, arrow.Array, error) {
	keys := []string{MetaType}
	values := []string{spec.Type.String()}
	if spec.Unit != "" {
		keys = append(keys, MetaUnit)
		values = append(values, spec.Unit)
	}
	field := arrow.Field{Name: col.Name, Nullable: true}

	var arr arrow.Array
	switch spec.Type {
	case ted.TypeReal:
		field.Type = arrow.PrimitiveTypes.Float64
		arr = e.floats(col)

	case ted.TypeInteger:
		field.Type = arrow.PrimitiveTypes.Int64
		b := array.NewInt64Builder(e.mem)
		defer b.Release()
		for _, v := range col.Values {
			if n, ok := v.Int(); ok {
				b.Append(n)
			} else {
				b.AppendNull()
			}
		}
		arr = b.NewArray()

	case ted.TypeLabel:
		field.Type = arrow.BinaryTypes.String
		b := array.NewStringBuilder(e.mem)
		defer b.Release()
		for _, v := range col.Values {
			if s, ok := v.Text(); ok {
				b.Append(s)
			} else {
				b.AppendNull()
			}
		}
		arr = b.NewArray()

	case ted.TypeBool:
		field.Type = arrow.FixedWidthTypes.Boolean
		b := array.NewBooleanBuilder(e.mem)
		defer b.Release()
		for _, v := range col.Values {
			if flag, ok := v.Bool(); ok {
				b.Append(flag)
			} else {
				b.AppendNull()
			}
		}
		arr = b.NewArray()

	case ted.TypeTimestamp:
		keys = append(keys, MetaTime)
		if resolvable(h, col) {
			values = append(values, timeInstant)
			tsType := &arrow.TimestampType{Unit: arrow.Nanosecond, TimeZone: "UTC"}
			field.Type = tsType
			b := array.NewTimestampBuilder(e.mem, tsType)
			defer b.Release()
			for _, v := range col.Values {
				if t, ok := h.InstantAt(v); ok {
					b.Append(arrow.Timestamp(t.UnixNano()))
				} else {
					b.AppendNull()
				}
			}
			arr = b.NewArray()
		} else {
			values = append(values, timeOffset)
			field.Type = arrow.PrimitiveTypes.Float64
			arr = e.floats(col)
		}

	default:
		return arrow.Field{}, nil, fmt.Errorf("column %q: no arrow type for %s", col.Name, spec.Type)
	}

	field.Metadata = arrow.NewMetadata(keys, values)
	return field, arr, nil
}

func (e *Exporter) floats(col ted.Column) arrow.Array {
	b := array.NewFloat64Builder(e.mem)
	defer b.Release()
	for _, v := range col.Values {
		if f, ok := v.Float(); ok {
			b.Append(f)
		} else {
			b.AppendNull()
		}
	}
	return b.NewArray()
}

// resolvable reports whether every present value of a timestamp column
// maps to an absolute instant.
func resolvable(h ted.Header, col ted.Column) bool {
	for _, v := range col.Values {
		if v.IsMissing() {
			continue
		}
		if _, ok := h.InstantAt(v); !ok {
			return false
		}
	}
	return true
}

// WriteParquet writes a valid dataset to w as a Parquet file.
func (e *Exporter) WriteParquet(ctx context.Context, d *ted.Dataset, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tbl, err := e.Table(d)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer tbl.Release()

	props := parquet.NewWriterProperties(
		parquet.WithCompression(e.compression),
		parquet.WithAllocator(e.mem),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(tbl.Schema(), w, props, arrowProps)
	if err != nil {
		return fmt.Errorf("export: create parquet writer: %w", err)
	}

	chunk := e.rowGroup
	if chunk == 0 {
		chunk = max(tbl.NumRows(), 1)
	}
	if err := writer.WriteTable(tbl, chunk); err != nil {
		writer.Close()
		return fmt.Errorf("export: write table: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("export: close parquet writer: %w", err)
	}
	return nil
}

// FieldInfo describes one column of a Parquet export.
type FieldInfo struct {
	Name      string `json:"name"`
	ArrowType string `json:"arrow_type"`
	Type      string `json:"type,omitempty"`
	Unit      string `json:"unit,omitempty"`
	Time      string `json:"time,omitempty"`
}

// Info summarizes a Parquet file read back from an export.
type Info struct {
	Rows   int64       `json:"rows"`
	Fields []FieldInfo `json:"fields"`

	// Header is parsed from the schema metadata; HasHeader is false for
	// files that were not written by an Exporter.
	Header    ted.Header `json:"-"`
	HasHeader bool       `json:"has_header"`
}

// ReadParquet reads a Parquet file and reports its shape and TED metadata.
func (e *Exporter) ReadParquet(ctx context.Context, r parquet.ReaderAtSeeker) (Info, error) {
	pf, err := file.NewParquetReader(r, file.WithReadProps(parquet.NewReaderProperties(e.mem)))
	if err != nil {
		return Info{}, fmt.Errorf("open parquet: %w", err)
	}
	defer pf.Close()

	reader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, e.mem)
	if err != nil {
		return Info{}, fmt.Errorf("create arrow reader: %w", err)
	}
	tbl, err := reader.ReadTable(ctx)
	if err != nil {
		return Info{}, fmt.Errorf("read parquet data: %w", err)
	}
	defer tbl.Release()

	schema := tbl.Schema()
	info := Info{Rows: tbl.NumRows()}
	for _, f := range schema.Fields() {
		info.Fields = append(info.Fields, FieldInfo{
			Name:      f.Name,
			ArrowType: f.Type.String(),
			Type:      metaValue(f.Metadata, MetaType),
			Unit:      metaValue(f.Metadata, MetaUnit),
			Time:      metaValue(f.Metadata, MetaTime),
		})
	}

	if raw := metaValue(schema.Metadata(), MetaHeader); raw != "" {
		h, err := e.codec.ParseHeader(raw)
		if err != nil {
			return Info{}, fmt.Errorf("parquet header metadata: %w", err)
		}
		info.Header, info.HasHeader = h, true
	}
	return info, nil
}

func metaValue(md arrow.Metadata, key string) string {
	if i := md.FindKey(key); i >= 0 {
		return md.Values()[i]
	}
	return ""
}
