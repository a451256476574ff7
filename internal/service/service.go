// Package service implements the TED operations exposed by the HTTP API,
// the inbox watcher and the command-line linter.
//
// Every operation decodes one file under a JobLimiter slot. Fatal decode
// errors (*ted.FormatError, *ted.RowShapeError, *ted.TypeCoercionError)
// are returned as errors; semantic issues are reported in a Report. This
// package has no HTTP dependencies.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/JonMunkholm/ted/internal/logging"
	"github.com/JonMunkholm/ted/internal/metrics"
	"github.com/JonMunkholm/ted/internal/store"
	"github.com/JonMunkholm/ted/internal/ted"
)

var (
	// ErrNoInput is returned when a request carries no file.
	ErrNoInput = errors.New("no file provided")

	// ErrNoArchive is returned by archive operations when no store is configured.
	ErrNoArchive = errors.New("archive is not configured")

	// ErrBadID is returned for archive ids that are not UUIDs.
	ErrBadID = errors.New("invalid archive id")
)

// Archive is the persistence used by Archive, Fetch and List.
// *store.Store satisfies it.
type Archive interface {
	Archive(ctx context.Context, rec store.Record) (store.Entry, bool, error)
	Fetch(ctx context.Context, id uuid.UUID) (store.Entry, []byte, error)
	List(ctx context.Context, limit int) ([]store.Entry, error)
	Columns(ctx context.Context, id uuid.UUID) ([]store.ColumnRecord, error)
}

// Exporter writes datasets in a columnar format. *tedarrow.Exporter
// satisfies it.
type Exporter interface {
	WriteParquet(ctx context.Context, d *ted.Dataset, w io.Writer) error
}

// Service runs TED operations. The archive and exporter are optional; the
// operations that need them fail with ErrNoArchive or an export error.
type Service struct {
	codec    *ted.Codec
	archive  Archive
	exporter Exporter
	limiter  *JobLimiter
}

// Option configures a Service.
type Option func(*Service)

// WithArchive enables Archive, Fetch and List.
func WithArchive(a Archive) Option {
	return func(s *Service) { s.archive = a }
}

// WithExporter enables ExportParquet.
func WithExporter(e Exporter) Option {
	return func(s *Service) { s.exporter = e }
}

// WithLimiter replaces the default job limiter.
func WithLimiter(l *JobLimiter) Option {
	return func(s *Service) { s.limiter = l }
}

// New creates a service decoding with codec.
func New(codec *ted.Codec, opts ...Option) *Service {
	s := &Service{codec: codec}
	for _, opt := range opts {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = NewJobLimiter(0, 0)
	}
	return s
}

// Codec returns the codec the service decodes with.
func (s *Service) Codec() *ted.Codec { return s.codec }

// HasArchive reports whether archive operations are available.
func (s *Service) HasArchive() bool { return s.archive != nil }

// Report is the result of linting one file.
type Report struct {
	Valid        bool                 `json:"valid"`
	State        string               `json:"state"`
	Version      string               `json:"version"`
	ExperimentID string               `json:"experiment_id"`
	DeviceID     string               `json:"device_id"`
	Rows         int                  `json:"rows"`
	Columns      int                  `json:"columns"`
	IssueCount   int                  `json:"issue_count"`
	Issues       ted.ValidationResult `json:"issues"`
	Summary      []ted.ColumnSummary  `json:"summary"`
	Digest       string               `json:"digest,omitempty"`
}

func newReport(d *ted.Dataset) Report {
	h := d.Header()
	issues := d.Issues()
	r := Report{
		Valid:        d.IsValid(),
		State:        d.State().String(),
		Version:      h.Version,
		ExperimentID: h.ExperimentID,
		DeviceID:     h.DeviceID,
		Rows:         d.RowCount(),
		Columns:      len(h.Columns),
		IssueCount:   issues.Count(),
		Issues:       issues,
		Summary:      d.Summarize(),
	}
	if r.Valid {
		if digest, err := d.Digest(); err == nil {
			r.Digest = digest
		}
	}
	return r
}

// load decodes r under a job slot, records the outcome for op and runs
// fn on the dataset.
func (s *Service) load(ctx context.Context, op string, r io.Reader, fn func(*ted.Dataset) error) error {
	if r == nil {
		return ErrNoInput
	}
	return s.limiter.Do(ctx, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		d, err := s.codec.Load(r)
		if err != nil {
			metrics.RecordFile(op, metrics.OutcomeRejected)
			return err
		}
		recordDataset(op, d)
		return fn(d)
	})
}

func recordDataset(op string, d *ted.Dataset) {
	if d.IsValid() {
		metrics.RecordFile(op, metrics.OutcomeValid)
		return
	}
	metrics.RecordFile(op, metrics.OutcomeInvalid)
	for code, issues := range d.Issues() {
		metrics.RecordIssues(string(code), len(issues))
	}
}

// Lint decodes r and reports its validation issues and column summary.
// Fatal decode errors are returned as errors.
func (s *Service) Lint(ctx context.Context, r io.Reader) (Report, error) {
	var report Report
	err := s.load(ctx, "lint", r, func(d *ted.Dataset) error {
		report = newReport(d)
		return nil
	})
	if err != nil {
		return Report{}, err
	}

	logging.FromContext(ctx).Debug("linted file",
		slog.String("experiment_id", report.ExperimentID),
		slog.Bool("valid", report.Valid),
		slog.Int("issues", report.IssueCount),
	)
	return report, nil
}

// LintFile lints the file at path.
func (s *Service) LintFile(ctx context.Context, path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("lint: %w", err)
	}
	defer f.Close()
	return s.Lint(ctx, f)
}

// Normalize decodes r and writes its canonical encoding to w. Invalid
// input fails with *ted.UnvalidatedDatasetError and nothing is written.
func (s *Service) Normalize(ctx context.Context, r io.Reader, w io.Writer) error {
	return s.load(ctx, "normalize", r, func(d *ted.Dataset) error {
		return s.codec.Save(d, w)
	})
}

// ExportParquet decodes r and writes it to w as Parquet.
func (s *Service) ExportParquet(ctx context.Context, r io.Reader, w io.Writer) error {
	if s.exporter == nil {
		return errors.New("parquet export is not configured")
	}
	return s.load(ctx, "export_parquet", r, func(d *ted.Dataset) error {
		if !d.IsValid() {
			return &ted.UnvalidatedDatasetError{State: d.State(), Issues: d.Issues().Count()}
		}
		return s.exporter.WriteParquet(ctx, d, w)
	})
}

// ArchiveResult describes the outcome of Archive.
type ArchiveResult struct {
	Entry   store.Entry `json:"entry"`
	Created bool        `json:"created"`
}

// Archive decodes r and stores its canonical encoding. Content already in
// the archive is not stored twice; Created is false and Entry is the
// existing entry.
func (s *Service) Archive(ctx context.Context, r io.Reader) (ArchiveResult, error) {
	if s.archive == nil {
		return ArchiveResult{}, ErrNoArchive
	}

	var res ArchiveResult
	err := s.load(ctx, "archive", r, func(d *ted.Dataset) error {
		content, err := s.codec.Encode(d)
		if err != nil {
			return err
		}
		digest, err := s.codec.Digest(d)
		if err != nil {
			return err
		}

		h := d.Header()
		cols := make([]store.ColumnRecord, len(h.Columns))
		for i, spec := range h.Columns {
			cols[i] = store.ColumnRecord{Position: i, Name: spec.Name, Type: spec.Type.String(), Unit: spec.Unit}
		}

		entry, created, err := s.archive.Archive(ctx, store.Record{
			Digest:       digest,
			Version:      h.Version,
			ExperimentID: h.ExperimentID,
			DeviceID:     h.DeviceID,
			Rows:         d.RowCount(),
			Columns:      cols,
			Content:      content,
		})
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		res = ArchiveResult{Entry: entry, Created: created}
		return nil
	})
	if err != nil {
		return ArchiveResult{}, err
	}

	logging.FromContext(ctx).Info("archived file",
		slog.String("id", res.Entry.ID.String()),
		slog.String("digest", res.Entry.Digest),
		slog.Bool("created", res.Created),
	)
	return res, nil
}

// ArchiveFile archives the file at path.
func (s *Service) ArchiveFile(ctx context.Context, path string) (ArchiveResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("archive: %w", err)
	}
	defer f.Close()
	return s.Archive(ctx, f)
}

// ProcessFile lints the file at path and logs the outcome. When archive
// is set a valid file is archived as well. Invalid files are not an
// error.
func (s *Service) ProcessFile(ctx context.Context, path string, archive bool) error {
	report, err := s.LintFile(ctx, path)
	if err != nil {
		return err
	}

	logger := logging.FromContext(ctx)
	if !report.Valid {
		logger.Warn("file has validation issues",
			slog.Int("issues", report.IssueCount),
			slog.Any("codes", report.Issues.Codes()),
		)
		return nil
	}
	logger.Info("file is valid",
		slog.String("experiment_id", report.ExperimentID),
		slog.Int("rows", report.Rows),
	)

	if !archive {
		return nil
	}
	_, err = s.ArchiveFile(ctx, path)
	return err
}

// ParseID parses an archive id.
func ParseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrBadID, raw)
	}
	return id, nil
}

// Fetch writes the archived content of id to w.
func (s *Service) Fetch(ctx context.Context, id uuid.UUID, w io.Writer) (store.Entry, error) {
	if s.archive == nil {
		return store.Entry{}, ErrNoArchive
	}
	entry, content, err := s.archive.Fetch(ctx, id)
	if err != nil {
		return store.Entry{}, err
	}
	if _, err := w.Write(content); err != nil {
		return store.Entry{}, fmt.Errorf("fetch: %w", err)
	}
	return entry, nil
}

// List returns the newest archive entries.
func (s *Service) List(ctx context.Context, limit int) ([]store.Entry, error) {
	if s.archive == nil {
		return nil, ErrNoArchive
	}
	return s.archive.List(ctx, limit)
}

// Columns returns the archived column declarations of id.
func (s *Service) Columns(ctx context.Context, id uuid.UUID) ([]store.ColumnRecord, error) {
	if s.archive == nil {
		return nil, ErrNoArchive
	}
	return s.archive.Columns(ctx, id)
}

// LimiterStatus returns the job limiter's state.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForJobs blocks until in-flight jobs finish or ctx ends.
func (s *Service) WaitForJobs(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
