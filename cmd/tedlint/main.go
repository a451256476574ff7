// Command tedlint checks TED files and optionally rewrites them in
// canonical form or exports them to Parquet.
//
// Usage:
//
//	tedlint [flags] file.ted...
//
// The exit status is 0 when every file is valid, 1 when any file is
// invalid or cannot be read, and 2 for usage errors.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/ted/internal/config"
	"github.com/JonMunkholm/ted/internal/logging"
	"github.com/JonMunkholm/ted/internal/service"
	"github.com/JonMunkholm/ted/internal/ted"
	"github.com/JonMunkholm/ted/internal/tedarrow"
)

const (
	exitOK      = 0
	exitInvalid = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "tedlint: %v\n", err)
		return exitUsage
	}

	fs := flag.NewFlagSet("tedlint", flag.ContinueOnError)
	fs.SetOutput(stderr)
	delimiter := fs.String("delimiter", cfg.Format.Delimiter, "column delimiter; use \\t for tab")
	missing := fs.String("missing", cfg.Format.Missing, "token for a missing value")
	normalize := fs.Bool("normalize", false, "write the canonical form of a single valid file to stdout")
	parquetOut := fs.String("parquet", "", "export a single valid file to this Parquet path")
	compression := fs.String("compression", cfg.Export.Compression, "parquet compression: "+strings.Join(tedarrow.Compressions(), ", "))
	asJSON := fs.Bool("json", false, "print one JSON report per file")
	logLevel := fs.String("log-level", "warn", "log level: debug, info, warn, error")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: tedlint [flags] file.ted...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	files := fs.Args()
	if len(files) == 0 {
		fs.Usage()
		return exitUsage
	}
	if (*normalize || *parquetOut != "") && len(files) != 1 {
		fmt.Fprintln(stderr, "tedlint: -normalize and -parquet take exactly one file")
		return exitUsage
	}
	if *normalize && *parquetOut != "" {
		fmt.Fprintln(stderr, "tedlint: -normalize and -parquet cannot be combined")
		return exitUsage
	}

	logger := logging.New(stderr, *logLevel, "text")
	ctx = logging.NewContext(ctx, logger)

	cfg.Format.Delimiter = *delimiter
	cfg.Format.Missing = *missing
	opts, err := cfg.TedOptions()
	if err != nil {
		fmt.Fprintf(stderr, "tedlint: %v\n", err)
		return exitUsage
	}
	codec, err := ted.NewCodec(opts)
	if err != nil {
		fmt.Fprintf(stderr, "tedlint: %v\n", err)
		return exitUsage
	}
	exporter, err := tedarrow.NewExporter(codec, tedarrow.Options{
		Compression:  *compression,
		RowGroupSize: cfg.Export.RowGroupSize,
	})
	if err != nil {
		fmt.Fprintf(stderr, "tedlint: %v\n", err)
		return exitUsage
	}
	svc := service.New(codec, service.WithExporter(exporter))

	switch {
	case *normalize:
		return convert(ctx, files[0], stdout, stderr, svc.Normalize)
	case *parquetOut != "":
		return exportParquet(ctx, svc, files[0], *parquetOut, stderr)
	}

	status := exitOK
	enc := json.NewEncoder(stdout)
	for _, path := range files {
		report, err := svc.LintFile(ctx, path)
		if err != nil {
			fmt.Fprintf(stderr, "%s: %s\n", path, service.FormatUserError(err))
			status = exitInvalid
			continue
		}
		if !report.Valid {
			status = exitInvalid
		}

		if *asJSON {
			if err := enc.Encode(fileReport{Path: path, Report: report}); err != nil {
				fmt.Fprintf(stderr, "tedlint: %v\n", err)
				return exitInvalid
			}
			continue
		}
		printReport(stdout, path, report)
	}
	return status
}

type fileReport struct {
	Path string `json:"path"`
	service.Report
}

func printReport(w io.Writer, path string, r service.Report) {
	if r.Valid {
		fmt.Fprintf(w, "%s: ok (%s, %d rows, %d columns)\n", path, r.ExperimentID, r.Rows, r.Columns)
		return
	}
	fmt.Fprintf(w, "%s: %d issue(s)\n", path, r.IssueCount)
	for _, code := range r.Issues.Codes() {
		for _, issue := range r.Issues[code] {
			fmt.Fprintf(w, "  %s: %s\n", code, issue)
		}
	}
}

func convert(ctx context.Context, path string, stdout, stderr io.Writer, fn func(context.Context, io.Reader, io.Writer) error) int {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(stderr, "tedlint: %v\n", err)
		return exitInvalid
	}
	defer f.Close()

	if err := fn(ctx, f, stdout); err != nil {
		fmt.Fprintf(stderr, "%s: %s\n", path, service.FormatUserError(err))
		return exitInvalid
	}
	return exitOK
}

// exportParquet writes to a temporary file and renames it, so a failed
// export leaves no partial output.
func exportParquet(ctx context.Context, svc *service.Service, path, out string, stderr io.Writer) int {
	tmp, err := os.CreateTemp(filepath.Dir(out), ".tedlint-*.parquet")
	if err != nil {
		fmt.Fprintf(stderr, "tedlint: %v\n", err)
		return exitInvalid
	}
	defer os.Remove(tmp.Name())

	status := convert(ctx, path, tmp, stderr, svc.ExportParquet)
	if cerr := tmp.Close(); cerr != nil && status == exitOK {
		fmt.Fprintf(stderr, "tedlint: %v\n", cerr)
		return exitInvalid
	}
	if status != exitOK {
		return status
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		fmt.Fprintf(stderr, "tedlint: %v\n", err)
		return exitInvalid
	}
	return exitOK
}
