package web

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/ted/internal/service"
	"github.com/JonMunkholm/ted/internal/ted"
)

const (
	// maxListLimit caps GET /api/archive?limit=.
	maxListLimit = 1000

	// multipartOverhead is allowed on top of the file size limit for form
	// boundaries and part headers.
	multipartOverhead = 64 << 10

	contentTypeTED     = "text/plain; charset=utf-8"
	contentTypeParquet = "application/vnd.apache.parquet"
)

// upload returns the TED file carried by r: the form field "file" for
// multipart requests, the body otherwise.
func (s *Server) upload(w http.ResponseWriter, r *http.Request) (io.ReadCloser, error) {
	limit := s.cfg.Jobs.MaxFileSize

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
		if err := r.ParseMultipartForm(limit); err != nil {
			if bodyTooLarge(err) {
				return nil, fmt.Errorf("read form: %w", ted.ErrInputTooLarge)
			}
			return nil, fmt.Errorf("%w: %v", service.ErrNoInput, err)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", service.ErrNoInput, err)
		}
		return file, nil
	}

	if r.ContentLength == 0 {
		return nil, service.ErrNoInput
	}
	return http.MaxBytesReader(w, r.Body, limit), nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Version string                `json:"version"`
	Archive bool                  `json:"archive"`
	Jobs    service.LimiterStatus `json:"jobs"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, StatusResponse{
		Version: ted.CurrentVersion,
		Archive: s.service.HasArchive(),
		Jobs:    s.service.LimiterStatus(),
	})
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"current":   ted.CurrentVersion,
		"supported": ted.SupportedVersions(),
	})
}

// handleLint returns the lint report. A file with validation issues is
// still a 200; the report's valid field says whether it passed.
func (s *Server) handleLint(w http.ResponseWriter, r *http.Request) {
	body, err := s.upload(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer body.Close()

	report, err := s.service.Lint(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

// handleNormalize returns the canonical encoding of a valid file.
func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	body, err := s.upload(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer body.Close()

	var buf bytes.Buffer
	if err := s.service.Normalize(r.Context(), body, &buf); err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentTypeTED)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}

// handleExportParquet returns a valid file as Parquet.
func (s *Server) handleExportParquet(w http.ResponseWriter, r *http.Request) {
	body, err := s.upload(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer body.Close()

	var buf bytes.Buffer
	if err := s.service.ExportParquet(r.Context(), body, &buf); err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentTypeParquet)
	w.Header().Set("Content-Disposition", `attachment; filename="export.parquet"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}

// handleArchive stores a valid file. It answers 201 for new content and
// 200 when the same canonical content was archived before.
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	if !s.service.HasArchive() {
		s.fail(w, r, service.ErrNoArchive)
		return
	}
	body, err := s.upload(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer body.Close()

	res, err := s.service.Archive(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	w.Header().Set("Location", "/api/archive/"+res.Entry.ID.String())
	writeJSON(w, r, status, res)
}

func (s *Server) handleListArchive(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.Jobs.ListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, maxListLimit)
		}
	}

	entries, err := s.service.List(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"entries": entries, "limit": limit})
}

// handleFetchArchive returns archived content. The digest doubles as the
// ETag.
func (s *Server) handleFetchArchive(w http.ResponseWriter, r *http.Request) {
	id, err := service.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var buf bytes.Buffer
	entry, err := s.service.Fetch(r.Context(), id, &buf)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	etag := `"` + entry.Digest + `"`
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", contentTypeTED)
	w.Header().Set("ETag", etag)
	w.Header().Set("X-Ted-Digest", entry.Digest)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleArchiveColumns(w http.ResponseWriter, r *http.Request) {
	id, err := service.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	cols, err := s.service.Columns(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"id": id, "columns": cols})
}
