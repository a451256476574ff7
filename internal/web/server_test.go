package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/ted/internal/config"
	"github.com/JonMunkholm/ted/internal/service"
	"github.com/JonMunkholm/ted/internal/store"
	"github.com/JonMunkholm/ted/internal/ted"
	"github.com/JonMunkholm/ted/internal/tedarrow"
)

const validFile = `TED_VERSION=2022.03
EXPID=EXP-001
DEVICE_ID=rig-3
SAMPLING_INTERVAL=0.001
SAMPLING_UNIT=s
COLUMN=time;timestamp;unit=s
COLUMN=current;numeric-real;unit=pA
END_HEADER
0.000,12.5
0.001,NA
0.002,13.1
`

const duplicateFile = `TED_VERSION=2022.03
EXPID=EXP-001
DEVICE_ID=rig-3
SAMPLING_INTERVAL=0.001
COLUMN=v;numeric-real
COLUMN=v;numeric-real
END_HEADER
1.0,2.0
`

// memArchive is an in-memory service.Archive.
type memArchive struct {
	mu      sync.Mutex
	entries []store.Entry
	content map[uuid.UUID][]byte
	columns map[uuid.UUID][]store.ColumnRecord
}

func newMemArchive() *memArchive {
	return &memArchive{
		content: make(map[uuid.UUID][]byte),
		columns: make(map[uuid.UUID][]store.ColumnRecord),
	}
}

func (m *memArchive) Archive(ctx context.Context, rec store.Record) (store.Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.Digest == rec.Digest {
			return e, false, nil
		}
	}
	e := store.Entry{
		ID:           uuid.New(),
		Digest:       rec.Digest,
		Version:      rec.Version,
		ExperimentID: rec.ExperimentID,
		DeviceID:     rec.DeviceID,
		Rows:         rec.Rows,
		Columns:      len(rec.Columns),
		Size:         len(rec.Content),
		CreatedAt:    time.Now(),
	}
	m.entries = append(m.entries, e)
	m.content[e.ID] = rec.Content
	m.columns[e.ID] = rec.Columns
	return e, true, nil
}

func (m *memArchive) Fetch(ctx context.Context, id uuid.UUID) (store.Entry, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			return e, m.content[id], nil
		}
	}
	return store.Entry{}, nil, fmt.Errorf("fetch %s: %w", id, store.ErrNotFound)
}

func (m *memArchive) List(ctx context.Context, limit int) ([]store.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.Entry(nil), m.entries[:min(limit, len(m.entries))]...), nil
}

func (m *memArchive) Columns(ctx context.Context, id uuid.UUID) ([]store.ColumnRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cols, ok := m.columns[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cols, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: time.Minute},
		Jobs:   config.JobsConfig{MaxFileSize: 1 << 20, MaxConcurrent: 2, MaxWaitTime: time.Second, ListLimit: 50},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, opts ...service.Option) *Server {
	t.Helper()
	codec, err := ted.NewCodec(ted.DefaultOptions())
	require.NoError(t, err)
	exporter, err := tedarrow.NewExporter(codec, tedarrow.Options{})
	require.NoError(t, err)

	opts = append([]service.Option{service.WithExporter(exporter)}, opts...)
	srv := NewServer(service.New(codec, opts...), cfg)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(srv *Server, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestHealthAndVersions(t *testing.T) {
	srv := newTestServer(t, testConfig())

	rec := do(srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = do(srv, http.MethodGet, "/api/versions", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"current":"2022.03","supported":["2022.03.rc1","2022.03"]}`, rec.Body.String())

	rec = do(srv, http.MethodGet, "/api/status", "")
	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Archive)
	assert.Equal(t, service.DefaultMaxConcurrentJobs, status.Jobs.MaxConcurrent)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, testConfig())

	rec := do(srv, http.MethodPost, "/api/lint", validFile)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `ted_http_requests_total{method="POST",route="/api/lint",status="200"}`)
	assert.Contains(t, body, `ted_files_processed_total{operation="lint",outcome="valid"}`)
}

func TestLint(t *testing.T) {
	srv := newTestServer(t, testConfig())

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantValid  bool
		wantCode   string
	}{
		{name: "valid file", body: validFile, wantStatus: http.StatusOK, wantValid: true},
		{name: "issues are a report", body: duplicateFile, wantStatus: http.StatusOK, wantValid: false},
		{name: "short row", body: strings.Replace(validFile, "0.001,NA", "0.001", 1), wantStatus: http.StatusBadRequest, wantCode: "ROW001"},
		{name: "bad value", body: strings.Replace(validFile, "13.1", "abc", 1), wantStatus: http.StatusBadRequest, wantCode: "TYP001"},
		{name: "no terminator", body: "TED_VERSION=2022.03\n", wantStatus: http.StatusBadRequest, wantCode: "FMT003"},
		{name: "empty body", body: "", wantStatus: http.StatusBadRequest, wantCode: "FILE004"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(srv, http.MethodPost, "/api/lint", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantCode != "" {
				resp := decodeError(t, rec)
				assert.Equal(t, tt.wantCode, resp.Code)
				if tt.wantCode != "FILE004" {
					assert.NotEmpty(t, resp.Detail)
				}
				return
			}

			var report service.Report
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
			assert.Equal(t, tt.wantValid, report.Valid)
		})
	}
}

func TestLint_Multipart(t *testing.T) {
	srv := newTestServer(t, testConfig())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "run1.ted")
	require.NoError(t, err)
	_, err = part.Write([]byte(validFile))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := do(srv, http.MethodPost, "/api/lint", body.String(), "Content-Type", mw.FormDataContentType())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report service.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.Valid)
	assert.Equal(t, 3, report.Rows)
}

func TestLint_TooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Jobs.MaxFileSize = 64
	srv := newTestServer(t, cfg)

	rec := do(srv, http.MethodPost, "/api/lint", validFile)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "FILE001", decodeError(t, rec).Code)
}

func TestLint_Busy(t *testing.T) {
	limiter := service.NewJobLimiter(1, 10*time.Millisecond)
	srv := newTestServer(t, testConfig(), service.WithLimiter(limiter))
	require.True(t, limiter.TryAcquire())
	defer limiter.Release()

	rec := do(srv, http.MethodPost, "/api/lint", validFile)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
	assert.Equal(t, "JOB001", decodeError(t, rec).Code)
}

func TestNormalize(t *testing.T) {
	srv := newTestServer(t, testConfig())

	messy := "# comment\r\n" + strings.ReplaceAll(validFile, "\n", "\r\n")
	rec := do(srv, http.MethodPost, "/api/normalize", messy)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, validFile, rec.Body.String())
	assert.Equal(t, contentTypeTED, rec.Header().Get("Content-Type"))

	rec = do(srv, http.MethodPost, "/api/normalize", duplicateFile)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "VAL001", decodeError(t, rec).Code)
}

func TestExportParquet(t *testing.T) {
	srv := newTestServer(t, testConfig())

	rec := do(srv, http.MethodPost, "/api/export/parquet", validFile)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, contentTypeParquet, rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PAR1")))
	assert.True(t, bytes.HasSuffix(rec.Body.Bytes(), []byte("PAR1")))
}

func TestArchive_NotConfigured(t *testing.T) {
	srv := newTestServer(t, testConfig())

	rec := do(srv, http.MethodPost, "/api/archive", validFile)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "STO002", decodeError(t, rec).Code)

	rec = do(srv, http.MethodGet, "/api/archive", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestArchive_Flow(t *testing.T) {
	srv := newTestServer(t, testConfig(), service.WithArchive(newMemArchive()))

	rec := do(srv, http.MethodPost, "/api/archive", validFile)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created service.ArchiveResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.True(t, created.Created)
	assert.Equal(t, "/api/archive/"+created.Entry.ID.String(), rec.Header().Get("Location"))

	rec = do(srv, http.MethodPost, "/api/archive", validFile)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(srv, http.MethodGet, "/api/archive?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Entries []store.Entry `json:"entries"`
		Limit   int           `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Entries, 1)
	assert.Equal(t, 5, list.Limit)

	path := "/api/archive/" + created.Entry.ID.String()
	rec = do(srv, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, validFile, rec.Body.String())
	assert.Equal(t, created.Entry.Digest, rec.Header().Get("X-Ted-Digest"))

	rec = do(srv, http.MethodGet, path, "", "If-None-Match", `"`+created.Entry.Digest+`"`)
	assert.Equal(t, http.StatusNotModified, rec.Code)

	rec = do(srv, http.MethodGet, path+"/columns", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"current"`)

	rec = do(srv, http.MethodGet, "/api/archive/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "STO001", decodeError(t, rec).Code)

	rec = do(srv, http.MethodGet, "/api/archive/not-an-id", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "STO003", decodeError(t, rec).Code)
}

func TestArchive_RequiresAPIKey(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"secret-key"}}
	srv := newTestServer(t, cfg, service.WithArchive(newMemArchive()))

	rec := do(srv, http.MethodPost, "/api/archive", validFile)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(srv, http.MethodPost, "/api/archive", validFile, "X-API-Key", "wrong")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(srv, http.MethodPost, "/api/archive", validFile, "X-API-Key", "secret-key")
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Reads stay open.
	rec = do(srv, http.MethodGet, "/api/archive", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2}
	srv := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		rec := do(srv, http.MethodGet, "/healthz", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := do(srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE001", decodeError(t, rec).Code)
}

func TestRateLimiter_WindowReset(t *testing.T) {
	rl := newRateLimiter(1, time.Minute)
	defer rl.stop()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("10.0.0.1"))
	assert.False(t, rl.allow("10.0.0.1"))
	assert.True(t, rl.allow("10.0.0.2"), "limits are per client")

	now = now.Add(61 * time.Second)
	assert.True(t, rl.allow("10.0.0.1"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"format", &ted.FormatError{Msg: "x"}, http.StatusBadRequest},
		{"row shape", &ted.RowShapeError{}, http.StatusBadRequest},
		{"coercion", &ted.TypeCoercionError{}, http.StatusBadRequest},
		{"unvalidated", &ted.UnvalidatedDatasetError{}, http.StatusUnprocessableEntity},
		{"too large", fmt.Errorf("load: %w", ted.ErrInputTooLarge), http.StatusRequestEntityTooLarge},
		{"max bytes", &http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{"not found", store.ErrNotFound, http.StatusNotFound},
		{"bad id", service.ErrBadID, http.StatusBadRequest},
		{"busy", service.ErrTooManyJobs, http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
