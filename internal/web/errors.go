package web

// errors.go turns errors into JSON responses.
//
// The flow:
//  1. A handler gets an error from the service
//  2. It calls respondError(w, r, err, status), or statusFor(err) picks the status
//  3. service.MapError supplies the user message and code
//  4. The technical error is logged with the request ID
//  5. The client gets an ErrorResponse; Detail carries the technical text
//     only for errors about the caller's own file

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/ted/internal/logging"
	"github.com/JonMunkholm/ted/internal/service"
	"github.com/JonMunkholm/ted/internal/store"
	"github.com/JonMunkholm/ted/internal/ted"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
	Detail  string `json:"detail,omitempty"`
}

// respondError logs err and writes its user message as JSON.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := service.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if statusCode >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	resp := ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	}
	if statusCode < http.StatusInternalServerError && service.IsUserFacing(err) {
		resp.Detail = err.Error()
	}
	writeJSON(w, r, statusCode, resp)
}

// statusFor picks the HTTP status for an operation error.
func statusFor(err error) int {
	switch {
	case bodyTooLarge(err), errors.Is(err, ted.ErrInputTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ted.ErrUnvalidated):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ted.ErrFormat),
		errors.Is(err, ted.ErrRowShape),
		errors.Is(err, ted.ErrTypeCoercion),
		errors.Is(err, service.ErrNoInput),
		errors.Is(err, service.ErrBadID):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNoArchive), errors.Is(err, service.ErrTooManyJobs):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// fail responds with the status statusFor picks. Busy responses carry
// Retry-After.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if errors.Is(err, service.ErrTooManyJobs) {
		w.Header().Set("Retry-After", "5")
	}
	s.respondError(w, r, err, status)
}

// bodyTooLarge reports whether err came from http.MaxBytesReader. Some
// readers, such as the multipart parser, keep only the error text.
func bodyTooLarge(err error) bool {
	var maxBytes *http.MaxBytesError
	return errors.As(err, &maxBytes) || strings.Contains(err.Error(), "request body too large")
}
