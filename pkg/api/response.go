package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"mercator-hq/saturn/pkg/retention"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
	Meta    *PageMeta  `json:"meta,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// PageMeta accompanies paginated lists.
type PageMeta struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

// Error codes.
const (
	CodeValidation      = "validation_error"
	CodeUnauthenticated = "unauthenticated"
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
	CodeInternal        = "internal_error"
)

// errUnauthenticated is returned by the auth middleware.
var errUnauthenticated = errors.New("authentication required")

func writeJSON(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Success: true, Data: data})
}

func writePage(w http.ResponseWriter, data any, meta PageMeta) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: data, Meta: &meta})
}

// writeError maps err onto a status code and error body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, Envelope{Error: &body})
}

func classify(err error) (int, ErrorBody) {
	var (
		validation *retention.ValidationError
		notFound   *retention.NotFoundError
		conflict   *retention.ConflictError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, ErrorBody{Code: CodeValidation, Message: validation.Message, Field: validation.Field}
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized, ErrorBody{Code: CodeUnauthenticated, Message: err.Error()}
	case errors.As(err, &notFound):
		return http.StatusNotFound, ErrorBody{Code: CodeNotFound, Message: notFound.Error()}
	case errors.As(err, &conflict):
		return http.StatusConflict, ErrorBody{Code: CodeConflict, Message: conflict.Message}
	default:
		return http.StatusInternalServerError, ErrorBody{Code: CodeInternal, Message: "an internal error occurred"}
	}
}

// decode reads a JSON body into v, rejecting unknown fields.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &retention.ValidationError{Message: "malformed request body", Cause: err}
	}
	return nil
}

// logAborted logs a failure that happened after the response started.
func logAborted(r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "response aborted",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
}
