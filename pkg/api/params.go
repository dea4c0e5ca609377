package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"mercator-hq/saturn/pkg/retention"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, retention.NewValidationError(name, "must be a positive integer")
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, retention.NewValidationError(name, "must be a non-negative integer")
	}
	return n, nil
}

func queryBool(r *http.Request, name string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, retention.NewValidationError(name, "must be true or false")
	}
	return b, nil
}

// queryTime accepts RFC 3339 timestamps or plain dates.
func queryTime(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := retention.ParseDate(raw)
	if err != nil {
		return time.Time{}, retention.NewValidationError(name, "must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
	}
	return t, nil
}

// logQuery reads the processing log filter from the query string.
func logQuery(r *http.Request) (*retention.LogQuery, error) {
	q := &retention.LogQuery{
		FileID: strings.TrimSpace(r.URL.Query().Get("file_id")),
		RunID:  strings.TrimSpace(r.URL.Query().Get("run_id")),
	}

	policyID, err := queryInt(r, "policy_id", 0)
	if err != nil {
		return nil, err
	}
	q.PolicyID = int64(policyID)

	if s := strings.TrimSpace(r.URL.Query().Get("status")); s != "" {
		switch st := retention.LogStatus(strings.ToLower(s)); st {
		case retention.LogSuccess, retention.LogFailed, retention.LogSkipped:
			q.Status = st
		default:
			return nil, retention.NewValidationError("status", "must be success, failed or skipped")
		}
	}
	if q.Since, err = queryTime(r, "since"); err != nil {
		return nil, err
	}
	if q.Until, err = queryTime(r, "until"); err != nil {
		return nil, err
	}
	if q.Limit, err = queryInt(r, "limit", defaultPageSize); err != nil {
		return nil, err
	}
	switch {
	case q.Limit == 0:
		q.Limit = defaultPageSize
	case q.Limit > maxPageSize:
		q.Limit = maxPageSize
	}
	if q.Offset, err = queryInt(r, "offset", 0); err != nil {
		return nil, err
	}
	return q, nil
}

func validationErr(field, message string) error {
	return retention.NewValidationError(field, message)
}
