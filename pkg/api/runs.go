package api

import (
	"fmt"
	"net/http"

	"mercator-hq/saturn/pkg/retention"
	"mercator-hq/saturn/pkg/retention/export"
	"mercator-hq/saturn/pkg/retention/scheduler"
)

type runRequest struct {
	DryRun bool `json:"dry_run"`
}

func (h *handlers) run(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if dry, err := queryBool(r, "dry_run"); err != nil {
		writeError(w, r, err)
		return
	} else if dry {
		req.DryRun = true
	}

	report, err := h.Processor.Run(r.Context(), scheduler.RunOptions{DryRun: req.DryRun})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, report)
}

func (h *handlers) lastRun(w http.ResponseWriter, r *http.Request) {
	report := h.Processor.LastReport()
	if report == nil {
		writeError(w, r, retention.NewNotFoundError("run", "last"))
		return
	}
	writeData(w, http.StatusOK, report)
}

func (h *handlers) processRecord(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.Processor.ProcessRecord(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (h *handlers) queryLogs(w http.ResponseWriter, r *http.Request) {
	q, err := logQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := h.Logs.QueryLogs(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*retention.LogEntry{}
	}
	writePage(w, entries, PageMeta{Limit: q.Limit, Offset: q.Offset, Count: len(entries)})
}

func (h *handlers) exportLogs(w http.ResponseWriter, r *http.Request) {
	exp, err := export.ForFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := logQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("limit") == "" {
		q.Limit = 0
	}
	entries, err := h.Logs.QueryLogs(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ext := "json"
	if exp.ContentType() == "text/csv" {
		ext = "csv"
	}
	w.Header().Set("Content-Type", exp.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "retention-log."+ext))
	if err := exp.Export(r.Context(), entries, w); err != nil {
		// Headers are already sent.
		logAborted(r, err)
	}
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Records.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, st)
}
