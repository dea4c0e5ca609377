package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"mercator-hq/saturn/pkg/retention"
	"mercator-hq/saturn/pkg/retention/period"
	"mercator-hq/saturn/pkg/retention/records"
)

// setRetentionRequest is the wire form of records.SetRequest with a plain
// calendar start date.
type setRetentionRequest struct {
	PolicyID                 int64            `json:"policy_id"`
	Period                   int              `json:"retention_period"`
	Unit                     string           `json:"retention_unit"`
	StartDate                string           `json:"start_date"`
	ActionOverride           retention.Action `json:"action_override"`
	TargetPathOverride       string           `json:"target_path_override"`
	Justification            string           `json:"justification"`
	NotifyBeforeDaysOverride *int             `json:"notify_before_days_override"`
}

func (req setRetentionRequest) toSetRequest() (records.SetRequest, error) {
	unit, err := period.ParseUnit(req.Unit)
	if err != nil {
		return records.SetRequest{}, err
	}
	out := records.SetRequest{
		PolicyID:                 req.PolicyID,
		Period:                   req.Period,
		Unit:                     unit,
		ActionOverride:           req.ActionOverride,
		TargetPathOverride:       req.TargetPathOverride,
		Justification:            req.Justification,
		NotifyBeforeDaysOverride: req.NotifyBeforeDaysOverride,
	}
	if req.StartDate != "" {
		start, err := retention.ParseDate(req.StartDate)
		if err != nil {
			return records.SetRequest{}, err
		}
		out.StartDate = &start
	}
	return out, nil
}

type previewRequest struct {
	Period    int    `json:"retention_period"`
	Unit      string `json:"retention_unit"`
	StartDate string `json:"start_date"`
}

type previewResponse struct {
	ExpireDate string `json:"expire_date"`
}

type checkRequest struct {
	ContainerID string   `json:"container_id"`
	Paths       []string `json:"paths"`
}

func (h *handlers) getRetention(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	rec, err := h.Records.GetFileRetention(r.Context(), fileID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rec == nil {
		writeError(w, r, retention.NewNotFoundError("retention", fileID))
		return
	}
	writeData(w, http.StatusOK, rec)
}

func (h *handlers) setRetention(w http.ResponseWriter, r *http.Request) {
	var body setRetentionRequest
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	req, err := body.toSetRequest()
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := h.Records.SetFileRetention(r.Context(), userFrom(r.Context()), chi.URLParam(r, "fileID"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, rec)
}

func (h *handlers) removeRetention(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	if err := h.Records.RemoveFileRetention(r.Context(), fileID); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"removed": fileID})
}

func (h *handlers) resolvePolicy(w http.ResponseWriter, r *http.Request) {
	res, err := h.Records.FindPolicyForFile(r.Context(), chi.URLParam(r, "fileID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (h *handlers) notifications(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	rec, err := h.Records.GetFileRetention(r.Context(), fileID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rec == nil {
		writeError(w, r, retention.NewNotFoundError("retention", fileID))
		return
	}
	notes, err := h.Logs.ListNotifications(r.Context(), rec.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, notes)
}

func (h *handlers) preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	unit, err := period.ParseUnit(req.Unit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var start time.Time
	if req.StartDate != "" {
		if start, err = retention.ParseDate(req.StartDate); err != nil {
			writeError(w, r, err)
			return
		}
	}
	expire, err := h.Records.PreviewExpireDate(req.Period, unit, start)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, previewResponse{ExpireDate: retention.FormatDate(expire)})
}

func (h *handlers) checkConflicts(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.ContainerID) == "" {
		writeError(w, r, validationErr("container_id", "is required"))
		return
	}
	res, err := h.Records.CheckRetentionBatch(r.Context(), req.Paths, req.ContainerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (h *handlers) myRetention(w http.ResponseWriter, r *http.Request) {
	items, err := h.Records.UserOverview(r.Context(), userFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, items)
}

func (h *handlers) upcoming(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", 30)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := h.Records.Upcoming(r.Context(), days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, items)
}
