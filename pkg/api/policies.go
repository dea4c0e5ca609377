package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"mercator-hq/saturn/pkg/retention/policy"
)

type activeRequest struct {
	IsActive *bool `json:"is_active"`
}

type containersRequest struct {
	Containers []string `json:"containers"`
}

type policyWithContainers struct {
	Policy     any      `json:"policy"`
	Containers []string `json:"containers"`
}

func (h *handlers) listPolicies(w http.ResponseWriter, r *http.Request) {
	pols, err := h.Policies.ListPolicies(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, pols)
}

func (h *handlers) createPolicy(w http.ResponseWriter, r *http.Request) {
	var in policy.Input
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	id, err := h.Policies.CreatePolicy(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	pol, err := h.Policies.GetPolicy(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, pol)
}

func (h *handlers) getPolicy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	pol, err := h.Policies.GetPolicy(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	containers, err := h.Policies.ContainersForPolicy(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, policyWithContainers{Policy: pol, Containers: containers})
}

func (h *handlers) updatePolicy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch policy.Patch
	if err := decode(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.Policies.UpdatePolicy(r.Context(), id, patch); err != nil {
		writeError(w, r, err)
		return
	}
	pol, err := h.Policies.GetPolicy(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, pol)
}

func (h *handlers) deletePolicy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Policies.DeletePolicy(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"deleted": id})
}

func (h *handlers) togglePolicy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req activeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.IsActive == nil {
		writeError(w, r, validationErr("is_active", "is required"))
		return
	}
	if err := h.Policies.ToggleActive(r.Context(), id, *req.IsActive); err != nil {
		writeError(w, r, err)
		return
	}
	pol, err := h.Policies.GetPolicy(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, pol)
}

func (h *handlers) policyContainers(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.Policies.GetPolicy(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	containers, err := h.Policies.ContainersForPolicy(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, containers)
}

func (h *handlers) assignContainers(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req containersRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.Policies.GetPolicy(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.Policies.AssignContainers(r.Context(), id, req.Containers); err != nil {
		writeError(w, r, err)
		return
	}
	containers, err := h.Policies.ContainersForPolicy(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, containers)
}

func (h *handlers) unassignedContainers(w http.ResponseWriter, r *http.Request) {
	containers, err := h.Policies.ContainersWithoutPolicy(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, containers)
}

func (h *handlers) containerPolicies(w http.ResponseWriter, r *http.Request) {
	pols, err := h.Policies.PoliciesForContainer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, pols)
}
