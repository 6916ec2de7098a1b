package httpapi

import (
	"net/http"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/nipr"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/httputil"
)

func (h *handler) createNIPRJob(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	var payload struct {
		UserID   string `json:"user_id"`
		LastName string `json:"last_name"`
		NPN      string `json:"npn"`
		SSNLast4 string `json:"ssn_last4"`
		DOB      string `json:"dob"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	result, err := h.app.NIPR.Create(r.Context(), u, nipr.Job{
		UserID:   payload.UserID,
		LastName: payload.LastName,
		NPN:      payload.NPN,
		SSNLast4: payload.SSNLast4,
		DOB:      payload.DOB,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, result)
}

func (h *handler) getNIPRJob(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	job, err := h.app.NIPR.Get(r.Context(), u, pathVar(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, job)
}

func (h *handler) niprCheckCompleted(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	result, err := h.app.NIPR.CheckCompleted(r.Context(), u, r.URL.Query().Get("user_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// --- Worker endpoints -------------------------------------------------------

func (h *handler) niprAcquire(w http.ResponseWriter, r *http.Request) {
	job, err := h.app.NIPR.Acquire(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if job == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, job)
}

func (h *handler) niprPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.app.NIPR.HasPending(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"has_pending": pending})
}

func (h *handler) niprProgress(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Progress int     `json:"progress"`
		Message  *string `json:"message"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	if err := h.app.NIPR.UpdateProgress(r.Context(), pathVar(r, "id"), payload.Progress, payload.Message); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) niprComplete(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Success  bool     `json:"success"`
		Files    []string `json:"files"`
		Carriers []string `json:"carriers"`
		Error    string   `json:"error"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	if err := h.app.NIPR.Complete(r.Context(), pathVar(r, "id"), payload.Success, payload.Files, payload.Carriers, payload.Error); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) niprReleaseStale(w http.ResponseWriter, r *http.Request) {
	released, err := h.app.NIPR.ReleaseStaleLocks(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"released": released})
}
