package httpapi

import (
	"net/http"
	"strconv"

	dealssvc "github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/services/deals"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/deal"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/httputil"
)

// dealPayload is the create/update request body: deal fields inline
// plus an optional beneficiary list.
type dealPayload struct {
	deal.Deal
	Beneficiaries []deal.BeneficiaryInput `json:"beneficiaries"`
}

func (h *handler) createDeal(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	var payload dealPayload
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	created, err := h.app.Deals.Create(r.Context(), u, dealssvc.CreateInput{
		Deal:          payload.Deal,
		Beneficiaries: payload.Beneficiaries,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *handler) listDeals(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit, offset := 0, 0
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			httputil.BadRequest(w, "limit must be an integer")
			return
		}
		limit = v
	}
	if raw := q.Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			httputil.BadRequest(w, "offset must be an integer")
			return
		}
		offset = v
	}
	deals, err := h.app.Deals.List(r.Context(), u, q.Get("view"), q.Get("status"), limit, offset)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, deals)
}

func (h *handler) dealStats(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	stats, err := h.app.Deals.Stats(r.Context(), u, r.URL.Query().Get("view"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *handler) getDeal(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	d, err := h.app.Deals.Get(r.Context(), u, pathVar(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *handler) updateDeal(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	var payload deal.Deal
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	payload.ID = pathVar(r, "id")
	updated, err := h.app.Deals.Update(r.Context(), u, payload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteDeal(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.app.Deals.Delete(r.Context(), u, pathVar(r, "id")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) updateDealStatus(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	var payload struct {
		Status string `json:"status"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	updated, err := h.app.Deals.UpdateStatus(r.Context(), u, pathVar(r, "id"), payload.Status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *handler) resolveDeal(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	updated, err := h.app.Deals.ResolveNotification(r.Context(), u, pathVar(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *handler) listBeneficiaries(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	beneficiaries, err := h.app.Deals.Beneficiaries(r.Context(), u, pathVar(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, beneficiaries)
}

func (h *handler) setBeneficiaries(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	var payload struct {
		Beneficiaries []deal.BeneficiaryInput `json:"beneficiaries"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	beneficiaries, err := h.app.Deals.SetBeneficiaries(r.Context(), u, pathVar(r, "id"), payload.Beneficiaries)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, beneficiaries)
}

func (h *handler) dealHierarchy(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	snapshots, err := h.app.Deals.HierarchySnapshots(r.Context(), u, pathVar(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, snapshots)
}
