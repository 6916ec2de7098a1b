package httpapi

import (
	"net/http"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/billing"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/httputil"
)

func (h *handler) changeSubscription(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	var payload struct {
		Tier string `json:"tier"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	result, err := h.app.Billing.ChangeSubscription(r.Context(), u, billing.Tier(payload.Tier))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *handler) topupCheckout(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	var payload struct {
		Type     string `json:"type"`
		Quantity int    `json:"quantity"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	url, err := h.app.Billing.CreateTopupCheckout(r.Context(), u, payload.Type, payload.Quantity)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"checkout_url": url})
}

func (h *handler) billingPortal(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	url, err := h.app.Billing.PortalSession(r.Context(), u)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"portal_url": url})
}

func (h *handler) listPurchases(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	purchases, err := h.app.Billing.Purchases(r.Context(), u)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, purchases)
}
