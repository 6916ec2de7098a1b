package httpapi

import (
	"net/http"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/httputil"
)

func (h *handler) listConversations(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	conversations, err := h.app.Messaging.List(r.Context(), u, r.URL.Query().Get("view"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, conversations)
}

func (h *handler) startConversation(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	var payload struct {
		DealID      string `json:"deal_id"`
		ClientPhone string `json:"client_phone"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	conv, err := h.app.Messaging.StartConversation(r.Context(), u, payload.DealID, payload.ClientPhone)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, conv)
}

func (h *handler) getConversation(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	conv, err := h.app.Messaging.Get(r.Context(), u, pathVar(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, conv)
}

func (h *handler) listMessages(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	messages, err := h.app.Messaging.Messages(r.Context(), u, pathVar(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, messages)
}

func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	var payload struct {
		Body string `json:"body"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	msg, err := h.app.Messaging.Send(r.Context(), u, pathVar(r, "id"), payload.Body)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, msg)
}

func (h *handler) setOptStatus(w http.ResponseWriter, r *http.Request) {
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
	if err := h.app.Messaging.SetOptInStatus(r.Context(), u, pathVar(r, "id"), payload.Status); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"sms_opt_in_status": payload.Status})
}
