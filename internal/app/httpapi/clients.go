package httpapi

import (
	"net/http"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/client"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/httputil"
)

func (h *handler) listClients(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	if lookup := r.URL.Query().Get("phone"); lookup != "" {
		c, err := h.app.Clients.FindByPhone(r.Context(), u, lookup)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, []interface{}{c})
		return
	}
	clients, err := h.app.Clients.List(r.Context(), u, r.URL.Query().Get("view"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, clients)
}

func (h *handler) createClient(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	var payload client.Client
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	created, err := h.app.Clients.Create(r.Context(), u, payload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *handler) getClient(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	c, err := h.app.Clients.Get(r.Context(), u, pathVar(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *handler) updateClient(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	var payload client.Client
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	payload.ID = pathVar(r, "id")
	updated, err := h.app.Clients.Update(r.Context(), u, payload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteClient(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.app.Clients.Delete(r.Context(), u, pathVar(r, "id")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
