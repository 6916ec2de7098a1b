package httpapi

import (
	"net/http"
	"strconv"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/agency"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/agent"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/apperr"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/httputil"
)

// signup creates a tenant and its founding admin in one step. It is
// the only unauthenticated write: the caller has no account yet.
func (h *handler) signup(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Agency agency.Agency `json:"agency"`
		Owner  agent.User    `json:"owner"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	ag, err := h.app.Agencies.Create(r.Context(), payload.Agency)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	owner, err := h.app.Agents.CreateOwner(r.Context(), ag.ID, payload.Owner)
	if err != nil {
		// Don't leave a tenant nobody can log in to.
		if delErr := h.app.Agencies.Delete(r.Context(), ag.ID); delErr != nil {
			h.log.WithError(delErr).Errorf("removing agency %s after failed signup", ag.ID)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"agency": ag,
		"owner":  owner,
	})
}

func (h *handler) getAgency(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	ag, err := h.app.Agencies.Get(r.Context(), u.AgencyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ag)
}

func (h *handler) updateAgency(w http.ResponseWriter, r *http.Request) {
	u, ok := h.admin(w, r)
	if !ok {
		return
	}
	var payload agency.Agency
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	payload.ID = u.AgencyID
	ag, err := h.app.Agencies.Update(r.Context(), payload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ag)
}

func (h *handler) deleteAgency(w http.ResponseWriter, r *http.Request) {
	u, ok := h.admin(w, r)
	if !ok {
		return
	}
	if err := h.app.Agencies.Delete(r.Context(), u.AgencyID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listAgents(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	users, err := h.app.Agents.List(r.Context(), u.AgencyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, users)
}

func (h *handler) createAgent(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	var payload agent.User
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	created, err := h.app.Agents.Create(r.Context(), u, payload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

// sameAgencyAgent loads an agent and verifies tenant scope.
func (h *handler) sameAgencyAgent(w http.ResponseWriter, r *http.Request, actor agent.User, id string) (agent.User, bool) {
	target, err := h.app.Agents.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return agent.User{}, false
	}
	if target.AgencyID != actor.AgencyID {
		httputil.WriteError(w, apperr.NotFound("agent not found"))
		return agent.User{}, false
	}
	return target, true
}

func (h *handler) getAgent(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	target, ok := h.sameAgencyAgent(w, r, u, pathVar(r, "id"))
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, target)
}

func (h *handler) updateAgent(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	if _, ok := h.sameAgencyAgent(w, r, u, pathVar(r, "id")); !ok {
		return
	}
	var payload agent.User
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	payload.ID = pathVar(r, "id")
	updated, err := h.app.Agents.Update(r.Context(), u, payload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteAgent(w http.ResponseWriter, r *http.Request) {
	u, ok := h.admin(w, r)
	if !ok {
		return
	}
	if _, ok := h.sameAgencyAgent(w, r, u, pathVar(r, "id")); !ok {
		return
	}
	if err := h.app.Agents.Delete(r.Context(), u, pathVar(r, "id")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) agentDownline(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	if _, ok := h.sameAgencyAgent(w, r, u, pathVar(r, "id")); !ok {
		return
	}
	maxDepth := 0
	if raw := r.URL.Query().Get("max_depth"); raw != "" {
		depth, err := strconv.Atoi(raw)
		if err != nil {
			httputil.BadRequest(w, "max_depth must be an integer")
			return
		}
		maxDepth = depth
	}
	users, err := h.app.Agents.Downline(r.Context(), pathVar(r, "id"), u.AgencyID, maxDepth)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, users)
}

func (h *handler) agentUpline(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	if _, ok := h.sameAgencyAgent(w, r, u, pathVar(r, "id")); !ok {
		return
	}
	chain, err := h.app.Agents.UplineChain(r.Context(), pathVar(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, chain)
}

func (h *handler) setUniqueCarriers(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	var payload struct {
		Carriers []string `json:"carriers"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	if err := h.app.Agents.SetUniqueCarriers(r.Context(), u, pathVar(r, "id"), payload.Carriers); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]string{"unique_carriers": payload.Carriers})
}
