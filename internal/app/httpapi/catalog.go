package httpapi

import (
	"net/http"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/agent"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/carrier"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/apperr"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/httputil"
)

// --- Positions --------------------------------------------------------------

func (h *handler) listPositions(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	positions, err := h.app.Positions.List(r.Context(), u.AgencyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, positions)
}

func (h *handler) createPosition(w http.ResponseWriter, r *http.Request) {
	u, ok := h.admin(w, r)
	if !ok {
		return
	}
	var payload agent.Position
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	payload.AgencyID = u.AgencyID
	created, err := h.app.Positions.Create(r.Context(), payload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *handler) scopedPosition(w http.ResponseWriter, r *http.Request, u agent.User) (agent.Position, bool) {
	p, err := h.app.Positions.Get(r.Context(), pathVar(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return agent.Position{}, false
	}
	if p.AgencyID != u.AgencyID {
		httputil.WriteError(w, apperr.NotFound("position not found"))
		return agent.Position{}, false
	}
	return p, true
}

func (h *handler) getPosition(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	p, ok := h.scopedPosition(w, r, u)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *handler) updatePosition(w http.ResponseWriter, r *http.Request) {
	u, ok := h.admin(w, r)
	if !ok {
		return
	}
	existing, ok := h.scopedPosition(w, r, u)
	if !ok {
		return
	}
	var payload agent.Position
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	payload.ID = existing.ID
	payload.AgencyID = existing.AgencyID
	updated, err := h.app.Positions.Update(r.Context(), payload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *handler) deletePosition(w http.ResponseWriter, r *http.Request) {
	u, ok := h.admin(w, r)
	if !ok {
		return
	}
	if _, ok := h.scopedPosition(w, r, u); !ok {
		return
	}
	if err := h.app.Positions.Delete(r.Context(), pathVar(r, "id")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) setCommission(w http.ResponseWriter, r *http.Request) {
	u, ok := h.admin(w, r)
	if !ok {
		return
	}
	if _, ok := h.scopedPosition(w, r, u); !ok {
		return
	}
	var payload struct {
		ProductID            string  `json:"product_id"`
		CommissionPercentage float64 `json:"commission_percentage"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	c, err := h.app.Positions.SetCommission(r.Context(), carrier.Commission{
		PositionID:           pathVar(r, "id"),
		ProductID:            payload.ProductID,
		CommissionPercentage: payload.CommissionPercentage,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *handler) listCommissions(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	if _, ok := h.scopedProduct(w, r, u); !ok {
		return
	}
	commissions, err := h.app.Positions.CommissionsForProduct(r.Context(), pathVar(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, commissions)
}

// --- Carriers ---------------------------------------------------------------

func (h *handler) listCarriers(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	carriers, err := h.app.Carriers.ListCarriers(r.Context(), u.AgencyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, carriers)
}

func (h *handler) createCarrier(w http.ResponseWriter, r *http.Request) {
	u, ok := h.admin(w, r)
	if !ok {
		return
	}
	var payload carrier.Carrier
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	payload.AgencyID = u.AgencyID
	created, err := h.app.Carriers.CreateCarrier(r.Context(), payload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *handler) scopedCarrier(w http.ResponseWriter, r *http.Request, u agent.User) (carrier.Carrier, bool) {
	c, err := h.app.Carriers.GetCarrier(r.Context(), pathVar(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return carrier.Carrier{}, false
	}
	if c.AgencyID != u.AgencyID {
		httputil.WriteError(w, apperr.NotFound("carrier not found"))
		return carrier.Carrier{}, false
	}
	return c, true
}

func (h *handler) getCarrier(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	c, ok := h.scopedCarrier(w, r, u)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *handler) updateCarrier(w http.ResponseWriter, r *http.Request) {
	u, ok := h.admin(w, r)
	if !ok {
		return
	}
	existing, ok := h.scopedCarrier(w, r, u)
	if !ok {
		return
	}
	var payload carrier.Carrier
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	payload.ID = existing.ID
	payload.AgencyID = existing.AgencyID
	updated, err := h.app.Carriers.UpdateCarrier(r.Context(), payload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteCarrier(w http.ResponseWriter, r *http.Request) {
	u, ok := h.admin(w, r)
	if !ok {
		return
	}
	if _, ok := h.scopedCarrier(w, r, u); !ok {
		return
	}
	if err := h.app.Carriers.DeleteCarrier(r.Context(), pathVar(r, "id")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Products ---------------------------------------------------------------

func (h *handler) listProducts(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	if _, ok := h.scopedCarrier(w, r, u); !ok {
		return
	}
	products, err := h.app.Carriers.ListProducts(r.Context(), u.AgencyID, pathVar(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, products)
}

func (h *handler) createProduct(w http.ResponseWriter, r *http.Request) {
	u, ok := h.admin(w, r)
	if !ok {
		return
	}
	if _, ok := h.scopedCarrier(w, r, u); !ok {
		return
	}
	var payload carrier.Product
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	payload.AgencyID = u.AgencyID
	payload.CarrierID = pathVar(r, "id")
	created, err := h.app.Carriers.CreateProduct(r.Context(), payload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *handler) scopedProduct(w http.ResponseWriter, r *http.Request, u agent.User) (carrier.Product, bool) {
	p, err := h.app.Carriers.GetProduct(r.Context(), pathVar(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return carrier.Product{}, false
	}
	if p.AgencyID != u.AgencyID {
		httputil.WriteError(w, apperr.NotFound("product not found"))
		return carrier.Product{}, false
	}
	return p, true
}

func (h *handler) getProduct(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	p, ok := h.scopedProduct(w, r, u)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	u, ok := h.admin(w, r)
	if !ok {
		return
	}
	existing, ok := h.scopedProduct(w, r, u)
	if !ok {
		return
	}
	var payload carrier.Product
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	payload.ID = existing.ID
	payload.AgencyID = existing.AgencyID
	payload.CarrierID = existing.CarrierID
	updated, err := h.app.Carriers.UpdateProduct(r.Context(), payload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	u, ok := h.admin(w, r)
	if !ok {
		return
	}
	if _, ok := h.scopedProduct(w, r, u); !ok {
		return
	}
	if err := h.app.Carriers.DeleteProduct(r.Context(), pathVar(r, "id")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
