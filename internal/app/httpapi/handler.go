// Package httpapi exposes the application services over a REST API.
package httpapi

import (
	"crypto/subtle"
	"net/http"

	"github.com/gorilla/mux"

	app "github.com/AshokDevireddy/agentspace-backend-sub001/internal/app"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/agent"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/apperr"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/httputil"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/logging"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/metrics"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/middleware"
)

// Options configures the API surface.
type Options struct {
	// Auth wraps the authenticated subrouter. Required outside tests.
	Auth func(http.Handler) http.Handler
	// RateLimit wraps the authenticated subrouter when set.
	RateLimit func(http.Handler) http.Handler
	// StripeWebhookSecret verifies payment webhook signatures.
	StripeWebhookSecret string
	// WorkerToken authenticates the external verification worker.
	WorkerToken string
	Log         *logging.Logger
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app         *app.Application
	stripeHook  string
	workerToken string
	log         *logging.Logger
}

// New returns the router exposing the REST API.
func New(application *app.Application, opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = logging.NewDefault("httpapi")
	}
	h := &handler{
		app:         application,
		stripeHook:  opts.StripeWebhookSecret,
		workerToken: opts.WorkerToken,
		log:         log,
	}

	r := mux.NewRouter()
	r.Use(middleware.Recover(log), middleware.Observe(log))

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	r.HandleFunc("/signup", h.signup).Methods(http.MethodPost)
	r.HandleFunc("/webhooks/stripe", h.stripeWebhook).Methods(http.MethodPost)
	r.HandleFunc("/webhooks/telnyx", h.telnyxWebhook).Methods(http.MethodPost)

	// Worker endpoints use a shared token instead of user auth.
	worker := r.PathPrefix("/api/v1/nipr/worker").Subrouter()
	worker.Use(h.workerAuth)
	worker.HandleFunc("/acquire", h.niprAcquire).Methods(http.MethodPost)
	worker.HandleFunc("/pending", h.niprPending).Methods(http.MethodGet)
	worker.HandleFunc("/jobs/{id}/progress", h.niprProgress).Methods(http.MethodPost)
	worker.HandleFunc("/jobs/{id}/complete", h.niprComplete).Methods(http.MethodPost)
	worker.HandleFunc("/release-stale", h.niprReleaseStale).Methods(http.MethodPost)

	api := r.PathPrefix("/api/v1").Subrouter()
	if opts.Auth != nil {
		api.Use(opts.Auth)
	}
	if opts.RateLimit != nil {
		api.Use(opts.RateLimit)
	}
	h.routes(api)
	return r
}

func (h *handler) routes(api *mux.Router) {
	api.HandleFunc("/me", h.me).Methods(http.MethodGet)

	api.HandleFunc("/agency", h.getAgency).Methods(http.MethodGet)
	api.HandleFunc("/agency", h.updateAgency).Methods(http.MethodPatch)
	api.HandleFunc("/agency", h.deleteAgency).Methods(http.MethodDelete)

	api.HandleFunc("/agents", h.listAgents).Methods(http.MethodGet)
	api.HandleFunc("/agents", h.createAgent).Methods(http.MethodPost)
	api.HandleFunc("/agents/{id}", h.getAgent).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}", h.updateAgent).Methods(http.MethodPatch)
	api.HandleFunc("/agents/{id}", h.deleteAgent).Methods(http.MethodDelete)
	api.HandleFunc("/agents/{id}/downline", h.agentDownline).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}/upline", h.agentUpline).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}/unique-carriers", h.setUniqueCarriers).Methods(http.MethodPut)

	api.HandleFunc("/positions", h.listPositions).Methods(http.MethodGet)
	api.HandleFunc("/positions", h.createPosition).Methods(http.MethodPost)
	api.HandleFunc("/positions/{id}", h.getPosition).Methods(http.MethodGet)
	api.HandleFunc("/positions/{id}", h.updatePosition).Methods(http.MethodPatch)
	api.HandleFunc("/positions/{id}", h.deletePosition).Methods(http.MethodDelete)
	api.HandleFunc("/positions/{id}/commissions", h.setCommission).Methods(http.MethodPut)

	api.HandleFunc("/carriers", h.listCarriers).Methods(http.MethodGet)
	api.HandleFunc("/carriers", h.createCarrier).Methods(http.MethodPost)
	api.HandleFunc("/carriers/{id}", h.getCarrier).Methods(http.MethodGet)
	api.HandleFunc("/carriers/{id}", h.updateCarrier).Methods(http.MethodPatch)
	api.HandleFunc("/carriers/{id}", h.deleteCarrier).Methods(http.MethodDelete)
	api.HandleFunc("/carriers/{id}/products", h.listProducts).Methods(http.MethodGet)
	api.HandleFunc("/carriers/{id}/products", h.createProduct).Methods(http.MethodPost)
	api.HandleFunc("/products/{id}", h.getProduct).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", h.updateProduct).Methods(http.MethodPatch)
	api.HandleFunc("/products/{id}", h.deleteProduct).Methods(http.MethodDelete)
	api.HandleFunc("/products/{id}/commissions", h.listCommissions).Methods(http.MethodGet)

	api.HandleFunc("/clients", h.listClients).Methods(http.MethodGet)
	api.HandleFunc("/clients", h.createClient).Methods(http.MethodPost)
	api.HandleFunc("/clients/{id}", h.getClient).Methods(http.MethodGet)
	api.HandleFunc("/clients/{id}", h.updateClient).Methods(http.MethodPatch)
	api.HandleFunc("/clients/{id}", h.deleteClient).Methods(http.MethodDelete)

	api.HandleFunc("/deals", h.listDeals).Methods(http.MethodGet)
	api.HandleFunc("/deals", h.createDeal).Methods(http.MethodPost)
	api.HandleFunc("/deals/stats", h.dealStats).Methods(http.MethodGet)
	api.HandleFunc("/deals/{id}", h.getDeal).Methods(http.MethodGet)
	api.HandleFunc("/deals/{id}", h.updateDeal).Methods(http.MethodPatch)
	api.HandleFunc("/deals/{id}", h.deleteDeal).Methods(http.MethodDelete)
	api.HandleFunc("/deals/{id}/status", h.updateDealStatus).Methods(http.MethodPut)
	api.HandleFunc("/deals/{id}/resolve", h.resolveDeal).Methods(http.MethodPost)
	api.HandleFunc("/deals/{id}/beneficiaries", h.listBeneficiaries).Methods(http.MethodGet)
	api.HandleFunc("/deals/{id}/beneficiaries", h.setBeneficiaries).Methods(http.MethodPut)
	api.HandleFunc("/deals/{id}/hierarchy", h.dealHierarchy).Methods(http.MethodGet)

	api.HandleFunc("/conversations", h.listConversations).Methods(http.MethodGet)
	api.HandleFunc("/conversations", h.startConversation).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}", h.getConversation).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/messages", h.listMessages).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/messages", h.sendMessage).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/opt-status", h.setOptStatus).Methods(http.MethodPut)

	api.HandleFunc("/nipr/jobs", h.createNIPRJob).Methods(http.MethodPost)
	api.HandleFunc("/nipr/jobs/{id}", h.getNIPRJob).Methods(http.MethodGet)
	api.HandleFunc("/nipr/check-completed", h.niprCheckCompleted).Methods(http.MethodGet)

	api.HandleFunc("/billing/subscription", h.changeSubscription).Methods(http.MethodPost)
	api.HandleFunc("/billing/topup", h.topupCheckout).Methods(http.MethodPost)
	api.HandleFunc("/billing/portal", h.billingPortal).Methods(http.MethodGet)
	api.HandleFunc("/billing/purchases", h.listPurchases).Methods(http.MethodGet)
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// actor returns the authenticated agent or writes a 401.
func (h *handler) actor(w http.ResponseWriter, r *http.Request) (agent.User, bool) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, apperr.Unauthorized("authentication required"))
		return agent.User{}, false
	}
	return u, true
}

// admin returns the authenticated agent if they are an agency admin.
func (h *handler) admin(w http.ResponseWriter, r *http.Request) (agent.User, bool) {
	u, ok := h.actor(w, r)
	if !ok {
		return agent.User{}, false
	}
	if !u.IsAdmin {
		httputil.WriteError(w, apperr.Forbidden("admin access required"))
		return agent.User{}, false
	}
	return u, true
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	u, ok := h.actor(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, u)
}

func (h *handler) workerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.workerToken == "" {
			httputil.WriteError(w, apperr.Unauthorized("worker access not configured"))
			return
		}
		token := r.Header.Get("X-Worker-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.workerToken)) != 1 {
			httputil.WriteError(w, apperr.Unauthorized("invalid worker token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}
