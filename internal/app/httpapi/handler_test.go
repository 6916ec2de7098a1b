package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	app "github.com/AshokDevireddy/agentspace-backend-sub001/internal/app"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/agency"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/agent"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/storage/memory"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/middleware"
)

const workerToken = "worker-secret"

type testServer struct {
	handler http.Handler
	store   *memory.Store
	admin   agent.User
}

// newTestServer wires the full router over the in-memory store with a
// header-based auth shim in place of JWT verification.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	ag, err := store.CreateAgency(ctx, agency.Agency{Name: "Summit Insurance", PhoneNumber: "+15550001111"})
	if err != nil {
		t.Fatalf("create agency: %v", err)
	}
	admin, err := store.CreateUser(ctx, agent.User{
		AgencyID: ag.ID, FirstName: "Olive", LastName: "Chen",
		Email: "olive@example.com", IsAdmin: true,
	})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}

	application, err := app.New(app.Stores{
		Agencies: store, Users: store, Positions: store, Carriers: store,
		Clients: store, Deals: store, Messaging: store, NIPR: store, Billing: store,
	}, app.Options{}, nil)
	if err != nil {
		t.Fatalf("build application: %v", err)
	}

	auth := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Test-User")
			if id == "" {
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}
			u, err := store.GetUser(r.Context(), id)
			if err != nil {
				http.Error(w, "unknown user", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(middleware.WithUser(r.Context(), u)))
		})
	}

	h := New(application, Options{Auth: auth, WorkerToken: workerToken})
	return &testServer{handler: h, store: store, admin: admin}
}

func (ts *testServer) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set("X-Test-User", userID)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) worker(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("X-Worker-Token", token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAPIRejectsUnauthenticated(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/v1/me", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAgencySetupAndDealFlow(t *testing.T) {
	ts := newTestServer(t)
	adminID := ts.admin.ID

	rec := ts.do(t, http.MethodPost, "/api/v1/positions", adminID,
		map[string]interface{}{"name": "Producer", "level": 1})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create position: %d %s", rec.Code, rec.Body.String())
	}
	positionID := decode(t, rec)["id"].(string)

	rec = ts.do(t, http.MethodPatch, "/api/v1/agents/"+adminID, adminID,
		map[string]interface{}{"position_id": positionID, "is_admin": true, "status": "active"})
	if rec.Code != http.StatusOK {
		t.Fatalf("assign position: %d %s", rec.Code, rec.Body.String())
	}
	if decode(t, rec)["position_id"] != positionID {
		t.Fatal("position assignment not persisted")
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/carriers", adminID,
		map[string]interface{}{"name": "Acme Life"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create carrier: %d %s", rec.Code, rec.Body.String())
	}
	carrierID := decode(t, rec)["id"].(string)

	rec = ts.do(t, http.MethodPost, "/api/v1/carriers/"+carrierID+"/products", adminID,
		map[string]interface{}{"name": "Term 20"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create product: %d %s", rec.Code, rec.Body.String())
	}
	productID := decode(t, rec)["id"].(string)

	rec = ts.do(t, http.MethodPut, "/api/v1/positions/"+positionID+"/commissions", adminID,
		map[string]interface{}{"product_id": productID, "commission_percentage": 70})
	if rec.Code != http.StatusOK {
		t.Fatalf("set commission: %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/deals", adminID, map[string]interface{}{
		"product_id":   productID,
		"carrier_id":   carrierID,
		"client_name":  "Pat Doyle",
		"client_phone": "555-123-4567",
		"beneficiaries": []map[string]string{
			{"name": "Mary Doyle", "relationship": "spouse"},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create deal: %d %s", rec.Code, rec.Body.String())
	}
	dealBody := decode(t, rec)
	dealID := dealBody["id"].(string)
	if dealBody["client_phone"] != "+15551234567" {
		t.Fatalf("phone not normalized: %v", dealBody["client_phone"])
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/deals/"+dealID+"/hierarchy", adminID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("deal hierarchy: %d %s", rec.Code, rec.Body.String())
	}
	var snaps []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &snaps); err != nil {
		t.Fatalf("decode hierarchy: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot level, got %d", len(snaps))
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/deals/stats", adminID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("deal stats: %d %s", rec.Code, rec.Body.String())
	}
	stats := decode(t, rec)
	if stats["total_deals"] != float64(1) {
		t.Fatalf("expected 1 deal in stats, got %v", stats["total_deals"])
	}
	if stats["agent_count"] != float64(1) {
		t.Fatalf("expected 1 visible agent in stats, got %v", stats["agent_count"])
	}
}

func TestAgentCreationRequiresAdmin(t *testing.T) {
	ts := newTestServer(t)
	member, err := ts.store.CreateUser(context.Background(), agent.User{
		AgencyID: ts.admin.AgencyID, FirstName: "Sam", LastName: "Reed", Email: "sam@example.com",
	})
	if err != nil {
		t.Fatalf("create member: %v", err)
	}

	rec := ts.do(t, http.MethodPost, "/api/v1/agents", member.ID, map[string]interface{}{
		"first_name": "New", "last_name": "Agent", "email": "new@example.com",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/agents", ts.admin.ID, map[string]interface{}{
		"first_name": "New", "last_name": "Agent", "email": "new@example.com", "upline_id": member.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestCrossTenantReadsReturnNotFound(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	other, err := ts.store.CreateAgency(ctx, agency.Agency{Name: "Rival Agency"})
	if err != nil {
		t.Fatalf("create agency: %v", err)
	}
	outsider, err := ts.store.CreateUser(ctx, agent.User{
		AgencyID: other.ID, FirstName: "Riva", LastName: "Lee", Email: "riva@example.com", IsAdmin: true,
	})
	if err != nil {
		t.Fatalf("create outsider: %v", err)
	}

	rec := ts.do(t, http.MethodGet, "/api/v1/agents/"+ts.admin.ID, outsider.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for cross-tenant read, got %d", rec.Code)
	}
}

func TestWorkerEndpointsRequireToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.worker(t, http.MethodPost, "/api/v1/nipr/worker/acquire", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	rec = ts.worker(t, http.MethodPost, "/api/v1/nipr/worker/acquire", "wrong", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}
	rec = ts.worker(t, http.MethodPost, "/api/v1/nipr/worker/acquire", workerToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on empty queue, got %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.worker(t, http.MethodPost, "/api/v1/nipr/worker/release-stale", workerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("release-stale: %d %s", rec.Code, rec.Body.String())
	}
	if decode(t, rec)["released"] != float64(0) {
		t.Fatalf("expected no stale locks released, got %s", rec.Body.String())
	}
}

func TestNIPRWorkerLifecycle(t *testing.T) {
	ts := newTestServer(t)
	adminID := ts.admin.ID

	rec0 := ts.do(t, http.MethodGet, "/api/v1/nipr/check-completed", adminID, nil)
	if rec0.Code != http.StatusOK {
		t.Fatalf("check-completed: %d %s", rec0.Code, rec0.Body.String())
	}
	if decode(t, rec0)["completed"] != false {
		t.Fatalf("verification should not be complete yet: %s", rec0.Body.String())
	}

	rec := ts.do(t, http.MethodPost, "/api/v1/nipr/jobs", adminID, map[string]interface{}{
		"last_name": "Chen", "npn": "1234567",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("queue job: %d %s", rec.Code, rec.Body.String())
	}
	job := decode(t, rec)["job"].(map[string]interface{})
	jobID := job["id"].(string)

	// Re-queueing while the job is active reuses it.
	rec = ts.do(t, http.MethodPost, "/api/v1/nipr/jobs", adminID, map[string]interface{}{
		"last_name": "Chen", "npn": "1234567",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for reused job, got %d", rec.Code)
	}

	rec = ts.worker(t, http.MethodGet, "/api/v1/nipr/worker/pending", workerToken, nil)
	if rec.Code != http.StatusOK || decode(t, rec)["has_pending"] != true {
		t.Fatalf("expected pending work: %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.worker(t, http.MethodPost, "/api/v1/nipr/worker/acquire", workerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("acquire: %d %s", rec.Code, rec.Body.String())
	}
	if got := decode(t, rec)["job_id"]; got != jobID {
		t.Fatalf("acquired wrong job: %v", got)
	}

	// A second worker polling while the lease is held gets nothing.
	rec = ts.worker(t, http.MethodPost, "/api/v1/nipr/worker/acquire", workerToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 while lease held, got %d", rec.Code)
	}

	progressPath := fmt.Sprintf("/api/v1/nipr/worker/jobs/%s/progress", jobID)
	rec = ts.worker(t, http.MethodPost, progressPath, workerToken,
		map[string]interface{}{"progress": 50, "message": "Scraping carrier appointments"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("progress: %d %s", rec.Code, rec.Body.String())
	}

	completePath := fmt.Sprintf("/api/v1/nipr/worker/jobs/%s/complete", jobID)
	rec = ts.worker(t, http.MethodPost, completePath, workerToken, map[string]interface{}{
		"success":  true,
		"files":    []string{"licenses.pdf"},
		"carriers": []string{"Acme Life", "Umbrella Mutual"},
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("complete: %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/nipr/jobs/"+jobID, adminID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get job: %d %s", rec.Code, rec.Body.String())
	}
	final := decode(t, rec)
	if final["status"] != "completed" || final["progress"] != float64(100) {
		t.Fatalf("unexpected final job state: %v", final)
	}

	u, err := ts.store.GetUser(context.Background(), adminID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if len(u.UniqueCarriers) != 2 {
		t.Fatalf("expected verified carriers recorded, got %v", u.UniqueCarriers)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/nipr/check-completed", adminID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("check-completed: %d %s", rec.Code, rec.Body.String())
	}
	done := decode(t, rec)
	if done["completed"] != true {
		t.Fatalf("verification should be complete: %v", done)
	}
	if carriers, _ := done["unique_carriers"].([]interface{}); len(carriers) != 2 {
		t.Fatalf("expected 2 verified carriers, got %v", done["unique_carriers"])
	}
}

func TestSignupCreatesAgencyAndOwner(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/signup", "", map[string]interface{}{
		"agency": map[string]interface{}{"name": "Ridgeline Insurance", "phone_number": "555-222-3333"},
		"owner":  map[string]interface{}{"first_name": "Ada", "last_name": "Okafor", "email": "ada@example.com"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup: %d %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	ag := body["agency"].(map[string]interface{})
	owner := body["owner"].(map[string]interface{})
	if ag["phone_number"] != "+15552223333" {
		t.Fatalf("agency phone not normalized: %v", ag["phone_number"])
	}
	if owner["is_admin"] != true || owner["agency_id"] != ag["id"] {
		t.Fatalf("owner should be the agency admin: %v", owner)
	}

	// A rejected owner must not leave an empty tenant behind.
	rec = ts.do(t, http.MethodPost, "/signup", "", map[string]interface{}{
		"agency": map[string]interface{}{"name": "Shadow Agency"},
		"owner":  map[string]interface{}{"first_name": "Ada", "last_name": "Okafor", "email": "ada@example.com"},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for reused email, got %d %s", rec.Code, rec.Body.String())
	}

	ownerID := owner["id"].(string)
	rec = ts.do(t, http.MethodDelete, "/api/v1/agency", ownerID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete agency: %d %s", rec.Code, rec.Body.String())
	}
	rec = ts.do(t, http.MethodGet, "/api/v1/agency", ownerID, nil)
	if rec.Code == http.StatusOK {
		t.Fatal("deleted agency should no longer resolve")
	}
}

func TestClientLookupByPhone(t *testing.T) {
	ts := newTestServer(t)
	adminID := ts.admin.ID

	rec := ts.do(t, http.MethodPost, "/api/v1/clients", adminID, map[string]interface{}{
		"first_name": "Pat", "last_name": "Doyle", "phone": "(555) 123-4567",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create client: %d %s", rec.Code, rec.Body.String())
	}
	clientID := decode(t, rec)["id"].(string)

	rec = ts.do(t, http.MethodGet, "/api/v1/clients?phone=555-123-4567", adminID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("phone lookup: %d %s", rec.Code, rec.Body.String())
	}
	var matches []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &matches); err != nil {
		t.Fatalf("decode lookup response: %v", err)
	}
	if len(matches) != 1 || matches[0]["id"] != clientID {
		t.Fatalf("expected the created client, got %v", matches)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/clients?phone=555-000-0000", adminID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown number, got %d", rec.Code)
	}
}

func TestTelnyxWebhookAcksUnroutableMessages(t *testing.T) {
	ts := newTestServer(t)
	body := map[string]interface{}{
		"data": map[string]interface{}{
			"event_type": "message.received",
			"payload": map[string]interface{}{
				"text": "hello",
				"from": map[string]string{"phone_number": "+15551234567"},
				"to":   []map[string]string{{"phone_number": "+15559999999"}},
			},
		},
	}
	rec := ts.do(t, http.MethodPost, "/webhooks/telnyx", "", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("unroutable inbound must still be acked: %d %s", rec.Code, rec.Body.String())
	}
}
