package deals

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/agent"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/carrier"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/deal"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/services/agents"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/storage"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/storage/memory"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/apperr"
)

// allVisible lets every test skip hierarchy-based scoping.
type allVisible struct{}

func (allVisible) VisibleAgentIDs(context.Context, agent.User, string) ([]string, error) {
	return nil, nil
}

type fixture struct {
	store   *memory.Store
	svc     *Service
	admin   agent.User
	writer  agent.User
	product carrier.Product
}

// newFixture builds an agency with a two-level hierarchy (admin above
// writer), positions for both, and a product with commission mappings
// for both positions.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	adminPos, err := store.CreatePosition(ctx, agent.Position{AgencyID: "ag-1", Name: "Agency Owner", Level: 10})
	if err != nil {
		t.Fatalf("create position: %v", err)
	}
	writerPos, err := store.CreatePosition(ctx, agent.Position{AgencyID: "ag-1", Name: "Producer", Level: 1})
	if err != nil {
		t.Fatalf("create position: %v", err)
	}

	admin, err := store.CreateUser(ctx, agent.User{
		AgencyID: "ag-1", FirstName: "Olive", LastName: "Chen",
		Email: "olive@example.com", IsAdmin: true, PositionID: adminPos.ID,
	})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	writer, err := store.CreateUser(ctx, agent.User{
		AgencyID: "ag-1", FirstName: "Sam", LastName: "Reed",
		Email: "sam@example.com", UplineID: admin.ID, PositionID: writerPos.ID,
	})
	if err != nil {
		t.Fatalf("create writer: %v", err)
	}

	c, err := store.CreateCarrier(ctx, carrier.Carrier{AgencyID: "ag-1", Name: "Acme Life"})
	if err != nil {
		t.Fatalf("create carrier: %v", err)
	}
	product, err := store.CreateProduct(ctx, carrier.Product{AgencyID: "ag-1", CarrierID: c.ID, Name: "Term 20"})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	for pos, pct := range map[string]float64{writerPos.ID: 55, adminPos.ID: 90} {
		if _, err := store.SetCommission(ctx, carrier.Commission{PositionID: pos, ProductID: product.ID, CommissionPercentage: pct}); err != nil {
			t.Fatalf("set commission: %v", err)
		}
	}

	return &fixture{
		store:   store,
		svc:     New(store, store, store, store, allVisible{}, nil),
		admin:   admin,
		writer:  writer,
		product: product,
	}
}

func statusOf(t *testing.T, err error) (int, string) {
	t.Helper()
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected apperr, got %v", err)
	}
	return appErr.Status, appErr.Code
}

func TestCreateCapturesHierarchySnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.svc.Create(ctx, f.writer, CreateInput{
		Deal: deal.Deal{
			ProductID:   f.product.ID,
			ClientName:  "Pat Doyle",
			ClientPhone: "555-123-4567",
		},
		Beneficiaries: []deal.BeneficiaryInput{{Name: "Mary Jane Doyle", Relationship: "spouse"}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.AgencyID != "ag-1" || created.AgentID != f.writer.ID {
		t.Fatalf("unexpected ownership: %+v", created)
	}
	if created.ClientPhone != "+15551234567" {
		t.Fatalf("phone not normalized: %q", created.ClientPhone)
	}
	if created.StatusStandardized != deal.StatusPending {
		t.Fatalf("expected pending status, got %q", created.StatusStandardized)
	}

	snaps, err := f.svc.HierarchySnapshots(ctx, f.writer, created.ID)
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshot rows, got %d", len(snaps))
	}
	if snaps[0].AgentID != f.writer.ID || snaps[0].HierarchyLevel != 0 {
		t.Fatalf("level 0 should be the writer: %+v", snaps[0])
	}
	if snaps[1].AgentID != f.admin.ID || snaps[1].HierarchyLevel != 1 {
		t.Fatalf("level 1 should be the upline: %+v", snaps[1])
	}
	if snaps[0].CommissionPercentage == nil || *snaps[0].CommissionPercentage != 55 {
		t.Fatalf("writer commission not frozen: %+v", snaps[0])
	}

	bens, err := f.svc.Beneficiaries(ctx, f.writer, created.ID)
	if err != nil {
		t.Fatalf("beneficiaries: %v", err)
	}
	if len(bens) != 1 {
		t.Fatalf("expected 1 beneficiary, got %d", len(bens))
	}
	if bens[0].FirstName != "Mary" || bens[0].LastName != "Jane Doyle" {
		t.Fatalf("name not split on first space: %+v", bens[0])
	}

	u, err := f.store.GetUser(ctx, f.writer.ID)
	if err != nil {
		t.Fatalf("get writer: %v", err)
	}
	if u.DealsCreatedCount != 1 {
		t.Fatalf("expected deals_created_count 1, got %d", u.DealsCreatedCount)
	}
}

func TestCreateEnforcesFreeTierDealCap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	capped := f.writer
	capped.DealsCreatedCount = 10
	if _, err := f.store.UpdateUser(ctx, capped); err != nil {
		t.Fatalf("update writer: %v", err)
	}

	_, err := f.svc.Create(ctx, capped, CreateInput{Deal: deal.Deal{ClientName: "Over Cap"}})
	if err == nil {
		t.Fatal("expected forbidden")
	}
	status, code := statusOf(t, err)
	if status != http.StatusForbidden || code != "limit_reached" {
		t.Fatalf("expected 403 limit_reached, got %d %s", status, code)
	}
}

func TestCreateRejectsDuplicateClientPhone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.svc.Create(ctx, f.writer, CreateInput{Deal: deal.Deal{
		ClientName:   "Pat Doyle",
		ClientPhone:  "5551234567",
		PolicyNumber: "POL-1",
	}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = f.svc.Create(ctx, f.writer, CreateInput{Deal: deal.Deal{
		ClientName:  "Someone Else",
		ClientPhone: "(555) 123-4567",
	}})
	if err == nil {
		t.Fatal("expected phone conflict")
	}
	status, code := statusOf(t, err)
	if status != http.StatusConflict || code != "phone_exists" {
		t.Fatalf("expected 409 phone_exists, got %d %s", status, code)
	}
	var appErr *apperr.Error
	errors.As(err, &appErr)
	existing, ok := appErr.Details["existing_deal"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected existing_deal details, got %+v", appErr.Details)
	}
	if existing["id"] != first.ID {
		t.Fatalf("details should point at the existing deal: %+v", existing)
	}
}

func TestUpdateAllowsKeepingOwnPhone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.svc.Create(ctx, f.writer, CreateInput{Deal: deal.Deal{
		ClientName:  "Pat Doyle",
		ClientPhone: "5551234567",
	}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Re-submitting the same number in a different format must not
	// conflict with the deal itself.
	updated, err := f.svc.Update(ctx, f.writer, deal.Deal{
		ID:          created.ID,
		ClientPhone: "(555) 123-4567",
		Notes:       "follow up Friday",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ClientPhone != "+15551234567" || updated.Notes != "follow up Friday" {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if updated.ClientName != "Pat Doyle" {
		t.Fatalf("merge dropped unchanged fields: %+v", updated)
	}
}

func TestCreateRequiresUplinePositions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	orphan, err := f.store.CreateUser(ctx, agent.User{
		AgencyID: "ag-1", FirstName: "No", LastName: "Position",
		Email: "nopos@example.com", UplineID: f.admin.ID,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	_, err = f.svc.Create(ctx, orphan, CreateInput{Deal: deal.Deal{ProductID: f.product.ID}})
	if err == nil {
		t.Fatal("expected missing_positions conflict")
	}
	if status, code := statusOf(t, err); status != http.StatusConflict || code != "missing_positions" {
		t.Fatalf("expected 409 missing_positions, got %d %s", status, code)
	}
}

func TestCreateRequiresCommissionMappings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	bare, err := f.store.CreateProduct(ctx, carrier.Product{AgencyID: "ag-1", Name: "Unmapped"})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	_, err = f.svc.Create(ctx, f.writer, CreateInput{Deal: deal.Deal{ProductID: bare.ID}})
	if err == nil {
		t.Fatal("expected missing_commissions conflict")
	}
	if status, code := statusOf(t, err); status != http.StatusConflict || code != "missing_commissions" {
		t.Fatalf("expected 409 missing_commissions, got %d %s", status, code)
	}
}

func TestUpdateStatusValidatesValue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.svc.Create(ctx, f.writer, CreateInput{Deal: deal.Deal{ClientName: "Pat"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.svc.UpdateStatus(ctx, f.writer, created.ID, "bogus"); err == nil {
		t.Fatal("expected invalid status rejection")
	}

	updated, err := f.svc.UpdateStatus(ctx, f.writer, created.ID, deal.StatusActive)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.StatusStandardized != deal.StatusActive {
		t.Fatalf("expected active, got %q", updated.StatusStandardized)
	}
}

func TestResolveNotificationOnlyFromNotifiedStatuses(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.svc.Create(ctx, f.writer, CreateInput{Deal: deal.Deal{ClientName: "Pat"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = f.svc.ResolveNotification(ctx, f.writer, created.ID)
	if err == nil {
		t.Fatal("expected invalid_status conflict")
	}
	if status, code := statusOf(t, err); status != http.StatusConflict || code != "invalid_status" {
		t.Fatalf("expected 409 invalid_status, got %d %s", status, code)
	}

	created.StatusStandardized = deal.StatusLapseNotified
	if _, err := f.store.UpdateDeal(ctx, created); err != nil {
		t.Fatalf("seed notified status: %v", err)
	}
	resolved, err := f.svc.ResolveNotification(ctx, f.writer, created.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.StatusStandardized != "" {
		t.Fatalf("expected cleared status, got %q", resolved.StatusStandardized)
	}
}

func TestGetIsScopedToAgency(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.svc.Create(ctx, f.writer, CreateInput{Deal: deal.Deal{ClientName: "Pat"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	outsider, err := f.store.CreateUser(ctx, agent.User{AgencyID: "ag-2", Email: "out@example.com"})
	if err != nil {
		t.Fatalf("create outsider: %v", err)
	}
	_, err = f.svc.Get(ctx, outsider, created.ID)
	if err == nil {
		t.Fatal("expected cross-tenant read to fail")
	}
	if status, _ := statusOf(t, err); status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestListDefaultViewCoversDownline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	svc := New(f.store, f.store, f.store, f.store, agents.New(f.store, f.store, f.store, nil), nil)

	if _, err := svc.Create(ctx, f.writer, CreateInput{Deal: deal.Deal{
		ProductID: f.product.ID, ClientName: "Pat Doyle", ClientPhone: "555-123-4567",
	}}); err != nil {
		t.Fatalf("create: %v", err)
	}

	listed, err := svc.List(ctx, f.admin, "", "", 0, 0)
	if err != nil {
		t.Fatalf("list default view: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("default view should include downline deals, got %d", len(listed))
	}

	listed, err = svc.List(ctx, f.admin, agent.ViewSelf, "", 0, 0)
	if err != nil {
		t.Fatalf("list self view: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("self view should exclude downline deals, got %d", len(listed))
	}
}

func TestCreateKeepsInternationalPhone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.svc.Create(ctx, f.writer, CreateInput{Deal: deal.Deal{
		ProductID: f.product.ID, ClientName: "Nigel Barker", ClientPhone: "+44 20 7946 0958",
	}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ClientPhone != "+44 20 7946 0958" {
		t.Fatalf("international number should be stored as entered, got %q", created.ClientPhone)
	}
}

// failingBeneficiaries breaks the beneficiary write so creation fails
// after the deal row exists.
type failingBeneficiaries struct {
	storage.DealStore
}

func (failingBeneficiaries) ReplaceBeneficiaries(context.Context, string, string, []deal.Beneficiary) error {
	return errors.New("beneficiary write failed")
}

func TestCreateRollsBackOnPartialFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	broken := New(failingBeneficiaries{DealStore: f.store}, f.store, f.store, f.store, allVisible{}, nil)
	_, err := broken.Create(ctx, f.writer, CreateInput{
		Deal:          deal.Deal{ProductID: f.product.ID, ClientName: "Pat Doyle", ClientPhone: "555-123-4567"},
		Beneficiaries: []deal.BeneficiaryInput{{Name: "Mary Doyle"}},
	})
	if err == nil {
		t.Fatal("expected creation to fail")
	}

	// The orphan row must be gone: the same phone creates cleanly.
	created, err := f.svc.Create(ctx, f.writer, CreateInput{Deal: deal.Deal{
		ProductID: f.product.ID, ClientName: "Pat Doyle", ClientPhone: "555-123-4567",
	}})
	if err != nil {
		t.Fatalf("retry after rollback: %v", err)
	}
	if created.ClientPhone != "+15551234567" {
		t.Fatalf("unexpected phone on retry: %q", created.ClientPhone)
	}

	writer, err := f.store.GetUser(ctx, f.writer.ID)
	if err != nil {
		t.Fatalf("get writer: %v", err)
	}
	if writer.DealsCreatedCount != 1 {
		t.Fatalf("expected one counted deal, got %d", writer.DealsCreatedCount)
	}
}
