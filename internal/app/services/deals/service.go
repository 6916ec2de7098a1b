// Package deals manages policy records and the validations that guard
// their creation: subscription limits, phone uniqueness, upline
// position checks, and commission mapping checks.
package deals

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/agent"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/billing"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/deal"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/storage"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/apperr"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/logging"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/phone"
)

// Visibility resolves which agents' records a user may see.
type Visibility interface {
	VisibleAgentIDs(ctx context.Context, u agent.User, view string) ([]string, error)
}

// Service manages deals.
type Service struct {
	store      storage.DealStore
	users      storage.UserStore
	positions  storage.PositionStore
	messaging  storage.MessagingStore
	visibility Visibility
	log        *logging.Logger
}

// New constructs a deal service.
func New(store storage.DealStore, users storage.UserStore, positions storage.PositionStore, messaging storage.MessagingStore, visibility Visibility, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("deals")
	}
	return &Service{
		store:      store,
		users:      users,
		positions:  positions,
		messaging:  messaging,
		visibility: visibility,
		log:        log,
	}
}

// CreateInput is the payload for creating a deal.
type CreateInput struct {
	Deal          deal.Deal
	Beneficiaries []deal.BeneficiaryInput
}

// Create validates and inserts a deal, then captures the writing
// agent's hierarchy snapshot and beneficiaries.
func (s *Service) Create(ctx context.Context, actor agent.User, in CreateInput) (deal.Deal, error) {
	d := in.Deal
	d.AgencyID = actor.AgencyID
	if d.AgentID == "" {
		d.AgentID = actor.ID
	}

	writer, err := s.users.GetUser(ctx, d.AgentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return deal.Deal{}, apperr.BadRequest("writing agent not found")
		}
		return deal.Deal{}, err
	}
	if writer.AgencyID != actor.AgencyID {
		return deal.Deal{}, apperr.BadRequest("writing agent must belong to your agency")
	}

	// Step 1: free-tier deal cap.
	if limit := billing.LimitsFor(writer.SubscriptionTier).MaxDealsTotal; limit >= 0 && writer.DealsCreatedCount >= limit {
		return deal.Deal{}, apperr.New(http.StatusForbidden, "limit_reached",
			"free tier deal limit reached; upgrade your subscription to create more deals").
			WithDetails(map[string]interface{}{"limit": limit})
	}

	// Step 2: phone uniqueness within the agency.
	if d.ClientPhone != "" {
		normalized, err := phone.Normalize(d.ClientPhone)
		if err != nil {
			return deal.Deal{}, apperr.BadRequest(err.Error())
		}
		d.ClientPhone = normalized
		if err := s.checkPhoneUnique(ctx, d.AgencyID, normalized, ""); err != nil {
			return deal.Deal{}, err
		}
	}

	// Step 3: upline positions and commission mappings.
	var chain []agent.UplineMember
	if d.ProductID != "" {
		chain, err = s.validateUpline(ctx, d.AgentID, d.ProductID)
		if err != nil {
			return deal.Deal{}, err
		}
	}

	if d.StatusStandardized == "" {
		d.StatusStandardized = deal.StatusPending
	}

	created, err := s.store.CreateDeal(ctx, d)
	if err != nil {
		return deal.Deal{}, err
	}

	// A half-built deal would block the client's phone number without a
	// snapshot or count, so roll the row back if any dependent write
	// fails.
	undo := func(cause error) (deal.Deal, error) {
		if err := s.store.DeleteDeal(ctx, created.ID, created.AgencyID); err != nil {
			s.log.WithError(err).Errorf("removing partially created deal %s", created.ID)
		}
		return deal.Deal{}, cause
	}

	if err := s.store.ReplaceBeneficiaries(ctx, created.ID, created.AgencyID, splitBeneficiaries(created.ID, created.AgencyID, in.Beneficiaries)); err != nil {
		return undo(err)
	}
	if err := s.users.IncrementDealsCreated(ctx, d.AgentID); err != nil {
		return undo(err)
	}
	if err := s.captureSnapshot(ctx, created.ID, d.AgentID, d.ProductID, chain); err != nil {
		return undo(err)
	}

	s.log.WithField("agency_id", created.AgencyID).Infof("deal %s created by agent %s", created.ID, d.AgentID)
	return created, nil
}

// Update applies a partial update, re-validating phone uniqueness when
// the client phone changes and re-pointing active conversations at it.
func (s *Service) Update(ctx context.Context, actor agent.User, d deal.Deal) (deal.Deal, error) {
	existing, err := s.Get(ctx, actor, d.ID)
	if err != nil {
		return deal.Deal{}, err
	}

	if d.ClientPhone != "" && d.ClientPhone != existing.ClientPhone {
		normalized, err := phone.Normalize(d.ClientPhone)
		if err != nil {
			return deal.Deal{}, apperr.BadRequest(err.Error())
		}
		d.ClientPhone = normalized
		if d.ClientPhone != existing.ClientPhone {
			if err := s.checkPhoneUnique(ctx, existing.AgencyID, d.ClientPhone, d.ID); err != nil {
				return deal.Deal{}, err
			}
		}
	}

	merged := mergeDeal(existing, d)
	updated, err := s.store.UpdateDeal(ctx, merged)
	if err != nil {
		return deal.Deal{}, err
	}

	if updated.ClientPhone != existing.ClientPhone && updated.ClientPhone != "" {
		if err := s.messaging.UpdateConversationPhone(ctx, updated.ID, updated.ClientPhone); err != nil {
			s.log.WithError(err).Warnf("conversation phone update failed for deal %s", updated.ID)
		}
	}
	return updated, nil
}

// UpdateStatus sets the standardized status of a deal.
func (s *Service) UpdateStatus(ctx context.Context, actor agent.User, id, status string) (deal.Deal, error) {
	if !deal.ValidStandardizedStatus(status) {
		return deal.Deal{}, apperr.BadRequest("invalid standardized status: " + status)
	}
	existing, err := s.Get(ctx, actor, id)
	if err != nil {
		return deal.Deal{}, err
	}
	existing.StatusStandardized = status
	return s.store.UpdateDeal(ctx, existing)
}

// ResolveNotification clears a notified status so the deal drops out of
// attention queues. Only notified statuses can be resolved.
func (s *Service) ResolveNotification(ctx context.Context, actor agent.User, id string) (deal.Deal, error) {
	existing, err := s.Get(ctx, actor, id)
	if err != nil {
		return deal.Deal{}, err
	}
	switch existing.StatusStandardized {
	case deal.StatusLapseNotified, deal.StatusNeedsMoreInfoNotified:
	default:
		return deal.Deal{}, apperr.Conflict("invalid_status", "deal does not have a notified status to resolve").
			WithDetails(map[string]interface{}{"current_status": existing.StatusStandardized})
	}
	existing.StatusStandardized = ""
	return s.store.UpdateDeal(ctx, existing)
}

// Get retrieves a deal scoped to the actor's agency.
func (s *Service) Get(ctx context.Context, actor agent.User, id string) (deal.Deal, error) {
	d, err := s.store.GetDeal(ctx, id, actor.AgencyID)
	if errors.Is(err, sql.ErrNoRows) {
		return deal.Deal{}, apperr.NotFound("deal not found")
	}
	return d, err
}

// List returns deals visible to the actor under the given view mode.
func (s *Service) List(ctx context.Context, actor agent.User, view, status string, limit, offset int) ([]deal.Deal, error) {
	agentIDs, err := s.visibility.VisibleAgentIDs(ctx, actor, view)
	if err != nil {
		return nil, err
	}
	return s.store.ListDeals(ctx, deal.Filter{
		AgencyID:           actor.AgencyID,
		AgentIDs:           agentIDs,
		StatusStandardized: status,
		Limit:              limit,
		Offset:             offset,
	})
}

// Delete removes a deal and its dependent rows.
func (s *Service) Delete(ctx context.Context, actor agent.User, id string) error {
	err := s.store.DeleteDeal(ctx, id, actor.AgencyID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("deal not found")
	}
	if err == nil {
		s.log.Infof("deal %s deleted", id)
	}
	return err
}

// Beneficiaries lists a deal's beneficiaries.
func (s *Service) Beneficiaries(ctx context.Context, actor agent.User, dealID string) ([]deal.Beneficiary, error) {
	if _, err := s.Get(ctx, actor, dealID); err != nil {
		return nil, err
	}
	return s.store.ListBeneficiaries(ctx, dealID)
}

// SetBeneficiaries replaces a deal's beneficiaries.
func (s *Service) SetBeneficiaries(ctx context.Context, actor agent.User, dealID string, in []deal.BeneficiaryInput) ([]deal.Beneficiary, error) {
	d, err := s.Get(ctx, actor, dealID)
	if err != nil {
		return nil, err
	}
	if err := s.store.ReplaceBeneficiaries(ctx, d.ID, d.AgencyID, splitBeneficiaries(d.ID, d.AgencyID, in)); err != nil {
		return nil, err
	}
	return s.store.ListBeneficiaries(ctx, dealID)
}

// HierarchySnapshots lists the hierarchy frozen at creation time.
func (s *Service) HierarchySnapshots(ctx context.Context, actor agent.User, dealID string) ([]deal.HierarchySnapshot, error) {
	if _, err := s.Get(ctx, actor, dealID); err != nil {
		return nil, err
	}
	return s.store.ListHierarchySnapshots(ctx, dealID)
}

// Stats aggregates deals visible to the actor.
func (s *Service) Stats(ctx context.Context, actor agent.User, view string) (deal.Stats, error) {
	agentIDs, err := s.visibility.VisibleAgentIDs(ctx, actor, view)
	if err != nil {
		return deal.Stats{}, err
	}
	return s.store.DealStats(ctx, actor.AgencyID, agentIDs)
}

func (s *Service) checkPhoneUnique(ctx context.Context, agencyID, normalized, excludeID string) error {
	existing, err := s.store.FindDealByPhone(ctx, agencyID, normalized, excludeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	return apperr.Conflict("phone_exists", "a deal with this client phone number already exists").
		WithDetails(map[string]interface{}{
			"existing_deal": map[string]interface{}{
				"id":            existing.ID,
				"client_name":   existing.ClientName,
				"policy_number": existing.PolicyNumber,
			},
		})
}

// validateUpline checks that every agent in the writer's upline has a
// position and that every position carries a commission mapping for
// the product.
func (s *Service) validateUpline(ctx context.Context, agentID, productID string) ([]agent.UplineMember, error) {
	chain, err := s.users.UplineChain(ctx, agentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.BadRequest("no upline hierarchy found for this agent")
		}
		return nil, err
	}
	if len(chain) == 0 {
		return nil, apperr.Conflict("no_upline", "no upline hierarchy found for this agent")
	}

	var missing []string
	positionIDs := make(map[string]bool)
	for _, m := range chain {
		if m.PositionID == "" {
			missing = append(missing, m.Name())
		} else {
			positionIDs[m.PositionID] = true
		}
	}
	if len(missing) > 0 {
		return nil, apperr.Conflict("missing_positions",
			"cannot create deal: agents in the upline hierarchy have no position assigned: "+strings.Join(missing, ", ")).
			WithDetails(map[string]interface{}{"agents_without_positions": missing})
	}

	mappings, err := s.positions.ListCommissionsForProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	mapped := make(map[string]bool, len(mappings))
	for _, m := range mappings {
		mapped[m.PositionID] = true
	}
	var unmapped []string
	for id := range positionIDs {
		if !mapped[id] {
			unmapped = append(unmapped, id)
		}
	}
	if len(unmapped) > 0 {
		return nil, apperr.Conflict("missing_commissions",
			"cannot create deal: commission percentages are not configured for some positions in the upline hierarchy").
			WithDetails(map[string]interface{}{"positions_without_commissions": unmapped})
	}
	return chain, nil
}

// captureSnapshot freezes the upline chain with the commission
// percentage each position earns on the product.
func (s *Service) captureSnapshot(ctx context.Context, dealID, agentID, productID string, chain []agent.UplineMember) error {
	if chain == nil {
		var err error
		chain, err = s.users.UplineChain(ctx, agentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
	}

	pct := make(map[string]float64)
	if productID != "" {
		mappings, err := s.positions.ListCommissionsForProduct(ctx, productID)
		if err != nil {
			return err
		}
		for _, m := range mappings {
			pct[m.PositionID] = m.CommissionPercentage
		}
	}

	snaps := make([]deal.HierarchySnapshot, 0, len(chain))
	for _, m := range chain {
		snap := deal.HierarchySnapshot{
			DealID:         dealID,
			AgentID:        m.ID,
			PositionID:     m.PositionID,
			HierarchyLevel: m.Level,
		}
		if v, ok := pct[m.PositionID]; ok {
			commission := v
			snap.CommissionPercentage = &commission
		}
		snaps = append(snaps, snap)
	}
	return s.store.InsertHierarchySnapshots(ctx, snaps)
}

// splitBeneficiaries normalizes raw beneficiary inputs, splitting the
// name on the first space.
func splitBeneficiaries(dealID, agencyID string, in []deal.BeneficiaryInput) []deal.Beneficiary {
	out := make([]deal.Beneficiary, 0, len(in))
	for _, b := range in {
		name := strings.TrimSpace(b.Name)
		if name == "" {
			continue
		}
		first, last := name, ""
		if i := strings.Index(name, " "); i != -1 {
			first = strings.TrimSpace(name[:i])
			last = strings.TrimSpace(name[i:])
		}
		if first == "" {
			continue
		}
		out = append(out, deal.Beneficiary{
			DealID:       dealID,
			AgencyID:     agencyID,
			FirstName:    first,
			LastName:     last,
			Relationship: strings.TrimSpace(b.Relationship),
		})
	}
	return out
}

// mergeDeal overlays the non-zero fields of patch onto base.
func mergeDeal(base, patch deal.Deal) deal.Deal {
	merged := base
	if patch.ClientID != "" {
		merged.ClientID = patch.ClientID
	}
	if patch.CarrierID != "" {
		merged.CarrierID = patch.CarrierID
	}
	if patch.ProductID != "" {
		merged.ProductID = patch.ProductID
	}
	if patch.PolicyNumber != "" {
		merged.PolicyNumber = patch.PolicyNumber
	}
	if patch.ApplicationNumber != "" {
		merged.ApplicationNumber = patch.ApplicationNumber
	}
	if patch.Status != "" {
		merged.Status = patch.Status
	}
	if patch.StatusStandardized != "" {
		merged.StatusStandardized = patch.StatusStandardized
	}
	if patch.AnnualPremium != 0 {
		merged.AnnualPremium = patch.AnnualPremium
	}
	if patch.MonthlyPremium != 0 {
		merged.MonthlyPremium = patch.MonthlyPremium
	}
	if patch.PolicyEffectiveDate != "" {
		merged.PolicyEffectiveDate = patch.PolicyEffectiveDate
	}
	if patch.SubmissionDate != "" {
		merged.SubmissionDate = patch.SubmissionDate
	}
	if patch.BillingCycle != "" {
		merged.BillingCycle = patch.BillingCycle
	}
	if patch.BillingDayOfMonth != "" {
		merged.BillingDayOfMonth = patch.BillingDayOfMonth
	}
	if patch.BillingWeekday != "" {
		merged.BillingWeekday = patch.BillingWeekday
	}
	if patch.LeadSource != "" {
		merged.LeadSource = patch.LeadSource
	}
	if patch.ClientName != "" {
		merged.ClientName = patch.ClientName
	}
	if patch.ClientEmail != "" {
		merged.ClientEmail = patch.ClientEmail
	}
	if patch.ClientPhone != "" {
		merged.ClientPhone = patch.ClientPhone
	}
	if patch.ClientAddress != "" {
		merged.ClientAddress = patch.ClientAddress
	}
	if patch.DateOfBirth != "" {
		merged.DateOfBirth = patch.DateOfBirth
	}
	if patch.SSNLast4 != "" {
		merged.SSNLast4 = patch.SSNLast4
	}
	if patch.SSNBenefit {
		merged.SSNBenefit = true
	}
	if patch.Notes != "" {
		merged.Notes = patch.Notes
	}
	return merged
}
