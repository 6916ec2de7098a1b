// Package agents manages agent accounts, positions, and the upline
// hierarchy that scopes record visibility.
package agents

import (
	"context"
	"database/sql"
	"errors"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/agent"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/billing"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/storage"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/apperr"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/logging"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/phone"
)

// AuthAdmin provisions accounts in the external auth provider. Optional;
// when unset agents exist only in the local database.
type AuthAdmin interface {
	InviteUserByEmail(ctx context.Context, email string) (string, error)
	DeleteUser(ctx context.Context, id string) error
}

// Service manages agents and positions.
type Service struct {
	agencies storage.AgencyStore
	store    storage.UserStore
	position storage.PositionStore
	auth     AuthAdmin
	log      *logging.Logger
}

// New constructs an agent service.
func New(agencies storage.AgencyStore, store storage.UserStore, position storage.PositionStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("agents")
	}
	return &Service{agencies: agencies, store: store, position: position, log: log}
}

// AttachAuthAdmin wires the external auth provider used to provision
// login credentials for new agents.
func (s *Service) AttachAuthAdmin(auth AuthAdmin) {
	s.auth = auth
}

// Create registers a new agent under an agency. The creating admin's
// subscription tier caps how many seats the agency may hold.
func (s *Service) Create(ctx context.Context, actor agent.User, u agent.User) (agent.User, error) {
	if !actor.IsAdmin {
		return agent.User{}, apperr.Forbidden("only admins can create agents")
	}
	if u.Email == "" {
		return agent.User{}, apperr.BadRequest("email is required")
	}
	if u.FirstName == "" || u.LastName == "" {
		return agent.User{}, apperr.BadRequest("first_name and last_name are required")
	}
	if u.AgencyID == "" {
		u.AgencyID = actor.AgencyID
	}
	if u.AgencyID != actor.AgencyID {
		return agent.User{}, apperr.Forbidden("cannot create agents outside your agency")
	}

	if _, err := s.agencies.GetAgency(ctx, u.AgencyID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return agent.User{}, apperr.NotFound("agency not found")
		}
		return agent.User{}, err
	}

	if _, err := s.store.GetUserByEmail(ctx, u.Email); err == nil {
		return agent.User{}, apperr.Conflict("email_taken", "an agent with this email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return agent.User{}, err
	}

	if limit := billing.LimitsFor(actor.SubscriptionTier).MaxAgents; limit >= 0 {
		count, err := s.store.CountUsers(ctx, u.AgencyID)
		if err != nil {
			return agent.User{}, err
		}
		if count >= limit {
			return agent.User{}, apperr.Forbidden("agent seat limit reached for your subscription tier")
		}
	}

	if u.UplineID != "" {
		upline, err := s.store.GetUser(ctx, u.UplineID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return agent.User{}, apperr.BadRequest("upline agent not found")
			}
			return agent.User{}, err
		}
		if upline.AgencyID != u.AgencyID {
			return agent.User{}, apperr.BadRequest("upline must belong to the same agency")
		}
	}
	if u.PositionID != "" {
		pos, err := s.position.GetPosition(ctx, u.PositionID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return agent.User{}, apperr.BadRequest("position not found")
			}
			return agent.User{}, err
		}
		if pos.AgencyID != u.AgencyID {
			return agent.User{}, apperr.BadRequest("position must belong to the same agency")
		}
	}
	if u.Phone != "" {
		normalized, err := phone.Normalize(u.Phone)
		if err != nil {
			return agent.User{}, apperr.BadRequest(err.Error())
		}
		u.Phone = normalized
	}

	if s.auth != nil {
		authID, err := s.auth.InviteUserByEmail(ctx, u.Email)
		if err != nil {
			return agent.User{}, apperr.Internal("auth provisioning failed: " + err.Error())
		}
		u.ID = authID
	}

	created, err := s.store.CreateUser(ctx, u)
	if err != nil {
		return agent.User{}, err
	}
	s.log.WithField("agency_id", created.AgencyID).Infof("agent %s created", created.ID)
	return created, nil
}

// CreateOwner provisions the founding admin of a freshly created
// agency. Signup has no acting user yet, so the usual actor checks do
// not apply.
func (s *Service) CreateOwner(ctx context.Context, agencyID string, u agent.User) (agent.User, error) {
	if u.Email == "" {
		return agent.User{}, apperr.BadRequest("email is required")
	}
	if u.FirstName == "" || u.LastName == "" {
		return agent.User{}, apperr.BadRequest("first_name and last_name are required")
	}
	if _, err := s.store.GetUserByEmail(ctx, u.Email); err == nil {
		return agent.User{}, apperr.Conflict("email_taken", "an agent with this email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return agent.User{}, err
	}
	if u.Phone != "" {
		normalized, err := phone.Normalize(u.Phone)
		if err != nil {
			return agent.User{}, apperr.BadRequest(err.Error())
		}
		u.Phone = normalized
	}

	u.AgencyID = agencyID
	u.IsAdmin = true
	u.UplineID = ""
	u.PositionID = ""

	if s.auth != nil {
		authID, err := s.auth.InviteUserByEmail(ctx, u.Email)
		if err != nil {
			return agent.User{}, apperr.Internal("auth provisioning failed: " + err.Error())
		}
		u.ID = authID
	}

	created, err := s.store.CreateUser(ctx, u)
	if err != nil {
		return agent.User{}, err
	}
	s.log.WithField("agency_id", agencyID).Infof("agency owner %s created", created.ID)
	return created, nil
}

// Update overwrites mutable profile fields of an agent.
func (s *Service) Update(ctx context.Context, actor agent.User, u agent.User) (agent.User, error) {
	existing, err := s.Get(ctx, u.ID)
	if err != nil {
		return agent.User{}, err
	}
	if existing.AgencyID != actor.AgencyID {
		return agent.User{}, apperr.NotFound("agent not found")
	}
	if !actor.IsAdmin && actor.ID != u.ID {
		return agent.User{}, apperr.Forbidden("only admins can update other agents")
	}

	// Hierarchy and role changes are admin-only.
	if !actor.IsAdmin {
		u.UplineID = existing.UplineID
		u.PositionID = existing.PositionID
		u.IsAdmin = existing.IsAdmin
		u.Status = existing.Status
	}

	if u.FirstName == "" {
		u.FirstName = existing.FirstName
	}
	if u.LastName == "" {
		u.LastName = existing.LastName
	}
	if u.Email == "" {
		u.Email = existing.Email
	}
	if u.Status == "" {
		u.Status = existing.Status
	}
	if u.Phone == "" {
		u.Phone = existing.Phone
	} else {
		normalized, err := phone.Normalize(u.Phone)
		if err != nil {
			return agent.User{}, apperr.BadRequest(err.Error())
		}
		u.Phone = normalized
	}

	if u.UplineID != "" && u.UplineID != existing.UplineID {
		if u.UplineID == u.ID {
			return agent.User{}, apperr.BadRequest("an agent cannot be their own upline")
		}
		downline, err := s.store.DownlineIDs(ctx, u.ID, existing.AgencyID, 0, false)
		if err != nil {
			return agent.User{}, err
		}
		for _, id := range downline {
			if id == u.UplineID {
				return agent.User{}, apperr.BadRequest("upline change would create a hierarchy cycle")
			}
		}
	}

	// Billing columns are managed by the billing service, never here.
	u.AgencyID = existing.AgencyID
	u.SubscriptionTier = existing.SubscriptionTier
	u.SubscriptionStatus = existing.SubscriptionStatus
	u.StripeCustomerID = existing.StripeCustomerID
	u.StripeSubscriptionID = existing.StripeSubscriptionID
	u.BillingCycleStart = existing.BillingCycleStart
	u.BillingCycleEnd = existing.BillingCycleEnd
	u.ScheduledTierChange = existing.ScheduledTierChange
	u.ScheduledTierDate = existing.ScheduledTierDate
	u.MessagesSentCount = existing.MessagesSentCount
	u.MessagesTopupCredits = existing.MessagesTopupCredits
	u.MessagesResetDate = existing.MessagesResetDate
	u.DealsCreatedCount = existing.DealsCreatedCount
	u.UniqueCarriers = existing.UniqueCarriers

	updated, err := s.store.UpdateUser(ctx, u)
	if err != nil {
		return agent.User{}, err
	}
	s.log.Infof("agent %s updated", u.ID)
	return updated, nil
}

// Get retrieves an agent by identifier.
func (s *Service) Get(ctx context.Context, id string) (agent.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return agent.User{}, apperr.NotFound("agent not found")
	}
	return u, err
}

// GetByEmail retrieves an agent by email.
func (s *Service) GetByEmail(ctx context.Context, email string) (agent.User, error) {
	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return agent.User{}, apperr.NotFound("agent not found")
	}
	return u, err
}

// List returns the agents in an agency.
func (s *Service) List(ctx context.Context, agencyID string) ([]agent.User, error) {
	return s.store.ListUsers(ctx, agencyID)
}

// Delete removes an agent from the agency and, when configured, from
// the auth provider.
func (s *Service) Delete(ctx context.Context, actor agent.User, id string) error {
	if !actor.IsAdmin {
		return apperr.Forbidden("only admins can delete agents")
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing.AgencyID != actor.AgencyID {
		return apperr.NotFound("agent not found")
	}

	if err := s.store.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("agent not found")
		}
		return err
	}
	if s.auth != nil {
		if err := s.auth.DeleteUser(ctx, id); err != nil {
			s.log.WithError(err).Warnf("auth cleanup failed for agent %s", id)
		}
	}
	s.log.Infof("agent %s deleted", id)
	return nil
}

// Downline returns the agents below userID, optionally capped at
// maxDepth levels. The root agent is included.
func (s *Service) Downline(ctx context.Context, userID, agencyID string, maxDepth int) ([]agent.User, error) {
	ids, err := s.store.DownlineIDs(ctx, userID, agencyID, maxDepth, true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("agent not found")
		}
		return nil, err
	}

	out := make([]agent.User, 0, len(ids))
	for _, id := range ids {
		u, err := s.store.GetUser(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// UplineChain returns the chain from userID (level 0) up to the root.
func (s *Service) UplineChain(ctx context.Context, userID string) ([]agent.UplineMember, error) {
	chain, err := s.store.UplineChain(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("agent not found")
	}
	return chain, err
}

// SetUniqueCarriers replaces an agent's verified carrier list, as
// reported by a completed license verification run.
func (s *Service) SetUniqueCarriers(ctx context.Context, actor agent.User, userID string, carriers []string) error {
	target, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if target.AgencyID != actor.AgencyID {
		return apperr.NotFound("agent not found")
	}
	if !actor.IsAdmin && actor.ID != userID {
		return apperr.Forbidden("cannot update another agent's carriers")
	}
	return s.store.SetUniqueCarriers(ctx, userID, carriers)
}

// VisibleAgentIDs resolves a visibility mode to the set of agent IDs
// whose records the user may see. A nil slice means the whole agency.
// The default mode is the agent plus their downline; non-admins asking
// for agency-wide visibility are quietly narrowed to the same scope.
func (s *Service) VisibleAgentIDs(ctx context.Context, u agent.User, view string) ([]string, error) {
	switch view {
	case agent.ViewSelf:
		return []string{u.ID}, nil
	case "", agent.ViewDownlines:
		return s.store.DownlineIDs(ctx, u.ID, u.AgencyID, 0, true)
	case agent.ViewAll:
		if !u.IsAdmin {
			return s.store.DownlineIDs(ctx, u.ID, u.AgencyID, 0, true)
		}
		return nil, nil
	default:
		return nil, apperr.BadRequest("unknown view mode: " + view)
	}
}
