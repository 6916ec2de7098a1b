// Package clients manages policyholder records.
package clients

import (
	"context"
	"database/sql"
	"errors"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/agent"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/client"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/storage"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/apperr"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/logging"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/phone"
)

// Visibility resolves which agents' records a user may see.
type Visibility interface {
	VisibleAgentIDs(ctx context.Context, u agent.User, view string) ([]string, error)
}

// Service manages clients.
type Service struct {
	store      storage.ClientStore
	visibility Visibility
	log        *logging.Logger
}

// New constructs a client service.
func New(store storage.ClientStore, visibility Visibility, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("clients")
	}
	return &Service{store: store, visibility: visibility, log: log}
}

// Create registers a client record.
func (s *Service) Create(ctx context.Context, actor agent.User, c client.Client) (client.Client, error) {
	if c.FirstName == "" || c.LastName == "" {
		return client.Client{}, apperr.BadRequest("first_name and last_name are required")
	}
	c.AgencyID = actor.AgencyID
	if c.AgentID == "" {
		c.AgentID = actor.ID
	}
	if c.Phone != "" {
		normalized, err := phone.Normalize(c.Phone)
		if err != nil {
			return client.Client{}, apperr.BadRequest(err.Error())
		}
		c.Phone = normalized
	}

	created, err := s.store.CreateClient(ctx, c)
	if err != nil {
		return client.Client{}, err
	}
	s.log.Infof("client %s created", created.ID)
	return created, nil
}

// Update overwrites mutable fields of a client.
func (s *Service) Update(ctx context.Context, actor agent.User, c client.Client) (client.Client, error) {
	existing, err := s.Get(ctx, actor, c.ID)
	if err != nil {
		return client.Client{}, err
	}

	if c.FirstName == "" {
		c.FirstName = existing.FirstName
	}
	if c.LastName == "" {
		c.LastName = existing.LastName
	}
	if c.Email == "" {
		c.Email = existing.Email
	}
	if c.Address == "" {
		c.Address = existing.Address
	}
	if c.DateOfBirth == "" {
		c.DateOfBirth = existing.DateOfBirth
	}
	if c.AgentID == "" {
		c.AgentID = existing.AgentID
	}
	if c.Phone == "" {
		c.Phone = existing.Phone
	} else {
		normalized, err := phone.Normalize(c.Phone)
		if err != nil {
			return client.Client{}, apperr.BadRequest(err.Error())
		}
		c.Phone = normalized
	}
	c.AgencyID = existing.AgencyID

	return s.store.UpdateClient(ctx, c)
}

// Get retrieves a client scoped to the actor's agency.
func (s *Service) Get(ctx context.Context, actor agent.User, id string) (client.Client, error) {
	c, err := s.store.GetClient(ctx, id, actor.AgencyID)
	if errors.Is(err, sql.ErrNoRows) {
		return client.Client{}, apperr.NotFound("client not found")
	}
	return c, err
}

// FindByPhone looks a client up by phone number within the actor's
// agency. The number is normalized before matching, so any format that
// reaches the stored form finds the record.
func (s *Service) FindByPhone(ctx context.Context, actor agent.User, rawPhone string) (client.Client, error) {
	normalized, err := phone.Normalize(rawPhone)
	if err != nil {
		return client.Client{}, apperr.BadRequest(err.Error())
	}
	c, err := s.store.FindClientByPhone(ctx, actor.AgencyID, normalized)
	if errors.Is(err, sql.ErrNoRows) {
		return client.Client{}, apperr.NotFound("client not found")
	}
	return c, err
}

// List returns clients visible to the actor under the given view mode.
func (s *Service) List(ctx context.Context, actor agent.User, view string) ([]client.Client, error) {
	agentIDs, err := s.visibility.VisibleAgentIDs(ctx, actor, view)
	if err != nil {
		return nil, err
	}
	return s.store.ListClients(ctx, actor.AgencyID, agentIDs)
}

// Delete removes a client.
func (s *Service) Delete(ctx context.Context, actor agent.User, id string) error {
	err := s.store.DeleteClient(ctx, id, actor.AgencyID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("client not found")
	}
	return err
}
