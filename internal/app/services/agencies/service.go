// Package agencies manages tenant agency records.
package agencies

import (
	"context"
	"database/sql"
	"errors"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/agency"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/storage"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/apperr"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/logging"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/phone"
)

// Service manages agencies.
type Service struct {
	store storage.AgencyStore
	log   *logging.Logger
}

// New constructs an agency service.
func New(store storage.AgencyStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("agencies")
	}
	return &Service{store: store, log: log}
}

// Create registers a new agency.
func (s *Service) Create(ctx context.Context, a agency.Agency) (agency.Agency, error) {
	if a.Name == "" {
		return agency.Agency{}, apperr.BadRequest("name is required")
	}
	if a.PhoneNumber != "" {
		normalized, err := phone.Normalize(a.PhoneNumber)
		if err != nil {
			return agency.Agency{}, apperr.BadRequest(err.Error())
		}
		a.PhoneNumber = normalized
	}

	created, err := s.store.CreateAgency(ctx, a)
	if err != nil {
		return agency.Agency{}, err
	}
	s.log.Infof("agency %s created", created.ID)
	return created, nil
}

// Update overwrites mutable fields of an agency.
func (s *Service) Update(ctx context.Context, a agency.Agency) (agency.Agency, error) {
	existing, err := s.Get(ctx, a.ID)
	if err != nil {
		return agency.Agency{}, err
	}

	if a.Name == "" {
		a.Name = existing.Name
	}
	if a.Status == "" {
		a.Status = existing.Status
	}
	if a.PhoneNumber == "" {
		a.PhoneNumber = existing.PhoneNumber
	} else {
		normalized, err := phone.Normalize(a.PhoneNumber)
		if err != nil {
			return agency.Agency{}, apperr.BadRequest(err.Error())
		}
		a.PhoneNumber = normalized
	}

	updated, err := s.store.UpdateAgency(ctx, a)
	if err != nil {
		return agency.Agency{}, err
	}
	s.log.Infof("agency %s updated", a.ID)
	return updated, nil
}

// Get retrieves an agency by identifier.
func (s *Service) Get(ctx context.Context, id string) (agency.Agency, error) {
	a, err := s.store.GetAgency(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return agency.Agency{}, apperr.NotFound("agency not found")
	}
	return a, err
}

// Delete removes an agency.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.store.DeleteAgency(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("agency not found")
	}
	if err == nil {
		s.log.Infof("agency %s deleted", id)
	}
	return err
}
