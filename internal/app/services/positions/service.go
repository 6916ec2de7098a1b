// Package positions manages hierarchy positions and their per-product
// commission percentages.
package positions

import (
	"context"
	"database/sql"
	"errors"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/agent"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/carrier"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/storage"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/apperr"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/logging"
)

// Service manages positions and commission mappings.
type Service struct {
	store    storage.PositionStore
	products storage.CarrierStore
	log      *logging.Logger
}

// New constructs a position service.
func New(store storage.PositionStore, products storage.CarrierStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("positions")
	}
	return &Service{store: store, products: products, log: log}
}

// Create registers a new position.
func (s *Service) Create(ctx context.Context, p agent.Position) (agent.Position, error) {
	if p.AgencyID == "" {
		return agent.Position{}, apperr.BadRequest("agency_id is required")
	}
	if p.Name == "" {
		return agent.Position{}, apperr.BadRequest("name is required")
	}
	if p.Level < 0 {
		return agent.Position{}, apperr.BadRequest("level must be non-negative")
	}

	created, err := s.store.CreatePosition(ctx, p)
	if err != nil {
		return agent.Position{}, err
	}
	s.log.Infof("position %s created", created.ID)
	return created, nil
}

// Update overwrites mutable fields of a position.
func (s *Service) Update(ctx context.Context, p agent.Position) (agent.Position, error) {
	existing, err := s.Get(ctx, p.ID)
	if err != nil {
		return agent.Position{}, err
	}
	if p.Name == "" {
		p.Name = existing.Name
	}
	if p.Level < 0 {
		return agent.Position{}, apperr.BadRequest("level must be non-negative")
	}
	p.AgencyID = existing.AgencyID

	updated, err := s.store.UpdatePosition(ctx, p)
	if err != nil {
		return agent.Position{}, err
	}
	return updated, nil
}

// Get retrieves a position by identifier.
func (s *Service) Get(ctx context.Context, id string) (agent.Position, error) {
	p, err := s.store.GetPosition(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return agent.Position{}, apperr.NotFound("position not found")
	}
	return p, err
}

// List returns an agency's positions ordered by hierarchy level.
func (s *Service) List(ctx context.Context, agencyID string) ([]agent.Position, error) {
	return s.store.ListPositions(ctx, agencyID)
}

// Delete removes a position.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.store.DeletePosition(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("position not found")
	}
	return err
}

// SetCommission upserts the commission percentage a position earns on a
// product.
func (s *Service) SetCommission(ctx context.Context, c carrier.Commission) (carrier.Commission, error) {
	if c.PositionID == "" || c.ProductID == "" {
		return carrier.Commission{}, apperr.BadRequest("position_id and product_id are required")
	}
	if c.CommissionPercentage < 0 || c.CommissionPercentage > 100 {
		return carrier.Commission{}, apperr.BadRequest("commission_percentage must be between 0 and 100")
	}
	if _, err := s.Get(ctx, c.PositionID); err != nil {
		return carrier.Commission{}, err
	}
	if _, err := s.products.GetProduct(ctx, c.ProductID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return carrier.Commission{}, apperr.NotFound("product not found")
		}
		return carrier.Commission{}, err
	}

	set, err := s.store.SetCommission(ctx, c)
	if err != nil {
		return carrier.Commission{}, err
	}
	s.log.Infof("commission set for position %s on product %s", c.PositionID, c.ProductID)
	return set, nil
}

// CommissionsForProduct lists the commission mappings defined on a
// product across all positions.
func (s *Service) CommissionsForProduct(ctx context.Context, productID string) ([]carrier.Commission, error) {
	return s.store.ListCommissionsForProduct(ctx, productID)
}
