// Package carriers manages insurance carriers and their products.
package carriers

import (
	"context"
	"database/sql"
	"errors"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/carrier"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/storage"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/apperr"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/logging"
)

// Service manages carriers and products.
type Service struct {
	store storage.CarrierStore
	log   *logging.Logger
}

// New constructs a carrier service.
func New(store storage.CarrierStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("carriers")
	}
	return &Service{store: store, log: log}
}

// CreateCarrier registers a carrier under an agency.
func (s *Service) CreateCarrier(ctx context.Context, c carrier.Carrier) (carrier.Carrier, error) {
	if c.AgencyID == "" {
		return carrier.Carrier{}, apperr.BadRequest("agency_id is required")
	}
	if c.Name == "" {
		return carrier.Carrier{}, apperr.BadRequest("name is required")
	}

	created, err := s.store.CreateCarrier(ctx, c)
	if err != nil {
		return carrier.Carrier{}, err
	}
	s.log.Infof("carrier %s created", created.ID)
	return created, nil
}

// UpdateCarrier overwrites mutable fields of a carrier.
func (s *Service) UpdateCarrier(ctx context.Context, c carrier.Carrier) (carrier.Carrier, error) {
	existing, err := s.GetCarrier(ctx, c.ID)
	if err != nil {
		return carrier.Carrier{}, err
	}
	if c.Name == "" {
		c.Name = existing.Name
	}
	if c.Status == "" {
		c.Status = existing.Status
	}
	c.AgencyID = existing.AgencyID

	return s.store.UpdateCarrier(ctx, c)
}

// GetCarrier retrieves a carrier by identifier.
func (s *Service) GetCarrier(ctx context.Context, id string) (carrier.Carrier, error) {
	c, err := s.store.GetCarrier(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return carrier.Carrier{}, apperr.NotFound("carrier not found")
	}
	return c, err
}

// ListCarriers returns an agency's carriers.
func (s *Service) ListCarriers(ctx context.Context, agencyID string) ([]carrier.Carrier, error) {
	return s.store.ListCarriers(ctx, agencyID)
}

// DeleteCarrier removes a carrier.
func (s *Service) DeleteCarrier(ctx context.Context, id string) error {
	err := s.store.DeleteCarrier(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("carrier not found")
	}
	return err
}

// CreateProduct registers a product under a carrier.
func (s *Service) CreateProduct(ctx context.Context, p carrier.Product) (carrier.Product, error) {
	if p.Name == "" {
		return carrier.Product{}, apperr.BadRequest("name is required")
	}
	parent, err := s.GetCarrier(ctx, p.CarrierID)
	if err != nil {
		return carrier.Product{}, err
	}
	if p.AgencyID == "" {
		p.AgencyID = parent.AgencyID
	}
	if p.AgencyID != parent.AgencyID {
		return carrier.Product{}, apperr.BadRequest("product agency must match the carrier's agency")
	}

	created, err := s.store.CreateProduct(ctx, p)
	if err != nil {
		return carrier.Product{}, err
	}
	s.log.Infof("product %s created under carrier %s", created.ID, p.CarrierID)
	return created, nil
}

// UpdateProduct overwrites mutable fields of a product.
func (s *Service) UpdateProduct(ctx context.Context, p carrier.Product) (carrier.Product, error) {
	existing, err := s.GetProduct(ctx, p.ID)
	if err != nil {
		return carrier.Product{}, err
	}
	if p.Name == "" {
		p.Name = existing.Name
	}
	if p.ProductType == "" {
		p.ProductType = existing.ProductType
	}
	p.AgencyID = existing.AgencyID
	p.CarrierID = existing.CarrierID

	return s.store.UpdateProduct(ctx, p)
}

// GetProduct retrieves a product by identifier.
func (s *Service) GetProduct(ctx context.Context, id string) (carrier.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return carrier.Product{}, apperr.NotFound("product not found")
	}
	return p, err
}

// ListProducts returns an agency's products, optionally narrowed to one
// carrier.
func (s *Service) ListProducts(ctx context.Context, agencyID, carrierID string) ([]carrier.Product, error) {
	return s.store.ListProducts(ctx, agencyID, carrierID)
}

// DeleteProduct removes a product.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	err := s.store.DeleteProduct(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("product not found")
	}
	return err
}
