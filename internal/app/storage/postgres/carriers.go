package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/carrier"
)

// --- CarrierStore -----------------------------------------------------------

func (s *Store) CreateCarrier(ctx context.Context, c carrier.Carrier) (carrier.Carrier, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = "active"
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO carriers (id, agency_id, name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.AgencyID, c.Name, c.Status, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return carrier.Carrier{}, err
	}
	return c, nil
}

func (s *Store) UpdateCarrier(ctx context.Context, c carrier.Carrier) (carrier.Carrier, error) {
	c.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE carriers
		SET name = $2, status = $3, updated_at = $4
		WHERE id = $1
	`, c.ID, c.Name, c.Status, c.UpdatedAt)
	if err != nil {
		return carrier.Carrier{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return carrier.Carrier{}, sql.ErrNoRows
	}
	return c, nil
}

func (s *Store) GetCarrier(ctx context.Context, id string) (carrier.Carrier, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agency_id, name, status, created_at, updated_at
		FROM carriers
		WHERE id = $1
	`, id)

	var c carrier.Carrier
	if err := row.Scan(&c.ID, &c.AgencyID, &c.Name, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return carrier.Carrier{}, err
	}
	return c, nil
}

func (s *Store) ListCarriers(ctx context.Context, agencyID string) ([]carrier.Carrier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agency_id, name, status, created_at, updated_at
		FROM carriers
		WHERE agency_id = $1
		ORDER BY name
	`, agencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []carrier.Carrier
	for rows.Next() {
		var c carrier.Carrier
		if err := rows.Scan(&c.ID, &c.AgencyID, &c.Name, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) DeleteCarrier(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM carriers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// --- products ---------------------------------------------------------------

func (s *Store) CreateProduct(ctx context.Context, p carrier.Product) (carrier.Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, agency_id, carrier_id, name, product_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.AgencyID, p.CarrierID, p.Name, nullString(p.ProductType), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return carrier.Product{}, err
	}
	return p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p carrier.Product) (carrier.Product, error) {
	p.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, product_type = $3, updated_at = $4
		WHERE id = $1
	`, p.ID, p.Name, nullString(p.ProductType), p.UpdatedAt)
	if err != nil {
		return carrier.Product{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return carrier.Product{}, sql.ErrNoRows
	}
	return p, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (carrier.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agency_id, carrier_id, name, product_type, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id)
	return scanProduct(row)
}

func (s *Store) ListProducts(ctx context.Context, agencyID, carrierID string) ([]carrier.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agency_id, carrier_id, name, product_type, created_at, updated_at
		FROM products
		WHERE agency_id = $1 AND ($2 = '' OR carrier_id = $2)
		ORDER BY name
	`, agencyID, carrierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []carrier.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanProduct(row rowScanner) (carrier.Product, error) {
	var (
		p           carrier.Product
		productType sql.NullString
	)
	if err := row.Scan(&p.ID, &p.AgencyID, &p.CarrierID, &p.Name, &productType, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return carrier.Product{}, err
	}
	p.ProductType = productType.String
	return p, nil
}

// --- commission mappings ----------------------------------------------------

func (s *Store) SetCommission(ctx context.Context, c carrier.Commission) (carrier.Commission, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	// Upsert on the (position, product) pair.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO position_product_commissions (id, position_id, product_id, commission_percentage, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (position_id, product_id)
		DO UPDATE SET commission_percentage = EXCLUDED.commission_percentage, updated_at = EXCLUDED.updated_at
	`, c.ID, c.PositionID, c.ProductID, c.CommissionPercentage, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return carrier.Commission{}, err
	}
	return c, nil
}

func (s *Store) ListCommissionsForProduct(ctx context.Context, productID string) ([]carrier.Commission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, position_id, product_id, commission_percentage, created_at, updated_at
		FROM position_product_commissions
		WHERE product_id = $1
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []carrier.Commission
	for rows.Next() {
		var c carrier.Commission
		if err := rows.Scan(&c.ID, &c.PositionID, &c.ProductID, &c.CommissionPercentage, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}
