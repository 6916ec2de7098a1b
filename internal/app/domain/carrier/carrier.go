// Package carrier defines insurance carriers, their products, and the
// per-position commission mappings products carry.
package carrier

import "time"

// Carrier is an insurance company an agency writes business with.
type Carrier struct {
	ID        string    `json:"id"`
	AgencyID  string    `json:"agency_id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Product is a carrier product offered within an agency.
type Product struct {
	ID          string    `json:"id"`
	AgencyID    string    `json:"agency_id"`
	CarrierID   string    `json:"carrier_id"`
	Name        string    `json:"name"`
	ProductType string    `json:"product_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Commission maps a position to its commission percentage on a product.
type Commission struct {
	ID                   string    `json:"id"`
	PositionID           string    `json:"position_id"`
	ProductID            string    `json:"product_id"`
	CommissionPercentage float64   `json:"commission_percentage"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}
