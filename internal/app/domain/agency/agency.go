// Package agency defines the tenant boundary record. Every other table
// in the schema is scoped by agency ID.
package agency

import "time"

// Agency is a tenant of the platform.
type Agency struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
