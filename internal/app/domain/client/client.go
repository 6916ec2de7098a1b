// Package client defines client (policyholder) records.
package client

import "time"

// Client is a policyholder record scoped to an agency.
type Client struct {
	ID          string    `json:"id"`
	AgencyID    string    `json:"agency_id"`
	AgentID     string    `json:"agent_id,omitempty"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Address     string    `json:"address,omitempty"`
	DateOfBirth string    `json:"date_of_birth,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
