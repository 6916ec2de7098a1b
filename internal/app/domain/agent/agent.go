// Package agent defines agent users, their positions, and the upline
// hierarchy used for visibility scoping.
package agent

import (
	"time"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/billing"
)

// User is an agent account within an agency.
type User struct {
	ID         string `json:"id"`
	AgencyID   string `json:"agency_id"`
	UplineID   string `json:"upline_id,omitempty"`
	PositionID string `json:"position_id,omitempty"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	IsAdmin    bool   `json:"is_admin"`
	Status     string `json:"status"`

	SubscriptionTier     billing.Tier `json:"subscription_tier"`
	SubscriptionStatus   string       `json:"subscription_status"`
	StripeCustomerID     string       `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string       `json:"stripe_subscription_id,omitempty"`
	BillingCycleStart    time.Time    `json:"billing_cycle_start,omitempty"`
	BillingCycleEnd      time.Time    `json:"billing_cycle_end,omitempty"`
	ScheduledTierChange  billing.Tier `json:"scheduled_tier_change,omitempty"`
	ScheduledTierDate    time.Time    `json:"scheduled_tier_change_date,omitempty"`

	MessagesSentCount    int       `json:"messages_sent_count"`
	MessagesTopupCredits int       `json:"messages_topup_credits"`
	MessagesResetDate    time.Time `json:"messages_reset_date,omitempty"`
	DealsCreatedCount    int       `json:"deals_created_count"`
	UniqueCarriers       []string  `json:"unique_carriers,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FullName joins the user's names, tolerating blanks.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// Position is a rank in the agency hierarchy used for commission
// mapping.
type Position struct {
	ID        string    `json:"id"`
	AgencyID  string    `json:"agency_id"`
	Name      string    `json:"name"`
	Level     int       `json:"level"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UplineMember is one link in an agent's upline chain, ordered by
// hierarchy level (0 = the agent themselves).
type UplineMember struct {
	ID         string `json:"id"`
	PositionID string `json:"position_id,omitempty"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Level      int    `json:"hierarchy_level"`
}

// Name joins the member's names, tolerating blanks.
func (m UplineMember) Name() string {
	if m.FirstName == "" {
		return m.LastName
	}
	if m.LastName == "" {
		return m.FirstName
	}
	return m.FirstName + " " + m.LastName
}

// View modes for record visibility.
const (
	ViewSelf      = "self"
	ViewDownlines = "downlines"
	ViewAll       = "all"
)

// MaxUplineDepth caps upline traversal when validating deals.
const MaxUplineDepth = 20
