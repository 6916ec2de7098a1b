// Package billing defines subscription tiers, usage limits, and purchase
// records synchronized with the payments platform.
package billing

import "time"

// Tier is a subscription plan level.
type Tier string

const (
	TierFree   Tier = "free"
	TierBasic  Tier = "basic"
	TierPro    Tier = "pro"
	TierExpert Tier = "expert"
)

var tierLevels = map[Tier]int{
	TierFree:   0,
	TierBasic:  1,
	TierPro:    2,
	TierExpert: 3,
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, ok := tierLevels[t]
	return ok
}

// Level returns the tier's rank in the upgrade ordering. Unknown tiers
// rank as free.
func (t Tier) Level() int {
	return tierLevels[t]
}

// Subscription statuses mirrored from the payments platform.
const (
	StatusActive   = "active"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
	StatusFree     = "free"
)

// MapProviderStatus maps a raw provider subscription status onto the
// statuses the schema stores.
func MapProviderStatus(raw string) string {
	switch raw {
	case "active":
		return StatusActive
	case "past_due":
		return StatusPastDue
	case "canceled":
		return StatusCanceled
	default:
		return StatusFree
	}
}

// Limits describes what a tier entitles a user to. Unlimited values are
// negative.
type Limits struct {
	MaxAgents       int  `json:"max_agents"`
	MaxDealsTotal   int  `json:"max_deals_total"`
	MaxSMSPerMonth  int  `json:"max_sms_per_month"`
	Analytics       bool `json:"analytics"`
	CustomBranding  bool `json:"custom_branding"`
}

// LimitsFor returns the entitlements for a tier.
func LimitsFor(t Tier) Limits {
	switch t {
	case TierBasic:
		return Limits{MaxAgents: 10, MaxDealsTotal: -1, MaxSMSPerMonth: 250}
	case TierPro:
		return Limits{MaxAgents: 25, MaxDealsTotal: -1, MaxSMSPerMonth: 1000, Analytics: true}
	case TierExpert:
		return Limits{MaxAgents: -1, MaxDealsTotal: -1, MaxSMSPerMonth: -1, Analytics: true, CustomBranding: true}
	default:
		return Limits{MaxAgents: 5, MaxDealsTotal: 10, MaxSMSPerMonth: 100}
	}
}

// Purchase records a one-time top-up payment.
type Purchase struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	PurchaseType    string    `json:"purchase_type"`
	PaymentIntentID string    `json:"stripe_payment_intent_id"`
	AmountCents     int64     `json:"amount_cents"`
	Currency        string    `json:"currency"`
	Quantity        int       `json:"quantity"`
	Description     string    `json:"description"`
	Status          string    `json:"status"`
	PurchasedAt     time.Time `json:"purchased_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Top-up purchase types.
const (
	PurchaseMessageTopup = "message_topup"
	PurchaseAITopup      = "ai_topup"
)
