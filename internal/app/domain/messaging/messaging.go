// Package messaging defines SMS conversations and messages.
package messaging

import "time"

// Opt-in statuses for a conversation's phone number.
const (
	OptInPending  = "pending"
	OptInOptedIn  = "opted_in"
	OptInOptedOut = "opted_out"
)

// Message directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Message delivery statuses.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Conversation is an SMS thread between an agent and a client phone
// number, usually anchored to a deal.
type Conversation struct {
	ID             string    `json:"id"`
	AgencyID       string    `json:"agency_id"`
	AgentID        string    `json:"agent_id"`
	DealID         string    `json:"deal_id,omitempty"`
	ClientPhone    string    `json:"client_phone"`
	SMSOptInStatus string    `json:"sms_opt_in_status"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Message is a single SMS in a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	AgencyID       string    `json:"agency_id"`
	Direction      string    `json:"direction"`
	Status         string    `json:"status"`
	Body           string    `json:"body"`
	ExternalID     string    `json:"external_id,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
