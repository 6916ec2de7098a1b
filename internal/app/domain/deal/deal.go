// Package deal defines insurance policy records, beneficiaries, and the
// hierarchy snapshots captured at deal creation time.
package deal

import "time"

// Standardized deal statuses. The raw carrier status is stored alongside
// in Status.
const (
	StatusActive     = "active"
	StatusPending    = "pending"
	StatusCancelled  = "cancelled"
	StatusLapsed     = "lapsed"
	StatusTerminated = "terminated"

	// Notification statuses set by status sweeps; cleared by resolve.
	StatusLapseNotified         = "lapse_notified"
	StatusNeedsMoreInfoNotified = "needs_more_info_notified"
)

// ValidStandardizedStatus reports whether s may be written through the
// status update endpoint.
func ValidStandardizedStatus(s string) bool {
	switch s {
	case StatusActive, StatusPending, StatusCancelled, StatusLapsed, StatusTerminated:
		return true
	}
	return false
}

// Deal links an agent, client, carrier, and product into a policy
// record. Client identity fields are embedded so a deal can stand alone
// before a client record exists.
type Deal struct {
	ID       string `json:"id"`
	AgencyID string `json:"agency_id"`
	AgentID  string `json:"agent_id"`

	ClientID  string `json:"client_id,omitempty"`
	CarrierID string `json:"carrier_id,omitempty"`
	ProductID string `json:"product_id,omitempty"`

	PolicyNumber       string `json:"policy_number,omitempty"`
	ApplicationNumber  string `json:"application_number,omitempty"`
	Status             string `json:"status,omitempty"`
	StatusStandardized string `json:"status_standardized,omitempty"`

	AnnualPremium  float64 `json:"annual_premium,omitempty"`
	MonthlyPremium float64 `json:"monthly_premium,omitempty"`

	PolicyEffectiveDate string `json:"policy_effective_date,omitempty"`
	SubmissionDate      string `json:"submission_date,omitempty"`

	BillingCycle      string `json:"billing_cycle,omitempty"`
	BillingDayOfMonth string `json:"billing_day_of_month,omitempty"`
	BillingWeekday    string `json:"billing_weekday,omitempty"`
	LeadSource        string `json:"lead_source,omitempty"`

	ClientName    string `json:"client_name,omitempty"`
	ClientEmail   string `json:"client_email,omitempty"`
	ClientPhone   string `json:"client_phone,omitempty"`
	ClientAddress string `json:"client_address,omitempty"`
	DateOfBirth   string `json:"date_of_birth,omitempty"`
	SSNLast4      string `json:"ssn_last_4,omitempty"`
	SSNBenefit    bool   `json:"ssn_benefit,omitempty"`
	Notes         string `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Beneficiary is a named beneficiary attached to a deal.
type Beneficiary struct {
	ID           string `json:"id"`
	DealID       string `json:"deal_id"`
	AgencyID     string `json:"agency_id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Relationship string `json:"relationship,omitempty"`
}

// BeneficiaryInput is the raw beneficiary payload; the name is split on
// the first space into first/last.
type BeneficiaryInput struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship,omitempty"`
}

// HierarchySnapshot freezes one level of the writing agent's upline at
// deal creation time together with the commission percentage in force.
type HierarchySnapshot struct {
	ID                   string   `json:"id"`
	DealID               string   `json:"deal_id"`
	AgentID              string   `json:"agent_id"`
	PositionID           string   `json:"position_id,omitempty"`
	HierarchyLevel       int      `json:"hierarchy_level"`
	CommissionPercentage *float64 `json:"commission_percentage,omitempty"`
}

// Filter narrows deal listings.
type Filter struct {
	AgencyID           string
	AgentIDs           []string
	StatusStandardized string
	Limit              int
	Offset             int
}

// Stats aggregates deals for the dashboard.
type Stats struct {
	TotalDeals          int            `json:"total_deals"`
	ByStatus            map[string]int `json:"by_status"`
	TotalAnnualPremium  float64        `json:"total_annual_premium"`
	TotalMonthlyPremium float64        `json:"total_monthly_premium"`
	AgentCount          int            `json:"agent_count"`
}
