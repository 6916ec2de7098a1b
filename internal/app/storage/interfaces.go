package storage

import (
	"context"
	"errors"
	"time"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/agency"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/agent"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/billing"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/carrier"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/client"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/deal"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/messaging"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/nipr"
)

// ErrAlreadyExists reports an insert that collided with an existing
// row on a uniqueness constraint.
var ErrAlreadyExists = errors.New("storage: already exists")

// AgencyStore persists tenant records.
type AgencyStore interface {
	CreateAgency(ctx context.Context, a agency.Agency) (agency.Agency, error)
	UpdateAgency(ctx context.Context, a agency.Agency) (agency.Agency, error)
	GetAgency(ctx context.Context, id string) (agency.Agency, error)

	// GetAgencyByPhone resolves the tenant owning a sending phone
	// number, for routing inbound SMS.
	GetAgencyByPhone(ctx context.Context, phone string) (agency.Agency, error)
	DeleteAgency(ctx context.Context, id string) error
}

// UserStore persists agent users and answers hierarchy queries.
type UserStore interface {
	CreateUser(ctx context.Context, u agent.User) (agent.User, error)
	UpdateUser(ctx context.Context, u agent.User) (agent.User, error)
	GetUser(ctx context.Context, id string) (agent.User, error)
	GetUserByEmail(ctx context.Context, email string) (agent.User, error)
	ListUsers(ctx context.Context, agencyID string) ([]agent.User, error)
	DeleteUser(ctx context.Context, id string) error
	CountUsers(ctx context.Context, agencyID string) (int, error)

	// DownlineIDs returns the IDs below userID in the agency hierarchy.
	// maxDepth <= 0 means unlimited. The root is prepended when
	// includeSelf is set.
	DownlineIDs(ctx context.Context, userID, agencyID string, maxDepth int, includeSelf bool) ([]string, error)

	// UplineChain returns the chain starting at userID (level 0) up to
	// the root, capped at agent.MaxUplineDepth.
	UplineChain(ctx context.Context, userID string) ([]agent.UplineMember, error)

	IncrementDealsCreated(ctx context.Context, userID string) error
	IncrementMessagesSent(ctx context.Context, userID string) error
	SetUniqueCarriers(ctx context.Context, userID string, carriers []string) error
}

// PositionStore persists positions and commission mappings.
type PositionStore interface {
	CreatePosition(ctx context.Context, p agent.Position) (agent.Position, error)
	UpdatePosition(ctx context.Context, p agent.Position) (agent.Position, error)
	GetPosition(ctx context.Context, id string) (agent.Position, error)
	ListPositions(ctx context.Context, agencyID string) ([]agent.Position, error)
	DeletePosition(ctx context.Context, id string) error

	SetCommission(ctx context.Context, c carrier.Commission) (carrier.Commission, error)
	ListCommissionsForProduct(ctx context.Context, productID string) ([]carrier.Commission, error)
}

// CarrierStore persists carriers and products.
type CarrierStore interface {
	CreateCarrier(ctx context.Context, c carrier.Carrier) (carrier.Carrier, error)
	UpdateCarrier(ctx context.Context, c carrier.Carrier) (carrier.Carrier, error)
	GetCarrier(ctx context.Context, id string) (carrier.Carrier, error)
	ListCarriers(ctx context.Context, agencyID string) ([]carrier.Carrier, error)
	DeleteCarrier(ctx context.Context, id string) error

	CreateProduct(ctx context.Context, p carrier.Product) (carrier.Product, error)
	UpdateProduct(ctx context.Context, p carrier.Product) (carrier.Product, error)
	GetProduct(ctx context.Context, id string) (carrier.Product, error)
	ListProducts(ctx context.Context, agencyID, carrierID string) ([]carrier.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

// ClientStore persists client records.
type ClientStore interface {
	CreateClient(ctx context.Context, c client.Client) (client.Client, error)
	UpdateClient(ctx context.Context, c client.Client) (client.Client, error)
	GetClient(ctx context.Context, id, agencyID string) (client.Client, error)
	ListClients(ctx context.Context, agencyID string, agentIDs []string) ([]client.Client, error)
	DeleteClient(ctx context.Context, id, agencyID string) error
	FindClientByPhone(ctx context.Context, agencyID, phone string) (client.Client, error)
}

// DealStore persists deals, beneficiaries, and hierarchy snapshots.
type DealStore interface {
	CreateDeal(ctx context.Context, d deal.Deal) (deal.Deal, error)
	UpdateDeal(ctx context.Context, d deal.Deal) (deal.Deal, error)
	GetDeal(ctx context.Context, id, agencyID string) (deal.Deal, error)
	ListDeals(ctx context.Context, f deal.Filter) ([]deal.Deal, error)
	DeleteDeal(ctx context.Context, id, agencyID string) error

	// FindDealByPhone returns the deal holding a normalized client phone
	// inside the agency, skipping excludeID when non-empty.
	FindDealByPhone(ctx context.Context, agencyID, phone, excludeID string) (deal.Deal, error)

	ReplaceBeneficiaries(ctx context.Context, dealID, agencyID string, bens []deal.Beneficiary) error
	ListBeneficiaries(ctx context.Context, dealID string) ([]deal.Beneficiary, error)

	InsertHierarchySnapshots(ctx context.Context, snaps []deal.HierarchySnapshot) error
	ListHierarchySnapshots(ctx context.Context, dealID string) ([]deal.HierarchySnapshot, error)

	DealStats(ctx context.Context, agencyID string, agentIDs []string) (deal.Stats, error)
}

// MessagingStore persists SMS conversations and messages.
type MessagingStore interface {
	CreateConversation(ctx context.Context, c messaging.Conversation) (messaging.Conversation, error)
	GetConversation(ctx context.Context, id, agencyID string) (messaging.Conversation, error)
	FindConversationByPhone(ctx context.Context, agencyID, phone string) (messaging.Conversation, error)
	ListConversations(ctx context.Context, agencyID string, agentIDs []string) ([]messaging.Conversation, error)
	SetOptInStatus(ctx context.Context, id, status string) error

	// UpdateConversationPhone re-points active conversations for a deal
	// at a new client phone.
	UpdateConversationPhone(ctx context.Context, dealID, phone string) error

	CreateMessage(ctx context.Context, m messaging.Message) (messaging.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]messaging.Message, error)
	UpdateMessageStatus(ctx context.Context, id, status, externalID, errMsg string) error
}

// NIPRStore persists verification jobs and implements the single-flight
// acquire protocol.
type NIPRStore interface {
	CreateNIPRJob(ctx context.Context, j nipr.Job) (nipr.Job, error)
	GetNIPRJob(ctx context.Context, id string) (nipr.Job, error)
	GetActiveNIPRJobForUser(ctx context.Context, userID string) (nipr.Job, error)

	// AcquireNIPRJob atomically claims the oldest pending job unless any
	// processing job still holds a live lease. Returns nil when nothing
	// was acquired.
	AcquireNIPRJob(ctx context.Context) (*nipr.AcquiredJob, error)

	UpdateNIPRJobProgress(ctx context.Context, id string, progress int, message *string) error
	CompleteNIPRJob(ctx context.Context, id string, success bool, files, carriers []string, errMsg string) error

	// ReleaseStaleNIPRLocks resets processing jobs whose lease expired
	// back to pending and reports how many were reset.
	ReleaseStaleNIPRLocks(ctx context.Context) (int, error)

	HasPendingNIPRJobs(ctx context.Context) (bool, error)
}

// SubscriptionUpdate carries a partial update applied to a user's
// billing columns during webhook processing.
type SubscriptionUpdate struct {
	Status         string
	Tier           *billing.Tier
	CycleStart     *time.Time
	CycleEnd       *time.Time
	ResetUsage     bool
	ClearScheduled bool
}

// BillingStore persists subscription state and purchases.
type BillingStore interface {
	// ActivateSubscription applies a completed checkout: tier, provider
	// subscription id, billing cycle bounds, status active, usage
	// counters zeroed.
	ActivateSubscription(ctx context.Context, userID string, tier billing.Tier, subscriptionID string, cycleStart, cycleEnd time.Time) error

	UpdateSubscription(ctx context.Context, userID string, upd SubscriptionUpdate) error

	// CancelSubscription reverts a user to the free tier and clears the
	// provider subscription id.
	CancelSubscription(ctx context.Context, userID string) error

	// GetUserByStripeSubscriptionID resolves the owner of a provider
	// subscription, for webhook events without user metadata.
	GetUserByStripeSubscriptionID(ctx context.Context, subscriptionID string) (agent.User, error)

	ScheduleTierChange(ctx context.Context, userID string, tier billing.Tier, effective time.Time) error
	SetTierNow(ctx context.Context, userID string, tier billing.Tier) error
	SetStripeCustomerID(ctx context.Context, userID, customerID string) error

	AddTopupCredits(ctx context.Context, userID, purchaseType string, quantity int) error
	CreatePurchase(ctx context.Context, p billing.Purchase) (billing.Purchase, error)
	ListPurchases(ctx context.Context, userID string) ([]billing.Purchase, error)

	// ListDueScheduledChanges returns users whose scheduled tier change
	// is due at or before now.
	ListDueScheduledChanges(ctx context.Context, now time.Time) ([]agent.User, error)
}
