// Package billing manages subscription tiers: checkout and portal
// sessions, tier changes with upgrade/downgrade asymmetry, usage
// top-ups, and the payment-provider webhook handlers that keep local
// subscription state in sync.
package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/agent"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/billing"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/storage"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/apperr"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/logging"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/metrics"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/stripe"
)

// Per-unit top-up pricing, in cents.
const (
	messageTopupUnitCents = 5
	aiTopupUnitCents      = 10
)

// Payments is the slice of the payment provider the service uses.
type Payments interface {
	CreateCheckoutSession(ctx context.Context, p stripe.CheckoutParams) (stripe.CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	GetSubscription(ctx context.Context, id string) (stripe.Subscription, error)
	GetCheckoutSessionByPaymentIntent(ctx context.Context, paymentIntentID string) (stripe.CheckoutSession, error)
	UpdateSubscriptionPrice(ctx context.Context, subscriptionID, itemID, priceID string) error
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) error
}

// Deduper suppresses replayed webhook events.
type Deduper interface {
	// Seen marks eventID as handled and reports whether it had already
	// been marked.
	Seen(ctx context.Context, eventID string) (bool, error)
}

// Prices maps provider price IDs onto tiers.
type Prices struct {
	Basic  string
	Pro    string
	Expert string
}

// TierFor returns the tier a price ID sells, or false.
func (p Prices) TierFor(priceID string) (billing.Tier, bool) {
	switch priceID {
	case "":
		return "", false
	case p.Basic:
		return billing.TierBasic, true
	case p.Pro:
		return billing.TierPro, true
	case p.Expert:
		return billing.TierExpert, true
	}
	return "", false
}

// PriceFor returns the price ID selling a tier, or empty.
func (p Prices) PriceFor(tier billing.Tier) string {
	switch tier {
	case billing.TierBasic:
		return p.Basic
	case billing.TierPro:
		return p.Pro
	case billing.TierExpert:
		return p.Expert
	}
	return ""
}

// Service manages subscription state.
type Service struct {
	store    storage.BillingStore
	users    storage.UserStore
	payments Payments
	dedup    Deduper
	prices   Prices
	siteURL  string
	log      *logging.Logger
}

// New constructs a billing service. dedup may be nil, in which case
// every webhook event is processed.
func New(store storage.BillingStore, users storage.UserStore, payments Payments, dedup Deduper, prices Prices, siteURL string, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("billing")
	}
	return &Service{
		store:    store,
		users:    users,
		payments: payments,
		dedup:    dedup,
		prices:   prices,
		siteURL:  siteURL,
		log:      log,
	}
}

// ChangeResult reports the outcome of a tier change request.
type ChangeResult struct {
	Status      string       `json:"status"` // "updated", "scheduled", or "checkout_required"
	Tier        billing.Tier `json:"tier"`
	EffectiveAt *time.Time   `json:"effective_at,omitempty"`
	CheckoutURL string       `json:"checkout_url,omitempty"`
}

// ChangeSubscription moves an agent onto a different tier. Upgrades
// take effect immediately with a prorated charge; downgrades and
// cancellations are scheduled for the end of the billing cycle. Agents
// on the free tier are sent through checkout instead.
func (s *Service) ChangeSubscription(ctx context.Context, actor agent.User, target billing.Tier) (ChangeResult, error) {
	if !target.Valid() {
		return ChangeResult{}, apperr.BadRequest(fmt.Sprintf("invalid tier %q", target))
	}
	if target == actor.SubscriptionTier {
		return ChangeResult{}, apperr.Conflict("already_on_tier", "Already on this tier")
	}
	if target == billing.TierExpert && !actor.IsAdmin {
		return ChangeResult{}, apperr.Forbidden("expert tier requires an admin account")
	}

	switch {
	case target == billing.TierFree:
		return s.scheduleCancel(ctx, actor)
	case actor.SubscriptionTier == billing.TierFree || actor.StripeSubscriptionID == "":
		return s.startCheckout(ctx, actor, target)
	case target.Level() > actor.SubscriptionTier.Level():
		return s.upgradeNow(ctx, actor, target)
	default:
		return s.scheduleDowngrade(ctx, actor, target)
	}
}

func (s *Service) scheduleCancel(ctx context.Context, actor agent.User) (ChangeResult, error) {
	if actor.StripeSubscriptionID == "" {
		return ChangeResult{}, apperr.Conflict("no_subscription", "no active subscription to cancel")
	}
	if err := s.payments.SetCancelAtPeriodEnd(ctx, actor.StripeSubscriptionID, true); err != nil {
		s.log.WithError(err).Error("scheduling subscription cancellation")
		return ChangeResult{}, apperr.Internal("could not schedule cancellation")
	}
	effective := actor.BillingCycleEnd
	if effective.IsZero() {
		effective = time.Now().UTC()
	}
	if err := s.store.ScheduleTierChange(ctx, actor.ID, billing.TierFree, effective); err != nil {
		return s.storeErr(err)
	}
	s.log.WithFields(map[string]interface{}{"user_id": actor.ID, "effective": effective}).
		Info("cancellation scheduled")
	return ChangeResult{Status: "scheduled", Tier: billing.TierFree, EffectiveAt: &effective}, nil
}

func (s *Service) startCheckout(ctx context.Context, actor agent.User, target billing.Tier) (ChangeResult, error) {
	priceID := s.prices.PriceFor(target)
	if priceID == "" {
		return ChangeResult{}, apperr.Internal(fmt.Sprintf("no price configured for tier %q", target))
	}
	session, err := s.payments.CreateCheckoutSession(ctx, stripe.CheckoutParams{
		Mode:          "subscription",
		PriceID:       priceID,
		CustomerID:    actor.StripeCustomerID,
		CustomerEmail: actor.Email,
		SuccessURL:    s.siteURL + "/settings/billing?checkout=success",
		CancelURL:     s.siteURL + "/settings/billing?checkout=cancelled",
		Metadata:      map[string]string{"user_id": actor.ID},
	})
	if err != nil {
		s.log.WithError(err).Error("creating subscription checkout session")
		return ChangeResult{}, apperr.Internal("could not start checkout")
	}
	return ChangeResult{Status: "checkout_required", Tier: target, CheckoutURL: session.URL}, nil
}

func (s *Service) upgradeNow(ctx context.Context, actor agent.User, target billing.Tier) (ChangeResult, error) {
	priceID := s.prices.PriceFor(target)
	if priceID == "" {
		return ChangeResult{}, apperr.Internal(fmt.Sprintf("no price configured for tier %q", target))
	}
	sub, err := s.payments.GetSubscription(ctx, actor.StripeSubscriptionID)
	if err != nil {
		s.log.WithError(err).Error("retrieving subscription for upgrade")
		return ChangeResult{}, apperr.Internal("could not retrieve subscription")
	}
	if len(sub.Items.Data) == 0 {
		return ChangeResult{}, apperr.Internal("subscription has no items")
	}
	if err := s.payments.UpdateSubscriptionPrice(ctx, sub.ID, sub.Items.Data[0].ID, priceID); err != nil {
		s.log.WithError(err).Error("updating subscription price")
		return ChangeResult{}, apperr.Internal("could not apply upgrade")
	}
	if err := s.store.SetTierNow(ctx, actor.ID, target); err != nil {
		return s.storeErr(err)
	}
	s.log.WithFields(map[string]interface{}{"user_id": actor.ID, "tier": target}).Info("tier upgraded")
	return ChangeResult{Status: "updated", Tier: target}, nil
}

func (s *Service) scheduleDowngrade(ctx context.Context, actor agent.User, target billing.Tier) (ChangeResult, error) {
	effective := actor.BillingCycleEnd
	if effective.IsZero() {
		effective = time.Now().UTC()
	}
	if err := s.store.ScheduleTierChange(ctx, actor.ID, target, effective); err != nil {
		return s.storeErr(err)
	}
	s.log.WithFields(map[string]interface{}{"user_id": actor.ID, "tier": target, "effective": effective}).
		Info("downgrade scheduled")
	return ChangeResult{Status: "scheduled", Tier: target, EffectiveAt: &effective}, nil
}

func (s *Service) storeErr(err error) (ChangeResult, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return ChangeResult{}, apperr.NotFound("user not found")
	}
	return ChangeResult{}, err
}

// CreateTopupCheckout opens a one-time payment session for usage
// credits. topupType is "message" or "ai".
func (s *Service) CreateTopupCheckout(ctx context.Context, actor agent.User, topupType string, quantity int) (string, error) {
	var name string
	var unitCents int64
	switch topupType {
	case "message":
		name, unitCents = "SMS message credits", messageTopupUnitCents
	case "ai":
		name, unitCents = "AI request credits", aiTopupUnitCents
	default:
		return "", apperr.BadRequest(fmt.Sprintf("invalid top-up type %q", topupType))
	}
	if quantity <= 0 {
		return "", apperr.BadRequest("quantity must be positive")
	}

	session, err := s.payments.CreateCheckoutSession(ctx, stripe.CheckoutParams{
		Mode:          "payment",
		PriceData:     &stripe.PriceData{ProductName: name, UnitAmountCents: unitCents, Currency: "usd"},
		Quantity:      quantity,
		CustomerID:    actor.StripeCustomerID,
		CustomerEmail: actor.Email,
		SuccessURL:    s.siteURL + "/settings/billing?topup=success",
		CancelURL:     s.siteURL + "/settings/billing?topup=cancelled",
		Metadata: map[string]string{
			"user_id":        actor.ID,
			"topup_type":     topupType,
			"topup_quantity": strconv.Itoa(quantity),
		},
	})
	if err != nil {
		s.log.WithError(err).Error("creating top-up checkout session")
		return "", apperr.Internal("could not start checkout")
	}
	return session.URL, nil
}

// PortalSession opens the provider's billing portal for an agent with
// an existing customer record.
func (s *Service) PortalSession(ctx context.Context, actor agent.User) (string, error) {
	if actor.StripeCustomerID == "" {
		return "", apperr.Conflict("no_customer", "no billing history for this account")
	}
	url, err := s.payments.CreatePortalSession(ctx, actor.StripeCustomerID, s.siteURL+"/settings/billing")
	if err != nil {
		s.log.WithError(err).Error("creating portal session")
		return "", apperr.Internal("could not open billing portal")
	}
	return url, nil
}

// Purchases lists an agent's top-up purchase history.
func (s *Service) Purchases(ctx context.Context, actor agent.User) ([]billing.Purchase, error) {
	return s.store.ListPurchases(ctx, actor.ID)
}

// ApplyDueTierChanges applies scheduled tier changes whose effective
// date has passed. It backstops the renewal webhook, which normally
// applies them first. Returns the number of users changed.
func (s *Service) ApplyDueTierChanges(ctx context.Context) (int, error) {
	due, err := s.store.ListDueScheduledChanges(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, u := range due {
		target := u.ScheduledTierChange
		if !target.Valid() {
			continue
		}
		if target == billing.TierFree {
			err = s.store.CancelSubscription(ctx, u.ID)
		} else {
			if err := s.syncProviderPrice(ctx, u.StripeSubscriptionID, target); err != nil {
				s.log.WithError(err).WithField("user_id", u.ID).Error("moving subscription to scheduled price")
			}
			err = s.store.SetTierNow(ctx, u.ID, target)
		}
		if err != nil {
			s.log.WithError(err).WithField("user_id", u.ID).Error("applying scheduled tier change")
			continue
		}
		s.log.WithFields(map[string]interface{}{"user_id": u.ID, "tier": target}).
			Info("scheduled tier change applied")
		applied++
	}
	metrics.RecordScheduledTierChanges(applied)
	return applied, nil
}

// syncProviderPrice moves the provider subscription onto the price
// selling target, so a locally applied tier change is billed at the
// new rate as well.
func (s *Service) syncProviderPrice(ctx context.Context, subscriptionID string, target billing.Tier) error {
	priceID := s.prices.PriceFor(target)
	if priceID == "" || subscriptionID == "" {
		return nil
	}
	sub, err := s.payments.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub.PriceID() == priceID || len(sub.Items.Data) == 0 {
		return nil
	}
	return s.payments.UpdateSubscriptionPrice(ctx, sub.ID, sub.Items.Data[0].ID, priceID)
}
