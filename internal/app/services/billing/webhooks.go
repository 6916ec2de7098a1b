package billing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/agent"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/billing"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/storage"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/metrics"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/stripe"
)

// HandleWebhookEvent routes a verified provider event to its handler.
// Events are deduplicated by ID and unknown types are acknowledged
// without action so the provider stops retrying them.
func (s *Service) HandleWebhookEvent(ctx context.Context, event stripe.Event) error {
	if s.dedup != nil {
		seen, err := s.dedup.Seen(ctx, event.ID)
		if err != nil {
			// Dedup is best effort. Handlers are idempotent, so a
			// replay is preferable to dropping the event.
			s.log.WithError(err).Warn("webhook dedup check failed")
		} else if seen {
			metrics.RecordWebhookEvent(event.Type, "duplicate")
			return nil
		}
	}

	var err error
	switch event.Type {
	case "checkout.session.completed":
		err = s.handleCheckoutCompleted(ctx, event.Data.Object)
	case "payment_intent.succeeded":
		err = s.handlePaymentIntentSucceeded(ctx, event.Data.Object)
	case "customer.subscription.updated":
		err = s.handleSubscriptionUpdated(ctx, event.Data.Object)
	case "customer.subscription.deleted":
		err = s.handleSubscriptionDeleted(ctx, event.Data.Object)
	default:
		metrics.RecordWebhookEvent(event.Type, "ignored")
		return nil
	}

	if err != nil {
		metrics.RecordWebhookEvent(event.Type, "error")
		s.log.WithError(err).WithField("event_type", event.Type).Error("handling webhook event")
		return err
	}
	metrics.RecordWebhookEvent(event.Type, "ok")
	return nil
}

// handleCheckoutCompleted activates a subscription after checkout.
// Payment-mode sessions are handled by payment_intent.succeeded.
func (s *Service) handleCheckoutCompleted(ctx context.Context, payload json.RawMessage) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(payload, &session); err != nil {
		return err
	}
	if session.Mode != "subscription" {
		return nil
	}
	userID := session.Metadata["user_id"]
	if userID == "" {
		s.log.WithField("session_id", session.ID).Warn("checkout session missing user metadata")
		return nil
	}

	sub, err := s.payments.GetSubscription(ctx, session.Subscription)
	if err != nil {
		return err
	}
	tier, ok := s.prices.TierFor(sub.PriceID())
	if !ok {
		s.log.WithField("price_id", sub.PriceID()).Warn("subscription price not mapped to a tier")
		return nil
	}
	start, end, ok := sub.PeriodBounds()
	if !ok {
		now := time.Now().UTC()
		start, end = now, now.AddDate(0, 1, 0)
	}

	if session.Customer != "" {
		if err := s.store.SetStripeCustomerID(ctx, userID, session.Customer); err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("storing customer id")
		}
	}
	if err := s.store.ActivateSubscription(ctx, userID, tier, sub.ID, start, end); err != nil {
		return err
	}
	s.log.WithFields(map[string]interface{}{"user_id": userID, "tier": tier}).
		Info("subscription activated")
	return nil
}

// handlePaymentIntentSucceeded credits a usage top-up. The purchase
// record is keyed on the payment intent, so replays credit only once.
func (s *Service) handlePaymentIntentSucceeded(ctx context.Context, payload json.RawMessage) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(payload, &intent); err != nil {
		return err
	}

	meta := intent.Metadata
	if meta["topup_type"] == "" {
		// Metadata may live only on the checkout session.
		session, err := s.payments.GetCheckoutSessionByPaymentIntent(ctx, intent.ID)
		if err != nil {
			s.log.WithError(err).WithField("payment_intent", intent.ID).
				Debug("no checkout session for payment intent")
			return nil
		}
		meta = session.Metadata
	}

	topupType := meta["topup_type"]
	userID := meta["user_id"]
	if topupType == "" || userID == "" {
		return nil // not a top-up payment
	}
	quantity, err := strconv.Atoi(meta["topup_quantity"])
	if err != nil || quantity <= 0 {
		s.log.WithField("payment_intent", intent.ID).Warn("top-up payment with invalid quantity")
		return nil
	}

	purchaseType := billing.PurchaseMessageTopup
	if topupType == "ai" {
		purchaseType = billing.PurchaseAITopup
	}

	_, err = s.store.CreatePurchase(ctx, billing.Purchase{
		UserID:          userID,
		PurchaseType:    purchaseType,
		PaymentIntentID: intent.ID,
		AmountCents:     intent.Amount,
		Currency:        intent.Currency,
		Quantity:        quantity,
		Status:          "completed",
	})
	if errors.Is(err, storage.ErrAlreadyExists) {
		return nil // already credited
	}
	if err != nil {
		return err
	}

	if err := s.store.AddTopupCredits(ctx, userID, purchaseType, quantity); err != nil {
		return err
	}
	s.log.WithFields(map[string]interface{}{
		"user_id":  userID,
		"type":     purchaseType,
		"quantity": quantity,
	}).Info("top-up credited")
	return nil
}

// handleSubscriptionUpdated syncs status, tier, and billing cycle from
// the provider. A later cycle start than the stored one marks a
// renewal: usage resets and any scheduled tier change takes effect.
func (s *Service) handleSubscriptionUpdated(ctx context.Context, payload json.RawMessage) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(payload, &sub); err != nil {
		return err
	}
	user, err := s.resolveUser(ctx, sub)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.log.WithField("subscription_id", sub.ID).Warn("subscription event for unknown user")
			return nil
		}
		return err
	}

	upd := storage.SubscriptionUpdate{Status: billing.MapProviderStatus(sub.Status)}
	start, end, haveBounds := sub.PeriodBounds()
	if haveBounds {
		upd.CycleStart, upd.CycleEnd = &start, &end
	}

	isRenewal := haveBounds && !user.BillingCycleStart.IsZero() && start.After(user.BillingCycleStart)
	priceTier, havePriceTier := s.prices.TierFor(sub.PriceID())

	if isRenewal {
		upd.ResetUsage = true
		if user.ScheduledTierChange.Valid() {
			tier := user.ScheduledTierChange
			upd.Tier = &tier
			upd.ClearScheduled = true
			// The provider is still on the old price; move it too. A
			// scheduled move to free has no price, cancel_at_period_end
			// already covers it.
			if priceID := s.prices.PriceFor(tier); priceID != "" && priceID != sub.PriceID() && len(sub.Items.Data) > 0 {
				if err := s.payments.UpdateSubscriptionPrice(ctx, sub.ID, sub.Items.Data[0].ID, priceID); err != nil {
					s.log.WithError(err).WithField("user_id", user.ID).Error("moving subscription to scheduled price")
				}
			}
		} else if havePriceTier {
			upd.Tier = &priceTier
		}
	} else if !user.ScheduledTierChange.Valid() && havePriceTier && priceTier != user.SubscriptionTier {
		// Mid-cycle price change with nothing scheduled locally is an
		// immediate upgrade made through the provider.
		upd.Tier = &priceTier
	}

	if err := s.store.UpdateSubscription(ctx, user.ID, upd); err != nil {
		return err
	}
	s.log.WithFields(map[string]interface{}{
		"user_id": user.ID,
		"status":  upd.Status,
		"renewal": isRenewal,
	}).Info("subscription updated")
	return nil
}

// handleSubscriptionDeleted reverts the owner to the free tier.
func (s *Service) handleSubscriptionDeleted(ctx context.Context, payload json.RawMessage) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(payload, &sub); err != nil {
		return err
	}
	user, err := s.resolveUser(ctx, sub)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	if err := s.store.CancelSubscription(ctx, user.ID); err != nil {
		return err
	}
	s.log.WithField("user_id", user.ID).Info("subscription canceled")
	return nil
}

func (s *Service) resolveUser(ctx context.Context, sub stripe.Subscription) (agent.User, error) {
	if userID := sub.Metadata["user_id"]; userID != "" {
		return s.users.GetUser(ctx, userID)
	}
	return s.store.GetUserByStripeSubscriptionID(ctx, sub.ID)
}
