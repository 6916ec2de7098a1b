package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/agent"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/billing"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/storage/memory"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/apperr"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/stripe"
)

var testPrices = Prices{Basic: "price_basic", Pro: "price_pro", Expert: "price_expert"}

// fakePayments records provider calls and serves canned responses.
type fakePayments struct {
	checkoutParams  []stripe.CheckoutParams
	checkoutSession stripe.CheckoutSession

	sub    stripe.Subscription
	subErr error

	sessionByIntent    stripe.CheckoutSession
	sessionByIntentErr error

	priceUpdates  []string // "subID/itemID/priceID"
	cancelAtEnd   []bool
	portalURL     string
	getSubCalls   int
	portalReturns []string
}

func (f *fakePayments) CreateCheckoutSession(_ context.Context, p stripe.CheckoutParams) (stripe.CheckoutSession, error) {
	f.checkoutParams = append(f.checkoutParams, p)
	return f.checkoutSession, nil
}

func (f *fakePayments) CreatePortalSession(_ context.Context, _, returnURL string) (string, error) {
	f.portalReturns = append(f.portalReturns, returnURL)
	return f.portalURL, nil
}

func (f *fakePayments) GetSubscription(_ context.Context, _ string) (stripe.Subscription, error) {
	f.getSubCalls++
	return f.sub, f.subErr
}

func (f *fakePayments) GetCheckoutSessionByPaymentIntent(_ context.Context, _ string) (stripe.CheckoutSession, error) {
	return f.sessionByIntent, f.sessionByIntentErr
}

func (f *fakePayments) UpdateSubscriptionPrice(_ context.Context, subscriptionID, itemID, priceID string) error {
	f.priceUpdates = append(f.priceUpdates, subscriptionID+"/"+itemID+"/"+priceID)
	return nil
}

func (f *fakePayments) SetCancelAtPeriodEnd(_ context.Context, _ string, cancel bool) error {
	f.cancelAtEnd = append(f.cancelAtEnd, cancel)
	return nil
}

type fakeDedup struct{ seen map[string]bool }

func (d *fakeDedup) Seen(_ context.Context, id string) (bool, error) {
	if d.seen == nil {
		d.seen = map[string]bool{}
	}
	if d.seen[id] {
		return true, nil
	}
	d.seen[id] = true
	return false, nil
}

// subJSON decodes a raw subscription payload; the nested item structs
// are easiest to populate this way.
func subJSON(t *testing.T, raw string) stripe.Subscription {
	t.Helper()
	var sub stripe.Subscription
	require.NoError(t, json.Unmarshal([]byte(raw), &sub))
	return sub
}

func event(t *testing.T, id, typ, object string) stripe.Event {
	t.Helper()
	e := stripe.Event{ID: id, Type: typ}
	e.Data.Object = json.RawMessage(object)
	return e
}

func newService(t *testing.T, payments Payments, dedup Deduper) (*memory.Store, *Service) {
	t.Helper()
	store := memory.New()
	return store, New(store, store, payments, dedup, testPrices, "https://app.example.com", nil)
}

func seedUser(t *testing.T, store *memory.Store, u agent.User) agent.User {
	t.Helper()
	created, err := store.CreateUser(context.Background(), u)
	require.NoError(t, err)
	return created
}

func TestChangeSubscriptionSameTier(t *testing.T) {
	_, svc := newService(t, &fakePayments{}, nil)
	actor := agent.User{ID: "u1", SubscriptionTier: billing.TierBasic}

	_, err := svc.ChangeSubscription(context.Background(), actor, billing.TierBasic)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusConflict, appErr.Status)
	assert.Equal(t, "already_on_tier", appErr.Code)
}

func TestChangeSubscriptionExpertRequiresAdmin(t *testing.T) {
	_, svc := newService(t, &fakePayments{}, nil)
	actor := agent.User{ID: "u1", SubscriptionTier: billing.TierPro}

	_, err := svc.ChangeSubscription(context.Background(), actor, billing.TierExpert)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusForbidden, appErr.Status)
}

func TestChangeSubscriptionToFreeSchedulesCancellation(t *testing.T) {
	payments := &fakePayments{}
	store, svc := newService(t, payments, nil)
	cycleEnd := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	actor := seedUser(t, store, agent.User{
		Email:                "a@example.com",
		SubscriptionTier:     billing.TierBasic,
		StripeSubscriptionID: "sub_1",
		BillingCycleEnd:      cycleEnd,
	})

	res, err := svc.ChangeSubscription(context.Background(), actor, billing.TierFree)
	require.NoError(t, err)
	assert.Equal(t, "scheduled", res.Status)
	require.NotNil(t, res.EffectiveAt)
	assert.Equal(t, cycleEnd, *res.EffectiveAt)
	require.Equal(t, []bool{true}, payments.cancelAtEnd)

	u, err := store.GetUser(context.Background(), actor.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.TierFree, u.ScheduledTierChange)
	assert.Equal(t, cycleEnd, u.ScheduledTierDate)
	// The paid tier stays until the cycle ends.
	assert.Equal(t, billing.TierBasic, u.SubscriptionTier)
}

func TestChangeSubscriptionFromFreeGoesThroughCheckout(t *testing.T) {
	payments := &fakePayments{checkoutSession: stripe.CheckoutSession{ID: "cs_1", URL: "https://pay.example.com/cs_1"}}
	store, svc := newService(t, payments, nil)
	actor := seedUser(t, store, agent.User{Email: "a@example.com"})

	res, err := svc.ChangeSubscription(context.Background(), actor, billing.TierBasic)
	require.NoError(t, err)
	assert.Equal(t, "checkout_required", res.Status)
	assert.Equal(t, "https://pay.example.com/cs_1", res.CheckoutURL)

	require.Len(t, payments.checkoutParams, 1)
	p := payments.checkoutParams[0]
	assert.Equal(t, "subscription", p.Mode)
	assert.Equal(t, "price_basic", p.PriceID)
	assert.Equal(t, actor.ID, p.Metadata["user_id"])
}

func TestChangeSubscriptionUpgradeIsImmediate(t *testing.T) {
	payments := &fakePayments{
		sub: subJSON(t, `{"id":"sub_1","items":{"data":[{"id":"si_1","price":{"id":"price_basic"}}]}}`),
	}
	store, svc := newService(t, payments, nil)
	actor := seedUser(t, store, agent.User{
		Email:                "a@example.com",
		SubscriptionTier:     billing.TierBasic,
		StripeSubscriptionID: "sub_1",
	})

	res, err := svc.ChangeSubscription(context.Background(), actor, billing.TierPro)
	require.NoError(t, err)
	assert.Equal(t, "updated", res.Status)
	require.Equal(t, []string{"sub_1/si_1/price_pro"}, payments.priceUpdates)

	u, err := store.GetUser(context.Background(), actor.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.TierPro, u.SubscriptionTier)
}

func TestChangeSubscriptionDowngradeIsScheduled(t *testing.T) {
	payments := &fakePayments{}
	store, svc := newService(t, payments, nil)
	cycleEnd := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	actor := seedUser(t, store, agent.User{
		Email:                "a@example.com",
		SubscriptionTier:     billing.TierPro,
		StripeSubscriptionID: "sub_1",
		BillingCycleEnd:      cycleEnd,
	})

	res, err := svc.ChangeSubscription(context.Background(), actor, billing.TierBasic)
	require.NoError(t, err)
	assert.Equal(t, "scheduled", res.Status)
	assert.Empty(t, payments.priceUpdates, "downgrades must not touch the provider")
	assert.Empty(t, payments.cancelAtEnd)

	u, err := store.GetUser(context.Background(), actor.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.TierBasic, u.ScheduledTierChange)
	assert.Equal(t, billing.TierPro, u.SubscriptionTier)
}

func TestWebhookCheckoutCompletedActivatesSubscription(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	payments := &fakePayments{
		sub: subJSON(t, `{"id":"sub_1","status":"active",
			"current_period_start":`+unix(start)+`,"current_period_end":`+unix(end)+`,
			"items":{"data":[{"id":"si_1","price":{"id":"price_basic"}}]}}`),
	}
	store, svc := newService(t, payments, nil)
	u := seedUser(t, store, agent.User{Email: "a@example.com"})

	err := svc.HandleWebhookEvent(context.Background(), event(t, "evt_1", "checkout.session.completed",
		`{"id":"cs_1","mode":"subscription","customer":"cus_1","subscription":"sub_1",
		  "metadata":{"user_id":"`+u.ID+`"}}`))
	require.NoError(t, err)

	got, err := store.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.TierBasic, got.SubscriptionTier)
	assert.Equal(t, billing.StatusActive, got.SubscriptionStatus)
	assert.Equal(t, "sub_1", got.StripeSubscriptionID)
	assert.Equal(t, "cus_1", got.StripeCustomerID)
	assert.Equal(t, start, got.BillingCycleStart)
	assert.Equal(t, end, got.BillingCycleEnd)
}

func TestWebhookRenewalAppliesScheduledChangeAndResetsUsage(t *testing.T) {
	oldStart := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	newStart := oldStart.AddDate(0, 1, 0)
	newEnd := newStart.AddDate(0, 1, 0)
	payments := &fakePayments{}
	store, svc := newService(t, payments, nil)
	u := seedUser(t, store, agent.User{
		Email:                "a@example.com",
		SubscriptionTier:     billing.TierPro,
		SubscriptionStatus:   billing.StatusActive,
		StripeSubscriptionID: "sub_1",
		BillingCycleStart:    oldStart,
		MessagesSentCount:    42,
		ScheduledTierChange:  billing.TierBasic,
		ScheduledTierDate:    newStart,
	})

	err := svc.HandleWebhookEvent(context.Background(), event(t, "evt_2", "customer.subscription.updated",
		`{"id":"sub_1","status":"active","metadata":{"user_id":"`+u.ID+`"},
		  "current_period_start":`+unix(newStart)+`,"current_period_end":`+unix(newEnd)+`,
		  "items":{"data":[{"id":"si_1","price":{"id":"price_pro"}}]}}`))
	require.NoError(t, err)

	got, err := store.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.TierBasic, got.SubscriptionTier, "scheduled downgrade applies at renewal")
	assert.Zero(t, got.MessagesSentCount, "usage resets at renewal")
	assert.Empty(t, string(got.ScheduledTierChange))
	assert.True(t, got.ScheduledTierDate.IsZero())
	assert.Equal(t, newStart, got.BillingCycleStart)
	assert.Equal(t, []string{"sub_1/si_1/price_basic"}, payments.priceUpdates,
		"the provider subscription moves onto the downgraded price")
}

func TestWebhookMidCyclePriceChangeUpdatesTier(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	store, svc := newService(t, &fakePayments{}, nil)
	u := seedUser(t, store, agent.User{
		Email:                "a@example.com",
		SubscriptionTier:     billing.TierBasic,
		StripeSubscriptionID: "sub_1",
		BillingCycleStart:    start,
		MessagesSentCount:    7,
	})

	err := svc.HandleWebhookEvent(context.Background(), event(t, "evt_3", "customer.subscription.updated",
		`{"id":"sub_1","status":"active",
		  "current_period_start":`+unix(start)+`,"current_period_end":`+unix(start.AddDate(0, 1, 0))+`,
		  "items":{"data":[{"id":"si_1","price":{"id":"price_pro"}}]}}`))
	require.NoError(t, err)

	got, err := store.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.TierPro, got.SubscriptionTier)
	assert.Equal(t, 7, got.MessagesSentCount, "mid-cycle updates keep usage")
}

func TestWebhookSubscriptionDeletedCancels(t *testing.T) {
	store, svc := newService(t, &fakePayments{}, nil)
	u := seedUser(t, store, agent.User{
		Email:                "a@example.com",
		SubscriptionTier:     billing.TierPro,
		SubscriptionStatus:   billing.StatusActive,
		StripeSubscriptionID: "sub_1",
	})

	// No metadata: the user resolves through the stored subscription ID.
	err := svc.HandleWebhookEvent(context.Background(), event(t, "evt_4", "customer.subscription.deleted",
		`{"id":"sub_1","status":"canceled"}`))
	require.NoError(t, err)

	got, err := store.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.TierFree, got.SubscriptionTier)
	assert.Equal(t, billing.StatusFree, got.SubscriptionStatus)
	assert.Empty(t, got.StripeSubscriptionID)
}

func TestWebhookTopupCreditsExactlyOnce(t *testing.T) {
	store, svc := newService(t, &fakePayments{}, nil)
	u := seedUser(t, store, agent.User{Email: "a@example.com"})
	payload := `{"id":"pi_1","amount":500,"currency":"usd",
		"metadata":{"user_id":"` + u.ID + `","topup_type":"message","topup_quantity":"100"}}`

	require.NoError(t, svc.HandleWebhookEvent(context.Background(),
		event(t, "evt_5", "payment_intent.succeeded", payload)))
	// Provider redelivery with a fresh event ID replays the same intent.
	require.NoError(t, svc.HandleWebhookEvent(context.Background(),
		event(t, "evt_6", "payment_intent.succeeded", payload)))

	got, err := store.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.MessagesTopupCredits)

	purchases, err := svc.Purchases(context.Background(), got)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	assert.Equal(t, billing.PurchaseMessageTopup, purchases[0].PurchaseType)
	assert.Equal(t, "pi_1", purchases[0].PaymentIntentID)
}

func TestWebhookDedupSkipsReplayedEvents(t *testing.T) {
	payments := &fakePayments{
		sub: subJSON(t, `{"id":"sub_1","items":{"data":[{"id":"si_1","price":{"id":"price_basic"}}]}}`),
	}
	store, svc := newService(t, payments, &fakeDedup{})
	u := seedUser(t, store, agent.User{Email: "a@example.com"})
	evt := event(t, "evt_7", "checkout.session.completed",
		`{"id":"cs_1","mode":"subscription","subscription":"sub_1","metadata":{"user_id":"`+u.ID+`"}}`)

	require.NoError(t, svc.HandleWebhookEvent(context.Background(), evt))
	require.NoError(t, svc.HandleWebhookEvent(context.Background(), evt))
	assert.Equal(t, 1, payments.getSubCalls, "duplicate event must not be processed")
}

func TestCreateTopupCheckoutPricing(t *testing.T) {
	payments := &fakePayments{checkoutSession: stripe.CheckoutSession{URL: "https://pay.example.com/cs_2"}}
	_, svc := newService(t, payments, nil)
	actor := agent.User{ID: "u1", Email: "a@example.com"}

	url, err := svc.CreateTopupCheckout(context.Background(), actor, "message", 200)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/cs_2", url)

	require.Len(t, payments.checkoutParams, 1)
	p := payments.checkoutParams[0]
	assert.Equal(t, "payment", p.Mode)
	require.NotNil(t, p.PriceData)
	assert.EqualValues(t, 5, p.PriceData.UnitAmountCents)
	assert.Equal(t, 200, p.Quantity)
	assert.Equal(t, "message", p.Metadata["topup_type"])
	assert.Equal(t, "200", p.Metadata["topup_quantity"])

	_, err = svc.CreateTopupCheckout(context.Background(), actor, "gift-card", 1)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.Status)
}

func TestApplyDueTierChanges(t *testing.T) {
	payments := &fakePayments{
		sub: subJSON(t, `{"id":"sub_8","items":{"data":[{"id":"si_8","price":{"id":"price_pro"}}]}}`),
	}
	store, svc := newService(t, payments, nil)
	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(24 * time.Hour)

	downgrade := seedUser(t, store, agent.User{
		Email: "down@example.com", SubscriptionTier: billing.TierPro,
		StripeSubscriptionID: "sub_8",
		ScheduledTierChange:  billing.TierBasic, ScheduledTierDate: past,
	})
	cancel := seedUser(t, store, agent.User{
		Email: "cancel@example.com", SubscriptionTier: billing.TierBasic,
		StripeSubscriptionID: "sub_9",
		ScheduledTierChange:  billing.TierFree, ScheduledTierDate: past,
	})
	notYet := seedUser(t, store, agent.User{
		Email: "later@example.com", SubscriptionTier: billing.TierPro,
		ScheduledTierChange: billing.TierBasic, ScheduledTierDate: future,
	})

	applied, err := svc.ApplyDueTierChanges(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	got, _ := store.GetUser(context.Background(), downgrade.ID)
	assert.Equal(t, billing.TierBasic, got.SubscriptionTier)
	assert.Empty(t, string(got.ScheduledTierChange))

	got, _ = store.GetUser(context.Background(), cancel.ID)
	assert.Equal(t, billing.TierFree, got.SubscriptionTier)
	assert.Empty(t, got.StripeSubscriptionID)

	got, _ = store.GetUser(context.Background(), notYet.ID)
	assert.Equal(t, billing.TierPro, got.SubscriptionTier)
	assert.Equal(t, billing.TierBasic, got.ScheduledTierChange)

	assert.Equal(t, []string{"sub_8/si_8/price_basic"}, payments.priceUpdates,
		"applied downgrade also moves the provider price")
}

func unix(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
