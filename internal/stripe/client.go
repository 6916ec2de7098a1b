// Package stripe is a minimal client for the parts of the Stripe API
// the billing service uses: checkout sessions, the billing portal,
// subscription retrieval and modification, and webhook verification.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.stripe.com"

// Client calls the Stripe REST API with form-encoded requests.
type Client struct {
	secretKey string
	baseURL   string
	http      *http.Client
}

// New constructs a Stripe client.
func New(secretKey string) *Client {
	return &Client{
		secretKey: secretKey,
		baseURL:   defaultBaseURL,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

// WithBaseURL points the client at a different API host, for tests.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

// CheckoutSession is a Stripe Checkout session.
type CheckoutSession struct {
	ID             string            `json:"id"`
	URL            string            `json:"url"`
	Mode           string            `json:"mode"`
	Customer       string            `json:"customer"`
	Subscription   string            `json:"subscription"`
	PaymentIntent  string            `json:"payment_intent"`
	Metadata       map[string]string `json:"metadata"`
	AmountTotal    int64             `json:"amount_total"`
	Currency       string            `json:"currency"`
	PaymentStatus  string            `json:"payment_status"`
	ClientRefID    string            `json:"client_reference_id"`
	SuccessURL     string            `json:"success_url"`
	CancelURL      string            `json:"cancel_url"`
	ExpiresAt      int64             `json:"expires_at"`
	CustomerEmail  string            `json:"customer_email"`
	LivemodeUnused bool              `json:"livemode"`
}

// PriceData describes an ad-hoc price for one-time payments that have
// no pre-created Stripe price.
type PriceData struct {
	ProductName     string
	UnitAmountCents int64
	Currency        string
}

// CheckoutParams configures a new checkout session. Exactly one of
// PriceID or PriceData must be set.
type CheckoutParams struct {
	Mode          string // "subscription" or "payment"
	PriceID       string
	PriceData     *PriceData
	Quantity      int
	CustomerID    string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// PaymentIntent is a Stripe payment intent, as delivered by webhooks.
type PaymentIntent struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Status   string            `json:"status"`
	Customer string            `json:"customer"`
	Metadata map[string]string `json:"metadata"`
}

// CreateCheckoutSession opens a hosted checkout session.
func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (CheckoutSession, error) {
	if p.Quantity <= 0 {
		p.Quantity = 1
	}
	form := url.Values{}
	form.Set("mode", p.Mode)
	if p.PriceData != nil {
		form.Set("line_items[0][price_data][currency]", p.PriceData.Currency)
		form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(p.PriceData.UnitAmountCents, 10))
		form.Set("line_items[0][price_data][product_data][name]", p.PriceData.ProductName)
	} else {
		form.Set("line_items[0][price]", p.PriceID)
	}
	form.Set("line_items[0][quantity]", strconv.Itoa(p.Quantity))
	form.Set("success_url", p.SuccessURL)
	form.Set("cancel_url", p.CancelURL)
	if p.CustomerID != "" {
		form.Set("customer", p.CustomerID)
	} else if p.CustomerEmail != "" {
		form.Set("customer_email", p.CustomerEmail)
	}
	for k, v := range p.Metadata {
		form.Set("metadata["+k+"]", v)
		switch p.Mode {
		case "subscription":
			form.Set("subscription_data[metadata]["+k+"]", v)
		case "payment":
			form.Set("payment_intent_data[metadata]["+k+"]", v)
		}
	}

	var session CheckoutSession
	err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, &session)
	return session, err
}

// Subscription is a Stripe subscription, flattened to the fields the
// billing service reads.
type Subscription struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	Metadata           map[string]string `json:"metadata"`
	Items              struct {
		Data []struct {
			ID    string `json:"id"`
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

// PriceID returns the subscription's main price, or empty.
func (s Subscription) PriceID() string {
	if len(s.Items.Data) == 0 {
		return ""
	}
	return s.Items.Data[0].Price.ID
}

// PeriodBounds returns the billing cycle bounds, falling back to the
// item-level fields when the subscription-level ones are absent.
func (s Subscription) PeriodBounds() (time.Time, time.Time, bool) {
	start, end := s.CurrentPeriodStart, s.CurrentPeriodEnd
	if start == 0 && len(s.Items.Data) > 0 {
		start = s.Items.Data[0].CurrentPeriodStart
		end = s.Items.Data[0].CurrentPeriodEnd
	}
	if start == 0 || end == 0 {
		return time.Time{}, time.Time{}, false
	}
	return time.Unix(start, 0).UTC(), time.Unix(end, 0).UTC(), true
}

// GetSubscription retrieves a subscription.
func (c *Client) GetSubscription(ctx context.Context, id string) (Subscription, error) {
	var sub Subscription
	err := c.do(ctx, http.MethodGet, "/v1/subscriptions/"+id, nil, &sub)
	return sub, err
}

// UpdateSubscriptionPrice swaps the subscription's main item onto a
// new price, keeping the billing anchor and invoicing the proration.
func (c *Client) UpdateSubscriptionPrice(ctx context.Context, subscriptionID, itemID, priceID string) error {
	form := url.Values{}
	form.Set("items[0][id]", itemID)
	form.Set("items[0][price]", priceID)
	form.Set("proration_behavior", "always_invoice")
	form.Set("billing_cycle_anchor", "unchanged")
	return c.do(ctx, http.MethodPost, "/v1/subscriptions/"+subscriptionID, form, nil)
}

// SetCancelAtPeriodEnd schedules or clears cancellation at period end.
func (c *Client) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) error {
	form := url.Values{}
	form.Set("cancel_at_period_end", strconv.FormatBool(cancel))
	return c.do(ctx, http.MethodPost, "/v1/subscriptions/"+subscriptionID, form, nil)
}

// CreatePortalSession opens a customer billing portal session and
// returns its URL.
func (c *Client) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("return_url", returnURL)

	var out struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/billing_portal/sessions", form, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// GetCheckoutSessionByPaymentIntent finds the checkout session that
// produced a payment intent, used to recover top-up metadata.
func (c *Client) GetCheckoutSessionByPaymentIntent(ctx context.Context, paymentIntentID string) (CheckoutSession, error) {
	var out struct {
		Data []CheckoutSession `json:"data"`
	}
	path := "/v1/checkout/sessions?payment_intent=" + url.QueryEscape(paymentIntentID) + "&limit=1"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return CheckoutSession{}, err
	}
	if len(out.Data) == 0 {
		return CheckoutSession{}, fmt.Errorf("stripe: no checkout session for payment intent %s", paymentIntentID)
	}
	return out.Data[0], nil
}

// apiError is Stripe's error envelope.
type apiError struct {
	Err struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("stripe: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiError
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Err.Message != "" {
			return fmt.Errorf("stripe: %s (%s)", apiErr.Err.Message, apiErr.Err.Type)
		}
		return fmt.Errorf("stripe: api returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(payload, out)
}
