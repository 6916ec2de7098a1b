package httpapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/apperr"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/httputil"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/stripe"
)

const maxWebhookBody = 1 << 20

func (h *handler) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httputil.BadRequest(w, "could not read request body")
		return
	}

	event, err := stripe.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), h.stripeHook)
	if err != nil {
		h.log.WithError(err).Warn("rejected payment webhook")
		httputil.WriteError(w, apperr.Unauthorized("invalid webhook signature"))
		return
	}

	if err := h.app.Billing.HandleWebhookEvent(r.Context(), event); err != nil {
		// Non-2xx makes the provider redeliver the event.
		httputil.WriteError(w, apperr.Internal("event processing failed"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// telnyxEvent is the envelope Telnyx posts for message events.
type telnyxEvent struct {
	Data struct {
		EventType string `json:"event_type"`
		Payload   struct {
			Text string `json:"text"`
			From struct {
				PhoneNumber string `json:"phone_number"`
			} `json:"from"`
			To []struct {
				PhoneNumber string `json:"phone_number"`
			} `json:"to"`
		} `json:"payload"`
	} `json:"data"`
}

func (h *handler) telnyxWebhook(w http.ResponseWriter, r *http.Request) {
	var event telnyxEvent
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&event); err != nil {
		httputil.BadRequest(w, "invalid payload")
		return
	}
	if event.Data.EventType != "message.received" {
		httputil.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}
	if len(event.Data.Payload.To) == 0 {
		httputil.BadRequest(w, "missing destination number")
		return
	}

	err := h.app.Messaging.HandleInboundByNumber(r.Context(),
		event.Data.Payload.To[0].PhoneNumber,
		event.Data.Payload.From.PhoneNumber,
		event.Data.Payload.Text)
	if err != nil {
		// Unroutable messages are acknowledged so Telnyx stops
		// retrying them.
		var appErr *apperr.Error
		if errors.As(err, &appErr) && appErr.Status < 500 || errors.Is(err, sql.ErrNoRows) {
			h.log.WithError(err).Warn("dropping unroutable inbound sms")
			httputil.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
			return
		}
		httputil.WriteError(w, apperr.Internal("inbound processing failed"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}
