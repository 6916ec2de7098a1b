// Package messaging manages SMS conversations: outbound sends through
// the carrier API, inbound webhook handling, and opt-out enforcement.
package messaging

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/agent"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/billing"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/messaging"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/storage"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/apperr"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/logging"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/metrics"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/phone"
)

// Sender delivers SMS messages through the carrier.
type Sender interface {
	Send(ctx context.Context, from, to, text string) (string, error)
}

// Visibility resolves which agents' records a user may see.
type Visibility interface {
	VisibleAgentIDs(ctx context.Context, u agent.User, view string) ([]string, error)
}

// Service manages conversations and messages.
type Service struct {
	store      storage.MessagingStore
	users      storage.UserStore
	agencies   storage.AgencyStore
	sender     Sender
	visibility Visibility
	log        *logging.Logger
}

// New constructs a messaging service.
func New(store storage.MessagingStore, users storage.UserStore, agencies storage.AgencyStore, sender Sender, visibility Visibility, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("messaging")
	}
	return &Service{
		store:      store,
		users:      users,
		agencies:   agencies,
		sender:     sender,
		visibility: visibility,
		log:        log,
	}
}

// StartConversation opens an SMS thread with a client phone, reusing an
// existing active thread for the same number.
func (s *Service) StartConversation(ctx context.Context, actor agent.User, dealID, clientPhone string) (messaging.Conversation, error) {
	normalized, err := phone.Normalize(clientPhone)
	if err != nil {
		return messaging.Conversation{}, apperr.BadRequest(err.Error())
	}

	if existing, err := s.store.FindConversationByPhone(ctx, actor.AgencyID, normalized); err == nil {
		return existing, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return messaging.Conversation{}, err
	}

	return s.store.CreateConversation(ctx, messaging.Conversation{
		AgencyID:    actor.AgencyID,
		AgentID:     actor.ID,
		DealID:      dealID,
		ClientPhone: normalized,
		IsActive:    true,
	})
}

// Get retrieves a conversation scoped to the actor's agency.
func (s *Service) Get(ctx context.Context, actor agent.User, id string) (messaging.Conversation, error) {
	c, err := s.store.GetConversation(ctx, id, actor.AgencyID)
	if errors.Is(err, sql.ErrNoRows) {
		return messaging.Conversation{}, apperr.NotFound("conversation not found")
	}
	return c, err
}

// List returns conversations visible to the actor under the view mode.
func (s *Service) List(ctx context.Context, actor agent.User, view string) ([]messaging.Conversation, error) {
	agentIDs, err := s.visibility.VisibleAgentIDs(ctx, actor, view)
	if err != nil {
		return nil, err
	}
	return s.store.ListConversations(ctx, actor.AgencyID, agentIDs)
}

// Messages lists a conversation's messages oldest-first.
func (s *Service) Messages(ctx context.Context, actor agent.User, conversationID string) ([]messaging.Message, error) {
	if _, err := s.Get(ctx, actor, conversationID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, conversationID)
}

// SetOptInStatus updates a conversation's opt-in state.
func (s *Service) SetOptInStatus(ctx context.Context, actor agent.User, conversationID, status string) error {
	switch status {
	case messaging.OptInPending, messaging.OptInOptedIn, messaging.OptInOptedOut:
	default:
		return apperr.BadRequest("invalid opt-in status: " + status)
	}
	if _, err := s.Get(ctx, actor, conversationID); err != nil {
		return err
	}
	return s.store.SetOptInStatus(ctx, conversationID, status)
}

// Send delivers an outbound SMS on a conversation. Opted-out numbers
// are refused, and the sender's monthly allowance (tier limit plus
// top-up credits) is enforced before the carrier call.
func (s *Service) Send(ctx context.Context, actor agent.User, conversationID, body string) (messaging.Message, error) {
	if strings.TrimSpace(body) == "" {
		return messaging.Message{}, apperr.BadRequest("message body is empty")
	}

	conv, err := s.Get(ctx, actor, conversationID)
	if err != nil {
		return messaging.Message{}, err
	}
	if conv.SMSOptInStatus == messaging.OptInOptedOut {
		return messaging.Message{}, apperr.Forbidden("recipient has opted out of SMS messages")
	}

	sender, err := s.users.GetUser(ctx, actor.ID)
	if err != nil {
		return messaging.Message{}, err
	}
	if limit := billing.LimitsFor(sender.SubscriptionTier).MaxSMSPerMonth; limit >= 0 {
		allowance := limit + sender.MessagesTopupCredits
		if sender.MessagesSentCount >= allowance {
			return messaging.Message{}, apperr.Forbidden("monthly SMS limit reached; purchase a top-up or upgrade your subscription").
				WithDetails(map[string]interface{}{"limit": limit, "topup_credits": sender.MessagesTopupCredits})
		}
	}

	ag, err := s.agencies.GetAgency(ctx, conv.AgencyID)
	if err != nil {
		return messaging.Message{}, err
	}
	if ag.PhoneNumber == "" {
		return messaging.Message{}, apperr.Conflict("no_sender_number", "agency has no outbound phone number configured")
	}

	msg, err := s.store.CreateMessage(ctx, messaging.Message{
		ConversationID: conv.ID,
		AgencyID:       conv.AgencyID,
		Direction:      messaging.DirectionOutbound,
		Status:         messaging.StatusPending,
		Body:           body,
	})
	if err != nil {
		return messaging.Message{}, err
	}

	externalID, sendErr := s.sender.Send(ctx, ag.PhoneNumber, conv.ClientPhone, body)
	if sendErr != nil {
		metrics.RecordSMS(messaging.DirectionOutbound, messaging.StatusFailed)
		if err := s.store.UpdateMessageStatus(ctx, msg.ID, messaging.StatusFailed, "", sendErr.Error()); err != nil {
			s.log.WithError(err).Warnf("failed to mark message %s failed", msg.ID)
		}
		msg.Status = messaging.StatusFailed
		msg.ErrorMessage = sendErr.Error()
		return msg, apperr.Internal("SMS delivery failed: " + sendErr.Error())
	}

	if err := s.store.UpdateMessageStatus(ctx, msg.ID, messaging.StatusSent, externalID, ""); err != nil {
		return messaging.Message{}, err
	}
	if err := s.users.IncrementMessagesSent(ctx, actor.ID); err != nil {
		s.log.WithError(err).Warnf("usage increment failed for agent %s", actor.ID)
	}
	metrics.RecordSMS(messaging.DirectionOutbound, messaging.StatusSent)

	msg.Status = messaging.StatusSent
	msg.ExternalID = externalID
	s.log.WithField("conversation_id", conv.ID).Infof("message %s sent", msg.ID)
	return msg, nil
}

// HandleInboundByNumber routes an inbound SMS by the receiving phone
// number, which identifies the agency.
func (s *Service) HandleInboundByNumber(ctx context.Context, toPhone, fromPhone, body string) error {
	normalized, err := phone.Normalize(toPhone)
	if err != nil {
		return apperr.BadRequest(err.Error())
	}
	ag, err := s.agencies.GetAgencyByPhone(ctx, normalized)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("no agency owns this phone number")
	}
	if err != nil {
		return err
	}
	return s.HandleInbound(ctx, ag.ID, fromPhone, body)
}

// HandleInbound records an inbound SMS from a client. STOP marks the
// thread opted out, START opts it back in.
func (s *Service) HandleInbound(ctx context.Context, agencyID, fromPhone, body string) error {
	normalized, err := phone.Normalize(fromPhone)
	if err != nil {
		return apperr.BadRequest(err.Error())
	}

	conv, err := s.store.FindConversationByPhone(ctx, agencyID, normalized)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("no active conversation for this phone number")
	}
	if err != nil {
		return err
	}

	if _, err := s.store.CreateMessage(ctx, messaging.Message{
		ConversationID: conv.ID,
		AgencyID:       conv.AgencyID,
		Direction:      messaging.DirectionInbound,
		Status:         messaging.StatusSent,
		Body:           body,
	}); err != nil {
		return err
	}
	metrics.RecordSMS(messaging.DirectionInbound, messaging.StatusSent)

	switch strings.ToUpper(strings.TrimSpace(body)) {
	case "STOP", "STOPALL", "UNSUBSCRIBE", "CANCEL", "END", "QUIT":
		s.log.Infof("conversation %s opted out", conv.ID)
		return s.store.SetOptInStatus(ctx, conv.ID, messaging.OptInOptedOut)
	case "START", "YES", "UNSTOP":
		s.log.Infof("conversation %s opted in", conv.ID)
		return s.store.SetOptInStatus(ctx, conv.ID, messaging.OptInOptedIn)
	}
	return nil
}
