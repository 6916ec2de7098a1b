package messaging

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/agency"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/agent"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/billing"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/domain/messaging"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/app/storage/memory"
	"github.com/AshokDevireddy/agentspace-backend-sub001/internal/apperr"
)

type allVisible struct{}

func (allVisible) VisibleAgentIDs(context.Context, agent.User, string) ([]string, error) {
	return nil, nil
}

// fakeSender records outbound sends and can be forced to fail.
type fakeSender struct {
	sent []struct{ from, to, text string }
	fail error
}

func (f *fakeSender) Send(_ context.Context, from, to, text string) (string, error) {
	if f.fail != nil {
		return "", f.fail
	}
	f.sent = append(f.sent, struct{ from, to, text string }{from, to, text})
	return "tx-1", nil
}

func setup(t *testing.T) (*memory.Store, *Service, *fakeSender, agent.User) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	ag, err := store.CreateAgency(ctx, agency.Agency{Name: "Summit Insurance", PhoneNumber: "+15550001111"})
	if err != nil {
		t.Fatalf("create agency: %v", err)
	}
	actor, err := store.CreateUser(ctx, agent.User{
		AgencyID: ag.ID, FirstName: "Sam", LastName: "Reed", Email: "sam@example.com",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	sender := &fakeSender{}
	svc := New(store, store, store, sender, allVisible{}, nil)
	return store, svc, sender, actor
}

func appStatus(t *testing.T, err error) int {
	t.Helper()
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected apperr, got %v", err)
	}
	return appErr.Status
}

func TestStartConversationReusesActiveThread(t *testing.T) {
	ctx := context.Background()
	_, svc, _, actor := setup(t)

	first, err := svc.StartConversation(ctx, actor, "", "555-123-4567")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if first.ClientPhone != "+15551234567" {
		t.Fatalf("phone not normalized: %q", first.ClientPhone)
	}
	if first.SMSOptInStatus != messaging.OptInPending {
		t.Fatalf("expected pending opt-in, got %q", first.SMSOptInStatus)
	}

	second, err := svc.StartConversation(ctx, actor, "", "(555) 123-4567")
	if err != nil {
		t.Fatalf("start again: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected the same thread, got %s and %s", first.ID, second.ID)
	}
}

func TestSendDeliversAndIncrementsUsage(t *testing.T) {
	ctx := context.Background()
	store, svc, sender, actor := setup(t)

	conv, err := svc.StartConversation(ctx, actor, "", "5551234567")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	msg, err := svc.Send(ctx, actor, conv.ID, "hello there")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.Status != messaging.StatusSent || msg.ExternalID != "tx-1" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if len(sender.sent) != 1 || sender.sent[0].from != "+15550001111" || sender.sent[0].to != "+15551234567" {
		t.Fatalf("unexpected carrier call: %+v", sender.sent)
	}

	u, err := store.GetUser(ctx, actor.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.MessagesSentCount != 1 {
		t.Fatalf("expected messages_sent_count 1, got %d", u.MessagesSentCount)
	}
}

func TestSendRefusesOptedOutRecipient(t *testing.T) {
	ctx := context.Background()
	store, svc, sender, actor := setup(t)

	conv, err := svc.StartConversation(ctx, actor, "", "5551234567")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := store.SetOptInStatus(ctx, conv.ID, messaging.OptInOptedOut); err != nil {
		t.Fatalf("opt out: %v", err)
	}

	_, err = svc.Send(ctx, actor, conv.ID, "are you there?")
	if err == nil {
		t.Fatal("expected send to be refused")
	}
	if status := appStatus(t, err); status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}
	if len(sender.sent) != 0 {
		t.Fatal("carrier must not be called for opted-out numbers")
	}
}

func TestSendEnforcesMonthlyAllowanceWithTopups(t *testing.T) {
	ctx := context.Background()
	store, svc, sender, actor := setup(t)

	conv, err := svc.StartConversation(ctx, actor, "", "5551234567")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Free tier allows 100 per month; 2 top-up credits extend that.
	limit := billing.LimitsFor(billing.TierFree).MaxSMSPerMonth
	u, _ := store.GetUser(ctx, actor.ID)
	u.MessagesSentCount = limit
	u.MessagesTopupCredits = 2
	if _, err := store.UpdateUser(ctx, u); err != nil {
		t.Fatalf("update user: %v", err)
	}

	if _, err := svc.Send(ctx, actor, conv.ID, "one"); err != nil {
		t.Fatalf("send within top-up allowance: %v", err)
	}
	if _, err := svc.Send(ctx, actor, conv.ID, "two"); err != nil {
		t.Fatalf("send within top-up allowance: %v", err)
	}

	_, err = svc.Send(ctx, actor, conv.ID, "three")
	if err == nil {
		t.Fatal("expected allowance exhaustion")
	}
	if status := appStatus(t, err); status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("expected exactly 2 deliveries, got %d", len(sender.sent))
	}
}

func TestSendRequiresAgencyNumber(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ag, err := store.CreateAgency(ctx, agency.Agency{Name: "No Number Agency"})
	if err != nil {
		t.Fatalf("create agency: %v", err)
	}
	actor, err := store.CreateUser(ctx, agent.User{AgencyID: ag.ID, Email: "a@example.com"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	svc := New(store, store, store, &fakeSender{}, allVisible{}, nil)

	conv, err := svc.StartConversation(ctx, actor, "", "5551234567")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err = svc.Send(ctx, actor, conv.ID, "hello")
	if err == nil {
		t.Fatal("expected no_sender_number conflict")
	}
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Code != "no_sender_number" {
		t.Fatalf("expected no_sender_number, got %v", err)
	}
}

func TestSendMarksFailureWhenCarrierErrors(t *testing.T) {
	ctx := context.Background()
	store, svc, sender, actor := setup(t)
	sender.fail = errors.New("carrier unavailable")

	conv, err := svc.StartConversation(ctx, actor, "", "5551234567")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	msg, err := svc.Send(ctx, actor, conv.ID, "hello")
	if err == nil {
		t.Fatal("expected delivery failure")
	}
	if msg.Status != messaging.StatusFailed || msg.ErrorMessage == "" {
		t.Fatalf("expected failed message record, got %+v", msg)
	}

	u, _ := store.GetUser(ctx, actor.ID)
	if u.MessagesSentCount != 0 {
		t.Fatal("failed sends must not count against the allowance")
	}
}

func TestHandleInboundStopAndStart(t *testing.T) {
	ctx := context.Background()
	store, svc, _, actor := setup(t)

	conv, err := svc.StartConversation(ctx, actor, "", "5551234567")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := svc.HandleInbound(ctx, actor.AgencyID, "5551234567", "STOP"); err != nil {
		t.Fatalf("inbound stop: %v", err)
	}
	got, _ := store.GetConversation(ctx, conv.ID, actor.AgencyID)
	if got.SMSOptInStatus != messaging.OptInOptedOut {
		t.Fatalf("expected opted_out, got %q", got.SMSOptInStatus)
	}

	if err := svc.HandleInbound(ctx, actor.AgencyID, "5551234567", "start"); err != nil {
		t.Fatalf("inbound start: %v", err)
	}
	got, _ = store.GetConversation(ctx, conv.ID, actor.AgencyID)
	if got.SMSOptInStatus != messaging.OptInOptedIn {
		t.Fatalf("expected opted_in, got %q", got.SMSOptInStatus)
	}

	msgs, err := svc.Messages(ctx, actor, conv.ID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 inbound messages recorded, got %d", len(msgs))
	}
	if msgs[0].Direction != messaging.DirectionInbound {
		t.Fatalf("expected inbound direction, got %q", msgs[0].Direction)
	}
}

func TestHandleInboundByNumberRoutesByAgencyPhone(t *testing.T) {
	ctx := context.Background()
	store, svc, _, actor := setup(t)

	conv, err := svc.StartConversation(ctx, actor, "", "5551234567")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := svc.HandleInboundByNumber(ctx, "555-000-1111", "5551234567", "got it, thanks"); err != nil {
		t.Fatalf("inbound by number: %v", err)
	}
	msgs, _ := store.ListMessages(ctx, conv.ID)
	if len(msgs) != 1 || msgs[0].Body != "got it, thanks" {
		t.Fatalf("expected routed inbound message, got %+v", msgs)
	}

	err = svc.HandleInboundByNumber(ctx, "555-999-9999", "5551234567", "hello?")
	if err == nil {
		t.Fatal("expected unroutable number to fail")
	}
	if status := appStatus(t, err); status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}
