package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"
)

const testSecret = "whsec_test"

func signHeader(t *testing.T, payload []byte, secret string, ts time.Time) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestConstructEventValidSignature(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","created":1754049600,
		"data":{"object":{"id":"cs_1","mode":"subscription"}}}`)
	header := signHeader(t, payload, testSecret, now)

	event, err := constructEventAt(payload, header, testSecret, now, DefaultTolerance)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	if event.ID != "evt_1" || event.Type != "checkout.session.completed" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if len(event.Data.Object) == 0 {
		t.Fatal("expected data object payload")
	}
}

func TestConstructEventWrongSecret(t *testing.T) {
	now := time.Now()
	payload := []byte(`{"id":"evt_1","type":"x"}`)
	header := signHeader(t, payload, "whsec_other", now)

	_, err := constructEventAt(payload, header, testSecret, now, DefaultTolerance)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestConstructEventTamperedPayload(t *testing.T) {
	now := time.Now()
	payload := []byte(`{"id":"evt_1","type":"x"}`)
	header := signHeader(t, payload, testSecret, now)

	tampered := []byte(`{"id":"evt_2","type":"x"}`)
	_, err := constructEventAt(tampered, header, testSecret, now, DefaultTolerance)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestConstructEventStaleTimestamp(t *testing.T) {
	now := time.Now()
	signed := now.Add(-10 * time.Minute)
	payload := []byte(`{"id":"evt_1","type":"x"}`)
	header := signHeader(t, payload, testSecret, signed)

	_, err := constructEventAt(payload, header, testSecret, now, DefaultTolerance)
	if !errors.Is(err, ErrStaleTimestamp) {
		t.Fatalf("expected ErrStaleTimestamp, got %v", err)
	}
}

func TestConstructEventMalformedHeader(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	for _, header := range []string{"", "t=abc,v1=00", "v1=00", "t=123"} {
		if _, err := constructEventAt(payload, header, testSecret, time.Now(), DefaultTolerance); err == nil {
			t.Fatalf("header %q should be rejected", header)
		}
	}
}

func TestConstructEventAcceptsSecondSignature(t *testing.T) {
	// During secret rotation Stripe sends one v1 entry per active secret.
	now := time.Now()
	payload := []byte(`{"id":"evt_1","type":"x"}`)
	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "%d.", now.Unix())
	mac.Write(payload)
	header := fmt.Sprintf("t=%d,v1=00ff,v1=%s", now.Unix(), hex.EncodeToString(mac.Sum(nil)))

	event, err := constructEventAt(payload, header, testSecret, now, DefaultTolerance)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	if event.ID != "evt_1" {
		t.Fatalf("unexpected event: %+v", event)
	}
}
