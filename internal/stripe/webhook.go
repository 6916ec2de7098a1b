package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance is the accepted clock skew on webhook timestamps.
const DefaultTolerance = 5 * time.Minute

var (
	// ErrInvalidSignature means no v1 signature matched the payload.
	ErrInvalidSignature = errors.New("stripe: webhook signature verification failed")
	// ErrStaleTimestamp means the signed timestamp is outside tolerance.
	ErrStaleTimestamp = errors.New("stripe: webhook timestamp outside tolerance")
)

// Event is a Stripe webhook event envelope. Data.Object carries the
// event-specific payload for the caller to decode.
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ConstructEvent verifies the Stripe-Signature header against the raw
// payload and decodes the event. The header carries a timestamp and
// one or more v1 HMAC-SHA256 signatures over "timestamp.payload".
func ConstructEvent(payload []byte, sigHeader, secret string) (Event, error) {
	return constructEventAt(payload, sigHeader, secret, time.Now(), DefaultTolerance)
}

func constructEventAt(payload []byte, sigHeader, secret string, now time.Time, tolerance time.Duration) (Event, error) {
	var event Event

	ts, sigs, err := parseSigHeader(sigHeader)
	if err != nil {
		return event, err
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age > tolerance || age < -tolerance {
			return event, ErrStaleTimestamp
		}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	expected := mac.Sum(nil)

	ok := false
	for _, sig := range sigs {
		decoded, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			ok = true
			break
		}
	}
	if !ok {
		return event, ErrInvalidSignature
	}

	if err := json.Unmarshal(payload, &event); err != nil {
		return event, fmt.Errorf("stripe: decoding webhook payload: %w", err)
	}
	return event, nil
}

func parseSigHeader(header string) (int64, []string, error) {
	var ts int64
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			v, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("stripe: bad timestamp in signature header")
			}
			ts = v
		case "v1":
			sigs = append(sigs, kv[1])
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return 0, nil, fmt.Errorf("stripe: malformed signature header")
	}
	return ts, sigs, nil
}
