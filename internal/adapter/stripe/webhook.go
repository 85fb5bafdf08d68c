package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/neomorfeo/bookiq/internal/domain"
)

// DefaultTolerance is the accepted clock skew for signed webhook payloads.
const DefaultTolerance = 5 * time.Minute

const eventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"

// WebhookVerifier checks the Stripe-Signature header and decodes checkout
// session events.
type WebhookVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewWebhookVerifier creates a verifier for the endpoint signing secret.
func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: []byte(secret), tolerance: DefaultTolerance, now: time.Now}
}

// WithClock returns a copy of v that reads time from now.
func (v *WebhookVerifier) WithClock(now func() time.Time) *WebhookVerifier {
	cp := *v
	cp.now = now
	return &cp
}

// Parse verifies payload against the signature header and returns the
// decoded event. Failures wrap domain.ErrSignatureInvalid or
// domain.ErrMalformedPayload.
func (v *WebhookVerifier) Parse(payload []byte, header string) (domain.PaymentEvent, error) {
	if err := v.verify(payload, header); err != nil {
		return domain.PaymentEvent{}, fmt.Errorf("%w: %w", domain.ErrSignatureInvalid, err)
	}

	var evt struct {
		ID      string `json:"id"`
		Type    string `json:"type"`
		Created int64  `json:"created"`
		Data    struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &evt); err != nil {
		return domain.PaymentEvent{}, fmt.Errorf("%w: %w", domain.ErrMalformedPayload, err)
	}
	if evt.ID == "" || evt.Type == "" {
		return domain.PaymentEvent{}, fmt.Errorf("%w: missing event id or type", domain.ErrMalformedPayload)
	}

	event := domain.PaymentEvent{
		ID:      evt.ID,
		Type:    domain.PaymentEventType(evt.Type),
		Created: evt.Created,
		Raw:     payload,
	}
	if !strings.HasPrefix(evt.Type, "checkout.session.") {
		return event, nil
	}

	var session sessionObject
	if err := json.Unmarshal(evt.Data.Object, &session); err != nil {
		return domain.PaymentEvent{}, fmt.Errorf("%w: session object: %w", domain.ErrMalformedPayload, err)
	}
	event.Session = session.details()

	switch evt.Type {
	case eventAsyncPaymentSucceeded:
		event.Type = domain.EventCheckoutCompleted
		event.Session.Status = domain.SessionPaid
	case string(domain.EventCheckoutPaymentFailed):
		event.Session.Status = domain.SessionFailed
	}
	return event, nil
}

func (v *WebhookVerifier) verify(payload []byte, header string) error {
	if len(v.secret) == 0 {
		return fmt.Errorf("no signing secret configured")
	}
	if header == "" {
		return fmt.Errorf("missing signature header")
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			timestamp = val
		case "v1":
			signatures = append(signatures, val)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return fmt.Errorf("signature header has no timestamp or v1 signature")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("bad timestamp %q", timestamp)
	}
	if skew := v.now().Sub(time.Unix(ts, 0)); skew > v.tolerance || skew < -v.tolerance {
		return fmt.Errorf("timestamp outside tolerance")
	}

	expected := sign(v.secret, timestamp, payload)
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return fmt.Errorf("no matching signature")
}

// SignatureHeader builds a Stripe-Signature header for payload. The fake
// gateway and tests use it to produce deliverable events.
func SignatureHeader(secret string, payload []byte, at time.Time) string {
	timestamp := strconv.FormatInt(at.Unix(), 10)
	return "t=" + timestamp + ",v1=" + sign([]byte(secret), timestamp, payload)
}

func sign(secret []byte, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
