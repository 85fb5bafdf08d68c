package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/neomorfeo/bookiq/internal/domain"
)

// maxWebhookBody caps processor callbacks; real checkout events are a few KB.
const maxWebhookBody = 1 << 20

// EventVerifier authenticates and decodes a raw processor callback.
type EventVerifier interface {
	Parse(payload []byte, header string) (domain.PaymentEvent, error)
}

// EventProcessor applies a verified payment event.
type EventProcessor interface {
	Process(ctx context.Context, event domain.PaymentEvent) (domain.Outcome, error)
}

// SignatureHeader is the header the processor signs callbacks with.
const SignatureHeader = "Stripe-Signature"

type webhookReply struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome,omitempty"`
}

// WebhookHandler receives processor callbacks. Only verification failures
// are rejected; every verified event is acknowledged, with transient
// failures handed to the retry queue. A 5xx is returned only when the
// event can be neither applied nor queued, so the processor redelivers it.
func WebhookHandler(verifier EventVerifier, processor EventProcessor, retries domain.RetryQueue, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			logger.WarnContext(ctx, "webhook rejected", slog.Any("error", err))
			writeProblem(w, http.StatusBadRequest, "malformed payload")
			return
		}

		event, err := verifier.Parse(payload, r.Header.Get(SignatureHeader))
		if err != nil {
			logger.WarnContext(ctx, "webhook rejected", slog.Any("error", err))
			if errors.Is(err, domain.ErrSignatureInvalid) {
				writeProblem(w, http.StatusBadRequest, "invalid signature")
				return
			}
			writeProblem(w, http.StatusBadRequest, "malformed payload")
			return
		}

		outcome, err := processor.Process(ctx, event)
		if err != nil {
			logger.WarnContext(ctx, "webhook processing failed, scheduling retry",
				slog.String("event_id", event.ID),
				slog.Any("error", err),
			)
			if qerr := retries.EnqueueRetry(ctx, event); qerr != nil {
				logger.ErrorContext(ctx, "enqueueing webhook retry",
					slog.String("event_id", event.ID),
					slog.Any("error", qerr),
				)
				writeProblem(w, http.StatusInternalServerError, "event could not be processed")
				return
			}
			writeJSON(w, http.StatusOK, webhookReply{Received: true, Outcome: "retry_scheduled"})
			return
		}

		writeJSON(w, http.StatusOK, webhookReply{Received: true, Outcome: string(outcome)})
	})
}

// FakeCheckout plays the processor's hosted page for the fake gateway.
type FakeCheckout interface {
	Pay(externalID string) ([]byte, error)
	Expire(externalID string) ([]byte, error)
}

// Signer produces the signature header for a callback payload.
type Signer func(payload []byte, at time.Time) string

// FakeCheckoutHandler completes (or, with ?result=expire, lapses) a fake
// session and delivers the resulting callback to the webhook handler.
func FakeCheckoutHandler(fake FakeCheckout, sign Signer, webhook http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var (
			payload []byte
			err     error
		)
		if r.URL.Query().Get("result") == "expire" {
			payload, err = fake.Expire(id)
		} else {
			payload, err = fake.Pay(id)
		}
		if err != nil {
			writeProblem(w, http.StatusNotFound, err.Error())
			return
		}

		req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, "/webhooks/payments", bytes.NewReader(payload))
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, err.Error())
			return
		}
		req.Header.Set(SignatureHeader, sign(payload, time.Now()))
		webhook.ServeHTTP(w, req)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}
