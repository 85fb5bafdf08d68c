// Package stripe implements the payment gateway against the Stripe
// Checkout Sessions REST API.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/neomorfeo/bookiq/internal/domain"
)

const (
	defaultBaseURL    = "https://api.stripe.com"
	defaultAPIVersion = "2024-12-18.acacia"

	// Stripe only accepts expires_at between 30 minutes and 24 hours out.
	minSessionLifetime = 31 * time.Minute
	maxSessionLifetime = 24 * time.Hour
)

// Config holds credentials and redirect targets for checkout sessions.
type Config struct {
	SecretKey  string
	BaseURL    string
	SuccessURL string
	CancelURL  string
}

// Client is a domain.PaymentGateway backed by Stripe Checkout.
type Client struct {
	secretKey  string
	baseURL    string
	apiVersion string
	successURL string
	cancelURL  string
	httpClient *http.Client
	now        func() time.Time
	logger     *slog.Logger
}

var _ domain.PaymentGateway = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock overrides the time source used to compute session expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Stripe client.
func NewClient(cfg Config, opts ...Option) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		secretKey:  cfg.SecretKey,
		baseURL:    baseURL,
		apiVersion: defaultAPIVersion,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateSession opens a one-line-item checkout session for the reservation
// price. The reservation, tenant and customer ids plus the signed tenant
// token travel as session metadata.
func (c *Client) CreateSession(ctx context.Context, req domain.SessionRequest) (domain.PaymentSession, error) {
	const op = "create checkout session"
	r := req.Reservation

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(r.Price.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(r.Price.Amount, 10))
	form.Set("line_items[0][price_data][product_data][name]", req.Description)
	form.Set("line_items[0][quantity]", "1")
	form.Set("client_reference_id", r.ID)
	if c.successURL != "" {
		form.Set("success_url", c.successURL)
	}
	if c.cancelURL != "" {
		form.Set("cancel_url", c.cancelURL)
	}
	if !req.ExpiresAt.IsZero() {
		form.Set("expires_at", strconv.FormatInt(c.clampExpiry(req.ExpiresAt).Unix(), 10))
	}

	metadata := map[string]string{
		domain.MetaReservationID: r.ID,
		domain.MetaTenantID:      req.Tenant.ID,
		domain.MetaCustomerID:    r.CustomerID,
		domain.MetaTenantToken:   req.TenantToken,
	}
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
	}

	var session sessionObject
	if err := c.do(ctx, op, http.MethodPost, "/v1/checkout/sessions", form, &session); err != nil {
		return domain.PaymentSession{}, err
	}
	if session.ID == "" || session.URL == "" {
		return domain.PaymentSession{}, &domain.GatewayError{Kind: domain.ErrProviderError, Op: op, Err: errors.New("response missing session id or url")}
	}

	created := c.now().UTC()
	if session.Created > 0 {
		created = time.Unix(session.Created, 0).UTC()
	}
	return domain.PaymentSession{
		ExternalID:    session.ID,
		ReservationID: r.ID,
		TenantID:      req.Tenant.ID,
		Amount:        r.Price,
		CheckoutURL:   session.URL,
		CreatedAt:     created,
	}, nil
}

// VerifySession fetches the authoritative state of a session.
func (c *Client) VerifySession(ctx context.Context, externalID string) (domain.SessionDetails, error) {
	const op = "verify session"
	if externalID == "" {
		return domain.SessionDetails{}, &domain.GatewayError{Kind: domain.ErrSessionNotFound, Op: op}
	}

	var session sessionObject
	if err := c.do(ctx, op, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(externalID), nil, &session); err != nil {
		return domain.SessionDetails{}, err
	}
	return session.details(), nil
}

// ExpireSession closes an open session at Stripe.
func (c *Client) ExpireSession(ctx context.Context, externalID string) error {
	const op = "expire session"
	if externalID == "" {
		return &domain.GatewayError{Kind: domain.ErrSessionNotFound, Op: op}
	}

	var session sessionObject
	return c.do(ctx, op, http.MethodPost, "/v1/checkout/sessions/"+url.PathEscape(externalID)+"/expire", url.Values{}, &session)
}

func (c *Client) clampExpiry(at time.Time) time.Time {
	now := c.now()
	if lo := now.Add(minSessionLifetime); at.Before(lo) {
		return lo
	}
	if hi := now.Add(maxSessionLifetime); at.After(hi) {
		return hi
	}
	return at
}

func (c *Client) do(ctx context.Context, op, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &domain.GatewayError{Kind: domain.ErrProviderError, Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Stripe-Version", c.apiVersion)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.GatewayError{Kind: domain.ErrGatewayUnavailable, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := readAPIError(resp)
		c.logger.WarnContext(ctx, "stripe api error",
			slog.String("op", op),
			slog.Int("status", resp.StatusCode),
			slog.String("error", apiErr.Error()),
		)
		return &domain.GatewayError{Kind: statusKind(resp.StatusCode), Op: op, Err: apiErr}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.GatewayError{Kind: domain.ErrProviderError, Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

func statusKind(code int) error {
	switch {
	case code == http.StatusNotFound:
		return domain.ErrSessionNotFound
	case code == http.StatusTooManyRequests, code >= http.StatusInternalServerError:
		return domain.ErrGatewayUnavailable
	default:
		return domain.ErrProviderError
	}
}

// apiError is Stripe's error envelope.
type apiError struct {
	Status  int
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("stripe %d %s (%s): %s", e.Status, e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("stripe %d %s: %s", e.Status, e.Type, e.Message)
}

func readAPIError(resp *http.Response) *apiError {
	var envelope struct {
		Error apiError `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error.Message == "" {
		envelope.Error.Message = strings.TrimSpace(string(data))
	}
	envelope.Error.Status = resp.StatusCode
	return &envelope.Error
}

// sessionObject is the subset of a Checkout Session the gateway reads.
type sessionObject struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	Created       int64             `json:"created"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	PaymentIntent string            `json:"payment_intent"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

func (s sessionObject) details() domain.SessionDetails {
	return domain.SessionDetails{
		ExternalID:    s.ID,
		Status:        s.status(),
		Amount:        domain.Money{Amount: s.AmountTotal, Currency: s.Currency},
		PaymentIntent: s.PaymentIntent,
		Metadata:      s.Metadata,
	}
}

func (s sessionObject) status() domain.SessionStatus {
	switch {
	case s.PaymentStatus == "paid", s.PaymentStatus == "no_payment_required":
		return domain.SessionPaid
	case s.Status == "expired":
		return domain.SessionExpired
	default:
		return domain.SessionOpen
	}
}
