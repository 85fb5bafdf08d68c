// Package token signs the tenant reference embedded in checkout metadata.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/neomorfeo/bookiq/internal/domain"
)

const issuer = "bookiq"

// ErrInvalidToken wraps every rejection from Parse.
var ErrInvalidToken = errors.New("invalid tenant token")

type claims struct {
	TenantID      string `json:"tid"`
	ReservationID string `json:"rid,omitempty"`
	jwt.RegisteredClaims
}

// Issuer is an HS256 implementation of domain.TokenIssuer.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

var _ domain.TokenIssuer = (*Issuer)(nil)

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source used for iat/exp.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer creates an Issuer. A zero ttl issues tokens without expiry.
func NewIssuer(secret string, ttl time.Duration, opts ...Option) *Issuer {
	i := &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Issuer) Issue(ref domain.TenantReference) (string, error) {
	if ref.TenantID == "" {
		return "", fmt.Errorf("issuing tenant token: tenant id is required")
	}
	now := i.now()
	c := claims{
		TenantID:      ref.TenantID,
		ReservationID: ref.ReservationID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if i.ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("signing tenant token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature, issuer and expiry and returns the reference.
func (i *Issuer) Parse(raw string) (domain.TenantReference, error) {
	var c claims
	key := func(*jwt.Token) (any, error) { return i.secret, nil }
	_, err := jwt.ParseWithClaims(raw, &c, key,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return domain.TenantReference{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if c.TenantID == "" {
		return domain.TenantReference{}, fmt.Errorf("%w: missing tid claim", ErrInvalidToken)
	}
	return domain.TenantReference{TenantID: c.TenantID, ReservationID: c.ReservationID}, nil
}
