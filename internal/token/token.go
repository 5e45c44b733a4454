// Package token issues and verifies the signed, time-bound bearer tokens that
// bind a principal's username to its role.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/bloodbank/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

const DefaultTTL = 24 * time.Hour

// Each failure reason wraps domain.ErrTokenInvalid so callers can treat them
// all as one rejection while logs keep the distinction.
var (
	ErrMalformed = fmt.Errorf("%w: malformed", domain.ErrTokenInvalid)
	ErrSignature = fmt.Errorf("%w: bad signature", domain.ErrTokenInvalid)
	ErrExpired   = fmt.Errorf("%w: expired", domain.ErrTokenInvalid)
)

type Claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Username is the token subject.
func (c *Claims) Username() string {
	return c.Subject
}

type Issued struct {
	Token     string
	ExpiresAt time.Time
}

type Service struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

type Option func(*Service)

// WithClock overrides time.Now for issuance and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func NewService(key []byte, opts ...Option) *Service {
	s := &Service{key: key, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) TTL() time.Duration {
	return s.ttl
}

func (s *Service) Issue(p *domain.Principal) (Issued, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	claims := Claims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return Issued{}, fmt.Errorf("sign jwt: %w", err)
	}
	return Issued{Token: signed, ExpiresAt: exp}, nil
}

// Verify checks signature and expiry only. Whether the subject still maps to
// an active principal is the caller's concern.
func (s *Service) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, classify(err)
	}
	if !tok.Valid || claims.Subject == "" || !claims.Role.Valid() {
		return nil, ErrMalformed
	}
	return claims, nil
}

// ExtractIdentity decodes the subject without verifying anything. Use it for
// log lines only.
func (s *Service) ExtractIdentity(raw string) string {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return ""
	}
	return claims.Subject
}

// Reason returns a short label for a Verify error, suitable for a metric label.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrSignature):
		return "signature"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	default:
		return "unknown"
	}
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignature
	default:
		return ErrMalformed
	}
}
