package auth

import (
	"context"
	"time"

	"github.com/waqasmani/hris-autoclock/internal/infrastructure/hris"
	"github.com/waqasmani/hris-autoclock/internal/infrastructure/observability"
	"github.com/waqasmani/hris-autoclock/internal/modules/credentials"
	"github.com/waqasmani/hris-autoclock/internal/shared/errors"
)

// Authenticator exchanges HRIS credentials for a bearer token.
type Authenticator interface {
	Login(ctx context.Context, req hris.LoginRequest) (string, error)
}

// Session holds one employee's credentials and, once logged in, the bearer
// token for authenticated calls. A Session is owned by a single agent and is
// not safe for concurrent use.
type Session struct {
	employeeNumber string
	password       string
	token          string
	expiresAt      *time.Time
	client         Authenticator
	metrics        *observability.Metrics
}

func NewSession(cred credentials.Credential, client Authenticator, metrics *observability.Metrics) *Session {
	return &Session{
		employeeNumber: cred.EmployeeNumber,
		password:       cred.Password,
		client:         client,
		metrics:        metrics,
	}
}

// Login authenticates and stores the returned token. Any failure leaves the
// session without a token; the previous one is never kept.
func (s *Session) Login(ctx context.Context) (string, error) {
	s.Invalidate()

	token, err := s.client.Login(ctx, hris.LoginRequest{
		EmployeeNumber: s.employeeNumber,
		Password:       s.password,
	})
	if err != nil {
		s.recordAttempt("failure")
		return "", err
	}

	s.token = token
	s.expiresAt = TokenExpiry(token)
	s.recordAttempt("success")
	return token, nil
}

func (s *Session) Invalidate() {
	s.token = ""
	s.expiresAt = nil
}

func (s *Session) Token() string { return s.token }

// Bearer returns the token for an authenticated call, or ErrUnauthenticated
// when none is held.
func (s *Session) Bearer() (string, error) {
	if s.token == "" {
		return "", errors.ErrUnauthenticated
	}
	return s.token, nil
}

func (s *Session) Authenticated() bool { return s.token != "" }

func (s *Session) EmployeeNumber() string { return s.employeeNumber }

// ExpiresAt is the token's exp claim when the token is a JWT carrying one.
// It is informational only; the token is used until a call fails.
func (s *Session) ExpiresAt() *time.Time { return s.expiresAt }

func (s *Session) recordAttempt(result string) {
	if s.metrics != nil {
		s.metrics.LoginAttempts.WithLabelValues(result).Inc()
	}
}
