// Package session resolves the signed-in user for a client process.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hyperengineering/goalboard/internal/types"
)

// ErrAuthenticationFailed is returned when sign-in did not produce a user.
var ErrAuthenticationFailed = errors.New("authentication failed")

// State is the sign-in state.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Provider signs users in.
type Provider interface {
	SignInAnonymously(ctx context.Context) (types.SignInResponse, error)
	RedeemCustomToken(ctx context.Context, token string) (types.SignInResponse, error)
}

// Session runs sign-in at most once and remembers the outcome.
type Session struct {
	provider    Provider
	customToken string
	cache       Cache
	now         func() time.Time

	once  sync.Once
	mu    sync.RWMutex
	state State
	user  types.SignInResponse
	err   error
}

// Option configures a Session.
type Option func(*Session)

// WithCache reuses an unexpired sign-in from c and stores new ones in it.
func WithCache(c Cache) Option {
	return func(s *Session) { s.cache = c }
}

// New returns an unauthenticated session. A non-empty customToken is redeemed
// instead of signing in anonymously.
func New(provider Provider, customToken string, opts ...Option) *Session {
	s := &Session{
		provider:    provider,
		customToken: strings.TrimSpace(customToken),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve signs in on first call and returns the user id. Later calls return
// the same result without contacting the provider.
func (s *Session) Resolve(ctx context.Context) (string, error) {
	s.once.Do(func() { s.resolve(ctx) })

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.UserID, s.err
}

func (s *Session) resolve(ctx context.Context) {
	s.setState(StateAuthenticating)

	if resp, ok := s.cached(); ok {
		s.succeed(resp, "cache")
		return
	}

	if s.provider == nil {
		s.fail(errors.New("no identity provider configured"))
		return
	}

	var (
		resp   types.SignInResponse
		err    error
		method = "anonymous"
	)
	if s.customToken != "" {
		method = "custom_token"
		resp, err = s.provider.RedeemCustomToken(ctx, s.customToken)
	} else {
		resp, err = s.provider.SignInAnonymously(ctx)
	}
	if err == nil && strings.TrimSpace(resp.UserID) == "" {
		err = errors.New("provider returned no user id")
	}
	if err != nil {
		s.fail(err)
		return
	}

	if s.cache != nil {
		if err := s.cache.Store(resp); err != nil {
			slog.Warn("session cache write failed", "component", "session", "action", "cache", "error", err)
		}
	}
	s.succeed(resp, method)
}

// cached returns a stored sign-in of the same kind that is still valid.
func (s *Session) cached() (types.SignInResponse, bool) {
	if s.cache == nil {
		return types.SignInResponse{}, false
	}
	resp, ok := s.cache.Load()
	if !ok || resp.UserID == "" || resp.Token == "" {
		return types.SignInResponse{}, false
	}
	if resp.Anonymous != (s.customToken == "") {
		return types.SignInResponse{}, false
	}
	if !resp.ExpiresAt.IsZero() && !resp.ExpiresAt.After(s.now().Add(time.Minute)) {
		return types.SignInResponse{}, false
	}
	return resp, true
}

func (s *Session) succeed(resp types.SignInResponse, method string) {
	s.mu.Lock()
	s.state = StateAuthenticated
	s.user = resp
	s.mu.Unlock()

	slog.Info("signed in",
		"component", "session",
		"action", "resolve",
		"method", method,
		"user_id", resp.UserID,
	)
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.state = StateFailed
	s.err = fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	s.mu.Unlock()

	slog.Warn("sign-in failed", "component", "session", "action", "resolve", "error", err)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// UserID returns the signed-in user id, or "" before a successful Resolve.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.UserID
}

// Token returns the session token issued at sign-in.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.Token
}
