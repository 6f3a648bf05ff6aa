// Package identity issues and verifies session tokens.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hyperengineering/goalboard/internal/types"
	"github.com/oklog/ulid/v2"
)

var (
	// ErrMissingToken is returned for an empty token.
	ErrMissingToken = errors.New("missing token")
	// ErrInvalidToken wraps parse and validation failures.
	ErrInvalidToken = errors.New("invalid token")
	// ErrCustomTokensDisabled is returned when no custom-token secret is configured.
	ErrCustomTokensDisabled = errors.New("custom tokens are not enabled")
)

// Config holds signing parameters.
type Config struct {
	// SessionSecret signs session tokens issued by this service.
	SessionSecret string
	// CustomTokenSecret verifies externally minted custom tokens. Empty disables redemption.
	CustomTokenSecret string
	// CustomTokenIssuer is the required "iss" of custom tokens. Empty skips the check.
	CustomTokenIssuer string
	Issuer            string
	TTL               time.Duration
}

// Claims are the verified contents of a session token.
type Claims struct {
	Subject   string
	Anonymous bool
	ExpiresAt time.Time
}

type sessionClaims struct {
	Anonymous bool `json:"anon,omitempty"`
	jwt.RegisteredClaims
}

// Issuer mints session tokens.
type Issuer struct {
	cfg Config
	now func() time.Time
}

// NewIssuer validates cfg and returns an Issuer.
func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.SessionSecret) < 16 {
		return nil, errors.New("session secret must be at least 16 bytes")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "goalboard"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &Issuer{cfg: cfg, now: time.Now}, nil
}

// SignInAnonymously creates a new user id and a session for it.
func (i *Issuer) SignInAnonymously() (types.SignInResponse, error) {
	return i.issue(ulid.Make().String(), true)
}

// RedeemCustomToken verifies an HS256 custom token and returns a session for
// the user named by its "sub" or "uid" claim.
func (i *Issuer) RedeemCustomToken(token string) (types.SignInResponse, error) {
	if i.cfg.CustomTokenSecret == "" {
		return types.SignInResponse{}, ErrCustomTokensDisabled
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return types.SignInResponse{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name})}
	if i.cfg.CustomTokenIssuer != "" {
		opts = append(opts, jwt.WithIssuer(i.cfg.CustomTokenIssuer))
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return []byte(i.cfg.CustomTokenSecret), nil
	}, opts...)
	if err != nil {
		return types.SignInResponse{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return types.SignInResponse{}, ErrInvalidToken
	}

	uid, _ := claims["uid"].(string)
	if sub, _ := claims["sub"].(string); sub != "" {
		uid = sub
	}
	if !validUserID(uid) {
		return types.SignInResponse{}, fmt.Errorf("%w: missing or malformed user id", ErrInvalidToken)
	}
	return i.issue(uid, false)
}

func (i *Issuer) issue(userID string, anonymous bool) (types.SignInResponse, error) {
	now := i.now()
	exp := now.Add(i.cfg.TTL)
	claims := sessionClaims{
		Anonymous: anonymous,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.cfg.SessionSecret))
	if err != nil {
		return types.SignInResponse{}, fmt.Errorf("sign session token: %w", err)
	}
	return types.SignInResponse{
		UserID:    userID,
		Token:     signed,
		ExpiresAt: exp.UTC(),
		Anonymous: anonymous,
	}, nil
}

// Verify parses a session token issued by this Issuer.
func (i *Issuer) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(i.cfg.SessionSecret), nil
	},
		jwt.WithIssuer(i.cfg.Issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !validUserID(claims.Subject) {
		return nil, ErrInvalidToken
	}
	return &Claims{
		Subject:   claims.Subject,
		Anonymous: claims.Anonymous,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// validUserID rejects ids that cannot form a document path segment.
func validUserID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, "/ \t\r\n")
}

// LocalProvider exposes an Issuer through the context-aware sign-in calls a
// client session expects, for single-process use without the HTTP API.
type LocalProvider struct {
	Issuer *Issuer
}

// SignInAnonymously implements session.Provider.
func (p LocalProvider) SignInAnonymously(ctx context.Context) (types.SignInResponse, error) {
	if err := ctx.Err(); err != nil {
		return types.SignInResponse{}, err
	}
	return p.Issuer.SignInAnonymously()
}

// RedeemCustomToken implements session.Provider.
func (p LocalProvider) RedeemCustomToken(ctx context.Context, token string) (types.SignInResponse, error) {
	if err := ctx.Err(); err != nil {
		return types.SignInResponse{}, err
	}
	return p.Issuer.RedeemCustomToken(token)
}
