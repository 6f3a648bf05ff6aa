package identity

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testSessionSecret = "session-secret-0123456789"
	testCustomSecret  = "custom-secret-0123456789"
)

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	i, err := NewIssuer(Config{
		SessionSecret:     testSessionSecret,
		CustomTokenSecret: testCustomSecret,
		CustomTokenIssuer: "mt-portal",
		TTL:               time.Hour,
	})
	if err != nil {
		t.Fatalf("NewIssuer() error = %v", err)
	}
	return i
}

func customToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestNewIssuer_RejectsShortSecret(t *testing.T) {
	if _, err := NewIssuer(Config{SessionSecret: "short"}); err == nil {
		t.Error("NewIssuer(short secret) = nil error")
	}
}

func TestSignInAnonymously_RoundTrip(t *testing.T) {
	i := newTestIssuer(t)

	resp, err := i.SignInAnonymously()
	if err != nil {
		t.Fatal(err)
	}
	if resp.UserID == "" || !resp.Anonymous {
		t.Errorf("response = %+v", resp)
	}

	claims, err := i.Verify(resp.Token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Subject != resp.UserID || !claims.Anonymous {
		t.Errorf("claims = %+v, want subject %q anonymous", claims, resp.UserID)
	}
}

func TestSignInAnonymously_UniqueUsers(t *testing.T) {
	i := newTestIssuer(t)
	a, _ := i.SignInAnonymously()
	b, _ := i.SignInAnonymously()
	if a.UserID == b.UserID {
		t.Error("two anonymous sign-ins share a user id")
	}
}

func TestRedeemCustomToken(t *testing.T) {
	i := newTestIssuer(t)
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name    string
		token   string
		wantUID string
		wantErr error
	}{
		{"sub claim", customToken(t, testCustomSecret, jwt.MapClaims{"sub": "emp-42", "iss": "mt-portal", "exp": exp}), "emp-42", nil},
		{"uid claim", customToken(t, testCustomSecret, jwt.MapClaims{"uid": "emp-7", "iss": "mt-portal", "exp": exp}), "emp-7", nil},
		{"wrong secret", customToken(t, "other-secret-000000000", jwt.MapClaims{"sub": "x", "iss": "mt-portal"}), "", ErrInvalidToken},
		{"wrong issuer", customToken(t, testCustomSecret, jwt.MapClaims{"sub": "x", "iss": "elsewhere"}), "", ErrInvalidToken},
		{"expired", customToken(t, testCustomSecret, jwt.MapClaims{"sub": "x", "iss": "mt-portal", "exp": time.Now().Add(-time.Hour).Unix()}), "", ErrInvalidToken},
		{"no user", customToken(t, testCustomSecret, jwt.MapClaims{"iss": "mt-portal"}), "", ErrInvalidToken},
		{"path user", customToken(t, testCustomSecret, jwt.MapClaims{"sub": "a/b", "iss": "mt-portal"}), "", ErrInvalidToken},
		{"empty", "  ", "", ErrMissingToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := i.RedeemCustomToken(tt.token)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if resp.UserID != tt.wantUID || resp.Anonymous {
				t.Errorf("response = %+v, want user %q", resp, tt.wantUID)
			}
		})
	}
}

func TestRedeemCustomToken_Disabled(t *testing.T) {
	i, _ := NewIssuer(Config{SessionSecret: testSessionSecret})
	if _, err := i.RedeemCustomToken("anything"); !errors.Is(err, ErrCustomTokensDisabled) {
		t.Errorf("error = %v, want ErrCustomTokensDisabled", err)
	}
}

func TestVerify_RejectsExpiredAndForeign(t *testing.T) {
	i := newTestIssuer(t)
	resp, _ := i.SignInAnonymously()

	// Expired: move the clock past the TTL.
	i.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := i.Verify(resp.Token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify(expired) error = %v, want ErrInvalidToken", err)
	}

	// Custom tokens are not session tokens.
	i.now = time.Now
	foreign := customToken(t, testCustomSecret, jwt.MapClaims{"sub": "x", "iss": "goalboard", "exp": time.Now().Add(time.Hour).Unix()})
	if _, err := i.Verify(foreign); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify(foreign) error = %v, want ErrInvalidToken", err)
	}

	if _, err := i.Verify(""); !errors.Is(err, ErrMissingToken) {
		t.Errorf("Verify(\"\") error = %v, want ErrMissingToken", err)
	}
}
