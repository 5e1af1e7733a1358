package account

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-with-enough-bytes"

func newTestGate(t *testing.T) (*Gate, *SQLiteRepository) {
	t.Helper()
	repo := newTestRepo(t)
	gate := NewGate(repo, GateConfig{Secret: testSecret, FreeUsageLimit: 2, UsageWindow: time.Hour}, nil)
	return gate, repo
}

func TestGate_AuthenticateCookieAndBearer(t *testing.T) {
	gate, repo := newTestGate(t)
	u := createUser(t, repo, "a@example.com")

	token, err := gate.IssueToken(u.ID, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	cookieReq := httptest.NewRequest(http.MethodPost, "/video/", nil)
	cookieReq.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})

	bearerReq := httptest.NewRequest(http.MethodPost, "/video/", nil)
	bearerReq.Header.Set("Authorization", "Bearer "+token)

	for name, req := range map[string]*http.Request{"cookie": cookieReq, "bearer": bearerReq} {
		got, err := gate.Authenticate(req)
		if err != nil {
			t.Fatalf("%s: Authenticate() error = %v", name, err)
		}
		if got == nil || got.ID != u.ID {
			t.Errorf("%s: Authenticate() = %v, want user %s", name, got, u.ID)
		}
	}
}

func TestGate_AuthenticateAnonymous(t *testing.T) {
	gate, repo := newTestGate(t)
	u := createUser(t, repo, "b@example.com")

	expired, _ := gate.IssueToken(u.ID, -time.Minute)

	otherKey := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: u.ID})
	forged, _ := otherKey.SignedString([]byte("some-other-secret"))

	unknown, _ := gate.IssueToken("no-such-user", time.Hour)

	tests := []struct {
		name  string
		token string
	}{
		{"no token", ""},
		{"garbage", "not-a-jwt"},
		{"expired", expired},
		{"wrong key", forged},
		{"unknown user", unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/video/", nil)
			if tt.token != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookie, Value: tt.token})
			}
			got, err := gate.Authenticate(req)
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if got != nil {
				t.Errorf("Authenticate() = %+v, want anonymous", got)
			}
		})
	}
}

func TestGate_RequirePremium(t *testing.T) {
	gate, _ := newTestGate(t)

	if err := gate.RequirePremium(nil); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("anonymous: err = %v, want ErrUnauthenticated", err)
	}
	if err := gate.RequirePremium(&User{Tier: TierFree}); !errors.Is(err, ErrForbidden) {
		t.Errorf("free: err = %v, want ErrForbidden", err)
	}
	if err := gate.RequirePremium(&User{Tier: TierPremium}); err != nil {
		t.Errorf("premium tier: err = %v", err)
	}
	if err := gate.RequirePremium(&User{Tier: TierFree, HasActiveSubscription: true}); err != nil {
		t.Errorf("active subscription: err = %v", err)
	}
}

func TestGate_ConsumeFreeUse(t *testing.T) {
	gate, repo := newTestGate(t)
	ctx := context.Background()
	u := createUser(t, repo, "c@example.com")

	for i := 0; i < 2; i++ {
		if err := gate.ConsumeFreeUse(ctx, u); err != nil {
			t.Fatalf("use %d: %v", i+1, err)
		}
	}
	if err := gate.ConsumeFreeUse(ctx, u); !errors.Is(err, ErrUsageLimit) {
		t.Errorf("third use: err = %v, want ErrUsageLimit", err)
	}

	if err := gate.ConsumeFreeUse(ctx, nil); err != nil {
		t.Errorf("anonymous use should not be counted, got %v", err)
	}
	premium := &User{ID: u.ID, Tier: TierPremium}
	if err := gate.ConsumeFreeUse(ctx, premium); err != nil {
		t.Errorf("premium use should not be counted, got %v", err)
	}
}

func TestGate_RefundFreeUse(t *testing.T) {
	gate, repo := newTestGate(t)
	ctx := context.Background()
	u := createUser(t, repo, "r@example.com")

	for i := 0; i < 2; i++ {
		if err := gate.ConsumeFreeUse(ctx, u); err != nil {
			t.Fatal(err)
		}
	}
	if err := gate.RefundFreeUse(ctx, u); err != nil {
		t.Fatalf("RefundFreeUse() error = %v", err)
	}
	if err := gate.ConsumeFreeUse(ctx, u); err != nil {
		t.Errorf("use after refund: err = %v, want nil", err)
	}
	if err := gate.RefundFreeUse(ctx, nil); err != nil {
		t.Errorf("anonymous refund: %v", err)
	}
}

func TestGate_IssueTokenWithoutSecret(t *testing.T) {
	gate := NewGate(nil, GateConfig{}, nil)
	if _, err := gate.IssueToken("u1", time.Hour); !errors.Is(err, ErrMissingSecret) {
		t.Errorf("err = %v, want ErrMissingSecret", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	if u, err := gate.Authenticate(req); u != nil || err != nil {
		t.Errorf("Authenticate() = %v, %v; want nil, nil", u, err)
	}
}
