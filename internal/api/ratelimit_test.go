package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tubetext/tubetext-server/internal/account"
)

func TestRateLimiter_BurstThenRefill(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(1, 2, func() time.Time { return now })

	if !rl.allow("a") || !rl.allow("a") {
		t.Fatal("burst of 2 should be allowed")
	}
	if rl.allow("a") {
		t.Error("third request inside the same second should be limited")
	}
	if !rl.allow("b") {
		t.Error("other callers have their own bucket")
	}

	now = now.Add(time.Second)
	if !rl.allow("a") {
		t.Error("bucket should refill one token per second")
	}
}

func TestRateLimiter_SweepsIdleCallers(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(1, 1, func() time.Time { return now })

	rl.allow("idle")
	now = now.Add(2 * limiterIdleTTL)
	rl.allow("active")

	if _, ok := rl.limiters["idle"]; ok {
		t.Error("idle limiter should have been dropped")
	}
	if _, ok := rl.limiters["active"]; !ok {
		t.Error("active limiter should be kept")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := RateLimitMiddleware(1, 1)(okHandler())

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/video/", nil))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/video/", nil))

	if first.Code != http.StatusOK {
		t.Errorf("first status = %d, want 200", first.Code)
	}
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want 429", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	handler := RateLimitMiddleware(0, 0)(okHandler())
	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rr.Code)
		}
	}
}

func TestRateLimitKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:5555"
	if got := rateLimitKey(req); got != "ip:203.0.113.7" {
		t.Errorf("anonymous key = %q", got)
	}

	ctx := context.WithValue(req.Context(), userKey, &account.User{ID: "u9"})
	if got := rateLimitKey(req.WithContext(ctx)); got != "user:u9" {
		t.Errorf("user key = %q", got)
	}
}
