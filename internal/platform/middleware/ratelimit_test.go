package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rendezvous/rendezvous/internal/platform/auth"
)

func doRateLimited(t *testing.T, h echo.HandlerFunc, user, ip string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	req.RemoteAddr = ip + ":1234"
	if user != "" {
		req = req.WithContext(auth.WithUserID(req.Context(), user))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h(c); err != nil {
		if he, ok := err.(*echo.HTTPError); ok {
			rec.Code = he.Code
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	return rec
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 5})(okHandler)
	for i := 0; i < 5; i++ {
		rec := doRateLimited(t, h, "", "10.0.0.1")
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})(okHandler)
	doRateLimited(t, h, "", "10.0.0.2")
	doRateLimited(t, h, "", "10.0.0.2")
	rec := doRateLimited(t, h, "", "10.0.0.2")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("expected X-RateLimit-Remaining=0, got %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimit_PerKeyIsolation(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})(okHandler)

	if rec := doRateLimited(t, h, "alice", "10.0.0.3"); rec.Code != http.StatusOK {
		t.Fatalf("alice first request: expected 200, got %d", rec.Code)
	}
	if rec := doRateLimited(t, h, "alice", "10.0.0.3"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("alice second request: expected 429, got %d", rec.Code)
	}
	// Same IP, different user.
	if rec := doRateLimited(t, h, "bob", "10.0.0.3"); rec.Code != http.StatusOK {
		t.Errorf("bob: expected 200, got %d", rec.Code)
	}
	if rec := doRateLimited(t, h, "", "10.0.0.4"); rec.Code != http.StatusOK {
		t.Errorf("anonymous: expected 200, got %d", rec.Code)
	}
}

func TestRateLimit_DefaultConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond <= 0 || cfg.BurstSize <= 0 || cfg.IdleTTL <= 0 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLimiterStore_EvictsIdleKeys(t *testing.T) {
	store := newLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	store.get("a")
	store.get("b")
	if store.len() != 2 {
		t.Fatalf("expected 2 limiters, got %d", store.len())
	}

	now = now.Add(2 * time.Minute)
	store.get("c")
	if store.len() != 1 {
		t.Errorf("expected idle limiters to be evicted, got %d", store.len())
	}
}
