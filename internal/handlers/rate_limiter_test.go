package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vietcart/storefront/internal/platform/observability"
)

func TestSimpleRateLimiterWindow(t *testing.T) {
	current := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	limiter := newSimpleRateLimiter(2, time.Minute, func() time.Time { return current })

	if !limiter.Allow("sess-1") || !limiter.Allow("sess-1") {
		t.Fatal("expected first two requests to pass")
	}
	if limiter.Allow("sess-1") {
		t.Fatal("expected third request within window to be rejected")
	}
	if !limiter.Allow("sess-2") {
		t.Fatal("expected independent key to pass")
	}

	current = current.Add(61 * time.Second)
	if !limiter.Allow("sess-1") {
		t.Fatal("expected request after window reset to pass")
	}
}

func TestSimpleRateLimiterDisabled(t *testing.T) {
	if limiter := newSimpleRateLimiter(0, time.Minute, nil); limiter != nil {
		t.Fatal("expected nil limiter for non-positive limit")
	}
}

func TestRateLimitMiddlewareKeysBySession(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RateLimitMiddleware(1)(next)

	serve := func(session string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cart/", nil)
		if session != "" {
			req.Header.Set(observability.SessionHeader, session)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	if got := serve("sess-1"); got != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", got)
	}
	if got := serve("sess-1"); got != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be limited, got %d", got)
	}
	if got := serve("sess-2"); got != http.StatusOK {
		t.Fatalf("expected a different session to pass, got %d", got)
	}
}

func TestRateLimitMiddlewareDisabled(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RateLimitMiddleware(0)(next)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cart/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected unlimited requests, got %d on attempt %d", rr.Code, i)
		}
	}
}
