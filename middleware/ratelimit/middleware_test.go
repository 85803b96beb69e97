package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"catalog-gateway/kv"
	"catalog-gateway/middleware/ratelimit/application"
	"catalog-gateway/middleware/ratelimit/domain"
)

type staticChecker struct {
	res domain.Result
}

func (c staticChecker) Check(context.Context, string) domain.Result { return c.res }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_NilCheckerPassesThrough(t *testing.T) {
	h := Middleware(Options{})(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMiddleware_AllowsThenRejects(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	now := func() time.Time { return clock }
	store := kv.NewMemory(kv.WithMemoryClock(now))
	svc := application.Service{Store: store, Now: now}

	h := Middleware(Options{
		Checker:             application.Window{Service: svc, Action: domain.ActionAPI, Max: 1, Window: 10 * time.Second},
		AddRateLimitHeaders: true,
		Now:                 now,
	})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/movies", nil)
	req.RemoteAddr = "9.9.9.9:1234"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Key"); got != "9.9.9.9" {
		t.Fatalf("expected key header 9.9.9.9, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("expected remaining=0 on first pass, got %q", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on second request, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "1" {
		t.Fatalf("expected limit header 1, got %q", got)
	}
	if got := rec.Header().Get("Retry-After"); got != "10" {
		t.Fatalf("expected Retry-After=10, got %q", got)
	}
}

func TestMiddleware_KeysLimitedIndependently(t *testing.T) {
	now := func() time.Time { return time.Unix(1_700_000_000, 0) }
	store := kv.NewMemory(kv.WithMemoryClock(now))
	svc := application.Service{Store: store, Now: now}

	h := Middleware(Options{
		Checker: application.Window{Service: svc, Action: domain.ActionAPI, Max: 1, Window: 10 * time.Second},
		Now:     now,
	})(okHandler())

	first := httptest.NewRequest(http.MethodGet, "/x", nil)
	first.RemoteAddr = "1.1.1.1:1000"
	other := httptest.NewRequest(http.MethodGet, "/x", nil)
	other.RemoteAddr = "2.2.2.2:1000"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, first)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, first)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 1.1.1.1 to be limited, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 2.2.2.2 to pass, got %d", rec.Code)
	}
}

func TestMiddleware_NegativeValuesOmitHeaders(t *testing.T) {
	h := Middleware(Options{
		Checker:             staticChecker{res: domain.Result{Allowed: true, Limit: -1, Remaining: -1, ResetAt: 123}},
		AddRateLimitHeaders: true,
	})(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if got := rec.Header().Get("X-RateLimit-Limit"); got != "" {
		t.Fatalf("expected limit header omitted, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "" {
		t.Fatalf("expected remaining header omitted, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Reset"); got != "123" {
		t.Fatalf("expected reset header 123, got %q", got)
	}
}

func TestMiddleware_CustomRejectStatus(t *testing.T) {
	h := Middleware(Options{
		Checker:      staticChecker{res: domain.Result{Allowed: false}},
		RejectStatus: http.StatusServiceUnavailable,
	})(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got == "" {
		t.Fatalf("expected Retry-After on rejection")
	}
}
