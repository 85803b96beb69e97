package ratelimit

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"catalog-gateway/kv"
	"catalog-gateway/middleware/ratelimit/application"
)

func loginHarness(t *testing.T) (http.Handler, *string) {
	t.Helper()

	now := func() time.Time { return time.Unix(1_700_000_000, 0) }
	store := kv.NewMemory(kv.WithMemoryClock(now))
	svc := application.Service{Store: store, Now: now}

	var seenBody string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seenBody = string(b)
		w.WriteHeader(http.StatusOK)
	})

	h := LoginMiddleware(LoginOptions{
		Service:     svc,
		MaxAttempts: 2,
		Window:      5 * time.Minute,
		Now:         now,
	})(next)
	return h, &seenBody
}

func postLogin(h http.Handler, ip, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.RemoteAddr = ip + ":4000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLoginMiddleware_LimitsByAccountAcrossIPs(t *testing.T) {
	h, _ := loginHarness(t)
	body := `{"email":"alice@example.com","password":"x"}`

	if rec := postLogin(h, "10.0.0.1", body); rec.Code != http.StatusOK {
		t.Fatalf("attempt 1: expected 200, got %d", rec.Code)
	}
	if rec := postLogin(h, "10.0.0.2", body); rec.Code != http.StatusOK {
		t.Fatalf("attempt 2: expected 200, got %d", rec.Code)
	}

	rec := postLogin(h, "10.0.0.3", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected account limit on 3rd attempt, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got == "" {
		t.Fatalf("expected Retry-After on rejection")
	}
}

func TestLoginMiddleware_RestoresBodyForUpstream(t *testing.T) {
	h, seen := loginHarness(t)
	body := `{"email":"alice@example.com","password":"secret"}`

	if rec := postLogin(h, "10.0.0.1", body); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if *seen != body {
		t.Fatalf("expected upstream to receive the original body, got %q", *seen)
	}
}

func TestLoginMiddleware_BodyWithoutEmailSharesUnknownWindow(t *testing.T) {
	h, _ := loginHarness(t)

	// Sem email a conta vira "unknown": duas tentativas esgotam a janela
	// por conta mesmo vindo de IPs diferentes.
	if rec := postLogin(h, "10.0.0.1", `{}`); rec.Code != http.StatusOK {
		t.Fatalf("attempt 1: expected 200, got %d", rec.Code)
	}
	if rec := postLogin(h, "10.0.0.2", `not-json`); rec.Code != http.StatusOK {
		t.Fatalf("attempt 2: expected 200, got %d", rec.Code)
	}
	if rec := postLogin(h, "10.0.0.3", `{}`); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected unknown-account window to close, got %d", rec.Code)
	}
}

func TestLoginMiddleware_IgnoresOtherRoutes(t *testing.T) {
	h, _ := loginHarness(t)

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:4000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected GET to bypass the login limiter, got %d", rec.Code)
		}

		req = httptest.NewRequest(http.MethodPost, "/api/movies", strings.NewReader(`{}`))
		req.RemoteAddr = "10.0.0.1:4000"
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected other POST routes to bypass, got %d", rec.Code)
		}
	}
}
