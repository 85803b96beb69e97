package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"catalog-gateway/kv"
	"catalog-gateway/middleware/ratelimit/domain"
)

// fakeClock permite avançar o tempo manualmente nos testes de janela.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestService() (Service, *fakeClock, *kv.Memory) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	store := kv.NewMemory(kv.WithMemoryClock(clock.now))
	svc := Service{Store: store, Now: clock.now}
	return svc, clock, store
}

func TestService_Check_AllowsUntilWindowFull(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res := svc.Check(ctx, "1.2.3.4", domain.ActionAPI, 3, 10*time.Second)
		if !res.Allowed {
			t.Fatalf("request %d: expected allowed", i+1)
		}
		if want := 3 - i - 1; res.Remaining != want {
			t.Fatalf("request %d: expected remaining=%d, got %d", i+1, want, res.Remaining)
		}
		if res.Limit != 3 {
			t.Fatalf("request %d: expected limit=3, got %d", i+1, res.Limit)
		}
	}

	res := svc.Check(ctx, "1.2.3.4", domain.ActionAPI, 3, 10*time.Second)
	if res.Allowed {
		t.Fatalf("expected 4th request to be denied")
	}
	if res.Remaining != 0 {
		t.Fatalf("expected remaining=0 when denied, got %d", res.Remaining)
	}
}

func TestService_Check_ResetAtIsOldestPlusWindow(t *testing.T) {
	svc, clock, _ := newTestService()
	ctx := context.Background()
	first := clock.now().Unix()

	svc.Check(ctx, "k", domain.ActionAPI, 2, 10*time.Second)
	clock.advance(3 * time.Second)
	svc.Check(ctx, "k", domain.ActionAPI, 2, 10*time.Second)
	clock.advance(1 * time.Second)

	res := svc.Check(ctx, "k", domain.ActionAPI, 2, 10*time.Second)
	if res.Allowed {
		t.Fatalf("expected denial with full window")
	}
	if want := first + 10; res.ResetAt != want {
		t.Fatalf("expected resetAt=%d (oldest+window), got %d", want, res.ResetAt)
	}
}

func TestService_Check_WindowSlides(t *testing.T) {
	svc, clock, _ := newTestService()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		svc.Check(ctx, "k", domain.ActionAPI, 2, 10*time.Second)
	}
	if res := svc.Check(ctx, "k", domain.ActionAPI, 2, 10*time.Second); res.Allowed {
		t.Fatalf("expected denial before the window moves")
	}

	clock.advance(11 * time.Second)

	res := svc.Check(ctx, "k", domain.ActionAPI, 2, 10*time.Second)
	if !res.Allowed {
		t.Fatalf("expected old entries to fall out of the window")
	}
	if res.Remaining != 1 {
		t.Fatalf("expected remaining=1 after slide, got %d", res.Remaining)
	}
}

func TestService_Check_KeysAreIndependent(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	svc.Check(ctx, "a", domain.ActionAPI, 1, 10*time.Second)
	if res := svc.Check(ctx, "a", domain.ActionAPI, 1, 10*time.Second); res.Allowed {
		t.Fatalf("expected key a to be limited")
	}
	if res := svc.Check(ctx, "b", domain.ActionAPI, 1, 10*time.Second); !res.Allowed {
		t.Fatalf("expected key b to be unaffected")
	}
	if res := svc.Check(ctx, "a", domain.ActionComment, 1, 10*time.Second); !res.Allowed {
		t.Fatalf("expected another action to have its own window")
	}
}

func TestService_Check_RefreshesKeyTTL(t *testing.T) {
	svc, _, store := newTestService()
	ctx := context.Background()

	svc.Check(ctx, "k", domain.ActionAPI, 5, 10*time.Second)

	if ttl := store.TTL(domain.ActionAPI.WindowKey("k")); ttl != 20*time.Second {
		t.Fatalf("expected window key TTL=2x window (20s), got %s", ttl)
	}
}

var errDown = errors.New("store down")

// downStore simula o backend fora do ar só na limpeza da janela.
type downStore struct {
	kv.Store
}

func (downStore) ZRemRangeByScore(context.Context, string, float64, float64) (int64, error) {
	return 0, errDown
}

func TestService_Check_FailsOpenOnStoreError(t *testing.T) {
	svc, clock, _ := newTestService()
	svc.Store = downStore{}

	res := svc.Check(context.Background(), "k", domain.ActionAPI, 3, 10*time.Second)
	if !res.Allowed {
		t.Fatalf("expected fail-open when the store errors")
	}
	if want := clock.now().Unix() + 10; res.ResetAt != want {
		t.Fatalf("expected resetAt=now+window, got %d want %d", res.ResetAt, want)
	}
}

func TestService_CheckLogin_AccountIsMostRestrictive(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	// Mesma conta a partir de IPs distintos: a janela por conta fecha
	// primeiro porque o IP tem o dobro do teto.
	for i := 0; i < 2; i++ {
		res := svc.CheckLogin(ctx, "10.0.0.1", "alice@example.com", 2, 5*time.Minute)
		if !res.Allowed {
			t.Fatalf("attempt %d: expected allowed", i+1)
		}
	}

	res := svc.CheckLogin(ctx, "10.0.0.2", "alice@example.com", 2, 5*time.Minute)
	if res.Allowed {
		t.Fatalf("expected account window to deny the 3rd attempt")
	}
	if res.Limit != 2 {
		t.Fatalf("expected restrictive limit=2 (account), got %d", res.Limit)
	}

	// Outra conta no mesmo IP ainda passa.
	if res := svc.CheckLogin(ctx, "10.0.0.2", "bob@example.com", 2, 5*time.Minute); !res.Allowed {
		t.Fatalf("expected a different account on the same IP to pass")
	}
}

func TestService_CheckLogin_IPWindowIsDoubled(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	// Contas sempre diferentes: só a janela por IP acumula.
	accounts := []string{"a@x", "b@x", "c@x", "d@x"}
	for i, acct := range accounts {
		res := svc.CheckLogin(ctx, "10.0.0.9", acct, 2, 5*time.Minute)
		if !res.Allowed {
			t.Fatalf("attempt %d: expected allowed within 2x IP budget", i+1)
		}
	}

	if res := svc.CheckLogin(ctx, "10.0.0.9", "e@x", 2, 5*time.Minute); res.Allowed {
		t.Fatalf("expected IP window (4 attempts) to deny the 5th account")
	}
}

func TestService_Reset_ClearsWindow(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	svc.Check(ctx, "k", domain.ActionAPI, 1, 10*time.Second)
	if res := svc.Check(ctx, "k", domain.ActionAPI, 1, 10*time.Second); res.Allowed {
		t.Fatalf("expected denial before reset")
	}

	if err := svc.Reset(ctx, "k", domain.ActionAPI); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if res := svc.Check(ctx, "k", domain.ActionAPI, 1, 10*time.Second); !res.Allowed {
		t.Fatalf("expected a fresh window after reset")
	}
}

func TestWindow_BindsActionAndBudget(t *testing.T) {
	svc, _, store := newTestService()
	w := Window{Service: svc, Action: domain.ActionRegistration, Max: 1, Window: time.Minute}
	ctx := context.Background()

	if res := w.Check(ctx, "id"); !res.Allowed {
		t.Fatalf("expected first check to pass")
	}
	if res := w.Check(ctx, "id"); res.Allowed {
		t.Fatalf("expected second check to be denied")
	}
	if ttl := store.TTL(domain.ActionRegistration.WindowKey("id")); ttl != 2*time.Minute {
		t.Fatalf("expected registration window key in the store, TTL=%s", ttl)
	}
}

type fakeLimiter struct{ allow bool }

func (f fakeLimiter) Allow() bool { return f.allow }

type fakeLimiterStore struct{ lim domain.Limiter }

func (s fakeLimiterStore) Get(domain.Key) domain.Limiter { return s.lim }

func TestLocal_AllowsWithoutStore(t *testing.T) {
	res := Local{}.Check(context.Background(), "k")
	if !res.Allowed {
		t.Fatalf("expected allowed with no store configured")
	}
	if res.Remaining != -1 || res.Limit != -1 {
		t.Fatalf("expected unknown remaining/limit, got %d/%d", res.Remaining, res.Limit)
	}
}

func TestLocal_DeniesWhenBucketEmpty(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := Local{
		Store:      fakeLimiterStore{lim: fakeLimiter{allow: false}},
		Burst:      7,
		RetryAfter: 3 * time.Second,
		Now:        func() time.Time { return now },
	}

	res := l.Check(context.Background(), "k")
	if res.Allowed {
		t.Fatalf("expected denial when the bucket rejects")
	}
	if res.Limit != 7 {
		t.Fatalf("expected limit=burst, got %d", res.Limit)
	}
	if want := now.Unix() + 3; res.ResetAt != want {
		t.Fatalf("expected resetAt=now+retryAfter, got %d want %d", res.ResetAt, want)
	}
}
