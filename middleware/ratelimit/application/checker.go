package application

import (
	"context"
	"time"

	"catalog-gateway/middleware/ratelimit/domain"
)

// Checker é o que o adapter HTTP precisa: uma decisão por identificador.
// As duas estratégias do gateway (janela no store, bucket local) viram
// Checkers para o middleware não conhecer nenhuma delas.
type Checker interface {
	Check(ctx context.Context, identifier string) domain.Result
}

// Window amarra o Service a uma ação com teto e janela fixos.
type Window struct {
	Service Service
	Action  domain.Action
	Max     int
	Window  time.Duration
}

func (w Window) Check(ctx context.Context, identifier string) domain.Result {
	return w.Service.Check(ctx, identifier, w.Action, w.Max, w.Window)
}

// Local decide com um limiter em processo (token bucket por chave).
// Sem janela materializada não há contagem exata: Remaining fica -1 e
// ResetAt é só a recomendação de espera.
type Local struct {
	Store      domain.LimiterStore
	Burst      int
	RetryAfter time.Duration
	// Now permite simular o relógio em teste. Nil usa time.Now.
	Now func() time.Time
}

func (l Local) Check(_ context.Context, identifier string) domain.Result {
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	retry := l.RetryAfter
	if retry <= 0 {
		retry = 1 * time.Second
	}

	limit := l.Burst
	if limit <= 0 {
		limit = -1
	}
	res := domain.Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: -1,
		ResetAt:   now().Add(retry).Unix(),
	}
	if l.Store == nil {
		return res
	}
	if lim := l.Store.Get(domain.Key(identifier)); lim != nil && !lim.Allow() {
		res.Allowed = false
	}
	return res
}
