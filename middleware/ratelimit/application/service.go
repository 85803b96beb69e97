package application

import (
	"context"
	"fmt"
	"time"

	"catalog-gateway/kv"
	"catalog-gateway/middleware/ratelimit/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service concentra a regra de aplicação do rate limit por janela
// deslizante. O estado da janela vive no key-value store compartilhado,
// então o limite vale para todas as réplicas do gateway.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna um Result.
type Service struct {
	Store  kv.Store
	Logger zerolog.Logger
	// Now permite simular o relógio em teste. Nil usa time.Now.
	Now func() time.Time
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Check aplica a janela deslizante para (action, identifier):
//
//  1. expira da janela os registros mais velhos que now-window
//  2. conta o que sobrou; cheio → nega com resetAt = mais antigo + janela
//  3. senão registra a tentativa atual (membro único mesmo sob
//     concorrência no mesmo segundo) e renova o TTL da chave para 2×janela
//
// Store fora do ar → fail-open: indisponibilidade de infra não pode trancar
// usuário para fora.
func (s Service) Check(ctx context.Context, identifier string, action domain.Action, maxRequests int, window time.Duration) domain.Result {
	key := action.WindowKey(identifier)
	now := s.now().Unix()
	windowSeconds := int64(window / time.Second)
	windowStart := now - windowSeconds

	failOpen := func(err error) domain.Result {
		s.Logger.Warn().Err(err).Str("key", key).Msg("rate limit store error, failing open")
		return domain.Result{Allowed: true, Limit: maxRequests, Remaining: 0, ResetAt: now + windowSeconds}
	}

	if _, err := s.Store.ZRemRangeByScore(ctx, key, 0, float64(windowStart)); err != nil {
		return failOpen(err)
	}

	count, err := s.Store.ZCard(ctx, key)
	if err != nil {
		return failOpen(err)
	}

	if count >= int64(maxRequests) {
		resetAt := now + windowSeconds
		oldest, err := s.Store.ZRangeWithScores(ctx, key, 0, 0)
		if err != nil {
			return failOpen(err)
		}
		if len(oldest) > 0 {
			resetAt = int64(oldest[0].Score) + windowSeconds
		}
		return domain.Result{Allowed: false, Limit: maxRequests, Remaining: 0, ResetAt: resetAt}
	}

	member := fmt.Sprintf("%d-%s", now, uuid.NewString())
	if err := s.Store.ZAdd(ctx, key, float64(now), member); err != nil {
		return failOpen(err)
	}
	if err := s.Store.Expire(ctx, key, 2*window); err != nil {
		return failOpen(err)
	}

	return domain.Result{
		Allowed:   true,
		Limit:     maxRequests,
		Remaining: maxRequests - int(count) - 1,
		ResetAt:   now + windowSeconds,
	}
}

// CheckLogin aplica a janela por IP e por conta separadamente — o IP com o
// dobro do teto — e devolve o desfecho mais restritivo. Os dois precisam
// passar para a tentativa ser permitida.
func (s Service) CheckLogin(ctx context.Context, ip, account string, maxAttempts int, window time.Duration) domain.Result {
	byIP := s.Check(ctx, ip, domain.ActionLogin, maxAttempts*2, window)
	byAccount := s.Check(ctx, account, domain.ActionLogin, maxAttempts, window)
	return domain.Restrictive(byIP, byAccount)
}

// Reset zera a janela de (action, identifier). Ferramenta de operação, ex.
// liberar uma conta depois de verificação manual.
func (s Service) Reset(ctx context.Context, identifier string, action domain.Action) error {
	_, err := s.Store.Del(ctx, action.WindowKey(identifier))
	return err
}
