package application

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"catalog-gateway/kv"
	"catalog-gateway/middleware/cache/domain"

	"github.com/rs/zerolog"
)

// invalidateBatch é o COUNT usado no SCAN da invalidação. Lotes pequenos
// evitam segurar o store em uma chamada longa.
const invalidateBatch = 100

// Service concentra a regra de aplicação do cache de resposta.
type Service struct {
	Store  kv.Store
	Logger zerolog.Logger
}

// Lookup busca uma entrada. Qualquer erro do store ou payload que não
// deserializa conta como miss — nunca como erro para o chamador.
func (s Service) Lookup(ctx context.Context, key string) (domain.Entry, bool) {
	raw, err := s.Store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.Logger.Warn().Err(err).Str("key", key).Msg("cache lookup failed, treating as miss")
		}
		return domain.Entry{}, false
	}

	var e domain.Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		s.Logger.Warn().Err(err).Str("key", key).Msg("malformed cache entry, treating as miss")
		return domain.Entry{}, false
	}
	return e, true
}

// Save grava uma entrada com TTL. Best-effort: falha é logada e descartada;
// o chamador já tem a resposta fresca em mãos.
func (s Service) Save(ctx context.Context, key string, e domain.Entry, ttl time.Duration) {
	raw, err := json.Marshal(e)
	if err != nil {
		s.Logger.Warn().Err(err).Str("key", key).Msg("cache entry marshal failed")
		return
	}
	if err := s.Store.SetEx(ctx, key, string(raw), ttl); err != nil {
		s.Logger.Warn().Err(err).Str("key", key).Msg("cache save failed")
	}
}

// Invalidate remove todas as chaves que casam com o padrão glob, varrendo
// com cursor em lotes de 100 e deletando cada lote conforme aparece.
// Retorna quantas chaves foram removidas. Padrão sem match retorna 0.
func (s Service) Invalidate(ctx context.Context, pattern string) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := s.Store.Scan(ctx, cursor, pattern, invalidateBatch)
		if err != nil {
			s.Logger.Warn().Err(err).Str("pattern", pattern).Msg("cache invalidation scan failed")
			return removed, err
		}
		if len(keys) > 0 {
			if _, err := s.Store.Del(ctx, keys...); err != nil {
				s.Logger.Warn().Err(err).Str("pattern", pattern).Msg("cache invalidation delete failed")
				return removed, err
			}
			removed += len(keys)
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// SetJSON guarda um valor serializado em JSON sob a chave dada.
// Usado pelos colaboradores para cachear entidades fora do fluxo HTTP.
func (s Service) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Store.SetEx(ctx, key, string(raw), ttl)
}

// GetJSON preenche dest com o valor cacheado. Retorna false em miss
// (inclusive quando o store falha ou o conteúdo não deserializa).
func (s Service) GetJSON(ctx context.Context, key string, dest any) bool {
	raw, err := s.Store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.Logger.Warn().Err(err).Str("key", key).Msg("cached value lookup failed")
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		s.Logger.Warn().Err(err).Str("key", key).Msg("cached value malformed")
		return false
	}
	return true
}
