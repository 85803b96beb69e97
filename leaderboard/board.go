package leaderboard

import (
	"context"
	"fmt"
	"math"
	"time"

	"catalog-gateway/kv"

	"github.com/rs/zerolog"
)

// Board identifica um ranking. O valor é a própria chave no store.
type Board string

const (
	Popular       Board = "leaderboard:popular:movies"
	Trending      Board = "leaderboard:trending:movies"
	TopRated      Board = "leaderboard:toprated:movies"
	MostViewed    Board = "leaderboard:mostviewed:movies"
	MostCommented Board = "leaderboard:mostcommented:movies"
)

// Boards lista todos os rankings mantidos pelo engine.
var Boards = []Board{Popular, Trending, TopRated, MostViewed, MostCommented}

// FromName resolve o nome curto usado nas rotas (ex: "popular") para o
// Board correspondente.
func FromName(name string) (Board, bool) {
	switch name {
	case "popular":
		return Popular, true
	case "trending":
		return Trending, true
	case "toprated":
		return TopRated, true
	case "mostviewed":
		return MostViewed, true
	case "mostcommented":
		return MostCommented, true
	}
	return "", false
}

// boardTTL é a expiração rolante dos rankings, renovada a cada escrita.
const boardTTL = 24 * time.Hour

// Engine escreve e consulta os rankings. Seguro para uso concorrente.
type Engine struct {
	store kv.Store
	log   zerolog.Logger
}

type Option func(*Engine)

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func New(store kv.Store, opts ...Option) *Engine {
	e := &Engine{store: store, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// UpdateScore grava (ou sobrescreve) o score do entityID no ranking e
// renova a expiração do ranking inteiro.
func (e *Engine) UpdateScore(ctx context.Context, board Board, entityID string, score float64) error {
	err := e.store.Pipelined(ctx, func(w kv.Writer) error {
		if err := w.ZAdd(ctx, string(board), score, entityID); err != nil {
			return err
		}
		return w.Expire(ctx, string(board), boardTTL)
	})
	if err != nil {
		return fmt.Errorf("update %s score: %w", board, err)
	}
	return nil
}

// CalculateAndUpdatePopularity deriva os cinco scores do filme a partir dos
// sinais agregados e grava todos em um único batch. Retorna o score do
// ranking popular.
//
// A fórmula usa log10 nos contadores para achatar caudas longas e um fator
// de recência que zera após 200 dias; trending pesa a recência em dobro.
func (e *Engine) CalculateAndUpdatePopularity(ctx context.Context, entityID string, views int64, avgRating float64, commentCount int64, daysSinceRelease float64) (float64, error) {
	viewFactor := math.Log10(float64(views)+1) * 10
	ratingFactor := avgRating * 10
	commentFactor := math.Log10(float64(commentCount)+1) * 5
	recencyFactor := math.Max(0, 100-daysSinceRelease*0.5)

	popular := viewFactor + ratingFactor + commentFactor + recencyFactor
	trending := viewFactor + ratingFactor + commentFactor + recencyFactor*2

	scores := map[Board]float64{
		Popular:       popular,
		Trending:      trending,
		TopRated:      avgRating * 10,
		MostViewed:    float64(views),
		MostCommented: float64(commentCount),
	}

	err := e.store.Pipelined(ctx, func(w kv.Writer) error {
		for _, board := range Boards {
			if err := w.ZAdd(ctx, string(board), scores[board], entityID); err != nil {
				return err
			}
			if err := w.Expire(ctx, string(board), boardTTL); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("update popularity of %s: %w", entityID, err)
	}

	return popular, nil
}

// Top retorna os entityIDs do ranking, maior score primeiro. A ordem entre
// scores iguais é a do store, não determinística. Lista vazia significa
// cold start (ranking expirado ou nunca populado).
func (e *Engine) Top(ctx context.Context, board Board, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	ids, err := e.store.ZRevRange(ctx, string(board), 0, int64(limit-1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", board, err)
	}
	return ids, nil
}

// Rank retorna a posição (1 = primeiro) do entityID no ranking. O segundo
// retorno indica presença.
func (e *Engine) Rank(ctx context.Context, board Board, entityID string) (int64, bool, error) {
	pos, err := e.store.ZRevRank(ctx, string(board), entityID)
	if err == kv.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("rank in %s: %w", board, err)
	}
	return pos + 1, true, nil
}

// Initialize carimba a expiração em todos os rankings. Chamado no boot para
// rankings herdados de uma execução anterior não ficarem sem TTL.
func (e *Engine) Initialize(ctx context.Context) error {
	err := e.store.Pipelined(ctx, func(w kv.Writer) error {
		for _, board := range Boards {
			if err := w.Expire(ctx, string(board), boardTTL); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("initialize leaderboards: %w", err)
	}
	return nil
}
