package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indica chave/campo/membro ausente, distinto de falha do store.
// Quem lê dados derivados normalmente trata ausência como valor zero.
var ErrNotFound = errors.New("kv: not found")

// Member é um par membro/score de sorted set.
type Member struct {
	Member string
	Score  float64
}

// Writer é o subconjunto de escrita que pode ser enfileirado em Pipelined.
//
// Dentro de um batch os valores de retorno (ex: HIncrBy) não são
// significativos; só o erro do Exec importa.
type Writer interface {
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	HSet(ctx context.Context, key, field, value string) error
	HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error)
	ZAdd(ctx context.Context, key string, score float64, member string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Store é o contrato do key-value store compartilhado por cache, rate limit,
// estatísticas e leaderboards. Toda operação é uma ida à rede e pode falhar;
// cada componente define seu caminho de degradação.
type Store interface {
	Writer

	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) (int64, error)

	// Scan enumera chaves em lotes via cursor (MATCH/COUNT). Retorna o
	// próximo cursor; zero encerra a iteração.
	Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error)

	HGet(ctx context.Context, key, field string) (string, error)

	ZIncrBy(ctx context.Context, key string, incr float64, member string) (float64, error)
	ZCard(ctx context.Context, key string) (int64, error)
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]Member, error)
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRevRank(ctx context.Context, key, member string) (int64, error)
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) (int64, error)
	ZRemRangeByRank(ctx context.Context, key string, start, stop int64) (int64, error)

	// Pipelined envia as escritas de fn em um único round-trip quando o
	// backend suporta. Batch é best-effort, não é transação.
	Pipelined(ctx context.Context, fn func(Writer) error) error

	Ping(ctx context.Context) error
	Close() error
}
