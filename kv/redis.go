package kv

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions espelha a superfície de configuração consumida do ambiente.
type RedisOptions struct {
	Host     string
	Port     int
	Password string
	DB       int

	// ConnectTimeout limita o dial; zero usa 10s.
	ConnectTimeout time.Duration
	// MaxRetries limita tentativas por comando antes de devolver erro;
	// zero usa 3.
	MaxRetries int
	// TLS habilita transporte cifrado sem validar a cadeia (certificado
	// interno nos ambientes gerenciados).
	TLS bool
}

// Redis implementa Store sobre go-redis.
type Redis struct {
	redisWriter
	client *redis.Client
}

var _ Store = (*Redis)(nil)

// OpenRedis cria o cliente com a estratégia de reconexão padrão do gateway:
// backoff exponencial de 50ms até 10s. A conexão é lazy; use Ping para
// validar no boot.
func OpenRedis(opts RedisOptions) *Redis {
	if opts.Host == "" {
		opts.Host = "localhost"
	}
	if opts.Port == 0 {
		opts.Port = 6379
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}

	ro := &redis.Options{
		Addr:            net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		Password:        opts.Password,
		DB:              opts.DB,
		DialTimeout:     opts.ConnectTimeout,
		MaxRetries:      opts.MaxRetries,
		MinRetryBackoff: 50 * time.Millisecond,
		MaxRetryBackoff: 10 * time.Second,
		ClientName:      "catalog-gateway",
	}
	if opts.TLS {
		ro.TLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	client := redis.NewClient(ro)
	return &Redis{redisWriter: redisWriter{c: client}, client: client}
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := r.c.Get(ctx, key).Result()
	return v, mapNil(err)
}

func (r *Redis) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return r.c.Del(ctx, keys...).Result()
}

func (r *Redis) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	return r.c.Scan(ctx, cursor, match, count).Result()
}

func (r *Redis) HGet(ctx context.Context, key, field string) (string, error) {
	v, err := r.c.HGet(ctx, key, field).Result()
	return v, mapNil(err)
}

func (r *Redis) ZIncrBy(ctx context.Context, key string, incr float64, member string) (float64, error) {
	return r.c.ZIncrBy(ctx, key, incr, member).Result()
}

func (r *Redis) ZCard(ctx context.Context, key string) (int64, error) {
	return r.c.ZCard(ctx, key).Result()
}

func (r *Redis) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return r.c.ZRange(ctx, key, start, stop).Result()
}

func (r *Redis) ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]Member, error) {
	zs, err := r.c.ZRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Member, 0, len(zs))
	for _, z := range zs {
		out = append(out, Member{Member: fmt.Sprint(z.Member), Score: z.Score})
	}
	return out, nil
}

func (r *Redis) ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return r.c.ZRevRange(ctx, key, start, stop).Result()
}

func (r *Redis) ZRevRank(ctx context.Context, key, member string) (int64, error) {
	rank, err := r.c.ZRevRank(ctx, key, member).Result()
	return rank, mapNil(err)
}

func (r *Redis) ZRemRangeByScore(ctx context.Context, key string, min, max float64) (int64, error) {
	return r.c.ZRemRangeByScore(ctx, key, formatScore(min), formatScore(max)).Result()
}

func (r *Redis) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) (int64, error) {
	return r.c.ZRemRangeByRank(ctx, key, start, stop).Result()
}

func (r *Redis) Pipelined(ctx context.Context, fn func(Writer) error) error {
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		return fn(redisWriter{c: p})
	})
	return err
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error { return r.client.Close() }

// redisWriter implementa Writer sobre qualquer Cmdable, o que permite
// reutilizar os mesmos métodos no cliente e dentro de um pipeline.
type redisWriter struct {
	c redis.Cmdable
}

func (w redisWriter) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	return w.c.Set(ctx, key, value, ttl).Err()
}

func (w redisWriter) HSet(ctx context.Context, key, field, value string) error {
	return w.c.HSet(ctx, key, field, value).Err()
}

func (w redisWriter) HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error) {
	return w.c.HIncrBy(ctx, key, field, incr).Result()
}

func (w redisWriter) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return w.c.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (w redisWriter) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return w.c.Expire(ctx, key, ttl).Err()
}

func mapNil(err error) error {
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	return err
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
