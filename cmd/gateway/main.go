package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"catalog-gateway/config"
	"catalog-gateway/kv"
	"catalog-gateway/leaderboard"
	"catalog-gateway/middleware/cache"
	cacheapp "catalog-gateway/middleware/cache/application"
	"catalog-gateway/middleware/ratelimit"
	rlapp "catalog-gateway/middleware/ratelimit/application"
	rldomain "catalog-gateway/middleware/ratelimit/domain"
	"catalog-gateway/middleware/ratelimit/infra"
	"catalog-gateway/stats"

	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("config error")
	}

	logger := newLogger(cfg.Log)

	target, err := url.Parse(cfg.Upstream.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid upstream url")
	}

	store := openStore(cfg, logger)
	defer func() { _ = store.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	statsEngine := stats.New(store, stats.WithLogger(logger))
	boards := leaderboard.New(store, leaderboard.WithLogger(logger))
	if err := boards.Initialize(ctx); err != nil {
		logger.Warn().Err(err).Msg("leaderboard init skipped")
	}

	cacheSvc := cacheapp.Service{Store: store, Logger: logger}
	rateSvc := rlapp.Service{Store: store, Logger: logger}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("proxy error")
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	// Cadeia do proxy, de dentro para fora:
	// rate limit -> concorrência -> login -> cache -> invalidação -> proxy.
	h := http.Handler(proxy)
	h = cache.InvalidateAfterWrite(cacheSvc, namespacePattern, logger)(h)
	if cfg.Cache.Enabled {
		h = cache.Middleware(cache.Options{Service: cacheSvc, TTL: cfg.Cache.TTL})(h)
	}
	h = ratelimit.LoginMiddleware(ratelimit.LoginOptions{
		Service:     rateSvc,
		MaxAttempts: cfg.Login.MaxAttempts,
		Window:      cfg.Login.Window,
		KeyFn:       ratelimit.DefaultKeyFunc(cfg.Rate.KeyHeader, cfg.Rate.TrustXFF),
	})(h)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.Concurrency.Max,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.Concurrency.AcquireTimeout,
	})(h)
	if cfg.Rate.Enabled {
		h = ratelimit.Middleware(ratelimit.Options{
			Checker:             newChecker(ctx, cfg, rateSvc),
			KeyHeader:           cfg.Rate.KeyHeader,
			TrustXForwardedFor:  cfg.Rate.TrustXFF,
			AddRateLimitHeaders: cfg.Rate.AddHeaders,
		})(h)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newRouter(h, store, cacheSvc, statsEngine, boards, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().
		Str("addr", cfg.Server.Addr).
		Str("upstream", target.String()).
		Str("store", cfg.Store.Kind).
		Bool("cache", cfg.Cache.Enabled).
		Bool("rate", cfg.Rate.Enabled).
		Str("rateStrategy", cfg.Rate.Strategy).
		Msg("gateway listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	w := zerolog.New(os.Stderr)
	if cfg.Pretty {
		w = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return w.Level(level).With().Timestamp().Logger()
}

func openStore(cfg *config.Config, logger zerolog.Logger) kv.Store {
	if cfg.Store.Kind == "memory" {
		logger.Warn().Msg("using in-process store, state is per replica")
		return kv.NewMemory()
	}

	store := kv.OpenRedis(kv.RedisOptions{
		Host:           cfg.Redis.Host,
		Port:           cfg.Redis.Port,
		Password:       cfg.Redis.Password,
		DB:             cfg.Redis.DB,
		ConnectTimeout: cfg.Redis.ConnectTimeout,
		MaxRetries:     cfg.Redis.MaxRetries,
		TLS:            cfg.Redis.TLS,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		logger.Fatal().Err(err).Msg("redis ping error")
	}
	return store
}

// newChecker monta a estratégia de rate limit da API. A local roda sem
// Redis; a janela no store vale para todas as réplicas.
func newChecker(ctx context.Context, cfg *config.Config, svc rlapp.Service) rlapp.Checker {
	if cfg.Rate.Strategy == "local" {
		bucket := infra.NewBucketStore(cfg.Rate.LocalRPS, cfg.Rate.LocalBurst)
		bucket.StartJanitor(ctx)
		return rlapp.Local{Store: bucket, Burst: bucket.Burst()}
	}

	return rlapp.Window{
		Service: svc,
		Action:  rldomain.ActionAPI,
		Max:     cfg.Rate.MaxRequests,
		Window:  cfg.Rate.Window,
	}
}

// namespacePattern mapeia uma mutação proxied para o padrão de cache a
// purgar: POST /api/movies/123 derruba tudo sob api:/api/movies.
func namespacePattern(r *http.Request) string {
	path := strings.TrimSuffix(r.URL.Path, "/")
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) < 2 || parts[0] != "api" {
		return ""
	}
	return "api:/" + parts[0] + "/" + parts[1] + "*"
}
