// Package config carrega a configuração do gateway em camadas:
// defaults embutidos sobrescritos por variáveis de ambiente.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Upstream    UpstreamConfig    `koanf:"upstream"`
	Store       StoreConfig       `koanf:"store"`
	Redis       RedisConfig       `koanf:"redis"`
	Cache       CacheConfig       `koanf:"cache"`
	Rate        RateConfig        `koanf:"rate"`
	Login       LoginConfig       `koanf:"login"`
	Concurrency ConcurrencyConfig `koanf:"concurrency"`
	Log         LogConfig         `koanf:"log"`
}

type ServerConfig struct {
	Addr string `koanf:"addr"`
}

type UpstreamConfig struct {
	URL string `koanf:"url"`
}

// StoreConfig escolhe o backend do estado compartilhado. "memory" existe
// para desenvolvimento e teste; o limite e o cache valem só para o processo.
type StoreConfig struct {
	Kind string `koanf:"kind"`
}

type RedisConfig struct {
	Host           string        `koanf:"host"`
	Port           int           `koanf:"port"`
	DB             int           `koanf:"db"`
	Password       string        `koanf:"password"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	MaxRetries     int           `koanf:"max_retries"`
	TLS            bool          `koanf:"tls"`
}

type CacheConfig struct {
	Enabled bool          `koanf:"enabled"`
	TTL     time.Duration `koanf:"ttl"`
}

// RateConfig controla o rate limit de API. Strategy "redis" usa a janela
// deslizante no store compartilhado; "local" usa token bucket em processo.
type RateConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Strategy    string        `koanf:"strategy"`
	MaxRequests int           `koanf:"max_requests"`
	Window      time.Duration `koanf:"window"`
	LocalRPS    float64       `koanf:"local_rps"`
	LocalBurst  int           `koanf:"local_burst"`
	AddHeaders  bool          `koanf:"add_headers"`
	KeyHeader   string        `koanf:"key_header"`
	TrustXFF    bool          `koanf:"trust_xff"`
}

type LoginConfig struct {
	MaxAttempts int           `koanf:"max_attempts"`
	Window      time.Duration `koanf:"window"`
}

type ConcurrencyConfig struct {
	Max            int           `koanf:"max"`
	AcquireTimeout time.Duration `koanf:"acquire_timeout"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
}

func defaults() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":8080"},
		Upstream: UpstreamConfig{URL: "http://localhost:3000"},
		Store:    StoreConfig{Kind: "redis"},
		Redis: RedisConfig{
			Host:           "localhost",
			Port:           6379,
			DB:             0,
			ConnectTimeout: 10 * time.Second,
			MaxRetries:     3,
			TLS:            false,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     5 * time.Minute,
		},
		Rate: RateConfig{
			Enabled:     true,
			Strategy:    "redis",
			MaxRequests: 100,
			Window:      time.Minute,
			LocalRPS:    50,
			LocalBurst:  100,
			AddHeaders:  true,
			TrustXFF:    true,
		},
		Login: LoginConfig{
			MaxAttempts: 5,
			Window:      5 * time.Minute,
		},
		Concurrency: ConcurrencyConfig{
			Max:            0, // desligado
			AcquireTimeout: 2 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// envMappings traduz variáveis de ambiente para caminhos de configuração.
// Variáveis fora da lista são ignoradas de propósito.
var envMappings = map[string]string{
	"server_addr": "server.addr",

	"upstream_url": "upstream.url",

	"store_kind": "store.kind",

	"redis_host":            "redis.host",
	"redis_port":            "redis.port",
	"redis_db":              "redis.db",
	"redis_password":        "redis.password",
	"redis_connect_timeout": "redis.connect_timeout",
	"redis_max_retries":     "redis.max_retries",
	"redis_tls":             "redis.tls",

	"cache_enabled": "cache.enabled",
	"cache_ttl":     "cache.ttl",

	"rate_enabled":      "rate.enabled",
	"rate_strategy":     "rate.strategy",
	"rate_max_requests": "rate.max_requests",
	"rate_window":       "rate.window",
	"rate_local_rps":    "rate.local_rps",
	"rate_local_burst":  "rate.local_burst",
	"rate_add_headers":  "rate.add_headers",
	"rate_key_header":   "rate.key_header",
	"rate_trust_xff":    "rate.trust_xff",

	"login_max_attempts": "login.max_attempts",
	"login_window":       "login.window",

	"concurrency_max":     "concurrency.max",
	"concurrency_timeout": "concurrency.acquire_timeout",

	"log_level":  "log.level",
	"log_pretty": "log.pretty",
}

func envTransform(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}

// Load monta a configuração: defaults embutidos, depois ambiente por cima.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config: server.addr vazio")
	}

	u, err := url.Parse(c.Upstream.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: upstream.url inválida: %q", c.Upstream.URL)
	}

	switch c.Store.Kind {
	case "redis", "memory":
	default:
		return fmt.Errorf("config: store.kind deve ser redis ou memory, veio %q", c.Store.Kind)
	}

	switch c.Rate.Strategy {
	case "redis", "local":
	default:
		return fmt.Errorf("config: rate.strategy deve ser redis ou local, veio %q", c.Rate.Strategy)
	}

	if c.Rate.Enabled && c.Rate.Strategy == "redis" {
		if c.Rate.MaxRequests <= 0 {
			return fmt.Errorf("config: rate.max_requests deve ser positivo")
		}
		if c.Rate.Window <= 0 {
			return fmt.Errorf("config: rate.window deve ser positiva")
		}
	}

	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return fmt.Errorf("config: cache.ttl deve ser positivo")
	}

	return nil
}
