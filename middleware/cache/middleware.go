package cache

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"catalog-gateway/middleware/cache/application"
	"catalog-gateway/middleware/cache/domain"

	"github.com/rs/zerolog"
)

type Options struct {
	Service application.Service
	// TTL da entrada gravada. Zero usa TTLMedium (5min).
	TTL time.Duration
	// KeyPrefix muda o namespace das chaves. Vazio usa "api:".
	KeyPrefix string
}

// RequestKey deriva a chave de cache do request: prefixo + path + query,
// igual ao esquema usado pelos outros consumidores do Redis.
func RequestKey(prefix string, r *http.Request) string {
	if prefix == "" {
		prefix = domain.PrefixAPI
	}
	key := prefix + r.URL.Path
	if r.URL.RawQuery != "" {
		key += "?" + r.URL.RawQuery
	}
	return key
}

// Middleware cacheia respostas 2xx de requests GET.
// Métodos não idempotentes passam direto, sem ler nem escrever o cache.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.TTL <= 0 {
		opts.TTL = domain.TTLMedium
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = domain.PrefixAPI
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := RequestKey(opts.KeyPrefix, r)

			if e, ok := opts.Service.Lookup(r.Context(), key); ok {
				if e.ContentType != "" {
					w.Header().Set("Content-Type", e.ContentType)
				}
				w.Header().Set("X-Cache", "HIT")
				w.WriteHeader(e.Status)
				_, _ = w.Write(e.Body)
				return
			}

			w.Header().Set("X-Cache", "MISS")
			rec := &responseRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			e := domain.Entry{
				Status:      rec.Status(),
				ContentType: w.Header().Get("Content-Type"),
				Body:        rec.buf.Bytes(),
			}
			if e.Cacheable() {
				opts.Service.Save(r.Context(), key, e, opts.TTL)
			}
		})
	}
}

// InvalidateAfterWrite purga o namespace de cache da entidade depois de uma
// mutação bem-sucedida no upstream. patternFor mapeia o request para o
// padrão glob a invalidar; vazio pula a purga.
//
// A purga roda fora do request (fire-and-forget); falha é logada uma vez e
// descartada — ranking/cache frio é aceitável, request lento não.
func InvalidateAfterWrite(svc application.Service, patternFor func(*http.Request) string, logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			rec := &responseRecorder{ResponseWriter: w, discardBody: true}
			next.ServeHTTP(rec, r)

			if rec.Status() < 200 || rec.Status() >= 300 {
				return
			}
			pattern := patternFor(r)
			if pattern == "" {
				return
			}
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				n, err := svc.Invalidate(ctx, pattern)
				if err != nil {
					return // já logado pelo service
				}
				logger.Debug().Str("pattern", pattern).Int("removed", n).Msg("cache invalidated after write")
			}()
		})
	}
}

// responseRecorder replica a resposta para o cliente e guarda uma cópia
// para o cache.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	discardBody bool
	buf         bytes.Buffer
}

func (rec *responseRecorder) WriteHeader(code int) {
	if rec.status == 0 {
		rec.status = code
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *responseRecorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	if !rec.discardBody {
		rec.buf.Write(b)
	}
	return rec.ResponseWriter.Write(b)
}

func (rec *responseRecorder) Status() int {
	if rec.status == 0 {
		return http.StatusOK
	}
	return rec.status
}
