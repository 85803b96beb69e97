package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"time"

	"catalog-gateway/middleware/ratelimit/application"
)

type KeyFunc func(r *http.Request) string

type Options struct {
	Checker             application.Checker
	KeyFn               KeyFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	RejectStatus        int
	AddRateLimitHeaders bool
	// Now permite simular o relógio em teste (cálculo do Retry-After).
	Now func() time.Time
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				parts := strings.Split(xff, ",")
				if len(parts) > 0 {
					ip := strings.TrimSpace(parts[0])
					if ip != "" {
						return ip
					}
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.Checker == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := opts.KeyFn(r)
			res := opts.Checker.Check(r.Context(), key)

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Key", key)
				if res.Limit >= 0 {
					w.Header().Set("X-RateLimit-Limit", formatInt(res.Limit))
				}
				if res.Remaining >= 0 {
					w.Header().Set("X-RateLimit-Remaining", formatInt(res.Remaining))
				}
				w.Header().Set("X-RateLimit-Reset", formatInt64(res.ResetAt))
			}

			if !res.Allowed {
				w.Header().Set("Retry-After", formatInt(retryAfterSeconds(res.ResetAt, opts.Now())))
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// retryAfterSeconds converte o resetAt em segundos de espera, nunca
// menor que 1 para o header fazer sentido.
func retryAfterSeconds(resetAt int64, now time.Time) int {
	secs := resetAt - now.Unix()
	if secs < 1 {
		secs = 1
	}
	return int(secs)
}
