package ratelimit

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"catalog-gateway/middleware/ratelimit/application"
)

// maxLoginBody limita quanto do corpo é lido para extrair a conta.
const maxLoginBody = 1 << 20

type LoginOptions struct {
	Service application.Service
	// Path da rota de login no upstream. Vazio usa /api/auth/login.
	Path string
	// MaxAttempts por conta dentro da janela; o IP ganha o dobro.
	MaxAttempts int
	Window      time.Duration
	KeyFn       KeyFunc
	// Now permite simular o relógio em teste.
	Now func() time.Time
}

// LoginMiddleware aplica o limite de tentativas de login com chave dupla:
// IP e conta (email do corpo). As duas janelas precisam passar; o desfecho
// reportado é o mais restritivo.
//
// O corpo é lido para extrair o email e recolocado no request antes de
// seguir para o upstream. Corpo sem email cai na janela compartilhada da
// conta "unknown", além da janela de IP.
func LoginMiddleware(opts LoginOptions) func(next http.Handler) http.Handler {
	if opts.Path == "" {
		opts.Path = "/api/auth/login"
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Window <= 0 {
		opts.Window = 5 * time.Minute
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc("", true)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != opts.Path {
				next.ServeHTTP(w, r)
				return
			}

			ip := opts.KeyFn(r)
			account, body := readAccount(r)
			if body != nil {
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			res := opts.Service.CheckLogin(r.Context(), ip, account, opts.MaxAttempts, opts.Window)

			w.Header().Set("X-RateLimit-Limit", formatInt(res.Limit))
			if res.Remaining >= 0 {
				w.Header().Set("X-RateLimit-Remaining", formatInt(res.Remaining))
			}
			w.Header().Set("X-RateLimit-Reset", formatInt64(res.ResetAt))

			if !res.Allowed {
				w.Header().Set("Retry-After", formatInt(retryAfterSeconds(res.ResetAt, opts.Now())))
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// readAccount extrai o email do corpo JSON e devolve também os bytes lidos
// para o corpo poder ser reposto. Email vazio vira "unknown" para a janela
// por conta não virar no-op.
func readAccount(r *http.Request) (string, []byte) {
	if r.Body == nil {
		return "unknown", nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxLoginBody))
	_ = r.Body.Close()
	if err != nil {
		return "unknown", body
	}

	var payload struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Email == "" {
		return "unknown", body
	}
	return payload.Email, body
}
