package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

type Key string

// Action é o namespace da ação limitada. Vira prefixo da chave no store:
// <action>:<identificador>.
type Action string

const (
	ActionAPI          Action = "ratelimit:api"
	ActionLogin        Action = "ratelimit:login"
	ActionRegistration Action = "ratelimit:registration"
	ActionComment      Action = "ratelimit:comment"
)

// WindowKey monta a chave da janela deslizante de um identificador.
func (a Action) WindowKey(identifier string) string {
	return string(a) + ":" + identifier
}

// Result é o desfecho de uma checagem de limite.
type Result struct {
	Allowed bool
	// Limit é o teto configurado da janela; -1 quando a estratégia não
	// expõe o valor.
	Limit int
	// Remaining é quanto ainda cabe na janela; -1 quando desconhecido.
	Remaining int
	// ResetAt é o instante (epoch segundos) em que a janela abre de novo.
	ResetAt int64
}

// Restrictive combina dois desfechos ficando com o mais restritivo:
// menor remaining, maior resetAt; só permite se ambos permitem.
func Restrictive(a, b Result) Result {
	out := Result{
		Allowed:   a.Allowed && b.Allowed,
		Limit:     a.Limit,
		Remaining: a.Remaining,
		ResetAt:   a.ResetAt,
	}
	if b.Limit < a.Limit {
		out.Limit = b.Limit
	}
	if b.Remaining < a.Remaining {
		out.Remaining = b.Remaining
	}
	if b.ResetAt > a.ResetAt {
		out.ResetAt = b.ResetAt
	}
	return out
}

// Limiter representa algo que pode decidir se uma ação é permitida agora.
//
// Usado pela estratégia local (token bucket em processo); a janela
// deslizante não passa por aqui porque o estado vive no store remoto.
type Limiter interface {
	Allow() bool
}

// LimiterStore obtém um limiter por chave (ex: IP, API key, usuário).
// A implementação pode manter cache, TTL, etc.
type LimiterStore interface {
	Get(Key) Limiter
}
