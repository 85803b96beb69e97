package domain

import "time"

// TTLs padrão do cache, na mesma escala usada pelo app de catálogo.
const (
	TTLShort    = 60 * time.Second
	TTLMedium   = 5 * time.Minute
	TTLLong     = 30 * time.Minute
	TTLVeryLong = time.Hour
	TTLDay      = 24 * time.Hour
)

// Prefixos de chave. O layout é contrato de interop: outros processos
// invalidam e inspecionam essas chaves pelo mesmo esquema.
const (
	PrefixAPI       = "api:"
	PrefixMovie     = "movie:"
	PrefixMovieList = "movieList:"
	PrefixCategory  = "category:"
	PrefixUser      = "user:"
	PrefixSession   = "session:"
	PrefixStats     = "stats:"
)

// Entry é a resposta armazenada no cache.
//
// Body guarda os bytes crus da resposta para o hit ser idêntico byte a byte
// ao que o handler produziu, independente do payload ser JSON ou não.
type Entry struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body"`
}

// Cacheable diz se a resposta pode ir para o cache: só sucesso (2xx).
func (e Entry) Cacheable() bool {
	return e.Status >= 200 && e.Status < 300
}
