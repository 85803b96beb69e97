// Package ratelimit fornece adapters HTTP (net/http) para rate limit e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (janela deslizante no store compartilhado,
//     token bucket local, acquire/timeout) sem net/http
//   - infra: implementações concretas (token bucket, semáforo), detalhes de infraestrutura
//   - ratelimit (este pacote): middlewares HTTP + wiring/extração de chave + tradução para status/headers
//
// Fluxo no gateway:
//
//   1) Extrai a chave do cliente (IP/header/XFF)
//   2) Chama a camada application para obter a decisão
//   3) Se bloqueado, responde 429 (rate limit) ou 503 (concorrência),
//      com X-RateLimit-* e Retry-After quando habilitado
//   4) Se permitido, chama o próximo handler (ex: reverse proxy)
//
// A janela deslizante é fail-open: se o store cai, a requisição passa e o
// incidente vai para o log. LoginMiddleware aplica uma variante com chave
// dupla (IP e conta) nas rotas de autenticação.
package ratelimit
