// Package application contém os casos de uso (regras de aplicação) para rate limit
// e limite de concorrência.
//
// Ele depende dos pacotes domain e kv e não conhece net/http.
// Ex.: Service.Check(ctx, id, action, max, janela) retorna um Result
// (allow/deny + remaining + resetAt).
package application
