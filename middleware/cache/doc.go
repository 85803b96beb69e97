// Package cache fornece os adapters HTTP (net/http) do cache de resposta.
//
// Visão geral (camadas):
//
//   - domain: entrada armazenada, TTLs e prefixos de chave (sem net/http)
//   - application: lookup/save/invalidate com degradação para miss
//   - cache (este pacote): middleware HTTP + derivação de chave + headers
//
// Fluxo:
//
//  1. GET? se não, passa direto (nunca lê nem escreve cache)
//  2. monta a chave determinística método+path+query
//  3. hit: devolve payload/status armazenados com X-Cache: HIT
//  4. miss: executa o handler gravando a resposta; 2xx vai para o store
//
// Escritas (InvalidateAfterWrite) purgam o namespace da entidade depois que
// o upstream confirma a mutação, fora do caminho crítico do request.
package cache
