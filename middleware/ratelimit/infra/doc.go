// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - BucketStore: token bucket por chave usando golang.org/x/time/rate
//     (estratégia local, sem Redis)
//   - ChanPool: semáforo simples para limite de concorrência
//
// A janela deslizante não mora aqui: o estado dela vive no key-value store
// compartilhado (pacote kv) e a regra fica em application.Service.
package infra
