// Package domain define os tipos do cache de resposta: a entrada
// armazenada, os TTLs padrão e os prefixos de chave compartilhados com os
// demais consumidores do Redis.
//
// Este pacote não depende de net/http nem do store.
package domain
