// Package application contém os casos de uso do cache de resposta:
// lookup/save de entradas, cache genérico de valores JSON e invalidação por
// padrão de chave.
//
// Toda falha do store degrada para "sem cache": lookup vira miss, save vira
// no-op logado. O request nunca falha por causa do cache.
package application
