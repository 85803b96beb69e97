// Package stats acumula sinais de uso do catálogo no key-value store:
// contadores de visualização (com rollups por dia e por hora), eventos de
// avaliação com média derivada, log de atividade por usuário e popularidade
// de categorias.
//
// Tudo aqui é sinal de ranking, não ledger: escritas são best-effort e
// leituras sem dado retornam o valor zero em vez de erro. O layout das
// chaves (stats:movie:views, stats:daily:views:<dia>, ...) é estável para
// permitir inspeção direta no store.
package stats
