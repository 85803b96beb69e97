// Package leaderboard mantém os rankings de filmes em sorted sets no
// key-value store: popular, trending, toprated, mostviewed e mostcommented.
//
// Os rankings são derivados e descartáveis: toda escrita renova uma
// expiração rolante de 1 dia, e um ranking vazio significa cold start.
// Nesse caso o consumidor consulta a fonte autoritativa ordenada por
// visualizações; o engine não esconde a lista vazia.
package leaderboard
