// Package kv define o contrato mínimo que o gateway precisa do key-value
// store remoto (Redis) e as implementações concretas.
//
// O contrato (Store) cobre só os comandos que os componentes de fato usam:
// strings com TTL, hashes, sorted sets, SCAN com cursor e batch best-effort.
// Implementações:
//
//   - Redis: cliente go-redis com lifecycle explícito (Open/Ping/Close)
//   - Memory: gêmeo em memória, útil para testes e desenvolvimento
//
// O store é sempre injetado por construtor; nenhum componente importa um
// cliente global.
package kv
