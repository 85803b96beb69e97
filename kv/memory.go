package kv

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Memory é uma implementação de Store em memória.
// Útil para testes e desenvolvimento (store.kind=memory); um processo só.
//
// TTLs são honrados de forma lazy, na leitura/escrita seguinte, usando o
// relógio injetado — o que permite testes de janela com tempo simulado.
type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	strings map[string]string
	hashes  map[string]map[string]string
	zsets   map[string]map[string]float64
	expiry  map[string]time.Time

	// scanMarks mapeia cursores de Scan em aberto para a última chave
	// devolvida, para a iteração retomar por valor e não por posição.
	scanMarks map[uint64]string
	scanSeq   uint64
}

var _ Store = (*Memory)(nil)

type MemoryOption func(*Memory)

// WithMemoryClock troca a fonte de tempo usada para expiração.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		now:       time.Now,
		strings:   make(map[string]string),
		hashes:    make(map[string]map[string]string),
		zsets:     make(map[string]map[string]float64),
		expiry:    make(map[string]time.Time),
		scanMarks: make(map[uint64]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// purge remove a chave se o TTL venceu. Chamar com o lock em mãos.
func (m *Memory) purge(key string) {
	if dl, ok := m.expiry[key]; ok && !m.now().Before(dl) {
		m.deleteKey(key)
	}
}

func (m *Memory) deleteKey(key string) {
	delete(m.strings, key)
	delete(m.hashes, key)
	delete(m.zsets, key)
	delete(m.expiry, key)
}

func (m *Memory) exists(key string) bool {
	if _, ok := m.strings[key]; ok {
		return true
	}
	if _, ok := m.hashes[key]; ok {
		return true
	}
	if _, ok := m.zsets[key]; ok {
		return true
	}
	return false
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	v, ok := m.strings[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) SetEx(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteKey(key)
	m.strings[key] = value
	if ttl > 0 {
		m.expiry[key] = m.now().Add(ttl)
	}
	return nil
}

func (m *Memory) Del(_ context.Context, keys ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, key := range keys {
		m.purge(key)
		if m.exists(key) {
			m.deleteKey(key)
			n++
		}
	}
	return n, nil
}

// Scan itera as chaves vivas em lotes. O cursor é um token opaco que marca
// a última chave devolvida: o próximo lote retoma da primeira chave viva
// estritamente maior em ordem lexicográfica. Assim, deletar o lote anterior
// antes de pedir o próximo (o loop do invalidador) não pula chave nenhuma,
// igual à garantia do SCAN do Redis para chaves presentes a iteração toda.
func (m *Memory) Scan(_ context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	if count <= 0 {
		count = 10
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	after := ""
	if cursor != 0 {
		mark, ok := m.scanMarks[cursor]
		if !ok {
			// cursor desconhecido (iteração antiga) encerra sem resultado
			return nil, 0, nil
		}
		delete(m.scanMarks, cursor)
		after = mark
	}

	all := make([]string, 0, len(m.strings)+len(m.hashes)+len(m.zsets))
	seen := make(map[string]struct{})
	collect := func(key string) {
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		m.purge(key)
		if m.exists(key) && matchGlob(match, key) {
			all = append(all, key)
		}
	}
	for k := range m.strings {
		collect(k)
	}
	for k := range m.hashes {
		collect(k)
	}
	for k := range m.zsets {
		collect(k)
	}
	sort.Strings(all)

	start := sort.SearchStrings(all, after)
	if start < len(all) && all[start] == after {
		start++
	}
	if start >= len(all) {
		return nil, 0, nil
	}

	end := start + int(count)
	if end >= len(all) {
		return all[start:], 0, nil
	}

	m.scanSeq++
	m.scanMarks[m.scanSeq] = all[end-1]
	return all[start:end], m.scanSeq, nil
}

func (m *Memory) HGet(_ context.Context, key, field string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	v, ok := m.hashes[key][field]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) HSet(_ context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	if m.hashes[key] == nil {
		m.hashes[key] = make(map[string]string)
	}
	m.hashes[key][field] = value
	return nil
}

func (m *Memory) HIncrBy(_ context.Context, key, field string, incr int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	if m.hashes[key] == nil {
		m.hashes[key] = make(map[string]string)
	}
	cur, _ := strconv.ParseInt(m.hashes[key][field], 10, 64)
	cur += incr
	m.hashes[key][field] = strconv.FormatInt(cur, 10)
	return cur, nil
}

func (m *Memory) ZAdd(_ context.Context, key string, score float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	if m.zsets[key] == nil {
		m.zsets[key] = make(map[string]float64)
	}
	m.zsets[key][member] = score
	return nil
}

func (m *Memory) ZIncrBy(_ context.Context, key string, incr float64, member string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	if m.zsets[key] == nil {
		m.zsets[key] = make(map[string]float64)
	}
	m.zsets[key][member] += incr
	return m.zsets[key][member], nil
}

func (m *Memory) ZCard(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	return int64(len(m.zsets[key])), nil
}

func (m *Memory) ZRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	sorted := m.sortedMembers(key)
	lo, hi, ok := normalizeRange(start, stop, len(sorted))
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, sorted[i].Member)
	}
	return out, nil
}

func (m *Memory) ZRangeWithScores(_ context.Context, key string, start, stop int64) ([]Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	sorted := m.sortedMembers(key)
	lo, hi, ok := normalizeRange(start, stop, len(sorted))
	if !ok {
		return nil, nil
	}
	return sorted[lo : hi+1], nil
}

func (m *Memory) ZRevRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	sorted := m.sortedMembers(key)
	n := len(sorted)
	lo, hi, ok := normalizeRange(start, stop, n)
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, sorted[n-1-i].Member)
	}
	return out, nil
}

func (m *Memory) ZRevRank(_ context.Context, key, member string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	sorted := m.sortedMembers(key)
	n := len(sorted)
	for i := n - 1; i >= 0; i-- {
		if sorted[i].Member == member {
			return int64(n - 1 - i), nil
		}
	}
	return 0, ErrNotFound
}

func (m *Memory) ZRemRangeByScore(_ context.Context, key string, min, max float64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	var n int64
	for member, score := range m.zsets[key] {
		if score >= min && score <= max {
			delete(m.zsets[key], member)
			n++
		}
	}
	return n, nil
}

func (m *Memory) ZRemRangeByRank(_ context.Context, key string, start, stop int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	sorted := m.sortedMembers(key)
	lo, hi, ok := normalizeRange(start, stop, len(sorted))
	if !ok {
		return 0, nil
	}
	for i := lo; i <= hi; i++ {
		delete(m.zsets[key], sorted[i].Member)
	}
	return int64(hi - lo + 1), nil
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	if !m.exists(key) {
		return nil
	}
	m.expiry[key] = m.now().Add(ttl)
	return nil
}

// TTL devolve o tempo restante da chave (helper de teste; não faz parte do
// contrato Store). Zero significa sem expiração ou chave ausente.
func (m *Memory) TTL(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge(key)
	dl, ok := m.expiry[key]
	if !ok {
		return 0
	}
	return dl.Sub(m.now())
}

func (m *Memory) Pipelined(_ context.Context, fn func(Writer) error) error {
	return fn(m)
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

// sortedMembers devolve os membros por (score, member) ascendente — o mesmo
// desempate do Redis. Chamar com o lock em mãos.
func (m *Memory) sortedMembers(key string) []Member {
	set := m.zsets[key]
	out := make([]Member, 0, len(set))
	for member, score := range set {
		out = append(out, Member{Member: member, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Member < out[j].Member
	})
	return out
}

// normalizeRange converte índices estilo Redis (negativos contam do fim,
// stop inclusivo) para [lo, hi] válidos.
func normalizeRange(start, stop int64, n int) (int, int, bool) {
	if n == 0 {
		return 0, 0, false
	}
	lo, hi := int(start), int(stop)
	if lo < 0 {
		lo += n
	}
	if hi < 0 {
		hi += n
	}
	if lo < 0 {
		lo = 0
	}
	if hi >= n {
		hi = n - 1
	}
	if lo > hi || lo >= n || hi < 0 {
		return 0, 0, false
	}
	return lo, hi, true
}

// matchGlob implementa o matching de MATCH do SCAN para '*' e '?'.
// path.Match não serve aqui: trata '/' como separador e as chaves de cache
// contêm o path da URL.
func matchGlob(pattern, s string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	var pi, si int
	star, mark := -1, 0
	for si < len(s) {
		switch {
		case pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == s[si]):
			pi++
			si++
		case pi < len(pattern) && pattern[pi] == '*':
			star, mark = pi, si
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}
