package stats

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"catalog-gateway/kv"

	"github.com/rs/zerolog"
)

// Layout das chaves no store. Preservar: outras ferramentas leem direto.
const (
	keyMovieViews         = "stats:movie:views"
	keyAvgRating          = "stats:movie:avgrating"
	keyCategoryPopularity = "stats:category:popularity"

	prefixDailyViews   = "stats:daily:views:"
	prefixHourlyViews  = "stats:hourly:views:"
	prefixRatings      = "stats:movie:ratings:"
	prefixUserActivity = "stats:user:activity:"
)

const (
	dailyViewsTTL  = 30 * 24 * time.Hour
	hourlyViewsTTL = 48 * time.Hour
	ratingsTTL     = 90 * 24 * time.Hour
	activityTTL    = 30 * 24 * time.Hour

	// activityMax limita o log de atividade por usuário.
	activityMax = 100

	defaultActivityLimit = 20
)

// Engine é o motor de estatísticas. Seguro para uso concorrente: toda
// mutação é delegada às primitivas atômicas do store.
type Engine struct {
	store kv.Store
	log   zerolog.Logger
	now   func() time.Time
}

type Option func(*Engine)

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithClock troca o relógio do engine (simulação de tempo em teste).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(store kv.Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		log:   zerolog.Nop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IncrementViewCount soma amount ao contador do entityID e retorna o novo
// total. Os rollups por dia e por hora vão juntos em um batch separado;
// falha neles não derruba o incremento primário, só vira log.
func (e *Engine) IncrementViewCount(ctx context.Context, entityID string, amount int64) (int64, error) {
	total, err := e.store.HIncrBy(ctx, keyMovieViews, entityID, amount)
	if err != nil {
		return 0, fmt.Errorf("increment view count: %w", err)
	}

	now := e.now().UTC()
	dailyKey := prefixDailyViews + now.Format("2006-01-02")
	hourlyKey := prefixHourlyViews + now.Format("2006-01-02:15")

	err = e.store.Pipelined(ctx, func(w kv.Writer) error {
		if _, err := w.HIncrBy(ctx, dailyKey, entityID, amount); err != nil {
			return err
		}
		if err := w.Expire(ctx, dailyKey, dailyViewsTTL); err != nil {
			return err
		}
		if _, err := w.HIncrBy(ctx, hourlyKey, entityID, amount); err != nil {
			return err
		}
		return w.Expire(ctx, hourlyKey, hourlyViewsTTL)
	})
	if err != nil {
		e.log.Warn().Err(err).Str("entity", entityID).Msg("view rollups dropped")
	}

	return total, nil
}

// ViewCount retorna o total acumulado do entityID; zero quando nunca visto.
func (e *Engine) ViewCount(ctx context.Context, entityID string) (int64, error) {
	raw, err := e.store.HGet(ctx, keyMovieViews, entityID)
	if err == kv.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get view count: %w", err)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse view count %q: %w", raw, err)
	}
	return n, nil
}

// AddRating registra um evento de avaliação e recalcula a média varrendo a
// coleção retida, arredondando para uma casa decimal. O valor já chega
// validado em [0,10] pelo chamador. ActorID vazio vira "anonymous".
func (e *Engine) AddRating(ctx context.Context, entityID string, value float64, actorID string) (float64, error) {
	if actorID == "" {
		actorID = "anonymous"
	}
	key := prefixRatings + entityID
	ms := e.now().UnixMilli()
	member := fmt.Sprintf("%s:%d:%s", actorID, ms, strconv.FormatFloat(value, 'f', -1, 64))

	if err := e.store.ZAdd(ctx, key, float64(ms), member); err != nil {
		return 0, fmt.Errorf("add rating: %w", err)
	}

	members, err := e.store.ZRange(ctx, key, 0, -1)
	if err != nil {
		return 0, fmt.Errorf("scan ratings: %w", err)
	}

	var sum float64
	var count int
	for _, m := range members {
		v, ok := ratingValue(m)
		if !ok {
			e.log.Debug().Str("member", m).Msg("skipping malformed rating event")
			continue
		}
		sum += v
		count++
	}

	avg := 0.0
	if count > 0 {
		avg = math.Round(sum/float64(count)*10) / 10
	}

	if err := e.store.HSet(ctx, keyAvgRating, entityID, strconv.FormatFloat(avg, 'f', 1, 64)); err != nil {
		return 0, fmt.Errorf("store average rating: %w", err)
	}
	if err := e.store.Expire(ctx, key, ratingsTTL); err != nil {
		return 0, fmt.Errorf("refresh ratings ttl: %w", err)
	}

	return avg, nil
}

// ratingValue extrai o valor de um membro actor:unixMilli:valor. O actor
// pode conter ':' (vem de fora), então o valor é sempre o último segmento.
func ratingValue(member string) (float64, bool) {
	parts := strings.Split(member, ":")
	if len(parts) < 3 {
		return 0, false
	}
	v, err := strconv.ParseFloat(parts[len(parts)-1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// AverageRating retorna a média derivada; zero quando não há avaliações.
func (e *Engine) AverageRating(ctx context.Context, entityID string) (float64, error) {
	raw, err := e.store.HGet(ctx, keyAvgRating, entityID)
	if err == kv.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get average rating: %w", err)
	}
	avg, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse average rating %q: %w", raw, err)
	}
	return avg, nil
}

// ActivityEntry é um evento do log de atividade de um usuário.
type ActivityEntry struct {
	Action   string
	EntityID string
	At       time.Time
}

// TrackUserActivity anexa um evento ao log do usuário, corta o log para os
// 100 mais recentes e renova a expiração de 30 dias.
func (e *Engine) TrackUserActivity(ctx context.Context, userID, action, entityID string) error {
	key := prefixUserActivity + userID
	ms := e.now().UnixMilli()
	member := fmt.Sprintf("%s:%s:%d", action, entityID, ms)

	if err := e.store.ZAdd(ctx, key, float64(ms), member); err != nil {
		return fmt.Errorf("track activity: %w", err)
	}
	if _, err := e.store.ZRemRangeByRank(ctx, key, 0, -(activityMax + 1)); err != nil {
		return fmt.Errorf("trim activity log: %w", err)
	}
	if err := e.store.Expire(ctx, key, activityTTL); err != nil {
		return fmt.Errorf("refresh activity ttl: %w", err)
	}
	return nil
}

// RecentActivity retorna os eventos mais recentes do usuário, do mais novo
// para o mais velho. Limit não positivo usa 20. Log vazio retorna lista
// vazia; membros malformados são pulados.
func (e *Engine) RecentActivity(ctx context.Context, userID string, limit int) ([]ActivityEntry, error) {
	if limit <= 0 {
		limit = defaultActivityLimit
	}

	members, err := e.store.ZRevRange(ctx, prefixUserActivity+userID, 0, int64(limit-1))
	if err != nil {
		return nil, fmt.Errorf("read activity log: %w", err)
	}

	entries := make([]ActivityEntry, 0, len(members))
	for _, m := range members {
		parts := strings.Split(m, ":")
		if len(parts) < 3 {
			e.log.Debug().Str("member", m).Msg("skipping malformed activity event")
			continue
		}
		ms, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
		if err != nil {
			e.log.Debug().Str("member", m).Msg("skipping malformed activity event")
			continue
		}
		entries = append(entries, ActivityEntry{
			Action:   parts[0],
			EntityID: strings.Join(parts[1:len(parts)-1], ":"),
			At:       time.UnixMilli(ms),
		})
	}
	return entries, nil
}

// IncrementCategoryPopularity soma n à popularidade da categoria.
func (e *Engine) IncrementCategoryPopularity(ctx context.Context, categoryID string, n float64) error {
	if _, err := e.store.ZIncrBy(ctx, keyCategoryPopularity, n, categoryID); err != nil {
		return fmt.Errorf("increment category popularity: %w", err)
	}
	return nil
}

// PopularCategories retorna as categorias mais populares, maior primeiro.
func (e *Engine) PopularCategories(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	ids, err := e.store.ZRevRange(ctx, keyCategoryPopularity, 0, int64(limit-1))
	if err != nil {
		return nil, fmt.Errorf("read popular categories: %w", err)
	}
	return ids, nil
}
