package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"catalog-gateway/kv"
	"catalog-gateway/leaderboard"
	cacheapp "catalog-gateway/middleware/cache/application"
	"catalog-gateway/stats"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// newRouter expõe as rotas locais do gateway em /gateway/* e entrega o
// resto do tráfego para a cadeia do proxy.
func newRouter(proxied http.Handler, store kv.Store, cacheSvc cacheapp.Service, statsEngine *stats.Engine, boards *leaderboard.Engine, logger zerolog.Logger) http.Handler {
	g := gatewayRoutes{
		store:  store,
		cache:  cacheSvc,
		stats:  statsEngine,
		boards: boards,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Route("/gateway", func(r chi.Router) {
		r.Get("/healthz", g.healthz)
		r.Get("/leaderboards/{name}", g.leaderboardTop)
		r.Get("/movies/{id}/stats", g.movieStats)
		r.Get("/users/{id}/activity", g.userActivity)
		r.Post("/invalidate", g.invalidate)
		r.Post("/movies/{id}/views", g.addView)
		r.Post("/movies/{id}/ratings", g.addRating)
		r.Post("/movies/{id}/popularity", g.recalcPopularity)
	})
	r.Handle("/*", proxied)
	return r
}

type gatewayRoutes struct {
	store  kv.Store
	cache  cacheapp.Service
	stats  *stats.Engine
	boards *leaderboard.Engine
	logger zerolog.Logger
}

func (g gatewayRoutes) healthz(w http.ResponseWriter, r *http.Request) {
	if err := g.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (g gatewayRoutes) leaderboardTop(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	board, ok := leaderboard.FromName(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown leaderboard: " + name})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	ids, err := g.boards.Top(r.Context(), board, limit)
	if err != nil {
		g.logger.Warn().Err(err).Str("board", name).Msg("leaderboard read failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "leaderboard unavailable"})
		return
	}

	// Lista vazia = cold start; o consumidor cai para a fonte autoritativa.
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": name, "entries": ids})
}

func (g gatewayRoutes) movieStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	views, err := g.stats.ViewCount(ctx, id)
	if err != nil {
		g.logger.Warn().Err(err).Str("movie", id).Msg("view count read failed")
	}
	avg, err := g.stats.AverageRating(ctx, id)
	if err != nil {
		g.logger.Warn().Err(err).Str("movie", id).Msg("average rating read failed")
	}

	resp := map[string]any{"id": id, "views": views, "averageRating": avg}
	if rank, ok, err := g.boards.Rank(ctx, leaderboard.Popular, id); err == nil && ok {
		resp["popularRank"] = rank
	}
	writeJSON(w, http.StatusOK, resp)
}

func (g gatewayRoutes) userActivity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := g.stats.RecentActivity(r.Context(), id, limit)
	if err != nil {
		g.logger.Warn().Err(err).Str("user", id).Msg("activity read failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "activity unavailable"})
		return
	}

	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"action":   e.Action,
			"entityId": e.EntityID,
			"at":       e.At.UTC(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"userId": id, "activity": out})
}

func (g gatewayRoutes) invalidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pattern string `json:"pattern"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Pattern == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "pattern is required"})
		return
	}

	removed, err := g.cache.Invalidate(r.Context(), req.Pattern)
	if err != nil {
		// removed carrega o que já foi purgado antes do erro.
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "partial invalidation", "removed": removed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (g gatewayRoutes) addView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Amount int64  `json:"amount"`
		UserID string `json:"userId"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Amount <= 0 {
		req.Amount = 1
	}

	total, err := g.stats.IncrementViewCount(r.Context(), id, req.Amount)
	if err != nil {
		g.logger.Warn().Err(err).Str("movie", id).Msg("view increment failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "stats unavailable"})
		return
	}

	// Sinais derivados são best-effort: falha vira log, nunca erro.
	if err := g.boards.UpdateScore(r.Context(), leaderboard.MostViewed, id, float64(total)); err != nil {
		g.logger.Warn().Err(err).Str("movie", id).Msg("mostviewed update dropped")
	}
	if req.UserID != "" {
		if err := g.stats.TrackUserActivity(r.Context(), req.UserID, "view", id); err != nil {
			g.logger.Warn().Err(err).Str("user", req.UserID).Msg("activity tracking dropped")
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "views": total})
}

func (g gatewayRoutes) addRating(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Value  float64 `json:"value"`
		UserID string  `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if req.Value < 0 || req.Value > 10 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "rating must be between 0 and 10"})
		return
	}

	avg, err := g.stats.AddRating(r.Context(), id, req.Value, req.UserID)
	if err != nil {
		g.logger.Warn().Err(err).Str("movie", id).Msg("rating failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "stats unavailable"})
		return
	}

	if err := g.boards.UpdateScore(r.Context(), leaderboard.TopRated, id, avg*10); err != nil {
		g.logger.Warn().Err(err).Str("movie", id).Msg("toprated update dropped")
	}
	if req.UserID != "" {
		if err := g.stats.TrackUserActivity(r.Context(), req.UserID, "rate", id); err != nil {
			g.logger.Warn().Err(err).Str("user", req.UserID).Msg("activity tracking dropped")
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "averageRating": avg})
}

func (g gatewayRoutes) recalcPopularity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Views            int64   `json:"views"`
		AvgRating        float64 `json:"avgRating"`
		CommentCount     int64   `json:"commentCount"`
		DaysSinceRelease float64 `json:"daysSinceRelease"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	score, err := g.boards.CalculateAndUpdatePopularity(r.Context(), id, req.Views, req.AvgRating, req.CommentCount, req.DaysSinceRelease)
	if err != nil {
		g.logger.Warn().Err(err).Str("movie", id).Msg("popularity update failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "leaderboard unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "popularScore": score})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
