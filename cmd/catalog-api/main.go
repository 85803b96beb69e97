package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Upstream de desenvolvimento: serve um catálogo estático para exercitar o
// fluxo proxy + cache do gateway sem a API real.

type movie struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Year     int     `json:"year"`
	Category string  `json:"category"`
	Rating   float64 `json:"rating"`
}

var catalog = []movie{
	{ID: "1", Title: "O Pagador de Promessas", Year: 1962, Category: "drama", Rating: 8.2},
	{ID: "2", Title: "Cidade de Deus", Year: 2002, Category: "crime", Rating: 8.6},
	{ID: "3", Title: "Central do Brasil", Year: 1998, Category: "drama", Rating: 8.0},
	{ID: "4", Title: "Tropa de Elite", Year: 2007, Category: "action", Rating: 8.1},
	{ID: "5", Title: "O Auto da Compadecida", Year: 2000, Category: "comedy", Rating: 8.7},
}

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	r := chi.NewRouter()
	r.Get("/api/movies", listMovies)
	r.Get("/api/movies/{id}", getMovie)
	r.Post("/api/movies/{id}/view", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		// Sempre nega: existe só para exercitar o limite de tentativas.
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	})

	addr := ":3000"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("catalog api listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func listMovies(w http.ResponseWriter, r *http.Request) {
	if cat := r.URL.Query().Get("category"); cat != "" {
		filtered := make([]movie, 0, len(catalog))
		for _, m := range catalog {
			if m.Category == cat {
				filtered = append(filtered, m)
			}
		}
		writeJSON(w, http.StatusOK, filtered)
		return
	}
	writeJSON(w, http.StatusOK, catalog)
}

func getMovie(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, m := range catalog {
		if m.ID == id {
			writeJSON(w, http.StatusOK, m)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "movie not found"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
