// Package httpapi is the operator surface: health, metrics, and read-only
// introspection of posts and stats. The publish API consumed by the content
// layer is a separate collaborator and does not live here.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/postwave/post-gateway/internal/core"
	"github.com/postwave/post-gateway/internal/publish"
	"github.com/postwave/post-gateway/internal/store"
)

type Server struct {
	Publisher *publish.Publisher
	// Ready reports backend readiness (store ping); nil means always ready.
	Ready func(ctx context.Context) error
}

func NewServer(p *publish.Publisher) *Server { return &Server{Publisher: p} }

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, instrument)

	s.mountHealth(r)
	s.mountMetrics(r)

	r.Get("/v1/posts", s.listPosts)
	r.Get("/v1/posts/{id}", s.getPost)
	r.Get("/v1/stats", s.getStats)
	r.Get("/v1/channels/{channel}/verify", s.verifyChannel)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	status := core.Status(r.URL.Query().Get("status"))
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	items, err := s.Publisher.List(r.Context(), channel, status, limit)
	if err != nil {
		writeJSON(w, 500, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, 200, map[string]any{"items": items, "limit": limit})
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	post, err := s.Publisher.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, 404, map[string]string{"error": "post_not_found"})
			return
		}
		writeJSON(w, 500, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, 200, post)
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	writeJSON(w, 200, map[string]any{"channels": s.Publisher.Stats(channel)})
}

func (s *Server) verifyChannel(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	status, err := s.Publisher.Verify(r.Context(), channel)
	if err != nil {
		if errors.Is(err, core.ErrUnsupportedChannel) {
			writeJSON(w, 404, map[string]string{"error": "unsupported_channel"})
			return
		}
		writeJSON(w, 500, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, 200, map[string]string{"channel": channel, "status": string(status)})
}
