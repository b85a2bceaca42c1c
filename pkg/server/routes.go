// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kadirpekel/docsagent/pkg/observability"
	"github.com/kadirpekel/docsagent/pkg/protocol"
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	// Observability is outermost so every request is traced and measured.
	r.Use(observability.HTTPMiddleware(s.observability.Tracer(), s.observability.Metrics()))
	r.Use(middleware.RequestID)
	r.Use(loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)
	if s.observability.MetricsEnabled() {
		r.Handle(s.observability.MetricsEndpoint(), s.observability.MetricsHandler())
	}

	if s.deps.Store != nil {
		r.Route("/vector-store", func(r chi.Router) {
			r.Post("/documents", s.handleAddDocument)
			r.Post("/search", s.handleSearch)
			r.Post("/collections", s.handleListCollections)
			r.Put("/collections/{name}", s.handleCreateCollection)
		})
	}

	if s.deps.Crawl != nil {
		r.Route("/firecrawl", func(r chi.Router) {
			r.Post("/crawl", s.handleCrawl)
			r.Get("/stream-crawl", s.handleStreamCrawl)
			r.Get("/ws/crawl", s.handleCrawlSocket)
		})
	}

	if s.deps.Chat != nil {
		r.Route("/agent", func(r chi.Router) {
			r.Post("/chat/{thread_id}", s.handleChat)
			r.Get("/ws/{thread_id}", s.handleChatSocket)
		})
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.HealthResponse{Status: "ok"})
}

// corsMiddleware allows every origin unless origins are configured.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	origins := s.cfg.CORSOrigins
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case len(origins) == 0 || slices.Contains(origins, "*"):
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(origins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		// Don't wrap ResponseWriter - it breaks http.Flusher for SSE
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start),
		)
	})
}
