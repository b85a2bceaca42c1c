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

// Package server exposes the vector store, the crawl relay and the agent
// over HTTP, Server-Sent Events and WebSockets.
//
// Routes:
//
//	GET  /health
//	GET  /metrics                         (when metrics are enabled)
//	POST /vector-store/documents
//	POST /vector-store/search
//	POST /vector-store/collections
//	PUT  /vector-store/collections/{name}
//	POST /firecrawl/crawl                 background crawl
//	GET  /firecrawl/stream-crawl          SSE crawl progress
//	GET  /firecrawl/ws/crawl              WebSocket crawl progress
//	POST /agent/chat/{thread_id}          SSE or JSON answer
//	GET  /agent/ws/{thread_id}            WebSocket chat
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/kadirpekel/docsagent/pkg/agent"
	"github.com/kadirpekel/docsagent/pkg/config"
	"github.com/kadirpekel/docsagent/pkg/crawl"
	"github.com/kadirpekel/docsagent/pkg/observability"
	"github.com/kadirpekel/docsagent/pkg/vectorstore"
)

// VectorStore is the subset of *vectorstore.Gateway the server uses.
type VectorStore interface {
	AddDocument(ctx context.Context, collection, text string, metadata map[string]any, id string) (string, error)
	Search(ctx context.Context, collection, query string, topK int) ([]vectorstore.Match, error)
	CreateCollection(ctx context.Context, name string) error
	ListCollections(ctx context.Context) ([]string, error)
}

// CrawlRunner runs crawl sessions. *crawl.Relay implements it.
type CrawlRunner interface {
	Run(ctx context.Context, req crawl.Request, sink crawl.Sink) (*crawl.Summary, error)
}

// ChatService runs chat turns. *agent.Service implements it.
type ChatService interface {
	Chat(ctx context.Context, req agent.ChatRequest, emit agent.Emitter) (*agent.Result, error)
}

// Deps are the components served. A nil dependency disables its routes.
type Deps struct {
	Store VectorStore
	Crawl CrawlRunner
	Chat  ChatService
}

// Server is the docsagent HTTP server.
type Server struct {
	cfg           config.ServerConfig
	deps          Deps
	observability *observability.Manager
	crawls        *tracker
	handler       http.Handler
	server        *http.Server
}

// Option configures the Server.
type Option func(*Server)

// WithObservability sets the observability manager for tracing and metrics.
func WithObservability(obs *observability.Manager) Option {
	return func(s *Server) {
		s.observability = obs
	}
}

// New creates a Server.
func New(cfg config.ServerConfig, deps Deps, opts ...Option) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = config.DefaultShutdownTimeout
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		crawls: newTracker(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.observability == nil {
		s.observability = observability.NewNoop()
	}
	s.handler = s.routes()
	return s
}

// Handler returns the root handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.cfg.Addr()
}

// Start listens on the configured address and serves until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	slog.Info("HTTP server starting", "address", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown stops accepting requests, waits for in-flight ones, then drains
// background crawls. Crawls still running when ctx expires are cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.server != nil {
		slog.Info("HTTP server shutting down")
		if err := s.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if n := s.crawls.Active(); n > 0 {
		slog.Info("Waiting for background crawls", "count", n)
	}
	if err := s.crawls.Drain(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain crawls: %w", err))
	}
	return errors.Join(errs...)
}
