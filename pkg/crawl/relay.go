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

// Package crawl relays a crawl session to a connected client and stores
// every crawled page in the vector store.
//
// A session moves through
//
//	started -> document* -> (error | done)
//
// Events reach the relay over a bounded channel fed by the crawl
// subscription. Pages are persisted by a small worker pool that is not tied
// to the client connection, so a client leaving early stops forwarding but
// not storage of pages already received.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/docsagent/pkg/firecrawl"
	"github.com/kadirpekel/docsagent/pkg/observability"
)

// Defaults.
const (
	DefaultHeartbeat      = 30 * time.Second
	DefaultWorkers        = 4
	DefaultBuffer         = 32
	DefaultPersistTimeout = 2 * time.Minute
)

var (
	// ErrInvalidURL is returned for URLs that are not absolute http(s) URLs.
	ErrInvalidURL = errors.New("invalid crawl url")

	// ErrIncomplete is returned when the crawl stream ends without done.
	ErrIncomplete = errors.New("crawl stream closed before completion")
)

// Crawler starts and watches crawls. *firecrawl.Client implements it.
type Crawler interface {
	StartCrawl(ctx context.Context, req firecrawl.CrawlRequest) (string, error)
	Watch(ctx context.Context, id string, buffer int) (<-chan firecrawl.Event, error)
}

// Store persists pages. *vectorstore.Gateway implements it.
type Store interface {
	AddDocument(ctx context.Context, collection, text string, metadata map[string]any, id string) (string, error)
}

// Config tunes a Relay.
type Config struct {
	// Heartbeat is the keep-alive interval. Negative disables it.
	Heartbeat time.Duration `yaml:"heartbeat"`

	// Workers bounds concurrent page writes.
	Workers int `yaml:"workers"`

	// Buffer is the capacity of the crawl event channel.
	Buffer int `yaml:"buffer"`

	// PersistTimeout bounds a single page write.
	PersistTimeout time.Duration `yaml:"persist_timeout"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Heartbeat == 0 {
		c.Heartbeat = DefaultHeartbeat
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Buffer <= 0 {
		c.Buffer = DefaultBuffer
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = DefaultPersistTimeout
	}
}

// Request is a crawl to relay.
type Request struct {
	URL   string
	Limit int
}

// Summary describes a finished session.
type Summary struct {
	CrawlID    string
	Collection string
	Status     string
	Documents  int
	Persisted  int
	Failed     int
	Skipped    int
	Errors     int
}

// Relay connects crawls to sinks and the store.
type Relay struct {
	crawler Crawler
	store   Store
	cfg     Config
	tracer  trace.Tracer
	metrics *observability.Metrics
	now     func() time.Time
}

// Option configures a Relay.
type Option func(*Relay)

// WithObservability records spans and metrics through m.
func WithObservability(m *observability.Manager) Option {
	return func(r *Relay) {
		if m != nil {
			r.tracer = m.Tracer()
			r.metrics = m.Metrics()
		}
	}
}

// NewRelay creates a Relay.
func NewRelay(crawler Crawler, store Store, cfg Config, opts ...Option) *Relay {
	cfg.SetDefaults()
	noop := observability.NewNoop()
	r := &Relay{
		crawler: crawler,
		store:   store,
		cfg:     cfg,
		tracer:  noop.Tracer(),
		metrics: noop.Metrics(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CollectionName derives the collection of a site from its root URL: the
// trailing slash and the scheme are dropped and only letters and digits
// are kept, so https://example.com maps to examplecom.
func CollectionName(rootURL string) string {
	s := strings.TrimRight(strings.TrimSpace(rootURL), "/")
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateURL checks that raw is an absolute http(s) URL.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}

// Run relays one crawl session to sink and returns once the session has
// ended and every received page has been written. Cancelling ctx stops
// forwarding and releases the crawl subscription.
func (r *Relay) Run(ctx context.Context, req Request, sink Sink) (*Summary, error) {
	if sink == nil {
		sink = Discard
	}
	if err := ValidateURL(req.URL); err != nil {
		_ = sink.Send(ctx, Event{Type: EventError, Error: err.Error()})
		return nil, err
	}

	rootURL := strings.TrimRight(req.URL, "/")
	s := &session{
		relay:   r,
		sink:    sink,
		rootURL: rootURL,
		summary: &Summary{Collection: CollectionName(rootURL)},
	}

	ctx, span := r.tracer.Start(ctx, observability.SpanCrawlSession, trace.WithAttributes(
		attribute.String(observability.AttrCrawlURL, rootURL),
		attribute.String(observability.AttrCollection, s.summary.Collection),
	))
	defer span.End()

	err := s.run(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return s.result(), err
}

// session is the state of one Run.
type session struct {
	relay   *Relay
	sink    Sink
	rootURL string
	summary *Summary

	persisted atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
}

func (s *session) result() *Summary {
	out := *s.summary
	out.Persisted = int(s.persisted.Load())
	out.Failed = int(s.failed.Load())
	out.Skipped = int(s.skipped.Load())
	return &out
}

func (s *session) run(ctx context.Context, req Request) error {
	r := s.relay

	id, err := r.crawler.StartCrawl(ctx, firecrawl.CrawlRequest{URL: req.URL, Limit: req.Limit})
	if err != nil {
		s.terminal(ctx, err)
		return fmt.Errorf("start crawl: %w", err)
	}
	s.summary.CrawlID = id

	// Writes outlive the client connection but are waited for, after the
	// subscription and heartbeat have stopped.
	var pool errgroup.Group
	pool.SetLimit(r.cfg.Workers)
	persistCtx := context.WithoutCancel(ctx)
	defer func() {
		_ = pool.Wait()
		slog.Info("Crawl session finished",
			"url", s.rootURL,
			"collection", s.summary.Collection,
			"documents", s.summary.Documents,
			"persisted", s.persisted.Load(),
			"failed", s.failed.Load())
	}()

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()

	events, err := r.crawler.Watch(watchCtx, id, r.cfg.Buffer)
	if err != nil {
		s.terminal(ctx, err)
		return fmt.Errorf("watch crawl: %w", err)
	}

	stopHeartbeat := s.startHeartbeat(watchCtx)
	defer stopHeartbeat()

	slog.Info("Crawl started", "url", s.rootURL, "crawl_id", id, "collection", s.summary.Collection)
	if err := s.send(ctx, Event{Type: EventStarted, Message: "Starting crawl of " + req.URL, Collection: s.summary.Collection}); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.summary.Status = "incomplete"
				_ = s.send(ctx, Event{Type: EventError, Error: ErrIncomplete.Error()})
				return ErrIncomplete
			}

			switch ev.Type {
			case firecrawl.EventDocument:
				s.summary.Documents++
				doc := ev.Document
				pool.Go(func() error {
					s.persist(persistCtx, doc)
					return nil
				})
				if err := s.send(ctx, Event{Type: EventDocument, URL: doc.SourceURL()}); err != nil {
					return err
				}

			case firecrawl.EventError:
				s.summary.Errors++
				slog.Warn("Crawl reported an error", "url", s.rootURL, "error", ev.Error)
				if err := s.send(ctx, Event{Type: EventError, Error: ev.Error}); err != nil {
					return err
				}

			case firecrawl.EventDone:
				s.summary.Status = ev.Status
				return s.send(ctx, Event{Type: EventDone, Status: ev.Status})
			}
		}
	}
}

// send forwards ev. A failure means the client is gone.
func (s *session) send(ctx context.Context, ev Event) error {
	s.relay.metrics.RecordCrawlEvent(ctx, string(ev.Type))
	if err := s.sink.Send(ctx, ev); err != nil {
		return fmt.Errorf("forward %s event: %w", ev.Type, err)
	}
	return nil
}

// terminal reports a failure that ends the session before any crawl event.
func (s *session) terminal(ctx context.Context, err error) {
	slog.Error("Crawl failed", "url", s.rootURL, "error", err)
	s.summary.Status = "failed"
	_ = s.send(ctx, Event{Type: EventError, Error: err.Error()})
}

// startHeartbeat sends keep-alives until the returned func is called.
func (s *session) startHeartbeat(ctx context.Context) (stop func()) {
	interval := s.relay.cfg.Heartbeat
	if interval <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.sink.Heartbeat(ctx); err != nil {
					slog.Debug("Heartbeat failed", "url", s.rootURL, "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

func (s *session) persist(ctx context.Context, doc *firecrawl.Document) {
	r := s.relay
	text := doc.Markdown
	if strings.TrimSpace(text) == "" {
		s.skipped.Add(1)
		slog.Warn("Skipping empty page", "url", doc.SourceURL())
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.PersistTimeout)
	defer cancel()

	_, err := r.store.AddDocument(ctx, s.summary.Collection, text, s.metadata(doc), DocumentID(doc.SourceURL()))
	r.metrics.RecordDocumentPersisted(ctx, s.summary.Collection, err)
	if err != nil {
		s.failed.Add(1)
		slog.Error("Failed to store page", "url", doc.SourceURL(), "collection", s.summary.Collection, "error", err)
		return
	}
	s.persisted.Add(1)
}

// DocumentID derives a stable id from a page URL so re-crawls overwrite
// pages instead of duplicating them. An empty URL yields "", which lets the
// store generate one.
func DocumentID(sourceURL string) string {
	if sourceURL == "" {
		return ""
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(sourceURL)).String()
}

// metadata is the crawler metadata plus root_url and crawled_at.
func (s *session) metadata(doc *firecrawl.Document) map[string]any {
	meta := make(map[string]any, len(doc.Metadata)+2)
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	delete(meta, "document")
	meta["root_url"] = s.rootURL
	meta["crawled_at"] = s.relay.now().UTC().Format(time.RFC3339)
	return meta
}
