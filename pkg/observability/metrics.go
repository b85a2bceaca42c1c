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

package observability

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records the service's counters and histograms. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	httpRequests metric.Int64Counter
	httpDuration metric.Float64Histogram

	graphRuns  metric.Int64Counter
	nodeVisits metric.Int64Counter
	rewrites   metric.Int64Counter

	toolCalls    metric.Int64Counter
	toolDuration metric.Float64Histogram

	llmCalls    metric.Int64Counter
	llmDuration metric.Float64Histogram

	crawlEvents        metric.Int64Counter
	documentsPersisted metric.Int64Counter
}

// NewMetrics creates all instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.httpRequests, "docsagent_http_requests_total", "Total HTTP requests"},
		{&m.graphRuns, "docsagent_agent_runs_total", "Total agent graph runs"},
		{&m.nodeVisits, "docsagent_agent_node_visits_total", "Total agent graph node visits"},
		{&m.rewrites, "docsagent_agent_rewrites_total", "Total question rewrites"},
		{&m.toolCalls, "docsagent_tool_calls_total", "Total tool calls"},
		{&m.llmCalls, "docsagent_llm_calls_total", "Total model calls"},
		{&m.crawlEvents, "docsagent_crawl_events_total", "Total crawl events relayed"},
		{&m.documentsPersisted, "docsagent_documents_persisted_total", "Total crawled documents persisted"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&m.httpDuration, "docsagent_http_request_duration_seconds", "HTTP request duration in seconds"},
		{&m.toolDuration, "docsagent_tool_call_duration_seconds", "Tool call duration in seconds"},
		{&m.llmDuration, "docsagent_llm_request_duration_seconds", "Model request duration in seconds"},
	}
	for _, h := range histograms {
		if *h.dst, err = meter.Float64Histogram(h.name, metric.WithDescription(h.desc), metric.WithUnit("s")); err != nil {
			return nil, fmt.Errorf("failed to create %s histogram: %w", h.name, err)
		}
	}

	return m, nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPRoute, route),
		attribute.String(AttrHTTPStatusCode, strconv.Itoa(status)),
	)
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordGraphRun records a finished agent run.
func (m *Metrics) RecordGraphRun(ctx context.Context, rewrites int, err error) {
	if m == nil {
		return
	}
	m.graphRuns.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrOutcome, outcome(err))))
	if rewrites > 0 {
		m.rewrites.Add(ctx, int64(rewrites))
	}
}

// RecordNodeVisit records entry into a graph node.
func (m *Metrics) RecordNodeVisit(ctx context.Context, node string) {
	if m == nil {
		return
	}
	m.nodeVisits.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrNode, node)))
}

// RecordToolCall records one tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrToolName, tool),
		attribute.String(AttrOutcome, outcome(err)),
	)
	m.toolCalls.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordLLMCall records one model request.
func (m *Metrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrLLMModel, model),
		attribute.String(AttrOutcome, outcome(err)),
	)
	m.llmCalls.Add(ctx, 1, attrs)
	m.llmDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordCrawlEvent records one relayed crawl event.
func (m *Metrics) RecordCrawlEvent(ctx context.Context, event string) {
	if m == nil {
		return
	}
	m.crawlEvents.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrEvent, event)))
}

// RecordDocumentPersisted records the outcome of storing one crawled page.
func (m *Metrics) RecordDocumentPersisted(ctx context.Context, collection string, err error) {
	if m == nil {
		return
	}
	m.documentsPersisted.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrCollection, collection),
		attribute.String(AttrOutcome, outcome(err)),
	))
}
