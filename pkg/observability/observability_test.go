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
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()

	assert.Equal(t, "otlp", cfg.Tracing.Exporter)
	assert.Equal(t, "localhost:4317", cfg.Tracing.Endpoint)
	assert.Equal(t, 1.0, cfg.Tracing.SamplingRate)
	assert.Equal(t, DefaultServiceName, cfg.Tracing.ServiceName)
	assert.Equal(t, DefaultMetricsEndpoint, cfg.Metrics.Endpoint)
	assert.Equal(t, DefaultExportTimeout, cfg.Tracing.Timeout)
	assert.False(t, cfg.Tracing.TLS)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Tracing: TracingConfig{Enabled: true, Exporter: "zipkin"}}
	cfg.SetDefaults()
	assert.Error(t, cfg.Validate())

	cfg = Config{Tracing: TracingConfig{Enabled: true, SamplingRate: 2}}
	cfg.SetDefaults()
	assert.Error(t, cfg.Validate())

	cfg = Config{Metrics: MetricsConfig{Enabled: true, Endpoint: "metrics"}}
	assert.Error(t, cfg.Validate())

	cfg = Config{Tracing: TracingConfig{Enabled: false, Exporter: "zipkin"}}
	assert.NoError(t, cfg.Validate())
}

func TestNoopManager(t *testing.T) {
	m := NewNoop()
	assert.False(t, m.MetricsEnabled())
	assert.NotNil(t, m.Tracer())
	assert.NotNil(t, m.Metrics())

	// Recording against noop instruments must not panic.
	m.Metrics().RecordNodeVisit(context.Background(), "agent")
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordGraphRun(context.Background(), 2, nil)
	m.RecordCrawlEvent(context.Background(), "document")
}

func TestMetricsEndpoint(t *testing.T) {
	m, err := New(context.Background(), Config{Metrics: MetricsConfig{Enabled: true}})
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	router := chi.NewRouter()
	router.Use(HTTPMiddleware(m.Tracer(), m.Metrics()))
	router.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	router.Handle(m.MetricsEndpoint(), m.MetricsHandler())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/42", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	m.Metrics().RecordToolCall(context.Background(), "web_search", 10*time.Millisecond, nil)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	assert.Contains(t, string(body), "docsagent_http_requests")
	assert.Contains(t, string(body), "/items/{id}")
	assert.Contains(t, string(body), "docsagent_tool_calls")
}

func TestResponseWriterCapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("missing"))
	w.Flush()

	assert.Equal(t, http.StatusNotFound, w.statusCode)
	assert.True(t, rec.Flushed)
}
