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
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Manager owns the tracer and meter providers for the process.
type Manager struct {
	cfg      Config
	tp       *sdktrace.TracerProvider
	mp       *sdkmetric.MeterProvider
	registry *prometheus.Registry
	tracer   trace.Tracer
	metrics  *Metrics
}

// New initializes tracing and metrics according to cfg. Disabled parts use
// noop providers, so callers never need nil checks.
func New(ctx context.Context, cfg Config) (*Manager, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{cfg: cfg}

	if cfg.Tracing.Enabled {
		tp, err := newTracerProvider(ctx, cfg.Tracing)
		if err != nil {
			return nil, err
		}
		m.tp = tp
		m.tracer = tp.Tracer(instrumentationName)
		slog.Info("Tracing enabled", "exporter", cfg.Tracing.Exporter, "endpoint", cfg.Tracing.Endpoint)
	} else {
		m.tracer = tracenoop.NewTracerProvider().Tracer(instrumentationName)
	}

	var meter metric.Meter
	if cfg.Metrics.Enabled {
		m.registry = prometheus.NewRegistry()
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		exporter, err := otelprom.New(otelprom.WithRegisterer(m.registry))
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		m.mp = sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
		meter = m.mp.Meter(instrumentationName)
		slog.Info("Metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		meter = metricnoop.NewMeterProvider().Meter(instrumentationName)
	}

	metrics, err := NewMetrics(meter)
	if err != nil {
		return nil, err
	}
	m.metrics = metrics
	return m, nil
}

// NewNoop returns a manager with tracing and metrics disabled.
func NewNoop() *Manager {
	m, err := New(context.Background(), Config{})
	if err != nil {
		// Unreachable: the zero config is always valid.
		panic(err)
	}
	return m
}

// Tracer returns the service tracer.
func (m *Manager) Tracer() trace.Tracer {
	return m.tracer
}

// Metrics returns the service instruments.
func (m *Manager) Metrics() *Metrics {
	return m.metrics
}

// MetricsEnabled reports whether /metrics should be served.
func (m *Manager) MetricsEnabled() bool {
	return m.registry != nil
}

// MetricsEndpoint returns the path metrics are served on.
func (m *Manager) MetricsEndpoint() string {
	return m.cfg.Metrics.Endpoint
}

// MetricsHandler serves the Prometheus registry.
func (m *Manager) MetricsHandler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the providers.
func (m *Manager) Shutdown(ctx context.Context) error {
	var errs []error
	if m.tp != nil {
		if err := m.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}
	}
	if m.mp != nil {
		if err := m.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}
