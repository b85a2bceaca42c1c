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
	"fmt"
	"strings"
	"time"
)

// Config configures tracing and metrics. Both are off by default.
type Config struct {
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Exporter is "otlp" (gRPC, the default) or "stdout".
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP collector address.
	Endpoint string `yaml:"endpoint"`

	// TLS secures the OTLP connection. Plaintext is used otherwise.
	TLS bool `yaml:"tls"`

	// SamplingRate is the sampled fraction of root traces, in [0, 1].
	SamplingRate float64 `yaml:"sampling_rate"`

	ServiceName    string        `yaml:"service_name"`
	ServiceVersion string        `yaml:"service_version"`
	Timeout        time.Duration `yaml:"timeout"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	t := &c.Tracing
	if t.Exporter == "" {
		t.Exporter = ExporterOTLP
	}
	if t.Endpoint == "" {
		t.Endpoint = DefaultOTLPEndpoint
	}
	if t.SamplingRate == 0 {
		t.SamplingRate = 1.0
	}
	if t.ServiceName == "" {
		t.ServiceName = DefaultServiceName
	}
	if t.Timeout == 0 {
		t.Timeout = DefaultExportTimeout
	}
	if c.Metrics.Endpoint == "" {
		c.Metrics.Endpoint = DefaultMetricsEndpoint
	}
}

// Validate reports settings that cannot work. Disabled sections are not
// checked.
func (c *Config) Validate() error {
	if t := c.Tracing; t.Enabled {
		if t.Exporter != ExporterOTLP && t.Exporter != ExporterStdout {
			return fmt.Errorf("tracing: unsupported exporter %q (supported: %s, %s)", t.Exporter, ExporterOTLP, ExporterStdout)
		}
		if t.SamplingRate < 0 || t.SamplingRate > 1 {
			return fmt.Errorf("tracing: sampling_rate must be between 0 and 1, got %v", t.SamplingRate)
		}
	}
	if m := c.Metrics; m.Enabled && !strings.HasPrefix(m.Endpoint, "/") {
		return fmt.Errorf("metrics: endpoint must be a path, got %q", m.Endpoint)
	}
	return nil
}
