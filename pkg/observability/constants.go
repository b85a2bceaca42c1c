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

import "time"

// Span and attribute names.
const (
	AttrHTTPMethod     = "http.method"
	AttrHTTPRoute      = "http.route"
	AttrHTTPStatusCode = "http.status_code"
	AttrThreadID       = "agent.thread_id"
	AttrCollection     = "vector.collection"
	AttrNode           = "agent.node"
	AttrToolName       = "tool.name"
	AttrLLMModel       = "llm.model"
	AttrCrawlURL       = "crawl.url"
	AttrErrorType      = "error.type"
	AttrRewrites       = "agent.rewrites"
	AttrOutcome        = "outcome"
	AttrEvent          = "event"

	SpanHTTPRequest  = "http.request"
	SpanGraphRun     = "agent.run"
	SpanGraphNode    = "agent.node"
	SpanToolCall     = "agent.tool_call"
	SpanLLMRequest   = "agent.llm_request"
	SpanCrawlSession = "crawl.session"
)

// Trace exporters.
const (
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
)

// Defaults.
const (
	DefaultServiceName     = "docsagent"
	DefaultMetricsEndpoint = "/metrics"
	DefaultOTLPEndpoint    = "localhost:4317"
	DefaultExportTimeout   = 10 * time.Second

	instrumentationName = "github.com/kadirpekel/docsagent"
)
