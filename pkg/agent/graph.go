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

// Package agent runs the documentation assistant's control-flow graph.
//
// Graph:
//
//	agent --tools--> retrieve --> grade --relevant----> generate --> END
//	  ^                             |---irrelevant--> rewrite --+
//	  |                             |---exhausted---> fallback --> END
//	  +-------------------------------------------------------+
//
// agent ends the run when the model answers without tool calls. Each
// visited node appends to the conversation, except grade, which only
// decides. The rewrite loop is bounded by Config.MaxRewrites.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/flyt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/docsagent/pkg/model"
	"github.com/kadirpekel/docsagent/pkg/observability"
	"github.com/kadirpekel/docsagent/pkg/tool"
)

// Defaults.
const (
	DefaultMaxRewrites   = 3
	DefaultCallTimeout   = 60 * time.Second
	DefaultContextTokens = 6000
)

// Config controls graph runs.
type Config struct {
	// MaxRewrites bounds the rewrite loop.
	MaxRewrites int `yaml:"max_rewrites"`

	// CallTimeout bounds each model and tool call.
	CallTimeout time.Duration `yaml:"call_timeout"`

	// ContextTokens caps retrieved context passed to grading and generation.
	ContextTokens int `yaml:"context_tokens"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.MaxRewrites <= 0 {
		c.MaxRewrites = DefaultMaxRewrites
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.ContextTokens <= 0 {
		c.ContextTokens = DefaultContextTokens
	}
}

// Graph holds the dependencies shared by all runs. A fresh flow is built
// for every run, so a Graph is safe for concurrent use.
type Graph struct {
	llm     model.LLM
	tools   *tool.Registry
	cfg     Config
	tracer  trace.Tracer
	metrics *observability.Metrics
}

// Option configures a Graph.
type Option func(*Graph)

// WithObservability records spans and metrics through m.
func WithObservability(m *observability.Manager) Option {
	return func(g *Graph) {
		if m != nil {
			g.tracer = m.Tracer()
			g.metrics = m.Metrics()
		}
	}
}

// NewGraph creates a graph around llm and the tools it may call.
func NewGraph(llm model.LLM, tools *tool.Registry, cfg Config, opts ...Option) (*Graph, error) {
	if llm == nil {
		return nil, fmt.Errorf("agent: llm is required")
	}
	if tools == nil {
		return nil, fmt.Errorf("agent: tool registry is required")
	}
	cfg.SetDefaults()

	noop := observability.NewNoop()
	g := &Graph{
		llm:     llm,
		tools:   tools,
		cfg:     cfg,
		tracer:  noop.Tracer(),
		metrics: noop.Metrics(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Config returns the effective configuration.
func (g *Graph) Config() Config {
	return g.cfg
}

// RunInput is the conversation a run starts from. Its last user message is
// the question of the turn.
type RunInput struct {
	Messages   model.Conversation
	Collection string
}

// RunResult is the outcome of a completed run.
type RunResult struct {
	Messages model.Conversation
	Answer   string
	Rewrites int
	// Visited lists the nodes in visiting order.
	Visited []string
}

// Run executes the graph until it reaches END. Events are sent to emit when
// it is non-nil; model output is streamed only in that case.
func (g *Graph) Run(ctx context.Context, in RunInput, emit Emitter) (*RunResult, error) {
	question, ok := in.Messages.LastOfRole(model.RoleUser)
	if !ok || question.Content == "" {
		return nil, fmt.Errorf("%w: conversation has no user question", ErrInvalidTransition)
	}

	ctx, span := g.tracer.Start(ctx, observability.SpanGraphRun,
		trace.WithAttributes(attribute.String(observability.AttrCollection, in.Collection)))
	defer span.End()

	ctx = tool.WithCollection(ctx, in.Collection)

	state := &runState{
		Collection: in.Collection,
		Messages:   in.Messages.Clone(),
		Question:   question.Content,
		Query:      question.Content,
		Last:       startInput{},
	}
	shared := flyt.NewSharedStore()
	shared.Set(stateKey, state)

	r := &run{graph: g, emit: emit}
	err := r.flow().Run(ctx, shared)
	if err == nil {
		err = checkComplete(state)
	}

	g.metrics.RecordGraphRun(ctx, state.Rewrites, err)
	span.SetAttributes(attribute.Int(observability.AttrRewrites, state.Rewrites))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Debug("Graph run failed", "collection", in.Collection, "visited", state.Visited, "error", err)
		return nil, err
	}

	answer, _ := answerOf(state.Last)
	slog.Debug("Graph run completed", "collection", in.Collection, "visited", state.Visited, "rewrites", state.Rewrites)
	return &RunResult{
		Messages: state.Messages,
		Answer:   answer,
		Rewrites: state.Rewrites,
		Visited:  state.Visited,
	}, nil
}

// checkComplete verifies the run stopped in a terminal node with every
// tool call answered.
func checkComplete(state *runState) error {
	if pending := state.Messages.PendingToolCalls(); len(pending) > 0 {
		return fmt.Errorf("%w: %d pending, first %q", ErrUnansweredToolCall, len(pending), pending[0].Name)
	}
	if _, ok := answerOf(state.Last); !ok {
		return fmt.Errorf("%w: run stopped after %T", ErrInvalidTransition, state.Last)
	}
	return nil
}

func answerOf(record any) (string, bool) {
	switch out := record.(type) {
	case agentOutput:
		if out.Message.HasToolCalls() {
			return "", false
		}
		return out.Message.Content, true
	case generateOutput:
		return out.Answer, true
	case fallbackOutput:
		return out.Answer, true
	}
	return "", false
}

// run is the per-run wiring of nodes to the graph and the event sink.
type run struct {
	graph *Graph
	emit  Emitter
}

func (r *run) flow() *flyt.Flow {
	agent := r.node(NodeAgent, &agentNode{BaseNode: newBaseNode(), r: r})
	retrieve := r.node(NodeRetrieve, &retrieveNode{BaseNode: newBaseNode(), r: r})
	grade := r.node(NodeGrade, &gradeNode{BaseNode: newBaseNode(), r: r})
	rewrite := r.node(NodeRewrite, &rewriteNode{BaseNode: newBaseNode(), r: r})
	generate := r.node(NodeGenerate, &generateNode{BaseNode: newBaseNode(), r: r})
	fallback := r.node(NodeFallback, &fallbackNode{BaseNode: newBaseNode(), r: r})

	flow := flyt.NewFlow(agent)
	flow.Connect(agent, ActionTools, retrieve)
	flow.Connect(retrieve, flyt.DefaultAction, grade)
	flow.Connect(grade, ActionRelevant, generate)
	flow.Connect(grade, ActionIrrelevant, rewrite)
	flow.Connect(grade, ActionExhausted, fallback)
	flow.Connect(rewrite, flyt.DefaultAction, agent)
	return flow
}

// Model and tool calls are never retried.
func newBaseNode() *flyt.BaseNode {
	return flyt.NewBaseNode(flyt.WithMaxRetries(1))
}

func (r *run) node(name string, n flyt.Node) *instrumentedNode {
	return &instrumentedNode{Node: n, name: name, r: r}
}

// instrumentedNode records the visit, emits an info event and traces Exec.
type instrumentedNode struct {
	flyt.Node
	name string
	r    *run
}

func (n *instrumentedNode) Prep(ctx context.Context, shared *flyt.SharedStore) (any, error) {
	state, err := loadState(shared)
	if err != nil {
		return nil, err
	}
	state.Visited = append(state.Visited, n.name)
	n.r.graph.metrics.RecordNodeVisit(ctx, n.name)
	n.r.emit.emit(Event{Type: EventInfo, Node: n.name, Content: "entering " + n.name})
	return n.Node.Prep(ctx, shared)
}

func (n *instrumentedNode) Exec(ctx context.Context, prepResult any) (any, error) {
	ctx, span := n.r.graph.tracer.Start(ctx, observability.SpanGraphNode,
		trace.WithAttributes(attribute.String(observability.AttrNode, n.name)))
	defer span.End()

	result, err := n.Node.Exec(ctx, prepResult)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (n *instrumentedNode) GetMaxRetries() int {
	if rn, ok := n.Node.(flyt.RetryableNode); ok {
		return rn.GetMaxRetries()
	}
	return 1
}

func (n *instrumentedNode) GetWait() time.Duration {
	if rn, ok := n.Node.(flyt.RetryableNode); ok {
		return rn.GetWait()
	}
	return 0
}

// callModel runs one model call under the call timeout. With stream set,
// deltas are forwarded as events when the run has an emitter.
func (r *run) callModel(ctx context.Context, node string, req *model.Request, stream bool) (model.Message, error) {
	g := r.graph
	ctx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()

	ctx, span := g.tracer.Start(ctx, observability.SpanLLMRequest, trace.WithAttributes(
		attribute.String(observability.AttrLLMModel, g.llm.Name()),
		attribute.String(observability.AttrNode, node),
	))
	defer span.End()

	start := time.Now()
	msg, err := r.generate(ctx, node, req, stream && r.emit != nil)
	g.metrics.RecordLLMCall(ctx, g.llm.Name(), time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.Message{}, fmt.Errorf("%s: model call failed: %w", node, err)
	}
	return msg, nil
}

func (r *run) generate(ctx context.Context, node string, req *model.Request, stream bool) (model.Message, error) {
	var final *model.Response
	for resp, err := range r.graph.llm.GenerateContent(ctx, req, stream) {
		if err != nil {
			return model.Message{}, err
		}
		if resp.Partial {
			if resp.Delta != "" {
				r.emit.emit(Event{Type: EventDelta, Node: node, Content: resp.Delta})
			}
			continue
		}
		final = resp
	}
	if final == nil {
		return model.Message{}, model.ErrEmptyResponse
	}
	msg := final.Message
	if msg.Role == "" {
		msg.Role = model.RoleAssistant
	}
	return msg, nil
}
