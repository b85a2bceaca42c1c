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

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/flyt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/docsagent/pkg/model"
	"github.com/kadirpekel/docsagent/pkg/observability"
	"github.com/kadirpekel/docsagent/pkg/tool"
)

var zeroTemperature = new(float64)

// agentNode asks the model, bound to the tools, for the next step.
type agentNode struct {
	*flyt.BaseNode
	r *run
}

func (n *agentNode) Prep(ctx context.Context, shared *flyt.SharedStore) (any, error) {
	state, err := loadState(shared)
	if err != nil {
		return nil, err
	}
	switch state.Last.(type) {
	case startInput, rewriteOutput:
	default:
		return nil, unexpected(NodeAgent, state.Last)
	}
	return &model.Request{
		Messages: state.Messages.Clone(),
		Tools:    n.r.graph.tools.Definitions(),
	}, nil
}

func (n *agentNode) Exec(ctx context.Context, prepResult any) (any, error) {
	return n.r.callModel(ctx, NodeAgent, prepResult.(*model.Request), true)
}

func (n *agentNode) Post(ctx context.Context, shared *flyt.SharedStore, prepResult, execResult any) (flyt.Action, error) {
	state, err := loadState(shared)
	if err != nil {
		return "", err
	}
	msg := execResult.(model.Message)
	state.append(msg)
	state.Last = agentOutput{Message: msg, Index: len(state.Messages) - 1}

	if msg.HasToolCalls() {
		names := make([]string, 0, len(msg.ToolCalls))
		for _, call := range msg.ToolCalls {
			names = append(names, call.Name)
		}
		n.r.emit.emit(Event{Type: EventInfo, Node: NodeAgent, Content: "calling tools: " + strings.Join(names, ", ")})
		return ActionTools, nil
	}
	return ActionDone, nil
}

// boundCall is a tool call resolved against the registry.
type boundCall struct {
	call model.ToolCall
	tool tool.Tool
}

type retrieveInput struct {
	callIndex int
	calls     []boundCall
}

// retrieveNode runs every requested tool in order and answers each call
// with one tool message.
type retrieveNode struct {
	*flyt.BaseNode
	r *run
}

func (n *retrieveNode) Prep(ctx context.Context, shared *flyt.SharedStore) (any, error) {
	state, err := loadState(shared)
	if err != nil {
		return nil, err
	}
	out, ok := state.Last.(agentOutput)
	if !ok || !out.Message.HasToolCalls() {
		return nil, unexpected(NodeRetrieve, state.Last)
	}

	// Resolve everything first so an unknown tool fails before any runs.
	in := retrieveInput{callIndex: out.Index}
	for _, call := range out.Message.ToolCalls {
		t, err := n.r.graph.tools.Get(call.Name)
		if err != nil {
			return nil, err
		}
		in.calls = append(in.calls, boundCall{call: call, tool: t})
	}
	return in, nil
}

func (n *retrieveNode) Exec(ctx context.Context, prepResult any) (any, error) {
	in := prepResult.(retrieveInput)
	results := make([]model.Message, 0, len(in.calls))
	for _, bc := range in.calls {
		content, err := n.r.callTool(ctx, bc)
		if err != nil {
			return nil, err
		}
		results = append(results, model.NewToolMessage(bc.call, content))
	}
	return retrieveOutput{CallIndex: in.callIndex, Results: results}, nil
}

func (n *retrieveNode) Post(ctx context.Context, shared *flyt.SharedStore, prepResult, execResult any) (flyt.Action, error) {
	state, err := loadState(shared)
	if err != nil {
		return "", err
	}
	out := execResult.(retrieveOutput)
	state.append(out.Results...)
	state.Last = out
	return flyt.DefaultAction, nil
}

func (r *run) callTool(ctx context.Context, bc boundCall) (string, error) {
	g := r.graph
	ctx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()

	ctx, span := g.tracer.Start(ctx, observability.SpanToolCall,
		trace.WithAttributes(attribute.String(observability.AttrToolName, bc.call.Name)))
	defer span.End()

	start := time.Now()
	content, err := bc.tool.Call(ctx, bc.call.Args)
	g.metrics.RecordToolCall(ctx, bc.call.Name, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("tool %s failed: %w", bc.call.Name, err)
	}

	slog.Debug("Tool call completed", "tool", bc.call.Name, "duration", time.Since(start), "bytes", len(content))
	r.emit.emit(Event{Type: EventInfo, Node: NodeRetrieve, Content: bc.call.Name + " returned results"})
	return content, nil
}

type gradeInput struct {
	question string
	context  string
}

// gradeNode classifies the retrieved content against the question of the
// turn. It appends nothing to the conversation.
type gradeNode struct {
	*flyt.BaseNode
	r *run
}

func (n *gradeNode) Prep(ctx context.Context, shared *flyt.SharedStore) (any, error) {
	state, err := loadState(shared)
	if err != nil {
		return nil, err
	}
	out, ok := state.Last.(retrieveOutput)
	if !ok {
		return nil, unexpected(NodeGrade, state.Last)
	}
	return gradeInput{
		question: state.Question,
		context:  retrievedContext(out.Results, n.r.graph.cfg.ContextTokens),
	}, nil
}

func (n *gradeNode) Exec(ctx context.Context, prepResult any) (any, error) {
	in := prepResult.(gradeInput)
	msg, err := n.r.callModel(ctx, NodeGrade, &model.Request{
		Messages:    []model.Message{model.NewUserMessage(gradePrompt(in.question, in.context))},
		JSONMode:    true,
		Temperature: zeroTemperature,
	}, false)
	if err != nil {
		return nil, err
	}

	relevant, clear := parseGrade(msg.Content)
	if !clear {
		slog.Warn("Ambiguous relevance grade, treating as not relevant", "output", msg.Content)
	}
	return gradeOutput{Relevant: relevant, Context: in.context}, nil
}

func (n *gradeNode) Post(ctx context.Context, shared *flyt.SharedStore, prepResult, execResult any) (flyt.Action, error) {
	state, err := loadState(shared)
	if err != nil {
		return "", err
	}
	out := execResult.(gradeOutput)
	state.Last = out

	switch {
	case out.Relevant:
		n.r.emit.emit(Event{Type: EventInfo, Node: NodeGrade, Content: "retrieved documents are relevant"})
		return ActionRelevant, nil
	case state.Rewrites >= n.r.graph.cfg.MaxRewrites:
		n.r.emit.emit(Event{Type: EventInfo, Node: NodeGrade, Content: "retrieved documents are not relevant, no rewrites left"})
		return ActionExhausted, nil
	default:
		n.r.emit.emit(Event{Type: EventInfo, Node: NodeGrade, Content: "retrieved documents are not relevant"})
		return ActionIrrelevant, nil
	}
}

// rewriteNode reformulates the question of the turn and appends it as a
// user message for the next agent visit.
type rewriteNode struct {
	*flyt.BaseNode
	r *run
}

func (n *rewriteNode) Prep(ctx context.Context, shared *flyt.SharedStore) (any, error) {
	state, err := loadState(shared)
	if err != nil {
		return nil, err
	}
	out, ok := state.Last.(gradeOutput)
	if !ok || out.Relevant {
		return nil, unexpected(NodeRewrite, state.Last)
	}
	return state.Question, nil
}

func (n *rewriteNode) Exec(ctx context.Context, prepResult any) (any, error) {
	question := prepResult.(string)
	msg, err := n.r.callModel(ctx, NodeRewrite, &model.Request{
		Messages:    []model.Message{model.NewUserMessage(rewritePrompt(question))},
		Temperature: zeroTemperature,
	}, false)
	if err != nil {
		return nil, err
	}
	improved := strings.TrimSpace(msg.Content)
	if improved == "" {
		improved = question
	}
	return rewriteOutput{Question: improved}, nil
}

func (n *rewriteNode) Post(ctx context.Context, shared *flyt.SharedStore, prepResult, execResult any) (flyt.Action, error) {
	state, err := loadState(shared)
	if err != nil {
		return "", err
	}
	out := execResult.(rewriteOutput)
	state.Rewrites++
	state.Query = out.Question
	state.append(model.NewUserMessage(out.Question))
	state.Last = out
	n.r.emit.emit(Event{Type: EventInfo, Node: NodeRewrite, Content: "rewrote question: " + out.Question})
	return flyt.DefaultAction, nil
}

// generateNode answers the question from the graded context.
type generateNode struct {
	*flyt.BaseNode
	r *run
}

func (n *generateNode) Prep(ctx context.Context, shared *flyt.SharedStore) (any, error) {
	state, err := loadState(shared)
	if err != nil {
		return nil, err
	}
	out, ok := state.Last.(gradeOutput)
	if !ok || !out.Relevant {
		return nil, unexpected(NodeGenerate, state.Last)
	}
	return gradeInput{question: state.Question, context: out.Context}, nil
}

func (n *generateNode) Exec(ctx context.Context, prepResult any) (any, error) {
	in := prepResult.(gradeInput)
	msg, err := n.r.callModel(ctx, NodeGenerate, &model.Request{
		Messages:    []model.Message{model.NewUserMessage(generatePrompt(in.question, in.context))},
		Temperature: zeroTemperature,
	}, true)
	if err != nil {
		return nil, err
	}
	return generateOutput{Answer: msg.Content}, nil
}

func (n *generateNode) Post(ctx context.Context, shared *flyt.SharedStore, prepResult, execResult any) (flyt.Action, error) {
	state, err := loadState(shared)
	if err != nil {
		return "", err
	}
	out := execResult.(generateOutput)
	state.append(model.NewAssistantMessage(out.Answer))
	state.Last = out
	return ActionDone, nil
}

// fallbackNode closes a run whose rewrite budget is spent.
type fallbackNode struct {
	*flyt.BaseNode
	r *run
}

func (n *fallbackNode) Prep(ctx context.Context, shared *flyt.SharedStore) (any, error) {
	state, err := loadState(shared)
	if err != nil {
		return nil, err
	}
	out, ok := state.Last.(gradeOutput)
	if !ok || out.Relevant {
		return nil, unexpected(NodeFallback, state.Last)
	}
	return nil, nil
}

func (n *fallbackNode) Exec(ctx context.Context, prepResult any) (any, error) {
	return fallbackOutput{Answer: NoAnswer}, nil
}

func (n *fallbackNode) Post(ctx context.Context, shared *flyt.SharedStore, prepResult, execResult any) (flyt.Action, error) {
	state, err := loadState(shared)
	if err != nil {
		return "", err
	}
	out := execResult.(fallbackOutput)
	state.append(model.NewAssistantMessage(out.Answer))
	state.Last = out
	n.r.emit.emit(Event{Type: EventDelta, Node: NodeFallback, Content: out.Answer})
	return ActionDone, nil
}

// retrievedContext joins tool results and caps them to limit tokens.
func retrievedContext(results []model.Message, limit int) string {
	parts := make([]string, 0, len(results))
	for _, m := range results {
		if s := strings.TrimSpace(m.Content); s != "" {
			parts = append(parts, s)
		}
	}
	return truncateTokens(strings.Join(parts, "\n\n"), limit)
}
