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
	"errors"
	"fmt"

	"github.com/mark3labs/flyt"

	"github.com/kadirpekel/docsagent/pkg/model"
)

// Node names.
const (
	NodeAgent    = "agent"
	NodeRetrieve = "retrieve"
	NodeGrade    = "grade"
	NodeRewrite  = "rewrite"
	NodeGenerate = "generate"
	NodeFallback = "fallback"
)

// Transition actions. ActionDone has no outgoing transition, so a node
// returning it ends the run.
const (
	ActionTools      flyt.Action = "tools"
	ActionRelevant   flyt.Action = "relevant"
	ActionIrrelevant flyt.Action = "irrelevant"
	ActionExhausted  flyt.Action = "exhausted"
	ActionDone       flyt.Action = "done"
)

const stateKey = "run_state"

var (
	// ErrInvalidTransition is returned when a node receives a record it
	// cannot start from.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrUnansweredToolCall is returned when a run would end with tool
	// calls that have no tool message.
	ErrUnansweredToolCall = errors.New("run ended with unanswered tool calls")
)

// runState is the typed state shared by all nodes of one run.
type runState struct {
	Collection string
	Messages   model.Conversation

	// Question is the user question of the current turn. Rewrites
	// replace the question the agent works on but grading and generation
	// always use this one.
	Question string

	// Query is the question the agent currently works on.
	Query string

	Rewrites int

	// Last is the output record of the previous node.
	Last any

	Visited []string
}

func (s *runState) append(msgs ...model.Message) {
	s.Messages = append(s.Messages, msgs...)
}

// Output records. Each node accepts a fixed set of records as input and
// produces exactly one.

// startInput marks the first visit of the agent node.
type startInput struct{}

type agentOutput struct {
	Message model.Message
	// Index of Message in the conversation.
	Index int
}

type retrieveOutput struct {
	// CallIndex is the index of the assistant message whose calls ran.
	CallIndex int
	Results   []model.Message
}

type gradeOutput struct {
	Relevant bool
	Context  string
}

type rewriteOutput struct {
	Question string
}

type generateOutput struct {
	Answer string
}

type fallbackOutput struct {
	Answer string
}

func loadState(shared *flyt.SharedStore) (*runState, error) {
	v, ok := shared.Get(stateKey)
	if !ok {
		return nil, fmt.Errorf("%w: run state missing", ErrInvalidTransition)
	}
	state, ok := v.(*runState)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected run state %T", ErrInvalidTransition, v)
	}
	return state, nil
}

func unexpected(node string, record any) error {
	return fmt.Errorf("%w: %s cannot follow %T", ErrInvalidTransition, node, record)
}
