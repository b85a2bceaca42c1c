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

// EventType classifies run events.
type EventType string

const (
	// EventInfo reports progress, such as a node being entered.
	EventInfo EventType = "info"
	// EventDelta carries streamed model output.
	EventDelta EventType = "delta"
	// EventFinal carries the answer of the turn.
	EventFinal EventType = "final"
	// EventError is the terminal event of a failed run.
	EventError EventType = "error"
)

// Event is emitted while a run progresses.
type Event struct {
	Type    EventType
	Node    string
	Content string
}

// Emitter receives run events. Emitters are called from the goroutine
// running the graph.
type Emitter func(Event)

func (e Emitter) emit(ev Event) {
	if e != nil {
		e(ev)
	}
}
