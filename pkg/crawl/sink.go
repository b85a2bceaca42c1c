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

package crawl

import (
	"context"
	"log/slog"
)

// EventType is the kind of a relayed event.
type EventType string

const (
	EventStarted  EventType = "started"
	EventDocument EventType = "document"
	EventError    EventType = "error"
	EventDone     EventType = "done"
)

// Event is forwarded to the client.
type Event struct {
	Type EventType

	// Message is set on started.
	Message string
	// Collection is set on started.
	Collection string
	// URL is the page of a document event.
	URL string
	// Error is set on error.
	Error string
	// Status is set on done.
	Status string
}

// Sink receives relayed events. Send and Heartbeat may be called from
// different goroutines; implementations serialize their writes.
type Sink interface {
	// Send forwards ev. An error means the client is gone.
	Send(ctx context.Context, ev Event) error

	// Heartbeat writes a keep-alive. Errors never end the session.
	Heartbeat(ctx context.Context) error
}

// Discard drops events, logging them at debug level. It serves crawls
// started in the background.
var Discard Sink = discardSink{}

type discardSink struct{}

func (discardSink) Send(ctx context.Context, ev Event) error {
	slog.Debug("Crawl event", "event", ev.Type, "url", ev.URL, "error", ev.Error, "status", ev.Status)
	return nil
}

func (discardSink) Heartbeat(context.Context) error { return nil }

// SinkFunc adapts a function to a Sink without heartbeats.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Send(ctx context.Context, ev Event) error { return f(ctx, ev) }
func (f SinkFunc) Heartbeat(context.Context) error          { return nil }
