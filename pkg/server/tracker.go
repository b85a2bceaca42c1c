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

package server

import (
	"context"
	"errors"
	"sync"
)

var errShuttingDown = errors.New("server is shutting down")

// tracker runs background jobs that outlive their request. Jobs share a
// context cancelled only when a drain times out.
type tracker struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	wg     sync.WaitGroup
	active int
	closed bool
}

func newTracker() *tracker {
	ctx, cancel := context.WithCancel(context.Background())
	return &tracker{ctx: ctx, cancel: cancel}
}

// Go starts fn unless the tracker is draining.
func (t *tracker) Go(fn func(ctx context.Context)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errShuttingDown
	}
	t.active++
	t.wg.Add(1)
	go func() {
		defer func() {
			t.mu.Lock()
			t.active--
			t.mu.Unlock()
			t.wg.Done()
		}()
		fn(t.ctx)
	}()
	return nil
}

// Active returns the number of running jobs.
func (t *tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Drain refuses new jobs and waits for running ones. When ctx ends first
// the jobs are cancelled and awaited, and ctx's error is returned.
func (t *tracker) Drain(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.cancel()
		return nil
	case <-ctx.Done():
		t.cancel()
		<-done
		return ctx.Err()
	}
}
