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

// Package checkpoint keeps the conversation of each chat thread between
// turns.
//
// Architecture:
//
//	thread id -> Checkpoint{Messages, Turns, UpdatedAt}
//
// Threads are independent: a load or save on one thread never touches
// another. Conversations are copied on the way in and out so callers can
// mutate what they get back.
package checkpoint

import (
	"sort"
	"sync"
	"time"

	"github.com/kadirpekel/docsagent/pkg/model"
)

// Checkpoint is the saved state of one thread.
type Checkpoint struct {
	ThreadID  string
	Messages  model.Conversation
	Turns     int
	UpdatedAt time.Time
}

// Store maps thread ids to conversations. Implementations must be safe
// for concurrent use.
type Store interface {
	// Load returns the conversation of threadID and whether it exists.
	Load(threadID string) (model.Conversation, bool)

	// Save replaces the conversation of threadID.
	Save(threadID string, messages model.Conversation)

	// Delete forgets threadID.
	Delete(threadID string)

	// Threads lists known thread ids in sorted order.
	Threads() []string
}

// MemoryStore is an in-process Store. State is lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*Checkpoint
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads: make(map[string]*Checkpoint),
		now:     time.Now,
	}
}

func (s *MemoryStore) Load(threadID string) (model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.threads[threadID]
	if !ok {
		return nil, false
	}
	return cp.Messages.Clone(), true
}

func (s *MemoryStore) Save(threadID string, messages model.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.threads[threadID]
	if !ok {
		cp = &Checkpoint{ThreadID: threadID}
		s.threads[threadID] = cp
	}
	cp.Messages = messages.Clone()
	cp.Turns++
	cp.UpdatedAt = s.now()
}

func (s *MemoryStore) Delete(threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
}

func (s *MemoryStore) Threads() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.threads))
	for id := range s.threads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Get returns a copy of the full checkpoint of threadID.
func (s *MemoryStore) Get(threadID string) (Checkpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.threads[threadID]
	if !ok {
		return Checkpoint{}, false
	}
	out := *cp
	out.Messages = cp.Messages.Clone()
	return out, true
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
