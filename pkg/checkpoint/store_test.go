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

package checkpoint

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/docsagent/pkg/model"
)

func TestMemoryStore_LoadSave(t *testing.T) {
	s := NewMemoryStore()
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	_, ok := s.Load("t1")
	assert.False(t, ok)

	conv := model.Conversation{model.NewSystemMessage("sys"), model.NewUserMessage("hi")}
	s.Save("t1", conv)
	s.Save("t1", append(conv, model.NewAssistantMessage("hello")))

	got, ok := s.Load("t1")
	require.True(t, ok)
	assert.Len(t, got, 3)

	cp, ok := s.Get("t1")
	require.True(t, ok)
	assert.Equal(t, 2, cp.Turns)
	assert.Equal(t, fixed, cp.UpdatedAt)
}

func TestMemoryStore_CopiesOnLoadAndSave(t *testing.T) {
	s := NewMemoryStore()
	conv := model.Conversation{model.NewUserMessage("original")}
	s.Save("t1", conv)

	conv[0].Content = "mutated after save"
	got, _ := s.Load("t1")
	assert.Equal(t, "original", got[0].Content)

	got[0].Content = "mutated after load"
	again, _ := s.Load("t1")
	assert.Equal(t, "original", again[0].Content)
}

func TestMemoryStore_ThreadsAreIndependent(t *testing.T) {
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("thread-%02d", i)
			s.Save(id, model.Conversation{model.NewUserMessage(id)})
			got, ok := s.Load(id)
			assert.True(t, ok)
			assert.Equal(t, id, got[0].Content)
		}(i)
	}
	wg.Wait()

	threads := s.Threads()
	assert.Len(t, threads, 50)
	assert.Equal(t, "thread-00", threads[0])

	s.Delete("thread-00")
	_, ok := s.Load("thread-00")
	assert.False(t, ok)
}
