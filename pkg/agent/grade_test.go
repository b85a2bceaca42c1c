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
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestParseGrade(t *testing.T) {
	tests := []struct {
		raw      string
		relevant bool
		clear    bool
	}{
		{`{"binary_score": "yes"}`, true, true},
		{`{"binary_score":"no"}`, false, true},
		{"```json\n{\"binary_score\": \"YES\"}\n```", true, true},
		{"yes", true, true},
		{"No.", false, true},
		{"Relevant", true, true},
		{"not relevant", false, true},
		{"maybe", false, false},
		{"", false, false},
		{`{"score": "yes"}`, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			relevant, clear := parseGrade(tt.raw)
			assert.Equal(t, tt.relevant, relevant)
			assert.Equal(t, tt.clear, clear)
		})
	}
}

func TestTruncateTokens(t *testing.T) {
	assert.Equal(t, "short", truncateTokens("short", 100))
	assert.Equal(t, "anything", truncateTokens("anything", 0))

	long := strings.Repeat("word ", 5000)
	out := truncateTokens(long, 100)
	assert.Less(t, len(out), len(long))
	assert.True(t, strings.HasPrefix(long, out))
}

func TestTruncateTokens_KeepsValidUTF8(t *testing.T) {
	long := strings.Repeat("🦀 日本語のドキュメント ", 500)
	for _, limit := range []int{1, 3, 7, 50} {
		out := truncateTokens(long, limit)
		assert.True(t, utf8.ValidString(out), "limit %d", limit)
		assert.True(t, strings.HasPrefix(long, out), "limit %d", limit)
	}
}

func TestTrimPartialRune(t *testing.T) {
	crab := "🦀"
	assert.Equal(t, "ab", trimPartialRune("ab"+crab[:2]))
	assert.Equal(t, "ab"+crab, trimPartialRune("ab"+crab))
	assert.Equal(t, "a\uFFFD", trimPartialRune("a\uFFFD"))
	assert.Equal(t, "", trimPartialRune(crab[:1]))
}

func TestTruncateBytesKeepsRunes(t *testing.T) {
	out := truncateBytes("héllo", 2)
	assert.Equal(t, "h", out)
	assert.Equal(t, "héllo", truncateBytes("héllo", 10))
}

func TestPrompts(t *testing.T) {
	assert.Contains(t, SystemPrompt("examplecom"), "Use the 'examplecom' collection")
	assert.Contains(t, rewritePrompt("why?"), "\n ------- \nwhy?\n ------- \n")
	p := generatePrompt("q?", "ctx")
	assert.Contains(t, p, "Question: q?\nContext: ctx\nAnswer:")
	assert.Contains(t, gradePrompt("q?", "ctx"), "binary_score")
}
