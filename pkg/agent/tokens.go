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
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const contextEncoding = "cl100k_base"

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

func loadEncoding() *tiktoken.Tiktoken {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(contextEncoding)
		if err != nil {
			slog.Warn("Token encoding unavailable, truncating by bytes", "encoding", contextEncoding, "error", err)
			return
		}
		encoding = enc
	})
	return encoding
}

// truncateTokens cuts text to at most limit tokens. Without an encoding it
// falls back to roughly four bytes per token. limit <= 0 disables it.
func truncateTokens(text string, limit int) string {
	// A token is at least one byte.
	if limit <= 0 || len(text) <= limit {
		return text
	}
	enc := loadEncoding()
	if enc == nil {
		return truncateBytes(text, limit*4)
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= limit {
		return text
	}
	// A token boundary can fall inside a multibyte rune.
	return trimPartialRune(enc.Decode(tokens[:limit]))
}

// trimPartialRune drops trailing bytes that do not form a complete rune.
func trimPartialRune(s string) string {
	for len(s) > 0 {
		r, size := utf8.DecodeLastRuneInString(s)
		if r != utf8.RuneError || size != 1 {
			break
		}
		s = s[:len(s)-1]
	}
	return s
}

func truncateBytes(text string, n int) string {
	if len(text) <= n {
		return text
	}
	// Step back to a rune boundary.
	for n > 0 && n < len(text) && text[n]&0xC0 == 0x80 {
		n--
	}
	return text[:n]
}
