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
	"encoding/json"
	"strings"
)

type gradeVerdict struct {
	BinaryScore string `json:"binary_score"`
}

// parseGrade interprets the grader output. Anything that is not a clear
// "yes" counts as not relevant.
func parseGrade(raw string) (relevant bool, clear bool) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var v gradeVerdict
	if err := json.Unmarshal([]byte(text), &v); err == nil && v.BinaryScore != "" {
		return scoreOf(v.BinaryScore)
	}
	return scoreOf(text)
}

func scoreOf(s string) (bool, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".!\"' ")
	switch s {
	case "yes", "relevant", "true":
		return true, true
	case "no", "not relevant", "irrelevant", "false":
		return false, true
	}
	return false, false
}
