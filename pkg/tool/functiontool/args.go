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

package functiontool

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// decodeArgs decodes model-supplied arguments into target using the json
// field names. Numbers arrive as float64 and are narrowed to the field type.
func decodeArgs(args map[string]any, target any) error {
	if args == nil {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "json",
		Result:     target,
		Squash:     true,
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		ZeroFields: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return dec.Decode(args)
}
