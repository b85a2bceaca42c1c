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
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// schemaKeys are the parts of a reflected schema sent to the model.
var schemaKeys = []string{"type", "properties", "required", "additionalProperties"}

// schemaFor reflects Args into an inline object schema.
func schemaFor[Args any]() (map[string]any, error) {
	r := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	data, err := json.Marshal(r.Reflect(new(Args)))
	if err != nil {
		return nil, err
	}
	var reflected map[string]any
	if err := json.Unmarshal(data, &reflected); err != nil {
		return nil, err
	}
	if reflected["type"] != "object" {
		return nil, fmt.Errorf("arguments must be a struct, got %v", reflected["type"])
	}

	schema := make(map[string]any, len(schemaKeys))
	for _, key := range schemaKeys {
		if v, ok := reflected[key]; ok {
			schema[key] = v
		}
	}
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]any{}
	}
	return schema, nil
}
