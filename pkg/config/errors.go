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

package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ConfigurationError reports missing or invalid configuration. Fields
// holds environment variable names where one exists, dotted YAML paths
// otherwise.
type ConfigurationError struct {
	Fields []string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error: missing or invalid %s: %v", strings.Join(e.Fields, ", "), e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(fieldName)
	})
	return validate
}

// fieldName names a field by its env tag, falling back to its yaml key.
func fieldName(f reflect.StructField) string {
	if env := f.Tag.Get("env"); env != "" {
		return env
	}
	name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
	if name == "-" {
		return "-"
	}
	return name
}

// structErrors validates c and returns the failing field names with a
// description of each failure.
func structErrors(c *Config) (fields, details []string) {
	err := getValidator().Struct(c)
	if err == nil {
		return nil, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{"config"}, []string{err.Error()}
	}
	for _, fe := range verrs {
		name := fe.Field()
		if name != strings.ToUpper(name) {
			// No env binding, use the YAML path.
			name = strings.TrimPrefix(fe.Namespace(), "Config.")
		}
		fields = append(fields, name)
		details = append(details, describe(name, fe))
	}
	return fields, details
}

func describe(name string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "url":
		return fmt.Sprintf("%s must be a URL, got %q", name, fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", name, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s=%s, got %v", name, fe.Tag(), fe.Param(), fe.Value())
	}
}
