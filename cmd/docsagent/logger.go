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

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/kadirpekel/docsagent/pkg/config"
	"github.com/kadirpekel/docsagent/pkg/logger"
)

const (
	// LogFileEnvVar is the environment variable name for log file path
	LogFileEnvVar = "LOG_FILE"
	// LogLevelEnvVar is the environment variable name for log level
	LogLevelEnvVar = "LOG_LEVEL"
	// LogFormatEnvVar is the environment variable name for log format
	LogFormatEnvVar = "LOG_FORMAT"
)

// initLogger initializes the logger from CLI flags and environment variables.
// Priority: CLI flags > env vars > defaults
func initLogger(cliLevel, cliFile, cliFormat string) (func(), error) {
	level, err := logger.ParseLevel(firstNonEmpty(cliLevel, os.Getenv(LogLevelEnvVar), "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	format := firstNonEmpty(cliFormat, os.Getenv(LogFormatEnvVar), logger.FormatSimple)

	var (
		output  io.Writer = os.Stderr
		cleanup func()
	)
	if path := firstNonEmpty(cliFile, os.Getenv(LogFileEnvVar)); path != "" {
		file, closeFn, err := logger.OpenLogFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output, cleanup = file, closeFn
	}

	logger.Init(level, output, format)
	return cleanup, nil
}

// applyLogLevel applies the config file level unless the flag set one.
func applyLogLevel(cliLevel string, cfg config.LoggerConfig) error {
	if cliLevel != "" || cfg.Level == "" {
		return nil
	}
	level, err := logger.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(level)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
