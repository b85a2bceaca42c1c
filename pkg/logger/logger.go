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

// Package logger configures the process-wide slog handler.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

const (
	modulePrefix = "github.com/kadirpekel/docsagent"
	moduleDir    = "/docsagent/"
)

// Supported output formats.
const (
	FormatSimple  = "simple"
	FormatVerbose = "verbose"
	FormatJSON    = "json"
)

var (
	defaultLogger *slog.Logger
	level         = new(slog.LevelVar)
)

// ParseLevel converts a string log level to slog.Level.
// Valid levels: debug, info, warn, error
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", levelStr)
	}
}

// SetLevel changes the minimum level of the installed handler.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// Level returns the current minimum level.
func Level() slog.Level {
	return level.Level()
}

// filteringHandler drops third-party records unless the level is DEBUG.
type filteringHandler struct {
	handler slog.Handler
}

func (h *filteringHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.handler.Enabled(ctx, l)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if level.Level() <= slog.LevelDebug || isOwnPackage(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs)}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name)}
}

// isOwnPackage reports whether pc belongs to this module. The PC can land
// inside slog code inlined into the caller, so inlined frames are expanded
// and slog's own frames skipped.
func isOwnPackage(pc uintptr) bool {
	if pc == 0 {
		// Records built without a caller (slog.NewRecord with pc 0) are ours.
		return true
	}
	frames := runtime.CallersFrames([]uintptr{pc})
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "log/slog.") {
			return strings.HasPrefix(frame.Function, modulePrefix) ||
				strings.Contains(frame.File, moduleDir)
		}
		if !more {
			return false
		}
	}
}

// IsTerminal reports whether w is attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// NewHandler builds the handler Init installs, without the filtering layer.
// format: "simple" (level + message + attributes), "verbose" (adds time),
// "json". Terminal writers get colored output.
func NewHandler(output io.Writer, format string) slog.Handler {
	if format == FormatJSON {
		return slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level})
	}

	simple := format != FormatVerbose
	if IsTerminal(output) {
		opts := &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
		}
		if simple {
			opts.ReplaceAttr = dropTime
		}
		return tint.NewHandler(output, opts)
	}

	opts := &slog.HandlerOptions{Level: level}
	if simple {
		opts.ReplaceAttr = dropTime
	}
	return slog.NewTextHandler(output, opts)
}

func dropTime(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && len(groups) == 0 {
		return slog.Attr{}
	}
	return a
}

// Init initializes the logger with the specified level and format.
// Third-party library logs are only shown when level is DEBUG.
func Init(l slog.Level, output io.Writer, format string) {
	level.Set(l)
	defaultLogger = slog.New(&filteringHandler{handler: NewHandler(output, format)})
	slog.SetDefault(defaultLogger)
}

// OpenLogFile opens or creates a log file at the specified path.
// Returns the file handle and a cleanup function, or an error.
func OpenLogFile(path string) (*os.File, func(), error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}
	return file, func() { _ = file.Close() }, nil
}

// GetLogger returns the default logger, initializing it on first use.
func GetLogger() *slog.Logger {
	if defaultLogger == nil {
		Init(slog.LevelInfo, os.Stderr, FormatSimple)
	}
	return defaultLogger
}
