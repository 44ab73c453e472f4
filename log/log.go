// Copyright 2025 The A2A Authors
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

// Package log provides utilities for attaching an [slog.Logger] configured with
// request-specific attributes to [context.Context]. The logger can later be retrieved
// or used indirectly through package-level logging function calls.
package log

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// AttachLogger creates a new Context with the provided Logger attached.
func AttachLogger(parent context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(parent, loggerKey{}, logger)
}

// LoggerFrom returns the Logger attached to the context or [slog.Default].
func LoggerFrom(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

// Log invokes Log on the [slog.Logger] attached to the context or on [slog.Default].
func Log(ctx context.Context, level slog.Level, msg string, keyValArgs ...any) {
	LoggerFrom(ctx).Log(ctx, level, msg, keyValArgs...)
}

// Debug logs at [slog.LevelDebug].
func Debug(ctx context.Context, msg string, keyValArgs ...any) {
	Log(ctx, slog.LevelDebug, msg, keyValArgs...)
}

// Info logs at [slog.LevelInfo].
func Info(ctx context.Context, msg string, keyValArgs ...any) {
	Log(ctx, slog.LevelInfo, msg, keyValArgs...)
}

// Warn logs at [slog.LevelWarn].
func Warn(ctx context.Context, msg string, keyValArgs ...any) {
	Log(ctx, slog.LevelWarn, msg, keyValArgs...)
}

// Error logs at [slog.LevelError] with the error attached under the "error" key.
func Error(ctx context.Context, msg string, err error, keyValArgs ...any) {
	if err != nil {
		keyValArgs = append(keyValArgs, slog.Any("error", err))
	}
	Log(ctx, slog.LevelError, msg, keyValArgs...)
}
