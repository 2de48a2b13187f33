// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSlogHandlerWritesToZerolog(t *testing.T) {
	var buf bytes.Buffer
	handler := NewSlogHandlerWithLogger(NewTestLogger(&buf))
	logger := slog.New(handler)

	logger.Info("supervisor started", slog.String("service", "http-server"))

	out := buf.String()
	if !strings.Contains(out, `"service":"http-server"`) {
		t.Errorf("expected attribute in output, got %q", out)
	}
	if !strings.Contains(out, `"message":"supervisor started"`) {
		t.Errorf("expected message in output, got %q", out)
	}
}

func TestSlogHandlerLevels(t *testing.T) {
	tests := []struct {
		name  string
		fn    func(*slog.Logger)
		level string
	}{
		{"debug", func(l *slog.Logger) { l.Debug("m") }, "debug"},
		{"info", func(l *slog.Logger) { l.Info("m") }, "info"},
		{"warn", func(l *slog.Logger) { l.Warn("m") }, "warn"},
		{"error", func(l *slog.Logger) { l.Error("m") }, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(NewSlogHandlerWithLogger(NewTestLogger(&buf)))
			tt.fn(logger)
			if !strings.Contains(buf.String(), `"level":"`+tt.level+`"`) {
				t.Errorf("expected level %q, got %q", tt.level, buf.String())
			}
		})
	}
}

func TestSlogHandlerGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewSlogHandlerWithLogger(NewTestLogger(&buf)))

	logger.WithGroup("fetch").Info("done", slog.Int("pages", 3))

	if !strings.Contains(buf.String(), `"fetch.pages":3`) {
		t.Errorf("expected grouped attribute, got %q", buf.String())
	}
}

func TestSlogHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(NewSlogHandlerWithLogger(NewTestLogger(&buf)))
	logger := base.With(slog.String("component", "sweeper"))

	logger.Info("tick")

	if !strings.Contains(buf.String(), `"component":"sweeper"`) {
		t.Errorf("expected pre-configured attribute, got %q", buf.String())
	}
}
