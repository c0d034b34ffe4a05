// Package logging configures the process-wide slog handler and hands out
// component-tagged loggers for the store, bus, console and daemon.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

var level = new(slog.LevelVar) // adjustable at runtime via SetLevel

// Init installs the global slog handler. Call once at startup.
// levelStr is one of "debug", "info", "warn", "error" (default "info");
// format is "text" or "json" (default "text"). Output goes to stderr.
func Init(levelStr, format string) {
	level.Set(parseLevel(levelStr))

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// For returns a logger tagged with component. The logger delegates to
// slog.Default() on every call, so swapping the global default (Init in
// main, CaptureForTest in tests, or the embedding process's own setup)
// takes effect immediately even for package-level logger variables.
func For(component string) *slog.Logger {
	return slog.New(&deferredHandler{component: component})
}

// SetLevel adjusts the minimum level at runtime.
func SetLevel(l slog.Level) {
	level.Set(l)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// deferredHandler resolves slog.Default() per call instead of capturing a
// handler at construction, adding a "component" attribute to each record.
type deferredHandler struct {
	component string
}

func (h *deferredHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return slog.Default().Handler().Enabled(ctx, l)
}

func (h *deferredHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(slog.String("component", h.component))
	return slog.Default().Handler().Handle(ctx, r)
}

func (h *deferredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *deferredHandler) WithGroup(name string) slog.Handler {
	return h
}
