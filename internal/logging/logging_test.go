package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestInitText(t *testing.T) {
	Init("info", "text")
	if slog.Default() == nil {
		t.Fatal("default logger nil after Init")
	}
}

func TestInitJSON(t *testing.T) {
	Init("debug", "json")
	if slog.Default() == nil {
		t.Fatal("default logger nil after Init")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"  Error  ", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q): got %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestSetLevel(t *testing.T) {
	SetLevel(slog.LevelWarn)
	if level.Level() != slog.LevelWarn {
		t.Errorf("SetLevel(Warn): got %v", level.Level())
	}
	SetLevel(slog.LevelInfo)
}

func TestForTagsComponent(t *testing.T) {
	c := CaptureForTest()
	defer c.Restore()

	For("bus").Info("watcher dropped")

	if !c.Has(slog.LevelInfo, "watcher dropped") {
		t.Error("message not captured")
	}
	if !c.HasAttr("component", "bus") {
		t.Error("component attribute missing")
	}
}

func TestDeferredHandlerEnabled(t *testing.T) {
	Init("warn", "text")
	defer SetLevel(slog.LevelInfo)

	h := &deferredHandler{component: "table"}
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug enabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error not enabled at warn level")
	}
}

func TestDeferredHandlerWithAttrsAndGroup(t *testing.T) {
	h := &deferredHandler{component: "table"}
	if h.WithAttrs([]slog.Attr{slog.String("k", "v")}) != slog.Handler(h) {
		t.Error("WithAttrs should return the same handler")
	}
	if h.WithGroup("grp") != slog.Handler(h) {
		t.Error("WithGroup should return the same handler")
	}
}

func TestCaptureQueries(t *testing.T) {
	c := CaptureForTest()
	defer c.Restore()

	slog.Info("hello")
	slog.Warn("slow watcher")
	slog.Debug("shard detail")

	if got := len(c.Records()); got != 3 {
		t.Fatalf("expected 3 records, got %d", got)
	}
	if !c.Has(slog.LevelInfo, "hello") {
		t.Error("missing info 'hello'")
	}
	if !c.Has(slog.LevelWarn, "slow") {
		t.Error("missing warn 'slow'")
	}
	if c.Has(slog.LevelError, "hello") {
		t.Error("matched wrong level")
	}
	if c.Has(slog.LevelInfo, "nonexistent") {
		t.Error("matched nonexistent message")
	}
	if c.Count(slog.LevelInfo) != 1 || c.Count(slog.LevelWarn) != 1 || c.Count(slog.LevelDebug) != 1 {
		t.Errorf("counts off: info=%d warn=%d debug=%d",
			c.Count(slog.LevelInfo), c.Count(slog.LevelWarn), c.Count(slog.LevelDebug))
	}
	if c.Count(slog.LevelError) != 0 {
		t.Errorf("expected 0 errors, got %d", c.Count(slog.LevelError))
	}
}

func TestCaptureRestore(t *testing.T) {
	prev := slog.Default()
	c := CaptureForTest()
	c.Restore()

	if slog.Default() != prev {
		t.Error("default logger not restored")
	}
}

func TestCaptureHandlerWithAttrsAndGroup(t *testing.T) {
	h := &captureHandler{capture: &Capture{}}

	h2, ok := h.WithAttrs([]slog.Attr{slog.String("k", "v")}).(*captureHandler)
	if !ok {
		t.Fatal("WithAttrs should return *captureHandler")
	}
	if len(h2.attrs) != 1 {
		t.Errorf("expected 1 attr, got %d", len(h2.attrs))
	}

	h3, ok := h.WithGroup("grp").(*captureHandler)
	if !ok {
		t.Fatal("WithGroup should return *captureHandler")
	}
	if h3.group != "grp" {
		t.Errorf("expected group 'grp', got %q", h3.group)
	}
}
