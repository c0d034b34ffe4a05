package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"warren/table"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Console.Listen != "127.0.0.1:2222" {
		t.Errorf("Console.Listen: got %q, want 127.0.0.1:2222", cfg.Console.Listen)
	}
	if cfg.Node.DataDir != "~/.warren" {
		t.Errorf("DataDir: got %q, want ~/.warren", cfg.Node.DataDir)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging defaults: got %+v", cfg.Logging)
	}
	if cfg.Store.DeleteNotify != "always" {
		t.Errorf("Store.DeleteNotify: got %q, want always", cfg.Store.DeleteNotify)
	}
	if cfg.Metrics.Listen != "" {
		t.Errorf("Metrics.Listen: got %q, want disabled", cfg.Metrics.Listen)
	}
	if cfg.Node.Name == "" {
		t.Error("Node.Name should default to hostname")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadNoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Console.Listen == "" {
		t.Error("expected default console listen")
	}
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	doc := `
[node]
name = "kv-1"
data_dir = "/tmp/warren-test"

[logging]
level = "debug"
format = "json"

[store]
delete_notify = "existing"
watch_buffer = 128

[console]
listen = "127.0.0.1:3333"
authorized_keys = "/tmp/warren-test/authorized_keys"

[metrics]
listen = "127.0.0.1:9600"

[[bucket]]
name = "orders"
shards = 32

[[bucket]]
name = "sessions"
kind = "set"
access = "shared"
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Node.Name != "kv-1" {
		t.Errorf("Node.Name: got %q, want kv-1", cfg.Node.Name)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging: got %+v", cfg.Logging)
	}
	if cfg.Store.DeleteNotify != "existing" || cfg.Store.WatchBuffer != 128 {
		t.Errorf("Store: got %+v", cfg.Store)
	}
	if cfg.Console.Listen != "127.0.0.1:3333" {
		t.Errorf("Console.Listen: got %q", cfg.Console.Listen)
	}
	if cfg.Metrics.Listen != "127.0.0.1:9600" {
		t.Errorf("Metrics.Listen: got %q", cfg.Metrics.Listen)
	}
	if len(cfg.Buckets) != 2 {
		t.Fatalf("Buckets: got %v", cfg.Buckets)
	}
	if cfg.Buckets[0].Name != "orders" || cfg.Buckets[0].Shards != 32 {
		t.Errorf("Buckets[0]: got %+v", cfg.Buckets[0])
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoadBadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(path, []byte("{{invalid"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid TOML")
	}
}

func TestValidateInvalidConsoleListen(t *testing.T) {
	tests := []struct {
		name   string
		listen string
	}{
		{"missing port", "localhost"},
		{"colon only", ":"},
		{"empty host", ":2222"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Console.Listen = tt.listen

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), "console.listen") {
				t.Errorf("error should mention 'console.listen': %v", err)
			}
		})
	}
}

func TestValidateEmptyListenersDisable(t *testing.T) {
	cfg := Defaults()
	cfg.Console.Listen = ""
	cfg.Metrics.Listen = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty listeners should be valid (disabled): %v", err)
	}
}

func TestValidateInvalidMetricsListen(t *testing.T) {
	cfg := Defaults()
	cfg.Metrics.Listen = "no-port"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "metrics.listen") {
		t.Errorf("error should mention 'metrics.listen': %v", err)
	}
}

func TestValidateLogLevel(t *testing.T) {
	tests := []struct {
		level   string
		wantErr bool
	}{
		{"debug", false},
		{"info", false},
		{"warn", false},
		{"warning", false},
		{"error", false},
		{"DEBUG", false},
		{"  Error  ", false},
		{"", false},
		{"unknown", true},
		{"trace", true},
		{"fatal", true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := Defaults()
			cfg.Logging.Level = tt.level

			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !strings.Contains(err.Error(), "logging.level") {
					t.Errorf("error should mention 'logging.level': %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateLogFormat(t *testing.T) {
	cfg := Defaults()
	cfg.Logging.Format = "yaml"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "logging.format") {
		t.Errorf("error should mention 'logging.format': %v", err)
	}
}

func TestValidateStoreSection(t *testing.T) {
	cfg := Defaults()
	cfg.Store.DeleteNotify = "sometimes"
	cfg.Store.WatchBuffer = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"store.delete_notify", "store.watch_buffer"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestValidateBuckets(t *testing.T) {
	tests := []struct {
		name    string
		buckets []BucketConfig
		want    string
	}{
		{"empty name", []BucketConfig{{Name: ""}}, "bucket[0].name"},
		{"duplicate", []BucketConfig{{Name: "a"}, {Name: "a"}}, "bucket[1].name"},
		{"negative shards", []BucketConfig{{Name: "a", Shards: -2}}, "bucket[0].shards"},
		{"unknown kind", []BucketConfig{{Name: "a", Kind: "ordered_set"}}, "bucket[0].kind"},
		{"bag kind", []BucketConfig{{Name: "a", Kind: "bag"}}, "bucket[0].kind"},
		{"unknown access", []BucketConfig{{Name: "a", Access: "protected"}}, "bucket[0].access"},
		{"private access", []BucketConfig{{Name: "a", Access: "private"}}, "bucket[0].access"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Buckets = tt.buckets

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error should mention %q: %v", tt.want, err)
			}
		})
	}
}

func TestValidateMultipleErrors(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "loud", Format: "yaml"},
		Store:   StoreConfig{DeleteNotify: "sometimes"},
		Console: ConsoleConfig{Listen: "no-port"},
		Metrics: MetricsConfig{Listen: ":9600"},
		Buckets: []BucketConfig{{Name: "", Kind: "bag"}},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	errStr := err.Error()
	for _, want := range []string{
		"logging.level",
		"logging.format",
		"store.delete_notify",
		"console.listen",
		"metrics.listen",
		"bucket[0].name",
	} {
		if !strings.Contains(errStr, want) {
			t.Errorf("error missing %q: %v", want, errStr)
		}
	}
}

func TestBucketTableConfig(t *testing.T) {
	b := BucketConfig{Name: "orders", Shards: 32, Kind: "set", Access: "shared"}
	cfg := b.TableConfig()
	if cfg.Shards != 32 {
		t.Errorf("Shards: got %d, want 32", cfg.Shards)
	}
	if cfg.Kind != table.KindSet || cfg.Access != table.AccessShared {
		t.Errorf("TableConfig: got %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("converted config should validate: %v", err)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}

	got := ExpandHome("~/foo/bar")
	want := filepath.Join(home, "foo/bar")
	if got != want {
		t.Errorf("ExpandHome: got %q, want %q", got, want)
	}

	if got := ExpandHome("/absolute/path"); got != "/absolute/path" {
		t.Errorf("ExpandHome: got %q, want /absolute/path", got)
	}
}
