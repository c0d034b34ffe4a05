// Package config loads and validates the warrend daemon configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"warren/table"
)

type Config struct {
	Node    NodeConfig     `toml:"node"`
	Logging LoggingConfig  `toml:"logging"`
	Store   StoreConfig    `toml:"store"`
	Console ConsoleConfig  `toml:"console"`
	Metrics MetricsConfig  `toml:"metrics"`
	Buckets []BucketConfig `toml:"bucket"`
}

type NodeConfig struct {
	Name    string `toml:"name"`
	DataDir string `toml:"data_dir"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type StoreConfig struct {
	// DeleteNotify is "always" (emit a deleted event on every delete) or
	// "existing" (only when a key was removed).
	DeleteNotify string `toml:"delete_notify"`
	WatchBuffer  int    `toml:"watch_buffer"`
}

type ConsoleConfig struct {
	// Listen is the SSH console address; empty disables the console.
	Listen         string `toml:"listen"`
	AuthorizedKeys string `toml:"authorized_keys"`
}

type MetricsConfig struct {
	// Listen is the HTTP metrics address; empty disables the endpoint.
	Listen string `toml:"listen"`
}

// BucketConfig declares a bucket started at boot.
type BucketConfig struct {
	Name   string `toml:"name"`
	Shards int    `toml:"shards"`
	Kind   string `toml:"kind"`
	Access string `toml:"access"`
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "warren"
	}
	return &Config{
		Node: NodeConfig{
			Name:    hostname,
			DataDir: "~/.warren",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Store: StoreConfig{
			DeleteNotify: "always",
		},
		Console: ConsoleConfig{
			Listen:         "127.0.0.1:2222",
			AuthorizedKeys: "~/.warren/authorized_keys",
		},
	}
}

// Load reads a TOML config file and returns the parsed Config.
// If path is empty, the default location is tried; a missing file there
// just yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = expandHome("~/.warren/config.toml")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Validate checks every field and reports all problems at once, each
// prefixed with its config path (e.g. "console.listen").
func (c *Config) Validate() error {
	var errs []error

	if err := validateLogLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if err := validateLogFormat(c.Logging.Format); err != nil {
		errs = append(errs, fmt.Errorf("logging.format: %w", err))
	}

	switch strings.TrimSpace(c.Store.DeleteNotify) {
	case "", "always", "existing":
	default:
		errs = append(errs, fmt.Errorf("store.delete_notify: unknown policy %q", c.Store.DeleteNotify))
	}
	if c.Store.WatchBuffer < 0 {
		errs = append(errs, fmt.Errorf("store.watch_buffer: negative buffer %d", c.Store.WatchBuffer))
	}

	if c.Console.Listen != "" {
		if err := validateListenAddr(c.Console.Listen); err != nil {
			errs = append(errs, fmt.Errorf("console.listen: %w", err))
		}
	}
	if c.Metrics.Listen != "" {
		if err := validateListenAddr(c.Metrics.Listen); err != nil {
			errs = append(errs, fmt.Errorf("metrics.listen: %w", err))
		}
	}

	seen := make(map[string]bool)
	for i, b := range c.Buckets {
		if strings.TrimSpace(b.Name) == "" {
			errs = append(errs, fmt.Errorf("bucket[%d].name: empty name", i))
		} else if seen[b.Name] {
			errs = append(errs, fmt.Errorf("bucket[%d].name: duplicate bucket %q", i, b.Name))
		}
		seen[b.Name] = true

		if b.Shards < 0 {
			errs = append(errs, fmt.Errorf("bucket[%d].shards: negative shard count %d", i, b.Shards))
		}
		if kind, err := table.ParseKind(b.Kind); err != nil {
			errs = append(errs, fmt.Errorf("bucket[%d].kind: %w", i, err))
		} else if kind != table.KindSet {
			errs = append(errs, fmt.Errorf("bucket[%d].kind: %w: %s", i, table.ErrUnsupportedKind, kind))
		}
		if access, err := table.ParseAccess(b.Access); err != nil {
			errs = append(errs, fmt.Errorf("bucket[%d].access: %w", i, err))
		} else if access != table.AccessShared {
			errs = append(errs, fmt.Errorf("bucket[%d].access: %w", i, table.ErrPrivateAccess))
		}
	}

	return errors.Join(errs...)
}

// TableConfig converts a bucket declaration into table creation
// parameters. Call after Validate; unknown strings fall back to the
// zero value here.
func (b BucketConfig) TableConfig() table.Config {
	kind, _ := table.ParseKind(b.Kind)
	access, _ := table.ParseAccess(b.Access)
	return table.Config{
		Shards: b.Shards,
		Kind:   kind,
		Access: access,
	}
}

func validateListenAddr(addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return errors.New("empty address")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if host == "" {
		return fmt.Errorf("invalid address %q: empty host", addr)
	}
	if port == "" {
		return fmt.Errorf("invalid address %q: empty port", addr)
	}
	return nil
}

func validateLogLevel(level string) error {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("unknown level %q", level)
	}
}

func validateLogFormat(format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text", "json":
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// ExpandHome resolves a leading ~/ to the user's home directory.
func ExpandHome(path string) string {
	return expandHome(path)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
