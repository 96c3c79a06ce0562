// Package config loads aegis settings from defaults, aegis.yaml, AEGIS_
// environment variables and command-line flags, in that order of precedence.
package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	DefaultMode      = "blue"
	DefaultClock     = "real"
	DefaultLogLevel  = "warn"
	DefaultLogFormat = "text"
	DefaultAuditPath = ".aegis/audit.db"
	EnvPrefix        = "AEGIS_"
)

type Config struct {
	Mode       string      `koanf:"mode"`
	Clock      string      `koanf:"clock"`
	Log        LogConfig   `koanf:"log"`
	Audit      AuditConfig `koanf:"audit"`
	Alert      AlertConfig `koanf:"alert"`
	Vocabulary []string    `koanf:"vocabulary"`

	// File is the config file that was read, if any.
	File string `koanf:"-"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type AuditConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

type AlertConfig struct {
	URL string `koanf:"url"`
}

// flagKeys maps flag names whose config key is not the flag name itself.
var flagKeys = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
	"audit":      "audit.enabled",
	"audit-path": "audit.path",
	"alert-url":  "alert.url",
}

func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"aegis.yaml", "aegis.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load builds a Config. flags may be nil; only flags that were explicitly
// set override lower layers.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]any{
		"mode":          DefaultMode,
		"clock":         DefaultClock,
		"log.level":     DefaultLogLevel,
		"log.format":    DefaultLogFormat,
		"audit.enabled": false,
		"audit.path":    DefaultAuditPath,
		"alert.url":     "",
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	// AEGIS_LOG_LEVEL -> log.level
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = f.Name
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = used
	cfg.Mode = strings.ToLower(cfg.Mode)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Mode {
	case "red", "redteam", "blue", "blueteam":
	default:
		return fmt.Errorf("invalid mode %q (want red or blue)", c.Mode)
	}
	switch c.Clock {
	case "real", "virtual":
	default:
		return fmt.Errorf("invalid clock %q (want real or virtual)", c.Clock)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (want text or json)", c.Log.Format)
	}
	if c.Audit.Enabled && c.Audit.Path == "" {
		return fmt.Errorf("audit.path is required when audit is enabled")
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level %q", s)
}

// NewLogger builds the logger described by the log section.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

type loggerKey struct{}

func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// GetLogger retrieves the logger from ctx, or a discard logger.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}
