// Package config is the layered configuration loader (spec.md §6):
// CLI overrides > environment variables > YAML file > schema
// defaults, modeled on the teacher's pkg/config/loader.go and
// pkg/config/provider — generalized from koanf's multi-provider merge
// down to the narrower set the spec actually needs (a single YAML
// file plus env), using gopkg.in/yaml.v3 for parsing and
// github.com/mitchellh/mapstructure to decode the merged raw map into
// the typed Config, exactly as the teacher decodes koanf's raw map.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/ciris-ai/ciris-core/internal/config/provider"
	"github.com/ciris-ai/ciris-core/internal/errs"
)

// Config is the full set of tunables the runtime (C13) reads at
// startup. Field names match the YAML keys via the mapstructure tag;
// see envBindings for the CIRIS_*/LLM_* environment namespace.
type Config struct {
	DBPath             string `yaml:"db_path" mapstructure:"db_path"`
	SecretsDBPath      string `yaml:"secrets_db_path" mapstructure:"secrets_db_path"`
	AuditDBPath        string `yaml:"audit_db_path" mapstructure:"audit_db_path"`
	LLMEndpoint        string `yaml:"llm_endpoint" mapstructure:"llm_endpoint"`
	LLMModel           string `yaml:"llm_model" mapstructure:"llm_model"`
	AuditRetentionDays int    `yaml:"audit_retention_days" mapstructure:"audit_retention_days"`
	MaxActiveTasks     int    `yaml:"max_active_tasks" mapstructure:"max_active_tasks"`
	MaxThoughtDepth    int    `yaml:"max_thought_depth" mapstructure:"max_thought_depth"`
	LogLevel           string `yaml:"log_level" mapstructure:"log_level"`
	DebugMode          bool   `yaml:"debug_mode" mapstructure:"debug_mode"`
}

// Defaults returns the schema defaults named in spec.md §6/§4.7.
func Defaults() Config {
	return Config{
		DBPath:             "ciris_engine.db",
		SecretsDBPath:      "secrets.db",
		AuditDBPath:        "ciris_audit.db",
		LLMEndpoint:        "http://localhost:11434",
		LLMModel:           "llama3",
		AuditRetentionDays: 90,
		MaxActiveTasks:     10,
		MaxThoughtDepth:    7,
		LogLevel:           "info",
		DebugMode:          false,
	}
}

// envBinding maps one environment namespace key to the Config field
// it overrides, and how to parse it.
type envBinding struct {
	name  string
	apply func(cfg *Config, raw string) error
}

var envBindings = []envBinding{
	{"CIRIS_DB_PATH", func(c *Config, v string) error { c.DBPath = v; return nil }},
	{"CIRIS_SECRETS_DB_PATH", func(c *Config, v string) error { c.SecretsDBPath = v; return nil }},
	{"CIRIS_AUDIT_DB_PATH", func(c *Config, v string) error { c.AuditDBPath = v; return nil }},
	{"LLM_ENDPOINT", func(c *Config, v string) error { c.LLMEndpoint = v; return nil }},
	{"LLM_MODEL", func(c *Config, v string) error { c.LLMModel = v; return nil }},
	{"AUDIT_RETENTION_DAYS", func(c *Config, v string) error {
		n, err := cast.ToIntE(v)
		if err != nil {
			return fmt.Errorf("AUDIT_RETENTION_DAYS: %w", err)
		}
		c.AuditRetentionDays = n
		return nil
	}},
	{"MAX_ACTIVE_TASKS", func(c *Config, v string) error {
		n, err := cast.ToIntE(v)
		if err != nil {
			return fmt.Errorf("MAX_ACTIVE_TASKS: %w", err)
		}
		c.MaxActiveTasks = n
		return nil
	}},
	{"MAX_THOUGHT_DEPTH", func(c *Config, v string) error {
		n, err := cast.ToIntE(v)
		if err != nil {
			return fmt.Errorf("MAX_THOUGHT_DEPTH: %w", err)
		}
		c.MaxThoughtDepth = n
		return nil
	}},
	{"LOG_LEVEL", func(c *Config, v string) error { c.LogLevel = strings.ToLower(v); return nil }},
	{"DEBUG_MODE", func(c *Config, v string) error {
		b, err := cast.ToBoolE(v)
		if err != nil {
			return fmt.Errorf("DEBUG_MODE: %w", err)
		}
		c.DebugMode = b
		return nil
	}},
}

// Options controls one Load call.
type Options struct {
	// FilePath is the YAML config file to read, if any. Empty skips
	// the file layer entirely (defaults + env + overrides still apply).
	FilePath string

	// EnvFiles lists dotenv files to load before reading environment
	// variables, checked in order; later files don't override values
	// already set by an earlier one or by the real process
	// environment (godotenv.Load never overwrites an existing key).
	EnvFiles []string

	// Overrides holds CLI-supplied values, keyed by the same
	// mapstructure tags as Config, e.g. {"log_level": "debug"}. Only
	// keys a user actually passed on the command line should appear
	// here, since any key present always wins.
	Overrides map[string]any

	Log *slog.Logger
}

// Load builds a Config by layering, lowest precedence first: schema
// defaults, the YAML file at FilePath (if set), environment
// variables, then Overrides.
func Load(ctx context.Context, opts Options) (*Config, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	if err := loadEnvFiles(opts.EnvFiles, log); err != nil {
		return nil, errs.Wrap(errs.KindValidation, "load .env files", err)
	}

	cfg := Defaults()

	if opts.FilePath != "" {
		p, err := provider.NewFileProvider(opts.FilePath, log)
		if err != nil {
			return nil, errs.Wrap(errs.KindValidation, "construct file provider", err)
		}
		defer p.Close()

		data, err := p.Load(ctx)
		if err != nil {
			return nil, errs.Wrap(errs.KindValidation, "load config file", err)
		}

		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, errs.Wrap(errs.KindValidation, "parse config yaml", err)
		}
		expanded, ok := expandEnvVars(raw).(map[string]any)
		if !ok {
			return nil, errs.New(errs.KindValidation, "config yaml must decode to a mapping")
		}
		raw = expanded

		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
		})
		if err != nil {
			return nil, errs.Wrap(errs.KindValidation, "build config decoder", err)
		}
		if err := decoder.Decode(raw); err != nil {
			return nil, errs.Wrap(errs.KindValidation, "decode config yaml", err)
		}
	}

	for _, b := range envBindings {
		v, ok := os.LookupEnv(b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(&cfg, v); err != nil {
			return nil, errs.Wrap(errs.KindValidation, "apply env override", err)
		}
	}

	if len(opts.Overrides) > 0 {
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
		})
		if err != nil {
			return nil, errs.Wrap(errs.KindValidation, "build override decoder", err)
		}
		if err := decoder.Decode(opts.Overrides); err != nil {
			return nil, errs.Wrap(errs.KindValidation, "decode cli overrides", err)
		}
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg Config) error {
	if cfg.MaxActiveTasks <= 0 {
		return errs.New(errs.KindValidation, "max_active_tasks must be positive")
	}
	if cfg.MaxThoughtDepth <= 0 {
		return errs.New(errs.KindValidation, "max_thought_depth must be positive")
	}
	if cfg.AuditRetentionDays < 0 {
		return errs.New(errs.KindValidation, "audit_retention_days must not be negative")
	}
	return nil
}

func loadEnvFiles(files []string, log *slog.Logger) error {
	if len(files) == 0 {
		files = []string{".env.local", ".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
		log.Debug("loaded dotenv file", "path", f)
	}
	return nil
}
