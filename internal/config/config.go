// Package config loads the campaign configuration: a YAML file, overlaid by
// LITLEDGER_* environment variables, with a .env file feeding the
// environment first.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/formula"
	"github.com/roach88/litledger/internal/ledger"
	"github.com/roach88/litledger/internal/rules"
	"github.com/roach88/litledger/internal/schema"
	"github.com/roach88/litledger/internal/telemetry"
)

// DefaultFile is the campaign file looked up in the working directory when
// no path is given.
const DefaultFile = "litledger.yaml"

// Config holds the campaign settings.
type Config struct {
	// Ledger settings.
	SavePath     string            `yaml:"save_path" env:"LITLEDGER_SAVE_PATH"`
	SchemaPath   string            `yaml:"schema_path" env:"LITLEDGER_SCHEMA_PATH"`
	SchemaPreset string            `yaml:"schema_preset" env:"LITLEDGER_SCHEMA_PRESET"`
	Strict       bool              `yaml:"strict" env:"LITLEDGER_STRICT"`
	Formulas     []formula.Formula `yaml:"formulas"`
	Rules        []rules.Spec      `yaml:"rules"`

	// Archive database for save slots and usage records.
	ArchivePath string `yaml:"archive_path" env:"LITLEDGER_ARCHIVE_PATH"`

	// Extraction settings.
	DefaultUnit string `yaml:"default_unit" env:"LITLEDGER_DEFAULT_UNIT"`
	Language    string `yaml:"language" env:"LITLEDGER_LANGUAGE"`
	Model       string `yaml:"model" env:"LITLEDGER_MODEL"`

	// Operational settings.
	LogLevel  string    `yaml:"log_level" env:"LITLEDGER_LOG_LEVEL"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Telemetry configures OTLP export. An empty endpoint disables it.
type Telemetry struct {
	Endpoint    string `yaml:"endpoint" env:"LITLEDGER_OTEL_ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"LITLEDGER_SERVICE_NAME"`
	Insecure    bool   `yaml:"insecure" env:"LITLEDGER_OTEL_INSECURE"`
}

// Default returns the settings used when no campaign file exists.
func Default() *Config {
	return &Config{
		SavePath:    "litledger_events.json",
		ArchivePath: "litledger.db",
		Language:    "en",
		LogLevel:    "info",
		Telemetry:   Telemetry{ServiceName: "litledger"},
	}
}

// Load reads the campaign file at path over the defaults, then applies the
// environment. An empty path tries DefaultFile and tolerates its absence; an
// explicit path must exist. When a file is read, relative paths (including
// the defaults) resolve against its directory.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	case err != nil:
		return nil, errs.Wrap(errs.CodeConfiguration, err, "read config %s", path)
	default:
		if err := decode(data, cfg); err != nil {
			return nil, errs.Wrap(errs.CodeConfiguration, err, "parse config %s", path)
		}
		cfg.resolve(filepath.Dir(path))
	}

	if err := env.Parse(cfg); err != nil {
		return nil, errs.Wrap(errs.CodeConfiguration, err, "parse env")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return errs.Wrap(errs.CodeConfiguration, err, "load %s", path)
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) resolve(dir string) {
	for _, p := range []*string{&c.SavePath, &c.SchemaPath, &c.ArchivePath} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

var logLevels = []string{"debug", "info", "warn", "error"}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.SchemaPath != "" && c.SchemaPreset != "" {
		return errs.New(errs.CodeConfiguration, "config: schema_path and schema_preset are mutually exclusive")
	}
	if c.SchemaPreset != "" && !slices.Contains(schema.PresetNames(), c.SchemaPreset) {
		return errs.New(errs.CodeConfiguration, "config: unknown schema_preset %q (want one of %s)",
			c.SchemaPreset, strings.Join(schema.PresetNames(), ", "))
	}
	if !slices.Contains(logLevels, strings.ToLower(c.LogLevel)) {
		return errs.New(errs.CodeConfiguration, "config: log_level must be one of %s", strings.Join(logLevels, ", "))
	}
	for i, f := range c.Formulas {
		if strings.TrimSpace(f.Name) == "" || strings.TrimSpace(f.Expression) == "" {
			return errs.New(errs.CodeConfiguration, "config: formulas[%d] needs a name and an expression", i)
		}
	}
	for i, r := range c.Rules {
		if r.Target == "" || r.Operation == "" {
			return errs.New(errs.CodeConfiguration, "config: rules[%d] needs a target and an operation", i)
		}
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Schema resolves the world schema: the schema file, else the preset, else
// the classic fantasy default. A schema file that is missing or invalid
// falls back to the default with a warning.
func (c *Config) Schema(logger *slog.Logger) (*schema.Schema, error) {
	switch {
	case c.SchemaPath != "":
		return schema.LoadOrDefault(c.SchemaPath, logger), nil
	case c.SchemaPreset != "":
		return schema.Preset(c.SchemaPreset)
	default:
		return schema.Default(), nil
	}
}

// TelemetryConfig returns the exporter settings for telemetry.Init.
func (c *Config) TelemetryConfig(version string) telemetry.Config {
	return telemetry.Config{
		Endpoint:    c.Telemetry.Endpoint,
		ServiceName: c.Telemetry.ServiceName,
		Version:     version,
		Insecure:    c.Telemetry.Insecure,
	}
}

// LedgerOptions translates the campaign settings into ledger options.
func (c *Config) LedgerOptions(logger *slog.Logger) ([]ledger.Option, error) {
	s, err := c.Schema(logger)
	if err != nil {
		return nil, fmt.Errorf("ledger options: %w", err)
	}
	return []ledger.Option{
		ledger.WithPath(c.SavePath),
		ledger.WithSchema(s),
		ledger.WithStrict(c.Strict),
		ledger.WithLogger(logger),
		ledger.WithFormulas(c.Formulas),
		ledger.WithRules(c.Rules),
	}, nil
}
