// Package config loads the single YAML file that drives every basisrun command.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/basisrun/internal/backtest"
	"github.com/sawpanic/basisrun/internal/cache"
	"github.com/sawpanic/basisrun/internal/data"
	"github.com/sawpanic/basisrun/internal/errs"
	"github.com/sawpanic/basisrun/internal/funding"
	monitor "github.com/sawpanic/basisrun/internal/http"
	applog "github.com/sawpanic/basisrun/internal/log"
	"github.com/sawpanic/basisrun/internal/persistence/postgres"
	"github.com/sawpanic/basisrun/internal/regime"
	"github.com/sawpanic/basisrun/internal/scoring"
	"github.com/sawpanic/basisrun/internal/sizing"
)

// Environment overrides, applied after the file is parsed
const (
	EnvStoreDSN  = "BASISRUN_STORE_DSN"
	EnvRedisAddr = "BASISRUN_REDIS_ADDR"
	EnvLogLevel  = "BASISRUN_LOG_LEVEL"
	EnvOutputDir = "BASISRUN_OUTPUT_DIR"
)

// Config is the full run configuration
type Config struct {
	Log      applog.Config        `yaml:"log"`
	Data     data.Paths           `yaml:"data"`
	Funding  funding.BatchConfig  `yaml:"funding"`
	Scoring  scoring.Weights      `yaml:"scoring"`
	Weights  map[string]float64   `yaml:"weights" validate:"required,min=1"`
	Regime   regime.Config        `yaml:"regime"`
	Sizing   sizing.Config        `yaml:"sizing"`
	Majors   sizing.MajorModel    `yaml:"majors"`
	Backtest backtest.Config      `yaml:"backtest"`
	Output   OutputConfig         `yaml:"output"`
	Store    postgres.Config      `yaml:"store"`
	Cache    cache.Config         `yaml:"cache"`
	Server   monitor.ServerConfig `yaml:"server"`
}

// OutputConfig controls artifact output
type OutputConfig struct {
	Dir string `yaml:"dir" default:"out/backtest" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report yaml keys, not Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Default returns a config with every default applied. Sizing.TargetGross is
// left at zero: it has to come from the file.
func Default() (*Config, error) {
	cfg := &Config{
		Scoring: scoring.DefaultWeights(),
		Regime:  regime.DefaultConfig(),
		Sizing:  sizing.DefaultConfig(),
		Majors:  sizing.DefaultMajorModel(),
		Store:   postgres.DefaultConfig(),
		Server:  monitor.DefaultServerConfig(),
	}
	cfg.Sizing.TargetGross = 0
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}
	return cfg, nil
}

// Load reads, defaults, overrides and validates a config file
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(raw, os.LookupEnv)
}

// Parse builds a config from YAML. Defaults are set first so explicit zero
// values in the document survive.
func Parse(raw []byte, lookup func(string) (string, bool)) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if lookup != nil {
		cfg.applyEnv(lookup)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs into the process environment without
// overriding variables that are already set. An empty path tries ./.env and
// ignores its absence.
func LoadEnvFile(path string) error {
	if path == "" {
		_ = godotenv.Load()
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvStoreDSN); ok && v != "" {
		c.Store.DSN = v
		c.Store.Enabled = true
	}
	if v, ok := lookup(EnvRedisAddr); ok && v != "" {
		c.Cache.Addr = v
		c.Cache.Enabled = true
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvOutputDir); ok && v != "" {
		c.Output.Dir = v
	}
}

// Validate runs struct tag rules, then the cross-field checks of each section
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fieldError(err)
	}
	if c.Store.Enabled && c.Store.DSN == "" {
		return errs.Config("store.dsn", "required when the store is enabled")
	}
	return c.Pipeline().Validate()
}

// Pipeline is the compute-only part of the config
func (c *Config) Pipeline() backtest.Pipeline {
	return backtest.Pipeline{
		Weights:  c.Weights,
		Regime:   c.Regime,
		Sizing:   c.Sizing,
		Majors:   c.Majors,
		Backtest: c.Backtest,
	}
}

// fieldError turns the first validator failure into a ConfigurationError
// keyed by its dotted yaml path
func fieldError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	reason := fmt.Sprintf("failed %q rule", fe.Tag())
	if fe.Param() != "" {
		reason = fmt.Sprintf("failed %q rule (%s)", fe.Tag(), fe.Param())
	}
	return errs.Config(field, "%s", reason)
}
