package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/3cpo-dev/ahctl/pkg/api"
)

type RetryConfig struct {
	Attempts int     `mapstructure:"attempts" yaml:"attempts"`
	Delay    float64 `mapstructure:"delay" yaml:"delay"` // seconds
}

// Config holds every run input. Durations are in seconds.
//
// WARNING: Token is a secret and should not be logged or kept in the YAML file;
// prefer secrets.env or the environment.
type Config struct {
	Host            string      `mapstructure:"host" yaml:"host"`
	Token           string      `mapstructure:"token" yaml:"token"`
	Target          string      `mapstructure:"target" yaml:"target"`
	Timeout         float64     `mapstructure:"timeout" yaml:"timeout"`
	Interval        float64     `mapstructure:"interval" yaml:"interval"`
	Retry           RetryConfig `mapstructure:"retry" yaml:"retry"`
	TargetDelay     float64     `mapstructure:"target_delay" yaml:"target_delay"`
	Mode            string      `mapstructure:"mode" yaml:"mode"`
	MaxParallel     int         `mapstructure:"max_parallel" yaml:"max_parallel"`
	ResumeOnTimeout bool        `mapstructure:"resume_on_timeout" yaml:"resume_on_timeout"`
	RateLimit       float64     `mapstructure:"rate_limit" yaml:"rate_limit"`
	Namespace       string      `mapstructure:"namespace" yaml:"namespace"`
	Name            string      `mapstructure:"name" yaml:"name"`
	Version         string      `mapstructure:"version" yaml:"version"`
	Strategy        string      `mapstructure:"strategy" yaml:"strategy"`
	Journal         string      `mapstructure:"journal" yaml:"journal"`
	MetricsFile     string      `mapstructure:"metrics_file" yaml:"metrics_file"`
}

var defaults = map[string]any{
	"timeout":        300,
	"interval":       10,
	"retry.attempts": 3,
	"retry.delay":    30,
	"target_delay":   5,
	"mode":           string(ModeSequential),
	"max_parallel":   0,
	"rate_limit":     10,
	"strategy":       string(StrategyAuto),
}

// envBindings maps config keys to the environment variables that can set them,
// first match wins. INPUT_* names are what GitHub Actions exports for inputs.
var envBindings = map[string][]string{
	"host":              {"AHCTL_HOST", "AH_HOST", "INPUT_AH_HOST"},
	"token":             {"AHCTL_TOKEN", "AH_TOKEN", "INPUT_AH_TOKEN"},
	"target":            {"AHCTL_TARGET", "INPUT_PROJECT_NAME"},
	"timeout":           {"AHCTL_TIMEOUT", "INPUT_TIMEOUT"},
	"interval":          {"AHCTL_INTERVAL", "INPUT_INTERVAL"},
	"retry.attempts":    {"AHCTL_RETRY_ATTEMPTS", "INPUT_RETRY_ATTEMPTS"},
	"retry.delay":       {"AHCTL_RETRY_DELAY", "INPUT_RETRY_DELAY"},
	"target_delay":      {"AHCTL_TARGET_DELAY", "INPUT_TARGET_DELAY"},
	"mode":              {"AHCTL_MODE", "INPUT_MODE"},
	"max_parallel":      {"AHCTL_MAX_PARALLEL"},
	"resume_on_timeout": {"AHCTL_RESUME_ON_TIMEOUT"},
	"rate_limit":        {"AHCTL_RATE_LIMIT"},
	"namespace":         {"AHCTL_NAMESPACE", "INPUT_NAMESPACE"},
	"name":              {"AHCTL_NAME", "INPUT_NAME"},
	"version":           {"AHCTL_VERSION", "INPUT_VERSION"},
	"strategy":          {"AHCTL_STRATEGY", "INPUT_STRATEGY"},
	"journal":           {"AHCTL_JOURNAL"},
	"metrics_file":      {"AHCTL_METRICS_FILE"},
}

// NewViper returns a viper instance with defaults and env bindings applied.
// Callers bind their flags to it before LoadConfig.
func NewViper() (*viper.Viper, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	for key, envs := range envBindings {
		if err := v.BindEnv(slices.Insert(envs, 0, key)...); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// DefaultConfigPath resolves $XDG_CONFIG_HOME/ahctl/config.yaml or
// ~/.config/ahctl/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func configDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "ahctl")
}

// LoadConfig reads the YAML file at path into v and decodes the result. An
// empty path uses DefaultConfigPath, which may be missing; an explicit path
// must exist.
func LoadConfig(v *viper.Viper, path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	_, err := os.Stat(path)
	switch {
	case err == nil:
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	case explicit || !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("open config: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ValidationError reports an unusable configuration value.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s=%s: %s", e.Field, e.Value, e.Message)
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{Field: field, Message: field + " is required"}
	}
	return nil
}

func positive(field string, value float64) error {
	if value <= 0 {
		return ValidationError{Field: field, Value: fmt.Sprint(value), Message: "must be positive"}
	}
	return nil
}

// ValidateConnection checks the inputs every remote command needs.
func (c *Config) ValidateConnection() error {
	if err := required("host", c.Host); err != nil {
		return err
	}
	if err := required("token", c.Token); err != nil {
		return err
	}
	return positive("rate_limit", c.RateLimit)
}

// ValidateSync checks the inputs of a multi-target sync.
func (c *Config) ValidateSync() error {
	if err := c.ValidateConnection(); err != nil {
		return err
	}
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"timeout", c.Timeout},
		{"interval", c.Interval},
		{"retry.attempts", float64(c.Retry.Attempts)},
		{"retry.delay", c.Retry.Delay},
	} {
		if err := positive(f.name, f.value); err != nil {
			return err
		}
	}
	if c.TargetDelay < 0 {
		return ValidationError{Field: "target_delay", Value: fmt.Sprint(c.TargetDelay), Message: "must not be negative"}
	}
	if c.MaxParallel < 0 {
		return ValidationError{Field: "max_parallel", Value: fmt.Sprint(c.MaxParallel), Message: "must not be negative"}
	}
	if _, err := ParseMode(c.Mode); err != nil {
		return ValidationError{Field: "mode", Value: c.Mode, Message: err.Error()}
	}
	return nil
}

// ValidateApprove checks the inputs of a collection approval. Version may be
// filled from galaxy.yml by the caller before this runs.
func (c *Config) ValidateApprove() error {
	if err := c.ValidateConnection(); err != nil {
		return err
	}
	for _, f := range []struct{ name, value string }{
		{"namespace", c.Namespace},
		{"name", c.Name},
		{"version", c.Version},
	} {
		if err := required(f.name, f.value); err != nil {
			return err
		}
	}
	if err := positive("timeout", c.Timeout); err != nil {
		return err
	}
	if err := positive("interval", c.Interval); err != nil {
		return err
	}
	if _, err := ParseStrategy(c.Strategy); err != nil {
		return ValidationError{Field: "strategy", Value: c.Strategy, Message: err.Error()}
	}
	return nil
}

// BaseURL returns the host with an https scheme added when none is given.
func (c *Config) BaseURL() string {
	h := strings.TrimSuffix(strings.TrimSpace(c.Host), "/")
	if strings.HasPrefix(h, "http://") || strings.HasPrefix(h, "https://") {
		return h
	}
	return "https://" + h
}

func seconds(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }

// Policy converts the retry and timing inputs into a per-target policy.
func (c *Config) Policy() Policy {
	return Policy{
		MaxAttempts:     c.Retry.Attempts,
		RetryDelay:      seconds(c.Retry.Delay),
		PollInterval:    seconds(c.Interval),
		Timeout:         seconds(c.Timeout),
		ResumeOnTimeout: c.ResumeOnTimeout,
	}
}

func (c *Config) TargetDelayDuration() time.Duration { return seconds(c.TargetDelay) }

func (c *Config) Collection() api.CollectionRef {
	return api.CollectionRef{Namespace: c.Namespace, Name: c.Name, Version: c.Version}
}

func (c *Config) ApprovalTiming() ApprovalTiming {
	return ApprovalTiming{Timeout: seconds(c.Timeout), Interval: seconds(c.Interval)}
}
