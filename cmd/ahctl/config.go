package main

import (
	"github.com/spf13/cobra"

	"github.com/3cpo-dev/ahctl/internal/core"
	"github.com/3cpo-dev/ahctl/internal/hub"
)

// flagKeys maps command-line flags to config keys. Only flags a command
// actually defines get bound.
var flagKeys = map[string]string{
	"host":              "host",
	"token":             "token",
	"target":            "target",
	"timeout":           "timeout",
	"interval":          "interval",
	"retry-attempts":    "retry.attempts",
	"retry-delay":       "retry.delay",
	"target-delay":      "target_delay",
	"mode":              "mode",
	"max-parallel":      "max_parallel",
	"resume-on-timeout": "resume_on_timeout",
	"rate-limit":        "rate_limit",
	"namespace":         "namespace",
	"name":              "name",
	"version":           "version",
	"strategy":          "strategy",
	"journal":           "journal",
	"metrics-file":      "metrics_file",
}

// loadConfig layers defaults, the config file, secrets.env, the environment
// and finally the command's flags.
func loadConfig(cmd *cobra.Command) (*core.Config, error) {
	secretsPath, _ := cmd.Flags().GetString("secrets")
	secrets, err := core.LoadSecretsEnv(secretsPath)
	if err != nil {
		return nil, err
	}
	if err := core.ApplySecrets(secrets); err != nil {
		return nil, err
	}

	v, err := core.NewViper()
	if err != nil {
		return nil, err
	}
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}
	cfgPath, _ := cmd.Flags().GetString("config")
	return core.LoadConfig(v, cfgPath)
}

func addConnectionFlags(cmd *cobra.Command) {
	cmd.Flags().String("host", "", "hub or controller host, scheme optional")
	cmd.Flags().String("token", "", "API token (prefer AH_TOKEN or secrets.env)")
	cmd.Flags().Float64("rate-limit", 10, "max API requests per second")
	cmd.Flags().String("journal", "", "sqlite file to record the run in")
	cmd.Flags().String("metrics-file", "", "write prometheus metrics to this file")
}

func addSyncFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("timeout", 300, "seconds to wait for each job")
	cmd.Flags().Float64("interval", 10, "seconds between status polls")
	cmd.Flags().Int("retry-attempts", 3, "attempts per target")
	cmd.Flags().Float64("retry-delay", 30, "seconds between attempts")
	cmd.Flags().Float64("target-delay", 5, "seconds between targets in sequential mode")
	cmd.Flags().String("mode", string(core.ModeSequential), "sequential or parallel")
	cmd.Flags().Int("max-parallel", 0, "cap on concurrent targets in parallel mode, 0 for none")
	cmd.Flags().Bool("resume-on-timeout", false, "keep polling the same job after a timeout instead of triggering again")
}

func hubOptions(cfg *core.Config) hub.Options {
	o := hub.DefaultOptions()
	o.RateLimit = cfg.RateLimit
	return o
}

func newRegistry(cfg *core.Config) *core.Registry {
	opts := hubOptions(cfg)
	reg := core.NewRegistry()
	reg.Register(hub.NewProjectBackend(cfg.BaseURL(), cfg.Token, opts))
	reg.Register(hub.NewRepositoryBackend(cfg.BaseURL(), cfg.Token, opts))
	return reg
}
