package main

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/3cpo-dev/ahctl/internal/core"
	"github.com/3cpo-dev/ahctl/internal/telemetry"
)

// Create the sync command
func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync controller projects or hub repositories and wait for the jobs",
	}
	cmd.AddCommand(newSyncBackendCmd("projects", "Update automation controller projects from SCM"))
	cmd.AddCommand(newSyncBackendCmd("repositories", "Sync automation hub repositories from their remotes"))
	return cmd
}

func newSyncBackendCmd(backend, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   backend + " [name]",
		Short: short,
		Long:  short + ". Without a name every discovered " + backend[:len(backend)-1] + " is synced.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, backend, args)
		},
	}
	addConnectionFlags(cmd)
	addSyncFlags(cmd)
	cmd.Flags().String("target", "", "only sync the target with this exact name")
	return cmd
}

func runSync(cmd *cobra.Command, backend string, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Target = args[0]
	}
	if err := cfg.ValidateSync(); err != nil {
		return err
	}
	mode, _ := core.ParseMode(cfg.Mode)

	b, err := newRegistry(cfg).Get(backend)
	if err != nil {
		return err
	}
	rec := telemetry.NewRecorder()
	s := &core.Syncer{
		Backend:     b,
		Policy:      cfg.Policy(),
		Mode:        mode,
		TargetDelay: cfg.TargetDelayDuration(),
		MaxParallel: cfg.MaxParallel,
		Observer:    rec,
	}

	started := time.Now()
	rep, err := s.Sync(cmd.Context(), cfg.Target)
	if err != nil {
		return err
	}
	report(cmd.Context(), cfg, rec, "sync "+backend, started, rep.Results, rep.OK())

	if err := rep.WriteDiagnostics(cmd.ErrOrStderr()); err != nil {
		return err
	}
	if err := writeOutputs(map[string]string{
		"succeeded": strconv.Itoa(len(rep.Succeeded)),
		"skipped":   strconv.Itoa(rep.Skipped()),
		"failed":    strconv.Itoa(len(rep.Failed)),
	}); err != nil {
		return err
	}
	return rep.Err()
}
