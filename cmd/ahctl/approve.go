package main

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/3cpo-dev/ahctl/internal/core"
	"github.com/3cpo-dev/ahctl/internal/galaxy"
	"github.com/3cpo-dev/ahctl/internal/hub"
	"github.com/3cpo-dev/ahctl/internal/telemetry"
	"github.com/3cpo-dev/ahctl/pkg/api"
)

// Create the approve command
func newApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Move an uploaded collection version from staging to published",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Version == "" {
				file, _ := cmd.Flags().GetString("galaxy-file")
				if v, err := versionFromFile(file); err == nil {
					log.Info().Str("version", v).Str("file", file).Msg("Using version from galaxy.yml")
					cfg.Version = v
				}
			}
			if err := cfg.ValidateApprove(); err != nil {
				return err
			}
			strategy, _ := core.ParseStrategy(cfg.Strategy)

			ctx := cmd.Context()
			ref := cfg.Collection()
			rec := telemetry.NewRecorder()
			a := hub.NewApprovals(cfg.BaseURL(), cfg.Token, hubOptions(cfg))
			approver := core.NewApprover(ctx, strategy, a, cfg.ApprovalTiming())

			started := time.Now()
			err = approver.Approve(ctx, ref)
			rec.RecordApproval(approver.Name(), err)

			result := api.SyncResult{TargetID: ref.String(), TargetName: ref.String(), Success: err == nil, Attempts: 1}
			if err != nil {
				result.Error = err.Error()
			}
			report(ctx, cfg, rec, "approve "+approver.Name(), started, []api.SyncResult{result}, err == nil)
			if err != nil {
				return err
			}
			return writeOutputs(map[string]string{"approved": "true", "version": ref.Version})
		},
	}
	addConnectionFlags(cmd)
	cmd.Flags().String("namespace", "", "collection namespace")
	cmd.Flags().String("name", "", "collection name")
	cmd.Flags().String("version", "", "collection version (default: version in galaxy.yml)")
	cmd.Flags().String("strategy", string(core.StrategyAuto), "auto, direct or repository")
	cmd.Flags().Float64("timeout", 300, "seconds to keep trying")
	cmd.Flags().Float64("interval", 10, "seconds between tries")
	cmd.Flags().String("galaxy-file", galaxy.FileName, "galaxy.yml to read the version from")
	return cmd
}

func versionFromFile(path string) (string, error) {
	f, err := galaxy.Load(path)
	if err != nil {
		return "", err
	}
	return f.Version()
}
