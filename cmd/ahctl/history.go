package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/3cpo-dev/ahctl/internal/core"
)

// Create the history command
func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs recorded in the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Journal == "" {
				return errors.New("no journal configured, set --journal or AHCTL_JOURNAL")
			}
			limit, _ := cmd.Flags().GetInt("limit")
			asJSON, _ := cmd.Flags().GetBool("json")

			store, err := core.NewStore(cfg.Journal)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer store.Close()
			runs, err := store.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tKIND\tSTARTED\tDURATION\tTARGETS\tFAILED\tOK")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%t\n",
					r.ID[:8], r.Kind, r.StartedAt.Local().Format(time.RFC3339),
					r.FinishedAt.Sub(r.StartedAt).Round(time.Second), len(r.Results), r.Failed, r.Success)
			}
			return w.Flush()
		},
	}
	cmd.Flags().String("journal", "", "sqlite journal file")
	cmd.Flags().Int("limit", 10, "number of runs to show")
	cmd.Flags().Bool("json", false, "print runs as JSON")
	return cmd
}
