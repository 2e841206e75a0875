package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/3cpo-dev/ahctl/internal/galaxy"
)

// Create the galaxy command
func newGalaxyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "galaxy",
		Short: "Check and bump the version in galaxy.yml",
	}
	cmd.PersistentFlags().String("file", galaxy.FileName, "galaxy.yml path")
	cmd.AddCommand(newGalaxyCheckCmd())
	cmd.AddCommand(newGalaxyBumpCmd())
	return cmd
}

func newGalaxyCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Fail unless the version is greater than the one on the base branch",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			baseRef, _ := cmd.Flags().GetString("base-ref")
			baseFile, _ := cmd.Flags().GetString("base-file")

			current, err := versionFromFile(file)
			if err != nil {
				return fmt.Errorf("read current version: %w", err)
			}

			var data []byte
			if baseFile != "" {
				data, err = os.ReadFile(baseFile)
			} else {
				data, err = galaxy.ShowAtRef(cmd.Context(), baseRef, file)
			}
			if err != nil {
				return fmt.Errorf("read base galaxy.yml: %w", err)
			}
			base, err := galaxy.Parse(data)
			if err != nil {
				return fmt.Errorf("parse base galaxy.yml: %w", err)
			}
			baseVersion, err := base.Version()
			if err != nil {
				return fmt.Errorf("read base version: %w", err)
			}

			if err := galaxy.CheckNewer(current, baseVersion); err != nil {
				return err
			}
			log.Info().Str("current", current).Str("base", baseVersion).Msg("Version is greater than base")
			return nil
		},
	}
	cmd.Flags().String("base-ref", "origin/main", "git ref holding the base galaxy.yml")
	cmd.Flags().String("base-file", "", "read the base galaxy.yml from a file instead of git")
	return cmd
}

func newGalaxyBumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bump",
		Short: "Set the version to YEAR.MMDD.HHMM of the current time",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			tz, _ := cmd.Flags().GetString("timezone")
			if tz == "" {
				tz = os.Getenv("INPUT_TIMEZONE")
			}
			loc, err := galaxy.LoadLocation(tz)
			if err != nil {
				return err
			}

			f, err := galaxy.Load(file)
			if err != nil {
				return err
			}
			next := galaxy.CalendarVersion(time.Now(), loc)
			prev := f.SetVersion(next)
			if prev == "" {
				prev = "unknown"
			}
			if err := f.Save(); err != nil {
				return fmt.Errorf("write %s: %w", file, err)
			}
			log.Info().Str("previous", prev).Str("version", next).Str("timezone", loc.String()).Msg("Version updated")
			return writeOutputs(map[string]string{"version": next, "previous-version": prev})
		},
	}
	cmd.Flags().String("timezone", "", "IANA timezone for the version timestamp (default America/Chicago)")
	return cmd
}
