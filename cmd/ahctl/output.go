package main

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/ahctl/internal/core"
	"github.com/3cpo-dev/ahctl/internal/telemetry"
	"github.com/3cpo-dev/ahctl/pkg/api"
)

// writeOutputs appends key=value lines to $GITHUB_OUTPUT when running in
// GitHub Actions, and logs them otherwise.
func writeOutputs(outputs map[string]string) error {
	keys := slices.Sorted(maps.Keys(outputs))
	path := os.Getenv("GITHUB_OUTPUT")
	if path == "" {
		for _, k := range keys {
			log.Info().Str("key", k).Str("value", outputs[k]).Msg("Output")
		}
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open GITHUB_OUTPUT: %w", err)
	}
	defer f.Close()
	for _, k := range keys {
		if _, err := fmt.Fprintf(f, "%s=%s\n", k, outputs[k]); err != nil {
			return fmt.Errorf("write GITHUB_OUTPUT: %w", err)
		}
	}
	return nil
}

// report records a finished run in the journal and the metrics file. Both
// are optional and best effort: a write failure is logged, never returned.
func report(ctx context.Context, cfg *core.Config, rec *telemetry.Recorder, kind string, started time.Time, results []api.SyncResult, ok bool) {
	finished := time.Now()
	rec.Finish(finished)
	if err := rec.WriteTextfile(cfg.MetricsFile); err != nil {
		log.Warn().Err(err).Str("path", cfg.MetricsFile).Msg("Failed to write metrics")
	}
	if cfg.Journal == "" {
		return
	}

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	run := core.Run{
		ID:         uuid.NewString(),
		Kind:       kind,
		StartedAt:  started,
		FinishedAt: finished,
		Success:    ok,
		Failed:     failed,
		Results:    results,
	}
	store, err := core.NewStore(cfg.Journal)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.Journal).Msg("Failed to open journal")
		return
	}
	defer store.Close()
	if err := store.RecordRun(ctx, run); err != nil {
		log.Warn().Err(err).Str("path", cfg.Journal).Msg("Failed to record run")
		return
	}
	log.Debug().Str("run_id", run.ID).Msg("Run recorded")
}
