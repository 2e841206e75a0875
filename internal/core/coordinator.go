package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/3cpo-dev/ahctl/pkg/api"
)

type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSequential, ModeParallel:
		return Mode(s), nil
	case "":
		return ModeSequential, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// OperationFactory builds the operation for one target.
type OperationFactory func(target api.Target) *Operation

// Coordinator runs one Operation per target and collects a result for each,
// in target order. A failing target never stops the others.
type Coordinator struct {
	Mode Mode
	// TargetDelay separates consecutive targets in sequential mode.
	TargetDelay time.Duration
	// MaxParallel caps concurrent targets in parallel mode; 0 means no cap.
	MaxParallel  int
	Clock        clockwork.Clock
	NewOperation OperationFactory
}

func (c *Coordinator) Run(ctx context.Context, targets []api.Target) []api.SyncResult {
	results := make([]api.SyncResult, len(targets))
	if c.Mode == ModeParallel {
		c.runParallel(ctx, targets, results)
	} else {
		c.runSequential(ctx, targets, results)
	}
	return results
}

func (c *Coordinator) runSequential(ctx context.Context, targets []api.Target, results []api.SyncResult) {
	clock := clockOrReal(c.Clock)
	for i, t := range targets {
		results[i] = c.NewOperation(t).Run(ctx)
		if i == len(targets)-1 || c.TargetDelay <= 0 {
			continue
		}
		log.Debug().Dur("delay", c.TargetDelay).Str("next", targets[i+1].Name).Msg("Waiting before next target")
		// A cancelled wait still lets the remaining targets record their failure.
		_ = sleep(ctx, clock, c.TargetDelay)
	}
}

func (c *Coordinator) runParallel(ctx context.Context, targets []api.Target, results []api.SyncResult) {
	var g errgroup.Group
	if c.MaxParallel > 0 {
		g.SetLimit(c.MaxParallel)
	}
	for i, t := range targets {
		g.Go(func() error {
			results[i] = c.NewOperation(t).Run(ctx)
			return nil
		})
	}
	_ = g.Wait()
}
