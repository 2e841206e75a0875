package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/ahctl/pkg/api"
)

// Syncer runs a full sync: discover, resolve, coordinate, aggregate.
type Syncer struct {
	Backend     Backend
	Policy      Policy
	Mode        Mode
	TargetDelay time.Duration
	MaxParallel int
	Clock       clockwork.Clock
	Observer    Observer
}

// Sync returns an error only for pre-flight failures, before any target is
// triggered. Per-target failures are reported in the Report.
func (s *Syncer) Sync(ctx context.Context, filter string) (Report, error) {
	logger := log.With().Str("component", "syncer").Str("backend", s.Backend.Name()).Logger()

	all, err := s.Backend.ListTargets(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list %s: %w", s.Backend.Name(), err)
	}
	if len(all) == 0 {
		return Report{}, fmt.Errorf("%s: %w", s.Backend.Name(), ErrNoTargets)
	}
	targets, err := ResolveTargets(all, filter)
	if err != nil {
		return Report{}, err
	}

	if filter != "" {
		logger.Info().Str("target", filter).Msg("Syncing target")
	} else {
		logger.Info().Int("count", len(targets)).Str("mode", string(s.Mode)).Msg("Syncing all targets")
	}

	obs := s.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	c := &Coordinator{
		Mode:        s.Mode,
		TargetDelay: s.TargetDelay,
		MaxParallel: s.MaxParallel,
		Clock:       s.Clock,
		NewOperation: func(t api.Target) *Operation {
			return NewOperation(t, s.Backend, s.Policy, WithClock(s.Clock), WithObserver(obs))
		},
	}
	report := Aggregate(c.Run(ctx, targets))
	report.Log()
	return report, nil
}
