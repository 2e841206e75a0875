package core

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/3cpo-dev/ahctl/pkg/api"
)

// Backend is the remote surface a sync run drives. The hub package provides
// one implementation per API variant.
type Backend interface {
	Name() string
	ListTargets(ctx context.Context) ([]api.Target, error)
	// Eligible is a read-only check; false means triggering would do nothing.
	Eligible(ctx context.Context, target api.Target) (bool, error)
	Trigger(ctx context.Context, target api.Target) (*api.TriggerReply, error)
	// JobID extracts the job identifier from an accepted trigger reply.
	// An empty id with a nil error means the reply carried none.
	JobID(body []byte) (string, error)
	JobStatus(ctx context.Context, jobID string) (api.OperationStatus, error)
}

// Observer receives attempt and result events, e.g. for metrics.
type Observer interface {
	AttemptFinished(backend string, target api.Target, attempt int, err error)
	TargetFinished(backend string, result api.SyncResult, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) AttemptFinished(string, api.Target, int, error)       {}
func (nopObserver) TargetFinished(string, api.SyncResult, time.Duration) {}

func sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func clockOrReal(c clockwork.Clock) clockwork.Clock {
	if c == nil {
		return clockwork.NewRealClock()
	}
	return c
}
