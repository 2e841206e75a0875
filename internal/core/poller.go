package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/3cpo-dev/ahctl/pkg/api"
)

// MinPollInterval is the floor applied to non-positive or tiny poll intervals.
const MinPollInterval = 500 * time.Millisecond

// ErrTimedOut is returned when a job does not reach a terminal state in time.
var ErrTimedOut = errors.New("timed out")

// JobFailedError reports a job that reached a failure terminal state.
type JobFailedError struct {
	JobID  string
	Status api.StatusCode
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s finished with status %s", e.JobID, e.Status)
}

// StatusFunc reads the current status of a job.
type StatusFunc func(ctx context.Context, jobID string) (api.OperationStatus, error)

// Poller waits for a single job to finish.
type Poller struct {
	Interval time.Duration
	Timeout  time.Duration
	Clock    clockwork.Clock
	Logger   zerolog.Logger
}

// Wait fetches the job status until it is terminal or the timeout elapses.
// Fetch errors are logged and polling continues; only the timeout (or ctx)
// stops it early. The timeout is measured from the start of this call, and
// each fetch is cancelled once the remaining budget runs out.
func (p *Poller) Wait(ctx context.Context, jobID string, fetch StatusFunc) error {
	clock := clockOrReal(p.Clock)
	interval := p.Interval
	if interval < MinPollInterval {
		interval = MinPollInterval
	}

	start := clock.Now()
	for poll := 1; ; poll++ {
		fetchCtx, cancel := context.WithTimeout(ctx, p.Timeout-clock.Since(start))
		st, err := fetch(fetchCtx, jobID)
		cancel()
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Logger.Warn().
				Err(err).
				Str("job", jobID).
				Int("poll", poll).
				Msg("Status fetch failed, polling again")
		case st.Failed || st.Status.Failed():
			return &JobFailedError{JobID: jobID, Status: st.Status}
		case st.Status.Succeeded():
			p.Logger.Info().
				Str("job", jobID).
				Dur("elapsed", clock.Since(start)).
				Msg("Job finished")
			return nil
		default:
			p.Logger.Info().
				Str("job", jobID).
				Str("status", string(st.Status)).
				Int("poll", poll).
				Dur("elapsed", clock.Since(start)).
				Msg("Job still in progress")
		}

		if clock.Since(start) >= p.Timeout {
			return fmt.Errorf("job %s: %w", jobID, ErrTimedOut)
		}
		if err := sleep(ctx, clock, interval); err != nil {
			return err
		}
	}
}
