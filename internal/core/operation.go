package core

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/ahctl/pkg/api"
)

// State is a step of the trigger-then-poll state machine.
type State int

const (
	StateNotStarted State = iota
	StateTriggering
	StatePolling
	StateSucceeded
	StateSkipped
	StateFailed
	StateFailedFinal
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateTriggering:
		return "triggering"
	case StatePolling:
		return "polling"
	case StateSucceeded:
		return "succeeded"
	case StateSkipped:
		return "skipped"
	case StateFailed:
		return "failed"
	case StateFailedFinal:
		return "failed_final"
	}
	return "unknown"
}

// Policy bounds one target's retry cycle.
type Policy struct {
	MaxAttempts  int
	RetryDelay   time.Duration
	PollInterval time.Duration
	// Timeout applies to the polling phase of each attempt.
	Timeout time.Duration
	// ResumeOnTimeout re-polls the same job after a poll timeout instead of
	// triggering a new one. Only for backends whose jobs can be resumed.
	ResumeOnTimeout bool
}

type OperationOption func(*Operation)

func WithClock(c clockwork.Clock) OperationOption {
	return func(o *Operation) { o.clock = c }
}

func WithObserver(obs Observer) OperationOption {
	return func(o *Operation) { o.observer = obs }
}

// Operation drives one target through trigger, poll and retry until it
// reaches Succeeded, Skipped or FailedFinal. It is single use.
type Operation struct {
	target   api.Target
	backend  Backend
	policy   Policy
	clock    clockwork.Clock
	observer Observer
	logger   zerolog.Logger

	state       State
	transitions []State
	attempts    int
	pending     api.OperationHandle
}

func NewOperation(target api.Target, backend Backend, policy Policy, opts ...OperationOption) *Operation {
	o := &Operation{
		target:   target,
		backend:  backend,
		policy:   policy,
		observer: nopObserver{},
		state:    StateNotStarted,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.clock = clockOrReal(o.clock)
	if o.policy.MaxAttempts < 1 {
		o.policy.MaxAttempts = 1
	}
	o.logger = log.With().
		Str("component", "operation").
		Str("backend", backend.Name()).
		Str("target", target.Name).
		Str("target_id", target.ID).
		Logger()
	return o
}

func (o *Operation) State() State { return o.state }

func (o *Operation) Attempts() int { return o.attempts }

// Transitions returns every state entered, in order.
func (o *Operation) Transitions() []State {
	out := make([]State, len(o.transitions))
	copy(out, o.transitions)
	return out
}

func (o *Operation) transition(s State) {
	o.state = s
	o.transitions = append(o.transitions, s)
	o.logger.Debug().Str("state", s.String()).Int("attempt", o.attempts).Msg("State changed")
}

// Run executes the retry cycle and returns the target's single result.
func (o *Operation) Run(ctx context.Context) api.SyncResult {
	start := o.clock.Now()
	result := api.SyncResult{TargetID: o.target.ID, TargetName: o.target.Name}
	maxAttempts := o.policy.MaxAttempts

	err := retry.Do(
		func() error {
			o.attempts++
			skipped, err := o.attempt(ctx)
			o.observer.AttemptFinished(o.backend.Name(), o.target, o.attempts, err)
			if err != nil {
				o.transition(StateFailed)
				if ctx.Err() != nil {
					return retry.Unrecoverable(err)
				}
				return err
			}
			if skipped {
				result.Skipped = true
				o.transition(StateSkipped)
				return nil
			}
			o.transition(StateSucceeded)
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(maxAttempts)),
		retry.Delay(o.policy.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.WithTimer(o.clock),
		retry.OnRetry(func(n uint, err error) {
			ev := o.logger.Warn().Err(err).Int("attempt", int(n)+1).Int("max_attempts", maxAttempts)
			if int(n)+1 < maxAttempts {
				ev.Dur("retry_in", o.policy.RetryDelay).Msg("Attempt failed, retrying")
				return
			}
			ev.Msg("Attempt failed, no attempts left")
		}),
	)

	result.Attempts = o.attempts
	if err != nil {
		o.transition(StateFailedFinal)
		result.Error = err.Error()
		o.logger.Error().Err(err).Int("attempts", o.attempts).Msg("Target failed")
	} else {
		result.Success = true
		o.logger.Info().Bool("skipped", result.Skipped).Int("attempts", o.attempts).Msg("Target done")
	}
	o.observer.TargetFinished(o.backend.Name(), result, o.clock.Since(start))
	return result
}

// attempt runs one full trigger-then-poll cycle.
func (o *Operation) attempt(ctx context.Context) (bool, error) {
	logger := o.logger.With().Int("attempt", o.attempts).Logger()

	if o.policy.ResumeOnTimeout && o.pending.JobID != "" {
		logger.Info().Str("job", o.pending.JobID).Msg("Resuming poll of timed out job")
	} else {
		o.transition(StateTriggering)
		t := Trigger{Backend: o.backend, Logger: logger}
		handle, skipped, err := t.Fire(ctx, o.target)
		if err != nil {
			return false, err
		}
		if skipped {
			return true, nil
		}
		o.pending = handle
	}

	o.transition(StatePolling)
	p := Poller{
		Interval: o.policy.PollInterval,
		Timeout:  o.policy.Timeout,
		Clock:    o.clock,
		Logger:   logger,
	}
	err := p.Wait(ctx, o.pending.JobID, o.backend.JobStatus)
	if !errors.Is(err, ErrTimedOut) {
		o.pending = api.OperationHandle{}
	}
	return false, err
}
