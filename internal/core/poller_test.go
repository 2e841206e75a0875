package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3cpo-dev/ahctl/pkg/api"
)

func scripted(statuses ...api.StatusCode) (StatusFunc, *int) {
	calls := 0
	return func(ctx context.Context, jobID string) (api.OperationStatus, error) {
		st := statuses[min(calls, len(statuses)-1)]
		calls++
		return api.OperationStatus{JobID: jobID, Status: st}, nil
	}, &calls
}

func TestPollerSleepsBetweenNonTerminalPolls(t *testing.T) {
	clock := newRecordingClock()
	p := Poller{Interval: 10 * time.Second, Timeout: time.Minute, Clock: clock, Logger: zerolog.Nop()}
	fetch, calls := scripted(api.StatusPending, api.StatusPending, api.StatusSuccessful)

	require.NoError(t, p.Wait(context.Background(), "1", fetch))
	assert.Equal(t, 3, *calls)
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, clock.Sleeps())
}

func TestPollerTimesOut(t *testing.T) {
	clock := newRecordingClock()
	timeout, interval := 10*time.Second, 3*time.Second
	p := Poller{Interval: interval, Timeout: timeout, Clock: clock, Logger: zerolog.Nop()}
	fetch, _ := scripted(api.StatusRunning)

	start := clock.Now()
	err := p.Wait(context.Background(), "1", fetch)
	require.ErrorIs(t, err, ErrTimedOut)

	elapsed := clock.Since(start)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+interval)
}

func TestPollerFailureStatuses(t *testing.T) {
	for _, st := range []api.StatusCode{api.StatusFailed, api.StatusError, api.StatusCanceled} {
		p := Poller{Interval: time.Second, Timeout: time.Minute, Clock: newRecordingClock(), Logger: zerolog.Nop()}
		fetch, _ := scripted(api.StatusRunning, st)

		err := p.Wait(context.Background(), "7", fetch)
		var jf *JobFailedError
		require.ErrorAs(t, err, &jf, string(st))
		assert.Equal(t, st, jf.Status)
		assert.Equal(t, "7", jf.JobID)
	}
}

func TestPollerFailedFlagWins(t *testing.T) {
	p := Poller{Interval: time.Second, Timeout: time.Minute, Clock: newRecordingClock(), Logger: zerolog.Nop()}
	fetch := func(ctx context.Context, jobID string) (api.OperationStatus, error) {
		return api.OperationStatus{JobID: jobID, Status: api.StatusRunning, Failed: true}, nil
	}
	var jf *JobFailedError
	assert.ErrorAs(t, p.Wait(context.Background(), "1", fetch), &jf)
}

func TestPollerCutsOffFetchAtTimeout(t *testing.T) {
	timeout := 200 * time.Millisecond
	p := Poller{Interval: MinPollInterval, Timeout: timeout, Logger: zerolog.Nop()}
	fetch := func(ctx context.Context, jobID string) (api.OperationStatus, error) {
		<-ctx.Done()
		return api.OperationStatus{}, ctx.Err()
	}

	start := time.Now()
	err := p.Wait(context.Background(), "1", fetch)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrTimedOut)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+MinPollInterval)
}

func TestPollerToleratesFetchErrors(t *testing.T) {
	clock := newRecordingClock()
	p := Poller{Interval: 2 * time.Second, Timeout: time.Minute, Clock: clock, Logger: zerolog.Nop()}
	calls := 0
	fetch := func(ctx context.Context, jobID string) (api.OperationStatus, error) {
		calls++
		if calls <= 2 {
			return api.OperationStatus{}, errors.New("502 bad gateway")
		}
		return api.OperationStatus{JobID: jobID, Status: api.StatusSuccessful}, nil
	}

	require.NoError(t, p.Wait(context.Background(), "1", fetch))
	assert.Equal(t, 3, calls)
	assert.Len(t, clock.Sleeps(), 2)
}

func TestPollerUnknownStatusIsNotTerminal(t *testing.T) {
	clock := newRecordingClock()
	p := Poller{Interval: time.Second, Timeout: time.Minute, Clock: clock, Logger: zerolog.Nop()}
	fetch, _ := scripted(api.StatusUnknown, api.StatusWaiting, api.StatusSuccessful)

	require.NoError(t, p.Wait(context.Background(), "1", fetch))
	assert.Len(t, clock.Sleeps(), 2)
}

func TestPollerClampsInterval(t *testing.T) {
	clock := newRecordingClock()
	p := Poller{Interval: 0, Timeout: time.Minute, Clock: clock, Logger: zerolog.Nop()}
	fetch, _ := scripted(api.StatusRunning, api.StatusSuccessful)

	require.NoError(t, p.Wait(context.Background(), "1", fetch))
	assert.Equal(t, []time.Duration{MinPollInterval}, clock.Sleeps())
}

func TestPollerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Poller{Interval: time.Second, Timeout: time.Minute, Clock: newRecordingClock(), Logger: zerolog.Nop()}
	fetch := func(ctx context.Context, jobID string) (api.OperationStatus, error) {
		cancel()
		return api.OperationStatus{}, ctx.Err()
	}
	assert.ErrorIs(t, p.Wait(ctx, "1", fetch), context.Canceled)
}
