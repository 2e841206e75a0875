package core

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3cpo-dev/ahctl/pkg/api"
)

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeSequential, m)
	m, err = ParseMode("parallel")
	require.NoError(t, err)
	assert.Equal(t, ModeParallel, m)
	_, err = ParseMode("random")
	assert.Error(t, err)
}

func newTestCoordinator(b *mockBackend, clock *recordingClock, mode Mode, delay time.Duration) *Coordinator {
	policy := testPolicy()
	policy.MaxAttempts = 1
	return &Coordinator{
		Mode:        mode,
		TargetDelay: delay,
		Clock:       clock,
		NewOperation: func(t api.Target) *Operation {
			return NewOperation(t, b, policy, WithClock(clock))
		},
	}
}

func TestSequentialKeepsOrderAndDelaysBetweenTargets(t *testing.T) {
	b := &mockBackend{status: func(id string, _, _ int) api.StatusCode {
		if id == "B" {
			return api.StatusFailed
		}
		return api.StatusSuccessful
	}}
	clock := newRecordingClock()
	delay := 5 * time.Second

	results := newTestCoordinator(b, clock, ModeSequential, delay).Run(context.Background(), targets("A", "B", "C"))

	require.Len(t, results, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{results[0].TargetID, results[1].TargetID, results[2].TargetID})
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.True(t, results[2].Success)
	assert.Equal(t, 2, clock.countOf(delay))
	assert.Equal(t, []string{"eligible:A", "trigger:A", "eligible:B", "trigger:B", "eligible:C", "trigger:C"}, b.Events())
}

func TestSequentialSingleTargetHasNoDelay(t *testing.T) {
	clock := newRecordingClock()
	results := newTestCoordinator(&mockBackend{}, clock, ModeSequential, 5*time.Second).Run(context.Background(), targets("A"))
	require.Len(t, results, 1)
	assert.Empty(t, clock.Sleeps())
}

func TestParallelKeepsResultOrder(t *testing.T) {
	b := &mockBackend{status: func(id string, _, _ int) api.StatusCode {
		if id == "B" {
			return api.StatusFailed
		}
		return api.StatusSuccessful
	}}
	clock := newRecordingClock()

	results := newTestCoordinator(b, clock, ModeParallel, 5*time.Second).Run(context.Background(), targets("A", "B", "C", "D"))

	require.Len(t, results, 4)
	for i, id := range []string{"A", "B", "C", "D"} {
		assert.Equal(t, id, results[i].TargetID)
		assert.Equal(t, id != "B", results[i].Success)
	}
	assert.Zero(t, clock.countOf(5*time.Second), "no inter-target delay in parallel mode")
}

// blockingBackend tracks how many eligibility checks run at once.
type blockingBackend struct {
	mockBackend
	inFlight, peak atomic.Int32
}

func (b *blockingBackend) Eligible(ctx context.Context, target api.Target) (bool, error) {
	n := b.inFlight.Add(1)
	defer b.inFlight.Add(-1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return true, nil
}

func TestParallelHonoursLimit(t *testing.T) {
	b := &blockingBackend{}
	clock := newRecordingClock()
	policy := testPolicy()
	c := &Coordinator{
		Mode:        ModeParallel,
		MaxParallel: 2,
		Clock:       clock,
		NewOperation: func(t api.Target) *Operation {
			return NewOperation(t, b, policy, WithClock(clock))
		},
	}

	results := c.Run(context.Background(), targets("A", "B", "C", "D", "E"))
	require.Len(t, results, 5)
	assert.LessOrEqual(t, b.peak.Load(), int32(2))
}

func TestSequentialCancelledStillReportsEveryTarget(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	clock := newRecordingClock()
	results := newTestCoordinator(&mockBackend{}, clock, ModeSequential, time.Second).Run(ctx, targets("A", "B"))
	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.False(t, results[1].Success)
}
