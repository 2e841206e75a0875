package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/3cpo-dev/ahctl/pkg/api"
)

// recordingClock is a fake clock that advances by every requested wait and
// remembers each one.
type recordingClock struct {
	*clockwork.FakeClock
	mu     sync.Mutex
	sleeps []time.Duration
}

func newRecordingClock() *recordingClock {
	return &recordingClock{FakeClock: clockwork.NewFakeClock()}
}

func (c *recordingClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	c.Advance(d)
	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return ch
}

func (c *recordingClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

// countOf returns how many recorded waits equal d.
func (c *recordingClock) countOf(d time.Duration) int {
	n := 0
	for _, s := range c.Sleeps() {
		if s == d {
			n++
		}
	}
	return n
}

// mockBackend is a scripted Backend. Job ids are "<target id>#<n>" with n
// counting triggers per target from 1.
type mockBackend struct {
	targets    []api.Target
	listErr    error
	ineligible map[string]bool
	// rejectFirst answers the first N triggers of a target with 409.
	rejectFirst map[string]int
	omitJobID   bool
	// status scripts each poll; nil means successful immediately.
	status func(targetID string, job, poll int) api.StatusCode
	// fetchErrs fails the first N status fetches.
	fetchErrs int

	mu       sync.Mutex
	triggers map[string]int
	polls    map[string]int
	fetches  int
	events   []string
}

func (m *mockBackend) Name() string { return "mock" }

func (m *mockBackend) ListTargets(ctx context.Context) ([]api.Target, error) {
	return m.targets, m.listErr
}

func (m *mockBackend) record(event string) {
	m.events = append(m.events, event)
}

func (m *mockBackend) Eligible(ctx context.Context, target api.Target) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("eligible:" + target.Name)
	return !m.ineligible[target.ID], nil
}

func (m *mockBackend) Trigger(ctx context.Context, target api.Target) (*api.TriggerReply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.triggers == nil {
		m.triggers = map[string]int{}
	}
	m.triggers[target.ID]++
	m.record("trigger:" + target.Name)
	if m.triggers[target.ID] <= m.rejectFirst[target.ID] {
		return &api.TriggerReply{StatusCode: 409, Body: []byte(`{"detail":"busy"}`)}, nil
	}
	if m.omitJobID {
		return &api.TriggerReply{StatusCode: 202, Body: []byte(`{}`)}, nil
	}
	body, _ := json.Marshal(map[string]string{"job": fmt.Sprintf("%s#%d", target.ID, m.triggers[target.ID])})
	return &api.TriggerReply{StatusCode: 202, Body: body}, nil
}

func (m *mockBackend) JobID(body []byte) (string, error) {
	var out struct {
		Job string `json:"job"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	return out.Job, nil
}

func (m *mockBackend) JobStatus(ctx context.Context, jobID string) (api.OperationStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	if m.fetches <= m.fetchErrs {
		return api.OperationStatus{}, fmt.Errorf("connection reset")
	}
	if m.polls == nil {
		m.polls = map[string]int{}
	}
	poll := m.polls[jobID]
	m.polls[jobID]++

	targetID, n, _ := strings.Cut(jobID, "#")
	job, _ := strconv.Atoi(n)
	st := api.StatusSuccessful
	if m.status != nil {
		st = m.status(targetID, job, poll)
	}
	return api.OperationStatus{JobID: jobID, Status: st}, nil
}

func (m *mockBackend) triggerCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.triggers[id]
}

func (m *mockBackend) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	copy(out, m.events)
	return out
}

func targets(names ...string) []api.Target {
	out := make([]api.Target, len(names))
	for i, n := range names {
		out[i] = api.Target{ID: n, Name: n}
	}
	return out
}
