package core

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3cpo-dev/ahctl/pkg/api"
)

type fakeApprovalAPI struct {
	platform    bool
	probeErr    error
	moveReplies []int
	visibleAt   int
	repos       map[string]string
	moveStatus  int

	mu        sync.Mutex
	moves     int
	lookups   int
	repoMoves []string
}

func (f *fakeApprovalAPI) PlatformAPI(ctx context.Context) (bool, error) {
	return f.platform, f.probeErr
}

func (f *fakeApprovalAPI) MoveToPublished(ctx context.Context, ref api.CollectionRef) (*api.TriggerReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := f.moveReplies[min(f.moves, len(f.moveReplies)-1)]
	f.moves++
	return &api.TriggerReply{StatusCode: status}, nil
}

func (f *fakeApprovalAPI) FindCollectionVersion(ctx context.Context, ref api.CollectionRef) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.lookups < f.visibleAt {
		return "", nil
	}
	return "/cv/1/", nil
}

func (f *fakeApprovalAPI) FindRepository(ctx context.Context, name string) (string, error) {
	return f.repos[name], nil
}

func (f *fakeApprovalAPI) MoveCollectionVersion(ctx context.Context, fromRepo, version, toRepo string) (*api.TriggerReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repoMoves = append(f.repoMoves, fromRepo+"|"+version+"|"+toRepo)
	status := f.moveStatus
	if status == 0 {
		status = http.StatusAccepted
	}
	return &api.TriggerReply{StatusCode: status, Body: []byte("denied")}, nil
}

var testRef = api.CollectionRef{Namespace: "acme", Name: "tools", Version: "1.0.0"}

func TestApprovalTimingAttempts(t *testing.T) {
	assert.Equal(t, 30, ApprovalTiming{Timeout: 300 * time.Second, Interval: 10 * time.Second}.Attempts())
	assert.Equal(t, 3, ApprovalTiming{Timeout: 35 * time.Second, Interval: 10 * time.Second}.Attempts())
	assert.Equal(t, 1, ApprovalTiming{Timeout: 5 * time.Second, Interval: 10 * time.Second}.Attempts())
	assert.Equal(t, 4, ApprovalTiming{Timeout: 2 * time.Second, Interval: 0}.Attempts())
}

func TestNewApproverSelection(t *testing.T) {
	ctx := context.Background()
	timing := ApprovalTiming{Timeout: time.Minute, Interval: time.Second}

	assert.Equal(t, "direct", NewApprover(ctx, StrategyAuto, &fakeApprovalAPI{}, timing).Name())
	assert.Equal(t, "repository", NewApprover(ctx, StrategyAuto, &fakeApprovalAPI{platform: true}, timing).Name())
	assert.Equal(t, "direct", NewApprover(ctx, StrategyAuto, &fakeApprovalAPI{probeErr: errors.New("dial tcp")}, timing).Name())
	assert.Equal(t, "repository", NewApprover(ctx, StrategyRepository, &fakeApprovalAPI{}, timing).Name())
	assert.Equal(t, "direct", NewApprover(ctx, StrategyDirect, &fakeApprovalAPI{platform: true}, timing).Name())
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyAuto, s)
	_, err = ParseStrategy("sideways")
	assert.Error(t, err)
}

func TestDirectMoveRetriesUntilAccepted(t *testing.T) {
	f := &fakeApprovalAPI{moveReplies: []int{409, 409, 202}}
	clock := newRecordingClock()
	d := &DirectMove{API: f, Timing: ApprovalTiming{Timeout: time.Minute, Interval: 10 * time.Second, Clock: clock}}

	require.NoError(t, d.Approve(context.Background(), testRef))
	assert.Equal(t, 3, f.moves)
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, clock.Sleeps())
}

func TestDirectMoveGivesUp(t *testing.T) {
	f := &fakeApprovalAPI{moveReplies: []int{500}}
	d := &DirectMove{API: f, Timing: ApprovalTiming{Timeout: 30 * time.Second, Interval: 10 * time.Second, Clock: newRecordingClock()}}

	err := d.Approve(context.Background(), testRef)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to approve collection after 3 attempts")
	var rejected *TriggerRejectedError
	assert.ErrorAs(t, err, &rejected)
	assert.Equal(t, 3, f.moves)
}

func TestRepositoryMoveWaitsForVersion(t *testing.T) {
	f := &fakeApprovalAPI{
		visibleAt: 3,
		repos:     map[string]string{"staging": "/repo/staging/", "published": "/repo/published/"},
	}
	clock := newRecordingClock()
	r := &RepositoryMove{API: f, Timing: ApprovalTiming{Timeout: time.Minute, Interval: 5 * time.Second, Clock: clock}}

	require.NoError(t, r.Approve(context.Background(), testRef))
	assert.Equal(t, 3, f.lookups)
	assert.Len(t, clock.Sleeps(), 2)
	assert.Equal(t, []string{"/repo/staging/|/cv/1/|/repo/published/"}, f.repoMoves)
}

func TestRepositoryMoveVersionNeverVisible(t *testing.T) {
	f := &fakeApprovalAPI{visibleAt: 100}
	r := &RepositoryMove{API: f, Timing: ApprovalTiming{Timeout: 20 * time.Second, Interval: 5 * time.Second, Clock: newRecordingClock()}}

	err := r.Approve(context.Background(), testRef)
	assert.ErrorIs(t, err, ErrCollectionNotFound)
	assert.Equal(t, 4, f.lookups)
	assert.Empty(t, f.repoMoves)
}

func TestRepositoryMoveMissingRepository(t *testing.T) {
	f := &fakeApprovalAPI{repos: map[string]string{"staging": "/repo/staging/"}}
	r := &RepositoryMove{API: f, Timing: ApprovalTiming{Timeout: time.Minute, Interval: time.Second, Clock: newRecordingClock()}}

	err := r.Approve(context.Background(), testRef)
	assert.ErrorIs(t, err, ErrRepositoryNotFound)
	assert.Contains(t, err.Error(), "published")
	assert.Empty(t, f.repoMoves)
}

func TestRepositoryMoveRejectedIsSingleShot(t *testing.T) {
	f := &fakeApprovalAPI{
		repos:      map[string]string{"staging": "/s/", "published": "/p/"},
		moveStatus: http.StatusForbidden,
	}
	r := &RepositoryMove{API: f, Timing: ApprovalTiming{Timeout: time.Minute, Interval: time.Second, Clock: newRecordingClock()}}

	err := r.Approve(context.Background(), testRef)
	assert.EqualError(t, err, "failed to move collection: denied")
	assert.Len(t, f.repoMoves, 1)
}
