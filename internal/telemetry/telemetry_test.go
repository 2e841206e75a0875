package telemetry

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3cpo-dev/ahctl/pkg/api"
)

func TestRecorderCountsAttemptsAndResults(t *testing.T) {
	r := NewRecorder()
	target := api.Target{ID: "1", Name: "a"}

	r.AttemptFinished("projects", target, 1, errors.New("boom"))
	r.AttemptFinished("projects", target, 2, nil)
	r.TargetFinished("projects", api.SyncResult{TargetID: "1", Success: true}, 3*time.Second)
	r.TargetFinished("projects", api.SyncResult{TargetID: "2", Success: true, Skipped: true}, time.Second)
	r.TargetFinished("projects", api.SyncResult{TargetID: "3"}, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.attempts.WithLabelValues("projects", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.attempts.WithLabelValues("projects", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.results.WithLabelValues("projects", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.results.WithLabelValues("projects", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.results.WithLabelValues("projects", "failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.duration))
}

func TestRecorderApprovals(t *testing.T) {
	r := NewRecorder()
	r.RecordApproval("direct", nil)
	r.RecordApproval("repository", errors.New("nope"))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.approvals.WithLabelValues("direct", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.approvals.WithLabelValues("repository", "failed")))
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.RecordApproval("direct", nil)
	r.Finish(time.Unix(1700000000, 0))

	path := filepath.Join(t.TempDir(), "ahctl.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.True(t, strings.Contains(out, `ahctl_approvals_total{outcome="ok",strategy="direct"} 1`), out)
	assert.Contains(t, out, "ahctl_last_run_timestamp_seconds 1.7e+09")
}

func TestWriteTextfileEmptyPath(t *testing.T) {
	assert.NoError(t, NewRecorder().WriteTextfile(""))
}
