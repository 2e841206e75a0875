package core

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"

	"github.com/3cpo-dev/ahctl/pkg/api"
)

func TestAggregate(t *testing.T) {
	results := []api.SyncResult{
		{TargetID: "1", TargetName: "a", Success: true, Attempts: 1},
		{TargetID: "2", TargetName: "b", Success: false, Attempts: 3, Error: "job 9 finished with status failed"},
		{TargetID: "3", TargetName: "c", Success: true, Skipped: true, Attempts: 1},
		{TargetID: "4", TargetName: "d", Success: false, Attempts: 3, Error: "job 12: timed out"},
	}
	r := Aggregate(results)

	assert.Len(t, r.Results, 4)
	assert.Len(t, r.Succeeded, 2)
	assert.Len(t, r.Failed, 2)
	assert.Equal(t, 1, r.Skipped())
	assert.False(t, r.OK())
	assert.ErrorIs(t, r.Err(), ErrTargetsFailed)
	assert.EqualError(t, r.Err(), "2 of 4 target(s) failed")

	var buf bytes.Buffer
	assert.NoError(t, r.WriteDiagnostics(&buf))
	assert.Equal(t,
		"FAILED b (id 2): job 9 finished with status failed\nFAILED d (id 4): job 12: timed out\n",
		buf.String())
}

func TestAggregateAllSucceeded(t *testing.T) {
	r := Aggregate([]api.SyncResult{{TargetID: "1", Success: true}})
	assert.True(t, r.OK())
	assert.NoError(t, r.Err())

	var buf bytes.Buffer
	assert.NoError(t, r.WriteDiagnostics(&buf))
	assert.Empty(t, buf.String())
}

func TestReportLogIsSummaryOnly(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	r := Aggregate([]api.SyncResult{
		{TargetID: "1", TargetName: "a", Success: true},
		{TargetID: "2", TargetName: "b", Error: "job 9: timed out"},
		{TargetID: "3", TargetName: "c", Error: "job 10: timed out"},
	})
	r.Log()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"failed":2`)
	assert.Contains(t, lines[0], `"level":"error"`)
	assert.NotContains(t, buf.String(), "timed out")
}
