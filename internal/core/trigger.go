package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/3cpo-dev/ahctl/pkg/api"
)

// ErrNoJobID is returned when an accepted trigger reply names no job to poll.
var ErrNoJobID = errors.New("no job id returned")

// TriggerRejectedError is returned when the trigger call is not accepted.
type TriggerRejectedError struct {
	StatusCode int
	Body       string
}

func (e *TriggerRejectedError) Error() string {
	return fmt.Sprintf("trigger rejected with status %d: %s", e.StatusCode, e.Body)
}

// Trigger starts a remote job for one target after checking it is eligible.
type Trigger struct {
	Backend Backend
	Logger  zerolog.Logger
}

// Fire returns skipped=true without starting anything when the eligibility
// check says the target cannot currently be updated.
func (t *Trigger) Fire(ctx context.Context, target api.Target) (api.OperationHandle, bool, error) {
	handle := api.OperationHandle{Target: target}

	ok, err := t.Backend.Eligible(ctx, target)
	if err != nil {
		return handle, false, fmt.Errorf("check eligibility: %w", err)
	}
	if !ok {
		t.Logger.Info().Msg("Target cannot be updated, skipping")
		return handle, true, nil
	}

	reply, err := t.Backend.Trigger(ctx, target)
	if err != nil {
		return handle, false, fmt.Errorf("trigger: %w", err)
	}
	if reply.StatusCode != http.StatusAccepted {
		return handle, false, &TriggerRejectedError{StatusCode: reply.StatusCode, Body: string(reply.Body)}
	}

	id, err := t.Backend.JobID(reply.Body)
	if err != nil {
		return handle, false, fmt.Errorf("parse trigger reply: %w", err)
	}
	if id == "" {
		return handle, false, ErrNoJobID
	}
	handle.JobID = id
	t.Logger.Info().Str("job", id).Msg("Job started")
	return handle, false, nil
}
