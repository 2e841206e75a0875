package core

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/ahctl/pkg/api"
)

// ErrTargetsFailed is wrapped by Report.Err when at least one target failed.
var ErrTargetsFailed = errors.New("target(s) failed")

// Report partitions the results of a run. Both partitions keep input order.
type Report struct {
	Results   []api.SyncResult
	Succeeded []api.SyncResult
	Failed    []api.SyncResult
}

func Aggregate(results []api.SyncResult) Report {
	r := Report{Results: results}
	for _, res := range results {
		if res.Success {
			r.Succeeded = append(r.Succeeded, res)
		} else {
			r.Failed = append(r.Failed, res)
		}
	}
	return r
}

func (r Report) OK() bool { return len(r.Failed) == 0 }

func (r Report) Skipped() int {
	n := 0
	for _, res := range r.Succeeded {
		if res.Skipped {
			n++
		}
	}
	return n
}

func (r Report) Err() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("%d of %d %w", len(r.Failed), len(r.Results), ErrTargetsFailed)
}

// WriteDiagnostics writes one line per failed target.
func (r Report) WriteDiagnostics(w io.Writer) error {
	for _, res := range r.Failed {
		if _, err := fmt.Fprintf(w, "FAILED %s (id %s): %s\n", res.TargetName, res.TargetID, res.Error); err != nil {
			return err
		}
	}
	return nil
}

// Log emits the run summary. Failed targets are already logged by their
// operation and listed by WriteDiagnostics.
func (r Report) Log() {
	ev := log.Info()
	if !r.OK() {
		ev = log.Error()
	}
	ev.Int("total", len(r.Results)).
		Int("succeeded", len(r.Succeeded)).
		Int("skipped", r.Skipped()).
		Int("failed", len(r.Failed)).
		Msg("Sync finished")
}
