package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/ahctl/pkg/api"
)

const namespace = "ahctl"

// Recorder collects attempt, result and approval metrics for one process run.
// It satisfies core.Observer.
type Recorder struct {
	registry *prometheus.Registry

	attempts  *prometheus.CounterVec
	results   *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	approvals *prometheus.CounterVec
	lastRun   prometheus.Gauge
}

// NewRecorder creates a recorder backed by its own registry so repeated runs
// in one process (tests) never collide on the default registerer.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Trigger-and-poll attempts by backend and outcome.",
		}, []string{"backend", "outcome"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "targets_total",
			Help:      "Final per-target results by backend and outcome.",
		}, []string{"backend", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "target_duration_seconds",
			Help:      "Wall time spent on one target including retries.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"backend"}),
		approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_total",
			Help:      "Collection approvals by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}
	r.registry.MustRegister(r.attempts, r.results, r.duration, r.approvals, r.lastRun)
	return r
}

func outcome(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}

func (r *Recorder) AttemptFinished(backend string, target api.Target, attempt int, err error) {
	r.attempts.WithLabelValues(backend, outcome(err)).Inc()
}

func (r *Recorder) TargetFinished(backend string, result api.SyncResult, elapsed time.Duration) {
	o := "failed"
	switch {
	case result.Skipped:
		o = "skipped"
	case result.Success:
		o = "ok"
	}
	r.results.WithLabelValues(backend, o).Inc()
	r.duration.WithLabelValues(backend).Observe(elapsed.Seconds())
}

func (r *Recorder) RecordApproval(strategy string, err error) {
	r.approvals.WithLabelValues(strategy, outcome(err)).Inc()
}

// Finish stamps the run completion time.
func (r *Recorder) Finish(now time.Time) {
	r.lastRun.Set(float64(now.Unix()))
}

// WriteTextfile writes every metric in the text exposition format, for the
// node_exporter textfile collector. An empty path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return err
	}
	log.Debug().Str("path", path).Msg("Metrics written")
	return nil
}
