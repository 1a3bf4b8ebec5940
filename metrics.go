package biflow

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/biflow-io/biflow/state"
)

// Metrics holds the prometheus collectors for pipeline execution.
type Metrics struct {
	// RunsTotal counts pipeline runs by pipeline name and outcome.
	RunsTotal *prometheus.CounterVec
	// RunDuration observes total run duration by pipeline name.
	RunDuration *prometheus.HistogramVec
	// StageDuration observes per-stage duration by stage name and outcome.
	StageDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the pipeline collectors on reg.
// Pass prometheus.DefaultRegisterer for the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "biflow",
			Name:      "pipeline_runs_total",
			Help:      "Total pipeline runs by outcome.",
		}, []string{"pipeline", "outcome"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "biflow",
			Name:      "pipeline_run_duration_seconds",
			Help:      "Wall-clock duration of pipeline runs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"pipeline"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "biflow",
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock duration of stage executions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage", "outcome"}),
	}
	reg.MustRegister(m.RunsTotal, m.RunDuration, m.StageDuration)
	return m
}

// Middleware returns pipeline-level middleware recording run counts and
// durations.
func (m *Metrics) Middleware() Middleware {
	return func(next RunnerFunc) RunnerFunc {
		return func(ctx context.Context, pipeline *Pipeline, st *state.Store, logger Logger) error {
			start := time.Now()
			err := next(ctx, pipeline, st, logger)

			outcome := "success"
			if err != nil {
				outcome = "failure"
			}
			m.RunsTotal.WithLabelValues(pipeline.Name, outcome).Inc()
			m.RunDuration.WithLabelValues(pipeline.Name).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// StageMiddleware returns stage-level middleware recording per-stage
// durations and outcomes.
func (m *Metrics) StageMiddleware() StageMiddleware {
	return func(next StageFunc) StageFunc {
		return func(ctx context.Context, stage *Stage, st *state.Store, logger Logger) error {
			start := time.Now()
			err := next(ctx, stage, st, logger)

			outcome := "success"
			if err != nil {
				outcome = "failure"
			}
			m.StageDuration.WithLabelValues(stage.Name, outcome).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
