package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Recorder owns the collectors for a single run. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	registry *prometheus.Registry

	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	routes          *prometheus.CounterVec
	runs            *prometheus.CounterVec
	artifactBytes   prometheus.Histogram
}

// NewRecorder registers the run collectors on a private registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "videonorm_transcode_attempts_total",
			Help: "Transcode strategy attempts by outcome",
		}, []string{"strategy", "outcome"}),
		attemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "videonorm_transcode_attempt_duration_seconds",
			Help:    "Wall time of a transcode strategy attempt",
			Buckets: prometheus.ExponentialBuckets(0.5, 2.0, 12), // 0.5s to ~17m
		}, []string{"strategy"}),
		routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "videonorm_routes_total",
			Help: "Artifacts placed by destination",
		}, []string{"destination"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "videonorm_runs_total",
			Help: "Pipeline runs by terminal outcome",
		}, []string{"outcome"}),
		artifactBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "videonorm_artifact_bytes",
			Help:    "Size of accepted transcode artifacts",
			Buckets: prometheus.ExponentialBuckets(1<<20, 2.0, 12), // 1MiB to 2GiB
		}),
	}
	r.registry.MustRegister(r.attempts, r.attemptDuration, r.routes, r.runs, r.artifactBytes)
	return r
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveAttempt records one strategy attempt.
func (r *Recorder) ObserveAttempt(strategy string, ok bool, elapsed time.Duration) {
	if r == nil {
		return
	}
	outcome := "failed"
	if ok {
		outcome = "succeeded"
	}
	r.attempts.WithLabelValues(strategy, outcome).Inc()
	r.attemptDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

// ObserveArtifact records the size of an accepted artifact.
func (r *Recorder) ObserveArtifact(size int64) {
	if r == nil {
		return
	}
	r.artifactBytes.Observe(float64(size))
}

// ObserveRoute records where an artifact was placed.
func (r *Recorder) ObserveRoute(destination string) {
	if r == nil {
		return
	}
	r.routes.WithLabelValues(destination).Inc()
}

// ObserveRun records the terminal outcome of a run.
func (r *Recorder) ObserveRun(outcome string) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(outcome).Inc()
}

// Push sends the collected metrics to a Pushgateway. An empty url is a no-op.
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	if r == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
