package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nao1215/uxaudit/internal/model"
)

// FileName is the metrics file written into the run directory.
const FileName = "metrics.prom"

const namespace = "uxaudit"

// Recorder holds the metrics of one run.
type Recorder struct {
	registry *prometheus.Registry

	targets          *prometheus.CounterVec
	captureAttempts  *prometheus.CounterVec
	dedupRejections  prometheus.Counter
	analysisRequests *prometheus.CounterVec
	captureDuration  *prometheus.HistogramVec
	analysisDuration prometheus.Histogram
	runDuration      prometheus.Gauge
}

// NewRecorder creates a recorder with a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		targets: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "targets_total",
				Help:      "Manifest entries by target kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		captureAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "capture_attempts_total",
				Help:      "Capture attempts by target kind and result",
			},
			[]string{"kind", "result"}, // "ok", "error"
		),
		dedupRejections: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dedup_rejections_total",
				Help:      "Captures rejected as near-duplicates",
			},
		),
		analysisRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analysis_requests_total",
				Help:      "Vision model requests by result",
			},
			[]string{"result"},
		),
		captureDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "capture_duration_seconds",
				Help:      "Duration of page and section captures in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
			},
			[]string{"kind"},
		),
		analysisDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "analysis_duration_seconds",
				Help:      "Duration of vision model requests in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
			},
		),
		runDuration: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall-clock duration of the run in seconds",
			},
		),
	}
}

// Registry returns the run registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveEntry counts a manifest entry. It matches manifest.Observer.
func (r *Recorder) ObserveEntry(entry model.ManifestEntry) {
	r.targets.WithLabelValues(string(entry.Target.Kind), string(entry.Outcome)).Inc()
	if entry.Outcome == model.OutcomeDuplicate {
		r.dedupRejections.Inc()
	}
}

// ObserveCapture records one capture attempt. It matches capture.Observer.
func (r *Recorder) ObserveCapture(kind model.TargetKind, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.captureAttempts.WithLabelValues(string(kind), result).Inc()
	r.captureDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// ObserveAnalysis records one model request. It matches analysis.Observer.
func (r *Recorder) ObserveAnalysis(result string, elapsed time.Duration) {
	r.analysisRequests.WithLabelValues(result).Inc()
	r.analysisDuration.Observe(elapsed.Seconds())
}

// SetRunDuration records the total run time.
func (r *Recorder) SetRunDuration(d time.Duration) {
	r.runDuration.Set(d.Seconds())
}

// WriteFile writes all metrics in the text exposition format.
func (r *Recorder) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
