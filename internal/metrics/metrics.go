// Package metrics records batch run counters and writes them in the
// Prometheus text exposition format for a node exporter textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "npprobes"

// Recorder holds the run's collectors on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	sessions    *prometheus.CounterVec
	probes      *prometheus.CounterVec
	channels    prometheus.Counter
	units       prometheus.Counter
	duration    prometheus.Gauge
	lastSuccess prometheus.Gauge
}

// New returns a recorder with all collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Sessions processed, by outcome.",
		}, []string{"outcome"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Probes processed, by outcome.",
		}, []string{"outcome"}),
		channels: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channels_total",
			Help:      "Channel records emitted.",
		}),
		units: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_total",
			Help:      "Unit records emitted.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last packaging run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last session packaged without a fatal error.",
		}),
	}
	r.registry.MustRegister(r.sessions, r.probes, r.channels, r.units, r.duration, r.lastSuccess)
	return r
}

// Session outcomes.
const (
	OutcomePackaged = "packaged"
	OutcomeSkipped  = "skipped"
	OutcomeNotReady = "not_ready"
	OutcomeFailed   = "failed"
)

// ObserveSession records a finished session run.
func (r *Recorder) ObserveSession(outcome string, elapsed time.Duration) {
	r.sessions.WithLabelValues(outcome).Inc()
	r.duration.Set(elapsed.Seconds())
	if outcome == OutcomePackaged {
		r.lastSuccess.SetToCurrentTime()
	}
}

// ObserveProbe records one packaged probe and its record counts.
func (r *Recorder) ObserveProbe(channels, units int) {
	r.probes.WithLabelValues(OutcomePackaged).Inc()
	r.channels.Add(float64(channels))
	r.units.Add(float64(units))
}

// ObserveSkippedProbe records a probe dropped for missing or invalid input.
func (r *Recorder) ObserveSkippedProbe() {
	r.probes.WithLabelValues(OutcomeSkipped).Inc()
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// WriteTextfile writes the current values to path. An empty path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
