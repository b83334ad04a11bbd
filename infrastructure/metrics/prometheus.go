package metrics

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"dubbing-service/infrastructure/cloud"
	"dubbing-service/infrastructure/ffmpeg"
)

const namespace = "dubbing"

// Metrics exports pipeline, media tool and cloud retry metrics to Prometheus
type Metrics struct {
	stageDuration   *prometheus.HistogramVec
	stageFailures   *prometheus.CounterVec
	toolInvocations *prometheus.CounterVec
	toolInFlight    *prometheus.GaugeVec
	cloudRetries    *prometheus.CounterVec
}

// NewMetrics registers every collector with reg.
// Collectors that are already registered are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Latency of pipeline stages.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"stage", "status"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Count of failed pipeline stages by error kind.",
		}, []string{"stage", "kind"}),
		toolInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_tool_invocations_total",
			Help:      "Count of media tool subprocesses by exit code.",
		}, []string{"tool", "exit_code"}),
		toolInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "media_tool_in_flight",
			Help:      "Media tool subprocesses currently running.",
		}, []string{"tool"}),
		cloudRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cloud_retries_total",
			Help:      "Count of retried cloud calls.",
		}, []string{"operation"}),
	}

	var err error
	if m.stageDuration, err = register(reg, m.stageDuration); err != nil {
		return nil, err
	}
	if m.stageFailures, err = register(reg, m.stageFailures); err != nil {
		return nil, err
	}
	if m.toolInvocations, err = register(reg, m.toolInvocations); err != nil {
		return nil, err
	}
	if m.toolInFlight, err = register(reg, m.toolInFlight); err != nil {
		return nil, err
	}
	if m.cloudRetries, err = register(reg, m.cloudRetries); err != nil {
		return nil, err
	}
	return m, nil
}

// MustNewMetrics is like NewMetrics but panics on registration errors
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	m, err := NewMetrics(reg)
	if err != nil {
		panic(err)
	}
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register metrics collector: %w", err)
	}
	return c, nil
}

// StageFinished records a completed stage. kind is empty on success.
func (m *Metrics) StageFinished(stage string, elapsed time.Duration, kind string) {
	if m == nil {
		return
	}
	status := "ok"
	if kind != "" {
		status = "error"
		m.stageFailures.WithLabelValues(stage, kind).Inc()
	}
	m.stageDuration.WithLabelValues(stage, status).Observe(elapsed.Seconds())
}

// ToolStarted implements ffmpeg.Observer
func (m *Metrics) ToolStarted(tool string) {
	if m == nil {
		return
	}
	m.toolInFlight.WithLabelValues(tool).Inc()
}

// ToolFinished implements ffmpeg.Observer
func (m *Metrics) ToolFinished(tool string, exitCode int, _ time.Duration) {
	if m == nil {
		return
	}
	m.toolInFlight.WithLabelValues(tool).Dec()
	m.toolInvocations.WithLabelValues(tool, strconv.Itoa(exitCode)).Inc()
}

// CloudRetry implements cloud.RetryObserver
func (m *Metrics) CloudRetry(op string) {
	if m == nil {
		return
	}
	m.cloudRetries.WithLabelValues(op).Inc()
}

var (
	_ ffmpeg.Observer     = (*Metrics)(nil)
	_ cloud.RetryObserver = (*Metrics)(nil)
)
