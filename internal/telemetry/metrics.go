// Package telemetry exports controller activity as Prometheus metrics.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromMetrics implements controller.Metrics using Prometheus.
type PromMetrics struct {
	operations   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	channelValid *prometheus.GaugeVec
	refreshes    *prometheus.CounterVec
}

// NewMetrics creates and registers the euiccctl metrics.
// If registry is nil, it uses the global default registry.
func NewMetrics(registry prometheus.Registerer) *PromMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	m := &PromMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "euiccctl",
			Name:      "operations_total",
			Help:      "Profile operations by kind and outcome.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "euiccctl",
			Name:      "operation_duration_seconds",
			Help:      "Time spent in profile operations, including waiting on the card.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"op"}),
		channelValid: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "euiccctl",
			Name:      "channel_valid",
			Help:      "Whether the slot's channel handle is usable (1) or invalidated (0).",
		}, []string{"slot"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "euiccctl",
			Name:      "refreshes_total",
			Help:      "Profile list fetches by result.",
		}, []string{"result"}),
	}

	registry.MustRegister(m.operations, m.duration, m.channelValid, m.refreshes)
	return m
}

func (m *PromMetrics) ObserveOperation(_ int, op, outcome string, d time.Duration) {
	m.operations.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *PromMetrics) ObserveRefresh(_ int, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *PromMetrics) SetChannelValid(slot int, valid bool) {
	v := 0.0
	if valid {
		v = 1
	}
	m.channelValid.WithLabelValues(strconv.Itoa(slot)).Set(v)
}

// Handler returns the metrics handler for gatherer. A nil gatherer serves
// the default registry.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
