// Package metrics exposes classifier and daemon counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/markus-lassfolk/hifiwifi/pkg"
)

// Metrics owns a private registry so tests and multiple daemons in one
// process do not collide on the global one
type Metrics struct {
	registry *prometheus.Registry

	classifications *prometheus.CounterVec
	recommendations *prometheus.CounterVec
	weightedScore   *prometheus.HistogramVec
	roomScore       *prometheus.GaugeVec
	roomAcceptable  *prometheus.GaugeVec
	sinkErrors      *prometheus.CounterVec
	probeLoss       prometheus.Gauge
	probeJitter     prometheus.Gauge
	cycleDuration   prometheus.Histogram
}

// New registers all collectors under the given namespace
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "hifiwifi"
	}
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Measurements classified, by activity and overall level.",
		}, []string{"activity", "overall"}),
		recommendations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendations_total",
			Help:      "Recommendations made, by action and reason code.",
		}, []string{"action", "reason"}),
		weightedScore: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "weighted_score",
			Help:      "Distribution of activity-weighted scores.",
			Buckets:   []float64{1.5, 2.5, 3.5, 4.5, 5},
		}, []string{"activity"}),
		roomScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "room_quality_score",
			Help:      "Latest weighted score per room.",
		}, []string{"room"}),
		roomAcceptable: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "room_acceptable",
			Help:      "1 when the latest measurement in the room is acceptable for its activity.",
		}, []string{"room", "activity"}),
		sinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Failures writing reports to a store or publisher.",
		}, []string{"sink"}),
		probeLoss: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "probe_packet_loss_percent",
			Help:      "Packet loss of the last local probe batch.",
		}),
		probeJitter: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "probe_jitter_ms",
			Help:      "Jitter of the last local probe window.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Time spent analysing one measurement.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
	}

	reg.MustRegister(
		m.classifications,
		m.recommendations,
		m.weightedScore,
		m.roomScore,
		m.roomAcceptable,
		m.sinkErrors,
		m.probeLoss,
		m.probeJitter,
		m.cycleDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveReport records one analysed measurement
func (m *Metrics) ObserveReport(r *pkg.RoomReport, seconds float64) {
	c := r.Classification
	m.classifications.WithLabelValues(c.Activity, c.OverallClassification.String()).Inc()
	m.recommendations.WithLabelValues(string(r.Recommendation.Action), r.Recommendation.ReasonCode).Inc()
	m.weightedScore.WithLabelValues(c.Activity).Observe(c.WeightedScore)
	m.roomScore.WithLabelValues(r.Room()).Set(c.WeightedScore)

	acceptable := 0.0
	if c.IsAcceptable {
		acceptable = 1
	}
	m.roomAcceptable.WithLabelValues(r.Room(), c.Activity).Set(acceptable)
	m.cycleDuration.Observe(seconds)
}

// SinkError counts a failed write to a store or publisher
func (m *Metrics) SinkError(sink string) {
	m.sinkErrors.WithLabelValues(sink).Inc()
}

// ObserveProbe records the last local probe figures
func (m *Metrics) ObserveProbe(lossPercent, jitterMs float64) {
	m.probeLoss.Set(lossPercent)
	m.probeJitter.Set(jitterMs)
}
