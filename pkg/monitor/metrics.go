// SPDX-FileCopyrightText: 2026 The q4s-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/q4s/q4s-go/pkg/measure"
	"github.com/q4s/q4s-go/pkg/server"
)

// Metrics of a Q4S server, derived from its Events.
type Metrics struct {
	registry *prometheus.Registry

	sessionsActive prometheus.Gauge
	eventsTotal    *prometheus.CounterVec
	stagesTotal    *prometheus.CounterVec

	latency    *prometheus.GaugeVec
	jitter     *prometheus.GaugeVec
	packetLoss *prometheus.GaugeVec
	bandwidth  *prometheus.GaugeVec
}

// NewMetrics registers all metrics in their own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "q4s_sessions_active",
			Help: "Number of sessions with a bound control connection",
		}),

		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "q4s_events_total",
			Help: "Total number of session events by kind",
		}, []string{"kind"}),

		stagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "q4s_negotiation_stages_total",
			Help: "Total number of finished negotiation stages by stage and result",
		}, []string{"stage", "result"}),

		latency: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "q4s_session_latency_milliseconds",
			Help: "Last measured latency of a session",
		}, []string{"session"}),

		jitter: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "q4s_session_jitter_milliseconds",
			Help: "Last measured jitter of a session",
		}, []string{"session", "direction"}),

		packetLoss: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "q4s_session_packet_loss_ratio",
			Help: "Last measured packet loss of a session",
		}, []string{"session", "direction"}),

		bandwidth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "q4s_session_bandwidth_kbps",
			Help: "Last measured bandwidth of a session",
		}, []string{"session", "direction"}),
	}
}

// Handler exposes the metrics for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Observe an Event.
func (m *Metrics) Observe(e server.Event) {
	m.eventsTotal.WithLabelValues(string(e.Kind)).Inc()

	switch e.Kind {
	case server.EventConnected:
		m.sessionsActive.Inc()

	case server.EventEnd:
		m.sessionsActive.Dec()
		m.forget(e.SessionID)

	case server.EventMeasure:
		if e.Stage < 2 {
			result := "failed"
			if e.Met {
				result = "passed"
			}
			m.stagesTotal.WithLabelValues(stageLabel(e.Stage), result).Inc()
		}
		if e.Measured != nil {
			m.set(e.SessionID, *e.Measured)
		}
	}
}

func stageLabel(stage int) string {
	if stage == 1 {
		return "bandwidth"
	}
	return "negotiation"
}

func setGauge(g prometheus.Gauge, metric measure.Metric) {
	if v, ok := metric.Get(); ok {
		g.Set(v)
	}
}

func (m *Metrics) set(id string, s measure.MeasurementSet) {
	setGauge(m.latency.WithLabelValues(id), s.Latency)

	for _, pair := range []struct {
		vec      *prometheus.GaugeVec
		up, down measure.Metric
	}{
		{m.jitter, s.JitterUp, s.JitterDown},
		{m.packetLoss, s.PacketLossUp, s.PacketLossDown},
		{m.bandwidth, s.BandwidthUp, s.BandwidthDown},
	} {
		if pair.up.Valid {
			setGauge(pair.vec.WithLabelValues(id, "up"), pair.up)
		}
		if pair.down.Valid {
			setGauge(pair.vec.WithLabelValues(id, "down"), pair.down)
		}
	}
}

func (m *Metrics) forget(id string) {
	m.latency.DeleteLabelValues(id)
	for _, vec := range []*prometheus.GaugeVec{m.jitter, m.packetLoss, m.bandwidth} {
		vec.DeleteLabelValues(id, "up")
		vec.DeleteLabelValues(id, "down")
	}
}
