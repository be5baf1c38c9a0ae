// Package metrics, relay'in Prometheus enstrümanları.
//
// Her Metrics kendi registry'sine kayıt olur; testler birbirini etkilemeden
// yeni instance açabilir. Metodlar nil receiver ile güvenle çağrılabilir.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label değerleri.
const (
	OutcomeAccepted  = "accepted"
	OutcomeRejected  = "rejected"
	OutcomeDuplicate = "duplicate"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
	OutcomeOK        = "ok"
)

type Metrics struct {
	registry *prometheus.Registry

	Dispatches        *prometheus.CounterVec
	RelayRequests     *prometheus.CounterVec
	DispatchLatency   *prometheus.HistogramVec
	ConnectedClients  prometheus.Gauge
	ActiveInvitations prometheus.Gauge
}

func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_dispatches_total",
			Help:      "Push dispatch attempts by platform, event kind and outcome.",
		}, []string{"platform", "kind", "outcome"}),
		RelayRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_requests_total",
			Help:      "Signaling RPCs by rpc name and outcome.",
		}, []string{"rpc", "outcome"}),
		DispatchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "push_dispatch_latency_ms",
			Help:      "Latency of a single provider send in milliseconds.",
			Buckets:   []float64{25, 50, 100, 200, 400, 800, 1600, 3200, 6400},
		}, []string{"platform"}),
		ConnectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connected_clients",
			Help:      "Open realtime websocket connections.",
		}),
		ActiveInvitations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_invitations",
			Help:      "Realtime invitations waiting for an answer.",
		}),
	}
}

func (m *Metrics) ObserveDispatch(platform, kind string, accepted bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeRejected
	if accepted {
		outcome = OutcomeAccepted
	}
	m.Dispatches.WithLabelValues(platform, kind, outcome).Inc()
	m.DispatchLatency.WithLabelValues(platform).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveRequest(rpc, outcome string) {
	if m == nil {
		return
	}
	m.RelayRequests.WithLabelValues(rpc, outcome).Inc()
}

func (m *Metrics) ClientConnected(delta int) {
	if m == nil {
		return
	}
	m.ConnectedClients.Add(float64(delta))
}

func (m *Metrics) InvitationsChanged(delta int) {
	if m == nil {
		return
	}
	m.ActiveInvitations.Add(float64(delta))
}

// Registry, testlerde ve Handler'da kullanılan registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler, GET /metrics için exposition handler'ı.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
