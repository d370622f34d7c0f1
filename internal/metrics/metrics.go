// Package metrics exposes skybridge's Prometheus instrumentation: a
// fixed set of counters and gauges registered against a private
// registry, served over HTTP by promhttp.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric the bridge reports, backed by its own
// prometheus.Registry rather than the global default so tests can build
// one per case without collector-already-registered panics.
type Registry struct {
	reg *prometheus.Registry

	MessagesSent   *prometheus.CounterVec
	MessagesDropped *prometheus.CounterVec
	FanoutClients  prometheus.Gauge
	DeviceSlots    prometheus.Gauge
	SimConnected   prometheus.Gauge
	ServerRunning  prometheus.Gauge
	RadarTracks    prometheus.Gauge
}

// NewRegistry builds and registers every metric.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skybridge",
			Subsystem: "fanout",
			Name:      "messages_sent_total",
			Help:      "Outbound UI messages delivered, by topic.",
		}, []string{"topic"}),
		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skybridge",
			Subsystem: "fanout",
			Name:      "messages_dropped_total",
			Help:      "Outbound UI messages dropped under backpressure, by topic.",
		}, []string{"topic"}),
		FanoutClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "skybridge",
			Subsystem: "fanout",
			Name:      "clients_connected",
			Help:      "Currently connected WebSocket fan-out clients.",
		}),
		DeviceSlots: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "skybridge",
			Subsystem: "device",
			Name:      "slots_connected",
			Help:      "Currently connected UDP device slots, including slot 0.",
		}),
		SimConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "skybridge",
			Subsystem: "sim",
			Name:      "connected",
			Help:      "1 if the simulator link is connected, else 0.",
		}),
		ServerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "skybridge",
			Subsystem: "device",
			Name:      "server_running",
			Help:      "1 if the device server is running, else 0.",
		}),
		RadarTracks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "skybridge",
			Subsystem: "radar",
			Name:      "tracks",
			Help:      "Number of AI aircraft currently tracked by the radar.",
		}),
	}

	reg.MustRegister(r.MessagesSent, r.MessagesDropped, r.FanoutClients, r.DeviceSlots,
		r.SimConnected, r.ServerRunning, r.RadarTracks)
	return r
}

// Handler returns the HTTP handler serving this registry's metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// boolGauge sets g to 1 when v is true, 0 otherwise.
func boolGauge(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
	} else {
		g.Set(0)
	}
}

// SetSimConnected records the simulator link's connectivity.
func (r *Registry) SetSimConnected(connected bool) { boolGauge(r.SimConnected, connected) }

// SetServerRunning records the device server's run state.
func (r *Registry) SetServerRunning(running bool) { boolGauge(r.ServerRunning, running) }

// ObserveSent records a successfully delivered outbound message, for a
// fanout.Hub's Observer.
func (r *Registry) ObserveSent(topic string) { r.MessagesSent.WithLabelValues(topic).Inc() }

// ObserveDropped records a message dropped under backpressure.
func (r *Registry) ObserveDropped(topic string) { r.MessagesDropped.WithLabelValues(topic).Inc() }
