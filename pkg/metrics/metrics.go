// Package metrics wires AnyTLS's session, stream, pool, and padding
// counters into Prometheus. The session, pool and server constructors
// accept a nil *Registry and substitute Noop(), whose collectors work but
// are registered nowhere, so wiring metrics is never mandatory.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every AnyTLS-specific Prometheus collector.
type Registry struct {
	SessionsActive    prometheus.Gauge
	StreamsOpen       prometheus.Gauge
	PoolIdleSessions  prometheus.Gauge
	FramesTotal       *prometheus.CounterVec
	PaddingWasteBytes prometheus.Counter
}

// New creates a Registry and registers its collectors with reg. Passing a
// nil reg is valid and produces un-registered (but still usable)
// collectors, useful for tests that don't care about exposition.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "anytls_sessions_active",
			Help: "Number of AnyTLS sessions currently open.",
		}),
		StreamsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "anytls_streams_open",
			Help: "Number of AnyTLS streams currently open across all sessions.",
		}),
		PoolIdleSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "anytls_pool_idle_sessions",
			Help: "Number of idle sessions held in the client session pool.",
		}),
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anytls_frames_total",
			Help: "Frames processed, partitioned by command.",
		}, []string{"cmd"}),
		PaddingWasteBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "anytls_padding_waste_bytes_total",
			Help: "Total bytes emitted as Waste-frame padding.",
		}),
	}
	if reg != nil {
		reg.MustRegister(r.SessionsActive, r.StreamsOpen, r.PoolIdleSessions, r.FramesTotal, r.PaddingWasteBytes)
	}
	return r
}

// Noop returns a Registry whose collectors are never registered with any
// Prometheus registry, for use where metrics are wired but unobserved.
func Noop() *Registry {
	return New(nil)
}
