package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// NodeMetrics tracks the lifecycle of the node and its background services.
type NodeMetrics struct {
	LifecycleState  prometheus.Gauge
	StartupSeconds  prometheus.Gauge
	ServicesRunning prometheus.Gauge
	PeersConnected  prometheus.Gauge
	WalletFlushes   prometheus.Counter
	SoftSetsApplied prometheus.Counter
}

var (
	nodeMetricsOnce sync.Once
	nodeRegistry    *NodeMetrics
)

// Metrics returns the lazily-initialised node metrics registry.
func Metrics() *NodeMetrics {
	nodeMetricsOnce.Do(func() {
		nodeRegistry = &NodeMetrics{
			LifecycleState: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "nyx",
				Subsystem: "node",
				Name:      "lifecycle_state",
				Help:      "Current lifecycle state (0 idle, 1 starting, 2 running, 3 shutting down, 4 stopped, 5 failed).",
			}),
			StartupSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "nyx",
				Subsystem: "node",
				Name:      "startup_seconds",
				Help:      "Wall-clock duration of the last startup sequence.",
			}),
			ServicesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "nyx",
				Subsystem: "node",
				Name:      "services_running",
				Help:      "Number of background services currently running.",
			}),
			PeersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "nyx",
				Subsystem: "p2p",
				Name:      "peers_connected",
				Help:      "Number of connected peers.",
			}),
			WalletFlushes: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "nyx",
				Subsystem: "wallet",
				Name:      "flushes_total",
				Help:      "Total wallet flush operations.",
			}),
			SoftSetsApplied: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "nyx",
				Subsystem: "config",
				Name:      "soft_sets_total",
				Help:      "Total option values filled in by parameter interaction rules.",
			}),
		}
		prometheus.MustRegister(
			nodeRegistry.LifecycleState,
			nodeRegistry.StartupSeconds,
			nodeRegistry.ServicesRunning,
			nodeRegistry.PeersConnected,
			nodeRegistry.WalletFlushes,
			nodeRegistry.SoftSetsApplied,
		)
	})
	return nodeRegistry
}
