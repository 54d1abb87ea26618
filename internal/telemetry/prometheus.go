package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// promMetrics holds the Prometheus collectors backing the monitor.
// Collectors are created unregistered so tests and embedded use pay
// nothing; Register attaches them to a registry for export.
type promMetrics struct {
	framesReceived    prometheus.Counter
	framesProcessed   prometheus.Counter
	framesDropped     *prometheus.CounterVec
	receiveRate       prometheus.Gauge
	processRate       prometheus.Gauge
	latencyMs         prometheus.Gauge
	bufferUtilization prometheus.Gauge
}

func newPromMetrics() *promMetrics {
	return &promMetrics{
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "faultstream",
			Name:      "frames_received_total",
			Help:      "Frames accepted off the wire.",
		}),
		framesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "faultstream",
			Name:      "frames_processed_total",
			Help:      "Frames successfully applied to the entity store.",
		}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "faultstream",
			Name:      "frames_dropped_total",
			Help:      "Frames rejected before reaching the store, by reason.",
		}, []string{"reason"}),
		receiveRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "faultstream",
			Name:      "receive_rate",
			Help:      "Frame arrival rate over the last sampling interval (frames/s).",
		}),
		processRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "faultstream",
			Name:      "process_rate",
			Help:      "Frame apply rate over the last sampling interval (frames/s).",
		}),
		latencyMs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "faultstream",
			Name:      "ingest_latency_ms",
			Help:      "Smoothed receive-to-apply latency in milliseconds.",
		}),
		bufferUtilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "faultstream",
			Name:      "buffer_utilization",
			Help:      "Ingress buffer fill fraction (0-1).",
		}),
	}
}

// Register attaches all collectors to reg.
func (m *Monitor) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.metrics.framesReceived,
		m.metrics.framesProcessed,
		m.metrics.framesDropped,
		m.metrics.receiveRate,
		m.metrics.processRate,
		m.metrics.latencyMs,
		m.metrics.bufferUtilization,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
