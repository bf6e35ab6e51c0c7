package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all platform-level metrics (not component-specific)
type Metrics struct {
	// Session metrics
	SessionState       *prometheus.GaugeVec
	FramesReceived     *prometheus.CounterVec
	FramesSent         *prometheus.CounterVec
	InvokeDuration     *prometheus.HistogramVec
	ErrorsTotal        *prometheus.CounterVec
	HealthCheckStatus  *prometheus.GaugeVec
	NonContinuousCount *prometheus.GaugeVec

	// Transport metrics
	TransportConnected prometheus.Gauge
	ReconnectTotal     prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		SessionState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "printercore",
				Subsystem: "session",
				Name:      "state",
				Help:      "Session state (0=idle,1=discovering,2=connecting,3=registering,4=ready,5=degraded,6=reconnecting,7=closed)",
			},
			[]string{"printer"},
		),

		FramesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "printercore",
				Subsystem: "frames",
				Name:      "received_total",
				Help:      "Total number of wire frames received",
			},
			[]string{"printer", "kind"},
		),

		FramesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "printercore",
				Subsystem: "frames",
				Name:      "sent_total",
				Help:      "Total number of wire frames sent",
			},
			[]string{"printer", "kind"},
		),

		InvokeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "printercore",
				Subsystem: "invoke",
				Name:      "duration_seconds",
				Help:      "Request/response round-trip duration",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"printer", "method"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "printercore",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors by kind",
			},
			[]string{"printer", "kind"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "printercore",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"printer"},
		),

		NonContinuousCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "printercore",
				Subsystem: "session",
				Name:      "noncontinuous_count",
				Help:      "Consecutive status-id gaps observed since last full refresh",
			},
			[]string{"printer"},
		),

		TransportConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "printercore",
				Subsystem: "transport",
				Name:      "connected",
				Help:      "Transport connection status (0=disconnected, 1=connected)",
			},
		),

		ReconnectTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "printercore",
				Subsystem: "transport",
				Name:      "reconnects_total",
				Help:      "Total number of transport reconnections",
			},
		),
	}
}

// RecordSessionState updates the session-state gauge for a printer
func (c *Metrics) RecordSessionState(printer string, state int) {
	c.SessionState.WithLabelValues(printer).Set(float64(state))
}

// RecordFrameReceived increments the received-frame counter
func (c *Metrics) RecordFrameReceived(printer, kind string) {
	c.FramesReceived.WithLabelValues(printer, kind).Inc()
}

// RecordFrameSent increments the sent-frame counter
func (c *Metrics) RecordFrameSent(printer, kind string) {
	c.FramesSent.WithLabelValues(printer, kind).Inc()
}

// RecordInvokeDuration records an Invoke round-trip duration
func (c *Metrics) RecordInvokeDuration(printer, method string, d time.Duration) {
	c.InvokeDuration.WithLabelValues(printer, method).Observe(d.Seconds())
}

// RecordError increments the error counter
func (c *Metrics) RecordError(printer, kind string) {
	c.ErrorsTotal.WithLabelValues(printer, kind).Inc()
}

// RecordHealthStatus updates the health-check gauge
func (c *Metrics) RecordHealthStatus(printer string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.HealthCheckStatus.WithLabelValues(printer).Set(value)
}

// RecordNonContinuousCount updates the gap-counter gauge
func (c *Metrics) RecordNonContinuousCount(printer string, count int) {
	c.NonContinuousCount.WithLabelValues(printer).Set(float64(count))
}

// RecordTransportConnected updates transport connection status
func (c *Metrics) RecordTransportConnected(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.TransportConnected.Set(value)
}

// RecordReconnect increments the reconnection counter
func (c *Metrics) RecordReconnect() {
	c.ReconnectTotal.Inc()
}
