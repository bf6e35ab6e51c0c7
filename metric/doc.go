// Package metric provides Prometheus-based metrics collection and an HTTP
// exposition server for printer-connectivity monitoring.
//
// The package offers a centralized metrics registry managing both core
// platform metrics (session state, frame counts, request latency) and
// component-specific metrics registered by transport, proxy, discovery, and
// coordinator code. It includes an HTTP server exposing metrics in
// Prometheus format for monitoring system integration.
//
// # Architecture
//
// The package follows a three-layer design:
//
//  1. Core Metrics: platform-level metrics automatically registered (Metrics type)
//  2. Component Registry: extensible registration for component-specific metrics (MetricsRegistrar interface)
//  3. HTTP Server: metrics endpoint with health checks (Server type)
//
// This separates infrastructure concerns (core metrics) from per-component
// concerns (proxy downstream counts, discovery probe counts, and so on)
// while providing a single metrics endpoint for monitoring systems.
//
// # Basic Usage
//
// Setting up metrics collection and HTTP server:
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//
//	go func() {
//	    if err := server.Start(); err != nil && err != http.ErrServerClosed {
//	        log.Printf("metrics server error: %v", err)
//	    }
//	}()
//
//	// Record core platform metrics
//	coreMetrics := registry.CoreMetrics()
//	coreMetrics.RecordSessionState("printer-a", 4) // READY
//	coreMetrics.RecordFrameReceived("printer-a", "status")
//
// The metrics server exposes Prometheus-formatted metrics at
// http://localhost:9090/metrics and a health check at
// http://localhost:9090/health.
//
// # Core Metrics
//
// The package automatically registers core platform metrics tracking:
//
//   - Session lifecycle: session_state (0=idle .. 7=closed, see session.State)
//   - Wire traffic: frames_received_total, frames_sent_total
//   - Request latency: invoke_duration_seconds
//   - Continuity tracking: session_noncontinuous_count
//   - Transport health: transport_connected, transport_reconnects_total
//   - Error tracking: errors_total
//
// Access core metrics through the registry:
//
//	coreMetrics := registry.CoreMetrics()
//
//	coreMetrics.RecordSessionState("printer-a", 4)
//	coreMetrics.RecordFrameSent("printer-a", "command")
//	coreMetrics.RecordInvokeDuration("printer-a", "GetStatus", 45*time.Millisecond)
//	coreMetrics.RecordError("printer-a", "transient")
//
// # Component-Specific Metrics
//
// Components register their own metrics through the registry:
//
//	requestCounter := prometheus.NewCounter(prometheus.CounterOpts{
//	    Name: "proxy_downstreams_total",
//	    Help: "Total downstream connections accepted",
//	})
//	err := registry.RegisterCounter("proxy", "proxy_downstreams_total", requestCounter)
//
// Vector metrics with labels follow the same pattern via RegisterCounterVec,
// RegisterGaugeVec, and RegisterHistogramVec.
//
// # HTTP Server
//
// The metrics server provides three endpoints:
//
//   - GET / - HTML page with links to metrics and health endpoints
//   - GET /metrics - Prometheus-formatted metrics (default path, configurable)
//   - GET /health - plain-text health check response
//
// Server configuration:
//
//	server := metric.NewServer(0, "", registry)   // defaults: port 9090, path /metrics
//	server := metric.NewServer(8080, "/prom", registry)
//
//	go func() {
//	    if err := server.Start(); err != nil {
//	        log.Fatalf("metrics server error: %v", err)
//	    }
//	}()
//	defer server.Stop()
//
// Start blocks while serving and returns nil once Stop has shut it down.
//
// The server is plain HTTP: these printers live on a LAN, and TLS
// termination (if wanted) belongs to a fronting reverse proxy, not here.
//
// # Prometheus Integration
//
// All core metrics use the namespace "printercore" with per-concern
// subsystems:
//
//	printercore_session_state{printer="..."}
//	printercore_frames_received_total{printer="...",kind="..."}
//	printercore_transport_connected
//
// Component-specific metrics use the metric name provided at registration.
//
// # MetricsRegistrar Interface
//
// Components depend on the MetricsRegistrar interface rather than the
// concrete registry, which keeps them testable with a mock registrar:
//
//	type myComponent struct {
//	    metrics metric.MetricsRegistrar
//	}
//
// # Thread Safety
//
// All registry operations are thread-safe: registration uses mutex
// protection, recording is lock-free (a Prometheus guarantee), and
// CoreMetrics()/PrometheusRegistry() are safe for concurrent access.
package metric
