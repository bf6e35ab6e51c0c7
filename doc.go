// Package printercore provides LAN-only connectivity for Elegoo 3D printers
// speaking the SDCP protocol family.
//
// # Overview
//
// printercore discovers printers on the local network, opens a session
// against one, and keeps that session's view of the printer's status
// current: current print job, temperatures, connection state, and file
// listings. It speaks three SDCP dialects over two transports:
//
//   - WebSocket, legacy text discovery on UDP port 3000 (`M99999`)
//   - CC2-over-MQTT, JSON discovery on UDP port 52700, connecting to the
//     printer's own broker
//   - A legacy MQTT dialect for older firmware, where this process hosts an
//     embedded broker and the printer connects to it
//
// A Session hides these differences behind one state machine and one
// delta-merged status snapshot; a printerclient.Client hides the Session
// behind a small, typed façade for callers that just want to print and
// watch.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│         printerclient.Client         │  Typed façade: Open, Snapshot,
//	│   (Invoke, Subscribe, FetchThumbnail)│  Subscribe, Invoke, Close
//	└─────────────────────┬─────────────────┘
//	                      ↓ drives
//	┌─────────────────────────────────────┐
//	│            internal/session          │  State machine, registration,
//	│  (IDLE→DISCOVERING→...→READY→CLOSED) │  heartbeat, delta-merge, continuity
//	└─────────────────────┬─────────────────┘
//	                      ↓ sends/receives frames via
//	┌─────────────────────────────────────┐
//	│          internal/transport          │  Transport interface:
//	│   (WebSocketTransport, MqttTransport) │  Open/Send/Receive/Close
//	└─────────────────────┬─────────────────┘
//	                      ↓ encodes/decodes with
//	┌─────────────────────────────────────┐
//	│            internal/wire             │  CommandEnvelope/ResponseEnvelope,
//	│     (3 codec dialects, method codes)  │  unknown-field preservation
//	└─────────────────────────────────────┘
//
// internal/discovery sits beside this chain, answering "which printers are
// on the network" before a Session exists. internal/coordinator sits above
// it, polling a Session's status on a fixed interval and driving bounded
// reconnect when the Session reports DEGRADED or CLOSED. internal/proxy
// multiplexes one upstream Session across many local WebSocket and MJPEG
// clients.
//
// # Framework Packages
//
// Domain packages:
//   - internal/wire: envelope types, per-dialect codecs, method-code tables
//   - internal/discovery: UDP probing for both discovery dialects
//   - internal/transport: pluggable Transport (WebSocket, MQTT host/printer broker)
//   - internal/session: state machine, registration, heartbeat, status merge
//   - internal/printerclient: typed façade over a Session
//   - internal/proxy: local WS control-plane + MJPEG video-plane multiplexer
//   - internal/coordinator: fixed-interval status polling and reconnect
//
// Ambient packages (kept from the framework this module grew out of):
//   - errors: structured error classification and the printer error-kind taxonomy
//   - metric: Prometheus metrics registry and HTTP exposition server
//   - config: YAML configuration loading and a concurrency-safe config holder
//   - pkg/retry: exponential backoff with jitter
//   - pkg/buffer: bounded circular buffer with overflow policies (video fan-out)
//   - pkg/worker: generic worker pool (proxy video fan-out)
//
// # Usage
//
//	found, err := discovery.NewDiscoverer(logger).Discover(ctx, 10*time.Second, "")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client, err := printerclient.NewClient(found[0], printerclient.Options{}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := client.Open(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	snap := client.Snapshot()
//	log.Printf("status: %s, file: %s", snap.MachineStatus(), snap.PrintFilename())
//
//	updates := client.Subscribe()
//	for snap := range updates {
//	    log.Printf("update: %s", snap.MachineStatus())
//	}
//
// # Design Principles
//
//   - LAN-only: cloud/RTM-only printers are refused with ErrUnsupportedMode,
//     never silently proxied through Elegoo's cloud.
//   - One state machine, three dialects: discovery and transport differ by
//     dialect; the session state machine and status model do not.
//   - Bounded everything: bounded reconnect attempts, bounded proxy fan-out
//     buffers, bounded discovery windows. Nothing retries forever silently.
//   - Typed errors over string matching: every failure mode in the error
//     handling design has a sentinel and a documented recovery action.
package printercore
