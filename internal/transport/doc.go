// Package transport provides the abstract bidirectional message channel a
// Session speaks over, and its two concrete implementations:
// WebSocketTransport (plain WS to newer printers) and MqttTransport (CC2's
// inverted-broker topology, in either host-broker or printer-broker mode).
//
// A Transport owns its own reconnect loop: transient drops are retried
// internally with exponential backoff and jitter, and are reported to the
// caller via StateChanges rather than by tearing down the Transport. The
// Receive channel closes once Close has been called (for WebSocketTransport,
// also once the context passed to Open is done).
package transport
