package wire

import "time"

// Dialect identifies which SDCP wire format a printer speaks.
type Dialect int

const (
	// DialectWebSocketSDCP is the newer full-duplex JSON-over-WebSocket dialect.
	DialectWebSocketSDCP Dialect = iota
	// DialectCC2MQTT is the Centauri Carbon 2 inverted-broker MQTT dialect.
	DialectCC2MQTT
	// DialectLegacyMQTT is the CC1-and-older host-broker MQTT dialect.
	DialectLegacyMQTT
)

// String implements fmt.Stringer.
func (d Dialect) String() string {
	switch d {
	case DialectWebSocketSDCP:
		return "websocket-sdcp"
	case DialectCC2MQTT:
		return "mqtt-cc2"
	case DialectLegacyMQTT:
		return "mqtt-legacy"
	default:
		return "unknown"
	}
}

// CommandEnvelope is the canonical, dialect-independent shape of an outbound
// command. Kind is resolved to a dialect-specific wire method code by each
// Codec's EncodeCommand (see method_codes.go): WS-SDCP/legacy-MQTT and
// CC2-MQTT number several commands differently, so the numeric code is never
// fixed until encode time, once the codec's own dialect is known.
type CommandEnvelope struct {
	RequestID string         // unique per client, monotonically increasing
	Kind      CommandKind    // dialect-independent command identifier
	Params    map[string]any // opaque command parameters
	IssuedAt  time.Time
}

// ResponseEnvelope is the canonical shape of a response to a CommandEnvelope,
// or of an unsolicited status/event push (in which case RequestID is empty
// and Method carries the event's method code, e.g. 6000 for CC2 status).
type ResponseEnvelope struct {
	RequestID string
	Method    int
	ErrorCode int            // 0 == success
	Result    map[string]any // decoded result/status tree
	Extra     map[string]any // fields the codec did not recognize; preserved verbatim
}

// IsEvent reports whether this envelope is an unsolicited push rather than a
// reply to a specific in-flight request.
func (r *ResponseEnvelope) IsEvent() bool {
	return r.RequestID == ""
}

// Success reports whether the printer-reported error code indicates success.
func (r *ResponseEnvelope) Success() bool {
	return r.ErrorCode == 0
}
