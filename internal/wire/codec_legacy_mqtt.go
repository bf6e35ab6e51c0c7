package wire

// legacyMQTTCodec implements the CC1-and-older dialect: the same frame shape
// as WebSocket-SDCP, carried over MQTT topics on a host-hosted broker instead
// of a WebSocket connection. The envelope encoding is identical; only the
// transport differs, so this codec delegates to websocketCodec.
type legacyMQTTCodec struct {
	websocketCodec
}

func (legacyMQTTCodec) Dialect() Dialect { return DialectLegacyMQTT }
