// Package wire defines the canonical command/response envelopes exchanged
// with an Elegoo printer and the per-dialect codecs that translate between
// that canonical shape and the three SDCP wire formats: WebSocket-SDCP,
// CC2-MQTT, and legacy-MQTT.
//
// Every codec round-trips unknown fields verbatim through the envelope's
// Extra map, so a firmware update that adds a field to a status push never
// loses that field on the way through this core.
package wire
