// Package session owns the protocol state machine layered on top of a
// transport.Transport: registration, heartbeat, ordered request/response
// matching, delta-merged status snapshots with continuity tracking, and the
// CC2-specific corrections and recovery behaviors called out in the error
// handling design.
package session
