// Package proxy multiplexes many downstream consumers onto one upstream
// printer connection: a WebSocket control plane that remaps request ids and
// broadcasts status events, and an HTTP MJPEG video plane that fans a single
// upstream stream out to every attached downstream.
package proxy
