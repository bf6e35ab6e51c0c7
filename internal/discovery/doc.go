// Package discovery locates Elegoo printers on the local network by probing
// both SDCP discovery dialects concurrently over UDP broadcast, and returns
// each responder as an immutable Identity.
package discovery
