// Package printerclient is the public-facing façade over a discovered
// Identity and a Session (it does not start a Coordinator): one Client per
// configured printer, exposing typed command kinds instead of raw method
// codes.
package printerclient
