// Package coordinator drives a Session with a periodic GetStatus poll,
// debouncing so at most one request is outstanding at a time, diffing
// results against the prior snapshot, and triggering bounded reconnects
// when the Session reports DEGRADED or CLOSED.
package coordinator
