package session

import (
	"sync"
	"sync/atomic"

	"github.com/danielcherubini/elegoo-printercore/internal/wire"
)

// inflightTable tracks outstanding Invoke calls keyed by requestId. The
// Session's reader task is the single writer that resolves entries; Invoke
// callers only insert and, on timeout or cancellation, remove.
type inflightTable struct {
	mu      sync.Mutex
	entries map[string]chan *wire.ResponseEnvelope
	counter atomic.Int64
}

func newInflightTable() *inflightTable {
	return &inflightTable{entries: map[string]chan *wire.ResponseEnvelope{}}
}

// nextRequestID returns the next monotonically increasing request id for
// this session.
func (t *inflightTable) nextRequestID() string {
	n := t.counter.Add(1)
	return requestIDFromCounter(n)
}

func requestIDFromCounter(n int64) string {
	const hexDigits = "0123456789abcdef"
	if n == 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = hexDigits[n%16]
		n /= 16
	}
	return string(buf[i:])
}

// register creates a waiter channel for requestID. The caller must
// eventually call resolve or cancel exactly once.
func (t *inflightTable) register(requestID string) chan *wire.ResponseEnvelope {
	ch := make(chan *wire.ResponseEnvelope, 1)
	t.mu.Lock()
	t.entries[requestID] = ch
	t.mu.Unlock()
	return ch
}

// resolve delivers resp to the waiter for its RequestID, if any is still
// registered. An unmatched response is an orphan: the caller logs and drops.
func (t *inflightTable) resolve(resp *wire.ResponseEnvelope) (matched bool) {
	t.mu.Lock()
	ch, ok := t.entries[resp.RequestID]
	if ok {
		delete(t.entries, resp.RequestID)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	ch <- resp
	return true
}

// cancel removes requestID's entry without resolving it (used on timeout or
// caller-side context cancellation).
func (t *inflightTable) cancel(requestID string) {
	t.mu.Lock()
	delete(t.entries, requestID)
	t.mu.Unlock()
}

// drain removes every outstanding entry and returns its waiter channel, used
// when the session closes or the transport resets. The caller sends each
// waiter a nil response, which Invoke reports as SessionClosed once the
// session is closed and as TransportReset otherwise.
func (t *inflightTable) drain() []chan *wire.ResponseEnvelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]chan *wire.ResponseEnvelope, 0, len(t.entries))
	for id, ch := range t.entries {
		out = append(out, ch)
		delete(t.entries, id)
	}
	return out
}

func (t *inflightTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
