package proxy

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// remapEntry records which downstream client and original request id an
// upstream-facing id was minted for.
type remapEntry struct {
	downstreamID string
	originalID   string
}

// remapTable maps globally-unique upstream request ids back to the
// downstream client and original id that issued them, so a response can be
// routed back and re-labeled. It is the proxy's single source of truth for
// in-flight request ownership.
type remapTable struct {
	mu      sync.Mutex
	entries map[string]remapEntry
	counter atomic.Int64
}

func newRemapTable() *remapTable {
	return &remapTable{entries: map[string]remapEntry{}}
}

// mint assigns a new globally-unique upstream id for a downstream's request,
// recording how to route the eventual response back.
func (t *remapTable) mint(downstreamID, originalID string) string {
	n := t.counter.Add(1)
	upstreamID := fmt.Sprintf("%s-%d", downstreamID, n)
	t.mu.Lock()
	t.entries[upstreamID] = remapEntry{downstreamID: downstreamID, originalID: originalID}
	t.mu.Unlock()
	return upstreamID
}

// resolve looks up and removes the entry for an upstream id, once its
// response has arrived.
func (t *remapTable) resolve(upstreamID string) (remapEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[upstreamID]
	if ok {
		delete(t.entries, upstreamID)
	}
	return entry, ok
}

// dropDownstream removes every outstanding entry belonging to a downstream
// that has disconnected, so late upstream responses are discarded rather
// than routed to a closed connection.
func (t *remapTable) dropDownstream(downstreamID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, entry := range t.entries {
		if entry.downstreamID == downstreamID {
			delete(t.entries, id)
		}
	}
}
