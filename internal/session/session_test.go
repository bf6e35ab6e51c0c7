package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielcherubini/elegoo-printercore/errors"
	"github.com/danielcherubini/elegoo-printercore/internal/discovery"
	"github.com/danielcherubini/elegoo-printercore/internal/transport"
	"github.com/danielcherubini/elegoo-printercore/internal/wire"
)

// fakeTransport is an in-memory Transport double driven directly by tests:
// Send appends to a recorded outbox instead of touching a socket, and
// injectFrame/injectState feed the Session's reader/state-watcher loops.
type fakeTransport struct {
	mu     sync.Mutex
	sent   [][]byte
	recv   chan transport.Frame
	states chan transport.State
	closed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		recv:   make(chan transport.Frame, 32),
		states: make(chan transport.State, 8),
	}
}

func (f *fakeTransport) Open(ctx context.Context) error { return nil }

func (f *fakeTransport) Send(ctx context.Context, frame transport.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeTransport) Receive() <-chan transport.Frame      { return f.recv }
func (f *fakeTransport) StateChanges() <-chan transport.State { return f.states }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.recv)
	return nil
}

func (f *fakeTransport) injectFrame(v any) {
	data, _ := json.Marshal(v)
	f.recv <- transport.Frame(data)
}

func (f *fakeTransport) lastSent() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	var out map[string]any
	_ = json.Unmarshal(f.sent[len(f.sent)-1], &out)
	return out
}

func wsIdentity() discovery.Identity {
	return discovery.Identity{
		Serial:       "ABC123",
		IPAddress:    "10.0.0.5",
		ProtocolKind: wire.DialectWebSocketSDCP,
	}
}

func TestSession_OpenRefusesCloudOnly(t *testing.T) {
	id := wsIdentity()
	id.Capabilities = map[string]struct{}{"cloud-only": {}}
	s := New(id, newFakeTransport(), nil)

	err := s.Open(context.Background(), Options{})
	assert.ErrorIs(t, err, errors.ErrUnsupportedMode)
}

func TestSession_OpenNonCC2SkipsRegistration(t *testing.T) {
	ft := newFakeTransport()
	s := New(wsIdentity(), ft, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 6*time.Second)
	defer cancel()

	// Open tolerates a failed initial status fetch, so no response needs to
	// be injected; this only exercises the non-CC2 path skipping registration.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Open(ctx, Options{})
	}()

	select {
	case <-done:
	case <-time.After(6 * time.Second):
		t.Fatal("Open did not return")
	}

	assert.Equal(t, StateReady, s.State())
	_ = s.Close()
}

func TestSession_InvokeTimeout(t *testing.T) {
	ft := newFakeTransport()
	s := New(wsIdentity(), ft, nil)
	s.setState(StateReady)

	ctx := context.Background()
	_, err := s.Invoke(ctx, wire.CmdGetStatus, nil, 50*time.Millisecond)
	require.Error(t, err)
}

func TestSession_InvokeResolvesOnMatchingResponse(t *testing.T) {
	ft := newFakeTransport()
	s := New(wsIdentity(), ft, nil)
	s.setState(StateReady)

	go func() {
		time.Sleep(20 * time.Millisecond)
		sent := ft.lastSent()
		require.NotNil(t, sent)
		data, ok := sent["Data"].(map[string]any)
		require.True(t, ok)
		reqID, _ := data["RequestID"].(string)
		ft.injectFrame(map[string]any{
			"Id": "dummy",
			"Data": map[string]any{
				"Cmd":       wire.MethodGetStatus,
				"RequestID": reqID,
				"Data":      map[string]any{"ok": true},
			},
		})
	}()

	go s.readLoop(context.Background())

	resp, err := s.Invoke(context.Background(), wire.CmdGetStatus, nil, time.Second)
	require.NoError(t, err)
	assert.True(t, resp.Success())
}

func TestSession_StatusEventMergesIntoSnapshot(t *testing.T) {
	ft := newFakeTransport()
	s := New(wsIdentity(), ft, nil)
	s.setState(StateReady)

	go s.readLoop(context.Background())

	ft.injectFrame(map[string]any{
		"Topic": "sdcp/status/ABC123",
		"Status": map[string]any{
			"lastUpdateId":  float64(1),
			"machineStatus": "IDLE",
		},
	})

	select {
	case snap := <-s.Updates():
		assert.Equal(t, "IDLE", snap.Tree["machineStatus"])
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}
}

func TestSession_CloseCancelsInflightAndClosesTransport(t *testing.T) {
	ft := newFakeTransport()
	s := New(wsIdentity(), ft, nil)
	s.setState(StateReady)

	resultCh := make(chan error, 1)
	go func() {
		_, err := s.Invoke(context.Background(), wire.CmdGetStatus, nil, 5*time.Second)
		resultCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Close())

	select {
	case err := <-resultCh:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("invoke did not unblock after Close")
	}

	assert.Equal(t, StateClosed, s.State())
}

func TestSession_PongFrameClearsDegradedState(t *testing.T) {
	ft := newFakeTransport()
	s := New(wsIdentity(), ft, nil)
	s.setState(StateDegraded)

	go s.readLoop(context.Background())

	ft.injectFrame(map[string]any{"type": "PONG"})

	require.Eventually(t, func() bool {
		return s.State() == StateReady
	}, time.Second, 10*time.Millisecond)
}

func TestSession_PongFrameDoesNotDisturbReadyState(t *testing.T) {
	ft := newFakeTransport()
	s := New(wsIdentity(), ft, nil)
	s.setState(StateReady)

	go s.readLoop(context.Background())

	ft.injectFrame(map[string]any{"type": "PONG"})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateReady, s.State())
}

func TestSession_PongFrameIsNotTreatedAsStatusEvent(t *testing.T) {
	ft := newFakeTransport()
	s := New(wsIdentity(), ft, nil)
	s.setState(StateReady)

	go s.readLoop(context.Background())

	ft.injectFrame(map[string]any{"type": "PONG"})

	select {
	case <-s.Updates():
		t.Fatal("PONG frame should not be routed to the status-update stream")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSession_HeartbeatDegradesAfterMissedPongs(t *testing.T) {
	ft := newFakeTransport()
	s := New(wsIdentity(), ft, nil)
	s.setState(StateReady)

	s.mu.Lock()
	s.lastPongAt = time.Now().Add(-(heartbeatMissGrace + time.Second))
	s.mu.Unlock()

	s.checkHeartbeat(context.Background())
	assert.Equal(t, StateDegraded, s.State())

	s.NotePong()
	assert.Equal(t, StateReady, s.State())
}

func TestSession_HeartbeatReconnectsAfterDegradedGraceExpires(t *testing.T) {
	ft := newFakeTransport()
	s := New(wsIdentity(), ft, nil)
	s.setState(StateReady)

	s.mu.Lock()
	s.lastPongAt = time.Now().Add(-(heartbeatMissGrace + degradedGrace + time.Second))
	s.mu.Unlock()

	s.checkHeartbeat(context.Background())
	assert.Equal(t, StateReconnecting, s.State())
}

func TestSession_TransportDisconnectMarksStaleAndReconnecting(t *testing.T) {
	ft := newFakeTransport()
	s := New(wsIdentity(), ft, nil)
	s.setState(StateReady)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.transportStateLoop(ctx)

	ft.states <- transport.StateDisconnected

	require.Eventually(t, func() bool {
		return s.State() == StateReconnecting
	}, time.Second, 10*time.Millisecond)
	assert.True(t, s.Snapshot().Stale)
}
