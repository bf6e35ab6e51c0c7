package proxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// recordingUpstream captures every frame the control plane hands it and lets
// a test reply by calling HandleUpstreamFrame directly, standing in for the
// real printer Session.
type recordingUpstream struct {
	mu     sync.Mutex
	frames [][]byte
}

func (u *recordingUpstream) send(frame []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	u.frames = append(u.frames, cp)
	return nil
}

func (u *recordingUpstream) last() map[string]any {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.frames) == 0 {
		return nil
	}
	var out map[string]any
	_ = json.Unmarshal(u.frames[len(u.frames)-1], &out)
	return out
}

func dialWS(t *testing.T, srvURL string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srvURL, "http") + "/websocket"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn
}

func TestControlServer_RemapsRequestIDToUpstream(t *testing.T) {
	upstream := &recordingUpstream{}
	cs := NewControlServer(upstream.send, nil)

	srv := httptest.NewServer(http.HandlerFunc(cs.ServeHTTP))
	defer srv.Close()

	conn := dialWS(t, srv.URL)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{
		"Id":   "client-req-1",
		"Data": map[string]any{"Cmd": 1002, "RequestID": "client-req-1"},
	}))

	require.Eventually(t, func() bool {
		return upstream.last() != nil
	}, time.Second, 10*time.Millisecond)

	sentID, _ := upstream.last()["Id"].(string)
	require.NotEqual(t, "client-req-1", sentID, "upstream id must be remapped, not passed through")
}

func TestControlServer_RoutesResponseBackToOriginatingDownstream(t *testing.T) {
	upstream := &recordingUpstream{}
	cs := NewControlServer(upstream.send, nil)

	srv := httptest.NewServer(http.HandlerFunc(cs.ServeHTTP))
	defer srv.Close()

	conn := dialWS(t, srv.URL)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{
		"Id":   "client-req-1",
		"Data": map[string]any{"Cmd": 1002, "RequestID": "client-req-1"},
	}))

	require.Eventually(t, func() bool {
		return upstream.last() != nil
	}, time.Second, 10*time.Millisecond)

	upstreamID, _ := upstream.last()["Id"].(string)

	cs.HandleUpstreamFrame(mustMarshal(map[string]any{
		"Id":   upstreamID,
		"Data": map[string]any{"Cmd": 1002, "RequestID": upstreamID, "Data": map[string]any{"ok": true}},
	}))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var resp map[string]any
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, "client-req-1", resp["Id"], "response must be rewritten back to the original client request id")
}

func TestControlServer_BroadcastsStatusEventsToAllDownstreams(t *testing.T) {
	upstream := &recordingUpstream{}
	cs := NewControlServer(upstream.send, nil)

	srv := httptest.NewServer(http.HandlerFunc(cs.ServeHTTP))
	defer srv.Close()

	connA := dialWS(t, srv.URL)
	defer connA.Close()
	connB := dialWS(t, srv.URL)
	defer connB.Close()

	// Give both connections time to register as downstreams.
	time.Sleep(50 * time.Millisecond)

	cs.HandleUpstreamFrame(mustMarshal(map[string]any{
		"Topic":  "sdcp/status/ABC123",
		"Status": map[string]any{"machineStatus": "IDLE"},
	}))

	for _, conn := range []*websocket.Conn{connA, connB} {
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg))
		require.Equal(t, "sdcp/status/ABC123", msg["Topic"])
	}
}
