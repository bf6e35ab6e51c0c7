package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/danielcherubini/elegoo-printercore/errors"
	"github.com/danielcherubini/elegoo-printercore/metric"
)

// WebSocketTransport dials ws://<ip>:3030/websocket and reconnects with
// exponential backoff on drop. All SDCP frames are text JSON; binary frames
// are rejected.
type WebSocketTransport struct {
	url    string
	logger *slog.Logger
	backoff backoffConfig

	mu      sync.Mutex
	conn    *websocket.Conn
	closed  bool
	metrics *metric.Metrics

	recv   chan Frame
	states chan State
	send   chan sendRequest

	connectedSince time.Time
}

// SetMetrics attaches a Metrics recorder. Optional; nil by default means
// transport events aren't recorded anywhere.
func (t *WebSocketTransport) SetMetrics(m *metric.Metrics) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics = m
}

type sendRequest struct {
	frame Frame
	errCh chan error
}

// NewWebSocketTransport builds a transport targeting ws://<ip>:3030/websocket.
func NewWebSocketTransport(ip string, logger *slog.Logger) *WebSocketTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketTransport{
		url:     fmt.Sprintf("ws://%s:3030/websocket", ip),
		logger:  logger.With("component", "transport.websocket"),
		backoff: defaultBackoff(),
		recv:    make(chan Frame, 64),
		states:  make(chan State, 8),
		send:    make(chan sendRequest),
	}
}

func (t *WebSocketTransport) Open(ctx context.Context) error {
	if err := t.dial(ctx); err != nil {
		return errors.WrapTransient(err, "WebSocketTransport", "Open", "dial")
	}
	go t.readLoop(ctx)
	go t.writeLoop(ctx)
	return nil
}

func (t *WebSocketTransport) dial(ctx context.Context) error {
	t.setState(StateConnecting)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.conn = conn
	t.connectedSince = time.Now()
	m := t.metrics
	t.mu.Unlock()
	t.setState(StateConnected)
	if m != nil {
		m.RecordTransportConnected(true)
	}
	return nil
}

func (t *WebSocketTransport) setState(s State) {
	select {
	case t.states <- s:
	default:
	}
}

func (t *WebSocketTransport) readLoop(ctx context.Context) {
	attempt := 0
	for {
		t.mu.Lock()
		conn := t.conn
		closed := t.closed
		t.mu.Unlock()
		if closed {
			close(t.recv)
			return
		}
		if conn == nil {
			if !t.reconnect(ctx, &attempt) {
				close(t.recv)
				return
			}
			continue
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			t.logger.Warn("websocket read failed", "error", err)
			t.mu.Lock()
			t.conn = nil
			m := t.metrics
			t.mu.Unlock()
			t.setState(StateDisconnected)
			if m != nil {
				m.RecordTransportConnected(false)
			}
			if !t.reconnect(ctx, &attempt) {
				close(t.recv)
				return
			}
			continue
		}
		if msgType != websocket.TextMessage {
			continue // binary frames rejected at this layer
		}
		if time.Since(t.connectedSince) > stableResetAfter {
			attempt = 0
		}
		t.mu.Lock()
		m := t.metrics
		t.mu.Unlock()
		if m != nil {
			m.RecordFrameReceived(t.url, "websocket")
		}
		select {
		case t.recv <- Frame(data):
		case <-ctx.Done():
			close(t.recv)
			return
		}
	}
}

// reconnect waits out the backoff delay for attempt and tries to dial again.
// It returns false if ctx is done or the transport has been closed.
func (t *WebSocketTransport) reconnect(ctx context.Context, attempt *int) bool {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return false
	}

	delay := t.backoff.delay(*attempt)
	*attempt++
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return false
	}

	if err := t.dial(ctx); err != nil {
		t.logger.Warn("websocket reconnect failed", "error", err, "attempt", *attempt)
		return true // keep retrying; caller loop continues
	}
	if t.metrics != nil {
		t.metrics.RecordReconnect()
	}
	return true
}

func (t *WebSocketTransport) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-t.send:
			t.mu.Lock()
			conn := t.conn
			t.mu.Unlock()
			if conn == nil {
				req.errCh <- errors.ErrTransportReset
				continue
			}
			req.errCh <- conn.WriteMessage(websocket.TextMessage, req.frame)
		}
	}
}

func (t *WebSocketTransport) Send(ctx context.Context, frame Frame) error {
	errCh := make(chan error, 1)
	select {
	case t.send <- sendRequest{frame: frame, errCh: errCh}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errCh:
		t.mu.Lock()
		m := t.metrics
		t.mu.Unlock()
		if m != nil {
			if err != nil {
				m.RecordError(t.url, "send")
			} else {
				m.RecordFrameSent(t.url, "websocket")
			}
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *WebSocketTransport) Receive() <-chan Frame      { return t.recv }
func (t *WebSocketTransport) StateChanges() <-chan State { return t.states }

func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.conn != nil {
		err := t.conn.Close()
		t.conn = nil
		return err
	}
	return nil
}
