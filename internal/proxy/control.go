package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/danielcherubini/elegoo-printercore/errors"
	"github.com/danielcherubini/elegoo-printercore/metric"
)

// downstreamCommandRate and downstreamCommandBurst bound how fast any single
// downstream can issue commands toward the upstream printer, so one
// misbehaving client can't starve the others sharing the connection.
const (
	downstreamCommandRate  = 20 // commands per second
	downstreamCommandBurst = 40
)

// UpstreamSender is how the control plane delivers a (possibly id-remapped)
// downstream frame to the single upstream printer connection. Implementers
// must serialize concurrent calls themselves (single-writer discipline).
type UpstreamSender func(frame []byte) error

// ControlServer is the WebSocket control plane: it accepts downstream
// connections, remaps their request ids onto a shared upstream connection,
// and fans upstream status/event frames out to every downstream unmodified.
type ControlServer struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader
	send     UpstreamSender
	remap    *remapTable

	mu          sync.RWMutex
	downstreams map[string]*downstreamClient

	metrics *metric.Metrics
}

// SetMetrics attaches a Metrics recorder. Optional; nil by default means
// control-plane events aren't recorded anywhere.
func (s *ControlServer) SetMetrics(m *metric.Metrics) {
	s.metrics = m
}

type downstreamClient struct {
	id      string
	conn    *websocket.Conn
	out     *outbox
	limiter *rate.Limiter
}

// NewControlServer builds a ControlServer. send is called (from the
// downstream read loop) whenever a downstream issues a command that must
// reach the upstream printer.
func NewControlServer(send UpstreamSender, logger *slog.Logger) *ControlServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ControlServer{
		logger:      logger.With("component", "proxy.control"),
		upgrader:    websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: func(*http.Request) bool { return true }},
		send:        send,
		remap:       newRemapTable(),
		downstreams: map[string]*downstreamClient{},
	}
}

// ServeHTTP upgrades the connection and runs the downstream's read/write
// loops until it disconnects.
func (s *ControlServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "error", err)
		return
	}

	out, err := newControlOutbox()
	if err != nil {
		s.logger.Error("failed to create downstream outbox", "error", err)
		_ = conn.Close()
		return
	}

	dc := &downstreamClient{
		id:      uuid.NewString(),
		conn:    conn,
		out:     out,
		limiter: rate.NewLimiter(rate.Limit(downstreamCommandRate), downstreamCommandBurst),
	}

	s.mu.Lock()
	s.downstreams[dc.id] = dc
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.writeLoop(ctx, dc)
	s.readLoop(ctx, dc)

	s.mu.Lock()
	delete(s.downstreams, dc.id)
	s.mu.Unlock()
	s.remap.dropDownstream(dc.id)
	out.close()
	_ = conn.Close()
}

func (s *ControlServer) readLoop(ctx context.Context, dc *downstreamClient) {
	for {
		_, data, err := dc.conn.ReadMessage()
		if err != nil {
			return
		}

		if !dc.limiter.Allow() {
			s.logger.Warn("dropping downstream frame over rate limit", "downstream", dc.id)
			continue
		}

		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			s.logger.Warn("dropping malformed downstream frame", "downstream", dc.id, "error", err)
			continue
		}

		originalID, hasID := frameID(raw)
		if !hasID {
			// Unknown/passthrough frame shape: forward unchanged.
			if err := s.send(data); err != nil {
				s.logger.Warn("upstream send failed", "error", err)
				return
			}
			continue
		}

		upstreamID := s.remap.mint(dc.id, originalID)
		remapped, err := json.Marshal(withID(raw, upstreamID))
		if err != nil {
			continue
		}
		if err := s.send(remapped); err != nil {
			s.logger.Warn("upstream send failed", "error", err)
			return
		}
	}
}

func (s *ControlServer) writeLoop(ctx context.Context, dc *downstreamClient) {
	err := dc.out.run(ctx, func(frame []byte) error {
		return dc.conn.WriteMessage(websocket.TextMessage, frame)
	})
	if err != nil && ctx.Err() == nil {
		s.logger.Info("disconnecting slow consumer", "downstream", dc.id, "error", err)
		if s.metrics != nil {
			s.metrics.RecordError(dc.id, "slow_consumer")
		}
		_ = dc.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(4000, errors.ErrSlowConsumer.Error()),
			time.Now().Add(time.Second))
	}
}

// HandleUpstreamFrame routes one frame received from the upstream printer:
// a response (has a request id the remap table recognizes) is rewritten to
// the original downstream id and delivered only to that downstream; an
// event/status frame (no matching remap entry) is broadcast unmodified to
// every connected downstream.
func (s *ControlServer) HandleUpstreamFrame(frame []byte) {
	var raw map[string]any
	if err := json.Unmarshal(frame, &raw); err != nil {
		s.logger.Warn("dropping malformed upstream frame", "error", err)
		return
	}

	if upstreamID, ok := frameID(raw); ok {
		if entry, matched := s.remap.resolve(upstreamID); matched {
			s.deliverTo(entry.downstreamID, mustMarshal(withID(raw, entry.originalID)))
			return
		}
	}

	s.broadcast(frame)
}

func (s *ControlServer) deliverTo(downstreamID string, frame []byte) {
	s.mu.RLock()
	dc, ok := s.downstreams[downstreamID]
	s.mu.RUnlock()
	if !ok {
		return // downstream disconnected before its response arrived
	}
	ctx, cancel := context.WithTimeout(context.Background(), slowConsumerTimeout)
	defer cancel()
	if err := dc.out.push(ctx, frame); err != nil {
		s.logger.Warn("evicting stalled downstream", "downstream", downstreamID, "error", err)
		s.evict(dc)
	}
}

// evict disconnects a downstream whose queue stayed full past
// slowConsumerTimeout, with close code 4000 (SlowConsumer).
func (s *ControlServer) evict(dc *downstreamClient) {
	if s.metrics != nil {
		s.metrics.RecordError(dc.id, "slow_consumer")
	}
	_ = dc.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(4000, errors.ErrSlowConsumer.Error()),
		time.Now().Add(time.Second))
	_ = dc.conn.Close()
}

func (s *ControlServer) broadcast(frame []byte) {
	s.mu.RLock()
	targets := make([]*downstreamClient, 0, len(s.downstreams))
	for _, dc := range s.downstreams {
		targets = append(targets, dc)
	}
	s.mu.RUnlock()

	for _, dc := range targets {
		ctx, cancel := context.WithTimeout(context.Background(), slowConsumerTimeout)
		if err := dc.out.push(ctx, frame); err != nil {
			s.logger.Warn("evicting stalled downstream", "downstream", dc.id, "error", err)
			s.evict(dc)
		}
		cancel()
	}
}

func frameID(raw map[string]any) (string, bool) {
	if _, isEvent := raw["Topic"]; isEvent {
		return "", false
	}
	id, ok := raw["Id"].(string)
	return id, ok && id != ""
}

func withID(raw map[string]any, id string) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	out["Id"] = id
	if data, ok := out["Data"].(map[string]any); ok {
		cp := make(map[string]any, len(data))
		for k, v := range data {
			cp[k] = v
		}
		cp["RequestID"] = id
		out["Data"] = cp
	}
	return out
}

func mustMarshal(v map[string]any) []byte {
	data, _ := json.Marshal(v)
	return data
}
