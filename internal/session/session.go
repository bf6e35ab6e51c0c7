package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/danielcherubini/elegoo-printercore/errors"
	"github.com/danielcherubini/elegoo-printercore/internal/discovery"
	"github.com/danielcherubini/elegoo-printercore/internal/transport"
	"github.com/danielcherubini/elegoo-printercore/internal/wire"
	"github.com/danielcherubini/elegoo-printercore/metric"
)

const (
	registrationDeadline = 3 * time.Second
	invokeDefaultDeadline = 5 * time.Second
	heartbeatInterval     = 10 * time.Second
	heartbeatMissGrace    = 65 * time.Second
	degradedGrace         = 20 * time.Second
	safetyRefreshInterval = 300 * time.Second
)

// Session owns the protocol state machine for one printer connection:
// registration (CC2 only), heartbeat, request/response matching, and the
// status snapshot's delta merge.
type Session struct {
	identity discovery.Identity
	codec    wire.Codec
	tr       transport.Transport
	logger   *slog.Logger

	inflight *inflightTable
	snapshot *StatusSnapshot

	mu             sync.RWMutex
	state          State
	stateWatchers  []chan State
	clientID       string
	lastPongAt     time.Time
	degradedSince  time.Time

	updates chan StatusSnapshot // latest-wins subscription channel
	metrics *metric.Metrics     // optional; nil means no metrics recorded

	closeOnce sync.Once
	cancel    context.CancelFunc
}

// SetMetrics attaches a metrics sink. Safe to call once before Open; a nil
// Session.metrics (the default) makes every recording call a no-op.
func (s *Session) SetMetrics(m *metric.Metrics) {
	s.metrics = m
	switch tr := s.tr.(type) {
	case *transport.WebSocketTransport:
		tr.SetMetrics(m)
	case *transport.MqttTransport:
		tr.SetMetrics(m)
	}
}

// Options is passed to Open, which reads neither field: the CC2 access code
// is substituted for the default MQTT password where the transport is built
// (printerclient.NewClient).
type Options struct {
	AccessCode string
	TokenSet   bool
}

// New builds a Session. It does not open the transport; call Open for that.
func New(identity discovery.Identity, tr transport.Transport, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		identity: identity,
		codec:    wire.CodecFor(identity.ProtocolKind),
		tr:       tr,
		logger:   logger.With("component", "session", "printer", identity.Serial),
		inflight: newInflightTable(),
		snapshot: NewStatusSnapshot(),
		state:    StateIdle,
		updates:  make(chan StatusSnapshot, 1),
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	watchers := append([]chan State{}, s.stateWatchers...)
	s.mu.Unlock()
	for _, w := range watchers {
		select {
		case w <- st:
		default:
		}
	}
	if s.metrics != nil {
		s.metrics.RecordSessionState(s.identity.Serial, int(st))
	}
}

// Open dials the transport, performs CC2 registration if needed, starts the
// reader and heartbeat tasks, and issues the initial GET_STATUS.
func (s *Session) Open(ctx context.Context, opts Options) error {
	if discovery.IsCloudOnly(s.identity) {
		return errors.ErrUnsupportedMode
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.setState(StateConnecting)
	if err := s.tr.Open(ctx); err != nil {
		s.setState(StateClosed)
		return err
	}

	if s.identity.ProtocolKind == wire.DialectCC2MQTT {
		s.setState(StateRegistering)
		if err := s.register(ctx, opts); err != nil {
			s.setState(StateClosed)
			return err
		}
	}

	s.setState(StateReady)
	go s.readLoop(ctx)
	go s.transportStateLoop(ctx)
	if s.identity.ProtocolKind == wire.DialectCC2MQTT {
		go s.heartbeatLoop(ctx)
	}
	go s.safetyRefreshLoop(ctx)

	if _, err := s.Invoke(ctx, wire.CmdGetStatus, nil, invokeDefaultDeadline); err != nil {
		s.logger.Warn("initial status fetch failed", "error", err)
	}

	return nil
}

// register performs the CC2 registration handshake: subscribe to the
// register-response topic, publish the register request, and wait up to
// registrationDeadline for {"error":"ok"}.
func (s *Session) register(ctx context.Context, opts Options) error {
	mt, ok := s.tr.(*transport.MqttTransport)
	if !ok {
		return nil // non-MQTT transport under test; nothing to register
	}

	s.clientID = transport.NewClientID()
	requestID := transport.NewRegisterRequestID()
	topics := transport.TopicsForSerial(s.identity.Serial, s.clientID, requestID)

	if err := mt.Subscribe(topics.RegisterResponse); err != nil {
		return errors.WrapTransient(err, "Session", "register", "subscribe register_response")
	}

	payload, _ := json.Marshal(map[string]any{"client_id": s.clientID, "request_id": requestID})

	regCtx, cancel := context.WithTimeout(ctx, registrationDeadline)
	defer cancel()

	if err := mt.PublishTo(regCtx, topics.Register, transport.Frame(payload)); err != nil {
		return errors.WrapTransient(err, "Session", "register", "publish api_register")
	}

	select {
	case frame := <-s.tr.Receive():
		var resp struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(frame, &resp); err != nil {
			return errors.WrapInvalid(errors.ErrProtocolError, "Session", "register", "decode register_response")
		}
		switch resp.Error {
		case "ok":
			// fall through
		case "too many clients":
			return errors.ErrSlotExhausted
		default:
			return errors.ErrRegistrationFailed
		}
	case <-regCtx.Done():
		return errors.WrapTransient(errors.ErrRequestTimeout, "Session", "register", "await register_response")
	}

	if err := mt.Subscribe(topics.Status); err != nil {
		return errors.WrapTransient(err, "Session", "register", "subscribe api_status")
	}
	if err := mt.Subscribe(topics.Response); err != nil {
		return errors.WrapTransient(err, "Session", "register", "subscribe api_response")
	}
	mt.SetPublishTopic(topics.Request)

	return nil
}

// Invoke sends a command and waits for its matching response (or the
// deadline, whichever comes first). kind is resolved to this session's own
// dialect's method code at encode time (see internal/wire.MethodFor) —
// WS-SDCP/legacy-MQTT and CC2-MQTT number several commands differently.
func (s *Session) Invoke(ctx context.Context, kind wire.CommandKind, params map[string]any, deadline time.Duration) (*wire.ResponseEnvelope, error) {
	if s.State() == StateClosed {
		return nil, errors.ErrSessionClosed
	}
	if deadline <= 0 {
		deadline = invokeDefaultDeadline
	}

	requestID := s.inflight.nextRequestID()
	env := wire.CommandEnvelope{RequestID: requestID, Kind: kind, Params: params, IssuedAt: time.Now()}

	data, err := s.codec.EncodeCommand(env)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Session", "Invoke", "encode command")
	}

	waiter := s.inflight.register(requestID)

	ictx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	started := time.Now()
	if err := s.tr.Send(ictx, transport.Frame(data)); err != nil {
		s.inflight.cancel(requestID)
		s.recordError("send_failed")
		return nil, errors.WrapTransient(err, "Session", "Invoke", "send")
	}

	method := wire.MethodFor(kind, s.identity.ProtocolKind)

	select {
	case resp := <-waiter:
		s.recordInvokeDuration(method, time.Since(started))
		if resp == nil {
			// A nil response comes from cancelInflightWith: Close moves the
			// session to CLOSED before cancelling; a transport reset does not.
			if s.State() == StateClosed {
				return nil, errors.ErrSessionClosed
			}
			return nil, errors.ErrTransportReset
		}
		if err := s.classifyResponseError(resp); err != nil {
			s.recordError("response_error")
			return resp, err
		}
		return resp, nil
	case <-ictx.Done():
		s.inflight.cancel(requestID)
		s.recordError("timeout")
		return nil, errors.WrapTransient(errors.ErrRequestTimeout, "Session", "Invoke", "await response")
	}
}

func (s *Session) recordInvokeDuration(method int, d time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordInvokeDuration(s.identity.Serial, wireMethodLabel(method), d)
	}
}

func (s *Session) recordError(kind string) {
	if s.metrics != nil {
		s.metrics.RecordError(s.identity.Serial, kind)
	}
}

func wireMethodLabel(method int) string {
	return strconv.Itoa(method)
}

func (s *Session) classifyResponseError(resp *wire.ResponseEnvelope) error {
	if resp.Success() {
		return nil
	}
	switch resp.ErrorCode {
	case wire.ErrCodeUnauthorized:
		return errors.ErrUnauthorizedAccess
	case wire.ErrCodePrinterBusy:
		return errors.ErrPrinterBusy
	case wire.ErrCodeFileNotFoundA, wire.ErrCodeFileNotFoundB:
		return errors.ErrFileNotFound
	case wire.ErrCodeChecksumMismatch:
		return errors.ErrChecksumMismatch
	default:
		return errors.WrapInvalid(errors.ErrProtocolError, "Session", "Invoke", "printer-reported error")
	}
}

// readLoop drains inbound frames, matching responses against the in-flight
// table and merging status events into the snapshot.
func (s *Session) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-s.tr.Receive():
			if !ok {
				return
			}
			s.handleFrame(ctx, frame)
		}
	}
}

func (s *Session) handleFrame(ctx context.Context, frame transport.Frame) {
	if isPongFrame(frame) {
		s.NotePong()
		return
	}

	resp, err := s.codec.DecodeFrame(frame)
	if err != nil {
		s.logger.Warn("dropping malformed frame", "error", err)
		return
	}

	if !resp.IsEvent() {
		if !s.inflight.resolve(resp) {
			s.logger.Debug("dropping orphan response", "request_id", resp.RequestID)
		}
		return
	}

	s.handleStatusEvent(ctx, resp)
}

// isPongFrame reports whether frame is a CC2 heartbeat PONG ({"type":"PONG"}
// on the api_response topic), which carries no Cmd/method and must be
// distinguished before the codec tries to parse it as a command response or
// status event.
func isPongFrame(frame transport.Frame) bool {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(frame, &probe); err != nil {
		return false
	}
	return probe.Type == "PONG"
}

func (s *Session) handleStatusEvent(ctx context.Context, resp *wire.ResponseEnvelope) {
	updateID := extractUpdateID(resp.Result)

	result := s.snapshot.Merge(updateID, resp.Result)
	if s.metrics != nil {
		s.metrics.RecordNonContinuousCount(s.identity.Serial, result.NonContinuousCount)
		s.metrics.RecordFrameReceived(s.identity.Serial, "status_event")
	}
	if result.NeedsFullRefresh {
		s.requestFullRefresh(ctx)
	}

	if s.snapshot.MachineStatus() == "PRINTING" {
		if s.snapshot.PrintFilename() == "" {
			s.snapshot.MarkTainted()
			s.requestFullRefresh(ctx)
		} else if s.snapshot.TotalLayers() == 0 {
			s.recoverTotalLayers(ctx)
		}
	}

	select {
	case s.updates <- s.snapshot.Copy():
	default:
		// Latest-wins: drop the stale pending update, push the fresh one.
		select {
		case <-s.updates:
		default:
		}
		select {
		case s.updates <- s.snapshot.Copy():
		default:
		}
	}
}

func extractUpdateID(tree map[string]any) int64 {
	if v, ok := tree["lastUpdateId"].(float64); ok {
		return int64(v)
	}
	return 0
}

func (s *Session) requestFullRefresh(ctx context.Context) {
	resp, err := s.Invoke(ctx, wire.CmdGetStatus, nil, invokeDefaultDeadline)
	if err != nil {
		s.logger.Warn("full status refresh failed", "error", err)
		return
	}
	s.snapshot.ReplaceFull(extractUpdateID(resp.Result), resp.Result)
}

// recoverTotalLayers implements the total-layer recovery path: when a print
// is active but total_layer is missing from the delta stream, fetch it via
// GET_FILE_DETAIL, accepting either "TotalLayers" or "layer" in the result.
func (s *Session) recoverTotalLayers(ctx context.Context) {
	resp, err := s.Invoke(ctx, wire.CmdGetFileDetail, map[string]any{"filename": s.snapshot.PrintFilename()}, invokeDefaultDeadline)
	if err != nil {
		s.logger.Warn("total layer recovery failed", "error", err)
		return
	}
	if v, ok := resp.Result["TotalLayers"].(float64); ok {
		s.snapshot.SetTotalLayers(v)
		return
	}
	if v, ok := resp.Result["layer"].(float64); ok {
		s.snapshot.SetTotalLayers(v)
	}
}

// transportStateLoop watches the underlying transport's connectivity state
// and maps drops onto RECONNECTING, preserving the snapshot as last-known.
func (s *Session) transportStateLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-s.tr.StateChanges():
			if !ok {
				return
			}
			switch st {
			case transport.StateDisconnected:
				s.snapshot.MarkStale()
				s.setState(StateReconnecting)
				s.cancelInflightWith(errors.ErrTransportReset)
			case transport.StateConnected:
				if s.State() == StateReconnecting {
					if s.metrics != nil {
						s.metrics.RecordReconnect()
					}
					s.setState(StateReady)
					go s.requestFullRefresh(ctx)
				}
				if s.metrics != nil {
					s.metrics.RecordTransportConnected(true)
				}
			}
		}
	}
}

func (s *Session) cancelInflightWith(_ error) {
	for _, ch := range s.inflight.drain() {
		select {
		case ch <- nil:
		default:
		}
	}
}

// heartbeatLoop publishes CC2 PING frames every heartbeatInterval and
// tracks missed PONGs, driving READY->DEGRADED->RECONNECTING.
func (s *Session) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	s.mu.Lock()
	s.lastPongAt = time.Now()
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, _ := json.Marshal(map[string]any{"type": "PING"})
			_ = s.tr.Send(ctx, transport.Frame(payload)) // fire-and-forget
			s.checkHeartbeat(ctx)
		}
	}
}

// checkHeartbeat evaluates how long it has been since the last PONG and
// drives READY->DEGRADED->RECONNECTING accordingly. Split out of
// heartbeatLoop so tests can exercise the transition logic without waiting
// on real timers.
func (s *Session) checkHeartbeat(ctx context.Context) {
	s.mu.RLock()
	since := time.Since(s.lastPongAt)
	s.mu.RUnlock()

	switch {
	case since > heartbeatMissGrace+degradedGrace:
		s.setState(StateReconnecting)
		s.cancelInflightWith(errors.ErrTransportReset)
	case since > heartbeatMissGrace:
		if s.State() == StateReady {
			s.mu.Lock()
			s.degradedSince = time.Now()
			s.mu.Unlock()
			s.setState(StateDegraded)
		}
	}
}

// NotePong records receipt of a PONG, clearing degraded-state tracking.
// handleFrame calls it for every frame isPongFrame recognizes.
func (s *Session) NotePong() {
	s.mu.Lock()
	s.lastPongAt = time.Now()
	s.mu.Unlock()
	if s.State() == StateDegraded {
		s.setState(StateReady)
	}
}

// safetyRefreshLoop issues a full status refresh every safetyRefreshInterval
// as a defense against silent drift, independent of continuity tracking.
func (s *Session) safetyRefreshLoop(ctx context.Context) {
	ticker := time.NewTicker(safetyRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.requestFullRefresh(ctx)
		}
	}
}

// Snapshot returns an immutable copy of the current status snapshot.
func (s *Session) Snapshot() StatusSnapshot {
	return s.snapshot.Copy()
}

// Updates returns the latest-wins snapshot update channel.
func (s *Session) Updates() <-chan StatusSnapshot {
	return s.updates
}

// Close shuts the session down: cancels all outstanding invokes with
// SessionClosed, stops background tasks, and closes the transport.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.setState(StateClosed)
		if s.cancel != nil {
			s.cancel()
		}
		s.cancelInflightWith(errors.ErrSessionClosed)
		err = s.tr.Close()
	})
	return err
}
