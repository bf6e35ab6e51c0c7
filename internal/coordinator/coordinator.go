package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/danielcherubini/elegoo-printercore/internal/session"
	"github.com/danielcherubini/elegoo-printercore/internal/wire"
	"github.com/danielcherubini/elegoo-printercore/metric"
	"github.com/danielcherubini/elegoo-printercore/pkg/retry"
)

const (
	defaultPollInterval  = 2 * time.Second
	maxReconnectAttempts = 5
	reconnectBackoffBase = time.Second
	reconnectBackoffMax  = 30 * time.Second
)

// SessionHandle is the subset of *session.Session a Coordinator drives. It
// is an interface so tests can supply a fake rather than a live Session.
type SessionHandle interface {
	State() session.State
	Invoke(ctx context.Context, kind wire.CommandKind, params map[string]any, deadline time.Duration) (*wire.ResponseEnvelope, error)
	Snapshot() session.StatusSnapshot
	Close() error
}

// Coordinator polls a Session's status at a fixed cadence, diffs against the
// prior snapshot, and emits changes on a subscription stream.
type Coordinator struct {
	sess          SessionHandle
	logger        *slog.Logger
	pollInterval  time.Duration
	reconnect     func(ctx context.Context) error
	metrics       *metric.Metrics

	mu       sync.Mutex
	inflight bool
	prior    map[string]any

	changes chan session.StatusSnapshot
	cancel  context.CancelFunc
	done    chan struct{}
}

// Options configures a Coordinator.
type Options struct {
	PollInterval time.Duration
	// Reconnect is invoked with bounded retries when the Session reports
	// DEGRADED or CLOSED; nil means no automatic reconnect is attempted.
	Reconnect func(ctx context.Context) error
}

// New builds a Coordinator around sess. Start must be called to begin
// polling.
func New(sess SessionHandle, opts Options, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Coordinator{
		sess:         sess,
		logger:       logger.With("component", "coordinator"),
		pollInterval: interval,
		reconnect:    opts.Reconnect,
		changes:      make(chan session.StatusSnapshot, 1),
	}
}

// SetMetrics attaches a Metrics recorder. Optional; nil by default means
// poll/reconnect events aren't recorded anywhere.
func (c *Coordinator) SetMetrics(m *metric.Metrics) {
	c.metrics = m
}

// Changes returns the diffed, latest-wins status-update stream.
func (c *Coordinator) Changes() <-chan session.StatusSnapshot {
	return c.changes
}

// Start begins the poll loop; it runs until ctx is done or Stop is called.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.loop(ctx)
}

// Stop halts the poll loop and waits for it to exit.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.done != nil {
		<-c.done
	}
}

func (c *Coordinator) loop(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// tick fires at most one outstanding GetStatus: if one is still in flight
// from a prior tick, this tick is skipped entirely (not queued).
func (c *Coordinator) tick(ctx context.Context) {
	c.mu.Lock()
	if c.inflight {
		c.mu.Unlock()
		return
	}
	c.inflight = true
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			c.inflight = false
			c.mu.Unlock()
		}()
		c.poll(ctx)
	}()
}

func (c *Coordinator) poll(ctx context.Context) {
	switch c.sess.State() {
	case session.StateDegraded, session.StateClosed:
		c.triggerReconnect(ctx)
		return
	case session.StateReconnecting:
		return
	}

	resp, err := c.sess.Invoke(ctx, wire.CmdGetStatus, nil, 5*time.Second)
	if err != nil {
		c.logger.Warn("poll failed", "error", err)
		if c.metrics != nil {
			c.metrics.RecordError("coordinator", "poll")
		}
		return
	}

	c.mu.Lock()
	prior := c.prior
	c.prior = resp.Result
	c.mu.Unlock()

	if prior != nil && cmp.Equal(prior, resp.Result) {
		return // no change; nothing to emit
	}

	snap := c.sess.Snapshot()
	select {
	case c.changes <- snap:
	default:
		select {
		case <-c.changes:
		default:
		}
		select {
		case c.changes <- snap:
		default:
		}
	}
}

// triggerReconnect attempts a bounded number of reconnects with exponential
// backoff and jitter, via the shared retry package.
func (c *Coordinator) triggerReconnect(ctx context.Context) {
	if c.reconnect == nil {
		return
	}
	cfg := retry.Config{
		MaxAttempts:  maxReconnectAttempts,
		InitialDelay: reconnectBackoffBase,
		MaxDelay:     reconnectBackoffMax,
		Multiplier:   2.0,
		AddJitter:    true,
	}
	err := retry.Do(ctx, cfg, func() error {
		return c.reconnect(ctx)
	})
	if err != nil {
		c.logger.Error("reconnect attempts exhausted", "attempts", maxReconnectAttempts, "error", err)
		return
	}
	if c.metrics != nil {
		c.metrics.RecordReconnect()
	}
}
