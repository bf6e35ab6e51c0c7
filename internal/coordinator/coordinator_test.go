package coordinator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielcherubini/elegoo-printercore/internal/session"
	"github.com/danielcherubini/elegoo-printercore/internal/wire"
)

type fakeSession struct {
	state       atomic.Int32
	invokeCount atomic.Int64
	result      map[string]any
	invokeDelay time.Duration
}

func (f *fakeSession) State() session.State {
	return session.State(f.state.Load())
}

func (f *fakeSession) Invoke(ctx context.Context, kind wire.CommandKind, params map[string]any, deadline time.Duration) (*wire.ResponseEnvelope, error) {
	f.invokeCount.Add(1)
	if f.invokeDelay > 0 {
		select {
		case <-time.After(f.invokeDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &wire.ResponseEnvelope{Result: f.result}, nil
}

func (f *fakeSession) Snapshot() session.StatusSnapshot {
	return session.StatusSnapshot{Tree: f.result}
}

func (f *fakeSession) Close() error { return nil }

func TestCoordinator_PollsAtInterval(t *testing.T) {
	fs := &fakeSession{result: map[string]any{"a": 1}}
	fs.state.Store(int32(session.StateReady))

	c := New(fs, Options{PollInterval: 20 * time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	defer cancel()

	require.Eventually(t, func() bool {
		return fs.invokeCount.Load() >= 2
	}, time.Second, 10*time.Millisecond)

	c.Stop()
}

func TestCoordinator_SkipsTickWhenInvokeOutstanding(t *testing.T) {
	fs := &fakeSession{result: map[string]any{"a": 1}, invokeDelay: 100 * time.Millisecond}
	fs.state.Store(int32(session.StateReady))

	c := New(fs, Options{PollInterval: 20 * time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	time.Sleep(90 * time.Millisecond)
	c.Stop()
	cancel()

	// With a 100ms invoke and a 20ms tick, at most ~1-2 invokes should have
	// started in 90ms of ticks if debounce is skipping outstanding ticks.
	assert.LessOrEqual(t, fs.invokeCount.Load(), int64(2))
}

func TestCoordinator_EmitsOnlyOnChange(t *testing.T) {
	fs := &fakeSession{result: map[string]any{"a": 1}}
	fs.state.Store(int32(session.StateReady))

	c := New(fs, Options{PollInterval: 15 * time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	select {
	case snap := <-c.Changes():
		assert.Equal(t, 1, snap.Tree["a"])
	case <-time.After(time.Second):
		t.Fatal("expected an initial emit")
	}
}

func TestCoordinator_TriggersReconnectWhenDegraded(t *testing.T) {
	fs := &fakeSession{result: map[string]any{}}
	fs.state.Store(int32(session.StateDegraded))

	var reconnected atomic.Bool
	c := New(fs, Options{
		PollInterval: 15 * time.Millisecond,
		Reconnect: func(ctx context.Context) error {
			reconnected.Store(true)
			return nil
		},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	require.Eventually(t, func() bool {
		return reconnected.Load()
	}, time.Second, 10*time.Millisecond)
}

func TestCoordinator_ReconnectGivesUpAfterMaxAttempts(t *testing.T) {
	fs := &fakeSession{}
	fs.state.Store(int32(session.StateDegraded))

	var attempts atomic.Int32
	c := New(fs, Options{
		PollInterval: 15 * time.Millisecond,
		Reconnect: func(ctx context.Context) error {
			attempts.Add(1)
			return assert.AnError
		},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	require.Eventually(t, func() bool {
		return attempts.Load() >= int32(maxReconnectAttempts)
	}, 20*time.Second, 10*time.Millisecond)
}
