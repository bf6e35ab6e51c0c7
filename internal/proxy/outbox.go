package proxy

import (
	"context"
	"time"

	"github.com/danielcherubini/elegoo-printercore/pkg/buffer"
)

// slowConsumerTimeout is how long a downstream's queue may stay full before
// it is disconnected with SlowConsumer.
const slowConsumerTimeout = 2 * time.Second

// outbox is a per-downstream bounded queue: a pkg/buffer.Buffer paired with
// a notify channel so a writer goroutine can block-wait for new items
// instead of polling.
type outbox struct {
	buf    buffer.Buffer[[]byte]
	notify chan struct{}
}

// ctxWriter is satisfied by buffer.Buffer implementations (the concrete
// circularBuffer) that support a context-bounded blocking write; the
// interface returned by NewCircularBuffer doesn't expose it directly, so
// outbox asserts to this narrower shape instead.
type ctxWriter interface {
	WriteWithContext(ctx context.Context, item []byte) error
}

// newControlOutbox builds the control-plane queue: capacity 64, Block
// policy. push blocks (bounded by slowConsumerTimeout) when full, so a
// genuinely stalled consumer is detected and evicted rather than silently
// dropped.
func newControlOutbox() (*outbox, error) {
	buf, err := buffer.NewCircularBuffer[[]byte](64, buffer.WithOverflowPolicy[[]byte](buffer.Block))
	if err != nil {
		return nil, err
	}
	return &outbox{buf: buf, notify: make(chan struct{}, 1)}, nil
}

// newVideoOutbox builds the video-plane ring: capacity 2, DropOldest.
// Frames are latest-wins; a consumer too slow to keep up simply sees the
// newest frames and never builds unbounded memory. The video plane does not
// disconnect slow consumers: a stalled HTTP write holds up only that
// client's own ServeHTTP loop.
func newVideoOutbox() (*outbox, error) {
	buf, err := buffer.NewCircularBuffer[[]byte](2, buffer.WithOverflowPolicy[[]byte](buffer.DropOldest))
	if err != nil {
		return nil, err
	}
	return &outbox{buf: buf, notify: make(chan struct{}, 1)}, nil
}

// push enqueues frame, bounded by ctx. For a Block-policy outbox this
// returns a context-deadline error when the consumer has stalled past the
// queue's capacity for the duration of ctx.
func (o *outbox) push(ctx context.Context, frame []byte) error {
	var err error
	if cw, ok := o.buf.(ctxWriter); ok {
		err = cw.WriteWithContext(ctx, frame)
	} else {
		err = o.buf.Write(frame)
	}
	if err != nil {
		return err
	}
	select {
	case o.notify <- struct{}{}:
	default:
	}
	return nil
}

// run drains the outbox, calling send for each item, until ctx is done or
// send returns an error.
func (o *outbox) run(ctx context.Context, send func([]byte) error) error {
	for {
		for {
			item, ok := o.buf.Read()
			if !ok {
				break
			}
			if err := send(item); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.notify:
		}
	}
}

func (o *outbox) close() {
	_ = o.buf.Close()
}
