package proxy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutbox_PushAndRunDeliversInOrder(t *testing.T) {
	ob, err := newControlOutbox()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var delivered [][]byte
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ob.run(ctx, func(frame []byte) error {
			delivered = append(delivered, frame)
			if len(delivered) == 2 {
				cancel()
			}
			return nil
		})
	}()

	require.NoError(t, ob.push(context.Background(), []byte("a")))
	require.NoError(t, ob.push(context.Background(), []byte("b")))

	<-done
	require.Len(t, delivered, 2)
	assert.Equal(t, "a", string(delivered[0]))
	assert.Equal(t, "b", string(delivered[1]))
}

func TestOutbox_VideoRingDropsOldestWithoutBlocking(t *testing.T) {
	ob, err := newVideoOutbox()
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		err := ob.push(context.Background(), []byte{byte(i)})
		require.NoError(t, err, "DropOldest policy must never block push")
	}
}

func TestOutbox_ControlPushBlocksThenTimesOutWhenConsumerStalled(t *testing.T) {
	ob, err := newControlOutbox()
	require.NoError(t, err)

	// Fill the queue (capacity 64) without a reader draining it.
	for i := 0; i < 64; i++ {
		require.NoError(t, ob.push(context.Background(), []byte{byte(i)}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = ob.push(ctx, []byte("overflow"))
	assert.Error(t, err, "a stalled consumer's full queue should time out rather than block forever")
}
