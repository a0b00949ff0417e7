package bus_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handwave-data/handwave/internal/bus"
	"github.com/handwave-data/handwave/internal/hand"
)

func TestFanOut(t *testing.T) {
	t.Parallel()
	b := bus.New()
	defer b.Close()

	a := b.Subscribe(4)
	c := b.Subscribe(4)

	b.Publish(hand.Intent{HandID: 7, X: 0.5})

	got := <-a.C
	assert.Equal(t, 7, got.HandID)
	got = <-c.C
	assert.Equal(t, 7, got.HandID)
}

func TestSlowSubscriberDropsNotBlocks(t *testing.T) {
	t.Parallel()
	b := bus.New()
	defer b.Close()

	slow := b.Subscribe(1)
	fast := b.Subscribe(8)

	// Second publish overflows the depth-1 buffer; Publish must return
	// anyway and count the loss.
	b.Publish(hand.Intent{HandID: 0})
	b.Publish(hand.Intent{HandID: 1})

	assert.Equal(t, uint64(1), b.Dropped())
	assert.Len(t, fast.C, 2, "fast subscriber sees both records")
	assert.Len(t, slow.C, 1)
}

func TestUnsubscribe(t *testing.T) {
	t.Parallel()
	b := bus.New()
	defer b.Close()

	sub := b.Subscribe(0)
	b.Unsubscribe(sub)

	_, open := <-sub.C
	assert.False(t, open, "unsubscribed channel must be closed")

	// Idempotent, and nil is tolerated.
	b.Unsubscribe(sub)
	b.Unsubscribe(nil)

	b.Publish(hand.Intent{})
	assert.Zero(t, b.Dropped(), "removed subscriber must not count as a drop target")
}

func TestClose(t *testing.T) {
	t.Parallel()
	b := bus.New()
	sub := b.Subscribe(4)
	b.Publish(hand.Intent{HandID: 3})
	b.Close()

	// Buffered record is still readable, then the channel reports closed.
	got, open := <-sub.C
	require.True(t, open)
	assert.Equal(t, 3, got.HandID)
	_, open = <-sub.C
	assert.False(t, open)

	// Everything after Close is a no-op.
	b.Publish(hand.Intent{})
	b.Close()

	late := b.Subscribe(4)
	_, open = <-late.C
	assert.False(t, open, "subscription after Close yields a closed channel")
}

func TestConcurrentPublishSubscribe(t *testing.T) {
	t.Parallel()
	b := bus.New()
	defer b.Close()

	var readers, writers sync.WaitGroup
	for i := 0; i < 8; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			sub := b.Subscribe(16)
			for range sub.C {
			}
		}()
		writers.Add(1)
		go func() {
			defer writers.Done()
			for j := 0; j < 100; j++ {
				b.Publish(hand.Intent{HandID: j})
			}
		}()
	}

	writers.Wait()
	b.Close()
	readers.Wait()
}
