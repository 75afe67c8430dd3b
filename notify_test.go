package unii

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHubDeliversInOrder(t *testing.T) {
	h := newHub()
	ch, cancel := h.subscribe()
	defer cancel()

	for i := 0; i < 5; i++ {
		h.publish(AlarmEvent{SectionID: uint16(i)})
	}
	for i := 0; i < 5; i++ {
		ev := <-ch
		require.Equal(t, uint16(i), ev.(AlarmEvent).SectionID)
	}
}

func TestDropOldestKeepsNewest(t *testing.T) {
	h := newHub()
	ch, cancel := h.subscribe(WithQueueSize(2))
	defer cancel()

	for i := 0; i < 5; i++ {
		h.publish(AlarmEvent{SectionID: uint16(i)})
	}

	// The two newest survive, the rest were evicted.
	first := <-ch
	second := <-ch
	require.Equal(t, uint16(3), first.(AlarmEvent).SectionID)
	require.Equal(t, uint16(4), second.(AlarmEvent).SectionID)
	require.Empty(t, ch)
}

func TestBlockWithTimeoutDropsNewest(t *testing.T) {
	h := newHub()
	ch, cancel := h.subscribe(
		WithQueueSize(1),
		WithOverflowPolicy(BlockWithTimeout),
		WithBlockTimeout(50*time.Millisecond),
	)
	defer cancel()

	start := time.Now()
	h.publish(AlarmEvent{SectionID: 1})
	h.publish(AlarmEvent{SectionID: 2})
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	ev := <-ch
	require.Equal(t, uint16(1), ev.(AlarmEvent).SectionID)
	require.Empty(t, ch)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := newHub()
	ch, cancel := h.subscribe()
	cancel()
	cancel()

	_, ok := <-ch
	require.False(t, ok)

	// Publishing after unsubscribe must not panic or block.
	h.publish(AlarmEvent{SectionID: 1})
}

func TestHubCloseClosesAllSubscribers(t *testing.T) {
	h := newHub()
	a, cancelA := h.subscribe()
	b, _ := h.subscribe()
	defer cancelA()

	h.close()
	_, okA := <-a
	_, okB := <-b
	require.False(t, okA)
	require.False(t, okB)

	// A late subscribe on a closed hub yields a closed channel.
	c, cancelC := h.subscribe()
	defer cancelC()
	_, okC := <-c
	require.False(t, okC)
}
