package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishReachesAllSubscribers(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ch1, cancel1 := hub.Subscribe()
	defer cancel1()
	ch2, cancel2 := hub.Subscribe()
	defer cancel2()

	hub.Publish(Record{ID: "r1", Method: "Page.frameNavigated"})

	for _, ch := range []<-chan Record{ch1, ch2} {
		select {
		case rec := <-ch:
			assert.Equal(t, "r1", rec.ID)
		case <-time.After(time.Second):
			t.Fatal("subscriber missed the published record")
		}
	}
}

func TestHub_CancelStopsDelivery(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ch, cancel := hub.Subscribe()
	cancel()
	// Idempotent.
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// Publishing after cancel must not panic.
	hub.Publish(Record{ID: "r2"})
}

func TestHub_SlowSubscriberNeverBlocksPublish(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ch, cancel := hub.Subscribe()
	defer cancel()

	// Overfill the subscriber buffer; Publish must drop, not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			hub.Publish(Record{ID: "r"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// The buffered prefix is still deliverable.
	select {
	case rec := <-ch:
		require.Equal(t, "r", rec.ID)
	default:
		t.Fatal("expected at least one buffered record")
	}
}

func TestHub_CloseEndsSubscriptions(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Close()

	_, open := <-ch
	assert.False(t, open)

	// Subscribing after close yields a closed channel.
	late, lateCancel := hub.Subscribe()
	defer lateCancel()
	_, open = <-late
	assert.False(t, open)
}
