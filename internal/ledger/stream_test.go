package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_SyncHandlersRunInOrder(t *testing.T) {
	b := newBroadcaster()

	var order []string
	b.onChange("first", func(Change) { order = append(order, "first") })
	b.onChange("second", func(Change) { order = append(order, "second") })

	b.publish(Change{Seq: 1})
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestBroadcaster_Conflation(t *testing.T) {
	b := newBroadcaster()
	ch, cancel := b.subscribe()
	defer cancel()

	// nobody reading: later publishes replace the pending one
	b.publish(Change{Seq: 1})
	b.publish(Change{Seq: 2})
	b.publish(Change{Seq: 3})

	c := <-ch
	assert.Equal(t, uint64(3), c.Seq)
	select {
	case c := <-ch:
		t.Fatalf("unexpected extra change %d", c.Seq)
	default:
	}
}

func TestBroadcaster_CancelStopsDelivery(t *testing.T) {
	b := newBroadcaster()
	ch, cancel := b.subscribe()

	cancel()
	b.publish(Change{Seq: 1})

	_, open := <-ch
	assert.False(t, open)
}

func TestBroadcaster_Close(t *testing.T) {
	b := newBroadcaster()
	ch, _ := b.subscribe()

	b.close()
	_, open := <-ch
	require.False(t, open)

	// closed broadcaster drops publishes and hands out closed channels
	b.publish(Change{Seq: 9})
	late, _ := b.subscribe()
	_, open = <-late
	assert.False(t, open)
}

func TestBroadcaster_NotifyHandlersSkipsSubscribers(t *testing.T) {
	b := newBroadcaster()

	var seen []string
	b.onChange("observer", func(c Change) { seen = c.Folders })
	ch, cancel := b.subscribe()
	defer cancel()

	b.notifyHandlers(Change{Seq: 1, Folders: []string{"travel"}})

	assert.Equal(t, []string{"travel"}, seen)
	select {
	case c := <-ch:
		t.Fatalf("unexpected channel delivery %d", c.Seq)
	default:
	}
}
