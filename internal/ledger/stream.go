package ledger

import (
	"sync"

	"github.com/garyjia/expense-ledger/internal/models"
)

// Change describes one durable mutation of the record set. Records is the
// full post-write snapshot; Folders lists the folder names the mutation
// touched, which cache consumers use for targeted invalidation.
type Change struct {
	Seq     uint64
	Folders []string
	Records []*models.ExpenseRecord
}

// handlerInfo is a named synchronous observer.
type handlerInfo struct {
	name string
	fn   func(Change)
}

// broadcaster fans a Change out to synchronous handlers and channel
// subscribers. Handlers run inline in registration order before the mutation
// returns; channel subscribers get latest-wins delivery (a slow consumer
// skips intermediate snapshots, never the final one).
type broadcaster struct {
	mu       sync.RWMutex
	handlers []handlerInfo
	subs     map[int]chan Change
	nextID   int
	closed   bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{
		subs: make(map[int]chan Change),
	}
}

// onChange registers a synchronous handler under a name for debugging.
func (b *broadcaster) onChange(name string, fn func(Change)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handlerInfo{name: name, fn: fn})
}

// subscribe returns a channel of changes and a cancel function. The channel
// holds at most one pending change.
func (b *broadcaster) subscribe() (<-chan Change, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Change, 1)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// notifyHandlers runs only the synchronous handlers. Used when the snapshot
// backing a full publish could not be read: cache invalidation still has to
// happen for a write that is already durable.
func (b *broadcaster) notifyHandlers(c Change) {
	b.mu.RLock()
	handlers := b.handlers
	closed := b.closed
	b.mu.RUnlock()

	if closed {
		return
	}
	for _, h := range handlers {
		h.fn(c)
	}
}

// publish delivers a change. Called only after the underlying write is
// durable.
func (b *broadcaster) publish(c Change) {
	b.notifyHandlers(c)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- c:
		default:
			// Conflate: replace the undelivered change with the newer one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- c:
			default:
			}
		}
	}
}

// close shuts down all subscriber channels.
func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
