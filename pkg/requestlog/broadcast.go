package requestlog

import (
	"sync"
	"sync/atomic"
)

// SubscriberBuffer is the channel capacity given to each subscriber.
const SubscriberBuffer = 100

// Broadcaster fans entries out to subscribers. Publishing never blocks:
// a subscriber whose buffer is full misses the entry.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[chan *Entry]struct{}
	dropped atomic.Int64
}

// NewBroadcaster creates a broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan *Entry]struct{})}
}

// Publish delivers entry to every subscriber that has room.
func (b *Broadcaster) Publish(entry *Entry) {
	if entry == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- entry:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe returns a channel of new entries and a function that
// unsubscribes and closes the channel. The function is safe to call twice.
func (b *Broadcaster) Subscribe() (<-chan *Entry, func()) {
	ch := make(chan *Entry, SubscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of active subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber
// was full.
func (b *Broadcaster) Dropped() int64 { return b.dropped.Load() }
