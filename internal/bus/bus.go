// Package bus provides an in-process publish/subscribe event bus with
// dot-namespace prefix filtering.
package bus

import (
	"strings"
	"sync"
)

type subscriber struct {
	id     int
	prefix string
	ch     chan Event
}

// Bus fans events out to subscribers. Delivery is best-effort: a
// subscriber whose buffer is full misses the event rather than blocking
// the publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscriber
	nextID int
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Publish delivers evt to every subscriber whose prefix matches evt.Kind.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if strings.HasPrefix(evt.Kind, s.prefix) {
			select {
			case s.ch <- evt:
			default:
			}
		}
	}
}

// Subscribe registers interest in event kinds beginning with prefix.
// bufSize controls the channel buffer. The returned func unsubscribes;
// the channel is not closed, so pending events can still be drained.
func (b *Bus) Subscribe(prefix string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscriber{id: id, prefix: prefix, ch: ch})
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}
