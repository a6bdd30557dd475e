// Package events implements the typed event bus described in spec.md
// section 4.2: fan-out from any number of ircconn.Connections to any
// number of subscribers, with stable subscription-order dispatch and a
// bounded, drop-oldest queue per subscriber so one slow subscriber can
// never stall another (spec.md section 5).
//
// It is grounded on the teacher's dispatch.Dispatcher registration-table
// shape (dispatch/dispatcher.go: register returns an opaque id, handlers
// keyed by id, explicit Unregister) generalized from the teacher's
// per-message-kind handler interfaces to ircconn.Event's single envelope
// type.
package events

import (
	"sync"

	"github.com/inconshreveable/log15"

	"github.com/munin-agent/munin/ircconn"
)

// DefaultQueueSize is the bounded channel depth given to a subscriber
// that does not request a specific size.
const DefaultQueueSize = 64

// Handle identifies a subscription returned by Subscribe; pass it to
// Unsubscribe to remove it. The zero Handle is never issued.
type Handle uint64

// subscriber holds one registered listener's queue and filter.
type subscriber struct {
	handle Handle
	ch     chan ircconn.Event
	filter func(ircconn.Event) bool
}

// Bus fans events in from any number of sources (normally one per
// ircconn.Connection) out to any number of subscribers. Dispatch to
// subscribers for a single event follows subscription order (spec.md
// section 5).
type Bus struct {
	log log15.Logger

	mu      sync.RWMutex
	subs    []*subscriber
	nextID  uint64
	closing chan struct{}
	once    sync.Once
}

// New constructs a Bus. log may be nil, in which case a root logger
// named "events" is used.
func New(log log15.Logger) *Bus {
	if log == nil {
		log = log15.New("pkg", "events")
	}
	return &Bus{log: log, closing: make(chan struct{})}
}

// Subscribe registers a new listener with the default queue size and no
// filter; every published event is offered to it.
func (b *Bus) Subscribe() (Handle, <-chan ircconn.Event) {
	return b.SubscribeFiltered(DefaultQueueSize, nil)
}

// SubscribeFiltered registers a listener with a custom queue depth and
// an optional filter predicate; events for which filter returns false
// are never enqueued (and so never count against the drop-oldest
// policy). A nil filter accepts everything.
func (b *Bus) SubscribeFiltered(queueSize int, filter func(ircconn.Event) bool) (Handle, <-chan ircconn.Event) {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s := &subscriber{
		handle: Handle(b.nextID),
		ch:     make(chan ircconn.Event, queueSize),
		filter: filter,
	}
	b.subs = append(b.subs, s)
	return s.handle, s.ch
}

// Unsubscribe removes a listener and closes its channel. Returns false if
// the handle was not found (already unsubscribed).
func (b *Bus) Unsubscribe(h Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.handle == h {
			close(s.ch)
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Publish offers ev to every subscriber in subscription order. A full
// subscriber queue is drained of its oldest entry to make room -- the
// policy spec.md section 5 names as "drop-oldest with warning" -- rather
// than blocking the publisher or dropping the new event.
func (b *Bus) Publish(ev ircconn.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.filter != nil && !s.filter(ev) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			select {
			case <-s.ch:
				b.log.Warn("dropping oldest event, subscriber queue full", "kind", ev.Kind, "handle", s.handle)
			default:
			}
			select {
			case s.ch <- ev:
			default:
			}
		}
	}
}

// Pump reads from src until it closes or the bus is closed, publishing
// every event it sees. Call one Pump per ircconn.Connection's Events()
// channel; it returns when the source is exhausted.
func (b *Bus) Pump(src <-chan ircconn.Event) {
	for {
		select {
		case ev, ok := <-src:
			if !ok {
				return
			}
			b.Publish(ev)
		case <-b.closing:
			return
		}
	}
}

// Close stops all Pump goroutines and closes every subscriber channel.
// Idempotent.
func (b *Bus) Close() {
	b.once.Do(func() {
		close(b.closing)
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, s := range b.subs {
			close(s.ch)
		}
		b.subs = nil
	})
}

// SubscriberCount reports the number of currently registered listeners.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
