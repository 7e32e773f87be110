// Package sse implements the SSE Broker (spec §4.9): a fan-out of named,
// JSON-serialized events to per-client subscribers, modeled on the
// bounded-channel broadcast bus pattern (see DESIGN.md). Unlike that
// pattern's silent drop, this broker tracks drops per subscriber and
// injects a "lag" marker event so clients can tell they missed something,
// and disconnects subscribers whose backlog never drains.
package sse

import (
	"sync"
	"time"
)

// defaultBuffer is the default per-subscriber channel capacity (spec §4.9).
const defaultBuffer = 256

// maxConsecutiveDrops is how many publishes in a row may be dropped for a
// subscriber before the broker gives up on it and closes its channel.
const maxConsecutiveDrops = 1000

// Event is a named, JSON-serializable payload sent down the wire as an SSE
// frame ("event: <Name>\ndata: <json>\n\n" — see internal/api/stream.go).
type Event struct {
	Name    string
	Payload interface{}
}

type subscriber struct {
	ch              chan Event
	consecutiveDrops int
}

// Broker fans out Published events to every active subscriber.
type Broker struct {
	mu       sync.Mutex
	subs     map[int]*subscriber
	nextID   int
	bufSize  int
}

// New returns an empty Broker with the default per-subscriber buffer size.
func New() *Broker {
	return NewWithBuffer(defaultBuffer)
}

// NewWithBuffer returns an empty Broker with a custom per-subscriber buffer
// size, mainly for tests exercising backpressure without sending thousands
// of events.
func NewWithBuffer(bufSize int) *Broker {
	return &Broker{subs: make(map[int]*subscriber), bufSize: bufSize}
}

// Subscribe registers a new subscriber and returns its receive channel and
// an id to later pass to Unsubscribe.
func (b *Broker) Subscribe() (<-chan Event, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan Event, b.bufSize)}
	b.subs[id] = sub
	return sub.ch, id
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call
// more than once for the same id.
func (b *Broker) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.ch)
}

// Publish sends event to every subscriber. A full subscriber channel has
// its oldest queued event dropped to make room (drop-oldest, not
// drop-newest, so subscribers stay current rather than stuck replaying
// stale state); if a "lag" marker can't even be enqueued after that, the
// subscriber's drop counter increments, and a subscriber that drops
// maxConsecutiveDrops events in a row is disconnected.
func (b *Broker) Publish(name string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ev := Event{Name: name, Payload: payload}
	for id, sub := range b.subs {
		if b.trySend(sub, ev) {
			sub.consecutiveDrops = 0
			continue
		}
		// Drop the oldest queued event and retry once.
		select {
		case <-sub.ch:
		default:
		}
		if b.trySend(sub, ev) {
			sub.consecutiveDrops = 0
			b.trySend(sub, Event{Name: "lag", Payload: nil})
			continue
		}
		sub.consecutiveDrops++
		if sub.consecutiveDrops >= maxConsecutiveDrops {
			delete(b.subs, id)
			close(sub.ch)
		}
	}
}

func (b *Broker) trySend(sub *subscriber, ev Event) bool {
	select {
	case sub.ch <- ev:
		return true
	default:
		return false
	}
}

// SubscriberCount reports the number of currently connected subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// HeartbeatInterval is how often internal/api's stream handler sends a
// keep-alive comment frame to hold connections open through proxies
// (spec §4.9).
const HeartbeatInterval = 5 * time.Second
