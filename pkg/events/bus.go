package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventBus provides publish/subscribe for pipeline and store events.
type EventBus interface {
	Publish(event Event)
	Subscribe(filter ...EventType) <-chan Event
	Unsubscribe(ch <-chan Event)
	History(since time.Time) []Event
}

// DefaultHistoryLimit bounds the history of a bus created with limit <= 0.
const DefaultHistoryLimit = 10000

// subscriberBuffer is the channel capacity handed to each subscriber.
const subscriberBuffer = 64

type subscription struct {
	ch    chan Event
	types map[EventType]struct{} // nil receives everything
}

func (s *subscription) wants(t EventType) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// MemoryBus keeps the most recent events in a fixed-size ring and fans each
// one out to subscribers. A subscriber that falls behind loses events
// instead of stalling the publisher; Dropped counts them.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[<-chan Event]*subscription

	ring  []Event
	next  int // ring slot for the next event
	count int
	seq   uint64 // last assigned Event.Seq

	dropped atomic.Int64
}

// NewMemoryBus creates a bus retaining at most limit events.
func NewMemoryBus(limit int) *MemoryBus {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &MemoryBus{
		subs: make(map[<-chan Event]*subscription),
		ring: make([]Event, limit),
	}
}

// Publish records event and delivers it to every matching subscriber.
func (b *MemoryBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.Lock()
	b.seq++
	event.Seq = b.seq
	b.ring[b.next] = event
	b.next = (b.next + 1) % len(b.ring)
	if b.count < len(b.ring) {
		b.count++
	}
	// Delivery happens under the lock so Unsubscribe cannot close a channel
	// mid-send. Sends never block.
	for _, sub := range b.subs {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
	b.mu.Unlock()
}

// Subscribe returns a channel receiving future events of the given types,
// or of every type when none are given.
func (b *MemoryBus) Subscribe(filter ...EventType) <-chan Event {
	sub := &subscription{ch: make(chan Event, subscriberBuffer)}
	if len(filter) > 0 {
		sub.types = make(map[EventType]struct{}, len(filter))
		for _, t := range filter {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	b.subs[sub.ch] = sub
	b.mu.Unlock()
	return sub.ch
}

// Unsubscribe stops delivery to ch and closes it. Unknown channels are
// ignored.
func (b *MemoryBus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(sub.ch)
	}
}

// History returns retained events at or after since, oldest first.
func (b *MemoryBus) History(since time.Time) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []Event
	start := (b.next - b.count + len(b.ring)) % len(b.ring)
	for i := 0; i < b.count; i++ {
		e := b.ring[(start+i)%len(b.ring)]
		if !e.Timestamp.Before(since) {
			result = append(result, e)
		}
	}
	return result
}

// Dropped reports how many deliveries were skipped because a subscriber's
// buffer was full.
func (b *MemoryBus) Dropped() int64 {
	return b.dropped.Load()
}

// PublishContextEvent adapts the bus to the context store's publisher.
func (b *MemoryBus) PublishContextEvent(eventType, contextID string, version int) {
	b.Publish(NewEvent(EventType(eventType), ContextData{ContextID: contextID, Version: version}))
}

// PublishExportEvent adapts the bus to the exporter's publisher.
func (b *MemoryBus) PublishExportEvent(format string, testCases int, path string) {
	b.Publish(NewEvent(EventExportWritten, ExportData{Format: format, TestCases: testCases, Path: path}))
}
