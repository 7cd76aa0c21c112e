// Package events provides the in-process pub/sub bridge between the
// scheduler and outward-facing consumers (API, persistence).
package events

import (
	"sync"
)

// Topic enumerates the broadcast channels inside the runner.
type Topic string

const (
	// TopicTickSummary carries a scheduler.TickSummary after every tick.
	TopicTickSummary Topic = "tick_summary"
	// TopicRunCompleted fires once when a run finishes cleanly.
	TopicRunCompleted Topic = "run_completed"
	// TopicRunAborted fires when a run dies on an invariant violation.
	TopicRunAborted Topic = "run_aborted"
)

// Bus is a lightweight broker using buffered channels. Slow subscribers drop
// messages rather than stalling the scheduler.
type Bus struct {
	mu   sync.RWMutex
	subs map[Topic][]chan any
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]chan any)}
}

// Subscribe registers a listener and returns the channel plus an
// unsubscribe function that closes it.
func (b *Bus) Subscribe(t Topic, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan any, buffer)
	b.subs[t] = append(b.subs[t], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[t]
		for i, c := range subs {
			if c == ch {
				close(c)
				b.subs[t] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	return ch, unsub
}

// Publish fans the payload out without blocking the publisher.
func (b *Bus) Publish(t Topic, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[t] {
		select {
		case ch <- payload:
		default:
			// subscriber is behind; drop
		}
	}
}
