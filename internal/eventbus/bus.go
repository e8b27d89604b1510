package eventbus

import (
	"sync"
	"time"
)

// Run lifecycle event types published by the executor.
const (
	TypeRunStarted  = "run.started"
	TypeRunFinished = "run.finished"
	TypeRunFailed   = "run.failed"
	TypeRunDropped  = "run.dropped"
)

// RunEvent is the payload for run.* events.
type RunEvent struct {
	Seq      uint64        `json:"seq"`
	Label    string        `json:"label"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Event is a lightweight, in-memory signal used to decouple components.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Slow subscribers drop events (bounded backpressure).
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns a simple in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu    sync.Mutex
	seq   uint64
	subs  map[uint64]chan Event
	drops uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Sends are non-blocking, so holding the lock keeps Unsubscribe from
	// closing a channel mid-send without any recover tricks.
	b.mu.Lock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.drops++
		}
	}
	b.mu.Unlock()
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.seq++
	id := b.seq
	b.subs[id] = ch
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, unsubscribe
}

// Dropped reports events discarded due to full subscriber buffers.
func (b *memBus) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drops
}
