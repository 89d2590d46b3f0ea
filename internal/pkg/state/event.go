package state

import (
	"sync"
	"time"
)

// Event records one value transition. It is never mutated after creation.
type Event struct {
	Control    Control
	Value      any
	OldValue   any
	Payload    []byte // wire form of Value
	OldPayload []byte
	Time       time.Time
}

// Queue is an unbounded multi-producer event queue drained by one consumer.
type Queue struct {
	mu     sync.Mutex
	events []Event
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Emit appends ev. It never blocks.
func (q *Queue) Emit(ev Event) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()
}

// Drain removes and returns every queued event in FIFO order.
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return nil
	}
	out := q.events
	q.events = nil
	return out
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
