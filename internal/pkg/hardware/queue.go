package hardware

import (
	"sync"
	"sync/atomic"
)

// DefaultQueueCapacity is the number of pending writes a device holds.
const DefaultQueueCapacity = 10

// QueueEntry is one pending write for a device.
type QueueEntry struct {
	HardwareAddress int
	Payload         []byte
}

// Queue is a bounded FIFO of pending writes. When full, Push evicts the
// oldest entry; producers never block.
type Queue struct {
	mu       sync.Mutex
	items    []QueueEntry
	capacity int
	head     int // next read position
	size     int

	onDrop func(QueueEntry)

	pushed  atomic.Int64
	dropped atomic.Int64
}

// NewQueue creates a queue holding at most capacity entries. onDrop, if not
// nil, is called outside the lock for every evicted entry.
func NewQueue(capacity int, onDrop func(QueueEntry)) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{
		items:    make([]QueueEntry, capacity),
		capacity: capacity,
		onDrop:   onDrop,
	}
}

// Push appends entry at the tail, evicting the head if the queue is full.
func (q *Queue) Push(entry QueueEntry) {
	q.mu.Lock()
	var evicted *QueueEntry
	if q.size == q.capacity {
		old := q.items[q.head]
		evicted = &old
		q.items[q.head] = QueueEntry{}
		q.head = (q.head + 1) % q.capacity
		q.size--
	}
	q.items[(q.head+q.size)%q.capacity] = entry
	q.size++
	q.mu.Unlock()

	q.pushed.Add(1)
	if evicted != nil {
		q.dropped.Add(1)
		if q.onDrop != nil {
			q.onDrop(*evicted)
		}
	}
}

// Pop removes and returns the head entry.
func (q *Queue) Pop() (QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return QueueEntry{}, false
	}
	entry := q.items[q.head]
	q.items[q.head] = QueueEntry{}
	q.head = (q.head + 1) % q.capacity
	q.size--
	return entry, true
}

// PushFront returns an entry to the head after a failed flush. If producers
// filled the queue in the meantime the entry is the oldest one and is
// dropped instead; the return value reports whether it was kept.
func (q *Queue) PushFront(entry QueueEntry) bool {
	q.mu.Lock()
	if q.size == q.capacity {
		q.mu.Unlock()
		q.dropped.Add(1)
		if q.onDrop != nil {
			q.onDrop(entry)
		}
		return false
	}
	q.head = (q.head - 1 + q.capacity) % q.capacity
	q.items[q.head] = entry
	q.size++
	q.mu.Unlock()
	return true
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return q.capacity }

// QueueStats is a point-in-time view of queue counters.
type QueueStats struct {
	Depth   int
	Pushed  int64
	Dropped int64
}

// Stats returns the queue counters.
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Depth:   q.Len(),
		Pushed:  q.pushed.Load(),
		Dropped: q.dropped.Load(),
	}
}
