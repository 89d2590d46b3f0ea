package workerpool

import "errors"

var (
	// ErrQueueFull is returned by Submit when the work queue has no room.
	ErrQueueFull = errors.New("worker pool queue is full")
	// ErrPoolStopped is returned when submitting to a stopped pool.
	ErrPoolStopped = errors.New("worker pool is stopped")
	// ErrPoolNotStarted is returned when submitting before Start.
	ErrPoolNotStarted = errors.New("worker pool is not started")
	// ErrPoolAlreadyStarted is returned by a second Start.
	ErrPoolAlreadyStarted = errors.New("worker pool is already started")
	// ErrStopTimeout is returned when workers do not finish within the stop timeout.
	ErrStopTimeout = errors.New("worker pool stop timed out")
	// ErrNilProcessor is the panic value for a pool created without a processor.
	ErrNilProcessor = errors.New("worker pool processor must not be nil")
)
