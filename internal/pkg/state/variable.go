package state

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

// Sink receives change events. Emit must be safe for concurrent use.
type Sink interface {
	Emit(ev Event)
}

// Variable holds the last observed value of one control. Set and Get are safe
// for concurrent use without external locking.
type Variable[T comparable] struct {
	control Control
	cell    atomic.Pointer[T]
	format  func(T) T
	encode  func(T) []byte
	equal   func(a, b T) bool
	sink    Sink
}

// Option configures a Variable.
type Option[T comparable] func(*Variable[T])

// WithFormat applies f to every value before comparison and storage.
func WithFormat[T comparable](f func(T) T) Option[T] {
	return func(v *Variable[T]) {
		if f != nil {
			v.format = f
		}
	}
}

// WithEncoder sets the wire serialization of the value.
func WithEncoder[T comparable](f func(T) []byte) Option[T] {
	return func(v *Variable[T]) {
		if f != nil {
			v.encode = f
		}
	}
}

// WithEqual replaces == as the change test.
func WithEqual[T comparable](f func(a, b T) bool) Option[T] {
	return func(v *Variable[T]) {
		if f != nil {
			v.equal = f
		}
	}
}

// NewVariable creates a variable holding initial. The initial value is stored
// as given and never produces an event.
func NewVariable[T comparable](control Control, initial T, sink Sink, opts ...Option[T]) *Variable[T] {
	v := &Variable[T]{
		control: control,
		format:  func(x T) T { return x },
		encode:  func(x T) []byte { return []byte(fmt.Sprint(x)) },
		equal:   func(a, b T) bool { return a == b },
		sink:    sink,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.cell.Store(&initial)
	return v
}

// NewFloat creates a float variable rounded to scale decimal places.
func NewFloat(control Control, scale int, sink Sink) *Variable[float64] {
	return NewVariable[float64](control, 0, sink,
		WithFormat(Round(scale)),
		WithEncoder(EncodeFloat),
		WithEqual(SameFloat),
	)
}

// SameFloat is == except that NaN equals NaN, so a reading stuck at NaN is
// not reported as a change on every update.
func SameFloat(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

// NewBool creates a boolean variable serialized as "1"/"0".
func NewBool(control Control, sink Sink) *Variable[bool] {
	return NewVariable[bool](control, false, sink, WithEncoder(EncodeBool))
}

// NewString creates a string variable.
func NewString(control Control, sink Sink) *Variable[string] {
	return NewVariable[string](control, "", sink, WithEncoder(EncodeString))
}

// Control returns the control this variable tracks.
func (v *Variable[T]) Control() Control { return v.control }

// Get returns the stored value.
func (v *Variable[T]) Get() T { return *v.cell.Load() }

// Set formats value and stores it. If the formatted value differs from the
// stored one an event is emitted, and Set reports true. Each concurrent
// caller sees the value it replaced, so no transition is lost or merged.
func (v *Variable[T]) Set(value T) bool {
	formatted := v.format(value)
	old := *v.cell.Swap(&formatted)
	if v.equal(old, formatted) {
		return false
	}
	if v.sink != nil {
		v.sink.Emit(Event{
			Control:    v.control,
			Value:      formatted,
			OldValue:   old,
			Payload:    v.encode(formatted),
			OldPayload: v.encode(old),
			Time:       time.Now(),
		})
	}
	return true
}
