package hardware

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"sim-gateway-go/internal/pkg/framing"
	"sim-gateway-go/internal/pkg/logger"
)

var (
	// ErrDeviceNotFound is returned when a configured device is not attached.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrDeviceClosed is returned by operations on a closed device.
	ErrDeviceClosed = errors.New("device closed")
)

// Observer receives per-device write accounting.
type Observer interface {
	FrameWritten(device string)
	FrameDropped(device string)
	WriteFailed(device string)
}

type nopObserver struct{}

func (nopObserver) FrameWritten(string) {}
func (nopObserver) FrameDropped(string) {}
func (nopObserver) WriteFailed(string)  {}

// DeviceInfo is the static identity of a device.
type DeviceInfo struct {
	Name        string
	Serial      string
	Description string
}

// Device owns one serial channel, its components and a private write queue.
// Only the device's scheduler writes to the channel.
type Device struct {
	info       DeviceInfo
	portCfg    PortConfig
	opener     Opener
	components []Component
	bySoftware map[int]Component
	queue      *Queue
	observer   Observer
	lc         logger.LoggingClient

	mu     sync.Mutex // guards port
	port   Port
	closed atomic.Bool

	written     atomic.Int64
	writeErrors atomic.Int64
}

// DeviceOption configures a Device.
type DeviceOption func(*Device)

// WithQueueCapacity overrides DefaultQueueCapacity.
func WithQueueCapacity(n int) DeviceOption {
	return func(d *Device) {
		d.queue = NewQueue(n, d.onDrop)
	}
}

// WithObserver attaches write accounting.
func WithObserver(o Observer) DeviceOption {
	return func(d *Device) {
		if o != nil {
			d.observer = o
		}
	}
}

// NewDevice creates a closed device. Components must have unique hardware
// addresses within the device.
func NewDevice(info DeviceInfo, portCfg PortConfig, opener Opener, components []Component, lc logger.LoggingClient, opts ...DeviceOption) (*Device, error) {
	d := &Device{
		info:       info,
		portCfg:    portCfg,
		opener:     opener,
		components: append([]Component(nil), components...),
		bySoftware: make(map[int]Component, len(components)),
		observer:   nopObserver{},
		lc:         lc,
	}
	d.queue = NewQueue(DefaultQueueCapacity, d.onDrop)
	for _, opt := range opts {
		opt(d)
	}

	hw := make(map[int]string, len(components))
	for _, c := range components {
		if other, dup := hw[c.HardwareAddress]; dup {
			return nil, fmt.Errorf("device %s: hardware address %d used by %s and %s", info.Name, c.HardwareAddress, other, c.Name)
		}
		hw[c.HardwareAddress] = c.Name
		d.bySoftware[c.SoftwareAddress] = c
	}
	return d, nil
}

func (d *Device) onDrop(e QueueEntry) {
	d.observer.FrameDropped(d.info.Name)
	d.lc.Info("Device message queue full, removing head", "device", d.info.Name, "sn", d.info.Serial, "hw", e.HardwareAddress)
}

func (d *Device) Name() string            { return d.info.Name }
func (d *Device) Serial() string          { return d.info.Serial }
func (d *Device) Description() string     { return d.info.Description }
func (d *Device) PortName() string        { return d.portCfg.Name }
func (d *Device) Components() []Component { return append([]Component(nil), d.components...) }

// ComponentBySoftwareAddress returns the component bound to a control.
func (d *Device) ComponentBySoftwareAddress(addr int) (Component, bool) {
	c, ok := d.bySoftware[addr]
	return c, ok
}

// Write queues payload for the component at hardwareAddress. It never blocks;
// a full queue drops its oldest entry.
func (d *Device) Write(hardwareAddress int, payload []byte) {
	if d.closed.Load() {
		return
	}
	d.queue.Push(QueueEntry{HardwareAddress: hardwareAddress, Payload: payload})
}

// Pending returns the number of queued writes.
func (d *Device) Pending() int { return d.queue.Len() }

// Open opens the serial channel if it is not already open.
func (d *Device) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openLocked()
}

func (d *Device) openLocked() error {
	if d.closed.Load() {
		return ErrDeviceClosed
	}
	if d.port != nil {
		return nil
	}
	p, err := d.opener.Open(d.portCfg)
	if err != nil {
		return err
	}
	d.port = p
	d.lc.Info("Device channel opened", "device", d.info.Name, "port", d.portCfg.Name)
	return nil
}

// IsOpen reports whether the channel is open.
func (d *Device) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.port != nil
}

// Flush drains the queue to the channel in FIFO order, reopening it if needed.
// On a write error the failed entry goes back to the head, the channel is
// closed so the next flush reopens it, and the rest stays queued.
func (d *Device) Flush() (int, error) {
	if d.closed.Load() {
		return 0, ErrDeviceClosed
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for {
		entry, ok := d.queue.Pop()
		if !ok {
			return n, nil
		}

		if err := d.openLocked(); err != nil {
			d.queue.PushFront(entry)
			d.writeErrors.Add(1)
			d.observer.WriteFailed(d.info.Name)
			return n, fmt.Errorf("device %s: %w", d.info.Name, err)
		}

		if _, err := d.port.Write(framing.Encode(entry.HardwareAddress, entry.Payload)); err != nil {
			d.queue.PushFront(entry)
			_ = d.port.Close()
			d.port = nil
			d.writeErrors.Add(1)
			d.observer.WriteFailed(d.info.Name)
			return n, fmt.Errorf("device %s: write failed: %w", d.info.Name, err)
		}
		n++
		d.written.Add(1)
		d.observer.FrameWritten(d.info.Name)
	}
}

// Close closes the channel. Only the first call has an effect.
func (d *Device) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.port == nil {
		return nil
	}
	err := d.port.Close()
	d.port = nil
	d.lc.Info("Device channel closed", "device", d.info.Name)
	return err
}

// DeviceStats is a point-in-time view of device counters.
type DeviceStats struct {
	Queue       QueueStats
	Written     int64
	WriteErrors int64
	Open        bool
}

// Stats returns the device counters.
func (d *Device) Stats() DeviceStats {
	return DeviceStats{
		Queue:       d.queue.Stats(),
		Written:     d.written.Load(),
		WriteErrors: d.writeErrors.Load(),
		Open:        d.IsOpen(),
	}
}
