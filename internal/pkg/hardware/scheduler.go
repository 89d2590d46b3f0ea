package hardware

import (
	"context"
	"errors"
	"time"

	"sim-gateway-go/internal/pkg/logger"
)

// DefaultFlushInterval is the period between queue drains.
const DefaultFlushInterval = 100 * time.Millisecond

// Scheduler drains one device's queue on a fixed period. Each device gets its
// own scheduler so a stalled channel only delays its own writes.
type Scheduler struct {
	device   *Device
	interval time.Duration
	lc       logger.LoggingClient
}

// NewScheduler creates a scheduler for device.
func NewScheduler(device *Device, interval time.Duration, lc logger.LoggingClient) *Scheduler {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Scheduler{device: device, interval: interval, lc: lc}
}

// Run flushes the device every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.lc.Debug("Device scheduler started", "device", s.device.Name(), "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick()
	for {
		select {
		case <-ctx.Done():
			s.lc.Debug("Device scheduler stopped", "device", s.device.Name())
			return nil
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	n, err := s.device.Flush()
	if err != nil {
		if errors.Is(err, ErrDeviceClosed) {
			return
		}
		s.lc.Error("Failed to send data to device", "device", s.device.Name(), "sn", s.device.Serial(), "err", err)
		return
	}
	if n > 0 {
		s.lc.Trace("Device flushed", "device", s.device.Name(), "frames", n)
	}
}
