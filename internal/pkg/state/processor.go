package state

import (
	"context"
	"fmt"
	"time"

	"sim-gateway-go/internal/pkg/logger"
)

// DefaultInterval is the period between queue drains.
const DefaultInterval = 100 * time.Millisecond

// Handler consumes one event.
type Handler func(ev Event)

// Processor drains the event queue on a fixed period and hands every event to
// each handler, in registration order.
type Processor struct {
	queue    *Queue
	handlers []Handler
	interval time.Duration
	lc       logger.LoggingClient

	processed int64
}

// NewProcessor creates a processor over queue.
func NewProcessor(queue *Queue, interval time.Duration, lc logger.LoggingClient, handlers ...Handler) *Processor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Processor{
		queue:    queue,
		handlers: handlers,
		interval: interval,
		lc:       lc,
	}
}

// Run drains the queue every interval until ctx is done. Events still queued
// at cancellation are left in the queue.
func (p *Processor) Run(ctx context.Context) error {
	p.lc.Debug("State change processor started", "interval", p.interval, "handlers", len(p.handlers))
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.lc.Debug("State change processor stopped", "processed", p.processed)
			return nil
		case <-ticker.C:
			p.Tick()
		}
	}
}

// Tick drains the queue once and returns the number of events handled.
func (p *Processor) Tick() int {
	events := p.queue.Drain()
	for _, ev := range events {
		for i, h := range p.handlers {
			p.call(i, h, ev)
		}
	}
	p.processed += int64(len(events))
	return len(events)
}

func (p *Processor) call(i int, h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			p.lc.Error("State change handler panicked", "handler", i, "control", ev.Control, "panic", fmt.Sprint(r))
		}
	}()
	h(ev)
}

// LogHandler logs every transition at debug level.
func LogHandler(lc logger.LoggingClient) Handler {
	return func(ev Event) {
		lc.Debug("State change", "control", ev.Control, "to", ev.Value, "from", ev.OldValue)
	}
}
