// Package workerpool provides a bounded worker pool with a sleep-and-resubmit
// overflow policy.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"sim-gateway-go/internal/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultWorkers       = 20
	DefaultRetryInterval = time.Second
)

// Pool runs a fixed number of workers over a bounded queue of T.
type Pool[T any] struct {
	name          string
	workers       int
	queueSize     int
	retryInterval time.Duration
	processor     func(context.Context, T) error
	lc            logger.LoggingClient

	workChan chan T
	wg       sync.WaitGroup
	busy     atomic.Int64

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool
	stopCh      chan struct{}

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64

	registerer prometheus.Registerer
	metrics    *poolMetrics
}

type poolMetrics struct {
	queueDepth prometheus.GaugeFunc
	busy       prometheus.GaugeFunc
	submitted  prometheus.Counter
	processed  prometheus.Counter
	failed     prometheus.Counter
	rejected   prometheus.Counter
	duration   *prometheus.HistogramVec
}

// Option configures a Pool.
type Option[T any] func(*Pool[T])

// WithQueueSize sets the number of submissions that may wait for a worker.
func WithQueueSize[T any](n int) Option[T] {
	return func(p *Pool[T]) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithRetryInterval sets how long SubmitWait sleeps after a rejection.
func WithRetryInterval[T any](d time.Duration) Option[T] {
	return func(p *Pool[T]) {
		if d > 0 {
			p.retryInterval = d
		}
	}
}

// WithLogger sets the logging client used for rejections and recovered panics.
func WithLogger[T any](lc logger.LoggingClient) Option[T] {
	return func(p *Pool[T]) { p.lc = lc }
}

// WithRegisterer registers the pool metrics, prefixed with the pool name.
func WithRegisterer[T any](reg prometheus.Registerer) Option[T] {
	return func(p *Pool[T]) { p.registerer = reg }
}

// NewPool creates a pool with the given number of workers. The queue size
// defaults to the worker count.
func NewPool[T any](name string, workers int, processor func(context.Context, T) error, opts ...Option[T]) (*Pool[T], error) {
	if processor == nil {
		panic(ErrNilProcessor)
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}

	p := &Pool[T]{
		name:          name,
		workers:       workers,
		queueSize:     workers,
		retryInterval: DefaultRetryInterval,
		processor:     processor,
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.lc == nil {
		p.lc = logger.NewClient(logger.ErrorLog)
	}
	p.workChan = make(chan T, p.queueSize)

	if p.registerer != nil {
		if err := p.initMetrics(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Pool[T]) initMetrics() error {
	labels := prometheus.Labels{"pool": p.name}
	m := &poolMetrics{
		queueDepth: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "simgw_workerpool_queue_depth", Help: "Work items waiting for a worker", ConstLabels: labels,
		}, func() float64 { return float64(len(p.workChan)) }),
		busy: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "simgw_workerpool_busy_workers", Help: "Workers currently processing an item", ConstLabels: labels,
		}, func() float64 { return float64(p.busy.Load()) }),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simgw_workerpool_submitted_total", Help: "Work items accepted", ConstLabels: labels,
		}),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simgw_workerpool_processed_total", Help: "Work items processed", ConstLabels: labels,
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simgw_workerpool_failed_total", Help: "Work items that returned an error or panicked", ConstLabels: labels,
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simgw_workerpool_rejected_total", Help: "Submissions rejected by a full queue", ConstLabels: labels,
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "simgw_workerpool_processing_duration_seconds",
			Help:        "Time spent processing work items",
			ConstLabels: labels,
			Buckets:     []float64{0.01, 0.1, 1, 10, 60, 600, 3600},
		}, []string{"status"}),
	}

	for _, c := range []prometheus.Collector{m.queueDepth, m.busy, m.submitted, m.processed, m.failed, m.rejected, m.duration} {
		if err := p.registerer.Register(c); err != nil {
			return fmt.Errorf("register worker pool %s metrics: %w", p.name, err)
		}
	}
	p.metrics = m
	return nil
}

// Start launches the workers. They exit when ctx is cancelled or the pool is
// stopped.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.started = true
	return nil
}

// Submit queues work without blocking. It returns ErrQueueFull when no slot
// is free.
func (p *Pool[T]) Submit(work T) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.workChan <- work:
		p.submitted.Add(1)
		if p.metrics != nil {
			p.metrics.submitted.Inc()
		}
		return nil
	default:
		p.rejected.Add(1)
		if p.metrics != nil {
			p.metrics.rejected.Inc()
		}
		return ErrQueueFull
	}
}

// SubmitWait submits work, sleeping the retry interval and resubmitting each
// time the queue is full. It returns early when ctx is done or the pool stops.
func (p *Pool[T]) SubmitWait(ctx context.Context, work T) error {
	for {
		err := p.Submit(work)
		if err != ErrQueueFull {
			return err
		}
		p.lc.Warn("Job rejected, retrying", "pool", p.name, "retry", p.retryInterval)

		timer := time.NewTimer(p.retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-p.stopCh:
			timer.Stop()
			return ErrPoolStopped
		case <-timer.C:
		}
	}
}

// Stop closes the queue and waits up to timeout for the workers to drain it.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	if !p.started || p.stopped {
		p.lifecycleMu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.workChan)
	p.lifecycleMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

func (p *Pool[T]) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case work, ok := <-p.workChan:
			if !ok {
				return
			}
			p.run(ctx, work)
		}
	}
}

func (p *Pool[T]) run(ctx context.Context, work T) {
	p.busy.Add(1)
	start := time.Now()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				p.lc.Error("Uncaught panic in worker", "pool", p.name, "panic", r)
			}
		}()
		err = p.processor(ctx, work)
	}()

	p.busy.Add(-1)
	p.processed.Add(1)
	status := "success"
	if err != nil {
		status = "error"
		p.failed.Add(1)
	}
	if p.metrics != nil {
		p.metrics.processed.Inc()
		if err != nil {
			p.metrics.failed.Inc()
		}
		p.metrics.duration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}
}

// Stats is a point-in-time view of pool counters.
type Stats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Busy       int64 `json:"busy"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Rejected   int64 `json:"rejected"`
}

// Stats returns the current pool counters.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.workChan),
		Busy:       p.busy.Load(),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Rejected:   p.rejected.Load(),
	}
}
