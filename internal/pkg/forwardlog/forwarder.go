package forwardlog

import (
	"sync"
	"sync/atomic"
	"time"

	"sim-gateway-go/internal/pkg/logger"
	"sim-gateway-go/internal/pkg/mqtt"
	"sim-gateway-go/internal/pkg/state"
)

// Publisher 发布MQTT消息
type Publisher interface {
	Publish(msg *mqtt.MQTTMessage) error
}

// Forwarder 将状态变化事件批量转发到MQTT, 带重试
type Forwarder struct {
	publisher Publisher
	lc        logger.LoggingClient

	queue      []mqtt.StateRecord
	batchSize  int
	flushDelay time.Duration
	maxRetries int
	retryDelay time.Duration
	maxPending int
	stopWait   time.Duration

	sent    atomic.Int64
	dropped atomic.Int64

	mu       sync.Mutex
	stopCh   chan struct{}
	flushCh  chan struct{}
	doneCh   chan struct{}
	abortCh  chan struct{}
	stopOnce sync.Once
}

// Option 配置Forwarder
type Option func(*Forwarder)

// WithBatchSize 设置每条消息的事件数量, 也是触发立即发送的队列长度
func WithBatchSize(n int) Option {
	return func(f *Forwarder) {
		if n > 0 {
			f.batchSize = n
		}
	}
}

// WithFlushInterval 设置定时发送间隔
func WithFlushInterval(d time.Duration) Option {
	return func(f *Forwarder) {
		if d > 0 {
			f.flushDelay = d
		}
	}
}

// WithRetryDelay 设置重试基础间隔, 第n次重试等待n倍
func WithRetryDelay(d time.Duration) Option {
	return func(f *Forwarder) {
		if d > 0 {
			f.retryDelay = d
		}
	}
}

// WithMaxPending 设置队列上限, 超出时丢弃最旧的事件
func WithMaxPending(n int) Option {
	return func(f *Forwarder) {
		if n > 0 {
			f.maxPending = n
		}
	}
}

// WithStopTimeout 设置Stop等待剩余事件发送的最长时间
func WithStopTimeout(d time.Duration) Option {
	return func(f *Forwarder) {
		if d > 0 {
			f.stopWait = d
		}
	}
}

// NewForwarder 创建新的状态事件转发器
func NewForwarder(publisher Publisher, lc logger.LoggingClient, opts ...Option) *Forwarder {
	f := &Forwarder{
		publisher:  publisher,
		lc:         lc,
		batchSize:  10,
		flushDelay: time.Second,
		maxRetries: 3,
		retryDelay: time.Second,
		maxPending: 1000,
		stopWait:   5 * time.Second,
		stopCh:     make(chan struct{}),
		flushCh:    make(chan struct{}, 1),
		doneCh:     make(chan struct{}),
		abortCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Start 启动转发循环
func (f *Forwarder) Start() {
	go f.run()
	f.lc.Info("State event forwarder started", "batch", f.batchSize, "interval", f.flushDelay)
}

// Stop 发送剩余事件后停止. 超过stopWait仍未发送完的事件被丢弃
func (f *Forwarder) Stop() {
	f.stopOnce.Do(func() {
		close(f.stopCh)
		timer := time.NewTimer(f.stopWait)
		defer timer.Stop()
		select {
		case <-f.doneCh:
		case <-timer.C:
			close(f.abortCh)
			f.lc.Warn("State event forwarder stop timed out, abandoning pending events", "timeout", f.stopWait)
		}
		f.lc.Info("State event forwarder stopped", "sent", f.sent.Load(), "dropped", f.dropped.Load())
	})
}

// Handler 返回注册到状态处理器的处理函数
func (f *Forwarder) Handler() state.Handler {
	return f.Record
}

// Record 将事件加入发送队列
func (f *Forwarder) Record(ev state.Event) {
	rec := mqtt.StateRecord{
		Address:   ev.Control.Address,
		Caption:   ev.Control.Caption,
		SimType:   ev.Control.SimType,
		Value:     string(ev.Payload),
		OldValue:  string(ev.OldPayload),
		Timestamp: ev.Time.UnixMilli(),
	}

	f.mu.Lock()
	if len(f.queue) >= f.maxPending {
		f.queue = f.queue[1:]
		f.dropped.Add(1)
	}
	f.queue = append(f.queue, rec)
	shouldFlush := len(f.queue) >= f.batchSize
	f.mu.Unlock()

	if shouldFlush {
		select {
		case f.flushCh <- struct{}{}:
		default:
		}
	}
}

// Pending 返回等待发送的事件数
func (f *Forwarder) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

func (f *Forwarder) run() {
	defer close(f.doneCh)

	ticker := time.NewTicker(f.flushDelay)
	defer ticker.Stop()

	for {
		select {
		case <-f.stopCh:
			f.flush()
			return
		case <-ticker.C:
			f.flush()
		case <-f.flushCh:
			f.flush()
		}
	}
}

func (f *Forwarder) flush() {
	f.mu.Lock()
	if len(f.queue) == 0 {
		f.mu.Unlock()
		return
	}
	records := f.queue
	f.queue = nil
	f.mu.Unlock()

	for start := 0; start < len(records); start += f.batchSize {
		if f.aborted() {
			f.dropped.Add(int64(len(records) - start))
			return
		}
		end := min(start+f.batchSize, len(records))
		f.send(records[start:end])
	}
}

func (f *Forwarder) send(batch []mqtt.StateRecord) {
	msg := mqtt.NewMessage(mqtt.TypeStateChange, &mqtt.StateChangePayload{Events: batch})

	for attempt := 0; attempt < f.maxRetries && !f.aborted(); attempt++ {
		err := f.publisher.Publish(msg)
		if err == nil {
			f.sent.Add(int64(len(batch)))
			return
		}
		f.lc.Warn("Failed to forward state events", "attempt", attempt+1, "events", len(batch), "err", err)
		if attempt+1 < f.maxRetries {
			f.backoff(f.retryDelay * time.Duration(attempt+1))
		}
	}
	f.dropped.Add(int64(len(batch)))
	f.lc.Error("Dropping state events after retries", "attempts", f.maxRetries, "events", len(batch))
}

// backoff 等待d, 停止时立即返回
func (f *Forwarder) backoff(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-f.stopCh:
	}
}

func (f *Forwarder) aborted() bool {
	select {
	case <-f.abortCh:
		return true
	default:
		return false
	}
}
