package push

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"pushgate/internal/platform/metrics"
	"pushgate/pkg/platform/circuit"
	"pushgate/pkg/requestcontext"
)

var (
	ErrQueueFull        = errors.New("push queue full")
	ErrCircuitOpen      = errors.New("push circuit open")
	ErrDispatcherClosed = errors.New("push dispatcher closed")
)

// Result is the outcome of one dispatched message.
type Result struct {
	MessageID string
	Err       error
}

type job struct {
	ctx    context.Context
	msg    Message
	result chan Result
}

// Dispatcher sends messages on a fixed pool of workers fed by a bounded
// queue. Dispatch never blocks; rejections are reported on the result
// channel straight away.
type Dispatcher struct {
	sender  Sender
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	workers int

	queue     chan job
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

type DispatcherOption func(*Dispatcher)

func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan job, n)
		}
	}
}

// WithSendTimeout bounds each Sender call.
func WithSendTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

func WithBreaker(b *circuit.Breaker) DispatcherOption {
	return func(d *Dispatcher) {
		if b != nil {
			d.breaker = b
		}
	}
}

func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithDispatcherMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func NewDispatcher(sender Sender, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sender:  sender,
		breaker: circuit.New("push"),
		logger:  slog.Default(),
		timeout: 10 * time.Second,
		workers: 4,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.queue == nil {
		d.queue = make(chan job, 256)
	}
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

// Dispatch queues msg and returns a channel that receives exactly one
// Result. The send outlives ctx's cancellation but keeps its values.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) <-chan Result {
	result := make(chan Result, 1)

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		result <- Result{Err: ErrDispatcherClosed}
		return result
	}
	if !d.breaker.Allow() {
		d.metrics.IncPushDispatch(metrics.PushCircuitOpen)
		result <- Result{Err: ErrCircuitOpen}
		return result
	}
	select {
	case d.queue <- job{ctx: context.WithoutCancel(ctx), msg: msg, result: result}:
		d.metrics.SetPushQueueDepth(len(d.queue))
	default:
		d.metrics.IncPushDispatch(metrics.PushQueueFull)
		result <- Result{Err: ErrQueueFull}
	}
	return result
}

// Close stops accepting messages and waits for queued ones to be sent.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for j := range d.queue {
		d.metrics.SetPushQueueDepth(len(d.queue))
		j.result <- d.send(j.ctx, j.msg)
	}
}

func (d *Dispatcher) send(ctx context.Context, msg Message) Result {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	id, err := d.sender.Send(ctx, msg)
	d.metrics.ObservePushDuration(time.Since(start).Seconds())

	if err != nil {
		d.metrics.IncPushDispatch(metrics.PushFailed)
		if _, change := d.breaker.RecordFailure(); change.Opened {
			d.logger.WarnContext(ctx, "push circuit opened",
				"breaker", d.breaker.Name(),
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		return Result{Err: err}
	}
	d.metrics.IncPushDispatch(metrics.PushSent)
	if _, change := d.breaker.RecordSuccess(); change.Closed {
		d.logger.InfoContext(ctx, "push circuit closed", "breaker", d.breaker.Name())
	}
	return Result{MessageID: id}
}
