package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

type worker struct {
	id     int
	pool   chan chan Message
	jobs   chan Message
	logger *slog.Logger
}

func newWorker(id int, pool chan chan Message, logger *slog.Logger) *worker {
	return &worker{
		id:     id,
		pool:   pool,
		jobs:   make(chan Message),
		logger: logger,
	}
}

func (w *worker) start(ctx context.Context, wg *sync.WaitGroup, deliver func(Message)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			select {
			case w.pool <- w.jobs:
			case <-ctx.Done():
				w.logger.Debug("notification worker shutting down", "worker_id", w.id)
				return
			}

			select {
			case msg := <-w.jobs:
				w.logger.Debug("worker delivering notification", "worker_id", w.id, "event_id", msg.EventID)
				deliver(msg)
			case <-ctx.Done():
				w.logger.Debug("notification worker shutting down", "worker_id", w.id)
				return
			}
		}
	}()
}

type DispatcherConfig struct {
	Workers      int
	QueueSize    int
	MaxRetries   uint64
	RetryBackoff time.Duration
	Timeout      time.Duration
}

// Dispatcher delivers notifications off the request path through a fixed
// worker pool. Failed deliveries are retried and then logged; they never
// reach the code that enqueued them.
type Dispatcher struct {
	notifier Notifier
	cfg      DispatcherConfig
	logger   *slog.Logger

	queue  chan Message
	pool   chan chan Message
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

func NewDispatcher(notifier Notifier, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		queue:    make(chan Message, cfg.QueueSize),
		pool:     make(chan chan Message, cfg.Workers),
		ctx:      ctx,
		cancel:   cancel,
	}

	for i := 0; i < cfg.Workers; i++ {
		newWorker(i, d.pool, logger).start(ctx, &d.wg, d.deliver)
	}
	d.wg.Add(1)
	go d.dispatch()

	logger.Info("notification dispatcher started", "workers", cfg.Workers, "queue_size", cfg.QueueSize)
	return d
}

// Enqueue hands msg to the pool without blocking. It reports false when the
// queue is full or the dispatcher is closed; the message is dropped.
func (d *Dispatcher) Enqueue(msg Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("notification dropped after shutdown", "event_id", msg.EventID)
		return false
	}

	select {
	case d.queue <- msg:
		return true
	default:
		d.logger.Warn("notification queue full, dropping message",
			"event_id", msg.EventID,
			"event_type", msg.EventType,
			"expense_id", msg.ExpenseID)
		return false
	}
}

func (d *Dispatcher) dispatch() {
	defer d.wg.Done()

	for {
		select {
		case msg, ok := <-d.queue:
			if !ok {
				d.logger.Info("notification dispatcher drained")
				d.cancel()
				return
			}
			select {
			case jobs := <-d.pool:
				jobs <- msg
			case <-d.ctx.Done():
				return
			}
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) deliver(msg Message) {
	backoff := retry.WithMaxRetries(d.cfg.MaxRetries, retry.NewExponential(d.cfg.RetryBackoff))
	attempt := 0

	// Deliveries outlive the worker context so Close can drain the queue.
	err := retry.Do(context.Background(), backoff, func(ctx context.Context) error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
		if err := d.notifier.Notify(callCtx, msg); err != nil {
			d.logger.Debug("notification attempt failed", "event_id", msg.EventID, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		d.logger.Error("notification delivery failed",
			"event_id", msg.EventID,
			"event_type", msg.EventType,
			"expense_id", msg.ExpenseID,
			"attempts", attempt,
			"error", err)
	}
}

// Close stops accepting messages, delivers what is queued and waits for the
// workers to exit.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.logger.Info("shutting down notification dispatcher")
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()

		d.wg.Wait()
		if err := d.notifier.Close(); err != nil {
			d.logger.Warn("failed to close notifier", "error", err)
		}
		d.logger.Info("notification dispatcher shutdown complete")
	})
}
