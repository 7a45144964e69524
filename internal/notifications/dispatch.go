package notifications

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
)

// ErrQueueFull is returned by Dispatcher.Send when the queue is saturated.
var ErrQueueFull = errors.New("notification queue full")

// Dispatcher decouples decision producers from slow sinks. Send never blocks;
// a single worker delivers queued decisions in order.
type Dispatcher struct {
	sink    Sink
	queue   chan Decision
	logger  *slog.Logger
	dropped atomic.Int64
}

// NewDispatcher creates a dispatcher with the given queue size (0 uses the
// default).
func NewDispatcher(sink Sink, size int, logger *slog.Logger) *Dispatcher {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Dispatcher{
		sink:   sink,
		queue:  make(chan Decision, size),
		logger: logger,
	}
}

// Send enqueues d. When the queue is full d is dropped.
func (d *Dispatcher) Send(_ context.Context, dec Decision) error {
	select {
	case d.queue <- dec:
		return nil
	default:
		n := d.dropped.Add(1)
		d.logger.Warn("Notification dropped, queue full",
			"decision_id", dec.ID, "user_id", dec.UserID, "dropped_total", n)
		return ErrQueueFull
	}
}

// Dropped is the number of decisions discarded because the queue was full.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Run delivers queued decisions until ctx is cancelled, then drains what is
// left with a bounded deadline. Blocks; intended to be called with `go`.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("Notification dispatch worker started", "queue", cap(d.queue))

	for {
		select {
		case dec := <-d.queue:
			d.deliver(ctx, dec)
		case <-ctx.Done():
			d.drain()
			d.logger.Info("Notification dispatch worker stopped")
			return
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownDrainLimit)
	defer cancel()

	for {
		select {
		case dec := <-d.queue:
			d.deliver(ctx, dec)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, dec Decision) {
	ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	if err := d.sink.Send(ctx, dec); err != nil {
		d.logger.Warn("Notification delivery failed",
			"decision_id", dec.ID, "user_id", dec.UserID, "kind", dec.Kind, "error", err)
	}
}
