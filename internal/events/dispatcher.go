package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MrWong99/ioanna/internal/observe"
)

// DefaultBufferSize is the number of events a [Dispatcher] queues.
const DefaultBufferSize = 64

// Dispatcher queues events and delivers them to sinks from a single
// goroutine, so every sink sees events in the order they were notified.
type Dispatcher struct {
	sinks   []Sink
	queue   chan Event
	metrics *observe.Metrics

	closeOnce sync.Once
	done      chan struct{}
}

var _ Notifier = (*Dispatcher)(nil)

// DispatcherOption configures a [Dispatcher].
type DispatcherOption func(*Dispatcher)

// WithBufferSize sets the queue capacity.
func WithBufferSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan Event, n)
		}
	}
}

// WithMetrics counts dropped events on m.
func WithMetrics(m *observe.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher returns a dispatcher delivering to sinks. Call [Dispatcher.Run]
// to start delivery.
func NewDispatcher(sinks []Sink, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sinks: sinks,
		queue: make(chan Event, DefaultBufferSize),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Notify queues e. When the queue is full or the dispatcher is closed, e is
// dropped with a warning.
func (d *Dispatcher) Notify(ctx context.Context, e Event) {
	select {
	case <-d.done:
		d.drop(ctx, e, "closed")
		return
	default:
	}
	select {
	case d.queue <- e:
	default:
		d.drop(ctx, e, "full")
	}
}

func (d *Dispatcher) drop(ctx context.Context, e Event, reason string) {
	slog.Warn("events: dropping event", "kind", e.Kind, "reason", reason)
	if d.metrics != nil {
		d.metrics.RecordEventDropped(ctx, "dispatcher")
	}
}

// Run delivers queued events until ctx is done or [Dispatcher.Close] is
// called. Events still queued at Close are delivered before Run returns.
// Sink errors are logged and do not stop delivery.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.done:
			for {
				select {
				case e := <-d.queue:
					d.deliver(ctx, e)
				default:
					return nil
				}
			}
		case e := <-d.queue:
			d.deliver(ctx, e)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e Event) {
	for _, s := range d.sinks {
		if err := s.Deliver(ctx, e); err != nil {
			slog.Warn("events: sink failed", "kind", e.Kind, "err", err)
		}
	}
}

// Close stops accepting events. Safe to call more than once.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.done) })
}
