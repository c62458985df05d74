package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/inkwell/contractflow/internal/logger"
	"github.com/inkwell/contractflow/internal/ports"
)

var (
	ErrQueueFull = errors.New("notification queue is full")
	ErrClosed    = errors.New("notifier is closed")
)

// Sink delivers one event somewhere. Dispatcher calls sinks from worker goroutines.
type Sink interface {
	Deliver(ctx context.Context, event ports.Event) error
}

// Dispatcher is an asynchronous ports.Notifier. Notify only enqueues, so a
// slow or failing sink never holds up the mutation that produced the event.
type Dispatcher struct {
	queue  chan ports.Event
	sinks  []Sink
	logger logger.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher starts workers goroutines draining a queue of bufferSize.
func NewDispatcher(bufferSize, workers int, log logger.Logger, sinks ...Sink) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if workers <= 0 {
		workers = 1
	}
	d := &Dispatcher{
		queue:  make(chan ports.Event, bufferSize),
		sinks:  sinks,
		logger: log,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

// Notify enqueues event without blocking. A full queue drops the event.
func (d *Dispatcher) Notify(ctx context.Context, event ports.Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	select {
	case d.queue <- event:
		return nil
	default:
		d.logger.Warn(ctx, "Dropping notification, queue full", map[string]interface{}{
			"contract_id": event.ContractID,
			"action":      event.Action,
		})
		return ErrQueueFull
	}
}

// Close stops accepting events and waits for queued ones to be delivered,
// or for ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for event := range d.queue {
		for _, sink := range d.sinks {
			if err := sink.Deliver(context.Background(), event); err != nil {
				d.logger.Error(context.Background(), "Notification delivery failed", err, map[string]interface{}{
					"contract_id": event.ContractID,
					"action":      event.Action,
				})
			}
		}
	}
}
