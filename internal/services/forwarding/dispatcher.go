package forwarding

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/promoledger/backend/internal/metrics"
)

// Dispatcher forwards events off the request path. Call Dispatch only after
// the ledger transaction has committed.
type Dispatcher struct {
	sink    Sink
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher wraps sink. A nil sink drops events.
func NewDispatcher(sink Sink, timeout time.Duration) *Dispatcher {
	if sink == nil {
		sink = NoopSink{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{sink: sink, timeout: timeout}
}

// Dispatch forwards event in its own goroutine. Errors are logged only.
func (d *Dispatcher) Dispatch(event ConversionEvent) {
	if d == nil {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("forwarding %s for conversion %s panicked: %v", event.Event, event.ConversionID, r)
				metrics.ForwardingFailures.WithLabelValues(d.sink.Name()).Inc()
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.sink.Forward(ctx, event); err != nil {
			log.Printf("forwarding %s for conversion %s via %s failed: %v", event.Event, event.ConversionID, d.sink.Name(), err)
			metrics.ForwardingFailures.WithLabelValues(d.sink.Name()).Inc()
		}
	}()
}

// Wait blocks until in-flight dispatches finish
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
