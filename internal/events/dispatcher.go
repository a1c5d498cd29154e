package events

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var droppedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sqlquest_events_dropped_total",
	Help: "Pipeline events dropped because the dispatch buffer was full.",
}, []string{"type"})

const deliverTimeout = 5 * time.Second

// Dispatcher fans events out to its sinks on a background goroutine. Emit
// never blocks the caller: when the buffer is full the event is dropped and
// counted.
type Dispatcher struct {
	ch     chan Event
	sinks  []Sink
	logger zerolog.Logger

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewDispatcher(buffer int, logger zerolog.Logger, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{
		ch:     make(chan Event, buffer),
		sinks:  sinks,
		logger: logger.With().Str("component", "event_dispatcher").Logger(),
		done:   make(chan struct{}),
	}
}

// Start launches the delivery loop. Safe to call once.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		go d.run()
	})
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for event := range d.ch {
		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()
	for _, sink := range d.sinks {
		if err := sink.Deliver(ctx, event); err != nil {
			d.logger.Warn().
				Err(err).
				Str("event_id", event.ID).
				Str("event_type", string(event.Type)).
				Msg("event sink delivery failed")
		}
	}
}

// Emit enqueues an event for delivery. It returns immediately; a full buffer
// drops the event.
func (d *Dispatcher) Emit(eventType Type, userID string, payload map[string]any) {
	event := New(eventType, userID, payload)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	select {
	case d.ch <- event:
		d.mu.Unlock()
	default:
		d.mu.Unlock()
		droppedEvents.WithLabelValues(string(eventType)).Inc()
		d.logger.Warn().
			Str("event_type", string(eventType)).
			Str("user_id", userID).
			Msg("event buffer full, dropping event")
	}
}

// Close stops accepting events and waits for queued ones to drain.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.ch)
		d.Start() // ensure the drain loop exists even if Start was never called
		<-d.done
	})
}
