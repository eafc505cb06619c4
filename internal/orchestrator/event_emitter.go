package orchestrator

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// EventEmitter handles event emission for the orchestrator.
// Emit never blocks the loop: events are dropped when the buffer is full.
type EventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
	log          *zap.Logger
	closeOnce    sync.Once
}

// NewEventEmitter creates a new EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int, log *zap.Logger) *EventEmitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventEmitter{
		events: make(chan Event, bufferSize),
		log:    log,
	}
}

// Emit sends an event to the events channel.
func (e *EventEmitter) Emit(event Event) {
	select {
	case e.events <- event:
	default:
		count := e.droppedCount.Add(1)
		if count%10 == 1 { // Log every 10th drop to avoid spam
			e.log.Warn("event channel full, dropped event",
				zap.Uint64("dropped_total", count),
				zap.String("type", string(event.Type)))
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the events channel. Closing twice is a no-op.
func (e *EventEmitter) Close() {
	e.closeOnce.Do(func() { close(e.events) })
}
