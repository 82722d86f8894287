package streams

import (
	"context"
	"sync"

	"github.com/Redeven/Streambot/metrics"
	"github.com/google/uuid"
)

const DefaultBusSize = 64

// Event is a notable change of one subscription
type Event struct {
	ID       string
	Key      Key
	Snapshot Snapshot

	ack  func()
	once sync.Once
}

func NewEvent(key Key, snapshot Snapshot, ack func()) *Event {
	return &Event{
		ID:       uuid.New().String(),
		Key:      key,
		Snapshot: snapshot,
		ack:      ack,
	}
}

// Done releases the subscription so it can produce the next event. Safe to call more than once.
func (e *Event) Done() {
	e.once.Do(func() {
		if e.ack != nil {
			e.ack()
		}
	})
}

// Bus carries events from every watch to the single dispatcher
type Bus struct {
	events chan *Event
}

func NewBus(size int) *Bus {
	if size <= 0 {
		size = DefaultBusSize
	}
	return &Bus{events: make(chan *Event, size)}
}

// Publish blocks while the bus is full, until $ctx is done
func (b *Bus) Publish(ctx context.Context, event *Event) error {
	select {
	case b.events <- event:
		metrics.NotableEvents.WithLabelValues(event.Key.Platform).Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) Events() <-chan *Event {
	return b.events
}
