package events

import (
	"sync"

	"github.com/fmwatch/fmwatch/internal/models"
)

// Event is a tagged cross-component notification. The variants below are the
// only implementations; consumers type-switch on them.
type Event interface {
	event()
}

// TasksChangedEvent carries the full ordered task snapshot after a merge or
// delete, so observers never pair fresh data with a stale order.
type TasksChangedEvent struct {
	Tasks []models.Task
}

// TaskRemovedEvent signals a single task left the store.
type TaskRemovedEvent struct {
	ID string
}

// ConflictPromptEvent asks the user for a decision on a blocked task. It is
// re-published with refreshed file snapshots while the task stays blocked.
type ConflictPromptEvent struct {
	TaskID string
	Info   models.ConflictInfo
}

// ConflictRetractedEvent dismisses the prompt for a task, either because a
// decision was submitted or the conflict went away on its own.
type ConflictRetractedEvent struct {
	TaskID string
}

// TransferAddedEvent signals a new upload item, including rejected ones.
type TransferAddedEvent struct {
	Item models.TransferItem
}

// TransferUpdatedEvent carries fresh progress/status for an upload item.
type TransferUpdatedEvent struct {
	Item models.TransferItem
}

// TransferRemovedEvent signals an item was removed (user cancel).
type TransferRemovedEvent struct {
	ID string
}

// UploadDoneEvent tells listing collaborators to refresh after a successful
// upload into ParentPath.
type UploadDoneEvent struct {
	Item models.TransferItem
}

func (TasksChangedEvent) event()      {}
func (TaskRemovedEvent) event()       {}
func (ConflictPromptEvent) event()    {}
func (ConflictRetractedEvent) event() {}
func (TransferAddedEvent) event()     {}
func (TransferUpdatedEvent) event()   {}
func (TransferRemovedEvent) event()   {}
func (UploadDoneEvent) event()        {}

const subscriberBuffer = 128

// Bus fans events out to subscribers. Publish never blocks: a subscriber that
// stops draining its channel loses events rather than stalling producers.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
	logger *Logger
}

// NewBus creates an event bus.
func NewBus(logger *Logger) *Bus {
	return &Bus{
		subs:   make(map[int]chan Event),
		logger: logger.WithField("component", "bus"),
	}
}

// Subscribe registers a new consumer. The returned cancel func must be called
// when the consumer is done; it closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Publish delivers ev to all current subscribers.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, sub := range b.subs {
		select {
		case sub <- ev:
		default:
			b.logger.Debug("Subscriber channel full, dropping event")
		}
	}
}

// Close shuts down the bus and all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub)
	}
}
