package inventory

import (
	"sync"
	"time"
)

// EventType represents the type of inventory event.
type EventType int

const (
	// EventItemAdded is emitted when a stack enters the inventory.
	EventItemAdded EventType = iota
	// EventItemRemoved is emitted when a stack leaves the inventory.
	EventItemRemoved
	// EventInventoryUpdated is emitted once after every mutating operation.
	EventInventoryUpdated
)

// String returns a human-readable representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventItemAdded:
		return "ItemAdded"
	case EventItemRemoved:
		return "ItemRemoved"
	case EventInventoryUpdated:
		return "InventoryUpdated"
	default:
		return "Unknown"
	}
}

// Event represents an inventory change.
type Event struct {
	Type      EventType
	Inventory *Inventory
	Item      *Item
	Revision  uint64
	Timestamp time.Time
}

// Notifier receives inventory events.
type Notifier interface {
	Publish(event Event)
}

// Observers is an ordered list of event handlers. Handlers run synchronously
// in subscription order on the goroutine that mutated the inventory.
type Observers struct {
	mu       sync.RWMutex
	nextID   int
	order    []int
	handlers map[int]func(Event)
}

// NewObservers creates an empty observer list.
func NewObservers() *Observers {
	return &Observers{handlers: make(map[int]func(Event))}
}

// Subscribe registers a handler and returns a function that removes it.
func (o *Observers) Subscribe(handler func(Event)) (cancel func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.handlers == nil {
		o.handlers = make(map[int]func(Event))
	}
	o.nextID++
	id := o.nextID
	o.handlers[id] = handler
	o.order = append(o.order, id)
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.handlers, id)
		for i, v := range o.order {
			if v == id {
				o.order = append(o.order[:i], o.order[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers the event to every handler.
func (o *Observers) Publish(event Event) {
	o.mu.RLock()
	handlers := make([]func(Event), 0, len(o.order))
	for _, id := range o.order {
		handlers = append(handlers, o.handlers[id])
	}
	o.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

// Len returns the number of subscribed handlers.
func (o *Observers) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.order)
}

// NullNotifier discards events.
type NullNotifier struct{}

// Publish does nothing.
func (NullNotifier) Publish(Event) {}
