// Package notify provides in-process pub/sub for state-change
// notifications, the boundary through which an embedding renderer
// observes the sync core without reaching into it.
package notify

import "sync"

// Kind categorizes notifications emitted by the core.
type Kind string

const (
	// KindTimelineChanged fires after any mutation of the open timeline.
	KindTimelineChanged Kind = "timeline.changed"

	// KindRosterChanged fires after contacts load, presence patches, or
	// preview/unread updates.
	KindRosterChanged Kind = "roster.changed"

	// KindTypingChanged fires when the peer's transient typing
	// indicator turns on or off.
	KindTypingChanged Kind = "typing.changed"

	// KindConnectivityChanged fires on online/offline transitions.
	KindConnectivityChanged Kind = "connectivity.changed"

	// KindQueueFlushed fires after the outbound queue drains.
	KindQueueFlushed Kind = "queue.flushed"
)

// Notification describes one state change.
type Notification struct {
	Kind   Kind
	PeerID int64 // conversation the change belongs to; 0 = global
	Online bool  // connectivity and typing payload
	Count  int   // queue-flushed payload
}

// Handler is a callback invoked for each matching notification.
type Handler func(Notification)

// Filter restricts which notifications a subscriber receives.
type Filter struct {
	// Kinds filters by notification kind (nil = all kinds).
	Kinds []Kind

	// PeerID filters to one conversation (0 = all).
	PeerID int64
}

// Matches reports whether the notification passes the filter.
func (f *Filter) Matches(n Notification) bool {
	if len(f.Kinds) > 0 {
		matched := false
		for _, k := range f.Kinds {
			if n.Kind == k {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if f.PeerID != 0 && n.PeerID != f.PeerID {
		return false
	}
	return true
}

type subscription struct {
	id      string
	filter  Filter
	handler Handler
}

// Bus is an in-process notification publisher.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subscriptions: make(map[string]*subscription)}
}

// Publish delivers the notification to every matching subscriber.
// Handlers run synchronously, outside the lock.
func (b *Bus) Publish(n Notification) {
	b.mu.RLock()
	var handlers []Handler
	for _, sub := range b.subscriptions {
		if sub.filter.Matches(n) {
			handlers = append(handlers, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(n)
	}
}

// Subscribe registers a handler under the given id.
func (b *Bus) Subscribe(id string, filter Filter, handler Handler) error {
	if id == "" {
		return ErrInvalidSubscriptionID
	}
	if handler == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.subscriptions[id]; exists {
		return ErrSubscriptionExists
	}
	b.subscriptions[id] = &subscription{id: id, filter: filter, handler: handler}
	return nil
}

// Unsubscribe removes a subscription by id.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.subscriptions[id]; !exists {
		return ErrSubscriptionNotFound
	}
	delete(b.subscriptions, id)
	return nil
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

// Close removes all subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions = make(map[string]*subscription)
}

// Errors for bus operations.
var (
	ErrInvalidSubscriptionID = &BusError{Message: "subscription ID is required"}
	ErrNilHandler            = &BusError{Message: "handler cannot be nil"}
	ErrSubscriptionExists    = &BusError{Message: "subscription with this ID already exists"}
	ErrSubscriptionNotFound  = &BusError{Message: "subscription not found"}
)

// BusError represents an error from bus operations.
type BusError struct {
	Message string
}

func (e *BusError) Error() string {
	return e.Message
}
