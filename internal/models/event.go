package models

import "time"

// EventKind identifies one inbound realtime event type.
type EventKind string

const (
	EventNewMessage       EventKind = "new_message"
	EventMessageStatus    EventKind = "message_status"
	EventMessageEdited    EventKind = "message_edited"
	EventMessageReactions EventKind = "message_reactions"
	EventMessageDeleted   EventKind = "message_deleted"
	EventMessageHidden    EventKind = "message_hidden"
	EventPresence         EventKind = "presence"
	EventTyping           EventKind = "typing"
)

// Event is the closed union of inbound realtime events. Payloads are
// validated at the transport boundary; anything outside the union never
// reaches the reconciler.
type Event interface {
	Kind() EventKind
}

// NewMessageEvent announces a message created by either party.
type NewMessageEvent struct {
	Record MessageRecord
}

func (NewMessageEvent) Kind() EventKind { return EventNewMessage }

// MessageStatusEvent advances delivery status for a batch of messages.
type MessageStatusEvent struct {
	MessageIDs []int64
	Status     DeliveryStatus
}

func (MessageStatusEvent) Kind() EventKind { return EventMessageStatus }

// MessageEditedEvent replaces a message's content.
type MessageEditedEvent struct {
	MessageID int64
	Content   string
	EditedAt  time.Time
}

func (MessageEditedEvent) Kind() EventKind { return EventMessageEdited }

// MessageReactionsEvent replaces a message's reaction set wholesale.
// The server is authoritative; there is no local merge.
type MessageReactionsEvent struct {
	MessageID int64
	Reactions []Reaction
}

func (MessageReactionsEvent) Kind() EventKind { return EventMessageReactions }

// MessageDeletedEvent tombstones a message for everyone.
type MessageDeletedEvent struct {
	MessageID int64
}

func (MessageDeletedEvent) Kind() EventKind { return EventMessageDeleted }

// MessageHiddenEvent removes a message from this client entirely.
type MessageHiddenEvent struct {
	MessageID int64
}

func (MessageHiddenEvent) Kind() EventKind { return EventMessageHidden }

// PresenceEvent patches a roster entry. Not a message event.
type PresenceEvent struct {
	UserID      int64
	IsOnline    bool
	LastSeen    *time.Time
	DeviceCount *int
}

func (PresenceEvent) Kind() EventKind { return EventPresence }

// TypingEvent drives a transient typing indicator. Never persisted.
type TypingEvent struct {
	FromUserID int64
	IsTyping   bool
}

func (TypingEvent) Kind() EventKind { return EventTyping }
