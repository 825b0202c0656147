package models

import "time"

// Conversation is the roster entry for one two-party conversation.
// Entries are populated wholesale from a contacts fetch and patched in
// place by presence events; the client never creates or destroys them.
type Conversation struct {
	ID                 int64      `json:"id"`
	DisplayName        string     `json:"display_name"`
	AvatarRef          string     `json:"avatar_ref,omitempty"`
	IsOnline           bool       `json:"is_online"`
	LastSeenAt         *time.Time `json:"last_seen_at,omitempty"`
	DeviceCount        int        `json:"device_count,omitempty"`
	LastMessagePreview string     `json:"last_message_preview,omitempty"`
	UnreadCount        int        `json:"unread_count,omitempty"`
}

// PresencePatch carries the fields a presence event may update on a
// Conversation. Nil pointers leave the existing value untouched.
type PresencePatch struct {
	IsOnline    bool
	LastSeenAt  *time.Time
	DeviceCount *int
}

// ApplyPresence patches the conversation in place.
func (c *Conversation) ApplyPresence(p PresencePatch) {
	c.IsOnline = p.IsOnline
	if p.LastSeenAt != nil {
		t := p.LastSeenAt.UTC()
		c.LastSeenAt = &t
	}
	if p.DeviceCount != nil {
		c.DeviceCount = *p.DeviceCount
	}
}
