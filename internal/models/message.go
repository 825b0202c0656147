// Package models defines the core entities of the PulseChat sync client.
package models

import "time"

// DeliveryStatus tracks how far a message has progressed toward the
// recipient. It only ever advances: sent -> delivered -> seen.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusSeen      DeliveryStatus = "seen"
)

// rank orders delivery statuses for monotonic advancement. Unknown
// statuses rank below sent so they can never clobber a known one.
func (s DeliveryStatus) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusSeen:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether s is at or beyond other in delivery order.
func (s DeliveryStatus) AtLeast(other DeliveryStatus) bool {
	return s.rank() >= other.rank()
}

// MediaType classifies a message attachment.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaVoice MediaType = "voice"
	MediaAudio MediaType = "audio"
	MediaFile  MediaType = "file"
)

// ValidMediaType reports whether t is a known attachment type.
func ValidMediaType(t MediaType) bool {
	switch t {
	case MediaImage, MediaVideo, MediaVoice, MediaAudio, MediaFile:
		return true
	}
	return false
}

// MediaRef describes a message attachment hosted by the server.
type MediaRef struct {
	Type        MediaType `json:"type"`
	URL         string    `json:"url"`
	FileName    string    `json:"file_name,omitempty"`
	FileSize    int64     `json:"file_size,omitempty"`
	DurationSec float64   `json:"duration_sec,omitempty"`
	Waveform    []int     `json:"waveform,omitempty"`
}

// ReplySummary is a denormalized snapshot of the message being replied
// to, fixed at send time. It is not a live reference.
type ReplySummary struct {
	SenderName string `json:"sender_name"`
	Preview    string `json:"preview"`
}

// Reaction is a single emoji contribution on a message. The server
// collapses multiple reactions per user per emoji to one.
type Reaction struct {
	Emoji      string `json:"emoji"`
	UserIsSelf bool   `json:"user_is_self"`
}

// MessageRecord is the canonical message entity. ID is the only stable
// merge key: two records with the same ID are the same logical message,
// and later data always replaces earlier data wholesale.
type MessageRecord struct {
	ID                 int64          `json:"id"`
	ConversationPeerID int64          `json:"conversation_peer_id"`
	SenderID           int64          `json:"sender_id"`
	SenderName         string         `json:"sender_name,omitempty"`
	Content            string         `json:"content,omitempty"`
	Media              *MediaRef      `json:"media,omitempty"`
	ReplyTo            *ReplySummary  `json:"reply_to,omitempty"`
	ForwardedFromID    int64          `json:"forwarded_from_id,omitempty"`
	Reactions          []Reaction     `json:"reactions,omitempty"`
	Status             DeliveryStatus `json:"status"`
	CreatedAt          time.Time      `json:"created_at"`
	EditedAt           *time.Time     `json:"edited_at,omitempty"`
	DeletedAt          *time.Time     `json:"deleted_at,omitempty"`
}

// Deleted reports whether the record is a tombstone.
func (m *MessageRecord) Deleted() bool {
	return m.DeletedAt != nil
}

// Tombstone clears content, media, reactions and the edit marker while
// keeping the identity in place, so ordering and unread counts stay
// stable until a hard-remove event purges the record.
func (m *MessageRecord) Tombstone(at time.Time) {
	m.Content = ""
	m.Media = nil
	m.Reactions = nil
	m.EditedAt = nil
	m.ForwardedFromID = 0
	m.ReplyTo = nil
	at = at.UTC()
	m.DeletedAt = &at
}

// AdvanceStatus moves the delivery status forward. A lower-ranked
// incoming status is dropped; the status never regresses.
func (m *MessageRecord) AdvanceStatus(next DeliveryStatus) bool {
	if m.Status.AtLeast(next) {
		return false
	}
	m.Status = next
	return true
}

// Preview returns the short text shown in conversation lists.
func (m *MessageRecord) Preview() string {
	if m.Deleted() {
		return "Message deleted"
	}
	if m.Content != "" {
		return m.Content
	}
	if m.Media != nil {
		if m.Media.FileName != "" {
			return m.Media.FileName
		}
		return "[" + string(m.Media.Type) + "]"
	}
	return ""
}

// Clone returns a deep copy so stored snapshots cannot alias live
// timeline state.
func (m *MessageRecord) Clone() MessageRecord {
	out := *m
	if m.Media != nil {
		media := *m.Media
		media.Waveform = append([]int(nil), m.Media.Waveform...)
		out.Media = &media
	}
	if m.ReplyTo != nil {
		reply := *m.ReplyTo
		out.ReplyTo = &reply
	}
	if m.Reactions != nil {
		out.Reactions = append([]Reaction(nil), m.Reactions...)
	}
	if m.EditedAt != nil {
		t := *m.EditedAt
		out.EditedAt = &t
	}
	if m.DeletedAt != nil {
		t := *m.DeletedAt
		out.DeletedAt = &t
	}
	return out
}
