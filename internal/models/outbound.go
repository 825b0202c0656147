package models

import (
	"strings"
	"time"
)

// Limits applied to outbound payloads before they leave the client.
// They mirror what the server enforces so a queued send cannot be
// rejected later for size reasons.
const (
	MaxContentLength   = 2000
	MaxWaveformSamples = 80
	MaxFileNameLength  = 255
	MaxEmojiLength     = 12
)

// DeleteMode selects whether a delete hides the message for the
// requester only or tombstones it for both parties.
type DeleteMode string

const (
	DeleteModeSelf     DeleteMode = "self"
	DeleteModeEveryone DeleteMode = "everyone"
)

// OutboundMessage is a send payload. It carries no server ID: the
// resulting message only exists in the authoritative timeline once it
// comes back as a new-message event. QueueID identifies the entry in
// logs while it sits in the outbound queue, nothing more.
type OutboundMessage struct {
	QueueID         string     `json:"queue_id,omitempty"`
	RecipientID     int64      `json:"recipient_id"`
	Content         string     `json:"content,omitempty"`
	MediaURL        string     `json:"media_url,omitempty"`
	MediaType       MediaType  `json:"media_type,omitempty"`
	FileName        string     `json:"file_name,omitempty"`
	FileSize        int64      `json:"file_size,omitempty"`
	DurationSec     float64    `json:"duration_sec,omitempty"`
	Waveform        []int      `json:"waveform,omitempty"`
	ReplyToID       int64      `json:"reply_to_id,omitempty"`
	ForwardedFromID int64      `json:"forwarded_from_id,omitempty"`
	QueuedAt        *time.Time `json:"queued_at,omitempty"`
}

// Normalize trims and caps fields in place.
func (m *OutboundMessage) Normalize() {
	m.Content = strings.TrimSpace(m.Content)
	if runes := []rune(m.Content); len(runes) > MaxContentLength {
		m.Content = string(runes[:MaxContentLength])
	}
	if len(m.FileName) > MaxFileNameLength {
		m.FileName = m.FileName[:MaxFileNameLength]
	}
	if len(m.Waveform) > MaxWaveformSamples {
		m.Waveform = m.Waveform[:MaxWaveformSamples]
	}
	if m.DurationSec < 0 {
		m.DurationSec = 0
	}
}

// Validate rejects payloads that must not leave the client: an empty
// send with neither content nor an attachment, a missing recipient, or
// an attachment with an unknown type.
func (m *OutboundMessage) Validate() error {
	errs := &ValidationErrors{}
	if m.RecipientID <= 0 {
		errs.AddMessage("recipient_id", "recipient is required")
	}
	if m.Content == "" && m.MediaURL == "" {
		errs.AddMessage("content", "message needs content or an attachment")
	}
	if m.MediaURL != "" && !ValidMediaType(m.MediaType) {
		errs.AddMessage("media_type", "unknown media type")
	}
	return errs.Err()
}
