// Package transport speaks the PulseChat server's wire protocol:
// JSON over HTTP for history and contacts, JSON frames over a
// websocket for realtime events. Inbound payloads are validated here,
// at the boundary, so only the closed event union reaches the rest of
// the client.
package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pulsechat/pulsechat/internal/models"
)

// wireMessage is the server's message shape. Field names follow the
// server's snake_case JSON; media fields arrive flattened.
type wireMessage struct {
	ID              int64           `json:"id"`
	SenderID        int64           `json:"sender_id"`
	RecipientID     int64           `json:"recipient_id"`
	SenderName      string          `json:"sender_name"`
	Content         string          `json:"content"`
	ImageURL        string          `json:"image_url"`
	MediaURL        string          `json:"media_url"`
	MediaType       string          `json:"media_type"`
	FileName        string          `json:"file_name"`
	FileSize        int64           `json:"file_size"`
	DurationSec     float64         `json:"duration_sec"`
	Waveform        []int           `json:"waveform"`
	ReplyToID       int64           `json:"reply_to_id"`
	ForwardedFromID int64           `json:"forwarded_from_id"`
	Status          string          `json:"status"`
	CreatedAt       string          `json:"created_at"`
	EditedAt        string          `json:"edited_at"`
	DeletedAt       string          `json:"deleted_at"`
	Reactions       []wireReaction  `json:"reactions"`
	ReplyPreview    *wireReplyShape `json:"reply_preview"`
}

type wireReaction struct {
	UserID int64  `json:"user_id"`
	Emoji  string `json:"emoji"`
	IsMe   bool   `json:"is_me"`
}

type wireReplyShape struct {
	SenderName string `json:"sender_name"`
	Content    string `json:"content"`
	ImageURL   string `json:"image_url"`
}

type wireContact struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	AvatarURL   string `json:"avatar_url"`
	IsOnline    bool   `json:"is_online"`
	LastSeen    string `json:"last_seen"`
	DeviceCount int    `json:"device_count"`
	LastMessage string `json:"last_message"`
	UnreadCount int    `json:"unread_count"`
}

func parseWireTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// toRecord converts a wire message into the canonical record. The
// conversation peer is whichever participant is not the local user.
func (w *wireMessage) toRecord(localUserID int64) models.MessageRecord {
	peerID := w.SenderID
	if w.SenderID == localUserID {
		peerID = w.RecipientID
	}

	record := models.MessageRecord{
		ID:                 w.ID,
		ConversationPeerID: peerID,
		SenderID:           w.SenderID,
		SenderName:         w.SenderName,
		Content:            w.Content,
		ForwardedFromID:    w.ForwardedFromID,
		Status:             models.DeliveryStatus(w.Status),
		EditedAt:           parseWireTime(w.EditedAt),
		DeletedAt:          parseWireTime(w.DeletedAt),
	}
	if created := parseWireTime(w.CreatedAt); created != nil {
		record.CreatedAt = *created
	}
	if record.Status == "" {
		record.Status = models.StatusSent
	}

	mediaURL := w.MediaURL
	mediaType := models.MediaType(w.MediaType)
	if mediaURL == "" && w.ImageURL != "" {
		// Legacy rows predate the media columns and only carry image_url.
		mediaURL = w.ImageURL
		mediaType = models.MediaImage
	}
	if mediaURL != "" {
		if !models.ValidMediaType(mediaType) {
			mediaType = models.MediaFile
		}
		record.Media = &models.MediaRef{
			Type:        mediaType,
			URL:         mediaURL,
			FileName:    w.FileName,
			FileSize:    w.FileSize,
			DurationSec: w.DurationSec,
			Waveform:    w.Waveform,
		}
	}

	if w.ReplyPreview != nil {
		preview := w.ReplyPreview.Content
		if preview == "" && w.ReplyPreview.ImageURL != "" {
			preview = "Photo"
		}
		record.ReplyTo = &models.ReplySummary{
			SenderName: w.ReplyPreview.SenderName,
			Preview:    preview,
		}
	}

	for _, r := range w.Reactions {
		record.Reactions = append(record.Reactions, models.Reaction{
			Emoji:      r.Emoji,
			UserIsSelf: r.IsMe,
		})
	}

	if record.DeletedAt != nil {
		// Server tombstones already arrive cleared; enforce the
		// invariant regardless.
		at := *record.DeletedAt
		record.Tombstone(at)
	}

	return record
}

func (c *wireContact) toConversation() models.Conversation {
	return models.Conversation{
		ID:                 c.ID,
		DisplayName:        c.Username,
		AvatarRef:          c.AvatarURL,
		IsOnline:           c.IsOnline,
		LastSeenAt:         parseWireTime(c.LastSeen),
		DeviceCount:        c.DeviceCount,
		LastMessagePreview: c.LastMessage,
		UnreadCount:        c.UnreadCount,
	}
}

// frame is one websocket message in either direction.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// DecodeEvent validates one inbound frame and returns the typed event.
// Unknown event names and malformed payloads return an error; callers
// drop them without touching client state.
func DecodeEvent(localUserID int64, name string, data []byte) (models.Event, error) {
	switch models.EventKind(name) {
	case models.EventNewMessage:
		var w wireMessage
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("malformed new_message payload: %w", err)
		}
		if w.ID <= 0 {
			return nil, fmt.Errorf("new_message without id")
		}
		return models.NewMessageEvent{Record: w.toRecord(localUserID)}, nil

	case models.EventMessageStatus:
		var p struct {
			MessageIDs []int64 `json:"message_ids"`
			Status     string  `json:"status"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("malformed message_status payload: %w", err)
		}
		status := models.DeliveryStatus(p.Status)
		if !status.AtLeast(models.StatusSent) {
			return nil, fmt.Errorf("unknown delivery status %q", p.Status)
		}
		return models.MessageStatusEvent{MessageIDs: p.MessageIDs, Status: status}, nil

	case models.EventMessageEdited:
		var p struct {
			MessageID int64  `json:"message_id"`
			Content   string `json:"content"`
			EditedAt  string `json:"edited_at"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("malformed message_edited payload: %w", err)
		}
		if p.MessageID <= 0 {
			return nil, fmt.Errorf("message_edited without id")
		}
		ev := models.MessageEditedEvent{MessageID: p.MessageID, Content: p.Content}
		if at := parseWireTime(p.EditedAt); at != nil {
			ev.EditedAt = *at
		} else {
			ev.EditedAt = time.Now().UTC()
		}
		return ev, nil

	case models.EventMessageReactions:
		var p struct {
			MessageID int64          `json:"message_id"`
			Reactions []wireReaction `json:"reactions"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("malformed message_reactions payload: %w", err)
		}
		if p.MessageID <= 0 {
			return nil, fmt.Errorf("message_reactions without id")
		}
		ev := models.MessageReactionsEvent{MessageID: p.MessageID}
		for _, r := range p.Reactions {
			ev.Reactions = append(ev.Reactions, models.Reaction{Emoji: r.Emoji, UserIsSelf: r.IsMe})
		}
		return ev, nil

	case models.EventMessageDeleted:
		var p struct {
			MessageID int64 `json:"message_id"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("malformed message_deleted payload: %w", err)
		}
		if p.MessageID <= 0 {
			return nil, fmt.Errorf("message_deleted without id")
		}
		return models.MessageDeletedEvent{MessageID: p.MessageID}, nil

	case models.EventMessageHidden:
		var p struct {
			MessageID int64 `json:"message_id"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("malformed message_hidden payload: %w", err)
		}
		if p.MessageID <= 0 {
			return nil, fmt.Errorf("message_hidden without id")
		}
		return models.MessageHiddenEvent{MessageID: p.MessageID}, nil

	case models.EventPresence:
		var p struct {
			UserID      int64  `json:"user_id"`
			Status      string `json:"status"`
			IsOnline    *bool  `json:"is_online"`
			LastSeen    string `json:"last_seen"`
			DeviceCount *int   `json:"device_count"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("malformed presence payload: %w", err)
		}
		if p.UserID <= 0 {
			return nil, fmt.Errorf("presence without user id")
		}
		online := p.Status == "online"
		if p.IsOnline != nil {
			online = *p.IsOnline
		}
		return models.PresenceEvent{
			UserID:      p.UserID,
			IsOnline:    online,
			LastSeen:    parseWireTime(p.LastSeen),
			DeviceCount: p.DeviceCount,
		}, nil

	case models.EventTyping:
		var p struct {
			FromUserID int64 `json:"from_user_id"`
			IsTyping   bool  `json:"is_typing"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("malformed typing payload: %w", err)
		}
		if p.FromUserID <= 0 {
			return nil, fmt.Errorf("typing without user id")
		}
		return models.TypingEvent{FromUserID: p.FromUserID, IsTyping: p.IsTyping}, nil
	}

	return nil, fmt.Errorf("unknown event %q", name)
}

// encodeOutbound builds the wire payload for a send-message frame.
func encodeOutbound(m models.OutboundMessage) map[string]any {
	payload := map[string]any{
		"recipient_id": m.RecipientID,
		"content":      m.Content,
		"media_url":    m.MediaURL,
		"media_type":   string(m.MediaType),
		"file_name":    m.FileName,
		"file_size":    m.FileSize,
		"duration_sec": m.DurationSec,
		"waveform":     m.Waveform,
	}
	if m.MediaType == models.MediaImage {
		payload["image_url"] = m.MediaURL
	}
	if m.ReplyToID > 0 {
		payload["reply_to_id"] = m.ReplyToID
	}
	if m.ForwardedFromID > 0 {
		payload["forwarded_from_id"] = m.ForwardedFromID
	}
	return payload
}
