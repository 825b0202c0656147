// Package roster maintains the conversation list: one entry per peer,
// populated wholesale from a contacts fetch and patched in place by
// presence and message events.
package roster

import (
	"sort"

	"github.com/pulsechat/pulsechat/internal/models"
)

// Roster holds the known conversations. Entry existence is
// server-authoritative: presence and preview updates only ever patch
// entries the contacts fetch created.
type Roster struct {
	entries map[int64]*models.Conversation
	order   []int64
}

// New returns an empty roster.
func New() *Roster {
	return &Roster{entries: make(map[int64]*models.Conversation)}
}

// SetAll replaces the roster wholesale from a contacts fetch, keeping
// the server's ordering.
func (r *Roster) SetAll(contacts []models.Conversation) {
	r.entries = make(map[int64]*models.Conversation, len(contacts))
	r.order = make([]int64, 0, len(contacts))
	for i := range contacts {
		c := contacts[i]
		r.entries[c.ID] = &c
		r.order = append(r.order, c.ID)
	}
}

// Get returns a copy of the entry for peerID.
func (r *Roster) Get(peerID int64) (models.Conversation, bool) {
	entry, ok := r.entries[peerID]
	if !ok {
		return models.Conversation{}, false
	}
	return *entry, true
}

// List returns the conversations in roster order.
func (r *Roster) List() []models.Conversation {
	out := make([]models.Conversation, 0, len(r.order))
	for _, id := range r.order {
		if entry, ok := r.entries[id]; ok {
			out = append(out, *entry)
		}
	}
	return out
}

// ApplyPresence patches an entry in place. Unknown peers are ignored:
// the contacts fetch owns entry existence.
func (r *Roster) ApplyPresence(peerID int64, patch models.PresencePatch) bool {
	entry, ok := r.entries[peerID]
	if !ok {
		return false
	}
	entry.ApplyPresence(patch)
	return true
}

// NoteMessage updates the preview line for the conversation a message
// belongs to, bumping the unread count unless the conversation is the
// open one or the local user sent the message.
func (r *Roster) NoteMessage(peerID int64, preview string, unreadBump bool) bool {
	entry, ok := r.entries[peerID]
	if !ok {
		return false
	}
	entry.LastMessagePreview = preview
	if unreadBump {
		entry.UnreadCount++
	}
	return true
}

// ClearUnread resets the unread count when a conversation is opened.
func (r *Roster) ClearUnread(peerID int64) {
	if entry, ok := r.entries[peerID]; ok {
		entry.UnreadCount = 0
	}
}

// TotalUnread sums unread counts across all conversations.
func (r *Roster) TotalUnread() int {
	total := 0
	for _, entry := range r.entries {
		total += entry.UnreadCount
	}
	return total
}

// PeerIDs returns all known peer ids in ascending order.
func (r *Roster) PeerIDs() []int64 {
	out := make([]int64, 0, len(r.entries))
	for id := range r.entries {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
