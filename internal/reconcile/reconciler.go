// Package reconcile applies inbound realtime events to the timeline,
// roster and cache with idempotent, last-writer-wins semantics.
package reconcile

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/pulsechat/pulsechat/internal/cache"
	"github.com/pulsechat/pulsechat/internal/logging"
	"github.com/pulsechat/pulsechat/internal/models"
	"github.com/pulsechat/pulsechat/internal/notify"
	"github.com/pulsechat/pulsechat/internal/roster"
	"github.com/pulsechat/pulsechat/internal/timeline"
)

// Reconciler is the state machine that turns events into local state.
// Every transition is a replacement, never an accumulation, so
// replaying an event is always safe: delivery is not exactly-once.
//
// Apply must be called from the single session loop.
type Reconciler struct {
	localUserID int64
	timeline    *timeline.Timeline
	selection   *timeline.Selection
	roster      *roster.Roster
	cache       *cache.ConversationCache
	bus         *notify.Bus
	typing      *TypingIndicator
	log         zerolog.Logger

	now func() time.Time
}

// New wires a reconciler over the given components.
func New(localUserID int64, tl *timeline.Timeline, sel *timeline.Selection, ros *roster.Roster, cc *cache.ConversationCache, bus *notify.Bus, typing *TypingIndicator) *Reconciler {
	return &Reconciler{
		localUserID: localUserID,
		timeline:    tl,
		selection:   sel,
		roster:      ros,
		cache:       cc,
		bus:         bus,
		typing:      typing,
		log:         logging.Component("reconcile"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Apply dispatches one inbound event. Events referencing ids this
// client has not paged in are silently ignored: that is an expected
// race between pagination and live delivery, not an error.
func (r *Reconciler) Apply(ev models.Event) {
	switch e := ev.(type) {
	case models.NewMessageEvent:
		r.applyNewMessage(e)
	case models.MessageStatusEvent:
		r.applyStatus(e)
	case models.MessageEditedEvent:
		r.applyEdited(e)
	case models.MessageReactionsEvent:
		r.applyReactions(e)
	case models.MessageDeletedEvent:
		r.applyDeleted(e)
	case models.MessageHiddenEvent:
		r.applyHidden(e)
	case models.PresenceEvent:
		r.applyPresence(e)
	case models.TypingEvent:
		r.applyTyping(e)
	default:
		r.log.Debug().Str("kind", string(ev.Kind())).Msg("ignoring unhandled event")
	}
}

func (r *Reconciler) applyNewMessage(e models.NewMessageEvent) {
	record := e.Record

	if record.ConversationPeerID == r.timeline.PeerID() {
		r.timeline.ApplyLive(record)
		r.snapshot()
		r.bus.Publish(notify.Notification{Kind: notify.KindTimelineChanged, PeerID: record.ConversationPeerID})
	}

	// Conversation-list metadata updates regardless of which
	// conversation is open.
	bump := record.SenderID != r.localUserID && record.ConversationPeerID != r.timeline.PeerID()
	if r.roster.NoteMessage(record.ConversationPeerID, record.Preview(), bump) {
		r.bus.Publish(notify.Notification{Kind: notify.KindRosterChanged, PeerID: record.ConversationPeerID})
	}
}

func (r *Reconciler) applyStatus(e models.MessageStatusEvent) {
	changed := false
	for _, id := range e.MessageIDs {
		r.timeline.Patch(id, func(m *models.MessageRecord) {
			if m.AdvanceStatus(e.Status) {
				changed = true
			}
		})
	}
	if changed {
		r.snapshot()
		r.bus.Publish(notify.Notification{Kind: notify.KindTimelineChanged, PeerID: r.timeline.PeerID()})
	}
}

func (r *Reconciler) applyEdited(e models.MessageEditedEvent) {
	patched := r.timeline.Patch(e.MessageID, func(m *models.MessageRecord) {
		if m.Deleted() {
			return
		}
		m.Content = e.Content
		at := e.EditedAt.UTC()
		m.EditedAt = &at
	})
	if patched {
		r.snapshot()
		r.bus.Publish(notify.Notification{Kind: notify.KindTimelineChanged, PeerID: r.timeline.PeerID()})
	}
}

func (r *Reconciler) applyReactions(e models.MessageReactionsEvent) {
	patched := r.timeline.Patch(e.MessageID, func(m *models.MessageRecord) {
		if m.Deleted() {
			return
		}
		// Wholesale replacement: the server owns the reaction set.
		m.Reactions = append([]models.Reaction(nil), e.Reactions...)
	})
	if patched {
		r.snapshot()
		r.bus.Publish(notify.Notification{Kind: notify.KindTimelineChanged, PeerID: r.timeline.PeerID()})
	}
}

func (r *Reconciler) applyDeleted(e models.MessageDeletedEvent) {
	patched := r.timeline.Patch(e.MessageID, func(m *models.MessageRecord) {
		if !m.Deleted() {
			m.Tombstone(r.now())
		}
	})
	if patched {
		r.snapshot()
		r.bus.Publish(notify.Notification{Kind: notify.KindTimelineChanged, PeerID: r.timeline.PeerID()})
	}
}

func (r *Reconciler) applyHidden(e models.MessageHiddenEvent) {
	removed := r.timeline.Remove(e.MessageID)
	r.selection.Drop(e.MessageID)
	if removed {
		r.snapshot()
		r.bus.Publish(notify.Notification{Kind: notify.KindTimelineChanged, PeerID: r.timeline.PeerID()})
	}
}

func (r *Reconciler) applyPresence(e models.PresenceEvent) {
	patched := r.roster.ApplyPresence(e.UserID, models.PresencePatch{
		IsOnline:    e.IsOnline,
		LastSeenAt:  e.LastSeen,
		DeviceCount: e.DeviceCount,
	})
	if patched {
		r.bus.Publish(notify.Notification{Kind: notify.KindRosterChanged, PeerID: e.UserID})
	}
}

func (r *Reconciler) applyTyping(e models.TypingEvent) {
	if e.FromUserID != r.timeline.PeerID() {
		return
	}
	r.typing.Set(e.FromUserID, e.IsTyping)
}

// snapshot writes the open timeline through to the durable cache.
func (r *Reconciler) snapshot() {
	peerID := r.timeline.PeerID()
	if peerID == 0 {
		return
	}
	r.cache.Save(peerID, r.timeline.Records())
}
