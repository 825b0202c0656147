// Package session coordinates the sync core: it owns the open
// conversation's state, routes inbound events through the reconciler,
// runs history fetches, and dispatches user actions to the channel or
// the offline queue.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulsechat/pulsechat/internal/cache"
	"github.com/pulsechat/pulsechat/internal/logging"
	"github.com/pulsechat/pulsechat/internal/models"
	"github.com/pulsechat/pulsechat/internal/notify"
	"github.com/pulsechat/pulsechat/internal/outbox"
	"github.com/pulsechat/pulsechat/internal/reconcile"
	"github.com/pulsechat/pulsechat/internal/roster"
	"github.com/pulsechat/pulsechat/internal/store"
	"github.com/pulsechat/pulsechat/internal/timeline"
	"github.com/pulsechat/pulsechat/internal/transport"
)

// DefaultPageSize is how many messages one backward history page holds.
const DefaultPageSize = 25

const defaultFetchTimeout = 10 * time.Second

// ErrOffline rejects operations that require a live channel.
var ErrOffline = errors.New("not connected")

// ErrUnknownMessage rejects operations on ids outside the loaded
// timeline.
var ErrUnknownMessage = errors.New("unknown message")

// API is the server's HTTP surface, satisfied by transport.Client.
type API interface {
	History(ctx context.Context, peerID int64, limit int, beforeID int64) (*transport.HistoryPage, error)
	Contacts(ctx context.Context) ([]models.Conversation, error)
}

// Sender is the outbound half of a live channel, satisfied by
// transport.Channel.
type Sender interface {
	JoinChat(peerID int64) error
	SendMessage(m models.OutboundMessage) error
	EditMessage(id int64, content string) error
	DeleteMessage(id int64, mode models.DeleteMode) error
	ReactMessage(id int64, emoji string) error
	Typing(recipientID int64, isTyping bool) error
}

// Config carries the session's tunables.
type Config struct {
	LocalUserID    int64
	PageSize       int
	CacheLimit     int
	TypingDebounce time.Duration
	FetchTimeout   time.Duration
}

// Session is the single logical writer over all conversation state.
// Every mutation happens under one lock, so the core types never race:
// channel events, fetch completions, and user actions all serialize
// here.
type Session struct {
	cfg Config
	api API
	log zerolog.Logger

	mu         sync.Mutex
	timeline   *timeline.Timeline
	selection  *timeline.Selection
	roster     *roster.Roster
	cache      *cache.ConversationCache
	queue      *outbox.Queue
	reconciler *reconcile.Reconciler
	typing     *reconcile.TypingIndicator
	bus        *notify.Bus

	sender    Sender // nil while offline
	fetching  bool   // one in-flight backward fetch at a time
	replyToID int64

	typingOn    bool
	typingTimer *time.Timer
}

// New assembles a session over the given API and persistence.
func New(cfg Config, api API, kv store.KV, bus *notify.Bus) *Session {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}

	tl := timeline.New()
	sel := timeline.NewSelection()
	ros := roster.New()
	cc := cache.New(kv, cfg.LocalUserID, cfg.CacheLimit)
	typing := reconcile.NewTypingIndicator(bus, cfg.TypingDebounce)

	return &Session{
		cfg:        cfg,
		api:        api,
		log:        logging.Component("session"),
		timeline:   tl,
		selection:  sel,
		roster:     ros,
		cache:      cc,
		queue:      outbox.Open(kv, cfg.LocalUserID),
		reconciler: reconcile.New(cfg.LocalUserID, tl, sel, ros, cc, bus, typing),
		typing:     typing,
		bus:        bus,
	}
}

// HandleEvent applies one decoded channel event. Safe to call from the
// read-loop goroutine.
func (s *Session) HandleEvent(ev models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconciler.Apply(ev)
}

// SetOnline records a connectivity transition. Going online flushes
// the offline queue through the new channel and re-announces the open
// conversation.
func (s *Session) SetOnline(online bool, sender Sender) {
	s.mu.Lock()
	if !online {
		sender = nil
	}
	s.sender = sender

	var flushed int
	var openPeer int64
	if online && sender != nil {
		if openPeer = s.timeline.PeerID(); openPeer != 0 {
			if err := sender.JoinChat(openPeer); err != nil {
				s.log.Warn().Err(err).Int64("peer_id", openPeer).Msg("rejoin failed")
			}
		}
		flushed = s.queue.Flush(func(m models.OutboundMessage) {
			if err := sender.SendMessage(m); err != nil {
				s.log.Warn().Err(err).Str("queue_id", m.QueueID).Msg("queued send failed")
			}
		})
	}
	s.mu.Unlock()

	s.bus.Publish(notify.Notification{Kind: notify.KindConnectivityChanged, Online: online})
	if flushed > 0 {
		s.log.Info().Int("count", flushed).Msg("offline queue flushed")
		s.bus.Publish(notify.Notification{Kind: notify.KindQueueFlushed, Count: flushed})
	}
}

// OpenConversation switches the session to peerID: all per-conversation
// state resets, the server is told which chat is open (it marks unread
// messages seen in response), and the newest history page loads in the
// background with the cached snapshot as fallback.
func (s *Session) OpenConversation(ctx context.Context, peerID int64) {
	s.mu.Lock()
	s.timeline.OpenFor(peerID)
	s.selection.Cancel()
	s.replyToID = 0
	s.fetching = false
	s.typing.Stop()
	s.stopTypingLocked()
	s.roster.ClearUnread(peerID)
	if s.sender != nil {
		if err := s.sender.JoinChat(peerID); err != nil {
			s.log.Warn().Err(err).Int64("peer_id", peerID).Msg("join failed")
		}
	}
	s.mu.Unlock()

	s.bus.Publish(notify.Notification{Kind: notify.KindRosterChanged, PeerID: peerID})

	go s.fetchInitial(ctx, peerID)
}

func (s *Session) fetchInitial(ctx context.Context, peerID int64) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()
	page, err := s.api.History(ctx, peerID, s.cfg.PageSize, 0)

	s.mu.Lock()
	if s.timeline.PeerID() != peerID {
		s.mu.Unlock()
		return // conversation changed while fetching
	}

	if err != nil {
		s.log.Warn().Err(err).Int64("peer_id", peerID).Msg("history fetch failed, using cache")
		cached := s.cache.Load(peerID)
		s.timeline.MergePage(cached, len(cached) > 0)
		s.mu.Unlock()
		s.bus.Publish(notify.Notification{Kind: notify.KindTimelineChanged, PeerID: peerID})
		return
	}

	s.timeline.MergePage(page.Messages, page.HasMore)
	s.cache.Save(peerID, s.timeline.Records())
	s.mu.Unlock()
	s.bus.Publish(notify.Notification{Kind: notify.KindTimelineChanged, PeerID: peerID})
}

// RequestOlder is the scroll-near-top trigger. At most one backward
// fetch runs per conversation; re-triggers while one is in flight are
// dropped. A failed fetch merges whatever the cache holds and
// terminally stops pagination for this conversation.
func (s *Session) RequestOlder(ctx context.Context) {
	s.mu.Lock()
	peerID := s.timeline.PeerID()
	if peerID == 0 || s.fetching || !s.timeline.HasMoreOlder() {
		s.mu.Unlock()
		return
	}
	s.fetching = true
	beforeID := s.timeline.OldestLoadedID()
	s.mu.Unlock()

	go s.fetchOlder(ctx, peerID, beforeID)
}

func (s *Session) fetchOlder(ctx context.Context, peerID, beforeID int64) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()
	page, err := s.api.History(ctx, peerID, s.cfg.PageSize, beforeID)

	s.mu.Lock()
	if s.timeline.PeerID() != peerID {
		s.mu.Unlock()
		return // stale completion, OpenConversation already reset fetching
	}
	s.fetching = false

	if err != nil {
		s.log.Warn().Err(err).Int64("peer_id", peerID).Msg("page fetch failed, pagination stopped")
		s.timeline.MergePage(s.cache.Load(peerID), false)
		s.mu.Unlock()
		s.bus.Publish(notify.Notification{Kind: notify.KindTimelineChanged, PeerID: peerID})
		return
	}

	s.timeline.MergePage(page.Messages, page.HasMore)
	s.cache.Save(peerID, s.timeline.Records())
	s.mu.Unlock()
	s.bus.Publish(notify.Notification{Kind: notify.KindTimelineChanged, PeerID: peerID})
}

// RefreshContacts replaces the roster from the server.
func (s *Session) RefreshContacts(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()
	contacts, err := s.api.Contacts(ctx)
	if err != nil {
		return fmt.Errorf("refresh contacts: %w", err)
	}

	s.mu.Lock()
	s.roster.SetAll(contacts)
	s.mu.Unlock()
	s.bus.Publish(notify.Notification{Kind: notify.KindRosterChanged})
	return nil
}

// Send validates and dispatches one outbound message. Offline it is
// queued for the next reconnect; online it goes out over the channel,
// never both.
func (s *Session) Send(draft models.OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if draft.RecipientID == 0 {
		draft.RecipientID = s.timeline.PeerID()
	}
	if draft.ReplyToID == 0 {
		draft.ReplyToID = s.replyToID
	}

	draft.Normalize()
	if err := draft.Validate(); err != nil {
		return err
	}

	s.replyToID = 0
	s.stopTypingLocked()

	if s.sender == nil {
		s.queue.Enqueue(draft)
		s.log.Debug().Int64("recipient_id", draft.RecipientID).Msg("offline, message queued")
		return nil
	}
	if err := s.sender.SendMessage(draft); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// Edit replaces the content of one of the local user's messages.
func (s *Session) Edit(id int64, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.timeline.Get(id)
	if !ok {
		return ErrUnknownMessage
	}

	var verr models.ValidationErrors
	if record.SenderID != s.cfg.LocalUserID {
		verr.AddMessage("message_id", "can only edit your own messages")
	}
	if record.Deleted() {
		verr.AddMessage("message_id", "cannot edit a deleted message")
	}
	content = truncate(strings.TrimSpace(content), models.MaxContentLength)
	if content == "" {
		verr.AddMessage("content", "content is required")
	}
	if err := verr.Err(); err != nil {
		return err
	}

	if s.sender == nil {
		return ErrOffline
	}
	return s.sender.EditMessage(id, content)
}

// Delete removes messages for the requester or for everyone. The
// server answers with deleted/hidden events; local state changes only
// when those arrive.
func (s *Session) Delete(ids []int64, mode models.DeleteMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sender == nil {
		return ErrOffline
	}
	for _, id := range ids {
		if err := s.sender.DeleteMessage(id, mode); err != nil {
			return fmt.Errorf("delete %d: %w", id, err)
		}
	}
	return nil
}

// DeleteSelected deletes the current selection and exits selection
// mode.
func (s *Session) DeleteSelected(mode models.DeleteMode) error {
	s.mu.Lock()
	ids := s.selection.Snapshot()
	s.mu.Unlock()
	if len(ids) == 0 {
		return nil
	}
	return s.Delete(ids, mode)
}

// React toggles the local user's reaction on a message.
func (s *Session) React(id int64, emoji string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.timeline.Get(id); !ok {
		return ErrUnknownMessage
	}
	if len(emoji) > models.MaxEmojiLength {
		var verr models.ValidationErrors
		verr.AddMessage("emoji", "emoji too long")
		return verr.Err()
	}
	if s.sender == nil {
		return ErrOffline
	}
	return s.sender.ReactMessage(id, emoji)
}

// Forward re-sends the given messages to another contact, preserving
// content and media and marking the provenance.
func (s *Session) Forward(peerID int64, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		record, ok := s.timeline.Get(id)
		if !ok {
			return ErrUnknownMessage
		}
		if record.Deleted() {
			continue
		}

		draft := models.OutboundMessage{
			RecipientID:     peerID,
			Content:         record.Content,
			ForwardedFromID: record.ID,
		}
		if record.Media != nil {
			draft.MediaURL = record.Media.URL
			draft.MediaType = record.Media.Type
			draft.FileName = record.Media.FileName
			draft.FileSize = record.Media.FileSize
			draft.DurationSec = record.Media.DurationSec
			draft.Waveform = record.Media.Waveform
		}
		draft.Normalize()
		if err := draft.Validate(); err != nil {
			s.log.Debug().Err(err).Int64("message_id", id).Msg("skipping unforwardable message")
			continue
		}

		if s.sender == nil {
			s.queue.Enqueue(draft)
			continue
		}
		if err := s.sender.SendMessage(draft); err != nil {
			return fmt.Errorf("forward %d: %w", id, err)
		}
	}
	return nil
}

// ForwardSelected forwards the current selection to peerID and exits
// selection mode.
func (s *Session) ForwardSelected(peerID int64) error {
	s.mu.Lock()
	ids := s.selection.Snapshot()
	s.mu.Unlock()
	if len(ids) == 0 {
		return nil
	}
	return s.Forward(peerID, ids)
}

// NotifyTyping reports a keystroke in the composer. The first
// keystroke emits typing-on; the off signal goes out automatically
// after one debounce window without further keystrokes, so a steady
// typist produces exactly one on/off pair.
func (s *Session) NotifyTyping() {
	s.mu.Lock()
	defer s.mu.Unlock()

	peerID := s.timeline.PeerID()
	if peerID == 0 || s.sender == nil {
		return
	}

	window := s.cfg.TypingDebounce
	if window <= 0 {
		window = reconcile.DefaultTypingWindow
	}

	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	s.typingTimer = time.AfterFunc(window, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.stopTypingLocked()
	})

	if !s.typingOn {
		s.typingOn = true
		if err := s.sender.Typing(peerID, true); err != nil {
			s.log.Debug().Err(err).Msg("typing signal failed")
		}
	}
}

func (s *Session) stopTypingLocked() {
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	if !s.typingOn {
		return
	}
	s.typingOn = false
	if peerID := s.timeline.PeerID(); peerID != 0 && s.sender != nil {
		if err := s.sender.Typing(peerID, false); err != nil {
			s.log.Debug().Err(err).Msg("typing signal failed")
		}
	}
}

// SetReplyTarget marks the message the next send replies to.
func (s *Session) SetReplyTarget(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.timeline.Get(id); !ok {
		return ErrUnknownMessage
	}
	s.replyToID = id
	return nil
}

// ClearReplyTarget drops the pending reply target.
func (s *Session) ClearReplyTarget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replyToID = 0
}

// StartSelection enters selection mode seeded with id.
func (s *Session) StartSelection(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.timeline.Get(id); ok {
		s.selection.Start(id)
	}
}

// ToggleSelect toggles id in the active selection.
func (s *Session) ToggleSelect(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection.Toggle(id)
}

// CancelSelection exits selection mode.
func (s *Session) CancelSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection.Cancel()
}

// Messages returns a copy of the open timeline, oldest first.
func (s *Session) Messages() []models.MessageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.Records()
}

// Conversations returns the roster in server order.
func (s *Session) Conversations() []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster.List()
}

// OpenPeerID returns the open conversation's peer, 0 when none.
func (s *Session) OpenPeerID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.PeerID()
}

// Online reports whether a live channel is attached.
func (s *Session) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sender != nil
}

// HasMoreOlder reports whether older history may still be fetched.
func (s *Session) HasMoreOlder() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.HasMoreOlder()
}

// PeerTyping reports whether the open conversation's peer is typing.
func (s *Session) PeerTyping() bool {
	s.mu.Lock()
	peerID := s.timeline.PeerID()
	s.mu.Unlock()
	return peerID != 0 && s.typing.Active(peerID)
}

// PendingCount returns the offline queue depth.
func (s *Session) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// PendingMessages returns a copy of the offline queue in send order.
func (s *Session) PendingMessages() []models.OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Pending()
}

// SelectionActive reports whether selection mode is on.
func (s *Session) SelectionActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.Active()
}

// SelectionCount returns how many messages are selected.
func (s *Session) SelectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.Count()
}

func truncate(s string, max int) string {
	if runes := []rune(s); len(runes) > max {
		return string(runes[:max])
	}
	return s
}
