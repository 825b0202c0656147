package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsechat/pulsechat/internal/models"
	"github.com/pulsechat/pulsechat/internal/notify"
	"github.com/pulsechat/pulsechat/internal/store"
	"github.com/pulsechat/pulsechat/internal/transport"
)

const testLocalUser int64 = 1

type historyCall struct {
	peerID   int64
	limit    int
	beforeID int64
}

type pageResult struct {
	page *transport.HistoryPage
	err  error
}

// fakeAPI scripts History responses per peer, consumed FIFO within
// each peer. Keying by peer keeps scripts stable even when concurrent
// fetch goroutines reach History in arbitrary order. When gate is
// non-nil every History call blocks until the test sends a tick,
// which lets tests hold a fetch in flight deliberately.
type fakeAPI struct {
	mu       sync.Mutex
	calls    []historyCall
	results  map[int64][]pageResult
	gate     chan struct{}
	contacts []models.Conversation
}

func (f *fakeAPI) History(ctx context.Context, peerID int64, limit int, beforeID int64) (*transport.HistoryPage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, historyCall{peerID: peerID, limit: limit, beforeID: beforeID})
	var result pageResult
	if queued := f.results[peerID]; len(queued) > 0 {
		result = queued[0]
		f.results[peerID] = queued[1:]
	} else {
		result = pageResult{page: &transport.HistoryPage{}}
	}
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return result.page, result.err
}

func (f *fakeAPI) Contacts(ctx context.Context) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contacts, nil
}

func (f *fakeAPI) historyCalls() []historyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]historyCall(nil), f.calls...)
}

type deleteCall struct {
	id   int64
	mode models.DeleteMode
}

type typingCall struct {
	peerID int64
	on     bool
}

type fakeSender struct {
	mu      sync.Mutex
	joined  []int64
	sent    []models.OutboundMessage
	deletes []deleteCall
	typing  []typingCall
	edits   map[int64]string
	reacts  map[int64]string
	sendErr error
}

func newFakeSender() *fakeSender {
	return &fakeSender{edits: map[int64]string{}, reacts: map[int64]string{}}
}

func (f *fakeSender) JoinChat(peerID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, peerID)
	return nil
}

func (f *fakeSender) SendMessage(m models.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeSender) EditMessage(id int64, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits[id] = content
	return nil
}

func (f *fakeSender) DeleteMessage(id int64, mode models.DeleteMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, deleteCall{id: id, mode: mode})
	return nil
}

func (f *fakeSender) ReactMessage(id int64, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reacts[id] = emoji
	return nil
}

func (f *fakeSender) Typing(recipientID int64, isTyping bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, typingCall{peerID: recipientID, on: isTyping})
	return nil
}

func (f *fakeSender) sentMessages() []models.OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.OutboundMessage(nil), f.sent...)
}

func (f *fakeSender) typingCalls() []typingCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]typingCall(nil), f.typing...)
}

func newTestSession(t *testing.T, api *fakeAPI) (*Session, chan notify.Notification) {
	t.Helper()
	bus := notify.NewBus()
	notifications := make(chan notify.Notification, 64)
	require.NoError(t, bus.Subscribe("test", notify.Filter{}, func(n notify.Notification) {
		notifications <- n
	}))

	s := New(Config{
		LocalUserID:    testLocalUser,
		TypingDebounce: 50 * time.Millisecond,
	}, api, store.NewMemory(), bus)
	return s, notifications
}

func waitFor(t *testing.T, notifications chan notify.Notification, kind notify.Kind) notify.Notification {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case n := <-notifications:
			if n.Kind == kind {
				return n
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func page(peerID int64, hasMore bool, ids ...int64) *transport.HistoryPage {
	p := &transport.HistoryPage{HasMore: hasMore}
	// Server pages arrive newest-first.
	for i := len(ids) - 1; i >= 0; i-- {
		p.Messages = append(p.Messages, models.MessageRecord{
			ID:                 ids[i],
			ConversationPeerID: peerID,
			SenderID:           peerID,
			Content:            "m",
			Status:             models.StatusSent,
			CreatedAt:          time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(ids[i]) * time.Second),
		})
	}
	return p
}

func TestOpenConversationLoadsInitialPage(t *testing.T) {
	api := &fakeAPI{results: map[int64][]pageResult{
		42: {{page: page(42, true, 99, 100)}},
	}}
	s, notifications := newTestSession(t, api)
	sender := newFakeSender()
	s.SetOnline(true, sender)

	s.OpenConversation(context.Background(), 42)
	waitFor(t, notifications, notify.KindTimelineChanged)

	records := s.Messages()
	require.Len(t, records, 2)
	assert.Equal(t, int64(99), records[0].ID)
	assert.Equal(t, int64(100), records[1].ID)
	assert.True(t, s.HasMoreOlder())
	assert.Equal(t, []int64{42}, sender.joined)

	calls := api.historyCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, historyCall{peerID: 42, limit: DefaultPageSize, beforeID: 0}, calls[0])
}

func TestOpenConversationFallsBackToCache(t *testing.T) {
	api := &fakeAPI{results: map[int64][]pageResult{
		42: {
			{page: page(42, false, 99, 100)},
			{err: errors.New("server down")},
		},
		7: {{page: &transport.HistoryPage{}}},
	}}
	s, notifications := newTestSession(t, api)

	// First open succeeds and populates the cache.
	s.OpenConversation(context.Background(), 42)
	waitFor(t, notifications, notify.KindTimelineChanged)
	require.Len(t, s.Messages(), 2)

	// Second open fails over to the snapshot.
	s.OpenConversation(context.Background(), 7)
	waitFor(t, notifications, notify.KindTimelineChanged)
	s.OpenConversation(context.Background(), 42)
	waitFor(t, notifications, notify.KindTimelineChanged)

	records := s.Messages()
	require.Len(t, records, 2)
	assert.Equal(t, int64(99), records[0].ID)
}

func TestRequestOlderMergesPage(t *testing.T) {
	api := &fakeAPI{results: map[int64][]pageResult{
		42: {
			{page: page(42, true, 99, 100)},
			{page: page(42, false, 97, 98)},
		},
	}}
	s, notifications := newTestSession(t, api)

	s.OpenConversation(context.Background(), 42)
	waitFor(t, notifications, notify.KindTimelineChanged)

	s.RequestOlder(context.Background())
	waitFor(t, notifications, notify.KindTimelineChanged)

	records := s.Messages()
	require.Len(t, records, 4)
	assert.Equal(t, int64(97), records[0].ID)
	assert.False(t, s.HasMoreOlder())

	calls := api.historyCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, int64(99), calls[1].beforeID, "backward fetch bounded by oldest loaded id")
}

func TestRequestOlderCoalescesConcurrentTriggers(t *testing.T) {
	gate := make(chan struct{})
	api := &fakeAPI{
		gate: gate,
		results: map[int64][]pageResult{
			42: {
				{page: page(42, true, 99, 100)},
				{page: page(42, false, 98)},
			},
		},
	}
	s, notifications := newTestSession(t, api)

	s.OpenConversation(context.Background(), 42)
	gate <- struct{}{}
	waitFor(t, notifications, notify.KindTimelineChanged)

	// Three scroll triggers while the first fetch is in flight.
	s.RequestOlder(context.Background())
	s.RequestOlder(context.Background())
	s.RequestOlder(context.Background())
	gate <- struct{}{}
	waitFor(t, notifications, notify.KindTimelineChanged)

	assert.Len(t, api.historyCalls(), 2, "concurrent triggers are dropped, not queued")
	assert.Len(t, s.Messages(), 3)
}

func TestRequestOlderStopsAtEnd(t *testing.T) {
	api := &fakeAPI{results: map[int64][]pageResult{
		42: {{page: page(42, false, 100)}},
	}}
	s, notifications := newTestSession(t, api)

	s.OpenConversation(context.Background(), 42)
	waitFor(t, notifications, notify.KindTimelineChanged)
	require.False(t, s.HasMoreOlder())

	s.RequestOlder(context.Background())
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, api.historyCalls(), 1, "no fetch once history is exhausted")
}

func TestRequestOlderFailureIsTerminal(t *testing.T) {
	api := &fakeAPI{results: map[int64][]pageResult{
		42: {
			{page: page(42, true, 99, 100)},
			{err: errors.New("timeout")},
		},
	}}
	s, notifications := newTestSession(t, api)

	s.OpenConversation(context.Background(), 42)
	waitFor(t, notifications, notify.KindTimelineChanged)

	s.RequestOlder(context.Background())
	waitFor(t, notifications, notify.KindTimelineChanged)

	assert.False(t, s.HasMoreOlder(), "failed page fetch ends pagination")
	assert.Len(t, s.Messages(), 2, "cache fallback re-merges what was already loaded")

	s.RequestOlder(context.Background())
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, api.historyCalls(), 2)
}

func TestStaleFetchCompletionDiscarded(t *testing.T) {
	gate := make(chan struct{})
	api := &fakeAPI{
		gate: gate,
		results: map[int64][]pageResult{
			42: {{page: page(42, false, 100)}},
			7:  {{page: page(7, false, 200)}},
		},
	}
	s, notifications := newTestSession(t, api)

	s.OpenConversation(context.Background(), 42)
	s.OpenConversation(context.Background(), 7)

	// Complete both fetches after the switch; 42's page must not land.
	gate <- struct{}{}
	gate <- struct{}{}
	waitFor(t, notifications, notify.KindTimelineChanged)

	assert.Equal(t, int64(7), s.OpenPeerID())
	records := s.Messages()
	require.Len(t, records, 1)
	assert.Equal(t, int64(200), records[0].ID)
}

func TestSendOfflineQueuesOnly(t *testing.T) {
	s, _ := newTestSession(t, &fakeAPI{})

	require.NoError(t, s.Send(models.OutboundMessage{RecipientID: 42, Content: "hold this"}))

	pending := s.PendingMessages()
	require.Len(t, pending, 1)
	assert.NotEmpty(t, pending[0].QueueID)
	assert.NotNil(t, pending[0].QueuedAt)
}

func TestSendOnlineBypassesQueue(t *testing.T) {
	s, _ := newTestSession(t, &fakeAPI{})
	sender := newFakeSender()
	s.SetOnline(true, sender)

	require.NoError(t, s.Send(models.OutboundMessage{RecipientID: 42, Content: "  live  "}))

	sent := sender.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "live", sent[0].Content)
	assert.Equal(t, 0, s.PendingCount(), "online send never also queues")
}

func TestSendRejectsInvalidDraft(t *testing.T) {
	s, _ := newTestSession(t, &fakeAPI{})

	err := s.Send(models.OutboundMessage{RecipientID: 42})
	var verrs *models.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, 0, s.PendingCount(), "invalid drafts never reach the queue")
}

func TestSendDefaultsToOpenConversation(t *testing.T) {
	api := &fakeAPI{results: map[int64][]pageResult{
		42: {{page: page(42, false, 100)}},
	}}
	s, notifications := newTestSession(t, api)
	sender := newFakeSender()
	s.SetOnline(true, sender)
	s.OpenConversation(context.Background(), 42)
	waitFor(t, notifications, notify.KindTimelineChanged)

	require.NoError(t, s.Send(models.OutboundMessage{Content: "hi"}))

	sent := sender.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(42), sent[0].RecipientID)
}

func TestReconnectFlushesQueue(t *testing.T) {
	s, notifications := newTestSession(t, &fakeAPI{})
	require.NoError(t, s.Send(models.OutboundMessage{RecipientID: 42, Content: "one"}))
	require.NoError(t, s.Send(models.OutboundMessage{RecipientID: 42, Content: "two"}))

	sender := newFakeSender()
	s.SetOnline(true, sender)

	n := waitFor(t, notifications, notify.KindQueueFlushed)
	assert.Equal(t, 2, n.Count)

	sent := sender.sentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, "one", sent[0].Content)
	assert.Equal(t, "two", sent[1].Content)
	assert.Equal(t, 0, s.PendingCount())
}

func TestReconnectRejoinsOpenConversation(t *testing.T) {
	api := &fakeAPI{results: map[int64][]pageResult{
		42: {{page: page(42, false, 100)}},
	}}
	s, notifications := newTestSession(t, api)
	s.OpenConversation(context.Background(), 42)
	waitFor(t, notifications, notify.KindTimelineChanged)

	sender := newFakeSender()
	s.SetOnline(true, sender)
	assert.Equal(t, []int64{42}, sender.joined)
}

func TestConnectivityNotifications(t *testing.T) {
	s, notifications := newTestSession(t, &fakeAPI{})

	s.SetOnline(true, newFakeSender())
	n := waitFor(t, notifications, notify.KindConnectivityChanged)
	assert.True(t, n.Online)
	assert.True(t, s.Online())

	s.SetOnline(false, nil)
	n = waitFor(t, notifications, notify.KindConnectivityChanged)
	assert.False(t, n.Online)
	assert.False(t, s.Online())
}

func openWithPage(t *testing.T, s *Session, notifications chan notify.Notification, peerID int64) {
	t.Helper()
	s.OpenConversation(context.Background(), peerID)
	waitFor(t, notifications, notify.KindTimelineChanged)
}

func TestEditConstraints(t *testing.T) {
	api := &fakeAPI{results: map[int64][]pageResult{
		42: {{page: page(42, false, 100)}},
	}}
	s, notifications := newTestSession(t, api)
	sender := newFakeSender()
	s.SetOnline(true, sender)
	openWithPage(t, s, notifications, 42)

	// Message 100 was sent by the peer, not the local user.
	err := s.Edit(100, "rewrite")
	var verrs *models.ValidationErrors
	require.ErrorAs(t, err, &verrs)

	assert.ErrorIs(t, s.Edit(999, "x"), ErrUnknownMessage)
}

func TestEditOffline(t *testing.T) {
	api := &fakeAPI{results: map[int64][]pageResult{
		42: {{page: &transport.HistoryPage{Messages: []models.MessageRecord{{
			ID: 100, ConversationPeerID: 42, SenderID: testLocalUser, Content: "mine",
			Status: models.StatusSent, CreatedAt: time.Now().UTC(),
		}}}}},
	}}
	s, notifications := newTestSession(t, api)
	openWithPage(t, s, notifications, 42)

	assert.ErrorIs(t, s.Edit(100, "later"), ErrOffline)
}

func TestDeleteSelectedBatches(t *testing.T) {
	api := &fakeAPI{results: map[int64][]pageResult{
		42: {{page: page(42, false, 100, 101, 102)}},
	}}
	s, notifications := newTestSession(t, api)
	sender := newFakeSender()
	s.SetOnline(true, sender)
	openWithPage(t, s, notifications, 42)

	s.StartSelection(100)
	s.ToggleSelect(102)
	require.Equal(t, 2, s.SelectionCount())

	require.NoError(t, s.DeleteSelected(models.DeleteModeEveryone))

	require.Len(t, sender.deletes, 2)
	assert.Equal(t, deleteCall{id: 100, mode: models.DeleteModeEveryone}, sender.deletes[0])
	assert.Equal(t, deleteCall{id: 102, mode: models.DeleteModeEveryone}, sender.deletes[1])
	assert.False(t, s.SelectionActive(), "snapshot exits selection mode")
}

func TestForwardPreservesMediaAndProvenance(t *testing.T) {
	rec := models.MessageRecord{
		ID: 100, ConversationPeerID: 42, SenderID: 42, Content: "look",
		Media:     &models.MediaRef{Type: models.MediaImage, URL: "https://cdn/img.png", FileName: "img.png"},
		Status:    models.StatusSent,
		CreatedAt: time.Now().UTC(),
	}
	api := &fakeAPI{results: map[int64][]pageResult{
		42: {{page: &transport.HistoryPage{Messages: []models.MessageRecord{rec}}}},
	}}
	s, notifications := newTestSession(t, api)
	sender := newFakeSender()
	s.SetOnline(true, sender)
	openWithPage(t, s, notifications, 42)

	require.NoError(t, s.Forward(7, []int64{100}))

	sent := sender.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(7), sent[0].RecipientID)
	assert.Equal(t, int64(100), sent[0].ForwardedFromID)
	assert.Equal(t, "https://cdn/img.png", sent[0].MediaURL)
	assert.Equal(t, models.MediaImage, sent[0].MediaType)
}

func TestForwardSkipsDeletedMessages(t *testing.T) {
	deleted := models.MessageRecord{ID: 100, ConversationPeerID: 42, SenderID: 42, Status: models.StatusSent, CreatedAt: time.Now().UTC()}
	deleted.Tombstone(time.Now())
	api := &fakeAPI{results: map[int64][]pageResult{
		42: {{page: &transport.HistoryPage{Messages: []models.MessageRecord{deleted}}}},
	}}
	s, notifications := newTestSession(t, api)
	sender := newFakeSender()
	s.SetOnline(true, sender)
	openWithPage(t, s, notifications, 42)

	require.NoError(t, s.Forward(7, []int64{100}))
	assert.Empty(t, sender.sentMessages())
}

func TestForwardOfflineQueues(t *testing.T) {
	api := &fakeAPI{results: map[int64][]pageResult{
		42: {{page: page(42, false, 100)}},
	}}
	s, notifications := newTestSession(t, api)
	openWithPage(t, s, notifications, 42)

	require.NoError(t, s.Forward(7, []int64{100}))
	assert.Equal(t, 1, s.PendingCount())
}

func TestReplyTargetAttachesToNextSend(t *testing.T) {
	api := &fakeAPI{results: map[int64][]pageResult{
		42: {{page: page(42, false, 100)}},
	}}
	s, notifications := newTestSession(t, api)
	sender := newFakeSender()
	s.SetOnline(true, sender)
	openWithPage(t, s, notifications, 42)

	require.NoError(t, s.SetReplyTarget(100))
	require.NoError(t, s.Send(models.OutboundMessage{Content: "replying"}))
	require.NoError(t, s.Send(models.OutboundMessage{Content: "fresh"}))

	sent := sender.sentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, int64(100), sent[0].ReplyToID)
	assert.Zero(t, sent[1].ReplyToID, "reply target is one-shot")
}

func TestNotifyTypingDebounces(t *testing.T) {
	api := &fakeAPI{results: map[int64][]pageResult{
		42: {{page: page(42, false, 100)}},
	}}
	s, notifications := newTestSession(t, api)
	sender := newFakeSender()
	s.SetOnline(true, sender)
	openWithPage(t, s, notifications, 42)

	// A burst of keystrokes emits a single typing-on.
	s.NotifyTyping()
	s.NotifyTyping()
	s.NotifyTyping()

	calls := sender.typingCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, typingCall{peerID: 42, on: true}, calls[0])

	// The off signal follows after one quiet window.
	deadline := time.Now().Add(2 * time.Second)
	for len(sender.typingCalls()) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("typing-off never sent")
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, typingCall{peerID: 42, on: false}, sender.typingCalls()[1])
}

func TestSendStopsTypingSignal(t *testing.T) {
	api := &fakeAPI{results: map[int64][]pageResult{
		42: {{page: page(42, false, 100)}},
	}}
	s, notifications := newTestSession(t, api)
	sender := newFakeSender()
	s.SetOnline(true, sender)
	openWithPage(t, s, notifications, 42)

	s.NotifyTyping()
	require.NoError(t, s.Send(models.OutboundMessage{Content: "done"}))

	calls := sender.typingCalls()
	require.Len(t, calls, 2)
	assert.False(t, calls[1].on, "sending ends the typing indicator immediately")
}

func TestRefreshContacts(t *testing.T) {
	api := &fakeAPI{contacts: []models.Conversation{{ID: 42, DisplayName: "bea"}, {ID: 7, DisplayName: "cal"}}}
	s, notifications := newTestSession(t, api)

	require.NoError(t, s.RefreshContacts(context.Background()))
	waitFor(t, notifications, notify.KindRosterChanged)

	contacts := s.Conversations()
	require.Len(t, contacts, 2)
	assert.Equal(t, "bea", contacts[0].DisplayName)
}

func TestInboundEventsFlowThroughReconciler(t *testing.T) {
	api := &fakeAPI{results: map[int64][]pageResult{
		42: {{page: page(42, false, 100)}},
	}}
	s, notifications := newTestSession(t, api)
	openWithPage(t, s, notifications, 42)

	s.HandleEvent(models.NewMessageEvent{Record: models.MessageRecord{
		ID: 101, ConversationPeerID: 42, SenderID: 42, Content: "live",
		Status: models.StatusSent, CreatedAt: time.Now().UTC(),
	}})

	records := s.Messages()
	require.Len(t, records, 2)
	assert.Equal(t, int64(101), records[1].ID)
}
