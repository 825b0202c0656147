package reconcile

import (
	"sync"
	"time"

	"github.com/pulsechat/pulsechat/internal/notify"
)

// DefaultTypingWindow is how long a typing indicator stays lit without
// a refresh. Matches the sender-side keystroke debounce so a stream of
// typing events keeps the indicator on continuously.
const DefaultTypingWindow = 900 * time.Millisecond

// TypingIndicator tracks the transient "peer is typing" state for the
// open conversation. Indicators expire on their own: the peer's client
// may disconnect mid-keystroke and never send the off event.
type TypingIndicator struct {
	bus    *notify.Bus
	window time.Duration

	mu     sync.Mutex
	peerID int64
	active bool
	timer  *time.Timer
}

// NewTypingIndicator creates an indicator publishing to bus. A zero
// window selects DefaultTypingWindow.
func NewTypingIndicator(bus *notify.Bus, window time.Duration) *TypingIndicator {
	if window <= 0 {
		window = DefaultTypingWindow
	}
	return &TypingIndicator{bus: bus, window: window}
}

// Set records a typing signal from peerID. Turning the indicator on
// arms (or re-arms) the expiry timer; transitions publish
// KindTypingChanged.
func (t *TypingIndicator) Set(peerID int64, typing bool) {
	t.mu.Lock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}

	changed := t.active != typing || t.peerID != peerID
	t.peerID = peerID
	t.active = typing
	if typing {
		t.timer = time.AfterFunc(t.window, func() { t.expire(peerID) })
	}
	t.mu.Unlock()

	if changed {
		t.bus.Publish(notify.Notification{Kind: notify.KindTypingChanged, PeerID: peerID, Online: typing})
	}
}

// Active reports whether peerID is currently typing.
func (t *TypingIndicator) Active(peerID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active && t.peerID == peerID
}

// Stop clears the indicator without publishing, for conversation
// switches where the old peer's state is simply irrelevant.
func (t *TypingIndicator) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.active = false
	t.peerID = 0
}

func (t *TypingIndicator) expire(peerID int64) {
	t.mu.Lock()
	if !t.active || t.peerID != peerID {
		t.mu.Unlock()
		return
	}
	t.active = false
	t.timer = nil
	t.mu.Unlock()

	t.bus.Publish(notify.Notification{Kind: notify.KindTypingChanged, PeerID: peerID, Online: false})
}
