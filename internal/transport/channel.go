package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/pulsechat/pulsechat/internal/logging"
	"github.com/pulsechat/pulsechat/internal/models"
)

const (
	defaultReconnectInterval = 2 * time.Second
	writeDeadline            = 5 * time.Second
)

// EventFunc receives each validated inbound event.
type EventFunc func(models.Event)

// StateFunc receives connectivity transitions.
type StateFunc func(online bool)

// Channel is one live websocket connection to the server. Outbound
// named messages may be sent from any goroutine; inbound frames are
// decoded on the read loop and handed to the event callback.
type Channel struct {
	conn        *websocket.Conn
	localUserID int64
	log         zerolog.Logger

	writeMu sync.Mutex
}

// Dial opens a websocket connection to wsURL.
func Dial(ctx context.Context, wsURL, authToken string, localUserID int64) (*Channel, error) {
	header := map[string][]string{}
	if authToken != "" {
		header["Authorization"] = []string{"Bearer " + authToken}
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	return &Channel{
		conn:        conn,
		localUserID: localUserID,
		log:         logging.Component("channel"),
	}, nil
}

// ReadLoop decodes inbound frames until the connection dies. Frames
// outside the event union are dropped with a debug log and never reach
// the caller.
func (ch *Channel) ReadLoop(onEvent EventFunc) error {
	for {
		_, data, err := ch.conn.ReadMessage()
		if err != nil {
			return err
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			ch.log.Debug().Err(err).Msg("dropping malformed frame")
			continue
		}

		event, err := DecodeEvent(ch.localUserID, f.Event, f.Data)
		if err != nil {
			ch.log.Debug().Err(err).Str("event", f.Event).Msg("dropping frame")
			continue
		}
		onEvent(event)
	}
}

// Close closes the connection.
func (ch *Channel) Close() error {
	return ch.conn.Close()
}

func (ch *Channel) send(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}

	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	ch.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return ch.conn.WriteJSON(frame{Event: event, Data: raw})
}

// JoinChat announces which conversation is open; the server marks the
// peer's messages seen in response.
func (ch *Channel) JoinChat(peerID int64) error {
	return ch.send("join_chat", map[string]any{"peer_id": peerID})
}

// SendMessage issues one live send.
func (ch *Channel) SendMessage(m models.OutboundMessage) error {
	return ch.send("send_message", encodeOutbound(m))
}

// EditMessage replaces a message's content.
func (ch *Channel) EditMessage(id int64, content string) error {
	return ch.send("edit_message", map[string]any{"message_id": id, "content": content})
}

// DeleteMessage deletes for the requester only or for everyone.
func (ch *Channel) DeleteMessage(id int64, mode models.DeleteMode) error {
	wireMode := "everyone"
	if mode == models.DeleteModeSelf {
		wireMode = "me"
	}
	return ch.send("delete_message", map[string]any{"message_id": id, "mode": wireMode})
}

// ReactMessage toggles the local user's reaction on a message. An
// empty emoji clears it.
func (ch *Channel) ReactMessage(id int64, emoji string) error {
	return ch.send("react_message", map[string]any{"message_id": id, "emoji": emoji})
}

// Typing reports the local user's typing state to the peer.
func (ch *Channel) Typing(recipientID int64, isTyping bool) error {
	return ch.send("typing", map[string]any{"recipient_id": recipientID, "is_typing": isTyping})
}

// Connector maintains a channel across disconnects, redialing at a
// fixed interval and reporting connectivity transitions.
type Connector struct {
	wsURL       string
	authToken   string
	localUserID int64
	interval    time.Duration
	log         zerolog.Logger

	mu      sync.Mutex
	current *Channel
}

// NewConnector creates a connector for the given websocket endpoint.
func NewConnector(wsURL, authToken string, localUserID int64, interval time.Duration) *Connector {
	if interval <= 0 {
		interval = defaultReconnectInterval
	}
	return &Connector{
		wsURL:       wsURL,
		authToken:   authToken,
		localUserID: localUserID,
		interval:    interval,
		log:         logging.Component("connector"),
	}
}

// Channel returns the live channel, nil while disconnected.
func (c *Connector) Channel() *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Maintain dials and re-dials until ctx is canceled. onState fires on
// every connectivity transition, onEvent for every inbound event.
func (c *Connector) Maintain(ctx context.Context, onEvent EventFunc, onState StateFunc) {
	for {
		ch, err := Dial(ctx, c.wsURL, c.authToken, c.localUserID)
		if err != nil {
			c.log.Debug().Err(err).Str("url", logging.RedactURL(c.wsURL)).Msg("dial failed")
			if !sleepCtx(ctx, c.interval) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.current = ch
		c.mu.Unlock()
		onState(true)

		err = ch.ReadLoop(onEvent)
		ch.Close()

		c.mu.Lock()
		c.current = nil
		c.mu.Unlock()
		onState(false)

		if ctx.Err() != nil {
			return
		}
		c.log.Debug().Err(err).Msg("connection lost, reconnecting")
		if !sleepCtx(ctx, c.interval) {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
