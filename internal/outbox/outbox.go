// Package outbox holds locally-created sends until connectivity allows
// them to be issued.
package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pulsechat/pulsechat/internal/logging"
	"github.com/pulsechat/pulsechat/internal/models"
	"github.com/pulsechat/pulsechat/internal/store"
)

// Queue is the durable outbound queue for one local user. Entries are
// persisted immediately on enqueue so a queued send survives a process
// restart, and drained in insertion order on flush.
//
// The queue clears unconditionally after a flush attempt rather than
// waiting for delivery confirmation: at-least-once duplication is the
// accepted trade-off against unbounded local growth, with server-side
// dedup assumed.
type Queue struct {
	kv      store.KV
	userID  int64
	entries []models.OutboundMessage
	log     zerolog.Logger
}

// SendFunc issues one live send. Flush ignores its error: by the time
// the queue is draining, connectivity has been declared available and
// the entry has had its one re-submission.
type SendFunc func(models.OutboundMessage)

// Open loads the persisted queue for the given local user. A corrupt
// or unreadable queue starts empty.
func Open(kv store.KV, userID int64) *Queue {
	q := &Queue{
		kv:     kv,
		userID: userID,
		log:    logging.Component("outbox"),
	}

	data, err := kv.Get(q.key())
	if err != nil {
		if !errors.Is(err, store.ErrKeyNotFound) {
			q.log.Warn().Err(err).Msg("failed to read outbound queue, starting empty")
		}
		return q
	}
	if err := json.Unmarshal(data, &q.entries); err != nil {
		q.log.Warn().Err(err).Msg("discarding corrupt outbound queue")
		q.entries = nil
	}
	return q
}

func (q *Queue) key() string {
	return fmt.Sprintf("queue:%d", q.userID)
}

// Enqueue appends the payload with a capture timestamp and persists the
// queue. Persistence failures degrade to in-memory queueing.
func (q *Queue) Enqueue(payload models.OutboundMessage) {
	if payload.QueueID == "" {
		payload.QueueID = uuid.New().String()
	}
	now := time.Now().UTC()
	payload.QueuedAt = &now

	q.entries = append(q.entries, payload)
	q.persist()
	q.log.Debug().Str("queue_id", payload.QueueID).Int64("recipient_id", payload.RecipientID).Msg("send queued")
}

// Flush re-issues every queued entry in original insertion order and
// clears the queue unconditionally.
func (q *Queue) Flush(send SendFunc) int {
	if len(q.entries) == 0 {
		return 0
	}

	flushed := len(q.entries)
	for _, entry := range q.entries {
		send(entry)
	}

	q.entries = nil
	q.persist()
	q.log.Info().Int("count", flushed).Msg("outbound queue flushed")
	return flushed
}

// Pending returns a copy of the queued entries in insertion order.
func (q *Queue) Pending() []models.OutboundMessage {
	out := make([]models.OutboundMessage, len(q.entries))
	copy(out, q.entries)
	return out
}

// Len returns the number of queued entries.
func (q *Queue) Len() int { return len(q.entries) }

func (q *Queue) persist() {
	if len(q.entries) == 0 {
		if err := q.kv.Delete(q.key()); err != nil {
			q.log.Warn().Err(err).Msg("failed to clear persisted queue")
		}
		return
	}

	data, err := json.Marshal(q.entries)
	if err != nil {
		q.log.Warn().Err(err).Msg("failed to encode outbound queue")
		return
	}
	if err := q.kv.Set(q.key(), data); err != nil {
		q.log.Warn().Err(err).Msg("failed to persist outbound queue")
	}
}
