// Package cache persists a bounded per-conversation message snapshot
// for instant reload and offline viewing.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pulsechat/pulsechat/internal/logging"
	"github.com/pulsechat/pulsechat/internal/models"
	"github.com/pulsechat/pulsechat/internal/store"
)

// DefaultSnapshotLimit bounds how many of the most recent messages are
// kept per conversation.
const DefaultSnapshotLimit = 200

// ConversationCache stores one snapshot per peer, keyed by the local
// user so switching accounts on the same machine never mixes state.
// It is a fallback for when live fetches fail, never a source of truth
// when the network succeeds.
type ConversationCache struct {
	kv     store.KV
	userID int64
	limit  int
	log    zerolog.Logger
}

// New creates a cache scoped to the given local user.
func New(kv store.KV, userID int64, limit int) *ConversationCache {
	if limit <= 0 {
		limit = DefaultSnapshotLimit
	}
	return &ConversationCache{
		kv:     kv,
		userID: userID,
		limit:  limit,
		log:    logging.Component("cache"),
	}
}

func (c *ConversationCache) key(peerID int64) string {
	return fmt.Sprintf("cache:%d:%d", c.userID, peerID)
}

// Save persists the most recent bounded suffix of records, replacing
// any prior snapshot for the peer. Persistence failures are logged and
// swallowed: a failed write leaves the previous snapshot intact.
func (c *ConversationCache) Save(peerID int64, records []models.MessageRecord) {
	if len(records) > c.limit {
		records = records[len(records)-c.limit:]
	}

	data, err := json.Marshal(records)
	if err != nil {
		c.log.Warn().Err(err).Int64("peer_id", peerID).Msg("failed to encode snapshot")
		return
	}
	if err := c.kv.Set(c.key(peerID), data); err != nil {
		c.log.Warn().Err(err).Int64("peer_id", peerID).Msg("failed to persist snapshot")
	}
}

// Load returns the last persisted snapshot for the peer, or an empty
// sequence. A corrupt snapshot is treated as empty, never as an error.
func (c *ConversationCache) Load(peerID int64) []models.MessageRecord {
	data, err := c.kv.Get(c.key(peerID))
	if err != nil {
		if !errors.Is(err, store.ErrKeyNotFound) {
			c.log.Warn().Err(err).Int64("peer_id", peerID).Msg("failed to read snapshot")
		}
		return nil
	}

	var records []models.MessageRecord
	if err := json.Unmarshal(data, &records); err != nil {
		c.log.Warn().Err(err).Int64("peer_id", peerID).Msg("discarding corrupt snapshot")
		return nil
	}
	return records
}
