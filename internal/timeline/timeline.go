// Package timeline maintains the in-memory ordered message index for
// the one currently open conversation.
package timeline

import (
	"sort"

	"github.com/pulsechat/pulsechat/internal/models"
)

// Timeline is an ordered sequence of MessageRecords for exactly one
// open conversation, plus the backward-pagination cursor. Records are
// always kept sorted by ascending id; id order coincides with creation
// order so no timestamp comparison is needed.
//
// All methods are synchronous and must be called from the single
// session loop; the type carries no locking.
type Timeline struct {
	peerID       int64
	records      []models.MessageRecord
	index        map[int64]int
	oldestLoaded int64 // 0 = nothing materialized yet
	hasMoreOlder bool
}

// New returns an empty timeline with no open conversation.
func New() *Timeline {
	return &Timeline{index: make(map[int64]int), hasMoreOlder: true}
}

// OpenFor discards any prior state and rebuilds the timeline for the
// given peer: empty record set, reset cursor, more-history assumed.
func (t *Timeline) OpenFor(peerID int64) {
	t.peerID = peerID
	t.records = nil
	t.index = make(map[int64]int)
	t.oldestLoaded = 0
	t.hasMoreOlder = true
}

// PeerID returns the peer of the open conversation, 0 if none.
func (t *Timeline) PeerID() int64 { return t.peerID }

// Len returns the number of materialized records.
func (t *Timeline) Len() int { return len(t.records) }

// HasMoreOlder reports whether older history may still be fetched.
func (t *Timeline) HasMoreOlder() bool { return t.hasMoreOlder }

// OldestLoadedID returns the lowest materialized id, 0 when empty.
func (t *Timeline) OldestLoadedID() int64 { return t.oldestLoaded }

// MergePage merges one fetched history page. Each record is inserted
// by id, updating in place when already present (last write wins). An
// empty page is a no-op beyond the flag update.
func (t *Timeline) MergePage(records []models.MessageRecord, hasMoreOlder bool) {
	for i := range records {
		t.upsert(records[i])
	}
	t.hasMoreOlder = hasMoreOlder
}

// ApplyLive inserts or updates a single record arriving on the live
// channel. Live messages are normally newer than anything loaded, but
// out-of-order delivery is tolerated: the cursor still tracks the
// minimum id seen.
func (t *Timeline) ApplyLive(record models.MessageRecord) {
	t.upsert(record)
}

// Patch applies mutator to the record with the given id. It returns
// false without error when the id is not materialized locally: an
// event may legitimately arrive for a message this client has not yet
// paged in.
func (t *Timeline) Patch(id int64, mutator func(*models.MessageRecord)) bool {
	pos, ok := t.index[id]
	if !ok {
		return false
	}
	mutator(&t.records[pos])
	return true
}

// Get returns a copy of the record with the given id.
func (t *Timeline) Get(id int64) (models.MessageRecord, bool) {
	pos, ok := t.index[id]
	if !ok {
		return models.MessageRecord{}, false
	}
	return t.records[pos].Clone(), true
}

// Remove drops the record with the given id entirely. Unknown ids are
// a no-op.
func (t *Timeline) Remove(id int64) bool {
	pos, ok := t.index[id]
	if !ok {
		return false
	}
	t.records = append(t.records[:pos], t.records[pos+1:]...)
	delete(t.index, id)
	for i := pos; i < len(t.records); i++ {
		t.index[t.records[i].ID] = i
	}
	return true
}

// Records returns the materialized records in ascending id order. The
// returned slice is a copy; mutating it does not touch the timeline.
func (t *Timeline) Records() []models.MessageRecord {
	out := make([]models.MessageRecord, len(t.records))
	for i := range t.records {
		out[i] = t.records[i].Clone()
	}
	return out
}

func (t *Timeline) upsert(record models.MessageRecord) {
	if record.ID <= 0 {
		return
	}

	if pos, ok := t.index[record.ID]; ok {
		t.records[pos] = record
	} else {
		pos = sort.Search(len(t.records), func(i int) bool {
			return t.records[i].ID >= record.ID
		})
		t.records = append(t.records, models.MessageRecord{})
		copy(t.records[pos+1:], t.records[pos:])
		t.records[pos] = record
		for i := pos; i < len(t.records); i++ {
			t.index[t.records[i].ID] = i
		}
	}

	if t.oldestLoaded == 0 || record.ID < t.oldestLoaded {
		t.oldestLoaded = record.ID
	}
}
