package timeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pulsechat/pulsechat/internal/models"
)

func record(id int64, content string) models.MessageRecord {
	return models.MessageRecord{ID: id, ConversationPeerID: 42, Content: content, Status: models.StatusSent}
}

func ids(t *Timeline) []int64 {
	records := t.Records()
	out := make([]int64, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestMergePageNewestFirst(t *testing.T) {
	tl := New()
	tl.OpenFor(42)

	tl.MergePage([]models.MessageRecord{record(100, "b"), record(99, "a")}, true)

	require.Equal(t, []int64{99, 100}, ids(tl))
	require.Equal(t, int64(99), tl.OldestLoadedID())
	require.True(t, tl.HasMoreOlder())
}

func TestMergePageLastWriteWins(t *testing.T) {
	tl := New()
	tl.OpenFor(42)

	tl.MergePage([]models.MessageRecord{record(100, "original")}, true)
	tl.MergePage([]models.MessageRecord{record(100, "replacement")}, true)

	require.Equal(t, 1, tl.Len())
	got, ok := tl.Get(100)
	require.True(t, ok)
	require.Equal(t, "replacement", got.Content)
}

func TestMergeEmptyPageOnlyUpdatesFlag(t *testing.T) {
	tl := New()
	tl.OpenFor(42)
	tl.MergePage([]models.MessageRecord{record(100, "x")}, true)

	tl.MergePage(nil, false)

	require.Equal(t, 1, tl.Len())
	require.False(t, tl.HasMoreOlder())
	require.Equal(t, int64(100), tl.OldestLoadedID())
}

func TestApplyLiveInsertsInOrder(t *testing.T) {
	tl := New()
	tl.OpenFor(42)
	tl.MergePage([]models.MessageRecord{record(100, "b"), record(99, "a")}, true)

	tl.ApplyLive(record(101, "c"))

	require.Equal(t, []int64{99, 100, 101}, ids(tl))
}

func TestApplyLiveToleratesOutOfOrderDelivery(t *testing.T) {
	tl := New()
	tl.OpenFor(42)
	tl.MergePage([]models.MessageRecord{record(100, "b")}, true)

	// Defensive: a live message older than the loaded window still
	// lands in order and drags the cursor down.
	tl.ApplyLive(record(50, "late"))

	require.Equal(t, []int64{50, 100}, ids(tl))
	require.Equal(t, int64(50), tl.OldestLoadedID())
}

func TestReplayYieldsOneRecordPerID(t *testing.T) {
	tl := New()
	tl.OpenFor(42)

	tl.MergePage([]models.MessageRecord{record(100, "v1"), record(99, "v1")}, true)
	tl.ApplyLive(record(100, "v2"))
	tl.MergePage([]models.MessageRecord{record(99, "v2"), record(100, "v3")}, true)

	require.Equal(t, []int64{99, 100}, ids(tl))
	got, _ := tl.Get(100)
	require.Equal(t, "v3", got.Content)
	got, _ = tl.Get(99)
	require.Equal(t, "v2", got.Content)
}

func TestPatchUnknownIDIsNoOp(t *testing.T) {
	tl := New()
	tl.OpenFor(42)

	called := false
	require.False(t, tl.Patch(777, func(*models.MessageRecord) { called = true }))
	require.False(t, called)
}

func TestPatchMutatesInPlace(t *testing.T) {
	tl := New()
	tl.OpenFor(42)
	tl.MergePage([]models.MessageRecord{record(100, "x")}, true)

	require.True(t, tl.Patch(100, func(m *models.MessageRecord) {
		m.AdvanceStatus(models.StatusSeen)
	}))

	got, _ := tl.Get(100)
	require.Equal(t, models.StatusSeen, got.Status)
}

func TestRemove(t *testing.T) {
	tl := New()
	tl.OpenFor(42)
	tl.MergePage([]models.MessageRecord{record(99, "a"), record(100, "b"), record(101, "c")}, true)

	require.True(t, tl.Remove(100))
	require.Equal(t, []int64{99, 101}, ids(tl))

	// Index stays coherent after the shift.
	require.True(t, tl.Patch(101, func(m *models.MessageRecord) { m.Content = "patched" }))
	got, _ := tl.Get(101)
	require.Equal(t, "patched", got.Content)

	require.False(t, tl.Remove(100))
}

func TestOpenForResetsEverything(t *testing.T) {
	tl := New()
	tl.OpenFor(42)
	tl.MergePage([]models.MessageRecord{record(100, "x")}, false)

	tl.OpenFor(7)

	require.Equal(t, int64(7), tl.PeerID())
	require.Zero(t, tl.Len())
	require.Zero(t, tl.OldestLoadedID())
	require.True(t, tl.HasMoreOlder())
}

func TestRecordsReturnsCopies(t *testing.T) {
	tl := New()
	tl.OpenFor(42)
	tl.MergePage([]models.MessageRecord{record(100, "x")}, true)

	out := tl.Records()
	out[0].Content = "mutated"

	got, _ := tl.Get(100)
	require.Equal(t, "x", got.Content)
}
