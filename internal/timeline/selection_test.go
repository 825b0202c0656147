package timeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectionStartSeedsOneID(t *testing.T) {
	s := NewSelection()
	require.False(t, s.Active())

	s.Start(100)
	require.True(t, s.Active())
	require.Equal(t, 1, s.Count())
	require.True(t, s.Contains(100))
}

func TestSelectionToggleAddsAndRemoves(t *testing.T) {
	s := NewSelection()
	s.Start(100)
	s.Toggle(101)
	require.Equal(t, 2, s.Count())

	s.Toggle(101)
	require.Equal(t, 1, s.Count())
	require.True(t, s.Active())
}

func TestSelectionAutoExitOnLastRemoval(t *testing.T) {
	s := NewSelection()
	s.Start(100)

	s.Toggle(100)

	require.False(t, s.Active())
	require.Zero(t, s.Count())
}

func TestSelectionCancelUnconditional(t *testing.T) {
	s := NewSelection()
	s.Start(100)
	s.Toggle(101)

	s.Cancel()

	require.False(t, s.Active())
	require.Zero(t, s.Count())
}

func TestSelectionSnapshotForcesInactive(t *testing.T) {
	s := NewSelection()
	s.Start(102)
	s.Toggle(100)
	s.Toggle(101)

	got := s.Snapshot()

	require.Equal(t, []int64{100, 101, 102}, got)
	require.False(t, s.Active())
	require.Zero(t, s.Count())
}

func TestSelectionDropOnHardRemove(t *testing.T) {
	s := NewSelection()
	s.Start(100)
	s.Toggle(101)

	s.Drop(100)
	require.True(t, s.Active())
	require.False(t, s.Contains(100))

	s.Drop(101)
	require.False(t, s.Active())
}
