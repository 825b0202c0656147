package timeline

import "sort"

// Selection tracks the transient multi-select state over message ids
// for batch forward and delete. It is either inactive or active with a
// non-empty set; removing the last id reverts to inactive on its own.
type Selection struct {
	active bool
	ids    map[int64]struct{}
}

// NewSelection returns an inactive selection.
func NewSelection() *Selection {
	return &Selection{ids: make(map[int64]struct{})}
}

// Active reports whether selection mode is on.
func (s *Selection) Active() bool { return s.active }

// Count returns the number of selected ids.
func (s *Selection) Count() int { return len(s.ids) }

// Contains reports whether id is selected.
func (s *Selection) Contains(id int64) bool {
	_, ok := s.ids[id]
	return ok
}

// Start enters selection mode seeded with one id.
func (s *Selection) Start(id int64) {
	s.active = true
	s.ids = map[int64]struct{}{id: {}}
}

// Toggle flips membership of id. When removal empties the set,
// selection mode exits automatically.
func (s *Selection) Toggle(id int64) {
	if !s.active {
		s.Start(id)
		return
	}
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		if len(s.ids) == 0 {
			s.Cancel()
		}
		return
	}
	s.ids[id] = struct{}{}
}

// Drop removes id without toggling, used when a message is hard
// removed while selected. Emptying the set exits selection mode.
func (s *Selection) Drop(id int64) {
	if !s.active {
		return
	}
	delete(s.ids, id)
	if len(s.ids) == 0 {
		s.Cancel()
	}
}

// Cancel clears the set and reverts to inactive unconditionally.
func (s *Selection) Cancel() {
	s.active = false
	s.ids = make(map[int64]struct{})
}

// Snapshot returns the selected ids in ascending order and forces the
// transition to inactive: batch actions operate over the snapshot
// taken at invocation time.
func (s *Selection) Snapshot() []int64 {
	out := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	s.Cancel()
	return out
}
