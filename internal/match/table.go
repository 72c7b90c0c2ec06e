package match

import "sync"

// TableSize is the number of concurrent match slots the table supports,
// matching the match id range [0,64) used in MATCH_JOIN/NEW_MATCH packets.
const TableSize = 64

// Table is the registry of all live matches, keyed by a small integer id
// assigned from the first free slot.
type Table struct {
	mu      sync.Mutex
	matches [TableSize]*Match
}

// NewTable returns an empty match table.
func NewTable() *Table {
	return &Table{}
}

// Create assigns m the first free id and registers it. Returns false if the
// table is full.
func (t *Table) Create(build func(id int32) *Match) (*Match, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.matches {
		if t.matches[i] == nil {
			m := build(int32(i))
			t.matches[i] = m
			return m, true
		}
	}
	return nil, false
}

// Get looks up a match by id.
func (t *Table) Get(id int32) (*Match, bool) {
	if id < 0 || id >= TableSize {
		return nil, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.matches[id]
	return m, m != nil
}

// Remove drops a match from the table, e.g. once its last player leaves.
func (t *Table) Remove(id int32) {
	if id < 0 || id >= TableSize {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.matches[id] = nil
}

// All returns every live match, id-ordered.
func (t *Table) All() []*Match {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Match, 0, TableSize)
	for _, m := range t.matches {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}
