// Package table implements the open-addressed hash table used throughout
// Blade: it backs dict storage, module globals, class method/static tables,
// and the string intern set. A single table type serves all of these so the
// probing, growth, and tombstone-deletion contract only has to be gotten
// right once.
//
// Contract (see spec §4.B):
//   - load factor stays at or below 0.75; crossing it grows to the next
//     power of two and rehashes every live entry
//   - deletions write a tombstone rather than an empty slot, so later
//     probe sequences that passed through this slot still terminate
//     correctly
//   - callers supply the hash for a key (Blade's value hashing lives in
//     pkg/value); this package only does the probing and storage
package table

const (
	initialCapacity = 8
	maxLoadFactor   = 0.75
)

// Entry is one slot in the table. A zero-value Entry is empty; Tombstone
// distinguishes "deleted" from "never used" during probing.
type Entry struct {
	Key       interface{}
	Value     interface{}
	Hash      uint64
	used      bool
	Tombstone bool
}

// Table is an open-addressed, linearly-probed hash table keyed by an
// arbitrary comparable Go value plus an externally supplied hash.
type Table struct {
	entries []Entry
	count   int // live entries (excludes tombstones)
	live    int // live entries + tombstones, used to decide when to grow
}

// New creates an empty table.
func New() *Table {
	return &Table{}
}

// Len returns the number of live (non-deleted) entries.
func (t *Table) Len() int {
	return t.count
}

// Get looks up key (with precomputed hash) and returns its value.
func (t *Table) Get(key interface{}, hash uint64) (interface{}, bool) {
	if len(t.entries) == 0 {
		return nil, false
	}
	idx := t.findEntry(t.entries, key, hash)
	e := &t.entries[idx]
	if !e.used || e.Tombstone {
		return nil, false
	}
	return e.Value, true
}

// Has reports whether key is present.
func (t *Table) Has(key interface{}, hash uint64) bool {
	_, ok := t.Get(key, hash)
	return ok
}

// Set inserts or updates key -> value. Returns true if this created a new
// entry (key was not previously present).
func (t *Table) Set(key interface{}, hash uint64, value interface{}) bool {
	if float64(t.live+1) > float64(len(t.entries))*maxLoadFactor {
		t.grow()
	}
	idx := t.findEntry(t.entries, key, hash)
	e := &t.entries[idx]
	isNew := !e.used || e.Tombstone
	if isNew && !e.used {
		t.live++
	}
	if isNew {
		t.count++
	}
	e.Key = key
	e.Value = value
	e.Hash = hash
	e.used = true
	e.Tombstone = false
	return isNew
}

// Delete removes key, leaving a tombstone so later probes still find
// entries that were inserted after a collision with this slot.
func (t *Table) Delete(key interface{}, hash uint64) bool {
	if len(t.entries) == 0 {
		return false
	}
	idx := t.findEntry(t.entries, key, hash)
	e := &t.entries[idx]
	if !e.used || e.Tombstone {
		return false
	}
	e.Tombstone = true
	e.Value = nil
	t.count--
	return true
}

// Each calls fn for every live entry, in storage (not insertion) order.
// Callers needing insertion order (dict iteration) maintain their own key
// sequence alongside the table; see value.Dict.
func (t *Table) Each(fn func(key interface{}, value interface{})) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.used && !e.Tombstone {
			fn(e.Key, e.Value)
		}
	}
}

// findEntry walks the probe sequence for key starting at hash, returning the
// index of either the existing entry or the first empty/tombstone slot
// suitable for insertion. The caller must ensure entries is non-empty.
func (t *Table) findEntry(entries []Entry, key interface{}, hash uint64) int {
	capacity := uint64(len(entries))
	idx := hash % capacity
	var tombstone = -1
	for {
		e := &entries[idx]
		if !e.used {
			if tombstone != -1 {
				return tombstone
			}
			return int(idx)
		}
		if e.Tombstone {
			if tombstone == -1 {
				tombstone = int(idx)
			}
		} else if e.Hash == hash && keysEqual(e.Key, key) {
			return int(idx)
		}
		idx = (idx + 1) % capacity
	}
}

func keysEqual(a, b interface{}) bool {
	defer func() { recover() }() //nolint:errcheck // guards against unhashable dynamic types
	return a == b
}

// grow doubles capacity (or allocates the initial capacity) and rehashes
// every live entry into the fresh array, dropping tombstones.
func (t *Table) grow() {
	newCap := initialCapacity
	if len(t.entries) > 0 {
		newCap = len(t.entries) * 2
	}
	newEntries := make([]Entry, newCap)
	t.count = 0
	t.live = 0
	old := t.entries
	t.entries = newEntries
	for _, e := range old {
		if e.used && !e.Tombstone {
			t.Set(e.Key, e.Hash, e.Value)
		}
	}
}
