// Package table implements the open-addressed, linear-probing hash table
// used both as the VM's string-intern set and as its globals table.
package table

import "github.com/kristofer/vela/pkg/value"

const maxLoad = 0.75

type entry struct {
	key   *value.ObjString
	value value.Value
	// present distinguishes an empty slot (never used) from a tombstone
	// (deleted): a tombstone has key == nil and present == true.
	present bool
}

// Table is a hash map keyed on interned strings, identity-hashable via
// their precomputed FNV-1a hash.
type Table struct {
	count    int
	entries  []entry
}

// Get looks up key. The zero Value and false are returned if absent.
func (t *Table) Get(key *value.ObjString) (value.Value, bool) {
	if t.count == 0 {
		return value.Nil, false
	}
	e := t.findEntry(t.entries, key)
	if e.key == nil {
		return value.Nil, false
	}
	return e.value, true
}

// Set inserts or overwrites key -> v, growing the table first if doing so
// would exceed the load factor. Returns true if key was not previously
// present.
func (t *Table) Set(key *value.ObjString, v value.Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*maxLoad {
		t.adjustCapacity(growCapacity(len(t.entries)))
	}

	e := t.findEntry(t.entries, key)
	isNewKey := e.key == nil
	if isNewKey && !e.present {
		t.count++
	}

	e.key = key
	e.value = v
	e.present = true
	return isNewKey
}

// Delete writes a tombstone for key. Returns true if key was present.
func (t *Table) Delete(key *value.ObjString) bool {
	if t.count == 0 {
		return false
	}

	e := t.findEntry(t.entries, key)
	if e.key == nil {
		return false
	}

	e.key = nil
	e.value = value.Bool(true) // tombstone sentinel
	e.present = true
	return true
}

// AddAll copies every entry of from into t.
func (t *Table) AddAll(from *Table) {
	for i := range from.entries {
		e := &from.entries[i]
		if e.key != nil {
			t.Set(e.key, e.value)
		}
	}
}

// FindString probes for an already-interned string with the given content
// and hash, returning it without allocating a new ObjString. The VM's
// string allocator calls this before constructing a new ObjString so that
// interning is a lookup-then-maybe-insert, never a duplicate insert.
func (t *Table) FindString(s string, hash uint32) *value.ObjString {
	if t.count == 0 || len(t.entries) == 0 {
		return nil
	}

	index := hash % uint32(len(t.entries))
	for {
		e := &t.entries[index]
		if e.key == nil {
			if !e.present {
				return nil
			}
		} else if e.key.Hash == hash && e.key.Chars == s {
			return e.key
		}
		index = (index + 1) % uint32(len(t.entries))
	}
}

// RemoveWhite deletes every entry whose key is unmarked. Called by the GC
// immediately before sweep so that the intern table never outlives the
// String objects it points at (a weak-reference discipline).
func (t *Table) RemoveWhite() {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil && !e.key.IsMarked() {
			t.Delete(e.key)
		}
	}
}

// Count returns the number of occupied slots. Delete does not decrement
// it, so tombstones are counted until the next resize drops them.
func (t *Table) Count() int { return t.count }

// Walk calls fn for every live entry. Used by the GC to mark the globals
// table's keys and values as roots.
func (t *Table) Walk(fn func(key *value.ObjString, v value.Value)) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil {
			fn(e.key, e.value)
		}
	}
}

func (t *Table) findEntry(entries []entry, key *value.ObjString) *entry {
	index := key.Hash % uint32(len(entries))
	var tombstone *entry

	for {
		e := &entries[index]
		if e.key == nil {
			if !e.present {
				if tombstone != nil {
					return tombstone
				}
				return e
			}
			if tombstone == nil {
				tombstone = e
			}
		} else if e.key == key {
			return e
		}
		index = (index + 1) % uint32(len(entries))
	}
}

func (t *Table) adjustCapacity(capacity int) {
	entries := make([]entry, capacity)

	t.count = 0
	for i := range t.entries {
		old := &t.entries[i]
		if old.key == nil {
			continue
		}
		index := old.key.Hash % uint32(capacity)
		for entries[index].key != nil {
			index = (index + 1) % uint32(capacity)
		}
		entries[index] = entry{key: old.key, value: old.value, present: true}
		t.count++
	}

	t.entries = entries
}

func growCapacity(capacity int) int {
	if capacity < 8 {
		return 8
	}
	return capacity * 2
}
