// Package traversal sequences keyboard focus between inline-edit fields.
// The Registry keeps mounted editable fields in layout order; the
// Coordinator moves edit focus across it.
package traversal

import (
	"sort"
	"sync"
)

// Direction of a traversal step
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// Order is a position in layout order. Orders compare lexicographically,
// so a layout path (child indexes from the root) sorts top-to-bottom,
// left-to-right.
type Order []int

// Compare returns -1, 0 or 1
func (o Order) Compare(other Order) int {
	for i := 0; i < len(o) && i < len(other); i++ {
		switch {
		case o[i] < other[i]:
			return -1
		case o[i] > other[i]:
			return 1
		}
	}
	switch {
	case len(o) < len(other):
		return -1
	case len(o) > len(other):
		return 1
	}
	return 0
}

// Entry is a field that can take edit focus
type Entry interface {
	ID() string
	Editing() bool
	StartEditing() bool
	Commit()
}

type registration struct {
	entry Entry
	order Order
	seq   uint64
}

// Registry is an ordered set of entries keyed by id
type Registry struct {
	mu      sync.RWMutex
	entries []registration
	seq     uint64
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Register inserts e at order. Registering an id again moves it. Entries
// with equal orders keep registration order.
func (r *Registry) Register(e Entry, order Order) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(e.ID())
	r.seq++
	reg := registration{entry: e, order: append(Order(nil), order...), seq: r.seq}

	i := sort.Search(len(r.entries), func(i int) bool {
		return r.entries[i].order.Compare(reg.order) > 0
	})
	r.entries = append(r.entries, registration{})
	copy(r.entries[i+1:], r.entries[i:])
	r.entries[i] = reg
}

// Unregister removes id and reports whether it was present
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(id)
}

func (r *Registry) removeLocked(id string) bool {
	for i, reg := range r.entries {
		if reg.entry.ID() == id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of registered entries
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Entries returns the registered entries in order
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.entries))
	for i, reg := range r.entries {
		out[i] = reg.entry
	}
	return out
}

// Get returns the entry registered under id
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexLocked(id); i >= 0 {
		return r.entries[i].entry, true
	}
	return nil, false
}

// IndexOf returns the position of id, or -1
func (r *Registry) IndexOf(id string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexLocked(id)
}

func (r *Registry) indexLocked(id string) int {
	for i, reg := range r.entries {
		if reg.entry.ID() == id {
			return i
		}
	}
	return -1
}

// Neighbor returns the entry adjacent to id in direction dir. It reports
// false at either end and for unknown ids.
func (r *Registry) Neighbor(id string, dir Direction) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.indexLocked(id)
	if i < 0 {
		return nil, false
	}
	next := i + 1
	if dir == Backward {
		next = i - 1
	}
	if next < 0 || next >= len(r.entries) {
		return nil, false
	}
	return r.entries[next].entry, true
}
