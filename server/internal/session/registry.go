package session

import (
	"sort"
	"sync"
	"time"
)

// Member is anything the registry can track.
type Member interface {
	ID() string
}

// Entry is a registered member together with its join metadata.
type Entry[M Member] struct {
	Member     M
	RemoteAddr string
	JoinedAt   time.Time

	seq uint64
}

// Info is the externally visible part of an entry.
type Info struct {
	ID         string    `json:"id"`
	RemoteAddr string    `json:"remote_addr"`
	JoinedAt   time.Time `json:"joined_at"`
}

// Registry is a thread-safe set of connected members, keyed by ID.
type Registry[M Member] struct {
	mu      sync.RWMutex
	members map[string]*Entry[M]
	seq     uint64
	now     func() time.Time // injectable for deterministic tests
}

// New creates an empty Registry.
func New[M Member]() *Registry[M] {
	return &Registry[M]{
		members: make(map[string]*Entry[M]),
		now:     time.Now,
	}
}

// Add registers m and returns its entry. Adding an ID that is already present
// replaces the previous entry and moves it to the back of the join order.
func (r *Registry[M]) Add(m M, remoteAddr string) *Entry[M] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	e := &Entry[M]{
		Member:     m,
		RemoteAddr: remoteAddr,
		JoinedAt:   r.now(),
		seq:        r.seq,
	}
	r.members[m.ID()] = e
	return e
}

// Remove deregisters id. It reports whether id was present, so callers can
// release per-member resources exactly once.
func (r *Registry[M]) Remove(id string) (*Entry[M], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.members[id]
	if ok {
		delete(r.members, id)
	}
	return e, ok
}

// Get returns the entry for id.
func (r *Registry[M]) Get(id string) (*Entry[M], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.members[id]
	return e, ok
}

// Count returns the number of registered members.
func (r *Registry[M]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// List returns all entries in join order.
func (r *Registry[M]) List() []*Entry[M] {
	return r.Others("")
}

// Others returns every entry except id, in join order.
func (r *Registry[M]) Others(id string) []*Entry[M] {
	r.mu.RLock()
	out := make([]*Entry[M], 0, len(r.members))
	for mid, e := range r.members {
		if mid != id {
			out = append(out, e)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Oldest returns the earliest-joined entry other than except.
func (r *Registry[M]) Oldest(except string) (*Entry[M], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var oldest *Entry[M]
	for id, e := range r.members {
		if id == except {
			continue
		}
		if oldest == nil || e.seq < oldest.seq {
			oldest = e
		}
	}
	return oldest, oldest != nil
}

// Infos describes every entry in join order.
func (r *Registry[M]) Infos() []Info {
	entries := r.List()
	out := make([]Info, 0, len(entries))
	for _, e := range entries {
		out = append(out, Info{ID: e.Member.ID(), RemoteAddr: e.RemoteAddr, JoinedAt: e.JoinedAt})
	}
	return out
}

// Drain removes and returns every entry, in join order. Used at shutdown.
func (r *Registry[M]) Drain() []*Entry[M] {
	out := r.List()
	r.mu.Lock()
	clear(r.members)
	r.mu.Unlock()
	return out
}
