package sync

import (
	gosync "sync"
	"time"
)

// Origin records where a mirror entry came from.
type Origin string

const (
	// OriginRemote marks an entry delivered by a collection snapshot.
	OriginRemote Origin = "remote"
	// OriginOptimistic marks a locally issued write that has not yet been
	// confirmed by a snapshot.
	OriginOptimistic Origin = "optimistic"
)

// Entry is one reconciled record in a collection mirror.
type Entry struct {
	Value   Entity
	Origin  Origin
	Version time.Time
}

// Reconciler merges collection snapshots with locally staged optimistic
// writes into per-collection mirrors for a single user. The merge is
// deterministic: an optimistic entry survives every snapshot whose server
// time predates the entry's issue time, and is replaced by remote state as
// soon as a snapshot at or after that time arrives.
//
// It is safe for concurrent use.
type Reconciler struct {
	mu      gosync.Mutex
	owner   string
	mirrors map[string][]Entry
}

// NewReconciler creates a detached reconciler. Attach binds it to a user.
func NewReconciler() *Reconciler {
	return &Reconciler{
		mirrors: make(map[string][]Entry),
	}
}

// Attach scopes the reconciler to a user, discarding all existing mirrors so
// no state leaks across sessions.
func (r *Reconciler) Attach(ownerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owner = ownerID
	r.mirrors = make(map[string][]Entry)
}

// Detach unbinds the reconciler and discards all mirrors.
func (r *Reconciler) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owner = ""
	r.mirrors = make(map[string][]Entry)
}

// StageOptimistic records a locally issued write ahead of its snapshot
// confirmation. The entry replaces any mirror entry with the same id, or is
// prepended as the newest record when the id is not present yet.
func (r *Reconciler) StageOptimistic(collection string, e Entity, issuedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.owner == "" {
		return
	}

	entry := Entry{Value: e, Origin: OriginOptimistic, Version: issuedAt}
	mirror := r.mirrors[collection]
	for i := range mirror {
		if mirror[i].Value.EntityID() == e.EntityID() {
			mirror[i] = entry
			return
		}
	}
	r.mirrors[collection] = append([]Entry{entry}, mirror...)
}

// ApplySnapshot replaces the collection mirror with the snapshot contents,
// keeping optimistic entries the snapshot has not caught up to. Snapshots
// for another user are ignored.
func (r *Reconciler) ApplySnapshot(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.owner == "" || s.OwnerID != r.owner {
		return
	}

	pending := make(map[string]Entry)
	for _, entry := range r.mirrors[s.Collection] {
		if entry.Origin == OriginOptimistic && entry.Version.After(s.ServerTime) {
			pending[entry.Value.EntityID()] = entry
		}
	}

	merged := make([]Entry, 0, len(s.Entities)+len(pending))
	seen := make(map[string]bool, len(s.Entities))
	for _, e := range s.Entities {
		seen[e.EntityID()] = true
		if entry, ok := pending[e.EntityID()]; ok {
			merged = append(merged, entry)
			continue
		}
		merged = append(merged, Entry{Value: e, Origin: OriginRemote, Version: e.Revision()})
	}

	// Optimistic creates the snapshot has not seen yet stay at the front,
	// matching the newest-first collection ordering.
	var fresh []Entry
	for _, entry := range r.mirrors[s.Collection] {
		id := entry.Value.EntityID()
		if _, ok := pending[id]; ok && !seen[id] {
			fresh = append(fresh, entry)
		}
	}
	r.mirrors[s.Collection] = append(fresh, merged...)
}

// Collection returns a copy of the mirror for the given collection.
func (r *Reconciler) Collection(collection string) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	mirror := r.mirrors[collection]
	out := make([]Entry, len(mirror))
	copy(out, mirror)
	return out
}
