// Package mesh tracks, for each session ID, which replica currently owns
// it. The interface is deliberately small so a Redis- or gossip-backed
// implementation can replace the in-memory Registry without touching the
// session coordinator or transport façade that consume it.
package mesh

import "sync"

// Mesh answers "who owns this session" queries and lets a replica register
// or release ownership. Ownership is advisory: two replicas may briefly
// disagree during a hand-off, and callers must tolerate that.
type Mesh interface {
	// Register claims ownership of sessionID for replica. It never fails;
	// a duplicate Register simply overwrites the previous owner, mirroring
	// the "last write wins, advisory only" ownership model.
	Register(sessionID, replica string)

	// Owner returns the replica currently believed to own sessionID, and
	// false if no replica has registered it (or it has been deregistered).
	Owner(sessionID string) (replica string, ok bool)

	// Deregister releases ownership. A no-op if the session is unknown or
	// already owned by a different replica than the caller believes.
	Deregister(sessionID string)
}

// Registry is a single-process, in-memory Mesh. It is the correct choice
// for a single replica or for tests; a multi-replica deployment needs a
// shared implementation (e.g. backed by a key-value store with TTLs) that
// satisfies the same interface.
type Registry struct {
	mu     sync.RWMutex
	owners map[string]string
}

// NewRegistry returns an empty in-memory Mesh.
func NewRegistry() *Registry {
	return &Registry{owners: make(map[string]string)}
}

func (r *Registry) Register(sessionID, replica string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[sessionID] = replica
}

func (r *Registry) Owner(sessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	replica, ok := r.owners[sessionID]
	return replica, ok
}

func (r *Registry) Deregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.owners, sessionID)
}
