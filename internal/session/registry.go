package session

import (
	"context"
	"sync"
	"time"

	"github.com/relaysix/sshx/internal/apierror"
	"github.com/relaysix/sshx/internal/idgen"
	"github.com/relaysix/sshx/internal/mesh"
	"go.uber.org/zap"
)

// SweepInterval is how often the registry ticks its sweeper across every
// locally-owned session.
const SweepInterval = 200 * time.Millisecond

// Registry holds every session owned by this replica and drives their
// periodic sweep (host reconciliation, idle timeout, termination grace).
type Registry struct {
	replica string
	mesh    mesh.Mesh
	logger  *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns a Registry for the given replica identifier.
func NewRegistry(replica string, m mesh.Mesh, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		replica:  replica,
		mesh:     m,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Create allocates a fresh session ID, registers it locally and in the
// mesh, and returns the new Session.
func (r *Registry) Create(readVerifier, writeVerifier []byte) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var id string
	for {
		id = idgen.SessionID()
		if _, exists := r.sessions[id]; !exists {
			break
		}
	}

	s := New(id, readVerifier, writeVerifier)
	s.SetToken(idgen.Token())
	r.sessions[id] = s
	r.mesh.Register(id, r.replica)

	return s
}

// Find looks up a locally-owned session.
func (r *Registry) Find(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove deregisters a session from this replica and the mesh.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
	r.mesh.Deregister(id)
}

// Close terminates a session by ID if this replica owns it and token
// matches the session's host bearer token.
func (r *Registry) Close(id, token string) (existed bool, err error) {
	s, ok := r.Find(id)
	if !ok {
		return false, nil
	}
	if !s.CheckToken(token) {
		return true, ErrCapabilityMismatch
	}
	s.Terminate()
	r.Remove(id)
	return true, nil
}

// Run drives the sweeper until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.sweepOnce(now)
		}
	}
}

func (r *Registry) sweepOnce(now time.Time) {
	r.mu.RLock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.RUnlock()

	for _, s := range snapshot {
		if s.IsTerminated() {
			r.Remove(s.ID())
			continue
		}

		s.sweepHost(now)

		if idle, isIdle := s.idleSince(now); isIdle && idle > TerminationGrace {
			r.logger.Info("terminating session after grace period with no host",
				zap.String("session_id", s.ID()))
			s.Terminate()
			r.Remove(s.ID())
		}
	}
}

// Shutdown terminates every locally-owned session, for use during graceful
// server shutdown.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Terminate()
		r.mesh.Deregister(s.ID())
	}
}

// ErrCapabilityMismatch is returned when a Close is attempted with a token
// that doesn't match how the session was opened.
var ErrCapabilityMismatch = apierror.New(apierror.BadAuth, "token does not match session")
