// Package session implements the per-session state machine described as
// the "session coordinator": it owns the user table, shell table, and
// shell logs for one live session, and mediates between the single
// attached host and any number of attached viewers.
package session

import (
	"crypto/subtle"
	"sort"
	"sync"
	"time"

	"github.com/relaysix/sshx/internal/apierror"
	"github.com/relaysix/sshx/internal/shelllog"
	"github.com/relaysix/sshx/internal/wire"
)

// latencySamples is the size of the ring used to compute median host
// round-trip time. Latency is tracked per session, not per shell, since a
// Ping/Pong exchange covers the whole host connection rather than any one
// shell.
const latencySamples = 5

// DefaultRingLimit bounds the retained bytes per shell.
const DefaultRingLimit = 8 << 20 // 8 MiB

// HostTimeout is how long the coordinator waits for host activity before
// forcibly closing the host channel.
const HostTimeout = 5 * time.Second

// TerminationGrace is how long a session survives with no host attached
// before it is torn down.
const TerminationGrace = 60 * time.Second

// hostSendBuffer bounds the server->host queue; frames for a host that
// can't keep up are dropped (see SendToHost) rather than allowed to stall
// the session.
const hostSendBuffer = 64

// Session is the in-memory state for one live host-plus-viewers
// conversation.
type Session struct {
	id            string
	token         string
	readVerifier  []byte
	writeVerifier []byte // nil => writable by all authenticated viewers

	metadata  *shelllog.Notifier
	broadcast *broadcaster

	mu          sync.RWMutex
	users       map[uint32]*User
	shells      map[uint32]*Shell
	nextUserID  uint32
	nextShellID uint32

	hostMu           sync.Mutex
	hostAttached     bool
	hostSend         chan *wire.ServerFrame
	hostKick         chan struct{}
	lastHostActivity time.Time
	noHostSince      time.Time
	latencies        []time.Duration

	terminatedCh   chan struct{}
	terminatedOnce sync.Once
}

// New creates a session identified by id, with the given read verifier
// (required) and write verifier (nil means every authenticated viewer can
// write). The host authentication token is generated separately by the
// Registry and attached via SetToken.
func New(id string, readVerifier, writeVerifier []byte) *Session {
	return &Session{
		id:            id,
		readVerifier:  readVerifier,
		writeVerifier: writeVerifier,
		metadata:      shelllog.NewNotifier(),
		broadcast:     newBroadcaster(),
		users:         make(map[uint32]*User),
		shells:        make(map[uint32]*Shell),
		nextUserID:    1,
		noHostSince:   time.Now(),
		terminatedCh:  make(chan struct{}),
	}
}

// ID returns the session's short public identifier.
func (s *Session) ID() string {
	return s.id
}

// SetToken attaches the host bearer token minted for this session. Called
// once by the Registry immediately after New.
func (s *Session) SetToken(token string) {
	s.token = token
}

// CheckToken constant-time compares token against the session's host
// bearer token.
func (s *Session) CheckToken(token string) bool {
	return len(token) == len(s.token) && subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) == 1
}

// HostToken returns the host bearer token minted for this session. Callers
// must only expose this once, in the Open response.
func (s *Session) HostToken() string {
	return s.token
}

// CheckReadVerifier constant-time compares v against the session's stored
// read verifier.
func (s *Session) CheckReadVerifier(v []byte) bool {
	return len(v) == len(s.readVerifier) && subtle.ConstantTimeCompare(v, s.readVerifier) == 1
}

// HasWriteVerifier reports whether write access is gated behind a separate
// key.
func (s *Session) HasWriteVerifier() bool {
	return len(s.writeVerifier) > 0
}

// CheckWriteVerifier constant-time compares v against the session's write
// verifier. Only meaningful when HasWriteVerifier is true.
func (s *Session) CheckWriteVerifier(v []byte) bool {
	return len(v) == len(s.writeVerifier) && subtle.ConstantTimeCompare(v, s.writeVerifier) == 1
}

// ---- host attachment ----

// AttachHost claims the single host slot for this session and returns the
// channel the caller must drain and forward to the host. It fails with
// apierror.AlreadyAttached if a host is already attached.
func (s *Session) AttachHost() (<-chan *wire.ServerFrame, error) {
	s.hostMu.Lock()
	defer s.hostMu.Unlock()

	if s.hostAttached {
		return nil, apierror.New(apierror.AlreadyAttached, "session %s already has an attached host", s.id)
	}

	s.hostAttached = true
	s.hostSend = make(chan *wire.ServerFrame, hostSendBuffer)
	s.hostKick = make(chan struct{})
	s.lastHostActivity = time.Now()
	s.noHostSince = time.Time{}

	return s.hostSend, nil
}

// DetachHost releases the host slot. Safe to call even if no host is
// attached.
func (s *Session) DetachHost() {
	s.hostMu.Lock()
	defer s.hostMu.Unlock()

	if !s.hostAttached {
		return
	}
	s.hostAttached = false
	close(s.hostSend)
	s.hostSend = nil
	s.hostKick = nil
	s.noHostSince = time.Now()
}

// HostAttached reports whether a host currently holds the session's single
// host slot.
func (s *Session) HostAttached() bool {
	s.hostMu.Lock()
	defer s.hostMu.Unlock()
	return s.hostAttached
}

// HostKicked returns a channel the host RPC handler should select on
// alongside its stream's context: when it closes, the sweeper has decided
// to forcibly end the host connection (idle timeout).
func (s *Session) HostKicked() <-chan struct{} {
	s.hostMu.Lock()
	defer s.hostMu.Unlock()
	return s.hostKick
}

// TouchHostActivity records that a frame was just received from the host.
func (s *Session) TouchHostActivity() {
	s.hostMu.Lock()
	s.lastHostActivity = time.Now()
	s.hostMu.Unlock()
}

// SendToHost enqueues a frame for the attached host without blocking; it
// silently drops the frame (matching the sweeper's own tolerance for a slow
// host) if the queue is full or no host is attached.
func (s *Session) SendToHost(frame *wire.ServerFrame) {
	s.hostMu.Lock()
	defer s.hostMu.Unlock()
	if !s.hostAttached {
		return
	}
	select {
	case s.hostSend <- frame:
	default:
	}
}

// sweepHost is called periodically by the Registry sweeper. It sends a
// reconciliation Sync frame, and force-disconnects the host if it has gone
// idle beyond HostTimeout.
func (s *Session) sweepHost(now time.Time) {
	s.mu.RLock()
	shells := make([]wire.ShellSync, 0, len(s.shells))
	for id, sh := range s.shells {
		if sh.Confirmed() {
			shells = append(shells, wire.ShellSync{ID: id, Offset: sh.Log.Offset()})
		}
	}
	s.mu.RUnlock()

	s.hostMu.Lock()
	attached := s.hostAttached
	timedOut := attached && now.Sub(s.lastHostActivity) > HostTimeout
	var kick chan struct{}
	if timedOut {
		kick = s.hostKick
	}
	s.hostMu.Unlock()

	if attached {
		s.SendToHost(&wire.ServerFrame{Sync: &wire.ServerSync{Shells: shells}})
		s.SendToHost(&wire.ServerFrame{Ping: &wire.Ping{Timestamp: now.UnixMilli()}})
	}

	if timedOut && kick != nil {
		close(kick)
	}
}

// RecordLatency folds a new host round-trip sample into the recent-sample
// ring and publishes the updated median to every viewer.
func (s *Session) RecordLatency(d time.Duration) {
	s.hostMu.Lock()
	s.latencies = append(s.latencies, d)
	if len(s.latencies) > latencySamples {
		s.latencies = s.latencies[len(s.latencies)-latencySamples:]
	}
	s.hostMu.Unlock()

	if median, ok := s.MedianLatency(); ok {
		s.BroadcastShellLatency(median.Milliseconds())
	}
}

// MedianLatency returns the median of the recent host round-trip samples,
// and false if no samples have been recorded yet.
func (s *Session) MedianLatency() (time.Duration, bool) {
	s.hostMu.Lock()
	defer s.hostMu.Unlock()
	if len(s.latencies) == 0 {
		return 0, false
	}
	sorted := append([]time.Duration(nil), s.latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[len(sorted)/2], true
}

// idleSince reports how long the session has gone with no host attached; it
// returns false while a host is attached.
func (s *Session) idleSince(now time.Time) (time.Duration, bool) {
	s.hostMu.Lock()
	defer s.hostMu.Unlock()
	if s.hostAttached || s.noHostSince.IsZero() {
		return 0, false
	}
	return now.Sub(s.noHostSince), true
}

// ---- shells ----

// RequestShellCreate allocates a fresh, unconfirmed shell placeholder. The
// caller is responsible for sending a ShellCreate frame to the host; the
// shell becomes visible to viewers only once ConfirmShellCreated is called.
func (s *Session) RequestShellCreate(x, y int32, rows, cols uint32) *Shell {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextShellID
	s.nextShellID++

	sh := newShell(id, x, y, DefaultRingLimit, shelllog.Window{Rows: rows, Cols: cols})
	s.shells[id] = sh
	return sh
}

// ConfirmShellCreated marks a previously requested shell as live. It
// returns false if no such shell was requested.
func (s *Session) ConfirmShellCreated(id, rows, cols uint32) (*Shell, bool) {
	s.mu.RLock()
	sh, ok := s.shells[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	sh.confirm()
	sh.Log.Resize(shelllog.Window{Rows: rows, Cols: cols})
	s.notifyMetadata()
	s.BroadcastShells()
	return sh, true
}

// ConfirmShellClosed marks a shell closed and removes it from the table.
func (s *Session) ConfirmShellClosed(id uint32) {
	s.mu.Lock()
	sh, ok := s.shells[id]
	if ok {
		delete(s.shells, id)
	}
	s.mu.Unlock()
	if ok {
		sh.Log.Close()
		s.notifyMetadata()
		s.BroadcastShells()
	}
}

// Shell looks up a shell by ID.
func (s *Session) Shell(id uint32) (*Shell, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.shells[id]
	return sh, ok
}

// VisibleShells returns the confirmed, still-open shells, for the Shells
// broadcast.
func (s *Session) VisibleShells() []wire.NamedShell {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]wire.NamedShell, 0, len(s.shells))
	for id, sh := range s.shells {
		if !sh.Confirmed() || sh.Log.Closed() {
			continue
		}
		x, y := sh.Position()
		win := sh.Log.Window()
		result = append(result, wire.NamedShell{
			ID: id,
			Window: wire.WindowSpec{
				X: x, Y: y, Rows: win.Rows, Cols: win.Cols,
			},
		})
	}
	return result
}

// MoveShell applies a non-nil window's canvas position and size to the
// shell. A nil window leaves the shell's geometry unchanged; either way the
// shell set is rebroadcast.
func (s *Session) MoveShell(id uint32, window *wire.WindowSpec) error {
	sh, ok := s.Shell(id)
	if !ok {
		return apierror.New(apierror.ShellGone, "shell %d does not exist", id)
	}
	if window != nil {
		sh.Move(window.X, window.Y)
		sh.Log.Resize(shelllog.Window{Rows: window.Rows, Cols: window.Cols})
	}
	s.notifyMetadata()
	s.BroadcastShells()
	return nil
}

// ---- users ----

// AddUser creates a new user and returns it.
func (s *Session) AddUser(canWrite bool) *User {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextUserID
	s.nextUserID++

	u := newUser(id, canWrite)
	s.users[id] = u
	return u
}

// RemoveUser deletes a user from the table and unsubscribes it from
// broadcasts.
func (s *Session) RemoveUser(id uint32) {
	s.mu.Lock()
	_, ok := s.users[id]
	delete(s.users, id)
	s.mu.Unlock()
	if ok {
		s.notifyMetadata()
		s.BroadcastUserDiff(id, nil, id)
		s.UnsubscribeViewer(id)
	}
}

// User looks up a user by ID.
func (s *Session) User(id uint32) (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

// VisibleUsers returns every current user, for the initial Users snapshot.
func (s *Session) VisibleUsers() []wire.NamedUser {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]wire.NamedUser, 0, len(s.users))
	for id, u := range s.users {
		result = append(result, wire.NamedUser{ID: id, User: u.Snapshot()})
	}
	return result
}

// NotifyMetadataChanged is used by callers (e.g. after directly mutating a
// User via its setters) to broadcast a presence/geometry change.
func (s *Session) NotifyMetadataChanged() {
	s.notifyMetadata()
}

func (s *Session) notifyMetadata() {
	s.metadata.Notify()
}

// MetadataWait returns a channel that closes the next time users or shells
// change.
func (s *Session) MetadataWait() <-chan struct{} {
	return s.metadata.Wait()
}

// ---- termination ----

// Terminated returns a channel that closes when the session is torn down.
func (s *Session) Terminated() <-chan struct{} {
	return s.terminatedCh
}

// IsTerminated reports whether Terminate has been called.
func (s *Session) IsTerminated() bool {
	select {
	case <-s.terminatedCh:
		return true
	default:
		return false
	}
}

// Terminate tears the session down: any attached host is kicked, and every
// waiter on Terminated() wakes up. Idempotent.
func (s *Session) Terminate() {
	s.terminatedOnce.Do(func() {
		close(s.terminatedCh)
	})
}
