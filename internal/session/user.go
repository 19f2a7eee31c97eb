package session

import (
	"sync"

	"github.com/relaysix/sshx/internal/wire"
)

// User is a single viewer's presence record.
type User struct {
	ID       uint32
	CanWrite bool

	mu     sync.Mutex
	name   string
	cursor *wire.Point
	focus  *uint32
}

func newUser(id uint32, canWrite bool) *User {
	return &User{ID: id, CanWrite: canWrite, name: "anonymous"}
}

// Snapshot returns the wire representation of the user's current state.
func (u *User) Snapshot() wire.User {
	u.mu.Lock()
	defer u.mu.Unlock()
	return wire.User{
		ID:       u.ID,
		Name:     u.name,
		Cursor:   u.cursor,
		Focus:    u.focus,
		CanWrite: u.CanWrite,
	}
}

// SetName sets the display name if non-empty and within the length limit;
// returns false if name was rejected.
func (u *User) SetName(name string) bool {
	if name == "" || len(name) > 50 {
		return false
	}
	u.mu.Lock()
	u.name = name
	u.mu.Unlock()
	return true
}

// SetCursor updates the cursor position; nil clears it.
func (u *User) SetCursor(p *wire.Point) {
	u.mu.Lock()
	u.cursor = p
	u.mu.Unlock()
}

// SetFocus updates the focused shell ID; nil clears it.
func (u *User) SetFocus(shellID *uint32) {
	u.mu.Lock()
	u.focus = shellID
	u.mu.Unlock()
}
