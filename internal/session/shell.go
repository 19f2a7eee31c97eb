package session

import (
	"sync"

	"github.com/relaysix/sshx/internal/shelllog"
)

// Shell is one pseudo-terminal inside a session: its canvas position plus
// the byte log backing its content.
type Shell struct {
	ID uint32

	Log *shelllog.Log

	mu        sync.Mutex
	x, y      int32
	confirmed bool
}

func newShell(id uint32, x, y int32, ringLimit uint64, window shelllog.Window) *Shell {
	return &Shell{
		ID:  id,
		Log: shelllog.New(ringLimit, window),
		x:   x,
		y:   y,
	}
}

// Position returns the shell's canvas coordinates.
func (sh *Shell) Position() (x, y int32) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.x, sh.y
}

// Move updates the shell's canvas position. A window resize, if any, is
// applied to the underlying log separately by the caller.
func (sh *Shell) Move(x, y int32) {
	sh.mu.Lock()
	sh.x, sh.y = x, y
	sh.mu.Unlock()
}

// Confirmed reports whether the host has acknowledged this shell exists
// (CreatedShell). Shells become visible to viewers only once confirmed.
func (sh *Shell) Confirmed() bool {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.confirmed
}

func (sh *Shell) confirm() {
	sh.mu.Lock()
	sh.confirmed = true
	sh.mu.Unlock()
}
