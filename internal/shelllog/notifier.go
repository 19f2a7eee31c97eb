package shelllog

import "sync"

// Notifier is a latest-wins broadcast signal: any number of goroutines can
// wait on it, and a single Notify wakes all current waiters at once. A
// waiter that missed a Notify because it wasn't watching yet simply reads
// current state on its next call rather than replaying the event, which is
// exactly the coalescing behavior a slow subscriber is expected to see.
type Notifier struct {
	mu sync.Mutex
	ch chan struct{}
}

// NewNotifier returns a ready-to-use Notifier.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{})}
}

// Wait returns a channel that closes the next time Notify is called.
func (n *Notifier) Wait() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ch
}

// Notify wakes every goroutine currently blocked on Wait.
func (n *Notifier) Notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	close(n.ch)
	n.ch = make(chan struct{})
}
