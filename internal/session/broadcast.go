package session

import (
	"sync"

	"github.com/relaysix/sshx/internal/wire"
)

// viewerBuffer bounds each subscriber's inbox; a viewer connection that
// can't keep up gets dropped events rather than allowed to back-pressure
// the whole session.
const viewerBuffer = 32

// broadcaster fans ServerMessage events out to every subscribed viewer
// connection for one session.
type broadcaster struct {
	mu   sync.Mutex
	subs map[uint32]chan *wire.ServerMessage
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[uint32]chan *wire.ServerMessage)}
}

func (b *broadcaster) subscribe(userID uint32) <-chan *wire.ServerMessage {
	ch := make(chan *wire.ServerMessage, viewerBuffer)
	b.mu.Lock()
	b.subs[userID] = ch
	b.mu.Unlock()
	return ch
}

func (b *broadcaster) unsubscribe(userID uint32) {
	b.mu.Lock()
	ch, ok := b.subs[userID]
	delete(b.subs, userID)
	b.mu.Unlock()
	if ok {
		close(ch)
	}
}

// publish sends msg to every subscriber except excludeUserID (pass 0 with
// excludeNone=false to exclude nobody).
func (b *broadcaster) publish(msg *wire.ServerMessage, excludeUserID uint32, excludeNone bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		if !excludeNone && id == excludeUserID {
			continue
		}
		select {
		case ch <- msg:
		default:
		}
	}
}

// SubscribeViewer registers a viewer connection to receive broadcast
// events (user diffs, shell diffs, chat, latency) for this session.
func (s *Session) SubscribeViewer(userID uint32) <-chan *wire.ServerMessage {
	return s.broadcast.subscribe(userID)
}

// UnsubscribeViewer removes a viewer connection from the broadcast set.
func (s *Session) UnsubscribeViewer(userID uint32) {
	s.broadcast.unsubscribe(userID)
}

// BroadcastUserDiff announces that a user joined, changed, or left (user
// nil means left) to every viewer except the one the change came from.
func (s *Session) BroadcastUserDiff(id uint32, user *wire.User, from uint32) {
	s.broadcast.publish(&wire.ServerMessage{UserDiff: &wire.ServerUserDiff{ID: id, User: user}}, from, false)
}

// BroadcastShells announces the current shell set to every viewer.
func (s *Session) BroadcastShells() {
	s.broadcast.publish(&wire.ServerMessage{Shells: &wire.ServerShells{Shells: s.VisibleShells()}}, 0, true)
}

// BroadcastChat announces a chat message from userID to every viewer.
func (s *Session) BroadcastChat(userID uint32, name, text string) {
	s.broadcast.publish(&wire.ServerMessage{Hear: &wire.ServerHear{UserID: userID, Name: name, Text: text}}, 0, true)
}

// BroadcastShellLatency announces the session's current host round-trip
// estimate to every viewer.
func (s *Session) BroadcastShellLatency(milliRoundTrip int64) {
	s.broadcast.publish(&wire.ServerMessage{ShellLatency: &wire.ServerShellLatency{MilliRoundTrip: milliRoundTrip}}, 0, true)
}
