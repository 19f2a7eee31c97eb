// Package viewer implements the browser-facing WebSocket channel: the
// authenticate-then-loop state machine a live viewer connection goes
// through, from AwaitingAuth through Active to Closed.
package viewer

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/relaysix/sshx/internal/apierror"
	"github.com/relaysix/sshx/internal/session"
	"github.com/relaysix/sshx/internal/wire"
	"go.uber.org/zap"
)

// ServerName is reported to every viewer in its ServerHello.
const ServerName = "sshx"

// defaultRows and defaultCols are the initial window of every shell a
// viewer creates; a later Move with a window resizes it.
const (
	defaultRows = 24
	defaultCols = 80
)

// Handler services viewer WebSocket connections that the caller has already
// upgraded.
type Handler struct {
	logger *zap.Logger
}

// NewHandler returns a viewer channel Handler.
func NewHandler(logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{logger: logger}
}

// Serve drives a single upgraded WebSocket connection against s until the
// connection closes or an unrecoverable protocol error occurs.
func (h *Handler) Serve(ws *websocket.Conn, s *session.Session) {
	conn := &conn{ws: ws, session: s, logger: h.logger, watchers: make(map[uint32]chan struct{})}
	conn.run()
}

// conn holds the per-connection state for one authenticated viewer.
type conn struct {
	ws      *websocket.Conn
	session *session.Session
	logger  *zap.Logger
	user    *session.User

	writeMu sync.Mutex

	watchMu  sync.Mutex
	watchers map[uint32]chan struct{} // shellID -> stop channel for its tailer goroutine
}

func (c *conn) run() {
	defer c.ws.Close()

	auth, err := c.awaitAuth()
	if err != nil {
		c.logger.Debug("viewer authentication failed", zap.Error(err))
		return
	}

	canWrite, ok := c.checkAuth(auth)
	if !ok {
		c.send(&wire.ServerMessage{InvalidAuth: &wire.InvalidAuth{}})
		c.closeWithCode(apierror.New(apierror.BadAuth, "invalid credentials").CloseCode(), "invalid auth")
		return
	}

	c.user = c.session.AddUser(canWrite)
	defer c.session.RemoveUser(c.user.ID)
	defer c.stopAllWatchers()

	c.logger.Info("viewer joined", zap.String("session_id", c.session.ID()), zap.Uint32("user_id", c.user.ID))

	if err := c.send(&wire.ServerMessage{Hello: &wire.ServerHello{UserID: c.user.ID, ServerName: ServerName}}); err != nil {
		return
	}
	_ = c.send(&wire.ServerMessage{Users: &wire.ServerUsers{Users: c.session.VisibleUsers()}})
	_ = c.send(&wire.ServerMessage{Shells: &wire.ServerShells{Shells: c.session.VisibleShells()}})

	snapshot := c.user.Snapshot()
	c.session.BroadcastUserDiff(c.user.ID, &snapshot, c.user.ID)

	sub := c.session.SubscribeViewer(c.user.ID)
	go c.pump(sub)

	c.readLoop()
}

// pump forwards session-level broadcasts to the WebSocket until sub closes.
func (c *conn) pump(sub <-chan *wire.ServerMessage) {
	for msg := range sub {
		if err := c.send(msg); err != nil {
			return
		}
	}
}

const authTimeout = 5 * time.Second

func (c *conn) awaitAuth() (*wire.ClientAuthenticate, error) {
	_ = c.ws.SetReadDeadline(time.Now().Add(authTimeout))
	msg, err := c.recv()
	if err != nil {
		return nil, err
	}
	_ = c.ws.SetReadDeadline(time.Time{})
	if msg.Authenticate == nil {
		return nil, apierror.New(apierror.ProtocolError, "first message must be Authenticate")
	}
	return msg.Authenticate, nil
}

// checkAuth validates the viewer's proof-of-key and determines write
// capability. It never distinguishes "read key wrong" from "write key
// wrong" in its response, to avoid leaking which one failed.
func (c *conn) checkAuth(auth *wire.ClientAuthenticate) (canWrite bool, ok bool) {
	if c.session.HasWriteVerifier() {
		if len(auth.EncryptedZerosWrite) > 0 && c.session.CheckWriteVerifier(auth.EncryptedZerosWrite) {
			return true, true
		}
		if c.session.CheckReadVerifier(auth.EncryptedZeros) {
			return false, true
		}
		return false, false
	}
	if c.session.CheckReadVerifier(auth.EncryptedZeros) {
		return true, true
	}
	return false, false
}

// readLoop dispatches inbound client messages until the connection errors
// or the session is torn down out from under it - a host timeout (S5) or a
// graceful server shutdown both terminate every attached viewer rather than
// leaving them to notice on their own.
func (c *conn) readLoop() {
	msgCh := make(chan *wire.ClientMessage)
	errCh := make(chan error, 1)
	go func() {
		for {
			msg, err := c.recv()
			if err != nil {
				errCh <- err
				return
			}
			select {
			case msgCh <- msg:
			case <-c.session.Terminated():
				return
			}
		}
	}()

	for {
		select {
		case <-c.session.Terminated():
			c.closeWithCode(websocket.CloseNormalClosure, "session terminated")
			return
		case <-errCh:
			return
		case msg := <-msgCh:
			c.dispatch(msg)
		}
	}
}

func (c *conn) dispatch(msg *wire.ClientMessage) {
	switch {
	case msg.SetName != nil:
		if c.user.SetName(msg.SetName.Name) {
			snap := c.user.Snapshot()
			c.session.BroadcastUserDiff(c.user.ID, &snap, 0)
		}
	case msg.SetCursor != nil:
		c.user.SetCursor(msg.SetCursor.Cursor)
		snap := c.user.Snapshot()
		c.session.BroadcastUserDiff(c.user.ID, &snap, c.user.ID)
	case msg.SetFocus != nil:
		c.user.SetFocus(msg.SetFocus.ShellID)
		snap := c.user.Snapshot()
		c.session.BroadcastUserDiff(c.user.ID, &snap, c.user.ID)
	case msg.Create != nil:
		c.handleCreate(msg.Create)
	case msg.Close != nil:
		c.handleClose(msg.Close)
	case msg.Move != nil:
		c.handleMove(msg.Move)
	case msg.Data != nil:
		c.handleData(msg.Data)
	case msg.Subscribe != nil:
		c.handleSubscribe(msg.Subscribe)
	case msg.Chat != nil:
		name := c.user.Snapshot().Name
		c.session.BroadcastChat(c.user.ID, name, msg.Chat.Text)
	case msg.Ping != nil:
		_ = c.send(&wire.ServerMessage{Pong: &wire.Pong{Timestamp: msg.Ping.Timestamp}})
	}
}

func (c *conn) requireWrite() bool {
	if c.user.CanWrite {
		return true
	}
	_ = c.send(&wire.ServerMessage{Error: &wire.ErrorFrame{Message: "read-only viewers cannot modify shells"}})
	return false
}

func (c *conn) handleCreate(req *wire.ClientCreate) {
	if !c.requireWrite() {
		return
	}
	sh := c.session.RequestShellCreate(req.X, req.Y, defaultRows, defaultCols)
	c.session.SendToHost(&wire.ServerFrame{Create: &wire.ShellCreate{ID: sh.ID, Rows: defaultRows, Cols: defaultCols}})
}

func (c *conn) handleClose(req *wire.ClientClose) {
	if !c.requireWrite() {
		return
	}
	if _, ok := c.session.Shell(req.ID); !ok {
		return
	}
	c.session.SendToHost(&wire.ServerFrame{Close: &wire.ShellClose{ID: req.ID}})
}

func (c *conn) handleMove(req *wire.ClientMove) {
	if !c.requireWrite() {
		return
	}
	if err := c.session.MoveShell(req.ID, req.Window); err != nil {
		_ = c.send(&wire.ServerMessage{Error: &wire.ErrorFrame{Message: err.Error()}})
		return
	}
	if req.Window != nil {
		c.session.SendToHost(&wire.ServerFrame{Resize: &wire.ShellResize{ID: req.ID, Rows: req.Window.Rows, Cols: req.Window.Cols}})
	}
}

func (c *conn) handleData(req *wire.ClientData) {
	if !c.requireWrite() {
		return
	}
	if _, ok := c.session.Shell(req.ID); !ok {
		return
	}
	c.session.SendToHost(&wire.ServerFrame{Input: &wire.ServerInput{ShellID: req.ID, Ciphertext: req.Ciphertext, Offset: req.Offset}})
}

func (c *conn) handleSubscribe(req *wire.ClientSubscribe) {
	sh, ok := c.session.Shell(req.ID)
	if !ok {
		return
	}

	c.watchMu.Lock()
	if stop, exists := c.watchers[req.ID]; exists {
		close(stop)
	}
	stop := make(chan struct{})
	c.watchers[req.ID] = stop
	c.watchMu.Unlock()

	go c.tailShell(sh, req.Chunknum, stop)
}

// tailShell sends backfill starting at fromChunknum chunks already received,
// then keeps sending new chunks as they're appended until stop closes or the
// shell's log closes.
func (c *conn) tailShell(sh *session.Shell, fromChunknum uint64, stop <-chan struct{}) {
	for {
		start, next, chunks, closed := sh.Log.SnapshotChunks(fromChunknum)
		if len(chunks) > 0 {
			if err := c.send(&wire.ServerMessage{Chunks: &wire.ServerChunks{ShellID: sh.ID, StartOffset: start, Chunks: chunks}}); err != nil {
				return
			}
			fromChunknum = next
		}
		if closed {
			return
		}

		select {
		case <-stop:
			return
		case <-sh.Log.Wait():
		}
	}
}

func (c *conn) stopAllWatchers() {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	for id, stop := range c.watchers {
		close(stop)
		delete(c.watchers, id)
	}
}

func (c *conn) recv() (*wire.ClientMessage, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	msg := new(wire.ClientMessage)
	if err := wire.Unmarshal(data, msg); err != nil {
		return nil, apierror.New(apierror.ProtocolError, "malformed client message: %v", err)
	}
	return msg, nil
}

func (c *conn) send(msg *wire.ServerMessage) error {
	data, err := wire.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

func (c *conn) closeWithCode(code int, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
}
