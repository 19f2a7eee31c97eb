package wire

// Point is a position in the viewer's infinite canvas.
type Point struct {
	X int32 `cbor:"0,keyasint"`
	Y int32 `cbor:"1,keyasint"`
}

// WindowSpec is a shell's position and size on the canvas.
type WindowSpec struct {
	X    int32  `cbor:"0,keyasint"`
	Y    int32  `cbor:"1,keyasint"`
	Rows uint32 `cbor:"2,keyasint"`
	Cols uint32 `cbor:"3,keyasint"`
}

// User is the presence record broadcast to every viewer.
type User struct {
	ID       uint32 `cbor:"0,keyasint"`
	Name     string `cbor:"1,keyasint"`
	Cursor   *Point `cbor:"2,keyasint,omitempty"`
	Focus    *uint32 `cbor:"3,keyasint,omitempty"`
	CanWrite bool   `cbor:"4,keyasint"`
}

// ClientMessage is a single frame sent from a viewer's WebSocket. Exactly
// one field is populated.
type ClientMessage struct {
	Authenticate *ClientAuthenticate `cbor:"0,keyasint,omitempty"`
	SetName      *ClientSetName      `cbor:"1,keyasint,omitempty"`
	SetCursor    *ClientSetCursor    `cbor:"2,keyasint,omitempty"`
	SetFocus     *ClientSetFocus     `cbor:"3,keyasint,omitempty"`
	Create       *ClientCreate       `cbor:"4,keyasint,omitempty"`
	Close        *ClientClose        `cbor:"5,keyasint,omitempty"`
	Move         *ClientMove         `cbor:"6,keyasint,omitempty"`
	Data         *ClientData         `cbor:"7,keyasint,omitempty"`
	Subscribe    *ClientSubscribe    `cbor:"8,keyasint,omitempty"`
	Chat         *ClientChat         `cbor:"9,keyasint,omitempty"`
	Ping         *Ping               `cbor:"10,keyasint,omitempty"`
}

// ClientAuthenticate proves knowledge of the session's read key, and
// optionally the write key, without ever disclosing either.
type ClientAuthenticate struct {
	EncryptedZeros      []byte `cbor:"0,keyasint"`
	EncryptedZerosWrite []byte `cbor:"1,keyasint,omitempty"`
}

// ClientSetName sets the viewer's display name.
type ClientSetName struct {
	Name string `cbor:"0,keyasint"`
}

// ClientSetCursor updates the viewer's cursor position; nil clears it.
type ClientSetCursor struct {
	Cursor *Point `cbor:"0,keyasint,omitempty"`
}

// ClientSetFocus marks a shell as focused by the viewer; nil clears focus.
type ClientSetFocus struct {
	ShellID *uint32 `cbor:"0,keyasint,omitempty"`
}

// ClientCreate requests a new shell be spawned at canvas position (X, Y).
type ClientCreate struct {
	X int32 `cbor:"0,keyasint"`
	Y int32 `cbor:"1,keyasint"`
}

// ClientClose requests that a shell be closed.
type ClientClose struct {
	ID uint32 `cbor:"0,keyasint"`
}

// ClientMove repositions or resizes a shell. A nil Window means "bring to
// front" without changing geometry.
type ClientMove struct {
	ID     uint32      `cbor:"0,keyasint"`
	Window *WindowSpec `cbor:"1,keyasint,omitempty"`
}

// ClientData is a keystroke, encrypted under the viewer->host input stream,
// addressed by the sender's own running Offset into that stream.
type ClientData struct {
	ID         uint32 `cbor:"0,keyasint"`
	Ciphertext []byte `cbor:"1,keyasint"`
	Offset     uint64 `cbor:"2,keyasint"`
}

// ClientSubscribe requests backfill and live updates for a shell, resuming
// from Chunknum: the count of chunks the viewer has already received (0 to
// receive everything the server has retained). Chunk framing is stable
// server-side, so a chunk count survives reconnects even though the ring's
// retained byte range keeps shifting.
type ClientSubscribe struct {
	ID       uint32 `cbor:"0,keyasint"`
	Chunknum uint64 `cbor:"1,keyasint"`
}

// ClientChat is a chat message to be echoed to every active viewer.
type ClientChat struct {
	Text string `cbor:"0,keyasint"`
}

// ServerMessage is a single frame sent to a viewer's WebSocket.
type ServerMessage struct {
	Hello        *ServerHello        `cbor:"0,keyasint,omitempty"`
	InvalidAuth  *InvalidAuth        `cbor:"1,keyasint,omitempty"`
	Users        *ServerUsers        `cbor:"2,keyasint,omitempty"`
	UserDiff     *ServerUserDiff     `cbor:"3,keyasint,omitempty"`
	Shells       *ServerShells       `cbor:"4,keyasint,omitempty"`
	Chunks       *ServerChunks       `cbor:"5,keyasint,omitempty"`
	Hear         *ServerHear         `cbor:"6,keyasint,omitempty"`
	ShellLatency *ServerShellLatency `cbor:"7,keyasint,omitempty"`
	Pong         *Pong               `cbor:"8,keyasint,omitempty"`
	Error        *ErrorFrame         `cbor:"9,keyasint,omitempty"`
}

// ServerHello is the first frame sent after successful authentication.
type ServerHello struct {
	UserID     uint32 `cbor:"0,keyasint"`
	ServerName string `cbor:"1,keyasint"`
}

// InvalidAuth signals that authentication failed; the connection is closed
// with code 4404 immediately after.
type InvalidAuth struct{}

// NamedShell pairs a shell ID with its window, used in the Shells snapshot.
type NamedShell struct {
	ID     uint32     `cbor:"0,keyasint"`
	Window WindowSpec `cbor:"1,keyasint"`
}

// NamedUser pairs a user ID with its presence record, used in the Users
// snapshot sent right after Hello.
type NamedUser struct {
	ID   uint32 `cbor:"0,keyasint"`
	User User   `cbor:"1,keyasint"`
}

// ServerUsers is the full presence snapshot sent once, right after Hello.
type ServerUsers struct {
	Users []NamedUser `cbor:"0,keyasint"`
}

// ServerUserDiff announces a presence change. A nil User means the user
// with ID left.
type ServerUserDiff struct {
	ID   uint32 `cbor:"0,keyasint"`
	User *User  `cbor:"1,keyasint,omitempty"`
}

// ServerShells is the full shell-table snapshot, sent after any shell is
// created, closed, or moved.
type ServerShells struct {
	Shells []NamedShell `cbor:"0,keyasint"`
}

// ServerChunks delivers backfilled or live ciphertext for a shell.
// StartOffset is the byte offset of the first entry in Chunks.
type ServerChunks struct {
	ShellID     uint32   `cbor:"0,keyasint"`
	StartOffset uint64   `cbor:"1,keyasint"`
	Chunks      [][]byte `cbor:"2,keyasint"`
}

// ServerHear echoes a chat message to every active viewer, including the
// sender.
type ServerHear struct {
	UserID uint32 `cbor:"0,keyasint"`
	Name   string `cbor:"1,keyasint"`
	Text   string `cbor:"2,keyasint"`
}

// ServerShellLatency reports the median of recent host Ping/Pong
// round-trip samples, in milliseconds.
type ServerShellLatency struct {
	MilliRoundTrip int64 `cbor:"0,keyasint"`
}
