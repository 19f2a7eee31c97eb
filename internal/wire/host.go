package wire

// HostFrame is sent from the host process to its home replica over the
// bidirectional Channel RPC. Exactly one field is set per frame, mirroring
// the oneof shape a protoc-generated message would have; fxamacker/cbor's
// keyasint tags keep the wire form as compact as an equivalent protobuf
// message despite the lack of a .proto-generated codec.
type HostFrame struct {
	Hello        *HostHello   `cbor:"0,keyasint,omitempty"`
	Data         *HostData    `cbor:"1,keyasint,omitempty"`
	CreatedShell *CreatedShell `cbor:"2,keyasint,omitempty"`
	ClosedShell  *ClosedShell `cbor:"3,keyasint,omitempty"`
	Pong         *Pong        `cbor:"4,keyasint,omitempty"`
	Error        *ErrorFrame  `cbor:"5,keyasint,omitempty"`
}

// HostHello authenticates the host to the session named by SessionID using
// the opaque capability Token returned from Open.
type HostHello struct {
	SessionID string `cbor:"0,keyasint"`
	Token     string `cbor:"1,keyasint"`
}

// HostData carries new ciphertext output bytes for a shell. Seq lets the
// server detect and drop frames resent as part of reconciliation that it
// already applied.
type HostData struct {
	ShellID    uint32 `cbor:"0,keyasint"`
	Ciphertext []byte `cbor:"1,keyasint"`
	Seq        uint64 `cbor:"2,keyasint"`
}

// CreatedShell confirms that a shell requested via ServerFrame.Create now
// exists on the host.
type CreatedShell struct {
	ID   uint32 `cbor:"0,keyasint"`
	Rows uint32 `cbor:"1,keyasint"`
	Cols uint32 `cbor:"2,keyasint"`
}

// ClosedShell confirms that a shell has exited on the host.
type ClosedShell struct {
	ID uint32 `cbor:"0,keyasint"`
}

// Pong answers a ServerFrame.Ping with the original timestamp echoed back.
type Pong struct {
	Timestamp int64 `cbor:"0,keyasint"`
}

// ErrorFrame carries a human-readable, advisory error message.
type ErrorFrame struct {
	Message string `cbor:"0,keyasint"`
}

// ServerFrame is sent from a replica to the attached host.
type ServerFrame struct {
	Input  *ServerInput `cbor:"0,keyasint,omitempty"`
	Create *ShellCreate `cbor:"1,keyasint,omitempty"`
	Close  *ShellClose  `cbor:"2,keyasint,omitempty"`
	Resize *ShellResize `cbor:"3,keyasint,omitempty"`
	Sync   *ServerSync  `cbor:"4,keyasint,omitempty"`
	Ping   *Ping        `cbor:"5,keyasint,omitempty"`
}

// ServerInput is a keystroke to write into the shell's PTY, expressed as an
// absolute byte Offset in the viewer->host input stream so a reconnecting
// host can tell whether it already applied it.
type ServerInput struct {
	ShellID    uint32 `cbor:"0,keyasint"`
	Ciphertext []byte `cbor:"1,keyasint"`
	Offset     uint64 `cbor:"2,keyasint"`
}

// ShellCreate asks the host to spawn a new shell with the given ID and
// initial window.
type ShellCreate struct {
	ID   uint32 `cbor:"0,keyasint"`
	Rows uint32 `cbor:"1,keyasint"`
	Cols uint32 `cbor:"2,keyasint"`
}

// ShellClose asks the host to terminate a shell.
type ShellClose struct {
	ID uint32 `cbor:"0,keyasint"`
}

// ShellResize asks the host to resize a shell's PTY.
type ShellResize struct {
	ID   uint32 `cbor:"0,keyasint"`
	Rows uint32 `cbor:"1,keyasint"`
	Cols uint32 `cbor:"2,keyasint"`
}

// ShellSync pairs a shell ID with the byte offset the server has recorded
// for it, so the host can detect and retransmit a gap.
type ShellSync struct {
	ID     uint32 `cbor:"0,keyasint"`
	Offset uint64 `cbor:"1,keyasint"`
}

// ServerSync is the periodic reconciliation frame: for each shell the server
// knows about, the byte offset it has recorded. The host resends any bytes
// beyond that offset that it still holds.
type ServerSync struct {
	Shells []ShellSync `cbor:"0,keyasint"`
}

// Ping requests a Pong carrying the same timestamp, used to estimate
// host<->replica latency for the whole host connection.
type Ping struct {
	Timestamp int64 `cbor:"0,keyasint"`
}
