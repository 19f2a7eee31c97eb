// Package rpc implements the host-facing gRPC service: a host opens a
// session, then holds a single bidirectional Channel stream for the
// lifetime of its connection.
package rpc

// OpenRequest starts a new session. EncryptedZeros is the read verifier -
// the encryption of a 16-byte zero block under the session key - which lets
// the server confirm a viewer's passphrase without ever seeing it.
type OpenRequest struct {
	Origin              string `cbor:"0,keyasint"`
	EncryptedZeros      []byte `cbor:"1,keyasint"`
	Name                string `cbor:"2,keyasint,omitempty"`
	WritePasswordVerify []byte `cbor:"3,keyasint,omitempty"`
}

// OpenResponse returns the session's public name, a bearer token the host
// must present on every later call, and the URL to share with viewers.
type OpenResponse struct {
	Name  string `cbor:"0,keyasint"`
	Token string `cbor:"1,keyasint"`
	URL   string `cbor:"2,keyasint"`
}

// CloseRequest ends a session early, authenticated by the token returned
// from Open.
type CloseRequest struct {
	Name  string `cbor:"0,keyasint"`
	Token string `cbor:"1,keyasint"`
}

// CloseResponse reports whether the named session existed.
type CloseResponse struct {
	Exists bool `cbor:"0,keyasint"`
}
