// Package idgen generates the short, URL-safe identifiers used to name
// sessions. Unlike the locator used by the reference terminal-sharing
// service (a full UUID), session IDs here appear in a URL path segment
// shared out-of-band, so they are kept short.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// SessionID length in characters, matching the ID space described for the
// service's share URLs.
const SessionIDLength = 10

// SessionID returns a random 10-character URL-safe identifier.
func SessionID() string {
	return random(SessionIDLength)
}

// tokenBytes is the amount of entropy backing a host bearer token.
const tokenBytes = 32

// Token returns a random hex-encoded host authentication token, handed out
// once by Open and required on every later call the host makes for that
// session.
func Token() string {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

// PassphraseLength is the length in characters of a generated encryption
// passphrase, carried in the share URL fragment and never sent to the
// server.
const PassphraseLength = 22

// Passphrase returns a random passphrase suitable for deriving a session's
// end-to-end encryption key.
func Passphrase() string {
	return random(PassphraseLength)
}

func random(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf)
}
