// Package zapfields builds zap.Field values shared by the coordinator's
// transports, so a session ID, host token, or verifier is always logged the
// same way regardless of which handler produced the line.
package zapfields

import (
	"crypto/sha256"
	"encoding/hex"

	"go.uber.org/zap"
)

const (
	sessionIDField = "session-id"
	hostTokenField = "host-token-hashed"
	readKeyField   = "read-verifier-hashed"
)

// SessionID logs a session's public identifier directly - it's already
// shared out-of-band with every viewer, so it carries no secrecy.
func SessionID(id string) zap.Field {
	return zap.String(sessionIDField, id)
}

// HostToken logs a SHA-256 digest of a host bearer token, never the token
// itself.
func HostToken(token string) zap.Field {
	return zap.String(hostTokenField, hashed(token))
}

// ReadKey logs a SHA-256 digest of a session's read verifier.
func ReadKey(verifier []byte) zap.Field {
	return zap.String(readKeyField, hashed(string(verifier)))
}

func hashed(s string) string {
	digest := sha256.Sum256([]byte(s))
	return hex.EncodeToString(digest[:])
}
