// Package crypto implements the end-to-end encryption shared by hosts and
// viewers. The server never holds the derived key: it only stores and
// compares verifiers, so it can relay ciphertext without ever decrypting it.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/argon2"
)

// salt is public - it is shipped to the browser bundle - and exists only to
// make rainbow-table attacks against short keys more expensive.
const salt = "This is a non-random salt for sshx.io, since we want to stretch the security of 83-bit keys!"

const (
	argon2Memory  = 19 * 1024 // KiB
	argon2Time    = 2
	argon2Threads = 1
	keyLen        = 16
)

// Reserved stream numbers. StreamNum 0 is withheld for the verifier and must
// never be passed to Segment.
const (
	StreamAuth        = 0
	StreamShellBase   = 0x1_0000_0000
	StreamViewerInput = 0x2_0000_0000
)

// ErrZeroStream is returned by Segment when called with the reserved
// authentication stream number.
var ErrZeroStream = errors.New("crypto: stream number must be nonzero")

// Encrypt derives an AES-128 key from a passphrase and encrypts byte segments
// addressed by a (stream, offset) pair using AES-CTR.
type Encrypt struct {
	key [keyLen]byte
}

// New derives the AES key from key using Argon2id with parameters fixed to
// match the browser-side implementation.
func New(key string) *Encrypt {
	derived := argon2.IDKey([]byte(key), []byte(salt), argon2Time, argon2Memory, argon2Threads, keyLen)
	e := &Encrypt{}
	copy(e.key[:], derived)
	return e
}

// Zeros returns the verifier: the encryption of a 16-byte zero block under
// stream 0, offset 0. Two Encrypt values derived from the same passphrase
// produce identical verifiers without ever exchanging the key.
func (e *Encrypt) Zeros() []byte {
	var iv [16]byte
	block, err := aes.NewCipher(e.key[:])
	if err != nil {
		panic(err)
	}
	stream := cipher.NewCTR(block, iv[:])
	zeros := make([]byte, keyLen)
	stream.XORKeyStream(zeros, zeros)
	return zeros
}

// Segment encrypts (or, symmetrically, decrypts) data starting at offset
// bytes into the logical stream identified by streamNum. streamNum must be
// nonzero to avoid colliding with the verifier's reserved stream.
func (e *Encrypt) Segment(streamNum uint64, offset uint64, data []byte) ([]byte, error) {
	if streamNum == 0 {
		return nil, ErrZeroStream
	}

	var iv [16]byte
	binary.BigEndian.PutUint64(iv[0:8], streamNum)
	binary.BigEndian.PutUint64(iv[8:16], offset>>4)

	block, err := aes.NewCipher(e.key[:])
	if err != nil {
		return nil, err
	}
	stream := cipher.NewCTR(block, iv[:])

	// The counter only advances in whole 16-byte blocks, so an offset that
	// isn't block-aligned needs the keystream pre-rolled by the remainder
	// before the real data starts; that padding is then discarded.
	pad := int(offset & 0xf)
	buf := make([]byte, pad+len(data))
	copy(buf[pad:], data)
	stream.XORKeyStream(buf, buf)
	return buf[pad:], nil
}
