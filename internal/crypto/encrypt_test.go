package crypto_test

import (
	"testing"

	"github.com/relaysix/sshx/internal/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerosMatchesKnownVector(t *testing.T) {
	e := crypto.New("test")
	assert.Equal(t,
		[]byte{198, 3, 249, 238, 65, 10, 224, 98, 253, 73, 148, 1, 138, 3, 108, 143},
		e.Zeros())
}

func TestSegmentRoundtrip(t *testing.T) {
	e := crypto.New("this is a test key")
	data := []byte("hello world")

	encrypted, err := e.Segment(1, 0, data)
	require.NoError(t, err)
	require.Len(t, encrypted, len(data))

	decrypted, err := e.Segment(1, 0, encrypted)
	require.NoError(t, err)
	assert.Equal(t, data, decrypted)
}

func TestSegmentMatchesOffset(t *testing.T) {
	e := crypto.New("this is a test key")
	data := []byte("1st block.(16B)|2nd block......|3rd block")

	encrypted, err := e.Segment(1, 0, data)
	require.NoError(t, err)
	require.Len(t, encrypted, len(data))

	for i := 1; i < len(data); i++ {
		suffix, err := e.Segment(1, uint64(i), data[i:])
		require.NoError(t, err)
		assert.Equal(t, encrypted[i:], suffix)
	}
}

func TestSegmentRejectsZeroStream(t *testing.T) {
	e := crypto.New("this is a test key")
	_, err := e.Segment(0, 0, []byte("hello world"))
	require.ErrorIs(t, err, crypto.ErrZeroStream)
}

func TestSegmentDifferentOffsetsDontCollide(t *testing.T) {
	e := crypto.New("key")
	a, err := e.Segment(crypto.StreamShellBase|1, 0, []byte("aaaa"))
	require.NoError(t, err)
	b, err := e.Segment(crypto.StreamShellBase|1, 4, []byte("aaaa"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
