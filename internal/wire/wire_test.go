package wire_test

import (
	"testing"

	"github.com/relaysix/sshx/internal/wire"
	"github.com/stretchr/testify/require"
)

func TestClientMessageRoundtrip(t *testing.T) {
	msg := wire.ClientMessage{
		Subscribe: &wire.ClientSubscribe{ID: 3, Chunknum: 7},
	}

	encoded, err := wire.Marshal(msg)
	require.NoError(t, err)

	var decoded wire.ClientMessage
	require.NoError(t, wire.Unmarshal(encoded, &decoded))
	require.NotNil(t, decoded.Subscribe)
	require.Nil(t, decoded.Authenticate)
	require.Equal(t, uint32(3), decoded.Subscribe.ID)
	require.EqualValues(t, 7, decoded.Subscribe.Chunknum)
}

func TestServerFrameRoundtripHostSync(t *testing.T) {
	msg := wire.ServerFrame{
		Sync: &wire.ServerSync{Shells: []wire.ShellSync{{ID: 1, Offset: 42}}},
	}

	encoded, err := wire.Marshal(msg)
	require.NoError(t, err)

	var decoded wire.ServerFrame
	require.NoError(t, wire.Unmarshal(encoded, &decoded))
	require.NotNil(t, decoded.Sync)
	require.Len(t, decoded.Sync.Shells, 1)
	require.EqualValues(t, 42, decoded.Sync.Shells[0].Offset)
}
