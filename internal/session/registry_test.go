package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/relaysix/sshx/internal/mesh"
	"github.com/relaysix/sshx/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCreateRegistersInMesh(t *testing.T) {
	m := mesh.NewRegistry()
	r := session.NewRegistry("replica-1", m, nil)

	s := r.Create([]byte("r"), nil)

	owner, ok := m.Owner(s.ID())
	require.True(t, ok)
	assert.Equal(t, "replica-1", owner)

	found, ok := r.Find(s.ID())
	require.True(t, ok)
	assert.Same(t, s, found)
}

func TestRegistryRemoveDeregisters(t *testing.T) {
	m := mesh.NewRegistry()
	r := session.NewRegistry("replica-1", m, nil)

	s := r.Create([]byte("r"), nil)
	r.Remove(s.ID())

	_, ok := r.Find(s.ID())
	assert.False(t, ok)
	_, ok = m.Owner(s.ID())
	assert.False(t, ok)
}

func TestSweeperSendsSyncToAttachedHost(t *testing.T) {
	m := mesh.NewRegistry()
	r := session.NewRegistry("replica-1", m, nil)
	s := r.Create([]byte("r"), nil)

	hostRecv, err := s.AttachHost()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go r.Run(ctx)

	select {
	case frame := <-hostRecv:
		assert.NotNil(t, frame.Sync)
	case <-time.After(time.Second):
		t.Fatal("host never received a Sync frame from the sweeper")
	}
}

func TestRegistryCloseRequiresMatchingToken(t *testing.T) {
	m := mesh.NewRegistry()
	r := session.NewRegistry("replica-1", m, nil)
	s := r.Create([]byte("r"), nil)

	existed, err := r.Close(s.ID(), "wrong-token")
	assert.True(t, existed)
	assert.ErrorIs(t, err, session.ErrCapabilityMismatch)
	_, ok := r.Find(s.ID())
	assert.True(t, ok, "session must survive a failed close")

	existed, err = r.Close(s.ID(), s.HostToken())
	assert.True(t, existed)
	assert.NoError(t, err)
	_, ok = r.Find(s.ID())
	assert.False(t, ok)
}

func TestRegistryCloseUnknownSession(t *testing.T) {
	m := mesh.NewRegistry()
	r := session.NewRegistry("replica-1", m, nil)

	existed, err := r.Close("does-not-exist", "token")
	assert.False(t, existed)
	assert.NoError(t, err)
}

func TestRegistryRemovesTerminatedSessionsOnSweep(t *testing.T) {
	m := mesh.NewRegistry()
	r := session.NewRegistry("replica-1", m, nil)
	s := r.Create([]byte("r"), nil)
	s.Terminate()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	r.Run(ctx)

	_, ok := r.Find(s.ID())
	assert.False(t, ok)
}
