package session_test

import (
	"testing"
	"time"

	"github.com/relaysix/sshx/internal/apierror"
	"github.com/relaysix/sshx/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingleHostInvariant(t *testing.T) {
	s := session.New("abc1234567", []byte("verifier"), nil)

	_, err := s.AttachHost()
	require.NoError(t, err)

	_, err = s.AttachHost()
	require.Error(t, err)
	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, apierror.AlreadyAttached, apiErr.Kind)

	s.DetachHost()
	_, err = s.AttachHost()
	assert.NoError(t, err)
}

func TestReadAndWriteVerifiers(t *testing.T) {
	s := session.New("abc1234567", []byte("read-verifier-32-bytes-long!!!!"), []byte("write-verifier-32-bytes-long!!!"))

	assert.True(t, s.CheckReadVerifier([]byte("read-verifier-32-bytes-long!!!!")))
	assert.False(t, s.CheckReadVerifier([]byte("wrong")))

	assert.True(t, s.HasWriteVerifier())
	assert.True(t, s.CheckWriteVerifier([]byte("write-verifier-32-bytes-long!!!")))
	assert.False(t, s.CheckWriteVerifier([]byte("wrong")))
}

func TestNoWriteVerifierMeansOpenWrite(t *testing.T) {
	s := session.New("abc1234567", []byte("r"), nil)
	assert.False(t, s.HasWriteVerifier())
}

func TestShellLifecycle(t *testing.T) {
	s := session.New("abc1234567", []byte("r"), nil)

	sh := s.RequestShellCreate(0, 0, 24, 80)
	assert.False(t, sh.Confirmed())
	assert.Empty(t, s.VisibleShells(), "unconfirmed shell must not be visible yet")

	confirmed, ok := s.ConfirmShellCreated(sh.ID, 24, 80)
	require.True(t, ok)
	assert.True(t, confirmed.Confirmed())
	assert.Len(t, s.VisibleShells(), 1)

	s.ConfirmShellClosed(sh.ID)
	_, ok = s.Shell(sh.ID)
	assert.False(t, ok)
	assert.Empty(t, s.VisibleShells())
}

func TestUserLifecycleAndMetadataNotify(t *testing.T) {
	s := session.New("abc1234567", []byte("r"), nil)

	wait := s.MetadataWait()

	u := s.AddUser(true)
	assert.True(t, u.SetName("alice"))
	s.NotifyMetadataChanged()

	select {
	case <-wait:
	case <-time.After(time.Second):
		t.Fatal("metadata notifier did not wake after NotifyMetadataChanged")
	}

	users := s.VisibleUsers()
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].User.Name)

	s.RemoveUser(u.ID)
	assert.Empty(t, s.VisibleUsers())
}

func TestMedianLatency(t *testing.T) {
	s := session.New("abc1234567", []byte("r"), nil)

	_, ok := s.MedianLatency()
	assert.False(t, ok)

	s.RecordLatency(30 * time.Millisecond)
	s.RecordLatency(10 * time.Millisecond)
	s.RecordLatency(20 * time.Millisecond)

	median, ok := s.MedianLatency()
	require.True(t, ok)
	assert.Equal(t, 20*time.Millisecond, median)
}

func TestUserNameValidation(t *testing.T) {
	s := session.New("abc1234567", []byte("r"), nil)
	u := s.AddUser(true)

	assert.False(t, u.SetName(""))
	assert.False(t, u.SetName(string(make([]byte, 51))))
	assert.True(t, u.SetName("bob"))
}
