package hostrunner

import (
	"bytes"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShellEnvPassthrough(t *testing.T) {
	require.NoError(t, os.Setenv("HOSTRUNNER_TEST_CANARY", "some value"))

	sh, err := startShell(0, 24, 80, nil)
	require.NoError(t, err)
	defer sh.close()

	_, err = sh.pty.Write([]byte("env; exit\n"))
	require.NoError(t, err)

	buf := readUntilEOF(t, sh.pty)
	assert.Contains(t, buf.String(), "HOSTRUNNER_TEST_CANARY=some value")
}

func TestShellEnvCustom(t *testing.T) {
	sh, err := startShell(0, 24, 80, []string{"HOSTRUNNER_TEST_CANARY=custom value"})
	require.NoError(t, err)
	defer sh.close()

	_, err = sh.pty.Write([]byte("env; exit\n"))
	require.NoError(t, err)

	buf := readUntilEOF(t, sh.pty)
	assert.Contains(t, buf.String(), "HOSTRUNNER_TEST_CANARY=custom value")
}

func TestShellResizeUpdatesLogWindow(t *testing.T) {
	sh, err := startShell(0, 24, 80, nil)
	require.NoError(t, err)
	defer sh.close()

	require.NoError(t, sh.resize(40, 120))
	window := sh.log.Window()
	assert.Equal(t, uint32(40), window.Rows)
	assert.Equal(t, uint32(120), window.Cols)
}

func TestShellCloseIsIdempotent(t *testing.T) {
	sh, err := startShell(0, 24, 80, nil)
	require.NoError(t, err)

	sh.close()
	sh.close()
	assert.True(t, sh.log.Closed())
}

func readUntilEOF(t *testing.T, r io.Reader) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)
	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(buf, r)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out reading shell output")
	}
	return buf
}
