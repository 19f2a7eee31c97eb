package hostrunner_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/relaysix/sshx/internal/crypto"
	"github.com/relaysix/sshx/internal/hostrunner"
	"github.com/relaysix/sshx/internal/server"
	"github.com/relaysix/sshx/internal/wire"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) string {
	t.Helper()
	srv, err := server.New([]string{"127.0.0.1:0"}, server.WithBaseURL("http://localhost"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return srv.Addresses()[0]
}

func TestRunnerOpensSessionAndSharesShellOutput(t *testing.T) {
	addr := startTestServer(t)

	passphrase := "correct horse battery staple"
	openedCh := make(chan string, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := hostrunner.New(hostrunner.Config{
		ServerAddress: addr,
		Insecure:      true,
		Passphrase:    passphrase,
		OnOpened:      func(url string) { openedCh <- url },
	}, nil)

	runDone := make(chan error, 1)
	go func() { runDone <- runner.Run(ctx) }()

	var shareURL string
	select {
	case shareURL = <-openedCh:
	case <-time.After(5 * time.Second):
		t.Fatal("session never opened")
	}
	sessionID := shareURL[strings.LastIndex(shareURL, "/")+1:]

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/s/"+sessionID, nil)
	require.NoError(t, err)
	defer ws.Close()

	enc := crypto.New(passphrase)
	sendClient(t, ws, &wire.ClientMessage{Authenticate: &wire.ClientAuthenticate{EncryptedZeros: enc.Zeros()}})

	hello := recvServer(t, ws)
	require.NotNil(t, hello.Hello)

	// Users and Shells snapshots follow Hello.
	_ = recvServer(t, ws)
	_ = recvServer(t, ws)

	sendClient(t, ws, &wire.ClientMessage{Create: &wire.ClientCreate{}})

	var shellID uint32
	var found bool
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		msg := recvServer(t, ws)
		if msg.Shells != nil && len(msg.Shells.Shells) > 0 {
			shellID = msg.Shells.Shells[0].ID
			found = true
			break
		}
	}
	require.True(t, found, "expected a Shells broadcast once the host confirms shell creation")

	sendClient(t, ws, &wire.ClientMessage{Subscribe: &wire.ClientSubscribe{ID: shellID, Chunknum: 0}})

	plaintext := []byte("echo hi\n")
	ciphertext, err := enc.Segment(crypto.StreamViewerInput+uint64(shellID), 0, plaintext)
	require.NoError(t, err)
	sendClient(t, ws, &wire.ClientMessage{Data: &wire.ClientData{ID: shellID, Ciphertext: ciphertext, Offset: 0}})

	var gotChunk bool
	deadline = time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		msg := recvServer(t, ws)
		if msg.Chunks != nil && msg.Chunks.ShellID == shellID && len(msg.Chunks.Chunks) > 0 {
			gotChunk = true
			break
		}
	}
	require.True(t, gotChunk, "expected the shell's echoed output to arrive as chunks")

	cancel()
	select {
	case <-runDone:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not shut down")
	}
}

func sendClient(t *testing.T, ws *websocket.Conn, msg *wire.ClientMessage) {
	t.Helper()
	data, err := wire.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, data))
}

func recvServer(t *testing.T, ws *websocket.Conn) *wire.ServerMessage {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	msg := new(wire.ServerMessage)
	require.NoError(t, wire.Unmarshal(data, msg))
	return msg
}
