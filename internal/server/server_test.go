package server_test

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/relaysix/sshx/internal/server"
	"github.com/relaysix/sshx/internal/server/rpc"
	"github.com/relaysix/sshx/internal/wire"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func startServer(t *testing.T) (addr string, stop func()) {
	t.Helper()

	srv, err := server.New([]string{"127.0.0.1:0"}, server.WithBaseURL("https://sshx.example.com"))
	require.NoError(t, err)
	addr = srv.Addresses()[0]

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.Run(ctx)
		close(done)
	}()

	return addr, func() {
		cancel()
		<-done
	}
}

func TestOpenAndHostChannelHandshake(t *testing.T) {
	addr, stop := startServer(t)
	defer stop()

	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client := rpc.NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opened, err := client.Open(ctx, &rpc.OpenRequest{Origin: "test-host", EncryptedZeros: []byte("verifier")})
	require.NoError(t, err)
	require.NotEmpty(t, opened.Token)
	require.Equal(t, "https://sshx.example.com/s/"+opened.Name, opened.URL)

	stream, err := client.Channel(ctx)
	require.NoError(t, err)

	require.NoError(t, stream.Send(&wire.HostFrame{Hello: &wire.HostHello{SessionID: opened.Name, Token: opened.Token}}))
	require.NoError(t, stream.Send(&wire.HostFrame{CreatedShell: &wire.CreatedShell{ID: 0, Rows: 24, Cols: 80}}))

	frame, err := stream.Recv()
	require.NoError(t, err)
	require.NotNil(t, frame.Sync, "the periodic reconciliation frame should arrive first")
}

func TestOpenAndViewerWebSocketHandshake(t *testing.T) {
	addr, stop := startServer(t)
	defer stop()

	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := rpc.NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opened, err := client.Open(ctx, &rpc.OpenRequest{EncryptedZeros: []byte("verifier")})
	require.NoError(t, err)

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/s/"+opened.Name, nil)
	require.NoError(t, err)
	defer ws.Close()

	data, err := wire.Marshal(&wire.ClientMessage{Authenticate: &wire.ClientAuthenticate{EncryptedZeros: []byte("verifier")}})
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, data))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, reply, err := ws.ReadMessage()
	require.NoError(t, err)

	msg := new(wire.ServerMessage)
	require.NoError(t, wire.Unmarshal(reply, msg))
	require.NotNil(t, msg.Hello)
}

func TestViewerRejectsUnknownSession(t *testing.T) {
	addr, stop := startServer(t)
	defer stop()

	_, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/s/does-not-exist", nil)
	require.Error(t, err)
	require.Equal(t, 404, resp.StatusCode)
}
