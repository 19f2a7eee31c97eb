package rpc_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/relaysix/sshx/internal/apierror"
	"github.com/relaysix/sshx/internal/mesh"
	"github.com/relaysix/sshx/internal/server/rpc"
	"github.com/relaysix/sshx/internal/session"
	"github.com/relaysix/sshx/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"
)

func newHandler() (*rpc.Handler, *session.Registry) {
	registry := session.NewRegistry("replica-1", mesh.NewRegistry(), nil)
	return rpc.NewHandler(registry, "https://sshx.example.com", nil), registry
}

func TestOpenReturnsShareURLAndToken(t *testing.T) {
	h, registry := newHandler()

	resp, err := h.Open(context.Background(), &rpc.OpenRequest{
		Origin:         "cli",
		EncryptedZeros: []byte("verifier"),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://sshx.example.com/s/"+resp.Name, resp.URL)
	assert.NotEmpty(t, resp.Token)

	s, ok := registry.Find(resp.Name)
	require.True(t, ok)
	assert.True(t, s.CheckToken(resp.Token))
}

func TestOpenRejectsMissingVerifier(t *testing.T) {
	h, _ := newHandler()
	_, err := h.Open(context.Background(), &rpc.OpenRequest{Origin: "cli"})
	require.Error(t, err)
	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, apierror.BadAuth, apiErr.Kind)
}

func TestCloseRejectsWrongToken(t *testing.T) {
	h, _ := newHandler()
	opened, err := h.Open(context.Background(), &rpc.OpenRequest{EncryptedZeros: []byte("v")})
	require.NoError(t, err)

	_, err = h.Close(context.Background(), &rpc.CloseRequest{Name: opened.Name, Token: "wrong"})
	require.Error(t, err)

	resp, err := h.Close(context.Background(), &rpc.CloseRequest{Name: opened.Name, Token: opened.Token})
	require.NoError(t, err)
	assert.True(t, resp.Exists)
}

// fakeChannelServer is a minimal grpc.ServerStream stand-in that lets
// Handler.Channel be exercised without a real network connection.
type fakeChannelServer struct {
	ctx  context.Context
	recv chan *wire.HostFrame
	send chan *wire.ServerFrame
}

func newFakeChannelServer(ctx context.Context) *fakeChannelServer {
	return &fakeChannelServer{ctx: ctx, recv: make(chan *wire.HostFrame, 16), send: make(chan *wire.ServerFrame, 16)}
}

func (f *fakeChannelServer) Send(m *wire.ServerFrame) error {
	select {
	case f.send <- m:
		return nil
	case <-f.ctx.Done():
		return f.ctx.Err()
	}
}

func (f *fakeChannelServer) Recv() (*wire.HostFrame, error) {
	select {
	case m, ok := <-f.recv:
		if !ok {
			return nil, io.EOF
		}
		return m, nil
	case <-f.ctx.Done():
		return nil, f.ctx.Err()
	}
}

func (f *fakeChannelServer) SetHeader(metadata.MD) error  { return nil }
func (f *fakeChannelServer) SendHeader(metadata.MD) error { return nil }
func (f *fakeChannelServer) SetTrailer(metadata.MD)       {}
func (f *fakeChannelServer) Context() context.Context     { return f.ctx }
func (f *fakeChannelServer) SendMsg(m interface{}) error  { return errors.New("unused") }
func (f *fakeChannelServer) RecvMsg(m interface{}) error  { return errors.New("unused") }

func TestChannelRejectsBadHello(t *testing.T) {
	h, _ := newHandler()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := newFakeChannelServer(ctx)
	stream.recv <- &wire.HostFrame{Data: &wire.HostData{}}

	err := h.Channel(stream)
	require.Error(t, err)
	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, apierror.ProtocolError, apiErr.Kind)
}

func TestChannelAppliesCreatedShellAndData(t *testing.T) {
	h, registry := newHandler()
	opened, err := h.Open(context.Background(), &rpc.OpenRequest{EncryptedZeros: []byte("v")})
	require.NoError(t, err)
	s, _ := registry.Find(opened.Name)

	sh := s.RequestShellCreate(0, 0, 24, 80)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := newFakeChannelServer(ctx)
	stream.recv <- &wire.HostFrame{Hello: &wire.HostHello{SessionID: opened.Name, Token: opened.Token}}
	stream.recv <- &wire.HostFrame{CreatedShell: &wire.CreatedShell{ID: sh.ID, Rows: 24, Cols: 80}}
	stream.recv <- &wire.HostFrame{Data: &wire.HostData{ShellID: sh.ID, Ciphertext: []byte("hello")}}

	done := make(chan error, 1)
	go func() { done <- h.Channel(stream) }()

	// Let the handler drain the queued frames before tearing the stream down.
	assertShellVisible(t, s, sh.ID)
	require.Eventually(t, func() bool { return sh.Log.Offset() == 5 }, time.Second, time.Millisecond)
	close(stream.recv)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("Channel did not return")
	}
}

func assertShellVisible(t *testing.T, s *session.Session, id uint32) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, sh := range s.VisibleShells() {
			if sh.ID == id {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
}
