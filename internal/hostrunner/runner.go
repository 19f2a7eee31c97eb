// Package hostrunner is the host side of a session: it dials the
// coordinator's gRPC service, spawns a PTY-backed shell per Create
// request, and keeps a rolling output buffer so it can satisfy the
// server's periodic reconciliation requests without re-running anything.
package hostrunner

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/relaysix/sshx/internal/crypto"
	"github.com/relaysix/sshx/internal/server/rpc"
	"github.com/relaysix/sshx/internal/wire"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const ptyReadBufSize = 4096

// Config parameterizes a Runner.
type Config struct {
	ServerAddress   string
	Insecure        bool
	Passphrase      string
	WritePassphrase string // empty means every authenticated viewer can write
	Name            string
	ShellEnv        []string
	OnOpened        func(url string) // called once the session has a share URL
}

// Runner drives one host connection for the lifetime of a session.
type Runner struct {
	cfg    Config
	logger *zap.Logger
	enc    *crypto.Encrypt

	mu     sync.Mutex
	shells map[uint32]*shellProc
}

// New builds a Runner from cfg. The passphrase must already be chosen;
// callers typically generate one randomly and fold it into the share URL's
// fragment, which the server never sees.
func New(cfg Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:    cfg,
		logger: logger,
		enc:    crypto.New(cfg.Passphrase),
		shells: make(map[uint32]*shellProc),
	}
}

// Run dials the server, opens a session, and services the host channel
// until ctx is cancelled or the connection fails.
func (r *Runner) Run(ctx context.Context) error {
	var dialOpts []grpc.DialOption
	if r.cfg.Insecure {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.DialContext(ctx, r.cfg.ServerAddress, dialOpts...)
	if err != nil {
		return fmt.Errorf("dial %s: %w", r.cfg.ServerAddress, err)
	}
	defer conn.Close()

	client := rpc.NewClient(conn)

	openReq := &rpc.OpenRequest{
		Origin:         "cli",
		Name:           r.cfg.Name,
		EncryptedZeros: r.enc.Zeros(),
	}
	if r.cfg.WritePassphrase != "" {
		openReq.WritePasswordVerify = crypto.New(r.cfg.WritePassphrase).Zeros()
	}

	opened, err := client.Open(ctx, openReq)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	if r.cfg.OnOpened != nil {
		r.cfg.OnOpened(opened.URL)
	}

	stream, err := client.Channel(ctx)
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	if err := stream.Send(&wire.HostFrame{Hello: &wire.HostHello{SessionID: opened.Name, Token: opened.Token}}); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}

	defer r.closeAllShells()

	for {
		frame, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		r.applyServerFrame(ctx, stream, frame)
	}
}

func (r *Runner) applyServerFrame(ctx context.Context, stream rpc.ChannelClient, frame *wire.ServerFrame) {
	switch {
	case frame.Create != nil:
		r.handleCreate(ctx, stream, frame.Create)
	case frame.Close != nil:
		r.handleClose(frame.Close)
	case frame.Resize != nil:
		r.handleResize(frame.Resize)
	case frame.Input != nil:
		r.handleInput(frame.Input)
	case frame.Sync != nil:
		r.handleSync(stream, frame.Sync)
	case frame.Ping != nil:
		_ = stream.Send(&wire.HostFrame{Pong: &wire.Pong{Timestamp: frame.Ping.Timestamp}})
	}
}

func (r *Runner) handleCreate(ctx context.Context, stream rpc.ChannelClient, req *wire.ShellCreate) {
	sh, err := startShell(req.ID, req.Rows, req.Cols, r.cfg.ShellEnv)
	if err != nil {
		r.logger.Warn("failed to start shell", zap.Uint32("shell_id", req.ID), zap.Error(err))
		return
	}

	r.mu.Lock()
	r.shells[req.ID] = sh
	r.mu.Unlock()

	if err := stream.Send(&wire.HostFrame{CreatedShell: &wire.CreatedShell{ID: req.ID, Rows: req.Rows, Cols: req.Cols}}); err != nil {
		return
	}

	go r.pumpShellOutput(ctx, stream, sh)
}

func (r *Runner) handleClose(req *wire.ShellClose) {
	r.mu.Lock()
	sh, ok := r.shells[req.ID]
	delete(r.shells, req.ID)
	r.mu.Unlock()
	if ok {
		sh.close()
	}
}

func (r *Runner) handleResize(req *wire.ShellResize) {
	r.mu.Lock()
	sh, ok := r.shells[req.ID]
	r.mu.Unlock()
	if ok {
		_ = sh.resize(req.Rows, req.Cols)
	}
}

func (r *Runner) handleInput(req *wire.ServerInput) {
	r.mu.Lock()
	sh, ok := r.shells[req.ShellID]
	r.mu.Unlock()
	if !ok {
		return
	}

	plaintext, err := r.enc.Segment(crypto.StreamViewerInput+uint64(req.ShellID), req.Offset, req.Ciphertext)
	if err != nil {
		r.logger.Warn("failed to decrypt input", zap.Uint32("shell_id", req.ShellID), zap.Error(err))
		return
	}
	if _, err := sh.pty.Write(plaintext); err != nil {
		r.logger.Warn("failed to write to pty", zap.Uint32("shell_id", req.ShellID), zap.Error(err))
	}
}

// handleSync re-encrypts and resends any output a shell still holds beyond
// what the server last acknowledged, letting a reconnecting server catch
// up without the host having to replay the shell itself.
func (r *Runner) handleSync(stream rpc.ChannelClient, sync *wire.ServerSync) {
	for _, shellSync := range sync.Shells {
		r.mu.Lock()
		sh, ok := r.shells[shellSync.ID]
		r.mu.Unlock()
		if !ok {
			continue
		}

		start, chunks, _ := sh.log.Snapshot(shellSync.Offset)
		offset := start
		for _, chunk := range chunks {
			ciphertext, err := r.enc.Segment(crypto.StreamShellBase+uint64(shellSync.ID), offset, chunk)
			if err != nil {
				r.logger.Warn("failed to encrypt resend chunk", zap.Uint32("shell_id", shellSync.ID), zap.Error(err))
				break
			}
			if err := stream.Send(&wire.HostFrame{Data: &wire.HostData{ShellID: shellSync.ID, Ciphertext: ciphertext, Seq: offset}}); err != nil {
				return
			}
			offset += uint64(len(chunk))
		}
	}
}

func (r *Runner) pumpShellOutput(ctx context.Context, stream rpc.ChannelClient, sh *shellProc) {
	buf := make([]byte, ptyReadBufSize)
	for {
		n, err := sh.pty.Read(buf)
		if n > 0 {
			offset, appendErr := sh.log.Append(buf[:n])
			if appendErr == nil {
				ciphertext, encErr := r.enc.Segment(crypto.StreamShellBase+uint64(sh.id), offset, buf[:n])
				if encErr == nil {
					_ = stream.Send(&wire.HostFrame{Data: &wire.HostData{ShellID: sh.id, Ciphertext: ciphertext, Seq: offset}})
				}
			}
		}
		if err != nil {
			r.mu.Lock()
			delete(r.shells, sh.id)
			r.mu.Unlock()
			sh.close()
			_ = stream.Send(&wire.HostFrame{ClosedShell: &wire.ClosedShell{ID: sh.id}})
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (r *Runner) closeAllShells() {
	r.mu.Lock()
	shells := make([]*shellProc, 0, len(r.shells))
	for _, sh := range r.shells {
		shells = append(shells, sh)
	}
	r.shells = make(map[uint32]*shellProc)
	r.mu.Unlock()

	for _, sh := range shells {
		sh.close()
	}
}
