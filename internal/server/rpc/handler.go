package rpc

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/relaysix/sshx/internal/apierror"
	"github.com/relaysix/sshx/internal/session"
	"github.com/relaysix/sshx/internal/wire"
	"github.com/relaysix/sshx/internal/zapfields"
	"go.uber.org/zap"
)

// Handler implements Server against a session.Registry.
type Handler struct {
	sessions  *session.Registry
	baseURL   string
	logger    *zap.Logger
	traceFunc func(context.Context) []zap.Field
}

// NewHandler returns a Handler serving sessions out of sessions, minting
// share URLs under baseURL (e.g. "https://sshx.example.com").
func NewHandler(sessions *session.Registry, baseURL string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sessions: sessions, baseURL: baseURL, logger: logger}
}

// SetTraceContext attaches a function that extracts GCP Cloud Trace fields
// from a stream's context, so every log line for a Channel call carries the
// same trace ID a Cloud Logging viewer would use to correlate it with the
// HTTP request that opened the underlying connection.
func (h *Handler) SetTraceContext(f func(context.Context) []zap.Field) {
	h.traceFunc = f
}

func (h *Handler) trace(ctx context.Context) []zap.Field {
	if h.traceFunc == nil {
		return nil
	}
	return h.traceFunc(ctx)
}

// Open creates a new session and returns its share URL and host token.
func (h *Handler) Open(ctx context.Context, req *OpenRequest) (*OpenResponse, error) {
	if len(req.EncryptedZeros) == 0 {
		return nil, apierror.New(apierror.BadAuth, "open: missing encrypted verifier")
	}

	s := h.sessions.Create(req.EncryptedZeros, req.WritePasswordVerify)
	h.logger.Info("session opened",
		zapfields.SessionID(s.ID()),
		zapfields.ReadKey(req.EncryptedZeros),
		zapfields.HostToken(s.HostToken()),
		zap.String("origin", req.Origin),
		zap.Bool("write_protected", s.HasWriteVerifier()))

	return &OpenResponse{
		Name:  s.ID(),
		Token: s.HostToken(),
		URL:   fmt.Sprintf("%s/s/%s", h.baseURL, s.ID()),
	}, nil
}

// Close terminates a session named by req.Name if req.Token matches its
// host bearer token.
func (h *Handler) Close(ctx context.Context, req *CloseRequest) (*CloseResponse, error) {
	existed, err := h.sessions.Close(req.Name, req.Token)
	if err != nil {
		return nil, err
	}
	return &CloseResponse{Exists: existed}, nil
}

// Channel is the host's single long-lived bidirectional stream: the first
// frame must be a Hello authenticating to a session, after which the
// handler pumps ServerFrame values out to the host and applies inbound
// HostFrame values to session state until the stream ends.
func (h *Handler) Channel(stream ChannelServer) error {
	first, err := stream.Recv()
	if err != nil {
		return err
	}
	if first.Hello == nil {
		return apierror.New(apierror.ProtocolError, "channel: first frame must be Hello")
	}

	s, ok := h.sessions.Find(first.Hello.SessionID)
	if !ok {
		return apierror.New(apierror.NotFound, "channel: unknown session %s", first.Hello.SessionID)
	}
	if !s.CheckToken(first.Hello.Token) {
		return apierror.New(apierror.BadAuth, "channel: bad host token for session %s", first.Hello.SessionID)
	}

	hostRecv, err := s.AttachHost()
	if err != nil {
		return err
	}
	defer s.DetachHost()

	logger := h.logger.With(h.trace(stream.Context())...)
	logger.Info("host attached", zapfields.SessionID(s.ID()))
	defer logger.Info("host detached", zapfields.SessionID(s.ID()))

	errCh := make(chan error, 2)

	go func() {
		for {
			select {
			case frame, more := <-hostRecv:
				if !more {
					errCh <- nil
					return
				}
				if err := stream.Send(frame); err != nil {
					errCh <- err
					return
				}
			case <-s.HostKicked():
				errCh <- apierror.New(apierror.Internal, "channel: host timed out")
				return
			case <-s.Terminated():
				errCh <- apierror.New(apierror.NotFound, "channel: session %s terminated", s.ID())
				return
			case <-stream.Context().Done():
				errCh <- stream.Context().Err()
				return
			}
		}
	}()

	go func() {
		for {
			frame, err := stream.Recv()
			if err != nil {
				if err == io.EOF {
					errCh <- nil
				} else {
					errCh <- err
				}
				return
			}
			h.applyHostFrame(s, frame)
		}
	}()

	return <-errCh
}

func (h *Handler) applyHostFrame(s *session.Session, frame *wire.HostFrame) {
	s.TouchHostActivity()

	switch {
	case frame.Data != nil:
		if sh, ok := s.Shell(frame.Data.ShellID); ok {
			if _, err := sh.Log.AppendAt(frame.Data.Seq, frame.Data.Ciphertext); err != nil {
				h.logger.Debug("dropped data for closed shell",
					zapfields.SessionID(s.ID()), zap.Uint32("shell_id", frame.Data.ShellID))
			}
		}
	case frame.CreatedShell != nil:
		s.ConfirmShellCreated(frame.CreatedShell.ID, frame.CreatedShell.Rows, frame.CreatedShell.Cols)
	case frame.ClosedShell != nil:
		s.ConfirmShellClosed(frame.ClosedShell.ID)
	case frame.Pong != nil:
		sentAt := time.UnixMilli(frame.Pong.Timestamp)
		if rtt := time.Since(sentAt); rtt > 0 {
			s.RecordLatency(rtt)
		}
	case frame.Error != nil:
		h.logger.Warn("host reported error",
			zapfields.SessionID(s.ID()), zap.String("message", frame.Error.Message))
	}
}
