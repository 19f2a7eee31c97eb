// Package server wires the session coordinator to its two transports: a
// gRPC (and gRPC-Web) service for hosts, and a WebSocket endpoint for
// viewers, behind one HTTP listener.
package server

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/improbable-eng/grpc-web/go/grpcweb"
	"github.com/relaysix/sshx/internal/mesh"
	"github.com/relaysix/sshx/internal/server/rpc"
	"github.com/relaysix/sshx/internal/server/viewer"
	"github.com/relaysix/sshx/internal/session"
	"github.com/relaysix/sshx/internal/zapfields"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

const keepaliveInterval = 1 * time.Minute

// Server hosts the sshx session coordinator: a gRPC/gRPC-Web endpoint for
// hosts and a WebSocket endpoint for viewers, sharing one session.Registry.
type Server struct {
	logger *zap.Logger

	baseURL    string
	replicaID  string
	mesh       mesh.Mesh
	originFunc WebsocketOriginFunc

	registry      *session.Registry
	rpcHandler    *rpc.Handler
	viewerHandler *viewer.Handler
	upgrader      websocket.Upgrader

	addresses []string
	listeners []net.Listener
	tlsConfig *tls.Config

	gcpProjectID string
}

// New builds a Server and binds its listeners; it does not start serving
// until Run is called.
func New(addresses []string, opts ...Option) (*Server, error) {
	s := &Server{addresses: addresses}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.replicaID == "" {
		s.replicaID = uuid.NewString()
	}
	if s.mesh == nil {
		s.mesh = mesh.NewRegistry()
	}
	if s.originFunc == nil {
		s.originFunc = func(*http.Request) bool { return true }
	}
	if len(s.addresses) == 0 {
		s.addresses = []string{"0.0.0.0:0"}
	}

	s.registry = session.NewRegistry(s.replicaID, s.mesh, s.logger)
	s.rpcHandler = rpc.NewHandler(s.registry, s.baseURL, s.logger)
	s.rpcHandler.SetTraceContext(s.TraceContext)
	s.viewerHandler = viewer.NewHandler(s.logger)
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return s.originFunc(r) },
	}

	for _, address := range s.addresses {
		listener, err := net.Listen("tcp", address)
		if err != nil {
			return nil, err
		}
		s.listeners = append(s.listeners, listener)
	}

	return s, nil
}

// Run serves every bound listener until ctx is cancelled, then drains the
// session registry and every attached connection.
func (s *Server) Run(ctx context.Context) error {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.registry.Run(subCtx)

	grpcServer := grpc.NewServer(grpc.KeepaliveParams(keepalive.ServerParameters{Time: keepaliveInterval}))
	rpc.RegisterServer(grpcServer, s.rpcHandler)

	grpcWebServer := grpcweb.WrapServer(
		grpcServer,
		grpcweb.WithWebsockets(true),
		grpcweb.WithWebsocketOriginFunc(func(r *http.Request) bool { return s.originFunc(r) }),
		grpcweb.WithWebsocketPingInterval(keepaliveInterval),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/s/", s.handleViewerWebSocket)
	mux.HandleFunc("/", handlePlaceholder)

	rootHandler := func(w http.ResponseWriter, r *http.Request) {
		contentType := r.Header.Get("content-type")
		switch {
		case strings.ToLower(r.Header.Get("Sec-Websocket-Protocol")) == "grpc-websockets":
			grpcWebServer.ServeHTTP(w, r)
		case strings.HasPrefix(contentType, "application/grpc-web"):
			grpcWebServer.ServeHTTP(w, r)
		case strings.HasPrefix(contentType, "application/grpc"):
			grpcServer.ServeHTTP(w, r)
		default:
			mux.ServeHTTP(w, r)
		}
	}

	httpServers := make([]*http.Server, 0, len(s.listeners))
	var wg sync.WaitGroup

	for _, listener := range s.listeners {
		listener := listener

		httpServer := &http.Server{
			Handler:     http.HandlerFunc(rootHandler),
			ReadTimeout: 10 * time.Second,
			TLSConfig:   s.tlsConfig,
		}
		if httpServer.TLSConfig == nil {
			httpServer.Handler = h2c.NewHandler(httpServer.Handler, &http2.Server{})
		}
		httpServers = append(httpServers, httpServer)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancel()

			s.logger.Info("listening", zap.String("address", listener.Addr().String()))

			var err error
			if httpServer.TLSConfig != nil {
				err = httpServer.ServeTLS(listener, "", "")
			} else {
				err = httpServer.Serve(listener)
			}
			if err != nil && err != http.ErrServerClosed {
				s.logger.Warn("listener stopped", zap.String("address", listener.Addr().String()), zap.Error(err))
			}
		}()
	}

	<-subCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	for _, httpServer := range httpServers {
		_ = httpServer.Shutdown(shutdownCtx)
	}
	grpcServer.GracefulStop()
	s.registry.Shutdown()

	wg.Wait()
	return nil
}

// Addresses returns the bound listener addresses, useful when a Server is
// constructed with a ":0" ephemeral port.
func (s *Server) Addresses() []string {
	result := make([]string, 0, len(s.listeners))
	for _, listener := range s.listeners {
		result = append(result, listener.Addr().String())
	}
	return result
}

// placeholderPage stands in for the viewer web bundle, which this rewrite
// does not build; it just confirms the coordinator answered.
const placeholderPage = `<!DOCTYPE html>
<html>
<head><title>sshx</title></head>
<body>
<p>This is an sshx session coordinator. The web viewer bundle is not part
of this build; connect a viewer client to /api/s/&lt;id&gt; directly.</p>
</body>
</html>
`

func handlePlaceholder(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, placeholderPage)
}

func (s *Server) handleViewerWebSocket(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/s/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	sess, ok := s.registry.Find(id)
	if !ok {
		http.Error(w, "no such session", http.StatusNotFound)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err), zapfields.SessionID(id))
		return
	}

	s.viewerHandler.Serve(ws, sess)
}
