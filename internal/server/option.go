package server

import (
	"net/http"

	"github.com/relaysix/sshx/internal/mesh"
	"go.uber.org/zap"
)

// Option configures a Server.
type Option func(*Server)

// WebsocketOriginFunc reports whether an incoming WebSocket upgrade's
// Origin header should be allowed.
type WebsocketOriginFunc func(*http.Request) bool

// WithLogger sets the structured logger used throughout the server.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithBaseURL sets the public base URL (e.g. "https://sshx.example.com")
// used to build share links returned from Open.
func WithBaseURL(baseURL string) Option {
	return func(s *Server) { s.baseURL = baseURL }
}

// WithReplicaID sets the identifier this process registers sessions under
// in the mesh. Defaults to a random value if unset.
func WithReplicaID(id string) Option {
	return func(s *Server) { s.replicaID = id }
}

// WithMesh overrides the session-ownership mesh, e.g. for a multi-replica
// deployment. Defaults to an in-memory single-process registry.
func WithMesh(m mesh.Mesh) Option {
	return func(s *Server) { s.mesh = m }
}

// WithWebsocketOriginFunc restricts which browser origins may open the
// viewer WebSocket and gRPC-Web channels. Defaults to allowing any origin.
func WithWebsocketOriginFunc(f WebsocketOriginFunc) Option {
	return func(s *Server) { s.originFunc = f }
}

// WithGCPProjectID enables Cloud Trace field extraction in structured logs;
// see TraceContext.
func WithGCPProjectID(id string) Option {
	return func(s *Server) { s.gcpProjectID = id }
}
