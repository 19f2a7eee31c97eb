package server

import (
	"context"

	"github.com/blendle/zapdriver"
	"github.com/relaysix/sshx/internal/xcloudtracecontext"
	"go.uber.org/zap"
	"google.golang.org/grpc/metadata"
)

// TraceContext extracts GCP trace fields from an incoming gRPC context's
// X-Cloud-Trace-Context header, for structured logs that need to line up
// with Cloud Trace. Returns nil fields when running outside GCP or when the
// header is absent.
func (s *Server) TraceContext(ctx context.Context) []zap.Field {
	if s.gcpProjectID == "" {
		return nil
	}

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil
	}

	headers := md.Get("X-Cloud-Trace-Context")
	if len(headers) != 1 {
		return nil
	}

	traceID, spanID, traceSampled := xcloudtracecontext.DeconstructXCloudTraceContext(headers[0])
	return zapdriver.TraceContext(traceID, spanID, traceSampled, s.gcpProjectID)
}
