// Package apierror defines the error kinds shared across the host channel,
// viewer channel, and session coordinator, and maps them onto the gRPC
// status codes and WebSocket close codes each transport understands.
package apierror

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind identifies one of the error categories named in the design.
type Kind int

const (
	Internal Kind = iota
	BadAuth
	NotFound
	AlreadyAttached
	ReadOnly
	ProtocolError
	ShellGone
	Overloaded
)

func (k Kind) String() string {
	switch k {
	case BadAuth:
		return "bad-auth"
	case NotFound:
		return "not-found"
	case AlreadyAttached:
		return "already-attached"
	case ReadOnly:
		return "read-only"
	case ProtocolError:
		return "protocol-error"
	case ShellGone:
		return "shell-gone"
	case Overloaded:
		return "overloaded"
	default:
		return "internal"
	}
}

// Error is a Kind carrying a human-readable message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New constructs an Error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// As extracts an *Error from err, if any wraps one.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GRPCStatus implements grpc/status's StatusError interface so an *Error
// returned directly from an RPC handler is translated automatically.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.grpcCode(), e.Message)
}

func (e *Error) grpcCode() codes.Code {
	switch e.Kind {
	case BadAuth:
		return codes.PermissionDenied
	case NotFound:
		return codes.NotFound
	case AlreadyAttached:
		return codes.FailedPrecondition
	case ReadOnly:
		return codes.PermissionDenied
	case ProtocolError:
		return codes.FailedPrecondition
	case ShellGone:
		return codes.NotFound
	case Overloaded:
		return codes.ResourceExhausted
	default:
		return codes.Internal
	}
}

// WebSocket close codes for viewer-facing fatal errors, per RFC 6455's
// private-use range (4000-4999) plus the standard 1011 for server overload.
const (
	CloseNormal        = 1000
	CloseOverloaded    = 1011
	CloseSessionNotFound = 4404
	CloseInternal      = 4500
)

// CloseCode maps a Kind to the WebSocket close code used when the error is
// fatal to the viewer connection rather than merely advisory.
func (e *Error) CloseCode() int {
	switch e.Kind {
	case BadAuth, NotFound:
		return CloseSessionNotFound
	case Overloaded:
		return CloseOverloaded
	default:
		return CloseInternal
	}
}
