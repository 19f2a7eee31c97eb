package rpc

import (
	"context"

	"github.com/relaysix/sshx/internal/wire"
	"google.golang.org/grpc"
)

// ServiceName is the fully qualified name under which this service is
// registered, matching what a .proto-derived service descriptor would use.
const ServiceName = "sshx.SshxService"

// Server is implemented by the host RPC handlers.
type Server interface {
	Open(context.Context, *OpenRequest) (*OpenResponse, error)
	Channel(ChannelServer) error
	Close(context.Context, *CloseRequest) (*CloseResponse, error)
}

// ChannelServer is the server side of the host's bidirectional stream: the
// host sends HostFrame messages and receives ServerFrame messages.
type ChannelServer interface {
	Send(*wire.ServerFrame) error
	Recv() (*wire.HostFrame, error)
	grpc.ServerStream
}

type channelServer struct {
	grpc.ServerStream
}

func (x *channelServer) Send(m *wire.ServerFrame) error {
	return x.ServerStream.SendMsg(m)
}

func (x *channelServer) Recv() (*wire.HostFrame, error) {
	m := new(wire.HostFrame)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _Open_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(OpenRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Open(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Open"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).Open(ctx, req.(*OpenRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Close_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CloseRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Close(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Close"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).Close(ctx, req.(*CloseRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Channel_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(Server).Channel(&channelServer{stream})
}

// ServiceDesc is registered against a *grpc.Server in place of what
// protoc-gen-go-grpc would otherwise emit.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Open", Handler: _Open_Handler},
		{MethodName: "Close", Handler: _Close_Handler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Channel",
			Handler:       _Channel_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "sshx.proto",
}

// RegisterServer registers srv against s.
func RegisterServer(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client is the host's view of the service.
type Client interface {
	Open(ctx context.Context, in *OpenRequest, opts ...grpc.CallOption) (*OpenResponse, error)
	Channel(ctx context.Context, opts ...grpc.CallOption) (ChannelClient, error)
	Close(ctx context.Context, in *CloseRequest, opts ...grpc.CallOption) (*CloseResponse, error)
}

type client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a *grpc.ClientConn (or any grpc.ClientConnInterface) as a
// Client.
func NewClient(cc grpc.ClientConnInterface) Client {
	return &client{cc}
}

func (c *client) Open(ctx context.Context, in *OpenRequest, opts ...grpc.CallOption) (*OpenResponse, error) {
	out := new(OpenResponse)
	if err := c.cc.Invoke(ctx, ServiceName+"/Open", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) Close(ctx context.Context, in *CloseRequest, opts ...grpc.CallOption) (*CloseResponse, error) {
	out := new(CloseResponse)
	if err := c.cc.Invoke(ctx, ServiceName+"/Close", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ChannelClient is the host's side of the bidirectional stream: it sends
// HostFrame messages and receives ServerFrame messages.
type ChannelClient interface {
	Send(*wire.HostFrame) error
	Recv() (*wire.ServerFrame, error)
	grpc.ClientStream
}

type channelClient struct {
	grpc.ClientStream
}

func (x *channelClient) Send(m *wire.HostFrame) error {
	return x.ClientStream.SendMsg(m)
}

func (x *channelClient) Recv() (*wire.ServerFrame, error) {
	m := new(wire.ServerFrame)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *client) Channel(ctx context.Context, opts ...grpc.CallOption) (ChannelClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], ServiceName+"/Channel", opts...)
	if err != nil {
		return nil, err
	}
	return &channelClient{stream}, nil
}
