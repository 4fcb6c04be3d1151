// Package channel declares the livestream event channel shared by the hub
// server and the seller control surface: one bidirectional gRPC stream per
// participant carrying google.protobuf.Struct frames.
package channel

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "livebid.channel.v1.Channel"
	connectName = "Connect"

	ConnectFullMethodName = "/" + ServiceName + "/" + connectName
)

// Stream is the server side of a Connect call.
type Stream interface {
	Send(*structpb.Struct) error
	Recv() (*structpb.Struct, error)
	Context() context.Context
}

// Server is implemented by the hub.
type Server interface {
	Connect(Stream) error
}

// ClientStream is the participant side of a Connect call.
type ClientStream interface {
	Send(*structpb.Struct) error
	Recv() (*structpb.Struct, error)
	CloseSend() error
	Context() context.Context
}

// Client opens Connect streams against a hub.
type Client interface {
	Connect(ctx context.Context, opts ...grpc.CallOption) (ClientStream, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    connectName,
			Handler:       connectHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "livebid/channel/v1/channel.proto",
}

// Register attaches srv to a gRPC server.
func Register(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&ServiceDesc, srv)
}

func connectHandler(srv any, stream grpc.ServerStream) error {
	return srv.(Server).Connect(&serverStream{stream})
}

type serverStream struct {
	grpc.ServerStream
}

func (s *serverStream) Send(m *structpb.Struct) error {
	return s.ServerStream.SendMsg(m)
}

func (s *serverStream) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) Client {
	return &client{cc: cc}
}

func (c *client) Connect(ctx context.Context, opts ...grpc.CallOption) (ClientStream, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], ConnectFullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	return &clientStream{stream}, nil
}

type clientStream struct {
	grpc.ClientStream
}

func (s *clientStream) Send(m *structpb.Struct) error {
	return s.ClientStream.SendMsg(m)
}

func (s *clientStream) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := s.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
