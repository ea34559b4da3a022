package transport

import (
	"context"

	"google.golang.org/grpc"
)

// serviceName and methodName exist only so the grpc wire path
// ("/chord.Exchange/Exchange") is stable; no .proto file defines them.
const (
	serviceName = "chord.Exchange"
	methodName  = "Exchange"
)

// ExchangeServer is implemented by whatever routes incoming envelopes to
// node operations. internal/server wires one of these into the grpc
// server built from ServiceDesc.
type ExchangeServer interface {
	Exchange(ctx context.Context, in *Envelope) (*Envelope, error)
}

func exchangeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Envelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExchangeServer).Exchange(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + methodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ExchangeServer).Exchange(ctx, req.(*Envelope))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is the hand-authored equivalent of what protoc-gen-go-grpc
// would emit for a service with a single unary RPC.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ExchangeServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: methodName,
			Handler:    exchangeHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/transport/envelope.go",
}

// Channel is a thin wrapper over a grpc.ClientConn that knows how to
// invoke Exchange without a generated stub.
type Channel struct {
	conn grpc.ClientConnInterface
}

func NewChannel(conn grpc.ClientConnInterface) *Channel {
	return &Channel{conn: conn}
}

// Request performs a synchronous round trip: it waits for the remote
// Exchange handler to return its reply envelope. Used for ring-control
// operations (FIND_SUCCESSOR, GET_PREDECESSOR, NOTIFY, HEARTBEAT) where
// the caller needs the answer inline.
func (c *Channel) Request(ctx context.Context, in *Envelope) (*Envelope, error) {
	out := new(Envelope)
	fullMethod := "/" + serviceName + "/" + methodName
	if err := c.conn.Invoke(ctx, fullMethod, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Send is fire-and-forget only in that it discards the reply envelope:
// it still blocks until the Exchange round trip completes (grpc has no
// true one-way unary call) and returns only a transport error.
// Call Send in a separate goroutine at call sites that must not block
// on delivery, e.g. asynchronous PUT/GET replication fan-out and GET
// result delivery.
func (c *Channel) Send(ctx context.Context, in *Envelope) error {
	_, err := c.Request(ctx, in)
	return err
}
