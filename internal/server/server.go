package server

import (
	"chordkv/internal/logger"
	"chordkv/internal/transport"
	"fmt"
	"net"

	"google.golang.org/grpc"
)

// Server wraps a gRPC server hosting the single Exchange RPC that
// carries every ring-control and data operation.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	lgr        logger.Logger
}

// New creates a new gRPC server bound to the given listener and
// registers the Exchange service, dispatching to exchanger.
// You can pass both grpc.ServerOptions and custom server.Options.
func New(lis net.Listener, exchanger transport.ExchangeServer, grpcOpts []grpc.ServerOption, srvOpts ...Option) (*Server, error) {
	s := &Server{
		grpcServer: grpc.NewServer(grpcOpts...),
		listener:   lis,
		lgr:        &logger.NopLogger{}, // default: no logging
	}
	// Apply functional options (logger)
	for _, opt := range srvOpts {
		opt(s)
	}
	s.grpcServer.RegisterService(&transport.ServiceDesc, exchanger)
	return s, nil
}

// Start runs the gRPC server and blocks until it stops.
// It returns any error from grpc.Server.Serve.
func (s *Server) Start() error {
	if err := s.grpcServer.Serve(s.listener); err != nil {
		return fmt.Errorf("gRPC server stopped: %w", err)
	}
	return nil
}

// Stop immediately stops the server and closes all active connections.
func (s *Server) Stop() {
	s.grpcServer.Stop()
}

// GracefulStop gracefully shuts down the server,
// waiting for in-flight RPCs to complete.
func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()
}
