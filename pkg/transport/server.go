package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
)

// peerServer is the handler type of the peer service
type peerServer interface {
	exchange(s grpc.ServerStream) error
}

const exchangeMethod = "/burrow.Peer/Exchange"

var peerServiceDesc = grpc.ServiceDesc{
	ServiceName: "burrow.Peer",
	HandlerType: (*peerServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Exchange",
			Handler:       exchangeHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "burrow/peer",
}

func exchangeHandler(srv any, s grpc.ServerStream) error {
	return srv.(peerServer).exchange(s)
}

// Server accepts inbound peer connections
type Server struct {
	grpc     *grpc.Server
	observer Observer
	handler  MessageHandler
}

// NewServer creates a peer server. Inbound connections are reported to
// observer and their messages dispatched to handler.
func NewServer(creds credentials.TransportCredentials, observer Observer, handler MessageHandler) *Server {
	s := &Server{
		grpc: grpc.NewServer(
			grpc.Creds(creds),
			grpc.StreamInterceptor(LoggingStreamInterceptor()),
		),
		observer: observer,
		handler:  handler,
	}
	s.grpc.RegisterService(&peerServiceDesc, s)
	return s
}

// Start listens on addr and serves until Stop is called
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		metrics.SetComponent(metrics.ComponentTransport, false, "listen failed: "+err.Error())
		return fmt.Errorf("failed to listen: %w", err)
	}

	log.Logger.Info().Str("addr", lis.Addr().String()).Msg("Peer server listening")
	metrics.SetComponent(metrics.ComponentTransport, true, "listening on "+lis.Addr().String())
	err = s.Serve(lis)
	metrics.SetComponent(metrics.ComponentTransport, false, "server stopped")
	return err
}

// Serve serves connections accepted by lis
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Stop stops the server and closes all connections
func (s *Server) Stop() {
	if s.grpc != nil {
		s.grpc.Stop()
	}
}

func (s *Server) exchange(gs grpc.ServerStream) error {
	remote := "unknown"
	if p, ok := peer.FromContext(gs.Context()); ok && p.Addr != nil {
		remote = p.Addr.String()
	}

	ctx, cancel := context.WithCancel(gs.Context())
	conn := newStreamConn(ctx, cancel, gs, remote, false)
	if s.observer != nil {
		s.observer.InboundEstablished(conn)
	}
	conn.run(s.handler)
	if s.observer != nil {
		s.observer.ConnectionClosed(conn)
	}
	return nil
}
