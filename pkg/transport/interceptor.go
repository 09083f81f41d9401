package transport

import (
	"strings"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"
)

// LoggingStreamInterceptor logs the start and end of every peer stream
func LoggingStreamInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		remote := "unknown"
		if p, ok := peer.FromContext(ss.Context()); ok && p.Addr != nil {
			remote = p.Addr.String()
		}
		logger := log.WithComponent("transport").With().
			Str("method", methodName(info.FullMethod)).
			Str("remote", remote).
			Logger()

		start := time.Now()
		logger.Debug().Msg("Peer stream opened")
		err := handler(srv, ss)
		logger.Debug().Err(err).Dur("duration", time.Since(start)).Msg("Peer stream closed")
		return err
	}
}

// methodName extracts the method from a full path ("/burrow.Peer/Exchange" -> "Exchange")
func methodName(fullMethod string) string {
	parts := strings.Split(fullMethod, "/")
	return parts[len(parts)-1]
}
