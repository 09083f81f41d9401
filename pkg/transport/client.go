package transport

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// Dialer opens outbound peer connections
type Dialer struct {
	creds    credentials.TransportCredentials
	observer Observer
	handler  MessageHandler
}

// NewDialer creates a dialer. Established connections are reported to
// observer and their messages dispatched to handler.
func NewDialer(creds credentials.TransportCredentials, observer Observer, handler MessageHandler) *Dialer {
	return &Dialer{creds: creds, observer: observer, handler: handler}
}

// Dial connects to the peer server at addr. ctx bounds connection setup
// only; the connection lives until it is closed or the stream breaks.
// attachment, if not nil, is set on the connection before the observer
// is told about it.
func (d *Dialer) Dial(ctx context.Context, addr string, attachment any) (Connection, error) {
	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(d.creds))
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", addr, err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)
	cs, err := cc.NewStream(streamCtx, &peerServiceDesc.Streams[0], exchangeMethod, grpc.CallContentSubtype(codecName))
	if !stop() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		cancel()
		cc.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	conn := newStreamConn(streamCtx, cancel, cs, addr, true)
	conn.onClose = func() {
		_ = cs.CloseSend()
		_ = cc.Close()
	}

	if attachment != nil {
		conn.SetAttachment(attachment)
	}
	if d.observer != nil {
		d.observer.OutboundEstablished(conn)
	}
	go func() {
		conn.run(d.handler)
		if d.observer != nil {
			d.observer.ConnectionClosed(conn)
		}
	}()
	return conn, nil
}
