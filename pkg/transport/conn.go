package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrClosed is returned when sending on a closed connection
	ErrClosed = errors.New("connection closed")
	// ErrQueueFull is returned when the send queue of a connection is full
	ErrQueueFull = errors.New("send queue full")
)

// sendQueueSize bounds the messages queued on one connection
const sendQueueSize = 256

// Connection is one established peer connection
type Connection interface {
	ID() string
	RemoteAddr() string
	// Outbound reports whether this side initiated the connection
	Outbound() bool
	// Send queues a message. It never blocks.
	Send(msg *api.Message) error
	Close() error
	// Done is closed when the connection has terminated
	Done() <-chan struct{}
	// Attachment returns the object the owner associated with the connection
	Attachment() any
	SetAttachment(v any)
}

// Observer is told about connection lifecycle changes
type Observer interface {
	OutboundEstablished(conn Connection)
	InboundEstablished(conn Connection)
	ConnectionClosed(conn Connection)
}

// MessageHandler processes received messages
type MessageHandler interface {
	HandleMessage(ctx context.Context, conn Connection, msg *api.Message)
}

// MessageHandlerFunc adapts a function to MessageHandler
type MessageHandlerFunc func(ctx context.Context, conn Connection, msg *api.Message)

func (f MessageHandlerFunc) HandleMessage(ctx context.Context, conn Connection, msg *api.Message) {
	f(ctx, conn, msg)
}

// stream is the common part of grpc.ServerStream and grpc.ClientStream
type stream interface {
	Context() context.Context
	SendMsg(m any) error
	RecvMsg(m any) error
}

type streamConn struct {
	id       string
	remote   string
	outbound bool
	stream   stream
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	sendCh chan *api.Message
	done   chan struct{}

	closeOnce sync.Once
	onClose   func()
	closed    atomic.Bool

	mu         sync.RWMutex
	attachment any
}

func newStreamConn(ctx context.Context, cancel context.CancelFunc, s stream, remote string, outbound bool) *streamConn {
	id := uuid.NewString()
	return &streamConn{
		id:       id,
		remote:   remote,
		outbound: outbound,
		stream:   s,
		logger:   log.WithPeer(id).With().Str("remote", remote).Bool("outbound", outbound).Logger(),
		ctx:      ctx,
		cancel:   cancel,
		sendCh:   make(chan *api.Message, sendQueueSize),
		done:     make(chan struct{}),
	}
}

func (c *streamConn) ID() string { return c.id }
func (c *streamConn) RemoteAddr() string { return c.remote }
func (c *streamConn) Outbound() bool { return c.outbound }
func (c *streamConn) Done() <-chan struct{} { return c.done }

func (c *streamConn) Attachment() any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.attachment
}

func (c *streamConn) SetAttachment(v any) {
	c.mu.Lock()
	c.attachment = v
	c.mu.Unlock()
}

func (c *streamConn) Send(msg *api.Message) error {
	if c.closed.Load() {
		return ErrClosed
	}
	select {
	case c.sendCh <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (c *streamConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()
		if c.onClose != nil {
			c.onClose()
		}
	})
	return nil
}

// run pumps messages until the stream ends or the connection is closed
func (c *streamConn) run(handler MessageHandler) {
	defer close(c.done)
	defer c.Close()

	go c.writeLoop()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		c.readLoop(handler)
	}()

	select {
	case <-readDone:
	case <-c.ctx.Done():
	}
}

func (c *streamConn) readLoop(handler MessageHandler) {
	for {
		msg := &api.Message{}
		if err := c.stream.RecvMsg(msg); err != nil {
			if c.ctx.Err() == nil {
				c.logger.Debug().Err(err).Msg("Peer stream ended")
			}
			return
		}
		metrics.MessagesTotal.WithLabelValues("in", string(msg.Type)).Inc()
		if handler != nil {
			handler.HandleMessage(c.ctx, c, msg)
		}
	}
}

func (c *streamConn) writeLoop() {
	for {
		select {
		case msg := <-c.sendCh:
			if err := c.stream.SendMsg(msg); err != nil {
				c.logger.Warn().Err(err).Str("type", string(msg.Type)).Msg("Failed to send message")
				c.Close()
				return
			}
			metrics.MessagesTotal.WithLabelValues("out", string(msg.Type)).Inc()
		case <-c.ctx.Done():
			return
		}
	}
}
