package peer

import (
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/transport"
	"github.com/rs/zerolog"
)

// Listener is told about peers joining and leaving the peer map
type Listener interface {
	PeerConnected(p *Peer, outbound bool)
	PeerDisconnected(p *Peer)
}

// ConnTracker keeps the peer map in step with the transport's connections
type ConnTracker struct {
	peers    *Map
	accCtx   func(conn transport.Connection) *security.AccessContext
	listener Listener
	logger   zerolog.Logger
}

// NewConnTracker creates a tracker feeding peers. accCtx supplies the
// access context of peers created for new connections; listener may be nil.
func NewConnTracker(peers *Map, accCtx func(conn transport.Connection) *security.AccessContext, listener Listener) *ConnTracker {
	if accCtx == nil {
		accCtx = func(transport.Connection) *security.AccessContext { return security.NewPublicContext() }
	}
	return &ConnTracker{
		peers:    peers,
		accCtx:   accCtx,
		listener: listener,
		logger:   log.WithComponent("conntracker"),
	}
}

// Peers returns the tracked peer map
func (t *ConnTracker) Peers() *Map { return t.peers }

// OutboundEstablished implements transport.Observer
func (t *ConnTracker) OutboundEstablished(conn transport.Connection) {
	t.established(conn, true)
}

// InboundEstablished implements transport.Observer
func (t *ConnTracker) InboundEstablished(conn transport.Connection) {
	t.established(conn, false)
}

// ConnectionClosed implements transport.Observer
func (t *ConnTracker) ConnectionClosed(conn transport.Connection) {
	p, ok := conn.Attachment().(*Peer)
	if !ok {
		return
	}
	if _, removed := t.peers.Remove(p.ID()); !removed {
		return
	}
	metrics.PeersConnected.Set(float64(t.peers.Len()))
	t.logger.Info().
		Str("peer", p.ID()).
		Str("node", p.Node()).
		Str("remote", conn.RemoteAddr()).
		Msg("Peer disconnected")
	if t.listener != nil {
		t.listener.PeerDisconnected(p)
	}
}

func (t *ConnTracker) established(conn transport.Connection, outbound bool) {
	p := t.attach(conn)
	if !t.peers.Put(p) {
		return
	}
	metrics.PeersConnected.Set(float64(t.peers.Len()))
	t.logger.Info().
		Str("peer", p.ID()).
		Str("node", p.Node()).
		Str("remote", conn.RemoteAddr()).
		Bool("outbound", outbound).
		Msg("Peer connected")
	if t.listener != nil {
		t.listener.PeerConnected(p, outbound)
	}
}

// attach returns the peer attached to conn, creating and attaching one if
// there is none yet
func (t *ConnTracker) attach(conn transport.Connection) *Peer {
	if p, ok := conn.Attachment().(*Peer); ok {
		p.bind(conn)
		return p
	}
	p := New("", t.accCtx(conn))
	p.bind(conn)
	conn.SetAttachment(p)
	return p
}
