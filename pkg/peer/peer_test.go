package peer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn is an in-memory transport.Connection
type fakeConn struct {
	id       string
	outbound bool
	done     chan struct{}

	mu         sync.Mutex
	sent       []*api.Message
	attachment any
}

func newFakeConn(id string, outbound bool) *fakeConn {
	return &fakeConn{id: id, outbound: outbound, done: make(chan struct{})}
}

func (c *fakeConn) ID() string { return c.id }
func (c *fakeConn) RemoteAddr() string { return "10.0.0.1:3366" }
func (c *fakeConn) Outbound() bool { return c.outbound }
func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) Send(msg *api.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Close() error {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	return nil
}

func (c *fakeConn) Attachment() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attachment
}

func (c *fakeConn) SetAttachment(v any) {
	c.mu.Lock()
	c.attachment = v
	c.mu.Unlock()
}

type recordingListener struct {
	connected    []*Peer
	outbound     []bool
	disconnected []*Peer
}

func (l *recordingListener) PeerConnected(p *Peer, outbound bool) {
	l.connected = append(l.connected, p)
	l.outbound = append(l.outbound, outbound)
}

func (l *recordingListener) PeerDisconnected(p *Peer) {
	l.disconnected = append(l.disconnected, p)
}

var _ transport.Observer = (*ConnTracker)(nil)

func TestTrackerAttachesPeer(t *testing.T) {
	peers := NewMap()
	listener := &recordingListener{}
	tracker := NewConnTracker(peers, nil, listener)

	conn := newFakeConn("c1", false)
	tracker.InboundEstablished(conn)

	p, ok := conn.Attachment().(*Peer)
	require.True(t, ok)
	assert.Same(t, conn, p.Conn())
	assert.Equal(t, 1, peers.Len())
	assert.Same(t, p, peers.Get(p.ID()))
	require.Len(t, listener.connected, 1)
	assert.False(t, listener.outbound[0])
	assert.True(t, p.Connected())
}

func TestTrackerReusesExistingAttachment(t *testing.T) {
	peers := NewMap()
	listener := &recordingListener{}
	tracker := NewConnTracker(peers, nil, listener)

	existing := New("alpha", security.NewSystemContext())
	conn := newFakeConn("c1", true)
	conn.SetAttachment(existing)

	tracker.OutboundEstablished(conn)
	tracker.OutboundEstablished(conn)

	assert.Same(t, existing, conn.Attachment())
	assert.Same(t, conn, existing.Conn())
	assert.Equal(t, 1, peers.Len())
	assert.Len(t, listener.connected, 1, "second establish of the same peer is ignored")
	assert.Same(t, existing, peers.ByNode("ALPHA"))
}

func TestTrackerRemovesPeerOnClose(t *testing.T) {
	peers := NewMap()
	listener := &recordingListener{}
	tracker := NewConnTracker(peers, nil, listener)

	conn := newFakeConn("c1", false)
	tracker.InboundEstablished(conn)
	p := conn.Attachment().(*Peer)

	conn.Close()
	tracker.ConnectionClosed(conn)
	tracker.ConnectionClosed(conn)

	assert.Equal(t, 0, peers.Len())
	assert.Nil(t, peers.Get(p.ID()))
	require.Len(t, listener.disconnected, 1)
	assert.Same(t, p, listener.disconnected[0])
	assert.False(t, p.Connected())
}

func TestTrackerIgnoresUnknownConnection(t *testing.T) {
	peers := NewMap()
	listener := &recordingListener{}
	tracker := NewConnTracker(peers, nil, listener)

	tracker.ConnectionClosed(newFakeConn("c1", false))
	assert.Empty(t, listener.disconnected)
}

func TestPeerSend(t *testing.T) {
	p := New("alpha", security.NewSystemContext())
	assert.ErrorIs(t, p.Send(api.MsgApplyResource, struct{}{}), ErrNotConnected)

	conn := newFakeConn("c1", true)
	p.bind(conn)
	require.NoError(t, p.Send(api.MsgApplyResource, api.ResourceRequest{RscName: "r1"}))
	require.NoError(t, p.Send(api.MsgApplyStorPool, api.StorPoolRequest{StorPoolName: "pool1"}))

	require.Len(t, conn.sent, 2)
	assert.Equal(t, int64(1), conn.sent[0].ID)
	assert.Equal(t, int64(2), conn.sent[1].ID)
	assert.Equal(t, api.MsgApplyStorPool, conn.sent[1].Type)
}

func TestMapAllIsOrdered(t *testing.T) {
	m := NewMap()
	for _, node := range []string{"gamma", "alpha", "beta"} {
		require.True(t, m.Put(New(node, nil)))
	}
	var names []string
	for _, p := range m.All() {
		names = append(names, p.Node())
	}
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, names)
	assert.Nil(t, m.ByNode("delta"))
}

func TestReconnectRetriesWithBackoff(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	dial := func(ctx context.Context, target Target) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 2 {
			return errors.New("connection refused")
		}
		return nil
	}

	now := time.Unix(1000, 0)
	s := NewReconnectService(dial, time.Second, 100)
	s.now = func() time.Time { return now }
	s.Add(Target{Node: "alpha", Addr: "10.0.0.1:3366"})

	ctx := context.Background()
	require.NoError(t, s.attemptDue(ctx))
	assert.Equal(t, 1, attempts)
	assert.Equal(t, []string{"alpha"}, s.Pending())

	// Not due yet: the failed attempt pushed the next one into the future
	require.NoError(t, s.attemptDue(ctx))
	assert.Equal(t, 1, attempts)

	now = now.Add(time.Minute)
	require.NoError(t, s.attemptDue(ctx))
	assert.Equal(t, 2, attempts)
	assert.Empty(t, s.Pending())
}

func TestReconnectAddRemove(t *testing.T) {
	s := NewReconnectService(func(context.Context, Target) error { return nil }, time.Second, 1)
	s.Add(Target{Node: "alpha", Addr: "a:1"})
	s.Add(Target{Node: "ALPHA", Addr: "a:2"})
	assert.Len(t, s.Pending(), 1)
	assert.Equal(t, "a:2", s.targets[targetKey("alpha")].target.Addr)

	s.Remove("Alpha")
	assert.Empty(t, s.Pending())
}

func TestReconnectRunStopsWithContext(t *testing.T) {
	dialed := make(chan Target, 1)
	s := NewReconnectService(func(ctx context.Context, target Target) error {
		dialed <- target
		return nil
	}, 50*time.Millisecond, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	s.Add(Target{Node: "beta", Addr: "10.0.0.2:3366"})
	select {
	case target := <-dialed:
		assert.Equal(t, "beta", target.Node)
	case <-time.After(2 * time.Second):
		t.Fatal("target was not dialed")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
