package transport

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/credentials/insecure"
)

type recordingObserver struct {
	mu       sync.Mutex
	outbound []Connection
	inbound  []Connection
	closed   chan Connection
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{closed: make(chan Connection, 4)}
}

func (o *recordingObserver) OutboundEstablished(c Connection) {
	o.mu.Lock()
	o.outbound = append(o.outbound, c)
	o.mu.Unlock()
}

func (o *recordingObserver) InboundEstablished(c Connection) {
	o.mu.Lock()
	o.inbound = append(o.inbound, c)
	o.mu.Unlock()
}

func (o *recordingObserver) ConnectionClosed(c Connection) { o.closed <- c }

func startServer(t *testing.T, observer Observer, handler MessageHandler) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(insecure.NewCredentials(), observer, handler)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)
	return lis.Addr().String()
}

func TestExchangeRoundTrip(t *testing.T) {
	serverObs := newRecordingObserver()
	// The server echoes every message back with the type it answers with
	echo := MessageHandlerFunc(func(ctx context.Context, conn Connection, msg *api.Message) {
		reply, err := api.NewMessage(msg.ID, api.MsgApplyResource, map[string]string{"echo": string(msg.Type)})
		if err == nil {
			_ = conn.Send(reply)
		}
	})
	addr := startServer(t, serverObs, echo)

	received := make(chan *api.Message, 1)
	clientObs := newRecordingObserver()
	dialer := NewDialer(insecure.NewCredentials(), clientObs, MessageHandlerFunc(
		func(ctx context.Context, conn Connection, msg *api.Message) { received <- msg }))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := dialer.Dial(ctx, addr, "alpha")
	require.NoError(t, err)
	assert.True(t, conn.Outbound())
	assert.Equal(t, "alpha", conn.Attachment())

	req, err := api.NewMessage(7, api.MsgRequestResource, api.ResourceRequest{NodeName: "alpha", RscName: "r1"})
	require.NoError(t, err)
	require.NoError(t, conn.Send(req))

	select {
	case msg := <-received:
		assert.Equal(t, int64(7), msg.ID)
		assert.Equal(t, api.MsgApplyResource, msg.Type)
		var body map[string]string
		require.NoError(t, msg.Decode(&body))
		assert.Equal(t, "RequestResource", body["echo"])
	case <-time.After(5 * time.Second):
		t.Fatal("no reply received")
	}

	clientObs.mu.Lock()
	assert.Len(t, clientObs.outbound, 1)
	clientObs.mu.Unlock()
	serverObs.mu.Lock()
	require.Len(t, serverObs.inbound, 1)
	assert.False(t, serverObs.inbound[0].Outbound())
	serverObs.mu.Unlock()

	require.NoError(t, conn.Close())
	select {
	case <-serverObs.closed:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not see the connection close")
	}
	assert.ErrorIs(t, conn.Send(req), ErrClosed)
}

func TestDialUnreachable(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	lis.Close()

	dialer := NewDialer(insecure.NewCredentials(), nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err = dialer.Dial(ctx, addr, nil)
	assert.Error(t, err)
}

func TestAttachment(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := newStreamConn(ctx, cancel, nil, "test", false)
	assert.Nil(t, c.Attachment())
	c.SetAttachment("peer")
	assert.Equal(t, "peer", c.Attachment())

	for i := 0; i < sendQueueSize; i++ {
		require.NoError(t, c.Send(&api.Message{}))
	}
	assert.ErrorIs(t, c.Send(&api.Message{}), ErrQueueFull)
}

func TestStartReportsTransportHealth(t *testing.T) {
	transportStatus := func() (metrics.ComponentStatus, bool) {
		c, ok := metrics.Health.Report().Components[metrics.ComponentTransport]
		return c, ok
	}

	srv := NewServer(insecure.NewCredentials(), nil, nil)
	done := make(chan error, 1)
	go func() { done <- srv.Start("127.0.0.1:0") }()

	assert.Eventually(t, func() bool {
		c, ok := transportStatus()
		return ok && c.Healthy
	}, 2*time.Second, 10*time.Millisecond)

	srv.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
	c, _ := transportStatus()
	assert.False(t, c.Healthy)
	assert.Equal(t, "server stopped", c.Message)

	err := NewServer(insecure.NewCredentials(), nil, nil).Start("127.0.0.1:-1")
	require.Error(t, err)
	c, _ = transportStatus()
	assert.False(t, c.Healthy)
	assert.Contains(t, c.Message, "listen failed")
}
