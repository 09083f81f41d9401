package satellite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/peer"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn is an in-memory transport.Connection
type fakeConn struct {
	id   string
	done chan struct{}

	mu         sync.Mutex
	sent       []*api.Message
	attachment any
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, done: make(chan struct{})}
}

func (c *fakeConn) ID() string { return c.id }
func (c *fakeConn) RemoteAddr() string { return "10.0.0.100:41000" }
func (c *fakeConn) Outbound() bool { return false }
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

func (c *fakeConn) messages(t api.MessageType) []*api.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*api.Message
	for _, m := range c.sent {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

// fakeDevices records the device manager calls
type fakeDevices struct {
	mu       sync.Mutex
	deployed []LocalResource
	removed  []string
	err      error
}

func (d *fakeDevices) Deploy(_ context.Context, rsc LocalResource) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.deployed = append(d.deployed, rsc)
	return nil
}

func (d *fakeDevices) Remove(_ context.Context, rsc LocalResource) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.removed = append(d.removed, rsc.Resource.RscName)
	return nil
}

func (d *fakeDevices) deployCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.deployed)
}

func (d *fakeDevices) setErr(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

func newSatellite(t *testing.T, devices DeviceManager) *Satellite {
	t.Helper()
	s, err := New(Config{NodeName: "alpha", Devices: devices})
	require.NoError(t, err)
	return s
}

// connectController registers an inbound controller connection
func connectController(t *testing.T, s *Satellite) (*peer.ConnTracker, *fakeConn) {
	t.Helper()
	tracker := peer.NewConnTracker(s.Peers(), nil, s)
	conn := newFakeConn("ctrl")
	conn.SetAttachment(peer.New("", security.NewSystemContext()))
	tracker.InboundEstablished(conn)
	require.NotNil(t, s.controllerPeer())
	return tracker, conn
}

func decodeDeleted(t *testing.T, msg *api.Message) api.ResourceDeleted {
	t.Helper()
	var req api.ResourceDeleted
	require.NoError(t, msg.Decode(&req))
	return req
}

func TestDeletionConfirmedAfterRemoval(t *testing.T) {
	devices := &fakeDevices{}
	s := newSatellite(t, devices)
	_, conn := connectController(t, s)
	ctx := context.Background()

	snap := rscSnap("r1")
	_, err := s.DeployResource(snap)
	require.NoError(t, err)
	s.processPending(ctx)
	require.Len(t, devices.deployed, 1)
	assert.Equal(t, "r1", devices.deployed[0].Resource.RscName)
	assert.Empty(t, conn.messages(api.MsgNotifyResourceDeleted))

	snap.LocalRsc.Flags = types.FlagDelete
	res, err := s.DeployResource(snap)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	s.processPending(ctx)

	assert.Equal(t, []string{"r1"}, devices.removed)
	msgs := conn.messages(api.MsgNotifyResourceDeleted)
	require.Len(t, msgs, 1)
	assert.Equal(t, api.ResourceDeleted{NodeName: "alpha", RscName: "r1", RscUUID: snap.LocalRsc.UUID}, decodeDeleted(t, msgs[0]))

	_, ok := s.State().Resource("alpha", "r1")
	assert.False(t, ok)
	counts := s.State().Counts()
	assert.Equal(t, 0, counts[tableRscDfn])
	assert.Equal(t, 0, counts[tableVolume])
	assert.Equal(t, 1, counts[tableNode])
	assert.Equal(t, 1, counts[tableStorPool])
}

func TestVolumeDeletionConfirmed(t *testing.T) {
	devices := &fakeDevices{}
	s := newSatellite(t, devices)
	_, conn := connectController(t, s)
	ctx := context.Background()

	snap := rscSnap("r1")
	snap.VolDfns = append(snap.VolDfns, types.VolDfnData{UUID: uuid.New(), RscName: "r1", VolNr: 1, Minor: 1001, SizeKiB: 1024})
	snap.LocalVols = append(snap.LocalVols, types.VolData{UUID: uuid.New(), NodeName: "alpha", RscName: "r1", VolNr: 1, StorPoolName: "DfltStorPool"})
	_, err := s.DeployResource(snap)
	require.NoError(t, err)
	s.processPending(ctx)

	snap.VolDfns[1].Flags = types.FlagDelete
	snap.LocalVols[1].Flags = types.FlagDelete
	_, err = s.DeployResource(snap)
	require.NoError(t, err)
	s.processPending(ctx)

	require.Len(t, devices.deployed, 2)
	last := devices.deployed[1]
	require.Len(t, last.Volumes, 2)
	assert.True(t, last.Volumes[1].Flags.IsSet(types.FlagDelete))

	msgs := conn.messages(api.MsgNotifyResourceDeleted)
	require.Len(t, msgs, 1)
	assert.Equal(t, []int{1}, decodeDeleted(t, msgs[0]).VolNrs)

	view, ok := s.State().Resource("alpha", "r1")
	require.True(t, ok)
	require.Len(t, view.Volumes, 1)
	assert.Equal(t, 0, view.Volumes[0].VolNr)
}

func TestRemovedResourceIsNotConfirmed(t *testing.T) {
	devices := &fakeDevices{}
	s := newSatellite(t, devices)
	_, conn := connectController(t, s)
	ctx := context.Background()

	snap := withPeer(rscSnap("r1"))
	_, err := s.DeployResource(snap)
	require.NoError(t, err)
	s.processPending(ctx)

	_, err = s.DeployResource(api.ResourceSnapshot{
		RscDfn:    types.RscDfnData{Name: "r1"},
		LocalNode: types.NodeData{Name: "alpha"},
		LocalRsc:  types.RscData{UUID: snap.LocalRsc.UUID, NodeName: "alpha", RscName: "r1"},
		Removed:   true,
	})
	require.NoError(t, err)
	s.processPending(ctx)

	assert.Equal(t, []string{"r1"}, devices.removed)
	assert.Empty(t, conn.messages(api.MsgNotifyResourceDeleted))
	assert.Equal(t, 0, s.State().Tombstones())
	counts := s.State().Counts()
	assert.Equal(t, 0, counts[tableResource])
	assert.Equal(t, 1, counts[tableNode], "peer node beta is dropped with the peer resource")
}

func TestDivergedResourceIsRefetched(t *testing.T) {
	devices := &fakeDevices{}
	s := newSatellite(t, devices)
	_, conn := connectController(t, s)
	ctx := context.Background()

	snap := rscSnap("r1")
	_, err := s.DeployResource(snap)
	require.NoError(t, err)
	s.processPending(ctx)

	recreated := rscSnap("r1")
	recreated.LocalNode = snap.LocalNode
	recreated.StorPools = snap.StorPools
	_, err = s.DeployResource(recreated)
	var divErr *DivergentUUIDsError
	require.ErrorAs(t, err, &divErr)

	reqs := conn.messages(api.MsgRequestResource)
	require.Len(t, reqs, 1)
	var req api.ResourceRequest
	require.NoError(t, reqs[0].Decode(&req))
	assert.Equal(t, api.ResourceRequest{NodeName: "alpha", RscName: "r1", RscUUID: snap.LocalRsc.UUID}, req)

	// The controller answers with a removal of the stale copy
	removal, err := api.NewMessage(1, api.MsgApplyResource, api.ResourceSnapshot{
		RscDfn:    types.RscDfnData{Name: "r1"},
		LocalNode: types.NodeData{Name: "alpha"},
		LocalRsc:  types.RscData{UUID: snap.LocalRsc.UUID, NodeName: "alpha", RscName: "r1"},
		Removed:   true,
	})
	require.NoError(t, err)
	s.HandleMessage(ctx, conn, removal)
	s.processPending(ctx)

	reqs = conn.messages(api.MsgRequestResource)
	require.Len(t, reqs, 2)
	require.NoError(t, reqs[1].Decode(&req))
	assert.Equal(t, uuid.Nil, req.RscUUID)

	res, err := s.DeployResource(recreated)
	require.NoError(t, err)
	assert.Positive(t, res.Created)
	view, _ := s.State().Resource("alpha", "r1")
	assert.Equal(t, recreated.LocalRsc.UUID, view.Resource.UUID)
}

func TestFullSyncAcknowledged(t *testing.T) {
	s := newSatellite(t, nil)
	_, conn := connectController(t, s)
	ctx := context.Background()

	snap := rscSnap("r1")
	msg, err := api.NewMessage(1, api.MsgApplyFullSync, api.FullSync{
		SyncID:    3,
		Node:      snap.LocalNode,
		StorPools: snap.StorPools,
		Resources: []api.ResourceSnapshot{snap},
	})
	require.NoError(t, err)
	s.HandleMessage(ctx, conn, msg)

	msg, err = api.NewMessage(2, api.MsgApplyFullSync, api.FullSync{SyncID: 4, Node: types.NodeData{UUID: uuid.New(), Name: "beta"}})
	require.NoError(t, err)
	s.HandleMessage(ctx, conn, msg)

	acks := conn.messages(api.MsgNotifyFullSyncApplied)
	require.Len(t, acks, 2)
	var ack api.FullSyncApplied
	require.NoError(t, acks[0].Decode(&ack))
	assert.Equal(t, api.FullSyncApplied{SyncID: 3, Success: true}, ack)
	require.NoError(t, acks[1].Decode(&ack))
	assert.Equal(t, int64(4), ack.SyncID)
	assert.False(t, ack.Success)
	assert.NotEmpty(t, ack.Error)

	assert.Equal(t, 1, s.State().Counts()[tableResource])
	require.NotEmpty(t, s.Reporter().Recent())
	assert.Equal(t, "reconciliation failed", s.Reporter().Recent()[0].Message)
}

func TestHandleStorPoolMessage(t *testing.T) {
	s := newSatellite(t, nil)
	_, conn := connectController(t, s)

	msg, err := api.NewMessage(1, api.MsgApplyStorPool, storPoolSnap("alpha"))
	require.NoError(t, err)
	s.HandleMessage(context.Background(), conn, msg)
	_, ok := s.State().StorPool("alpha", "DfltStorPool")
	assert.True(t, ok)

	// Unknown types are logged and dropped
	s.HandleMessage(context.Background(), conn, &api.Message{ID: 2, Type: "Bogus"})
	assert.Empty(t, conn.sent)
}

func TestNodeNameFromFirstFullSync(t *testing.T) {
	s, err := New(Config{})
	require.NoError(t, err)

	_, err = s.DeployResource(rscSnap("r1"))
	var dataErr *DivergentDataError
	require.ErrorAs(t, err, &dataErr)

	snap := rscSnap("r1")
	_, err = s.ApplyFullSync(api.FullSync{SyncID: 1, Node: snap.LocalNode})
	require.NoError(t, err)
	assert.Equal(t, "alpha", s.NodeName())
	_, err = s.DeployResource(snap)
	assert.NoError(t, err)
}

func TestFailedDeviceWorkIsRetried(t *testing.T) {
	devices := &fakeDevices{err: errors.New("device busy")}
	s := newSatellite(t, devices)
	ctx := context.Background()

	_, err := s.DeployResource(rscSnap("r1"))
	require.NoError(t, err)
	s.processPending(ctx)

	require.Len(t, s.Reporter().Recent(), 1)
	assert.Equal(t, "device update failed", s.Reporter().Recent()[0].Message)
	assert.Equal(t, 0, devices.deployCount())

	devices.setErr(nil)
	s.processPending(ctx)
	assert.Equal(t, 1, devices.deployCount())
}

func TestControllerDisconnect(t *testing.T) {
	s := newSatellite(t, nil)
	tracker, conn := connectController(t, s)
	assert.Equal(t, 1, s.ConnectedPeers())

	tracker.ConnectionClosed(conn)
	assert.Nil(t, s.controllerPeer())
	assert.Equal(t, 0, s.ConnectedPeers())
	assert.ErrorIs(t, s.RequestResource("r1", uuid.Nil), peer.ErrNotConnected)
	assert.ErrorIs(t, s.RequestStorPool("DfltStorPool", uuid.Nil), peer.ErrNotConnected)
}

func TestDeviceLoop(t *testing.T) {
	devices := &fakeDevices{}
	s := newSatellite(t, devices)
	s.Start()
	defer s.Stop()

	_, err := s.DeployResource(rscSnap("r1"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return devices.deployCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestControllerConnectionHealth(t *testing.T) {
	s := newSatellite(t, nil)
	controllerStatus := func() metrics.ComponentStatus {
		return metrics.Health.Report().Components[metrics.ComponentController]
	}

	tracker, conn := connectController(t, s)
	assert.True(t, controllerStatus().Healthy)

	tracker.ConnectionClosed(conn)
	assert.Nil(t, s.controllerPeer())
	status := controllerStatus()
	assert.False(t, status.Healthy)
	assert.Equal(t, "controller disconnected", status.Message)
}
