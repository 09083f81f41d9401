package controller

import (
	"sync"
	"testing"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/apicallrc"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/peer"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/google/uuid"
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

// connect registers a live satellite connection for node
func (f *fixture) connect(t *testing.T, node string) (*peer.Peer, *fakeConn) {
	t.Helper()
	p := peer.New(node, f.ctx)
	conn := newFakeConn("conn-"+node, true)
	conn.SetAttachment(p)
	peer.NewConnTracker(f.c.Peers(), nil, nil).OutboundEstablished(conn)
	require.True(t, p.Connected())
	return p, conn
}

// cluster creates node alpha with the default storage pool and resource
// definition r1 with one volume definition
func (f *fixture) cluster(t *testing.T) {
	t.Helper()
	f.mustSucceed(t, f.c.CreateNode(f.ctx, nil, satelliteSpec("alpha", "10.0.0.1")))
	f.mustSucceed(t, f.c.CreateStorPoolDefinition(f.ctx, nil, StorPoolDfnSpec{Name: config.DefaultStorPoolName}))
	f.mustSucceed(t, f.c.CreateStorPool(f.ctx, nil, StorPoolSpec{NodeName: "alpha", StorPoolName: config.DefaultStorPoolName}))
	f.mustSucceed(t, f.c.CreateResourceDefinition(f.ctx, nil, RscDfnSpec{Name: "r1", VolDfns: []VolDfnSpec{{SizeKiB: 1024}}}))
}

func intPtr(v int) *int { return &v }

func TestCreateResource(t *testing.T) {
	f := newFixture(t)
	f.cluster(t)

	rc := f.c.CreateResource(f.ctx, nil, RscSpec{NodeName: "alpha", RscName: "r1"})
	assert.Equal(t, []uint64{
		apicallrc.RscCreated,
		apicallrc.VlmCreated,
		apicallrc.MaskWarn | apicallrc.MaskCrt | apicallrc.MaskRsc | apicallrc.WarnNotConnected,
	}, rc.Codes())
	assert.Equal(t, map[string]string{"Node": "alpha", "RscDfn": "r1", "VlmNr": "0"}, rc.Entries[1].ObjRefs)

	rd := f.c.State().ResourceDefinition(rscName(t, "r1"))
	r := rd.Resource(nodeName(t, "alpha"))
	require.NotNil(t, r)
	assert.Equal(t, types.NodeID(0), r.NodeID())
	v := r.Volume(0)
	require.NotNil(t, v)
	require.NotNil(t, v.StorPool())
	assert.Equal(t, config.DefaultStorPoolName, v.StorPool().Name().String())
	assert.Equal(t, 1, v.StorPool().VolumeCount())
	assert.Equal(t, 1, f.store.Len(storage.BucketResources))
	assert.Equal(t, 1, f.store.Len(storage.BucketVolumes))

	rc = f.c.CreateResource(f.ctx, nil, RscSpec{NodeName: "alpha", RscName: "r1"})
	assert.Equal(t, []uint64{apicallrc.RscCrtFailExists}, rc.Codes())
}

func TestCreateResourceFailures(t *testing.T) {
	tests := []struct {
		name string
		spec RscSpec
		want uint64
	}{
		{"unknown node", RscSpec{NodeName: "ghost", RscName: "r1"}, apicallrc.RscCrtFailNotFoundNode},
		{"unknown definition", RscSpec{NodeName: "alpha", RscName: "ghost"}, apicallrc.RscCrtFailNotFoundDfn},
		{
			name: "unknown volume definition",
			spec: RscSpec{NodeName: "alpha", RscName: "r1", Vols: []VolSpec{{VolNr: 5}}},
			want: apicallrc.MaskError | apicallrc.MaskCrt | apicallrc.MaskRsc | apicallrc.FailNotFoundVlmDfn,
		},
		{
			name: "unknown storage pool",
			spec: RscSpec{NodeName: "alpha", RscName: "r1", Vols: []VolSpec{{VolNr: 0, StorPool: "ghost"}}},
			want: apicallrc.MaskError | apicallrc.MaskCrt | apicallrc.MaskRsc | apicallrc.FailNotFoundStorPool,
		},
		{
			name: "node id out of range",
			spec: RscSpec{NodeName: "alpha", RscName: "r1", NodeID: intPtr(-1)},
			want: apicallrc.MaskError | apicallrc.MaskCrt | apicallrc.MaskRsc | apicallrc.FailValueOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.cluster(t)

			rc := f.c.CreateResource(f.ctx, nil, tt.spec)
			require.Len(t, rc.Entries, 1)
			assert.Equal(t, tt.want, rc.Entries[0].ReturnCode)
			assert.Equal(t, 0, f.c.State().Counts()["resource"])
			assert.Equal(t, 0, f.store.Len(storage.BucketResources))
			assert.Equal(t, 0, f.store.Len(storage.BucketVolumes))
		})
	}
}

func TestCreateResourceDiskless(t *testing.T) {
	f := newFixture(t)
	f.mustSucceed(t, f.c.CreateNode(f.ctx, nil, satelliteSpec("alpha", "10.0.0.1")))
	f.mustSucceed(t, f.c.CreateResourceDefinition(f.ctx, nil, RscDfnSpec{Name: "r1", VolDfns: []VolDfnSpec{{SizeKiB: 1024}}}))

	f.mustSucceed(t, f.c.CreateResource(f.ctx, nil, RscSpec{NodeName: "alpha", RscName: "r1", Diskless: true}))
	r := f.c.State().ResourceDefinition(rscName(t, "r1")).Resource(nodeName(t, "alpha"))
	require.NotNil(t, r)
	assert.True(t, r.Flags().IsSet(types.FlagDiskless))
	assert.Nil(t, r.Volume(0).StorPool())
}

func TestNodeIDAllocation(t *testing.T) {
	f := newFixture(t)
	f.mustSucceed(t, f.c.CreateResourceDefinition(f.ctx, nil, RscDfnSpec{Name: "r1"}))
	f.mustSucceed(t, f.c.CreateNode(f.ctx, nil, satelliteSpec("alpha", "10.0.0.1")))
	f.mustSucceed(t, f.c.CreateNode(f.ctx, nil, satelliteSpec("beta", "10.0.0.2")))
	f.mustSucceed(t, f.c.CreateNode(f.ctx, nil, satelliteSpec("gamma", "10.0.0.3")))

	f.mustSucceed(t, f.c.CreateResource(f.ctx, nil, RscSpec{NodeName: "alpha", RscName: "r1", NodeID: intPtr(1)}))
	f.mustSucceed(t, f.c.CreateResource(f.ctx, nil, RscSpec{NodeName: "beta", RscName: "r1"}))
	rd := f.c.State().ResourceDefinition(rscName(t, "r1"))
	assert.Equal(t, types.NodeID(0), rd.Resource(nodeName(t, "beta")).NodeID())

	rc := f.c.CreateResource(f.ctx, nil, RscSpec{NodeName: "gamma", RscName: "r1", NodeID: intPtr(1)})
	assert.Equal(t, []uint64{apicallrc.RscCrtFailExistsNodeID}, rc.Codes())
	assert.Contains(t, rc.Entries[0].Cause, "alpha")

	f.mustSucceed(t, f.c.CreateResource(f.ctx, nil, RscSpec{NodeName: "gamma", RscName: "r1"}))
	assert.Equal(t, types.NodeID(2), rd.Resource(nodeName(t, "gamma")).NodeID())
}

func TestResourceLimit(t *testing.T) {
	f := newFixture(t)
	f.mustSucceed(t, f.c.CreateResourceDefinition(f.ctx, nil, RscDfnSpec{Name: "r1"}))
	_, _, err := f.c.Props().Set(config.KeyPeerCount, "1")
	require.NoError(t, err)

	f.mustSucceed(t, f.c.CreateNode(f.ctx, nil, satelliteSpec("alpha", "10.0.0.1")))
	f.mustSucceed(t, f.c.CreateNode(f.ctx, nil, satelliteSpec("beta", "10.0.0.2")))
	f.mustSucceed(t, f.c.CreateNode(f.ctx, nil, satelliteSpec("gamma", "10.0.0.3")))
	f.mustSucceed(t, f.c.CreateResource(f.ctx, nil, RscSpec{NodeName: "alpha", RscName: "r1"}))
	f.mustSucceed(t, f.c.CreateResource(f.ctx, nil, RscSpec{NodeName: "beta", RscName: "r1"}))

	rc := f.c.CreateResource(f.ctx, nil, RscSpec{NodeName: "gamma", RscName: "r1"})
	assert.Equal(t, []uint64{apicallrc.MaskError | apicallrc.MaskCrt | apicallrc.MaskRsc | apicallrc.FailPoolExhausted}, rc.Codes())
}

func TestPortAndMinorCollisions(t *testing.T) {
	f := newFixture(t)
	f.mustSucceed(t, f.c.CreateResourceDefinition(f.ctx, nil, RscDfnSpec{
		Name:    "r1",
		Port:    intPtr(7000),
		VolDfns: []VolDfnSpec{{Minor: intPtr(1000), SizeKiB: 64}},
	}))

	rc := f.c.CreateResourceDefinition(f.ctx, nil, RscDfnSpec{Name: "r2", Port: intPtr(7000)})
	assert.Equal(t, []uint64{apicallrc.RscDfnCrtFailExistsPort}, rc.Codes())

	rc = f.c.CreateResourceDefinition(f.ctx, nil, RscDfnSpec{Name: "r2", VolDfns: []VolDfnSpec{{Minor: intPtr(1000), SizeKiB: 64}}})
	assert.Equal(t, []uint64{apicallrc.VlmDfnCrtFailExistsMinor}, rc.Codes())
	assert.Nil(t, f.c.State().ResourceDefinition(rscName(t, "r2")))

	f.mustSucceed(t, f.c.CreateResourceDefinition(f.ctx, nil, RscDfnSpec{Name: "r2", VolDfns: []VolDfnSpec{{SizeKiB: 64}}}))
	rd := f.c.State().ResourceDefinition(rscName(t, "r2"))
	assert.Equal(t, types.TCPPort(7001), rd.Port())
	assert.Equal(t, types.MinorNumber(1001), rd.VolumeDefinition(0).Minor())
}

func TestStorPoolInUse(t *testing.T) {
	f := newFixture(t)
	f.cluster(t)
	f.mustSucceed(t, f.c.CreateResource(f.ctx, nil, RscSpec{NodeName: "alpha", RscName: "r1"}))

	rc := f.c.DeleteStorPool(f.ctx, nil, "alpha", config.DefaultStorPoolName)
	assert.Equal(t, []uint64{apicallrc.StorPoolDelFailInUse}, rc.Codes())

	rc = f.c.DeleteStorPoolDefinition(f.ctx, nil, config.DefaultStorPoolName)
	assert.Equal(t, []uint64{apicallrc.StorPoolDfnDelFailInUse}, rc.Codes())
	assert.NotEmpty(t, rc.Entries[0].Correction)

	assert.NotNil(t, f.c.State().Node(nodeName(t, "alpha")).StorPool(spName(t, config.DefaultStorPoolName)))
}

func TestDeleteStorPoolDefinitionRemovesPools(t *testing.T) {
	f := newFixture(t)
	f.mustSucceed(t, f.c.CreateNode(f.ctx, nil, satelliteSpec("alpha", "10.0.0.1")))
	f.mustSucceed(t, f.c.CreateNode(f.ctx, nil, satelliteSpec("beta", "10.0.0.2")))
	f.mustSucceed(t, f.c.CreateStorPoolDefinition(f.ctx, nil, StorPoolDfnSpec{Name: "pool1"}))
	f.mustSucceed(t, f.c.CreateStorPool(f.ctx, nil, StorPoolSpec{NodeName: "alpha", StorPoolName: "pool1"}))
	f.mustSucceed(t, f.c.CreateStorPool(f.ctx, nil, StorPoolSpec{NodeName: "beta", StorPoolName: "pool1", Driver: "ZFS"}))
	assert.Equal(t, "ZFS", f.c.State().Node(nodeName(t, "beta")).StorPool(spName(t, "pool1")).Driver())

	rc := f.c.DeleteStorPoolDefinition(f.ctx, nil, "pool1")
	assert.True(t, rc.Has(apicallrc.StorPoolDfnDeleted))
	assert.Nil(t, f.c.State().StorPoolDefinition(spName(t, "pool1")))
	assert.Nil(t, f.c.State().Node(nodeName(t, "alpha")).StorPool(spName(t, "pool1")))
	assert.Equal(t, 0, f.store.Len(storage.BucketStorPools))
	assert.Equal(t, 0, f.store.Len(storage.BucketStorPoolDfns))
}

func TestDeletionPurgedOnConfirmation(t *testing.T) {
	f := newFixture(t)
	f.cluster(t)
	f.mustSucceed(t, f.c.CreateResource(f.ctx, nil, RscSpec{NodeName: "alpha", RscName: "r1"}))
	r := f.c.State().ResourceDefinition(rscName(t, "r1")).Resource(nodeName(t, "alpha"))

	rc := f.c.DeleteResourceDefinition(f.ctx, nil, "r1")
	assert.True(t, rc.Has(apicallrc.RscDfnMarkedForDeletion))
	assert.True(t, r.IsDeleted())
	assert.True(t, r.Volume(0).IsDeleted())

	rc = f.c.DeleteNode(f.ctx, nil, "alpha")
	assert.True(t, rc.Has(apicallrc.NodeMarkedForDeletion))
	assert.Equal(t, []uint64{apicallrc.NodeMarkedForDeletion}, f.c.DeleteNode(f.ctx, nil, "alpha").Codes())

	// Creating on a node marked for deletion fails
	rc = f.c.CreateStorPool(f.ctx, nil, StorPoolSpec{NodeName: "alpha", StorPoolName: config.DefaultStorPoolName})
	assert.Equal(t, []uint64{apicallrc.StorPoolCrtFailNotFoundNode}, rc.Codes())

	// A confirmation for another UUID changes nothing
	rc = f.c.HandleResourceDeleted(nil, api.ResourceDeleted{NodeName: "alpha", RscName: "r1", RscUUID: uuid.New()})
	assert.Equal(t, []uint64{apicallrc.RscDelWarnNotFound}, rc.Codes())
	assert.NotNil(t, f.c.State().ResourceDefinition(rscName(t, "r1")))

	rc = f.c.HandleResourceDeleted(nil, api.ResourceDeleted{NodeName: "alpha", RscName: "r1", RscUUID: r.UUID()})
	assert.Equal(t, []uint64{apicallrc.RscDeleted, apicallrc.RscDfnDeleted, apicallrc.NodeDeleted}, rc.Codes())

	counts := f.c.State().Counts()
	assert.Equal(t, 0, counts["node"])
	assert.Equal(t, 0, counts["rsc_dfn"])
	assert.Equal(t, 1, counts["stor_pool_dfn"])
	for _, bucket := range []string{storage.BucketNodes, storage.BucketRscDfns, storage.BucketVolDfns,
		storage.BucketResources, storage.BucketVolumes, storage.BucketStorPools} {
		assert.Equal(t, 0, f.store.Len(bucket), bucket)
	}
	assert.Equal(t, types.StateRemoved, r.State())
}

func TestConfirmationFromOtherSatelliteDenied(t *testing.T) {
	f := newFixture(t)
	f.cluster(t)
	f.mustSucceed(t, f.c.CreateResource(f.ctx, nil, RscSpec{NodeName: "alpha", RscName: "r1"}))
	r := f.c.State().ResourceDefinition(rscName(t, "r1")).Resource(nodeName(t, "alpha"))
	f.c.DeleteResource(f.ctx, nil, "alpha", "r1")

	rc := f.c.HandleResourceDeleted(peer.New("beta", f.ctx), api.ResourceDeleted{NodeName: "alpha", RscName: "r1", RscUUID: r.UUID()})
	assert.Equal(t, []uint64{apicallrc.MaskError | apicallrc.MaskDel | apicallrc.MaskRsc | apicallrc.FailAccDenied}, rc.Codes())
	assert.NotNil(t, f.c.State().ResourceDefinition(rscName(t, "r1")).Resource(nodeName(t, "alpha")))
}

func TestDeleteVolumeDefinition(t *testing.T) {
	f := newFixture(t)
	f.cluster(t)
	f.mustSucceed(t, f.c.CreateResource(f.ctx, nil, RscSpec{NodeName: "alpha", RscName: "r1"}))
	r := f.c.State().ResourceDefinition(rscName(t, "r1")).Resource(nodeName(t, "alpha"))

	rc := f.c.DeleteVolumeDefinition(f.ctx, nil, "r1", 0)
	assert.True(t, rc.Has(apicallrc.VlmDfnMarkedForDeletion))
	vd := f.c.State().ResourceDefinition(rscName(t, "r1")).VolumeDefinition(0)
	require.NotNil(t, vd)
	assert.True(t, vd.IsDeleted())

	rc = f.c.HandleResourceDeleted(nil, api.ResourceDeleted{NodeName: "alpha", RscName: "r1", RscUUID: r.UUID(), VolNrs: []int{0}})
	assert.True(t, rc.Has(apicallrc.VlmDfnDeleted))
	assert.Nil(t, f.c.State().ResourceDefinition(rscName(t, "r1")).VolumeDefinition(0))
	assert.Nil(t, r.Volume(0))
	assert.False(t, r.IsDeleted())
	assert.Equal(t, 0, f.store.Len(storage.BucketVolDfns))
	assert.Equal(t, 0, f.store.Len(storage.BucketVolumes))
}

func TestCreateVolumeDefinitionAddsVolumes(t *testing.T) {
	f := newFixture(t)
	f.cluster(t)
	f.mustSucceed(t, f.c.CreateResource(f.ctx, nil, RscSpec{NodeName: "alpha", RscName: "r1"}))

	rc := f.c.CreateVolumeDefinitions(f.ctx, nil, "r1", []VolDfnSpec{{SizeKiB: 4096}})
	assert.True(t, rc.Has(apicallrc.VlmDfnCreated))
	r := f.c.State().ResourceDefinition(rscName(t, "r1")).Resource(nodeName(t, "alpha"))
	require.NotNil(t, r.Volume(1))
	assert.Equal(t, uint64(4096), r.Volume(1).Definition().SizeKiB())

	rc = f.c.CreateVolumeDefinitions(f.ctx, nil, "ghost", []VolDfnSpec{{SizeKiB: 1}})
	assert.Equal(t, []uint64{apicallrc.MaskError | apicallrc.MaskCrt | apicallrc.MaskVlmDfn | apicallrc.FailNotFoundRscDfn}, rc.Codes())
}

func TestPurgeNonSatelliteResources(t *testing.T) {
	f := newFixture(t)
	f.mustSucceed(t, f.c.CreateNode(f.ctx, nil, NodeSpec{Name: "ctrl", Type: "controller"}))
	f.mustSucceed(t, f.c.CreateResourceDefinition(f.ctx, nil, RscDfnSpec{Name: "r1"}))
	f.mustSucceed(t, f.c.CreateResource(f.ctx, nil, RscSpec{NodeName: "ctrl", RscName: "r1"}))

	// Without a satellite the resource is removed at once
	rc := f.c.DeleteResource(f.ctx, nil, "ctrl", "r1")
	assert.Equal(t, []uint64{apicallrc.RscDeleted}, rc.Codes())
	assert.Nil(t, f.c.State().ResourceDefinition(rscName(t, "r1")).Resource(nodeName(t, "ctrl")))

	rc = f.c.Purge()
	assert.Empty(t, rc.Entries)
}

func TestDeleteResourceCompletesParentDeletion(t *testing.T) {
	tests := []struct {
		name         string
		deleteParent func(f *fixture) *apicallrc.ApiCallRc
		wantCodes    []uint64
		wantNode     bool
		wantRscDfn   bool
	}{
		{
			name:         "resource definition",
			deleteParent: func(f *fixture) *apicallrc.ApiCallRc { return f.c.DeleteResourceDefinition(f.ctx, nil, "r1") },
			wantCodes:    []uint64{apicallrc.RscDeleted, apicallrc.RscDfnDeleted},
			wantNode:     true,
		},
		{
			name:         "node",
			deleteParent: func(f *fixture) *apicallrc.ApiCallRc { return f.c.DeleteNode(f.ctx, nil, "ctrl") },
			wantCodes:    []uint64{apicallrc.RscDeleted, apicallrc.NodeDeleted},
			wantRscDfn:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.mustSucceed(t, f.c.CreateNode(f.ctx, nil, NodeSpec{Name: "ctrl", Type: "controller"}))
			f.mustSucceed(t, f.c.CreateResourceDefinition(f.ctx, nil, RscDfnSpec{Name: "r1"}))
			f.mustSucceed(t, f.c.CreateResource(f.ctx, nil, RscSpec{NodeName: "ctrl", RscName: "r1"}))

			rc := tt.deleteParent(f)
			require.Len(t, rc.Entries, 1)
			assert.Equal(t, apicallrc.MarkedForDeletion, apicallrc.Low(rc.Entries[0].ReturnCode))

			rc = f.c.DeleteResource(f.ctx, nil, "ctrl", "r1")
			assert.Equal(t, tt.wantCodes, rc.Codes())
			assert.Equal(t, tt.wantNode, f.c.State().Node(nodeName(t, "ctrl")) != nil)
			assert.Equal(t, tt.wantRscDfn, f.c.State().ResourceDefinition(rscName(t, "r1")) != nil)
			assert.Equal(t, 0, f.store.Len(storage.BucketResources))
			assert.Empty(t, f.c.Purge().Entries)
		})
	}
}

func TestPurgeSweepsMarkedObjects(t *testing.T) {
	f := newFixture(t)
	f.cluster(t)
	f.mustSucceed(t, f.c.CreateResource(f.ctx, nil, RscSpec{NodeName: "alpha", RscName: "r1"}))
	f.c.DeleteResourceDefinition(f.ctx, nil, "r1")

	// alpha keeps its resource until the satellite confirms
	assert.Empty(t, f.c.Purge().Entries)
	r := f.c.State().ResourceDefinition(rscName(t, "r1")).Resource(nodeName(t, "alpha"))
	require.NotNil(t, r)

	f.c.HandleResourceDeleted(nil, api.ResourceDeleted{NodeName: "alpha", RscName: "r1", RscUUID: r.UUID()})
	assert.Nil(t, f.c.State().ResourceDefinition(rscName(t, "r1")))
	assert.Empty(t, f.c.Purge().Entries)
}

func TestUpdatesReachConnectedSatellite(t *testing.T) {
	f := newFixture(t)
	f.cluster(t)
	_, conn := f.connect(t, "alpha")

	rc := f.c.CreateResource(f.ctx, nil, RscSpec{NodeName: "alpha", RscName: "r1"})
	assert.Equal(t, []uint64{apicallrc.RscCreated, apicallrc.VlmCreated}, rc.Codes())

	msgs := conn.messages(api.MsgApplyResource)
	require.Len(t, msgs, 1)
	var snap api.ResourceSnapshot
	require.NoError(t, msgs[0].Decode(&snap))
	assert.Equal(t, "r1", snap.RscDfn.Name)
	assert.Equal(t, "alpha", snap.LocalNode.Name)
	require.Len(t, snap.LocalVols, 1)
	require.Len(t, snap.VolDfns, 1)
	assert.Equal(t, 1000, snap.VolDfns[0].Minor)
	assert.False(t, snap.Removed)

	// A failed call sends nothing
	f.c.CreateResource(f.ctx, nil, RscSpec{NodeName: "alpha", RscName: "r1"})
	assert.Len(t, conn.messages(api.MsgApplyResource), 1)
}

func TestHandleResourceRequest(t *testing.T) {
	f := newFixture(t)
	f.cluster(t)
	f.mustSucceed(t, f.c.CreateResource(f.ctx, nil, RscSpec{NodeName: "alpha", RscName: "r1"}))
	r := f.c.State().ResourceDefinition(rscName(t, "r1")).Resource(nodeName(t, "alpha"))
	p, conn := f.connect(t, "alpha")

	tests := []struct {
		name        string
		req         api.ResourceRequest
		wantRemoved bool
	}{
		{"current uuid", api.ResourceRequest{RscName: "r1", RscUUID: r.UUID()}, false},
		{"any uuid", api.ResourceRequest{RscName: "r1"}, false},
		{"stale uuid", api.ResourceRequest{RscName: "r1", RscUUID: uuid.New()}, true},
		{"unknown resource", api.ResourceRequest{RscName: "ghost", RscUUID: uuid.New()}, true},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, f.c.HandleResourceRequest(p, tt.req))
			msgs := conn.messages(api.MsgApplyResource)
			require.Len(t, msgs, i+1)
			var snap api.ResourceSnapshot
			require.NoError(t, msgs[i].Decode(&snap))
			assert.Equal(t, tt.wantRemoved, snap.Removed)
		})
	}

	stranger := peer.New("ghost", f.ctx)
	assert.ErrorIs(t, f.c.HandleResourceRequest(stranger, api.ResourceRequest{RscName: "r1"}), ErrUnknownNode)
}

func TestHandleStorPoolRequest(t *testing.T) {
	f := newFixture(t)
	f.cluster(t)
	p, conn := f.connect(t, "alpha")

	require.NoError(t, f.c.HandleStorPoolRequest(p, api.StorPoolRequest{StorPoolName: config.DefaultStorPoolName}))
	require.NoError(t, f.c.HandleStorPoolRequest(p, api.StorPoolRequest{StorPoolName: "ghost", StorPoolUUID: uuid.New()}))

	msgs := conn.messages(api.MsgApplyStorPool)
	require.Len(t, msgs, 2)
	var snap api.StorPoolSnapshot
	require.NoError(t, msgs[0].Decode(&snap))
	assert.False(t, snap.Removed)
	assert.Equal(t, DefaultStorPoolDriver, snap.StorPool.Driver)
	require.NoError(t, msgs[1].Decode(&snap))
	assert.True(t, snap.Removed)
}
