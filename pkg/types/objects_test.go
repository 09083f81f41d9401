package types

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	node   *Node
	rscDfn *ResourceDefinition
	volDfn *VolumeDefinition
	spDfn  *StorPoolDefinition
	sp     *StorPool
	rsc    *Resource
	vol    *Volume
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	nodeName, err := NewNodeName("alpha")
	require.NoError(t, err)
	rscName, err := NewResourceName("r1")
	require.NoError(t, err)
	spName, err := NewStorPoolName("pool1")
	require.NoError(t, err)

	f := &fixture{}
	f.node = NewNode(uuid.New(), nodeName, NodeTypeSatellite, nil)
	f.rscDfn = NewResourceDefinition(uuid.New(), rscName, 7000, "s3cret", "", nil)
	f.volDfn = NewVolumeDefinition(uuid.New(), f.rscDfn, 0, 1000, 1048576)
	f.volDfn.Link()
	f.spDfn = NewStorPoolDefinition(uuid.New(), spName, nil)
	f.sp = NewStorPool(uuid.New(), f.node, f.spDfn, "lvm")
	f.sp.Link()
	f.rsc = NewResource(uuid.New(), f.node, f.rscDfn, 0, nil)
	f.rsc.Link()
	f.vol = NewVolume(uuid.New(), f.rsc, f.volDfn, f.sp)
	f.vol.Link()
	return f
}

func TestLinkRegistersInParents(t *testing.T) {
	f := newFixture(t)

	assert.Same(t, f.rsc, f.node.Resource(f.rscDfn.Name()))
	assert.Same(t, f.rsc, f.rscDfn.Resource(f.node.Name()))
	assert.Same(t, f.volDfn, f.rscDfn.VolumeDefinition(0))
	assert.Same(t, f.vol, f.rsc.Volume(0))
	assert.Same(t, f.vol, f.volDfn.Volume(f.node.Name()))
	assert.Same(t, f.sp, f.node.StorPool(f.spDfn.Name()))
	assert.Equal(t, 1, f.sp.VolumeCount())
	assert.Equal(t, TransportIP, f.rscDfn.Transport())
}

func TestStorPoolInUse(t *testing.T) {
	f := newFixture(t)
	assert.True(t, f.sp.InUse())
	assert.True(t, f.spDfn.InUse())

	f.rsc.MarkDeleted()
	assert.False(t, f.sp.InUse())
	assert.False(t, f.spDfn.InUse())
}

func TestResourceUnlinkRemovesVolumes(t *testing.T) {
	f := newFixture(t)

	f.rsc.Unlink()

	assert.Nil(t, f.node.Resource(f.rscDfn.Name()))
	assert.Equal(t, 0, f.rscDfn.ResourceCount())
	assert.Equal(t, 0, f.volDfn.VolumeCount())
	assert.Equal(t, 0, f.sp.VolumeCount())
	assert.Equal(t, StateRemoved, f.rsc.State())
	assert.Equal(t, StateRemoved, f.vol.State())
}

func TestLifecycleStates(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, StateExists, f.rsc.State())

	old := f.rsc.MarkDeleted()
	assert.False(t, old.IsSet(FlagDelete))
	assert.True(t, f.rsc.IsDeleted())
	assert.Equal(t, StateMarkedDeleted, f.rsc.State())

	f.rsc.SetFlags(old)
	assert.Equal(t, StateExists, f.rsc.State())
}

func TestConnectionsAreSymmetric(t *testing.T) {
	f := newFixture(t)
	bravoName, _ := NewNodeName("bravo")
	bravo := NewNode(uuid.New(), bravoName, NodeTypeSatellite, nil)

	nc := NewNodeConnection(uuid.New(), bravo, f.node)
	nc.Link()
	assert.Same(t, nc, f.node.NodeConnection(bravoName))
	assert.Same(t, nc, bravo.NodeConnection(f.node.Name()))
	a, b := nc.Nodes()
	assert.Equal(t, "alpha", a.Name().String())
	assert.Equal(t, "bravo", b.Name().String())

	other := NewResource(uuid.New(), bravo, f.rscDfn, 1, nil)
	other.Link()
	rc := NewResourceConnection(uuid.New(), other, f.rsc)
	rc.Link()
	assert.Same(t, rc, f.rscDfn.ResourceConnection(f.node.Name(), bravoName))
	assert.Same(t, rc, f.rscDfn.ResourceConnection(bravoName, f.node.Name()))

	vc := NewVolumeConnection(uuid.New(), rc, 0)
	vc.Link()
	assert.Same(t, vc, rc.VolumeConnection(0))

	other.Unlink()
	assert.Nil(t, f.rscDfn.ResourceConnection(f.node.Name(), bravoName))

	bravo.MarkRemoved()
	assert.Nil(t, f.node.NodeConnection(bravoName))
}

func TestDataRecords(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.rsc.Props().Set("Aux/rack", "r1")
	require.NoError(t, err)

	rd := f.rsc.Data()
	assert.Equal(t, f.rsc.UUID(), rd.UUID)
	assert.Equal(t, "alpha", rd.NodeName)
	assert.Equal(t, "r1", rd.RscName)
	assert.Equal(t, map[string]string{"Aux/rack": "r1"}, rd.Props)

	vd := f.vol.Data()
	assert.Equal(t, "pool1", vd.StorPoolName)
	assert.Equal(t, 0, vd.VolNr)

	vdd := f.volDfn.Data()
	assert.Equal(t, 1000, vdd.Minor)
	assert.Equal(t, uint64(1048576), vdd.SizeKiB)

	spd := f.sp.Data()
	assert.Equal(t, f.spDfn.UUID(), spd.DfnUUID)
}
