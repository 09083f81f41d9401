package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/burrow/pkg/apicallrc"
	"github.com/cuemby/burrow/pkg/controller"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const clusterYAML = `
nodes:
  - name: alpha
    type: satellite
    net_interfaces:
      - name: default
        address: 10.0.0.1
  - name: beta
    type: satellite
    net_interfaces:
      - name: default
        address: 10.0.0.2
storage_pool_definitions:
  - name: DfltStorPool
storage_pools:
  - node: alpha
    name: DfltStorPool
  - node: beta
    name: DfltStorPool
resource_definitions:
  - name: r1
    port: 7000
    volume_definitions:
      - size_kib: 1048576
resources:
  - node: alpha
    name: r1
  - node: beta
    name: r1
    diskless: true
node_connections:
  - node1: alpha
    node2: beta
    props:
      Paths/default: eth1
`

func newController(t *testing.T) *controller.Controller {
	t.Helper()
	c, err := controller.New(controller.Options{Store: storage.NewMemStore()})
	require.NoError(t, err)
	require.NoError(t, c.Load())
	return c
}

func TestParse(t *testing.T) {
	m, err := Parse([]byte(clusterYAML))
	require.NoError(t, err)

	require.Len(t, m.Nodes, 2)
	assert.Equal(t, "10.0.0.2", m.Nodes[1].NetInterfaces[0].Address)
	require.Len(t, m.ResourceDefinitions, 1)
	require.NotNil(t, m.ResourceDefinitions[0].Port)
	assert.Equal(t, 7000, *m.ResourceDefinitions[0].Port)
	assert.Equal(t, uint64(1048576), m.ResourceDefinitions[0].VolDfns[0].SizeKiB)
	assert.True(t, m.Resources[1].Diskless)
	assert.Equal(t, "eth1", m.NodeConnections[0].Props["Paths/default"])
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "unknown section", data: "volumes:\n  - name: x\n"},
		{name: "unknown field", data: "nodes:\n  - name: alpha\n    color: red\n"},
		{name: "wrong type", data: "nodes: alpha\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestParseEmpty(t *testing.T) {
	m, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, m.Nodes)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cluster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(clusterYAML), 0o600))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, m.StorPools, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	c := newController(t)
	m, err := Parse([]byte(clusterYAML))
	require.NoError(t, err)

	sum, err := Apply(c, c.SystemContext(), m)
	require.NoError(t, err)
	assert.Equal(t, 9, sum.Created)
	assert.Zero(t, sum.Skipped)
	assert.Empty(t, sum.Errors)

	counts := c.State().Counts()
	assert.Equal(t, 2, counts["node"])
	assert.Equal(t, 2, counts["stor_pool"])
	assert.Equal(t, 1, counts["rsc_dfn"])
	assert.Equal(t, 2, counts["resource"])

	sum, err = Apply(c, c.SystemContext(), m)
	require.NoError(t, err, "applying twice skips existing objects")
	assert.Zero(t, sum.Created)
	assert.Equal(t, 9, sum.Skipped)
}

func TestApplyContinuesAfterFailure(t *testing.T) {
	c := newController(t)
	m := &Manifest{
		Nodes: []controller.NodeSpec{
			{Name: "-bad", Type: "satellite"},
			{Name: "alpha", Type: "controller"},
		},
		Resources: []controller.RscSpec{{NodeName: "alpha", RscName: "missing"}},
	}

	sum, err := Apply(c, c.SystemContext(), m)
	assert.Error(t, err)
	assert.Equal(t, 1, sum.Created)
	assert.Equal(t, 2, sum.Failed)
	require.Len(t, sum.Errors, 2)
	assert.Equal(t, apicallrc.NodeCrtFailInvalidName, sum.Errors[0].ReturnCode)
	assert.Equal(t, 1, c.State().Counts()["node"])
}

func TestAlreadyExists(t *testing.T) {
	tests := []struct {
		name  string
		codes []uint64
		want  bool
	}{
		{name: "no entries", want: false},
		{name: "created", codes: []uint64{apicallrc.NodeCreated}, want: false},
		{name: "exists", codes: []uint64{apicallrc.NodeCrtFailExistsNode}, want: true},
		{name: "exists with warning", codes: []uint64{apicallrc.RscCrtFailExists, apicallrc.NodeCrtWarnNotConnected}, want: true},
		{name: "other failure", codes: []uint64{apicallrc.RscCrtFailExists, apicallrc.NodeCrtFailInvalidName}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := apicallrc.New()
			for _, code := range tt.codes {
				rc.AddEntry(code, "x")
			}
			assert.Equal(t, tt.want, alreadyExists(rc))
		})
	}
}
