package types

import (
	"sort"

	"github.com/google/uuid"
)

// NodeConnection holds properties of the link between two nodes. Connections
// are symmetric: (a, b) and (b, a) name the same connection.
type NodeConnection struct {
	uuid  uuid.UUID
	node1 *Node
	node2 *Node
	props *Props
}

// NewNodeConnection creates an unregistered node connection
func NewNodeConnection(id uuid.UUID, a, b *Node) *NodeConnection {
	if a.name.Key() > b.name.Key() {
		a, b = b, a
	}
	return &NodeConnection{uuid: id, node1: a, node2: b, props: NewProps()}
}

func (c *NodeConnection) UUID() uuid.UUID { return c.uuid }
func (c *NodeConnection) Nodes() (*Node, *Node) { return c.node1, c.node2 }
func (c *NodeConnection) Props() *Props { return c.props }

// Key is the unordered pair key of the two nodes
func (c *NodeConnection) Key() string { return PairKey(c.node1.name, c.node2.name) }

// Link registers the connection on both nodes
func (c *NodeConnection) Link() {
	c.node1.nodeConns[c.node2.name.Key()] = c
	c.node2.nodeConns[c.node1.name.Key()] = c
}

// Unlink removes the connection from both nodes
func (c *NodeConnection) Unlink() {
	delete(c.node1.nodeConns, c.node2.name.Key())
	delete(c.node2.nodeConns, c.node1.name.Key())
}

// Data returns the flattened form
func (c *NodeConnection) Data() NodeConnData {
	return NodeConnData{
		UUID:      c.uuid,
		NodeName1: c.node1.name.String(),
		NodeName2: c.node2.name.String(),
		Props:     c.props.Map(),
	}
}

// ResourceConnection holds properties of the link between two resources of
// the same definition.
type ResourceConnection struct {
	uuid  uuid.UUID
	rsc1  *Resource
	rsc2  *Resource
	props *Props

	volConns map[VolumeNumber]*VolumeConnection
}

// NewResourceConnection creates an unregistered resource connection
func NewResourceConnection(id uuid.UUID, a, b *Resource) *ResourceConnection {
	if a.node.name.Key() > b.node.name.Key() {
		a, b = b, a
	}
	return &ResourceConnection{
		uuid:     id,
		rsc1:     a,
		rsc2:     b,
		props:    NewProps(),
		volConns: make(map[VolumeNumber]*VolumeConnection),
	}
}

func (c *ResourceConnection) UUID() uuid.UUID { return c.uuid }
func (c *ResourceConnection) Resources() (*Resource, *Resource) { return c.rsc1, c.rsc2 }
func (c *ResourceConnection) Props() *Props { return c.props }

// Key is the unordered pair key of the two resources' nodes
func (c *ResourceConnection) Key() string { return PairKey(c.rsc1.node.name, c.rsc2.node.name) }

// VolumeConnection looks up the connection of one volume pair
func (c *ResourceConnection) VolumeConnection(nr VolumeNumber) *VolumeConnection {
	return c.volConns[nr]
}

// VolumeConnections returns the volume connections ordered by volume number
func (c *ResourceConnection) VolumeConnections() []*VolumeConnection {
	out := make([]*VolumeConnection, 0, len(c.volConns))
	for _, vc := range c.volConns {
		out = append(out, vc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].nr < out[j].nr })
	return out
}

// VolumeConnectionCount returns the number of volume connections
func (c *ResourceConnection) VolumeConnectionCount() int { return len(c.volConns) }

// Link registers the connection in the resource definition
func (c *ResourceConnection) Link() { c.rsc1.rscDfn.rscConns[c.Key()] = c }

// Unlink removes the connection from the resource definition
func (c *ResourceConnection) Unlink() { delete(c.rsc1.rscDfn.rscConns, c.Key()) }

// Data returns the flattened form
func (c *ResourceConnection) Data() RscConnData {
	return RscConnData{
		UUID:      c.uuid,
		NodeName1: c.rsc1.node.name.String(),
		NodeName2: c.rsc2.node.name.String(),
		RscName:   c.rsc1.rscDfn.name.String(),
		Props:     c.props.Map(),
	}
}

// VolumeConnection holds properties of the link between two volumes with
// the same volume number. It lives inside the resource connection of the
// two resources.
type VolumeConnection struct {
	uuid    uuid.UUID
	rscConn *ResourceConnection
	nr      VolumeNumber
	props   *Props
}

// NewVolumeConnection creates an unregistered volume connection
func NewVolumeConnection(id uuid.UUID, rscConn *ResourceConnection, nr VolumeNumber) *VolumeConnection {
	return &VolumeConnection{uuid: id, rscConn: rscConn, nr: nr, props: NewProps()}
}

func (c *VolumeConnection) UUID() uuid.UUID { return c.uuid }
func (c *VolumeConnection) ResourceConnection() *ResourceConnection { return c.rscConn }
func (c *VolumeConnection) Number() VolumeNumber { return c.nr }
func (c *VolumeConnection) Props() *Props { return c.props }

// Link registers the volume connection in its resource connection
func (c *VolumeConnection) Link() { c.rscConn.volConns[c.nr] = c }

// Unlink removes the volume connection from its resource connection
func (c *VolumeConnection) Unlink() { delete(c.rscConn.volConns, c.nr) }

// Data returns the flattened form
func (c *VolumeConnection) Data() VolConnData {
	return VolConnData{
		UUID:      c.uuid,
		NodeName1: c.rscConn.rsc1.node.name.String(),
		NodeName2: c.rscConn.rsc2.node.name.String(),
		RscName:   c.rscConn.rsc1.rscDfn.name.String(),
		VolNr:     int(c.nr),
		Props:     c.props.Map(),
	}
}
