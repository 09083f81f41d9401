package types

import (
	"sort"

	"github.com/cuemby/burrow/pkg/security"
	"github.com/google/uuid"
)

// NetInterface is a named network address of a node. The satellite port is
// only set on interfaces the controller uses to reach the satellite.
type NetInterface struct {
	uuid       uuid.UUID
	name       NetInterfaceName
	Address    string
	Port       TCPPort
	Encryption EncryptionType
}

// NewNetInterface creates a network interface
func NewNetInterface(id uuid.UUID, name NetInterfaceName, address string, port TCPPort, enc EncryptionType) *NetInterface {
	if enc == "" {
		enc = EncryptionPlain
	}
	return &NetInterface{uuid: id, name: name, Address: address, Port: port, Encryption: enc}
}

func (ni *NetInterface) UUID() uuid.UUID { return ni.uuid }
func (ni *NetInterface) Name() NetInterfaceName { return ni.name }

// Data returns the flattened form
func (ni *NetInterface) Data() NetInterfaceData {
	return NetInterfaceData{
		UUID:       ni.uuid,
		Name:       ni.name.String(),
		Address:    ni.Address,
		Port:       int(ni.Port),
		Encryption: ni.Encryption,
	}
}

// Node is a managed cluster node
type Node struct {
	lifecycle

	uuid     uuid.UUID
	name     NodeName
	nodeType NodeType
	props    *Props
	prot     *security.ObjectProtection

	netIfs    map[string]*NetInterface
	resources map[string]*Resource
	storPools map[string]*StorPool
	nodeConns map[string]*NodeConnection
}

// NewNode creates an unregistered node
func NewNode(id uuid.UUID, name NodeName, nodeType NodeType, prot *security.ObjectProtection) *Node {
	return &Node{
		uuid:      id,
		name:      name,
		nodeType:  nodeType,
		props:     NewProps(),
		prot:      prot,
		netIfs:    make(map[string]*NetInterface),
		resources: make(map[string]*Resource),
		storPools: make(map[string]*StorPool),
		nodeConns: make(map[string]*NodeConnection),
	}
}

func (n *Node) UUID() uuid.UUID { return n.uuid }
func (n *Node) Name() NodeName { return n.name }
func (n *Node) Type() NodeType { return n.nodeType }
func (n *Node) Props() *Props { return n.props }
func (n *Node) ObjectProtection() *security.ObjectProtection { return n.prot }

// AddNetInterface registers a network interface
func (n *Node) AddNetInterface(ni *NetInterface) { n.netIfs[ni.name.Key()] = ni }

// RemoveNetInterface unregisters a network interface
func (n *Node) RemoveNetInterface(name NetInterfaceName) { delete(n.netIfs, name.Key()) }

// NetInterface looks up a network interface by name
func (n *Node) NetInterface(name NetInterfaceName) *NetInterface { return n.netIfs[name.Key()] }

// NetInterfaces returns the interfaces sorted by name
func (n *Node) NetInterfaces() []*NetInterface {
	out := make([]*NetInterface, 0, len(n.netIfs))
	for _, ni := range n.netIfs {
		out = append(out, ni)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name.Key() < out[j].name.Key() })
	return out
}

// SatelliteInterface returns the first interface that carries a satellite port
func (n *Node) SatelliteInterface() *NetInterface {
	for _, ni := range n.NetInterfaces() {
		if ni.Port != 0 {
			return ni
		}
	}
	return nil
}

// Resource looks up the node's resource of a definition
func (n *Node) Resource(name ResourceName) *Resource { return n.resources[name.Key()] }

// Resources returns the node's resources sorted by name
func (n *Node) Resources() []*Resource {
	out := make([]*Resource, 0, len(n.resources))
	for _, r := range n.resources {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Definition().Name().Key() < out[j].Definition().Name().Key() })
	return out
}

// ResourceCount returns the number of resources on the node
func (n *Node) ResourceCount() int { return len(n.resources) }

// StorPool looks up a storage pool on the node
func (n *Node) StorPool(name StorPoolName) *StorPool { return n.storPools[name.Key()] }

// StorPools returns the node's storage pools sorted by name
func (n *Node) StorPools() []*StorPool {
	out := make([]*StorPool, 0, len(n.storPools))
	for _, sp := range n.storPools {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name().Key() < out[j].Name().Key() })
	return out
}

// NodeConnection looks up the connection to another node
func (n *Node) NodeConnection(other NodeName) *NodeConnection { return n.nodeConns[other.Key()] }

// NodeConnections returns all connections of the node
func (n *Node) NodeConnections() []*NodeConnection {
	out := make([]*NodeConnection, 0, len(n.nodeConns))
	for _, nc := range n.nodeConns {
		out = append(out, nc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// MarkRemoved records that the node was physically removed and drops its
// node connections.
func (n *Node) MarkRemoved() {
	for _, nc := range n.nodeConns {
		nc.Unlink()
	}
	n.setRemoved(true)
}

// Data returns the flattened form
func (n *Node) Data() NodeData {
	d := NodeData{
		UUID:  n.uuid,
		Name:  n.name.String(),
		Type:  n.nodeType,
		Props: n.props.Map(),
		Flags: n.flags,
	}
	for _, ni := range n.NetInterfaces() {
		d.NetInterfaces = append(d.NetInterfaces, ni.Data())
	}
	return d
}
