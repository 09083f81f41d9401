package types

import (
	"sort"

	"github.com/cuemby/burrow/pkg/security"
	"github.com/google/uuid"
)

// StorPoolDefinition is the cluster-wide name of a storage pool. Each node
// that provides the pool has a StorPool of it.
type StorPoolDefinition struct {
	lifecycle

	uuid  uuid.UUID
	name  StorPoolName
	props *Props
	prot  *security.ObjectProtection

	storPools map[string]*StorPool
}

// NewStorPoolDefinition creates an unregistered storage pool definition
func NewStorPoolDefinition(id uuid.UUID, name StorPoolName, prot *security.ObjectProtection) *StorPoolDefinition {
	return &StorPoolDefinition{
		uuid:      id,
		name:      name,
		props:     NewProps(),
		prot:      prot,
		storPools: make(map[string]*StorPool),
	}
}

func (d *StorPoolDefinition) UUID() uuid.UUID { return d.uuid }
func (d *StorPoolDefinition) Name() StorPoolName { return d.name }
func (d *StorPoolDefinition) Props() *Props { return d.props }
func (d *StorPoolDefinition) ObjectProtection() *security.ObjectProtection { return d.prot }

// StorPool looks up the pool on a node
func (d *StorPoolDefinition) StorPool(node NodeName) *StorPool { return d.storPools[node.Key()] }

// StorPools returns the pools ordered by node name
func (d *StorPoolDefinition) StorPools() []*StorPool {
	out := make([]*StorPool, 0, len(d.storPools))
	for _, sp := range d.storPools {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].node.name.Key() < out[j].node.name.Key() })
	return out
}

// InUse reports whether any non-deleted volume is placed in a pool of this definition
func (d *StorPoolDefinition) InUse() bool {
	for _, sp := range d.storPools {
		if sp.InUse() {
			return true
		}
	}
	return false
}

// MarkRemoved records that the definition was physically removed
func (d *StorPoolDefinition) MarkRemoved() { d.setRemoved(true) }

// Data returns the flattened form
func (d *StorPoolDefinition) Data() StorPoolDfnData {
	return StorPoolDfnData{
		UUID:  d.uuid,
		Name:  d.name.String(),
		Props: d.props.Map(),
		Flags: d.flags,
	}
}

// StorPool is a storage pool provided by one node
type StorPool struct {
	lifecycle

	uuid   uuid.UUID
	node   *Node
	dfn    *StorPoolDefinition
	driver string
	props  *Props

	volumes map[uuid.UUID]*Volume
}

// NewStorPool creates an unregistered storage pool
func NewStorPool(id uuid.UUID, node *Node, dfn *StorPoolDefinition, driver string) *StorPool {
	return &StorPool{
		uuid:    id,
		node:    node,
		dfn:     dfn,
		driver:  driver,
		props:   NewProps(),
		volumes: make(map[uuid.UUID]*Volume),
	}
}

func (sp *StorPool) UUID() uuid.UUID { return sp.uuid }
func (sp *StorPool) Node() *Node { return sp.node }
func (sp *StorPool) Definition() *StorPoolDefinition { return sp.dfn }
func (sp *StorPool) Name() StorPoolName { return sp.dfn.name }
func (sp *StorPool) Driver() string { return sp.driver }
func (sp *StorPool) Props() *Props { return sp.props }

// InUse reports whether a non-deleted volume is placed in the pool
func (sp *StorPool) InUse() bool {
	for _, v := range sp.volumes {
		if !v.IsDeleted() && !v.rsc.IsDeleted() {
			return true
		}
	}
	return false
}

// VolumeCount returns the number of volumes placed in the pool
func (sp *StorPool) VolumeCount() int { return len(sp.volumes) }

// Link registers the pool in its node and its definition
func (sp *StorPool) Link() {
	sp.node.storPools[sp.dfn.name.Key()] = sp
	sp.dfn.storPools[sp.node.name.Key()] = sp
	sp.setRemoved(false)
}

// Unlink removes the pool from its node and its definition
func (sp *StorPool) Unlink() {
	delete(sp.node.storPools, sp.dfn.name.Key())
	delete(sp.dfn.storPools, sp.node.name.Key())
	sp.setRemoved(true)
}

// Data returns the flattened form
func (sp *StorPool) Data() StorPoolData {
	return StorPoolData{
		UUID:     sp.uuid,
		NodeName: sp.node.name.String(),
		Name:     sp.dfn.name.String(),
		DfnUUID:  sp.dfn.uuid,
		Driver:   sp.driver,
		Props:    sp.props.Map(),
		Flags:    sp.flags,
	}
}
