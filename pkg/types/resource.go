package types

import (
	"sort"

	"github.com/cuemby/burrow/pkg/security"
	"github.com/google/uuid"
)

// Resource is the replica of a resource definition on one node
type Resource struct {
	lifecycle

	uuid   uuid.UUID
	node   *Node
	rscDfn *ResourceDefinition
	nodeID NodeID
	props  *Props
	prot   *security.ObjectProtection

	volumes map[VolumeNumber]*Volume
}

// NewResource creates an unregistered resource
func NewResource(id uuid.UUID, node *Node, rscDfn *ResourceDefinition, nodeID NodeID, prot *security.ObjectProtection) *Resource {
	return &Resource{
		uuid:    id,
		node:    node,
		rscDfn:  rscDfn,
		nodeID:  nodeID,
		props:   NewProps(),
		prot:    prot,
		volumes: make(map[VolumeNumber]*Volume),
	}
}

func (r *Resource) UUID() uuid.UUID { return r.uuid }
func (r *Resource) Node() *Node { return r.node }
func (r *Resource) Definition() *ResourceDefinition { return r.rscDfn }
func (r *Resource) NodeID() NodeID { return r.nodeID }
func (r *Resource) Props() *Props { return r.props }
func (r *Resource) ObjectProtection() *security.ObjectProtection { return r.prot }

// Volume looks up a volume of the resource
func (r *Resource) Volume(nr VolumeNumber) *Volume { return r.volumes[nr] }

// Volumes returns the resource's volumes ordered by volume number
func (r *Resource) Volumes() []*Volume {
	out := make([]*Volume, 0, len(r.volumes))
	for _, v := range r.volumes {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number() < out[j].Number() })
	return out
}

// Link registers the resource in its node and its definition
func (r *Resource) Link() {
	r.node.resources[r.rscDfn.name.Key()] = r
	r.rscDfn.resources[r.node.name.Key()] = r
	r.setRemoved(false)
}

// Unlink removes the resource and its volumes from all parents
func (r *Resource) Unlink() {
	for _, v := range r.volumes {
		v.Unlink()
	}
	for key, rc := range r.rscDfn.rscConns {
		if rc.rsc1 == r || rc.rsc2 == r {
			delete(r.rscDfn.rscConns, key)
		}
	}
	delete(r.node.resources, r.rscDfn.name.Key())
	delete(r.rscDfn.resources, r.node.name.Key())
	r.setRemoved(true)
}

// Data returns the flattened form
func (r *Resource) Data() RscData {
	return RscData{
		UUID:     r.uuid,
		NodeName: r.node.name.String(),
		RscName:  r.rscDfn.name.String(),
		NodeID:   int(r.nodeID),
		Props:    r.props.Map(),
		Flags:    r.flags,
	}
}

// Volume is the instance of a volume definition within a resource
type Volume struct {
	lifecycle

	uuid        uuid.UUID
	rsc         *Resource
	volDfn      *VolumeDefinition
	storPool    *StorPool
	BlockDevice string
	MetaDisk    string
	props       *Props
}

// NewVolume creates an unregistered volume
func NewVolume(id uuid.UUID, rsc *Resource, volDfn *VolumeDefinition, storPool *StorPool) *Volume {
	return &Volume{
		uuid:     id,
		rsc:      rsc,
		volDfn:   volDfn,
		storPool: storPool,
		props:    NewProps(),
	}
}

func (v *Volume) UUID() uuid.UUID { return v.uuid }
func (v *Volume) Resource() *Resource { return v.rsc }
func (v *Volume) Definition() *VolumeDefinition { return v.volDfn }
func (v *Volume) StorPool() *StorPool { return v.storPool }
func (v *Volume) Number() VolumeNumber { return v.volDfn.nr }
func (v *Volume) Props() *Props { return v.props }

// Link registers the volume in its resource, volume definition and storage pool
func (v *Volume) Link() {
	v.rsc.volumes[v.volDfn.nr] = v
	v.volDfn.volumes[v.rsc.node.name.Key()] = v
	if v.storPool != nil {
		v.storPool.volumes[v.uuid] = v
	}
	v.setRemoved(false)
}

// Unlink removes the volume from all parents
func (v *Volume) Unlink() {
	delete(v.rsc.volumes, v.volDfn.nr)
	delete(v.volDfn.volumes, v.rsc.node.name.Key())
	if v.storPool != nil {
		delete(v.storPool.volumes, v.uuid)
	}
	v.setRemoved(true)
}

// Data returns the flattened form
func (v *Volume) Data() VolData {
	d := VolData{
		UUID:        v.uuid,
		NodeName:    v.rsc.node.name.String(),
		RscName:     v.rsc.rscDfn.name.String(),
		VolNr:       int(v.volDfn.nr),
		BlockDevice: v.BlockDevice,
		MetaDisk:    v.MetaDisk,
		Props:       v.props.Map(),
		Flags:       v.flags,
	}
	if v.storPool != nil {
		d.StorPoolName = v.storPool.Name().String()
	}
	return d
}
