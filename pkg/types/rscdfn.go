package types

import (
	"sort"

	"github.com/cuemby/burrow/pkg/security"
	"github.com/google/uuid"
)

// ResourceDefinition is the cluster-wide description of a replicated
// resource. Each node that holds a replica has a Resource of it.
type ResourceDefinition struct {
	lifecycle

	uuid      uuid.UUID
	name      ResourceName
	port      TCPPort
	secret    string
	transport TransportType
	props     *Props
	prot      *security.ObjectProtection

	volDfns   map[VolumeNumber]*VolumeDefinition
	resources map[string]*Resource
	rscConns  map[string]*ResourceConnection
}

// NewResourceDefinition creates an unregistered resource definition
func NewResourceDefinition(id uuid.UUID, name ResourceName, port TCPPort, secret string, transport TransportType, prot *security.ObjectProtection) *ResourceDefinition {
	if transport == "" {
		transport = TransportIP
	}
	return &ResourceDefinition{
		uuid:      id,
		name:      name,
		port:      port,
		secret:    secret,
		transport: transport,
		props:     NewProps(),
		prot:      prot,
		volDfns:   make(map[VolumeNumber]*VolumeDefinition),
		resources: make(map[string]*Resource),
		rscConns:  make(map[string]*ResourceConnection),
	}
}

func (d *ResourceDefinition) UUID() uuid.UUID { return d.uuid }
func (d *ResourceDefinition) Name() ResourceName { return d.name }
func (d *ResourceDefinition) Port() TCPPort { return d.port }
func (d *ResourceDefinition) Secret() string { return d.secret }
func (d *ResourceDefinition) Transport() TransportType { return d.transport }
func (d *ResourceDefinition) Props() *Props { return d.props }
func (d *ResourceDefinition) ObjectProtection() *security.ObjectProtection { return d.prot }

// VolumeDefinition looks up a volume definition by number
func (d *ResourceDefinition) VolumeDefinition(nr VolumeNumber) *VolumeDefinition {
	return d.volDfns[nr]
}

// VolumeDefinitions returns the volume definitions ordered by volume number
func (d *ResourceDefinition) VolumeDefinitions() []*VolumeDefinition {
	out := make([]*VolumeDefinition, 0, len(d.volDfns))
	for _, vd := range d.volDfns {
		out = append(out, vd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].nr < out[j].nr })
	return out
}

// Resource looks up the resource on a node
func (d *ResourceDefinition) Resource(node NodeName) *Resource { return d.resources[node.Key()] }

// Resources returns the resources ordered by node name
func (d *ResourceDefinition) Resources() []*Resource {
	out := make([]*Resource, 0, len(d.resources))
	for _, r := range d.resources {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Node().Name().Key() < out[j].Node().Name().Key() })
	return out
}

// ResourceCount returns the number of resources of the definition
func (d *ResourceDefinition) ResourceCount() int { return len(d.resources) }

// ResourceConnection looks up the connection between the resources on two nodes
func (d *ResourceDefinition) ResourceConnection(a, b NodeName) *ResourceConnection {
	return d.rscConns[PairKey(a, b)]
}

// ResourceConnections returns all resource connections of the definition
func (d *ResourceDefinition) ResourceConnections() []*ResourceConnection {
	out := make([]*ResourceConnection, 0, len(d.rscConns))
	for _, rc := range d.rscConns {
		out = append(out, rc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// MarkRemoved records that the definition was physically removed
func (d *ResourceDefinition) MarkRemoved() { d.setRemoved(true) }

// Data returns the flattened form
func (d *ResourceDefinition) Data() RscDfnData {
	return RscDfnData{
		UUID:      d.uuid,
		Name:      d.name.String(),
		Port:      int(d.port),
		Secret:    d.secret,
		Transport: d.transport,
		Props:     d.props.Map(),
		Flags:     d.flags,
	}
}

// VolumeDefinition describes one volume of a resource definition
type VolumeDefinition struct {
	lifecycle

	uuid    uuid.UUID
	rscDfn  *ResourceDefinition
	nr      VolumeNumber
	minor   MinorNumber
	sizeKiB uint64
	props   *Props

	volumes map[string]*Volume
}

// NewVolumeDefinition creates an unregistered volume definition
func NewVolumeDefinition(id uuid.UUID, rscDfn *ResourceDefinition, nr VolumeNumber, minor MinorNumber, sizeKiB uint64) *VolumeDefinition {
	return &VolumeDefinition{
		uuid:    id,
		rscDfn:  rscDfn,
		nr:      nr,
		minor:   minor,
		sizeKiB: sizeKiB,
		props:   NewProps(),
		volumes: make(map[string]*Volume),
	}
}

func (vd *VolumeDefinition) UUID() uuid.UUID { return vd.uuid }
func (vd *VolumeDefinition) ResourceDefinition() *ResourceDefinition { return vd.rscDfn }
func (vd *VolumeDefinition) Number() VolumeNumber { return vd.nr }
func (vd *VolumeDefinition) Minor() MinorNumber { return vd.minor }
func (vd *VolumeDefinition) SizeKiB() uint64 { return vd.sizeKiB }
func (vd *VolumeDefinition) Props() *Props { return vd.props }

// Volume looks up the volume of this definition on a node
func (vd *VolumeDefinition) Volume(node NodeName) *Volume { return vd.volumes[node.Key()] }

// VolumeCount returns the number of volumes of the definition
func (vd *VolumeDefinition) VolumeCount() int { return len(vd.volumes) }

// Link registers the volume definition in its resource definition
func (vd *VolumeDefinition) Link() {
	vd.rscDfn.volDfns[vd.nr] = vd
	vd.setRemoved(false)
}

// Unlink removes the volume definition from its resource definition
func (vd *VolumeDefinition) Unlink() {
	delete(vd.rscDfn.volDfns, vd.nr)
	vd.setRemoved(true)
}

// Data returns the flattened form
func (vd *VolumeDefinition) Data() VolDfnData {
	return VolDfnData{
		UUID:    vd.uuid,
		RscName: vd.rscDfn.name.String(),
		VolNr:   int(vd.nr),
		Minor:   int(vd.minor),
		SizeKiB: vd.sizeKiB,
		Props:   vd.props.Map(),
		Flags:   vd.flags,
	}
}
