package controller

import (
	"fmt"

	"github.com/cuemby/burrow/pkg/apicallrc"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/peer"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/transaction"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/google/uuid"
)

// VolSpec overrides the defaults of one volume of a new resource
type VolSpec struct {
	VolNr       int               `yaml:"vol_nr"`
	StorPool    string            `yaml:"stor_pool"`
	BlockDevice string            `yaml:"block_device"`
	MetaDisk    string            `yaml:"meta_disk"`
	Props       map[string]string `yaml:"props"`
}

// RscSpec describes a resource to create. A nil NodeID is allocated
// automatically. Every volume definition of the resource definition gets a
// volume; Vols only overrides the defaults of individual volumes.
type RscSpec struct {
	NodeName string            `yaml:"node"`
	RscName  string            `yaml:"name"`
	NodeID   *int              `yaml:"node_id"`
	Diskless bool              `yaml:"diskless"`
	Props    map[string]string `yaml:"props"`
	Vols     []VolSpec         `yaml:"volumes"`
}

// CreateResource deploys a resource definition on a node
func (c *Controller) CreateResource(accCtx *security.AccessContext, client *peer.Peer, spec RscSpec) *apicallrc.ApiCallRc {
	call := apiCall{
		name:    "CreateResource",
		op:      apicallrc.MaskCrt,
		obj:     apicallrc.MaskRsc,
		accCtx:  accCtx,
		client:  client,
		locks:   LockSpec{Nodes: ModeWrite, RscDfns: ModeWrite, StorPoolDfns: ModeWrite},
		objRefs: map[string]string{"Node": spec.NodeName, "RscDfn": spec.RscName},
	}
	return c.run(call, func(tx *transaction.Tx, rc *apicallrc.ApiCallRc) error {
		if err := c.state.rscDfnsProt.RequireAccess(accCtx, security.AccessChange); err != nil {
			return err
		}
		nodeName, err := types.NewNodeName(spec.NodeName)
		if err != nil {
			return err
		}
		rscName, err := types.NewResourceName(spec.RscName)
		if err != nil {
			return err
		}
		n := c.state.node(nodeName)
		if n == nil || n.IsDeleted() {
			return fail(KindNotFound, apicallrc.RscCrtFailNotFoundNode, "Node '%s' not found", nodeName)
		}
		rd := c.state.rscDfn(rscName)
		if rd == nil || rd.IsDeleted() {
			return fail(KindNotFound, apicallrc.RscCrtFailNotFoundDfn, "Resource definition '%s' not found", rscName)
		}
		if err := n.ObjectProtection().RequireAccess(accCtx, security.AccessUse); err != nil {
			return err
		}
		if err := rd.ObjectProtection().RequireAccess(accCtx, security.AccessChange); err != nil {
			return err
		}
		if rd.Resource(nodeName) != nil {
			return fail(KindAlreadyExists, apicallrc.RscCrtFailExists,
				"Resource '%s' already exists on node '%s'", rscName, nodeName)
		}
		if limit := config.PeerCount(c.props) + 1; rd.ResourceCount() >= limit {
			return fail(KindExhausted, call.code(apicallrc.MaskError, apicallrc.FailPoolExhausted),
				"Resource definition '%s' already has %d resources", rscName, rd.ResourceCount()).
				withCause("At most %d resources per definition are allowed", limit).
				withCorrection("Raise the %s controller property", config.KeyPeerCount)
		}

		var nodeID types.NodeID
		if spec.NodeID != nil {
			if nodeID, err = types.NewNodeID(*spec.NodeID); err != nil {
				return err
			}
			for _, other := range rd.Resources() {
				if other.NodeID() == nodeID {
					return fail(KindAlreadyExists, apicallrc.RscCrtFailExistsNodeID, "Node ID %d is already in use", nodeID).
						withCause("The node ID is used by the resource on node '%s'", other.Node().Name())
				}
			}
		} else {
			var ok bool
			if nodeID, ok = allocateNodeID(rd); !ok {
				return fail(KindExhausted, call.code(apicallrc.MaskError, apicallrc.FailPoolExhausted),
					"No free node ID in resource definition '%s'", rscName)
			}
		}

		volSpecs := make(map[types.VolumeNumber]VolSpec, len(spec.Vols))
		for _, vs := range spec.Vols {
			nr, err := types.NewVolumeNumber(vs.VolNr)
			if err != nil {
				return err
			}
			if vd := rd.VolumeDefinition(nr); vd == nil || vd.IsDeleted() {
				return fail(KindNotFound, call.code(apicallrc.MaskError, apicallrc.FailNotFoundVlmDfn),
					"Volume definition %d of '%s' not found", nr, rscName)
			}
			volSpecs[nr] = vs
		}

		prot, err := c.newProtection(tx, accCtx, rscPath(nodeName, rscName))
		if err != nil {
			return err
		}
		r := types.NewResource(uuid.New(), n, rd, nodeID, prot)
		if len(spec.Props) > 0 {
			if err := r.Props().Replace(spec.Props); err != nil {
				return err
			}
		}
		if spec.Diskless {
			r.SetFlags(types.FlagDiskless)
		}
		r.Link()
		tx.OnRollback(r.Unlink)
		if err := putRsc(tx, r); err != nil {
			return err
		}
		rc.AddEntry(apicallrc.RscCreated, fmt.Sprintf("Resource '%s' created on node '%s'", rscName, nodeName)).
			Details = fmt.Sprintf("Resource UUID is %s, node ID %d", r.UUID(), nodeID)

		for _, vd := range rd.VolumeDefinitions() {
			if vd.IsDeleted() {
				continue
			}
			vs, ok := volSpecs[vd.Number()]
			if !ok {
				vs = VolSpec{VolNr: int(vd.Number())}
			}
			v, err := c.createVolume(tx, r, vd, vs, call)
			if err != nil {
				return err
			}
			rc.Add(&apicallrc.RcEntry{
				ReturnCode: apicallrc.VlmCreated,
				Message:    fmt.Sprintf("Volume %d of '%s' created on node '%s'", vd.Number(), rscName, nodeName),
				Details:    fmt.Sprintf("Volume UUID is %s", v.UUID()),
				ObjRefs: map[string]string{
					"Node":   nodeName.String(),
					"RscDfn": rscName.String(),
					"VlmNr":  fmt.Sprint(int(vd.Number())),
				},
			})
		}

		c.pushRscDfn(tx, rc, call, rd)
		c.publish(tx, events.EventRscCreated, fmt.Sprintf("Resource %s created on %s", rscName, nodeName),
			map[string]string{"node": nodeName.String(), "rsc_dfn": rscName.String()})
		return nil
	})
}

// storPoolFor resolves the storage pool of a new volume: the explicit name,
// then the StorPoolName property of the resource and of its definition,
// then the default pool. Diskless resources have no pool.
func storPoolFor(r *types.Resource, explicit string) (types.StorPoolName, bool, error) {
	if r.Flags().IsSet(types.FlagDiskless) {
		return types.StorPoolName{}, false, nil
	}
	name := explicit
	if name == "" {
		name = r.Props().GetOr(config.KeyStorPoolName,
			r.Definition().Props().GetOr(config.KeyStorPoolName, config.DefaultStorPoolName))
	}
	spName, err := types.NewStorPoolName(name)
	if err != nil {
		return types.StorPoolName{}, false, err
	}
	return spName, true, nil
}

// createVolume creates the volume of vd in r
func (c *Controller) createVolume(tx *transaction.Tx, r *types.Resource, vd *types.VolumeDefinition, spec VolSpec, call apiCall) (*types.Volume, error) {
	spName, needsPool, err := storPoolFor(r, spec.StorPool)
	if err != nil {
		return nil, err
	}
	var sp *types.StorPool
	if needsPool {
		if sp = r.Node().StorPool(spName); sp == nil {
			return nil, fail(KindNotFound, call.code(apicallrc.MaskError, apicallrc.FailNotFoundStorPool),
				"Storage pool '%s' not found on node '%s'", spName, r.Node().Name()).
				withCorrection("Create the storage pool on the node or select another one with the %s property", config.KeyStorPoolName)
		}
	}

	v := types.NewVolume(uuid.New(), r, vd, sp)
	v.BlockDevice = spec.BlockDevice
	v.MetaDisk = spec.MetaDisk
	if len(spec.Props) > 0 {
		if err := v.Props().Replace(spec.Props); err != nil {
			return nil, err
		}
	}
	if r.IsDeleted() {
		v.MarkDeleted()
	}
	v.Link()
	tx.OnRollback(v.Unlink)
	if err := putVol(tx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// DeleteResource deletes a resource. On a node that runs a satellite the
// resource is marked for deletion until the satellite confirms; otherwise
// it is removed at once, even if a parent deletion already marked it, and
// parents marked for deletion that lose their last resource go with it.
func (c *Controller) DeleteResource(accCtx *security.AccessContext, client *peer.Peer, nodeName, rscName string) *apicallrc.ApiCallRc {
	call := apiCall{
		name:    "DeleteResource",
		op:      apicallrc.MaskDel,
		obj:     apicallrc.MaskRsc,
		accCtx:  accCtx,
		client:  client,
		locks:   LockSpec{Nodes: ModeWrite, RscDfns: ModeWrite, StorPoolDfns: ModeWrite},
		objRefs: map[string]string{"Node": nodeName, "RscDfn": rscName},
	}
	return c.run(call, func(tx *transaction.Tx, rc *apicallrc.ApiCallRc) error {
		if err := c.state.rscDfnsProt.RequireAccess(accCtx, security.AccessChange); err != nil {
			return err
		}
		nName, err := types.NewNodeName(nodeName)
		if err != nil {
			return err
		}
		rName, err := types.NewResourceName(rscName)
		if err != nil {
			return err
		}
		var r *types.Resource
		if rd := c.state.rscDfn(rName); rd != nil {
			r = rd.Resource(nName)
		}
		if r == nil {
			rc.AddEntry(apicallrc.RscDelWarnNotFound, fmt.Sprintf("Resource '%s' not found on node '%s'", rName, nName))
			return nil
		}
		if err := r.ObjectProtection().RequireAccess(accCtx, security.AccessControl); err != nil {
			return err
		}

		rd := r.Definition()
		n := r.Node()
		if !n.Type().RunsSatellite() {
			if err := c.removeResource(tx, r); err != nil {
				return err
			}
			rc.AddEntry(apicallrc.RscDeleted, fmt.Sprintf("Resource '%s' deleted from node '%s'", rName, nName))
			c.publish(tx, events.EventRscDeleted, fmt.Sprintf("Resource %s deleted from %s", rName, nName),
				map[string]string{"node": nName.String(), "rsc_dfn": rName.String()})
			return c.purgeParents(tx, rc, call, rd, n)
		}
		if r.IsDeleted() {
			rc.AddEntry(apicallrc.RscMarkedForDeletion,
				fmt.Sprintf("Resource '%s' on node '%s' is already marked for deletion", rName, nName))
			return nil
		}

		if err := c.markResourceDeleted(tx, r); err != nil {
			return err
		}
		c.pushRscDfn(tx, rc, call, rd)
		rc.AddEntry(apicallrc.RscMarkedForDeletion, fmt.Sprintf("Resource '%s' on node '%s' marked for deletion", rName, nName))
		return nil
	})
}

// markResourceDeleted sets the DELETE flag on r and all its volumes
func (c *Controller) markResourceDeleted(tx *transaction.Tx, r *types.Resource) error {
	old := r.MarkDeleted()
	tx.OnRollback(func() { r.SetFlags(old) })
	if err := putRsc(tx, r); err != nil {
		return err
	}
	for _, v := range r.Volumes() {
		oldVol := v.MarkDeleted()
		tx.OnRollback(func() { v.SetFlags(oldVol) })
		if err := putVol(tx, v); err != nil {
			return err
		}
	}
	return nil
}

// removeResource physically removes r with its volumes and the resource
// connections it takes part in
func (c *Controller) removeResource(tx *transaction.Tx, r *types.Resource) error {
	vols := r.Volumes()
	var conns []*types.ResourceConnection
	for _, rc := range r.Definition().ResourceConnections() {
		if a, b := rc.Resources(); a == r || b == r {
			conns = append(conns, rc)
		}
	}
	tx.OnRollback(func() {
		r.Link()
		for _, v := range vols {
			v.Link()
		}
		for _, rc := range conns {
			rc.Link()
		}
	})

	r.Unlink()
	for _, v := range vols {
		if err := del(tx, storage.BucketVolumes, v.UUID()); err != nil {
			return err
		}
	}
	for _, rc := range conns {
		for _, vc := range rc.VolumeConnections() {
			if err := del(tx, storage.BucketVolConns, vc.UUID()); err != nil {
				return err
			}
		}
		if err := del(tx, storage.BucketRscConns, rc.UUID()); err != nil {
			return err
		}
	}
	if err := del(tx, storage.BucketResources, r.UUID()); err != nil {
		return err
	}
	return delProt(tx, rscPath(r.Node().Name(), r.Definition().Name()))
}
