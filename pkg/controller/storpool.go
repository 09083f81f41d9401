package controller

import (
	"fmt"

	"github.com/cuemby/burrow/pkg/apicallrc"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/peer"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/transaction"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/google/uuid"
)

// DefaultStorPoolDriver is the driver of storage pools created without one
const DefaultStorPoolDriver = "LVM"

// StorPoolDfnSpec describes a storage pool definition to create
type StorPoolDfnSpec struct {
	Name  string            `yaml:"name"`
	Props map[string]string `yaml:"props"`
}

// StorPoolSpec describes a storage pool to create on a node
type StorPoolSpec struct {
	NodeName     string            `yaml:"node"`
	StorPoolName string            `yaml:"name"`
	Driver       string            `yaml:"driver"`
	Props        map[string]string `yaml:"props"`
}

// CreateStorPoolDefinition creates a storage pool definition
func (c *Controller) CreateStorPoolDefinition(accCtx *security.AccessContext, client *peer.Peer, spec StorPoolDfnSpec) *apicallrc.ApiCallRc {
	call := apiCall{
		name:    "CreateStorPoolDefinition",
		op:      apicallrc.MaskCrt,
		obj:     apicallrc.MaskStorPoolDfn,
		accCtx:  accCtx,
		client:  client,
		locks:   LockSpec{StorPoolDfns: ModeWrite},
		objRefs: map[string]string{"StorPoolDfn": spec.Name},
	}
	return c.run(call, func(tx *transaction.Tx, rc *apicallrc.ApiCallRc) error {
		if err := c.state.storPoolDfnsProt.RequireAccess(accCtx, security.AccessChange); err != nil {
			return err
		}
		name, err := types.NewStorPoolName(spec.Name)
		if err != nil {
			return err
		}
		if c.state.storPoolDfn(name) != nil {
			return fail(KindAlreadyExists, apicallrc.StorPoolDfnCrtFailExists, "Storage pool definition '%s' already exists", name)
		}

		prot, err := c.newProtection(tx, accCtx, storPoolDfnPath(name))
		if err != nil {
			return err
		}
		spd := types.NewStorPoolDefinition(uuid.New(), name, prot)
		if len(spec.Props) > 0 {
			if err := spd.Props().Replace(spec.Props); err != nil {
				return err
			}
		}
		key := name.Key()
		c.state.storPoolDfns[key] = spd
		tx.OnRollback(func() {
			delete(c.state.storPoolDfns, key)
			spd.MarkRemoved()
		})
		if err := putStorPoolDfn(tx, spd); err != nil {
			return err
		}
		rc.AddEntry(apicallrc.StorPoolDfnCreated, fmt.Sprintf("Storage pool definition '%s' created", name)).
			Details = fmt.Sprintf("Storage pool definition '%s' UUID is %s", name, spd.UUID())
		c.publish(tx, events.EventStorPoolDfnCreated, fmt.Sprintf("Storage pool definition %s created", name),
			map[string]string{"stor_pool_dfn": name.String()})
		return nil
	})
}

// DeleteStorPoolDefinition deletes a storage pool definition together with
// its storage pools. It fails while any volume is placed in one of them.
func (c *Controller) DeleteStorPoolDefinition(accCtx *security.AccessContext, client *peer.Peer, spName string) *apicallrc.ApiCallRc {
	call := apiCall{
		name:    "DeleteStorPoolDefinition",
		op:      apicallrc.MaskDel,
		obj:     apicallrc.MaskStorPoolDfn,
		accCtx:  accCtx,
		client:  client,
		locks:   LockSpec{Nodes: ModeWrite, RscDfns: ModeRead, StorPoolDfns: ModeWrite},
		objRefs: map[string]string{"StorPoolDfn": spName},
	}
	return c.run(call, func(tx *transaction.Tx, rc *apicallrc.ApiCallRc) error {
		if err := c.state.storPoolDfnsProt.RequireAccess(accCtx, security.AccessChange); err != nil {
			return err
		}
		name, err := types.NewStorPoolName(spName)
		if err != nil {
			return err
		}
		spd := c.state.storPoolDfn(name)
		if spd == nil {
			rc.AddEntry(apicallrc.StorPoolDfnDelWarnNotFound, fmt.Sprintf("Storage pool definition '%s' not found", name))
			return nil
		}
		if err := spd.ObjectProtection().RequireAccess(accCtx, security.AccessControl); err != nil {
			return err
		}
		for _, sp := range spd.StorPools() {
			if sp.InUse() || sp.VolumeCount() > 0 {
				return fail(KindInUse, apicallrc.StorPoolDfnDelFailInUse, "Storage pool definition '%s' is in use", name).
					withCause("Storage pool '%s' on node '%s' still holds %d volume(s)", name, sp.Node().Name(), sp.VolumeCount()).
					withCorrection("Delete the volumes placed in the storage pools first")
			}
		}

		for _, sp := range spd.StorPools() {
			if err := c.removeStorPool(tx, sp); err != nil {
				return err
			}
			c.pushRemovedStorPool(tx, rc, call, sp.Node(), name, sp.UUID())
		}
		key := name.Key()
		tx.OnRollback(func() {
			c.state.storPoolDfns[key] = spd
			spd.Reinstate()
		})
		delete(c.state.storPoolDfns, key)
		spd.MarkRemoved()
		if err := del(tx, storage.BucketStorPoolDfns, spd.UUID()); err != nil {
			return err
		}
		if err := delProt(tx, storPoolDfnPath(name)); err != nil {
			return err
		}
		rc.AddEntry(apicallrc.StorPoolDfnDeleted, fmt.Sprintf("Storage pool definition '%s' deleted", name))
		c.publish(tx, events.EventStorPoolDfnDeleted, fmt.Sprintf("Storage pool definition %s deleted", name),
			map[string]string{"stor_pool_dfn": name.String()})
		return nil
	})
}

// CreateStorPool creates a storage pool of an existing definition on a node
func (c *Controller) CreateStorPool(accCtx *security.AccessContext, client *peer.Peer, spec StorPoolSpec) *apicallrc.ApiCallRc {
	call := apiCall{
		name:    "CreateStorPool",
		op:      apicallrc.MaskCrt,
		obj:     apicallrc.MaskStorPool,
		accCtx:  accCtx,
		client:  client,
		locks:   LockSpec{Nodes: ModeWrite, StorPoolDfns: ModeWrite},
		objRefs: map[string]string{"Node": spec.NodeName, "StorPool": spec.StorPoolName},
	}
	return c.run(call, func(tx *transaction.Tx, rc *apicallrc.ApiCallRc) error {
		if err := c.state.nodesProt.RequireAccess(accCtx, security.AccessChange); err != nil {
			return err
		}
		nodeName, err := types.NewNodeName(spec.NodeName)
		if err != nil {
			return err
		}
		name, err := types.NewStorPoolName(spec.StorPoolName)
		if err != nil {
			return err
		}
		n := c.state.node(nodeName)
		if n == nil || n.IsDeleted() {
			return fail(KindNotFound, apicallrc.StorPoolCrtFailNotFoundNode, "Node '%s' not found", nodeName)
		}
		spd := c.state.storPoolDfn(name)
		if spd == nil {
			return fail(KindNotFound, apicallrc.StorPoolCrtFailNotFoundDfn, "Storage pool definition '%s' not found", name).
				withCorrection("Create the storage pool definition first")
		}
		if err := n.ObjectProtection().RequireAccess(accCtx, security.AccessChange); err != nil {
			return err
		}
		if err := spd.ObjectProtection().RequireAccess(accCtx, security.AccessUse); err != nil {
			return err
		}
		if n.StorPool(name) != nil {
			return fail(KindAlreadyExists, apicallrc.StorPoolCrtFailExists,
				"Storage pool '%s' already exists on node '%s'", name, nodeName)
		}

		driver := spec.Driver
		if driver == "" {
			driver = DefaultStorPoolDriver
		}
		sp := types.NewStorPool(uuid.New(), n, spd, driver)
		if len(spec.Props) > 0 {
			if err := sp.Props().Replace(spec.Props); err != nil {
				return err
			}
		}
		sp.Link()
		tx.OnRollback(sp.Unlink)
		if err := putStorPool(tx, sp); err != nil {
			return err
		}
		rc.AddEntry(apicallrc.StorPoolCreated, fmt.Sprintf("Storage pool '%s' created on node '%s'", name, nodeName)).
			Details = fmt.Sprintf("Storage pool UUID is %s, driver %s", sp.UUID(), driver)
		c.pushStorPool(tx, rc, call, sp)
		c.publish(tx, events.EventStorPoolCreated, fmt.Sprintf("Storage pool %s created on %s", name, nodeName),
			map[string]string{"node": nodeName.String(), "stor_pool": name.String()})
		return nil
	})
}

// DeleteStorPool deletes the storage pool of a node. It fails while any
// volume is placed in the pool.
func (c *Controller) DeleteStorPool(accCtx *security.AccessContext, client *peer.Peer, nodeName, spName string) *apicallrc.ApiCallRc {
	call := apiCall{
		name:    "DeleteStorPool",
		op:      apicallrc.MaskDel,
		obj:     apicallrc.MaskStorPool,
		accCtx:  accCtx,
		client:  client,
		locks:   LockSpec{Nodes: ModeWrite, RscDfns: ModeRead, StorPoolDfns: ModeWrite},
		objRefs: map[string]string{"Node": nodeName, "StorPool": spName},
	}
	return c.run(call, func(tx *transaction.Tx, rc *apicallrc.ApiCallRc) error {
		if err := c.state.nodesProt.RequireAccess(accCtx, security.AccessChange); err != nil {
			return err
		}
		nName, err := types.NewNodeName(nodeName)
		if err != nil {
			return err
		}
		name, err := types.NewStorPoolName(spName)
		if err != nil {
			return err
		}
		n := c.state.node(nName)
		var sp *types.StorPool
		if n != nil {
			sp = n.StorPool(name)
		}
		if sp == nil {
			rc.AddEntry(apicallrc.StorPoolDelWarnNotFound, fmt.Sprintf("Storage pool '%s' not found on node '%s'", name, nName))
			return nil
		}
		if err := n.ObjectProtection().RequireAccess(accCtx, security.AccessControl); err != nil {
			return err
		}
		if sp.InUse() || sp.VolumeCount() > 0 {
			return fail(KindInUse, apicallrc.StorPoolDelFailInUse, "Storage pool '%s' on node '%s' is in use", name, nName).
				withCause("The storage pool still holds %d volume(s)", sp.VolumeCount())
		}

		if err := c.removeStorPool(tx, sp); err != nil {
			return err
		}
		c.pushRemovedStorPool(tx, rc, call, n, name, sp.UUID())
		rc.AddEntry(apicallrc.StorPoolDeleted, fmt.Sprintf("Storage pool '%s' deleted from node '%s'", name, nName))
		c.publish(tx, events.EventStorPoolDeleted, fmt.Sprintf("Storage pool %s deleted from %s", name, nName),
			map[string]string{"node": nName.String(), "stor_pool": name.String()})
		return nil
	})
}

func (c *Controller) removeStorPool(tx *transaction.Tx, sp *types.StorPool) error {
	tx.OnRollback(sp.Link)
	sp.Unlink()
	return del(tx, storage.BucketStorPools, sp.UUID())
}
