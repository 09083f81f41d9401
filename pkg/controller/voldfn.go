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
)

// CreateVolumeDefinitions adds volume definitions to an existing resource
// definition. Every existing resource of the definition gets a volume for
// each new volume definition.
func (c *Controller) CreateVolumeDefinitions(accCtx *security.AccessContext, client *peer.Peer, rscName string, specs []VolDfnSpec) *apicallrc.ApiCallRc {
	call := apiCall{
		name:    "CreateVolumeDefinitions",
		op:      apicallrc.MaskCrt,
		obj:     apicallrc.MaskVlmDfn,
		accCtx:  accCtx,
		client:  client,
		locks:   LockSpec{Nodes: ModeRead, RscDfns: ModeWrite, StorPoolDfns: ModeRead},
		objRefs: map[string]string{"RscDfn": rscName},
	}
	return c.run(call, func(tx *transaction.Tx, rc *apicallrc.ApiCallRc) error {
		if err := c.state.rscDfnsProt.RequireAccess(accCtx, security.AccessChange); err != nil {
			return err
		}
		name, err := types.NewResourceName(rscName)
		if err != nil {
			return err
		}
		rd := c.state.rscDfn(name)
		if rd == nil || rd.IsDeleted() {
			return fail(KindNotFound, call.code(apicallrc.MaskError, apicallrc.FailNotFoundRscDfn),
				"Resource definition '%s' not found", name)
		}
		if err := rd.ObjectProtection().RequireAccess(accCtx, security.AccessChange); err != nil {
			return err
		}

		vds, err := c.createVolDfns(tx, rd, specs)
		if err != nil {
			return err
		}
		for _, vd := range vds {
			for _, r := range rd.Resources() {
				if r.IsDeleted() {
					continue
				}
				if _, err := c.createVolume(tx, r, vd, VolSpec{VolNr: int(vd.Number())}, call); err != nil {
					return err
				}
			}
			addVolDfnCreated(rc, vd)
			c.publish(tx, events.EventVlmDfnCreated, fmt.Sprintf("Volume definition %s/%d created", name, vd.Number()),
				map[string]string{"rsc_dfn": name.String(), "vol_nr": fmt.Sprint(int(vd.Number()))})
		}
		c.pushRscDfn(tx, rc, call, rd)
		return nil
	})
}

// DeleteVolumeDefinition deletes a volume definition. Without volumes it is
// removed at once; otherwise it and its volumes are marked for deletion.
func (c *Controller) DeleteVolumeDefinition(accCtx *security.AccessContext, client *peer.Peer, rscName string, volNr int) *apicallrc.ApiCallRc {
	call := apiCall{
		name:    "DeleteVolumeDefinition",
		op:      apicallrc.MaskDel,
		obj:     apicallrc.MaskVlmDfn,
		accCtx:  accCtx,
		client:  client,
		locks:   LockSpec{Nodes: ModeRead, RscDfns: ModeWrite, StorPoolDfns: ModeRead},
		objRefs: map[string]string{"RscDfn": rscName, "VlmNr": fmt.Sprint(volNr)},
	}
	return c.run(call, func(tx *transaction.Tx, rc *apicallrc.ApiCallRc) error {
		if err := c.state.rscDfnsProt.RequireAccess(accCtx, security.AccessChange); err != nil {
			return err
		}
		name, err := types.NewResourceName(rscName)
		if err != nil {
			return err
		}
		nr, err := types.NewVolumeNumber(volNr)
		if err != nil {
			return err
		}
		rd := c.state.rscDfn(name)
		var vd *types.VolumeDefinition
		if rd != nil {
			vd = rd.VolumeDefinition(nr)
		}
		if vd == nil {
			rc.AddEntry(apicallrc.VlmDfnDelWarnNotFound, fmt.Sprintf("Volume definition %d of '%s' not found", nr, name))
			return nil
		}
		if err := rd.ObjectProtection().RequireAccess(accCtx, security.AccessControl); err != nil {
			return err
		}
		if vd.IsDeleted() {
			rc.AddEntry(apicallrc.VlmDfnMarkedForDeletion, fmt.Sprintf("Volume definition %d of '%s' is already marked for deletion", nr, name))
			return nil
		}

		if vd.VolumeCount() == 0 {
			if err := c.removeVolDfn(tx, vd); err != nil {
				return err
			}
			rc.AddEntry(apicallrc.VlmDfnDeleted, fmt.Sprintf("Volume definition %d of '%s' deleted", nr, name))
			c.publish(tx, events.EventVlmDfnDeleted, fmt.Sprintf("Volume definition %s/%d deleted", name, nr),
				map[string]string{"rsc_dfn": name.String(), "vol_nr": fmt.Sprint(volNr)})
			c.pushRscDfn(tx, rc, call, rd)
			return nil
		}

		old := vd.MarkDeleted()
		tx.OnRollback(func() { vd.SetFlags(old) })
		if err := putVolDfn(tx, vd); err != nil {
			return err
		}
		for _, r := range rd.Resources() {
			v := r.Volume(nr)
			if v == nil || v.IsDeleted() {
				continue
			}
			if !r.Node().Type().RunsSatellite() {
				if err := c.removeVolume(tx, v); err != nil {
					return err
				}
				continue
			}
			oldVol := v.MarkDeleted()
			tx.OnRollback(func() { v.SetFlags(oldVol) })
			if err := putVol(tx, v); err != nil {
				return err
			}
		}
		if vd.VolumeCount() == 0 {
			if err := c.removeVolDfn(tx, vd); err != nil {
				return err
			}
		}
		c.pushRscDfn(tx, rc, call, rd)
		rc.AddEntry(apicallrc.VlmDfnMarkedForDeletion, fmt.Sprintf("Volume definition %d of '%s' marked for deletion", nr, name))
		return nil
	})
}

func (c *Controller) removeVolDfn(tx *transaction.Tx, vd *types.VolumeDefinition) error {
	tx.OnRollback(vd.Link)
	vd.Unlink()
	return del(tx, storage.BucketVolDfns, vd.UUID())
}

// removeVolume physically removes one volume
func (c *Controller) removeVolume(tx *transaction.Tx, v *types.Volume) error {
	tx.OnRollback(v.Link)
	v.Unlink()
	return del(tx, storage.BucketVolumes, v.UUID())
}
