package controller

import (
	"fmt"

	"github.com/cuemby/burrow/pkg/apicallrc"
	"github.com/cuemby/burrow/pkg/transaction"
)

// Purge removes every object that is marked for deletion and no longer
// waits for a satellite: volume definitions without volumes, resources on
// nodes without a satellite, and resource definitions and nodes without
// resources. Deletions normally complete through HandleResourceDeleted;
// the sweep catches what is left after a restart or a lost confirmation.
func (c *Controller) Purge() *apicallrc.ApiCallRc {
	call := apiCall{
		name:   "Purge",
		op:     apicallrc.MaskDel,
		obj:    apicallrc.MaskRscDfn,
		accCtx: c.sysCtx,
		locks:  LockSpec{Nodes: ModeWrite, RscDfns: ModeWrite, StorPoolDfns: ModeWrite},
	}
	return c.run(call, func(tx *transaction.Tx, rc *apicallrc.ApiCallRc) error {
		for _, rd := range c.state.sortedRscDfns() {
			for _, r := range rd.Resources() {
				if !r.IsDeleted() || r.Node().Type().RunsSatellite() {
					continue
				}
				if err := c.removeResource(tx, r); err != nil {
					return err
				}
				purged(tx, "resource")
				rc.AddEntry(apicallrc.RscDeleted, fmt.Sprintf("Resource '%s' deleted from node '%s'", rd.Name(), r.Node().Name()))
			}
			for _, vd := range rd.VolumeDefinitions() {
				if !vd.IsDeleted() || vd.VolumeCount() > 0 {
					continue
				}
				if err := c.removeVolDfn(tx, vd); err != nil {
					return err
				}
				purged(tx, "vol_dfn")
				rc.AddEntry(apicallrc.VlmDfnDeleted, fmt.Sprintf("Volume definition %d of '%s' deleted", vd.Number(), rd.Name()))
			}
			if rd.IsDeleted() && rd.ResourceCount() == 0 {
				if err := c.removeRscDfn(tx, rd); err != nil {
					return err
				}
				purged(tx, "rsc_dfn")
				rc.AddEntry(apicallrc.RscDfnDeleted, fmt.Sprintf("Resource definition '%s' deleted", rd.Name()))
			}
		}
		for _, n := range c.state.sortedNodes() {
			if !n.IsDeleted() || n.ResourceCount() > 0 {
				continue
			}
			if err := c.removeNode(tx, n); err != nil {
				return err
			}
			purged(tx, "node")
			rc.AddEntry(apicallrc.NodeDeleted, fmt.Sprintf("Node '%s' deleted", n.Name()))
		}
		if len(rc.Entries) > 0 {
			c.logger.Info().Int("objects", len(rc.Entries)).Msg("Purged objects marked for deletion")
		}
		return nil
	})
}
