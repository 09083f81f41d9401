package controller

import (
	"fmt"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/apicallrc"
	"github.com/cuemby/burrow/pkg/peer"
	"github.com/cuemby/burrow/pkg/transaction"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/google/uuid"
)

// satellitePeer returns the connected peer of n. For a satellite node
// without a connection it adds a not-connected warning to rc; the
// satellite catches up with a full sync when it reconnects.
func (c *Controller) satellitePeer(rc *apicallrc.ApiCallRc, call apiCall, n *types.Node) *peer.Peer {
	if !n.Type().RunsSatellite() {
		return nil
	}
	if p := c.peers.ByNode(n.Name().String()); p != nil && p.Connected() {
		return p
	}
	for _, e := range rc.Entries {
		if e.ReturnCode == call.code(apicallrc.MaskWarn, apicallrc.WarnNotConnected) && e.ObjRefs["Node"] == n.Name().String() {
			return nil
		}
	}
	rc.Add(&apicallrc.RcEntry{
		ReturnCode: call.code(apicallrc.MaskWarn, apicallrc.WarnNotConnected),
		Message:    fmt.Sprintf("No active connection to satellite '%s'", n.Name()),
		Details:    "The satellite will be updated when it reconnects",
		ObjRefs:    map[string]string{"Node": n.Name().String()},
	})
	return nil
}

// send queues a message once tx committed
func (c *Controller) send(tx *transaction.Tx, p *peer.Peer, t api.MessageType, payload any) {
	tx.OnCommit(func() {
		if err := p.Send(t, payload); err != nil {
			c.logger.Warn().Err(err).Str("node", p.Node()).Str("type", string(t)).Msg("Failed to push update to satellite")
		}
	})
}

// pushResource sends the current snapshot of r to the satellite of r's node
func (c *Controller) pushResource(tx *transaction.Tx, rc *apicallrc.ApiCallRc, call apiCall, r *types.Resource) {
	if p := c.satellitePeer(rc, call, r.Node()); p != nil {
		c.send(tx, p, api.MsgApplyResource, resourceSnapshot(r))
	}
}

// pushRscDfn sends the snapshot of every resource of rd to its satellite
func (c *Controller) pushRscDfn(tx *transaction.Tx, rc *apicallrc.ApiCallRc, call apiCall, rd *types.ResourceDefinition) {
	for _, r := range rd.Resources() {
		c.pushResource(tx, rc, call, r)
	}
}

// pushRemovedResource tells the satellite of n that a resource no longer exists
func (c *Controller) pushRemovedResource(tx *transaction.Tx, rc *apicallrc.ApiCallRc, call apiCall, n *types.Node, rsc types.ResourceName, id uuid.UUID) {
	if p := c.satellitePeer(rc, call, n); p != nil {
		c.send(tx, p, api.MsgApplyResource, removedResourceSnapshot(n.Name(), rsc, id))
	}
}

func (c *Controller) pushStorPool(tx *transaction.Tx, rc *apicallrc.ApiCallRc, call apiCall, sp *types.StorPool) {
	if p := c.satellitePeer(rc, call, sp.Node()); p != nil {
		c.send(tx, p, api.MsgApplyStorPool, storPoolSnapshot(sp))
	}
}

func (c *Controller) pushRemovedStorPool(tx *transaction.Tx, rc *apicallrc.ApiCallRc, call apiCall, n *types.Node, name types.StorPoolName, id uuid.UUID) {
	if p := c.satellitePeer(rc, call, n); p != nil {
		c.send(tx, p, api.MsgApplyStorPool, removedStorPoolSnapshot(n.Name(), name, id))
	}
}
