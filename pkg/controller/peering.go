package controller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/apicallrc"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/peer"
	"github.com/cuemby/burrow/pkg/transaction"
	"github.com/cuemby/burrow/pkg/transport"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// resyncParallelism bounds the concurrent full syncs of ResyncAll
const resyncParallelism = 4

var readAll = LockSpec{Nodes: ModeRead, RscDfns: ModeRead, StorPoolDfns: ModeRead}

// ErrUnknownNode is returned for requests from a peer whose node is not
// registered
var ErrUnknownNode = errors.New("unknown node")

// HandleResourceRequest answers a satellite asking for the current state of
// one of its resources. A resource the controller no longer has, or has
// under another UUID, is answered with a removal.
func (c *Controller) HandleResourceRequest(p *peer.Peer, req api.ResourceRequest) error {
	nodeName, err := types.NewNodeName(p.Node())
	if err != nil {
		return err
	}
	rscName, err := types.NewResourceName(req.RscName)
	if err != nil {
		return err
	}

	release := c.state.Lock(readAll)
	defer release()

	if c.state.node(nodeName) == nil {
		return fmt.Errorf("failed to answer resource request: %w: %s", ErrUnknownNode, nodeName)
	}
	var r *types.Resource
	if rd := c.state.rscDfn(rscName); rd != nil {
		r = rd.Resource(nodeName)
	}
	if r == nil || (req.RscUUID != uuid.Nil && r.UUID() != req.RscUUID) {
		return p.Send(api.MsgApplyResource, removedResourceSnapshot(nodeName, rscName, req.RscUUID))
	}
	return p.Send(api.MsgApplyResource, resourceSnapshot(r))
}

// HandleStorPoolRequest answers a satellite asking for one of its storage pools
func (c *Controller) HandleStorPoolRequest(p *peer.Peer, req api.StorPoolRequest) error {
	nodeName, err := types.NewNodeName(p.Node())
	if err != nil {
		return err
	}
	spName, err := types.NewStorPoolName(req.StorPoolName)
	if err != nil {
		return err
	}

	release := c.state.Lock(readAll)
	defer release()

	n := c.state.node(nodeName)
	if n == nil {
		return fmt.Errorf("failed to answer storage pool request: %w: %s", ErrUnknownNode, nodeName)
	}
	sp := n.StorPool(spName)
	if sp == nil || (req.StorPoolUUID != uuid.Nil && sp.UUID() != req.StorPoolUUID) {
		return p.Send(api.MsgApplyStorPool, removedStorPoolSnapshot(nodeName, spName, req.StorPoolUUID))
	}
	return p.Send(api.MsgApplyStorPool, storPoolSnapshot(sp))
}

// HandleResourceDeleted processes a satellite's confirmation that it
// removed a resource, or some of its volumes, marked for deletion. The
// confirmed objects are purged, then every parent that is marked for
// deletion and has no children left.
func (c *Controller) HandleResourceDeleted(p *peer.Peer, req api.ResourceDeleted) *apicallrc.ApiCallRc {
	call := apiCall{
		name:    "HandleResourceDeleted",
		op:      apicallrc.MaskDel,
		obj:     apicallrc.MaskRsc,
		accCtx:  c.sysCtx,
		client:  p,
		locks:   LockSpec{Nodes: ModeWrite, RscDfns: ModeWrite, StorPoolDfns: ModeWrite},
		objRefs: map[string]string{"Node": req.NodeName, "RscDfn": req.RscName},
	}
	return c.run(call, func(tx *transaction.Tx, rc *apicallrc.ApiCallRc) error {
		nodeName, err := types.NewNodeName(req.NodeName)
		if err != nil {
			return err
		}
		rscName, err := types.NewResourceName(req.RscName)
		if err != nil {
			return err
		}
		if p != nil && p.Node() != "" && !strings.EqualFold(p.Node(), nodeName.String()) {
			return fail(KindAccessDenied, call.code(apicallrc.MaskError, apicallrc.FailAccDenied),
				"Satellite '%s' cannot confirm deletions of node '%s'", p.Node(), nodeName)
		}

		var r *types.Resource
		if rd := c.state.rscDfn(rscName); rd != nil {
			r = rd.Resource(nodeName)
		}
		if r == nil || r.UUID() != req.RscUUID {
			rc.AddEntry(apicallrc.RscDelWarnNotFound, fmt.Sprintf("Resource '%s' with UUID %s not found on node '%s'",
				rscName, req.RscUUID, nodeName))
			return nil
		}
		rd, n := r.Definition(), r.Node()

		if len(req.VolNrs) > 0 {
			return c.purgeVolumes(tx, rc, call, r, req.VolNrs)
		}
		if !r.IsDeleted() {
			rc.AddEntry(call.code(apicallrc.MaskWarn, apicallrc.WarnNotFound),
				fmt.Sprintf("Resource '%s' on node '%s' is not marked for deletion", rscName, nodeName))
			return nil
		}

		if err := c.removeResource(tx, r); err != nil {
			return err
		}
		purged(tx, "resource")
		rc.AddEntry(apicallrc.RscDeleted, fmt.Sprintf("Resource '%s' deleted from node '%s'", rscName, nodeName))
		c.publish(tx, events.EventRscPurged, fmt.Sprintf("Resource %s purged from %s", rscName, nodeName),
			map[string]string{"node": nodeName.String(), "rsc_dfn": rscName.String()})
		return c.purgeParents(tx, rc, call, rd, n)
	})
}

// purgeVolumes removes the confirmed volumes of r and every volume
// definition left marked for deletion without volumes
func (c *Controller) purgeVolumes(tx *transaction.Tx, rc *apicallrc.ApiCallRc, call apiCall, r *types.Resource, nrs []int) error {
	for _, raw := range nrs {
		nr, err := types.NewVolumeNumber(raw)
		if err != nil {
			return err
		}
		v := r.Volume(nr)
		if v == nil || !v.IsDeleted() {
			continue
		}
		vd := v.Definition()
		if err := c.removeVolume(tx, v); err != nil {
			return err
		}
		purged(tx, "volume")
		rc.Add(&apicallrc.RcEntry{
			ReturnCode: apicallrc.MaskInfo | apicallrc.MaskDel | apicallrc.MaskVlm | apicallrc.Deleted,
			Message:    fmt.Sprintf("Volume %d of '%s' deleted from node '%s'", nr, r.Definition().Name(), r.Node().Name()),
		})
		if vd.IsDeleted() && vd.VolumeCount() == 0 {
			if err := c.removeVolDfn(tx, vd); err != nil {
				return err
			}
			purged(tx, "vol_dfn")
			rc.AddEntry(apicallrc.VlmDfnDeleted, fmt.Sprintf("Volume definition %d of '%s' deleted", nr, r.Definition().Name()))
		}
	}
	c.pushRscDfn(tx, rc, call, r.Definition())
	return nil
}

// purgeParents removes rd and n once they are marked for deletion and hold
// no resources; otherwise the remaining satellites of rd get the update.
func (c *Controller) purgeParents(tx *transaction.Tx, rc *apicallrc.ApiCallRc, call apiCall, rd *types.ResourceDefinition, n *types.Node) error {
	if rd.IsDeleted() && rd.ResourceCount() == 0 {
		if err := c.removeRscDfn(tx, rd); err != nil {
			return err
		}
		purged(tx, "rsc_dfn")
		rc.AddEntry(apicallrc.RscDfnDeleted, fmt.Sprintf("Resource definition '%s' deleted", rd.Name()))
		c.publish(tx, events.EventRscDfnDeleted, fmt.Sprintf("Resource definition %s deleted", rd.Name()),
			map[string]string{"rsc_dfn": rd.Name().String()})
	} else {
		c.pushRscDfn(tx, rc, call, rd)
	}

	if n.IsDeleted() && n.ResourceCount() == 0 {
		if err := c.removeNode(tx, n); err != nil {
			return err
		}
		purged(tx, "node")
		rc.AddEntry(apicallrc.NodeDeleted, fmt.Sprintf("Node '%s' deleted", n.Name()))
		c.publish(tx, events.EventNodeDeleted, fmt.Sprintf("Node %s deleted", n.Name()),
			map[string]string{"node": n.Name().String()})
	}
	return nil
}

func purged(tx *transaction.Tx, kind string) {
	tx.OnCommit(func() { metrics.PurgedTotal.WithLabelValues(kind).Inc() })
}

// SendFullSync sends the complete state of p's node to p
func (c *Controller) SendFullSync(p *peer.Peer) error {
	nodeName, err := types.NewNodeName(p.Node())
	if err != nil {
		return err
	}

	release := c.state.Lock(readAll)
	defer release()

	n := c.state.node(nodeName)
	if n == nil {
		return fmt.Errorf("failed to send full sync: %w: %s", ErrUnknownNode, nodeName)
	}
	id := p.NextFullSyncID()
	if err := p.Send(api.MsgApplyFullSync, fullSync(id, n)); err != nil {
		return fmt.Errorf("failed to send full sync to %s: %w", nodeName, err)
	}
	c.logger.Debug().Str("node", nodeName.String()).Int64("sync_id", id).
		Int("resources", n.ResourceCount()).Msg("Full sync sent")
	return nil
}

// ResyncAll sends a full sync to every connected satellite
func (c *Controller) ResyncAll(ctx context.Context) error {
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(resyncParallelism)
	for _, p := range c.peers.All() {
		if !p.Connected() || p.Node() == "" {
			continue
		}
		g.Go(func() error { return c.SendFullSync(p) })
	}
	return g.Wait()
}

// PeerConnected implements peer.Listener. Satellites get a full sync as
// soon as the controller's outbound connection is up.
func (c *Controller) PeerConnected(p *peer.Peer, outbound bool) {
	c.peerEvent(events.EventPeerConnected, p)
	if !outbound || p.Node() == "" {
		return
	}
	if err := c.SendFullSync(p); err != nil {
		c.logger.Warn().Err(err).Str("node", p.Node()).Msg("Failed to send full sync")
	}
}

// PeerDisconnected implements peer.Listener. The satellite is handed to
// the connector to be reconnected while its node still exists.
func (c *Controller) PeerDisconnected(p *peer.Peer) {
	c.peerEvent(events.EventPeerDisconnected, p)
	if c.connector == nil || p.Node() == "" {
		return
	}
	nodeName, err := types.NewNodeName(p.Node())
	if err != nil {
		return
	}

	release := c.state.Lock(LockSpec{Nodes: ModeRead})
	n := c.state.node(nodeName)
	var (
		target peer.Target
		ok     bool
	)
	if n != nil {
		target, ok = satelliteTarget(n)
	}
	release()

	if ok {
		c.connector.Add(target)
	}
}

func (c *Controller) peerEvent(t events.EventType, p *peer.Peer) {
	if c.events == nil {
		return
	}
	c.events.Publish(&events.Event{
		Type:     t,
		Message:  fmt.Sprintf("Peer %s (%s)", p.ID(), p.Node()),
		Metadata: map[string]string{"peer": p.ID(), "node": p.Node()},
	})
}

// ConnectSatellites hands every satellite node to the connector
func (c *Controller) ConnectSatellites() int {
	if c.connector == nil {
		return 0
	}
	release := c.state.Lock(LockSpec{Nodes: ModeRead})
	var targets []peer.Target
	for _, n := range c.state.sortedNodes() {
		if t, ok := satelliteTarget(n); ok {
			targets = append(targets, t)
		}
	}
	release()

	for _, t := range targets {
		c.connector.Add(t)
	}
	return len(targets)
}

// DialFunc returns the function the reconnect service uses to reach a
// satellite. The dialed connection carries a peer bound to the target node.
func (c *Controller) DialFunc(d *transport.Dialer) peer.DialFunc {
	return func(ctx context.Context, t peer.Target) error {
		_, err := d.Dial(ctx, t.Addr, peer.New(t.Node, c.sysCtx))
		return err
	}
}

// HandleMessage implements transport.MessageHandler for satellite connections
func (c *Controller) HandleMessage(_ context.Context, conn transport.Connection, msg *api.Message) {
	p, ok := conn.Attachment().(*peer.Peer)
	if !ok {
		c.logger.Warn().Str("conn", conn.ID()).Str("type", string(msg.Type)).Msg("Message on unattached connection")
		return
	}
	logger := c.logger.With().Str("node", p.Node()).Str("type", string(msg.Type)).Int64("msg_id", msg.ID).Logger()

	var err error
	switch msg.Type {
	case api.MsgRequestResource:
		var req api.ResourceRequest
		if err = msg.Decode(&req); err == nil {
			err = c.HandleResourceRequest(p, req)
		}
	case api.MsgRequestStorPool:
		var req api.StorPoolRequest
		if err = msg.Decode(&req); err == nil {
			err = c.HandleStorPoolRequest(p, req)
		}
	case api.MsgNotifyResourceDeleted:
		var req api.ResourceDeleted
		if err = msg.Decode(&req); err == nil {
			rc := c.HandleResourceDeleted(p, req)
			for _, e := range rc.Entries {
				logger.Debug().Str("ret_code", strconv.FormatUint(e.ReturnCode, 16)).Msg(e.Message)
			}
			if rc.HasErrors() {
				err = errors.New(rc.Entries[0].Message)
			}
		}
	case api.MsgNotifyFullSyncApplied:
		var ack api.FullSyncApplied
		if err = msg.Decode(&ack); err == nil {
			switch {
			case ack.SyncID != p.FullSyncID():
				logger.Debug().Int64("sync_id", ack.SyncID).Msg("Ignoring stale full sync confirmation")
			case !ack.Success:
				logger.Warn().Str("error", ack.Error).Msg("Satellite failed to apply full sync")
			default:
				logger.Info().Int64("sync_id", ack.SyncID).Msg("Satellite applied full sync")
			}
		}
	default:
		err = fmt.Errorf("unexpected message type %q", msg.Type)
	}
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to handle satellite message")
	}
}

var (
	_ peer.Listener            = (*Controller)(nil)
	_ transport.MessageHandler = (*Controller)(nil)
)
