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

// ConnSpec names the two ends of a connection. RscName selects the resource
// definition of resource and volume connections, VolNr the volume of a
// volume connection.
type ConnSpec struct {
	Node1   string            `yaml:"node1"`
	Node2   string            `yaml:"node2"`
	RscName string            `yaml:"rsc_name"`
	VolNr   int               `yaml:"vol_nr"`
	Props   map[string]string `yaml:"props"`
}

func (s ConnSpec) objRefs() map[string]string {
	refs := map[string]string{"Node1": s.Node1, "Node2": s.Node2}
	if s.RscName != "" {
		refs["RscDfn"] = s.RscName
	}
	return refs
}

func (s ConnSpec) nodeNames() (types.NodeName, types.NodeName, error) {
	a, err := types.NewNodeName(s.Node1)
	if err != nil {
		return types.NodeName{}, types.NodeName{}, err
	}
	b, err := types.NewNodeName(s.Node2)
	if err != nil {
		return types.NodeName{}, types.NodeName{}, err
	}
	if a.Equal(b) {
		return types.NodeName{}, types.NodeName{}, fail(KindInvalidProperty, 0, "Cannot connect node '%s' to itself", a)
	}
	return a, b, nil
}

func connMeta(kind string, s ConnSpec) map[string]string {
	meta := map[string]string{"kind": kind, "node1": s.Node1, "node2": s.Node2}
	if s.RscName != "" {
		meta["rsc_dfn"] = s.RscName
	}
	return meta
}

// CreateNodeConnection creates the connection between two nodes
func (c *Controller) CreateNodeConnection(accCtx *security.AccessContext, client *peer.Peer, spec ConnSpec) *apicallrc.ApiCallRc {
	call := apiCall{
		name:    "CreateNodeConnection",
		op:      apicallrc.MaskCrt,
		obj:     apicallrc.MaskNodeConn,
		accCtx:  accCtx,
		client:  client,
		locks:   LockSpec{Nodes: ModeWrite},
		objRefs: spec.objRefs(),
	}
	return c.run(call, func(tx *transaction.Tx, rc *apicallrc.ApiCallRc) error {
		if err := c.state.nodesProt.RequireAccess(accCtx, security.AccessChange); err != nil {
			return err
		}
		a, b, err := spec.nodeNames()
		if err != nil {
			return err
		}
		n1, n2 := c.state.node(a), c.state.node(b)
		for i, n := range []*types.Node{n1, n2} {
			if n == nil || n.IsDeleted() {
				return fail(KindNotFound, call.code(apicallrc.MaskError, apicallrc.FailNotFoundNode),
					"Node '%s' not found", []types.NodeName{a, b}[i])
			}
			if err := n.ObjectProtection().RequireAccess(accCtx, security.AccessChange); err != nil {
				return err
			}
		}
		if n1.NodeConnection(b) != nil {
			return fail(KindAlreadyExists, apicallrc.NodeConnCrtFailExists,
				"Node connection between '%s' and '%s' already exists", a, b)
		}

		nc := types.NewNodeConnection(uuid.New(), n1, n2)
		if len(spec.Props) > 0 {
			if err := nc.Props().Replace(spec.Props); err != nil {
				return err
			}
		}
		nc.Link()
		tx.OnRollback(nc.Unlink)
		if err := putNodeConn(tx, nc); err != nil {
			return err
		}
		rc.AddEntry(apicallrc.NodeConnCreated, fmt.Sprintf("Node connection between '%s' and '%s' created", a, b))
		c.publish(tx, events.EventConnCreated, fmt.Sprintf("Node connection %s created", nc.Key()), connMeta("node", spec))
		return nil
	})
}

// DeleteNodeConnection deletes the connection between two nodes
func (c *Controller) DeleteNodeConnection(accCtx *security.AccessContext, client *peer.Peer, spec ConnSpec) *apicallrc.ApiCallRc {
	call := apiCall{
		name:    "DeleteNodeConnection",
		op:      apicallrc.MaskDel,
		obj:     apicallrc.MaskNodeConn,
		accCtx:  accCtx,
		client:  client,
		locks:   LockSpec{Nodes: ModeWrite},
		objRefs: spec.objRefs(),
	}
	return c.run(call, func(tx *transaction.Tx, rc *apicallrc.ApiCallRc) error {
		if err := c.state.nodesProt.RequireAccess(accCtx, security.AccessChange); err != nil {
			return err
		}
		a, b, err := spec.nodeNames()
		if err != nil {
			return err
		}
		var nc *types.NodeConnection
		if n1 := c.state.node(a); n1 != nil {
			nc = n1.NodeConnection(b)
		}
		if nc == nil {
			rc.AddEntry(apicallrc.NodeConnDelWarnNotFound, fmt.Sprintf("Node connection between '%s' and '%s' not found", a, b))
			return nil
		}
		n1, n2 := nc.Nodes()
		for _, n := range []*types.Node{n1, n2} {
			if err := n.ObjectProtection().RequireAccess(accCtx, security.AccessChange); err != nil {
				return err
			}
		}

		tx.OnRollback(nc.Link)
		nc.Unlink()
		if err := del(tx, storage.BucketNodeConns, nc.UUID()); err != nil {
			return err
		}
		rc.AddEntry(apicallrc.NodeConnDeleted, fmt.Sprintf("Node connection between '%s' and '%s' deleted", a, b))
		c.publish(tx, events.EventConnDeleted, fmt.Sprintf("Node connection %s deleted", nc.Key()), connMeta("node", spec))
		return nil
	})
}

// resourcePair looks up the two resources a resource connection joins
func (c *Controller) resourcePair(call apiCall, accCtx *security.AccessContext, spec ConnSpec) (*types.ResourceDefinition, *types.Resource, *types.Resource, error) {
	a, b, err := spec.nodeNames()
	if err != nil {
		return nil, nil, nil, err
	}
	name, err := types.NewResourceName(spec.RscName)
	if err != nil {
		return nil, nil, nil, err
	}
	rd := c.state.rscDfn(name)
	if rd == nil || rd.IsDeleted() {
		return nil, nil, nil, fail(KindNotFound, call.code(apicallrc.MaskError, apicallrc.FailNotFoundRscDfn),
			"Resource definition '%s' not found", name)
	}
	if err := rd.ObjectProtection().RequireAccess(accCtx, security.AccessChange); err != nil {
		return nil, nil, nil, err
	}
	r1, r2 := rd.Resource(a), rd.Resource(b)
	for i, r := range []*types.Resource{r1, r2} {
		if r == nil {
			return nil, nil, nil, fail(KindNotFound, call.code(apicallrc.MaskError, apicallrc.FailNotFoundRsc),
				"Resource '%s' not found on node '%s'", name, []types.NodeName{a, b}[i])
		}
	}
	return rd, r1, r2, nil
}

// CreateResourceConnection creates the connection between two resources
// of the same definition
func (c *Controller) CreateResourceConnection(accCtx *security.AccessContext, client *peer.Peer, spec ConnSpec) *apicallrc.ApiCallRc {
	call := apiCall{
		name:    "CreateResourceConnection",
		op:      apicallrc.MaskCrt,
		obj:     apicallrc.MaskRscConn,
		accCtx:  accCtx,
		client:  client,
		locks:   LockSpec{Nodes: ModeRead, RscDfns: ModeWrite},
		objRefs: spec.objRefs(),
	}
	return c.run(call, func(tx *transaction.Tx, rc *apicallrc.ApiCallRc) error {
		if err := c.state.rscDfnsProt.RequireAccess(accCtx, security.AccessChange); err != nil {
			return err
		}
		rd, r1, r2, err := c.resourcePair(call, accCtx, spec)
		if err != nil {
			return err
		}
		if rd.ResourceConnection(r1.Node().Name(), r2.Node().Name()) != nil {
			return fail(KindAlreadyExists, apicallrc.RscConnCrtFailExists,
				"Resource connection of '%s' between '%s' and '%s' already exists", rd.Name(), r1.Node().Name(), r2.Node().Name())
		}

		conn := types.NewResourceConnection(uuid.New(), r1, r2)
		if len(spec.Props) > 0 {
			if err := conn.Props().Replace(spec.Props); err != nil {
				return err
			}
		}
		conn.Link()
		tx.OnRollback(conn.Unlink)
		if err := putRscConn(tx, conn); err != nil {
			return err
		}
		rc.AddEntry(apicallrc.RscConnCreated, fmt.Sprintf("Resource connection of '%s' between '%s' and '%s' created",
			rd.Name(), r1.Node().Name(), r2.Node().Name()))
		c.pushResource(tx, rc, call, r1)
		c.pushResource(tx, rc, call, r2)
		c.publish(tx, events.EventConnCreated, fmt.Sprintf("Resource connection %s/%s created", rd.Name(), conn.Key()),
			connMeta("resource", spec))
		return nil
	})
}

// DeleteResourceConnection deletes a resource connection with its volume connections
func (c *Controller) DeleteResourceConnection(accCtx *security.AccessContext, client *peer.Peer, spec ConnSpec) *apicallrc.ApiCallRc {
	call := apiCall{
		name:    "DeleteResourceConnection",
		op:      apicallrc.MaskDel,
		obj:     apicallrc.MaskRscConn,
		accCtx:  accCtx,
		client:  client,
		locks:   LockSpec{Nodes: ModeRead, RscDfns: ModeWrite},
		objRefs: spec.objRefs(),
	}
	return c.run(call, func(tx *transaction.Tx, rc *apicallrc.ApiCallRc) error {
		if err := c.state.rscDfnsProt.RequireAccess(accCtx, security.AccessChange); err != nil {
			return err
		}
		a, b, err := spec.nodeNames()
		if err != nil {
			return err
		}
		name, err := types.NewResourceName(spec.RscName)
		if err != nil {
			return err
		}
		rd := c.state.rscDfn(name)
		var conn *types.ResourceConnection
		if rd != nil {
			conn = rd.ResourceConnection(a, b)
		}
		if conn == nil {
			rc.AddEntry(apicallrc.RscConnDelWarnNotFound,
				fmt.Sprintf("Resource connection of '%s' between '%s' and '%s' not found", name, a, b))
			return nil
		}
		if err := rd.ObjectProtection().RequireAccess(accCtx, security.AccessChange); err != nil {
			return err
		}

		tx.OnRollback(conn.Link)
		conn.Unlink()
		for _, vc := range conn.VolumeConnections() {
			if err := del(tx, storage.BucketVolConns, vc.UUID()); err != nil {
				return err
			}
		}
		if err := del(tx, storage.BucketRscConns, conn.UUID()); err != nil {
			return err
		}
		rc.AddEntry(apicallrc.RscConnDeleted, fmt.Sprintf("Resource connection of '%s' between '%s' and '%s' deleted", name, a, b))
		r1, r2 := conn.Resources()
		c.pushResource(tx, rc, call, r1)
		c.pushResource(tx, rc, call, r2)
		c.publish(tx, events.EventConnDeleted, fmt.Sprintf("Resource connection %s/%s deleted", name, conn.Key()),
			connMeta("resource", spec))
		return nil
	})
}

// CreateVolumeConnection creates the connection between the volumes with
// the same number of two connected resources
func (c *Controller) CreateVolumeConnection(accCtx *security.AccessContext, client *peer.Peer, spec ConnSpec) *apicallrc.ApiCallRc {
	call := apiCall{
		name:    "CreateVolumeConnection",
		op:      apicallrc.MaskCrt,
		obj:     apicallrc.MaskVlmConn,
		accCtx:  accCtx,
		client:  client,
		locks:   LockSpec{Nodes: ModeRead, RscDfns: ModeWrite},
		objRefs: spec.objRefs(),
	}
	return c.run(call, func(tx *transaction.Tx, rc *apicallrc.ApiCallRc) error {
		if err := c.state.rscDfnsProt.RequireAccess(accCtx, security.AccessChange); err != nil {
			return err
		}
		rd, r1, r2, err := c.resourcePair(call, accCtx, spec)
		if err != nil {
			return err
		}
		nr, err := types.NewVolumeNumber(spec.VolNr)
		if err != nil {
			return err
		}
		if vd := rd.VolumeDefinition(nr); vd == nil || vd.IsDeleted() {
			return fail(KindNotFound, call.code(apicallrc.MaskError, apicallrc.FailNotFoundVlmDfn),
				"Volume definition %d of '%s' not found", nr, rd.Name())
		}
		conn := rd.ResourceConnection(r1.Node().Name(), r2.Node().Name())
		if conn == nil {
			return fail(KindNotFound, call.code(apicallrc.MaskError, apicallrc.FailNotFoundRsc),
				"Resource connection of '%s' between '%s' and '%s' not found", rd.Name(), r1.Node().Name(), r2.Node().Name()).
				withCorrection("Create the resource connection first")
		}
		if conn.VolumeConnection(nr) != nil {
			return fail(KindAlreadyExists, apicallrc.VlmConnCrtFailExists,
				"Volume connection %d of '%s' between '%s' and '%s' already exists", nr, rd.Name(), r1.Node().Name(), r2.Node().Name())
		}

		vc := types.NewVolumeConnection(uuid.New(), conn, nr)
		if len(spec.Props) > 0 {
			if err := vc.Props().Replace(spec.Props); err != nil {
				return err
			}
		}
		vc.Link()
		tx.OnRollback(vc.Unlink)
		if err := putVolConn(tx, vc); err != nil {
			return err
		}
		rc.AddEntry(apicallrc.VlmConnCreated, fmt.Sprintf("Volume connection %d of '%s' between '%s' and '%s' created",
			nr, rd.Name(), r1.Node().Name(), r2.Node().Name()))
		c.publish(tx, events.EventConnCreated, fmt.Sprintf("Volume connection %s/%s/%d created", rd.Name(), conn.Key(), nr),
			connMeta("volume", spec))
		return nil
	})
}

// DeleteVolumeConnection deletes a volume connection
func (c *Controller) DeleteVolumeConnection(accCtx *security.AccessContext, client *peer.Peer, spec ConnSpec) *apicallrc.ApiCallRc {
	call := apiCall{
		name:    "DeleteVolumeConnection",
		op:      apicallrc.MaskDel,
		obj:     apicallrc.MaskVlmConn,
		accCtx:  accCtx,
		client:  client,
		locks:   LockSpec{Nodes: ModeRead, RscDfns: ModeWrite},
		objRefs: spec.objRefs(),
	}
	return c.run(call, func(tx *transaction.Tx, rc *apicallrc.ApiCallRc) error {
		if err := c.state.rscDfnsProt.RequireAccess(accCtx, security.AccessChange); err != nil {
			return err
		}
		a, b, err := spec.nodeNames()
		if err != nil {
			return err
		}
		name, err := types.NewResourceName(spec.RscName)
		if err != nil {
			return err
		}
		nr, err := types.NewVolumeNumber(spec.VolNr)
		if err != nil {
			return err
		}
		rd := c.state.rscDfn(name)
		var vc *types.VolumeConnection
		if rd != nil {
			if conn := rd.ResourceConnection(a, b); conn != nil {
				vc = conn.VolumeConnection(nr)
			}
		}
		if vc == nil {
			rc.AddEntry(apicallrc.VlmConnDelWarnNotFound,
				fmt.Sprintf("Volume connection %d of '%s' between '%s' and '%s' not found", nr, name, a, b))
			return nil
		}
		if err := rd.ObjectProtection().RequireAccess(accCtx, security.AccessChange); err != nil {
			return err
		}

		tx.OnRollback(vc.Link)
		vc.Unlink()
		if err := del(tx, storage.BucketVolConns, vc.UUID()); err != nil {
			return err
		}
		rc.AddEntry(apicallrc.VlmConnDeleted, fmt.Sprintf("Volume connection %d of '%s' between '%s' and '%s' deleted", nr, name, a, b))
		c.publish(tx, events.EventConnDeleted, fmt.Sprintf("Volume connection %s/%s/%d deleted", name, vc.ResourceConnection().Key(), nr),
			connMeta("volume", spec))
		return nil
	})
}
