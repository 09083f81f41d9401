package controller

import (
	"fmt"
	"net"
	"strconv"
	"strings"

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

// NetInterfaceSpec describes a network interface of a new node. Port is
// the satellite port; zero means the interface carries no satellite
// connection, except on satellite nodes with a single interface, which
// get the default port.
type NetInterfaceSpec struct {
	Name       string `yaml:"name"`
	Address    string `yaml:"address"`
	Port       int    `yaml:"port"`
	Encryption string `yaml:"encryption"`
}

// NodeSpec describes a node to create
type NodeSpec struct {
	Name          string             `yaml:"name"`
	Type          string             `yaml:"type"`
	Props         map[string]string  `yaml:"props"`
	NetInterfaces []NetInterfaceSpec `yaml:"net_interfaces"`
}

// CreateNode registers a new node
func (c *Controller) CreateNode(accCtx *security.AccessContext, client *peer.Peer, spec NodeSpec) *apicallrc.ApiCallRc {
	call := apiCall{
		name:    "CreateNode",
		op:      apicallrc.MaskCrt,
		obj:     apicallrc.MaskNode,
		accCtx:  accCtx,
		client:  client,
		locks:   LockSpec{Nodes: ModeWrite},
		objRefs: map[string]string{"Node": spec.Name},
	}
	return c.run(call, func(tx *transaction.Tx, rc *apicallrc.ApiCallRc) error {
		if err := c.state.nodesProt.RequireAccess(accCtx, security.AccessChange); err != nil {
			return err
		}
		name, err := types.NewNodeName(spec.Name)
		if err != nil {
			return err
		}
		nodeType, ok := types.ParseNodeType(spec.Type)
		if !ok {
			return fail(KindInvalidProperty, 0, "Invalid node type '%s'", spec.Type).
				withCorrection("Use one of CONTROLLER, SATELLITE, COMBINED, AUXILIARY")
		}
		if c.state.node(name) != nil {
			return fail(KindAlreadyExists, apicallrc.NodeCrtFailExistsNode, "Node '%s' already exists", name)
		}

		prot, err := c.newProtection(tx, accCtx, nodePath(name))
		if err != nil {
			return err
		}
		n := types.NewNode(uuid.New(), name, nodeType, prot)
		if len(spec.Props) > 0 {
			if err := n.Props().Replace(spec.Props); err != nil {
				return err
			}
		}
		if err := c.addNetInterfaces(n, spec.NetInterfaces); err != nil {
			return err
		}

		key := name.Key()
		c.state.nodes[key] = n
		tx.OnRollback(func() {
			delete(c.state.nodes, key)
			n.MarkRemoved()
		})
		if err := putNode(tx, n); err != nil {
			return err
		}

		rc.AddEntry(apicallrc.NodeCreated, fmt.Sprintf("Node '%s' created", name)).
			Details = fmt.Sprintf("Node '%s' UUID is %s", name, n.UUID())
		c.satellitePeer(rc, call, n)

		if target, ok := satelliteTarget(n); ok && c.connector != nil {
			tx.OnCommit(func() { c.connector.Add(target) })
		}
		c.publish(tx, events.EventNodeCreated, fmt.Sprintf("Node %s created", name),
			map[string]string{"node": name.String(), "type": string(nodeType)})
		return nil
	})
}

func (c *Controller) addNetInterfaces(n *types.Node, specs []NetInterfaceSpec) error {
	for _, s := range specs {
		name, err := types.NewNetInterfaceName(s.Name)
		if err != nil {
			return err
		}
		if net.ParseIP(s.Address) == nil {
			return fail(KindInvalidProperty, apicallrc.MaskError|apicallrc.MaskCrt|apicallrc.MaskNetIf|apicallrc.FailInvalidProperty,
				"Invalid address '%s' of network interface '%s'", s.Address, s.Name)
		}
		port := s.Port
		if port == 0 && n.Type().RunsSatellite() && len(specs) == 1 {
			port = config.NetComPort(c.props, config.DefaultNetComName)
		}
		var tcpPort types.TCPPort
		if port != 0 {
			if tcpPort, err = types.NewTCPPort(port); err != nil {
				return err
			}
		}
		enc := types.EncryptionPlain
		if s.Encryption != "" {
			switch types.EncryptionType(strings.ToUpper(strings.TrimSpace(s.Encryption))) {
			case types.EncryptionPlain:
			case types.EncryptionSSL:
				enc = types.EncryptionSSL
			default:
				return fail(KindInvalidProperty, 0, "Invalid encryption type '%s'", s.Encryption)
			}
		}
		if n.NetInterface(name) != nil {
			return fail(KindAlreadyExists, apicallrc.MaskError|apicallrc.MaskCrt|apicallrc.MaskNetIf|apicallrc.FailExists,
				"Duplicate network interface '%s'", s.Name)
		}
		n.AddNetInterface(types.NewNetInterface(uuid.New(), name, s.Address, tcpPort, enc))
	}
	return nil
}

// satelliteTarget returns where the satellite of n listens
func satelliteTarget(n *types.Node) (peer.Target, bool) {
	if !n.Type().RunsSatellite() {
		return peer.Target{}, false
	}
	ni := n.SatelliteInterface()
	if ni == nil {
		return peer.Target{}, false
	}
	return peer.Target{
		Node: n.Name().String(),
		Addr: net.JoinHostPort(ni.Address, strconv.Itoa(int(ni.Port))),
	}, true
}

// DeleteNode deletes a node. A node without resources is removed at once;
// otherwise the node and all its resources are marked for deletion and the
// node is removed once its satellite confirmed every resource deletion.
func (c *Controller) DeleteNode(accCtx *security.AccessContext, client *peer.Peer, nodeName string) *apicallrc.ApiCallRc {
	call := apiCall{
		name:    "DeleteNode",
		op:      apicallrc.MaskDel,
		obj:     apicallrc.MaskNode,
		accCtx:  accCtx,
		client:  client,
		locks:   LockSpec{Nodes: ModeWrite, RscDfns: ModeWrite, StorPoolDfns: ModeWrite},
		objRefs: map[string]string{"Node": nodeName},
	}
	return c.run(call, func(tx *transaction.Tx, rc *apicallrc.ApiCallRc) error {
		if err := c.state.nodesProt.RequireAccess(accCtx, security.AccessChange); err != nil {
			return err
		}
		name, err := types.NewNodeName(nodeName)
		if err != nil {
			return err
		}
		n := c.state.node(name)
		if n == nil {
			rc.AddEntry(apicallrc.NodeDelWarnNotFound, fmt.Sprintf("Node '%s' not found", name))
			return nil
		}
		if err := n.ObjectProtection().RequireAccess(accCtx, security.AccessControl); err != nil {
			return err
		}
		if n.IsDeleted() {
			rc.AddEntry(apicallrc.NodeMarkedForDeletion, fmt.Sprintf("Node '%s' is already marked for deletion", name))
			return nil
		}

		if n.ResourceCount() == 0 {
			if err := c.removeNode(tx, n); err != nil {
				return err
			}
			rc.AddEntry(apicallrc.NodeDeleted, fmt.Sprintf("Node '%s' deleted", name))
			c.publish(tx, events.EventNodeDeleted, fmt.Sprintf("Node %s deleted", name), map[string]string{"node": name.String()})
			return nil
		}

		if err := c.markNodeDeleted(tx, n); err != nil {
			return err
		}
		for _, r := range n.Resources() {
			if err := c.markResourceDeleted(tx, r); err != nil {
				return err
			}
		}
		for _, r := range n.Resources() {
			c.pushRscDfn(tx, rc, call, r.Definition())
		}
		rc.AddEntry(apicallrc.NodeMarkedForDeletion, fmt.Sprintf("Node '%s' marked for deletion", name)).
			Details = fmt.Sprintf("The node is removed once its %d resource(s) are deleted", n.ResourceCount())
		return nil
	})
}

func (c *Controller) markNodeDeleted(tx *transaction.Tx, n *types.Node) error {
	old := n.MarkDeleted()
	tx.OnRollback(func() { n.SetFlags(old) })
	return putNode(tx, n)
}

// removeNode physically removes a node that has no resources, together
// with its storage pools and node connections
func (c *Controller) removeNode(tx *transaction.Tx, n *types.Node) error {
	sps := n.StorPools()
	conns := n.NodeConnections()
	key := n.Name().Key()
	tx.OnRollback(func() {
		c.state.nodes[key] = n
		n.Reinstate()
		for _, nc := range conns {
			nc.Link()
		}
		for _, sp := range sps {
			sp.Link()
		}
	})

	for _, sp := range sps {
		sp.Unlink()
		if err := del(tx, storage.BucketStorPools, sp.UUID()); err != nil {
			return err
		}
	}
	for _, nc := range conns {
		nc.Unlink()
		if err := del(tx, storage.BucketNodeConns, nc.UUID()); err != nil {
			return err
		}
	}
	delete(c.state.nodes, key)
	n.MarkRemoved()
	if err := del(tx, storage.BucketNodes, n.UUID()); err != nil {
		return err
	}
	if err := delProt(tx, nodePath(n.Name())); err != nil {
		return err
	}

	nodeName := n.Name().String()
	tx.OnCommit(func() {
		if c.connector != nil {
			c.connector.Remove(nodeName)
		}
		if p := c.peers.ByNode(nodeName); p != nil {
			if conn := p.Conn(); conn != nil {
				_ = conn.Close()
			}
		}
	})
	return nil
}
