package controller

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

// loader rebuilds the object graph from persisted records
type loader struct {
	c     *Controller
	prots map[string]*security.ObjectProtection
}

// Load restores the cluster state from the store. On the first start it
// creates the collection protections instead. Load holds the
// reconfiguration lock for its whole run.
func (c *Controller) Load() error {
	release := c.state.LockReconfiguration()
	defer release()

	l := &loader{
		c:     c,
		prots: make(map[string]*security.ObjectProtection),
	}
	steps := []struct {
		bucket string
		fn     func(data []byte) error
	}{
		{storage.BucketObjProt, l.loadProt},
		{storage.BucketNodes, l.loadNode},
		{storage.BucketRscDfns, l.loadRscDfn},
		{storage.BucketVolDfns, l.loadVolDfn},
		{storage.BucketStorPoolDfns, l.loadStorPoolDfn},
		{storage.BucketStorPools, l.loadStorPool},
		{storage.BucketResources, l.loadRsc},
		{storage.BucketVolumes, l.loadVol},
		{storage.BucketNodeConns, l.loadNodeConn},
		{storage.BucketRscConns, l.loadRscConn},
		{storage.BucketVolConns, l.loadVolConn},
	}
	store := c.txMgr.Store()
	for _, step := range steps {
		err := store.ForEach(step.bucket, func(key string, value []byte) error {
			if err := step.fn(value); err != nil {
				return fmt.Errorf("record %s/%s: %w", step.bucket, key, err)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to load cluster state: %w", err)
		}
	}

	if err := c.bootstrapProtections(l.prots); err != nil {
		return err
	}

	metrics.SetComponent(metrics.ComponentStore, true, "")

	counts := map[string]int{"node": len(c.state.nodes), "rsc_dfn": len(c.state.rscDfns), "stor_pool_dfn": len(c.state.storPoolDfns)}
	c.logger.Info().Interface("objects", counts).Msg("Cluster state loaded")
	return nil
}

// bootstrapProtections installs the three collection protections, creating
// and persisting those that do not exist yet
func (c *Controller) bootstrapProtections(loaded map[string]*security.ObjectProtection) error {
	tx := c.txMgr.Begin()
	get := func(path string) (*security.ObjectProtection, error) {
		if prot, ok := loaded[path]; ok {
			return prot, nil
		}
		c.logger.Info().Str("path", path).Msg("Creating collection protection")
		return c.newProtection(tx, c.sysCtx, path)
	}

	var err error
	if c.state.nodesProt, err = get(NodesPath); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to bootstrap protections: %w", err)
	}
	if c.state.rscDfnsProt, err = get(RscDfnsPath); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to bootstrap protections: %w", err)
	}
	if c.state.storPoolDfnsProt, err = get(StorPoolDfnsPath); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to bootstrap protections: %w", err)
	}
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to bootstrap protections: %w", err)
	}
	return nil
}

// protection returns the loaded protection of path, or a new system-owned
// one if the record is missing
func (l *loader) protection(path string) *security.ObjectProtection {
	if prot, ok := l.prots[path]; ok {
		return prot
	}
	l.c.logger.Warn().Str("path", path).Msg("Missing object protection, using a system-owned one")
	prot := l.c.policy.NewObjectProtection(l.c.sysCtx, path)
	l.prots[path] = prot
	return prot
}

func (l *loader) loadProt(data []byte) error {
	var d security.ProtectionData
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	prot, err := l.c.policy.RestoreObjectProtection(d)
	if err != nil {
		return err
	}
	l.prots[d.Path] = prot
	return nil
}

func restoreProps(p *types.Props, m map[string]string) error {
	if len(m) == 0 {
		return nil
	}
	return p.Replace(m)
}

func (l *loader) loadNode(data []byte) error {
	var d types.NodeData
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	name, err := types.NewNodeName(d.Name)
	if err != nil {
		return err
	}
	nodeType, ok := types.ParseNodeType(string(d.Type))
	if !ok {
		return fmt.Errorf("invalid node type %q", d.Type)
	}
	n := types.NewNode(d.UUID, name, nodeType, l.protection(nodePath(name)))
	n.SetFlags(d.Flags)
	if err := restoreProps(n.Props(), d.Props); err != nil {
		return err
	}
	for _, nid := range d.NetInterfaces {
		niName, err := types.NewNetInterfaceName(nid.Name)
		if err != nil {
			return err
		}
		n.AddNetInterface(types.NewNetInterface(nid.UUID, niName, nid.Address, types.TCPPort(nid.Port), nid.Encryption))
	}
	l.c.state.nodes[name.Key()] = n
	return nil
}

func (l *loader) loadRscDfn(data []byte) error {
	var d types.RscDfnData
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	name, err := types.NewResourceName(d.Name)
	if err != nil {
		return err
	}
	port, err := types.NewTCPPort(d.Port)
	if err != nil {
		return err
	}
	rd := types.NewResourceDefinition(d.UUID, name, port, d.Secret, d.Transport, l.protection(rscDfnPath(name)))
	rd.SetFlags(d.Flags)
	if err := restoreProps(rd.Props(), d.Props); err != nil {
		return err
	}
	l.c.state.rscDfns[name.Key()] = rd
	return nil
}

func (l *loader) loadVolDfn(data []byte) error {
	var d types.VolDfnData
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	rd, err := l.rscDfn(d.RscName)
	if err != nil {
		return err
	}
	nr, err := types.NewVolumeNumber(d.VolNr)
	if err != nil {
		return err
	}
	minor, err := types.NewMinorNumber(d.Minor)
	if err != nil {
		return err
	}
	vd := types.NewVolumeDefinition(d.UUID, rd, nr, minor, d.SizeKiB)
	vd.SetFlags(d.Flags)
	if err := restoreProps(vd.Props(), d.Props); err != nil {
		return err
	}
	vd.Link()
	return nil
}

func (l *loader) loadStorPoolDfn(data []byte) error {
	var d types.StorPoolDfnData
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	name, err := types.NewStorPoolName(d.Name)
	if err != nil {
		return err
	}
	spd := types.NewStorPoolDefinition(d.UUID, name, l.protection(storPoolDfnPath(name)))
	spd.SetFlags(d.Flags)
	if err := restoreProps(spd.Props(), d.Props); err != nil {
		return err
	}
	l.c.state.storPoolDfns[name.Key()] = spd
	return nil
}

func (l *loader) loadStorPool(data []byte) error {
	var d types.StorPoolData
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	node, err := l.node(d.NodeName)
	if err != nil {
		return err
	}
	name, err := types.NewStorPoolName(d.Name)
	if err != nil {
		return err
	}
	spd := l.c.state.storPoolDfn(name)
	if spd == nil {
		return fmt.Errorf("unknown storage pool definition %q", d.Name)
	}
	sp := types.NewStorPool(d.UUID, node, spd, d.Driver)
	sp.SetFlags(d.Flags)
	if err := restoreProps(sp.Props(), d.Props); err != nil {
		return err
	}
	sp.Link()
	return nil
}

func (l *loader) loadRsc(data []byte) error {
	var d types.RscData
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	node, err := l.node(d.NodeName)
	if err != nil {
		return err
	}
	rd, err := l.rscDfn(d.RscName)
	if err != nil {
		return err
	}
	nodeID, err := types.NewNodeID(d.NodeID)
	if err != nil {
		return err
	}
	r := types.NewResource(d.UUID, node, rd, nodeID, l.protection(rscPath(node.Name(), rd.Name())))
	r.SetFlags(d.Flags)
	if err := restoreProps(r.Props(), d.Props); err != nil {
		return err
	}
	r.Link()
	return nil
}

func (l *loader) loadVol(data []byte) error {
	var d types.VolData
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	r, err := l.rsc(d.NodeName, d.RscName)
	if err != nil {
		return err
	}
	vd := r.Definition().VolumeDefinition(types.VolumeNumber(d.VolNr))
	if vd == nil {
		return fmt.Errorf("unknown volume definition %s/%d", d.RscName, d.VolNr)
	}
	var sp *types.StorPool
	if d.StorPoolName != "" {
		name, err := types.NewStorPoolName(d.StorPoolName)
		if err != nil {
			return err
		}
		if sp = r.Node().StorPool(name); sp == nil {
			return fmt.Errorf("unknown storage pool %s on node %s", d.StorPoolName, d.NodeName)
		}
	}
	v := types.NewVolume(d.UUID, r, vd, sp)
	v.BlockDevice = d.BlockDevice
	v.MetaDisk = d.MetaDisk
	v.SetFlags(d.Flags)
	if err := restoreProps(v.Props(), d.Props); err != nil {
		return err
	}
	v.Link()
	return nil
}

func (l *loader) loadNodeConn(data []byte) error {
	var d types.NodeConnData
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	a, err := l.node(d.NodeName1)
	if err != nil {
		return err
	}
	b, err := l.node(d.NodeName2)
	if err != nil {
		return err
	}
	nc := types.NewNodeConnection(d.UUID, a, b)
	if err := restoreProps(nc.Props(), d.Props); err != nil {
		return err
	}
	nc.Link()
	return nil
}

func (l *loader) loadRscConn(data []byte) error {
	var d types.RscConnData
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	a, err := l.rsc(d.NodeName1, d.RscName)
	if err != nil {
		return err
	}
	b, err := l.rsc(d.NodeName2, d.RscName)
	if err != nil {
		return err
	}
	rc := types.NewResourceConnection(d.UUID, a, b)
	if err := restoreProps(rc.Props(), d.Props); err != nil {
		return err
	}
	rc.Link()
	return nil
}

func (l *loader) loadVolConn(data []byte) error {
	var d types.VolConnData
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	a, err := l.rsc(d.NodeName1, d.RscName)
	if err != nil {
		return err
	}
	b, err := l.rsc(d.NodeName2, d.RscName)
	if err != nil {
		return err
	}
	rc := a.Definition().ResourceConnection(a.Node().Name(), b.Node().Name())
	if rc == nil {
		return fmt.Errorf("unknown resource connection %s %s/%s", d.RscName, d.NodeName1, d.NodeName2)
	}
	vc := types.NewVolumeConnection(d.UUID, rc, types.VolumeNumber(d.VolNr))
	if err := restoreProps(vc.Props(), d.Props); err != nil {
		return err
	}
	vc.Link()
	return nil
}

func (l *loader) node(name string) (*types.Node, error) {
	nn, err := types.NewNodeName(name)
	if err != nil {
		return nil, err
	}
	n := l.c.state.node(nn)
	if n == nil {
		return nil, fmt.Errorf("unknown node %q", name)
	}
	return n, nil
}

func (l *loader) rscDfn(name string) (*types.ResourceDefinition, error) {
	rn, err := types.NewResourceName(name)
	if err != nil {
		return nil, err
	}
	rd := l.c.state.rscDfn(rn)
	if rd == nil {
		return nil, fmt.Errorf("unknown resource definition %q", name)
	}
	return rd, nil
}

func (l *loader) rsc(nodeName, rscName string) (*types.Resource, error) {
	n, err := l.node(nodeName)
	if err != nil {
		return nil, err
	}
	rn, err := types.NewResourceName(rscName)
	if err != nil {
		return nil, err
	}
	r := n.Resource(rn)
	if r == nil {
		return nil, fmt.Errorf("unknown resource %s on node %s", rscName, nodeName)
	}
	return r, nil
}
