package satellite

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
)

// Result counts what one reconciliation changed
type Result struct {
	Created    int
	Updated    int
	Tombstoned int
	// Resources holds the names of the local resources that changed, sorted
	Resources []string
}

// Changes returns the total number of changed objects
func (r Result) Changes() int { return r.Created + r.Updated + r.Tombstoned }

// reconcileTx applies snapshots inside one memdb write transaction
type reconcileTx struct {
	txn     *memdb.Txn
	node    string
	result  Result
	seen    map[string]map[string]bool
	touched map[string]string
}

func (s *State) begin(node string) *reconcileTx {
	return &reconcileTx{
		txn:     s.db.Txn(true),
		node:    node,
		seen:    make(map[string]map[string]bool),
		touched: make(map[string]string),
	}
}

// apply runs fn in a write transaction that is committed only if fn
// succeeds. Objects are matched by UUID as described on DeployResource.
func (s *State) apply(node string, fn func(tx *reconcileTx) error) (Result, error) {
	tx := s.begin(node)
	if err := fn(tx); err != nil {
		tx.txn.Abort()
		return Result{}, err
	}
	tx.txn.Commit()

	res := tx.result
	for _, name := range tx.touched {
		res.Resources = append(res.Resources, name)
	}
	sort.Strings(res.Resources)
	return res, nil
}

// DeployResource applies the snapshot of one resource of node. Every object
// is looked up by UUID first; a UUID known under another natural key, or a
// natural key known under another UUID, fails with *DivergentUUIDsError and
// nothing is applied. Objects of the resource that the snapshot no longer
// contains are tombstoned.
func (s *State) DeployResource(node string, snap api.ResourceSnapshot) (Result, error) {
	return s.apply(node, func(tx *reconcileTx) error {
		return tx.deployResource(snap)
	})
}

// DeployStorPool applies the snapshot of one storage pool of node
func (s *State) DeployStorPool(node string, snap api.StorPoolSnapshot) (Result, error) {
	return s.apply(node, func(tx *reconcileTx) error {
		return tx.deployStorPool(snap)
	})
}

// ApplyFullSync replaces everything known about node with fs. Local
// resources, storage pools and peer objects absent from fs are tombstoned.
func (s *State) ApplyFullSync(node string, fs api.FullSync) (Result, error) {
	return s.apply(node, func(tx *reconcileTx) error {
		return tx.fullSync(fs)
	})
}

func (tx *reconcileTx) markSeen(table, key string) {
	if tx.seen[table] == nil {
		tx.seen[table] = make(map[string]bool)
	}
	tx.seen[table][key] = true
}

func (tx *reconcileTx) wasSeen(table, key string) bool { return tx.seen[table][key] }

// put creates or updates one object after checking its identity
func (tx *reconcileTx) put(table string, id uuid.UUID, key, parent string, data any) error {
	tx.markSeen(table, key)

	if cur := lookup(tx.txn, table, indexID, id.String()); cur != nil {
		if cur.Key != key {
			return &DivergentUUIDsError{Table: table, Key: key, LocalKey: cur.Key, LocalUUID: id, RemoteUUID: id}
		}
		if !cur.Tombstone && cur.Parent == parent && reflect.DeepEqual(cur.Data, data) {
			return nil
		}
		tx.result.Updated++
	} else {
		if cur := lookup(tx.txn, table, indexKey, key); cur != nil {
			return &DivergentUUIDsError{Table: table, Key: key, LocalKey: cur.Key, LocalUUID: uuid.MustParse(cur.ID), RemoteUUID: id}
		}
		tx.result.Created++
	}

	rec := &record{ID: id.String(), Key: key, Parent: parent, Data: data}
	if err := tx.txn.Insert(table, rec); err != nil {
		return fmt.Errorf("failed to store %s %s: %w", table, key, err)
	}
	return nil
}

func (tx *reconcileTx) tombstone(table string, cur *record) error {
	if latest := lookup(tx.txn, table, indexID, cur.ID); latest != nil {
		cur = latest
	}
	if cur.Tombstone {
		return nil
	}
	next := *cur
	next.Tombstone = true
	if err := tx.txn.Insert(table, &next); err != nil {
		return fmt.Errorf("failed to tombstone %s %s: %w", table, cur.Key, err)
	}
	tx.result.Tombstoned++
	return nil
}

// tombstoneResource tombstones a resource record and its volumes
func (tx *reconcileTx) tombstoneResource(cur *record) error {
	if err := tx.tombstone(tableResource, cur); err != nil {
		return err
	}
	for _, v := range children(tx.txn, tableVolume, cur.Key) {
		if err := tx.tombstone(tableVolume, v); err != nil {
			return err
		}
	}
	return tx.releaseNode(cur.Data.(types.RscData).NodeName)
}

// releaseNode tombstones a peer node no live resource refers to anymore
func (tx *reconcileTx) releaseNode(node string) error {
	key := nameKey(node)
	if key == nameKey(tx.node) || tx.wasSeen(tableNode, key) {
		return nil
	}
	for _, r := range all(tx.txn, tableResource) {
		if !r.Tombstone && nameKey(r.Data.(types.RscData).NodeName) == key {
			return nil
		}
	}
	if n := lookup(tx.txn, tableNode, indexKey, key); n != nil {
		return tx.tombstone(tableNode, n)
	}
	return nil
}

// tombstoneRscDfn tombstones a resource definition with everything below it
func (tx *reconcileTx) tombstoneRscDfn(cur *record) error {
	if err := tx.tombstone(tableRscDfn, cur); err != nil {
		return err
	}
	for _, vd := range children(tx.txn, tableVolDfn, cur.Key) {
		if err := tx.tombstone(tableVolDfn, vd); err != nil {
			return err
		}
	}
	for _, r := range children(tx.txn, tableResource, cur.Key) {
		if err := tx.tombstoneResource(r); err != nil {
			return err
		}
	}
	return nil
}

// tombstoneUnseen tombstones the children of parent this transaction did
// not put
func (tx *reconcileTx) tombstoneUnseen(table, parent string) error {
	for _, rec := range children(tx.txn, table, parent) {
		if tx.wasSeen(table, rec.Key) {
			continue
		}
		var err error
		if table == tableResource {
			err = tx.tombstoneResource(rec)
		} else {
			err = tx.tombstone(table, rec)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (tx *reconcileTx) checkLocalNode(object, node string) error {
	if nameKey(node) != nameKey(tx.node) {
		return divergent(object, "node %q is not the local node %q", node, tx.node)
	}
	return nil
}

func (tx *reconcileTx) putNode(n types.NodeData) error {
	if n.Name == "" {
		return divergent("node", "missing name")
	}
	return tx.put(tableNode, n.UUID, nameKey(n.Name), "", n)
}

func (tx *reconcileTx) deployResource(snap api.ResourceSnapshot) error {
	name := snap.RscDfn.Name
	object := "resource " + name
	if name == "" {
		return divergent("resource", "missing resource name")
	}
	if err := tx.checkLocalNode(object, snap.LocalNode.Name); err != nil {
		return err
	}
	if err := tx.checkLocalNode(object, snap.LocalRsc.NodeName); err != nil {
		return err
	}
	if !strings.EqualFold(snap.LocalRsc.RscName, name) {
		return divergent(object, "local resource belongs to %q", snap.LocalRsc.RscName)
	}

	before := tx.result.Changes()
	var err error
	if snap.Removed {
		err = tx.removeResource(snap)
	} else {
		err = tx.putResource(snap)
	}
	if err != nil {
		return err
	}
	if tx.result.Changes() > before {
		tx.touched[nameKey(name)] = name
	}
	return nil
}

// removeResource tombstones the local resource and its definition. A
// removal naming another UUID than the local one is stale and ignored.
func (tx *reconcileTx) removeResource(snap api.ResourceSnapshot) error {
	cur := lookup(tx.txn, tableResource, indexKey, rscKey(tx.node, snap.RscDfn.Name))
	if cur == nil || cur.Tombstone {
		return nil
	}
	if snap.LocalRsc.UUID != uuid.Nil && cur.ID != snap.LocalRsc.UUID.String() {
		return nil
	}
	if rd := lookup(tx.txn, tableRscDfn, indexKey, nameKey(snap.RscDfn.Name)); rd != nil {
		return tx.tombstoneRscDfn(rd)
	}
	return tx.tombstoneResource(cur)
}

func (tx *reconcileTx) putResource(snap api.ResourceSnapshot) error {
	name := snap.RscDfn.Name
	object := "resource " + name
	rsc := nameKey(name)

	for _, sp := range snap.StorPools {
		if sp.Removed {
			return divergent(object, "storage pool %q is marked removed", sp.StorPool.Name)
		}
		if err := tx.deployStorPool(sp); err != nil {
			return err
		}
	}
	if err := tx.putNode(snap.LocalNode); err != nil {
		return err
	}
	if err := tx.put(tableRscDfn, snap.RscDfn.UUID, rsc, "", snap.RscDfn); err != nil {
		return err
	}
	for _, vd := range snap.VolDfns {
		if !strings.EqualFold(vd.RscName, name) {
			return divergent(object, "volume definition %d belongs to %q", vd.VolNr, vd.RscName)
		}
		if err := tx.put(tableVolDfn, vd.UUID, volDfnKey(name, vd.VolNr), rsc, vd); err != nil {
			return err
		}
	}
	if err := tx.tombstoneUnseen(tableVolDfn, rsc); err != nil {
		return err
	}

	if err := tx.putRscVolumes(name, snap.LocalRsc, snap.LocalVols, true); err != nil {
		return err
	}
	for _, other := range snap.OtherRscs {
		if nameKey(other.Node.Name) == nameKey(tx.node) {
			return divergent(object, "peer resource on the local node")
		}
		if err := tx.putNode(other.Node); err != nil {
			return err
		}
		if err := tx.putRscVolumes(name, other.Rsc, other.Vols, false); err != nil {
			return err
		}
	}
	return tx.tombstoneUnseen(tableResource, rsc)
}

// putRscVolumes puts one resource of rsc and its volumes. Volumes of the
// local resource must reference a known volume definition and, unless the
// resource is diskless, a known local storage pool.
func (tx *reconcileTx) putRscVolumes(rsc string, r types.RscData, vols []types.VolData, local bool) error {
	object := "resource " + rsc
	if !strings.EqualFold(r.RscName, rsc) {
		return divergent(object, "resource on node %q belongs to %q", r.NodeName, r.RscName)
	}
	key := rscKey(r.NodeName, rsc)
	if err := tx.put(tableResource, r.UUID, key, nameKey(rsc), r); err != nil {
		return err
	}
	for _, v := range vols {
		if nameKey(v.NodeName) != nameKey(r.NodeName) || !strings.EqualFold(v.RscName, rsc) {
			return divergent(object, "volume %d belongs to %s/%s", v.VolNr, v.NodeName, v.RscName)
		}
		if !tx.wasSeen(tableVolDfn, volDfnKey(rsc, v.VolNr)) {
			return divergent(object, "volume %d has no volume definition", v.VolNr)
		}
		if local && !r.Flags.IsSet(types.FlagDiskless) && v.StorPoolName != "" {
			sp := lookup(tx.txn, tableStorPool, indexKey, storPoolKey(tx.node, v.StorPoolName))
			if sp == nil || sp.Tombstone {
				return divergent(object, "volume %d uses unknown storage pool %q", v.VolNr, v.StorPoolName)
			}
		}
		if err := tx.put(tableVolume, v.UUID, volKey(r.NodeName, rsc, v.VolNr), key, v); err != nil {
			return err
		}
	}
	return tx.tombstoneUnseen(tableVolume, key)
}

func (tx *reconcileTx) deployStorPool(snap api.StorPoolSnapshot) error {
	sp := snap.StorPool
	object := "storage pool " + sp.Name
	if sp.Name == "" {
		return divergent("storage pool", "missing name")
	}
	if err := tx.checkLocalNode(object, sp.NodeName); err != nil {
		return err
	}
	key := storPoolKey(tx.node, sp.Name)

	if snap.Removed {
		cur := lookup(tx.txn, tableStorPool, indexKey, key)
		if cur == nil || (sp.UUID != uuid.Nil && cur.ID != sp.UUID.String()) {
			return nil
		}
		return tx.tombstone(tableStorPool, cur)
	}

	dfn := snap.StorPoolDfn
	if !strings.EqualFold(dfn.Name, sp.Name) || dfn.UUID != sp.DfnUUID {
		return divergent(object, "definition %q (%s) does not match", dfn.Name, dfn.UUID)
	}
	if err := tx.put(tableStorPoolDfn, dfn.UUID, nameKey(dfn.Name), "", dfn); err != nil {
		return err
	}
	return tx.put(tableStorPool, sp.UUID, key, nameKey(tx.node), sp)
}

func (tx *reconcileTx) fullSync(fs api.FullSync) error {
	if err := tx.checkLocalNode("full sync", fs.Node.Name); err != nil {
		return err
	}
	if err := tx.replaceRecreatedNode(fs.Node); err != nil {
		return err
	}
	if err := tx.putNode(fs.Node); err != nil {
		return err
	}
	for _, sp := range fs.StorPools {
		if sp.Removed {
			return divergent("full sync", "storage pool %q is marked removed", sp.StorPool.Name)
		}
		if err := tx.deployStorPool(sp); err != nil {
			return err
		}
	}
	for _, snap := range fs.Resources {
		if snap.Removed {
			return divergent("full sync", "resource %q is marked removed", snap.RscDfn.Name)
		}
		if err := tx.deployResource(snap); err != nil {
			return err
		}
	}

	if err := tx.tombstoneUnseen(tableStorPool, nameKey(tx.node)); err != nil {
		return err
	}
	for _, rd := range all(tx.txn, tableRscDfn) {
		if tx.wasSeen(tableRscDfn, rd.Key) || rd.Tombstone {
			continue
		}
		before := tx.result.Changes()
		if err := tx.tombstoneRscDfn(rd); err != nil {
			return err
		}
		if tx.result.Changes() > before {
			name := rd.Data.(types.RscDfnData).Name
			tx.touched[rd.Key] = name
		}
	}
	for _, dfn := range all(tx.txn, tableStorPoolDfn) {
		if !tx.wasSeen(tableStorPoolDfn, dfn.Key) {
			if err := tx.tombstone(tableStorPoolDfn, dfn); err != nil {
				return err
			}
		}
	}
	for _, n := range all(tx.txn, tableNode) {
		if !tx.wasSeen(tableNode, n.Key) {
			if err := tx.tombstone(tableNode, n); err != nil {
				return err
			}
		}
	}
	return nil
}

// replaceRecreatedNode drops the local node record when the controller
// sends the local node under a new UUID and no live local resource refers
// to the old one. This is how a satellite follows its node being deleted
// and created again.
func (tx *reconcileTx) replaceRecreatedNode(n types.NodeData) error {
	cur := lookup(tx.txn, tableNode, indexKey, nameKey(n.Name))
	if cur == nil || cur.ID == n.UUID.String() {
		return nil
	}
	for _, r := range all(tx.txn, tableResource) {
		if !r.Tombstone && nameKey(r.Data.(types.RscData).NodeName) == cur.Key {
			return nil
		}
	}
	if err := tx.txn.Delete(tableNode, cur); err != nil {
		return fmt.Errorf("failed to replace node %s: %w", cur.Key, err)
	}
	return nil
}
