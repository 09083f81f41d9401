package satellite

import (
	"fmt"

	"github.com/cuemby/burrow/pkg/types"
	"github.com/hashicorp/go-memdb"
)

// forgetResource deletes the records of the local resource of view once
// its devices were removed, together with its definition. Nothing is
// deleted if a reconciliation revived the resource since view was taken.
func (s *State) forgetResource(view LocalResource) (bool, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	key := rscKey(view.Resource.NodeName, view.Resource.RscName)
	cur := lookup(txn, tableResource, indexKey, key)
	if cur == nil || cur.ID != view.Resource.UUID.String() {
		return false, nil
	}
	if !cur.Tombstone && !cur.Data.(types.RscData).Flags.IsSet(types.FlagDelete) {
		return false, nil
	}
	for _, v := range children(txn, tableVolume, key) {
		if err := txn.Delete(tableVolume, v); err != nil {
			return false, fmt.Errorf("failed to delete volume %s: %w", v.Key, err)
		}
	}
	if err := txn.Delete(tableResource, cur); err != nil {
		return false, fmt.Errorf("failed to delete resource %s: %w", key, err)
	}
	if err := forgetRscDfn(txn, view.Resource.RscName); err != nil {
		return false, err
	}
	if err := forgetPeerNodes(txn, view.Resource.NodeName); err != nil {
		return false, err
	}
	txn.Commit()
	return true, nil
}

// forgetRscDfn deletes a resource definition with its volume definitions
// and peer resources. The satellite only keeps them for its local resource.
func forgetRscDfn(txn *memdb.Txn, rsc string) error {
	parent := nameKey(rsc)
	for _, r := range children(txn, tableResource, parent) {
		for _, v := range children(txn, tableVolume, r.Key) {
			if err := txn.Delete(tableVolume, v); err != nil {
				return fmt.Errorf("failed to delete volume %s: %w", v.Key, err)
			}
		}
		if err := txn.Delete(tableResource, r); err != nil {
			return fmt.Errorf("failed to delete resource %s: %w", r.Key, err)
		}
	}
	for _, vd := range children(txn, tableVolDfn, parent) {
		if err := txn.Delete(tableVolDfn, vd); err != nil {
			return fmt.Errorf("failed to delete volume definition %s: %w", vd.Key, err)
		}
	}
	if rd := lookup(txn, tableRscDfn, indexKey, parent); rd != nil {
		if err := txn.Delete(tableRscDfn, rd); err != nil {
			return fmt.Errorf("failed to delete resource definition %s: %w", parent, err)
		}
	}
	return nil
}

// forgetPeerNodes deletes the nodes other than local that no resource
// refers to
func forgetPeerNodes(txn *memdb.Txn, local string) error {
	used := map[string]bool{nameKey(local): true}
	for _, r := range all(txn, tableResource) {
		used[nameKey(r.Data.(types.RscData).NodeName)] = true
	}
	for _, n := range all(txn, tableNode) {
		if used[n.Key] {
			continue
		}
		if err := txn.Delete(tableNode, n); err != nil {
			return fmt.Errorf("failed to delete node %s: %w", n.Key, err)
		}
	}
	return nil
}

// settleVolumes deletes the records of the local volumes nrs once their
// devices were removed and returns the numbers of those the controller had
// marked for deletion
func (s *State) settleVolumes(view LocalResource, nrs []int) ([]int, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	var confirmed []int
	for _, nr := range nrs {
		key := volKey(view.Resource.NodeName, view.Resource.RscName, nr)
		cur := lookup(txn, tableVolume, indexKey, key)
		if cur == nil {
			continue
		}
		flagged := cur.Data.(types.VolData).Flags.IsSet(types.FlagDelete)
		if !cur.Tombstone && !flagged {
			continue
		}
		if err := txn.Delete(tableVolume, cur); err != nil {
			return nil, fmt.Errorf("failed to delete volume %s: %w", key, err)
		}
		if flagged {
			confirmed = append(confirmed, nr)
		}
	}
	txn.Commit()
	return confirmed, nil
}

// compact deletes tombstoned records that no local device depends on and
// returns how many it deleted
func (s *State) compact(node string) (int, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	deleted := 0
	for _, table := range tables {
		for _, rec := range all(txn, table) {
			if !rec.Tombstone || waitsForDevices(txn, node, table, rec) {
				continue
			}
			if err := txn.Delete(table, rec); err != nil {
				return 0, fmt.Errorf("failed to delete %s %s: %w", table, rec.Key, err)
			}
			deleted++
		}
	}
	txn.Commit()
	return deleted, nil
}

// waitsForDevices reports whether a tombstoned record must stay until the
// device manager processed the local resource it belongs to
func waitsForDevices(txn *memdb.Txn, node, table string, rec *record) bool {
	switch table {
	case tableResource:
		return nameKey(rec.Data.(types.RscData).NodeName) == nameKey(node)
	case tableVolume:
		return nameKey(rec.Data.(types.VolData).NodeName) == nameKey(node)
	case tableRscDfn:
		return lookup(txn, tableResource, indexKey, rscKey(node, rec.Data.(types.RscDfnData).Name)) != nil
	case tableVolDfn:
		vd := rec.Data.(types.VolDfnData)
		return lookup(txn, tableVolume, indexKey, volKey(node, vd.RscName, vd.VolNr)) != nil
	}
	return false
}
