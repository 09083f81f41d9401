package satellite

import (
	"fmt"
	"sort"

	"github.com/cuemby/burrow/pkg/types"
	"github.com/hashicorp/go-memdb"
)

// State is the satellite's local copy of the objects the controller sent
type State struct {
	db *memdb.MemDB
}

// NewState creates an empty state
func NewState() (*State, error) {
	db, err := memdb.NewMemDB(newSchema())
	if err != nil {
		return nil, fmt.Errorf("failed to create local state: %w", err)
	}
	return &State{db: db}, nil
}

// LocalResource is the view of one resource of the satellite's node that
// the device manager works from
type LocalResource struct {
	Definition        types.RscDfnData
	VolumeDefinitions []types.VolDfnData
	Resource          types.RscData
	// Volumes holds every local volume. Volumes the controller deleted or
	// no longer sends carry the DELETE flag.
	Volumes []types.VolData
	Peers   []types.RscData
	// Removed is set when the controller no longer sends the resource
	Removed bool
}

// Deleting reports whether the devices of the resource must be removed
func (r *LocalResource) Deleting() bool {
	return r.Removed || r.Resource.Flags.IsSet(types.FlagDelete)
}

// Diskless reports whether the resource has no local storage
func (r *LocalResource) Diskless() bool {
	return r.Resource.Flags.IsSet(types.FlagDiskless)
}

// Counts returns the number of live objects per table
func (s *State) Counts() map[string]int {
	txn := s.db.Txn(false)
	defer txn.Abort()
	counts := make(map[string]int, len(tables))
	for _, table := range tables {
		counts[table] = 0
		for _, rec := range all(txn, table) {
			if !rec.Tombstone {
				counts[table]++
			}
		}
	}
	return counts
}

// Tombstones returns the number of tombstoned objects waiting for cleanup
func (s *State) Tombstones() int {
	txn := s.db.Txn(false)
	defer txn.Abort()
	n := 0
	for _, table := range tables {
		for _, rec := range all(txn, table) {
			if rec.Tombstone {
				n++
			}
		}
	}
	return n
}

// Node returns a live node
func (s *State) Node(name string) (types.NodeData, bool) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	rec := lookup(txn, tableNode, indexKey, nameKey(name))
	if rec == nil || rec.Tombstone {
		return types.NodeData{}, false
	}
	return rec.Data.(types.NodeData), true
}

// StorPool returns a live storage pool of node
func (s *State) StorPool(node, name string) (types.StorPoolData, bool) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	rec := lookup(txn, tableStorPool, indexKey, storPoolKey(node, name))
	if rec == nil || rec.Tombstone {
		return types.StorPoolData{}, false
	}
	return rec.Data.(types.StorPoolData), true
}

// Resource returns the view of the resource rsc on node. Tombstoned
// resources are returned with Removed set.
func (s *State) Resource(node, rsc string) (LocalResource, bool) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	return resourceView(txn, node, rsc)
}

// Resources returns the names of every resource on node, tombstoned ones
// included, in sorted order
func (s *State) Resources(node string) []string {
	txn := s.db.Txn(false)
	defer txn.Abort()
	var names []string
	for _, rec := range all(txn, tableResource) {
		data := rec.Data.(types.RscData)
		if nameKey(data.NodeName) == nameKey(node) {
			names = append(names, data.RscName)
		}
	}
	sort.Strings(names)
	return names
}

func resourceView(txn *memdb.Txn, node, rsc string) (LocalResource, bool) {
	key := rscKey(node, rsc)
	rec := lookup(txn, tableResource, indexKey, key)
	if rec == nil {
		return LocalResource{}, false
	}
	view := LocalResource{
		Resource: rec.Data.(types.RscData),
		Removed:  rec.Tombstone,
	}
	if rd := lookup(txn, tableRscDfn, indexKey, nameKey(rsc)); rd != nil {
		view.Definition = rd.Data.(types.RscDfnData)
	}
	for _, vd := range children(txn, tableVolDfn, nameKey(rsc)) {
		if !vd.Tombstone {
			view.VolumeDefinitions = append(view.VolumeDefinitions, vd.Data.(types.VolDfnData))
		}
	}
	for _, v := range children(txn, tableVolume, key) {
		data := v.Data.(types.VolData)
		if v.Tombstone || view.Removed {
			data.Flags = data.Flags.With(types.FlagDelete)
		}
		view.Volumes = append(view.Volumes, data)
	}
	sort.Slice(view.Volumes, func(i, j int) bool { return view.Volumes[i].VolNr < view.Volumes[j].VolNr })
	for _, other := range children(txn, tableResource, nameKey(rsc)) {
		if other.Key != key && !other.Tombstone {
			view.Peers = append(view.Peers, other.Data.(types.RscData))
		}
	}
	return view, true
}

// lookup returns the record with the given index value, nil if there is
// none. Lookups on the schema's own indexes cannot fail.
func lookup(txn *memdb.Txn, table, index, value string) *record {
	raw, err := txn.First(table, index, value)
	if err != nil || raw == nil {
		return nil
	}
	return raw.(*record)
}

func children(txn *memdb.Txn, table, parent string) []*record {
	it, err := txn.Get(table, indexParent, parent)
	if err != nil {
		return nil
	}
	return collect(it)
}

func all(txn *memdb.Txn, table string) []*record {
	it, err := txn.Get(table, indexID)
	if err != nil {
		return nil
	}
	return collect(it)
}

func collect(it memdb.ResultIterator) []*record {
	var out []*record
	for obj := it.Next(); obj != nil; obj = it.Next() {
		out = append(out, obj.(*record))
	}
	return out
}
