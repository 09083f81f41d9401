package controller

import (
	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/google/uuid"
)

// The snapshot builders flatten the object graph into the messages sent to
// satellites. Callers must hold the nodes, rscDfns and storPoolDfns locks
// at least in read mode.

func volumeData(r *types.Resource) []types.VolData {
	vols := r.Volumes()
	if len(vols) == 0 {
		return nil
	}
	out := make([]types.VolData, 0, len(vols))
	for _, v := range vols {
		out = append(out, v.Data())
	}
	return out
}

func storPoolSnapshot(sp *types.StorPool) api.StorPoolSnapshot {
	return api.StorPoolSnapshot{
		StorPoolDfn: sp.Definition().Data(),
		StorPool:    sp.Data(),
	}
}

func removedStorPoolSnapshot(node types.NodeName, name types.StorPoolName, id uuid.UUID) api.StorPoolSnapshot {
	return api.StorPoolSnapshot{
		StorPoolDfn: types.StorPoolDfnData{Name: name.String()},
		StorPool:    types.StorPoolData{UUID: id, NodeName: node.String(), Name: name.String()},
		Removed:     true,
	}
}

// resourceSnapshot describes r as the satellite of r's node sees it
func resourceSnapshot(r *types.Resource) api.ResourceSnapshot {
	rd := r.Definition()
	snap := api.ResourceSnapshot{
		RscDfn:    rd.Data(),
		LocalNode: r.Node().Data(),
		LocalRsc:  r.Data(),
		LocalVols: volumeData(r),
	}
	for _, vd := range rd.VolumeDefinitions() {
		snap.VolDfns = append(snap.VolDfns, vd.Data())
	}
	for _, other := range rd.Resources() {
		if other == r {
			continue
		}
		snap.OtherRscs = append(snap.OtherRscs, api.OtherResource{
			Node: other.Node().Data(),
			Rsc:  other.Data(),
			Vols: volumeData(other),
		})
	}

	seen := make(map[string]bool)
	for _, v := range r.Volumes() {
		sp := v.StorPool()
		if sp == nil || seen[sp.Name().Key()] {
			continue
		}
		seen[sp.Name().Key()] = true
		snap.StorPools = append(snap.StorPools, storPoolSnapshot(sp))
	}
	return snap
}

func removedResourceSnapshot(node types.NodeName, rsc types.ResourceName, id uuid.UUID) api.ResourceSnapshot {
	return api.ResourceSnapshot{
		RscDfn:    types.RscDfnData{Name: rsc.String()},
		LocalNode: types.NodeData{Name: node.String()},
		LocalRsc:  types.RscData{UUID: id, NodeName: node.String(), RscName: rsc.String()},
		Removed:   true,
	}
}

// fullSync describes everything the satellite of n holds
func fullSync(syncID int64, n *types.Node) api.FullSync {
	fs := api.FullSync{
		SyncID: syncID,
		Node:   n.Data(),
	}
	for _, sp := range n.StorPools() {
		fs.StorPools = append(fs.StorPools, storPoolSnapshot(sp))
	}
	for _, r := range n.Resources() {
		fs.Resources = append(fs.Resources, resourceSnapshot(r))
	}
	return fs
}
