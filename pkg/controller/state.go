package controller

import (
	"sort"
	"sync"

	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/types"
)

// Protection paths of the top-level collections
const (
	NodesPath        = "/sys/controller/nodes"
	RscDfnsPath      = "/sys/controller/rscDfns"
	StorPoolDfnsPath = "/sys/controller/storPoolDfns"
)

// ClusterState is the controller's authoritative object graph: three
// collections, each guarded by its own lock and its own protection.
// The maps are keyed by the upper-case name key.
type ClusterState struct {
	reconfMu sync.RWMutex

	nodesMu        sync.RWMutex
	rscDfnsMu      sync.RWMutex
	storPoolDfnsMu sync.RWMutex

	nodes        map[string]*types.Node
	rscDfns      map[string]*types.ResourceDefinition
	storPoolDfns map[string]*types.StorPoolDefinition

	nodesProt        *security.ObjectProtection
	rscDfnsProt      *security.ObjectProtection
	storPoolDfnsProt *security.ObjectProtection

	traceMu sync.Mutex
	trace   LockTraceFunc
}

// NewClusterState creates an empty cluster state
func NewClusterState() *ClusterState {
	return &ClusterState{
		nodes:        make(map[string]*types.Node),
		rscDfns:      make(map[string]*types.ResourceDefinition),
		storPoolDfns: make(map[string]*types.StorPoolDefinition),
	}
}

// NodesProtection returns the protection of the node collection
func (s *ClusterState) NodesProtection() *security.ObjectProtection { return s.nodesProt }

// RscDfnsProtection returns the protection of the resource definition collection
func (s *ClusterState) RscDfnsProtection() *security.ObjectProtection { return s.rscDfnsProt }

// StorPoolDfnsProtection returns the protection of the storage pool definition collection
func (s *ClusterState) StorPoolDfnsProtection() *security.ObjectProtection {
	return s.storPoolDfnsProt
}

// The lookup helpers return nil when the object does not exist. Callers
// must hold the collection's lock.

func (s *ClusterState) node(name types.NodeName) *types.Node { return s.nodes[name.Key()] }

func (s *ClusterState) rscDfn(name types.ResourceName) *types.ResourceDefinition {
	return s.rscDfns[name.Key()]
}

func (s *ClusterState) storPoolDfn(name types.StorPoolName) *types.StorPoolDefinition {
	return s.storPoolDfns[name.Key()]
}

func (s *ClusterState) sortedNodes() []*types.Node {
	out := make([]*types.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name().Key() < out[j].Name().Key() })
	return out
}

func (s *ClusterState) sortedRscDfns() []*types.ResourceDefinition {
	out := make([]*types.ResourceDefinition, 0, len(s.rscDfns))
	for _, d := range s.rscDfns {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name().Key() < out[j].Name().Key() })
	return out
}

func (s *ClusterState) sortedStorPoolDfns() []*types.StorPoolDefinition {
	out := make([]*types.StorPoolDefinition, 0, len(s.storPoolDfns))
	for _, d := range s.storPoolDfns {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name().Key() < out[j].Name().Key() })
	return out
}

// Node returns a copy-free view of one node for read-only callers. It
// takes the node lock itself; nil means not found.
func (s *ClusterState) Node(name types.NodeName) *types.Node {
	release := s.Lock(LockSpec{Nodes: ModeRead})
	defer release()
	return s.node(name)
}

// ResourceDefinition looks up a resource definition; nil means not found
func (s *ClusterState) ResourceDefinition(name types.ResourceName) *types.ResourceDefinition {
	release := s.Lock(LockSpec{RscDfns: ModeRead})
	defer release()
	return s.rscDfn(name)
}

// StorPoolDefinition looks up a storage pool definition; nil means not found
func (s *ClusterState) StorPoolDefinition(name types.StorPoolName) *types.StorPoolDefinition {
	release := s.Lock(LockSpec{StorPoolDfns: ModeRead})
	defer release()
	return s.storPoolDfn(name)
}

// Counts returns the number of objects per kind
func (s *ClusterState) Counts() map[string]int {
	release := s.Lock(LockSpec{Nodes: ModeRead, RscDfns: ModeRead, StorPoolDfns: ModeRead})
	defer release()

	counts := map[string]int{
		"node":          len(s.nodes),
		"rsc_dfn":       len(s.rscDfns),
		"stor_pool_dfn": len(s.storPoolDfns),
		"resource":      0,
		"volume":        0,
		"stor_pool":     0,
	}
	for _, n := range s.nodes {
		counts["resource"] += n.ResourceCount()
		counts["stor_pool"] += len(n.StorPools())
		for _, r := range n.Resources() {
			counts["volume"] += len(r.Volumes())
		}
	}
	return counts
}
