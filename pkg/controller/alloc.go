package controller

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/cuemby/burrow/pkg/types"
)

// Auto-allocation ranges
const (
	PortRangeMin  = 7000
	PortRangeMax  = 7999
	MinorRangeMin = 1000
	MinorRangeMax = types.MinorNumberMax

	secretBytes = 15
)

// generateSecret returns a random shared secret for a resource definition
func generateSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate shared secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// usedPorts returns the ports of all resource definitions. Requires rscDfns lock.
func (s *ClusterState) usedPorts() map[types.TCPPort]*types.ResourceDefinition {
	used := make(map[types.TCPPort]*types.ResourceDefinition, len(s.rscDfns))
	for _, rd := range s.rscDfns {
		used[rd.Port()] = rd
	}
	return used
}

// usedMinors returns the minor numbers of all volume definitions. Requires rscDfns lock.
func (s *ClusterState) usedMinors() map[types.MinorNumber]*types.VolumeDefinition {
	used := make(map[types.MinorNumber]*types.VolumeDefinition)
	for _, rd := range s.rscDfns {
		for _, vd := range rd.VolumeDefinitions() {
			used[vd.Minor()] = vd
		}
	}
	return used
}

func allocatePort(used map[types.TCPPort]*types.ResourceDefinition) (types.TCPPort, bool) {
	for p := PortRangeMin; p <= PortRangeMax; p++ {
		if _, ok := used[types.TCPPort(p)]; !ok {
			return types.TCPPort(p), true
		}
	}
	return 0, false
}

func allocateMinor(used map[types.MinorNumber]*types.VolumeDefinition) (types.MinorNumber, bool) {
	for m := MinorRangeMin; m <= MinorRangeMax; m++ {
		if _, ok := used[types.MinorNumber(m)]; !ok {
			return types.MinorNumber(m), true
		}
	}
	return 0, false
}

// allocateNodeID returns the lowest node id unused within the definition
func allocateNodeID(rd *types.ResourceDefinition) (types.NodeID, bool) {
	used := make(map[types.NodeID]bool)
	for _, r := range rd.Resources() {
		used[r.NodeID()] = true
	}
	for id := types.NodeIDMin; id <= types.NodeIDMax; id++ {
		if !used[types.NodeID(id)] {
			return types.NodeID(id), true
		}
	}
	return 0, false
}

// allocateVolumeNumber returns the lowest volume number unused within the definition
func allocateVolumeNumber(rd *types.ResourceDefinition, taken map[types.VolumeNumber]bool) (types.VolumeNumber, bool) {
	for nr := types.VolumeNumberMin; nr <= types.VolumeNumberMax; nr++ {
		vnr := types.VolumeNumber(nr)
		if rd.VolumeDefinition(vnr) == nil && !taken[vnr] {
			return vnr, true
		}
	}
	return 0, false
}
