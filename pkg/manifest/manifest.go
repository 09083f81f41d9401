package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cuemby/burrow/pkg/apicallrc"
	"github.com/cuemby/burrow/pkg/controller"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/peer"
	"github.com/cuemby/burrow/pkg/security"
	"gopkg.in/yaml.v3"
)

// Manifest is a declarative description of cluster objects
type Manifest struct {
	Nodes               []controller.NodeSpec        `yaml:"nodes"`
	StorPoolDefinitions []controller.StorPoolDfnSpec `yaml:"storage_pool_definitions"`
	StorPools           []controller.StorPoolSpec    `yaml:"storage_pools"`
	ResourceDefinitions []controller.RscDfnSpec      `yaml:"resource_definitions"`
	Resources           []controller.RscSpec         `yaml:"resources"`
	NodeConnections     []controller.ConnSpec        `yaml:"node_connections"`
	ResourceConnections []controller.ConnSpec        `yaml:"resource_connections"`
	VolumeConnections   []controller.ConnSpec        `yaml:"volume_connections"`
}

// Target is the controller side a manifest is applied to
type Target interface {
	CreateNode(accCtx *security.AccessContext, client *peer.Peer, spec controller.NodeSpec) *apicallrc.ApiCallRc
	CreateStorPoolDefinition(accCtx *security.AccessContext, client *peer.Peer, spec controller.StorPoolDfnSpec) *apicallrc.ApiCallRc
	CreateStorPool(accCtx *security.AccessContext, client *peer.Peer, spec controller.StorPoolSpec) *apicallrc.ApiCallRc
	CreateResourceDefinition(accCtx *security.AccessContext, client *peer.Peer, spec controller.RscDfnSpec) *apicallrc.ApiCallRc
	CreateResource(accCtx *security.AccessContext, client *peer.Peer, spec controller.RscSpec) *apicallrc.ApiCallRc
	CreateNodeConnection(accCtx *security.AccessContext, client *peer.Peer, spec controller.ConnSpec) *apicallrc.ApiCallRc
	CreateResourceConnection(accCtx *security.AccessContext, client *peer.Peer, spec controller.ConnSpec) *apicallrc.ApiCallRc
	CreateVolumeConnection(accCtx *security.AccessContext, client *peer.Peer, spec controller.ConnSpec) *apicallrc.ApiCallRc
}

// Summary is the outcome of applying a manifest
type Summary struct {
	Created int
	// Skipped counts objects that already existed
	Skipped int
	Failed  int
	// Errors holds the error entries of the failed objects
	Errors []*apicallrc.RcEntry
}

// Load reads and parses a manifest file
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(data)
}

// Parse parses a YAML manifest. Unknown fields are rejected and an empty
// document yields an empty manifest.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// Apply creates the objects of m in dependency order. Objects that already
// exist are skipped, so applying the same manifest twice is harmless. Apply
// continues after failures and returns an error if any object failed.
func Apply(t Target, accCtx *security.AccessContext, m *Manifest) (*Summary, error) {
	logger := log.WithComponent("manifest")
	sum := &Summary{}

	record := func(kind, name string, rc *apicallrc.ApiCallRc) {
		switch {
		case !rc.HasErrors():
			sum.Created++
			logger.Info().Str("kind", kind).Str("name", name).Msg("Created")
		case alreadyExists(rc):
			sum.Skipped++
			logger.Debug().Str("kind", kind).Str("name", name).Msg("Already exists, skipping")
		default:
			sum.Failed++
			for _, e := range rc.Entries {
				if e.IsError() {
					sum.Errors = append(sum.Errors, e)
					logger.Error().Str("kind", kind).Str("name", name).Str("entry", e.String()).Msg("Failed to create")
				}
			}
		}
	}

	for _, spec := range m.Nodes {
		record("node", spec.Name, t.CreateNode(accCtx, nil, spec))
	}
	for _, spec := range m.StorPoolDefinitions {
		record("stor_pool_dfn", spec.Name, t.CreateStorPoolDefinition(accCtx, nil, spec))
	}
	for _, spec := range m.StorPools {
		record("stor_pool", spec.NodeName+"/"+spec.StorPoolName, t.CreateStorPool(accCtx, nil, spec))
	}
	for _, spec := range m.ResourceDefinitions {
		record("rsc_dfn", spec.Name, t.CreateResourceDefinition(accCtx, nil, spec))
	}
	for _, spec := range m.Resources {
		record("resource", spec.NodeName+"/"+spec.RscName, t.CreateResource(accCtx, nil, spec))
	}
	for _, spec := range m.NodeConnections {
		record("node_conn", spec.Node1+"/"+spec.Node2, t.CreateNodeConnection(accCtx, nil, spec))
	}
	for _, spec := range m.ResourceConnections {
		record("rsc_conn", spec.Node1+"/"+spec.Node2+"/"+spec.RscName, t.CreateResourceConnection(accCtx, nil, spec))
	}
	for _, spec := range m.VolumeConnections {
		record("vol_conn", fmt.Sprintf("%s/%s/%s/%d", spec.Node1, spec.Node2, spec.RscName, spec.VolNr),
			t.CreateVolumeConnection(accCtx, nil, spec))
	}

	if sum.Failed > 0 {
		return sum, fmt.Errorf("failed to apply manifest: %d of %d objects failed",
			sum.Failed, sum.Created+sum.Skipped+sum.Failed)
	}
	return sum, nil
}

// alreadyExists reports whether the only error of rc is that the object exists
func alreadyExists(rc *apicallrc.ApiCallRc) bool {
	found := false
	for _, e := range rc.Entries {
		if !e.IsError() {
			continue
		}
		if apicallrc.Low(e.ReturnCode) != apicallrc.FailExists {
			return false
		}
		found = true
	}
	return found
}
