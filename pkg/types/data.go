package types

import "github.com/google/uuid"

// The *Data records are the flattened form of the object graph. They are
// what the controller persists and what it sends to satellites.

// NodeType is the role of a node in the cluster
type NodeType string

const (
	NodeTypeController NodeType = "CONTROLLER"
	NodeTypeSatellite  NodeType = "SATELLITE"
	NodeTypeCombined   NodeType = "COMBINED"
	NodeTypeAuxiliary  NodeType = "AUXILIARY"
)

// ParseNodeType parses a node type, case-insensitively
func ParseNodeType(s string) (NodeType, bool) {
	switch t := NodeType(upper(s)); t {
	case NodeTypeController, NodeTypeSatellite, NodeTypeCombined, NodeTypeAuxiliary:
		return t, true
	}
	return "", false
}

// RunsSatellite reports whether nodes of this type run a satellite
func (t NodeType) RunsSatellite() bool {
	return t == NodeTypeSatellite || t == NodeTypeCombined
}

// TransportType is the replication transport of a resource definition
type TransportType string

const (
	TransportIP   TransportType = "IP"
	TransportRDMA TransportType = "RDMA"
	TransportRoCE TransportType = "RoCE"
)

// ParseTransportType parses a transport type, defaulting to IP
func ParseTransportType(s string) (TransportType, bool) {
	switch upper(s) {
	case "", "IP":
		return TransportIP, true
	case "RDMA":
		return TransportRDMA, true
	case "ROCE":
		return TransportRoCE, true
	}
	return "", false
}

// EncryptionType is the satellite connection encryption of a network interface
type EncryptionType string

const (
	EncryptionPlain EncryptionType = "PLAIN"
	EncryptionSSL   EncryptionType = "SSL"
)

// NetInterfaceData describes one network interface of a node
type NetInterfaceData struct {
	UUID       uuid.UUID      `json:"uuid"`
	Name       string         `json:"name"`
	Address    string         `json:"address"`
	Port       int            `json:"port,omitempty"`
	Encryption EncryptionType `json:"encryption,omitempty"`
}

// NodeData is the flattened form of a Node
type NodeData struct {
	UUID          uuid.UUID          `json:"uuid"`
	Name          string             `json:"name"`
	Type          NodeType           `json:"type"`
	Props         map[string]string  `json:"props,omitempty"`
	Flags         Flags              `json:"flags,omitempty"`
	NetInterfaces []NetInterfaceData `json:"net_interfaces,omitempty"`
}

// RscDfnData is the flattened form of a ResourceDefinition
type RscDfnData struct {
	UUID      uuid.UUID         `json:"uuid"`
	Name      string            `json:"name"`
	Port      int               `json:"port"`
	Secret    string            `json:"secret,omitempty"`
	Transport TransportType     `json:"transport"`
	Props     map[string]string `json:"props,omitempty"`
	Flags     Flags             `json:"flags,omitempty"`
}

// VolDfnData is the flattened form of a VolumeDefinition
type VolDfnData struct {
	UUID    uuid.UUID         `json:"uuid"`
	RscName string            `json:"rsc_name"`
	VolNr   int               `json:"vol_nr"`
	Minor   int               `json:"minor"`
	SizeKiB uint64            `json:"size_kib"`
	Props   map[string]string `json:"props,omitempty"`
	Flags   Flags             `json:"flags,omitempty"`
}

// RscData is the flattened form of a Resource
type RscData struct {
	UUID     uuid.UUID         `json:"uuid"`
	NodeName string            `json:"node_name"`
	RscName  string            `json:"rsc_name"`
	NodeID   int               `json:"node_id"`
	Props    map[string]string `json:"props,omitempty"`
	Flags    Flags             `json:"flags,omitempty"`
}

// VolData is the flattened form of a Volume
type VolData struct {
	UUID         uuid.UUID         `json:"uuid"`
	NodeName     string            `json:"node_name"`
	RscName      string            `json:"rsc_name"`
	VolNr        int               `json:"vol_nr"`
	StorPoolName string            `json:"stor_pool_name"`
	BlockDevice  string            `json:"block_device,omitempty"`
	MetaDisk     string            `json:"meta_disk,omitempty"`
	Props        map[string]string `json:"props,omitempty"`
	Flags        Flags             `json:"flags,omitempty"`
}

// StorPoolDfnData is the flattened form of a StorPoolDefinition
type StorPoolDfnData struct {
	UUID  uuid.UUID         `json:"uuid"`
	Name  string            `json:"name"`
	Props map[string]string `json:"props,omitempty"`
	Flags Flags             `json:"flags,omitempty"`
}

// StorPoolData is the flattened form of a StorPool
type StorPoolData struct {
	UUID     uuid.UUID         `json:"uuid"`
	NodeName string            `json:"node_name"`
	Name     string            `json:"name"`
	DfnUUID  uuid.UUID         `json:"dfn_uuid"`
	Driver   string            `json:"driver"`
	Props    map[string]string `json:"props,omitempty"`
	Flags    Flags             `json:"flags,omitempty"`
}

// NodeConnData is the flattened form of a NodeConnection
type NodeConnData struct {
	UUID      uuid.UUID         `json:"uuid"`
	NodeName1 string            `json:"node_name_1"`
	NodeName2 string            `json:"node_name_2"`
	Props     map[string]string `json:"props,omitempty"`
}

// RscConnData is the flattened form of a ResourceConnection
type RscConnData struct {
	UUID      uuid.UUID         `json:"uuid"`
	NodeName1 string            `json:"node_name_1"`
	NodeName2 string            `json:"node_name_2"`
	RscName   string            `json:"rsc_name"`
	Props     map[string]string `json:"props,omitempty"`
}

// VolConnData is the flattened form of a VolumeConnection
type VolConnData struct {
	UUID      uuid.UUID         `json:"uuid"`
	NodeName1 string            `json:"node_name_1"`
	NodeName2 string            `json:"node_name_2"`
	RscName   string            `json:"rsc_name"`
	VolNr     int               `json:"vol_nr"`
	Props     map[string]string `json:"props,omitempty"`
}
