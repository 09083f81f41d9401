package api

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/burrow/pkg/types"
	"github.com/google/uuid"
)

// MessageType names the payload of a peer message
type MessageType string

const (
	// Controller to satellite
	MsgApplyResource MessageType = "ApplyResource"
	MsgApplyStorPool MessageType = "ApplyStorPool"
	MsgApplyFullSync MessageType = "ApplyFullSync"

	// Satellite to controller
	MsgRequestResource       MessageType = "RequestResource"
	MsgRequestStorPool       MessageType = "RequestStorPool"
	MsgNotifyResourceDeleted MessageType = "NotifyResourceDeleted"
	MsgNotifyFullSyncApplied MessageType = "NotifyFullSyncApplied"
)

// Message is the envelope of every peer message
type Message struct {
	ID      int64           `json:"id"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage encodes payload into a message
func NewMessage(id int64, t MessageType, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", t, err)
	}
	return &Message{ID: id, Type: t, Payload: data}, nil
}

// Decode decodes the payload into v
func (m *Message) Decode(v any) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", m.Type, err)
	}
	return nil
}

// OtherResource is a peer resource of a ResourceSnapshot, with its node
type OtherResource struct {
	Node types.NodeData  `json:"node"`
	Rsc  types.RscData   `json:"rsc"`
	Vols []types.VolData `json:"vols,omitempty"`
}

// ResourceSnapshot is everything a satellite needs to deploy one resource:
// the definition, the local resource and the peer resources. Removed is
// set when the controller no longer has the resource; only the names are
// filled in then.
type ResourceSnapshot struct {
	RscDfn    types.RscDfnData   `json:"rsc_dfn"`
	VolDfns   []types.VolDfnData `json:"vol_dfns,omitempty"`
	LocalNode types.NodeData     `json:"local_node"`
	LocalRsc  types.RscData      `json:"local_rsc"`
	LocalVols []types.VolData    `json:"local_vols,omitempty"`
	OtherRscs []OtherResource    `json:"other_rscs,omitempty"`
	StorPools []StorPoolSnapshot `json:"stor_pools,omitempty"`
	Removed   bool               `json:"removed,omitempty"`
}

// StorPoolSnapshot carries one storage pool and its definition
type StorPoolSnapshot struct {
	StorPoolDfn types.StorPoolDfnData `json:"stor_pool_dfn"`
	StorPool    types.StorPoolData    `json:"stor_pool"`
	Removed     bool                  `json:"removed,omitempty"`
}

// FullSync is the complete state of one satellite
type FullSync struct {
	SyncID    int64              `json:"sync_id"`
	Node      types.NodeData     `json:"node"`
	StorPools []StorPoolSnapshot `json:"stor_pools,omitempty"`
	Resources []ResourceSnapshot `json:"resources,omitempty"`
}

// ResourceRequest asks the controller for the current snapshot of a resource
type ResourceRequest struct {
	NodeName string    `json:"node_name"`
	RscName  string    `json:"rsc_name"`
	RscUUID  uuid.UUID `json:"rsc_uuid"`
}

// StorPoolRequest asks the controller for the current state of a storage pool
type StorPoolRequest struct {
	NodeName     string    `json:"node_name"`
	StorPoolName string    `json:"stor_pool_name"`
	StorPoolUUID uuid.UUID `json:"stor_pool_uuid"`
}

// ResourceDeleted confirms that a satellite removed a resource marked for
// deletion. A non-empty VolNrs confirms only the removal of those volumes.
type ResourceDeleted struct {
	NodeName string    `json:"node_name"`
	RscName  string    `json:"rsc_name"`
	RscUUID  uuid.UUID `json:"rsc_uuid"`
	VolNrs   []int     `json:"vol_nrs,omitempty"`
}

// FullSyncApplied confirms that a satellite applied a full sync
type FullSyncApplied struct {
	SyncID  int64  `json:"sync_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
