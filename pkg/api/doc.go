/*
Package api defines what burrow processes exchange: the peer message
envelope with its payloads, and the HTTP status endpoints.

# Peer messages

Every message is a Message{ID, Type, Payload} with a JSON payload.

Controller to satellite:
  - ApplyResource: ResourceSnapshot of one resource on the satellite's node
  - ApplyStorPool: StorPoolSnapshot of one storage pool on the node
  - ApplyFullSync: FullSync with the node, all its pools and resources

Satellite to controller:
  - RequestResource: ResourceRequest, answered with ApplyResource
  - RequestStorPool: StorPoolRequest, answered with ApplyStorPool
  - NotifyResourceDeleted: ResourceDeleted, lets the controller purge a
    resource that was marked for deletion
  - NotifyFullSyncApplied: FullSyncApplied

Snapshots carry the types.*Data records including each object's UUID; the
satellite matches local objects by UUID.

# Status endpoints

StatusServer serves /health, /ready and /live from pkg/metrics, /metrics
for Prometheus, and /reports with the recent error reports.
*/
package api
