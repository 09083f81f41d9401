/*
Package satellite implements the agent that runs on every storage node.

The controller pushes snapshots over the peer connection; the satellite
applies them to a local go-memdb database and hands the resources that
changed to a DeviceManager.

# Local state

Seven tables mirror the controller's object graph as seen from one node:

	node            the local node and the nodes of peer resources
	rsc_dfn         resource definitions with a local resource
	vol_dfn         their volume definitions
	resource        the local resource and its peers
	volume          their volumes
	stor_pool_dfn   definitions of the local storage pools
	stor_pool       the local storage pools

Every table has a unique "id" index on the object UUID and a unique "key"
index on the natural key (NODE, NODE/RSC, NODE/RSC/VOLNR, ...).

# Reconciliation

One snapshot is applied in one write transaction. Each object is looked up
by UUID first; a UUID that is known under another natural key, or a natural
key known under another UUID, fails the whole snapshot with a
*DivergentUUIDsError. A snapshot for another node fails with a
*DivergentDataError. Objects the snapshot no longer contains are
tombstoned, and the Result counts created, updated and tombstoned objects:
applying the same snapshot twice reports no changes the second time.

# Devices

After commit the device loop processes the changed resources:

	DELETE flag or tombstoned     DeviceManager.Remove, records dropped,
	                              NotifyResourceDeleted for DELETE
	otherwise                     DeviceManager.Deploy; volumes flagged
	                              DELETE are confirmed with their VolNrs

Failed device work is reported through pkg/errorreport and retried on the
next tick. Nothing is ever NACKed to the controller.

# Usage

	sat, _ := satellite.New(satellite.Config{NodeName: "alpha"})
	tracker := peer.NewConnTracker(sat.Peers(), nil, sat)
	server := transport.NewServer(creds, tracker, sat)
	sat.Start()
	defer sat.Stop()

# Metrics

	burrow_reconciliations_total{kind, outcome}
	burrow_reconcile_changes_total
	burrow_divergences_total{kind}
	burrow_reconcile_duration_seconds
*/
package satellite
