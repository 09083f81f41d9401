/*
Package events provides an in-process publish/subscribe broker for cluster
events.

The controller publishes one event per committed mutation (node.created,
rscdfn.deleted, resource.purged, ...) and the connection tracker publishes
peer.connected and peer.disconnected. Subscribers receive events on a
buffered channel; slow subscribers miss events instead of blocking the
broker.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	for ev := range sub {
		log.Info(string(ev.Type))
	}
*/
package events
