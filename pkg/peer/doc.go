/*
Package peer tracks the connected peers of a process.

A Peer is the context attached to one transport connection: the node it
belongs to, the access context its requests run under, and message and
full-sync id counters. ConnTracker implements transport.Observer and keeps
a Map of peers in step with the connections. The Map has its own mutex and
is never guarded by the controller's cluster state locks.

On the controller, closed satellite connections are handed to the
ReconnectService, which retries them with per-target exponential backoff
(github.com/cenkalti/backoff/v4) under a global attempt rate limit
(golang.org/x/time/rate).
*/
package peer
