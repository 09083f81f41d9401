/*
Package transport carries peer messages between the controller and the
satellites over a gRPC bidirectional stream.

The service "burrow.Peer" has one streaming method, Exchange. Messages are
api.Message values encoded with a JSON codec registered under the "json"
content subtype, so no generated code is involved.

The controller dials satellites (Dialer); each satellite runs a Server.
Both ends wrap the stream in a Connection. Send only queues the message and
never blocks, so it is safe to call while holding cluster state locks; a
writer goroutine drains the queue. Received messages are dispatched to a
MessageHandler from the reader goroutine, one at a time per connection.

An Observer is told when connections are established and when they close.
*/
package transport
