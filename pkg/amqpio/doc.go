// Package amqpio defines the AMQP capabilities the device transport consumes
// and provides their implementation on github.com/Azure/go-amqp.
//
// The contracts mirror the layering of a device connection:
//
//	TLSIO -> SASL IO (token based credentials only) -> Connection -> Session
//	      -> Link -> MessageSender | MessageReceiver
//	                 Session -> CBS
//
// Every constructor and operation returns immediately. Progress, completion
// callbacks and state-change notifications are delivered from
// Connection.DoWork on the caller's goroutine, so a single-threaded polling
// loop drives everything.
//
// # go-amqp Implementation
//
// go-amqp exposes blocking, context-aware calls. GoAMQP runs them on small
// serial workers (one per connection and one per endpoint) and posts their
// outcomes to a per-connection mailbox which DoWork drains. Destroy never
// blocks: teardown is queued behind any in-flight operation and every
// operation is bounded by a timeout. Wait blocks until every worker has
// exited, for hosts that need a clean shutdown.
//
// # WebSockets
//
// With WebSockets enabled the AMQP connection is tunnelled over a secure
// WebSocket on port 443 using the AMQPWSB10 subprotocol.
package amqpio
