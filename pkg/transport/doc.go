// Package transport implements the AMQP device transport: a cooperative,
// single-threaded state machine that connects a device to its hub, keeps a
// claims-based security token fresh, sends queued telemetry events and
// dispatches cloud-to-device messages.
//
// # Driving the Transport
//
// The host owns an EventQueue and calls DoWork periodically:
//
//	queue := transport.NewEventQueue()
//	t, err := transport.New(transport.Config{
//	    DeviceID:     "thermostat-7",
//	    DeviceKey:    key,
//	    HubName:      "contoso",
//	    HubSuffix:    "azure-devices.net",
//	    WaitingQueue: queue,
//	})
//	...
//	queue.Push(transport.NewEvent(msg, func(r transport.SendResult) { ... }))
//	for {
//	    t.DoWork(handleCommand)
//	    time.Sleep(100 * time.Millisecond)
//	}
//
// DoWork never blocks. Every completion, state change and message dispatch
// runs inside it on the caller's goroutine. Callbacks must not call DoWork.
//
// # Controller States
//
//	Disconnected -> Connecting -> Authenticating -> Active
//	                           \________________/
//	                              (X.509 skips CBS)
//	any state -> Error -> Disconnected (teardown, events rolled back)
//
// # Delivery Semantics
//
// Events move from the caller's waiting queue to the in-progress queue when
// handed to the sender and are completed exactly once with SendOK or
// SendError. On a forced teardown in-progress events return to the head of
// the waiting queue, in order, without a callback, and are resent after
// reconnecting. Event.Attempts tells such retries apart from events that
// were never handed to the sender.
package transport
