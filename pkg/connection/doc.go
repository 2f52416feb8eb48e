// Package connection paces reconnection attempts of the device transport.
//
// The transport is driven by a caller-owned tick and never sleeps, so the
// pacing is expressed as a gate that is consulted on each tick rather than
// as a background reconnect loop.
//
// # Reconnection Strategy
//
// When retry pacing is enabled and a connection attempt fails, the next
// attempt is deferred with exponential backoff:
//
//  1. Initial delay: 1 second
//  2. Exponential increase: 2s, 4s, 8s, 16s, 32s
//  3. Maximum delay: 60 seconds
//  4. Continue at 60s until successful
//  5. Reset to 1s once the transport is authenticated
//
// With pacing disabled the gate is always open and the transport retries on
// the very next tick.
//
// # Jitter
//
// To spread reconnects of a fleet of devices after a hub outage:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
package connection
