package connection

import "time"

// RetryGate decides on each tick whether a new connection attempt may start.
//
// A disabled gate is always open. An enabled gate closes for a backoff delay
// after every failure and reopens fully after Succeeded.
type RetryGate struct {
	enabled   bool
	backoff   *Backoff
	notBefore time.Time
}

// NewRetryGate returns a gate pacing attempts with b. A nil b uses the
// default backoff.
func NewRetryGate(enabled bool, b *Backoff) *RetryGate {
	if b == nil {
		b = NewBackoff()
	}
	return &RetryGate{enabled: enabled, backoff: b}
}

// SetEnabled switches pacing on or off. Turning pacing off reopens the gate.
func (g *RetryGate) SetEnabled(enabled bool) {
	g.enabled = enabled
	if !enabled {
		g.notBefore = time.Time{}
		g.backoff.Reset()
	}
}

// Enabled reports whether pacing is on.
func (g *RetryGate) Enabled() bool { return g.enabled }

// Allow reports whether an attempt may start at now. A zero now (clock
// failure) always allows, since a stuck clock must not wedge the transport.
func (g *RetryGate) Allow(now time.Time) bool {
	if !g.enabled || now.IsZero() || g.notBefore.IsZero() {
		return true
	}
	return !now.Before(g.notBefore)
}

// Failed records a failed attempt at now and returns the delay before the
// next one is allowed.
func (g *RetryGate) Failed(now time.Time) time.Duration {
	if !g.enabled {
		return 0
	}
	delay := g.backoff.Next()
	if !now.IsZero() {
		g.notBefore = now.Add(delay)
	}
	return delay
}

// Succeeded resets the pacing after a successful attempt.
func (g *RetryGate) Succeeded() {
	g.notBefore = time.Time{}
	g.backoff.Reset()
}

// Failures returns the consecutive failures since the last success.
func (g *RetryGate) Failures() int { return g.backoff.Attempts() }
