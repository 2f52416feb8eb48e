package transport

import (
	"time"

	"github.com/cloudmsg/amqp-device-go/pkg/log"
)

// teardown destroys sender, receiver, CBS and the connection, in that
// order, and returns in-progress events to the head of the waiting queue.
func (t *Transport) teardown() int {
	t.destroySender()
	t.destroyReceiver()
	t.closeCBS()
	t.disconnect()
	return t.inProgress.rollbackInto(t.waiting)
}

// reconnect recovers from StateError. The next connect attempt happens on a
// later tick, paced by the retry gate when backoff is enabled.
func (t *Transport) reconnect(now time.Time) {
	returned := t.teardown()
	t.errorPending = false
	t.metrics.reconnected()

	delay := t.retry.Failed(now)
	t.logger.Info("connection torn down", "requeued", returned, "retryIn", delay)
	t.setState(StateDisconnected, "reconnect")
}

// markError records the first fatal condition; the next tick reconnects.
func (t *Transport) markError(op string, err error) {
	if t.errorPending || t.destroyed {
		return
	}
	t.errorPending = true
	t.logger.Error("transport error", "op", op, "error", err)
	t.captureError(op, err)
	t.setState(StateError, op)
}

func (t *Transport) setState(state State, reason string) {
	if t.state == state {
		return
	}
	previous := t.state
	t.state = state
	t.captureState(log.StateEntityTransport, previous.String(), state.String(), reason)
}
