package amqpio

import (
	"context"
	"sync/atomic"

	"github.com/Azure/go-amqp"

	"github.com/cloudmsg/amqp-device-go/pkg/log"
)

const (
	// receiverCredit is the link credit granted to the service.
	receiverCredit = 100

	rejectCondition   = "amqp:internal-error"
	rejectDescription = "Rejected by application"
)

type receiver struct {
	link      *link
	conn      *connection
	onState   EndpointStateFunc
	onMessage func(*amqp.Message) DeliveryOutcome

	state     EndpointState
	destroyed bool
	closed    bool

	// closing is read by the receive loop.
	closing atomic.Bool

	worker *worker
	amqp   *amqp.Receiver
}

func (r *receiver) Open(onMessage func(*amqp.Message) DeliveryOutcome) error {
	if r.destroyed {
		return ErrDestroyed
	}
	if r.worker != nil {
		return ErrAlreadyOpen
	}
	r.onMessage = onMessage
	r.worker = newWorker(context.Background(), &r.conn.p.wg)
	r.conn.box.post(func() { r.transition(EndpointOpening, "") })
	r.worker.submit(r.attach)
	return nil
}

func (r *receiver) attach(ctx context.Context) {
	sess, err := r.link.session.await(ctx)
	if err != nil {
		r.fail("attach receiver", err)
		return
	}
	attachCtx, cancel := context.WithTimeout(ctx, r.conn.p.opTimeout)
	defer cancel()

	rcv, err := sess.NewReceiver(attachCtx, r.link.source, r.link.receiverOptions())
	if err != nil {
		r.fail("attach receiver", err)
		return
	}
	r.amqp = rcv
	r.conn.p.debugLog("receiver attached", "link", r.link.name, "source", r.link.source)
	r.conn.box.post(func() { r.transition(EndpointOpen, "") })

	r.conn.p.wg.Add(1)
	go func() {
		defer r.conn.p.wg.Done()
		r.receiveLoop(ctx, rcv)
	}()
}

// receiveLoop ends when the worker context is cancelled, which happens once
// the worker has drained after Destroy.
func (r *receiver) receiveLoop(ctx context.Context, rcv *amqp.Receiver) {
	for {
		msg, err := rcv.Receive(ctx, nil)
		if err != nil {
			if ctx.Err() == nil && !r.closing.Load() {
				r.fail("receive", err)
			}
			return
		}
		r.conn.traceMessage(log.DirectionIn, r.link.source, msg, "", 0)
		r.conn.box.post(func() { r.dispatch(rcv, msg) })
	}
}

// dispatch runs on the DoWork caller.
func (r *receiver) dispatch(rcv *amqp.Receiver, msg *amqp.Message) {
	if r.destroyed || r.onMessage == nil {
		return
	}
	outcome := r.onMessage(msg)
	r.worker.submit(func(ctx context.Context) {
		r.settle(ctx, rcv, msg, outcome)
	})
}

func (r *receiver) settle(ctx context.Context, rcv *amqp.Receiver, msg *amqp.Message, outcome DeliveryOutcome) {
	ctx, cancel := context.WithTimeout(ctx, r.conn.p.opTimeout)
	defer cancel()

	var err error
	switch outcome {
	case OutcomeAccepted:
		err = rcv.AcceptMessage(ctx, msg)
	case OutcomeReleased:
		err = rcv.ReleaseMessage(ctx, msg)
	default:
		err = rcv.RejectMessage(ctx, msg, &amqp.Error{
			Condition:   rejectCondition,
			Description: rejectDescription,
		})
	}
	if err != nil {
		r.conn.p.warnLog("settle delivery", "link", r.link.name, "outcome", outcome.String(), "error", err)
		if isTerminal(err) && !r.closing.Load() {
			r.fail("settle", err)
		}
	}
}

func (r *receiver) Close() error {
	if r.destroyed {
		return ErrDestroyed
	}
	if r.worker == nil || r.closed {
		return nil
	}
	r.closed = true
	r.closing.Store(true)
	r.transition(EndpointClosing, "")
	r.worker.submit(func(ctx context.Context) {
		r.detach(ctx)
		r.conn.box.post(func() { r.transition(EndpointIdle, "") })
	})
	return nil
}

func (r *receiver) detach(ctx context.Context) {
	if r.amqp == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, r.conn.p.opTimeout)
	defer cancel()
	if err := r.amqp.Close(ctx); err != nil {
		r.conn.p.debugLog("receiver close", "link", r.link.name, "error", err)
	}
	r.amqp = nil
}

func (r *receiver) Destroy() {
	if r.destroyed {
		return
	}
	r.destroyed = true
	r.closing.Store(true)
	if r.worker == nil {
		return
	}
	r.worker.submit(r.detach)
	r.worker.stop()
}

func (r *receiver) fail(op string, err error) {
	r.conn.p.warnLog("receiver failed", "op", op, "link", r.link.name, "error", err)
	r.conn.captureError(log.LayerWire, op, err)
	reason := err.Error()
	r.conn.box.post(func() { r.transition(EndpointError, reason) })
}

func (r *receiver) transition(state EndpointState, reason string) {
	if r.destroyed || r.state == state {
		return
	}
	previous := r.state
	r.state = state
	r.conn.captureState(log.StateEntityReceiver, previous.String(), state.String(), reason)
	if r.onState != nil {
		r.onState(state, previous)
	}
}

var _ MessageReceiver = (*receiver)(nil)
