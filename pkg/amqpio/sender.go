package amqpio

import (
	"context"
	"time"

	"github.com/Azure/go-amqp"

	"github.com/cloudmsg/amqp-device-go/pkg/log"
)

type sender struct {
	link    *link
	conn    *connection
	onState EndpointStateFunc

	state     EndpointState
	destroyed bool
	closed    bool

	worker *worker
	amqp   *amqp.Sender
}

func (s *sender) Open() error {
	if s.destroyed {
		return ErrDestroyed
	}
	if s.worker != nil {
		return ErrAlreadyOpen
	}
	s.worker = newWorker(context.Background(), &s.conn.p.wg)
	s.conn.box.post(func() { s.transition(EndpointOpening, "") })
	s.worker.submit(s.attach)
	return nil
}

func (s *sender) attach(ctx context.Context) {
	sess, err := s.link.session.await(ctx)
	if err != nil {
		s.fail("attach sender", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.conn.p.opTimeout)
	defer cancel()

	snd, err := sess.NewSender(ctx, s.link.target, s.link.senderOptions())
	if err != nil {
		s.fail("attach sender", err)
		return
	}
	s.amqp = snd
	s.conn.p.debugLog("sender attached", "link", s.link.name, "target", s.link.target)
	s.conn.box.post(func() { s.transition(EndpointOpen, "") })
}

// Send queues msg behind the attach. A transfer lost to a link or
// connection failure never completes; the caller recovers it on teardown.
func (s *sender) Send(msg *amqp.Message, onComplete func(SendResult)) error {
	if s.destroyed {
		return ErrDestroyed
	}
	if s.worker == nil || s.closed {
		return ErrNotOpen
	}
	submitted := time.Now()
	ok := s.worker.submit(func(ctx context.Context) {
		if s.amqp == nil {
			return
		}
		ctx, cancel := context.WithTimeout(ctx, s.conn.p.opTimeout)
		err := s.amqp.Send(ctx, msg, nil)
		cancel()

		result := SendOK
		if err != nil {
			if isTerminal(err) {
				s.fail("send", err)
				return
			}
			result = SendError
			s.conn.p.warnLog("message rejected", "link", s.link.name, "error", err)
		}
		s.conn.traceMessage(log.DirectionOut, s.link.target, msg, result.String(), time.Since(submitted))
		s.conn.box.post(func() {
			if !s.destroyed && onComplete != nil {
				onComplete(result)
			}
		})
	})
	if !ok {
		return ErrDestroyed
	}
	return nil
}

func (s *sender) Close() error {
	if s.destroyed {
		return ErrDestroyed
	}
	if s.worker == nil || s.closed {
		return nil
	}
	s.closed = true
	s.transition(EndpointClosing, "")
	s.worker.submit(func(ctx context.Context) {
		s.detach(ctx)
		s.conn.box.post(func() { s.transition(EndpointIdle, "") })
	})
	return nil
}

func (s *sender) detach(ctx context.Context) {
	if s.amqp == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.conn.p.opTimeout)
	defer cancel()
	if err := s.amqp.Close(ctx); err != nil {
		s.conn.p.debugLog("sender close", "link", s.link.name, "error", err)
	}
	s.amqp = nil
}

func (s *sender) Destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true
	if s.worker == nil {
		return
	}
	s.worker.submit(s.detach)
	s.worker.stop()
}

func (s *sender) fail(op string, err error) {
	s.conn.p.warnLog("sender failed", "op", op, "link", s.link.name, "error", err)
	s.conn.captureError(log.LayerWire, op, err)
	reason := err.Error()
	s.conn.box.post(func() { s.transition(EndpointError, reason) })
}

func (s *sender) transition(state EndpointState, reason string) {
	if s.destroyed || s.state == state {
		return
	}
	previous := s.state
	s.state = state
	s.conn.captureState(log.StateEntitySender, previous.String(), state.String(), reason)
	if s.onState != nil {
		s.onState(state, previous)
	}
}

var _ MessageSender = (*sender)(nil)
