package amqpio

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/go-amqp"
	"github.com/google/uuid"

	"github.com/cloudmsg/amqp-device-go/pkg/log"
)

// CBS node address and put-token application property names.
const (
	cbsAddress = "$cbs"

	cbsOperation         = "operation"
	cbsOperationPutToken = "put-token"
	cbsTokenType         = "type"
	cbsAudience          = "name"
	cbsStatusCode        = "status-code"
	cbsStatusDescription = "status-description"
)

var errNoCBSReply = errors.New("cbs reply carries no status code")

type cbs struct {
	session *session
	conn    *connection
	onState EndpointStateFunc
	replyTo string

	state     EndpointState
	destroyed bool
	closed    bool

	worker *worker
	snd    *amqp.Sender
	rcv    *amqp.Receiver
}

func newCBS(s *session, onState EndpointStateFunc) *cbs {
	return &cbs{
		session: s,
		conn:    s.conn,
		onState: onState,
		replyTo: "cbs-" + uuid.NewString(),
	}
}

func (c *cbs) Open(onComplete func(OpenResult)) error {
	if c.destroyed {
		return ErrDestroyed
	}
	if c.worker != nil {
		return ErrAlreadyOpen
	}
	c.worker = newWorker(context.Background(), &c.conn.p.wg)
	c.conn.box.post(func() { c.transition(EndpointOpening, "") })
	c.worker.submit(func(ctx context.Context) {
		result := OpenOK
		state := EndpointOpen
		reason := ""
		if err := c.attach(ctx); err != nil {
			c.conn.p.warnLog("cbs open failed", "error", err)
			c.conn.captureError(log.LayerWire, "open cbs", err)
			result, state, reason = OpenError, EndpointError, err.Error()
		}
		c.conn.box.post(func() {
			if c.destroyed {
				return
			}
			c.transition(state, reason)
			if onComplete != nil {
				onComplete(result)
			}
		})
	})
	return nil
}

func (c *cbs) attach(ctx context.Context) error {
	sess, err := c.session.await(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.conn.p.opTimeout)
	defer cancel()

	c.snd, err = sess.NewSender(ctx, cbsAddress, &amqp.SenderOptions{
		Name: "cbs-sender-" + c.replyTo,
	})
	if err != nil {
		return fmt.Errorf("attach cbs sender: %w", err)
	}
	c.rcv, err = sess.NewReceiver(ctx, cbsAddress, &amqp.ReceiverOptions{
		Name:          "cbs-receiver-" + c.replyTo,
		TargetAddress: c.replyTo,
		Credit:        1,
	})
	if err != nil {
		c.detach(ctx)
		return fmt.Errorf("attach cbs receiver: %w", err)
	}
	return nil
}

func (c *cbs) PutToken(tokenType, audience, token string, onComplete func(CBSResult, int, string)) error {
	if c.destroyed {
		return ErrDestroyed
	}
	if c.worker == nil || c.closed {
		return ErrNotOpen
	}

	id := uuid.NewString()
	replyTo := c.replyTo
	msg := &amqp.Message{
		Value: token,
		Properties: &amqp.MessageProperties{
			MessageID: id,
			ReplyTo:   &replyTo,
		},
		ApplicationProperties: map[string]any{
			cbsOperation: cbsOperationPutToken,
			cbsTokenType: tokenType,
			cbsAudience:  audience,
		},
	}
	c.conn.capture(log.Event{
		Direction: log.DirectionOut,
		Layer:     log.LayerWire,
		Category:  log.CategoryControl,
		Token:     &log.TokenEvent{Type: log.TokenPut, Audience: audience},
	})

	ok := c.worker.submit(func(ctx context.Context) {
		result, status, description := c.exchange(ctx, id, msg)
		msg = nil

		code := status
		c.conn.capture(log.Event{
			Direction: log.DirectionIn,
			Layer:     log.LayerWire,
			Category:  log.CategoryControl,
			Token:     &log.TokenEvent{Type: log.TokenReply, Audience: audience, StatusCode: &code, Description: description},
		})
		c.conn.box.post(func() {
			if !c.destroyed && onComplete != nil {
				onComplete(result, status, description)
			}
		})
	})
	if !ok {
		return ErrDestroyed
	}
	return nil
}

// exchange sends the request and waits for the reply correlated to id.
func (c *cbs) exchange(ctx context.Context, id string, msg *amqp.Message) (CBSResult, int, string) {
	if c.snd == nil || c.rcv == nil {
		return CBSInstanceClosed, 0, ""
	}
	ctx, cancel := context.WithTimeout(ctx, c.conn.p.opTimeout)
	defer cancel()

	if err := c.snd.Send(ctx, msg, nil); err != nil {
		return CBSError, 0, err.Error()
	}
	// The token must not outlive the submission.
	msg.Value = nil

	for {
		reply, err := c.rcv.Receive(ctx, nil)
		if err != nil {
			return CBSError, 0, err.Error()
		}
		if err := c.rcv.AcceptMessage(ctx, reply); err != nil {
			c.conn.p.debugLog("cbs reply accept", "error", err)
		}
		if correlationID(reply) != id {
			continue
		}
		status, description, err := replyStatus(reply)
		if err != nil {
			return CBSError, 0, err.Error()
		}
		if status < 200 || status >= 300 {
			return CBSFailed, status, description
		}
		return CBSOK, status, description
	}
}

func correlationID(msg *amqp.Message) string {
	if msg.Properties == nil || msg.Properties.CorrelationID == nil {
		return ""
	}
	switch v := msg.Properties.CorrelationID.(type) {
	case string:
		return v
	case amqp.UUID:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func replyStatus(msg *amqp.Message) (int, string, error) {
	raw, ok := msg.ApplicationProperties[cbsStatusCode]
	if !ok {
		return 0, "", errNoCBSReply
	}
	status, err := IntValue(raw)
	if err != nil {
		return 0, "", fmt.Errorf("cbs status code: %w", err)
	}
	description, _ := msg.ApplicationProperties[cbsStatusDescription].(string)
	return int(status), description, nil
}

func (c *cbs) Close() error {
	if c.destroyed {
		return ErrDestroyed
	}
	if c.worker == nil || c.closed {
		return nil
	}
	c.closed = true
	c.transition(EndpointClosing, "")
	c.worker.submit(func(ctx context.Context) {
		c.detach(ctx)
		c.conn.box.post(func() { c.transition(EndpointIdle, "") })
	})
	return nil
}

func (c *cbs) detach(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.conn.p.opTimeout)
	defer cancel()
	if c.rcv != nil {
		if err := c.rcv.Close(ctx); err != nil {
			c.conn.p.debugLog("cbs receiver close", "error", err)
		}
		c.rcv = nil
	}
	if c.snd != nil {
		if err := c.snd.Close(ctx); err != nil {
			c.conn.p.debugLog("cbs sender close", "error", err)
		}
		c.snd = nil
	}
}

func (c *cbs) Destroy() {
	if c.destroyed {
		return
	}
	c.destroyed = true
	if c.worker == nil {
		return
	}
	c.worker.submit(c.detach)
	c.worker.stop()
}

func (c *cbs) transition(state EndpointState, reason string) {
	if c.destroyed || c.state == state {
		return
	}
	previous := c.state
	c.state = state
	c.conn.captureState(log.StateEntityCBS, previous.String(), state.String(), reason)
	if c.onState != nil {
		c.onState(state, previous)
	}
}

var _ CBS = (*cbs)(nil)
