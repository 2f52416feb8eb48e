package transport

import (
	"fmt"

	"github.com/Azure/go-amqp"
	"github.com/google/uuid"

	"github.com/cloudmsg/amqp-device-go/pkg/amqpio"
	"github.com/cloudmsg/amqp-device-go/pkg/bridge"
	"github.com/cloudmsg/amqp-device-go/pkg/message"
)

// MessageHandler processes a cloud-to-device message and returns the
// disposition to settle it with.
type MessageHandler func(*message.Message) message.Disposition

// createReceiver attaches the cloud-to-device link and opens its receiver.
func (t *Transport) createReceiver() (err error) {
	link, err := t.session.NewLink("receiver-link-"+uuid.NewString(), amqpio.RoleReceiver, t.addr.receive, receiverTarget)
	if err != nil {
		return fmt.Errorf("create receiver link: %w", err)
	}
	defer func() {
		if err != nil {
			link.Destroy()
		}
	}()

	if err = link.SetReceiverSettleMode(amqpio.SettleFirst); err != nil {
		return fmt.Errorf("set receiver settle mode: %w", err)
	}
	t.attachClientVersion(link)
	if err = link.SetMaxMessageSize(0); err != nil {
		return fmt.Errorf("set receiver max message size: %w", err)
	}

	receiver, err := link.NewMessageReceiver(t.onReceiverState)
	if err != nil {
		return fmt.Errorf("create message receiver: %w", err)
	}
	if err = receiver.Open(t.onMessage); err != nil {
		receiver.Destroy()
		return fmt.Errorf("open message receiver: %w", err)
	}

	t.receiverLink = link
	t.receiver = receiver
	t.logger.Debug("receiver created", "link", link.Name(), "source", t.addr.receive)
	return nil
}

// destroyReceiver closes and destroys the receiver and its link.
func (t *Transport) destroyReceiver() {
	if t.receiver != nil {
		if err := t.receiver.Close(); err != nil {
			t.logger.Debug("receiver close", "error", err)
		}
		t.receiver.Destroy()
		t.receiver = nil
	}
	if t.receiverLink != nil {
		t.receiverLink.Destroy()
		t.receiverLink = nil
	}
}

// onMessage dispatches one delivery to the handler of the current tick.
func (t *Transport) onMessage(w *amqp.Message) amqpio.DeliveryOutcome {
	msg, err := bridge.FromWire(w)
	if err != nil {
		t.logger.Warn("inbound message conversion failed", "error", err)
		t.captureError("convert message", err)
		t.metrics.messageSettled(amqpio.OutcomeRejected.String())
		return amqpio.OutcomeRejected
	}

	outcome := amqpio.OutcomeReleased
	if t.handler != nil {
		outcome = deliveryOutcome(t.handler(msg))
	}
	t.metrics.messageSettled(outcome.String())
	return outcome
}

func deliveryOutcome(d message.Disposition) amqpio.DeliveryOutcome {
	switch d {
	case message.Accepted:
		return amqpio.OutcomeAccepted
	case message.Abandoned:
		return amqpio.OutcomeReleased
	default:
		return amqpio.OutcomeRejected
	}
}

func (t *Transport) onReceiverState(state, previous amqpio.EndpointState) {
	t.logger.Debug("receiver state", "state", state.String(), "previous", previous.String())
	if state == amqpio.EndpointError && previous != amqpio.EndpointError {
		t.markError("receiver", fmt.Errorf("receiver entered %s", state))
	}
}
