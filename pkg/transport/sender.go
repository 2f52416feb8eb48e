package transport

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/cloudmsg/amqp-device-go/pkg/amqpio"
	"github.com/cloudmsg/amqp-device-go/pkg/bridge"
	"github.com/cloudmsg/amqp-device-go/pkg/log"
	"github.com/cloudmsg/amqp-device-go/pkg/version"
)

// createSender attaches the telemetry link and opens its message sender.
func (t *Transport) createSender() (err error) {
	link, err := t.session.NewLink("sender-link-"+uuid.NewString(), amqpio.RoleSender, senderSource, t.addr.send)
	if err != nil {
		return fmt.Errorf("create sender link: %w", err)
	}
	defer func() {
		if err != nil {
			link.Destroy()
		}
	}()

	t.attachClientVersion(link)
	if err = link.SetMaxMessageSize(0); err != nil {
		return fmt.Errorf("set sender max message size: %w", err)
	}

	sender, err := link.NewMessageSender(t.onSenderState)
	if err != nil {
		return fmt.Errorf("create message sender: %w", err)
	}
	if err = sender.Open(); err != nil {
		sender.Destroy()
		return fmt.Errorf("open message sender: %w", err)
	}

	t.senderLink = link
	t.sender = sender
	t.logger.Debug("sender created", "link", link.Name(), "target", t.addr.send)
	return nil
}

func (t *Transport) destroySender() {
	if t.sender != nil {
		t.sender.Destroy()
		t.sender = nil
	}
	if t.senderLink != nil {
		t.senderLink.Destroy()
		t.senderLink = nil
	}
}

// attachClientVersion is best effort; a link without it still works.
func (t *Transport) attachClientVersion(link amqpio.Link) {
	props := map[string]any{ClientVersionProperty: version.UserAgent()}
	if err := link.SetAttachProperties(props); err != nil {
		t.logger.Debug("client version attach property", "link", link.Name(), "error", err)
	}
}

// sendPending hands waiting events to the sender in order. A submission
// failure puts the event back at the head and stops for this tick.
func (t *Transport) sendPending() {
	for t.waiting.Len() > 0 {
		e := t.waiting.PopFront()
		t.inProgress.pushBack(e)

		wire, err := bridge.ToWire(e.msg)
		if err != nil {
			t.logger.Warn("event conversion failed", "error", err)
			t.captureError("convert event", err)
			t.inProgress.remove(e)
			t.complete(e, SendError)
			continue
		}

		if err := t.sender.Send(wire, func(r amqpio.SendResult) { t.onSendComplete(e, r) }); err != nil {
			t.logger.Warn("event submission failed", "error", err)
			t.inProgress.remove(e)
			t.waiting.pushFront(e)
			return
		}
		e.attempts++
	}
}

// onSendComplete ignores completions for events no longer in progress.
func (t *Transport) onSendComplete(e *Event, r amqpio.SendResult) {
	if !t.inProgress.remove(e) {
		return
	}
	result := SendOK
	if r != amqpio.SendOK {
		result = SendError
	}
	t.complete(e, result)
}

func (t *Transport) complete(e *Event, result SendResult) {
	t.metrics.eventCompleted(result)
	if result != SendOK {
		ev := &log.MessageEvent{Address: t.addr.send, Outcome: result.String()}
		if e.msg != nil {
			ev.MessageID = e.msg.MessageID
		}
		t.capture(log.Event{
			Direction: log.DirectionOut,
			Category:  log.CategoryMessage,
			Message:   ev,
		})
	}
	if e.onComplete != nil {
		e.onComplete(result)
	}
}

func (t *Transport) onSenderState(state, previous amqpio.EndpointState) {
	t.logger.Debug("sender state", "state", state.String(), "previous", previous.String())
	if state == amqpio.EndpointError && previous != amqpio.EndpointError {
		t.markError("sender", fmt.Errorf("sender entered %s", state))
	}
}
