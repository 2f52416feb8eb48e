package amqpio

import (
	"fmt"
	"time"

	"github.com/Azure/go-amqp"

	"github.com/cloudmsg/amqp-device-go/pkg/log"
)

func (c *connection) capture(event log.Event) {
	if c.p.protocolLogger == nil {
		return
	}
	event.Timestamp = time.Now()
	event.ConnectionID = c.params.containerID
	event.Host = c.params.host
	c.p.protocolLogger.Log(event)
}

func (c *connection) captureState(entity log.StateEntity, previous, state, reason string) {
	c.capture(log.Event{
		Layer:    log.LayerWire,
		Category: log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: previous,
			NewState: state,
			Reason:   reason,
		},
	})
}

func (c *connection) captureError(layer log.Layer, op string, err error) {
	c.capture(log.Event{
		Layer:    layer,
		Category: log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Context: op,
		},
	})
}

// traceMessage records a transfer when tracing is on.
func (c *connection) traceMessage(dir log.Direction, address string, msg *amqp.Message, outcome string, elapsed time.Duration) {
	if !c.trace.Load() || msg == nil {
		return
	}
	ev := &log.MessageEvent{
		Address:    address,
		Outcome:    outcome,
		Properties: len(msg.ApplicationProperties),
	}
	for _, d := range msg.Data {
		ev.Size += len(d)
	}
	if msg.Properties != nil {
		ev.MessageID = idString(msg.Properties.MessageID)
		ev.CorrelationID = idString(msg.Properties.CorrelationID)
	}
	if elapsed > 0 {
		ev.Elapsed = &elapsed
	}
	c.capture(log.Event{
		Direction: dir,
		Layer:     log.LayerWire,
		Category:  log.CategoryMessage,
		Message:   ev,
	})
}

func idString(id any) string {
	if id == nil {
		return ""
	}
	return fmt.Sprint(id)
}
