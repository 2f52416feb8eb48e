package transport

import (
	"github.com/cloudmsg/amqp-device-go/pkg/log"
)

func (t *Transport) capture(event log.Event) {
	if t.protocolLogger == nil {
		return
	}
	event.Timestamp = t.clock.Now()
	event.ConnectionID = t.containerID
	event.Host = t.addr.host
	event.DeviceID = t.cred.DeviceID()
	event.Layer = log.LayerService
	t.protocolLogger.Log(event)
}

func (t *Transport) captureState(entity log.StateEntity, previous, state, reason string) {
	t.capture(log.Event{
		Category: log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: previous,
			NewState: state,
			Reason:   reason,
		},
	})
}

func (t *Transport) captureError(op string, err error) {
	t.capture(log.Event{
		Category: log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerService,
			Message: err.Error(),
			Context: op,
		},
	})
}
