package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudmsg/amqp-device-go/pkg/amqpio"
	"github.com/cloudmsg/amqp-device-go/pkg/log"
)

type recordingLogger struct {
	events []log.Event
}

func (r *recordingLogger) Log(event log.Event) { r.events = append(r.events, event) }

func (r *recordingLogger) transitions(entity log.StateEntity) []string {
	var out []string
	for _, e := range r.events {
		if e.StateChange != nil && e.StateChange.Entity == entity {
			out = append(out, e.StateChange.NewState)
		}
	}
	return out
}

func TestCapture_StateChanges(t *testing.T) {
	rec := &recordingLogger{}
	h := newHarness(t, func(c *Config) { c.ProtocolLogger = rec })

	h.activate()
	h.sender().onState(amqpio.EndpointError, amqpio.EndpointOpen)
	h.tick()

	assert.Equal(t, []string{"CONNECTING", "AUTHENTICATING", "ACTIVE", "ERROR", "DISCONNECTED"},
		rec.transitions(log.StateEntityTransport))
	assert.Equal(t, []string{"AUTH_IN_PROGRESS", "AUTHENTICATED", "IDLE"},
		rec.transitions(log.StateEntityCBS))

	for _, e := range rec.events {
		assert.Equal(t, "thermostat-7", e.DeviceID)
		assert.Equal(t, "contoso.azure-devices.net", e.Host)
		assert.Equal(t, log.LayerService, e.Layer)
		assert.False(t, e.Timestamp.IsZero())
	}
}

func TestCapture_ErrorsAndTimeouts(t *testing.T) {
	rec := &recordingLogger{}
	h := newHarness(t, func(c *Config) { c.ProtocolLogger = rec })

	h.tick()
	h.clock.Advance(DefaultCBSRequestTimeout)
	h.tick()

	var timeout, failure bool
	for _, e := range rec.events {
		if e.Token != nil && e.Token.Type == log.TokenTimeout {
			timeout = true
			assert.Equal(t, h.tr.addr.devicePath, e.Token.Audience)
		}
		if e.Error != nil && e.Error.Context == "authenticate" {
			failure = true
			assert.Contains(t, e.Error.Message, ErrAuthTimeout.Error())
		}
	}
	require.True(t, timeout, "token timeout captured")
	require.True(t, failure, "authentication error captured")
}
