// Package bridge converts between the domain message and the AMQP wire message.
//
// The wire body is always a single binary data section. Message-id and
// correlation-id travel as standard properties and only when present; the
// property map travels as string-valued application properties and only when
// non-empty.
package bridge

import (
	"errors"
	"fmt"

	"github.com/Azure/go-amqp"

	"github.com/cloudmsg/amqp-device-go/pkg/message"
)

// Conversion errors.
var (
	ErrNilMessage         = errors.New("bridge: message is nil")
	ErrUnsupportedBody    = errors.New("bridge: only binary data bodies are supported")
	ErrInvalidIdentifier  = errors.New("bridge: unsupported message identifier type")
	ErrInvalidApplication = errors.New("bridge: application property is not a string")
)

// ToWire converts a domain message into a wire message.
func ToWire(m *message.Message) (*amqp.Message, error) {
	if m == nil {
		return nil, ErrNilMessage
	}
	payload, err := m.Payload()
	if err != nil {
		return nil, fmt.Errorf("bridge: read payload: %w", err)
	}

	wire := &amqp.Message{
		Data: [][]byte{payload},
	}

	if m.MessageID != "" || m.CorrelationID != "" {
		wire.Properties = &amqp.MessageProperties{}
		if m.MessageID != "" {
			wire.Properties.MessageID = m.MessageID
		}
		if m.CorrelationID != "" {
			wire.Properties.CorrelationID = m.CorrelationID
		}
	}

	if len(m.Properties) > 0 {
		wire.ApplicationProperties = make(map[string]any, len(m.Properties))
		for k, v := range m.Properties {
			wire.ApplicationProperties[k] = v
		}
	}

	return wire, nil
}

// FromWire converts a wire message into a domain message. Any property that
// cannot be converted fails the whole conversion.
func FromWire(w *amqp.Message) (*message.Message, error) {
	if w == nil {
		return nil, ErrNilMessage
	}
	if w.Value != nil || len(w.Sequence) > 0 || len(w.Data) == 0 {
		return nil, ErrUnsupportedBody
	}

	var payload []byte
	if len(w.Data) == 1 {
		payload = w.Data[0]
	} else {
		for _, section := range w.Data {
			payload = append(payload, section...)
		}
	}
	m := message.NewBytes(payload)

	if w.Properties != nil {
		id, err := identifier(w.Properties.MessageID)
		if err != nil {
			return nil, fmt.Errorf("message-id: %w", err)
		}
		m.MessageID = id

		corr, err := identifier(w.Properties.CorrelationID)
		if err != nil {
			return nil, fmt.Errorf("correlation-id: %w", err)
		}
		m.CorrelationID = corr
	}

	for k, v := range w.ApplicationProperties {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %q has type %T", ErrInvalidApplication, k, v)
		}
		m.Properties[k] = s
	}

	return m, nil
}

// identifier renders an AMQP message identifier as a string. A nil
// identifier is absent, not an error.
func identifier(v any) (string, error) {
	switch id := v.(type) {
	case nil:
		return "", nil
	case string:
		return id, nil
	case amqp.UUID:
		return id.String(), nil
	case uint64:
		return fmt.Sprintf("%d", id), nil
	case []byte:
		return string(id), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrInvalidIdentifier, v)
	}
}
