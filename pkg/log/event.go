package log

import "time"

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the AMQP connection (its container id).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Host is the hub host name the connection targets.
	Host string `cbor:"6,keyasint,omitempty"`

	// DeviceID is the device the event belongs to.
	DeviceID string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Message     *MessageEvent     `cbor:"10,keyasint,omitempty"` // Wire layer
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"` // Endpoint lifecycle
	Token       *TokenEvent       `cbor:"12,keyasint,omitempty"` // CBS put-token exchange
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the IO stack: TLS, WebSocket and SASL.
	LayerTransport Layer = 0
	// LayerWire is the AMQP layer (links, transfers, dispositions).
	LayerWire Layer = 1
	// LayerService is the device client layer (queues, authentication).
	LayerService Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerService:
		return "SERVICE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a telemetry or cloud-to-device transfer.
	CategoryMessage Category = 0
	// CategoryControl indicates a claims-based security exchange.
	CategoryControl Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MessageEvent captures one AMQP transfer.
type MessageEvent struct {
	// Address is the link address the transfer used.
	Address string `cbor:"1,keyasint"`

	// MessageID and CorrelationID are copied from the message properties.
	MessageID     string `cbor:"2,keyasint,omitempty"`
	CorrelationID string `cbor:"3,keyasint,omitempty"`

	// Size is the body size in bytes.
	Size int `cbor:"4,keyasint"`

	// Properties is the number of application properties carried.
	Properties int `cbor:"5,keyasint,omitempty"`

	// Outcome is the settlement outcome (accepted, released, rejected) or
	// the send result for outgoing transfers.
	Outcome string `cbor:"6,keyasint,omitempty"`

	// Elapsed is the time from submission to settlement (outgoing only).
	// Stored as nanoseconds.
	Elapsed *time.Duration `cbor:"7,keyasint,omitempty"`
}

// StateChangeEvent captures endpoint lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates an AMQP connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntityCBS indicates a claims-based security endpoint state change.
	StateEntityCBS StateEntity = 1
	// StateEntitySender indicates a telemetry sender state change.
	StateEntitySender StateEntity = 2
	// StateEntityReceiver indicates a cloud-to-device receiver state change.
	StateEntityReceiver StateEntity = 3
	// StateEntityTransport indicates a device transport controller state change.
	StateEntityTransport StateEntity = 4
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityCBS:
		return "CBS"
	case StateEntitySender:
		return "SENDER"
	case StateEntityReceiver:
		return "RECEIVER"
	case StateEntityTransport:
		return "TRANSPORT"
	default:
		return "UNKNOWN"
	}
}

// TokenEvent captures a put-token request or its reply. The token itself is
// never recorded.
type TokenEvent struct {
	// Type of exchange step.
	Type TokenEventType `cbor:"1,keyasint"`

	// Audience the token was issued for.
	Audience string `cbor:"2,keyasint"`

	// StatusCode is the service reply status (replies only).
	StatusCode *int `cbor:"3,keyasint,omitempty"`

	// Description is the service status description (replies only).
	Description string `cbor:"4,keyasint,omitempty"`
}

// TokenEventType indicates the step of a put-token exchange.
type TokenEventType uint8

const (
	// TokenPut indicates a put-token request.
	TokenPut TokenEventType = 0
	// TokenReply indicates the service reply.
	TokenReply TokenEventType = 1
	// TokenTimeout indicates the request expired without a reply.
	TokenTimeout TokenEventType = 2
)

// String returns the token event type name.
func (t TokenEventType) String() string {
	switch t {
	case TokenPut:
		return "PUT"
	case TokenReply:
		return "REPLY"
	case TokenTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the error code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
