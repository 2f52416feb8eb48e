package amqpio

import (
	"errors"

	"github.com/Azure/go-amqp"
)

// Contract errors.
var (
	ErrDestroyed    = errors.New("handle destroyed")
	ErrNotOpen      = errors.New("endpoint not open")
	ErrAlreadyOpen  = errors.New("endpoint already open")
	ErrForeignIO    = errors.New("io was not created by this provider")
	ErrInvalidRole  = errors.New("link role does not match endpoint")
	ErrEmptyAddress = errors.New("address is required")
)

// Default service ports.
const (
	// PortAMQPS is the AMQP over TLS port.
	PortAMQPS = 5671

	// PortWebSocket is the AMQP over secure WebSocket port.
	PortWebSocket = 443
)

// Provider creates the IO stack and AMQP connection for one device transport.
type Provider interface {
	// NewTLSIO returns a TLS IO targeting hostname:port. Nothing is dialed
	// until a connection is created over it.
	NewTLSIO(hostname string, port int) (TLSIO, error)

	// NewSASLMechanism returns the token-exchange SASL mechanism.
	NewSASLMechanism() (SASLMechanism, error)

	// NewSASLIO layers mechanism over io.
	NewSASLIO(io TLSIO, mechanism SASLMechanism) (IO, error)

	// NewConnection starts opening an AMQP connection over io. onState is
	// invoked from DoWork on every connection state transition.
	NewConnection(io IO, hostname, containerID string, onState ConnectionStateFunc) (Connection, error)
}

// IO is a byte transport a connection can be created over.
type IO interface {
	Destroy()
}

// TLSIO is the TLS transport. Its option set survives reconnects through
// RetrieveOptions and ApplyOptions.
type TLSIO interface {
	IO
	SetOption(name string, value any) error
	RetrieveOptions() Options
	ApplyOptions(opts Options) error
}

// SASLMechanism is a SASL mechanism instance.
type SASLMechanism interface {
	Name() string
	Destroy()
}

// Connection is an AMQP connection.
type Connection interface {
	NewSession() (Session, error)

	// DoWork delivers pending completions and state changes. It never blocks.
	DoWork()

	// SetTrace toggles protocol capture of wire traffic.
	SetTrace(on bool)

	Destroy()
}

// Session is an AMQP session.
type Session interface {
	SetIncomingWindow(window uint32) error
	SetOutgoingWindow(window uint32) error
	NewLink(name string, role Role, source, target string) (Link, error)
	NewCBS(onState EndpointStateFunc) (CBS, error)
	Destroy()
}

// Link is an unattached link description. Attaching happens when the
// sender or receiver created from it is opened.
type Link interface {
	Name() string
	SetMaxMessageSize(size uint64) error
	SetReceiverSettleMode(mode ReceiverSettleMode) error
	SetAttachProperties(props map[string]any) error
	NewMessageSender(onState EndpointStateFunc) (MessageSender, error)
	NewMessageReceiver(onState EndpointStateFunc) (MessageReceiver, error)
	Destroy()
}

// MessageSender sends messages over a sender link.
type MessageSender interface {
	Open() error

	// Send queues msg. onComplete is invoked from DoWork once the transfer
	// is settled or has failed.
	Send(msg *amqp.Message, onComplete func(SendResult)) error

	Close() error
	Destroy()
}

// MessageReceiver receives messages over a receiver link.
type MessageReceiver interface {
	// Open attaches the link. onMessage is invoked from DoWork for every
	// delivery and its outcome settles the delivery.
	Open(onMessage func(*amqp.Message) DeliveryOutcome) error

	Close() error
	Destroy()
}

// CBS is a claims-based security endpoint.
type CBS interface {
	Open(onComplete func(OpenResult)) error

	// PutToken submits token for audience. onComplete receives the service
	// status code and description.
	PutToken(tokenType, audience, token string, onComplete func(result CBSResult, status int, description string)) error

	Close() error
	Destroy()
}

// ConnectionStateFunc receives connection state transitions.
type ConnectionStateFunc func(state, previous ConnectionState)

// EndpointStateFunc receives sender, receiver and CBS state transitions.
type EndpointStateFunc func(state, previous EndpointState)

// ConnectionState is the state of an AMQP connection.
type ConnectionState uint8

const (
	ConnectionStart ConnectionState = iota
	ConnectionOpening
	ConnectionOpened
	ConnectionClosing
	ConnectionEnd
	ConnectionError
)

// String returns the state name.
func (s ConnectionState) String() string {
	switch s {
	case ConnectionStart:
		return "START"
	case ConnectionOpening:
		return "OPENING"
	case ConnectionOpened:
		return "OPENED"
	case ConnectionClosing:
		return "CLOSING"
	case ConnectionEnd:
		return "END"
	case ConnectionError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// EndpointState is the state of a sender, receiver or CBS endpoint.
type EndpointState uint8

const (
	EndpointIdle EndpointState = iota
	EndpointOpening
	EndpointOpen
	EndpointClosing
	EndpointError
)

// String returns the state name.
func (s EndpointState) String() string {
	switch s {
	case EndpointIdle:
		return "IDLE"
	case EndpointOpening:
		return "OPENING"
	case EndpointOpen:
		return "OPEN"
	case EndpointClosing:
		return "CLOSING"
	case EndpointError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role is the link role.
type Role uint8

const (
	RoleSender Role = iota
	RoleReceiver
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleSender:
		return "SENDER"
	case RoleReceiver:
		return "RECEIVER"
	default:
		return "UNKNOWN"
	}
}

// ReceiverSettleMode is the receiver settlement mode requested on attach.
type ReceiverSettleMode uint8

const (
	// SettleFirst settles deliveries as soon as the disposition is sent.
	SettleFirst ReceiverSettleMode = iota
	// SettleSecond settles only after the sender confirms the disposition.
	SettleSecond
)

// SendResult is the outcome of a send.
type SendResult uint8

const (
	SendOK SendResult = iota
	SendError
)

// String returns the result name.
func (r SendResult) String() string {
	switch r {
	case SendOK:
		return "OK"
	case SendError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// OpenResult is the outcome of opening a CBS endpoint.
type OpenResult uint8

const (
	OpenOK OpenResult = iota
	OpenError
)

// CBSResult is the outcome of a put-token request.
type CBSResult uint8

const (
	CBSOK CBSResult = iota
	CBSError
	CBSFailed
	CBSInstanceClosed
)

// String returns the result name.
func (r CBSResult) String() string {
	switch r {
	case CBSOK:
		return "OK"
	case CBSError:
		return "ERROR"
	case CBSFailed:
		return "FAILED"
	case CBSInstanceClosed:
		return "INSTANCE_CLOSED"
	default:
		return "UNKNOWN"
	}
}

// DeliveryOutcome settles a received delivery.
type DeliveryOutcome uint8

const (
	OutcomeAccepted DeliveryOutcome = iota
	OutcomeReleased
	OutcomeRejected
)

// String returns the outcome name.
func (o DeliveryOutcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "ACCEPTED"
	case OutcomeReleased:
		return "RELEASED"
	case OutcomeRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}
