package transport

// State is the controller state.
type State uint8

const (
	// StateDisconnected means no connection resources exist.
	StateDisconnected State = iota

	// StateConnecting is held while the IO stack and session are created.
	StateConnecting

	// StateAuthenticating means a CBS token exchange is pending.
	StateAuthenticating

	// StateActive means events flow.
	StateActive

	// StateError means a fatal condition was observed; the next tick
	// tears everything down.
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateActive:
		return "ACTIVE"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// CBSState is the claims-based security authenticator state.
type CBSState uint8

const (
	CBSIdle CBSState = iota
	CBSAuthInProgress
	CBSAuthenticated
)

// String returns the state name.
func (s CBSState) String() string {
	switch s {
	case CBSIdle:
		return "IDLE"
	case CBSAuthInProgress:
		return "AUTH_IN_PROGRESS"
	case CBSAuthenticated:
		return "AUTHENTICATED"
	default:
		return "UNKNOWN"
	}
}

// SendStatus reports whether events are pending.
type SendStatus uint8

const (
	SendStatusIdle SendStatus = iota
	SendStatusBusy
)

// String returns the status name.
func (s SendStatus) String() string {
	switch s {
	case SendStatusIdle:
		return "IDLE"
	case SendStatusBusy:
		return "BUSY"
	default:
		return "UNKNOWN"
	}
}
