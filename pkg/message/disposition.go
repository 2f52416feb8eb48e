package message

// Disposition is the host's verdict on an inbound message.
type Disposition uint8

const (
	// Accepted means the message was processed.
	Accepted Disposition = iota

	// Abandoned means the message was not processed and may be redelivered.
	Abandoned

	// Rejected means the message failed permanently.
	Rejected
)

// String returns a human-readable disposition name.
func (d Disposition) String() string {
	switch d {
	case Accepted:
		return "ACCEPTED"
	case Abandoned:
		return "ABANDONED"
	case Rejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}
