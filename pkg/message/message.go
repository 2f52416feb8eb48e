package message

import (
	"errors"
	"maps"

	"github.com/google/uuid"
)

// Message errors.
var (
	ErrUnknownContentType = errors.New("message: content type is not set")
	ErrWrongContentType   = errors.New("message: payload accessed with the wrong content type")
)

// ContentType identifies how the payload was supplied.
type ContentType uint8

const (
	// ContentTypeUnknown is the zero value; such a message cannot be sent.
	ContentTypeUnknown ContentType = iota

	// ContentTypeBytes is an opaque byte payload.
	ContentTypeBytes

	// ContentTypeString is a UTF-8 string payload.
	ContentTypeString
)

// String returns a human-readable content type name.
func (c ContentType) String() string {
	switch c {
	case ContentTypeUnknown:
		return "UNKNOWN"
	case ContentTypeBytes:
		return "BYTES"
	case ContentTypeString:
		return "STRING"
	default:
		return "INVALID"
	}
}

// Message is a telemetry event or a cloud-to-device command.
type Message struct {
	contentType ContentType
	bytes       []byte
	text        string

	// MessageID is optional; empty means absent.
	MessageID string

	// CorrelationID is optional; empty means absent.
	CorrelationID string

	// Properties are application key/value pairs.
	Properties map[string]string
}

// NewBytes creates a message with a byte payload. The slice is copied.
func NewBytes(payload []byte) *Message {
	return &Message{
		contentType: ContentTypeBytes,
		bytes:       append([]byte(nil), payload...),
		Properties:  make(map[string]string),
	}
}

// NewString creates a message with a string payload.
func NewString(payload string) *Message {
	return &Message{
		contentType: ContentTypeString,
		text:        payload,
		Properties:  make(map[string]string),
	}
}

// NewID returns a random message id suitable for MessageID or CorrelationID.
func NewID() string {
	return uuid.NewString()
}

// ContentType returns how the payload was supplied.
func (m *Message) ContentType() ContentType { return m.contentType }

// Bytes returns the payload of a ContentTypeBytes message.
func (m *Message) Bytes() ([]byte, error) {
	if m.contentType != ContentTypeBytes {
		return nil, ErrWrongContentType
	}
	return m.bytes, nil
}

// Text returns the payload of a ContentTypeString message.
func (m *Message) Text() (string, error) {
	if m.contentType != ContentTypeString {
		return "", ErrWrongContentType
	}
	return m.text, nil
}

// Payload returns the payload bytes regardless of content type.
func (m *Message) Payload() ([]byte, error) {
	switch m.contentType {
	case ContentTypeBytes:
		return m.bytes, nil
	case ContentTypeString:
		return []byte(m.text), nil
	default:
		return nil, ErrUnknownContentType
	}
}

// Clone returns a deep copy of m.
func (m *Message) Clone() *Message {
	c := *m
	c.bytes = append([]byte(nil), m.bytes...)
	c.Properties = maps.Clone(m.Properties)
	return &c
}
