package transport

import (
	"container/list"

	"github.com/cloudmsg/amqp-device-go/pkg/message"
)

// SendResult is reported to an event's completion callback.
type SendResult uint8

const (
	// SendOK means the service accepted the event.
	SendOK SendResult = iota
	// SendError means the event could not be delivered.
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

// Event is one outbound telemetry message and its completion callback.
// An event belongs to at most one queue at a time.
type Event struct {
	msg        *message.Message
	onComplete func(SendResult)
	attempts   int

	queue *EventQueue
	elem  *list.Element
}

// NewEvent returns an event for msg. onComplete may be nil; it receives the
// outcome exactly once, unless the event is still queued when the transport
// is destroyed.
func NewEvent(msg *message.Message, onComplete func(SendResult)) *Event {
	return &Event{msg: msg, onComplete: onComplete}
}

// Message returns the event payload.
func (e *Event) Message() *message.Message { return e.msg }

// Attempts returns how many times the event was handed to the sender. A
// non-zero value on a waiting event means an earlier attempt ended in a
// teardown with unknown outcome.
func (e *Event) Attempts() int { return e.attempts }

// Queued reports whether the event is in a queue.
func (e *Event) Queued() bool { return e.queue != nil }

// EventQueue is an ordered event queue with O(1) moves between queues.
// The zero value is an empty queue.
//
// The waiting queue is shared with the transport: the host appends with
// Push and the transport removes. Once the transport is destroyed the host
// may drain it with PopFront.
type EventQueue struct {
	l list.List
}

// NewEventQueue returns an empty queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{}
}

// Push appends e.
func (q *EventQueue) Push(e *Event) error {
	if e == nil {
		return ErrEventQueued
	}
	if e.queue != nil {
		return ErrEventQueued
	}
	q.pushBack(e)
	return nil
}

// Len returns the number of queued events.
func (q *EventQueue) Len() int { return q.l.Len() }

// Front returns the head event or nil.
func (q *EventQueue) Front() *Event {
	if el := q.l.Front(); el != nil {
		return el.Value.(*Event)
	}
	return nil
}

// Events returns the queued events in order.
func (q *EventQueue) Events() []*Event {
	out := make([]*Event, 0, q.l.Len())
	for el := q.l.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*Event))
	}
	return out
}

// PopFront removes and returns the head event, or nil when empty.
func (q *EventQueue) PopFront() *Event {
	e := q.Front()
	if e != nil {
		q.remove(e)
	}
	return e
}

func (q *EventQueue) pushBack(e *Event) {
	e.queue = q
	e.elem = q.l.PushBack(e)
}

func (q *EventQueue) pushFront(e *Event) {
	e.queue = q
	e.elem = q.l.PushFront(e)
}

// remove unlinks e and reports whether it was in q.
func (q *EventQueue) remove(e *Event) bool {
	if e.queue != q {
		return false
	}
	q.l.Remove(e.elem)
	e.queue = nil
	e.elem = nil
	return true
}

// rollbackInto moves every event of q to the head of dst, keeping order.
func (q *EventQueue) rollbackInto(dst *EventQueue) int {
	n := 0
	for el := q.l.Back(); el != nil; el = q.l.Back() {
		e := el.Value.(*Event)
		q.remove(e)
		dst.pushFront(e)
		n++
	}
	return n
}
