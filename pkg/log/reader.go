package log

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects capture events. Zero fields match everything.
type Filter struct {
	ConnectionID string
	DeviceID     string
	Host         string
	Direction    *Direction
	Layer        *Layer
	Category     *Category

	// Entity keeps only state changes of one endpoint kind.
	Entity *StateEntity

	// TimeStart is inclusive, TimeEnd exclusive.
	TimeStart *time.Time
	TimeEnd   *time.Time
}

func (f *Filter) matches(e *Event) bool {
	switch {
	case f.ConnectionID != "" && e.ConnectionID != f.ConnectionID,
		f.DeviceID != "" && e.DeviceID != f.DeviceID,
		f.Host != "" && e.Host != f.Host:
		return false
	case f.Direction != nil && e.Direction != *f.Direction,
		f.Layer != nil && e.Layer != *f.Layer,
		f.Category != nil && e.Category != *f.Category:
		return false
	case f.TimeStart != nil && e.Timestamp.Before(*f.TimeStart),
		f.TimeEnd != nil && !e.Timestamp.Before(*f.TimeEnd):
		return false
	}
	if f.Entity != nil {
		return e.StateChange != nil && e.StateChange.Entity == *f.Entity
	}
	return true
}

// Reader iterates the events of a capture.
type Reader struct {
	closer  io.Closer
	decoder *cbor.Decoder
	filter  Filter
	read    int
}

// NewReader opens a capture file and reads every event.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens a capture file and reads the events matching
// filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening capture: %w", err)
	}
	r := NewStreamReader(f, filter)
	r.closer = f
	return r, nil
}

// NewStreamReader reads capture events from src. Close does not close src.
func NewStreamReader(src io.Reader, filter Filter) *Reader {
	return &Reader{decoder: NewDecoder(src), filter: filter}
}

// Next returns the next matching event, or io.EOF at the end of the
// capture. A capture cut off inside an event yields ErrTruncated.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		err := r.decoder.Decode(&event)
		switch {
		case err == io.EOF:
			return Event{}, io.EOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			return Event{}, fmt.Errorf("%w after %d events", ErrTruncated, r.read)
		case err != nil:
			return Event{}, fmt.Errorf("event %d: %w", r.read+1, err)
		}
		r.read++
		if r.filter.matches(&event) {
			return event, nil
		}
	}
}

// Connections returns the distinct connection ids of the remaining matching
// events in order of first appearance. It consumes the reader.
func (r *Reader) Connections() ([]string, error) {
	seen := make(map[string]bool)
	var ids []string
	for {
		event, err := r.Next()
		if err == io.EOF {
			return ids, nil
		}
		if err != nil {
			return ids, err
		}
		if event.ConnectionID != "" && !seen[event.ConnectionID] {
			seen[event.ConnectionID] = true
			ids = append(ids, event.ConnectionID)
		}
	}
}

// Close closes the capture file opened by NewReader or NewFilteredReader.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
