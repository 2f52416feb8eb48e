package log

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// CaptureExt is the file extension of AMQP capture files.
const CaptureExt = ".alog"

const captureTimeLayout = "20060102T150405Z"

// CapturePath returns the capture file for a device session started at at:
// <dir>/<deviceID>-<UTC timestamp>.alog. Characters of deviceID that are
// unsafe in file names are replaced with '_'.
func CapturePath(dir, deviceID string, at time.Time) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '.':
			return r
		}
		return '_'
	}, deviceID)
	if name == "" {
		name = "device"
	}
	return filepath.Join(dir, name+"-"+at.UTC().Format(captureTimeLayout)+CaptureExt)
}

// FileLogger appends capture events to a file. It is safe for concurrent
// use.
type FileLogger struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	encoder  *cbor.Encoder
	written  int
	writeErr error
	closed   bool
}

// NewFileLogger opens path for appending, creating it and its directory when
// missing. Capture files are readable by the owner only.
func NewFileLogger(path string) (*FileLogger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating capture directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening capture file: %w", err)
	}
	return &FileLogger{
		path:    path,
		file:    f,
		encoder: NewEncoder(f),
	}, nil
}

// Path returns the capture file path.
func (l *FileLogger) Path() string { return l.path }

// Log appends event. After the first write error the logger stops writing;
// the error is reported by Close.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || l.writeErr != nil {
		return
	}
	if err := l.encoder.Encode(event); err != nil {
		l.writeErr = fmt.Errorf("writing capture event %d: %w", l.written+1, err)
		return
	}
	l.written++
}

// Written returns the number of events appended so far.
func (l *FileLogger) Written() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written
}

// Close closes the file and returns the first write error, if any. Later
// calls return nil and Log becomes a no-op.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return errors.Join(l.writeErr, l.file.Close())
}

var _ Logger = (*FileLogger)(nil)
