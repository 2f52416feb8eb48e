package log

import "errors"

// MultiLogger sends every event to each of its loggers in order.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger returns a MultiLogger over loggers. Nil entries and
// NoopLoggers are dropped.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		switch l.(type) {
		case nil, NoopLogger, *NoopLogger:
			continue
		}
		m.loggers = append(m.loggers, l)
	}
	return m
}

// Combine returns loggers as a single Logger: nil when none is left after
// dropping nil and no-op entries, the logger itself when one is left.
func Combine(loggers ...Logger) Logger {
	m := NewMultiLogger(loggers...)
	switch len(m.loggers) {
	case 0:
		return nil
	case 1:
		return m.loggers[0]
	default:
		return m
	}
}

// Log forwards event.
func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

// Close closes every member that owns a resource.
func (m *MultiLogger) Close() error {
	var errs []error
	for _, l := range m.loggers {
		if err := Close(l); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Logger = (*MultiLogger)(nil)
