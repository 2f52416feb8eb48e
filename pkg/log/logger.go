package log

import "io"

// Logger receives protocol capture events. The transport calls Log from the
// goroutine running DoWork and the go-amqp adapter calls it from its worker
// goroutines, so implementations must be safe for concurrent use. Log must
// not block for long.
type Logger interface {
	Log(event Event)
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(Event)

// Log calls f(event).
func (f LoggerFunc) Log(event Event) { f(event) }

// NoopLogger discards events.
type NoopLogger struct{}

// Log does nothing.
func (NoopLogger) Log(Event) {}

// Close releases whatever l owns, such as a capture file. Loggers that own
// nothing are left alone.
func Close(l Logger) error {
	if c, ok := l.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

var (
	_ Logger = NoopLogger{}
	_ Logger = LoggerFunc(nil)
)
