package logger

// LoggingClient defines the interface for logging operations.
// Non-formatted methods treat trailing args as key/value pairs.
type LoggingClient interface {
	SetLogLevel(logLevel string) error
	LogLevel() string

	Trace(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})

	Tracef(msg string, args ...interface{})
	Debugf(msg string, args ...interface{})
	Infof(msg string, args ...interface{})
	Warnf(msg string, args ...interface{})
	Errorf(msg string, args ...interface{})

	Close() error
}
