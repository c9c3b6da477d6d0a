package logger

// Logger is the logging surface used across vlogdb.
// Fields are alternating key/value pairs.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	// Error logs err alongside msg; err may be nil.
	Error(msg string, err error, fields ...interface{})
}

// Closeable is implemented by loggers that hold resources.
type Closeable interface {
	Close() error
}

// NoOpLogger discards everything. It is the default for library callers and tests.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, ...interface{})        {}
func (NoOpLogger) Info(string, ...interface{})         {}
func (NoOpLogger) Warn(string, ...interface{})         {}
func (NoOpLogger) Error(string, error, ...interface{}) {}

var _ Logger = NoOpLogger{}

// OrNoOp returns lg, or a NoOpLogger when lg is nil.
func OrNoOp(lg Logger) Logger {
	if lg == nil {
		return NoOpLogger{}
	}
	return lg
}
