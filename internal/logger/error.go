package logger

import "errors"

var (
	ErrLogCreate    = errors.New("logger: create error")
	ErrLogClose     = errors.New("logger: close error")
	ErrInvalidLevel = errors.New("logger: invalid level")
)

type LoggerError struct {
	Op    string // operation being performed, e.g. "create file logger"
	Err   error  // sentinel
	Cause error  // underlying failure, if any
	Path  string // optional path related to the error
}

func (e *LoggerError) Error() string {
	msg := e.Op + " error: " + e.Err.Error()
	if e.Path != "" {
		msg = e.Op + " error on " + e.Path + ": " + e.Err.Error()
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *LoggerError) Unwrap() error {
	return e.Err
}

func wrapLoggerErr(op string, err, cause error, path string) error {
	return &LoggerError{
		Op:    op,
		Err:   err,
		Cause: cause,
		Path:  path,
	}
}
