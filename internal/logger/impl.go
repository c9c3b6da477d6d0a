package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/julianstephens/go-utils/helpers"
	goulog "github.com/julianstephens/go-utils/logger"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// ConsoleLogger writes leveled lines to stdout, and errors to stderr.
type ConsoleLogger struct {
	minLevel Level
	out      io.Writer
	err      io.Writer
}

// NewConsoleLogger creates a console logger. Unknown levels fall back to info.
func NewConsoleLogger(level string) Logger {
	lvl, _ := ParseLevel(level)
	return &ConsoleLogger{
		minLevel: lvl,
		out:      os.Stdout,
		err:      os.Stderr,
	}
}

func (cl *ConsoleLogger) Debug(msg string, fields ...interface{}) {
	cl.log(LevelDebug, msg, fields...)
}

func (cl *ConsoleLogger) Info(msg string, fields ...interface{}) {
	cl.log(LevelInfo, msg, fields...)
}

func (cl *ConsoleLogger) Warn(msg string, fields ...interface{}) {
	cl.log(LevelWarn, msg, fields...)
}

// Error is always written regardless of the configured level.
func (cl *ConsoleLogger) Error(msg string, err error, fields ...interface{}) {
	cl.log(LevelError, msg, append([]interface{}{"error", err}, fields...)...)
}

func (cl *ConsoleLogger) log(level Level, msg string, fields ...interface{}) {
	if level < cl.minLevel {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s", time.Now().Format(consoleTimeFormat), level, msg)
	for i := 0; i+1 < len(fields); i += 2 {
		fmt.Fprintf(&b, " %v=%v", fields[i], fields[i+1])
	}
	b.WriteByte('\n')

	w := cl.out
	if level == LevelError {
		w = cl.err
	}
	fmt.Fprint(w, b.String()) // nolint:errcheck
}

// FileLogger writes JSON lines to a rotating file through go-utils/logger.
type FileLogger struct {
	underlying *goulog.Logger
	filePath   string
}

// NewFileLogger creates logDir if needed and logs to logDir/logFileName,
// rotating at maxFileSizeMB and keeping maxBackups compressed backups.
func NewFileLogger(logDir string, logFileName string, maxFileSizeMB int, maxBackups int) (Logger, error) {
	if err := helpers.Ensure(logDir, true); err != nil {
		return nil, wrapLoggerErr("create file logger", ErrLogCreate, err, logDir)
	}

	logPath := filepath.Join(logDir, logFileName)
	underlying := goulog.New()
	if err := underlying.SetFileOutputWithConfig(goulog.FileRotationConfig{
		Filename:   logPath,
		MaxSize:    maxFileSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     28,
		Compress:   true,
	}); err != nil {
		return nil, wrapLoggerErr("create file logger", ErrLogCreate, err, logPath)
	}

	return &FileLogger{
		underlying: underlying,
		filePath:   logPath,
	}, nil
}

func (fl *FileLogger) Debug(msg string, fields ...interface{}) {
	fl.underlying.WithFields(fieldsToMap(fields)).Debug(msg)
}

func (fl *FileLogger) Info(msg string, fields ...interface{}) {
	fl.underlying.WithFields(fieldsToMap(fields)).Info(msg)
}

func (fl *FileLogger) Warn(msg string, fields ...interface{}) {
	fl.underlying.WithFields(fieldsToMap(fields)).Warn(msg)
}

func (fl *FileLogger) Error(msg string, err error, fields ...interface{}) {
	fl.underlying.WithFields(fieldsToMap(append([]interface{}{"error", err}, fields...))).Error(msg)
}

// Path returns the active log file path.
func (fl *FileLogger) Path() string {
	return fl.filePath
}

// Close exists for symmetry with other Closeable loggers; go-utils/logger
// flushes on every write.
func (fl *FileLogger) Close() error {
	return nil
}

// fieldsToMap converts alternating key/value arguments into a map.
// A trailing key without a value is dropped.
func fieldsToMap(fields []interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		result[fmt.Sprintf("%v", fields[i])] = fields[i+1]
	}
	return result
}

// MultiLogger fans every call out to several loggers.
type MultiLogger struct {
	loggers []Logger
}

func NewMultiLogger(loggers ...Logger) Logger {
	return &MultiLogger{loggers: loggers}
}

func (ml *MultiLogger) Debug(msg string, fields ...interface{}) {
	for _, lg := range ml.loggers {
		lg.Debug(msg, fields...)
	}
}

func (ml *MultiLogger) Info(msg string, fields ...interface{}) {
	for _, lg := range ml.loggers {
		lg.Info(msg, fields...)
	}
}

func (ml *MultiLogger) Warn(msg string, fields ...interface{}) {
	for _, lg := range ml.loggers {
		lg.Warn(msg, fields...)
	}
}

func (ml *MultiLogger) Error(msg string, err error, fields ...interface{}) {
	for _, lg := range ml.loggers {
		lg.Error(msg, err, fields...)
	}
}

// Close closes every Closeable logger and reports the last failure.
func (ml *MultiLogger) Close() error {
	var lastErr error
	for _, lg := range ml.loggers {
		if c, ok := lg.(Closeable); ok {
			if err := c.Close(); err != nil {
				lastErr = err
			}
		}
	}
	if lastErr != nil {
		return wrapLoggerErr("close multi logger", ErrLogClose, lastErr, "")
	}
	return nil
}
