package vlog

import (
	"errors"
	"fmt"

	"github.com/julianstephens/vlogdb/internal/vlogdb/errorutil"
	"github.com/julianstephens/vlogdb/internal/vlogdb/vlog/record"
)

var (
	// Programmer / caller error
	ErrInvalidRecord  = errors.New("vlog: invalid record")
	ErrInvalidPointer = errors.New("vlog: invalid value pointer")

	// I/O layer failures
	ErrAppendFailed = errors.New("vlog: append failed")
	ErrShortWrite   = errors.New("vlog: short write")
	ErrFlushFailed  = errors.New("vlog: flush failed")
	ErrSyncFailed   = errors.New("vlog: fsync failed")
	ErrCloseFailed  = errors.New("vlog: close failed")
	ErrReadFailed   = errors.New("vlog: read failed")

	// Construction / lifecycle errors
	ErrNilSegmentFile = errors.New("vlog: nil segment file")
	ErrClosedAppender = errors.New("vlog: segment appender closed")
)

var (
	ErrLogClosed       = errors.New("vlog: log closed")
	ErrSegmentNotFound = errors.New("vlog: segment not found")
	ErrSegmentList     = errors.New("vlog: list segments failed")
	ErrSegmentOrder    = errors.New("vlog: segment ids out of order")
	ErrSegmentOpen     = errors.New("vlog: open segment failed")
	ErrSegmentCreate   = errors.New("vlog: create segment failed")
	ErrSegmentRotate   = errors.New("vlog: rotate segment failed")
	ErrSegmentRegister = errors.New("vlog: register segment failed")
	ErrSegmentRepair   = errors.New("vlog: repair segment tail failed")
	ErrSegmentCorrupt  = errors.New("vlog: segment corrupt")
	ErrSegmentClose    = errors.New("vlog: close segment failed")
	ErrSegmentFlush    = errors.New("vlog: flush segment failed")
	ErrSegmentSync     = errors.New("vlog: fsync segment failed")
	ErrInvalidLogDir   = errors.New("vlog: invalid value log dir")
	ErrInvalidOptions  = errors.New("vlog: invalid options")
)

// SegmentAppendError describes a failed append to a single segment.
type SegmentAppendError struct {
	Err        error
	Cause      error // underlying error, if any
	Offset     int64 // offset where write was attempted
	RecordType record.RecordType
	Have       int // bytes written (if short write)
	Want       int // bytes expected
}

func (e *SegmentAppendError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s at=%d: %v", e.Err.Error(), e.Offset, e.Cause)
	}
	return fmt.Sprintf("%s at=%d", e.Err.Error(), e.Offset)
}

func (e *SegmentAppendError) Unwrap() error { return e.Err }

// SegmentReadError describes a failed positioned read.
// Errors from the record layer stay reachable through Cause and errors.Is.
type SegmentReadError struct {
	Err         error
	Coordinates *errorutil.Coordinates
	Cause       error
}

func (e *SegmentReadError) Error() string {
	msg := e.Err.Error()
	if c := e.Coordinates.FormatCoordinates(); c != "" {
		msg += " " + c
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *SegmentReadError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// LogError wraps log-level failures with context.
type LogError struct {
	Err error

	Dir   string
	SegID uint64

	// Op is a short label for where the error occurred:
	// "open", "append", "get", "flush", "fsync", "rotate", "close", "list", etc.
	Op string

	Cause error
}

func (e *LogError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Err.Error(), e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err.Error())
}

func (e *LogError) Unwrap() error {
	return e.Err
}

// CauseErr returns the underlying cause (not used by errors.Is).
func (e *LogError) CauseErr() error { return e.Cause }

func wrapLogErr(op string, sentinel error, dir string, segID uint64, cause error) error {
	return &LogError{
		Err:   sentinel,
		Dir:   dir,
		SegID: segID,
		Op:    op,
		Cause: cause,
	}
}

func logClosed(dir string) error {
	return &LogError{
		Err: ErrLogClosed,
		Dir: dir,
		Op:  "log",
	}
}
