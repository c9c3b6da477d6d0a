package registry

import (
	"errors"
	"fmt"
)

var (
	ErrNilReader        = errors.New("registry: nil segment reader")
	ErrDuplicateSegment = errors.New("registry: segment already registered")
	ErrSegmentNotFound  = errors.New("registry: segment not found")
	ErrRegistryClosed   = errors.New("registry: closed")
	ErrReaderClose      = errors.New("registry: close segment reader failed")
)

// RegistryError wraps registry failures with the segment they concern.
// Err is always one of the sentinels above so callers can errors.Is against it.
type RegistryError struct {
	Err error

	// Op is a short label: "register", "remove", "mark_live", "mark_dead", "close".
	Op    string
	SegID uint64

	Cause error
}

func (e *RegistryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s seg=%d: %s: %v", e.Op, e.SegID, e.Err.Error(), e.Cause)
	}
	return fmt.Sprintf("%s seg=%d: %s", e.Op, e.SegID, e.Err.Error())
}

func (e *RegistryError) Unwrap() error { return e.Err }

// CauseErr returns the underlying cause (not used by errors.Is).
func (e *RegistryError) CauseErr() error { return e.Cause }

func wrapRegistryErr(op string, sentinel error, segID uint64, cause error) error {
	return &RegistryError{
		Err:   sentinel,
		Op:    op,
		SegID: segID,
		Cause: cause,
	}
}
