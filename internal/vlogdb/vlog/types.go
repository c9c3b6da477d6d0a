package vlog

import (
	"fmt"

	"github.com/julianstephens/vlogdb/internal/vlogdb/vlog/record"
)

const (
	FirstSegmentID uint64 = 1

	segmentFilePattern = "vlog-%020d.vlog"
)

// SegmentFileName returns the file name of segment segID.
func SegmentFileName(segID uint64) string {
	return fmt.Sprintf(segmentFilePattern, segID)
}

// ParseSegmentFileName extracts the segment id from a segment file name.
func ParseSegmentFileName(name string) (uint64, bool) {
	var segID uint64
	n, err := fmt.Sscanf(name, segmentFilePattern, &segID)
	if err != nil || n != 1 || name != SegmentFileName(segID) {
		return 0, false
	}
	return segID, true
}

// Entry is a decoded value record.
type Entry struct {
	Key    []byte
	Value  []byte
	Type   record.RecordType
	Offset int64
	Size   int64
}

// ValueAppender appends value records to one segment.
type ValueAppender interface {
	// Append writes one record and returns the offset of its header.
	Append(recordType record.RecordType, payload []byte) (offset int64, err error)
	Flush() error
	FSync() error
	Close() error
}
