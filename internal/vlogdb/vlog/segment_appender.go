package vlog

import (
	"bufio"
	"io"
	"os"

	"github.com/julianstephens/vlogdb/internal/vlogdb/vlog/record"
)

const (
	segmentAppenderBufferSize = 64 << 10 // 64KiB
)

// SegmentAppender appends framed value records to the tail of one segment file.
// It is not safe for concurrent use; Log serializes access.
type SegmentAppender struct {
	file    *os.File
	writer  *bufio.Writer
	offset  int64 // end of the last appended record, buffered bytes included
	flushed int64 // end of the bytes handed to the file
	closed  bool
}

var _ ValueAppender = (*SegmentAppender)(nil)

// NewSegmentAppender creates a SegmentAppender positioned at the end of file.
// The appender owns file.
func NewSegmentAppender(file *os.File) (*SegmentAppender, error) {
	if file == nil {
		return nil, ErrNilSegmentFile
	}

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return nil, err
	}

	return &SegmentAppender{
		file:    file,
		writer:  bufio.NewWriterSize(file, segmentAppenderBufferSize),
		offset:  size,
		flushed: size,
	}, nil
}

// Append frames payload and buffers it, returning the record's start offset.
func (sa *SegmentAppender) Append(recordType record.RecordType, payload []byte) (int64, error) {
	start := sa.offset
	if sa.closed {
		return 0, &SegmentAppendError{Err: ErrClosedAppender, Offset: start, RecordType: recordType}
	}

	if err := record.ValidateRecordFrame(recordType, payload); err != nil {
		return 0, &SegmentAppendError{Err: ErrInvalidRecord, Cause: err, Offset: start, RecordType: recordType}
	}

	data, err := record.EncodeFrame(recordType, payload)
	if err != nil {
		return 0, &SegmentAppendError{Err: ErrInvalidRecord, Cause: err, Offset: start, RecordType: recordType}
	}

	n, err := sa.writer.Write(data)
	if err != nil {
		return 0, &SegmentAppendError{
			Err:        ErrAppendFailed,
			Cause:      err,
			Offset:     start,
			RecordType: recordType,
			Have:       n,
			Want:       len(data),
		}
	}
	if n != len(data) {
		return 0, &SegmentAppendError{
			Err:        ErrShortWrite,
			Offset:     start,
			RecordType: recordType,
			Have:       n,
			Want:       len(data),
		}
	}

	sa.offset += int64(n)
	return start, nil
}

// Flush hands buffered records to the file.
func (sa *SegmentAppender) Flush() error {
	if sa.closed {
		return ErrClosedAppender
	}
	return sa.flush()
}

// FSync flushes and then fsyncs the segment file.
func (sa *SegmentAppender) FSync() error {
	if sa.closed {
		return ErrClosedAppender
	}
	if err := sa.flush(); err != nil {
		return err
	}
	if err := sa.file.Sync(); err != nil {
		return &SegmentAppendError{Err: ErrSyncFailed, Cause: err, Offset: sa.offset}
	}
	return nil
}

// Close flushes buffered records and closes the file. It does not fsync.
// Closing twice is a no-op.
func (sa *SegmentAppender) Close() error {
	if sa.closed {
		return nil
	}
	sa.closed = true

	flushErr := sa.flush()
	if err := sa.file.Close(); err != nil {
		return &SegmentAppendError{Err: ErrCloseFailed, Cause: err, Offset: sa.offset}
	}
	return flushErr
}

// Truncate flushes and then cuts the segment file down to size.
func (sa *SegmentAppender) Truncate(size int64) error {
	if sa.closed {
		return ErrClosedAppender
	}
	if size < 0 || size > sa.offset {
		return &SegmentAppendError{Err: ErrInvalidRecord, Offset: size}
	}

	if err := sa.flush(); err != nil {
		return err
	}
	if err := sa.file.Truncate(size); err != nil {
		return &SegmentAppendError{Err: ErrAppendFailed, Cause: err, Offset: size}
	}
	if _, err := sa.file.Seek(size, io.SeekStart); err != nil {
		return &SegmentAppendError{Err: ErrAppendFailed, Cause: err, Offset: size}
	}

	sa.offset = size
	sa.flushed = size
	return nil
}

// CurrentOffset returns the offset the next record will be written at.
func (sa *SegmentAppender) CurrentOffset() int64 {
	return sa.offset
}

// FlushedOffset returns the offset up to which records are readable from the file.
func (sa *SegmentAppender) FlushedOffset() int64 {
	return sa.flushed
}

func (sa *SegmentAppender) flush() error {
	if err := sa.writer.Flush(); err != nil {
		return &SegmentAppendError{Err: ErrFlushFailed, Cause: err, Offset: sa.offset}
	}
	sa.flushed = sa.offset
	return nil
}
