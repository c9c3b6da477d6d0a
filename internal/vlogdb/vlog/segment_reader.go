package vlog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"

	"github.com/julianstephens/vlogdb/internal/vlogdb/errorutil"
	"github.com/julianstephens/vlogdb/internal/vlogdb/vlog/record"
)

// SegmentReader serves positioned reads of value records from one segment.
// Implementations must allow concurrent ReadAt calls.
type SegmentReader interface {
	SegID() uint64
	// ReadAt decodes the record whose header starts at offset.
	ReadAt(offset int64) (Entry, error)
	// ReadRecord decodes the record at offset whose framed size is known.
	// A size that does not match the record is ErrInvalidPointer.
	ReadRecord(offset int64, size uint32) (Entry, error)
	// Scan walks every intact record from the start of the segment.
	Scan(visit func(rec record.FramedRecord) error) (*ScanResult, error)
	Size() (int64, error)
	Close() error
}

const scanBufferSize = 64 << 10

type fileSegmentReader struct {
	segID uint64
	file  *os.File
}

// NewFileSegmentReader wraps an open segment file. The reader owns file.
func NewFileSegmentReader(segID uint64, file *os.File) SegmentReader {
	return &fileSegmentReader{
		segID: segID,
		file:  file,
	}
}

// OpenSegmentReader opens the segment file at path read-only.
func OpenSegmentReader(path string, segID uint64) (SegmentReader, error) {
	file, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, err
	}
	return NewFileSegmentReader(segID, file), nil
}

func (sr *fileSegmentReader) SegID() uint64 {
	return sr.segID
}

func (sr *fileSegmentReader) ReadAt(offset int64) (Entry, error) {
	coords := errorutil.At(sr.segID, offset)
	if offset < 0 {
		return Entry{}, &SegmentReadError{Err: ErrInvalidPointer, Coordinates: coords}
	}

	section := io.NewSectionReader(sr.file, offset, math.MaxInt64-offset)
	rec, err := record.NewFrameReaderAt(section, offset).Next()
	if err != nil {
		if record.IsCleanEOF(err) {
			err = io.ErrUnexpectedEOF
		}
		return Entry{}, &SegmentReadError{Err: ErrReadFailed, Coordinates: coords, Cause: err}
	}

	return decodeEntry(rec, coords)
}

func (sr *fileSegmentReader) ReadRecord(offset int64, size uint32) (Entry, error) {
	coords := errorutil.At(sr.segID, offset).WithSize(size)
	if offset < 0 || size < record.RecordHeaderSize+record.RecordCRCSize {
		return Entry{}, &SegmentReadError{Err: ErrInvalidPointer, Coordinates: coords}
	}

	buf := make([]byte, size)
	if _, err := sr.file.ReadAt(buf, offset); err != nil {
		if errors.Is(err, io.EOF) {
			return Entry{}, &SegmentReadError{Err: ErrInvalidPointer, Coordinates: coords, Cause: io.ErrUnexpectedEOF}
		}
		return Entry{}, &SegmentReadError{Err: ErrReadFailed, Coordinates: coords, Cause: err}
	}

	declared := int64(record.RecordHeaderSize) + int64(binary.LittleEndian.Uint32(buf)) + record.RecordCRCSize
	if declared != int64(size) {
		return Entry{}, &SegmentReadError{Err: ErrInvalidPointer, Coordinates: coords}
	}

	rec, err := record.DecodeFrame(buf)
	if err != nil {
		return Entry{}, &SegmentReadError{Err: ErrReadFailed, Coordinates: coords, Cause: err}
	}
	rec.Offset = offset
	return decodeEntry(rec, coords)
}

func decodeEntry(rec record.FramedRecord, coords *errorutil.Coordinates) (Entry, error) {
	payload, err := record.DecodeValuePayload(rec.Record.Type, rec.Record.Payload)
	if err != nil {
		return Entry{}, &SegmentReadError{Err: ErrReadFailed, Coordinates: coords, Cause: err}
	}

	return Entry{
		Key:    payload.Key,
		Value:  payload.Value,
		Type:   rec.Record.Type,
		Offset: rec.Offset,
		Size:   rec.Size,
	}, nil
}

func (sr *fileSegmentReader) Scan(visit func(rec record.FramedRecord) error) (*ScanResult, error) {
	section := io.NewSectionReader(sr.file, 0, math.MaxInt64)
	return ScanSegment(sr.segID, bufio.NewReaderSize(section, scanBufferSize), visit)
}

func (sr *fileSegmentReader) Size() (int64, error) {
	info, err := sr.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (sr *fileSegmentReader) Close() error {
	return sr.file.Close()
}
