package vlog_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	tst "github.com/julianstephens/go-utils/tests"

	"github.com/julianstephens/vlogdb/internal/vlogdb/vlog"
	"github.com/julianstephens/vlogdb/internal/vlogdb/vlog/record"
)

// writeSegment writes framed value records to a new segment file and returns
// its path and the record offsets.
func writeSegment(t *testing.T, recordType record.RecordType, kvs ...[2]string) (string, []int64) {
	t.Helper()
	path := filepath.Join(t.TempDir(), vlog.SegmentFileName(1))
	file, err := os.Create(path) //nolint:gosec
	tst.RequireNoError(t, err)

	appender, err := vlog.NewSegmentAppender(file)
	tst.RequireNoError(t, err)

	offsets := make([]int64, 0, len(kvs))
	for _, kv := range kvs {
		payload, err := record.EncodeValuePayload(recordType, []byte(kv[0]), []byte(kv[1]))
		tst.RequireNoError(t, err)
		offset, err := appender.Append(recordType, payload)
		tst.RequireNoError(t, err)
		offsets = append(offsets, offset)
	}
	tst.RequireNoError(t, appender.Close())
	return path, offsets
}

func TestSegmentReaderReadAt(t *testing.T) {
	path, offsets := writeSegment(t, record.RecordTypeValue,
		[2]string{"alpha", "one"},
		[2]string{"beta", "two"},
		[2]string{"gamma", ""},
	)

	reader, err := vlog.OpenSegmentReader(path, 1)
	tst.RequireNoError(t, err)
	defer reader.Close() //nolint:errcheck

	tst.AssertEqual(t, reader.SegID(), uint64(1), "segment id")

	// Read out of order to exercise positioned reads.
	entry, err := reader.ReadAt(offsets[1])
	tst.RequireNoError(t, err)
	tst.AssertEqual(t, string(entry.Key), "beta", "key")
	tst.AssertEqual(t, string(entry.Value), "two", "value")
	tst.AssertEqual(t, entry.Offset, offsets[1], "entry offset")
	tst.AssertEqual(t, entry.Size, offsets[2]-offsets[1], "entry size")

	entry, err = reader.ReadAt(offsets[2])
	tst.RequireNoError(t, err)
	tst.AssertEqual(t, string(entry.Key), "gamma", "key")
	tst.AssertEqual(t, len(entry.Value), 0, "empty value")

	entry, err = reader.ReadAt(offsets[0])
	tst.RequireNoError(t, err)
	tst.AssertEqual(t, string(entry.Value), "one", "value")

	size, err := reader.Size()
	tst.RequireNoError(t, err)
	tst.AssertGreaterThan(t, size, offsets[2], "segment size covers the last record")
}

func TestSegmentReaderReadAtCompressed(t *testing.T) {
	value := string(make([]byte, 8<<10))
	path, offsets := writeSegment(t, record.RecordTypeValueZstd, [2]string{"k", value})

	reader, err := vlog.OpenSegmentReader(path, 1)
	tst.RequireNoError(t, err)
	defer reader.Close() //nolint:errcheck

	entry, err := reader.ReadAt(offsets[0])
	tst.RequireNoError(t, err)
	tst.AssertEqual(t, entry.Type, record.RecordTypeValueZstd, "record type")
	tst.AssertEqual(t, string(entry.Value), value, "decompressed value")
}

func TestSegmentReaderReadAtInvalidOffset(t *testing.T) {
	path, offsets := writeSegment(t, record.RecordTypeValue, [2]string{"k", "v"})

	reader, err := vlog.OpenSegmentReader(path, 1)
	tst.RequireNoError(t, err)
	defer reader.Close() //nolint:errcheck

	size, err := reader.Size()
	tst.RequireNoError(t, err)

	for _, off := range []int64{-1, size, size + 100} {
		_, err := reader.ReadAt(off)
		tst.AssertNotNil(t, err, "expected error reading outside the segment")
		var rerr *vlog.SegmentReadError
		tst.AssertTrue(t, errors.As(err, &rerr), "expected SegmentReadError")
	}

	// Misaligned offset lands inside a record.
	_, err = reader.ReadAt(offsets[0] + 1)
	tst.AssertTrue(t, errors.Is(err, vlog.ErrReadFailed), "expected ErrReadFailed")
}

func TestSegmentReaderReadRecord(t *testing.T) {
	path, offsets := writeSegment(t, record.RecordTypeValue,
		[2]string{"alpha", "one"},
		[2]string{"beta", "two"},
	)

	reader, err := vlog.OpenSegmentReader(path, 1)
	tst.RequireNoError(t, err)
	defer reader.Close() //nolint:errcheck

	fileSize, err := reader.Size()
	tst.RequireNoError(t, err)
	sizes := []uint32{uint32(offsets[1] - offsets[0]), uint32(fileSize - offsets[1])} //nolint:gosec

	entry, err := reader.ReadRecord(offsets[1], sizes[1])
	tst.RequireNoError(t, err)
	tst.AssertEqual(t, string(entry.Key), "beta", "key")
	tst.AssertEqual(t, string(entry.Value), "two", "value")
	tst.AssertEqual(t, entry.Offset, offsets[1], "entry offset")
	tst.AssertEqual(t, entry.Size, int64(sizes[1]), "entry size")

	entry, err = reader.ReadRecord(offsets[0], sizes[0])
	tst.RequireNoError(t, err)
	tst.AssertEqual(t, string(entry.Value), "one", "value")

	bad := []struct {
		name   string
		offset int64
		size   uint32
	}{
		{"size too large", offsets[0], sizes[0] + 1},
		{"size too small", offsets[0], sizes[0] - 1},
		{"size below a frame", offsets[0], 4},
		{"past the end", offsets[1], sizes[1] + 64},
		{"negative offset", -1, sizes[0]},
	}
	for _, tc := range bad {
		t.Run(tc.name, func(t *testing.T) {
			_, err := reader.ReadRecord(tc.offset, tc.size)
			tst.AssertTrue(t, errors.Is(err, vlog.ErrInvalidPointer), "expected ErrInvalidPointer")
		})
	}
}

func TestSegmentReaderReadRecordChecksumMismatch(t *testing.T) {
	path, offsets := writeSegment(t, record.RecordTypeValue, [2]string{"key", "value"})

	data, err := os.ReadFile(path) //nolint:gosec
	tst.RequireNoError(t, err)
	size := uint32(len(data)) //nolint:gosec
	data[len(data)-5] ^= 0xFF
	tst.RequireNoError(t, os.WriteFile(path, data, 0o600))

	reader, err := vlog.OpenSegmentReader(path, 1)
	tst.RequireNoError(t, err)
	defer reader.Close() //nolint:errcheck

	_, err = reader.ReadRecord(offsets[0], size)
	tst.AssertTrue(t, errors.Is(err, record.ErrChecksumMismatch), "expected ErrChecksumMismatch")
	tst.AssertTrue(t, errors.Is(err, vlog.ErrReadFailed), "expected ErrReadFailed")
}

func TestSegmentReaderDetectsChecksumMismatch(t *testing.T) {
	path, offsets := writeSegment(t, record.RecordTypeValue, [2]string{"key", "value"})

	data, err := os.ReadFile(path) //nolint:gosec
	tst.RequireNoError(t, err)
	data[len(data)-5] ^= 0xFF
	tst.RequireNoError(t, os.WriteFile(path, data, 0o600))

	reader, err := vlog.OpenSegmentReader(path, 1)
	tst.RequireNoError(t, err)
	defer reader.Close() //nolint:errcheck

	_, err = reader.ReadAt(offsets[0])
	tst.AssertTrue(t, errors.Is(err, record.ErrChecksumMismatch), "expected ErrChecksumMismatch")
	tst.AssertTrue(t, errors.Is(err, vlog.ErrReadFailed), "expected ErrReadFailed")
}

func TestScanSegmentValid(t *testing.T) {
	path, offsets := writeSegment(t, record.RecordTypeValue,
		[2]string{"a", "1"},
		[2]string{"b", "2"},
	)

	reader, err := vlog.OpenSegmentReader(path, 1)
	tst.RequireNoError(t, err)
	defer reader.Close() //nolint:errcheck

	var seen []int64
	res, err := reader.Scan(func(rec record.FramedRecord) error {
		seen = append(seen, rec.Offset)
		return nil
	})
	tst.RequireNoError(t, err)
	tst.RequireDeepEqual(t, seen, offsets)
	tst.AssertEqual(t, res.Records, 2, "record count")
	tst.AssertEqual(t, res.TailStatus, vlog.TailStatusValid, "tail status")

	size, err := reader.Size()
	tst.RequireNoError(t, err)
	tst.AssertEqual(t, res.LastValid, size, "last valid offset")
	tst.AssertEqual(t, res.Bytes, size, "scanned bytes")
}

func TestScanSegmentTruncatedTail(t *testing.T) {
	path, offsets := writeSegment(t, record.RecordTypeValue,
		[2]string{"a", "1"},
		[2]string{"b", "2"},
	)

	info, err := os.Stat(path)
	tst.RequireNoError(t, err)
	tst.RequireNoError(t, os.Truncate(path, info.Size()-3))

	file, err := os.Open(path) //nolint:gosec
	tst.RequireNoError(t, err)
	defer file.Close() //nolint:errcheck

	res, err := vlog.ScanSegment(1, file, nil)
	tst.RequireNoError(t, err)
	tst.AssertEqual(t, res.TailStatus, vlog.TailStatusTruncated, "tail status")
	tst.AssertEqual(t, res.Records, 1, "intact records")
	tst.AssertEqual(t, res.LastValid, offsets[1], "last valid offset")
	tst.AssertNotNil(t, res.TailErr, "expected tail error")
	tst.AssertEqual(t, res.TailErr.SafeTruncateOffset, offsets[1], "safe truncate offset")
}

func TestScanSegmentCorruptRecord(t *testing.T) {
	path, offsets := writeSegment(t, record.RecordTypeValue,
		[2]string{"a", "1"},
		[2]string{"b", "2"},
	)

	data, err := os.ReadFile(path) //nolint:gosec
	tst.RequireNoError(t, err)
	data[offsets[1]+record.RecordHeaderSize] = 0xEE
	tst.RequireNoError(t, os.WriteFile(path, data, 0o600))

	file, err := os.Open(path) //nolint:gosec
	tst.RequireNoError(t, err)
	defer file.Close() //nolint:errcheck

	res, err := vlog.ScanSegment(1, file, nil)
	tst.RequireNoError(t, err)
	tst.AssertEqual(t, res.TailStatus, vlog.TailStatusCorrupt, "tail status")
	tst.AssertEqual(t, res.LastValid, offsets[1], "last valid offset")
}

func TestScanSegmentVisitError(t *testing.T) {
	path, _ := writeSegment(t, record.RecordTypeValue, [2]string{"a", "1"})

	file, err := os.Open(path) //nolint:gosec
	tst.RequireNoError(t, err)
	defer file.Close() //nolint:errcheck

	stop := errors.New("stop")
	_, err = vlog.ScanSegment(1, file, func(record.FramedRecord) error { return stop })
	tst.AssertTrue(t, errors.Is(err, stop), "expected visit error")
}
