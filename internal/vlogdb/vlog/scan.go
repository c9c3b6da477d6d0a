package vlog

import (
	"io"

	"github.com/julianstephens/go-utils/generic"

	"github.com/julianstephens/vlogdb/internal/vlogdb/vlog/record"
)

type TailStatus int

const (
	// TailStatusValid indicates every byte of the segment decoded cleanly.
	TailStatusValid TailStatus = iota
	// TailStatusTruncated indicates a torn final record that can be cut off.
	TailStatusTruncated
	// TailStatusCorrupt indicates an undecodable record.
	TailStatusCorrupt
)

func (ts TailStatus) String() string {
	switch ts {
	case TailStatusValid:
		return "valid"
	case TailStatusTruncated:
		return "truncated"
	case TailStatusCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// ScanResult summarizes a sequential pass over one segment.
type ScanResult struct {
	SegID   uint64
	Records int
	Bytes   int64
	// LastValid is the offset just past the last intact record.
	LastValid  int64
	TailStatus TailStatus
	// TailErr is the parse error that ended the scan early, if any.
	TailErr *record.ParseError
}

// ScanSegment reads framed records from r until EOF or the first invalid
// record, calling visit for each intact record. Parse failures are reported
// in the result; only I/O and visit errors are returned.
func ScanSegment(segID uint64, r io.Reader, visit func(rec record.FramedRecord) error) (*ScanResult, error) {
	res := &ScanResult{SegID: segID}
	fr := record.NewFrameReader(r)

	for {
		rec, err := fr.Next()
		if err != nil {
			if record.IsCleanEOF(err) {
				return res, nil
			}
			pe, ok := record.AsParseError(err)
			if !ok {
				return res, err
			}
			res.TailErr = pe
			res.TailStatus = generic.If(record.IsTruncation(pe), TailStatusTruncated, TailStatusCorrupt)
			return res, nil
		}

		if visit != nil {
			if err := visit(rec); err != nil {
				return res, err
			}
		}
		res.Records++
		res.Bytes += rec.Size
		res.LastValid = rec.Offset + rec.Size
	}
}
