package record

import (
	"encoding/binary"
	"io"
)

// FrameReader streams framed records sequentially from an io.Reader.
type FrameReader struct {
	r      io.Reader
	offset int64
}

// NewFrameReader creates a new FrameReader that reads framed records from the given io.Reader.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// NewFrameReaderAt creates a FrameReader whose offsets start at base.
// r must already be positioned at base.
func NewFrameReaderAt(r io.Reader, base int64) *FrameReader {
	return &FrameReader{r: r, offset: base}
}

// Next reads the next record from the underlying reader.
// A clean end of stream returns io.EOF; everything else is a *ParseError.
func (fr *FrameReader) Next() (FramedRecord, error) {
	recordStart := fr.offset

	hdr := make([]byte, RecordHeaderSize)
	n, err := io.ReadFull(fr.r, hdr)
	if err != nil {
		fr.offset += int64(n)
		if err == io.EOF && n == 0 {
			return FramedRecord{}, io.EOF
		}
		return FramedRecord{}, &ParseError{
			Kind:               KindTruncated,
			Offset:             recordStart,
			SafeTruncateOffset: recordStart,
			Want:               RecordHeaderSize,
			Have:               n,
			Err:                io.ErrUnexpectedEOF,
		}
	}

	recordLen := binary.LittleEndian.Uint32(hdr)
	if err = ValidateRecordLength(recordLen); err != nil {
		if pe, ok := AsParseError(err); ok {
			return FramedRecord{}, pe.at(recordStart)
		}
		return FramedRecord{}, err
	}

	body := make([]byte, recordLen+RecordCRCSize)
	n, err = io.ReadFull(fr.r, body)
	if err != nil {
		fr.offset += int64(RecordHeaderSize + n)
		return FramedRecord{}, &ParseError{
			Kind:               KindTruncated,
			Offset:             recordStart,
			SafeTruncateOffset: recordStart,
			DeclaredLen:        recordLen,
			Want:               int(recordLen) + RecordCRCSize,
			Have:               n,
			Err:                io.ErrUnexpectedEOF,
		}
	}
	fr.offset += int64(RecordHeaderSize + len(body))

	return decodeBody(recordStart, recordLen, body)
}

// Offset returns the current offset in the underlying reader.
func (fr *FrameReader) Offset() int64 {
	return fr.offset
}
