package record

import (
	"encoding/binary"
	"io"
)

// EncodeFrame encodes a record with the given type and payload.
// Layout: [len u32][type u8][payload][crc32c u32], len = 1 + len(payload).
func EncodeFrame(recordType RecordType, payload []byte) ([]byte, error) {
	recordLen := uint32(len(payload)) + 1 //nolint:gosec
	if err := ValidateRecordLength(recordLen); err != nil {
		return nil, err
	}

	data := make([]byte, RecordHeaderSize+recordLen+RecordCRCSize)
	binary.LittleEndian.PutUint32(data[:RecordHeaderSize], recordLen)
	data[RecordHeaderSize] = byte(recordType)
	copy(data[RecordHeaderSize+RecordTypeHeaderSize:], payload)

	crc := ComputeChecksum(data[RecordHeaderSize : RecordHeaderSize+recordLen])
	binary.LittleEndian.PutUint32(data[RecordHeaderSize+recordLen:], crc)

	return data, nil
}

// DecodeFrame decodes exactly one framed record from data.
func DecodeFrame(data []byte) (FramedRecord, error) {
	if len(data) < RecordHeaderSize+RecordCRCSize {
		return FramedRecord{}, &ParseError{
			Kind: KindTruncated,
			Want: RecordHeaderSize + RecordCRCSize,
			Have: len(data),
			Err:  io.ErrUnexpectedEOF,
		}
	}

	recordLen := binary.LittleEndian.Uint32(data[:RecordHeaderSize])
	if err := ValidateRecordLength(recordLen); err != nil {
		return FramedRecord{}, err
	}

	wantTotal := RecordHeaderSize + int(recordLen) + RecordCRCSize
	if len(data) < wantTotal {
		return FramedRecord{}, &ParseError{
			Kind:        KindTruncated,
			DeclaredLen: recordLen,
			Want:        wantTotal,
			Have:        len(data),
			Err:         io.ErrUnexpectedEOF,
		}
	}
	if len(data) != wantTotal {
		return FramedRecord{}, &ParseError{
			Kind:        KindCorrupt,
			DeclaredLen: recordLen,
			Want:        wantTotal,
			Have:        len(data),
			Err:         ErrCorrupt,
		}
	}

	return decodeBody(0, recordLen, data[RecordHeaderSize:])
}

// decodeBody parses [type][payload][crc] for a record starting at offset.
func decodeBody(offset int64, recordLen uint32, body []byte) (FramedRecord, error) {
	rawType := body[0]
	recordType := RecordType(rawType)
	if !recordType.Valid() {
		return FramedRecord{}, &ParseError{
			Kind:               KindInvalidType,
			Offset:             offset,
			SafeTruncateOffset: offset,
			DeclaredLen:        recordLen,
			RawType:            rawType,
			RecordType:         recordType,
			Err:                ErrInvalidType,
		}
	}

	rec := FramedRecord{
		Offset: offset,
		Size:   int64(RecordHeaderSize + recordLen + RecordCRCSize),
		Record: Record{
			Len:     recordLen,
			Type:    recordType,
			Payload: body[RecordTypeHeaderSize:recordLen],
			CRC:     binary.LittleEndian.Uint32(body[recordLen : recordLen+RecordCRCSize]),
		},
	}

	if !VerifyChecksum(&rec.Record) {
		return FramedRecord{}, &ParseError{
			Kind:               KindChecksumMismatch,
			Offset:             offset,
			SafeTruncateOffset: offset,
			DeclaredLen:        recordLen,
			RawType:            rawType,
			RecordType:         recordType,
			Err:                ErrChecksumMismatch,
		}
	}

	return rec, nil
}
