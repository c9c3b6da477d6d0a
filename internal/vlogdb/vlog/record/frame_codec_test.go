package record_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/julianstephens/vlogdb/internal/vlogdb/vlog/record"
)

// TestEncodeFrame_TableDriven covers encode/decode round trips and size limits
func TestEncodeFrame_TableDriven(t *testing.T) {
	testCases := []struct {
		name        string
		recordType  record.RecordType
		payload     []byte
		expectError bool
	}{
		{"basic", record.RecordTypeValue, []byte("test-payload"), false},
		{"empty", record.RecordTypeValue, []byte{}, false},
		{"large", record.RecordTypeValueZstd, make([]byte, 10000), false},
		{"oversized", record.RecordTypeValue, make([]byte, record.MaxRecordSize+1), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := record.EncodeFrame(tc.recordType, tc.payload)
			if tc.expectError && err == nil {
				t.Errorf("expected error, got none")
			}
			if !tc.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.expectError {
				rec, err := record.DecodeFrame(encoded)
				if err != nil || rec.Record.Type != tc.recordType || !bytes.Equal(rec.Record.Payload, tc.payload) {
					t.Errorf("roundtrip failed: %v", err)
				}
				if rec.Size != int64(len(encoded)) {
					t.Errorf("expected size %d, got %d", len(encoded), rec.Size)
				}
				if rec.Size != record.EncodedRecordSize(len(tc.payload)) {
					t.Errorf("EncodedRecordSize disagrees with encoder")
				}
			}
		})
	}
}

func TestDecodeFrameTruncated(t *testing.T) {
	encoded, err := record.EncodeFrame(record.RecordTypeValue, []byte("payload"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = record.DecodeFrame(encoded[:len(encoded)-2])
	if !errors.Is(err, record.ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}

	_, err = record.DecodeFrame(encoded[:3])
	if !record.IsTruncation(err) {
		t.Fatalf("expected truncation for short header, got %v", err)
	}
}

func TestDecodeFrameTrailingBytes(t *testing.T) {
	encoded, err := record.EncodeFrame(record.RecordTypeValue, []byte("payload"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = record.DecodeFrame(append(encoded, 0x00))
	if !errors.Is(err, record.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestDecodeFrameChecksumMismatch(t *testing.T) {
	encoded, err := record.EncodeFrame(record.RecordTypeValue, []byte("payload"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	encoded[record.RecordHeaderSize+2] ^= 0xFF

	_, err = record.DecodeFrame(encoded)
	if !errors.Is(err, record.ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
	if !record.IsCorruption(err) {
		t.Errorf("checksum mismatch should count as corruption")
	}
}

func TestDecodeFrameInvalidType(t *testing.T) {
	encoded, err := record.EncodeFrame(record.RecordType(0x7F), []byte("payload"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = record.DecodeFrame(encoded)
	pe, ok := record.AsParseError(err)
	if !ok {
		t.Fatalf("expected ParseError, got %T", err)
	}
	if pe.Kind != record.KindInvalidType || pe.RawType != 0x7F {
		t.Errorf("unexpected parse error: %v", pe)
	}
}

func TestDecodeFrameZeroLength(t *testing.T) {
	data := make([]byte, record.RecordHeaderSize+record.RecordCRCSize)
	binary.LittleEndian.PutUint32(data, 0)

	_, err := record.DecodeFrame(data)
	if !errors.Is(err, record.ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
}
