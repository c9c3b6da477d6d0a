package record

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

// zstdCodec returns the shared encoder/decoder pair. Both are safe for
// concurrent EncodeAll/DecodeAll use.
func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxRecordSize))
	})
	return zstdEnc, zstdDec, zstdErr
}

func need(data []byte, at, want int, field string) error {
	if at < 0 {
		at = 0
	}
	have := len(data) - at
	if have >= want {
		return nil
	}
	return &CodecError{
		Kind:  CodecTruncated,
		Field: field,
		At:    at,
		Want:  want,
		Have:  have,
		Err:   ErrCodecTruncated,
	}
}

func u32le(data []byte, at int, field string) (uint32, error) {
	if err := need(data, at, PayloadHeaderSize, field); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data[at : at+PayloadHeaderSize]), nil
}

func tooLarge(field string, at, limit, have int) error {
	return &CodecError{
		Kind:  CodecInvalid,
		Field: field,
		At:    at,
		Want:  limit,
		Have:  have,
		Err:   ErrCodecInvalid,
	}
}

// EncodeValuePayload encodes a key/value pair for the given record type.
// Format: [key_len (4)][key][value_len (4)][value]
// For RecordTypeValueZstd the stored value bytes are zstd-compressed.
func EncodeValuePayload(recordType RecordType, key, value []byte) ([]byte, error) {
	if len(key) > MaxKeySize {
		return nil, tooLarge("key_len", 0, MaxKeySize, len(key))
	}
	if len(value) > MaxValueSize {
		return nil, tooLarge("value_len", 0, MaxValueSize, len(value))
	}

	stored := value
	switch recordType {
	case RecordTypeValue:
	case RecordTypeValueZstd:
		enc, _, err := zstdCodec()
		if err != nil {
			return nil, err
		}
		stored = enc.EncodeAll(value, nil)
	default:
		return nil, &CodecError{
			Kind:  CodecInvalid,
			Field: "record_type",
			Err:   fmt.Errorf("%w: %s", ErrCodecInvalid, recordType),
		}
	}

	data := make([]byte, PayloadHeaderSize+len(key)+PayloadHeaderSize+len(stored))
	off := 0

	binary.LittleEndian.PutUint32(data[off:off+PayloadHeaderSize], uint32(len(key))) //nolint:gosec
	off += PayloadHeaderSize
	copy(data[off:off+len(key)], key)
	off += len(key)

	binary.LittleEndian.PutUint32(data[off:off+PayloadHeaderSize], uint32(len(stored))) //nolint:gosec
	off += PayloadHeaderSize
	copy(data[off:], stored)

	return data, nil
}

// DecodeValuePayload decodes a value record payload, decompressing when needed.
// Key (and Value for uncompressed records) alias data.
func DecodeValuePayload(recordType RecordType, data []byte) (*ValuePayload, error) {
	off := 0

	keyLen, err := u32le(data, off, "key_len")
	if err != nil {
		return nil, err
	}
	off += PayloadHeaderSize
	if keyLen > MaxKeySize {
		return nil, tooLarge("key_len", off-PayloadHeaderSize, MaxKeySize, int(keyLen))
	}
	if err := need(data, off, int(keyLen), "key"); err != nil {
		return nil, err
	}
	key := data[off : off+int(keyLen)]
	off += int(keyLen)

	valueLen, err := u32le(data, off, "value_len")
	if err != nil {
		return nil, err
	}
	off += PayloadHeaderSize
	if err := need(data, off, int(valueLen), "value"); err != nil {
		return nil, err
	}
	stored := data[off : off+int(valueLen)]
	off += int(valueLen)

	if len(data) != off {
		return nil, &CodecError{
			Kind:  CodecCorrupt,
			Field: "payload_length",
			At:    off,
			Want:  off,
			Have:  len(data),
			Err:   fmt.Errorf("%w: trailing bytes", ErrCodecCorrupt),
		}
	}

	switch recordType {
	case RecordTypeValue:
		if valueLen > MaxValueSize {
			return nil, tooLarge("value_len", off-int(valueLen)-PayloadHeaderSize, MaxValueSize, int(valueLen))
		}
		return &ValuePayload{Key: key, Value: stored}, nil
	case RecordTypeValueZstd:
		_, dec, err := zstdCodec()
		if err != nil {
			return nil, err
		}
		value, err := dec.DecodeAll(stored, nil)
		if err != nil {
			return nil, &CodecError{
				Kind:  CodecCorrupt,
				Field: "value",
				At:    off - int(valueLen),
				Have:  int(valueLen),
				Err:   fmt.Errorf("%w: %v", ErrCodecCorrupt, err),
			}
		}
		return &ValuePayload{Key: key, Value: value}, nil
	default:
		return nil, &CodecError{
			Kind:  CodecInvalid,
			Field: "record_type",
			Err:   fmt.Errorf("%w: %s", ErrCodecInvalid, recordType),
		}
	}
}
