package record

const (
	RecordHeaderSize     = 4                // Length of the record length field
	RecordTypeHeaderSize = 1                // Length of the record type field
	RecordCRCSize        = 4                // Length of the CRC32 field
	MaxKeySize           = 4 * 1024         // 4 KB
	MaxValueSize         = 4 * 1024 * 1024  // 4 MB
	MaxRecordSize        = 16 * 1024 * 1024 // 16 MB
	PayloadHeaderSize    = 4                // Size of a key/value length prefix
)

// ValidateRecordLength checks if the given record length is within valid bounds.
func ValidateRecordLength(length uint32) error {
	if length < 1 {
		return &ParseError{
			Kind:        KindInvalidLength,
			DeclaredLen: length,
			Err:         ErrInvalidLength,
		}
	}

	if length > MaxRecordSize {
		return &ParseError{
			Kind:        KindTooLarge,
			DeclaredLen: length,
			Want:        MaxRecordSize,
			Have:        int(length),
			Err:         ErrTooLarge,
		}
	}
	return nil
}

// ValidateRecordFrame validates the record type and payload size before framing.
func ValidateRecordFrame(recordType RecordType, payload []byte) error {
	if err := ValidateRecordLength(uint32(len(payload)) + 1); err != nil { //nolint:gosec
		return err
	}
	if !recordType.Valid() {
		return &ParseError{
			Kind:       KindInvalidType,
			RecordType: recordType,
			RawType:    byte(recordType),
			Err:        ErrInvalidType,
		}
	}

	minLen := PayloadHeaderSize + PayloadHeaderSize
	if len(payload) < minLen {
		return &ParseError{
			Kind:       KindInvalidLength,
			Have:       len(payload),
			Want:       minLen,
			RecordType: recordType,
			Err:        ErrInvalidLength,
		}
	}
	// Compressed values are bounded by ValidateRecordLength alone.
	maxLen := PayloadHeaderSize + MaxKeySize + PayloadHeaderSize + MaxValueSize
	if recordType == RecordTypeValue && len(payload) > maxLen {
		return &ParseError{
			Kind:       KindTooLarge,
			RecordType: recordType,
			Want:       maxLen,
			Have:       len(payload),
			Err:        ErrTooLarge,
		}
	}
	return nil
}

// EncodedRecordSize returns the on-disk size of a frame carrying payloadLen bytes.
func EncodedRecordSize(payloadLen int) int64 {
	return RecordHeaderSize + RecordTypeHeaderSize + int64(payloadLen) + RecordCRCSize
}
