package record

type RecordType uint8

const (
	RecordTypeUnknown RecordType = iota
	// RecordTypeValue carries a key and its raw value.
	RecordTypeValue
	// RecordTypeValueZstd carries a key and a zstd-compressed value.
	RecordTypeValueZstd
)

func (rt RecordType) String() string {
	switch rt {
	case RecordTypeValue:
		return "value"
	case RecordTypeValueZstd:
		return "value_zstd"
	default:
		return "unknown"
	}
}

// Valid reports whether rt is a known record type.
func (rt RecordType) Valid() bool {
	return rt > RecordTypeUnknown && rt <= RecordTypeValueZstd
}

type Record struct {
	Type    RecordType `json:"type"`
	Payload []byte     `json:"payload"`
	CRC     uint32     `json:"crc"`
	// The length of the record type + payload (excluding CRC)
	Len uint32 `json:"len"`
}

type FramedRecord struct {
	Record Record `json:"record"`
	Size   int64  `json:"size"`
	Offset int64  `json:"offset"`
}

// ValuePayload is the decoded body of a value record.
type ValuePayload struct {
	Key   []byte `json:"key"`
	Value []byte `json:"value"`
}
