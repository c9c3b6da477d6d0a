package record

import "github.com/julianstephens/go-utils/checksum"

// ComputeChecksum computes the CRC32-C checksum with the Castagnoli polynomial for the given data.
func ComputeChecksum(data []byte) uint32 {
	return checksum.CRC32C(data)
}

// VerifyChecksum verifies the checksum of the given record.
// The checksum covers the Type and Payload fields.
func VerifyChecksum(record *Record) bool {
	if record == nil {
		return false
	}
	return checksum.VerifyCRC32C(checksumInput(record), record.CRC)
}

// UpdateChecksum recalculates the checksum from the current Type and Payload fields.
func UpdateChecksum(record *Record) {
	if record == nil {
		return
	}
	record.CRC = ComputeChecksum(checksumInput(record))
}

func checksumInput(record *Record) []byte {
	data := make([]byte, 1+len(record.Payload))
	data[0] = byte(record.Type)
	copy(data[1:], record.Payload)
	return data
}
