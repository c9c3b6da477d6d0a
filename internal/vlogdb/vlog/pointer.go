package vlog

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// ValuePointerSize is the encoded size of a ValuePointer.
const ValuePointerSize = 16

// ValuePointer is the indirection the primary index stores in place of a
// value: the segment holding the record, the record's header offset, and
// its framed size.
type ValuePointer struct {
	SegID  uint64
	Offset uint32
	Size   uint32
}

// IsZero reports whether p is the zero pointer.
func (p ValuePointer) IsZero() bool {
	return p == ValuePointer{}
}

// End returns the offset just past the record.
func (p ValuePointer) End() int64 {
	return int64(p.Offset) + int64(p.Size)
}

// Encode returns the fixed-width encoding.
// Format: [seg_id (8)][offset (4)][size (4)], little endian.
func (p ValuePointer) Encode() []byte {
	buf := make([]byte, ValuePointerSize)
	binary.LittleEndian.PutUint64(buf[0:8], p.SegID)
	binary.LittleEndian.PutUint32(buf[8:12], p.Offset)
	binary.LittleEndian.PutUint32(buf[12:16], p.Size)
	return buf
}

// DecodeValuePointer decodes an encoded pointer.
func DecodeValuePointer(data []byte) (ValuePointer, error) {
	if len(data) != ValuePointerSize {
		return ValuePointer{}, fmt.Errorf("%w: want %d bytes, have %d", ErrInvalidPointer, ValuePointerSize, len(data))
	}
	return ValuePointer{
		SegID:  binary.LittleEndian.Uint64(data[0:8]),
		Offset: binary.LittleEndian.Uint32(data[8:12]),
		Size:   binary.LittleEndian.Uint32(data[12:16]),
	}, nil
}

// String renders p as "seg:offset:size".
func (p ValuePointer) String() string {
	return fmt.Sprintf("%d:%d:%d", p.SegID, p.Offset, p.Size)
}

// ParseValuePointer parses the "seg:offset:size" form produced by String.
func ParseValuePointer(s string) (ValuePointer, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return ValuePointer{}, fmt.Errorf("%w: %q is not seg:offset:size", ErrInvalidPointer, s)
	}
	segID, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return ValuePointer{}, fmt.Errorf("%w: segment id: %v", ErrInvalidPointer, err)
	}
	offset, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return ValuePointer{}, fmt.Errorf("%w: offset: %v", ErrInvalidPointer, err)
	}
	size, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return ValuePointer{}, fmt.Errorf("%w: size: %v", ErrInvalidPointer, err)
	}
	return ValuePointer{SegID: segID, Offset: uint32(offset), Size: uint32(size)}, nil
}
