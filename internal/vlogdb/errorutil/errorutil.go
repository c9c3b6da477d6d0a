package errorutil

import (
	"fmt"
	"strings"
)

// Coordinates locates a value record inside the value log for error reporting.
type Coordinates struct {
	// SegID is the value-log segment the record belongs to.
	SegID *uint64

	// Offset is the byte offset of the record header within the segment.
	Offset *int64

	// Size is the framed record size declared by the caller's value pointer.
	Size *uint32
}

// At builds Coordinates for a segment offset.
func At(segID uint64, offset int64) *Coordinates {
	return &Coordinates{SegID: &segID, Offset: &offset}
}

// WithSize returns a copy of c carrying size.
func (c *Coordinates) WithSize(size uint32) *Coordinates {
	out := Coordinates{}
	if c != nil {
		out = *c
	}
	out.Size = &size
	return &out
}

// FormatCoordinates renders the non-nil coordinates as "seg=X at=Y size=Z".
// Returns an empty string if all coordinates are nil.
func (c *Coordinates) FormatCoordinates() string {
	if c == nil {
		return ""
	}

	var parts []string
	if c.SegID != nil {
		parts = append(parts, fmt.Sprintf("seg=%d", *c.SegID))
	}
	if c.Offset != nil {
		parts = append(parts, fmt.Sprintf("at=%d", *c.Offset))
	}
	if c.Size != nil {
		parts = append(parts, fmt.Sprintf("size=%d", *c.Size))
	}
	return strings.Join(parts, " ")
}

// String implements the Stringer interface for Coordinates.
func (c *Coordinates) String() string {
	return c.FormatCoordinates()
}
