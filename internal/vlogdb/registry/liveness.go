package registry

import (
	"slices"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// SegmentStats is a point-in-time view of one segment's liveness accounting.
type SegmentStats struct {
	SegID        uint64
	Active       bool
	LiveRecords  uint64
	TotalRecords uint64
	LiveBytes    uint64
	TotalBytes   uint64
}

// LiveFraction returns the share of records still live, or 1 for an empty segment.
func (s SegmentStats) LiveFraction() float64 {
	if s.TotalRecords == 0 {
		return 1
	}
	return float64(s.LiveRecords) / float64(s.TotalRecords)
}

// Liveness tracks which record offsets of a segment are still referenced.
//
// Offsets are staged in an append buffer sized by the expected-records hint
// and folded into the bitmap in bulk; appends arrive in ascending order, which
// is the fast path for roaring's AddMany.
type Liveness struct {
	mu sync.Mutex

	live    *roaring.Bitmap
	pending []uint32
	hint    int

	totalRecords uint64
	liveBytes    uint64
	totalBytes   uint64
}

// NewLiveness creates an empty liveness set. expectedRecords is a capacity hint.
func NewLiveness(expectedRecords int) *Liveness {
	if expectedRecords < 1 {
		expectedRecords = 1
	}
	return &Liveness{
		live:    roaring.New(),
		pending: make([]uint32, 0, expectedRecords),
		hint:    expectedRecords,
	}
}

// MarkLive records a newly written record. It returns false if the offset
// was already counted.
func (l *Liveness) MarkLive(offset, size uint32) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	// pending stays strictly ascending; anything else is settled first.
	if n := len(l.pending); n > 0 && l.pending[n-1] >= offset {
		l.flushLocked()
	}
	if l.live.Contains(offset) {
		return false
	}

	l.pending = append(l.pending, offset)
	if len(l.pending) == cap(l.pending) {
		l.flushLocked()
	}

	l.totalRecords++
	l.liveBytes += uint64(size)
	l.totalBytes += uint64(size)
	return true
}

// MarkDead drops a record from the live set. It returns false if the
// offset was not live.
func (l *Liveness) MarkDead(offset, size uint32) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.flushLocked()
	if !l.live.CheckedRemove(offset) {
		return false
	}
	l.liveBytes -= min(uint64(size), l.liveBytes)
	return true
}

// IsLive reports whether offset is currently live.
func (l *Liveness) IsLive(offset uint32) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, found := slices.BinarySearch(l.pending, offset); found {
		return true
	}
	return l.live.Contains(offset)
}

// LiveCount returns the number of live records.
func (l *Liveness) LiveCount() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.live.GetCardinality() + uint64(len(l.pending))
}

// Offsets returns live offsets in ascending order.
func (l *Liveness) Offsets() []uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.flushLocked()
	return l.live.ToArray()
}

func (l *Liveness) stats(segID uint64, active bool) SegmentStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return SegmentStats{
		SegID:        segID,
		Active:       active,
		LiveRecords:  l.live.GetCardinality() + uint64(len(l.pending)),
		TotalRecords: l.totalRecords,
		LiveBytes:    l.liveBytes,
		TotalBytes:   l.totalBytes,
	}
}

func (l *Liveness) flushLocked() {
	if len(l.pending) == 0 {
		return
	}
	l.live.AddMany(l.pending)
	l.pending = l.pending[:0]
}
