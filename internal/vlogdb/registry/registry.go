package registry

import (
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/julianstephens/vlogdb/internal/logger"
	"github.com/julianstephens/vlogdb/internal/metrics"
)

// Reader is the part of a segment reader the registry needs: it owns the
// reader and must be able to release it.
type Reader interface {
	Close() error
}

// Options configures a Registry.
type Options struct {
	// ReclaimThreshold is the live-record count below which a sealed segment
	// becomes a reclamation candidate. 0 disables candidate selection.
	ReclaimThreshold uint64

	// ExpectedRecords is the per-segment record count hint used to size
	// liveness buffers.
	ExpectedRecords int

	Logger logger.Logger
}

type entry[R Reader] struct {
	reader R
	live   *Liveness
}

// Registry maps value-log segment ids to the readers serving them.
//
// The registry owns every reader it holds: a reader handed to Register is
// closed exactly once, by Remove or by Close. Readers returned from Lookup
// are borrowed and must not be closed by the caller.
//
// Lookup takes a read lock; Register, Remove and Close take the write lock.
type Registry[R Reader] struct {
	mu sync.RWMutex

	entries   map[uint64]*entry[R]
	active    uint64
	hasActive bool
	closed    bool

	reclaimThreshold uint64
	expectedRecords  int
	logger           logger.Logger
}

// New creates an empty registry with no active segment.
func New[R Reader](opts Options) *Registry[R] {
	return &Registry[R]{
		entries:          make(map[uint64]*entry[R]),
		reclaimThreshold: opts.ReclaimThreshold,
		expectedRecords:  opts.ExpectedRecords,
		logger:           logger.OrNoOp(opts.Logger),
	}
}

// Register takes ownership of reader under segID and makes segID the active
// segment. Ids need not be increasing.
//
// reader must be non-nil; a nil interface value is rejected with ErrNilReader.
// On error ownership stays with the caller: a rejected reader is not closed,
// and a segment already registered under segID is left untouched.
func (r *Registry[R]) Register(segID uint64, reader R) error {
	if any(reader) == nil {
		metrics.RegistryRejections.WithLabelValues(metrics.ReasonNil).Inc()
		return wrapRegistryErr("register", ErrNilReader, segID, nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		metrics.RegistryRejections.WithLabelValues(metrics.ReasonClosed).Inc()
		return wrapRegistryErr("register", ErrRegistryClosed, segID, nil)
	}
	if _, exists := r.entries[segID]; exists {
		metrics.RegistryRejections.WithLabelValues(metrics.ReasonDup).Inc()
		r.logger.Warn("duplicate segment registration rejected", "seg", segID)
		return wrapRegistryErr("register", ErrDuplicateSegment, segID, nil)
	}

	r.entries[segID] = &entry[R]{
		reader: reader,
		live:   NewLiveness(r.expectedRecords),
	}
	r.active = segID
	r.hasActive = true

	metrics.RegistryRegistrations.Inc()
	metrics.RegistrySegments.Inc()
	r.logger.Debug("segment registered", "seg", segID, "segments", len(r.entries))
	return nil
}

// Lookup returns the reader registered under segID. The reader stays owned
// by the registry and is valid until the segment is removed or the registry
// is closed. A missing segment is reported through ok, never as an error.
func (r *Registry[R]) Lookup(segID uint64) (reader R, ok bool) {
	r.mu.RLock()
	e, ok := r.entries[segID]
	r.mu.RUnlock()

	if !ok {
		metrics.RegistryLookups.WithLabelValues(metrics.ResultMiss).Inc()
		return reader, false
	}
	metrics.RegistryLookups.WithLabelValues(metrics.ResultHit).Inc()
	return e.reader, true
}

// Active returns the most recently registered segment id. ok is false before
// the first registration, after that segment is removed, and after Close.
func (r *Registry[R]) Active() (segID uint64, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active, r.hasActive
}

// ReclaimThreshold returns the configured reclamation watermark.
func (r *Registry[R]) ReclaimThreshold() uint64 {
	return r.reclaimThreshold
}

// Len returns the number of registered segments.
func (r *Registry[R]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Segments returns the registered segment ids in ascending order.
func (r *Registry[R]) Segments() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.entries))
}

// MarkLive counts a record written at offset in segID as live.
// It reports false if that offset was already live.
func (r *Registry[R]) MarkLive(segID uint64, offset, size uint32) (bool, error) {
	e, err := r.entry("mark_live", segID)
	if err != nil {
		return false, err
	}
	return e.live.MarkLive(offset, size), nil
}

// MarkDead drops the record at offset in segID from the live set.
// It reports false if the offset was not live.
func (r *Registry[R]) MarkDead(segID uint64, offset, size uint32) (bool, error) {
	e, err := r.entry("mark_dead", segID)
	if err != nil {
		return false, err
	}
	return e.live.MarkDead(offset, size), nil
}

// IsLive reports whether the record at offset in segID is live.
func (r *Registry[R]) IsLive(segID uint64, offset uint32) bool {
	e, err := r.entry("is_live", segID)
	if err != nil {
		return false
	}
	return e.live.IsLive(offset)
}

// LiveOffsets returns the live record offsets of segID in ascending order.
func (r *Registry[R]) LiveOffsets(segID uint64) ([]uint32, bool) {
	e, err := r.entry("live_offsets", segID)
	if err != nil {
		return nil, false
	}
	return e.live.Offsets(), true
}

// Stats returns the liveness accounting of segID.
func (r *Registry[R]) Stats(segID uint64) (SegmentStats, bool) {
	r.mu.RLock()
	e, ok := r.entries[segID]
	active := r.hasActive && r.active == segID
	r.mu.RUnlock()

	if !ok {
		return SegmentStats{}, false
	}
	return e.live.stats(segID, active), true
}

// Candidates returns, in ascending order, the sealed segments whose live
// record count has fallen below the reclaim threshold. The active segment is
// never a candidate.
func (r *Registry[R]) Candidates() []uint64 {
	if r.reclaimThreshold == 0 {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []uint64
	for segID, e := range r.entries {
		if r.hasActive && segID == r.active {
			continue
		}
		if e.live.LiveCount() < r.reclaimThreshold {
			out = append(out, segID)
		}
	}
	slices.Sort(out)
	return out
}

// Remove unregisters segID and closes its reader. If segID was active, the
// registry has no active segment afterwards. The entry is removed even when
// closing the reader fails.
func (r *Registry[R]) Remove(segID uint64) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return wrapRegistryErr("remove", ErrRegistryClosed, segID, nil)
	}
	e, ok := r.entries[segID]
	if !ok {
		r.mu.Unlock()
		return wrapRegistryErr("remove", ErrSegmentNotFound, segID, nil)
	}
	delete(r.entries, segID)
	if r.hasActive && r.active == segID {
		r.active, r.hasActive = 0, false
	}
	r.mu.Unlock()

	metrics.RegistryRemovals.Inc()
	metrics.RegistrySegments.Dec()
	r.logger.Info("segment removed", "seg", segID)

	if err := e.reader.Close(); err != nil {
		metrics.RegistryCloseErrors.Inc()
		r.logger.Error("failed to close segment reader", err, "seg", segID)
		return wrapRegistryErr("remove", ErrReaderClose, segID, err)
	}
	return nil
}

// Close releases every registered reader exactly once, in ascending segment
// order, and rejects further registrations. Close errors are joined. Calling
// Close again is a no-op.
func (r *Registry[R]) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	entries := r.entries
	r.entries = make(map[uint64]*entry[R])
	r.active, r.hasActive = 0, false
	r.mu.Unlock()

	var errs []error
	for _, segID := range slices.Sorted(maps.Keys(entries)) {
		metrics.RegistrySegments.Dec()
		if err := entries[segID].reader.Close(); err != nil {
			metrics.RegistryCloseErrors.Inc()
			r.logger.Error("failed to close segment reader", err, "seg", segID)
			errs = append(errs, wrapRegistryErr("close", ErrReaderClose, segID, err))
		}
	}

	r.logger.Debug("registry closed", "segments", len(entries), "close_errors", len(errs))
	return errors.Join(errs...)
}

func (r *Registry[R]) entry(op string, segID uint64) (*entry[R], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[segID]
	if !ok {
		return nil, wrapRegistryErr(op, ErrSegmentNotFound, segID, nil)
	}
	return e, nil
}
