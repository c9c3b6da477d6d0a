package vlog

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/julianstephens/go-utils/generic"
	"github.com/julianstephens/go-utils/helpers"
	"github.com/julianstephens/go-utils/validator"
	"golang.org/x/sync/errgroup"

	"github.com/julianstephens/vlogdb/internal/logger"
	"github.com/julianstephens/vlogdb/internal/metrics"
	"github.com/julianstephens/vlogdb/internal/vlogdb"
	"github.com/julianstephens/vlogdb/internal/vlogdb/errorutil"
	"github.com/julianstephens/vlogdb/internal/vlogdb/registry"
	"github.com/julianstephens/vlogdb/internal/vlogdb/vlog/record"
)

const openParallelism = 8

type LogOpts struct {
	// 0 means vlogdb.MaxSegmentBytes
	SegmentMaxBytes int64

	ReclaimThreshold uint64
	ExpectedRecords  int

	// Compress stores new values zstd-compressed.
	Compress bool

	FsyncOnRotate bool
}

// LogOptsFrom maps directory-level options onto log options.
func LogOptsFrom(opts vlogdb.OpenOptions) LogOpts {
	return LogOpts{
		SegmentMaxBytes:  generic.If(opts.SegmentMaxBytes == 0, vlogdb.DefaultSegmentMaxBytes, opts.SegmentMaxBytes),
		ReclaimThreshold: opts.ReclaimThreshold,
		ExpectedRecords:  opts.ExpectedRecords,
		Compress:         opts.Compression == "zstd",
		FsyncOnRotate:    opts.FsyncOnRotate,
	}
}

// Log is an append-only value log split into numbered segments.
//
// Appends go to the active segment through a single SegmentAppender. Every
// segment, the active one included, is served to readers through a
// SegmentReader owned by the segment registry.
type Log struct {
	mu sync.Mutex

	dir    string
	opts   LogOpts
	logger logger.Logger

	segments    *registry.Registry[SegmentReader]
	activeSegID uint64
	active      *SegmentAppender
	recordType  record.RecordType

	closed bool
}

type openedSegment struct {
	reader  SegmentReader
	result  *ScanResult
	records []ValuePointer
}

// ListSegments returns the segment ids found in dir, ascending.
func ListSegments(dir string) ([]uint64, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var segs []uint64
	for _, fi := range files {
		if fi.IsDir() {
			continue
		}
		if segID, ok := ParseSegmentFileName(fi.Name()); ok {
			segs = append(segs, segID)
		}
	}
	slices.Sort(segs)
	return segs, nil
}

// validateSegments checks that segment ids are non-zero and strictly
// ascending. Gaps are allowed: reclaimed segments leave holes in the sequence.
func validateSegments(ids []uint64) error {
	v := validator.Numbers[uint64]()

	for i, id := range ids {
		if err := v.ValidateNonZero(id); err != nil {
			return err
		}
		if i == 0 {
			continue
		}
		if err := v.ValidateGreaterThan(id, ids[i-1]); err != nil {
			return err
		}
	}
	return nil
}

// OpenLog opens or creates the value log in dir. Existing segments are
// opened and scanned in parallel, registered in ascending order, and every
// intact record is counted live. A torn final record in the last segment is
// cut off before appending resumes.
func OpenLog(dir string, opts LogOpts, lg logger.Logger) (*Log, error) {
	if opts.SegmentMaxBytes < 0 || opts.SegmentMaxBytes > vlogdb.MaxSegmentBytes || opts.ExpectedRecords < 0 {
		return nil, wrapLogErr("open", ErrInvalidOptions, dir, 0, nil)
	}
	if opts.SegmentMaxBytes == 0 {
		opts.SegmentMaxBytes = vlogdb.MaxSegmentBytes
	}

	l := &Log{
		dir:        dir,
		opts:       opts,
		logger:     logger.OrNoOp(lg),
		recordType: generic.If(opts.Compress, record.RecordTypeValueZstd, record.RecordTypeValue),
	}
	l.segments = registry.New[SegmentReader](registry.Options{
		ReclaimThreshold: opts.ReclaimThreshold,
		ExpectedRecords:  opts.ExpectedRecords,
		Logger:           l.logger,
	})

	if err := helpers.Ensure(dir, true); err != nil {
		return nil, wrapLogErr("ensure_dir", ErrInvalidLogDir, dir, 0, err)
	}

	ids, err := ListSegments(dir)
	if err != nil {
		return nil, wrapLogErr("list_segments", ErrSegmentList, dir, 0, err)
	}
	if err := validateSegments(ids); err != nil {
		return nil, wrapLogErr("list_segments", ErrSegmentOrder, dir, 0, err)
	}

	if len(ids) == 0 {
		appender, err := l.createSegment(FirstSegmentID)
		if err != nil {
			_ = l.segments.Close()
			return nil, err
		}
		l.activeSegID = FirstSegmentID
		l.active = appender
		l.logger.Info("value log created", "dir", dir, "seg", FirstSegmentID)
		return l, nil
	}

	opened, err := l.openSegments(ids)
	if err != nil {
		return nil, err
	}

	if err := l.adopt(opened); err != nil {
		_ = l.segments.Close()
		return nil, err
	}

	l.logger.Info("value log opened",
		"dir", dir,
		"segments", len(ids),
		"active", l.activeSegID,
		"offset", l.active.CurrentOffset(),
	)
	return l, nil
}

// openSegments opens a reader per segment and scans it. On failure every
// reader opened so far is closed.
func (l *Log) openSegments(ids []uint64) ([]openedSegment, error) {
	opened := make([]openedSegment, len(ids))

	var g errgroup.Group
	g.SetLimit(openParallelism)
	for i, segID := range ids {
		g.Go(func() error {
			reader, err := OpenSegmentReader(l.segmentPath(segID), segID)
			if err != nil {
				return wrapLogErr("open_segment", ErrSegmentOpen, l.dir, segID, err)
			}
			opened[i].reader = reader

			res, err := reader.Scan(func(rec record.FramedRecord) error {
				opened[i].records = append(opened[i].records, ValuePointer{
					SegID:  segID,
					Offset: uint32(rec.Offset), //nolint:gosec
					Size:   uint32(rec.Size),   //nolint:gosec
				})
				return nil
			})
			if err != nil {
				return wrapLogErr("scan_segment", ErrSegmentOpen, l.dir, segID, err)
			}
			opened[i].result = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		closeReaders(opened)
		return nil, err
	}
	return opened, nil
}

func closeReaders(opened []openedSegment) {
	for _, o := range opened {
		if o.reader != nil {
			_ = o.reader.Close()
		}
	}
}

// adopt registers scanned segments, repairs the tail of the last one and
// opens it for append. Readers are owned by the registry once adopt starts.
func (l *Log) adopt(opened []openedSegment) error {
	for i, o := range opened {
		segID := o.reader.SegID()
		if err := l.segments.Register(segID, o.reader); err != nil {
			closeReaders(opened[i:])
			return wrapLogErr("register_segment", ErrSegmentRegister, l.dir, segID, err)
		}
		for _, ptr := range o.records {
			if _, err := l.segments.MarkLive(segID, ptr.Offset, ptr.Size); err != nil {
				closeReaders(opened[i+1:])
				return wrapLogErr("register_segment", ErrSegmentRegister, l.dir, segID, err)
			}
		}

		if i == len(opened)-1 || o.result.TailStatus == TailStatusValid {
			continue
		}
		l.logger.Warn("sealed segment has an unreadable tail",
			"seg", segID,
			"status", o.result.TailStatus.String(),
			"last_valid", o.result.LastValid,
		)
	}

	last := opened[len(opened)-1]
	segID := last.reader.SegID()
	if last.result.TailStatus == TailStatusCorrupt {
		return wrapLogErr("repair_tail", ErrSegmentCorrupt, l.dir, segID, last.result.TailErr)
	}

	file, err := os.OpenFile(l.segmentPath(segID), os.O_RDWR, 0o600) //nolint:gosec
	if err != nil {
		return wrapLogErr("open_segment", ErrSegmentOpen, l.dir, segID, err)
	}
	appender, err := NewSegmentAppender(file)
	if err != nil {
		_ = file.Close()
		return wrapLogErr("open_segment", ErrSegmentOpen, l.dir, segID, err)
	}

	if last.result.TailStatus == TailStatusTruncated {
		if err := appender.Truncate(last.result.LastValid); err != nil {
			_ = appender.Close()
			return wrapLogErr("repair_tail", ErrSegmentRepair, l.dir, segID, err)
		}
		l.logger.Warn("truncated torn segment tail",
			"seg", segID,
			"offset", last.result.LastValid,
		)
	}

	l.activeSegID = segID
	l.active = appender
	return nil
}

// Dir returns the value log directory.
func (l *Log) Dir() string {
	return l.dir
}

// SegmentIDs returns the registered segment ids, ascending.
func (l *Log) SegmentIDs() []uint64 {
	return l.segments.Segments()
}

// ActiveSegmentID returns the id of the segment receiving appends.
func (l *Log) ActiveSegmentID() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.activeSegID
}

// SegmentPath returns the file path of segment segID.
func (l *Log) SegmentPath(segID uint64) string {
	return l.segmentPath(segID)
}

// Append writes key and value as one record, rotating to a new segment when
// the active one would exceed SegmentMaxBytes.
func (l *Log) Append(key, value []byte) (ValuePointer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ValuePointer{}, logClosed(l.dir)
	}

	payload, err := record.EncodeValuePayload(l.recordType, key, value)
	if err != nil {
		return ValuePointer{}, wrapLogErr("encode_value", ErrInvalidRecord, l.dir, l.activeSegID, err)
	}
	size := record.EncodedRecordSize(len(payload))

	if err := l.maybeRotateLocked(size); err != nil {
		return ValuePointer{}, wrapLogErr("rotate_segment", ErrSegmentRotate, l.dir, l.activeSegID, err)
	}

	offset, err := l.active.Append(l.recordType, payload)
	if err != nil {
		return ValuePointer{}, wrapLogErr("append_record", ErrAppendFailed, l.dir, l.activeSegID, err)
	}

	ptr := ValuePointer{
		SegID:  l.activeSegID,
		Offset: uint32(offset), //nolint:gosec
		Size:   uint32(size),   //nolint:gosec
	}
	if _, err := l.segments.MarkLive(ptr.SegID, ptr.Offset, ptr.Size); err != nil {
		return ValuePointer{}, wrapLogErr("append_record", ErrSegmentNotFound, l.dir, ptr.SegID, err)
	}

	metrics.LogAppends.Inc()
	metrics.LogAppendBytes.Add(float64(size))
	return ptr, nil
}

// Get reads the record ptr points at. Buffered records in the active segment
// are flushed first so that every pointer returned by Append is readable.
func (l *Log) Get(ptr ValuePointer) (Entry, error) {
	start := time.Now()
	defer func() {
		metrics.LogReadLatency.Observe(time.Since(start).Seconds())
	}()

	coords := errorutil.At(ptr.SegID, int64(ptr.Offset)).WithSize(ptr.Size)

	if err := l.flushFor(ptr); err != nil {
		metrics.LogReads.WithLabelValues(metrics.ResultError).Inc()
		return Entry{}, err
	}

	reader, ok := l.segments.Lookup(ptr.SegID)
	if !ok {
		metrics.LogReads.WithLabelValues(metrics.ResultMiss).Inc()
		return Entry{}, &SegmentReadError{Err: ErrSegmentNotFound, Coordinates: coords}
	}

	var (
		entry Entry
		err   error
	)
	if ptr.Size == 0 {
		entry, err = reader.ReadAt(int64(ptr.Offset))
	} else {
		entry, err = reader.ReadRecord(int64(ptr.Offset), ptr.Size)
	}
	if err != nil {
		metrics.LogReads.WithLabelValues(metrics.ResultError).Inc()
		return Entry{}, err
	}

	metrics.LogReads.WithLabelValues(metrics.ResultHit).Inc()
	return entry, nil
}

func (l *Log) flushFor(ptr ValuePointer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return logClosed(l.dir)
	}
	if ptr.SegID != l.activeSegID || ptr.End() <= l.active.FlushedOffset() {
		return nil
	}
	if err := l.active.Flush(); err != nil {
		return wrapLogErr("flush_segment", ErrSegmentFlush, l.dir, l.activeSegID, err)
	}
	return nil
}

// Discard marks the record ptr points at as no longer referenced.
// It reports false if the record was not live. ptr must carry the size
// Append returned for it.
func (l *Log) Discard(ptr ValuePointer) (bool, error) {
	if ptr.Size == 0 {
		return false, wrapLogErr("discard", ErrInvalidPointer, l.dir, ptr.SegID, nil)
	}
	dead, err := l.segments.MarkDead(ptr.SegID, ptr.Offset, ptr.Size)
	if err != nil {
		return false, wrapLogErr("discard", ErrSegmentNotFound, l.dir, ptr.SegID, err)
	}
	return dead, nil
}

// Candidates returns sealed segments whose live record count fell below the
// reclaim threshold.
func (l *Log) Candidates() []uint64 {
	return l.segments.Candidates()
}

// Stats returns the liveness accounting of segID.
func (l *Log) Stats(segID uint64) (registry.SegmentStats, bool) {
	return l.segments.Stats(segID)
}

// Flush flushes buffered writes of the active segment.
func (l *Log) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return logClosed(l.dir)
	}

	if err := l.active.Flush(); err != nil {
		return wrapLogErr("flush_segment", ErrSegmentFlush, l.dir, l.activeSegID, err)
	}

	return nil
}

// FSync flushes then fsyncs the active segment.
func (l *Log) FSync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return logClosed(l.dir)
	}

	if err := l.active.FSync(); err != nil {
		return wrapLogErr("fsync_segment", ErrSegmentSync, l.dir, l.activeSegID, err)
	}

	return nil
}

// Close closes the active appender and then every segment reader.
// Calling Close again is a no-op.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	var errs []error
	if err := l.active.Close(); err != nil {
		errs = append(errs, wrapLogErr("close_segment", ErrSegmentClose, l.dir, l.activeSegID, err))
	}
	if err := l.segments.Close(); err != nil {
		errs = append(errs, wrapLogErr("close_segment", ErrSegmentClose, l.dir, 0, err))
	}

	l.logger.Debug("value log closed", "dir", l.dir, "errors", len(errs))
	return errors.Join(errs...)
}

func (l *Log) segmentPath(segID uint64) string {
	return filepath.Join(l.dir, SegmentFileName(segID))
}

// createSegment creates segment segID and registers a reader for it. The
// returned appender becomes the append target once the caller installs it.
func (l *Log) createSegment(segID uint64) (*SegmentAppender, error) {
	path := l.segmentPath(segID)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_EXCL, 0o600) //nolint:gosec
	if err != nil {
		return nil, wrapLogErr("create_segment", ErrSegmentCreate, l.dir, segID, err)
	}

	appender, err := NewSegmentAppender(file)
	if err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return nil, wrapLogErr("create_segment", ErrSegmentCreate, l.dir, segID, err)
	}

	reader, err := OpenSegmentReader(path, segID)
	if err != nil {
		_ = appender.Close()
		_ = os.Remove(path)
		return nil, wrapLogErr("open_segment", ErrSegmentOpen, l.dir, segID, err)
	}
	if err := l.segments.Register(segID, reader); err != nil {
		_ = reader.Close()
		_ = appender.Close()
		_ = os.Remove(path)
		return nil, wrapLogErr("register_segment", ErrSegmentRegister, l.dir, segID, err)
	}

	return appender, nil
}

// maybeRotateLocked seals the active segment when a record of size bytes
// would not fit. An empty segment always takes the record.
//
// The next segment is created before the sealed one is closed, so a failed
// rotation leaves the current segment as the append target.
func (l *Log) maybeRotateLocked(size int64) error {
	current := l.active.CurrentOffset()
	if current == 0 || current+size <= l.opts.SegmentMaxBytes {
		return nil
	}

	if l.opts.FsyncOnRotate {
		if err := l.active.FSync(); err != nil {
			return err
		}
	} else if err := l.active.Flush(); err != nil {
		return err
	}

	sealed, sealedAppender := l.activeSegID, l.active
	next, err := l.createSegment(sealed + 1)
	if err != nil {
		return err
	}
	l.activeSegID = sealed + 1
	l.active = next

	if err := sealedAppender.Close(); err != nil {
		l.logger.Error("failed to close sealed segment", err, "seg", sealed)
	}

	metrics.LogRotations.Inc()
	l.logger.Info("segment rotated", "sealed", sealed, "active", l.activeSegID, "sealed_bytes", current)
	return nil
}
