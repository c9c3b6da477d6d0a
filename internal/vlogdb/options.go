package vlogdb

// OpenOptions contains configuration for opening a value log directory.
//
// SegmentMaxBytes, ReclaimThreshold, ExpectedRecords and Compression are
// persisted in the manifest. FsyncOnRotate is a process-level choice.
type OpenOptions struct {
	// SegmentMaxBytes caps a segment file before rotation. 0 means DefaultSegmentMaxBytes.
	SegmentMaxBytes int64

	// ReclaimThreshold is the live-record count below which a sealed segment
	// is reported as a reclamation candidate. 0 disables candidate selection.
	ReclaimThreshold uint64

	// ExpectedRecords is a per-segment record count hint used to size liveness buffers.
	ExpectedRecords int

	// Compression selects the value codec for new records: "none" or "zstd".
	Compression string

	// FsyncOnRotate fsyncs a segment before it is sealed.
	FsyncOnRotate bool
}

// DefaultOpenOptions returns the options used when no manifest overrides them.
func DefaultOpenOptions() OpenOptions {
	return OpenOptions{
		SegmentMaxBytes:  DefaultSegmentMaxBytes,
		ReclaimThreshold: DefaultReclaimThreshold,
		ExpectedRecords:  DefaultExpectedRecords,
		Compression:      "none",
		FsyncOnRotate:    true,
	}
}
