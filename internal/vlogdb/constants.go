package vlogdb

const (
	DefaultSegmentMaxBytes int64 = 256 * 1024 * 1024
	// MaxSegmentBytes is the largest segment whose offsets still fit a value pointer.
	MaxSegmentBytes int64 = 1 << 32

	DefaultReclaimThreshold uint64 = 64
	DefaultExpectedRecords  int    = 4096

	ManifestVersion = 1
)

// Log file defaults
const (
	DefaultAppDir        = ".vlogdb"
	DefaultLogDir        = "logs"
	DefaultLogFileName   = "vlogdb.log"
	DefaultLogMaxSize    = 100
	DefaultLogMaxBackups = 3
	DefaultLogLevel      = "info"
)
