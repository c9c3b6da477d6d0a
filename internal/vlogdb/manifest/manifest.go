package manifest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/julianstephens/go-utils/helpers"
	"github.com/julianstephens/go-utils/jsonutil"

	"github.com/julianstephens/vlogdb/internal/vlogdb"
)

const ManifestFileName = "MANIFEST.json"

const (
	CompressionNone = "none"
	CompressionZstd = "zstd"
)

// Manifest holds the settings a value log directory was created with.
// It does not record segment or liveness state.
type Manifest struct {
	Version          int    `json:"version"`
	SegmentMaxBytes  int64  `json:"segment_max_bytes"`
	ReclaimThreshold uint64 `json:"reclaim_threshold"`
	ExpectedRecords  int    `json:"expected_records"`
	Compression      string `json:"compression"`
	FsyncOnRotate    bool   `json:"fsync_on_rotate"`
}

// DefaultManifest returns a Manifest with default settings
func DefaultManifest() *Manifest {
	return FromOptions(vlogdb.DefaultOpenOptions())
}

// FromOptions builds a manifest holding opts.
func FromOptions(opts vlogdb.OpenOptions) *Manifest {
	return &Manifest{
		Version:          vlogdb.ManifestVersion,
		SegmentMaxBytes:  opts.SegmentMaxBytes,
		ReclaimThreshold: opts.ReclaimThreshold,
		ExpectedRecords:  opts.ExpectedRecords,
		Compression:      opts.Compression,
		FsyncOnRotate:    opts.FsyncOnRotate,
	}
}

// Options returns the open options stored in m.
func (m *Manifest) Options() vlogdb.OpenOptions {
	return vlogdb.OpenOptions{
		SegmentMaxBytes:  m.SegmentMaxBytes,
		ReclaimThreshold: m.ReclaimThreshold,
		ExpectedRecords:  m.ExpectedRecords,
		Compression:      m.Compression,
		FsyncOnRotate:    m.FsyncOnRotate,
	}
}

// Validate checks that every setting is usable.
func (m *Manifest) Validate() error {
	switch {
	case m.SegmentMaxBytes < 0 || m.SegmentMaxBytes > vlogdb.MaxSegmentBytes:
		return invalid("segment_max_bytes %d out of range", m.SegmentMaxBytes)
	case m.ExpectedRecords < 0:
		return invalid("expected_records %d is negative", m.ExpectedRecords)
	case m.Compression != CompressionNone && m.Compression != CompressionZstd:
		return invalid("unknown compression %q", m.Compression)
	}
	return nil
}

// Create writes m as the manifest of dir, creating dir if needed.
func Create(dir string, m *Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := helpers.Ensure(dir, true); err != nil {
		return &ManifestError{Kind: ManifestErrorKindWrite, Err: err}
	}

	manifestPath := Path(dir)
	if exists := helpers.Exists(manifestPath); exists {
		return &ManifestError{
			Kind: ManifestErrorKindAlreadyExists,
			Err:  fmt.Errorf("manifest already exists at %s", manifestPath),
		}
	}

	data, err := jsonutil.Marshal(m)
	if err != nil {
		return &ManifestError{Kind: ManifestErrorKindEncode, Err: err}
	}

	return writeFile(manifestPath, data)
}

// Open reads the manifest of dir.
func Open(dir string) (*Manifest, error) {
	manifestPath := Path(dir)
	if exists := helpers.Exists(manifestPath); !exists {
		return nil, &ManifestError{Kind: ManifestErrorKindNotFound, Err: fs.ErrNotExist}
	}

	m := &Manifest{}
	if err := jsonutil.ReadFileStrict(manifestPath, m); err != nil {
		return nil, &ManifestError{Kind: ManifestErrorKindDecode, Err: err}
	}

	if m.Version > vlogdb.ManifestVersion {
		return nil, &ManifestError{
			Kind: ManifestErrorKindUnsupportedVersion,
			Err:  fmt.Errorf("manifest version %d is not supported", m.Version),
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	return m, nil
}

// Save overwrites the existing manifest of dir with m.
func (m *Manifest) Save(dir string) error {
	if err := m.Validate(); err != nil {
		return err
	}

	manifestPath := Path(dir)
	if exists := helpers.Exists(manifestPath); !exists {
		return &ManifestError{Kind: ManifestErrorKindNotFound, Err: fs.ErrNotExist}
	}

	data, err := jsonutil.Marshal(m)
	if err != nil {
		return &ManifestError{Kind: ManifestErrorKindEncode, Err: err}
	}

	return writeFile(manifestPath, data)
}

// Path returns the manifest path for dir.
func Path(dir string) string {
	return filepath.Join(dir, ManifestFileName)
}

func invalid(format string, args ...any) error {
	return &ManifestError{Kind: ManifestErrorKindInvalid, Err: fmt.Errorf(format, args...)}
}

func writeFile(filePath string, data []byte) error {
	if err := helpers.AtomicFileWrite(filePath, data); err != nil {
		return &ManifestError{Kind: ManifestErrorKindWrite, Err: err}
	}
	f, err := os.Open(filepath.Dir(filePath)) //nolint:gosec
	if err != nil {
		return &ManifestError{Kind: ManifestErrorKindWrite, Err: err}
	}
	defer func() { _ = f.Close() }()

	if err := f.Sync(); err != nil {
		return &ManifestError{Kind: ManifestErrorKindWrite, Err: err}
	}
	return nil
}
