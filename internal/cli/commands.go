package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/julianstephens/go-utils/cliutil"

	"github.com/julianstephens/vlogdb/internal/logger"
	"github.com/julianstephens/vlogdb/internal/vlogdb"
	"github.com/julianstephens/vlogdb/internal/vlogdb/manifest"
	"github.com/julianstephens/vlogdb/internal/vlogdb/vlog"
)

// ErrVerifyFailed is returned when a segment does not scan cleanly.
var ErrVerifyFailed = errors.New("verify: damaged segments found")

// Globals carries process-wide dependencies into commands.
type Globals struct {
	Logger logger.Logger
	Out    io.Writer
}

func (g *Globals) out() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

func (g *Globals) logger() logger.Logger {
	if g == nil {
		return logger.NoOpLogger{}
	}
	return logger.OrNoOp(g.Logger)
}

func openManifest(dir string) (*manifest.Manifest, error) {
	m, err := manifest.Open(dir)
	if err != nil {
		if errors.Is(err, manifest.ErrManifestNotFound) {
			return nil, fmt.Errorf("%s is not a value log directory (run init first): %w", dir, err)
		}
		return nil, err
	}
	return m, nil
}

// openLog opens the value log in an initialized directory.
func openLog(dir string, g *Globals) (*vlog.Log, error) {
	m, err := openManifest(dir)
	if err != nil {
		return nil, err
	}
	return vlog.OpenLog(dir, vlog.LogOptsFrom(m.Options()), g.logger())
}

// InitCmd initializes a new value log directory.
type InitCmd struct {
	Dir              string `arg:""                               help:"Path to the value log directory"`
	SegmentMaxBytes  int64  `help:"Segment size before rotation"  default:"${segment_max_bytes}"`
	ReclaimThreshold uint64 `help:"Live-record count below which a sealed segment is a reclamation candidate (0 disables)" default:"${reclaim_threshold}"`
	ExpectedRecords  int    `help:"Expected records per segment"  default:"${expected_records}"`
	Compression      string `help:"Value compression"             default:"none" enum:"none,zstd"`
	NoFsyncOnRotate  bool   `help:"Skip fsync when sealing a segment"`
}

func (c *InitCmd) Run(g *Globals) error {
	m := manifest.FromOptions(vlogdb.OpenOptions{
		SegmentMaxBytes:  c.SegmentMaxBytes,
		ReclaimThreshold: c.ReclaimThreshold,
		ExpectedRecords:  c.ExpectedRecords,
		Compression:      c.Compression,
		FsyncOnRotate:    !c.NoFsyncOnRotate,
	})
	if err := manifest.Create(c.Dir, m); err != nil {
		cliutil.PrintError(err.Error())
		return err
	}

	l, err := vlog.OpenLog(c.Dir, vlog.LogOptsFrom(m.Options()), g.logger())
	if err != nil {
		cliutil.PrintError(err.Error())
		return err
	}
	if err := l.Close(); err != nil {
		return err
	}

	_, err = fmt.Fprintf(g.out(), "initialized value log at %s\n", c.Dir)
	return err
}

// ConfigCmd prints the settings of a value log directory and updates the
// ones given as flags. Changes apply to records written afterwards.
type ConfigCmd struct {
	Dir              string  `arg:"" help:"Path to the value log directory"`
	SegmentMaxBytes  *int64  `help:"Segment size before rotation"`
	ReclaimThreshold *uint64 `help:"Live-record count below which a sealed segment is a reclamation candidate (0 disables)"`
	ExpectedRecords  *int    `help:"Expected records per segment"`
	Compression      *string `help:"Value compression for new records (none or zstd)"`
	FsyncOnRotate    *bool   `help:"Fsync when sealing a segment"                                            negatable:""`
}

func (c *ConfigCmd) Run(g *Globals) error {
	m, err := openManifest(c.Dir)
	if err != nil {
		cliutil.PrintError(err.Error())
		return err
	}

	changed := false
	if c.SegmentMaxBytes != nil {
		m.SegmentMaxBytes, changed = *c.SegmentMaxBytes, true
	}
	if c.ReclaimThreshold != nil {
		m.ReclaimThreshold, changed = *c.ReclaimThreshold, true
	}
	if c.ExpectedRecords != nil {
		m.ExpectedRecords, changed = *c.ExpectedRecords, true
	}
	if c.Compression != nil {
		m.Compression, changed = *c.Compression, true
	}
	if c.FsyncOnRotate != nil {
		m.FsyncOnRotate, changed = *c.FsyncOnRotate, true
	}

	if changed {
		if err := m.Save(c.Dir); err != nil {
			cliutil.PrintError(err.Error())
			return err
		}
		g.logger().Info("value log settings updated", "dir", c.Dir)
	}

	tw := tabwriter.NewWriter(g.out(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "segment_max_bytes\t%d\n", m.SegmentMaxBytes)
	_, _ = fmt.Fprintf(tw, "reclaim_threshold\t%d\n", m.ReclaimThreshold)
	_, _ = fmt.Fprintf(tw, "expected_records\t%d\n", m.ExpectedRecords)
	_, _ = fmt.Fprintf(tw, "compression\t%s\n", m.Compression)
	_, _ = fmt.Fprintf(tw, "fsync_on_rotate\t%t\n", m.FsyncOnRotate)
	return tw.Flush()
}

// PutCmd appends a value and prints its pointer.
type PutCmd struct {
	Dir   string `arg:"" help:"Path to the value log directory"`
	Key   string `arg:"" help:"Key the value belongs to"`
	Value string `arg:"" help:"Value to store"`
}

func (c *PutCmd) Run(g *Globals) (err error) {
	l, err := openLog(c.Dir, g)
	if err != nil {
		cliutil.PrintError(err.Error())
		return err
	}
	defer func() { err = errors.Join(err, l.Close()) }()

	ptr, err := l.Append([]byte(c.Key), []byte(c.Value))
	if err != nil {
		cliutil.PrintError(err.Error())
		return err
	}
	if err := l.FSync(); err != nil {
		return err
	}

	_, err = fmt.Fprintln(g.out(), ptr.String())
	return err
}

// GetCmd reads the value a pointer refers to.
type GetCmd struct {
	Dir     string `arg:"" help:"Path to the value log directory"`
	Pointer string `arg:"" help:"Value pointer as seg:offset:size"`
	WithKey bool   `help:"Print the stored key before the value"`
}

func (c *GetCmd) Run(g *Globals) (err error) {
	ptr, err := vlog.ParseValuePointer(c.Pointer)
	if err != nil {
		cliutil.PrintError(err.Error())
		return err
	}

	l, err := openLog(c.Dir, g)
	if err != nil {
		cliutil.PrintError(err.Error())
		return err
	}
	defer func() { err = errors.Join(err, l.Close()) }()

	entry, err := l.Get(ptr)
	if err != nil {
		cliutil.PrintError(err.Error())
		return err
	}

	if c.WithKey {
		_, err = fmt.Fprintf(g.out(), "%s\t%s\n", entry.Key, entry.Value)
		return err
	}
	_, err = fmt.Fprintln(g.out(), string(entry.Value))
	return err
}

// SegmentsCmd lists registered segments with their liveness accounting.
type SegmentsCmd struct {
	Dir        string `arg:"" help:"Path to the value log directory"`
	Candidates bool   `help:"Only list reclamation candidates"`
}

func (c *SegmentsCmd) Run(g *Globals) (err error) {
	l, err := openLog(c.Dir, g)
	if err != nil {
		cliutil.PrintError(err.Error())
		return err
	}
	defer func() { err = errors.Join(err, l.Close()) }()

	ids := l.SegmentIDs()
	if c.Candidates {
		ids = l.Candidates()
	}

	tw := tabwriter.NewWriter(g.out(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SEGMENT\tACTIVE\tSIZE\tRECORDS\tLIVE\tLIVE_BYTES\tLIVE_PCT")
	for _, segID := range ids {
		stats, ok := l.Stats(segID)
		if !ok {
			continue
		}
		info, err := os.Stat(l.SegmentPath(segID))
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(tw, "%d\t%t\t%d\t%d\t%d\t%d\t%.1f\n",
			segID, stats.Active, info.Size(), stats.TotalRecords, stats.LiveRecords, stats.LiveBytes,
			100*stats.LiveFraction())
	}
	return tw.Flush()
}

// VerifyCmd scans every segment read-only and reports damaged tails.
type VerifyCmd struct {
	Dir string `arg:"" help:"Path to the value log directory"`
}

func (c *VerifyCmd) Run(g *Globals) error {
	ids, err := vlog.ListSegments(c.Dir)
	if err != nil {
		cliutil.PrintError(err.Error())
		return err
	}

	damaged := 0
	tw := tabwriter.NewWriter(g.out(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SEGMENT\tRECORDS\tLAST_VALID\tTAIL")
	for _, segID := range ids {
		res, err := verifySegment(c.Dir, segID)
		if err != nil {
			cliutil.PrintError(err.Error())
			return err
		}
		if res.TailStatus != vlog.TailStatusValid {
			damaged++
			g.logger().Warn("segment tail damaged",
				"seg", segID,
				"status", res.TailStatus.String(),
				"last_valid", res.LastValid,
			)
		}
		_, _ = fmt.Fprintf(tw, "%d\t%d\t%d\t%s\n", segID, res.Records, res.LastValid, res.TailStatus)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if damaged > 0 {
		cliutil.PrintError(fmt.Sprintf("%d of %d segments damaged", damaged, len(ids)))
		return ErrVerifyFailed
	}
	return nil
}

func verifySegment(dir string, segID uint64) (*vlog.ScanResult, error) {
	reader, err := vlog.OpenSegmentReader(filepath.Join(dir, vlog.SegmentFileName(segID)), segID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	return reader.Scan(nil)
}
