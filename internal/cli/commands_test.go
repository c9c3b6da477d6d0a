package cli_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tst "github.com/julianstephens/go-utils/tests"

	"github.com/julianstephens/vlogdb/internal/cli"
	"github.com/julianstephens/vlogdb/internal/vlogdb/manifest"
	"github.com/julianstephens/vlogdb/internal/vlogdb/vlog"
)

func initDir(t *testing.T, cmd cli.InitCmd) string {
	t.Helper()
	if cmd.Dir == "" {
		cmd.Dir = filepath.Join(t.TempDir(), "vlog")
	}
	if cmd.Compression == "" {
		cmd.Compression = manifest.CompressionNone
	}
	if cmd.SegmentMaxBytes == 0 {
		cmd.SegmentMaxBytes = 1 << 20
	}
	tst.RequireNoError(t, cmd.Run(&cli.Globals{Out: &bytes.Buffer{}}))
	return cmd.Dir
}

func put(t *testing.T, dir, key, value string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := cli.PutCmd{Dir: dir, Key: key, Value: value}
	tst.RequireNoError(t, cmd.Run(&cli.Globals{Out: &out}))
	return strings.TrimSpace(out.String())
}

func TestInitCreatesManifestAndSegment(t *testing.T) {
	dir := initDir(t, cli.InitCmd{ReclaimThreshold: 3, Compression: manifest.CompressionZstd})

	m, err := manifest.Open(dir)
	tst.RequireNoError(t, err)
	tst.AssertEqual(t, m.ReclaimThreshold, uint64(3), "reclaim threshold persisted")
	tst.AssertEqual(t, m.Compression, manifest.CompressionZstd, "compression persisted")

	_, err = os.Stat(filepath.Join(dir, vlog.SegmentFileName(vlog.FirstSegmentID)))
	tst.RequireNoError(t, err)

	err = (&cli.InitCmd{Dir: dir, Compression: manifest.CompressionNone}).Run(&cli.Globals{})
	tst.AssertTrue(t, errors.Is(err, manifest.ErrManifestAlreadyExists), "second init fails")
}

func TestPutGet(t *testing.T) {
	dir := initDir(t, cli.InitCmd{})

	ptr := put(t, dir, "user:1", "alice")
	_, err := vlog.ParseValuePointer(ptr)
	tst.RequireNoError(t, err)

	var out bytes.Buffer
	tst.RequireNoError(t, (&cli.GetCmd{Dir: dir, Pointer: ptr}).Run(&cli.Globals{Out: &out}))
	tst.AssertEqual(t, out.String(), "alice\n", "value output")

	out.Reset()
	tst.RequireNoError(t, (&cli.GetCmd{Dir: dir, Pointer: ptr, WithKey: true}).Run(&cli.Globals{Out: &out}))
	tst.AssertEqual(t, out.String(), "user:1\talice\n", "key and value output")
}

func TestGetBadPointer(t *testing.T) {
	dir := initDir(t, cli.InitCmd{})

	err := (&cli.GetCmd{Dir: dir, Pointer: "nope"}).Run(&cli.Globals{})
	tst.AssertTrue(t, errors.Is(err, vlog.ErrInvalidPointer), "expected ErrInvalidPointer")

	err = (&cli.GetCmd{Dir: dir, Pointer: "9:0:40"}).Run(&cli.Globals{})
	tst.AssertTrue(t, errors.Is(err, vlog.ErrSegmentNotFound), "expected ErrSegmentNotFound")
}

func TestCommandsRequireInit(t *testing.T) {
	err := (&cli.PutCmd{Dir: t.TempDir(), Key: "k", Value: "v"}).Run(&cli.Globals{})
	tst.AssertTrue(t, errors.Is(err, manifest.ErrManifestNotFound), "expected ErrManifestNotFound")
}

func TestSegmentsListsRotatedSegments(t *testing.T) {
	dir := initDir(t, cli.InitCmd{SegmentMaxBytes: 64})
	for _, v := range []string{"first-value-xxxxxxxxxxxx", "second-value-xxxxxxxxxxx", "third-value-xxxxxxxxxxxx"} {
		put(t, dir, "k", v)
	}

	var out bytes.Buffer
	tst.RequireNoError(t, (&cli.SegmentsCmd{Dir: dir}).Run(&cli.Globals{Out: &out}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	tst.AssertEqual(t, len(lines), 4, "header plus three segments")
	tst.AssertTrue(t, strings.HasPrefix(lines[0], "SEGMENT"), "header row")
	tst.AssertTrue(t, strings.Contains(lines[3], "true"), "last segment is active")
}

func TestVerify(t *testing.T) {
	dir := initDir(t, cli.InitCmd{})
	ptr := put(t, dir, "k", "value")

	var out bytes.Buffer
	tst.RequireNoError(t, (&cli.VerifyCmd{Dir: dir}).Run(&cli.Globals{Out: &out}))
	tst.AssertTrue(t, strings.Contains(out.String(), "valid"), "segment reported valid")

	p, err := vlog.ParseValuePointer(ptr)
	tst.RequireNoError(t, err)
	tst.RequireNoError(t, os.Truncate(filepath.Join(dir, vlog.SegmentFileName(p.SegID)), p.End()-2))

	out.Reset()
	err = (&cli.VerifyCmd{Dir: dir}).Run(&cli.Globals{Out: &out})
	tst.AssertTrue(t, errors.Is(err, cli.ErrVerifyFailed), "expected ErrVerifyFailed")
	tst.AssertTrue(t, strings.Contains(out.String(), "truncated"), "segment reported truncated")

	// verify is read-only: the torn tail is still there.
	info, err := os.Stat(filepath.Join(dir, vlog.SegmentFileName(p.SegID)))
	tst.RequireNoError(t, err)
	tst.AssertEqual(t, info.Size(), p.End()-2, "verify does not repair")
}

func TestConfigShowsAndUpdatesSettings(t *testing.T) {
	dir := initDir(t, cli.InitCmd{ReclaimThreshold: 1})

	var out bytes.Buffer
	tst.RequireNoError(t, (&cli.ConfigCmd{Dir: dir}).Run(&cli.Globals{Out: &out}))
	tst.AssertTrue(t, strings.Contains(out.String(), "compression"), "settings listed")

	threshold := uint64(4)
	compression := manifest.CompressionZstd
	fsync := false
	out.Reset()
	cmd := cli.ConfigCmd{Dir: dir, ReclaimThreshold: &threshold, Compression: &compression, FsyncOnRotate: &fsync}
	tst.RequireNoError(t, cmd.Run(&cli.Globals{Out: &out}))

	m, err := manifest.Open(dir)
	tst.RequireNoError(t, err)
	tst.AssertEqual(t, m.ReclaimThreshold, threshold, "reclaim threshold saved")
	tst.AssertEqual(t, m.Compression, manifest.CompressionZstd, "compression saved")
	tst.AssertFalse(t, m.FsyncOnRotate, "fsync on rotate saved")
	tst.AssertEqual(t, m.SegmentMaxBytes, int64(1<<20), "untouched setting kept")

	// New records follow the updated compression.
	ptr := put(t, dir, "k", strings.Repeat("z", 512))
	p, err := vlog.ParseValuePointer(ptr)
	tst.RequireNoError(t, err)
	tst.AssertLessThan(t, p.Size, uint32(512), "value stored compressed")
}

func TestConfigRejectsInvalidSettings(t *testing.T) {
	dir := initDir(t, cli.InitCmd{})

	compression := "lz4"
	err := (&cli.ConfigCmd{Dir: dir, Compression: &compression}).Run(&cli.Globals{Out: &bytes.Buffer{}})
	tst.AssertTrue(t, errors.Is(err, manifest.ErrManifestInvalid), "expected ErrManifestInvalid")

	m, err := manifest.Open(dir)
	tst.RequireNoError(t, err)
	tst.AssertEqual(t, m.Compression, manifest.CompressionNone, "manifest unchanged")

	err = (&cli.ConfigCmd{Dir: t.TempDir()}).Run(&cli.Globals{Out: &bytes.Buffer{}})
	tst.AssertTrue(t, errors.Is(err, manifest.ErrManifestNotFound), "expected ErrManifestNotFound")
}
