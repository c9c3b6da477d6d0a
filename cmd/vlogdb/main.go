package main

import (
	"context"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/vlogdb/internal/cli"
	"github.com/julianstephens/vlogdb/internal/logger"
	"github.com/julianstephens/vlogdb/internal/metrics"
	"github.com/julianstephens/vlogdb/internal/vlogdb"
)

var (
	version = "vlogdb v0.1.0"
)

type LogOpts struct {
	Level      string `help:"Logging level (debug, info, warn, error)" default:"${log_level}" envvar:"VLOGDB_LOG_LEVEL"`
	Debug      bool   `help:"Enable debug logging (overrides --level)"                envvar:"VLOGDB_DEBUG"`
	Stream     bool   `help:"Log to stdout/stderr in addition to file"                envvar:"VLOGDB_LOG_STREAM"`
	MaxSize    int    `help:"Log file size in MB before rotation" default:"${log_max_size}" envvar:"VLOGDB_LOG_MAX_SIZE"`
	MaxBackups int    `help:"Rotated log files to keep"           default:"${log_max_backups}" envvar:"VLOGDB_LOG_MAX_BACKUPS"`
}

type CLI struct {
	Init     cli.InitCmd     `cmd:"" help:"Initialize a new value log directory"`
	Put      cli.PutCmd      `cmd:"" help:"Append a value and print its pointer"`
	Get      cli.GetCmd      `cmd:"" help:"Read the value a pointer refers to"`
	Segments cli.SegmentsCmd `cmd:"" help:"List segments and their liveness"`
	Verify   cli.VerifyCmd   `cmd:"" help:"Scan every segment for damage"`
	Config   cli.ConfigCmd   `cmd:"" help:"Show or change value log settings"`

	LogOpts     LogOpts          `embed:"" prefix:"log-" help:"Logging options"`
	MetricsAddr string           `help:"Serve Prometheus metrics on this address while the command runs" envvar:"VLOGDB_METRICS_ADDR"`
	Version     kong.VersionFlag `help:"Show version information" short:"V"`
}

func createLogger(opts LogOpts) (logger.Logger, error) {
	var level string
	if opts.Debug {
		level = "debug"
	} else {
		level = opts.Level
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	logDir := path.Join(homeDir, vlogdb.DefaultAppDir, vlogdb.DefaultLogDir)
	fileLogger, err := logger.NewFileLogger(
		logDir,
		vlogdb.DefaultLogFileName,
		opts.MaxSize,
		opts.MaxBackups,
	)
	if err != nil {
		return nil, err
	}

	if !opts.Stream {
		return fileLogger, nil
	}
	return logger.NewMultiLogger(fileLogger, logger.NewConsoleLogger(level)), nil
}

func main() {
	cliApp := &CLI{}
	ctx := kong.Parse(cliApp,
		kong.Name("vlogdb"),
		kong.Description("A segmented value log for key-value separated storage"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version":           version,
			"log_level":         vlogdb.DefaultLogLevel,
			"segment_max_bytes": strconv.FormatInt(vlogdb.DefaultSegmentMaxBytes, 10),
			"reclaim_threshold": strconv.FormatUint(vlogdb.DefaultReclaimThreshold, 10),
			"expected_records":  strconv.Itoa(vlogdb.DefaultExpectedRecords),
			"log_max_size":      strconv.Itoa(vlogdb.DefaultLogMaxSize),
			"log_max_backups":   strconv.Itoa(vlogdb.DefaultLogMaxBackups),
		},
	)

	os.Exit(run(ctx, cliApp))
}

func run(ctx *kong.Context, cliApp *CLI) int {
	lg, err := createLogger(cliApp.LogOpts)
	if err != nil {
		ctx.Errorf("create logger: %v", err)
		return 1
	}
	defer func() {
		if c, ok := lg.(logger.Closeable); ok {
			_ = c.Close()
		}
	}()

	if cliApp.MetricsAddr != "" {
		srv := metrics.StartMetricsServer(cliApp.MetricsAddr, lg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if err := ctx.Run(&cli.Globals{Logger: lg, Out: os.Stdout}); err != nil {
		lg.Error("command failed", err, "command", ctx.Command())
		return 1
	}
	return 0
}
