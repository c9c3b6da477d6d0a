package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RegistrySegments = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vlogdb_registry_segments",
		Help: "Number of value-log segments currently registered",
	})

	RegistryRegistrations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vlogdb_registry_registrations_total",
		Help: "Total number of segments registered",
	})

	RegistryRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vlogdb_registry_rejections_total",
			Help: "Total number of rejected segment registrations",
		},
		[]string{"reason"},
	)

	RegistryLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vlogdb_registry_lookups_total",
			Help: "Total number of segment lookups by result",
		},
		[]string{"result"},
	)

	RegistryRemovals = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vlogdb_registry_removals_total",
		Help: "Total number of segments removed from the registry",
	})

	RegistryCloseErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vlogdb_registry_reader_close_errors_total",
		Help: "Total number of segment readers that failed to close",
	})
)

var (
	LogAppends = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vlogdb_log_appends_total",
		Help: "Total number of value records appended",
	})

	LogAppendBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vlogdb_log_append_bytes_total",
		Help: "Total framed bytes appended to value-log segments",
	})

	LogRotations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vlogdb_log_rotations_total",
		Help: "Total number of segment rotations",
	})

	LogReads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vlogdb_log_reads_total",
			Help: "Total number of value reads by outcome",
		},
		[]string{"result"},
	)

	LogReadLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vlogdb_log_read_latency_seconds",
		Help:    "Latency of resolving and reading a value pointer",
		Buckets: prometheus.DefBuckets,
	})
)

// Label values shared by the counters above.
const (
	ResultHit    = "hit"
	ResultMiss   = "miss"
	ResultError  = "error"
	ReasonNil    = "nil_reader"
	ReasonDup    = "duplicate"
	ReasonClosed = "closed"
)
