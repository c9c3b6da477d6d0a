package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/julianstephens/vlogdb/internal/logger"
)

func init() {
	prometheus.MustRegister(RegistrySegments, RegistryRegistrations, RegistryRejections, RegistryLookups)
	prometheus.MustRegister(RegistryRemovals, RegistryCloseErrors)
	prometheus.MustRegister(LogAppends, LogAppendBytes, LogRotations, LogReads, LogReadLatency)
}

// Handler returns the HTTP handler serving the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartMetricsServer serves /metrics on addr in the background.
// The returned server can be shut down by the caller.
func StartMetricsServer(addr string, lg logger.Logger) *http.Server {
	if lg == nil {
		lg = logger.NoOpLogger{}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		lg.Info("metrics exporter listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("metrics exporter stopped", err, "addr", addr)
		}
	}()
	return srv
}
