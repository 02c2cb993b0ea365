package adapters

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fsonner/restauth-bridge/internal/config"
	"github.com/fsonner/restauth-bridge/internal/domain"
)

// MetricsServer exposes Prometheus metrics about remote service calls and
// synchronization runs.
type MetricsServer struct {
	*http.Server

	remoteCallsTotal *prometheus.CounterVec
	refreshRunsTotal *prometheus.CounterVec
	pushRunsTotal    *prometheus.CounterVec
	reconcileActions *prometheus.CounterVec
	groupSyncChanges *prometheus.CounterVec
}

// NewMetricsServer returns a new prometheus server
func NewMetricsServer(cfg *config.Config) *MetricsServer {
	reg := prometheus.NewRegistry()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	return &MetricsServer{
		Server: &http.Server{
			Addr:    cfg.Web.MetricsListeningAddress,
			Handler: mux,
		},

		remoteCallsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "restauth_remote_calls_total",
				Help: "Remote authentication service calls by operation and outcome.",
			}, []string{"operation", "outcome"},
		),
		refreshRunsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "restauth_refresh_runs_total",
				Help: "Remote to local refresh passes by result.",
			}, []string{"result"},
		),
		pushRunsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "restauth_push_runs_total",
				Help: "Local to remote preference pushes by result.",
			}, []string{"result"},
		),
		reconcileActions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "restauth_reconcile_actions_total",
				Help: "Reconciler actions sent to the remote property store.",
			}, []string{"action"},
		),
		groupSyncChanges: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "restauth_group_sync_changes_total",
				Help: "Local group membership changes applied by the synchronizer.",
			}, []string{"change"},
		),
	}
}

// Run starts the metrics server. The function blocks until the context is cancelled.
func (m *MetricsServer) Run(ctx context.Context) {
	// Run the metrics server in a goroutine
	go func() {
		if err := m.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics service exited", "address", m.Addr, "error", err)
		}
	}()

	slog.Info("started metrics service", "address", m.Addr)

	// Wait for the main context to end
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = m.Shutdown(shutdownCtx)

	slog.Info("metrics service stopped", "address", m.Addr)
}

// CountRemoteCall implements RemoteCallRecorder.
func (m *MetricsServer) CountRemoteCall(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		var svcErr *domain.ServiceError
		if errors.As(err, &svcErr) {
			outcome = string(svcErr.Kind)
		}
	}
	m.remoteCallsTotal.WithLabelValues(operation, outcome).Inc()
}

// CountRefresh counts a remote to local refresh pass.
func (m *MetricsServer) CountRefresh(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.refreshRunsTotal.WithLabelValues(result).Inc()
}

// CountPush counts a local to remote preference push.
func (m *MetricsServer) CountPush(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.pushRunsTotal.WithLabelValues(result).Inc()
}

// CountReconcileActions counts emitted property writes and deletions.
func (m *MetricsServer) CountReconcileActions(sets, deletes int) {
	m.reconcileActions.WithLabelValues("set").Add(float64(sets))
	m.reconcileActions.WithLabelValues("delete").Add(float64(deletes))
}

// CountGroupChanges counts applied local group membership changes.
func (m *MetricsServer) CountGroupChanges(added, removed int) {
	m.groupSyncChanges.WithLabelValues("added").Add(float64(added))
	m.groupSyncChanges.WithLabelValues("removed").Add(float64(removed))
}
