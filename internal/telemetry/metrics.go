package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"pollux/internal/cell"
	"pollux/internal/gossip"
)

const namespace = "pollux"

// Metrics owns a private registry with the gossip metrics.
type Metrics struct {
	Registry *prometheus.Registry

	DispatchTotal *prometheus.CounterVec
	Members       *prometheus.GaugeVec
	SyncDuration  prometheus.Histogram
	SyncFailures  prometheus.Counter
	RPCTotal      *prometheus.CounterVec
	RPCDuration   *prometheus.HistogramVec

	buildInfo *prometheus.GaugeVec
}

var _ gossip.Recorder = (*Metrics)(nil)

// New creates and registers the metrics. now is the start time for the
// uptime gauge.
func New(now func() time.Time) *Metrics {
	if now == nil {
		now = time.Now
	}
	start := now()

	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		DispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Gossip messages dispatched, by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),

		Members: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "members",
				Help:      "Known cells by status.",
			},
			[]string{"status"},
		),

		SyncDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_duration_seconds",
				Help:      "Latency of push-pull exchanges with a peer.",
				// 1ms .. ~4s
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 13),
			},
		),

		SyncFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_failures_total",
				Help:      "Push-pull exchanges that failed.",
			},
		),

		RPCTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rpc_total",
				Help:      "Gossip RPCs served, by method and status code.",
			},
			[]string{"method", "code"},
		),

		RPCDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rpc_duration_seconds",
				Help:      "Latency of served gossip RPCs.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
			[]string{"method"},
		),

		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "build_info",
				Help:      "Build info (constant 1, labeled by version).",
			},
			[]string{"version"},
		),
	}

	uptime := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return now().Sub(start).Seconds() },
	)

	m.Registry.MustRegister(
		m.DispatchTotal,
		m.Members,
		m.SyncDuration,
		m.SyncFailures,
		m.RPCTotal,
		m.RPCDuration,
		m.buildInfo,
		uptime,
	)
	return m
}

// Handler exposes the registry. Mount it with mux.Handle("/metrics", m.Handler()).
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// SetBuildInfo should be called once at startup.
func (m *Metrics) SetBuildInfo(version string) {
	m.buildInfo.WithLabelValues(version).Set(1)
}

// ObserveDispatch implements gossip.Recorder.
func (m *Metrics) ObserveDispatch(kind, outcome string) {
	m.DispatchTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveMembers implements gossip.Recorder. Every status is reported so a
// status that drops to zero is not left at its previous value.
func (m *Metrics) ObserveMembers(counts map[cell.Status]int) {
	for _, s := range cell.Statuses() {
		m.Members.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}

// ObserveSync implements gossip.Recorder.
func (m *Metrics) ObserveSync(d time.Duration, err error) {
	m.SyncDuration.Observe(d.Seconds())
	if err != nil {
		m.SyncFailures.Inc()
	}
}

// UnaryServerInterceptor records count and latency of every served RPC.
func (m *Metrics) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		m.RPCTotal.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()
		m.RPCDuration.WithLabelValues(info.FullMethod).Observe(time.Since(start).Seconds())
		return resp, err
	}
}
