package protocol

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "rdt"

// Metrics are the per-process transfer counters. Passing a nil registerer
// keeps them on a private registry.
type Metrics struct {
	SegmentsSent     prometheus.Counter
	Retransmits      *prometheus.CounterVec
	AcksReceived     prometheus.Counter
	DuplicateAcks    prometheus.Counter
	AcksSent         prometheus.Counter
	MalformedDropped prometheus.Counter
	BytesDelivered   prometheus.Counter
	Window           prometheus.Gauge
	SSThresh         prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		SegmentsSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "segments_sent_total",
			Help:      "Data segments transmitted for the first time.",
		}),
		Retransmits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "retransmits_total",
			Help:      "Head-of-window retransmissions by trigger.",
		}, []string{"reason"}),
		AcksReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "acks_received_total",
			Help:      "Acknowledgments processed by the sender.",
		}),
		DuplicateAcks: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "duplicate_acks_total",
			Help:      "Acknowledgments repeating the last cumulative offset.",
		}),
		AcksSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "acks_sent_total",
			Help:      "Acknowledgments emitted by the receiver.",
		}),
		MalformedDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "malformed_dropped_total",
			Help:      "Datagrams rejected by the segment codec or link layer.",
		}),
		BytesDelivered: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bytes_delivered_total",
			Help:      "Bytes written in order to the output sink.",
		}),
		Window: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "congestion_window_segments",
			Help:      "Current congestion window.",
		}),
		SSThresh: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "slow_start_threshold_segments",
			Help:      "Current slow start threshold.",
		}),
	}
}

const (
	reasonTimeout = "timeout"
	reasonFast    = "fast"
)

// ServeMetrics exposes g on addr at /metrics until ctx is done.
func ServeMetrics(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Infow("serving metrics", "addr", addr)

	select {
	case err := <-errCh:
		return errors.Wrap(err, "metrics server")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return errors.Wrap(srv.Shutdown(shutdownCtx), "metrics shutdown")
	}
}
