package monitoring

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"unipass/models"
)

var (
	ticketsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tickets_issued_total",
			Help: "Total tickets issued",
		},
	)

	ticketScans = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_scans_total",
			Help: "Total scan attempts by result",
		},
		[]string{"result"},
	)

	ticketsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tickets",
			Help: "Current ticket count per scan state",
		},
		[]string{"state"},
	)

	scanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scan_duration_seconds",
			Help:    "Duration of scan requests",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)
)

// MetricsSource is implemented by the ticket service.
type MetricsSource interface {
	Metrics(ctx context.Context) (models.TicketMetrics, error)
}

// Monitor periodically refreshes the state gauges from a full ticket count.
type Monitor struct {
	source   MetricsSource
	interval time.Duration
}

func NewMonitor(source MetricsSource, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{source: source, interval: interval}
}

func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collect(ctx)
		}
	}
}

func (m *Monitor) collect(ctx context.Context) {
	metrics, err := m.source.Metrics(ctx)
	if err != nil {
		slog.Warn("metrics collection failed", "error", err)
		return
	}

	ticketsByState.WithLabelValues("pending").Set(float64(metrics.Pending))
	ticketsByState.WithLabelValues("scanned").Set(float64(metrics.Scanned))
}

func TrackIssued() {
	ticketsIssued.Inc()
}

func TrackScan(result string, duration time.Duration) {
	ticketScans.WithLabelValues(result).Inc()
	scanDuration.Observe(duration.Seconds())
}
