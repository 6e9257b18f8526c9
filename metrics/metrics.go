// Package metrics counts reconciliation results for Prometheus. Values are
// written to a node_exporter textfile after every cycle; there is no HTTP
// listener.
package metrics

import (
	"context"
	"ddnsguard/blocklist"
	"ddnsguard/log"
	"ddnsguard/publicip"
	"ddnsguard/updater"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const namespace = "ddnsguard"

// Metrics is safe to use as a nil pointer, in which case nothing is recorded.
type Metrics struct {
	registry *prometheus.Registry
	textfile string

	cycles        *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	recordUpdates *prometheus.CounterVec
	blockRanges   *prometheus.GaugeVec
	lastSuccess   prometheus.Gauge
	cycleSeconds  prometheus.Histogram
}

func New(textfile string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		textfile: textfile,

		cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Reconciliation cycles by result.",
		}, []string{"result"}),

		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidate_rejections_total",
			Help:      "Echo endpoint answers refused by validation.",
		}, []string{"reason"}),

		recordUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_updates_total",
			Help:      "Record update attempts by result.",
		}, []string{"result"}),

		blockRanges: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "blocklist_ranges",
			Help:      "Number of blocked ranges by the source they were loaded from.",
		}, []string{"source"}),

		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last cycle that left the record in sync.",
		}),

		cycleSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of reconciliation cycles.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func reasonLabel(reason error) string {
	switch {
	case errors.Is(reason, publicip.ErrNotIPv4):
		return "not_ipv4"
	case errors.Is(reason, publicip.ErrNotGlobal):
		return "not_global"
	case errors.Is(reason, publicip.ErrBlocked):
		return "blocked"
	default:
		return "other"
	}
}

// CandidateRejected has the publicip.Rejection signature.
func (m *Metrics) CandidateRejected(endpoint string, reason error) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reasonLabel(reason)).Inc()
}

func (m *Metrics) ObserveCycle(o updater.Outcome) {
	if m == nil {
		return
	}

	m.cycles.WithLabelValues(string(o.Action)).Inc()
	m.cycleSeconds.Observe(o.Elapsed.Seconds())

	switch o.Action {
	case updater.Updated:
		m.recordUpdates.WithLabelValues("success").Inc()
	case updater.UpdateFailed:
		m.recordUpdates.WithLabelValues("failure").Inc()
	}

	if o.Action.Succeeded() {
		m.lastSuccess.Set(float64(o.Started.Add(o.Elapsed).Unix()))
	}
}

func (m *Metrics) ObserveBlockList(s *blocklist.Set) {
	if m == nil || s == nil {
		return
	}
	m.blockRanges.Reset()
	m.blockRanges.WithLabelValues(string(s.Source())).Set(float64(s.Len()))
}

// Flush writes all metrics to the configured textfile. It is a no-op when no
// textfile is configured.
func (m *Metrics) Flush(ctx context.Context) error {
	if m == nil || m.textfile == "" {
		return nil
	}

	start := time.Now()
	if err := prometheus.WriteToTextfile(m.textfile, m.registry); err != nil {
		log.S(ctx).Warnw("failed write metrics textfile", "path", m.textfile, zap.Error(err))
		return fmt.Errorf("failed write metrics textfile: %w", err)
	}

	log.S(ctx).Debugw("metrics written", "path", m.textfile, "took", time.Since(start))
	return nil
}
