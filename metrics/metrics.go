// Package metrics exposes chancore's runtime gauges, grounded on the
// teacher's consensus/metrics.go: a struct of go-kit/kit/metrics fields
// constructed either against a discard backend (metrics disabled) or a
// prometheus backend (metrics enabled), with one MetricsSubsystem shared
// across every metric name.
package metrics

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// MetricsSubsystem is the subsystem shared by all metrics this package
// exposes.
const MetricsSubsystem = "chancore"

// Metrics contains the gauges and counters chancore's port and channel
// machinery update as they run.
type Metrics struct {
	// ChannelsOpen is the number of channels currently in the registry.
	ChannelsOpen metrics.Gauge
	// TXRingCount is the outstanding entry count of a port's TX ring.
	TXRingCount metrics.Gauge
	// TXDeferredDepth is the length of a port's deferred-send queue.
	TXDeferredDepth metrics.Gauge
	// RXRingDrops counts datagrams dropped because a channel's receive
	// ring was full or the channel was in the wrong state.
	RXRingDrops metrics.Counter
	// ControlQueueDepth is the length of the serialized control worker's
	// pending work queue.
	ControlQueueDepth metrics.Gauge
}

// PrometheusMetrics returns Metrics backed by a prometheus registry.
func PrometheusMetrics(labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		ChannelsOpen: kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Subsystem: MetricsSubsystem,
			Name:      "channels_open",
			Help:      "Number of channels currently present in the registry.",
		}, labels).With(labelsAndValues...),
		TXRingCount: kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Subsystem: MetricsSubsystem,
			Name:      "tx_ring_count",
			Help:      "Outstanding entries in a port's TX ring.",
		}, labels).With(labelsAndValues...),
		TXDeferredDepth: kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Subsystem: MetricsSubsystem,
			Name:      "tx_deferred_depth",
			Help:      "Length of a port's deferred-send queue.",
		}, labels).With(labelsAndValues...),
		RXRingDrops: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Subsystem: MetricsSubsystem,
			Name:      "rx_ring_drops_total",
			Help:      "Datagrams dropped because a channel's receive ring was full or the channel was in the wrong state.",
		}, labels).With(labelsAndValues...),
		ControlQueueDepth: kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Subsystem: MetricsSubsystem,
			Name:      "control_queue_depth",
			Help:      "Length of the serialized control worker's pending work queue.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns Metrics backed by a discard sink, for tests and for
// operation with metrics disabled.
func NopMetrics() *Metrics {
	return &Metrics{
		ChannelsOpen:      discard.NewGauge(),
		TXRingCount:       discard.NewGauge(),
		TXDeferredDepth:   discard.NewGauge(),
		RXRingDrops:       discard.NewCounter(),
		ControlQueueDepth: discard.NewGauge(),
	}
}
