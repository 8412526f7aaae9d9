// Package metrics exposes Prometheus instrumentation for unit conversions and
// for the HTTP endpoints that serve them.
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chosenoffset/measure/pkg/units"
)

// Namespace prefixes every metric name.
const Namespace = "measure"

// ConversionMetrics counts accepted and rejected conversions per channel and
// tracks the last converted quantity.
type ConversionMetrics struct {
	converted *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	last      *prometheus.GaugeVec

	convertedTotal int64
	rejectedTotal  int64

	mu       sync.RWMutex
	lastUnit map[string]string
}

// ConversionStats is a snapshot of the totals.
type ConversionStats struct {
	Converted int64 `json:"converted"`
	Rejected  int64 `json:"rejected"`
}

func NewConversionMetrics(reg prometheus.Registerer) *ConversionMetrics {
	c := &ConversionMetrics{
		converted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "conversions_total",
			Help:      "Readings converted into their channel's display unit.",
		}, []string{"channel"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "unit_mismatches_total",
			Help:      "Readings rejected because their unit is incompatible with the channel.",
		}, []string{"channel"}),
		last: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_quantity",
			Help:      "Most recent converted quantity, by channel and display unit.",
		}, []string{"channel", "unit"}),
		lastUnit: make(map[string]string),
	}
	reg.MustRegister(c.converted, c.rejected, c.last)
	return c
}

// ObserveConverted records a reading already expressed in the channel's unit.
func (c *ConversionMetrics) ObserveConverted(channel string, m units.Measure) {
	unit := m.Unit().String()

	c.mu.Lock()
	if prev, ok := c.lastUnit[channel]; ok && prev != unit {
		c.last.DeleteLabelValues(channel, prev)
	}
	c.lastUnit[channel] = unit
	c.mu.Unlock()

	c.converted.WithLabelValues(channel).Inc()
	c.last.WithLabelValues(channel, unit).Set(m.Quantity())
	atomic.AddInt64(&c.convertedTotal, 1)
}

func (c *ConversionMetrics) ObserveRejected(channel string) {
	c.rejected.WithLabelValues(channel).Inc()
	atomic.AddInt64(&c.rejectedTotal, 1)
}

func (c *ConversionMetrics) GetStats() ConversionStats {
	return ConversionStats{
		Converted: atomic.LoadInt64(&c.convertedTotal),
		Rejected:  atomic.LoadInt64(&c.rejectedTotal),
	}
}
