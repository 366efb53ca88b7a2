// Package metrics exposes simulation counters to Prometheus. A nil *Registry
// is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg           *prometheus.Registry
	WeeksAdvanced prometheus.Counter
	Events        *prometheus.CounterVec
	FailedEffects *prometheus.CounterVec
	ActiveEffects prometheus.Gauge
	TickSeconds   prometheus.Histogram
	PriceCache    *prometheus.GaugeVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	weeks := prometheus.NewCounter(prometheus.CounterOpts{Name: "tradesim_weeks_advanced_total"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "tradesim_events_triggered_total"}, []string{"type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "tradesim_effects_failed_total"}, []string{"reason"})
	active := prometheus.NewGauge(prometheus.GaugeOpts{Name: "tradesim_active_market_effects"})
	tick := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tradesim_tick_seconds",
		Buckets: prometheus.DefBuckets,
	})
	cache := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "tradesim_price_cache"}, []string{"stat"})

	r.MustRegister(weeks, events, failed, active, tick, cache)
	return &Registry{
		reg:           r,
		WeeksAdvanced: weeks,
		Events:        events,
		FailedEffects: failed,
		ActiveEffects: active,
		TickSeconds:   tick,
		PriceCache:    cache,
	}
}

func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveTick records one completed week and how long it took.
func (r *Registry) ObserveTick(d time.Duration) {
	if r == nil {
		return
	}
	r.WeeksAdvanced.Inc()
	r.TickSeconds.Observe(d.Seconds())
}

func (r *Registry) EventTriggered(eventType string) {
	if r == nil {
		return
	}
	r.Events.WithLabelValues(eventType).Inc()
}

func (r *Registry) EffectFailed(reason string) {
	if r == nil {
		return
	}
	r.FailedEffects.WithLabelValues(reason).Inc()
}

func (r *Registry) SetActiveEffects(n int) {
	if r == nil {
		return
	}
	r.ActiveEffects.Set(float64(n))
}

// SetPriceCache publishes the price engine's memoization stats.
func (r *Registry) SetPriceCache(hits, misses uint64, size int) {
	if r == nil {
		return
	}
	r.PriceCache.WithLabelValues("hits").Set(float64(hits))
	r.PriceCache.WithLabelValues("misses").Set(float64(misses))
	r.PriceCache.WithLabelValues("size").Set(float64(size))
}
