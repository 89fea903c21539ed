// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package harvest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector exports download counters to Prometheus. A nil *Collector is
// valid and records nothing.
type Collector struct {
	// Attempts counts records that reached a provider chain, by publisher.
	Attempts *prometheus.CounterVec

	// Successes counts primary PDFs saved, by publisher.
	Successes *prometheus.CounterVec

	// Failures counts failed provider attempts, by provider and error kind.
	Failures *prometheus.CounterVec

	// Skipped counts records dropped before any network call, by publisher.
	Skipped *prometheus.CounterVec

	// Supplements counts supplementary files saved.
	Supplements prometheus.Counter

	// Duration observes each provider attempt in seconds.
	Duration *prometheus.HistogramVec
}

// NewCollector registers the harvest metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		Attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paper_harvester",
			Name:      "attempts_total",
			Help:      "Records routed to a provider chain",
		}, []string{"publisher"}),
		Successes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paper_harvester",
			Name:      "successes_total",
			Help:      "Primary PDFs downloaded",
		}, []string{"publisher"}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paper_harvester",
			Name:      "provider_failures_total",
			Help:      "Failed provider attempts",
		}, []string{"provider", "kind"}),
		Skipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paper_harvester",
			Name:      "skipped_total",
			Help:      "Records without a configured provider",
		}, []string{"publisher"}),
		Supplements: f.NewCounter(prometheus.CounterOpts{
			Namespace: "paper_harvester",
			Name:      "supplements_total",
			Help:      "Supplementary files downloaded",
		}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "paper_harvester",
			Name:      "download_seconds",
			Help:      "Provider attempt duration",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"provider"}),
	}
}

func (c *Collector) attempt(publisher string) {
	if c != nil {
		c.Attempts.WithLabelValues(publisher).Inc()
	}
}

func (c *Collector) success(publisher string) {
	if c != nil {
		c.Successes.WithLabelValues(publisher).Inc()
	}
}

func (c *Collector) failure(provider, kind string) {
	if c != nil {
		c.Failures.WithLabelValues(provider, kind).Inc()
	}
}

func (c *Collector) skipped(publisher string) {
	if c != nil {
		c.Skipped.WithLabelValues(publisher).Inc()
	}
}

func (c *Collector) supplements(n int) {
	if c != nil && n > 0 {
		c.Supplements.Add(float64(n))
	}
}

func (c *Collector) observe(provider string, d time.Duration) {
	if c != nil {
		c.Duration.WithLabelValues(provider).Observe(d.Seconds())
	}
}
