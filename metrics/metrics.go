// Package metrics exposes the docauth.Metrics hook as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/panyam/docauth"
)

var _ docauth.Metrics = (*Collector)(nil)

// Collector records bridge and reaper activity in Prometheus metrics.
type Collector struct {
	cacheHits      prometheus.Counter
	minted         prometheus.Counter
	mintFailures   prometheus.Counter
	mintLatency    prometheus.Histogram
	sessionsReaped *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docauth_credential_cache_hits_total",
			Help: "Scoped credentials served from the cache",
		}),
		minted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docauth_credentials_minted_total",
			Help: "Scoped credentials minted",
		}),
		mintFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docauth_credential_mint_failures_total",
			Help: "Failed attempts to mint a scoped credential",
		}),
		mintLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "docauth_credential_mint_seconds",
			Help:    "Time taken to mint a scoped credential",
			Buckets: prometheus.DefBuckets,
		}),
		sessionsReaped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docauth_sessions_reaped_total",
			Help: "Expired sessions processed by the reaper, by outcome",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.cacheHits,
		c.minted,
		c.mintFailures,
		c.mintLatency,
		c.sessionsReaped,
	)
	return c
}

func (c *Collector) RecordCredentialCacheHit() {
	c.cacheHits.Inc()
}

func (c *Collector) RecordCredentialMinted(duration time.Duration) {
	c.minted.Inc()
	c.mintLatency.Observe(duration.Seconds())
}

func (c *Collector) RecordCredentialMintFailure() {
	c.mintFailures.Inc()
}

func (c *Collector) RecordSessionsReaped(deleted, failed int) {
	c.sessionsReaped.WithLabelValues("deleted").Add(float64(deleted))
	c.sessionsReaped.WithLabelValues("failed").Add(float64(failed))
}

// Handler returns the HTTP handler Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
