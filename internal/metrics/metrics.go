// Package metrics exposes the run's prometheus counters and gauges,
// grounded on the teacher's internal/crawler/metrics.go package-level
// promauto pattern, generalized from scrape-specific counters to the
// orchestrator's claim/quiescence/fetch vocabulary.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// URLsClaimed counts successful exclusive-create claims.
	URLsClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitecrawl_urls_claimed_total",
		Help: "The total number of URLs successfully claimed from the frontier.",
	})
	// URLsCompleted counts claims promoted to a .done marker.
	URLsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitecrawl_urls_completed_total",
		Help: "The total number of URL claims completed.",
	})
	// URLsAbandoned counts claims released without completion.
	URLsAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitecrawl_urls_abandoned_total",
		Help: "The total number of URL claims released without completion.",
	})
	// FetchesTotal counts every navigation/probe attempt.
	FetchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitecrawl_fetches_total",
		Help: "The total number of page fetch attempts (headless or probe).",
	})
	// FetchErrorsTotal counts navigation failures that fell back to a probe.
	FetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitecrawl_fetch_errors_total",
		Help: "The total number of fetches that exhausted retries and fell back to a probe.",
	})
	// WorkStealsTotal counts claims won via ClaimNextAny outside a worker's
	// home bucket set.
	WorkStealsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitecrawl_work_steals_total",
		Help: "The total number of claims won through work-stealing.",
	})
	// QuiescenceStableCycles reports the current stable-cycle count observed
	// by the orchestrator's quiescence detector.
	QuiescenceStableCycles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sitecrawl_quiescence_stable_cycles",
		Help: "The current consecutive stable-fingerprint tick count.",
	})
	// FrontierPendingBytes reports the sum of pending bytes across all
	// buckets at the last quiescence tick.
	FrontierPendingBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sitecrawl_frontier_pending_bytes",
		Help: "Sum of pending (unclaimed) bytes across all frontier buckets.",
	})
)
