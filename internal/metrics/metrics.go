// Package metrics provides Prometheus instrumentation for the roommate
// matcher. It exposes gauges for roster and interest-graph sizes, counters
// for request throughput and discovered groups, and histograms for latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts matcher requests, labeled by subject and result:
	// "ok", "error", or "limited".
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roommates_requests_total",
		Help: "Total number of matcher requests processed",
	}, []string{"subject", "result"})

	// RequestLatency records request handling latency in seconds.
	RequestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roommates_request_latency_seconds",
		Help:    "Matcher request handling latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"subject"})

	// DiscoveryDuration records how long one group discovery pass takes.
	DiscoveryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "roommates_discovery_duration_seconds",
		Help:    "Time spent discovering roommate groups",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
	})

	// GroupsDiscovered counts emitted groups by size ("2" or "3").
	GroupsDiscovered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roommates_groups_discovered_total",
		Help: "Total number of roommate groups emitted by discovery",
	}, []string{"size"})

	// ScoresComputed counts pairwise compatibility evaluations.
	ScoresComputed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roommates_scores_computed_total",
		Help: "Total number of pairwise compatibility scores computed",
	})

	// InterestsTotal counts interest events, labeled "new" or "duplicate".
	InterestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roommates_interests_total",
		Help: "Total number of interest events received",
	}, []string{"kind"})

	// InvitesTotal counts group invitations by action: "sent" or "withdrawn".
	InvitesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roommates_invites_total",
		Help: "Total number of group invitations sent or withdrawn",
	}, []string{"action"})

	// MutualMatches counts interest events that completed a mutual match.
	MutualMatches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roommates_mutual_matches_total",
		Help: "Total number of interest events that made a pair mutual",
	})

	// RosterSize tracks the number of profiles in the roster.
	RosterSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "roommates_roster_size",
		Help: "Current number of profiles in the roster",
	})

	// InterestGraphSize tracks how many users have liked at least one other user.
	InterestGraphSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "roommates_interest_graph_size",
		Help: "Current number of users with outgoing interest",
	})
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestLatency,
		DiscoveryDuration,
		GroupsDiscovered,
		ScoresComputed,
		InterestsTotal,
		InvitesTotal,
		MutualMatches,
		RosterSize,
		InterestGraphSize,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
