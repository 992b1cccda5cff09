// Package observability exposes Prometheus metrics for the layer engine.
// Counters are registered once via promauto and served on /metrics when the
// daemon has metrics enabled.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MigrationsTotal counts completed mode migrations by edge.
	MigrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "layerd_migrations_total",
		Help: "Completed economic-mode migrations by from/to mode.",
	}, []string{"from", "to"})

	// MigrationFailuresTotal counts rejected or failed migration attempts.
	MigrationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "layerd_migration_failures_total",
		Help: "Migration attempts that were rejected or failed to persist.",
	})

	// CelebrationsTotal counts anonymous celebrations emitted.
	CelebrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "layerd_celebrations_total",
		Help: "Anonymous celebrations emitted.",
	})

	// AbundanceTakenTotal counts abundance pickups.
	AbundanceTakenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "layerd_abundance_taken_total",
		Help: "Abundance announcements taken.",
	})

	// NeedsFulfilledTotal counts fulfilled needs.
	NeedsFulfilledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "layerd_needs_fulfilled_total",
		Help: "Need expressions fulfilled.",
	})

	// RecomputeRunsTotal counts community counter recomputes by outcome.
	RecomputeRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "layerd_community_recomputes_total",
		Help: "Community layer counter recomputes by outcome.",
	}, []string{"outcome"})

	// CommunityModeMembers is the per-community member count for each mode,
	// refreshed on every recompute.
	CommunityModeMembers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "layerd_community_mode_members",
		Help: "Members per economic mode in a community.",
	}, []string{"community", "mode"})
)
