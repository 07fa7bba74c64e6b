// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the achievement token engine.
var (
	// Counters.
	AchievementsSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "achievements_submitted_total",
			Help: "Total number of achievement submissions by category and resulting status",
		},
		[]string{"category", "status"},
	)

	TrustVerdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trust_verdicts_total",
			Help: "Total number of trust verdicts by recommended action",
		},
		[]string{"action"},
	)

	AssessmentFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assessment_failures_total",
			Help: "Total number of trust assessments that failed or timed out",
		},
	)

	TokensCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokens_created_total",
			Help: "Total number of tokens created by category and origin",
		},
		[]string{"category", "origin"},
	)

	EvolutionPointsAddedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evolution_points_added_total",
			Help: "Total evolution points added by reason",
		},
		[]string{"reason"},
	)

	LevelUpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "level_ups_total",
			Help: "Total number of level crossings by token category",
		},
		[]string{"category"},
	)

	RarityChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rarity_changes_total",
			Help: "Total number of rarity crossings by new rarity",
		},
		[]string{"rarity"},
	)

	CompositesCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "composites_created_total",
			Help: "Total number of composite tokens created by rule",
		},
		[]string{"rule"},
	)

	ConsumptionConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "consumption_conflicts_total",
			Help: "Total number of composite creations lost to a consumption race",
		},
	)

	ScoreUpdateRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "score_update_retries_total",
			Help: "Total number of optimistic-lock retries on score updates",
		},
	)

	// Histograms.
	SeedScorePoints = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "seed_score_points",
			Help:    "Seed scores assigned to newly created tokens",
			Buckets: prometheus.LinearBuckets(0, 100, 10), // 0 to 900 points
		},
		[]string{"category"},
	)
)

// RecordSubmission increments the submission counter.
func RecordSubmission(category, status string) {
	AchievementsSubmittedTotal.WithLabelValues(category, status).Inc()
}

// RecordTrustVerdict increments the verdict counter.
func RecordTrustVerdict(action string) {
	TrustVerdictsTotal.WithLabelValues(action).Inc()
}

// RecordAssessmentFailure increments the assessment failure counter.
func RecordAssessmentFailure() {
	AssessmentFailuresTotal.Inc()
}

// RecordTokenCreated increments the token creation counter and observes the
// seed score.
func RecordTokenCreated(category, origin string, seedScore int) {
	TokensCreatedTotal.WithLabelValues(category, origin).Inc()
	SeedScorePoints.WithLabelValues(category).Observe(float64(seedScore))
}

// RecordPointsAdded increments the points counter.
func RecordPointsAdded(reason string, delta int) {
	EvolutionPointsAddedTotal.WithLabelValues(reason).Add(float64(delta))
}

// RecordLevelUp increments the level-up counter.
func RecordLevelUp(category string) {
	LevelUpsTotal.WithLabelValues(category).Inc()
}

// RecordRarityChange increments the rarity-change counter.
func RecordRarityChange(rarity string) {
	RarityChangesTotal.WithLabelValues(rarity).Inc()
}

// RecordCompositeCreated increments the composite counter.
func RecordCompositeCreated(rule string) {
	CompositesCreatedTotal.WithLabelValues(rule).Inc()
}

// RecordConsumptionConflict increments the consumption race counter.
func RecordConsumptionConflict() {
	ConsumptionConflictsTotal.Inc()
}

// RecordScoreUpdateRetry increments the optimistic-lock retry counter.
func RecordScoreUpdateRetry() {
	ScoreUpdateRetriesTotal.Inc()
}
