// Package evolution implements the scoring engine: seed scores, point
// accumulation and the derivation of level and rarity from points.
package evolution

import (
	"context"
	"fmt"

	"github.com/scholarpass/achievement-engine/internal/cache"
	"github.com/scholarpass/achievement-engine/internal/config"
	"github.com/scholarpass/achievement-engine/internal/metrics"
	"github.com/scholarpass/achievement-engine/internal/models"
	"github.com/scholarpass/achievement-engine/internal/repository"
	"github.com/scholarpass/achievement-engine/pkg/logger"
)

// TokenRepository interface for token score operations.
type TokenRepository interface {
	GetByID(id string) (*models.Token, error)
	CompareAndSetScore(id string, version uint, points, level int, rarity models.Rarity) (bool, error)
}

// Service computes scores and applies point mutations. Derivations are pure
// functions of the configured threshold tables, so identical inputs always
// produce identical outputs.
type Service struct {
	tokenRepo  TokenRepository
	scoring    config.ScoringConfig
	levels     []int
	rarities   []config.RarityThreshold
	maxRetries int
	cache      cache.Cache
	log        *logger.Logger
}

// NewService creates a new evolution service.
func NewService(tokenRepo *repository.TokenRepository, cfg *config.Config, c cache.Cache, log *logger.Logger) *Service {
	return newService(tokenRepo, cfg, c, log)
}

// NewServiceWithInterfaces creates a new evolution service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(tokenRepo TokenRepository, cfg *config.Config, c cache.Cache, log *logger.Logger) *Service {
	return newService(tokenRepo, cfg, c, log)
}

func newService(tokenRepo TokenRepository, cfg *config.Config, c cache.Cache, log *logger.Logger) *Service {
	return &Service{
		tokenRepo:  tokenRepo,
		scoring:    cfg.Scoring,
		levels:     cfg.Evolution.LevelThresholds,
		rarities:   cfg.Evolution.RarityTable(),
		maxRetries: cfg.Evolution.MaxUpdateRetries,
		cache:      c,
		log:        log,
	}
}

// SeedScore computes the initial score for a token minted from a verified
// achievement: category base weight, plus a grade-proximity bonus for
// grade-based achievements, plus a confidence bonus when the assessor's
// confidence clears the configured floor.
func (s *Service) SeedScore(category models.AchievementCategory, gradeValue *float64, trustConfidence *int) int {
	score := s.scoring.BaseWeight(category)

	if category == models.CategoryGPA && gradeValue != nil && *gradeValue > s.scoring.QualifyingGrade {
		score += int((*gradeValue - s.scoring.QualifyingGrade) * s.scoring.GradeBonusRate)
	}

	if trustConfidence != nil && *trustConfidence >= s.scoring.ConfidenceFloor {
		score += *trustConfidence
	}

	return score
}

// CompositeSeedScore computes the initial score of a composite token: the
// rule's declared seed plus a configured share of the points accumulated by
// the consumed source tokens.
func (s *Service) CompositeSeedScore(rule *models.StackingRule, aggregatePoints int) int {
	return rule.ResultSeedScore + int(float64(aggregatePoints)*s.scoring.CompositeCarryover)
}

// DeriveLevel returns the highest level whose threshold the points meet.
// Levels are 1-based.
func (s *Service) DeriveLevel(points int) int {
	level := 1
	for i, threshold := range s.levels {
		if points >= threshold {
			level = i + 1
		}
	}
	return level
}

// DeriveRarity returns the highest rarity tier whose threshold the points
// meet. Because points never decrease, rarity is monotonic over a token's
// lifetime.
func (s *Service) DeriveRarity(points int) models.Rarity {
	rarity := models.RarityCommon
	for _, entry := range s.rarities {
		if points >= entry.MinPoints {
			rarity = entry.Rarity
		}
	}
	return rarity
}

// AddPointsResult reports the outcome of a point mutation, including whether
// a level or rarity boundary was crossed so callers can react.
type AddPointsResult struct {
	TokenID       string        `json:"token_id"`
	NewPoints     int           `json:"new_points"`
	NewLevel      int           `json:"new_level"`
	NewRarity     models.Rarity `json:"new_rarity"`
	LeveledUp     bool          `json:"leveled_up"`
	RarityChanged bool          `json:"rarity_changed"`
}

// AddPoints is the single mutation point for token score growth. It applies
// the delta through an optimistic-lock read-modify-write, retrying a bounded
// number of times on version conflicts. Negative and zero deltas are
// rejected; consumed tokens cannot gain points.
func (s *Service) AddPoints(ctx context.Context, tokenID string, delta int, reason string) (*AddPointsResult, error) {
	if delta <= 0 {
		return nil, fmt.Errorf("add %d points to token %s: %w", delta, tokenID, models.ErrInvalidDelta)
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		token, err := s.tokenRepo.GetByID(tokenID)
		if err != nil {
			return nil, err
		}
		if token.Consumed {
			return nil, fmt.Errorf("token %s: %w", tokenID, models.ErrTokenConsumed)
		}

		newPoints := token.Points + delta
		newLevel := s.DeriveLevel(newPoints)
		newRarity := s.DeriveRarity(newPoints)

		applied, err := s.tokenRepo.CompareAndSetScore(tokenID, token.Version, newPoints, newLevel, newRarity)
		if err != nil {
			return nil, err
		}
		if !applied {
			metrics.RecordScoreUpdateRetry()
			continue
		}

		result := &AddPointsResult{
			TokenID:       tokenID,
			NewPoints:     newPoints,
			NewLevel:      newLevel,
			NewRarity:     newRarity,
			LeveledUp:     newLevel > token.Level,
			RarityChanged: newRarity != token.Rarity,
		}

		metrics.RecordPointsAdded(reason, delta)
		if result.LeveledUp {
			metrics.RecordLevelUp(string(token.Category))
		}
		if result.RarityChanged {
			metrics.RecordRarityChange(string(newRarity))
		}
		s.invalidate(ctx, token.OwnerID)

		s.log.Info().
			Str("token_id", tokenID).
			Str("reason", reason).
			Int("delta", delta).
			Int("points", newPoints).
			Int("level", newLevel).
			Str("rarity", string(newRarity)).
			Bool("leveled_up", result.LeveledUp).
			Bool("rarity_changed", result.RarityChanged).
			Msg("Evolution points added")

		return result, nil
	}

	return nil, fmt.Errorf("add points to token %s after %d attempts: %w", tokenID, s.maxRetries, models.ErrPersistenceConflict)
}

func (s *Service) invalidate(ctx context.Context, ownerID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, cache.EligibilityKey(ownerID), cache.TokenSummaryKey(ownerID)); err != nil {
		s.log.Warn().Err(err).Str("owner_id", ownerID).Msg("Failed to invalidate cache")
	}
}
