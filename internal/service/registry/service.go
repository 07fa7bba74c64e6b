// Package registry exposes the read and bookkeeping surface of the token
// store: per-user token listings with evolution progress, and recording of
// external mint results.
package registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/scholarpass/achievement-engine/internal/cache"
	"github.com/scholarpass/achievement-engine/internal/config"
	"github.com/scholarpass/achievement-engine/internal/models"
	"github.com/scholarpass/achievement-engine/internal/repository"
	"github.com/scholarpass/achievement-engine/pkg/logger"
)

// TokenRepository interface for token registry operations.
type TokenRepository interface {
	ListByOwner(ownerID string) ([]models.Token, error)
	MarkMinted(id, ownerID, txHash string) (*models.Token, error)
}

// Service provides token listings and mint bookkeeping.
type Service struct {
	tokenRepo TokenRepository
	levels    []int
	rarities  []config.RarityThreshold
	cacheTTL  time.Duration
	cache     cache.Cache
	log       *logger.Logger
}

// NewService creates a new registry service.
func NewService(tokenRepo *repository.TokenRepository, cfg *config.Config, c cache.Cache, log *logger.Logger) *Service {
	return NewServiceWithInterfaces(tokenRepo, cfg, c, log)
}

// NewServiceWithInterfaces creates a new registry service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(tokenRepo TokenRepository, cfg *config.Config, c cache.Cache, log *logger.Logger) *Service {
	return &Service{
		tokenRepo: tokenRepo,
		levels:    cfg.Evolution.LevelThresholds,
		rarities:  cfg.Evolution.RarityTable(),
		cacheTTL:  cfg.Stacking.EligibilityCacheTTL(),
		cache:     c,
		log:       log,
	}
}

// TokenView is a token with its next evolution milestones.
type TokenView struct {
	models.Token
	NextLevelPoints  *int           `json:"next_level_points,omitempty"`
	NextRarity       *models.Rarity `json:"next_rarity,omitempty"`
	NextRarityPoints *int           `json:"next_rarity_points,omitempty"`
}

// Summary is a user's token portfolio.
type Summary struct {
	OwnerID     string      `json:"owner_id"`
	Tokens      []TokenView `json:"tokens"`
	TotalPoints int         `json:"total_points"`
	Unconsumed  int         `json:"unconsumed"`
}

// ListTokens returns the user's tokens, newest first, annotated with the
// points needed for the next level and rarity tier. Responses are cached
// briefly; every token mutation invalidates the entry.
func (s *Service) ListTokens(ctx context.Context, ownerID string) (*Summary, error) {
	if cached, ok := s.cachedSummary(ctx, ownerID); ok {
		return cached, nil
	}

	tokens, err := s.tokenRepo.ListByOwner(ownerID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{OwnerID: ownerID, Tokens: make([]TokenView, 0, len(tokens))}
	for _, token := range tokens {
		view := TokenView{Token: token}
		if next, ok := s.nextLevelThreshold(token.Points); ok {
			view.NextLevelPoints = &next
		}
		if rarity, points, ok := s.nextRarityThreshold(token.Points); ok {
			view.NextRarity = &rarity
			view.NextRarityPoints = &points
		}
		summary.Tokens = append(summary.Tokens, view)
		summary.TotalPoints += token.Points
		if !token.Consumed {
			summary.Unconsumed++
		}
	}

	s.storeSummary(ctx, ownerID, summary)
	return summary, nil
}

// RecordMint records the chain collaborator's mint result for a token. The
// engine only bookkeeps: consumed state and scoring are independent of
// minted status.
func (s *Service) RecordMint(ctx context.Context, ownerID, tokenID, txHash string) (*models.Token, error) {
	token, err := s.tokenRepo.MarkMinted(tokenID, ownerID, txHash)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Del(ctx, cache.TokenSummaryKey(ownerID)); err != nil {
			s.log.Warn().Err(err).Str("owner_id", ownerID).Msg("Failed to invalidate token summary")
		}
	}
	s.log.Info().
		Str("token_id", tokenID).
		Str("tx_hash", txHash).
		Msg("Mint recorded")
	return token, nil
}

func (s *Service) nextLevelThreshold(points int) (int, bool) {
	for _, threshold := range s.levels {
		if points < threshold {
			return threshold, true
		}
	}
	return 0, false
}

func (s *Service) nextRarityThreshold(points int) (models.Rarity, int, bool) {
	for _, entry := range s.rarities {
		if points < entry.MinPoints {
			return entry.Rarity, entry.MinPoints, true
		}
	}
	return "", 0, false
}

func (s *Service) cachedSummary(ctx context.Context, ownerID string) (*Summary, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, cache.TokenSummaryKey(ownerID))
	if err != nil || raw == "" {
		return nil, false
	}
	var summary Summary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		return nil, false
	}
	return &summary, true
}

func (s *Service) storeSummary(ctx context.Context, ownerID string, summary *Summary) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cache.TokenSummaryKey(ownerID), string(raw), s.cacheTTL); err != nil {
		s.log.Warn().Err(err).Str("owner_id", ownerID).Msg("Failed to cache token summary")
	}
}
