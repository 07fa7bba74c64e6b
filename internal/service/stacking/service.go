// Package stacking evaluates declarative stacking rules against a user's
// token set and mints composite tokens by atomically consuming the inputs.
package stacking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/scholarpass/achievement-engine/internal/cache"
	"github.com/scholarpass/achievement-engine/internal/config"
	"github.com/scholarpass/achievement-engine/internal/metrics"
	"github.com/scholarpass/achievement-engine/internal/models"
	"github.com/scholarpass/achievement-engine/internal/repository"
	"github.com/scholarpass/achievement-engine/pkg/logger"
)

// TokenRepository interface for token operations.
type TokenRepository interface {
	GetByID(id string) (*models.Token, error)
	ListUnconsumedByOwner(ownerID string) ([]models.Token, error)
	ConsumeAndCreateComposite(ownerID string, sourceIDs []string, composite *models.Token) error
}

// Scorer interface for composite seed scoring.
type Scorer interface {
	CompositeSeedScore(rule *models.StackingRule, aggregatePoints int) int
	DeriveLevel(points int) int
	DeriveRarity(points int) models.Rarity
}

// Service evaluates stacking rules and creates composite tokens. Rules are
// process-wide read-only configuration loaded once at startup.
type Service struct {
	tokenRepo TokenRepository
	scorer    Scorer
	rules     []models.StackingRule
	cacheTTL  time.Duration
	cache     cache.Cache
	log       *logger.Logger
}

// NewService creates a new stacking service.
func NewService(tokenRepo *repository.TokenRepository, scorer Scorer, cfg *config.Config, c cache.Cache, log *logger.Logger) (*Service, error) {
	rules, err := cfg.Stacking.ParseRules()
	if err != nil {
		return nil, err
	}
	return NewServiceWithInterfaces(tokenRepo, scorer, rules, cfg.Stacking.EligibilityCacheTTL(), c, log), nil
}

// NewServiceWithInterfaces creates a new stacking service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(tokenRepo TokenRepository, scorer Scorer, rules []models.StackingRule, cacheTTL time.Duration, c cache.Cache, log *logger.Logger) *Service {
	return &Service{
		tokenRepo: tokenRepo,
		scorer:    scorer,
		rules:     rules,
		cacheTTL:  cacheTTL,
		cache:     c,
		log:       log,
	}
}

// Rules returns the configured rule set.
func (s *Service) Rules() []models.StackingRule {
	return s.rules
}

// Eligibility pairs a satisfiable rule with the token selection that would be
// consumed to apply it.
type Eligibility struct {
	Rule     models.StackingRule `json:"rule"`
	TokenIDs []string            `json:"token_ids"`
}

// FindEligibleRules reports which rules the user's unconsumed tokens satisfy
// and the exact selection each would consume. It is a pure read: nothing is
// mutated, and the result may be stale by the time the user acts on it —
// CreateComposite re-validates. Responses are cached briefly per user and
// invalidated on any token mutation.
func (s *Service) FindEligibleRules(ctx context.Context, userID string) ([]Eligibility, error) {
	if cached, ok := s.cachedEligibility(ctx, userID); ok {
		return cached, nil
	}

	tokens, err := s.tokenRepo.ListUnconsumedByOwner(userID)
	if err != nil {
		return nil, err
	}

	eligibilities := make([]Eligibility, 0)
	for i := range s.rules {
		rule := s.rules[i]
		chosen, ok := matchRule(&rule, tokens)
		if !ok {
			continue
		}
		ids := make([]string, 0, len(chosen))
		for _, t := range chosen {
			ids = append(ids, t.ID)
		}
		eligibilities = append(eligibilities, Eligibility{Rule: rule, TokenIDs: ids})
	}

	s.storeEligibility(ctx, userID, eligibilities)
	return eligibilities, nil
}

// CreateComposite consumes the chosen tokens and mints the rule's composite
// token as one atomic step. Eligibility is re-validated at call time; a
// concurrent composite that already claimed one of the tokens makes this
// call fail with ErrTokenAlreadyConsumed rather than double-spending.
func (s *Service) CreateComposite(ctx context.Context, userID, ruleID string, chosenTokenIDs []string) (*models.Token, error) {
	rule, err := s.ruleByID(ruleID)
	if err != nil {
		return nil, err
	}
	if len(chosenTokenIDs) != len(rule.RequiredSlots) {
		return nil, fmt.Errorf("rule %s requires %d tokens, got %d: %w",
			ruleID, len(rule.RequiredSlots), len(chosenTokenIDs), models.ErrRuleNotSatisfied)
	}

	chosen := make([]models.Token, 0, len(chosenTokenIDs))
	seen := make(map[string]bool, len(chosenTokenIDs))
	aggregatePoints := 0
	for _, id := range chosenTokenIDs {
		if seen[id] {
			return nil, fmt.Errorf("token %s chosen twice: %w", id, models.ErrRuleNotSatisfied)
		}
		seen[id] = true
		token, err := s.tokenRepo.GetByID(id)
		if err != nil {
			return nil, err
		}
		if token.OwnerID != userID {
			return nil, fmt.Errorf("token %s: %w", id, models.ErrOwnershipMismatch)
		}
		if token.Consumed {
			return nil, fmt.Errorf("token %s: %w", id, models.ErrTokenAlreadyConsumed)
		}
		chosen = append(chosen, *token)
		aggregatePoints += token.Points
	}

	if !coversExactly(rule, chosen) {
		return nil, fmt.Errorf("chosen tokens do not satisfy rule %s: %w", ruleID, models.ErrRuleNotSatisfied)
	}

	points := s.scorer.CompositeSeedScore(rule, aggregatePoints)
	composite := &models.Token{
		OwnerID:  userID,
		Category: rule.ResultCategory,
		Points:   points,
		Level:    s.scorer.DeriveLevel(points),
		Rarity:   s.scorer.DeriveRarity(points),
	}
	if err := composite.SetSourceTokens(chosenTokenIDs); err != nil {
		return nil, fmt.Errorf("failed to record source tokens: %w", err)
	}

	if err := s.tokenRepo.ConsumeAndCreateComposite(userID, chosenTokenIDs, composite); err != nil {
		if errors.Is(err, models.ErrTokenAlreadyConsumed) {
			metrics.RecordConsumptionConflict()
		}
		return nil, err
	}

	metrics.RecordCompositeCreated(rule.ID)
	metrics.RecordTokenCreated(string(rule.ResultCategory), "stacking", points)
	s.invalidate(ctx, userID)

	s.log.Info().
		Str("user_id", userID).
		Str("rule_id", rule.ID).
		Str("composite_id", composite.ID).
		Int("points", points).
		Strs("consumed", chosenTokenIDs).
		Msg("Composite token created")

	return composite, nil
}

func (s *Service) ruleByID(ruleID string) (*models.StackingRule, error) {
	for i := range s.rules {
		if s.rules[i].ID == ruleID {
			return &s.rules[i], nil
		}
	}
	return nil, fmt.Errorf("unknown stacking rule %q: %w", ruleID, models.ErrRuleNotSatisfied)
}

func (s *Service) cachedEligibility(ctx context.Context, userID string) ([]Eligibility, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, cache.EligibilityKey(userID))
	if err != nil || raw == "" {
		return nil, false
	}
	var eligibilities []Eligibility
	if err := json.Unmarshal([]byte(raw), &eligibilities); err != nil {
		return nil, false
	}
	return eligibilities, true
}

func (s *Service) storeEligibility(ctx context.Context, userID string, eligibilities []Eligibility) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(eligibilities)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cache.EligibilityKey(userID), string(raw), s.cacheTTL); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to cache eligibility")
	}
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, cache.EligibilityKey(userID), cache.TokenSummaryKey(userID)); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to invalidate cache")
	}
}
