// Package verification implements the pipeline turning submitted achievements
// and trust verdicts into verification decisions and seed tokens.
package verification

import (
	"context"
	"fmt"
	"time"

	"github.com/scholarpass/achievement-engine/internal/assessor"
	"github.com/scholarpass/achievement-engine/internal/cache"
	"github.com/scholarpass/achievement-engine/internal/config"
	"github.com/scholarpass/achievement-engine/internal/metrics"
	"github.com/scholarpass/achievement-engine/internal/models"
	"github.com/scholarpass/achievement-engine/internal/repository"
	"github.com/scholarpass/achievement-engine/pkg/logger"
)

// AchievementRepository interface for achievement operations.
type AchievementRepository interface {
	Create(achievement *models.Achievement) error
	GetByID(id string) (*models.Achievement, error)
	ListByOwner(ownerID string) ([]models.Achievement, error)
	ListAwaitingDecision() ([]models.Achievement, error)
	SetStatus(id string, status models.VerificationStatus) error
	Decide(id string, status models.VerificationStatus, deciderID string, seed *models.Token) error
}

// Assessor interface for the trust-assessment collaborator.
type Assessor interface {
	Enabled() bool
	Assess(ctx context.Context, req *assessor.Request) (*assessor.Verdict, error)
}

// Scorer interface for the evolution scoring engine.
type Scorer interface {
	SeedScore(category models.AchievementCategory, gradeValue *float64, trustConfidence *int) int
	DeriveLevel(points int) int
	DeriveRarity(points int) models.Rarity
}

// SystemDecider is recorded as the deciding party for automatic decisions.
const SystemDecider = "trust_assessor"

// Service runs the verification pipeline.
type Service struct {
	achievementRepo AchievementRepository
	trust           Assessor
	scorer          Scorer
	scoring         config.ScoringConfig
	cache           cache.Cache
	log             *logger.Logger
}

// NewService creates a new verification service.
func NewService(achievementRepo *repository.AchievementRepository, trust *assessor.Client, scorer Scorer, cfg *config.Config, c cache.Cache, log *logger.Logger) *Service {
	return NewServiceWithInterfaces(achievementRepo, trust, scorer, cfg, c, log)
}

// NewServiceWithInterfaces creates a new verification service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(achievementRepo AchievementRepository, trust Assessor, scorer Scorer, cfg *config.Config, c cache.Cache, log *logger.Logger) *Service {
	return &Service{
		achievementRepo: achievementRepo,
		trust:           trust,
		scorer:          scorer,
		scoring:         cfg.Scoring,
		cache:           c,
		log:             log,
	}
}

// SubmitRequest carries a new achievement claim.
type SubmitRequest struct {
	OwnerID     string
	Category    models.AchievementCategory
	Title       string
	Description string
	GradeValue  *float64
	ProofRef    string
}

// Outcome is the result of a verification operation.
type Outcome struct {
	Achievement *models.Achievement `json:"achievement"`
	Verdict     *assessor.Verdict   `json:"verdict,omitempty"`
	Token       *models.Token       `json:"token,omitempty"`
}

// Submit validates a claim, consults the trust collaborator when configured,
// and applies the decision table. Structural validation failures abort before
// anything is persisted or the collaborator is called. Collaborator failures
// degrade to assessment_failed, a reviewable state: the pipeline fails open
// to human judgment, never to auto-approval.
func (s *Service) Submit(ctx context.Context, req *SubmitRequest) (*Outcome, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	achievement := &models.Achievement{
		OwnerID:     req.OwnerID,
		Category:    req.Category,
		Title:       req.Title,
		Description: req.Description,
		ProofRef:    req.ProofRef,
		Status:      models.StatusPending,
	}
	if req.Category == models.CategoryGPA {
		achievement.GradeValue = req.GradeValue
	}
	if err := s.achievementRepo.Create(achievement); err != nil {
		return nil, err
	}

	outcome := &Outcome{Achievement: achievement}

	if s.trust == nil || !s.trust.Enabled() || req.ProofRef == "" {
		metrics.RecordSubmission(string(req.Category), string(models.StatusPending))
		s.log.Info().
			Str("achievement_id", achievement.ID).
			Str("category", string(req.Category)).
			Msg("Achievement submitted, awaiting manual decision")
		return outcome, nil
	}

	verdict, err := s.trust.Assess(ctx, &assessor.Request{
		DocumentRef:  req.ProofRef,
		CategoryHint: string(req.Category),
	})
	if err != nil {
		// Timeout or collaborator error: same handling as manual_review,
		// kept distinct in status so operators can tell them apart.
		metrics.RecordAssessmentFailure()
		if setErr := s.achievementRepo.SetStatus(achievement.ID, models.StatusAssessmentFailed); setErr != nil {
			return nil, setErr
		}
		achievement.Status = models.StatusAssessmentFailed
		metrics.RecordSubmission(string(req.Category), string(models.StatusAssessmentFailed))
		s.log.Warn().
			Err(err).
			Str("achievement_id", achievement.ID).
			Msg("Trust assessment unavailable, queued for manual review")
		return outcome, nil
	}

	outcome.Verdict = verdict
	metrics.RecordTrustVerdict(string(verdict.RecommendedAction))

	switch verdict.RecommendedAction {
	case assessor.ActionAutoApprove:
		confidence := verdict.Confidence
		token := s.buildSeedToken(achievement, &confidence)
		if err := s.achievementRepo.Decide(achievement.ID, models.StatusAutoApproved, SystemDecider, token); err != nil {
			return nil, err
		}
		achievement.Status = models.StatusAutoApproved
		outcome.Token = token
		metrics.RecordTokenCreated(string(token.Category), "auto_approval", token.Points)
		s.invalidate(ctx, achievement.OwnerID)
		s.log.Info().
			Str("achievement_id", achievement.ID).
			Str("token_id", token.ID).
			Int("points", token.Points).
			Msg("Achievement auto-approved, seed token created")

	case assessor.ActionReject:
		if err := s.achievementRepo.Decide(achievement.ID, models.StatusRejected, SystemDecider, nil); err != nil {
			return nil, err
		}
		achievement.Status = models.StatusRejected
		s.log.Info().
			Str("achievement_id", achievement.ID).
			Strs("fraud_indicators", verdict.FraudIndicators).
			Msg("Achievement rejected by trust assessment")

	default: // manual_review
		if err := s.achievementRepo.SetStatus(achievement.ID, models.StatusManualReview); err != nil {
			return nil, err
		}
		achievement.Status = models.StatusManualReview
		s.log.Info().
			Str("achievement_id", achievement.ID).
			Int("confidence", verdict.Confidence).
			Msg("Achievement flagged for manual review")
	}

	metrics.RecordSubmission(string(req.Category), string(achievement.Status))
	return outcome, nil
}

// ManualDecide applies a human decision to an achievement in a non-terminal
// status. Approval creates the seed token exactly once: the status flip and
// the token insert share one transaction, and a repeat call fails with
// ErrAlreadyDecided instead of reprocessing.
func (s *Service) ManualDecide(ctx context.Context, achievementID string, approve bool, deciderID string) (*Outcome, error) {
	achievement, err := s.achievementRepo.GetByID(achievementID)
	if err != nil {
		return nil, err
	}
	if achievement.Status.Terminal() {
		return nil, fmt.Errorf("achievement %s: %w", achievementID, models.ErrAlreadyDecided)
	}

	var token *models.Token
	status := models.StatusRejected
	if approve {
		status = models.StatusVerified
		confidence := s.scoring.ManualConfidence
		token = s.buildSeedToken(achievement, &confidence)
	}

	if err := s.achievementRepo.Decide(achievementID, status, deciderID, token); err != nil {
		return nil, err
	}

	now := time.Now()
	achievement.Status = status
	achievement.DecidedBy = &deciderID
	achievement.DecidedAt = &now

	outcome := &Outcome{Achievement: achievement, Token: token}
	if token != nil {
		metrics.RecordTokenCreated(string(token.Category), "manual_approval", token.Points)
		s.invalidate(ctx, achievement.OwnerID)
	}

	s.log.Info().
		Str("achievement_id", achievementID).
		Str("decider_id", deciderID).
		Bool("approved", approve).
		Msg("Manual verification decision applied")

	return outcome, nil
}

// ListByOwner returns a user's achievements.
func (s *Service) ListByOwner(_ context.Context, ownerID string) ([]models.Achievement, error) {
	return s.achievementRepo.ListByOwner(ownerID)
}

// ListAwaitingDecision returns achievements pending a manual decision.
func (s *Service) ListAwaitingDecision(_ context.Context) ([]models.Achievement, error) {
	return s.achievementRepo.ListAwaitingDecision()
}

func (s *Service) validate(req *SubmitRequest) error {
	if req.OwnerID == "" {
		return fmt.Errorf("owner id is required: %w", models.ErrInvalidAchievement)
	}
	if !req.Category.Valid() {
		return fmt.Errorf("unknown category %q: %w", req.Category, models.ErrInvalidAchievement)
	}
	if req.Category == models.CategoryGPA {
		if req.GradeValue == nil {
			return fmt.Errorf("grade value is required for %s achievements: %w", models.CategoryGPA, models.ErrInvalidAchievement)
		}
		if *req.GradeValue < s.scoring.QualifyingGrade {
			return fmt.Errorf("grade %.2f below qualifying minimum %.2f: %w",
				*req.GradeValue, s.scoring.QualifyingGrade, models.ErrInvalidAchievement)
		}
		if *req.GradeValue > 4.0 {
			return fmt.Errorf("grade %.2f above 4.0 scale: %w", *req.GradeValue, models.ErrInvalidAchievement)
		}
	}
	return nil
}

func (s *Service) buildSeedToken(achievement *models.Achievement, trustConfidence *int) *models.Token {
	points := s.scorer.SeedScore(achievement.Category, achievement.GradeValue, trustConfidence)
	achievementID := achievement.ID
	return &models.Token{
		OwnerID:             achievement.OwnerID,
		Category:            achievement.Category.TokenCategory(),
		Points:              points,
		Level:               s.scorer.DeriveLevel(points),
		Rarity:              s.scorer.DeriveRarity(points),
		SourceAchievementID: &achievementID,
	}
}

func (s *Service) invalidate(ctx context.Context, ownerID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, cache.EligibilityKey(ownerID), cache.TokenSummaryKey(ownerID)); err != nil {
		s.log.Warn().Err(err).Str("owner_id", ownerID).Msg("Failed to invalidate cache")
	}
}
