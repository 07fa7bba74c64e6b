package evolution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarpass/achievement-engine/internal/config"
	"github.com/scholarpass/achievement-engine/internal/models"
	"github.com/scholarpass/achievement-engine/pkg/logger"
	"github.com/scholarpass/achievement-engine/test/mocks"
)

func testConfig() *config.Config {
	return &config.Config{
		Scoring: config.ScoringConfig{
			BaseWeights:        map[string]int{"gpa": 100, "research": 150, "leadership": 120},
			QualifyingGrade:    3.5,
			GradeBonusRate:     200.0,
			ConfidenceFloor:    50,
			ManualConfidence:   85,
			CompositeCarryover: 0.25,
		},
		Evolution: config.EvolutionConfig{
			LevelThresholds: []int{0, 300, 600, 1000, 1500, 2100, 2800, 3600, 4500, 5500},
			RarityThresholds: []config.RarityThresholdEntry{
				{Rarity: "common", MinPoints: 0},
				{Rarity: "rare", MinPoints: 300},
				{Rarity: "epic", MinPoints: 600},
				{Rarity: "legendary", MinPoints: 1000},
				{Rarity: "mythic", MinPoints: 2000},
			},
			MaxUpdateRetries: 3,
		},
	}
}

func newTestService(repo *mocks.MockTokenRepository) *Service {
	log := logger.New("debug", "text", "stdout")
	return NewServiceWithInterfaces(repo, testConfig(), mocks.NewMockCache(), log)
}

func TestSeedScore(t *testing.T) {
	svc := newTestService(&mocks.MockTokenRepository{})

	grade := 3.9
	confidence := 90

	tests := []struct {
		name       string
		category   models.AchievementCategory
		grade      *float64
		confidence *int
		want       int
	}{
		{
			name:     "base weight only",
			category: models.CategoryResearch,
			want:     150,
		},
		{
			name:     "grade bonus applies to gpa category",
			category: models.CategoryGPA,
			grade:    &grade,
			want:     100 + 80, // 100 base + (3.9-3.5)*200
		},
		{
			name:       "confidence above floor adds bonus",
			category:   models.CategoryGPA,
			grade:      &grade,
			confidence: &confidence,
			want:       100 + 80 + 90,
		},
		{
			name:       "confidence below floor ignored",
			category:   models.CategoryLeadership,
			confidence: intPtr(40),
			want:       120,
		},
		{
			name:     "grade ignored for non-gpa category",
			category: models.CategoryLeadership,
			grade:    &grade,
			want:     120,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.SeedScore(tt.category, tt.grade, tt.confidence)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSeedScore_Deterministic(t *testing.T) {
	svc := newTestService(&mocks.MockTokenRepository{})

	grade := 3.75
	confidence := 88
	first := svc.SeedScore(models.CategoryGPA, &grade, &confidence)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, svc.SeedScore(models.CategoryGPA, &grade, &confidence))
	}
}

func TestDeriveLevelAndRarity(t *testing.T) {
	svc := newTestService(&mocks.MockTokenRepository{})

	tests := []struct {
		points int
		level  int
		rarity models.Rarity
	}{
		{0, 1, models.RarityCommon},
		{272, 1, models.RarityCommon},
		{299, 1, models.RarityCommon},
		{300, 2, models.RarityRare},
		{600, 3, models.RarityEpic},
		{1005, 4, models.RarityLegendary},
		{2000, 5, models.RarityMythic},
		{999999, 10, models.RarityMythic},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.level, svc.DeriveLevel(tt.points), "points=%d", tt.points)
		assert.Equal(t, tt.rarity, svc.DeriveRarity(tt.points), "points=%d", tt.points)
	}
}

func TestCompositeSeedScore(t *testing.T) {
	svc := newTestService(&mocks.MockTokenRepository{})

	rule := &models.StackingRule{ID: "academic_titan", ResultSeedScore: 400}
	// 400 seed + 25% of 650 aggregate
	assert.Equal(t, 562, svc.CompositeSeedScore(rule, 650))
}

func TestAddPoints(t *testing.T) {
	token := &models.Token{
		ID:       "token-1",
		OwnerID:  "user-1",
		Category: models.TokenGPAGuardian,
		Points:   980,
		Level:    3,
		Rarity:   models.RarityEpic,
		Version:  4,
	}

	var gotVersion uint
	repo := &mocks.MockTokenRepository{
		GetByIDFunc: func(id string) (*models.Token, error) {
			copy := *token
			return &copy, nil
		},
		CompareAndSetScoreFunc: func(id string, version uint, points, level int, rarity models.Rarity) (bool, error) {
			gotVersion = version
			return true, nil
		},
	}

	svc := newTestService(repo)
	result, err := svc.AddPoints(context.Background(), "token-1", 25, "quiz_completed")
	require.NoError(t, err)

	// 980 + 25 crosses the legendary boundary at 1000.
	assert.Equal(t, 1005, result.NewPoints)
	assert.Equal(t, 4, result.NewLevel)
	assert.Equal(t, models.RarityLegendary, result.NewRarity)
	assert.True(t, result.LeveledUp)
	assert.True(t, result.RarityChanged)
	assert.Equal(t, uint(4), gotVersion)
}

func TestAddPoints_NoBoundaryCrossed(t *testing.T) {
	token := &models.Token{ID: "token-1", OwnerID: "user-1", Points: 100, Level: 1, Rarity: models.RarityCommon}
	repo := &mocks.MockTokenRepository{
		GetByIDFunc: func(id string) (*models.Token, error) {
			copy := *token
			return &copy, nil
		},
	}

	svc := newTestService(repo)
	result, err := svc.AddPoints(context.Background(), "token-1", 50, "attendance")
	require.NoError(t, err)

	assert.Equal(t, 150, result.NewPoints)
	assert.False(t, result.LeveledUp)
	assert.False(t, result.RarityChanged)
}

func TestAddPoints_RejectsNonPositiveDelta(t *testing.T) {
	svc := newTestService(&mocks.MockTokenRepository{})

	_, err := svc.AddPoints(context.Background(), "token-1", 0, "noop")
	assert.ErrorIs(t, err, models.ErrInvalidDelta)

	_, err = svc.AddPoints(context.Background(), "token-1", -10, "penalty")
	assert.ErrorIs(t, err, models.ErrInvalidDelta)
}

func TestAddPoints_ConsumedToken(t *testing.T) {
	repo := &mocks.MockTokenRepository{
		GetByIDFunc: func(id string) (*models.Token, error) {
			return &models.Token{ID: id, Points: 300, Consumed: true}, nil
		},
	}

	svc := newTestService(repo)
	_, err := svc.AddPoints(context.Background(), "token-1", 10, "quiz_completed")
	assert.ErrorIs(t, err, models.ErrTokenConsumed)
}

func TestAddPoints_RetriesOnVersionConflict(t *testing.T) {
	attempts := 0
	repo := &mocks.MockTokenRepository{
		GetByIDFunc: func(id string) (*models.Token, error) {
			return &models.Token{ID: id, Points: 100, Level: 1, Rarity: models.RarityCommon, Version: uint(attempts)}, nil
		},
		CompareAndSetScoreFunc: func(id string, version uint, points, level int, rarity models.Rarity) (bool, error) {
			attempts++
			// First attempt loses the race, second applies.
			return attempts > 1, nil
		},
	}

	svc := newTestService(repo)
	result, err := svc.AddPoints(context.Background(), "token-1", 10, "quiz_completed")
	require.NoError(t, err)
	assert.Equal(t, 110, result.NewPoints)
	assert.Equal(t, 2, attempts)
}

func TestAddPoints_RetryBudgetExhausted(t *testing.T) {
	attempts := 0
	repo := &mocks.MockTokenRepository{
		GetByIDFunc: func(id string) (*models.Token, error) {
			return &models.Token{ID: id, Points: 100, Level: 1, Rarity: models.RarityCommon}, nil
		},
		CompareAndSetScoreFunc: func(id string, version uint, points, level int, rarity models.Rarity) (bool, error) {
			attempts++
			return false, nil
		},
	}

	svc := newTestService(repo)
	_, err := svc.AddPoints(context.Background(), "token-1", 10, "quiz_completed")
	assert.ErrorIs(t, err, models.ErrPersistenceConflict)
	assert.Equal(t, 3, attempts)
}

func intPtr(v int) *int {
	return &v
}
