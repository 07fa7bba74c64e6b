package stacking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarpass/achievement-engine/internal/models"
)

func token(id string, category models.TokenCategory, level int, rarity models.Rarity, points int) models.Token {
	return models.Token{
		ID:       id,
		OwnerID:  "user-1",
		Category: category,
		Points:   points,
		Level:    level,
		Rarity:   rarity,
	}
}

func titanRule() *models.StackingRule {
	return &models.StackingRule{
		ID:              "academic_titan",
		ResultCategory:  "academic_titan",
		ResultSeedScore: 400,
		RequiredSlots: []models.RuleSlot{
			{Category: models.TokenGPAGuardian, MinLevel: 2, MinRarity: models.RarityRare},
			{Category: models.TokenResearchRockstar, MinLevel: 2, MinRarity: models.RarityRare},
		},
	}
}

func TestMatchRule_PicksLowestQualifyingToken(t *testing.T) {
	tokens := []models.Token{
		token("gpa-strong", models.TokenGPAGuardian, 4, models.RarityLegendary, 1200),
		token("gpa-weak", models.TokenGPAGuardian, 2, models.RarityRare, 350),
		token("research", models.TokenResearchRockstar, 2, models.RarityRare, 400),
	}

	chosen, ok := matchRule(titanRule(), tokens)
	require.True(t, ok)
	require.Len(t, chosen, 2)

	// The weakest qualifying gpa token is consumed, preserving the strong one.
	assert.Equal(t, "gpa-weak", chosen[0].ID)
	assert.Equal(t, "research", chosen[1].ID)
}

func TestMatchRule_StrictestSlotFilledFirst(t *testing.T) {
	rule := &models.StackingRule{
		ID: "mixed",
		RequiredSlots: []models.RuleSlot{
			{Category: models.TokenGPAGuardian, MinLevel: 2, MinRarity: models.RarityRare},
			{Category: models.TokenGPAGuardian, MinLevel: 4, MinRarity: models.RarityLegendary},
		},
	}

	// Only one token satisfies the strict slot. A naive in-declaration-order
	// fill would burn it on the loose slot and fail.
	tokens := []models.Token{
		token("elite", models.TokenGPAGuardian, 4, models.RarityLegendary, 1100),
		token("solid", models.TokenGPAGuardian, 2, models.RarityRare, 350),
	}

	chosen, ok := matchRule(rule, tokens)
	require.True(t, ok)
	assert.Equal(t, "solid", chosen[0].ID)
	assert.Equal(t, "elite", chosen[1].ID)
}

func TestMatchRule_TieBreaksByCreationOrder(t *testing.T) {
	tokens := []models.Token{
		token("older", models.TokenGPAGuardian, 2, models.RarityRare, 350),
		token("newer", models.TokenGPAGuardian, 2, models.RarityRare, 350),
		token("research", models.TokenResearchRockstar, 2, models.RarityRare, 400),
	}

	chosen, ok := matchRule(titanRule(), tokens)
	require.True(t, ok)
	assert.Equal(t, "older", chosen[0].ID, "equal candidates resolve to the earliest-created token")
}

func TestMatchRule_InsufficientTokens(t *testing.T) {
	tests := []struct {
		name   string
		tokens []models.Token
	}{
		{
			name:   "missing category",
			tokens: []models.Token{token("gpa", models.TokenGPAGuardian, 3, models.RarityEpic, 700)},
		},
		{
			name: "level too low",
			tokens: []models.Token{
				token("gpa", models.TokenGPAGuardian, 1, models.RarityRare, 250),
				token("research", models.TokenResearchRockstar, 2, models.RarityRare, 400),
			},
		},
		{
			name: "rarity too low",
			tokens: []models.Token{
				token("gpa", models.TokenGPAGuardian, 2, models.RarityCommon, 290),
				token("research", models.TokenResearchRockstar, 2, models.RarityRare, 400),
			},
		},
		{
			name: "one token cannot fill two slots",
			tokens: []models.Token{
				token("gpa", models.TokenGPAGuardian, 5, models.RarityMythic, 2500),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := matchRule(titanRule(), tt.tokens)
			assert.False(t, ok)
		})
	}
}

func TestMatchRule_ConsumedTokensExcluded(t *testing.T) {
	consumed := token("gpa", models.TokenGPAGuardian, 2, models.RarityRare, 350)
	consumed.Consumed = true
	tokens := []models.Token{
		consumed,
		token("research", models.TokenResearchRockstar, 2, models.RarityRare, 400),
	}

	_, ok := matchRule(titanRule(), tokens)
	assert.False(t, ok)
}

func TestCoversExactly(t *testing.T) {
	rule := titanRule()

	valid := []models.Token{
		token("research", models.TokenResearchRockstar, 2, models.RarityRare, 400),
		token("gpa", models.TokenGPAGuardian, 2, models.RarityRare, 350),
	}
	assert.True(t, coversExactly(rule, valid), "order of the chosen tokens must not matter")

	wrongCount := valid[:1]
	assert.False(t, coversExactly(rule, wrongCount))

	wrongCategory := []models.Token{
		token("gpa-1", models.TokenGPAGuardian, 2, models.RarityRare, 350),
		token("gpa-2", models.TokenGPAGuardian, 3, models.RarityEpic, 700),
	}
	assert.False(t, coversExactly(rule, wrongCategory))
}

func TestCoversExactly_BacktracksOverlappingSlots(t *testing.T) {
	rule := &models.StackingRule{
		ID: "tiered",
		RequiredSlots: []models.RuleSlot{
			{Category: models.TokenGPAGuardian, MinLevel: 2, MinRarity: models.RarityRare},
			{Category: models.TokenGPAGuardian, MinLevel: 3, MinRarity: models.RarityEpic},
		},
	}

	// The epic token satisfies both slots. A greedy first-fit that assigns it
	// to the loose slot must backtrack to find the valid assignment.
	chosen := []models.Token{
		token("epic", models.TokenGPAGuardian, 3, models.RarityEpic, 700),
		token("rare", models.TokenGPAGuardian, 2, models.RarityRare, 350),
	}
	assert.True(t, coversExactly(rule, chosen))
}
