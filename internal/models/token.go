package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TokenCategory identifies the kind of token. The three base categories are
// derived from achievement categories; composite categories come from
// stacking rule configuration and are open-ended.
type TokenCategory string

// Base token category constants.
const (
	TokenGPAGuardian      TokenCategory = "gpa_guardian"
	TokenResearchRockstar TokenCategory = "research_rockstar"
	TokenLeadershipLegend TokenCategory = "leadership_legend"
)

// Rarity is the ordered rarity classification of a token.
type Rarity string

// Rarity tiers, lowest to highest.
const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
	RarityMythic    Rarity = "mythic"
)

var rarityRank = map[Rarity]int{
	RarityCommon:    0,
	RarityRare:      1,
	RarityEpic:      2,
	RarityLegendary: 3,
	RarityMythic:    4,
}

// Valid reports whether the rarity is a recognized tier.
func (r Rarity) Valid() bool {
	_, ok := rarityRank[r]
	return ok
}

// Rank returns the ordinal position of the rarity (common = 0). Unknown
// rarities rank below common.
func (r Rarity) Rank() int {
	if rank, ok := rarityRank[r]; ok {
		return rank
	}
	return -1
}

// AtLeast reports whether r is the same tier as min or higher.
func (r Rarity) AtLeast(min Rarity) bool {
	return r.Rank() >= min.Rank()
}

// Token is a scored, leveled digital artifact bound to one owner.
// Level and rarity are always derived from points, never set independently.
type Token struct {
	ID                  string          `gorm:"primaryKey;size:36" json:"id"`
	OwnerID             string          `gorm:"size:36;not null;index" json:"owner_id"`
	Category            TokenCategory   `gorm:"size:50;not null" json:"category"`
	Points              int             `gorm:"not null;default:0" json:"points"`
	Level               int             `gorm:"not null;default:1" json:"level"`
	Rarity              Rarity          `gorm:"size:20;not null;default:common" json:"rarity"`
	Consumed            bool            `gorm:"not null;default:false;index" json:"consumed"`
	Minted              bool            `gorm:"not null;default:false" json:"minted"`
	MintedAt            *time.Time      `json:"minted_at,omitempty"`
	TxHash              *string         `gorm:"size:100" json:"tx_hash,omitempty"`
	SourceAchievementID *string         `gorm:"size:36;index" json:"source_achievement_id,omitempty"`
	SourceTokenIDs      json.RawMessage `gorm:"type:jsonb" json:"source_token_ids,omitempty"`
	Version             uint            `gorm:"not null;default:0" json:"-"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// TableName specifies the table name for Token model.
func (Token) TableName() string {
	return "tokens"
}

// BeforeCreate assigns a UUID primary key when none was provided.
func (t *Token) BeforeCreate(_ *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Composite reports whether the token was created by stacking.
func (t *Token) Composite() bool {
	return t.SourceAchievementID == nil && len(t.SourceTokenIDs) > 0
}

// SetSourceTokens records the IDs of the tokens consumed to create this one.
func (t *Token) SetSourceTokens(ids []string) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	t.SourceTokenIDs = raw
	return nil
}

// SourceTokens returns the IDs of the tokens consumed to create this one.
func (t *Token) SourceTokens() ([]string, error) {
	if len(t.SourceTokenIDs) == 0 {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(t.SourceTokenIDs, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// RuleSlot is one required input position of a stacking rule.
type RuleSlot struct {
	Category  TokenCategory `json:"category"`
	MinLevel  int           `json:"min_level"`
	MinRarity Rarity        `json:"min_rarity"`
}

// Satisfies reports whether the token can fill the slot. Consumed tokens
// never satisfy any slot.
func (s RuleSlot) Satisfies(t *Token) bool {
	return !t.Consumed &&
		t.Category == s.Category &&
		t.Level >= s.MinLevel &&
		t.Rarity.AtLeast(s.MinRarity)
}

// StackingRule is read-only configuration describing which tokens combine
// into a composite token. Evaluating a rule never mutates state.
type StackingRule struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Description     string        `json:"description"`
	RequiredSlots   []RuleSlot    `json:"required_slots"`
	ResultCategory  TokenCategory `json:"result_category"`
	ResultSeedScore int           `json:"result_seed_score"`
}
