// Package models defines domain models for the achievement token engine.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AchievementCategory is the closed set of recognized achievement categories.
type AchievementCategory string

// Achievement category constants.
const (
	CategoryGPA        AchievementCategory = "gpa"
	CategoryResearch   AchievementCategory = "research"
	CategoryLeadership AchievementCategory = "leadership"
)

// Valid reports whether the category is one of the recognized values.
func (c AchievementCategory) Valid() bool {
	switch c {
	case CategoryGPA, CategoryResearch, CategoryLeadership:
		return true
	default:
		return false
	}
}

// TokenCategory returns the token category minted for this achievement category.
func (c AchievementCategory) TokenCategory() TokenCategory {
	switch c {
	case CategoryGPA:
		return TokenGPAGuardian
	case CategoryResearch:
		return TokenResearchRockstar
	case CategoryLeadership:
		return TokenLeadershipLegend
	default:
		return ""
	}
}

// VerificationStatus tracks an achievement through the verification state machine.
type VerificationStatus string

// Verification status constants.
const (
	StatusPending          VerificationStatus = "pending"
	StatusAutoApproved     VerificationStatus = "auto_approved"
	StatusManualReview     VerificationStatus = "manual_review"
	StatusAssessmentFailed VerificationStatus = "assessment_failed"
	StatusVerified         VerificationStatus = "verified"
	StatusRejected         VerificationStatus = "rejected"
)

// Terminal reports whether the status permits no further decisions.
func (s VerificationStatus) Terminal() bool {
	switch s {
	case StatusAutoApproved, StatusVerified, StatusRejected:
		return true
	default:
		return false
	}
}

// NonTerminalStatuses lists the statuses a manual decision may transition from.
func NonTerminalStatuses() []VerificationStatus {
	return []VerificationStatus{StatusPending, StatusManualReview, StatusAssessmentFailed}
}

// Achievement represents a claimed academic accomplishment.
type Achievement struct {
	ID          string              `gorm:"primaryKey;size:36" json:"id"`
	OwnerID     string              `gorm:"size:36;not null;index" json:"owner_id"`
	Category    AchievementCategory `gorm:"size:50;not null" json:"category"`
	Title       string              `gorm:"size:255" json:"title"`
	Description string              `gorm:"type:text" json:"description"`
	GradeValue  *float64            `json:"grade_value,omitempty"`
	ProofRef    string              `gorm:"type:text" json:"proof_ref"`
	Status      VerificationStatus  `gorm:"size:50;not null;index" json:"status"`
	DecidedBy   *string             `gorm:"size:36" json:"decided_by,omitempty"`
	DecidedAt   *time.Time          `json:"decided_at,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// TableName specifies the table name for Achievement model.
func (Achievement) TableName() string {
	return "achievements"
}

// BeforeCreate assigns a UUID primary key when none was provided.
func (a *Achievement) BeforeCreate(_ *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
