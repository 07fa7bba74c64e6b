package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/scholarpass/achievement-engine/internal/models"
)

// AchievementRepository handles achievement-related database operations.
type AchievementRepository struct {
	db *DB
}

// NewAchievementRepository creates a new achievement repository.
func NewAchievementRepository(db *DB) *AchievementRepository {
	return &AchievementRepository{db: db}
}

// Create persists a new achievement record.
func (r *AchievementRepository) Create(achievement *models.Achievement) error {
	if err := r.db.Create(achievement).Error; err != nil {
		return fmt.Errorf("failed to create achievement: %w", err)
	}
	return nil
}

// GetByID retrieves an achievement by its ID.
func (r *AchievementRepository) GetByID(id string) (*models.Achievement, error) {
	var achievement models.Achievement
	err := r.db.First(&achievement, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("achievement %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get achievement %s: %w", id, err)
	}
	return &achievement, nil
}

// ListByOwner retrieves all achievements submitted by a user, newest first.
func (r *AchievementRepository) ListByOwner(ownerID string) ([]models.Achievement, error) {
	var achievements []models.Achievement
	err := r.db.
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&achievements).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements for owner %s: %w", ownerID, err)
	}
	return achievements, nil
}

// ListAwaitingDecision retrieves achievements in a non-terminal status,
// oldest first so reviewers work through the backlog in order.
func (r *AchievementRepository) ListAwaitingDecision() ([]models.Achievement, error) {
	var achievements []models.Achievement
	err := r.db.
		Where("status IN ?", statusStrings(models.NonTerminalStatuses())).
		Order("created_at ASC").
		Find(&achievements).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements awaiting decision: %w", err)
	}
	return achievements, nil
}

// SetStatus moves an achievement between non-terminal statuses (pipeline
// routing, not a decision). Terminal rows are never touched.
func (r *AchievementRepository) SetStatus(id string, status models.VerificationStatus) error {
	res := r.db.Model(&models.Achievement{}).
		Where("id = ? AND status IN ?", id, statusStrings(models.NonTerminalStatuses())).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to set status for achievement %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("achievement %s: %w", id, models.ErrAlreadyDecided)
	}
	return nil
}

// Decide transitions an achievement from a non-terminal status to the given
// terminal status and, when a seed token is supplied, creates it in the same
// transaction. The conditional status update makes repeated decisions
// idempotent: a second call finds no non-terminal row and reports
// ErrAlreadyDecided without creating a duplicate token.
func (r *AchievementRepository) Decide(id string, status models.VerificationStatus, deciderID string, seed *models.Token) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&models.Achievement{}).
			Where("id = ? AND status IN ?", id, statusStrings(models.NonTerminalStatuses())).
			Updates(map[string]interface{}{
				"status":     status,
				"decided_by": deciderID,
				"decided_at": now,
				"updated_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to decide achievement %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Achievement{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return fmt.Errorf("failed to check achievement %s: %w", id, err)
			}
			if count == 0 {
				return fmt.Errorf("achievement %s: %w", id, models.ErrNotFound)
			}
			return fmt.Errorf("achievement %s: %w", id, models.ErrAlreadyDecided)
		}
		if seed != nil {
			if err := tx.Create(seed).Error; err != nil {
				return fmt.Errorf("failed to create seed token for achievement %s: %w", id, err)
			}
		}
		return nil
	})
}

func statusStrings(statuses []models.VerificationStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
