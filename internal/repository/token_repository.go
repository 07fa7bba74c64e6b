package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/scholarpass/achievement-engine/internal/models"
)

// TokenRepository handles token-related database operations. All score and
// consumption mutations go through version-conditioned updates so concurrent
// writers cannot lose updates or double-spend a token.
type TokenRepository struct {
	db *DB
}

// NewTokenRepository creates a new token repository.
func NewTokenRepository(db *DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create persists a new token record.
func (r *TokenRepository) Create(token *models.Token) error {
	if err := r.db.Create(token).Error; err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}
	return nil
}

// GetByID retrieves a token by its ID.
func (r *TokenRepository) GetByID(id string) (*models.Token, error) {
	var token models.Token
	err := r.db.First(&token, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("token %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get token %s: %w", id, err)
	}
	return &token, nil
}

// ListByOwner retrieves all tokens owned by a user, newest first.
func (r *TokenRepository) ListByOwner(ownerID string) ([]models.Token, error) {
	var tokens []models.Token
	err := r.db.
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&tokens).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens for owner %s: %w", ownerID, err)
	}
	return tokens, nil
}

// ListUnconsumedByOwner retrieves the user's unconsumed tokens in creation
// order. Creation order is the deterministic tie-break for rule matching.
func (r *TokenRepository) ListUnconsumedByOwner(ownerID string) ([]models.Token, error) {
	var tokens []models.Token
	err := r.db.
		Where("owner_id = ? AND consumed = ?", ownerID, false).
		Order("created_at ASC, id ASC").
		Find(&tokens).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unconsumed tokens for owner %s: %w", ownerID, err)
	}
	return tokens, nil
}

// CompareAndSetScore applies new points, level and rarity only if the token
// still carries the given version and is not consumed. It reports whether the
// update was applied; callers retry with a fresh read on a miss.
func (r *TokenRepository) CompareAndSetScore(id string, version uint, points, level int, rarity models.Rarity) (bool, error) {
	res := r.db.Model(&models.Token{}).
		Where("id = ? AND version = ? AND consumed = ?", id, version, false).
		Updates(map[string]interface{}{
			"points":     points,
			"level":      level,
			"rarity":     rarity,
			"version":    version + 1,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to update score for token %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ConsumeAndCreateComposite marks every source token consumed and creates the
// composite token in one transaction. Each consumption is a conditional
// update on consumed = false, so two composites racing for an overlapping
// token set cannot both succeed: the loser rolls back with
// ErrTokenAlreadyConsumed and no token ends up in two composites.
func (r *TokenRepository) ConsumeAndCreateComposite(ownerID string, sourceIDs []string, composite *models.Token) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		for _, id := range sourceIDs {
			res := tx.Model(&models.Token{}).
				Where("id = ? AND owner_id = ? AND consumed = ?", id, ownerID, false).
				Updates(map[string]interface{}{
					"consumed":   true,
					"version":    gorm.Expr("version + 1"),
					"updated_at": time.Now(),
				})
			if res.Error != nil {
				return fmt.Errorf("failed to consume token %s: %w", id, res.Error)
			}
			if res.RowsAffected == 1 {
				continue
			}
			var token models.Token
			err := tx.First(&token, "id = ?", id).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				return fmt.Errorf("token %s: %w", id, models.ErrNotFound)
			case err != nil:
				return fmt.Errorf("failed to check token %s: %w", id, err)
			case token.OwnerID != ownerID:
				return fmt.Errorf("token %s: %w", id, models.ErrOwnershipMismatch)
			default:
				return fmt.Errorf("token %s: %w", id, models.ErrTokenAlreadyConsumed)
			}
		}
		if err := tx.Create(composite).Error; err != nil {
			return fmt.Errorf("failed to create composite token: %w", err)
		}
		return nil
	})
}

// MarkMinted records the chain-minting collaborator's result exactly once.
// Minted state is independent of consumed state.
func (r *TokenRepository) MarkMinted(id, ownerID, txHash string) (*models.Token, error) {
	now := time.Now()
	res := r.db.Model(&models.Token{}).
		Where("id = ? AND owner_id = ? AND minted = ?", id, ownerID, false).
		Updates(map[string]interface{}{
			"minted":     true,
			"minted_at":  now,
			"tx_hash":    txHash,
			"updated_at": now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to mark token %s minted: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		token, err := r.GetByID(id)
		if err != nil {
			return nil, err
		}
		if token.OwnerID != ownerID {
			return nil, fmt.Errorf("token %s: %w", id, models.ErrOwnershipMismatch)
		}
		return nil, fmt.Errorf("token %s: %w", id, models.ErrAlreadyMinted)
	}
	return r.GetByID(id)
}
