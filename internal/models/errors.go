package models

import "errors"

// Engine error kinds. Callers match them with errors.Is; repositories and
// services wrap them with operation context.
var (
	// ErrNotFound signals a missing achievement or token.
	ErrNotFound = errors.New("not found")

	// ErrInvalidAchievement signals a structural or business-rule validation
	// failure at submission. Never retried.
	ErrInvalidAchievement = errors.New("invalid achievement")

	// ErrAlreadyDecided signals a re-decision attempt on a terminal
	// achievement. Safe to treat as a no-op success at the caller's discretion.
	ErrAlreadyDecided = errors.New("achievement already decided")

	// ErrTokenConsumed signals a mutation attempt on a consumed token.
	ErrTokenConsumed = errors.New("token is consumed")

	// ErrRuleNotSatisfied signals that the chosen tokens do not satisfy the
	// stacking rule.
	ErrRuleNotSatisfied = errors.New("stacking rule not satisfied")

	// ErrTokenAlreadyConsumed signals a lost consumption race: another
	// composite claimed one of the chosen tokens first.
	ErrTokenAlreadyConsumed = errors.New("token already consumed")

	// ErrOwnershipMismatch signals that a chosen token does not belong to the
	// calling user.
	ErrOwnershipMismatch = errors.New("token ownership mismatch")

	// ErrInvalidDelta signals a non-positive evolution point delta. Points
	// never decrease.
	ErrInvalidDelta = errors.New("points delta must be positive")

	// ErrAlreadyMinted signals a repeated mint recording for the same token.
	ErrAlreadyMinted = errors.New("token already minted")

	// ErrAssessmentUnavailable signals a trust collaborator timeout or error.
	// The pipeline degrades it to a reviewable state instead of failing the
	// submission.
	ErrAssessmentUnavailable = errors.New("trust assessment unavailable")

	// ErrPersistenceConflict signals an optimistic-lock version mismatch that
	// survived the bounded retry loop.
	ErrPersistenceConflict = errors.New("persistence conflict")
)
