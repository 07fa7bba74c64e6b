// Package tokens provides REST API handlers for the achievement token engine:
// submission, manual decisions, evolution points, stacking and mint records.
package tokens

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scholarpass/achievement-engine/internal/models"
	"github.com/scholarpass/achievement-engine/internal/service/evolution"
	"github.com/scholarpass/achievement-engine/internal/service/registry"
	"github.com/scholarpass/achievement-engine/internal/service/stacking"
	"github.com/scholarpass/achievement-engine/internal/service/verification"
	"github.com/scholarpass/achievement-engine/pkg/logger"
)

// VerificationService interface for verification pipeline operations.
type VerificationService interface {
	Submit(ctx context.Context, req *verification.SubmitRequest) (*verification.Outcome, error)
	ManualDecide(ctx context.Context, achievementID string, approve bool, deciderID string) (*verification.Outcome, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Achievement, error)
	ListAwaitingDecision(ctx context.Context) ([]models.Achievement, error)
}

// EvolutionService interface for scoring operations.
type EvolutionService interface {
	AddPoints(ctx context.Context, tokenID string, delta int, reason string) (*evolution.AddPointsResult, error)
}

// StackingService interface for stacking operations.
type StackingService interface {
	FindEligibleRules(ctx context.Context, userID string) ([]stacking.Eligibility, error)
	CreateComposite(ctx context.Context, userID, ruleID string, chosenTokenIDs []string) (*models.Token, error)
}

// RegistryService interface for token registry operations.
type RegistryService interface {
	ListTokens(ctx context.Context, ownerID string) (*registry.Summary, error)
	RecordMint(ctx context.Context, ownerID, tokenID, txHash string) (*models.Token, error)
}

// Handler handles token engine API requests.
type Handler struct {
	verificationService VerificationService
	evolutionService    EvolutionService
	stackingService     StackingService
	registryService     RegistryService
	log                 *logger.Logger
}

// NewHandler creates a new handler.
func NewHandler(
	verificationService VerificationService,
	evolutionService EvolutionService,
	stackingService StackingService,
	registryService RegistryService,
	log *logger.Logger,
) *Handler {
	return &Handler{
		verificationService: verificationService,
		evolutionService:    evolutionService,
		stackingService:     stackingService,
		registryService:     registryService,
		log:                 log,
	}
}

// RegisterRoutes registers all API routes on the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.POST("/achievements", h.SubmitAchievement)
		api.GET("/achievements", h.ListAchievements)
		api.GET("/achievements/pending", h.ListPendingAchievements)
		api.PUT("/achievements/:id/verify", h.DecideAchievement)

		api.GET("/nfts", h.ListTokens)
		api.POST("/nfts/:id/points", h.AddPoints)
		api.POST("/nfts/:id/mint", h.RecordMint)
		api.GET("/nfts/stacking", h.StackingEligibility)
		api.POST("/nfts/stack", h.CreateComposite)
	}
}

type submitRequest struct {
	UserID      string   `json:"user_id" binding:"required"`
	Category    string   `json:"category" binding:"required"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	GradeValue  *float64 `json:"grade_value"`
	ProofRef    string   `json:"proof_ref"`
}

// SubmitAchievement handles POST /api/achievements.
func (h *Handler) SubmitAchievement(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	outcome, err := h.verificationService.Submit(c.Request.Context(), &verification.SubmitRequest{
		OwnerID:     req.UserID,
		Category:    models.AchievementCategory(req.Category),
		Title:       req.Title,
		Description: req.Description,
		GradeValue:  req.GradeValue,
		ProofRef:    req.ProofRef,
	})
	if err != nil {
		h.respondError(c, err, "Failed to submit achievement")
		return
	}

	c.JSON(http.StatusCreated, outcome)
}

// ListAchievements handles GET /api/achievements.
func (h *Handler) ListAchievements(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	achievements, err := h.verificationService.ListByOwner(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err, "Failed to list achievements")
		return
	}

	c.JSON(http.StatusOK, gin.H{"achievements": achievements})
}

// ListPendingAchievements handles GET /api/achievements/pending.
func (h *Handler) ListPendingAchievements(c *gin.Context) {
	achievements, err := h.verificationService.ListAwaitingDecision(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "Failed to list pending achievements")
		return
	}

	c.JSON(http.StatusOK, gin.H{"achievements": achievements})
}

type decideRequest struct {
	Approved  bool   `json:"approved"`
	DeciderID string `json:"decider_id" binding:"required"`
}

// DecideAchievement handles PUT /api/achievements/:id/verify.
func (h *Handler) DecideAchievement(c *gin.Context) {
	var req decideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	outcome, err := h.verificationService.ManualDecide(c.Request.Context(), c.Param("id"), req.Approved, req.DeciderID)
	if err != nil {
		h.respondError(c, err, "Failed to decide achievement")
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// ListTokens handles GET /api/nfts.
func (h *Handler) ListTokens(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	summary, err := h.registryService.ListTokens(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err, "Failed to list tokens")
		return
	}

	c.JSON(http.StatusOK, summary)
}

type addPointsRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Points int    `json:"points" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// AddPoints handles POST /api/nfts/:id/points.
func (h *Handler) AddPoints(c *gin.Context) {
	var req addPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.evolutionService.AddPoints(c.Request.Context(), c.Param("id"), req.Points, req.Reason)
	if err != nil {
		h.respondError(c, err, "Failed to add evolution points")
		return
	}

	c.JSON(http.StatusOK, result)
}

type mintRequest struct {
	UserID string `json:"user_id" binding:"required"`
	TxHash string `json:"tx_hash" binding:"required"`
}

// RecordMint handles POST /api/nfts/:id/mint.
func (h *Handler) RecordMint(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	token, err := h.registryService.RecordMint(c.Request.Context(), req.UserID, c.Param("id"), req.TxHash)
	if err != nil {
		h.respondError(c, err, "Failed to record mint")
		return
	}

	c.JSON(http.StatusOK, token)
}

// StackingEligibility handles GET /api/nfts/stacking.
func (h *Handler) StackingEligibility(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	eligibilities, err := h.stackingService.FindEligibleRules(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err, "Failed to evaluate stacking eligibility")
		return
	}

	c.JSON(http.StatusOK, gin.H{"eligible": eligibilities})
}

type stackRequest struct {
	UserID   string   `json:"user_id" binding:"required"`
	RuleID   string   `json:"rule_id" binding:"required"`
	TokenIDs []string `json:"token_ids" binding:"required"`
}

// CreateComposite handles POST /api/nfts/stack.
func (h *Handler) CreateComposite(c *gin.Context) {
	var req stackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	composite, err := h.stackingService.CreateComposite(c.Request.Context(), req.UserID, req.RuleID, req.TokenIDs)
	if err != nil {
		h.respondError(c, err, "Failed to create composite token")
		return
	}

	c.JSON(http.StatusCreated, composite)
}

// respondError maps engine error kinds to HTTP statuses.
func (h *Handler) respondError(c *gin.Context, err error, msg string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrInvalidAchievement),
		errors.Is(err, models.ErrInvalidDelta),
		errors.Is(err, models.ErrRuleNotSatisfied):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrOwnershipMismatch):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrAlreadyDecided),
		errors.Is(err, models.ErrTokenConsumed),
		errors.Is(err, models.ErrTokenAlreadyConsumed),
		errors.Is(err, models.ErrAlreadyMinted),
		errors.Is(err, models.ErrPersistenceConflict):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg(msg)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(status, gin.H{"error": err.Error()})
}
