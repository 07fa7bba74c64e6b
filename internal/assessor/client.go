// Package assessor provides the client for the external trust-assessment
// collaborator. The engine treats the verdict purely as data; it never
// inspects document content itself.
package assessor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/scholarpass/achievement-engine/internal/config"
	"github.com/scholarpass/achievement-engine/internal/models"
	"github.com/scholarpass/achievement-engine/pkg/logger"
)

// Action is the closed set of recommended actions an assessor may return.
type Action string

// Recommended action constants.
const (
	ActionAutoApprove  Action = "auto_approve"
	ActionManualReview Action = "manual_review"
	ActionReject       Action = "reject"
)

// Valid reports whether the action is one of the recognized values.
func (a Action) Valid() bool {
	switch a {
	case ActionAutoApprove, ActionManualReview, ActionReject:
		return true
	default:
		return false
	}
}

// Request identifies the document to assess.
type Request struct {
	DocumentRef  string `json:"document_ref"`
	CategoryHint string `json:"category_hint"`
}

// Verdict is the assessor's structured answer.
type Verdict struct {
	Confidence        int               `json:"confidence"`
	RecommendedAction Action            `json:"recommended_action"`
	ExtractedFields   map[string]string `json:"extracted_fields,omitempty"`
	FraudIndicators   []string          `json:"fraud_indicators,omitempty"`
}

// Client calls the trust-assessment service over HTTP.
type Client struct {
	url        string
	enabled    bool
	timeout    time.Duration
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a new assessor client.
func NewClient(cfg *config.AssessorConfig, log *logger.Logger) *Client {
	return &Client{
		url:        cfg.URL,
		enabled:    cfg.Enabled,
		timeout:    cfg.Timeout(),
		httpClient: &http.Client{},
		log:        log,
	}
}

// Enabled reports whether the collaborator is configured. When disabled,
// submissions go straight to pending for manual decision.
func (c *Client) Enabled() bool {
	return c.enabled
}

// Assess requests a trust verdict for a document. The call is bounded by the
// configured timeout; any transport failure, timeout or malformed answer is
// reported as ErrAssessmentUnavailable so the pipeline can fail open to
// human review, never to auto-approval.
func (c *Client) Assess(ctx context.Context, req *Request) (*Verdict, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal assessment request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create assessment request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrAssessmentUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: assessor returned status %d", models.ErrAssessmentUnavailable, resp.StatusCode)
	}

	var verdict Verdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return nil, fmt.Errorf("%w: failed to decode verdict: %v", models.ErrAssessmentUnavailable, err)
	}
	if !verdict.RecommendedAction.Valid() {
		return nil, fmt.Errorf("%w: unknown recommended action %q", models.ErrAssessmentUnavailable, verdict.RecommendedAction)
	}
	if verdict.Confidence < 0 || verdict.Confidence > 100 {
		return nil, fmt.Errorf("%w: confidence %d out of range", models.ErrAssessmentUnavailable, verdict.Confidence)
	}

	c.log.Debug().
		Str("document_ref", req.DocumentRef).
		Str("action", string(verdict.RecommendedAction)).
		Int("confidence", verdict.Confidence).
		Msg("Received trust verdict")

	return &verdict, nil
}
