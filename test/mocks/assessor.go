package mocks

import (
	"context"

	"github.com/scholarpass/achievement-engine/internal/assessor"
)

// MockAssessor is a simple mock for the trust-assessment client
type MockAssessor struct {
	EnabledFunc func() bool
	AssessFunc  func(ctx context.Context, req *assessor.Request) (*assessor.Verdict, error)
}

func (m *MockAssessor) Enabled() bool {
	if m.EnabledFunc != nil {
		return m.EnabledFunc()
	}
	return true
}

func (m *MockAssessor) Assess(ctx context.Context, req *assessor.Request) (*assessor.Verdict, error) {
	if m.AssessFunc != nil {
		return m.AssessFunc(ctx, req)
	}
	return &assessor.Verdict{
		Confidence:        90,
		RecommendedAction: assessor.ActionAutoApprove,
	}, nil
}
