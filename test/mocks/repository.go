package mocks

import "github.com/scholarpass/achievement-engine/internal/models"

// MockAchievementRepository is a simple mock for achievement repository
type MockAchievementRepository struct {
	CreateFunc               func(achievement *models.Achievement) error
	GetByIDFunc              func(id string) (*models.Achievement, error)
	ListByOwnerFunc          func(ownerID string) ([]models.Achievement, error)
	ListAwaitingDecisionFunc func() ([]models.Achievement, error)
	SetStatusFunc            func(id string, status models.VerificationStatus) error
	DecideFunc               func(id string, status models.VerificationStatus, deciderID string, seed *models.Token) error
}

func (m *MockAchievementRepository) Create(achievement *models.Achievement) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(achievement)
	}
	return nil
}

func (m *MockAchievementRepository) GetByID(id string) (*models.Achievement, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAchievementRepository) ListByOwner(ownerID string) ([]models.Achievement, error) {
	if m.ListByOwnerFunc != nil {
		return m.ListByOwnerFunc(ownerID)
	}
	return []models.Achievement{}, nil
}

func (m *MockAchievementRepository) ListAwaitingDecision() ([]models.Achievement, error) {
	if m.ListAwaitingDecisionFunc != nil {
		return m.ListAwaitingDecisionFunc()
	}
	return []models.Achievement{}, nil
}

func (m *MockAchievementRepository) SetStatus(id string, status models.VerificationStatus) error {
	if m.SetStatusFunc != nil {
		return m.SetStatusFunc(id, status)
	}
	return nil
}

func (m *MockAchievementRepository) Decide(id string, status models.VerificationStatus, deciderID string, seed *models.Token) error {
	if m.DecideFunc != nil {
		return m.DecideFunc(id, status, deciderID, seed)
	}
	return nil
}

// MockTokenRepository is a simple mock for token repository
type MockTokenRepository struct {
	CreateFunc                    func(token *models.Token) error
	GetByIDFunc                   func(id string) (*models.Token, error)
	ListByOwnerFunc               func(ownerID string) ([]models.Token, error)
	ListUnconsumedByOwnerFunc     func(ownerID string) ([]models.Token, error)
	CompareAndSetScoreFunc        func(id string, version uint, points, level int, rarity models.Rarity) (bool, error)
	ConsumeAndCreateCompositeFunc func(ownerID string, sourceIDs []string, composite *models.Token) error
	MarkMintedFunc                func(id, ownerID, txHash string) (*models.Token, error)
}

func (m *MockTokenRepository) Create(token *models.Token) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(token)
	}
	return nil
}

func (m *MockTokenRepository) GetByID(id string) (*models.Token, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(id)
	}
	return nil, models.ErrNotFound
}

func (m *MockTokenRepository) ListByOwner(ownerID string) ([]models.Token, error) {
	if m.ListByOwnerFunc != nil {
		return m.ListByOwnerFunc(ownerID)
	}
	return []models.Token{}, nil
}

func (m *MockTokenRepository) ListUnconsumedByOwner(ownerID string) ([]models.Token, error) {
	if m.ListUnconsumedByOwnerFunc != nil {
		return m.ListUnconsumedByOwnerFunc(ownerID)
	}
	return []models.Token{}, nil
}

func (m *MockTokenRepository) CompareAndSetScore(id string, version uint, points, level int, rarity models.Rarity) (bool, error) {
	if m.CompareAndSetScoreFunc != nil {
		return m.CompareAndSetScoreFunc(id, version, points, level, rarity)
	}
	return true, nil
}

func (m *MockTokenRepository) ConsumeAndCreateComposite(ownerID string, sourceIDs []string, composite *models.Token) error {
	if m.ConsumeAndCreateCompositeFunc != nil {
		return m.ConsumeAndCreateCompositeFunc(ownerID, sourceIDs, composite)
	}
	return nil
}

func (m *MockTokenRepository) MarkMinted(id, ownerID, txHash string) (*models.Token, error) {
	if m.MarkMintedFunc != nil {
		return m.MarkMintedFunc(id, ownerID, txHash)
	}
	return nil, models.ErrNotFound
}
