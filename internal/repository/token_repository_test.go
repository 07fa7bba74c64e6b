package repository

import (
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/scholarpass/achievement-engine/internal/models"
)

// setupTokenTestDB creates an in-memory SQLite database for testing.
func setupTokenTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	err = db.AutoMigrate(
		&models.Achievement{},
		&models.Token{},
	)
	if err != nil {
		t.Fatalf("Failed to auto-migrate tables: %v", err)
	}

	return &DB{db}
}

// createTestToken creates a test token in the database.
func createTestToken(t *testing.T, repo *TokenRepository, ownerID string, category models.TokenCategory, points int) *models.Token {
	t.Helper()

	token := &models.Token{
		OwnerID:  ownerID,
		Category: category,
		Points:   points,
		Level:    1,
		Rarity:   models.RarityCommon,
	}

	if err := repo.Create(token); err != nil {
		t.Fatalf("Failed to create test token: %v", err)
	}

	return token
}

func TestTokenRepository_CompareAndSetScore(t *testing.T) {
	db := setupTokenTestDB(t)
	repo := NewTokenRepository(db)

	token := createTestToken(t, repo, "user-1", models.TokenGPAGuardian, 100)

	applied, err := repo.CompareAndSetScore(token.ID, token.Version, 150, 1, models.RarityCommon)
	if err != nil {
		t.Fatalf("CompareAndSetScore() failed: %v", err)
	}
	if !applied {
		t.Fatal("Expected update to apply with the current version")
	}

	updated, err := repo.GetByID(token.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if updated.Points != 150 {
		t.Errorf("Expected 150 points, got %d", updated.Points)
	}
	if updated.Version != token.Version+1 {
		t.Errorf("Expected version %d, got %d", token.Version+1, updated.Version)
	}
}

func TestTokenRepository_CompareAndSetScore_StaleVersion(t *testing.T) {
	db := setupTokenTestDB(t)
	repo := NewTokenRepository(db)

	token := createTestToken(t, repo, "user-1", models.TokenGPAGuardian, 100)

	// First writer wins.
	applied, err := repo.CompareAndSetScore(token.ID, token.Version, 150, 1, models.RarityCommon)
	if err != nil || !applied {
		t.Fatalf("First CompareAndSetScore() failed: applied=%v err=%v", applied, err)
	}

	// Second writer holds the old version and must miss.
	applied, err = repo.CompareAndSetScore(token.ID, token.Version, 130, 1, models.RarityCommon)
	if err != nil {
		t.Fatalf("CompareAndSetScore() failed: %v", err)
	}
	if applied {
		t.Error("Expected stale-version update to be rejected")
	}

	current, err := repo.GetByID(token.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if current.Points != 150 {
		t.Errorf("Expected first writer's 150 points to survive, got %d", current.Points)
	}
}

func TestTokenRepository_CompareAndSetScore_ConsumedToken(t *testing.T) {
	db := setupTokenTestDB(t)
	repo := NewTokenRepository(db)

	a := createTestToken(t, repo, "user-1", models.TokenGPAGuardian, 100)
	b := createTestToken(t, repo, "user-1", models.TokenResearchRockstar, 150)

	composite := &models.Token{
		OwnerID:  "user-1",
		Category: "academic_titan",
		Points:   400,
		Level:    2,
		Rarity:   models.RarityRare,
	}
	if err := repo.ConsumeAndCreateComposite("user-1", []string{a.ID, b.ID}, composite); err != nil {
		t.Fatalf("ConsumeAndCreateComposite() failed: %v", err)
	}

	consumed, err := repo.GetByID(a.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	applied, err := repo.CompareAndSetScore(a.ID, consumed.Version, 200, 1, models.RarityCommon)
	if err != nil {
		t.Fatalf("CompareAndSetScore() failed: %v", err)
	}
	if applied {
		t.Error("Expected score update on a consumed token to be rejected")
	}
}

func TestTokenRepository_ConsumeAndCreateComposite(t *testing.T) {
	db := setupTokenTestDB(t)
	repo := NewTokenRepository(db)

	a := createTestToken(t, repo, "user-1", models.TokenGPAGuardian, 300)
	b := createTestToken(t, repo, "user-1", models.TokenResearchRockstar, 350)

	composite := &models.Token{
		OwnerID:  "user-1",
		Category: "academic_titan",
		Points:   562,
		Level:    2,
		Rarity:   models.RarityRare,
	}
	if err := composite.SetSourceTokens([]string{a.ID, b.ID}); err != nil {
		t.Fatalf("SetSourceTokens() failed: %v", err)
	}

	if err := repo.ConsumeAndCreateComposite("user-1", []string{a.ID, b.ID}, composite); err != nil {
		t.Fatalf("ConsumeAndCreateComposite() failed: %v", err)
	}

	for _, id := range []string{a.ID, b.ID} {
		token, err := repo.GetByID(id)
		if err != nil {
			t.Fatalf("GetByID() failed: %v", err)
		}
		if !token.Consumed {
			t.Errorf("Expected token %s to be consumed", id)
		}
	}

	created, err := repo.GetByID(composite.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	sources, err := created.SourceTokens()
	if err != nil {
		t.Fatalf("SourceTokens() failed: %v", err)
	}
	if len(sources) != 2 {
		t.Errorf("Expected 2 source tokens, got %d", len(sources))
	}

	unconsumed, err := repo.ListUnconsumedByOwner("user-1")
	if err != nil {
		t.Fatalf("ListUnconsumedByOwner() failed: %v", err)
	}
	if len(unconsumed) != 1 || unconsumed[0].ID != composite.ID {
		t.Errorf("Expected only the composite to remain unconsumed, got %d tokens", len(unconsumed))
	}
}

func TestTokenRepository_ConsumeAndCreateComposite_OverlapRollsBack(t *testing.T) {
	db := setupTokenTestDB(t)
	repo := NewTokenRepository(db)

	a := createTestToken(t, repo, "user-1", models.TokenGPAGuardian, 300)
	b := createTestToken(t, repo, "user-1", models.TokenResearchRockstar, 350)
	c := createTestToken(t, repo, "user-1", models.TokenLeadershipLegend, 320)

	first := &models.Token{OwnerID: "user-1", Category: "academic_titan", Points: 400, Level: 2, Rarity: models.RarityRare}
	if err := repo.ConsumeAndCreateComposite("user-1", []string{a.ID, b.ID}, first); err != nil {
		t.Fatalf("First ConsumeAndCreateComposite() failed: %v", err)
	}

	// Second composite overlaps on b and must fail without consuming c.
	second := &models.Token{OwnerID: "user-1", Category: "scholar_leader", Points: 380, Level: 2, Rarity: models.RarityRare}
	err := repo.ConsumeAndCreateComposite("user-1", []string{c.ID, b.ID}, second)
	if !errors.Is(err, models.ErrTokenAlreadyConsumed) {
		t.Fatalf("Expected ErrTokenAlreadyConsumed, got %v", err)
	}

	leader, err := repo.GetByID(c.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if leader.Consumed {
		t.Error("Expected the rolled-back transaction to leave token c unconsumed")
	}

	tokens, err := repo.ListByOwner("user-1")
	if err != nil {
		t.Fatalf("ListByOwner() failed: %v", err)
	}
	if len(tokens) != 4 {
		t.Errorf("Expected 4 tokens (3 sources + 1 composite), got %d", len(tokens))
	}
}

func TestTokenRepository_ConsumeAndCreateComposite_OwnershipMismatch(t *testing.T) {
	db := setupTokenTestDB(t)
	repo := NewTokenRepository(db)

	theirs := createTestToken(t, repo, "user-2", models.TokenGPAGuardian, 300)
	mine := createTestToken(t, repo, "user-1", models.TokenResearchRockstar, 350)

	composite := &models.Token{OwnerID: "user-1", Category: "academic_titan", Points: 400, Level: 2, Rarity: models.RarityRare}
	err := repo.ConsumeAndCreateComposite("user-1", []string{theirs.ID, mine.ID}, composite)
	if !errors.Is(err, models.ErrOwnershipMismatch) {
		t.Fatalf("Expected ErrOwnershipMismatch, got %v", err)
	}
}

func TestTokenRepository_MarkMinted(t *testing.T) {
	db := setupTokenTestDB(t)
	repo := NewTokenRepository(db)

	token := createTestToken(t, repo, "user-1", models.TokenGPAGuardian, 300)

	minted, err := repo.MarkMinted(token.ID, "user-1", "0xabc123")
	if err != nil {
		t.Fatalf("MarkMinted() failed: %v", err)
	}
	if !minted.Minted {
		t.Error("Expected token to be marked minted")
	}
	if minted.TxHash == nil || *minted.TxHash != "0xabc123" {
		t.Error("Expected tx hash to be recorded")
	}
	if minted.MintedAt == nil {
		t.Error("Expected minted timestamp to be recorded")
	}

	// Repeat mint record is rejected.
	_, err = repo.MarkMinted(token.ID, "user-1", "0xdef456")
	if !errors.Is(err, models.ErrAlreadyMinted) {
		t.Errorf("Expected ErrAlreadyMinted, got %v", err)
	}

	// Wrong owner is rejected.
	other := createTestToken(t, repo, "user-2", models.TokenGPAGuardian, 300)
	_, err = repo.MarkMinted(other.ID, "user-1", "0xabc123")
	if !errors.Is(err, models.ErrOwnershipMismatch) {
		t.Errorf("Expected ErrOwnershipMismatch, got %v", err)
	}
}
