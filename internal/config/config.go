// Package config handles application configuration loading and validation using Viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/scholarpass/achievement-engine/internal/models"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Assessor  AssessorConfig  `mapstructure:"assessor"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Evolution EvolutionConfig `mapstructure:"evolution"`
	Stacking  StackingConfig  `mapstructure:"stacking"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig contains database connection settings for PostgreSQL and Redis.
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains PostgreSQL database connection and pool settings.
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// RedisConfig contains Redis cache connection and pool settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// AssessorConfig contains trust-assessment collaborator settings.
type AssessorConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Timeout returns the per-call deadline for trust assessments.
func (c *AssessorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ScoringConfig contains seed-score weights. The seed score function shape is
// fixed; these weights make it tunable without a redeploy.
type ScoringConfig struct {
	BaseWeights        map[string]int `mapstructure:"base_weights"`
	QualifyingGrade    float64        `mapstructure:"qualifying_grade"`
	GradeBonusRate     float64        `mapstructure:"grade_bonus_rate"`
	ConfidenceFloor    int            `mapstructure:"confidence_floor"`
	ManualConfidence   int            `mapstructure:"manual_confidence"`
	CompositeCarryover float64        `mapstructure:"composite_carryover"`
}

// BaseWeight returns the seed base weight for an achievement category.
func (c *ScoringConfig) BaseWeight(category models.AchievementCategory) int {
	return c.BaseWeights[string(category)]
}

// EvolutionConfig contains the level and rarity threshold tables and the
// optimistic-lock retry budget.
type EvolutionConfig struct {
	LevelThresholds  []int                  `mapstructure:"level_thresholds"`
	RarityThresholds []RarityThresholdEntry `mapstructure:"rarity_thresholds"`
	MaxUpdateRetries int                    `mapstructure:"max_update_retries"`
}

// RarityThresholdEntry maps a rarity tier to its minimum points.
type RarityThresholdEntry struct {
	Rarity    string `mapstructure:"rarity"`
	MinPoints int    `mapstructure:"min_points"`
}

// RarityThreshold is a typed rarity threshold entry.
type RarityThreshold struct {
	Rarity    models.Rarity
	MinPoints int
}

// RarityTable converts the configured rarity thresholds into the typed form
// consumed by the scoring engine.
func (c *EvolutionConfig) RarityTable() []RarityThreshold {
	table := make([]RarityThreshold, 0, len(c.RarityThresholds))
	for _, entry := range c.RarityThresholds {
		table = append(table, RarityThreshold{
			Rarity:    models.Rarity(entry.Rarity),
			MinPoints: entry.MinPoints,
		})
	}
	return table
}

// StackingConfig contains the declarative stacking rule set and the
// eligibility cache TTL.
type StackingConfig struct {
	EligibilityCacheTTLSeconds int                 `mapstructure:"eligibility_cache_ttl_seconds"`
	Rules                      []StackingRuleEntry `mapstructure:"rules"`
}

// EligibilityCacheTTL returns the TTL for cached eligibility responses.
func (c *StackingConfig) EligibilityCacheTTL() time.Duration {
	return time.Duration(c.EligibilityCacheTTLSeconds) * time.Second
}

// StackingRuleEntry is one configured stacking rule.
type StackingRuleEntry struct {
	ID              string          `mapstructure:"id"`
	Name            string          `mapstructure:"name"`
	Description     string          `mapstructure:"description"`
	ResultCategory  string          `mapstructure:"result_category"`
	ResultSeedScore int             `mapstructure:"result_seed_score"`
	RequiredSlots   []RuleSlotEntry `mapstructure:"required_slots"`
}

// RuleSlotEntry is one required slot of a configured stacking rule.
type RuleSlotEntry struct {
	Category  string `mapstructure:"category"`
	MinLevel  int    `mapstructure:"min_level"`
	MinRarity string `mapstructure:"min_rarity"`
}

// MetricsConfig contains metrics exporter settings.
type MetricsConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig contains Prometheus metrics exporter settings.
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/achievement-engine/")
	}

	setDefaults(v)

	// Bind specific environment variables (explicit bindings for 12-factor app compliance)
	// Server configuration
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.environment", "SERVER_ENVIRONMENT")

	// PostgreSQL configuration
	_ = v.BindEnv("database.postgres.host", "POSTGRES_HOST")
	_ = v.BindEnv("database.postgres.port", "POSTGRES_PORT")
	_ = v.BindEnv("database.postgres.database", "POSTGRES_DB")
	_ = v.BindEnv("database.postgres.user", "POSTGRES_USER")
	_ = v.BindEnv("database.postgres.password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("database.postgres.ssl_mode", "POSTGRES_SSL_MODE")
	_ = v.BindEnv("database.postgres.max_open_conns", "POSTGRES_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.postgres.max_idle_conns", "POSTGRES_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.postgres.conn_max_lifetime", "POSTGRES_CONN_MAX_LIFETIME")

	// Redis configuration
	_ = v.BindEnv("database.redis.host", "REDIS_HOST")
	_ = v.BindEnv("database.redis.port", "REDIS_PORT")
	_ = v.BindEnv("database.redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("database.redis.db", "REDIS_DB")
	_ = v.BindEnv("database.redis.pool_size", "REDIS_POOL_SIZE")

	// Assessor configuration
	_ = v.BindEnv("assessor.enabled", "ASSESSOR_ENABLED")
	_ = v.BindEnv("assessor.url", "ASSESSOR_URL")
	_ = v.BindEnv("assessor.timeout_seconds", "ASSESSOR_TIMEOUT_SECONDS")

	// Logging configuration
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
	_ = v.BindEnv("logging.output", "LOG_OUTPUT")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")

	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 25)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", 300)

	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.redis.pool_size", 10)

	v.SetDefault("assessor.enabled", false)
	v.SetDefault("assessor.timeout_seconds", 10)

	v.SetDefault("scoring.base_weights", map[string]int{
		"gpa":        100,
		"research":   150,
		"leadership": 120,
	})
	v.SetDefault("scoring.qualifying_grade", 3.5)
	v.SetDefault("scoring.grade_bonus_rate", 200.0)
	v.SetDefault("scoring.confidence_floor", 50)
	v.SetDefault("scoring.manual_confidence", 85)
	v.SetDefault("scoring.composite_carryover", 0.25)

	v.SetDefault("evolution.level_thresholds", []int{0, 300, 600, 1000, 1500, 2100, 2800, 3600, 4500, 5500})
	v.SetDefault("evolution.rarity_thresholds", []map[string]interface{}{
		{"rarity": "common", "min_points": 0},
		{"rarity": "rare", "min_points": 300},
		{"rarity": "epic", "min_points": 600},
		{"rarity": "legendary", "min_points": 1000},
		{"rarity": "mythic", "min_points": 2000},
	})
	v.SetDefault("evolution.max_update_retries", 3)

	v.SetDefault("stacking.eligibility_cache_ttl_seconds", 60)

	v.SetDefault("metrics.prometheus.enabled", true)
	v.SetDefault("metrics.prometheus.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if c.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if c.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}
	if c.Database.Redis.Host == "" {
		return fmt.Errorf("database.redis.host is required")
	}
	if c.Assessor.Enabled && c.Assessor.URL == "" {
		return fmt.Errorf("assessor.url is required when assessor is enabled")
	}
	if c.Scoring.QualifyingGrade <= 0 {
		return fmt.Errorf("scoring.qualifying_grade must be positive")
	}
	for _, category := range []models.AchievementCategory{models.CategoryGPA, models.CategoryResearch, models.CategoryLeadership} {
		if c.Scoring.BaseWeight(category) <= 0 {
			return fmt.Errorf("scoring.base_weights.%s must be positive", category)
		}
	}
	if err := c.Evolution.validate(); err != nil {
		return err
	}
	if _, err := c.Stacking.ParseRules(); err != nil {
		return err
	}
	return nil
}

func (c *EvolutionConfig) validate() error {
	if len(c.LevelThresholds) == 0 {
		return fmt.Errorf("evolution.level_thresholds must not be empty")
	}
	if c.LevelThresholds[0] != 0 {
		return fmt.Errorf("evolution.level_thresholds must start at 0")
	}
	for i := 1; i < len(c.LevelThresholds); i++ {
		if c.LevelThresholds[i] <= c.LevelThresholds[i-1] {
			return fmt.Errorf("evolution.level_thresholds must be strictly increasing")
		}
	}
	if len(c.RarityThresholds) == 0 {
		return fmt.Errorf("evolution.rarity_thresholds must not be empty")
	}
	prevPoints := -1
	prevRank := -1
	for _, entry := range c.RarityThresholds {
		rarity := models.Rarity(entry.Rarity)
		if !rarity.Valid() {
			return fmt.Errorf("evolution.rarity_thresholds: unknown rarity %q", entry.Rarity)
		}
		if entry.MinPoints <= prevPoints {
			return fmt.Errorf("evolution.rarity_thresholds must be strictly increasing")
		}
		if rarity.Rank() <= prevRank {
			return fmt.Errorf("evolution.rarity_thresholds must be ordered common to mythic")
		}
		prevPoints = entry.MinPoints
		prevRank = rarity.Rank()
	}
	if c.MaxUpdateRetries <= 0 {
		return fmt.Errorf("evolution.max_update_retries must be positive")
	}
	return nil
}

// ParseRules converts the configured stacking rules into typed models,
// validating them in the process. Rules are loaded once at startup; request
// paths only ever read the converted slice.
func (c *StackingConfig) ParseRules() ([]models.StackingRule, error) {
	rules := make([]models.StackingRule, 0, len(c.Rules))
	seen := make(map[string]bool, len(c.Rules))
	for _, entry := range c.Rules {
		if entry.ID == "" {
			return nil, fmt.Errorf("stacking.rules: rule id is required")
		}
		if seen[entry.ID] {
			return nil, fmt.Errorf("stacking.rules: duplicate rule id %q", entry.ID)
		}
		seen[entry.ID] = true
		if entry.ResultCategory == "" {
			return nil, fmt.Errorf("stacking.rules.%s: result_category is required", entry.ID)
		}
		if entry.ResultSeedScore <= 0 {
			return nil, fmt.Errorf("stacking.rules.%s: result_seed_score must be positive", entry.ID)
		}
		if len(entry.RequiredSlots) < 2 {
			return nil, fmt.Errorf("stacking.rules.%s: at least two required slots", entry.ID)
		}
		slots := make([]models.RuleSlot, 0, len(entry.RequiredSlots))
		for _, slot := range entry.RequiredSlots {
			rarity := models.Rarity(slot.MinRarity)
			if !rarity.Valid() {
				return nil, fmt.Errorf("stacking.rules.%s: unknown rarity %q", entry.ID, slot.MinRarity)
			}
			if slot.MinLevel < 1 {
				return nil, fmt.Errorf("stacking.rules.%s: min_level must be at least 1", entry.ID)
			}
			if slot.Category == "" {
				return nil, fmt.Errorf("stacking.rules.%s: slot category is required", entry.ID)
			}
			slots = append(slots, models.RuleSlot{
				Category:  models.TokenCategory(slot.Category),
				MinLevel:  slot.MinLevel,
				MinRarity: rarity,
			})
		}
		rules = append(rules, models.StackingRule{
			ID:              entry.ID,
			Name:            entry.Name,
			Description:     entry.Description,
			RequiredSlots:   slots,
			ResultCategory:  models.TokenCategory(entry.ResultCategory),
			ResultSeedScore: entry.ResultSeedScore,
		})
	}
	return rules, nil
}
