package entity

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// LearningType classifies what kind of rule a learning encodes.
type LearningType string

const (
	LearningRule      LearningType = "rule"
	LearningPattern   LearningType = "pattern"
	LearningHeuristic LearningType = "heuristic"
)

// LearningSource records where a learning came from.
type LearningSource string

const (
	SourceHuman       LearningSource = "human"
	SourceAISuggested LearningSource = "ai_suggested"
)

// LearningStatus tracks a learning's lifecycle.
type LearningStatus string

const (
	LearningActive     LearningStatus = "active"
	LearningDisabled   LearningStatus = "disabled"
	LearningSuperseded LearningStatus = "superseded"
)

// Learning is a stored rule/pattern intended to improve future decisions.
// Rows are append-only: supersession creates a new row and flips the old
// one's superseded_by, never mutating its content.
type Learning struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	ScopeLevel   ScopeLevel     `gorm:"not null;index" json:"scope_level"`
	Domain       string         `json:"domain"`
	UniverseID   string         `json:"universe_id"`
	TargetID     string         `json:"target_id"`
	AnalystID    *uint          `json:"analyst_id"`
	LearningType LearningType   `gorm:"not null" json:"learning_type"`
	Title        string         `gorm:"not null" json:"title"`
	Description  string         `gorm:"type:text" json:"description"`
	Config       datatypes.JSON `gorm:"type:jsonb" json:"config"`
	SourceType   LearningSource `gorm:"not null;default:human" json:"source_type"`
	Status       LearningStatus `gorm:"not null;default:active;index" json:"status"`
	SupersededBy *uint          `json:"superseded_by"`
	Version      int            `gorm:"not null;default:1" json:"version"`
	TimesApplied int            `gorm:"not null;default:0" json:"times_applied"`
	TimesHelpful int            `gorm:"not null;default:0" json:"times_helpful"`
	IsTest       bool           `gorm:"not null;default:false;index" json:"is_test"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Learning) TableName() string {
	return "learnings"
}

// Scope rebuilds the tagged scope variant from the flat row columns.
func (l *Learning) Scope() (Scope, error) {
	return ScopeFromColumns(l.ScopeLevel, l.Domain, l.UniverseID, l.TargetID)
}

// ApplyScope flattens a scope onto the row columns.
func (l *Learning) ApplyScope(s Scope) {
	l.ScopeLevel, l.Domain, l.UniverseID, l.TargetID = s.Columns()
}

// SuccessRate is times_helpful over times_applied, 0 when never applied.
func (l *Learning) SuccessRate() float64 {
	if l.TimesApplied == 0 {
		return 0
	}
	return float64(l.TimesHelpful) / float64(l.TimesApplied)
}

// LearningConfig is the policy payload a learning carries. The engine only
// understands weight adjustments; anything else rides along opaquely.
type LearningConfig struct {
	AnalystID        uint      `json:"analyst_id,omitempty"`
	WeightMultiplier float64   `json:"weight_multiplier,omitempty"`
	DirectionBias    Direction `json:"direction_bias,omitempty"`
	BiasFactor       float64   `json:"bias_factor,omitempty"`
}

// ParseConfig decodes the opaque config payload; an empty payload yields a
// neutral config.
func (l *Learning) ParseConfig() (LearningConfig, error) {
	cfg := LearningConfig{WeightMultiplier: 1}
	if len(l.Config) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(l.Config, &cfg); err != nil {
		return cfg, err
	}
	if cfg.WeightMultiplier == 0 {
		cfg.WeightMultiplier = 1
	}
	return cfg, nil
}

// LearningLineage links exactly one test learning to the production learning
// it was promoted into. The unique index on test_learning_id is what makes
// promotion exactly-once.
type LearningLineage struct {
	ID                   uint           `gorm:"primaryKey" json:"id"`
	TestLearningID       uint           `gorm:"not null;uniqueIndex" json:"test_learning_id"`
	ProductionLearningID uint           `gorm:"not null" json:"production_learning_id"`
	ScenarioRuns         datatypes.JSON `gorm:"type:jsonb" json:"scenario_runs"`
	ValidationMetrics    datatypes.JSON `gorm:"type:jsonb" json:"validation_metrics"`
	BacktestResult       datatypes.JSON `gorm:"type:jsonb" json:"backtest_result"`
	PromotedBy           string         `gorm:"not null" json:"promoted_by"`
	PromotedAt           time.Time      `gorm:"not null" json:"promoted_at"`
	Notes                string         `gorm:"type:text" json:"notes"`
}

func (LearningLineage) TableName() string {
	return "learning_lineages"
}

// ValidationMetrics is the effectiveness summary captured at promotion time.
type ValidationMetrics struct {
	TimesApplied int     `json:"times_applied"`
	TimesHelpful int     `json:"times_helpful"`
	SuccessRate  float64 `json:"success_rate"`
}

// BacktestResult is the outcome of replaying recent decisions with the
// candidate learning applied.
type BacktestResult struct {
	Pass             bool    `json:"pass"`
	ImprovementScore float64 `json:"improvement_score"`
	WindowDays       int     `json:"window_days"`
	Comparisons      int     `json:"comparisons"`
}
