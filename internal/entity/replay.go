package entity

import (
	"time"

	"gorm.io/datatypes"
)

// ReplayStatus tracks a replay run's lifecycle.
type ReplayStatus string

const (
	ReplayPending   ReplayStatus = "pending"
	ReplayRunning   ReplayStatus = "running"
	ReplayCompleted ReplayStatus = "completed"
	ReplayFailed    ReplayStatus = "failed"
)

// RollbackDepth controls how far back a replay unwinds derived state.
type RollbackDepth string

const (
	// RollbackSignals unwinds predictors and predictions derived after the
	// cutoff and re-runs the pipeline from the signal stage.
	RollbackSignals RollbackDepth = "signals"
	// RollbackPredictions unwinds only predictions, keeping predictors.
	RollbackPredictions RollbackDepth = "predictions"
)

// ReplayRun re-executes the decision pipeline against rolled-back historical
// state to measure a counterfactual. Artifacts it produces are tagged with
// the run id so deleting the run purges them without touching production.
type ReplayRun struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	RollbackDepth RollbackDepth  `gorm:"not null" json:"rollback_depth"`
	RollbackTo    time.Time      `gorm:"not null" json:"rollback_to"`
	UniverseID    string         `gorm:"not null;index" json:"universe_id"`
	TargetIDs     datatypes.JSON `gorm:"type:jsonb" json:"target_ids"`
	Status        ReplayStatus   `gorm:"not null;default:pending;index" json:"status"`
	Results       datatypes.JSON `gorm:"type:jsonb" json:"results"`
	ErrorMessage  string         `json:"error_message"`
	CreatedBy     string         `json:"created_by"`
	StartedAt     *time.Time     `json:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (ReplayRun) TableName() string {
	return "replay_runs"
}

// ReplayComparison is one original-vs-replay decision comparison row.
type ReplayComparison struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	ReplayRunID          uint      `gorm:"not null;index" json:"replay_run_id"`
	TargetID             string    `gorm:"not null" json:"target_id"`
	OriginalPredictionID uint      `gorm:"not null" json:"original_prediction_id"`
	ReplayPredictionID   *uint     `json:"replay_prediction_id"`
	OriginalDirection    Direction `json:"original_direction"`
	ReplayDirection      Direction `json:"replay_direction"`
	DirectionMatched     bool      `json:"direction_matched"`
	ConfidenceDelta      float64   `json:"confidence_delta"`
	PnlDelta             float64   `json:"pnl_delta"`
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ReplayComparison) TableName() string {
	return "replay_comparisons"
}

// ReplayResults is the aggregate comparison stored on a completed run.
type ReplayResults struct {
	TotalComparisons int     `json:"total_comparisons"`
	DirectionMatches int     `json:"direction_matches"`
	OriginalAccuracy float64 `json:"original_accuracy"`
	ReplayAccuracy   float64 `json:"replay_accuracy"`
	AccuracyDelta    float64 `json:"accuracy_delta"`
	OriginalPnl      float64 `json:"original_pnl"`
	ReplayPnl        float64 `json:"replay_pnl"`
	PnlDelta         float64 `json:"pnl_delta"`
}

// TableCounts is one table's affected-record preview before a rollback.
type TableCounts struct {
	Table     string `json:"table"`
	RowCount  int    `json:"row_count"`
	RecordIDs []uint `json:"record_ids"`
}
