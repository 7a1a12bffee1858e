package entity

import (
	"time"

	"gorm.io/datatypes"
)

// PredictionSnapshot is the write-once lineage record for one prediction.
// It is created in the same transaction as the prediction and never updated;
// it is the sole source of truth for why the prediction was made.
type PredictionSnapshot struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	PredictionID        uint           `gorm:"not null;uniqueIndex" json:"prediction_id"`
	Contributors        datatypes.JSON `gorm:"type:jsonb" json:"contributors"`
	RejectedSignals     datatypes.JSON `gorm:"type:jsonb" json:"rejected_signals"`
	AnalystAssessments  datatypes.JSON `gorm:"type:jsonb" json:"analyst_assessments"`
	LLMEnsemble         datatypes.JSON `gorm:"type:jsonb" json:"llm_ensemble"`
	ThresholdEvaluation datatypes.JSON `gorm:"type:jsonb" json:"threshold_evaluation"`
	Timeline            datatypes.JSON `gorm:"type:jsonb" json:"timeline"`
	CreatedAt           time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (PredictionSnapshot) TableName() string {
	return "prediction_snapshots"
}

// SnapshotContributor records one consumed predictor with its originating
// signal content.
type SnapshotContributor struct {
	PredictorID   uint      `json:"predictor_id"`
	SignalID      uint      `json:"signal_id"`
	SignalContent string    `json:"signal_content"`
	AnalystID     uint      `json:"analyst_id"`
	AnalystSlug   string    `json:"analyst_slug"`
	Direction     Direction `json:"direction"`
	Strength      float64   `json:"strength"`
	Confidence    float64   `json:"confidence"`
	Weight        float64   `json:"weight"`
}

// SnapshotRejection records a signal or predictor that was considered but
// excluded from the decision.
type SnapshotRejection struct {
	SignalID    uint   `json:"signal_id"`
	PredictorID uint   `json:"predictor_id,omitempty"`
	Reason      string `json:"reason"`
}

// SnapshotAssessment is the per-analyst assessment detail.
type SnapshotAssessment struct {
	AnalystID        uint        `json:"analyst_id"`
	AnalystSlug      string      `json:"analyst_slug"`
	Tier             AnalystTier `json:"tier"`
	Direction        Direction   `json:"direction"`
	Confidence       float64     `json:"confidence"`
	Reasoning        string      `json:"reasoning"`
	KeyFactors       []string    `json:"key_factors"`
	Risks            []string    `json:"risks"`
	LearningsApplied []uint      `json:"learnings_applied"`
}

// SnapshotTierResult is the per-tier ensemble detail.
type SnapshotTierResult struct {
	Tier           AnalystTier `json:"tier"`
	Direction      Direction   `json:"direction"`
	Confidence     float64     `json:"confidence"`
	AgreementLevel float64     `json:"agreement_level"`
	PredictorCount int         `json:"predictor_count"`
}

// SnapshotLLMEnsemble is the tier breakdown plus overall agreement.
type SnapshotLLMEnsemble struct {
	TiersUsed      []AnalystTier        `json:"tiers_used"`
	TierResults    []SnapshotTierResult `json:"tier_results"`
	AgreementLevel float64              `json:"agreement_level"`
}

// SnapshotThreshold records the threshold policy evaluation.
type SnapshotThreshold struct {
	RequiredPredictors int     `json:"required_predictors"`
	ActualPredictors   int     `json:"actual_predictors"`
	RequiredStrength   float64 `json:"required_strength"`
	ActualStrength     float64 `json:"actual_strength"`
	RequiredConsensus  float64 `json:"required_consensus"`
	ActualConsensus    float64 `json:"actual_consensus"`
	Passed             bool    `json:"passed"`
	FailedDimension    string  `json:"failed_dimension,omitempty"`
}

// SnapshotTimelineEvent is one stage transition in the decision pipeline.
type SnapshotTimelineEvent struct {
	Stage string    `json:"stage"`
	At    time.Time `json:"at"`
}
