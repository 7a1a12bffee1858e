package entity

import (
	"time"

	"gorm.io/datatypes"
)

// PredictionStatus tracks a prediction through resolution.
type PredictionStatus string

const (
	PredictionActive   PredictionStatus = "active"
	PredictionResolved PredictionStatus = "resolved"
	PredictionExpired  PredictionStatus = "expired"
)

// MagnitudeBand buckets the expected size of the move.
type MagnitudeBand string

const (
	MagnitudeSmall  MagnitudeBand = "small"
	MagnitudeMedium MagnitudeBand = "medium"
	MagnitudeLarge  MagnitudeBand = "large"
)

// Midpoint returns the band's representative absolute move fraction, used
// when scoring magnitude accuracy against the realized move.
func (m MagnitudeBand) Midpoint() float64 {
	switch m {
	case MagnitudeSmall:
		return 0.01
	case MagnitudeMedium:
		return 0.03
	case MagnitudeLarge:
		return 0.07
	}
	return 0
}

// Prediction is the ensemble's decision for a target. It is created only
// when the threshold policy passes and is immutable except for resolution.
type Prediction struct {
	ID                uint             `gorm:"primaryKey" json:"id"`
	TargetID          string           `gorm:"not null;index" json:"target_id"`
	UniverseID        string           `gorm:"not null;index" json:"universe_id"`
	Direction         Direction        `gorm:"not null" json:"direction"`
	Confidence        float64          `gorm:"not null" json:"confidence"`
	Magnitude         MagnitudeBand    `gorm:"not null" json:"magnitude"`
	TimeframeHours    int              `gorm:"not null" json:"timeframe_hours"`
	PredictedAt       time.Time        `gorm:"not null;index" json:"predicted_at"`
	ExpiresAt         time.Time        `gorm:"not null" json:"expires_at"`
	EntryPrice        float64          `json:"entry_price"`
	TargetPrice       float64          `json:"target_price"`
	StopPrice         float64          `json:"stop_price"`
	AnalystEnsemble   datatypes.JSON   `gorm:"type:jsonb" json:"analyst_ensemble"`
	LLMEnsemble       datatypes.JSON   `gorm:"type:jsonb" json:"llm_ensemble"`
	Status            PredictionStatus `gorm:"not null;default:active;index" json:"status"`
	OutcomeValue      *float64         `json:"outcome_value"`
	OutcomeCapturedAt *time.Time       `json:"outcome_captured_at"`
	ReplayRunID       *uint            `gorm:"index" json:"replay_run_id"`
	IsTest            bool             `gorm:"not null;default:false" json:"is_test"`
	CreatedAt         time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Prediction) TableName() string {
	return "predictions"
}

// OutcomeDirection derives the realized direction from the signed outcome
// move; moves under 0.2% count as neutral.
func (p *Prediction) OutcomeDirection() (Direction, bool) {
	if p.OutcomeValue == nil {
		return "", false
	}
	switch {
	case *p.OutcomeValue > 0.002:
		return DirectionBullish, true
	case *p.OutcomeValue < -0.002:
		return DirectionBearish, true
	default:
		return DirectionNeutral, true
	}
}
