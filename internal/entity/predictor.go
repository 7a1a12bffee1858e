package entity

import (
	"time"

	"gorm.io/datatypes"
)

// PredictorStatus tracks whether an analyst opinion is still usable.
type PredictorStatus string

const (
	PredictorActive   PredictorStatus = "active"
	PredictorConsumed PredictorStatus = "consumed"
	PredictorExpired  PredictorStatus = "expired"
)

// Predictor is one analyst's directional opinion derived from one signal.
// A predictor may be consumed by at most one prediction; consumption is an
// atomic compare-and-set on status.
type Predictor struct {
	ID                     uint            `gorm:"primaryKey" json:"id"`
	SignalID               uint            `gorm:"not null;index" json:"signal_id"`
	AnalystID              uint            `gorm:"not null;index" json:"analyst_id"`
	TargetID               string          `gorm:"not null;index" json:"target_id"`
	Tier                   AnalystTier     `gorm:"not null" json:"tier"`
	Direction              Direction       `gorm:"not null" json:"direction"`
	Strength               float64         `gorm:"not null" json:"strength"`
	Confidence             float64         `gorm:"not null" json:"confidence"`
	Reasoning              string          `gorm:"type:text" json:"reasoning"`
	KeyFactors             datatypes.JSON  `gorm:"type:jsonb" json:"key_factors"`
	Risks                  datatypes.JSON  `gorm:"type:jsonb" json:"risks"`
	Status                 PredictorStatus `gorm:"not null;default:active;index" json:"status"`
	ExpiresAt              time.Time       `gorm:"not null" json:"expires_at"`
	ConsumedAt             *time.Time      `json:"consumed_at"`
	ConsumedByPredictionID *uint           `json:"consumed_by_prediction_id"`
	ReplayRunID            *uint           `gorm:"index" json:"replay_run_id"`
	IsTest                 bool            `gorm:"not null;default:false" json:"is_test"`
	CreatedAt              time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Predictor) TableName() string {
	return "predictors"
}
