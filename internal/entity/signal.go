package entity

import (
	"time"

	"gorm.io/datatypes"
)

// Direction is a discrete market direction.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
	DirectionNeutral Direction = "neutral"
)

// SignalDisposition tracks a signal through its processing lifecycle.
type SignalDisposition string

const (
	SignalPending          SignalDisposition = "pending"
	SignalProcessing       SignalDisposition = "processing"
	SignalPredictorCreated SignalDisposition = "predictor_created"
	SignalRejected         SignalDisposition = "rejected"
	SignalExpired          SignalDisposition = "expired"
)

// Signal is a detected market-relevant event awaiting analysis. At most one
// worker may hold the processing disposition at a time; the claim is an
// atomic compare-and-set on disposition.
type Signal struct {
	ID                  uint              `gorm:"primaryKey" json:"id"`
	TargetID            string            `gorm:"not null;index" json:"target_id"`
	UniverseID          string            `gorm:"not null;index" json:"universe_id"`
	SourceID            string            `gorm:"not null" json:"source_id"`
	Content             string            `gorm:"type:text" json:"content"`
	ContentHash         string            `gorm:"index" json:"content_hash"`
	Direction           Direction         `gorm:"not null" json:"direction"`
	DetectedAt          time.Time         `gorm:"not null;index" json:"detected_at"`
	Disposition         SignalDisposition `gorm:"not null;default:pending;index" json:"disposition"`
	ProcessingWorker    string            `json:"processing_worker"`
	ProcessingStartedAt *time.Time        `json:"processing_started_at"`
	EvaluationResult    datatypes.JSON    `gorm:"type:jsonb" json:"evaluation_result"`
	ReviewQueueID       *uint             `json:"review_queue_id"`
	ExpiredAt           *time.Time        `json:"expired_at"`
	IsTest              bool              `gorm:"not null;default:false" json:"is_test"`
	CreatedAt           time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Signal) TableName() string {
	return "signals"
}

// Terminal reports whether the disposition can no longer change.
func (s *Signal) Terminal() bool {
	switch s.Disposition {
	case SignalPredictorCreated, SignalRejected, SignalExpired:
		return true
	}
	return false
}
