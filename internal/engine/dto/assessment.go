package dto

import (
	"golang-prediction-engine/internal/entity"
)

// AnalystAssessment is the opaque judgment the assessment provider returns
// for one analyst looking at one signal. The engine consumes it as-is.
type AnalystAssessment struct {
	Direction  entity.Direction `json:"direction"`
	Strength   float64          `json:"strength"`
	Confidence float64          `json:"confidence"`
	Reasoning  string           `json:"reasoning"`
	KeyFactors []string         `json:"key_factors"`
	Risks      []string         `json:"risks"`
}

// AssessmentRequest carries everything the provider needs to produce an
// assessment in one analyst's voice.
type AssessmentRequest struct {
	AnalystSlug      string             `json:"analyst_slug"`
	Perspective      string             `json:"perspective"`
	Tier             entity.AnalystTier `json:"tier"`
	TierInstructions string             `json:"tier_instructions"`
	TargetID         string             `json:"target_id"`
	SignalContent    string             `json:"signal_content"`
	SignalDirection  entity.Direction   `json:"signal_direction"`
	LearningsApplied []string           `json:"learnings_applied"`
}
