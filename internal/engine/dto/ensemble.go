package dto

import (
	"golang-prediction-engine/internal/entity"
)

// TierResult is the combined result for one analyst tier.
type TierResult struct {
	Tier           entity.AnalystTier `json:"tier"`
	Direction      entity.Direction   `json:"direction"`
	Confidence     float64            `json:"confidence"`
	AgreementLevel float64            `json:"agreement_level"`
	WeightedMass   float64            `json:"weighted_mass"`
	PredictorCount int                `json:"predictor_count"`
}

// EnsembleResult is the overall consensus across the tiers consulted.
type EnsembleResult struct {
	Direction        entity.Direction     `json:"direction"`
	Confidence       float64              `json:"confidence"`
	CombinedStrength float64              `json:"combined_strength"`
	Consensus        float64              `json:"consensus"`
	TiersUsed        []entity.AnalystTier `json:"tiers_used"`
	TierResults      []TierResult         `json:"tier_results"`
	PredictorCount   int                  `json:"predictor_count"`
}

// ThresholdEvaluation is the gate decision recorded whether or not a
// prediction was created.
type ThresholdEvaluation struct {
	RequiredPredictors int     `json:"required_predictors"`
	ActualPredictors   int     `json:"actual_predictors"`
	RequiredStrength   float64 `json:"required_strength"`
	ActualStrength     float64 `json:"actual_strength"`
	RequiredConsensus  float64 `json:"required_consensus"`
	ActualConsensus    float64 `json:"actual_consensus"`
	Passed             bool    `json:"passed"`
	FailedDimension    string  `json:"failed_dimension,omitempty"`
}

// BatchResult summarizes one claim-based processing sweep.
type BatchResult struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}
