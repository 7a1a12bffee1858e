package repository

import (
	"context"

	"golang-prediction-engine/internal/engine/dto"
)

// AssessorRepository produces one analyst's assessment of one signal. The
// engine treats the result as opaque; provider mechanics stay behind this
// interface.
type AssessorRepository interface {
	Assess(ctx context.Context, req dto.AssessmentRequest) (*dto.AnalystAssessment, error)
}
