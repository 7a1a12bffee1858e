package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"golang-prediction-engine/internal/engine/repository"
	"golang-prediction-engine/internal/entity"
	"golang-prediction-engine/pkg/logger"

	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"
)

// Evaluation score weights.
const (
	directionWeight = 0.5
	magnitudeWeight = 0.3
	timingWeight    = 0.2

	minOverrideReasonLen = 10
)

// EvaluationOverride is an audited manual correction layered on a computed
// evaluation. The computed score is never replaced.
type EvaluationOverride struct {
	Field        string    `json:"field"`
	Value        float64   `json:"value"`
	Reason       string    `json:"reason"`
	OverriddenBy string    `json:"overridden_by"`
	OverriddenAt time.Time `json:"overridden_at"`
}

// Evaluation is the scored outcome of one resolved prediction plus any
// overrides applied since.
type Evaluation struct {
	PredictionID      uint                 `json:"prediction_id"`
	DirectionCorrect  float64              `json:"direction_correct"`
	MagnitudeAccuracy float64              `json:"magnitude_accuracy"`
	TimingAccuracy    float64              `json:"timing_accuracy"`
	OverallScore      float64              `json:"overall_score"`
	EvaluatedAt       time.Time            `json:"evaluated_at"`
	Overrides         []EvaluationOverride `json:"overrides,omitempty"`
}

// EvaluationService scores resolved predictions and manages audited
// overrides on those scores.
type EvaluationService interface {
	Evaluate(ctx context.Context, predictionID uint) (*Evaluation, error)
	Get(ctx context.Context, predictionID uint) (*Evaluation, error)
	Override(ctx context.Context, predictionID uint, field string, value float64, reason, actingUser string) (*Evaluation, error)
	Resolve(ctx context.Context, predictionID uint, outcomeValue float64) (*Evaluation, error)
}

// NewEvaluationService creates a new evaluation service backed by the given
// cache store.
func NewEvaluationService(
	log *logger.Logger,
	predictionRepo repository.PredictionRepository,
	store *cache.Cache,
) EvaluationService {
	return &evaluationService{
		log:            log,
		predictionRepo: predictionRepo,
		store:          store,
	}
}

type evaluationService struct {
	log            *logger.Logger
	predictionRepo repository.PredictionRepository
	store          *cache.Cache
}

func evaluationKey(predictionID uint) string {
	return fmt.Sprintf("evaluation:%d", predictionID)
}

// Resolve captures a prediction's realized outcome and evaluates it.
func (s *evaluationService) Resolve(ctx context.Context, predictionID uint, outcomeValue float64) (*Evaluation, error) {
	if err := s.predictionRepo.Resolve(ctx, predictionID, outcomeValue, time.Now()); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve prediction: %w", err)
	}
	return s.Evaluate(ctx, predictionID)
}

// Evaluate computes the three accuracy dimensions and the weighted overall
// score for a resolved prediction, caching the result by prediction id.
func (s *evaluationService) Evaluate(ctx context.Context, predictionID uint) (*Evaluation, error) {
	prediction, err := s.predictionRepo.FindByID(ctx, predictionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if prediction.Status != entity.PredictionResolved || prediction.OutcomeValue == nil {
		return nil, ErrNotResolved
	}

	outcomeDirection, _ := prediction.OutcomeDirection()
	directionCorrect := 0.0
	if outcomeDirection == prediction.Direction {
		directionCorrect = 1.0
	}

	magnitudeAccuracy := scoreMagnitude(prediction.Magnitude, *prediction.OutcomeValue)
	timingAccuracy := scoreTiming(prediction)

	eval := &Evaluation{
		PredictionID:      predictionID,
		DirectionCorrect:  directionCorrect,
		MagnitudeAccuracy: magnitudeAccuracy,
		TimingAccuracy:    timingAccuracy,
		OverallScore: directionWeight*directionCorrect +
			magnitudeWeight*magnitudeAccuracy +
			timingWeight*timingAccuracy,
		EvaluatedAt: time.Now(),
	}

	// Re-evaluating keeps existing overrides attached.
	if existing, ok := s.cached(predictionID); ok {
		eval.Overrides = existing.Overrides
	}
	s.store.Set(evaluationKey(predictionID), eval, cache.NoExpiration)

	s.log.Info("Prediction evaluated",
		logger.Field("prediction_id", predictionID),
		logger.Field("overall_score", eval.OverallScore))
	return eval, nil
}

// scoreMagnitude compares the realized absolute move against the predicted
// band's midpoint, scaling linearly to 0 at twice the midpoint away.
func scoreMagnitude(band entity.MagnitudeBand, outcomeValue float64) float64 {
	midpoint := band.Midpoint()
	if midpoint == 0 {
		return 0
	}
	diff := math.Abs(math.Abs(outcomeValue) - midpoint)
	score := 1 - diff/(2*midpoint)
	if score < 0 {
		return 0
	}
	return score
}

// scoreTiming rewards outcomes captured inside the predicted timeframe,
// decaying linearly over one extra timeframe for late captures.
func scoreTiming(prediction *entity.Prediction) float64 {
	if prediction.OutcomeCapturedAt == nil {
		return 0
	}
	timeframe := time.Duration(prediction.TimeframeHours) * time.Hour
	if timeframe <= 0 {
		return 0
	}
	elapsed := prediction.OutcomeCapturedAt.Sub(prediction.PredictedAt)
	if elapsed <= timeframe {
		return 1
	}
	late := elapsed - timeframe
	score := 1 - float64(late)/float64(timeframe)
	if score < 0 {
		return 0
	}
	return score
}

func (s *evaluationService) cached(predictionID uint) (*Evaluation, bool) {
	v, ok := s.store.Get(evaluationKey(predictionID))
	if !ok {
		return nil, false
	}
	eval, ok := v.(*Evaluation)
	return eval, ok
}

// Get returns the cached evaluation, computing it on demand for resolved
// predictions that have not been evaluated yet.
func (s *evaluationService) Get(ctx context.Context, predictionID uint) (*Evaluation, error) {
	if eval, ok := s.cached(predictionID); ok {
		return eval, nil
	}
	return s.Evaluate(ctx, predictionID)
}

var overrideFields = map[string]bool{
	"direction": true,
	"magnitude": true,
	"timing":    true,
	"overall":   true,
}

// Override layers an audited manual correction onto a computed evaluation.
// Direction accepts only 0 or 1; the other fields accept [0,1]. The reason
// is mandatory and must carry real content.
func (s *evaluationService) Override(ctx context.Context, predictionID uint, field string, value float64, reason, actingUser string) (*Evaluation, error) {
	eval, ok := s.cached(predictionID)
	if !ok {
		return nil, ErrNoEvaluation
	}

	if !overrideFields[field] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidField, field)
	}
	if field == "direction" {
		if value != 0 && value != 1 {
			return nil, fmt.Errorf("%w: direction override must be 0 or 1", ErrInvalidValue)
		}
	} else if value < 0 || value > 1 {
		return nil, fmt.Errorf("%w: %s override must be within [0,1]", ErrInvalidValue, field)
	}
	if len(reason) < minOverrideReasonLen {
		return nil, fmt.Errorf("%w: need at least %d characters", ErrInvalidReason, minOverrideReasonLen)
	}

	eval.Overrides = append(eval.Overrides, EvaluationOverride{
		Field:        field,
		Value:        value,
		Reason:       reason,
		OverriddenBy: actingUser,
		OverriddenAt: time.Now(),
	})
	s.store.Set(evaluationKey(predictionID), eval, cache.NoExpiration)

	s.log.Info("Evaluation overridden",
		logger.Field("prediction_id", predictionID),
		logger.StringField("field", field),
		logger.StringField("by", actingUser))
	return eval, nil
}
