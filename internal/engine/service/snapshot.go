package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang-prediction-engine/internal/engine/repository"
	"golang-prediction-engine/internal/entity"
	"golang-prediction-engine/pkg/logger"

	"gorm.io/gorm"
)

// SnapshotService reads prediction lineage. Snapshots are written only by
// the ensemble transaction; this service never mutates them.
type SnapshotService interface {
	Get(ctx context.Context, predictionID uint) (*entity.PredictionSnapshot, error)
	DeepDive(ctx context.Context, predictionID uint) (*DeepDiveResult, error)
	Compare(ctx context.Context, predictionIDs []uint) (*CompareResult, error)
}

// DeepDiveResult is a snapshot resolved into its full causal chain.
type DeepDiveResult struct {
	Prediction   *entity.Prediction             `json:"prediction"`
	Snapshot     *entity.PredictionSnapshot     `json:"snapshot"`
	Contributors []entity.SnapshotContributor   `json:"contributors"`
	Signals      []entity.Signal                `json:"signals"`
	Predictors   []entity.Predictor             `json:"predictors"`
	Assessments  []entity.SnapshotAssessment    `json:"assessments"`
	Timeline     []entity.SnapshotTimelineEvent `json:"timeline"`
}

// CompareEntry pairs one prediction with its snapshot.
type CompareEntry struct {
	Prediction *entity.Prediction         `json:"prediction"`
	Snapshot   *entity.PredictionSnapshot `json:"snapshot"`
}

// CompareDiff summarizes the structural differences across the compared set.
type CompareDiff struct {
	DirectionChanged       bool `json:"direction_changed"`
	DominantAnalystChanged bool `json:"dominant_analyst_changed"`
	TierSetChanged         bool `json:"tier_set_changed"`
}

// CompareResult is a side-by-side view of 2 to 10 snapshots.
type CompareResult struct {
	Entries []CompareEntry `json:"entries"`
	Diff    CompareDiff    `json:"diff"`
}

// NewSnapshotService creates a new snapshot read service.
func NewSnapshotService(
	log *logger.Logger,
	snapshotRepo repository.SnapshotRepository,
	predictionRepo repository.PredictionRepository,
	predictorRepo repository.PredictorRepository,
	signalRepo repository.SignalRepository,
) SnapshotService {
	return &snapshotService{
		log:            log,
		snapshotRepo:   snapshotRepo,
		predictionRepo: predictionRepo,
		predictorRepo:  predictorRepo,
		signalRepo:     signalRepo,
	}
}

type snapshotService struct {
	log            *logger.Logger
	snapshotRepo   repository.SnapshotRepository
	predictionRepo repository.PredictionRepository
	predictorRepo  repository.PredictorRepository
	signalRepo     repository.SignalRepository
}

func (s *snapshotService) Get(ctx context.Context, predictionID uint) (*entity.PredictionSnapshot, error) {
	snapshot, err := s.snapshotRepo.FindByPredictionID(ctx, predictionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return snapshot, nil
}

// DeepDive resolves every row the snapshot references into one causal chain
// from raw signals through assessments to the final decision.
func (s *snapshotService) DeepDive(ctx context.Context, predictionID uint) (*DeepDiveResult, error) {
	prediction, err := s.predictionRepo.FindByID(ctx, predictionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	snapshot, err := s.Get(ctx, predictionID)
	if err != nil {
		return nil, err
	}

	var contributors []entity.SnapshotContributor
	if err := json.Unmarshal(snapshot.Contributors, &contributors); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot contributors: %w", err)
	}
	var assessments []entity.SnapshotAssessment
	_ = json.Unmarshal(snapshot.AnalystAssessments, &assessments)
	var timeline []entity.SnapshotTimelineEvent
	_ = json.Unmarshal(snapshot.Timeline, &timeline)

	predictorIDs := make([]uint, 0, len(contributors))
	signalIDSet := make(map[uint]bool)
	for _, c := range contributors {
		predictorIDs = append(predictorIDs, c.PredictorID)
		signalIDSet[c.SignalID] = true
	}

	predictors, err := s.predictorRepo.FindByIDs(ctx, predictorIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve predictors: %w", err)
	}

	signals := make([]entity.Signal, 0, len(signalIDSet))
	for id := range signalIDSet {
		signal, err := s.signalRepo.FindByID(ctx, id)
		if err != nil {
			// The chain stays useful even when a referenced signal is gone.
			s.log.Warn("Snapshot references missing signal",
				logger.Field("signal_id", id), logger.Field("prediction_id", predictionID))
			continue
		}
		signals = append(signals, *signal)
	}

	return &DeepDiveResult{
		Prediction:   prediction,
		Snapshot:     snapshot,
		Contributors: contributors,
		Signals:      signals,
		Predictors:   predictors,
		Assessments:  assessments,
		Timeline:     timeline,
	}, nil
}

// Compare returns 2 to 10 snapshots side by side with a structural diff.
func (s *snapshotService) Compare(ctx context.Context, predictionIDs []uint) (*CompareResult, error) {
	if len(predictionIDs) < 2 || len(predictionIDs) > 10 {
		return nil, fmt.Errorf("%w: compare takes 2 to 10 prediction ids", ErrInvalidValue)
	}

	predictions, err := s.predictionRepo.FindByIDs(ctx, predictionIDs)
	if err != nil {
		return nil, err
	}
	if len(predictions) != len(predictionIDs) {
		return nil, ErrNotFound
	}
	snapshots, err := s.snapshotRepo.FindByPredictionIDs(ctx, predictionIDs)
	if err != nil {
		return nil, err
	}
	snapshotByPrediction := make(map[uint]*entity.PredictionSnapshot, len(snapshots))
	for i := range snapshots {
		snapshotByPrediction[snapshots[i].PredictionID] = &snapshots[i]
	}

	predictionByID := make(map[uint]*entity.Prediction, len(predictions))
	for i := range predictions {
		predictionByID[predictions[i].ID] = &predictions[i]
	}

	result := &CompareResult{}
	var firstDirection entity.Direction
	var firstDominant uint
	var firstTiers string
	for i, id := range predictionIDs {
		prediction := predictionByID[id]
		snapshot, ok := snapshotByPrediction[id]
		if !ok {
			return nil, ErrNotFound
		}
		result.Entries = append(result.Entries, CompareEntry{Prediction: prediction, Snapshot: snapshot})

		dominant := dominantAnalyst(snapshot)
		tiers := tierSetKey(snapshot)
		if i == 0 {
			firstDirection, firstDominant, firstTiers = prediction.Direction, dominant, tiers
			continue
		}
		if prediction.Direction != firstDirection {
			result.Diff.DirectionChanged = true
		}
		if dominant != firstDominant {
			result.Diff.DominantAnalystChanged = true
		}
		if tiers != firstTiers {
			result.Diff.TierSetChanged = true
		}
	}
	return result, nil
}

// dominantAnalyst is the contributor with the greatest weighted strength.
func dominantAnalyst(snapshot *entity.PredictionSnapshot) uint {
	var contributors []entity.SnapshotContributor
	if err := json.Unmarshal(snapshot.Contributors, &contributors); err != nil {
		return 0
	}
	var best uint
	bestMass := -1.0
	for _, c := range contributors {
		w := c.Weight
		if w == 0 {
			w = 1
		}
		mass := w * c.Strength
		if mass > bestMass || (mass == bestMass && c.AnalystID < best) {
			best = c.AnalystID
			bestMass = mass
		}
	}
	return best
}

func tierSetKey(snapshot *entity.PredictionSnapshot) string {
	var ensemble entity.SnapshotLLMEnsemble
	if err := json.Unmarshal(snapshot.LLMEnsemble, &ensemble); err != nil {
		return ""
	}
	key := ""
	for _, t := range ensemble.TiersUsed {
		key += string(t) + ","
	}
	return key
}
