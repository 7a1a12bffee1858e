package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang-prediction-engine/internal/engine/repository"
	"golang-prediction-engine/internal/entity"
	"golang-prediction-engine/pkg/logger"
	"golang-prediction-engine/pkg/telegram"

	"gorm.io/gorm"
)

// ReplayCreateRequest describes the counterfactual to run.
type ReplayCreateRequest struct {
	UniverseID    string
	TargetIDs     []string
	RollbackTo    time.Time
	RollbackDepth entity.RollbackDepth
	CreatedBy     string
}

// ReplayService re-executes the decision pipeline against historical state.
// Replay artifacts are tagged with the run id; production rows are never
// mutated, so rollback is logical and deleting the run purges everything.
type ReplayService interface {
	Create(ctx context.Context, req ReplayCreateRequest) (*entity.ReplayRun, error)
	Get(ctx context.Context, id uint) (*entity.ReplayRun, error)
	Preview(ctx context.Context, id uint) ([]entity.TableCounts, error)
	Run(ctx context.Context, id uint) (*entity.ReplayResults, error)
	Results(ctx context.Context, id uint) (*entity.ReplayResults, []entity.ReplayComparison, error)
	Delete(ctx context.Context, id uint) error
}

// NewReplayService creates a new replay service.
func NewReplayService(
	log *logger.Logger,
	replayRepo repository.ReplayRepository,
	signalRepo repository.SignalRepository,
	predictorRepo repository.PredictorRepository,
	predictionRepo repository.PredictionRepository,
	processor SignalProcessor,
	ensemble EnsembleEngine,
	notifier telegram.Notifier,
) ReplayService {
	return &replayService{
		log:            log,
		replayRepo:     replayRepo,
		signalRepo:     signalRepo,
		predictorRepo:  predictorRepo,
		predictionRepo: predictionRepo,
		processor:      processor,
		ensemble:       ensemble,
		notifier:       notifier,
	}
}

type replayService struct {
	log            *logger.Logger
	replayRepo     repository.ReplayRepository
	signalRepo     repository.SignalRepository
	predictorRepo  repository.PredictorRepository
	predictionRepo repository.PredictionRepository
	processor      SignalProcessor
	ensemble       EnsembleEngine
	notifier       telegram.Notifier
}

func (s *replayService) Create(ctx context.Context, req ReplayCreateRequest) (*entity.ReplayRun, error) {
	if req.UniverseID == "" {
		return nil, fmt.Errorf("%w: universe id required", ErrInvalidValue)
	}
	if req.RollbackTo.IsZero() || req.RollbackTo.After(time.Now()) {
		return nil, fmt.Errorf("%w: rollback time must be in the past", ErrInvalidValue)
	}
	switch req.RollbackDepth {
	case entity.RollbackSignals, entity.RollbackPredictions:
	default:
		return nil, fmt.Errorf("%w: unknown rollback depth %q", ErrInvalidValue, req.RollbackDepth)
	}

	targetIDs, _ := json.Marshal(req.TargetIDs)
	run := &entity.ReplayRun{
		RollbackDepth: req.RollbackDepth,
		RollbackTo:    req.RollbackTo,
		UniverseID:    req.UniverseID,
		TargetIDs:     targetIDs,
		Status:        entity.ReplayPending,
		CreatedBy:     req.CreatedBy,
	}
	if err := s.replayRepo.Create(ctx, run); err != nil {
		return nil, err
	}
	s.log.Info("Replay run created",
		logger.Field("replay_run_id", run.ID),
		logger.StringField("universe_id", run.UniverseID),
		logger.StringField("depth", string(run.RollbackDepth)))
	return run, nil
}

func (s *replayService) Get(ctx context.Context, id uint) (*entity.ReplayRun, error) {
	run, err := s.replayRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

func (s *replayService) targetIDs(run *entity.ReplayRun) []string {
	var ids []string
	_ = json.Unmarshal(run.TargetIDs, &ids)
	return ids
}

// Preview reports which rows the run's rollback window covers, per table,
// without touching anything. Signal depth covers four tables; prediction
// depth only the last two.
func (s *replayService) Preview(ctx context.Context, id uint) ([]entity.TableCounts, error) {
	run, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	targets := s.targetIDs(run)

	var counts []entity.TableCounts
	if run.RollbackDepth == entity.RollbackSignals {
		signalIDs, err := s.signalRepo.CountAffectedByRollback(ctx, run.UniverseID, targets, run.RollbackTo)
		if err != nil {
			return nil, fmt.Errorf("failed to preview signals: %w", err)
		}
		predictorIDs, err := s.predictorRepo.CountAffectedByRollback(ctx, run.UniverseID, targets, run.RollbackTo)
		if err != nil {
			return nil, fmt.Errorf("failed to preview predictors: %w", err)
		}
		counts = append(counts,
			entity.TableCounts{Table: "signals", RowCount: len(signalIDs), RecordIDs: signalIDs},
			entity.TableCounts{Table: "predictors", RowCount: len(predictorIDs), RecordIDs: predictorIDs},
		)
	}

	predictionIDs, err := s.predictionRepo.CountAffectedByRollback(ctx, run.UniverseID, targets, run.RollbackTo)
	if err != nil {
		return nil, fmt.Errorf("failed to preview predictions: %w", err)
	}
	counts = append(counts,
		entity.TableCounts{Table: "predictions", RowCount: len(predictionIDs), RecordIDs: predictionIDs},
		entity.TableCounts{Table: "prediction_snapshots", RowCount: len(predictionIDs), RecordIDs: predictionIDs},
	)
	return counts, nil
}

// Run executes the replay: pending to running under the one-per-universe
// guard, pipeline re-execution over the reconstructed window, comparison
// against the original decisions, then completed or failed.
func (s *replayService) Run(ctx context.Context, id uint) (*entity.ReplayResults, error) {
	run, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	running, err := s.replayRepo.HasRunningForUniverse(ctx, run.UniverseID)
	if err != nil {
		return nil, err
	}
	if running {
		return nil, ErrReplayRunning
	}

	ok, err := s.replayRepo.TransitionStatus(ctx, id, entity.ReplayPending, entity.ReplayRunning)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrReplayNotPending
	}

	results, err := s.execute(ctx, run)
	if err != nil {
		if failErr := s.replayRepo.Fail(ctx, id, err.Error()); failErr != nil {
			s.log.Error("Failed to mark replay failed", logger.ErrorField(failErr))
		}
		s.notify(id, string(entity.ReplayFailed), nil)
		return nil, err
	}

	resultsJSON, _ := json.Marshal(results)
	if err := s.replayRepo.Complete(ctx, id, resultsJSON); err != nil {
		return nil, fmt.Errorf("failed to complete replay: %w", err)
	}

	s.log.Info("Replay run completed",
		logger.Field("replay_run_id", id),
		logger.IntField("comparisons", results.TotalComparisons),
		logger.IntField("direction_matches", results.DirectionMatches))
	s.notify(id, string(entity.ReplayCompleted), results)
	return results, nil
}

func (s *replayService) notify(id uint, status string, results *entity.ReplayResults) {
	if s.notifier == nil {
		return
	}
	total, matches := 0, 0
	if results != nil {
		total, matches = results.TotalComparisons, results.DirectionMatches
	}
	if err := s.notifier.SendMessage(telegram.FormatReplayMessage(id, status, total, matches)); err != nil {
		s.log.Error("Failed to send replay notification", logger.ErrorField(err))
	}
}

// execute replays the window. Signal depth reprocesses the as-of-cutoff
// pending signals through assessment; prediction depth reuses the surviving
// predictors and reruns only the ensemble.
func (s *replayService) execute(ctx context.Context, run *entity.ReplayRun) (*entity.ReplayResults, error) {
	targets := s.targetIDs(run)
	replayTargets := make(map[string]bool)

	if run.RollbackDepth == entity.RollbackSignals {
		signals, err := s.signalRepo.FindForReplayWindow(ctx, run.UniverseID, targets, run.RollbackTo)
		if err != nil {
			return nil, fmt.Errorf("failed to reconstruct signal window: %w", err)
		}
		for i := range signals {
			if _, err := s.processor.ProcessSignal(ctx, &signals[i], &run.ID); err != nil {
				s.log.Error("Replay signal processing failed",
					logger.ErrorField(err), logger.Field("signal_id", signals[i].ID))
				continue
			}
			replayTargets[signals[i].TargetID] = true
		}
	} else {
		originals, err := s.predictionRepo.FindOriginalsAfter(ctx, run.UniverseID, targets, run.RollbackTo)
		if err != nil {
			return nil, err
		}
		for _, p := range originals {
			replayTargets[p.TargetID] = true
		}
	}

	for targetID := range replayTargets {
		if _, err := s.ensemble.ProcessTarget(ctx, run.UniverseID, targetID, &run.ID); err != nil {
			s.log.Error("Replay ensemble failed",
				logger.ErrorField(err), logger.StringField("target_id", targetID))
		}
	}

	return s.compare(ctx, run)
}

// compare pairs each original post-cutoff prediction with the replay's
// decision for the same target and aggregates the outcome.
func (s *replayService) compare(ctx context.Context, run *entity.ReplayRun) (*entity.ReplayResults, error) {
	originals, err := s.predictionRepo.FindOriginalsAfter(ctx, run.UniverseID, s.targetIDs(run), run.RollbackTo)
	if err != nil {
		return nil, err
	}
	replays, err := s.predictionRepo.FindByReplayRun(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	replayByTarget := make(map[string]*entity.Prediction, len(replays))
	for i := range replays {
		replayByTarget[replays[i].TargetID] = &replays[i]
	}

	results := &entity.ReplayResults{}
	originalCorrect, replayCorrect := 0, 0
	comparisons := make([]entity.ReplayComparison, 0, len(originals))
	for i := range originals {
		original := &originals[i]
		comparison := entity.ReplayComparison{
			ReplayRunID:          run.ID,
			TargetID:             original.TargetID,
			OriginalPredictionID: original.ID,
			OriginalDirection:    original.Direction,
		}
		if replay, ok := replayByTarget[original.TargetID]; ok {
			comparison.ReplayPredictionID = &replay.ID
			comparison.ReplayDirection = replay.Direction
			comparison.DirectionMatched = replay.Direction == original.Direction
			comparison.ConfidenceDelta = replay.Confidence - original.Confidence
		}
		comparisons = append(comparisons, comparison)

		results.TotalComparisons++
		if comparison.DirectionMatched {
			results.DirectionMatches++
		}
		if outcome, ok := original.OutcomeDirection(); ok {
			if original.Direction == outcome {
				originalCorrect++
			}
			if comparison.ReplayPredictionID != nil && comparison.ReplayDirection == outcome {
				replayCorrect++
			}
		}
	}

	if results.TotalComparisons > 0 {
		results.OriginalAccuracy = float64(originalCorrect) / float64(results.TotalComparisons)
		results.ReplayAccuracy = float64(replayCorrect) / float64(results.TotalComparisons)
		results.AccuracyDelta = results.ReplayAccuracy - results.OriginalAccuracy
	}

	if err := s.replayRepo.CreateComparisons(ctx, comparisons); err != nil {
		return nil, fmt.Errorf("failed to store comparisons: %w", err)
	}
	return results, nil
}

// Results returns the stored aggregate plus the per-target comparison rows
// of a completed run.
func (s *replayService) Results(ctx context.Context, id uint) (*entity.ReplayResults, []entity.ReplayComparison, error) {
	run, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if run.Status != entity.ReplayCompleted {
		return nil, nil, ErrReplayIncomplete
	}

	var results entity.ReplayResults
	if len(run.Results) > 0 {
		if err := json.Unmarshal(run.Results, &results); err != nil {
			return nil, nil, fmt.Errorf("failed to decode replay results: %w", err)
		}
	}
	comparisons, err := s.replayRepo.FindComparisons(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return &results, comparisons, nil
}

// Delete purges a run and every artifact tagged with it. Running runs must
// finish or fail first.
func (s *replayService) Delete(ctx context.Context, id uint) error {
	run, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if run.Status == entity.ReplayRunning {
		return ErrReplayActive
	}
	if err := s.replayRepo.DeleteCascade(ctx, id); err != nil {
		return err
	}
	s.log.Info("Replay run deleted", logger.Field("replay_run_id", id))
	return nil
}
