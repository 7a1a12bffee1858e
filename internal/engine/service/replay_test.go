package service

import (
	"context"
	"testing"
	"time"

	"golang-prediction-engine/internal/engine/dto"
	"golang-prediction-engine/internal/entity"
	"golang-prediction-engine/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProcessor records replayed signals and reports one predictor each.
type fakeProcessor struct {
	processed []uint
}

func (f *fakeProcessor) DetectFromFeeds(ctx context.Context, targets []dto.FeedTarget) (int, error) {
	return 0, nil
}

func (f *fakeProcessor) ProcessBatch(ctx context.Context, universeID string, targetIDs []string, batchSize int, workerID string) (*dto.BatchResult, error) {
	return &dto.BatchResult{}, nil
}

func (f *fakeProcessor) ProcessSignal(ctx context.Context, signal *entity.Signal, replayRunID *uint) (int, error) {
	f.processed = append(f.processed, signal.ID)
	return 1, nil
}

func (f *fakeProcessor) ReleaseStaleClaims(ctx context.Context) (int64, error) { return 0, nil }

func (f *fakeProcessor) ExpireSignals(ctx context.Context) (int64, int64, error) { return 0, 0, nil }

type replayFixture struct {
	svc         ReplayService
	replays     *fakeReplayRepo
	signals     *fakeSignalRepo
	predictors  *fakePredictorRepo
	predictions *fakePredictionRepo
	processor   *fakeProcessor
	ensemble    *fakeEnsemble
}

func newReplayFixture() *replayFixture {
	replays := newFakeReplayRepo()
	signals := newFakeSignalRepo()
	predictors := newFakePredictorRepo()
	predictions := newFakePredictionRepo()
	processor := &fakeProcessor{}
	ensemble := &fakeEnsemble{decisions: make(map[string]*EnsembleDecision)}
	svc := NewReplayService(logger.NewNop(), replays, signals, predictors, predictions, processor, ensemble, nil)
	return &replayFixture{
		svc:         svc,
		replays:     replays,
		signals:     signals,
		predictors:  predictors,
		predictions: predictions,
		processor:   processor,
		ensemble:    ensemble,
	}
}

func pastReplayRequest(depth entity.RollbackDepth) ReplayCreateRequest {
	return ReplayCreateRequest{
		UniverseID:    "us-tech",
		RollbackTo:    time.Now().Add(-72 * time.Hour),
		RollbackDepth: depth,
		CreatedBy:     "analyst",
	}
}

func TestReplayService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a pending run", func(t *testing.T) {
		f := newReplayFixture()
		run, err := f.svc.Create(ctx, pastReplayRequest(entity.RollbackPredictions))
		require.NoError(t, err)
		assert.NotZero(t, run.ID)
		assert.Equal(t, entity.ReplayPending, run.Status)
	})

	t.Run("universe is required", func(t *testing.T) {
		f := newReplayFixture()
		req := pastReplayRequest(entity.RollbackPredictions)
		req.UniverseID = ""
		_, err := f.svc.Create(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidValue)
	})

	t.Run("rollback time must be in the past", func(t *testing.T) {
		f := newReplayFixture()
		req := pastReplayRequest(entity.RollbackPredictions)
		req.RollbackTo = time.Now().Add(time.Hour)
		_, err := f.svc.Create(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidValue)

		req.RollbackTo = time.Time{}
		_, err = f.svc.Create(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidValue)
	})

	t.Run("unknown depth is rejected", func(t *testing.T) {
		f := newReplayFixture()
		req := pastReplayRequest("everything")
		_, err := f.svc.Create(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidValue)
	})
}

func TestReplayService_Preview(t *testing.T) {
	ctx := context.Background()
	cutoff := time.Now().Add(-72 * time.Hour)

	seed := func(f *replayFixture) {
		// One signal inside the window and one after the cutoff.
		require.NoError(t, f.signals.Create(ctx, &entity.Signal{
			TargetID: "AAPL", UniverseID: "us-tech", DetectedAt: cutoff.Add(-time.Hour),
		}))
		require.NoError(t, f.signals.Create(ctx, &entity.Signal{
			TargetID: "AAPL", UniverseID: "us-tech", DetectedAt: cutoff.Add(time.Hour),
		}))
		require.NoError(t, f.predictors.Create(ctx, &entity.Predictor{
			TargetID: "AAPL", CreatedAt: cutoff.Add(2 * time.Hour),
		}))
		f.predictions.add(entity.Prediction{
			TargetID: "AAPL", UniverseID: "us-tech", PredictedAt: cutoff.Add(3 * time.Hour),
		})
	}

	t.Run("signal depth previews four tables", func(t *testing.T) {
		f := newReplayFixture()
		seed(f)
		run, err := f.svc.Create(ctx, pastReplayRequest(entity.RollbackSignals))
		require.NoError(t, err)

		counts, err := f.svc.Preview(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, counts, 4)
		assert.Equal(t, "signals", counts[0].Table)
		assert.Equal(t, 1, counts[0].RowCount)
		assert.Equal(t, "predictors", counts[1].Table)
		assert.Equal(t, 1, counts[1].RowCount)
		assert.Equal(t, "predictions", counts[2].Table)
		assert.Equal(t, "prediction_snapshots", counts[3].Table)
	})

	t.Run("prediction depth previews two tables", func(t *testing.T) {
		f := newReplayFixture()
		seed(f)
		run, err := f.svc.Create(ctx, pastReplayRequest(entity.RollbackPredictions))
		require.NoError(t, err)

		counts, err := f.svc.Preview(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, counts, 2)
		assert.Equal(t, "predictions", counts[0].Table)
		assert.Equal(t, 1, counts[0].RowCount)
	})
}

func TestReplayService_Run(t *testing.T) {
	ctx := context.Background()
	cutoff := time.Now().Add(-72 * time.Hour)

	t.Run("prediction depth reruns the ensemble per target", func(t *testing.T) {
		f := newReplayFixture()
		run, err := f.svc.Create(ctx, pastReplayRequest(entity.RollbackPredictions))
		require.NoError(t, err)

		outcome := 0.03
		f.predictions.add(entity.Prediction{
			TargetID: "AAPL", UniverseID: "us-tech",
			Direction:   entity.DirectionBullish,
			Confidence:  0.8,
			PredictedAt: cutoff.Add(time.Hour),
			Status:      entity.PredictionResolved,
			OutcomeValue: &outcome,
		})
		// The replay's own decision for the same target, tagged with the run.
		f.predictions.add(entity.Prediction{
			TargetID: "AAPL", UniverseID: "us-tech",
			Direction:   entity.DirectionBearish,
			Confidence:  0.6,
			PredictedAt: time.Now(),
			Status:      entity.PredictionActive,
			ReplayRunID: &run.ID,
		})

		results, err := f.svc.Run(ctx, run.ID)
		require.NoError(t, err)

		assert.Equal(t, []string{"AAPL"}, f.ensemble.calls)
		assert.Equal(t, 1, results.TotalComparisons)
		assert.Zero(t, results.DirectionMatches)
		assert.InDelta(t, 1.0, results.OriginalAccuracy, 1e-9)
		assert.InDelta(t, 0.0, results.ReplayAccuracy, 1e-9)
		assert.InDelta(t, -1.0, results.AccuracyDelta, 1e-9)

		stored, err := f.svc.Get(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.ReplayCompleted, stored.Status)

		comparisons, err := f.replays.FindComparisons(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, comparisons, 1)
		assert.False(t, comparisons[0].DirectionMatched)
		assert.InDelta(t, -0.2, comparisons[0].ConfidenceDelta, 1e-9)
	})

	t.Run("signal depth reprocesses the window", func(t *testing.T) {
		f := newReplayFixture()
		run, err := f.svc.Create(ctx, pastReplayRequest(entity.RollbackSignals))
		require.NoError(t, err)

		inWindow := &entity.Signal{TargetID: "AAPL", UniverseID: "us-tech", DetectedAt: cutoff.Add(-time.Hour)}
		require.NoError(t, f.signals.Create(ctx, inWindow))
		require.NoError(t, f.signals.Create(ctx, &entity.Signal{
			TargetID: "MSFT", UniverseID: "us-tech", DetectedAt: cutoff.Add(time.Hour),
		}))

		_, err = f.svc.Run(ctx, run.ID)
		require.NoError(t, err)

		assert.Equal(t, []uint{inWindow.ID}, f.processor.processed)
		assert.Equal(t, []string{"AAPL"}, f.ensemble.calls)
	})

	t.Run("one running replay per universe", func(t *testing.T) {
		f := newReplayFixture()
		blocker, err := f.svc.Create(ctx, pastReplayRequest(entity.RollbackPredictions))
		require.NoError(t, err)
		ok, err := f.replays.TransitionStatus(ctx, blocker.ID, entity.ReplayPending, entity.ReplayRunning)
		require.NoError(t, err)
		require.True(t, ok)

		run, err := f.svc.Create(ctx, pastReplayRequest(entity.RollbackPredictions))
		require.NoError(t, err)

		_, err = f.svc.Run(ctx, run.ID)
		assert.ErrorIs(t, err, ErrReplayRunning)
	})

	t.Run("only pending runs start", func(t *testing.T) {
		f := newReplayFixture()
		run, err := f.svc.Create(ctx, pastReplayRequest(entity.RollbackPredictions))
		require.NoError(t, err)

		_, err = f.svc.Run(ctx, run.ID)
		require.NoError(t, err)

		_, err = f.svc.Run(ctx, run.ID)
		assert.ErrorIs(t, err, ErrReplayNotPending)
	})

	t.Run("missing run is not found", func(t *testing.T) {
		f := newReplayFixture()
		_, err := f.svc.Run(ctx, 404)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestReplayService_Results(t *testing.T) {
	ctx := context.Background()

	t.Run("pending run has no results yet", func(t *testing.T) {
		f := newReplayFixture()
		run, err := f.svc.Create(ctx, pastReplayRequest(entity.RollbackPredictions))
		require.NoError(t, err)

		_, _, err = f.svc.Results(ctx, run.ID)
		assert.ErrorIs(t, err, ErrReplayIncomplete)
	})

	t.Run("completed run returns aggregate and rows", func(t *testing.T) {
		f := newReplayFixture()
		run, err := f.svc.Create(ctx, pastReplayRequest(entity.RollbackPredictions))
		require.NoError(t, err)

		cutoff := time.Now().Add(-72 * time.Hour)
		f.predictions.add(entity.Prediction{
			TargetID: "AAPL", UniverseID: "us-tech",
			Direction:   entity.DirectionBullish,
			PredictedAt: cutoff.Add(time.Hour),
			Status:      entity.PredictionActive,
		})
		f.predictions.add(entity.Prediction{
			TargetID: "AAPL", UniverseID: "us-tech",
			Direction:   entity.DirectionBullish,
			PredictedAt: time.Now(),
			Status:      entity.PredictionActive,
			ReplayRunID: &run.ID,
		})

		_, err = f.svc.Run(ctx, run.ID)
		require.NoError(t, err)

		results, comparisons, err := f.svc.Results(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, results.TotalComparisons)
		assert.Equal(t, 1, results.DirectionMatches)
		require.Len(t, comparisons, 1)
		assert.True(t, comparisons[0].DirectionMatched)
	})
}

func TestReplayService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("running runs cannot be deleted", func(t *testing.T) {
		f := newReplayFixture()
		run, err := f.svc.Create(ctx, pastReplayRequest(entity.RollbackPredictions))
		require.NoError(t, err)
		ok, err := f.replays.TransitionStatus(ctx, run.ID, entity.ReplayPending, entity.ReplayRunning)
		require.NoError(t, err)
		require.True(t, ok)

		assert.ErrorIs(t, f.svc.Delete(ctx, run.ID), ErrReplayActive)
	})

	t.Run("delete purges the run and its comparisons", func(t *testing.T) {
		f := newReplayFixture()
		run, err := f.svc.Create(ctx, pastReplayRequest(entity.RollbackPredictions))
		require.NoError(t, err)
		require.NoError(t, f.replays.CreateComparisons(ctx, []entity.ReplayComparison{
			{ReplayRunID: run.ID, TargetID: "AAPL"},
		}))

		require.NoError(t, f.svc.Delete(ctx, run.ID))

		_, err = f.svc.Get(ctx, run.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		comparisons, err := f.replays.FindComparisons(ctx, run.ID)
		require.NoError(t, err)
		assert.Empty(t, comparisons)
	})

	t.Run("missing run is not found", func(t *testing.T) {
		f := newReplayFixture()
		assert.ErrorIs(t, f.svc.Delete(ctx, 404), ErrNotFound)
	})
}
