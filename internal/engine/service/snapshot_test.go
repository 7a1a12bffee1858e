package service

import (
	"context"
	"encoding/json"
	"testing"

	"golang-prediction-engine/internal/entity"
	"golang-prediction-engine/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshotFixture struct {
	svc         SnapshotService
	snapshots   *fakeSnapshotRepo
	predictions *fakePredictionRepo
	predictors  *fakePredictorRepo
	signals     *fakeSignalRepo
}

func newSnapshotFixture() *snapshotFixture {
	snapshots := newFakeSnapshotRepo()
	predictions := newFakePredictionRepo()
	predictors := newFakePredictorRepo()
	signals := newFakeSignalRepo()
	svc := NewSnapshotService(logger.NewNop(), snapshots, predictions, predictors, signals)
	return &snapshotFixture{svc: svc, snapshots: snapshots, predictions: predictions, predictors: predictors, signals: signals}
}

// seedSnapshot stores a prediction with a snapshot built from the given
// contributors and tier set.
func (f *snapshotFixture) seedSnapshot(t *testing.T, direction entity.Direction, contributors []entity.SnapshotContributor, tiers []entity.AnalystTier) uint {
	t.Helper()
	p := f.predictions.add(entity.Prediction{
		TargetID:   "AAPL",
		UniverseID: "us-tech",
		Direction:  direction,
		Status:     entity.PredictionActive,
	})
	rawContributors, err := json.Marshal(contributors)
	require.NoError(t, err)
	rawEnsemble, err := json.Marshal(entity.SnapshotLLMEnsemble{TiersUsed: tiers})
	require.NoError(t, err)
	require.NoError(t, f.snapshots.Create(context.Background(), &entity.PredictionSnapshot{
		PredictionID: p.ID,
		Contributors: rawContributors,
		LLMEnsemble:  rawEnsemble,
	}))
	return p.ID
}

func TestSnapshotService_Get(t *testing.T) {
	ctx := context.Background()
	f := newSnapshotFixture()
	id := f.seedSnapshot(t, entity.DirectionBullish, []entity.SnapshotContributor{
		{PredictorID: 1, AnalystID: 1, Direction: entity.DirectionBullish, Strength: 0.8},
	}, []entity.AnalystTier{entity.TierBronze})

	snapshot, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, snapshot.PredictionID)

	_, err = f.svc.Get(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotService_DeepDive(t *testing.T) {
	ctx := context.Background()

	t.Run("assembles the full chain", func(t *testing.T) {
		f := newSnapshotFixture()

		signal := &entity.Signal{TargetID: "AAPL", UniverseID: "us-tech", Content: "earnings beat"}
		require.NoError(t, f.signals.Create(ctx, signal))
		pred := &entity.Predictor{SignalID: signal.ID, AnalystID: 1, TargetID: "AAPL", Status: entity.PredictorConsumed}
		require.NoError(t, f.predictors.Create(ctx, pred))

		id := f.seedSnapshot(t, entity.DirectionBullish, []entity.SnapshotContributor{
			{PredictorID: pred.ID, SignalID: signal.ID, AnalystID: 1, Direction: entity.DirectionBullish, Strength: 0.8},
		}, []entity.AnalystTier{entity.TierBronze})

		dive, err := f.svc.DeepDive(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, dive.Prediction.ID)
		require.Len(t, dive.Contributors, 1)
		require.Len(t, dive.Predictors, 1)
		assert.Equal(t, pred.ID, dive.Predictors[0].ID)
		require.Len(t, dive.Signals, 1)
		assert.Equal(t, "earnings beat", dive.Signals[0].Content)
	})

	t.Run("tolerates a missing referenced signal", func(t *testing.T) {
		f := newSnapshotFixture()
		id := f.seedSnapshot(t, entity.DirectionBullish, []entity.SnapshotContributor{
			{PredictorID: 1, SignalID: 999, AnalystID: 1, Direction: entity.DirectionBullish, Strength: 0.8},
		}, []entity.AnalystTier{entity.TierBronze})

		dive, err := f.svc.DeepDive(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, dive.Signals)
	})

	t.Run("missing prediction is not found", func(t *testing.T) {
		f := newSnapshotFixture()
		_, err := f.svc.DeepDive(ctx, 404)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSnapshotService_Compare(t *testing.T) {
	ctx := context.Background()

	bullish := []entity.SnapshotContributor{
		{PredictorID: 1, AnalystID: 1, Direction: entity.DirectionBullish, Strength: 0.9, Weight: 1},
		{PredictorID: 2, AnalystID: 2, Direction: entity.DirectionBullish, Strength: 0.3, Weight: 1},
	}

	t.Run("identical snapshots report no diff", func(t *testing.T) {
		f := newSnapshotFixture()
		a := f.seedSnapshot(t, entity.DirectionBullish, bullish, []entity.AnalystTier{entity.TierBronze})
		b := f.seedSnapshot(t, entity.DirectionBullish, bullish, []entity.AnalystTier{entity.TierBronze})

		result, err := f.svc.Compare(ctx, []uint{a, b})
		require.NoError(t, err)
		assert.Len(t, result.Entries, 2)
		assert.False(t, result.Diff.DirectionChanged)
		assert.False(t, result.Diff.DominantAnalystChanged)
		assert.False(t, result.Diff.TierSetChanged)
	})

	t.Run("flags every changed dimension", func(t *testing.T) {
		f := newSnapshotFixture()
		a := f.seedSnapshot(t, entity.DirectionBullish, bullish, []entity.AnalystTier{entity.TierBronze})
		b := f.seedSnapshot(t, entity.DirectionBearish, []entity.SnapshotContributor{
			{PredictorID: 3, AnalystID: 2, Direction: entity.DirectionBearish, Strength: 0.9, Weight: 1},
		}, []entity.AnalystTier{entity.TierBronze, entity.TierSilver})

		result, err := f.svc.Compare(ctx, []uint{a, b})
		require.NoError(t, err)
		assert.True(t, result.Diff.DirectionChanged)
		assert.True(t, result.Diff.DominantAnalystChanged)
		assert.True(t, result.Diff.TierSetChanged)
	})

	t.Run("bounds are enforced", func(t *testing.T) {
		f := newSnapshotFixture()
		_, err := f.svc.Compare(ctx, []uint{1})
		assert.ErrorIs(t, err, ErrInvalidValue)

		ids := make([]uint, 11)
		for i := range ids {
			ids[i] = uint(i + 1)
		}
		_, err = f.svc.Compare(ctx, ids)
		assert.ErrorIs(t, err, ErrInvalidValue)
	})

	t.Run("missing prediction is not found", func(t *testing.T) {
		f := newSnapshotFixture()
		a := f.seedSnapshot(t, entity.DirectionBullish, bullish, []entity.AnalystTier{entity.TierBronze})

		_, err := f.svc.Compare(ctx, []uint{a, 404})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("prediction without snapshot is not found", func(t *testing.T) {
		f := newSnapshotFixture()
		a := f.seedSnapshot(t, entity.DirectionBullish, bullish, []entity.AnalystTier{entity.TierBronze})
		bare := f.predictions.add(entity.Prediction{TargetID: "MSFT", UniverseID: "us-tech", Status: entity.PredictionActive})

		_, err := f.svc.Compare(ctx, []uint{a, bare.ID})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
