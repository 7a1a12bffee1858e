package service

import (
	"context"
	"testing"
	"time"

	"golang-prediction-engine/internal/engine/config"
	"golang-prediction-engine/internal/engine/dto"
	"golang-prediction-engine/internal/engine/repository"
	"golang-prediction-engine/internal/entity"
	"golang-prediction-engine/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type processorFixture struct {
	svc        SignalProcessor
	signals    *fakeSignalRepo
	predictors *fakePredictorRepo
	analysts   *fakeAnalystRepo
	learnings  *fakeLearningRepo
	assessor   *fakeAssessor
	feeds      *fakeFeedRepo
	ensemble   *fakeEnsemble
}

func newProcessorFixture() *processorFixture {
	cfg := &config.Config{Engine: config.Engine{
		WorkerID:     "test-worker",
		BatchSize:    20,
		ClaimTimeout: 30 * time.Minute,
		SignalTTL:    48 * time.Hour,
		PredictorTTL: 24 * time.Hour,
	}}
	signals := newFakeSignalRepo()
	predictors := newFakePredictorRepo()
	analysts := newFakeAnalystRepo()
	learnings := newFakeLearningRepo()
	assessor := &fakeAssessor{assessments: make(map[string]*dto.AnalystAssessment)}
	feeds := &fakeFeedRepo{}
	ensemble := &fakeEnsemble{decisions: make(map[string]*EnsembleDecision)}
	svc := NewSignalProcessor(cfg, logger.NewNop(), signals, predictors, analysts, learnings, assessor, feeds, ensemble)
	return &processorFixture{
		svc:        svc,
		signals:    signals,
		predictors: predictors,
		analysts:   analysts,
		learnings:  learnings,
		assessor:   assessor,
		feeds:      feeds,
		ensemble:   ensemble,
	}
}

func (f *processorFixture) seedAnalyst(slug string, tier entity.AnalystTier) *entity.Analyst {
	return f.analysts.add(entity.Analyst{
		Slug:          slug,
		Name:          slug,
		Perspective:   "perspective of " + slug,
		Tier:          tier,
		DefaultWeight: 1,
		IsEnabled:     true,
	})
}

func (f *processorFixture) seedPendingSignal(t *testing.T, targetID string) *entity.Signal {
	t.Helper()
	signal := &entity.Signal{
		TargetID:    targetID,
		UniverseID:  "us-tech",
		SourceID:    "news-rss",
		Content:     targetID + " moved on heavy volume",
		Direction:   entity.DirectionNeutral,
		DetectedAt:  time.Now().Add(-time.Hour),
		Disposition: entity.SignalPending,
	}
	require.NoError(t, f.signals.Create(context.Background(), signal))
	return signal
}

func TestSignalProcessor_DetectFromFeeds(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture()
	f.feeds.articles = []repository.FeedArticle{
		{Title: "AAPL beats earnings", Link: "https://example.com/a", PublishedAt: time.Now().Add(-time.Hour)},
		{Title: "AAPL raises guidance", Link: "https://example.com/b", PublishedAt: time.Now().Add(-2 * time.Hour)},
	}
	targets := []dto.FeedTarget{{TargetID: "AAPL", UniverseID: "us-tech", SourceID: "news-rss", FeedURL: "https://example.com/rss"}}

	created, err := f.svc.DetectFromFeeds(ctx, targets)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	// The same articles dedup by content hash on the next sweep.
	created, err = f.svc.DetectFromFeeds(ctx, targets)
	require.NoError(t, err)
	assert.Zero(t, created)

	pending, err := f.signals.FindPending(ctx, "us-tech", nil, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestSignalProcessor_ProcessSignal(t *testing.T) {
	ctx := context.Background()

	t.Run("creates predictors and skips neutral assessments", func(t *testing.T) {
		f := newProcessorFixture()
		f.seedAnalyst("momentum", entity.TierBronze)
		f.seedAnalyst("contrarian", entity.TierSilver)
		f.assessor.assessments["momentum"] = &dto.AnalystAssessment{
			Direction:  entity.DirectionBullish,
			Strength:   0.7,
			Confidence: 0.8,
			Reasoning:  "volume confirms the move",
		}
		// The contrarian stays neutral and produces no predictor.
		signal := f.seedPendingSignal(t, "AAPL")

		created, err := f.svc.ProcessSignal(ctx, signal, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, created)

		predictors, err := f.predictors.FindActiveByTarget(ctx, "AAPL", nil)
		require.NoError(t, err)
		require.Len(t, predictors, 1)
		assert.Equal(t, entity.DirectionBullish, predictors[0].Direction)
		assert.Equal(t, entity.TierBronze, predictors[0].Tier)
		assert.False(t, predictors[0].IsTest)

		stored, err := f.signals.FindByID(ctx, signal.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.SignalPredictorCreated, stored.Disposition)
		assert.Contains(t, string(stored.EvaluationResult), "predictors_created")
	})

	t.Run("all-neutral assessments reject the signal", func(t *testing.T) {
		f := newProcessorFixture()
		f.seedAnalyst("momentum", entity.TierBronze)
		signal := f.seedPendingSignal(t, "AAPL")

		created, err := f.svc.ProcessSignal(ctx, signal, nil)
		require.NoError(t, err)
		assert.Zero(t, created)

		stored, err := f.signals.FindByID(ctx, signal.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.SignalRejected, stored.Disposition)
		assert.Contains(t, string(stored.EvaluationResult), "no_actionable_assessments")
	})

	t.Run("no enabled analysts rejects the signal", func(t *testing.T) {
		f := newProcessorFixture()
		signal := f.seedPendingSignal(t, "AAPL")

		created, err := f.svc.ProcessSignal(ctx, signal, nil)
		require.NoError(t, err)
		assert.Zero(t, created)

		stored, err := f.signals.FindByID(ctx, signal.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.SignalRejected, stored.Disposition)
		assert.Contains(t, string(stored.EvaluationResult), "no_enabled_analysts")
	})

	t.Run("replay runs tag their predictors", func(t *testing.T) {
		f := newProcessorFixture()
		f.seedAnalyst("momentum", entity.TierBronze)
		f.assessor.assessments["momentum"] = &dto.AnalystAssessment{
			Direction: entity.DirectionBearish, Strength: 0.6, Confidence: 0.7,
		}
		signal := f.seedPendingSignal(t, "AAPL")

		runID := uint(7)
		created, err := f.svc.ProcessSignal(ctx, signal, &runID)
		require.NoError(t, err)
		assert.Equal(t, 1, created)

		tagged, err := f.predictors.FindActiveByTarget(ctx, "AAPL", &runID)
		require.NoError(t, err)
		require.Len(t, tagged, 1)
		assert.True(t, tagged[0].IsTest)

		// Production reads never see replay artifacts.
		untagged, err := f.predictors.FindActiveByTarget(ctx, "AAPL", nil)
		require.NoError(t, err)
		assert.Empty(t, untagged)
	})
}

func TestSignalProcessor_ProcessBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("lost claims are skipped without error", func(t *testing.T) {
		f := newProcessorFixture()
		f.seedAnalyst("momentum", entity.TierBronze)
		f.assessor.assessments["momentum"] = &dto.AnalystAssessment{
			Direction: entity.DirectionBullish, Strength: 0.7, Confidence: 0.8,
		}

		f.seedPendingSignal(t, "AAPL")
		f.seedPendingSignal(t, "MSFT")
		lost1 := f.seedPendingSignal(t, "AAPL")
		lost2 := f.seedPendingSignal(t, "GOOG")
		f.signals.loseClaims[lost1.ID] = true
		f.signals.loseClaims[lost2.ID] = true

		result, err := f.svc.ProcessBatch(ctx, "us-tech", nil, 0, "")
		require.NoError(t, err)
		assert.Equal(t, 2, result.Processed)
		assert.Equal(t, 2, result.Skipped)
		assert.Zero(t, result.Failed)

		// One consensus attempt per target that gained predictors.
		assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, f.ensemble.calls)
	})

	t.Run("target filter narrows the batch", func(t *testing.T) {
		f := newProcessorFixture()
		f.seedAnalyst("momentum", entity.TierBronze)
		f.seedPendingSignal(t, "AAPL")
		f.seedPendingSignal(t, "MSFT")

		result, err := f.svc.ProcessBatch(ctx, "us-tech", []string{"AAPL"}, 10, "worker-2")
		require.NoError(t, err)
		assert.Equal(t, 1, result.Processed)
	})
}

func TestSignalProcessor_ReleaseStaleClaims(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture()

	stale := f.seedPendingSignal(t, "AAPL")
	_, claimed, err := f.signals.Claim(ctx, stale.ID, "crashed-worker")
	require.NoError(t, err)
	require.True(t, claimed)
	past := time.Now().Add(-time.Hour)
	f.signals.signals[stale.ID].ProcessingStartedAt = &past

	fresh := f.seedPendingSignal(t, "MSFT")
	_, claimed, err = f.signals.Claim(ctx, fresh.ID, "live-worker")
	require.NoError(t, err)
	require.True(t, claimed)

	released, err := f.svc.ReleaseStaleClaims(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)

	stored, err := f.signals.FindByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SignalPending, stored.Disposition)
	assert.Empty(t, stored.ProcessingWorker)

	held, err := f.signals.FindByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SignalProcessing, held.Disposition)
}

func TestSignalProcessor_ExpireSignals(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture()

	old := f.seedPendingSignal(t, "AAPL")
	f.signals.signals[old.ID].DetectedAt = time.Now().Add(-72 * time.Hour)
	f.seedPendingSignal(t, "MSFT")

	require.NoError(t, f.predictors.Create(ctx, &entity.Predictor{
		TargetID:  "AAPL",
		Status:    entity.PredictorActive,
		ExpiresAt: time.Now().Add(-time.Hour),
	}))
	require.NoError(t, f.predictors.Create(ctx, &entity.Predictor{
		TargetID:  "MSFT",
		Status:    entity.PredictorActive,
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	signals, predictors, err := f.svc.ExpireSignals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), signals)
	assert.Equal(t, int64(1), predictors)

	stored, err := f.signals.FindByID(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SignalExpired, stored.Disposition)
}
