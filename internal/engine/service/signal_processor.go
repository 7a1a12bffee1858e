package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang-prediction-engine/internal/engine/config"
	"golang-prediction-engine/internal/engine/dto"
	"golang-prediction-engine/internal/engine/repository"
	"golang-prediction-engine/internal/entity"
	"golang-prediction-engine/pkg/logger"
)

// SignalProcessor runs the claim-based signal pipeline: detect, claim,
// assess per analyst, materialize predictors.
type SignalProcessor interface {
	DetectFromFeeds(ctx context.Context, targets []dto.FeedTarget) (int, error)
	ProcessBatch(ctx context.Context, universeID string, targetIDs []string, batchSize int, workerID string) (*dto.BatchResult, error)
	ProcessSignal(ctx context.Context, signal *entity.Signal, replayRunID *uint) (int, error)
	ReleaseStaleClaims(ctx context.Context) (int64, error)
	ExpireSignals(ctx context.Context) (int64, int64, error)
}

// NewSignalProcessor creates a new signal processor.
func NewSignalProcessor(
	cfg *config.Config,
	log *logger.Logger,
	signalRepo repository.SignalRepository,
	predictorRepo repository.PredictorRepository,
	analystRepo repository.AnalystRepository,
	learningRepo repository.LearningRepository,
	assessorRepo repository.AssessorRepository,
	feedRepo repository.FeedRepository,
	ensemble EnsembleEngine,
) SignalProcessor {
	return &signalProcessor{
		cfg:           cfg,
		log:           log,
		signalRepo:    signalRepo,
		predictorRepo: predictorRepo,
		analystRepo:   analystRepo,
		learningRepo:  learningRepo,
		assessorRepo:  assessorRepo,
		feedRepo:      feedRepo,
		ensemble:      ensemble,
	}
}

type signalProcessor struct {
	cfg           *config.Config
	log           *logger.Logger
	signalRepo    repository.SignalRepository
	predictorRepo repository.PredictorRepository
	analystRepo   repository.AnalystRepository
	learningRepo  repository.LearningRepository
	assessorRepo  repository.AssessorRepository
	feedRepo      repository.FeedRepository
	ensemble      EnsembleEngine
}

// DetectFromFeeds pulls each target's feed and creates pending signals for
// articles not seen before. Returns the number of signals created.
func (s *signalProcessor) DetectFromFeeds(ctx context.Context, targets []dto.FeedTarget) (int, error) {
	created := 0
	for _, target := range targets {
		articles, err := s.feedRepo.FetchArticles(ctx, target, s.cfg.Engine.SignalTTL)
		if err != nil {
			s.log.Error("Failed to fetch feed",
				logger.ErrorField(err),
				logger.StringField("target_id", target.TargetID),
				logger.StringField("feed_url", target.FeedURL))
			continue
		}

		for _, article := range articles {
			hash := contentHash(target.TargetID, article.Link, article.Title)
			exists, err := s.signalRepo.ExistsByContentHash(ctx, hash)
			if err != nil {
				s.log.Error("Failed to check signal dedup",
					logger.ErrorField(err), logger.StringField("target_id", target.TargetID))
				continue
			}
			if exists {
				continue
			}

			signal := &entity.Signal{
				TargetID:    target.TargetID,
				UniverseID:  target.UniverseID,
				SourceID:    target.SourceID,
				Content:     article.Title + "\n\n" + article.Content,
				ContentHash: hash,
				Direction:   entity.DirectionNeutral,
				DetectedAt:  article.PublishedAt,
				Disposition: entity.SignalPending,
			}
			if err := s.signalRepo.Create(ctx, signal); err != nil {
				s.log.Error("Failed to create signal",
					logger.ErrorField(err), logger.StringField("target_id", target.TargetID))
				continue
			}
			created++
		}
	}

	s.log.Info("Signal detection sweep finished", logger.IntField("created", created))
	return created, nil
}

func contentHash(targetID, link, title string) string {
	sum := sha256.Sum256([]byte(targetID + "|" + link + "|" + title))
	return hex.EncodeToString(sum[:])
}

// ProcessBatch enumerates pending signals, claims each, and fully processes
// the claims this worker wins. Lost claims are skipped, per-signal failures
// are counted without reverting the claim.
func (s *signalProcessor) ProcessBatch(ctx context.Context, universeID string, targetIDs []string, batchSize int, workerID string) (*dto.BatchResult, error) {
	if batchSize <= 0 {
		batchSize = s.cfg.Engine.BatchSize
	}
	if workerID == "" {
		workerID = s.cfg.Engine.WorkerID
	}

	pending, err := s.signalRepo.FindPending(ctx, universeID, targetIDs, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending signals: %w", err)
	}

	result := &dto.BatchResult{}
	touchedTargets := make(map[string]bool)
	for i := range pending {
		signal, claimed, err := s.signalRepo.Claim(ctx, pending[i].ID, workerID)
		if err != nil {
			result.Failed++
			s.log.Error("Failed to claim signal",
				logger.ErrorField(err), logger.Field("signal_id", pending[i].ID))
			continue
		}
		if !claimed {
			result.Skipped++
			continue
		}

		if _, err := s.ProcessSignal(ctx, signal, nil); err != nil {
			result.Failed++
			s.log.Error("Failed to process signal",
				logger.ErrorField(err), logger.Field("signal_id", signal.ID))
			continue
		}
		result.Processed++
		touchedTargets[signal.TargetID] = true
	}

	// Every target that gained predictors gets one consensus attempt.
	for targetID := range touchedTargets {
		if _, err := s.ensemble.ProcessTarget(ctx, universeID, targetID, nil); err != nil {
			s.log.Error("Ensemble failed after batch",
				logger.ErrorField(err), logger.StringField("target_id", targetID))
		}
	}

	s.log.Info("Signal batch finished",
		logger.StringField("universe_id", universeID),
		logger.IntField("processed", result.Processed),
		logger.IntField("skipped", result.Skipped),
		logger.IntField("failed", result.Failed))
	return result, nil
}

// ProcessSignal runs the per-analyst assessment pipeline for one claimed
// signal and finalizes its disposition. Returns the number of predictors
// created. Replay runs pass their id so the artifacts carry the tag.
func (s *signalProcessor) ProcessSignal(ctx context.Context, signal *entity.Signal, replayRunID *uint) (int, error) {
	analysts, err := s.analystRepo.FindEnabledForTarget(ctx, "", signal.UniverseID, signal.TargetID)
	if err != nil {
		return 0, fmt.Errorf("failed to load analysts: %w", err)
	}
	if len(analysts) == 0 {
		evaluation, _ := json.Marshal(map[string]string{"reason": "no_enabled_analysts"})
		if err := s.signalRepo.Finalize(ctx, signal.ID, entity.SignalRejected, evaluation); err != nil {
			return 0, err
		}
		return 0, nil
	}

	learningTitles, err := s.activeLearningTitles(ctx, signal)
	if err != nil {
		s.log.Warn("Failed to load learnings for assessment context", logger.ErrorField(err))
	}

	created := 0
	var assessErrs int
	for _, analyst := range analysts {
		assessment, err := s.assessorRepo.Assess(ctx, dto.AssessmentRequest{
			AnalystSlug:      analyst.Slug,
			Perspective:      analyst.Perspective,
			Tier:             analyst.Tier,
			TierInstructions: tierInstructionsFor(analyst, analyst.Tier),
			TargetID:         signal.TargetID,
			SignalContent:    signal.Content,
			SignalDirection:  signal.Direction,
			LearningsApplied: learningTitles,
		})
		if err != nil {
			assessErrs++
			s.log.Error("Analyst assessment failed",
				logger.ErrorField(err),
				logger.StringField("analyst", analyst.Slug),
				logger.Field("signal_id", signal.ID))
			continue
		}
		if assessment.Direction == entity.DirectionNeutral {
			continue
		}

		keyFactors, _ := json.Marshal(assessment.KeyFactors)
		risks, _ := json.Marshal(assessment.Risks)
		predictor := &entity.Predictor{
			SignalID:    signal.ID,
			AnalystID:   analyst.ID,
			TargetID:    signal.TargetID,
			Tier:        analyst.Tier,
			Direction:   assessment.Direction,
			Strength:    assessment.Strength,
			Confidence:  assessment.Confidence,
			Reasoning:   assessment.Reasoning,
			KeyFactors:  keyFactors,
			Risks:       risks,
			Status:      entity.PredictorActive,
			ExpiresAt:   time.Now().Add(s.cfg.Engine.PredictorTTL),
			ReplayRunID: replayRunID,
			IsTest:      replayRunID != nil,
		}
		if err := s.predictorRepo.Create(ctx, predictor); err != nil {
			assessErrs++
			s.log.Error("Failed to create predictor",
				logger.ErrorField(err), logger.Field("signal_id", signal.ID))
			continue
		}
		created++
	}

	disposition := entity.SignalPredictorCreated
	reason := "predictors_created"
	if created == 0 {
		disposition = entity.SignalRejected
		reason = "no_actionable_assessments"
	}
	evaluation, _ := json.Marshal(map[string]interface{}{
		"reason":             reason,
		"predictors_created": created,
		"analysts_consulted": len(analysts),
		"assessment_errors":  assessErrs,
	})
	if err := s.signalRepo.Finalize(ctx, signal.ID, disposition, evaluation); err != nil {
		return created, fmt.Errorf("failed to finalize signal: %w", err)
	}
	return created, nil
}

func (s *signalProcessor) activeLearningTitles(ctx context.Context, signal *entity.Signal) ([]string, error) {
	learnings, err := s.learningRepo.FindActiveForTarget(ctx, "", signal.UniverseID, signal.TargetID, false)
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(learnings))
	for _, l := range learnings {
		titles = append(titles, l.Title)
	}
	return titles, nil
}

func tierInstructionsFor(analyst entity.Analyst, tier entity.AnalystTier) string {
	if len(analyst.TierInstructions) == 0 {
		return ""
	}
	var byTier map[string]string
	if err := json.Unmarshal(analyst.TierInstructions, &byTier); err != nil {
		return ""
	}
	return byTier[string(tier)]
}

// ReleaseStaleClaims reverts claims held past the timeout so crashed workers
// never strand a signal in processing.
func (s *signalProcessor) ReleaseStaleClaims(ctx context.Context) (int64, error) {
	olderThan := time.Now().Add(-s.cfg.Engine.ClaimTimeout)
	released, err := s.signalRepo.ReleaseStaleClaims(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	if released > 0 {
		s.log.Warn("Released stale signal claims", logger.Field("count", released))
	}
	return released, nil
}

// ExpireSignals ages out stale pending signals and predictors past their TTL.
func (s *signalProcessor) ExpireSignals(ctx context.Context) (int64, int64, error) {
	now := time.Now()
	signals, err := s.signalRepo.ExpirePending(ctx, now.Add(-s.cfg.Engine.SignalTTL))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to expire signals: %w", err)
	}
	predictors, err := s.predictorRepo.ExpireActive(ctx, now)
	if err != nil {
		return signals, 0, fmt.Errorf("failed to expire predictors: %w", err)
	}
	if signals > 0 || predictors > 0 {
		s.log.Info("Expiry sweep finished",
			logger.Field("signals_expired", signals),
			logger.Field("predictors_expired", predictors))
	}
	return signals, predictors, nil
}
