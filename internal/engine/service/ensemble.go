package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang-prediction-engine/internal/engine/config"
	"golang-prediction-engine/internal/engine/dto"
	"golang-prediction-engine/internal/engine/repository"
	"golang-prediction-engine/internal/entity"
	"golang-prediction-engine/pkg/logger"
	"golang-prediction-engine/pkg/telegram"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EnsembleEngine turns the active predictors for a target into a single
// gated decision, recording lineage for every prediction it creates.
type EnsembleEngine interface {
	ProcessTarget(ctx context.Context, universeID, targetID string, replayRunID *uint) (*EnsembleDecision, error)
}

// EnsembleDecision is the outcome of one consensus computation. Prediction
// is nil when the threshold policy rejected the ensemble.
type EnsembleDecision struct {
	Prediction *entity.Prediction      `json:"prediction,omitempty"`
	Ensemble   dto.EnsembleResult      `json:"ensemble"`
	Threshold  dto.ThresholdEvaluation `json:"threshold"`
}

// NewEnsembleEngine creates a new consensus engine.
func NewEnsembleEngine(
	cfg *config.Config,
	log *logger.Logger,
	db *gorm.DB,
	predictorRepo repository.PredictorRepository,
	predictionRepo repository.PredictionRepository,
	snapshotRepo repository.SnapshotRepository,
	analystRepo repository.AnalystRepository,
	learningRepo repository.LearningRepository,
	signalRepo repository.SignalRepository,
	notifier telegram.Notifier,
) EnsembleEngine {
	return &ensembleEngine{
		cfg:            cfg,
		log:            log,
		db:             db,
		predictorRepo:  predictorRepo,
		predictionRepo: predictionRepo,
		snapshotRepo:   snapshotRepo,
		analystRepo:    analystRepo,
		learningRepo:   learningRepo,
		signalRepo:     signalRepo,
		notifier:       notifier,
	}
}

type ensembleEngine struct {
	cfg            *config.Config
	log            *logger.Logger
	db             *gorm.DB
	predictorRepo  repository.PredictorRepository
	predictionRepo repository.PredictionRepository
	snapshotRepo   repository.SnapshotRepository
	analystRepo    repository.AnalystRepository
	learningRepo   repository.LearningRepository
	signalRepo     repository.SignalRepository
	notifier       telegram.Notifier

	// Two ensembles racing on the same target is the hazard; everything
	// else is already serialized by the claim and consume guards.
	targetLocks sync.Map
}

func (e *ensembleEngine) lockTarget(targetID string) *sync.Mutex {
	mu, _ := e.targetLocks.LoadOrStore(targetID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// ProcessTarget computes the tiered consensus for a target and creates a
// prediction when the threshold policy passes. Replay runs pass their id so
// only their own artifacts are read and written.
func (e *ensembleEngine) ProcessTarget(ctx context.Context, universeID, targetID string, replayRunID *uint) (*EnsembleDecision, error) {
	mu := e.lockTarget(targetID)
	mu.Lock()
	defer mu.Unlock()

	startedAt := time.Now()

	predictors, err := e.predictorRepo.FindActiveByTarget(ctx, targetID, replayRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active predictors: %w", err)
	}
	if len(predictors) == 0 {
		return &EnsembleDecision{
			Threshold: dto.ThresholdEvaluation{
				RequiredPredictors: e.cfg.Engine.MinPredictors,
				FailedDimension:    "predictor_count",
			},
		}, nil
	}

	analysts, err := e.analystRepo.FindEnabledForTarget(ctx, "", universeID, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load analysts: %w", err)
	}
	analystByID := make(map[uint]entity.Analyst, len(analysts))
	for _, a := range analysts {
		analystByID[a.ID] = a
	}

	learnings, err := e.learningRepo.FindActiveForTarget(ctx, "", universeID, targetID, replayRunID != nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load learnings: %w", err)
	}
	weights, appliedLearnings := effectiveWeights(analystByID, learnings)

	result := computeEnsemble(predictors, weights, e.cfg.Engine.EscalationConfidence, e.cfg.Engine.EscalationAgreement)
	threshold := e.evaluateThreshold(result)

	decision := &EnsembleDecision{Ensemble: result, Threshold: threshold}
	if !threshold.Passed {
		e.log.Info("Ensemble below threshold",
			logger.StringField("target_id", targetID),
			logger.StringField("failed_dimension", threshold.FailedDimension),
			logger.IntField("predictors", threshold.ActualPredictors))
		return decision, nil
	}

	prediction, err := e.commitPrediction(ctx, universeID, targetID, replayRunID, predictors, weights, result, threshold, appliedLearnings, startedAt)
	if err != nil {
		return nil, err
	}
	decision.Prediction = prediction

	for _, learningID := range appliedLearnings {
		if err := e.learningRepo.IncrementCounters(ctx, learningID, false); err != nil {
			e.log.Error("Failed to count learning application",
				logger.ErrorField(err), logger.Field("learning_id", learningID))
		}
	}

	if e.notifier != nil && e.cfg.Engine.NotifyPredictionCreated && replayRunID == nil {
		msg := telegram.FormatPredictionMessage(targetID, string(prediction.Direction),
			prediction.Confidence, prediction.TimeframeHours, threshold.ActualPredictors)
		if err := e.notifier.SendMessage(msg); err != nil {
			e.log.Error("Failed to send prediction notification", logger.ErrorField(err))
		}
	}

	return decision, nil
}

// effectiveWeights computes each analyst's weight as default_weight times
// any multipliers from learnings scoped to that analyst, and returns the ids
// of the learnings that actually influenced a weight.
func effectiveWeights(analysts map[uint]entity.Analyst, learnings []entity.Learning) (map[uint]float64, []uint) {
	weights := make(map[uint]float64, len(analysts))
	for id, a := range analysts {
		weights[id] = a.DefaultWeight
	}

	var applied []uint
	for _, l := range learnings {
		cfg, err := l.ParseConfig()
		if err != nil || cfg.AnalystID == 0 || cfg.WeightMultiplier == 1 {
			continue
		}
		if _, ok := weights[cfg.AnalystID]; !ok {
			continue
		}
		weights[cfg.AnalystID] *= cfg.WeightMultiplier
		applied = append(applied, l.ID)
	}
	return weights, applied
}

// computeEnsemble groups predictors by tier, combines each tier by weighted
// mass, and escalates tier by tier until confidence and agreement allow an
// early stop.
func computeEnsemble(predictors []entity.Predictor, weights map[uint]float64, escalationConfidence, escalationAgreement float64) dto.EnsembleResult {
	byTier := make(map[entity.AnalystTier][]entity.Predictor)
	for _, p := range predictors {
		byTier[p.Tier] = append(byTier[p.Tier], p)
	}

	var (
		tierResults []dto.TierResult
		tiersUsed   []entity.AnalystTier
		consulted   []entity.Predictor
	)
	for _, tier := range entity.TierOrder {
		tierPredictors, ok := byTier[tier]
		if !ok {
			continue
		}
		tr := combineTier(tier, tierPredictors, weights)
		tierResults = append(tierResults, tr)
		tiersUsed = append(tiersUsed, tier)
		consulted = append(consulted, tierPredictors...)

		if tr.Confidence >= escalationConfidence && tr.AgreementLevel >= escalationAgreement {
			break
		}
	}

	direction, masses, confidences := weighDirections(consulted, weights)
	totalMass := 0.0
	for _, m := range masses {
		totalMass += m
	}

	var combinedStrength, consensus, winningWeight float64
	for _, p := range consulted {
		if p.Direction != direction {
			continue
		}
		w := weightFor(p, weights)
		combinedStrength += w * p.Strength
		winningWeight += w
	}
	if winningWeight > 0 {
		combinedStrength /= winningWeight
	}
	if totalMass > 0 {
		consensus = masses[direction] / totalMass
	}

	return dto.EnsembleResult{
		Direction:        direction,
		Confidence:       confidences[direction],
		CombinedStrength: combinedStrength,
		Consensus:        consensus,
		TiersUsed:        tiersUsed,
		TierResults:      tierResults,
		PredictorCount:   len(consulted),
	}
}

func weightFor(p entity.Predictor, weights map[uint]float64) float64 {
	if w, ok := weights[p.AnalystID]; ok {
		return w
	}
	return 1
}

// weighDirections totals weighted mass per direction and picks the winner.
// Ties resolve deterministically: higher weighted-average confidence first,
// then lexicographically smaller direction.
func weighDirections(predictors []entity.Predictor, weights map[uint]float64) (entity.Direction, map[entity.Direction]float64, map[entity.Direction]float64) {
	masses := make(map[entity.Direction]float64)
	confSums := make(map[entity.Direction]float64)
	for _, p := range predictors {
		w := weightFor(p, weights)
		masses[p.Direction] += w * p.Strength
		confSums[p.Direction] += w * p.Confidence
	}

	confidences := make(map[entity.Direction]float64, len(masses))
	weightTotals := make(map[entity.Direction]float64)
	for _, p := range predictors {
		weightTotals[p.Direction] += weightFor(p, weights)
	}
	for dir, sum := range confSums {
		if weightTotals[dir] > 0 {
			confidences[dir] = sum / weightTotals[dir]
		}
	}

	directions := make([]entity.Direction, 0, len(masses))
	for dir := range masses {
		directions = append(directions, dir)
	}
	sort.Slice(directions, func(i, j int) bool {
		di, dj := directions[i], directions[j]
		if masses[di] != masses[dj] {
			return masses[di] > masses[dj]
		}
		if confidences[di] != confidences[dj] {
			return confidences[di] > confidences[dj]
		}
		return di < dj
	})

	if len(directions) == 0 {
		return entity.DirectionNeutral, masses, confidences
	}
	return directions[0], masses, confidences
}

func combineTier(tier entity.AnalystTier, predictors []entity.Predictor, weights map[uint]float64) dto.TierResult {
	direction, masses, confidences := weighDirections(predictors, weights)

	total := 0.0
	for _, m := range masses {
		total += m
	}
	agreement := 0.0
	if total > 0 {
		agreement = masses[direction] / total
	}

	return dto.TierResult{
		Tier:           tier,
		Direction:      direction,
		Confidence:     confidences[direction],
		AgreementLevel: agreement,
		WeightedMass:   masses[direction],
		PredictorCount: len(predictors),
	}
}

func (e *ensembleEngine) evaluateThreshold(result dto.EnsembleResult) dto.ThresholdEvaluation {
	eval := dto.ThresholdEvaluation{
		RequiredPredictors: e.cfg.Engine.MinPredictors,
		ActualPredictors:   result.PredictorCount,
		RequiredStrength:   e.cfg.Engine.MinCombinedStrength,
		ActualStrength:     result.CombinedStrength,
		RequiredConsensus:  e.cfg.Engine.MinConsensus,
		ActualConsensus:    result.Consensus,
	}
	switch {
	case eval.ActualPredictors < eval.RequiredPredictors:
		eval.FailedDimension = "predictor_count"
	case eval.ActualStrength < eval.RequiredStrength:
		eval.FailedDimension = "combined_strength"
	case eval.ActualConsensus < eval.RequiredConsensus:
		eval.FailedDimension = "consensus"
	default:
		eval.Passed = true
	}
	return eval
}

// commitPrediction creates the prediction, consumes every contributing
// predictor, and writes the snapshot in one transaction. A prediction
// without a snapshot is a bug class, not a supported state.
func (e *ensembleEngine) commitPrediction(
	ctx context.Context,
	universeID, targetID string,
	replayRunID *uint,
	predictors []entity.Predictor,
	weights map[uint]float64,
	result dto.EnsembleResult,
	threshold dto.ThresholdEvaluation,
	appliedLearnings []uint,
	startedAt time.Time,
) (*entity.Prediction, error) {
	now := time.Now()
	timeframe := e.cfg.Engine.DefaultTimeframeHours

	contributors, rejections := splitContributors(predictors, result)

	analystEnsemble, _ := json.Marshal(weights)
	llmEnsemble, _ := json.Marshal(entity.SnapshotLLMEnsemble{
		TiersUsed:      result.TiersUsed,
		TierResults:    tierResultsForSnapshot(result.TierResults),
		AgreementLevel: result.Consensus,
	})

	prediction := &entity.Prediction{
		TargetID:        targetID,
		UniverseID:      universeID,
		Direction:       result.Direction,
		Confidence:      result.Confidence,
		Magnitude:       magnitudeBandFor(result.CombinedStrength),
		TimeframeHours:  timeframe,
		PredictedAt:     now,
		ExpiresAt:       now.Add(time.Duration(timeframe) * time.Hour),
		AnalystEnsemble: analystEnsemble,
		LLMEnsemble:     llmEnsemble,
		Status:          entity.PredictionActive,
		ReplayRunID:     replayRunID,
		IsTest:          replayRunID != nil,
	}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		predictionRepo := e.predictionRepo.WithTx(tx)
		predictorRepo := e.predictorRepo.WithTx(tx)
		snapshotRepo := e.snapshotRepo.WithTx(tx)

		if err := predictionRepo.Create(ctx, prediction); err != nil {
			return fmt.Errorf("failed to create prediction: %w", err)
		}

		for _, c := range contributors {
			if err := predictorRepo.Consume(ctx, c.PredictorID, prediction.ID); err != nil {
				return fmt.Errorf("failed to consume predictor %d: %w", c.PredictorID, err)
			}
		}

		snapshot, err := e.buildSnapshot(ctx, prediction.ID, contributors, rejections, predictors, result, threshold, appliedLearnings, startedAt, now)
		if err != nil {
			return err
		}
		if err := snapshotRepo.Create(ctx, snapshot); err != nil {
			return fmt.Errorf("failed to create snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("Prediction created",
		logger.Field("prediction_id", prediction.ID),
		logger.StringField("target_id", targetID),
		logger.StringField("direction", string(result.Direction)),
		logger.IntField("contributors", len(contributors)))

	return prediction, nil
}

// splitContributors separates winning-direction predictors in the consulted
// tiers (consumed) from the rest (recorded as rejections).
func splitContributors(predictors []entity.Predictor, result dto.EnsembleResult) ([]entity.SnapshotContributor, []entity.SnapshotRejection) {
	used := make(map[entity.AnalystTier]bool, len(result.TiersUsed))
	for _, t := range result.TiersUsed {
		used[t] = true
	}

	var contributors []entity.SnapshotContributor
	var rejections []entity.SnapshotRejection
	for _, p := range predictors {
		switch {
		case !used[p.Tier]:
			rejections = append(rejections, entity.SnapshotRejection{
				SignalID: p.SignalID, PredictorID: p.ID, Reason: "tier_not_consulted",
			})
		case p.Direction != result.Direction:
			rejections = append(rejections, entity.SnapshotRejection{
				SignalID: p.SignalID, PredictorID: p.ID, Reason: "lost_consensus",
			})
		default:
			contributors = append(contributors, entity.SnapshotContributor{
				PredictorID: p.ID,
				SignalID:    p.SignalID,
				AnalystID:   p.AnalystID,
				Direction:   p.Direction,
				Strength:    p.Strength,
				Confidence:  p.Confidence,
			})
		}
	}
	return contributors, rejections
}

func tierResultsForSnapshot(results []dto.TierResult) []entity.SnapshotTierResult {
	out := make([]entity.SnapshotTierResult, 0, len(results))
	for _, r := range results {
		out = append(out, entity.SnapshotTierResult{
			Tier:           r.Tier,
			Direction:      r.Direction,
			Confidence:     r.Confidence,
			AgreementLevel: r.AgreementLevel,
			PredictorCount: r.PredictorCount,
		})
	}
	return out
}

func magnitudeBandFor(strength float64) entity.MagnitudeBand {
	switch {
	case strength >= 0.66:
		return entity.MagnitudeLarge
	case strength >= 0.33:
		return entity.MagnitudeMedium
	default:
		return entity.MagnitudeSmall
	}
}

func (e *ensembleEngine) buildSnapshot(
	ctx context.Context,
	predictionID uint,
	contributors []entity.SnapshotContributor,
	rejections []entity.SnapshotRejection,
	predictors []entity.Predictor,
	result dto.EnsembleResult,
	threshold dto.ThresholdEvaluation,
	appliedLearnings []uint,
	startedAt, decidedAt time.Time,
) (*entity.PredictionSnapshot, error) {
	// Resolve signal content and analyst identity for explainability.
	signalContent := make(map[uint]string)
	for i, c := range contributors {
		if _, ok := signalContent[c.SignalID]; !ok {
			signal, err := e.signalRepo.FindByID(ctx, c.SignalID)
			if err == nil {
				signalContent[c.SignalID] = signal.Content
			}
		}
		contributors[i].SignalContent = signalContent[c.SignalID]
		if analyst, err := e.analystRepo.FindByID(ctx, c.AnalystID); err == nil {
			contributors[i].AnalystSlug = analyst.Slug
		}
	}

	assessments := make([]entity.SnapshotAssessment, 0, len(predictors))
	for _, p := range predictors {
		var factors, risks []string
		_ = json.Unmarshal(p.KeyFactors, &factors)
		_ = json.Unmarshal(p.Risks, &risks)
		a := entity.SnapshotAssessment{
			AnalystID:        p.AnalystID,
			Tier:             p.Tier,
			Direction:        p.Direction,
			Confidence:       p.Confidence,
			Reasoning:        p.Reasoning,
			KeyFactors:       factors,
			Risks:            risks,
			LearningsApplied: appliedLearnings,
		}
		if analyst, err := e.analystRepo.FindByID(ctx, p.AnalystID); err == nil {
			a.AnalystSlug = analyst.Slug
		}
		assessments = append(assessments, a)
	}

	timeline := []entity.SnapshotTimelineEvent{
		{Stage: "ensemble_started", At: startedAt},
		{Stage: "threshold_passed", At: decidedAt},
		{Stage: "prediction_created", At: decidedAt},
	}

	contributorsJSON, _ := json.Marshal(contributors)
	rejectionsJSON, _ := json.Marshal(rejections)
	assessmentsJSON, _ := json.Marshal(assessments)
	llmJSON, _ := json.Marshal(entity.SnapshotLLMEnsemble{
		TiersUsed:      result.TiersUsed,
		TierResults:    tierResultsForSnapshot(result.TierResults),
		AgreementLevel: result.Consensus,
	})
	thresholdJSON, _ := json.Marshal(entity.SnapshotThreshold{
		RequiredPredictors: threshold.RequiredPredictors,
		ActualPredictors:   threshold.ActualPredictors,
		RequiredStrength:   threshold.RequiredStrength,
		ActualStrength:     threshold.ActualStrength,
		RequiredConsensus:  threshold.RequiredConsensus,
		ActualConsensus:    threshold.ActualConsensus,
		Passed:             threshold.Passed,
		FailedDimension:    threshold.FailedDimension,
	})
	timelineJSON, _ := json.Marshal(timeline)

	return &entity.PredictionSnapshot{
		PredictionID:        predictionID,
		Contributors:        datatypes.JSON(contributorsJSON),
		RejectedSignals:     datatypes.JSON(rejectionsJSON),
		AnalystAssessments:  datatypes.JSON(assessmentsJSON),
		LLMEnsemble:         datatypes.JSON(llmJSON),
		ThresholdEvaluation: datatypes.JSON(thresholdJSON),
		Timeline:            datatypes.JSON(timelineJSON),
	}, nil
}
