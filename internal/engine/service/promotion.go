package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang-prediction-engine/internal/engine/repository"
	"golang-prediction-engine/internal/entity"
	"golang-prediction-engine/pkg/logger"
	"golang-prediction-engine/pkg/telegram"

	"gorm.io/gorm"
)

// Backtest acceptance threshold: the candidate must beat the baseline
// direction accuracy by at least this margin.
const backtestMinImprovement = 0.05

// ValidationReport is the outcome of the independent promotion checks. All
// checks run even after one fails so the caller sees the full picture.
type ValidationReport struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// PromotionRequest carries everything Promote needs beyond the learning id.
type PromotionRequest struct {
	LearningID     uint
	ActingUser     string
	OrgSlug        string
	Notes          string
	BacktestResult *entity.BacktestResult
	ScenarioRunIDs []uint
}

// PromotionService graduates validated test learnings to production.
type PromotionService interface {
	ValidateForPromotion(ctx context.Context, learningID uint) (*ValidationReport, error)
	Backtest(ctx context.Context, learningID uint, windowDays int) (*entity.BacktestResult, error)
	Promote(ctx context.Context, req PromotionRequest) (*entity.Learning, error)
	Reject(ctx context.Context, learningID uint, actingUser, orgSlug, reason string) error
}

// NewPromotionService creates a new promotion service.
func NewPromotionService(
	log *logger.Logger,
	db *gorm.DB,
	learningRepo repository.LearningRepository,
	predictionRepo repository.PredictionRepository,
	snapshotRepo repository.SnapshotRepository,
	backtestWindowDays int,
	notifier telegram.Notifier,
) PromotionService {
	return &promotionService{
		log:                log,
		db:                 db,
		learningRepo:       learningRepo,
		predictionRepo:     predictionRepo,
		snapshotRepo:       snapshotRepo,
		backtestWindowDays: backtestWindowDays,
		notifier:           notifier,
	}
}

type promotionService struct {
	log                *logger.Logger
	db                 *gorm.DB
	learningRepo       repository.LearningRepository
	predictionRepo     repository.PredictionRepository
	snapshotRepo       repository.SnapshotRepository
	backtestWindowDays int
	notifier           telegram.Notifier
}

// ValidateForPromotion runs every promotion check independently and reports
// all failures at once.
func (s *promotionService) ValidateForPromotion(ctx context.Context, learningID uint) (*ValidationReport, error) {
	learning, err := s.learningRepo.FindByID(ctx, learningID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	report := &ValidationReport{}
	fail := func(msg string) { report.Errors = append(report.Errors, msg) }

	if !learning.IsTest {
		fail("learning is not a test learning")
	}
	if learning.Status != entity.LearningActive {
		fail(fmt.Sprintf("learning status is %s, must be active", learning.Status))
	}
	if learning.TimesApplied < promotionMinApplications {
		fail(fmt.Sprintf("applied %d times, need at least %d", learning.TimesApplied, promotionMinApplications))
	}
	if rate := learning.SuccessRate(); learning.TimesApplied >= promotionMinApplications && rate < promotionMinSuccessRate {
		fail(fmt.Sprintf("success rate %.2f below %.2f", rate, promotionMinSuccessRate))
	}
	if _, err := learning.ParseConfig(); err != nil {
		fail("learning config does not parse")
	}
	if _, err := s.learningRepo.LineageByTestLearning(ctx, learningID); err == nil {
		fail("learning was already promoted")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if learning.TimesApplied < 10 {
		report.Warnings = append(report.Warnings, "fewer than 10 applications, metrics may be noisy")
	}

	report.Valid = len(report.Errors) == 0
	return report, nil
}

// Backtest replays the window's resolved predictions with the candidate's
// weight adjustment applied to the stored contributors, comparing direction
// accuracy against what actually shipped.
func (s *promotionService) Backtest(ctx context.Context, learningID uint, windowDays int) (*entity.BacktestResult, error) {
	learning, err := s.learningRepo.FindByID(ctx, learningID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	cfg, err := learning.ParseConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to parse learning config: %w", err)
	}
	if windowDays <= 0 {
		windowDays = s.backtestWindowDays
	}

	since := time.Now().AddDate(0, 0, -windowDays)
	predictions, err := s.predictionRepo.FindResolvedInWindow(ctx, learning.UniverseID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load backtest window: %w", err)
	}

	result := &entity.BacktestResult{WindowDays: windowDays}
	baselineCorrect, adjustedCorrect := 0, 0
	for i := range predictions {
		p := &predictions[i]
		outcome, ok := p.OutcomeDirection()
		if !ok {
			continue
		}
		snapshot, err := s.snapshotRepo.FindByPredictionID(ctx, p.ID)
		if err != nil {
			// A prediction without lineage cannot be replayed; skip it.
			s.log.Warn("Backtest skipping prediction without snapshot",
				logger.Field("prediction_id", p.ID))
			continue
		}
		var contributors []entity.SnapshotContributor
		if err := json.Unmarshal(snapshot.Contributors, &contributors); err != nil || len(contributors) == 0 {
			continue
		}

		result.Comparisons++
		if p.Direction == outcome {
			baselineCorrect++
		}
		if recomputeDirection(contributors, cfg) == outcome {
			adjustedCorrect++
		}
	}

	if result.Comparisons > 0 {
		baseline := float64(baselineCorrect) / float64(result.Comparisons)
		adjusted := float64(adjustedCorrect) / float64(result.Comparisons)
		result.ImprovementScore = adjusted - baseline
	}
	result.Pass = result.Comparisons > 0 && result.ImprovementScore >= backtestMinImprovement

	s.log.Info("Backtest finished",
		logger.Field("learning_id", learningID),
		logger.IntField("comparisons", result.Comparisons),
		logger.Field("improvement", result.ImprovementScore),
		logger.Field("pass", result.Pass))
	return result, nil
}

// recomputeDirection reruns the weighted vote over the stored contributors
// with the candidate learning's weight multiplier applied.
func recomputeDirection(contributors []entity.SnapshotContributor, cfg entity.LearningConfig) entity.Direction {
	masses := make(map[entity.Direction]float64)
	confidences := make(map[entity.Direction]float64)
	for _, c := range contributors {
		w := c.Weight
		if w == 0 {
			w = 1
		}
		if cfg.AnalystID != 0 && c.AnalystID == cfg.AnalystID {
			w *= cfg.WeightMultiplier
		}
		masses[c.Direction] += w * c.Strength
		confidences[c.Direction] += w * c.Confidence
	}
	if cfg.DirectionBias != "" && cfg.BiasFactor > 0 {
		masses[cfg.DirectionBias] *= 1 + cfg.BiasFactor
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
		return entity.DirectionNeutral
	}
	return directions[0]
}

// Promote graduates a test learning to production. Validation is fail-fast;
// the lineage row's unique test_learning_id makes the whole operation
// exactly-once even under concurrent calls.
func (s *promotionService) Promote(ctx context.Context, req PromotionRequest) (*entity.Learning, error) {
	report, err := s.ValidateForPromotion(ctx, req.LearningID)
	if err != nil {
		return nil, err
	}
	if !report.Valid {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, report.Errors)
	}

	testLearning, err := s.learningRepo.FindByID(ctx, req.LearningID)
	if err != nil {
		return nil, err
	}

	production := &entity.Learning{
		ScopeLevel:   testLearning.ScopeLevel,
		Domain:       testLearning.Domain,
		UniverseID:   testLearning.UniverseID,
		TargetID:     testLearning.TargetID,
		AnalystID:    testLearning.AnalystID,
		LearningType: testLearning.LearningType,
		Title:        testLearning.Title,
		Description:  testLearning.Description,
		Config:       testLearning.Config,
		SourceType:   testLearning.SourceType,
		Status:       entity.LearningActive,
		Version:      1,
		IsTest:       false,
	}

	metrics, _ := json.Marshal(entity.ValidationMetrics{
		TimesApplied: testLearning.TimesApplied,
		TimesHelpful: testLearning.TimesHelpful,
		SuccessRate:  testLearning.SuccessRate(),
	})
	var backtestJSON []byte
	if req.BacktestResult != nil {
		backtestJSON, _ = json.Marshal(req.BacktestResult)
	}
	var scenarioJSON []byte
	if len(req.ScenarioRunIDs) > 0 {
		scenarioJSON, _ = json.Marshal(req.ScenarioRunIDs)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		learningRepo := s.learningRepo.WithTx(tx)

		if err := learningRepo.Create(ctx, production); err != nil {
			return fmt.Errorf("failed to create production learning: %w", err)
		}
		lineage := &entity.LearningLineage{
			TestLearningID:       testLearning.ID,
			ProductionLearningID: production.ID,
			ScenarioRuns:         scenarioJSON,
			ValidationMetrics:    metrics,
			BacktestResult:       backtestJSON,
			PromotedBy:           req.ActingUser,
			PromotedAt:           time.Now(),
			Notes:                req.Notes,
		}
		// A duplicate here means a concurrent promotion won; the unique
		// index rejects the second lineage and rolls everything back.
		if err := learningRepo.CreateLineage(ctx, lineage); err != nil {
			return fmt.Errorf("%w: %v", ErrAlreadyPromoted, err)
		}
		// The test copy retires; the production copy carries on.
		if err := learningRepo.UpdateStatus(ctx, testLearning.ID, entity.LearningDisabled); err != nil {
			return fmt.Errorf("failed to retire test learning: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Learning promoted",
		logger.Field("test_learning_id", testLearning.ID),
		logger.Field("production_learning_id", production.ID),
		logger.StringField("promoted_by", req.ActingUser))

	if s.notifier != nil {
		improvement := 0.0
		if req.BacktestResult != nil {
			improvement = req.BacktestResult.ImprovementScore
		}
		msg := telegram.FormatPromotionMessage(production.Title, testLearning.SuccessRate(), improvement, req.ActingUser)
		if err := s.notifier.SendMessage(msg); err != nil {
			s.log.Error("Failed to send promotion notification", logger.ErrorField(err))
		}
	}

	return production, nil
}

// Reject retires a test learning without creating any lineage.
func (s *promotionService) Reject(ctx context.Context, learningID uint, actingUser, orgSlug, reason string) error {
	learning, err := s.learningRepo.FindByID(ctx, learningID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if !learning.IsTest {
		return ErrLearningNotTest
	}
	if len(reason) < minOverrideReasonLen {
		return fmt.Errorf("%w: need at least %d characters", ErrInvalidReason, minOverrideReasonLen)
	}

	if err := s.learningRepo.UpdateStatus(ctx, learningID, entity.LearningDisabled); err != nil {
		return err
	}
	s.log.Info("Learning rejected",
		logger.Field("learning_id", learningID),
		logger.StringField("rejected_by", actingUser),
		logger.StringField("reason", reason))
	return nil
}
