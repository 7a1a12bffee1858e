package service

import (
	"context"
	"errors"

	"golang-prediction-engine/internal/engine/repository"
	"golang-prediction-engine/internal/entity"
	"golang-prediction-engine/pkg/logger"

	"gorm.io/gorm"
)

// Promotion readiness thresholds.
const (
	promotionMinApplications = 3
	promotionMinSuccessRate  = 0.5
)

// LearningCandidate is a test learning enriched with its validation metrics
// and readiness verdict.
type LearningCandidate struct {
	Learning          entity.Learning          `json:"learning"`
	ValidationMetrics entity.ValidationMetrics `json:"validation_metrics"`
	ReadyForPromotion bool                     `json:"ready_for_promotion"`
}

// LearningService manages the learning lifecycle short of promotion.
type LearningService interface {
	Create(ctx context.Context, learning *entity.Learning) error
	Get(ctx context.Context, id uint) (*entity.Learning, error)
	ListCandidatesForPromotion(ctx context.Context, scope entity.Scope, page, pageSize int) ([]LearningCandidate, int64, error)
	Supersede(ctx context.Context, learningID uint, changes SupersedeChanges) (*entity.Learning, error)
	RecordApplication(ctx context.Context, learningID uint, helpful bool) error
}

// SupersedeChanges carries the fields a replacement version may change.
// Nil fields inherit the superseded row's value.
type SupersedeChanges struct {
	Title       *string
	Description *string
	Config      []byte
	SourceType  *entity.LearningSource
}

// NewLearningService creates a new learning service.
func NewLearningService(log *logger.Logger, learningRepo repository.LearningRepository) LearningService {
	return &learningService{log: log, learningRepo: learningRepo}
}

type learningService struct {
	log          *logger.Logger
	learningRepo repository.LearningRepository
}

func (s *learningService) Create(ctx context.Context, learning *entity.Learning) error {
	if learning.Status == "" {
		learning.Status = entity.LearningActive
	}
	if learning.Version == 0 {
		learning.Version = 1
	}
	return s.learningRepo.Create(ctx, learning)
}

func (s *learningService) Get(ctx context.Context, id uint) (*entity.Learning, error) {
	learning, err := s.learningRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return learning, nil
}

// ListCandidatesForPromotion returns the scope's active test learnings with
// readiness computed per row, most-exercised first.
func (s *learningService) ListCandidatesForPromotion(ctx context.Context, scope entity.Scope, page, pageSize int) ([]LearningCandidate, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	learnings, total, err := s.learningRepo.FindActiveTestByScope(ctx, scope, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}

	candidates := make([]LearningCandidate, 0, len(learnings))
	for _, l := range learnings {
		rate := l.SuccessRate()
		candidates = append(candidates, LearningCandidate{
			Learning: l,
			ValidationMetrics: entity.ValidationMetrics{
				TimesApplied: l.TimesApplied,
				TimesHelpful: l.TimesHelpful,
				SuccessRate:  rate,
			},
			ReadyForPromotion: l.TimesApplied >= promotionMinApplications && rate >= promotionMinSuccessRate,
		})
	}
	return candidates, total, nil
}

// Supersede replaces an active learning with a new version. The old row is
// preserved with status superseded and a pointer to its replacement.
func (s *learningService) Supersede(ctx context.Context, learningID uint, changes SupersedeChanges) (*entity.Learning, error) {
	old, err := s.Get(ctx, learningID)
	if err != nil {
		return nil, err
	}
	if old.Status != entity.LearningActive {
		return nil, ErrLearningInactive
	}

	replacement := &entity.Learning{
		ScopeLevel:   old.ScopeLevel,
		Domain:       old.Domain,
		UniverseID:   old.UniverseID,
		TargetID:     old.TargetID,
		AnalystID:    old.AnalystID,
		LearningType: old.LearningType,
		Title:        old.Title,
		Description:  old.Description,
		Config:       old.Config,
		SourceType:   old.SourceType,
		Status:       entity.LearningActive,
		IsTest:       old.IsTest,
	}
	if changes.Title != nil {
		replacement.Title = *changes.Title
	}
	if changes.Description != nil {
		replacement.Description = *changes.Description
	}
	if changes.Config != nil {
		replacement.Config = changes.Config
	}
	if changes.SourceType != nil {
		replacement.SourceType = *changes.SourceType
	}

	if err := s.learningRepo.Supersede(ctx, old, replacement); err != nil {
		if errors.Is(err, repository.ErrLearningNotActive) {
			return nil, ErrLearningInactive
		}
		return nil, err
	}

	s.log.Info("Learning superseded",
		logger.Field("old_id", old.ID),
		logger.Field("new_id", replacement.ID),
		logger.IntField("version", replacement.Version))
	return replacement, nil
}

// RecordApplication counts one application of a learning and whether it
// helped. times_helpful can never exceed times_applied.
func (s *learningService) RecordApplication(ctx context.Context, learningID uint, helpful bool) error {
	if _, err := s.Get(ctx, learningID); err != nil {
		return err
	}
	return s.learningRepo.IncrementCounters(ctx, learningID, helpful)
}
