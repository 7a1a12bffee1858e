package repository

import (
	"context"
	"fmt"

	"golang-prediction-engine/internal/entity"

	"gorm.io/gorm"
)

// ErrLearningNotActive is returned when supersession targets a non-active row.
var ErrLearningNotActive = fmt.Errorf("learning is not active")

// LearningRepository defines data operations for learnings and their
// promotion lineage records.
type LearningRepository interface {
	Create(ctx context.Context, learning *entity.Learning) error
	FindByID(ctx context.Context, id uint) (*entity.Learning, error)
	FindActiveTestByScope(ctx context.Context, scope entity.Scope, offset, limit int) ([]entity.Learning, int64, error)
	FindActiveForTarget(ctx context.Context, domain, universeID, targetID string, includeTest bool) ([]entity.Learning, error)
	Supersede(ctx context.Context, old *entity.Learning, replacement *entity.Learning) error
	IncrementCounters(ctx context.Context, id uint, helpful bool) error
	MarkHelpful(ctx context.Context, id uint) error
	CreateLineage(ctx context.Context, lineage *entity.LearningLineage) error
	LineageByTestLearning(ctx context.Context, testLearningID uint) (*entity.LearningLineage, error)
	UpdateStatus(ctx context.Context, id uint, status entity.LearningStatus) error
	WithTx(tx *gorm.DB) LearningRepository
}

// NewLearningRepository creates a new GORM-based learning repository.
func NewLearningRepository(db *gorm.DB) LearningRepository {
	return &learningRepository{db: db}
}

type learningRepository struct {
	db *gorm.DB
}

func (r *learningRepository) WithTx(tx *gorm.DB) LearningRepository {
	return &learningRepository{db: tx}
}

func (r *learningRepository) Create(ctx context.Context, learning *entity.Learning) error {
	return r.db.WithContext(ctx).Create(learning).Error
}

func (r *learningRepository) FindByID(ctx context.Context, id uint) (*entity.Learning, error) {
	var learning entity.Learning
	if err := r.db.WithContext(ctx).First(&learning, id).Error; err != nil {
		return nil, err
	}
	return &learning, nil
}

func (r *learningRepository) scopeQuery(ctx context.Context, scope entity.Scope) *gorm.DB {
	level, domain, universeID, targetID := scope.Columns()
	q := r.db.WithContext(ctx).Model(&entity.Learning{}).Where("scope_level = ?", level)
	switch level {
	case entity.ScopeLevelDomain:
		q = q.Where("domain = ?", domain)
	case entity.ScopeLevelUniverse:
		q = q.Where("universe_id = ?", universeID)
	case entity.ScopeLevelTarget:
		q = q.Where("target_id = ?", targetID)
	}
	return q
}

// FindActiveTestByScope returns active test learnings at the scope, sorted
// most-exercised first, with the unpaginated total for the caller's
// pagination metadata.
func (r *learningRepository) FindActiveTestByScope(ctx context.Context, scope entity.Scope, offset, limit int) ([]entity.Learning, int64, error) {
	base := r.scopeQuery(ctx, scope).
		Where("status = ? AND is_test = ?", entity.LearningActive, true)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var learnings []entity.Learning
	err := base.
		Order("times_applied desc, id asc").
		Offset(offset).Limit(limit).
		Find(&learnings).Error
	if err != nil {
		return nil, 0, err
	}
	return learnings, total, nil
}

// FindActiveForTarget returns the active learnings whose scope chain covers
// the target, used when weighting analysts during an ensemble.
func (r *learningRepository) FindActiveForTarget(ctx context.Context, domain, universeID, targetID string, includeTest bool) ([]entity.Learning, error) {
	q := r.db.WithContext(ctx).
		Where("status = ?", entity.LearningActive).
		Where(
			r.db.Where("scope_level = ?", entity.ScopeLevelRunner).
				Or("scope_level = ? AND domain = ?", entity.ScopeLevelDomain, domain).
				Or("scope_level = ? AND universe_id = ?", entity.ScopeLevelUniverse, universeID).
				Or("scope_level = ? AND target_id = ?", entity.ScopeLevelTarget, targetID),
		)
	if !includeTest {
		q = q.Where("is_test = ?", false)
	}
	var learnings []entity.Learning
	if err := q.Find(&learnings).Error; err != nil {
		return nil, err
	}
	return learnings, nil
}

// Supersede creates the replacement row and flips the old row's status and
// superseded_by pointer in one transaction. The old row's content is never
// touched.
func (r *learningRepository) Supersede(ctx context.Context, old *entity.Learning, replacement *entity.Learning) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		replacement.Version = old.Version + 1
		if err := tx.Create(replacement).Error; err != nil {
			return err
		}

		res := tx.Model(&entity.Learning{}).
			Where("id = ? AND status = ?", old.ID, entity.LearningActive).
			Updates(map[string]interface{}{
				"status":        entity.LearningSuperseded,
				"superseded_by": replacement.ID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrLearningNotActive
		}
		return nil
	})
}

// IncrementCounters bumps times_applied, and times_helpful when the
// application helped, keeping times_helpful <= times_applied by construction.
func (r *learningRepository) IncrementCounters(ctx context.Context, id uint, helpful bool) error {
	updates := map[string]interface{}{
		"times_applied": gorm.Expr("times_applied + 1"),
	}
	if helpful {
		updates["times_helpful"] = gorm.Expr("times_helpful + 1")
	}
	return r.db.WithContext(ctx).Model(&entity.Learning{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// MarkHelpful bumps times_helpful for an application already counted. The
// guard preserves times_helpful <= times_applied.
func (r *learningRepository) MarkHelpful(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&entity.Learning{}).
		Where("id = ? AND times_helpful < times_applied", id).
		Update("times_helpful", gorm.Expr("times_helpful + 1")).Error
}

func (r *learningRepository) CreateLineage(ctx context.Context, lineage *entity.LearningLineage) error {
	return r.db.WithContext(ctx).Create(lineage).Error
}

func (r *learningRepository) LineageByTestLearning(ctx context.Context, testLearningID uint) (*entity.LearningLineage, error) {
	var lineage entity.LearningLineage
	err := r.db.WithContext(ctx).
		Where("test_learning_id = ?", testLearningID).
		First(&lineage).Error
	if err != nil {
		return nil, err
	}
	return &lineage, nil
}

func (r *learningRepository) UpdateStatus(ctx context.Context, id uint, status entity.LearningStatus) error {
	return r.db.WithContext(ctx).Model(&entity.Learning{}).
		Where("id = ?", id).
		Update("status", status).Error
}
