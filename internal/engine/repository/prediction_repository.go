package repository

import (
	"context"
	"time"

	"golang-prediction-engine/internal/entity"

	"gorm.io/gorm"
)

// PredictionRepository defines data operations for predictions.
type PredictionRepository interface {
	Create(ctx context.Context, prediction *entity.Prediction) error
	FindByID(ctx context.Context, id uint) (*entity.Prediction, error)
	FindByIDs(ctx context.Context, ids []uint) ([]entity.Prediction, error)
	Resolve(ctx context.Context, id uint, outcomeValue float64, capturedAt time.Time) error
	FindResolvedInWindow(ctx context.Context, universeID string, since time.Time) ([]entity.Prediction, error)
	FindOriginalsAfter(ctx context.Context, universeID string, targetIDs []string, cutoff time.Time) ([]entity.Prediction, error)
	FindByReplayRun(ctx context.Context, replayRunID uint) ([]entity.Prediction, error)
	DeleteByReplayRun(ctx context.Context, replayRunID uint) error
	CountAffectedByRollback(ctx context.Context, universeID string, targetIDs []string, cutoff time.Time) ([]uint, error)
	WithTx(tx *gorm.DB) PredictionRepository
}

// NewPredictionRepository creates a new GORM-based prediction repository.
func NewPredictionRepository(db *gorm.DB) PredictionRepository {
	return &predictionRepository{db: db}
}

type predictionRepository struct {
	db *gorm.DB
}

func (r *predictionRepository) WithTx(tx *gorm.DB) PredictionRepository {
	return &predictionRepository{db: tx}
}

func (r *predictionRepository) Create(ctx context.Context, prediction *entity.Prediction) error {
	return r.db.WithContext(ctx).Create(prediction).Error
}

func (r *predictionRepository) FindByID(ctx context.Context, id uint) (*entity.Prediction, error) {
	var prediction entity.Prediction
	if err := r.db.WithContext(ctx).First(&prediction, id).Error; err != nil {
		return nil, err
	}
	return &prediction, nil
}

func (r *predictionRepository) FindByIDs(ctx context.Context, ids []uint) ([]entity.Prediction, error) {
	var predictions []entity.Prediction
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&predictions).Error; err != nil {
		return nil, err
	}
	return predictions, nil
}

// Resolve records the realized outcome. Guarded on active status so a
// prediction resolves at most once.
func (r *predictionRepository) Resolve(ctx context.Context, id uint, outcomeValue float64, capturedAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&entity.Prediction{}).
		Where("id = ? AND status = ?", id, entity.PredictionActive).
		Updates(map[string]interface{}{
			"status":              entity.PredictionResolved,
			"outcome_value":       outcomeValue,
			"outcome_captured_at": capturedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FindResolvedInWindow returns resolved production predictions since the
// given time; an empty universeID spans all universes.
func (r *predictionRepository) FindResolvedInWindow(ctx context.Context, universeID string, since time.Time) ([]entity.Prediction, error) {
	q := r.db.WithContext(ctx).
		Where("status = ? AND predicted_at >= ? AND replay_run_id IS NULL",
			entity.PredictionResolved, since)
	if universeID != "" {
		q = q.Where("universe_id = ?", universeID)
	}
	var predictions []entity.Prediction
	if err := q.Order("predicted_at asc").Find(&predictions).Error; err != nil {
		return nil, err
	}
	return predictions, nil
}

// FindOriginalsAfter returns the production predictions a replay will be
// compared against.
func (r *predictionRepository) FindOriginalsAfter(ctx context.Context, universeID string, targetIDs []string, cutoff time.Time) ([]entity.Prediction, error) {
	q := r.db.WithContext(ctx).
		Where("universe_id = ? AND predicted_at > ? AND replay_run_id IS NULL", universeID, cutoff)
	if len(targetIDs) > 0 {
		q = q.Where("target_id IN ?", targetIDs)
	}
	var predictions []entity.Prediction
	if err := q.Order("predicted_at asc").Find(&predictions).Error; err != nil {
		return nil, err
	}
	return predictions, nil
}

func (r *predictionRepository) FindByReplayRun(ctx context.Context, replayRunID uint) ([]entity.Prediction, error) {
	var predictions []entity.Prediction
	err := r.db.WithContext(ctx).
		Where("replay_run_id = ?", replayRunID).
		Find(&predictions).Error
	if err != nil {
		return nil, err
	}
	return predictions, nil
}

func (r *predictionRepository) DeleteByReplayRun(ctx context.Context, replayRunID uint) error {
	return r.db.WithContext(ctx).
		Where("replay_run_id = ?", replayRunID).
		Delete(&entity.Prediction{}).Error
}

func (r *predictionRepository) CountAffectedByRollback(ctx context.Context, universeID string, targetIDs []string, cutoff time.Time) ([]uint, error) {
	q := r.db.WithContext(ctx).Model(&entity.Prediction{}).
		Where("universe_id = ? AND predicted_at > ? AND replay_run_id IS NULL", universeID, cutoff)
	if len(targetIDs) > 0 {
		q = q.Where("target_id IN ?", targetIDs)
	}
	var ids []uint
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
