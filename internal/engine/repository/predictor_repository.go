package repository

import (
	"context"
	"fmt"
	"time"

	"golang-prediction-engine/internal/entity"

	"gorm.io/gorm"
)

// ErrPredictorConsumed is returned when a consume CAS loses the race.
var ErrPredictorConsumed = fmt.Errorf("predictor already consumed or expired")

// PredictorRepository defines data operations for predictors.
type PredictorRepository interface {
	Create(ctx context.Context, predictor *entity.Predictor) error
	FindByID(ctx context.Context, id uint) (*entity.Predictor, error)
	FindByIDs(ctx context.Context, ids []uint) ([]entity.Predictor, error)
	FindActiveByTarget(ctx context.Context, targetID string, replayRunID *uint) ([]entity.Predictor, error)
	Consume(ctx context.Context, predictorID, predictionID uint) error
	ExpireActive(ctx context.Context, now time.Time) (int64, error)
	DeleteByReplayRun(ctx context.Context, replayRunID uint) error
	CountAffectedByRollback(ctx context.Context, universeID string, targetIDs []string, cutoff time.Time) ([]uint, error)
	WithTx(tx *gorm.DB) PredictorRepository
}

// NewPredictorRepository creates a new GORM-based predictor repository.
func NewPredictorRepository(db *gorm.DB) PredictorRepository {
	return &predictorRepository{db: db}
}

type predictorRepository struct {
	db *gorm.DB
}

func (r *predictorRepository) WithTx(tx *gorm.DB) PredictorRepository {
	return &predictorRepository{db: tx}
}

func (r *predictorRepository) Create(ctx context.Context, predictor *entity.Predictor) error {
	return r.db.WithContext(ctx).Create(predictor).Error
}

func (r *predictorRepository) FindByID(ctx context.Context, id uint) (*entity.Predictor, error) {
	var predictor entity.Predictor
	if err := r.db.WithContext(ctx).First(&predictor, id).Error; err != nil {
		return nil, err
	}
	return &predictor, nil
}

func (r *predictorRepository) FindByIDs(ctx context.Context, ids []uint) ([]entity.Predictor, error) {
	var predictors []entity.Predictor
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&predictors).Error; err != nil {
		return nil, err
	}
	return predictors, nil
}

// FindActiveByTarget returns unexpired active predictors for a target.
// Production reads pass a nil replayRunID, which excludes replay artifacts;
// a replay run passes its own id and sees only its artifacts.
func (r *predictorRepository) FindActiveByTarget(ctx context.Context, targetID string, replayRunID *uint) ([]entity.Predictor, error) {
	q := r.db.WithContext(ctx).
		Where("target_id = ? AND status = ? AND expires_at > ?", targetID, entity.PredictorActive, time.Now())
	if replayRunID == nil {
		q = q.Where("replay_run_id IS NULL")
	} else {
		q = q.Where("replay_run_id = ?", *replayRunID)
	}
	var predictors []entity.Predictor
	if err := q.Find(&predictors).Error; err != nil {
		return nil, err
	}
	return predictors, nil
}

// Consume marks a predictor consumed by one prediction. The status guard is
// the compare-and-set that prevents double-counting across concurrent
// ensembles; a miss surfaces as ErrPredictorConsumed so the enclosing
// transaction aborts.
func (r *predictorRepository) Consume(ctx context.Context, predictorID, predictionID uint) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&entity.Predictor{}).
		Where("id = ? AND status = ?", predictorID, entity.PredictorActive).
		Updates(map[string]interface{}{
			"status":                    entity.PredictorConsumed,
			"consumed_at":               now,
			"consumed_by_prediction_id": predictionID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrPredictorConsumed
	}
	return nil
}

func (r *predictorRepository) ExpireActive(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&entity.Predictor{}).
		Where("status = ? AND expires_at <= ?", entity.PredictorActive, now).
		Update("status", entity.PredictorExpired)
	return res.RowsAffected, res.Error
}

func (r *predictorRepository) DeleteByReplayRun(ctx context.Context, replayRunID uint) error {
	return r.db.WithContext(ctx).
		Where("replay_run_id = ?", replayRunID).
		Delete(&entity.Predictor{}).Error
}

func (r *predictorRepository) CountAffectedByRollback(ctx context.Context, universeID string, targetIDs []string, cutoff time.Time) ([]uint, error) {
	q := r.db.WithContext(ctx).Model(&entity.Predictor{}).
		Joins("JOIN signals ON signals.id = predictors.signal_id").
		Where("signals.universe_id = ?", universeID).
		Where("predictors.created_at > ? AND predictors.replay_run_id IS NULL", cutoff)
	if len(targetIDs) > 0 {
		q = q.Where("predictors.target_id IN ?", targetIDs)
	}
	var ids []uint
	if err := q.Pluck("predictors.id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
