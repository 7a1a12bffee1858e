package repository

import (
	"context"
	"time"

	"golang-prediction-engine/internal/entity"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ReplayRepository defines data operations for replay runs and their
// comparison rows.
type ReplayRepository interface {
	Create(ctx context.Context, run *entity.ReplayRun) error
	FindByID(ctx context.Context, id uint) (*entity.ReplayRun, error)
	TransitionStatus(ctx context.Context, id uint, from, to entity.ReplayStatus) (bool, error)
	Complete(ctx context.Context, id uint, results datatypes.JSON) error
	Fail(ctx context.Context, id uint, errMsg string) error
	HasRunningForUniverse(ctx context.Context, universeID string) (bool, error)
	CreateComparisons(ctx context.Context, comparisons []entity.ReplayComparison) error
	FindComparisons(ctx context.Context, replayRunID uint) ([]entity.ReplayComparison, error)
	DeleteCascade(ctx context.Context, id uint) error
}

// NewReplayRepository creates a new GORM-based replay repository. It owns
// the cascade delete so replay artifacts never outlive their run.
func NewReplayRepository(db *gorm.DB) ReplayRepository {
	return &replayRepository{db: db}
}

type replayRepository struct {
	db *gorm.DB
}

func (r *replayRepository) Create(ctx context.Context, run *entity.ReplayRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *replayRepository) FindByID(ctx context.Context, id uint) (*entity.ReplayRun, error) {
	var run entity.ReplayRun
	if err := r.db.WithContext(ctx).First(&run, id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// TransitionStatus performs the guarded state transition; false means the
// run was not in the expected state.
func (r *replayRepository) TransitionStatus(ctx context.Context, id uint, from, to entity.ReplayStatus) (bool, error) {
	updates := map[string]interface{}{"status": to}
	if to == entity.ReplayRunning {
		updates["started_at"] = time.Now()
	}
	res := r.db.WithContext(ctx).Model(&entity.ReplayRun{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *replayRepository) Complete(ctx context.Context, id uint, results datatypes.JSON) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&entity.ReplayRun{}).
		Where("id = ? AND status = ?", id, entity.ReplayRunning).
		Updates(map[string]interface{}{
			"status":       entity.ReplayCompleted,
			"results":      results,
			"completed_at": now,
		}).Error
}

func (r *replayRepository) Fail(ctx context.Context, id uint, errMsg string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&entity.ReplayRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        entity.ReplayFailed,
			"error_message": errMsg,
			"completed_at":  now,
		}).Error
}

// HasRunningForUniverse is the advisory lock check: one running replay per
// universe.
func (r *replayRepository) HasRunningForUniverse(ctx context.Context, universeID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.ReplayRun{}).
		Where("universe_id = ? AND status = ?", universeID, entity.ReplayRunning).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *replayRepository) CreateComparisons(ctx context.Context, comparisons []entity.ReplayComparison) error {
	if len(comparisons) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&comparisons).Error
}

func (r *replayRepository) FindComparisons(ctx context.Context, replayRunID uint) ([]entity.ReplayComparison, error) {
	var comparisons []entity.ReplayComparison
	err := r.db.WithContext(ctx).
		Where("replay_run_id = ?", replayRunID).
		Order("id asc").
		Find(&comparisons).Error
	if err != nil {
		return nil, err
	}
	return comparisons, nil
}

// DeleteCascade purges the run, its comparisons, and every replay-tagged
// predictor and prediction it produced.
func (r *replayRepository) DeleteCascade(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("replay_run_id = ?", id).Delete(&entity.ReplayComparison{}).Error; err != nil {
			return err
		}
		// Snapshots carry no replay tag; purge them through their predictions.
		predIDs := tx.Model(&entity.Prediction{}).Select("id").Where("replay_run_id = ?", id)
		if err := tx.Where("prediction_id IN (?)", predIDs).Delete(&entity.PredictionSnapshot{}).Error; err != nil {
			return err
		}
		if err := tx.Where("replay_run_id = ?", id).Delete(&entity.Prediction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("replay_run_id = ?", id).Delete(&entity.Predictor{}).Error; err != nil {
			return err
		}
		return tx.Delete(&entity.ReplayRun{}, id).Error
	})
}
