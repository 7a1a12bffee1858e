package repository

import (
	"context"

	"golang-prediction-engine/internal/entity"

	"gorm.io/gorm"
)

// SnapshotRepository defines data operations for prediction snapshots.
// Snapshots are write-once; there is deliberately no update method.
type SnapshotRepository interface {
	Create(ctx context.Context, snapshot *entity.PredictionSnapshot) error
	FindByPredictionID(ctx context.Context, predictionID uint) (*entity.PredictionSnapshot, error)
	FindByPredictionIDs(ctx context.Context, predictionIDs []uint) ([]entity.PredictionSnapshot, error)
	WithTx(tx *gorm.DB) SnapshotRepository
}

// NewSnapshotRepository creates a new GORM-based snapshot repository.
func NewSnapshotRepository(db *gorm.DB) SnapshotRepository {
	return &snapshotRepository{db: db}
}

type snapshotRepository struct {
	db *gorm.DB
}

func (r *snapshotRepository) WithTx(tx *gorm.DB) SnapshotRepository {
	return &snapshotRepository{db: tx}
}

func (r *snapshotRepository) Create(ctx context.Context, snapshot *entity.PredictionSnapshot) error {
	return r.db.WithContext(ctx).Create(snapshot).Error
}

func (r *snapshotRepository) FindByPredictionID(ctx context.Context, predictionID uint) (*entity.PredictionSnapshot, error) {
	var snapshot entity.PredictionSnapshot
	if err := r.db.WithContext(ctx).
		Where("prediction_id = ?", predictionID).
		First(&snapshot).Error; err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (r *snapshotRepository) FindByPredictionIDs(ctx context.Context, predictionIDs []uint) ([]entity.PredictionSnapshot, error) {
	var snapshots []entity.PredictionSnapshot
	if err := r.db.WithContext(ctx).
		Where("prediction_id IN ?", predictionIDs).
		Find(&snapshots).Error; err != nil {
		return nil, err
	}
	return snapshots, nil
}
