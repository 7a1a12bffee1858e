package repository

import (
	"context"
	"time"

	"golang-prediction-engine/internal/entity"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SignalRepository defines data operations for signals, including the atomic
// claim that serializes processing across workers.
type SignalRepository interface {
	Create(ctx context.Context, signal *entity.Signal) error
	FindByID(ctx context.Context, id uint) (*entity.Signal, error)
	FindPending(ctx context.Context, universeID string, targetIDs []string, limit int) ([]entity.Signal, error)
	Claim(ctx context.Context, signalID uint, workerID string) (*entity.Signal, bool, error)
	Finalize(ctx context.Context, signalID uint, to entity.SignalDisposition, evaluation datatypes.JSON) error
	ReleaseStaleClaims(ctx context.Context, olderThan time.Time) (int64, error)
	ExpirePending(ctx context.Context, olderThan time.Time) (int64, error)
	ExistsByContentHash(ctx context.Context, hash string) (bool, error)
	FindForReplayWindow(ctx context.Context, universeID string, targetIDs []string, cutoff time.Time) ([]entity.Signal, error)
	CountAffectedByRollback(ctx context.Context, universeID string, targetIDs []string, cutoff time.Time) ([]uint, error)
	WithTx(tx *gorm.DB) SignalRepository
}

// NewSignalRepository creates a new GORM-based signal repository.
func NewSignalRepository(db *gorm.DB) SignalRepository {
	return &signalRepository{db: db}
}

type signalRepository struct {
	db *gorm.DB
}

func (r *signalRepository) WithTx(tx *gorm.DB) SignalRepository {
	return &signalRepository{db: tx}
}

func (r *signalRepository) Create(ctx context.Context, signal *entity.Signal) error {
	return r.db.WithContext(ctx).Create(signal).Error
}

func (r *signalRepository) FindByID(ctx context.Context, id uint) (*entity.Signal, error) {
	var signal entity.Signal
	if err := r.db.WithContext(ctx).First(&signal, id).Error; err != nil {
		return nil, err
	}
	return &signal, nil
}

func (r *signalRepository) FindPending(ctx context.Context, universeID string, targetIDs []string, limit int) ([]entity.Signal, error) {
	q := r.db.WithContext(ctx).
		Where("disposition = ?", entity.SignalPending).
		Where("universe_id = ?", universeID)
	if len(targetIDs) > 0 {
		q = q.Where("target_id IN ?", targetIDs)
	}
	var signals []entity.Signal
	if err := q.Order("detected_at asc").Limit(limit).Find(&signals).Error; err != nil {
		return nil, err
	}
	return signals, nil
}

// Claim performs the compare-and-set on disposition. A lost race is not an
// error: claimed is false and the caller skips the signal.
func (r *signalRepository) Claim(ctx context.Context, signalID uint, workerID string) (*entity.Signal, bool, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&entity.Signal{}).
		Where("id = ? AND disposition = ?", signalID, entity.SignalPending).
		Updates(map[string]interface{}{
			"disposition":           entity.SignalProcessing,
			"processing_worker":     workerID,
			"processing_started_at": now,
		})
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, false, nil
	}
	signal, err := r.FindByID(ctx, signalID)
	if err != nil {
		return nil, false, err
	}
	return signal, true, nil
}

// Finalize moves a processing signal to a terminal disposition, recording
// the pipeline's evaluation payload.
func (r *signalRepository) Finalize(ctx context.Context, signalID uint, to entity.SignalDisposition, evaluation datatypes.JSON) error {
	updates := map[string]interface{}{"disposition": to}
	if evaluation != nil {
		updates["evaluation_result"] = evaluation
	}
	if to == entity.SignalExpired {
		updates["expired_at"] = time.Now()
	}
	return r.db.WithContext(ctx).Model(&entity.Signal{}).
		Where("id = ? AND disposition = ?", signalID, entity.SignalProcessing).
		Updates(updates).Error
}

// ReleaseStaleClaims reverts processing signals whose worker never finished.
func (r *signalRepository) ReleaseStaleClaims(ctx context.Context, olderThan time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&entity.Signal{}).
		Where("disposition = ? AND processing_started_at < ?", entity.SignalProcessing, olderThan).
		Updates(map[string]interface{}{
			"disposition":           entity.SignalPending,
			"processing_worker":     "",
			"processing_started_at": nil,
		})
	return res.RowsAffected, res.Error
}

func (r *signalRepository) ExpirePending(ctx context.Context, olderThan time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&entity.Signal{}).
		Where("disposition = ? AND detected_at < ?", entity.SignalPending, olderThan).
		Updates(map[string]interface{}{
			"disposition": entity.SignalExpired,
			"expired_at":  time.Now(),
		})
	return res.RowsAffected, res.Error
}

func (r *signalRepository) ExistsByContentHash(ctx context.Context, hash string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&entity.Signal{}).
		Where("content_hash = ?", hash).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindForReplayWindow returns the signals that were, or would have been,
// pending as of the cutoff: detected at or before it, with any terminal
// disposition reached only afterwards.
func (r *signalRepository) FindForReplayWindow(ctx context.Context, universeID string, targetIDs []string, cutoff time.Time) ([]entity.Signal, error) {
	q := r.db.WithContext(ctx).
		Where("universe_id = ?", universeID).
		Where("detected_at <= ?", cutoff).
		Where("disposition = ? OR updated_at > ?", entity.SignalPending, cutoff)
	if len(targetIDs) > 0 {
		q = q.Where("target_id IN ?", targetIDs)
	}
	var signals []entity.Signal
	if err := q.Order("detected_at asc").Find(&signals).Error; err != nil {
		return nil, err
	}
	return signals, nil
}

func (r *signalRepository) CountAffectedByRollback(ctx context.Context, universeID string, targetIDs []string, cutoff time.Time) ([]uint, error) {
	q := r.db.WithContext(ctx).Model(&entity.Signal{}).
		Where("universe_id = ?", universeID).
		Where("detected_at <= ? AND updated_at > ?", cutoff, cutoff)
	if len(targetIDs) > 0 {
		q = q.Where("target_id IN ?", targetIDs)
	}
	var ids []uint
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
