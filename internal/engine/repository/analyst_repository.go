package repository

import (
	"context"
	"fmt"

	"golang-prediction-engine/internal/entity"

	"gorm.io/gorm"
)

// AnalystRepository defines data operations for analysts, their fork
// version chains, and their paper-trading portfolios.
type AnalystRepository interface {
	FindByID(ctx context.Context, id uint) (*entity.Analyst, error)
	FindBySlug(ctx context.Context, slug string) (*entity.Analyst, error)
	FindEnabledForTarget(ctx context.Context, domain, universeID, targetID string) ([]entity.Analyst, error)
	CurrentVersion(ctx context.Context, analystID uint, fork entity.ForkType) (*entity.AnalystContextVersion, error)
	ListVersions(ctx context.Context, analystID uint, fork entity.ForkType) ([]entity.AnalystContextVersion, error)
	HasVersions(ctx context.Context, analystID uint, fork entity.ForkType) (bool, error)
	AppendVersion(ctx context.Context, version *entity.AnalystContextVersion) error
	Portfolio(ctx context.Context, analystID uint, fork entity.ForkType) (*entity.AnalystPortfolio, error)
	SavePortfolio(ctx context.Context, portfolio *entity.AnalystPortfolio) error
}

// NewAnalystRepository creates a new GORM-based analyst repository.
func NewAnalystRepository(db *gorm.DB) AnalystRepository {
	return &analystRepository{db: db}
}

type analystRepository struct {
	db *gorm.DB
}

func (r *analystRepository) FindByID(ctx context.Context, id uint) (*entity.Analyst, error) {
	var analyst entity.Analyst
	if err := r.db.WithContext(ctx).First(&analyst, id).Error; err != nil {
		return nil, err
	}
	return &analyst, nil
}

func (r *analystRepository) FindBySlug(ctx context.Context, slug string) (*entity.Analyst, error) {
	var analyst entity.Analyst
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&analyst).Error; err != nil {
		return nil, err
	}
	return &analyst, nil
}

// FindEnabledForTarget returns every enabled analyst whose scope covers the
// target: runner-wide, matching domain, matching universe, or the target
// itself.
func (r *analystRepository) FindEnabledForTarget(ctx context.Context, domain, universeID, targetID string) ([]entity.Analyst, error) {
	var analysts []entity.Analyst
	err := r.db.WithContext(ctx).
		Where("is_enabled = ?", true).
		Where(
			r.db.Where("scope_level = ?", entity.ScopeLevelRunner).
				Or("scope_level = ? AND domain = ?", entity.ScopeLevelDomain, domain).
				Or("scope_level = ? AND universe_id = ?", entity.ScopeLevelUniverse, universeID).
				Or("scope_level = ? AND target_id = ?", entity.ScopeLevelTarget, targetID),
		).
		Find(&analysts).Error
	if err != nil {
		return nil, err
	}
	return analysts, nil
}

func (r *analystRepository) CurrentVersion(ctx context.Context, analystID uint, fork entity.ForkType) (*entity.AnalystContextVersion, error) {
	var version entity.AnalystContextVersion
	err := r.db.WithContext(ctx).
		Where("analyst_id = ? AND fork_type = ? AND is_current = ?", analystID, fork, true).
		First(&version).Error
	if err != nil {
		return nil, err
	}
	return &version, nil
}

func (r *analystRepository) ListVersions(ctx context.Context, analystID uint, fork entity.ForkType) ([]entity.AnalystContextVersion, error) {
	var versions []entity.AnalystContextVersion
	err := r.db.WithContext(ctx).
		Where("analyst_id = ? AND fork_type = ?", analystID, fork).
		Order("version_number asc").
		Find(&versions).Error
	if err != nil {
		return nil, err
	}
	return versions, nil
}

func (r *analystRepository) HasVersions(ctx context.Context, analystID uint, fork entity.ForkType) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.AnalystContextVersion{}).
		Where("analyst_id = ? AND fork_type = ?", analystID, fork).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AppendVersion adds a new version to a fork's chain and moves the current
// pointer, in one transaction. The chain itself is never mutated.
func (r *analystRepository) AppendVersion(ctx context.Context, version *entity.AnalystContextVersion) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxVersion int
		row := tx.Model(&entity.AnalystContextVersion{}).
			Where("analyst_id = ? AND fork_type = ?", version.AnalystID, version.ForkType).
			Select("COALESCE(MAX(version_number), 0)").Row()
		if err := row.Scan(&maxVersion); err != nil {
			return fmt.Errorf("failed to read version chain: %w", err)
		}

		if err := tx.Model(&entity.AnalystContextVersion{}).
			Where("analyst_id = ? AND fork_type = ? AND is_current = ?", version.AnalystID, version.ForkType, true).
			Update("is_current", false).Error; err != nil {
			return err
		}

		version.VersionNumber = maxVersion + 1
		version.IsCurrent = true
		return tx.Create(version).Error
	})
}

func (r *analystRepository) Portfolio(ctx context.Context, analystID uint, fork entity.ForkType) (*entity.AnalystPortfolio, error) {
	var portfolio entity.AnalystPortfolio
	err := r.db.WithContext(ctx).
		Where("analyst_id = ? AND fork_type = ?", analystID, fork).
		First(&portfolio).Error
	if err != nil {
		return nil, err
	}
	return &portfolio, nil
}

func (r *analystRepository) SavePortfolio(ctx context.Context, portfolio *entity.AnalystPortfolio) error {
	return r.db.WithContext(ctx).Save(portfolio).Error
}
