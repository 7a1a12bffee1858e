package service

import (
	"context"
	"errors"
	"fmt"

	"golang-prediction-engine/internal/engine/repository"
	"golang-prediction-engine/internal/entity"
	"golang-prediction-engine/pkg/logger"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ForkView is one fork stream: its current version and portfolio.
type ForkView struct {
	ForkType       entity.ForkType               `json:"fork_type"`
	CurrentVersion *entity.AnalystContextVersion `json:"current_version,omitempty"`
	Portfolio      *entity.AnalystPortfolio      `json:"portfolio,omitempty"`
}

// ForksResult is both fork streams of one analyst.
type ForksResult struct {
	Analyst *entity.Analyst `json:"analyst"`
	User    ForkView        `json:"user"`
	Agent   ForkView        `json:"agent"`
}

// ForkComparison reports which fork is outperforming and by how much.
type ForkComparison struct {
	AnalystID    uint            `json:"analyst_id"`
	UserWinRate  float64         `json:"user_win_rate"`
	AgentWinRate float64         `json:"agent_win_rate"`
	UserPnl      float64         `json:"user_pnl"`
	AgentPnl     float64         `json:"agent_pnl"`
	Leader       entity.ForkType `json:"leader"`
}

// ContextChanges carries the fields a new context version may change. Nil
// fields inherit the previous current version.
type ContextChanges struct {
	Perspective      *string
	TierInstructions datatypes.JSON
	DefaultWeight    *float64
	CreatedBy        string
}

// AnalystService manages analyst fork version chains and their paper
// portfolios.
type AnalystService interface {
	GetForks(ctx context.Context, analystID uint) (*ForksResult, error)
	UpdateContext(ctx context.Context, analystID uint, fork entity.ForkType, changes ContextChanges) (*entity.AnalystContextVersion, error)
	CreateMirror(ctx context.Context, analystID uint) (*entity.AnalystContextVersion, error)
	CompareForkPerformance(ctx context.Context, analystID uint) (*ForkComparison, error)
	ReconcileForks(ctx context.Context, analystID uint, winner entity.ForkType, actingUser string) (*entity.AnalystContextVersion, error)
}

// NewAnalystService creates a new analyst fork service.
func NewAnalystService(log *logger.Logger, analystRepo repository.AnalystRepository) AnalystService {
	return &analystService{log: log, analystRepo: analystRepo}
}

type analystService struct {
	log         *logger.Logger
	analystRepo repository.AnalystRepository
}

func (s *analystService) analyst(ctx context.Context, analystID uint) (*entity.Analyst, error) {
	analyst, err := s.analystRepo.FindByID(ctx, analystID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return analyst, nil
}

func (s *analystService) forkView(ctx context.Context, analystID uint, fork entity.ForkType) ForkView {
	view := ForkView{ForkType: fork}
	if version, err := s.analystRepo.CurrentVersion(ctx, analystID, fork); err == nil {
		view.CurrentVersion = version
	}
	if portfolio, err := s.analystRepo.Portfolio(ctx, analystID, fork); err == nil {
		view.Portfolio = portfolio
	}
	return view
}

func (s *analystService) GetForks(ctx context.Context, analystID uint) (*ForksResult, error) {
	analyst, err := s.analyst(ctx, analystID)
	if err != nil {
		return nil, err
	}
	return &ForksResult{
		Analyst: analyst,
		User:    s.forkView(ctx, analystID, entity.ForkUser),
		Agent:   s.forkView(ctx, analystID, entity.ForkAgent),
	}, nil
}

// UpdateContext appends a new version to the fork's chain. Unspecified
// fields carry over from the previous current version.
func (s *analystService) UpdateContext(ctx context.Context, analystID uint, fork entity.ForkType, changes ContextChanges) (*entity.AnalystContextVersion, error) {
	analyst, err := s.analyst(ctx, analystID)
	if err != nil {
		return nil, err
	}
	if fork != entity.ForkUser && fork != entity.ForkAgent {
		return nil, fmt.Errorf("%w: unknown fork %q", ErrInvalidValue, fork)
	}

	version := &entity.AnalystContextVersion{
		AnalystID:        analystID,
		ForkType:         fork,
		Perspective:      analyst.Perspective,
		TierInstructions: analyst.TierInstructions,
		DefaultWeight:    analyst.DefaultWeight,
		CreatedBy:        changes.CreatedBy,
	}
	if current, err := s.analystRepo.CurrentVersion(ctx, analystID, fork); err == nil {
		version.Perspective = current.Perspective
		version.TierInstructions = current.TierInstructions
		version.DefaultWeight = current.DefaultWeight
	}
	if changes.Perspective != nil {
		version.Perspective = *changes.Perspective
	}
	if changes.TierInstructions != nil {
		version.TierInstructions = changes.TierInstructions
	}
	if changes.DefaultWeight != nil {
		version.DefaultWeight = *changes.DefaultWeight
	}

	if err := s.analystRepo.AppendVersion(ctx, version); err != nil {
		return nil, fmt.Errorf("failed to append context version: %w", err)
	}
	s.log.Info("Analyst context updated",
		logger.Field("analyst_id", analystID),
		logger.StringField("fork", string(fork)),
		logger.IntField("version", version.VersionNumber))
	return version, nil
}

// CreateMirror seeds the agent fork from the user fork's current state. It
// can run only once per analyst; from then on the forks evolve independently.
func (s *analystService) CreateMirror(ctx context.Context, analystID uint) (*entity.AnalystContextVersion, error) {
	analyst, err := s.analyst(ctx, analystID)
	if err != nil {
		return nil, err
	}

	exists, err := s.analystRepo.HasVersions(ctx, analystID, entity.ForkAgent)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrMirrorExists
	}

	seed := &entity.AnalystContextVersion{
		AnalystID:        analystID,
		ForkType:         entity.ForkAgent,
		Perspective:      analyst.Perspective,
		TierInstructions: analyst.TierInstructions,
		DefaultWeight:    analyst.DefaultWeight,
		CreatedBy:        "mirror",
	}
	if current, err := s.analystRepo.CurrentVersion(ctx, analystID, entity.ForkUser); err == nil {
		seed.Perspective = current.Perspective
		seed.TierInstructions = current.TierInstructions
		seed.DefaultWeight = current.DefaultWeight
	}

	if err := s.analystRepo.AppendVersion(ctx, seed); err != nil {
		return nil, fmt.Errorf("failed to seed agent fork: %w", err)
	}
	s.log.Info("Agent mirror created", logger.Field("analyst_id", analystID))
	return seed, nil
}

// CompareForkPerformance reads both portfolios and names the leader by win
// rate, with realized pnl as the tie-breaker.
func (s *analystService) CompareForkPerformance(ctx context.Context, analystID uint) (*ForkComparison, error) {
	if _, err := s.analyst(ctx, analystID); err != nil {
		return nil, err
	}

	comparison := &ForkComparison{AnalystID: analystID}
	if p, err := s.analystRepo.Portfolio(ctx, analystID, entity.ForkUser); err == nil {
		comparison.UserWinRate = p.WinRate()
		comparison.UserPnl = p.RealizedPnl
	}
	if p, err := s.analystRepo.Portfolio(ctx, analystID, entity.ForkAgent); err == nil {
		comparison.AgentWinRate = p.WinRate()
		comparison.AgentPnl = p.RealizedPnl
	}

	comparison.Leader = entity.ForkUser
	if comparison.AgentWinRate > comparison.UserWinRate ||
		(comparison.AgentWinRate == comparison.UserWinRate && comparison.AgentPnl > comparison.UserPnl) {
		comparison.Leader = entity.ForkAgent
	}
	return comparison, nil
}

// ReconcileForks copies the winning fork's current version onto the other
// fork as a new version, preserving both chains.
func (s *analystService) ReconcileForks(ctx context.Context, analystID uint, winner entity.ForkType, actingUser string) (*entity.AnalystContextVersion, error) {
	if _, err := s.analyst(ctx, analystID); err != nil {
		return nil, err
	}
	var loser entity.ForkType
	switch winner {
	case entity.ForkUser:
		loser = entity.ForkAgent
	case entity.ForkAgent:
		loser = entity.ForkUser
	default:
		return nil, fmt.Errorf("%w: unknown fork %q", ErrInvalidValue, winner)
	}

	source, err := s.analystRepo.CurrentVersion(ctx, analystID, winner)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	copied := &entity.AnalystContextVersion{
		AnalystID:        analystID,
		ForkType:         loser,
		Perspective:      source.Perspective,
		TierInstructions: source.TierInstructions,
		DefaultWeight:    source.DefaultWeight,
		CreatedBy:        actingUser,
	}
	if err := s.analystRepo.AppendVersion(ctx, copied); err != nil {
		return nil, fmt.Errorf("failed to reconcile forks: %w", err)
	}
	s.log.Info("Forks reconciled",
		logger.Field("analyst_id", analystID),
		logger.StringField("winner", string(winner)),
		logger.StringField("by", actingUser))
	return copied, nil
}
