package entity

import (
	"time"

	"gorm.io/datatypes"
)

// AnalystTier is the cost/quality level of the judgment source behind an
// analyst. Cheaper tiers are consulted first and may short-circuit the rest.
type AnalystTier string

const (
	TierBronze AnalystTier = "bronze"
	TierSilver AnalystTier = "silver"
	TierGold   AnalystTier = "gold"
)

// TierOrder lists tiers from cheapest to most expensive, in escalation order.
var TierOrder = []AnalystTier{TierBronze, TierSilver, TierGold}

// ForkType distinguishes the two independently evolving copies of an
// analyst's configuration.
type ForkType string

const (
	ForkUser  ForkType = "user"
	ForkAgent ForkType = "agent"
)

// Analyst is a weighted opinion source.
type Analyst struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	Slug             string         `gorm:"not null;uniqueIndex" json:"slug"`
	Name             string         `gorm:"not null" json:"name"`
	Perspective      string         `gorm:"type:text" json:"perspective"`
	TierInstructions datatypes.JSON `gorm:"type:jsonb" json:"tier_instructions"`
	Tier             AnalystTier    `gorm:"not null;default:bronze" json:"tier"`
	DefaultWeight    float64        `gorm:"not null;default:1" json:"default_weight"`
	ScopeLevel       ScopeLevel     `gorm:"not null;default:runner" json:"scope_level"`
	Domain           string         `json:"domain"`
	UniverseID       string         `json:"universe_id"`
	TargetID         string         `json:"target_id"`
	IsEnabled        bool           `gorm:"not null;default:true" json:"is_enabled"`
	LearnedPatterns  datatypes.JSON `gorm:"type:jsonb" json:"learned_patterns"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Analyst) TableName() string {
	return "analysts"
}

// Scope rebuilds the tagged scope variant from the flat row columns.
func (a *Analyst) Scope() (Scope, error) {
	return ScopeFromColumns(a.ScopeLevel, a.Domain, a.UniverseID, a.TargetID)
}

// ApplyScope flattens a scope onto the row columns.
func (a *Analyst) ApplyScope(s Scope) {
	a.ScopeLevel, a.Domain, a.UniverseID, a.TargetID = s.Columns()
}

// AnalystContextVersion is one entry in an analyst fork's append-only
// version chain. Exactly one version per (analyst, fork) has IsCurrent set.
type AnalystContextVersion struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	AnalystID        uint           `gorm:"not null;index:idx_analyst_fork" json:"analyst_id"`
	ForkType         ForkType       `gorm:"not null;index:idx_analyst_fork" json:"fork_type"`
	VersionNumber    int            `gorm:"not null" json:"version_number"`
	Perspective      string         `gorm:"type:text" json:"perspective"`
	TierInstructions datatypes.JSON `gorm:"type:jsonb" json:"tier_instructions"`
	DefaultWeight    float64        `gorm:"not null;default:1" json:"default_weight"`
	IsCurrent        bool           `gorm:"not null;default:false" json:"is_current"`
	CreatedBy        string         `json:"created_by"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (AnalystContextVersion) TableName() string {
	return "analyst_context_versions"
}

// AnalystPortfolio is the paper-trading ledger for one fork, used to measure
// which fork is outperforming.
type AnalystPortfolio struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	AnalystID     uint      `gorm:"not null;index:idx_portfolio_fork,unique" json:"analyst_id"`
	ForkType      ForkType  `gorm:"not null;index:idx_portfolio_fork,unique" json:"fork_type"`
	Balance       float64   `gorm:"not null" json:"balance"`
	RealizedPnl   float64   `gorm:"not null" json:"realized_pnl"`
	UnrealizedPnl float64   `gorm:"not null" json:"unrealized_pnl"`
	WinCount      int       `gorm:"not null" json:"win_count"`
	LossCount     int       `gorm:"not null" json:"loss_count"`
	Status        string    `gorm:"not null;default:active" json:"status"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AnalystPortfolio) TableName() string {
	return "analyst_portfolios"
}

// WinRate returns wins over total closed trades, 0 when none are closed.
func (p *AnalystPortfolio) WinRate() float64 {
	total := p.WinCount + p.LossCount
	if total == 0 {
		return 0
	}
	return float64(p.WinCount) / float64(total)
}
