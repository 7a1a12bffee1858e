package entity

import "fmt"

// ScopeLevel identifies how narrowly a record applies.
type ScopeLevel string

const (
	ScopeLevelRunner   ScopeLevel = "runner"
	ScopeLevelDomain   ScopeLevel = "domain"
	ScopeLevelUniverse ScopeLevel = "universe"
	ScopeLevelTarget   ScopeLevel = "target"
)

// Scope is a tagged variant over the four scope levels. Narrowing keys are
// only reachable through the accessors for the matching level, so a target
// scope can never carry a stray domain key.
type Scope struct {
	level      ScopeLevel
	domain     string
	universeID string
	targetID   string
}

// RunnerScope applies to every decision the runner makes.
func RunnerScope() Scope {
	return Scope{level: ScopeLevelRunner}
}

// DomainScope applies to one domain (e.g. "equities", "crypto").
func DomainScope(domain string) Scope {
	return Scope{level: ScopeLevelDomain, domain: domain}
}

// UniverseScope applies to one universe of targets.
func UniverseScope(universeID string) Scope {
	return Scope{level: ScopeLevelUniverse, universeID: universeID}
}

// TargetScope applies to a single target.
func TargetScope(targetID string) Scope {
	return Scope{level: ScopeLevelTarget, targetID: targetID}
}

// Level returns the scope level tag.
func (s Scope) Level() ScopeLevel { return s.level }

// Domain returns the domain key; ok is false unless the level is domain.
func (s Scope) Domain() (string, bool) {
	return s.domain, s.level == ScopeLevelDomain
}

// UniverseID returns the universe key; ok is false unless the level is universe.
func (s Scope) UniverseID() (string, bool) {
	return s.universeID, s.level == ScopeLevelUniverse
}

// TargetID returns the target key; ok is false unless the level is target.
func (s Scope) TargetID() (string, bool) {
	return s.targetID, s.level == ScopeLevelTarget
}

// Validate checks that the level is known and its key is present.
func (s Scope) Validate() error {
	switch s.level {
	case ScopeLevelRunner:
		return nil
	case ScopeLevelDomain:
		if s.domain == "" {
			return fmt.Errorf("domain scope requires a domain")
		}
	case ScopeLevelUniverse:
		if s.universeID == "" {
			return fmt.Errorf("universe scope requires a universe id")
		}
	case ScopeLevelTarget:
		if s.targetID == "" {
			return fmt.Errorf("target scope requires a target id")
		}
	default:
		return fmt.Errorf("unknown scope level %q", s.level)
	}
	return nil
}

// ScopeFromColumns rebuilds a Scope from flat row columns.
func ScopeFromColumns(level ScopeLevel, domain, universeID, targetID string) (Scope, error) {
	var s Scope
	switch level {
	case ScopeLevelRunner:
		s = RunnerScope()
	case ScopeLevelDomain:
		s = DomainScope(domain)
	case ScopeLevelUniverse:
		s = UniverseScope(universeID)
	case ScopeLevelTarget:
		s = TargetScope(targetID)
	default:
		return Scope{}, fmt.Errorf("unknown scope level %q", level)
	}
	return s, s.Validate()
}

// Columns flattens the scope for persistence; unused keys are empty.
func (s Scope) Columns() (level ScopeLevel, domain, universeID, targetID string) {
	return s.level, s.domain, s.universeID, s.targetID
}
