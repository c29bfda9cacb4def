package agents

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/interfaces"
)

// Team holds the hired roles for one project run
type Team struct {
	roles  []interfaces.Agent
	cost   interfaces.CostManager
	logger arbor.ILogger
}

// NewTeam creates an empty team sharing one cost manager
func NewTeam(cost interfaces.CostManager, logger arbor.ILogger) *Team {
	return &Team{
		cost:   cost,
		logger: logger,
	}
}

// Hire adds roles to the team
func (t *Team) Hire(roles ...interfaces.Agent) {
	t.roles = append(t.roles, roles...)
	for _, role := range roles {
		t.logger.Debug().
			Str("role", role.Name()).
			Str("profile", role.Profile()).
			Msg("Role hired")
	}
}

// Roles returns all hired roles in hire order
func (t *Team) Roles() []interfaces.Agent {
	return t.roles
}

// Leader returns the team leader, falling back to the first hired role
// when no TeamLeader profile exists. Nil for an empty team.
func (t *Team) Leader() interfaces.Agent {
	for _, role := range t.roles {
		if role.Profile() == "TeamLeader" {
			return role
		}
	}
	if len(t.roles) > 0 {
		return t.roles[0]
	}
	return nil
}

// ByName returns the role with the given name, nil if absent
func (t *Team) ByName(name string) interfaces.Agent {
	for _, role := range t.roles {
		if role.Name() == name {
			return role
		}
	}
	return nil
}

// ActiveRoles returns the roles with pending work
func (t *Team) ActiveRoles() []interfaces.Agent {
	active := make([]interfaces.Agent, 0, len(t.roles))
	for _, role := range t.roles {
		if !role.IsIdle() {
			active = append(active, role)
		}
	}
	return active
}

// IsIdle reports whether every role's inbox is empty
func (t *Team) IsIdle() bool {
	for _, role := range t.roles {
		if !role.IsIdle() {
			return false
		}
	}
	return true
}

// CostManager returns the shared cost manager
func (t *Team) CostManager() interfaces.CostManager {
	return t.cost
}
