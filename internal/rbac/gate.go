package rbac

import (
	"context"
	"strings"
)

// PermissionSource supplies the capability names associated with a role.
type PermissionSource interface {
	RolePermissions(ctx context.Context, role Role) ([]string, error)
}

// TeamDirectory resolves hierarchy edges needed by ownership rules.
type TeamDirectory interface {
	// AgentIDs returns the agents whose team_leader_id equals teamLeaderID.
	AgentIDs(ctx context.Context, teamLeaderID int64) ([]int64, error)
	// OrgMemberIDs returns every user in a manager's organisation: the team
	// leaders they manage plus those leaders' agents.
	OrgMemberIDs(ctx context.Context, managerID int64) ([]int64, error)
}

// OwnershipRule decides whether a principal may act on a resource owned by
// ownerID. Rules run only after the capability check has already passed and
// the principal is not the owner.
type OwnershipRule func(ctx context.Context, g *Gate, p Principal, ownerID int64) (bool, error)

// Gate is the single authorization decision point. Route handlers never
// re-implement role checks; they ask the gate. Decisions are pure functions
// over the principal, the stored role/permission associations, and at most
// one directory read.
type Gate struct {
	perms     PermissionSource
	directory TeamDirectory
	rules     map[Role]OwnershipRule
}

// GateOption customises gate construction.
type GateOption func(*Gate)

// WithManagerRule overrides the manager visibility policy, which is an
// external policy input rather than a property of the gate itself.
func WithManagerRule(rule OwnershipRule) GateOption {
	return func(g *Gate) {
		g.rules[RoleManager] = rule
	}
}

// NewGate builds a Gate with the default per-role decision table.
func NewGate(perms PermissionSource, directory TeamDirectory, opts ...GateOption) *Gate {
	g := &Gate{perms: perms, directory: directory}
	g.rules = map[Role]OwnershipRule{
		RoleAgent:      denyNonOwner,
		RoleTeamLeader: teamLeaderOwnsAgent,
		RoleManager:    managerOwnsOrgMember,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// HasPermission reports whether the role carries the named capability.
// Admins are allowed unconditionally, independent of stored associations.
func (g *Gate) HasPermission(ctx context.Context, role Role, capability string) (bool, error) {
	if role == RoleAdmin {
		return true, nil
	}
	capability = strings.ToLower(strings.TrimSpace(capability))
	if capability == "" {
		return false, nil
	}
	granted, err := g.perms.RolePermissions(ctx, role)
	if err != nil {
		return false, err
	}
	for _, name := range granted {
		if strings.ToLower(name) == capability {
			return true, nil
		}
	}
	return false, nil
}

// HasOwnershipAccess reports whether the principal may act on a resource
// owned by ownerID. Owners and admins always pass; everyone else is subject
// to their role's hierarchy rule.
func (g *Gate) HasOwnershipAccess(ctx context.Context, p Principal, ownerID int64) (bool, error) {
	if p.IsAdmin() || p.ID == ownerID {
		return true, nil
	}
	rule, ok := g.rules[p.Role]
	if !ok {
		return false, nil
	}
	return rule(ctx, g, p, ownerID)
}

func denyNonOwner(ctx context.Context, g *Gate, p Principal, ownerID int64) (bool, error) {
	return false, nil
}

func teamLeaderOwnsAgent(ctx context.Context, g *Gate, p Principal, ownerID int64) (bool, error) {
	agents, err := g.directory.AgentIDs(ctx, p.ID)
	if err != nil {
		return false, err
	}
	for _, id := range agents {
		if id == ownerID {
			return true, nil
		}
	}
	return false, nil
}

func managerOwnsOrgMember(ctx context.Context, g *Gate, p Principal, ownerID int64) (bool, error) {
	members, err := g.directory.OrgMemberIDs(ctx, p.ID)
	if err != nil {
		return false, err
	}
	for _, id := range members {
		if id == ownerID {
			return true, nil
		}
	}
	return false, nil
}
