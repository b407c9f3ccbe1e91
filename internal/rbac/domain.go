package rbac

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Role is the fixed enumeration of account roles. Every principal holds
// exactly one role at a time.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleManager    Role = "MANAGER"
	RoleTeamLeader Role = "TEAM_LEADER"
	RoleAgent      Role = "AGENT"
)

// AllRoles lists the roles in privilege order.
func AllRoles() []Role {
	return []Role{RoleAdmin, RoleManager, RoleTeamLeader, RoleAgent}
}

// ParseRole validates a raw role string.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	switch role {
	case RoleAdmin, RoleManager, RoleTeamLeader, RoleAgent:
		return role, nil
	}
	return "", fmt.Errorf("rbac: unknown role %q", raw)
}

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

var titleCaser = cases.Title(language.English)

// DisplayName renders the role for UI consumption, e.g. "Team Leader".
func (r Role) DisplayName() string {
	return titleCaser.String(strings.ReplaceAll(strings.ToLower(string(r)), "_", " "))
}

// Permission represents an atomic capability grantable to a role.
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
}

// Principal describes the authenticated actor as seen by the gate. The
// hierarchy backreferences mirror the users table: agents point at their
// team leader, team leaders at their manager.
type Principal struct {
	ID           int64
	Role         Role
	TeamLeaderID *int64
	ManagedBy    *int64
}

// IsAdmin reports whether the principal bypasses capability checks.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
