package shared

// Capability names grantable to roles. Presence of an association implies
// the capability is enabled for that role.
const (
	PermViewDashboard = "view_dashboard"

	PermViewAgents   = "view_agents"
	PermManageAgents = "manage_agents"

	PermViewScorecards   = "view_scorecards"
	PermRecordScorecards = "record_scorecards"
	PermExportScorecards = "export_scorecards"

	PermViewSessions   = "view_sessions"
	PermManageSessions = "manage_sessions"

	PermViewInsights = "view_insights"

	PermManageUsers = "manage_users"
	PermManageRoles = "manage_roles"
)

// AllCapabilities lists every capability known to the application, used for
// the role administration listing.
func AllCapabilities() []string {
	return []string{
		PermViewDashboard,
		PermViewAgents,
		PermManageAgents,
		PermViewScorecards,
		PermRecordScorecards,
		PermExportScorecards,
		PermViewSessions,
		PermManageSessions,
		PermViewInsights,
		PermManageUsers,
		PermManageRoles,
	}
}
