package auth

import "strings"

const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleEmployee = "employee"
)

var knownRoles = map[string]bool{
	RoleAdmin:    true,
	RoleManager:  true,
	RoleEmployee: true,
}

// Capabilities is the closed set of permission flags a role set resolves to.
// Handlers gate on these flags; raw role membership is never checked outside
// this package.
type Capabilities struct {
	ManageUsers       bool
	ManageDepartments bool
	ManageCategories  bool
	ManageCycles      bool
	ApproveRequests   bool
	AssignKPIs        bool
	ViewTeam          bool
	ViewAudit         bool
	ViewMetrics       bool
	Request360        bool
}

func ResolveCapabilities(roles []string) Capabilities {
	caps := Capabilities{}
	for _, role := range roles {
		switch strings.ToLower(strings.TrimSpace(role)) {
		case RoleAdmin:
			caps.ManageUsers = true
			caps.ManageDepartments = true
			caps.ManageCategories = true
			caps.ManageCycles = true
			caps.ApproveRequests = true
			caps.AssignKPIs = true
			caps.ViewTeam = true
			caps.ViewAudit = true
			caps.ViewMetrics = true
			caps.Request360 = true
		case RoleManager:
			caps.AssignKPIs = true
			caps.ViewTeam = true
			caps.Request360 = true
		}
	}
	return caps
}

type Dashboard string

const (
	DashboardAdmin    Dashboard = "admin"
	DashboardManager  Dashboard = "manager"
	DashboardEmployee Dashboard = "employee"
)

// SelectDashboard picks the dashboard variant for a role set, admin taking
// priority over manager over employee. A user with no recognized roles is not
// resolved yet; callers must treat that as a loading state, never as an
// employee default.
func SelectDashboard(roles []string) (Dashboard, bool) {
	hasManager := false
	hasEmployee := false
	for _, role := range roles {
		switch strings.ToLower(strings.TrimSpace(role)) {
		case RoleAdmin:
			return DashboardAdmin, true
		case RoleManager:
			hasManager = true
		case RoleEmployee:
			hasEmployee = true
		}
	}
	if hasManager {
		return DashboardManager, true
	}
	if hasEmployee {
		return DashboardEmployee, true
	}
	return "", false
}

// NormalizeRoles lowercases, deduplicates and drops unknown role names,
// preserving first-seen order.
func NormalizeRoles(roles []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		normalized := strings.ToLower(strings.TrimSpace(role))
		if !knownRoles[normalized] || seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, normalized)
	}
	return out
}
