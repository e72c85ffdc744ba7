package auth

import "testing"

func TestSelectDashboardPriority(t *testing.T) {
	dashboard, ok := SelectDashboard([]string{"manager", "admin"})
	if !ok {
		t.Fatal("expected role set to resolve")
	}
	if dashboard != DashboardAdmin {
		t.Fatalf("expected admin dashboard, got %s", dashboard)
	}

	dashboard, ok = SelectDashboard([]string{"employee", "manager"})
	if !ok || dashboard != DashboardManager {
		t.Fatalf("expected manager dashboard, got %s (ok=%v)", dashboard, ok)
	}

	dashboard, ok = SelectDashboard([]string{"employee"})
	if !ok || dashboard != DashboardEmployee {
		t.Fatalf("expected employee dashboard, got %s (ok=%v)", dashboard, ok)
	}
}

func TestSelectDashboardEmptyIsUnresolved(t *testing.T) {
	if _, ok := SelectDashboard(nil); ok {
		t.Fatal("empty role set must not resolve to a dashboard")
	}
	if _, ok := SelectDashboard([]string{"intern"}); ok {
		t.Fatal("unknown roles must not resolve to a dashboard")
	}
}

func TestResolveCapabilities(t *testing.T) {
	admin := ResolveCapabilities([]string{RoleAdmin})
	if !admin.ManageUsers || !admin.ApproveRequests || !admin.ViewAudit {
		t.Fatalf("admin capabilities incomplete: %+v", admin)
	}

	manager := ResolveCapabilities([]string{RoleManager})
	if manager.ManageUsers || manager.ApproveRequests {
		t.Fatalf("manager must not hold admin capabilities: %+v", manager)
	}
	if !manager.ViewTeam || !manager.AssignKPIs || !manager.Request360 {
		t.Fatalf("manager capabilities incomplete: %+v", manager)
	}

	employee := ResolveCapabilities([]string{RoleEmployee})
	if employee != (Capabilities{}) {
		t.Fatalf("employee should resolve to no elevated capabilities: %+v", employee)
	}
}

func TestNormalizeRoles(t *testing.T) {
	roles := NormalizeRoles([]string{" Admin ", "employee", "admin", "superuser"})
	if len(roles) != 2 || roles[0] != "admin" || roles[1] != "employee" {
		t.Fatalf("unexpected normalized roles: %v", roles)
	}
}
