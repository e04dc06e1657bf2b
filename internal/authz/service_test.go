package authz

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupAuthzServiceTest(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	svc, err := NewService(db)
	if err != nil {
		t.Fatalf("new authz service failed: %v", err)
	}
	return svc
}

func TestEnforceActorWithRolePolicy(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.GrantRolePolicy("ops", "/admin/participants/:id", "DELETE"); err != nil {
		t.Fatalf("grant role policy failed: %v", err)
	}
	if err := svc.SetActorRoles(1, []string{"ops"}); err != nil {
		t.Fatalf("set actor roles failed: %v", err)
	}

	allow, err := svc.EnforceActor(1, "/api/v1/admin/participants/42", "delete")
	if err != nil {
		t.Fatalf("enforce allow failed: %v", err)
	}
	if !allow {
		t.Fatalf("expected allow=true")
	}

	allow, err = svc.EnforceActor(1, "/api/v1/admin/participants/42", "PUT")
	if err != nil {
		t.Fatalf("enforce deny failed: %v", err)
	}
	if allow {
		t.Fatalf("expected allow=false")
	}
}

func TestSetActorRolesOverride(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.GrantRolePolicy("ops", "/admin/recalculate", "POST"); err != nil {
		t.Fatalf("grant ops policy failed: %v", err)
	}
	if err := svc.GrantRolePolicy("finance", "/admin/withdrawals/:id/review", "POST"); err != nil {
		t.Fatalf("grant finance policy failed: %v", err)
	}

	if err := svc.SetActorRoles(2, []string{"ops"}); err != nil {
		t.Fatalf("set first role failed: %v", err)
	}
	roles, err := svc.GetActorRoles(2)
	if err != nil {
		t.Fatalf("get roles failed: %v", err)
	}
	if len(roles) != 1 || roles[0] != "role:ops" {
		t.Fatalf("roles want [role:ops], got=%v", roles)
	}

	if err := svc.SetActorRoles(2, []string{"finance"}); err != nil {
		t.Fatalf("set second role failed: %v", err)
	}

	allow, err := svc.EnforceActor(2, "/admin/recalculate", "POST")
	if err != nil {
		t.Fatalf("enforce old role failed: %v", err)
	}
	if allow {
		t.Fatalf("expected old role permission removed")
	}

	allow, err = svc.EnforceActor(2, "/admin/withdrawals/7/review", "POST")
	if err != nil {
		t.Fatalf("enforce new role failed: %v", err)
	}
	if !allow {
		t.Fatalf("expected new role permission granted")
	}
}

func TestNormalizeObject(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "/api/v1/admin/participants/:id", want: "/admin/participants/:id"},
		{in: "/admin/recalculate", want: "/admin/recalculate"},
		{in: "admin/packages", want: "/admin/packages"},
		{in: "/api/v1", want: "/"},
		{in: "", want: "/"},
	}
	for _, item := range cases {
		got := NormalizeObject(item.in)
		if got != item.want {
			t.Fatalf("normalize object failed, in=%q want=%q got=%q", item.in, item.want, got)
		}
	}
}

func TestBootstrapBuiltinRoles(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap builtin roles failed: %v", err)
	}
	// 重复执行不应报错
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap builtin roles again failed: %v", err)
	}

	roles, err := svc.ListRoles()
	if err != nil {
		t.Fatalf("list roles failed: %v", err)
	}
	wantRoles := map[string]bool{
		"role:readonly_auditor":      true,
		"role:compensation_operator": true,
		"role:finance":               true,
		"role:super_admin":           true,
	}
	for _, role := range roles {
		delete(wantRoles, role)
	}
	if len(wantRoles) != 0 {
		t.Fatalf("builtin roles missing: %v", wantRoles)
	}

	if err := svc.SetActorRoles(3, []string{RoleFinance}); err != nil {
		t.Fatalf("set actor roles failed: %v", err)
	}
	cases := []struct {
		obj   string
		act   string
		allow bool
	}{
		{obj: "/api/v1/admin/participants", act: "GET", allow: true},
		{obj: "/api/v1/admin/withdrawals/9/review", act: "POST", allow: true},
		{obj: "/api/v1/admin/recalculate", act: "POST", allow: false},
		{obj: "/api/v1/admin/participants/9", act: "DELETE", allow: false},
	}
	for _, item := range cases {
		allow, err := svc.EnforceActor(3, item.obj, item.act)
		if err != nil {
			t.Fatalf("enforce %s %s failed: %v", item.act, item.obj, err)
		}
		if allow != item.allow {
			t.Fatalf("enforce %s %s want %v got %v", item.act, item.obj, item.allow, allow)
		}
	}
}

func TestGrantOperatorKeepsExistingRoles(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap builtin roles failed: %v", err)
	}

	if err := svc.GrantOperator(10); err != nil {
		t.Fatalf("grant operator failed: %v", err)
	}
	allow, err := svc.EnforceActor(10, "/api/v1/admin/participants/3", "DELETE")
	if err != nil {
		t.Fatalf("enforce super admin failed: %v", err)
	}
	if !allow {
		t.Fatalf("expected super admin allowed")
	}

	if err := svc.SetActorRoles(11, []string{RoleReadonlyAuditor}); err != nil {
		t.Fatalf("set actor roles failed: %v", err)
	}
	if err := svc.GrantOperator(11); err != nil {
		t.Fatalf("grant operator failed: %v", err)
	}
	roles, err := svc.GetActorRoles(11)
	if err != nil {
		t.Fatalf("get roles failed: %v", err)
	}
	if len(roles) != 1 || roles[0] != "role:readonly_auditor" {
		t.Fatalf("existing roles should be kept, got=%v", roles)
	}
}

func TestSetActorRolesRejectsUnknownRole(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap builtin roles failed: %v", err)
	}
	err := svc.SetActorRoles(5, []string{RoleFinance, "treasurer"})
	if !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected unknown role error, got %v", err)
	}
	roles, err := svc.GetActorRoles(5)
	if err != nil {
		t.Fatalf("get roles failed: %v", err)
	}
	if len(roles) != 0 {
		t.Fatalf("roles should stay untouched on rejection, got=%v", roles)
	}
	if err := svc.SetActorRoles(0, nil); !errors.Is(err, ErrActorRequired) {
		t.Fatalf("expected actor required error, got %v", err)
	}
}

func TestSetActorRolesKeepsLastSuperAdmin(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap builtin roles failed: %v", err)
	}
	if err := svc.GrantOperator(1); err != nil {
		t.Fatalf("grant operator failed: %v", err)
	}
	if err := svc.SetActorRoles(1, []string{RoleReadonlyAuditor}); !errors.Is(err, ErrLastSuperAdmin) {
		t.Fatalf("expected last super admin error, got %v", err)
	}

	if err := svc.SetActorRoles(2, []string{RoleSuperAdmin}); err != nil {
		t.Fatalf("assign second super admin failed: %v", err)
	}
	if err := svc.SetActorRoles(1, []string{RoleReadonlyAuditor}); err != nil {
		t.Fatalf("demote with another super admin present failed: %v", err)
	}
	allow, err := svc.EnforceActor(1, "/api/v1/admin/recalculate", "POST")
	if err != nil {
		t.Fatalf("enforce failed: %v", err)
	}
	if allow {
		t.Fatalf("demoted actor should not run recalculation")
	}
}
