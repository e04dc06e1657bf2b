package authz

import "fmt"

// 预置角色名
const (
	RoleSuperAdmin      = "super_admin"
	RoleReadonlyAuditor = "readonly_auditor"
	RoleOperator        = "compensation_operator"
	RoleFinance         = "finance"
)

// RoleSeed 预置角色定义
type RoleSeed struct {
	Role     string
	Inherits []string
	Policies []Policy
}

// BuiltinRoleSeeds 系统预置角色矩阵
func BuiltinRoleSeeds() []RoleSeed {
	return []RoleSeed{
		{
			Role: RoleReadonlyAuditor,
			Policies: []Policy{
				{Object: "/admin/*", Action: "GET"},
			},
		},
		{
			Role:     RoleOperator,
			Inherits: []string{RoleReadonlyAuditor},
			Policies: []Policy{
				{Object: "/admin/participants", Action: "POST"},
				{Object: "/admin/participants/root", Action: "POST"},
				{Object: "/admin/participants/:id", Action: "DELETE"},
				{Object: "/admin/participants/:id/levels", Action: "PUT"},
				{Object: "/admin/packages", Action: "POST"},
				{Object: "/admin/packages/:id/payments", Action: "POST"},
				{Object: "/admin/packages/:id/compensate", Action: "POST"},
				{Object: "/admin/recalculate", Action: "POST"},
			},
		},
		{
			Role:     RoleFinance,
			Inherits: []string{RoleReadonlyAuditor},
			Policies: []Policy{
				{Object: "/admin/withdrawals/:id/review", Action: "POST"},
			},
		},
		{
			Role: RoleSuperAdmin,
			Policies: []Policy{
				{Object: "/admin/*", Action: "*"},
			},
		},
	}
}

// BootstrapBuiltinRoles 初始化预置角色与默认策略
func (s *Service) BootstrapBuiltinRoles() error {
	if s == nil || s.enforcer == nil {
		return ErrUnavailable
	}

	changed := false
	for _, seed := range BuiltinRoleSeeds() {
		role, err := NormalizeRole(seed.Role)
		if err != nil {
			return err
		}

		exists, err := s.enforcer.HasNamedGroupingPolicy("g", role, roleAnchor)
		if err != nil {
			return fmt.Errorf("check builtin role failed: %w", err)
		}
		if !exists {
			added, err := s.enforcer.AddNamedGroupingPolicy("g", role, roleAnchor)
			if err != nil {
				return fmt.Errorf("create builtin role failed: %w", err)
			}
			changed = changed || added
		}

		for _, parent := range seed.Inherits {
			parentRole, err := NormalizeRole(parent)
			if err != nil {
				return err
			}
			added, err := s.enforcer.AddNamedGroupingPolicy("g", role, parentRole)
			if err != nil {
				return fmt.Errorf("link role inheritance failed: %w", err)
			}
			changed = changed || added
		}

		for _, policy := range seed.Policies {
			action := NormalizeAction(policy.Action)
			if action == "" {
				return fmt.Errorf("builtin policy action is required")
			}
			added, err := s.enforcer.AddPolicy(role, NormalizeObject(policy.Object), action)
			if err != nil {
				return fmt.Errorf("add builtin policy failed: %w", err)
			}
			changed = changed || added
		}
	}

	if changed {
		return s.saveAndReload()
	}
	return nil
}

// GrantOperator 为平台运营账号授予超级管理员角色（已有角色时不覆盖）
func (s *Service) GrantOperator(participantID uint) error {
	roles, err := s.GetActorRoles(participantID)
	if err != nil {
		return err
	}
	if len(roles) > 0 {
		return nil
	}
	return s.SetActorRoles(participantID, []string{RoleSuperAdmin})
}
