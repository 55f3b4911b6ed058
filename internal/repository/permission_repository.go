package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/evcore/fleet-api/internal/auth"
	"github.com/evcore/fleet-api/internal/model"
	"github.com/evcore/fleet-api/internal/rbac"
)

// PermissionRepo persists per-role module grants in the 'role_permissions'
// table.  The module map lives in a JSON column; one row per role.
type PermissionRepo struct{ DB *sql.DB }

func NewPermissionRepo(db *sql.DB) *PermissionRepo { return &PermissionRepo{DB: db} }

// GetByRole loads the module map for a role.  auth.ErrNotFound when the role
// has no row yet.
func (r *PermissionRepo) GetByRole(ctx context.Context, role string) (model.RolePermission, error) {
	var (
		p   model.RolePermission
		raw []byte
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT role, modules, created_at, updated_at FROM role_permissions WHERE role=? LIMIT 1",
		role).Scan(&p.Role, &raw, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.RolePermission{}, auth.ErrNotFound
		}
		return model.RolePermission{}, err
	}
	if err := json.Unmarshal(raw, &p.Modules); err != nil {
		return model.RolePermission{}, err
	}
	return p, nil
}

// EnsureDefaults creates the role's permission row with rbac defaults if it
// does not exist yet.  Called when the first user of a role is registered.
// INSERT IGNORE keeps concurrent registrations from racing.
func (r *PermissionRepo) EnsureDefaults(ctx context.Context, role string) error {
	raw, err := json.Marshal(rbac.DefaultModules(role))
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx,
		"INSERT IGNORE INTO role_permissions (role, modules) VALUES (?,?)",
		role, raw)
	return err
}

// UpdateModules replaces the full module map for a role.  Only super-admin
// settings actions reach this.
func (r *PermissionRepo) UpdateModules(ctx context.Context, role string, modules map[string]model.ModuleGrant) error {
	for _, grant := range modules {
		for _, a := range grant.Actions {
			switch strings.ToLower(a) {
			case rbac.ActionView, rbac.ActionCreate, rbac.ActionEdit, rbac.ActionDelete, rbac.ActionExport:
			default:
				return auth.ErrValidationFailed
			}
		}
	}
	raw, err := json.Marshal(modules)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE role_permissions SET modules=? WHERE role=?", raw, role)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// No row yet: fall back to insert so settings edits work even for
		// roles that never had a user.
		_, err = r.DB.ExecContext(ctx,
			"INSERT INTO role_permissions (role, modules) VALUES (?,?)", role, raw)
	}
	return err
}

// ModulesForRole resolves the effective module map for a role: bypass tiers
// get the full grant set, everyone else reads their stored row (empty map
// when absent, which denies everything).
func (r *PermissionRepo) ModulesForRole(ctx context.Context, role string) (map[string]model.ModuleGrant, error) {
	if rbac.Bypass(role) {
		return rbac.FullGrants(), nil
	}
	p, err := r.GetByRole(ctx, role)
	if err != nil {
		if err == auth.ErrNotFound {
			return map[string]model.ModuleGrant{}, nil
		}
		return nil, err
	}
	return p.Modules, nil
}
