package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/evcore/fleet-api/internal/auth"
	"github.com/evcore/fleet-api/internal/model"
	"github.com/evcore/fleet-api/internal/rbac"
)

// PermissionAdminStore is the slice of repository.PermissionRepo the
// settings endpoints need.
type PermissionAdminStore interface {
	ModulesForRole(ctx context.Context, role string) (map[string]model.ModuleGrant, error)
	UpdateModules(ctx context.Context, role string, modules map[string]model.ModuleGrant) error
}

// PermissionHandler serves the super-admin settings endpoints that read and
// rewrite per-role module grants.
type PermissionHandler struct {
	Perms PermissionAdminStore
}

func NewPermissionHandler(perms PermissionAdminStore) *PermissionHandler {
	return &PermissionHandler{Perms: perms}
}

// Get returns the effective module map for a role.  Bypass roles report the
// full grant set since they have no table row of their own.
func (h *PermissionHandler) Get(c echo.Context) error {
	role := c.Param("role")
	if !rbac.Valid(role) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown role"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	modules, err := h.Perms.ModulesForRole(ctx, role)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load permissions failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"role": role, "modules": modules})
}

// Update replaces the module map for a role.  Bypass roles are immutable:
// their always-allow status lives in code, not in the table.
func (h *PermissionHandler) Update(c echo.Context) error {
	role := c.Param("role")
	if !rbac.Valid(role) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown role"})
	}
	if rbac.Bypass(role) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "role bypasses permission table"})
	}

	var modules map[string]model.ModuleGrant
	if err := c.Bind(&modules); err != nil || len(modules) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "module map required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Perms.UpdateModules(ctx, role, modules); err != nil {
		if errors.Is(err, auth.ErrValidationFailed) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown action in module map"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update permissions failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"role": role, "modules": modules})
}
