// Package router wires handlers and middleware onto the Echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/evcore/fleet-api/internal/handler"
	"github.com/evcore/fleet-api/internal/middleware"
	"github.com/evcore/fleet-api/internal/rbac"
)

// RegisterRoutes registers routes that need neither authentication nor rate
// limiting.  Currently that is only the health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the auth endpoints.  The open group (register,
// login, refresh, verify) carries the rate limiter; the protected group runs
// BearerAuth so handlers see a freshly loaded user.  Pass a nil limiter to
// run without rate limiting.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, limiter echo.MiddlewareFunc) {
	open := e.Group("/api/auth")
	if limiter != nil {
		open.Use(limiter)
	}
	open.POST("/register", a.Register)
	open.POST("/login", a.Login)
	open.POST("/refresh", a.Refresh)
	// verify handles the bearer header itself so it can report precise
	// 401 variants instead of the middleware's uniform rejection.
	open.GET("/verify", a.VerifyToken)

	protected := e.Group("/api/auth")
	protected.Use(middleware.BearerAuth(a.Tokens, a.Users))
	protected.POST("/logout", a.Logout)
	protected.PUT("/change-password", a.ChangePassword)
	protected.GET("/me", a.Me)
	protected.PUT("/profile", a.UpdateProfile)
}

// RegisterAdmin registers the super-admin settings endpoints for the
// role-permission table.
func RegisterAdmin(e *echo.Echo, p *handler.PermissionHandler, a *handler.AuthHandler) {
	g := e.Group("/api/admin")
	g.Use(middleware.BearerAuth(a.Tokens, a.Users))
	g.Use(middleware.RequireRole(rbac.RoleSuperAdmin))
	g.GET("/permissions/:role", p.Get)
	g.PUT("/permissions/:role", p.Update)
	g.PUT("/users/:id/deactivate", a.DeactivateUser)
}
