package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evcore/fleet-api/internal/handler"
	"github.com/evcore/fleet-api/internal/model"
	"github.com/evcore/fleet-api/internal/rbac"
)

type fakeAdminPerms struct {
	mu     sync.Mutex
	stored map[string]map[string]model.ModuleGrant
}

func (f *fakeAdminPerms) ModulesForRole(_ context.Context, role string) (map[string]model.ModuleGrant, error) {
	if rbac.Bypass(role) {
		return rbac.FullGrants(), nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.stored[role]; ok {
		return m, nil
	}
	return rbac.DefaultModules(role), nil
}

func (f *fakeAdminPerms) UpdateModules(_ context.Context, role string, modules map[string]model.ModuleGrant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stored == nil {
		f.stored = make(map[string]map[string]model.ModuleGrant)
	}
	f.stored[role] = modules
	return nil
}

func permCtx(e *echo.Echo, method, role, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("role")
	c.SetParamValues(role)
	return c, rec
}

func TestPermissionGet(t *testing.T) {
	h := handler.NewPermissionHandler(&fakeAdminPerms{})
	e := echo.New()

	c, rec := permCtx(e, http.MethodGet, "pilot", "")
	require.NoError(t, h.Get(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Role    string                       `json:"role"`
		Modules map[string]model.ModuleGrant `json:"modules"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "pilot", out.Role)
	_, hasDB := out.Modules["database-management"]
	assert.False(t, hasDB)

	c, rec = permCtx(e, http.MethodGet, "dispatcher", "")
	require.NoError(t, h.Get(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPermissionUpdate(t *testing.T) {
	perms := &fakeAdminPerms{}
	h := handler.NewPermissionHandler(perms)
	e := echo.New()

	body := `{"charging-tracker":{"enabled":true,"actions":["view","export"]}}`
	c, rec := permCtx(e, http.MethodPut, "pilot", body)
	require.NoError(t, h.Update(c))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := perms.ModulesForRole(context.Background(), "pilot")
	require.NoError(t, err)
	assert.True(t, stored["charging-tracker"].Allows("export"))
	assert.False(t, stored["charging-tracker"].Allows("delete"))
}

func TestPermissionUpdateRejectsBypassRoles(t *testing.T) {
	h := handler.NewPermissionHandler(&fakeAdminPerms{})
	e := echo.New()

	body := `{"charging-tracker":{"enabled":false}}`
	for _, role := range []string{"admin", "super_admin"} {
		c, rec := permCtx(e, http.MethodPut, role, body)
		require.NoError(t, h.Update(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code, role)
	}
}
