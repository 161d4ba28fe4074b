package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextWithRoles(roles ...string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := context.WithValue(req.Context(), UserRolesKey, roles)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec)
}

func TestRequireRole(t *testing.T) {
	cases := []struct {
		name     string
		have     []string
		required []string
		allowed  bool
	}{
		{"exact match", []string{RoleTriage}, []string{RoleTriage}, true},
		{"one of several", []string{RoleClinician}, []string{RoleTriage, RoleClinician}, true},
		{"admin passes everything", []string{RoleAdmin}, []string{RoleTriage}, true},
		{"missing role", []string{RoleReferrer}, []string{RoleTriage}, false},
		{"no roles", nil, []string{RoleTriage}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := contextWithRoles(tc.have...)
			mw := RequireRole(tc.required...)
			h := mw(func(c echo.Context) error {
				return c.String(http.StatusOK, "ok")
			})

			err := h(c)
			if tc.allowed {
				if err != nil {
					t.Fatalf("expected access, got %v", err)
				}
				return
			}
			httpErr, ok := err.(*echo.HTTPError)
			if !ok || httpErr.Code != http.StatusForbidden {
				t.Fatalf("expected 403, got %v", err)
			}
		})
	}
}
