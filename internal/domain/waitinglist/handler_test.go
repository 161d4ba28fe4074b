package waitinglist

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/referral/referral/internal/domain/referral"
	"github.com/referral/referral/internal/platform/auth"
)

type mockWorkflow struct {
	removed []uuid.UUID
	actor   string
	err     error
}

func (m *mockWorkflow) RemoveFromWaitingList(ctx context.Context, id uuid.UUID) (*referral.Referral, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.removed = append(m.removed, id)
	m.actor = referral.ActorFrom(ctx)
	return &referral.Referral{ID: id, Status: referral.StatusAccepted, TriageStatus: referral.TriageAssessed}, nil
}

func newHandlerServer(svc *Service, wf Workflow) *echo.Echo {
	e := echo.New()
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, auth.UserIDKey, "triage.nurse")
			ctx = context.WithValue(ctx, auth.UserRolesKey, []string{auth.RoleTriage})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	NewHandler(svc, wf).RegisterRoutes(api)
	return e
}

func TestRemoveEndpointRunsLifecycleTransition(t *testing.T) {
	svc, _, _ := newTestService()
	wf := &mockWorkflow{}
	e := newHandlerServer(svc, wf)

	id := uuid.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/waiting-list/"+id.String(), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(wf.removed) != 1 || wf.removed[0] != id {
		t.Errorf("removal not routed through the referral lifecycle: %v", wf.removed)
	}
	if wf.actor != "triage.nurse" {
		t.Errorf("actor = %q, want the authenticated user", wf.actor)
	}
}

func TestRemoveEndpointUnknownReferral(t *testing.T) {
	svc, _, _ := newTestService()
	wf := &mockWorkflow{err: referral.ErrNotFound}
	e := newHandlerServer(svc, wf)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/waiting-list/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
