package waitinglist

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/referral/referral/internal/domain/referral"
	"github.com/referral/referral/internal/platform/auth"
)

var validate = validator.New()

// Workflow is the slice of the referral lifecycle the waiting list drives.
// Removal is a lifecycle transition, not a bare entry close, so it runs
// through the referral service.
type Workflow interface {
	RemoveFromWaitingList(ctx context.Context, id uuid.UUID) (*referral.Referral, error)
}

type Handler struct {
	svc      *Service
	workflow Workflow
}

func NewHandler(svc *Service, workflow Workflow) *Handler {
	return &Handler{svc: svc, workflow: workflow}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleTriage))
	read.GET("/waiting-list", h.List)
	read.GET("/waiting-list/specialties", h.Specialties)

	write := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleTriage))
	write.PUT("/waiting-list/order", h.Reorder)
	write.DELETE("/waiting-list/:referral_id", h.Remove)
}

type reorderRequest struct {
	Specialty   string      `json:"specialty" validate:"required"`
	ReferralIDs []uuid.UUID `json:"referral_ids" validate:"required,min=1"`
}

func (h *Handler) Reorder(c echo.Context) error {
	var req reorderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Reorder(c.Request().Context(), req.Specialty, req.ReferralIDs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) List(c echo.Context) error {
	views, err := h.svc.List(c.Request().Context(), c.QueryParam("specialty"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"entries": views,
		"total":   len(views),
	})
}

func (h *Handler) Specialties(c echo.Context) error {
	specs, err := h.svc.Specialties(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if specs == nil {
		specs = []string{}
	}
	return c.JSON(http.StatusOK, specs)
}

func (h *Handler) Remove(c echo.Context) error {
	id, err := uuid.Parse(c.Param("referral_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid referral id")
	}
	ctx := c.Request().Context()
	if actor := auth.UserIDFromContext(ctx); actor != "" {
		ctx = referral.WithActor(ctx, actor)
	}
	if _, err := h.workflow.RemoveFromWaitingList(ctx, id); err != nil {
		if errors.Is(err, referral.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "referral not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
