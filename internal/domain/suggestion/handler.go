package suggestion

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/referral/referral/internal/platform/auth"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleTriage))
	read.GET("/suggestions", h.List)
}

func (h *Handler) List(c echo.Context) error {
	items, err := h.engine.Evaluate(c.Request().Context(), c.QueryParam("specialty"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Suggestion{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"suggestions": items,
		"total":       len(items),
	})
}
