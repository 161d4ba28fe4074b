package notify

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler exposes the notification history over HTTP.
type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/notifications", h.List)
	api.POST("/notifications/read-all", h.MarkAllRead)
	api.POST("/notifications/:id/read", h.MarkRead)
	api.DELETE("/notifications/:id", h.Dismiss)
}

func (h *Handler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"notifications": h.hub.History(),
		"unread":        h.hub.Unread(),
	})
}

func (h *Handler) MarkRead(c echo.Context) error {
	if !h.hub.MarkRead(c.Param("id")) {
		return echo.NewHTTPError(http.StatusNotFound, "notification not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) MarkAllRead(c echo.Context) error {
	h.hub.MarkAllRead()
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Dismiss(c echo.Context) error {
	if !h.hub.Dismiss(c.Param("id")) {
		return echo.NewHTTPError(http.StatusNotFound, "notification not found")
	}
	return c.NoContent(http.StatusNoContent)
}
