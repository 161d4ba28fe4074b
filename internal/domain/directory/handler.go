package directory

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/referral/referral/internal/platform/auth"
)

var validate = validator.New()

type Handler struct {
	lookup *Lookup
}

func NewHandler(lookup *Lookup) *Handler {
	return &Handler{lookup: lookup}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleTriage, auth.RoleReferrer))
	read.GET("/directory/specialties", h.ListSpecialties)
	read.GET("/directory/specialties/:id/services", h.ListServices)
	read.GET("/directory/specialties/:id/teams", h.ListTeams)
	read.GET("/directory/specialties/:id/practitioners", h.ListPractitioners)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/directory/specialties", h.CreateSpecialty)
	admin.POST("/directory/specialties/:id/services", h.CreateService)
	admin.POST("/directory/specialties/:id/teams", h.CreateTeam)
	admin.POST("/directory/specialties/:id/practitioners", h.CreatePractitioner)
}

func (h *Handler) ListSpecialties(c echo.Context) error {
	items, err := h.lookup.Specialties(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Specialty{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListServices(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid specialty id")
	}
	items, err := h.lookup.Services(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "specialty not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Service{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListTeams(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid specialty id")
	}
	items, err := h.lookup.Teams(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "specialty not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Team{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListPractitioners(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid specialty id")
	}
	items, err := h.lookup.Practitioners(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "specialty not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Practitioner{}
	}
	return c.JSON(http.StatusOK, items)
}

type createSpecialtyRequest struct {
	Code string `json:"code"`
	Name string `json:"name" validate:"required"`
}

func (h *Handler) CreateSpecialty(c echo.Context) error {
	var req createSpecialtyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "specialty name is required")
	}
	s, err := h.lookup.AddSpecialty(c.Request().Context(), req.Code, req.Name)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, s)
}

type createServiceRequest struct {
	Name     string `json:"name" validate:"required"`
	Location string `json:"location"`
}

func (h *Handler) CreateService(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid specialty id")
	}
	var req createServiceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "service name is required")
	}
	s, err := h.lookup.AddService(c.Request().Context(), id, req.Name, req.Location)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "specialty not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, s)
}

type createTeamRequest struct {
	Name string `json:"name" validate:"required"`
}

func (h *Handler) CreateTeam(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid specialty id")
	}
	var req createTeamRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "team name is required")
	}
	t, err := h.lookup.AddTeam(c.Request().Context(), id, req.Name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "specialty not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, t)
}

type createPractitionerRequest struct {
	Name string `json:"name" validate:"required"`
	Role string `json:"role"`
}

func (h *Handler) CreatePractitioner(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid specialty id")
	}
	var req createPractitionerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "practitioner name is required")
	}
	p, err := h.lookup.AddPractitioner(c.Request().Context(), id, req.Name, req.Role)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "specialty not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}
