package referral

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/referral/referral/internal/platform/auth"
	"github.com/referral/referral/pkg/pagination"
)

var validate = validator.New()

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleTriage, auth.RoleReferrer))
	read.GET("/referrals", h.ListReferrals)
	read.GET("/referrals/:id", h.GetReferral)
	read.GET("/referrals/ubrn/:ubrn", h.GetReferralByUBRN)
	read.GET("/referrals/:id/children", h.ListChildren)
	read.GET("/referrals/:id/notes", h.ListNotes)
	read.GET("/referrals/:id/attachments", h.ListAttachments)
	read.GET("/referrals/:id/audit", h.AuditTrail)
	read.GET("/referrals/:id/pathway", h.Pathway)
	read.GET("/stats/referrals", h.Stats)

	intake := api.Group("", auth.RequireRole(auth.RoleReferrer, auth.RoleClinician))
	intake.POST("/referrals", h.CreateReferral)

	triage := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleTriage))
	triage.PUT("/referrals/:id", h.UpdateReferral)
	triage.POST("/referrals/:id/accept", h.AcceptReferral)
	triage.POST("/referrals/:id/reject", h.RejectReferral)
	triage.POST("/referrals/:id/forward", h.ForwardReferral)
	triage.POST("/referrals/:id/triage", h.SetTriageStatus)
	triage.POST("/referrals/:id/waiting-list", h.AddToWaitingList)
	triage.POST("/referrals/:id/discharge", h.DischargeReferral)
	triage.POST("/referrals/:id/complete", h.CompleteReferral)
	triage.POST("/referrals/:id/notes", h.AddNote)
	triage.POST("/referrals/:id/attachments", h.AddAttachment)
}

type createReferralRequest struct {
	Priority  Priority     `json:"priority"`
	Specialty string       `json:"specialty" validate:"required"`
	Service   *string      `json:"service"`
	Patient   Patient      `json:"patient"`
	Referrer  Referrer     `json:"referrer"`
	Clinical  ClinicalInfo `json:"clinical_info"`
	Tags      []string     `json:"tags"`
}

func (h *Handler) CreateReferral(c echo.Context) error {
	var req createReferralRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Patient.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patient name is required")
	}

	r := &Referral{
		Priority:  req.Priority,
		Specialty: req.Specialty,
		Service:   req.Service,
		Patient:   req.Patient,
		Referrer:  req.Referrer,
		Clinical:  req.Clinical,
		Tags:      req.Tags,
	}
	if err := h.svc.Create(h.actorCtx(c), r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) GetReferral(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return notFoundOrError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) GetReferralByUBRN(c echo.Context) error {
	ubrn := c.Param("ubrn")
	r, err := h.svc.GetByUBRN(c.Request().Context(), ubrn)
	if err != nil {
		return notFoundOrError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ListReferrals(c echo.Context) error {
	pg := pagination.FromContext(c)

	f := Filter{
		Status:    ParseStatusFilter(c.QueryParam("status")),
		Priority:  Priority(c.QueryParam("priority")),
		Specialty: c.QueryParam("specialty"),
		Search:    c.QueryParam("q"),
	}
	if f.Priority != "" && !ValidPriority(f.Priority) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid priority: "+string(f.Priority))
	}

	key := SortKey(c.QueryParam("sort"))
	if !ValidSortKey(key) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid sort key: "+string(key))
	}
	ascending := !strings.EqualFold(c.QueryParam("order"), "desc")

	items, total, err := h.svc.List(c.Request().Context(), f, key, ascending, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListChildren(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListChildren(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdateReferral(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var r Referral
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r.ID = id
	updated, err := h.svc.Update(h.actorCtx(c), &r)
	if err != nil {
		return badRequestOrNotFound(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) AcceptReferral(c echo.Context) error {
	return h.runTransition(c, func(ctx echo.Context, id uuid.UUID) (*Referral, error) {
		return h.svc.Accept(h.actorCtx(ctx), id)
	})
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) RejectReferral(c echo.Context) error {
	var req rejectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "rejection reason is required")
	}
	return h.runTransition(c, func(ctx echo.Context, id uuid.UUID) (*Referral, error) {
		return h.svc.Reject(h.actorCtx(ctx), id, req.Reason)
	})
}

type forwardRequest struct {
	Specialty string `json:"specialty" validate:"required"`
}

func (h *Handler) ForwardReferral(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req forwardRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "target specialty is required")
	}
	parent, child, err := h.svc.Forward(h.actorCtx(c), id, req.Specialty)
	if err != nil {
		return badRequestOrNotFound(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"referral":     parent,
		"sub_referral": child,
	})
}

type triageRequest struct {
	TriageStatus TriageStatus `json:"triage_status" validate:"required"`
}

func (h *Handler) SetTriageStatus(c echo.Context) error {
	var req triageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "triage_status is required")
	}
	return h.runTransition(c, func(ctx echo.Context, id uuid.UUID) (*Referral, error) {
		return h.svc.SetTriageStatus(h.actorCtx(ctx), id, req.TriageStatus)
	})
}

func (h *Handler) AddToWaitingList(c echo.Context) error {
	return h.runTransition(c, func(ctx echo.Context, id uuid.UUID) (*Referral, error) {
		return h.svc.AddToWaitingList(h.actorCtx(ctx), id)
	})
}

func (h *Handler) DischargeReferral(c echo.Context) error {
	return h.runTransition(c, func(ctx echo.Context, id uuid.UUID) (*Referral, error) {
		return h.svc.Discharge(h.actorCtx(ctx), id)
	})
}

func (h *Handler) CompleteReferral(c echo.Context) error {
	return h.runTransition(c, func(ctx echo.Context, id uuid.UUID) (*Referral, error) {
		return h.svc.Complete(h.actorCtx(ctx), id)
	})
}

type noteRequest struct {
	Body string `json:"body" validate:"required"`
}

func (h *Handler) AddNote(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req noteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "note body is required")
	}
	author := auth.UserNameFromContext(c.Request().Context())
	if author == "" {
		author = auth.UserIDFromContext(c.Request().Context())
	}
	n, err := h.svc.AddNote(c.Request().Context(), id, author, req.Body)
	if err != nil {
		return badRequestOrNotFound(err)
	}
	return c.JSON(http.StatusCreated, n)
}

func (h *Handler) ListNotes(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	notes, err := h.svc.ListNotes(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, notes)
}

type attachmentRequest struct {
	Filename    string `json:"filename" validate:"required"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	StorageURL  string `json:"storage_url"`
}

func (h *Handler) AddAttachment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req attachmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "filename is required")
	}
	a := &Attachment{
		ReferralID:  id,
		Filename:    req.Filename,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
		StorageURL:  req.StorageURL,
		UploadedBy:  auth.UserIDFromContext(c.Request().Context()),
	}
	if err := h.svc.AddAttachment(c.Request().Context(), a); err != nil {
		return badRequestOrNotFound(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) ListAttachments(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListAttachments(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) AuditTrail(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	entries, total, err := h.svc.AuditTrail(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, pg.Limit, pg.Offset))
}

func (h *Handler) Pathway(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Pathway(c.Request().Context(), id)
	if err != nil {
		return notFoundOrError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Stats(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) runTransition(c echo.Context, fn func(echo.Context, uuid.UUID) (*Referral, error)) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	r, err := fn(c, id)
	if err != nil {
		return badRequestOrNotFound(err)
	}
	return c.JSON(http.StatusOK, r)
}

// actorCtx stamps the authenticated user onto the request context for audit
// attribution.
func (h *Handler) actorCtx(c echo.Context) context.Context {
	ctx := c.Request().Context()
	actor := auth.UserIDFromContext(ctx)
	if actor == "" {
		return ctx
	}
	return WithActor(ctx, actor)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func notFoundOrError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "referral not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func badRequestOrNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "referral not found")
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}
