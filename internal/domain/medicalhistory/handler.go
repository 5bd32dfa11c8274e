package medicalhistory

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/animus/animus/internal/platform/auth"
	"github.com/animus/animus/pkg/pagination"
)

// Handler provides HTTP handlers for medical history entries.
type Handler struct {
	svc *Service
}

// NewHandler creates a new medical history handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers all medical history routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/medical-histories", h.ListEntries)
	api.POST("/medical-histories", h.CreateEntry)
	api.GET("/medical-histories/:id", h.GetEntry)
	api.PATCH("/medical-histories/:id", h.UpdateEntry)
}

func (h *Handler) CreateEntry(c echo.Context) error {
	var e Entry
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e.ID = ""
	e.UserID = auth.UserIDFromContext(c.Request().Context())
	created, err := h.svc.CreateEntry(c.Request().Context(), &e)
	if err != nil {
		if errors.Is(err, ErrInvalidEntry) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !created {
		return c.JSON(http.StatusOK, e)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) GetEntry(c echo.Context) error {
	uid := auth.UserIDFromContext(c.Request().Context())
	e, err := h.svc.GetEntry(c.Request().Context(), uid, c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "medical history entry not found")
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) ListEntries(c echo.Context) error {
	pg := pagination.FromContext(c)
	uid := auth.UserIDFromContext(c.Request().Context())
	items, total, err := h.svc.ListEntries(c.Request().Context(), uid, c.QueryParam("condition"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type updateRequest struct {
	IsActive *bool `json:"isActive"`
}

func (h *Handler) UpdateEntry(c echo.Context) error {
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.IsActive == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "isActive is required")
	}
	uid := auth.UserIDFromContext(c.Request().Context())
	e, err := h.svc.SetActive(c.Request().Context(), uid, c.Param("id"), *req.IsActive)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "medical history entry not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, e)
}
