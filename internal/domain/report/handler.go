package report

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/animus/animus/internal/domain/history"
	"github.com/animus/animus/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/scans/:id/report.pdf", h.Download)
	api.POST("/scans/:id/report", h.Save)
}

// Download renders the PDF and saves the report upstream on first view. A
// failed save does not block the download.
func (h *Handler) Download(c echo.Context) error {
	ctx := c.Request().Context()
	uid := auth.UserIDFromContext(ctx)
	data, doc, err := h.svc.PDF(ctx, uid, c.Param("id"))
	if errors.Is(err, history.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "scan record not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if _, err := h.svc.EnsureSaved(ctx, uid, doc.Record); err != nil {
		h.svc.logger.Warn().Err(err).Str("record_id", doc.Record.ID).Msg("health report save failed")
	}
	name := fmt.Sprintf("animus_report_%s.pdf", doc.Record.ID)
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", name))
	return c.Blob(http.StatusOK, "application/pdf", data)
}

func (h *Handler) Save(c echo.Context) error {
	ctx := c.Request().Context()
	uid := auth.UserIDFromContext(ctx)
	doc, err := h.svc.Document(ctx, uid, c.Param("id"))
	if errors.Is(err, history.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "scan record not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	saved, err := h.svc.EnsureSaved(ctx, uid, doc.Record)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"created": saved})
}
