package submission

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/animus/animus/internal/domain/history"
	"github.com/animus/animus/internal/domain/scan"
	"github.com/animus/animus/internal/platform/auth"
	"github.com/animus/animus/pkg/pagination"
)

// Handler exposes scan submission and history over HTTP.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the scan routes. submitMW wraps only the submission
// endpoint, which fans out to the analysis service.
func (h *Handler) RegisterRoutes(api *echo.Group, submitMW ...echo.MiddlewareFunc) {
	api.POST("/scans/:type", h.Submit, submitMW...)
	api.GET("/scans", h.ListRecords)
	api.GET("/scans/:id", h.GetRecord)
	api.POST("/scans/:id/evaluate", h.Evaluate)
	api.GET("/history", h.History)
}

// vitalsRequest accepts either form strings ("120/80", "72 bpm") or numbers.
type vitalsRequest struct {
	BloodPressure string  `json:"bloodPressure"`
	Pulse         string  `json:"pulse"`
	Temperature   string  `json:"temperature"`
	Oxygen        string  `json:"oxygen"`
	HeartRate     float64 `json:"heartRate"`
	BPSystolic    float64 `json:"bpSystolic"`
	BPDiastolic   float64 `json:"bpDiastolic"`
	O2            float64 `json:"o2"`
	TempValue     float64 `json:"temperatureValue"`
}

func (v vitalsRequest) data() scan.VitalsData {
	if v.BloodPressure != "" || v.Pulse != "" || v.Temperature != "" || v.Oxygen != "" {
		return scan.ParseVitals(v.BloodPressure, v.Pulse, v.Temperature, v.Oxygen)
	}
	return scan.VitalsData{HeartRate: v.HeartRate, BPSystolic: v.BPSystolic, BPDiastolic: v.BPDiastolic, O2: v.O2, Temperature: v.TempValue}
}

func (h *Handler) Submit(c echo.Context) error {
	t, err := scan.ParseType(c.Param("type"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req := Request{Type: t}

	switch t {
	case scan.TypeSkin, scan.TypeEye, scan.TypeMedicalReport:
		fh, err := c.FormFile("image")
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "image is required")
		}
		f, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		defer f.Close()
		req.Image = f
		req.ImageName = fh.Filename
		req.UserContext = strings.TrimSpace(c.FormValue("userContext"))
	case scan.TypeVitals:
		var v vitalsRequest
		if err := c.Bind(&v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		req.Payload = v.data()
	case scan.TypeSymptom:
		var d scan.SymptomData
		if err := c.Bind(&d); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		d.Symptoms = strings.TrimSpace(d.Symptoms)
		req.Payload = d
	case scan.TypeCardiac:
		var d scan.CardiacData
		if err := c.Bind(&d); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		req.Payload = d
	}

	uid := auth.UserIDFromContext(c.Request().Context())
	out, err := h.svc.Submit(c.Request().Context(), uid, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) ListRecords(c echo.Context) error {
	uid := auth.UserIDFromContext(c.Request().Context())
	records, err := h.svc.Records(c.Request().Context(), uid)
	if err != nil {
		return httpError(err)
	}
	if t := c.QueryParam("scanType"); t != "" && !strings.EqualFold(t, "all") {
		st, err := scan.ParseType(t)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		filtered := make([]scan.Record, 0, len(records))
		for _, r := range records {
			if r.Type == st {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}
	return c.JSON(http.StatusOK, pagination.Page(records, pagination.FromContext(c)))
}

func (h *Handler) GetRecord(c echo.Context) error {
	uid := auth.UserIDFromContext(c.Request().Context())
	rec, err := h.svc.Record(c.Request().Context(), uid, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) Evaluate(c echo.Context) error {
	uid := auth.UserIDFromContext(c.Request().Context())
	out, err := h.svc.Evaluate(c.Request().Context(), uid, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) History(c echo.Context) error {
	uid := auth.UserIDFromContext(c.Request().Context())
	f := history.Filter{Condition: c.QueryParam("condition")}
	if t := c.QueryParam("scanType"); t != "" && !strings.EqualFold(t, "all") {
		st, err := scan.ParseType(t)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		f.ScanType = st
	}
	view, err := h.svc.History(c.Request().Context(), uid, f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, view)
}

// httpError maps pipeline errors onto statuses; the body is the user-facing
// alert.
func httpError(err error) error {
	var (
		upload     *scan.UploadError
		backend    *scan.BackendAnalysisError
		incomplete *scan.IncompleteAnalysisError
		storage    *scan.StorageError
	)
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, history.ErrRecordNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "scan record not found")
	case errors.As(err, &upload), errors.As(err, &backend):
		return echo.NewHTTPError(http.StatusBadGateway, scan.AlertFor(err)).SetInternal(err)
	case errors.As(err, &incomplete):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, scan.AlertFor(err)).SetInternal(err)
	case errors.As(err, &storage):
		return echo.NewHTTPError(http.StatusServiceUnavailable, scan.AlertFor(err)).SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
