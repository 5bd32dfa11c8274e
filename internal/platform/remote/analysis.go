package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/animus/animus/internal/domain/scan"
)

var analysisPaths = map[scan.Type]string{
	scan.TypeCardiac:       "/api/cardiac-scan",
	scan.TypeSkin:          "/api/skin-scan",
	scan.TypeEye:           "/api/eye-scan",
	scan.TypeVitals:        "/api/vitals",
	scan.TypeSymptom:       "/api/symptoms",
	scan.TypeMedicalReport: "/api/medical-report",
}

// Analyze submits a scan for analysis and returns the raw response. Non-2xx
// responses, transport failures and 2xx bodies carrying an error field are
// all *scan.BackendAnalysisError.
func (c *Client) Analyze(ctx context.Context, t scan.Type, body interface{}) (map[string]interface{}, error) {
	path, ok := analysisPaths[t]
	if !ok {
		return nil, fmt.Errorf("no analysis endpoint for scan type %q", t)
	}
	var raw map[string]interface{}
	err := c.do(ctx, http.MethodPost, path, body, &raw)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			return nil, &scan.BackendAnalysisError{ScanType: t, StatusCode: se.StatusCode, Message: se.Message, Err: err}
		}
		return nil, &scan.BackendAnalysisError{ScanType: t, Err: err}
	}
	if msg := bodyError(raw); msg != "" {
		return nil, &scan.BackendAnalysisError{ScanType: t, StatusCode: http.StatusOK, Message: msg}
	}
	if raw == nil {
		return nil, &scan.BackendAnalysisError{ScanType: t, StatusCode: http.StatusOK, Message: "empty analysis response"}
	}
	return raw, nil
}

func bodyError(raw map[string]interface{}) string {
	switch v := raw["error"].(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]interface{}:
		if m, ok := v["message"].(string); ok {
			return strings.TrimSpace(m)
		}
		return "analysis failed"
	case bool:
		if v {
			if m, ok := raw["message"].(string); ok && m != "" {
				return m
			}
			return "analysis failed"
		}
	}
	return ""
}
