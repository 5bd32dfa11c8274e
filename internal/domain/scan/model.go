package scan

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Type identifies which kind of health check produced a record.
type Type string

const (
	TypeCardiac       Type = "cardiac"
	TypeSkin          Type = "skin"
	TypeEye           Type = "eye"
	TypeVitals        Type = "vitals"
	TypeSymptom       Type = "symptom"
	TypeMedicalReport Type = "medical_report"
)

var validTypes = map[Type]bool{
	TypeCardiac: true, TypeSkin: true, TypeEye: true,
	TypeVitals: true, TypeSymptom: true, TypeMedicalReport: true,
}

// ParseType validates a scan type string.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !validTypes[t] {
		return "", fmt.Errorf("unknown scan type: %q", s)
	}
	return t, nil
}

// Types returns every supported scan type in display order.
func Types() []Type {
	return []Type{TypeCardiac, TypeSkin, TypeEye, TypeVitals, TypeSymptom, TypeMedicalReport}
}

// IsImaging reports whether the scan is submitted as a hosted image.
func (t Type) IsImaging() bool {
	return t == TypeSkin || t == TypeEye || t == TypeMedicalReport
}

// DisplayName is the human label used in reports and history lists.
func (t Type) DisplayName() string {
	switch t {
	case TypeCardiac:
		return "Cardiac Scan"
	case TypeSkin:
		return "Skin Scan"
	case TypeEye:
		return "Eye Scan"
	case TypeVitals:
		return "Vitals Monitor"
	case TypeSymptom:
		return "Symptom Check"
	case TypeMedicalReport:
		return "Medical Report"
	default:
		return "Health Analysis"
	}
}

// Urgency is the coarse triage label attached to some analyses.
type Urgency string

const (
	UrgencyNone   Urgency = ""
	UrgencyLow    Urgency = "Low"
	UrgencyMedium Urgency = "Medium"
	UrgencyHigh   Urgency = "High"
)

// ParseUrgency maps a free-form label onto the known levels, case-insensitively.
// Anything unrecognised becomes UrgencyNone.
func ParseUrgency(s string) Urgency {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return UrgencyLow
	case "medium", "moderate":
		return UrgencyMedium
	case "high":
		return UrgencyHigh
	default:
		return UrgencyNone
	}
}

// Analysis is the normalized AI response. Every field is always present in
// JSON so consumers can branch on empty values uniformly.
type Analysis struct {
	Summary       string          `json:"summary"`
	ShortSummary  string          `json:"short_summary"`
	Analysis      string          `json:"analysis"`
	Message       string          `json:"message"`
	Explanation   string          `json:"explanation"`
	Confidence    float64         `json:"confidence"`
	TopConditions []string        `json:"topConditions"`
	ScanDetails   string          `json:"scanDetails"`
	Insights      string          `json:"insights"`
	Suggestions   string          `json:"suggestions"`
	Urgency       Urgency         `json:"urgency"`
	AI            json.RawMessage `json:"ai"`
}

// Headline returns the summary-equivalent text: short_summary, summary,
// analysis, then message.
func (a Analysis) Headline() string {
	for _, s := range []string{a.ShortSummary, a.Summary, a.Analysis, a.Message} {
		if s != "" {
			return s
		}
	}
	return ""
}

// ClassificationText is the text sent to the recommendation service.
func (a Analysis) ClassificationText() string {
	for _, s := range []string{a.Summary, a.Analysis, a.Explanation, a.ShortSummary, a.Message} {
		if s != "" {
			return s
		}
	}
	return ""
}

// Record is one user-submitted health check plus its analysis.
type Record struct {
	ID               string
	Date             time.Time
	Type             Type
	Data             Payload
	Analysis         Analysis
	MedicalHistoryID string
}

type recordJSON struct {
	ID               string          `json:"id"`
	Date             time.Time       `json:"date"`
	ScanType         Type            `json:"scanType"`
	ScanData         json.RawMessage `json:"scanData"`
	AnalysisResult   Analysis        `json:"analysisResult"`
	MedicalHistoryID string          `json:"medicalHistoryId,omitempty"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	data := r.Data
	if data == nil {
		data = zeroPayload(r.Type)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal scan data: %w", err)
	}
	a := r.Analysis
	if a.TopConditions == nil {
		a.TopConditions = []string{}
	}
	return json.Marshal(recordJSON{
		ID:               r.ID,
		Date:             r.Date,
		ScanType:         r.Type,
		ScanData:         raw,
		AnalysisResult:   a,
		MedicalHistoryID: r.MedicalHistoryID,
	})
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	t, err := ParseType(string(raw.ScanType))
	if err != nil {
		return err
	}
	payload, err := decodePayload(t, raw.ScanData)
	if err != nil {
		return fmt.Errorf("decode %s scan data: %w", t, err)
	}
	if raw.AnalysisResult.TopConditions == nil {
		raw.AnalysisResult.TopConditions = []string{}
	}
	*r = Record{
		ID:               raw.ID,
		Date:             raw.Date,
		Type:             t,
		Data:             payload,
		Analysis:         raw.AnalysisResult,
		MedicalHistoryID: raw.MedicalHistoryID,
	}
	return nil
}
