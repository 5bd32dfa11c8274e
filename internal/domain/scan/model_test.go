package scan

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseType(t *testing.T) {
	got, err := ParseType(" Medical_Report ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != TypeMedicalReport {
		t.Errorf("expected medical_report, got %s", got)
	}
	if _, err := ParseType("xray"); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestType_IsImaging(t *testing.T) {
	for _, tt := range []Type{TypeSkin, TypeEye, TypeMedicalReport} {
		if !tt.IsImaging() {
			t.Errorf("%s should be imaging", tt)
		}
	}
	for _, tt := range []Type{TypeCardiac, TypeVitals, TypeSymptom} {
		if tt.IsImaging() {
			t.Errorf("%s should not be imaging", tt)
		}
	}
}

func TestRecord_JSONKeepsPayloadVariant(t *testing.T) {
	rec := Record{
		ID:   "A",
		Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Type: TypeSkin,
		Data: SkinData{ImageContext{ImageURL: "https://i.ibb.co/a.png", UserContext: "itchy"}},
		Analysis: Analysis{
			ShortSummary: "Eczema",
			Confidence:   0.8,
		},
	}
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Record
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	skin, ok := got.Data.(SkinData)
	if !ok {
		t.Fatalf("expected SkinData, got %T", got.Data)
	}
	if skin.ImageURL != "https://i.ibb.co/a.png" || skin.UserContext != "itchy" {
		t.Errorf("unexpected payload %+v", skin)
	}
	if got.Analysis.TopConditions == nil {
		t.Error("expected empty TopConditions after decode")
	}
}

func TestRecord_UnmarshalUnknownType(t *testing.T) {
	var r Record
	err := json.Unmarshal([]byte(`{"id":"x","scanType":"xray","scanData":{}}`), &r)
	if err == nil {
		t.Fatal("expected error for unknown scan type")
	}
}

func TestRecord_UnmarshalNullScanData(t *testing.T) {
	var r Record
	if err := json.Unmarshal([]byte(`{"id":"x","scanType":"vitals","scanData":null}`), &r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := r.Data.(VitalsData); !ok {
		t.Errorf("expected zero VitalsData, got %T", r.Data)
	}
}

func TestNewImagePayload(t *testing.T) {
	p, err := NewImagePayload(TypeEye, "https://img/eye.jpg", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ScanType() != TypeEye || ImageURL(p) != "https://img/eye.jpg" {
		t.Errorf("unexpected payload %+v", p)
	}
	if _, err := NewImagePayload(TypeVitals, "x", ""); err == nil {
		t.Error("expected error for non-image type")
	}
}

func TestParseUrgency(t *testing.T) {
	cases := map[string]Urgency{"LOW": UrgencyLow, "medium": UrgencyMedium, " High ": UrgencyHigh, "critical": UrgencyNone, "": UrgencyNone}
	for in, want := range cases {
		if got := ParseUrgency(in); got != want {
			t.Errorf("ParseUrgency(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUrgencyColor(t *testing.T) {
	cases := map[Urgency]Color{
		UrgencyLow:       ColorGreen,
		UrgencyMedium:    ColorAmber,
		UrgencyHigh:      ColorRed,
		UrgencyNone:      ColorDefault,
		Urgency("Other"): ColorDefault,
	}
	for in, want := range cases {
		if got := UrgencyColor(in); got != want {
			t.Errorf("UrgencyColor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseVitals(t *testing.T) {
	v := ParseVitals("120/80 mmHg", "72 bpm", "98.6", "97%")
	if v.BPSystolic != 120 || v.BPDiastolic != 80 {
		t.Errorf("unexpected blood pressure %v/%v", v.BPSystolic, v.BPDiastolic)
	}
	if v.HeartRate != 72 || v.Temperature != 98.6 || v.O2 != 97 {
		t.Errorf("unexpected vitals %+v", v)
	}

	empty := ParseVitals("120", "", "n/a", "")
	if empty.BPSystolic != 0 || empty.HeartRate != 0 || empty.Temperature != 0 {
		t.Errorf("expected zero values, got %+v", empty)
	}
}

func TestAlertFor(t *testing.T) {
	backend := &BackendAnalysisError{ScanType: TypeSkin, StatusCode: 500, Message: "model overloaded"}
	if got := AlertFor(backend); got.Message != "model overloaded" {
		t.Errorf("expected verbatim backend message, got %q", got.Message)
	}
	if got := AlertFor(&BackendAnalysisError{ScanType: TypeEye}); got.Message != "Failed to analyze Eye Scan. Please try again." {
		t.Errorf("unexpected default backend message %q", got.Message)
	}
	rec := &RecommendationFetchError{RecordID: "A", Err: errors.New("timeout")}
	if got := AlertFor(rec); got.Message != "Failed to fetch recommendations" {
		t.Errorf("unexpected message %q", got.Message)
	}
	if got := AlertFor(&UploadError{Err: errors.New("413")}); got.Title != "Image Upload Error" {
		t.Errorf("unexpected title %q", got.Title)
	}
	if got := AlertFor(errors.New("boom")); got.Title != "Error" {
		t.Errorf("unexpected title %q", got.Title)
	}
}
