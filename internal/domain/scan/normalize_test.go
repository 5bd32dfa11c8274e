package scan

import (
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestNormalizer() *Normalizer {
	n := NewNormalizer(zerolog.New(io.Discard))
	n.now = func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) }
	return n
}

func TestNormalize_SummaryBearingKeys(t *testing.T) {
	for _, key := range []string{"short_summary", "summary", "analysis", "message"} {
		n := newTestNormalizer()
		rec, err := n.Normalize(TypeSkin, map[string]any{key: "Mild eczema"}, ClientContext{})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", key, err)
		}
		if rec.Analysis.Headline() != "Mild eczema" {
			t.Errorf("%s: expected headline 'Mild eczema', got %q", key, rec.Analysis.Headline())
		}
	}
}

func TestNormalize_MissingSummaryFields(t *testing.T) {
	n := newTestNormalizer()
	_, err := n.Normalize(TypeEye, map[string]any{"confidence": 0.4, "insights": "rest your eyes"}, ClientContext{})
	var incomplete *IncompleteAnalysisError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected IncompleteAnalysisError, got %v", err)
	}
	if incomplete.ScanType != TypeEye {
		t.Errorf("expected scan type eye, got %s", incomplete.ScanType)
	}
}

func TestNormalize_BlankSummaryCountsAsMissing(t *testing.T) {
	n := newTestNormalizer()
	_, err := n.Normalize(TypeSymptom, map[string]any{"analysis": "   "}, ClientContext{})
	var incomplete *IncompleteAnalysisError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected IncompleteAnalysisError, got %v", err)
	}
}

func TestNormalize_NilResponse(t *testing.T) {
	n := newTestNormalizer()
	if _, err := n.Normalize(TypeVitals, nil, ClientContext{}); err == nil {
		t.Fatal("expected error for nil response")
	}
}

func TestNormalize_ConfidenceClamp(t *testing.T) {
	cases := []struct {
		in   any
		want float64
	}{
		{1.4, 1.0},
		{-0.2, 0.0},
		{0.73, 0.73},
		{"0.5", 0.5},
		{"85%", 0.85},
		{"high", 0},
		{nil, 0},
	}
	for _, tc := range cases {
		n := newTestNormalizer()
		rec, err := n.Normalize(TypeSkin, map[string]any{"short_summary": "ok", "confidence": tc.in}, ClientContext{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Analysis.Confidence != tc.want {
			t.Errorf("confidence %v: expected %v, got %v", tc.in, tc.want, rec.Analysis.Confidence)
		}
	}
}

func TestNormalize_UnsetFieldsAreEmpty(t *testing.T) {
	n := newTestNormalizer()
	rec, err := n.Normalize(TypeVitals, map[string]any{"analysis": "Normal vitals"}, ClientContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Analysis.TopConditions == nil {
		t.Error("expected TopConditions to be an empty slice, got nil")
	}

	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	json.Unmarshal(b, &decoded)
	result := decoded["analysisResult"].(map[string]any)
	for _, k := range []string{"summary", "explanation", "urgency", "insights", "topConditions", "scanDetails"} {
		if _, ok := result[k]; !ok {
			t.Errorf("expected %q to be present in analysisResult", k)
		}
	}
}

func TestNormalize_LegacyCardiacResponse(t *testing.T) {
	n := newTestNormalizer()
	raw := map[string]any{
		"summary":       "Possible murmur",
		"topConditions": []any{"Mitral regurgitation", "Innocent murmur"},
		"urgency":       "high",
		"suggestions":   []any{"See a cardiologist", "Avoid strenuous exercise"},
		"explanation":   "Irregular S2",
		"confidence":    0.62,
	}
	rec, err := n.Normalize(TypeCardiac, raw, ClientContext{Payload: CardiacData{WaveformURL: "https://img/wave.png"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Analysis.Urgency != UrgencyHigh {
		t.Errorf("expected urgency High, got %q", rec.Analysis.Urgency)
	}
	if len(rec.Analysis.TopConditions) != 2 || rec.Analysis.TopConditions[0] != "Mitral regurgitation" {
		t.Errorf("unexpected top conditions: %v", rec.Analysis.TopConditions)
	}
	if rec.Analysis.Suggestions != "See a cardiologist\nAvoid strenuous exercise" {
		t.Errorf("unexpected suggestions: %q", rec.Analysis.Suggestions)
	}
	if ImageURL(rec.Data) != "https://img/wave.png" {
		t.Errorf("expected waveform url to be kept, got %q", ImageURL(rec.Data))
	}
}

func TestNormalize_IDAndDate(t *testing.T) {
	n := newTestNormalizer()
	rec, err := n.Normalize(TypeSkin, map[string]any{
		"_id":           "665f1c",
		"date":          "2024-03-01T10:00:00Z",
		"short_summary": "Benign nevus",
	}, ClientContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ID != "665f1c" {
		t.Errorf("expected server id, got %q", rec.ID)
	}
	if !rec.Date.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected date %v", rec.Date)
	}
}

func TestNormalize_FallbackIDAndCaptureTime(t *testing.T) {
	n := newTestNormalizer()
	captured := time.Date(2024, 6, 2, 8, 30, 0, 0, time.UTC)
	rec, err := n.Normalize(TypeSymptom, map[string]any{"analysis": "Common cold", "symptoms": "runny nose"}, ClientContext{CapturedAt: captured})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("expected fallback id")
	}
	if !rec.Date.Equal(captured) {
		t.Errorf("expected capture time, got %v", rec.Date)
	}
	if rec.Data.(SymptomData).Symptoms != "runny nose" {
		t.Errorf("expected symptoms from response, got %q", rec.Data.(SymptomData).Symptoms)
	}

	other, _ := n.Normalize(TypeSymptom, map[string]any{"analysis": "Common cold"}, ClientContext{CapturedAt: captured})
	if other.ID == rec.ID {
		t.Error("expected distinct fallback ids for records captured in the same millisecond")
	}
}

func TestNormalize_DateOnly(t *testing.T) {
	n := newTestNormalizer()
	rec, _ := n.Normalize(TypeVitals, map[string]any{"analysis": "ok", "date": "2024-01-01"}, ClientContext{})
	if !rec.Date.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected date %v", rec.Date)
	}
}

func TestNormalize_PayloadMismatch(t *testing.T) {
	n := newTestNormalizer()
	_, err := n.Normalize(TypeEye, map[string]any{"short_summary": "ok"}, ClientContext{Payload: SymptomData{Symptoms: "x"}})
	if err == nil {
		t.Fatal("expected error for mismatched payload")
	}
}

func TestNormalize_UnknownType(t *testing.T) {
	n := newTestNormalizer()
	if _, err := n.Normalize(Type("xray"), map[string]any{"summary": "ok"}, ClientContext{}); err == nil {
		t.Fatal("expected error for unknown scan type")
	}
}
