package scan

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ClientContext is what the device knows about a scan before the analysis
// endpoint answers.
type ClientContext struct {
	CapturedAt time.Time
	Payload    Payload
}

// Normalizer turns the heterogeneous analysis responses into Records. It has
// no side effects other than data-quality log lines.
type Normalizer struct {
	logger zerolog.Logger
	now    func() time.Time
	newID  func(time.Time) string
}

// NewNormalizer creates a Normalizer that logs data-quality warnings to logger.
func NewNormalizer(logger zerolog.Logger) *Normalizer {
	return &Normalizer{
		logger: logger,
		now:    time.Now,
		newID:  fallbackID,
	}
}

// fallbackID is used when the backend does not assign an id. The millisecond
// timestamp keeps ids roughly ordered; the suffix keeps them unique.
func fallbackID(t time.Time) string {
	return fmt.Sprintf("%d-%s", t.UnixMilli(), uuid.NewString()[:8])
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// Normalize builds a Record from a raw analysis response.
func (n *Normalizer) Normalize(t Type, raw map[string]any, cc ClientContext) (Record, error) {
	if !validTypes[t] {
		return Record{}, fmt.Errorf("unknown scan type: %q", t)
	}
	if raw == nil {
		return Record{}, &IncompleteAnalysisError{ScanType: t}
	}

	a := Analysis{
		Summary:       str(raw, "summary"),
		ShortSummary:  str(raw, "short_summary", "shortSummary"),
		Analysis:      str(raw, "analysis"),
		Message:       str(raw, "message"),
		Explanation:   str(raw, "explanation"),
		ScanDetails:   str(raw, "scan_details", "scanDetails"),
		Insights:      str(raw, "insights"),
		Suggestions:   joined(raw, "suggestions"),
		TopConditions: list(raw, "topConditions", "top_conditions"),
		Urgency:       ParseUrgency(str(raw, "urgency")),
	}
	if a.Headline() == "" {
		return Record{}, &IncompleteAnalysisError{ScanType: t}
	}
	if ai, ok := raw["ai"]; ok && ai != nil {
		if b, err := json.Marshal(ai); err == nil {
			a.AI = b
		}
	}

	captured := cc.CapturedAt
	if captured.IsZero() {
		captured = n.now()
	}

	id := str(raw, "_id", "id")
	if id == "" {
		id = n.newID(captured)
	}
	a.Confidence = n.confidence(raw["confidence"], t, id)

	payload := cc.Payload
	if payload == nil {
		payload = zeroPayload(t)
	}
	if payload.ScanType() != t {
		return Record{}, fmt.Errorf("%s payload supplied for %s scan", payload.ScanType(), t)
	}
	switch d := payload.(type) {
	case SymptomData:
		if d.Symptoms == "" {
			d.Symptoms = str(raw, "symptoms")
		}
		payload = d
	case CardiacData:
		if d.Diagnosis == "" {
			d.Diagnosis = str(raw, "diagnosis")
		}
		payload = d
	}

	date := captured
	if s := str(raw, "date", "createdAt"); s != "" {
		if parsed, ok := ParseDate(s); ok {
			date = parsed
		} else {
			n.logger.Warn().Str("record_id", id).Str("date", s).Msg("unparseable analysis date, using capture time")
		}
	}

	return Record{
		ID:       id,
		Date:     date,
		Type:     t,
		Data:     payload,
		Analysis: a,
	}, nil
}

// ParseDate accepts RFC3339 timestamps and bare YYYY-MM-DD dates.
func ParseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (n *Normalizer) confidence(v any, t Type, id string) float64 {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			n.warnConfidence(t, id, v, "not numeric")
			return 0
		}
		f = parsed
	case string:
		s := strings.TrimSpace(x)
		percent := strings.HasSuffix(s, "%")
		parsed, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			n.warnConfidence(t, id, v, "not numeric")
			return 0
		}
		if percent {
			parsed /= 100
		}
		f = parsed
	default:
		n.warnConfidence(t, id, v, "not numeric")
		return 0
	}

	switch {
	case math.IsNaN(f):
		n.warnConfidence(t, id, v, "NaN")
		return 0
	case f < 0:
		n.warnConfidence(t, id, v, "clamped to 0")
		return 0
	case f > 1:
		n.warnConfidence(t, id, v, "clamped to 1")
		return 1
	}
	return f
}

func (n *Normalizer) warnConfidence(t Type, id string, v any, reason string) {
	n.logger.Warn().
		Str("record_id", id).
		Str("scan_type", string(t)).
		Interface("confidence", v).
		Msg("confidence " + reason)
}

func str(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

func list(raw map[string]any, keys ...string) []string {
	out := []string{}
	for _, k := range keys {
		items, ok := raw[k].([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return out
}

// joined reads a field that some endpoints send as a string and others as a
// list of strings.
func joined(raw map[string]any, key string) string {
	if s := str(raw, key); s != "" {
		return s
	}
	return strings.Join(list(raw, key), "\n")
}
