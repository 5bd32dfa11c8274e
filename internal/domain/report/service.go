package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/animus/animus/internal/domain/gate"
	"github.com/animus/animus/internal/domain/scan"
	"github.com/animus/animus/internal/platform/remote"
)

type Records interface {
	Record(ctx context.Context, userID, recordID string) (scan.Record, error)
}

// GateResults exposes cached gate outcomes per user.
type GateResults interface {
	Result(userID, recordID string) (gate.Result, bool)
}

// Store is the upstream health-report collection.
type Store interface {
	HealthReports(ctx context.Context) ([]remote.HealthReport, error)
	CreateHealthReport(ctx context.Context, r remote.HealthReport) error
}

type ProfileSource interface {
	Profile(ctx context.Context) (json.RawMessage, error)
}

type Service struct {
	records Records
	gate    GateResults
	store   Store
	profile ProfileSource
	logger  zerolog.Logger
	now     func() time.Time

	flights singleflight.Group
}

func NewService(records Records, results GateResults, store Store, profile ProfileSource, logger zerolog.Logger) *Service {
	return &Service{records: records, gate: results, store: store, profile: profile, logger: logger, now: time.Now}
}

// Document assembles the report contents for a stored record.
func (s *Service) Document(ctx context.Context, userID, recordID string) (Document, error) {
	rec, err := s.records.Record(ctx, userID, recordID)
	if err != nil {
		return Document{}, err
	}
	doc := Document{Record: rec, Patient: defaultPatient, GeneratedAt: s.now().UTC(), PersistedEntry: rec.MedicalHistoryID}
	if s.profile != nil {
		if raw, err := s.profile.Profile(ctx); err == nil {
			doc.Patient = PatientFrom(raw)
		} else {
			s.logger.Debug().Err(err).Msg("profile unavailable, using default patient")
		}
	}
	if s.gate != nil {
		if res, ok := s.gate.Result(userID, rec.ID); ok {
			doc.Classification = res.Classification
			if res.Entry != nil && doc.PersistedEntry == "" {
				doc.PersistedEntry = res.Entry.ID
			}
		}
	}
	return doc, nil
}

// PDF renders the report for a stored record.
func (s *Service) PDF(ctx context.Context, userID, recordID string) ([]byte, Document, error) {
	doc, err := s.Document(ctx, userID, recordID)
	if err != nil {
		return nil, Document{}, err
	}
	var buf bytes.Buffer
	if err := Render(&buf, doc); err != nil {
		return nil, Document{}, err
	}
	return buf.Bytes(), doc, nil
}

type savedResult struct {
	ScanType      scan.Type       `json:"scanType"`
	ScanData      scan.Payload    `json:"scanData"`
	LLMResponse   json.RawMessage `json:"llmResponse,omitempty"`
	Summary       string          `json:"summary"`
	Explanation   string          `json:"explanation"`
	ScanDetails   string          `json:"scan_details"`
	Insights      string          `json:"insights"`
	TopConditions []string        `json:"topConditions"`
	Confidence    float64         `json:"confidence"`
	Suggestions   string          `json:"suggestions"`
	Date          time.Time       `json:"date"`
	ID            string          `json:"id"`
}

// savedRecordID is the scan record a stored report refers to: the echoed id
// field, else the id embedded in its result document.
func savedRecordID(r remote.HealthReport) string {
	if r.RecordID != "" {
		return r.RecordID
	}
	var embedded struct {
		ID string `json:"id"`
	}
	if json.Unmarshal([]byte(r.Result), &embedded) == nil {
		return embedded.ID
	}
	return ""
}

// EnsureSaved posts rec to the user's health-report collection unless a
// report for its id is already there. It reports whether a new report was
// created.
func (s *Service) EnsureSaved(ctx context.Context, userID string, rec scan.Record) (bool, error) {
	v, err, _ := s.flights.Do(userID+"\x00"+rec.ID, func() (interface{}, error) {
		existing, err := s.store.HealthReports(ctx)
		if err != nil {
			return false, fmt.Errorf("list health reports: %w", err)
		}
		for _, r := range existing {
			if savedRecordID(r) == rec.ID || r.ID == rec.ID {
				return false, nil
			}
		}

		a := rec.Analysis
		result, err := json.Marshal(savedResult{
			ScanType:      rec.Type,
			ScanData:      rec.Data,
			LLMResponse:   a.AI,
			Summary:       a.Headline(),
			Explanation:   a.Explanation,
			ScanDetails:   a.ScanDetails,
			Insights:      a.Insights,
			TopConditions: a.TopConditions,
			Confidence:    a.Confidence,
			Suggestions:   a.Suggestions,
			Date:          rec.Date,
			ID:            rec.ID,
		})
		if err != nil {
			return false, err
		}
		err = s.store.CreateHealthReport(ctx, remote.HealthReport{
			ReportType:     string(rec.Type),
			Result:         string(result),
			DoctorFeedback: "",
			Date:           rec.Date.UTC().Format(time.RFC3339),
			RecordID:       rec.ID,
		})
		if err != nil {
			return false, fmt.Errorf("create health report: %w", err)
		}
		s.logger.Info().Str("record_id", rec.ID).Str("scan_type", string(rec.Type)).Msg("health report saved")
		return true, nil
	})
	saved, _ := v.(bool)
	return saved, err
}
