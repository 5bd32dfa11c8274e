// Package feedback records whether users found an AI explanation helpful and
// assembles the per-user data export.
package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/animus/animus/internal/domain/history"
	"github.com/animus/animus/internal/domain/scan"
)

// StorageKey is the KV key holding the feedback list.
const StorageKey = "aiFeedback"

var (
	ErrInvalidFeedback = errors.New("invalid feedback")
	ErrUnknownResult   = errors.New("feedback refers to an unknown result")
)

type Type string

const (
	Helpful   Type = "helpful"
	Unhelpful Type = "unhelpful"
)

// Entry is one stored feedback item.
type Entry struct {
	ResultID     string    `json:"resultId"`
	ScanType     scan.Type `json:"scanType"`
	Diagnosis    string    `json:"diagnosis"`
	FeedbackType Type      `json:"feedbackType"`
	Timestamp    time.Time `json:"timestamp"`
}

// Records reads the user's local scan history.
type Records interface {
	Record(ctx context.Context, userID, recordID string) (scan.Record, error)
	Records(ctx context.Context, userID string) ([]scan.Record, error)
}

// ProfileSource returns the authenticated user's profile document.
type ProfileSource interface {
	Profile(ctx context.Context) (json.RawMessage, error)
}

type Service struct {
	open    func(userID string) history.KV
	records Records
	profile ProfileSource
	logger  zerolog.Logger
	now     func() time.Time

	// mu serializes read-modify-write of the feedback blob.
	mu sync.Mutex
}

func NewService(open func(userID string) history.KV, records Records, profile ProfileSource, logger zerolog.Logger) *Service {
	return &Service{open: open, records: records, profile: profile, logger: logger, now: time.Now}
}

// diagnosis is the cardiac diagnosis or the symptom text for a record.
func diagnosis(rec scan.Record) string {
	switch d := rec.Data.(type) {
	case scan.CardiacData:
		return d.Diagnosis
	case scan.SymptomData:
		return d.Symptoms
	}
	return ""
}

// Submit appends feedback for resultID to the user's list.
func (s *Service) Submit(ctx context.Context, userID, resultID string, t Type) (Entry, error) {
	t = Type(strings.ToLower(strings.TrimSpace(string(t))))
	if t != Helpful && t != Unhelpful {
		return Entry{}, fmt.Errorf("%w: feedbackType must be helpful or unhelpful", ErrInvalidFeedback)
	}
	if resultID == "" {
		return Entry{}, fmt.Errorf("%w: resultId is required", ErrInvalidFeedback)
	}
	rec, err := s.records.Record(ctx, userID, resultID)
	if err != nil {
		if errors.Is(err, history.ErrRecordNotFound) {
			return Entry{}, ErrUnknownResult
		}
		return Entry{}, err
	}

	entry := Entry{
		ResultID:     rec.ID,
		ScanType:     rec.Type,
		Diagnosis:    diagnosis(rec),
		FeedbackType: t,
		Timestamp:    s.now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kv := s.open(userID)
	all, err := load(ctx, kv)
	if err != nil {
		return Entry{}, err
	}
	all = append(all, entry)
	data, err := json.Marshal(all)
	if err != nil {
		return Entry{}, err
	}
	if err := kv.Set(ctx, StorageKey, data); err != nil {
		return Entry{}, &scan.StorageError{Op: "write", Key: StorageKey, Err: err}
	}
	s.logger.Info().Str("record_id", rec.ID).Str("feedback", string(t)).Msg("ai feedback stored")
	return entry, nil
}

// List returns every stored feedback entry for the user, oldest first.
func (s *Service) List(ctx context.Context, userID string) ([]Entry, error) {
	return load(ctx, s.open(userID))
}

func load(ctx context.Context, kv history.KV) ([]Entry, error) {
	raw, ok, err := kv.Get(ctx, StorageKey)
	if err != nil {
		return nil, &scan.StorageError{Op: "read", Key: StorageKey, Err: err}
	}
	if !ok || len(raw) == 0 {
		return []Entry{}, nil
	}
	var out []Entry
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &scan.StorageError{Op: "decode", Key: StorageKey, Err: err}
	}
	return out, nil
}

// Export is the downloadable snapshot of a user's data.
type Export struct {
	Profile         json.RawMessage `json:"profile"`
	HealthHistory   []scan.Record   `json:"healthHistory"`
	AIFeedback      []Entry         `json:"aiFeedback"`
	ScanMetrics     ScanMetrics     `json:"scanMetrics"`
	ExportTimestamp time.Time       `json:"exportTimestamp"`
}

type ScanMetrics struct {
	TotalScans int `json:"totalScans"`
}

// Export collects the user's profile, history and feedback. A missing or
// failing profile source yields a minimal profile with the user id.
func (s *Service) Export(ctx context.Context, userID string) (*Export, error) {
	records, err := s.records.Records(ctx, userID)
	if err != nil {
		return nil, err
	}
	fb, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	profile, _ := json.Marshal(map[string]string{"userId": userID})
	if s.profile != nil {
		if p, err := s.profile.Profile(ctx); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("profile unavailable for export")
		} else if len(p) > 0 {
			profile = p
		}
	}

	return &Export{
		Profile:         profile,
		HealthHistory:   records,
		AIFeedback:      fb,
		ScanMetrics:     ScanMetrics{TotalScans: len(records)},
		ExportTimestamp: s.now().UTC(),
	}, nil
}
