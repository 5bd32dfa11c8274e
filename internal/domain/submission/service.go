// Package submission runs a scan from capture to history: image upload,
// analysis, normalization, local append, and the background medical
// history gate.
package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/animus/animus/internal/domain/gate"
	"github.com/animus/animus/internal/domain/history"
	"github.com/animus/animus/internal/domain/medicalhistory"
	"github.com/animus/animus/internal/domain/scan"
	"github.com/animus/animus/internal/platform/websocket"
)

// ErrInvalidRequest wraps every validation failure.
var ErrInvalidRequest = errors.New("invalid scan request")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

type Uploader interface {
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, t scan.Type, body interface{}) (map[string]interface{}, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, userID string, rec scan.Record, existing []medicalhistory.Entry) (gate.Result, error)
}

type Publisher interface {
	Publish(ctx context.Context, event websocket.Event) error
}

// Request is one scan submission. Imaging types carry Image; the others
// carry Payload.
type Request struct {
	Type        scan.Type
	Image       io.Reader
	ImageName   string
	UserContext string
	Payload     scan.Payload
	CapturedAt  time.Time
}

// Outcome is the submitted record plus any non-fatal problems.
type Outcome struct {
	Record   scan.Record  `json:"record"`
	Warnings []scan.Alert `json:"warnings,omitempty"`
}

// EvaluateOutcome is the gate result of a synchronous re-evaluation.
type EvaluateOutcome struct {
	Result   gate.Result  `json:"result"`
	Warnings []scan.Alert `json:"warnings,omitempty"`
}

type Config struct {
	Uploader    Uploader
	Analyzer    Analyzer
	Normalizer  *scan.Normalizer
	Sessions    *history.Sessions
	Entries     medicalhistory.Store
	Gate        Evaluator
	Reconciler  *history.Reconciler
	Publisher   Publisher
	GateTimeout time.Duration
}

type Service struct {
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	bridged sync.Map // userID -> struct{}
	wg      sync.WaitGroup
}

func NewService(cfg Config, logger zerolog.Logger) *Service {
	if cfg.GateTimeout <= 0 {
		cfg.GateTimeout = 20 * time.Second
	}
	return &Service{cfg: cfg, logger: logger, now: time.Now}
}

// Submit runs the pipeline for req. Upload, analysis and normalization
// failures abort; storage and gate problems do not.
func (s *Service) Submit(ctx context.Context, userID string, req Request) (*Outcome, error) {
	if userID == "" {
		return nil, invalid("user id is required")
	}
	payload, err := s.payloadFor(ctx, req)
	if err != nil {
		return nil, err
	}

	raw, err := s.cfg.Analyzer.Analyze(ctx, req.Type, payload)
	if err != nil {
		return nil, err
	}

	capturedAt := req.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = s.now().UTC()
	}
	rec, err := s.cfg.Normalizer.Normalize(req.Type, raw, scan.ClientContext{CapturedAt: capturedAt, Payload: payload})
	if err != nil {
		return nil, err
	}

	out := &Outcome{Record: rec}
	store, err := s.store(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("history unavailable; record not saved locally")
		out.Warnings = append(out.Warnings, scan.AlertFor(err))
	} else if err := store.Append(ctx, rec); err != nil {
		switch {
		case errors.Is(err, history.ErrDuplicateRecord):
			s.logger.Warn().Str("record_id", rec.ID).Msg("analysis returned an id already in history")
		default:
			out.Warnings = append(out.Warnings, scan.AlertFor(err))
		}
	}

	s.evaluateAsync(ctx, userID, rec, store)
	return out, nil
}

func (s *Service) payloadFor(ctx context.Context, req Request) (scan.Payload, error) {
	if _, err := scan.ParseType(string(req.Type)); err != nil {
		return nil, invalid("%v", err)
	}
	if !req.Type.IsImaging() {
		if req.Payload == nil {
			return nil, invalid("%s scan data is required", req.Type)
		}
		if req.Payload.ScanType() != req.Type {
			return nil, invalid("payload is %s data, not %s", req.Payload.ScanType(), req.Type)
		}
		switch d := req.Payload.(type) {
		case scan.SymptomData:
			if d.Symptoms == "" {
				return nil, invalid("symptoms are required")
			}
		case scan.VitalsData:
			if d.BPSystolic == 0 && d.BPDiastolic == 0 && d.HeartRate == 0 && d.Temperature == 0 {
				return nil, invalid("enter at least blood pressure, pulse rate, or temperature")
			}
		}
		return req.Payload, nil
	}

	if req.Image == nil {
		return nil, invalid("an image is required for %s", req.Type.DisplayName())
	}
	name := req.ImageName
	if name == "" {
		name = string(req.Type) + ".jpg"
	}
	url, err := s.cfg.Uploader.Upload(ctx, name, req.Image)
	if err != nil {
		return nil, &scan.UploadError{Err: err}
	}
	if url == "" {
		return nil, &scan.UploadError{Err: errors.New("no URL returned")}
	}
	return scan.NewImagePayload(req.Type, url, req.UserContext)
}

// store returns the user's history and forwards its events to the hub the
// first time it is seen.
func (s *Service) store(ctx context.Context, userID string) (*history.Store, error) {
	st, err := s.cfg.Sessions.For(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.cfg.Publisher != nil {
		if _, loaded := s.bridged.LoadOrStore(userID, struct{}{}); !loaded {
			st.Subscribe(func(ev history.Event) {
				s.publish(userID, websocket.HistoryTopic(userID), "history."+string(ev.Kind), ev.Record.ID, ev.Record)
			})
		}
	}
	return st, nil
}

func (s *Service) publish(userID, topic, kind, recordID string, data interface{}) {
	if s.cfg.Publisher == nil {
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		s.logger.Error().Err(err).Str("record_id", recordID).Msg("encode event")
		return
	}
	ev := websocket.Event{Type: kind, Topic: topic, RecordID: recordID, Timestamp: s.now().UTC(), Data: raw}
	if err := s.cfg.Publisher.Publish(context.Background(), ev); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("publish event")
	}
}

// evaluateAsync runs the gate detached from the request, keeping its values
// so the caller's token still reaches the upstream API.
func (s *Service) evaluateAsync(ctx context.Context, userID string, rec scan.Record, store *history.Store) {
	gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.GateTimeout)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		if _, err := s.evaluate(gctx, userID, rec, store); err != nil {
			s.logger.Warn().Err(err).Str("record_id", rec.ID).Msg("background gate evaluation failed")
		}
	}()
}

func (s *Service) evaluate(ctx context.Context, userID string, rec scan.Record, store *history.Store) (gate.Result, error) {
	existing, err := s.cfg.Entries.List(ctx, userID)
	if err != nil {
		res := gate.Result{RecordID: rec.ID, State: gate.StateFailed}
		s.publish(userID, websocket.GateTopic(userID), "gate."+string(res.State), rec.ID, res)
		return res, &scan.RecommendationFetchError{RecordID: rec.ID, Err: fmt.Errorf("list medical history: %w", err)}
	}

	res, gerr := s.cfg.Gate.Evaluate(ctx, userID, rec, existing)
	if res.State == gate.StatePersisted && res.Entry != nil && res.Entry.ID != "" && store != nil {
		if err := store.AttachMedicalHistory(ctx, rec.ID, res.Entry.ID); err != nil {
			s.logger.Warn().Err(err).Str("record_id", rec.ID).Msg("attach medical history id")
		}
	}
	s.publish(userID, websocket.GateTopic(userID), "gate."+string(res.State), rec.ID, res)
	return res, gerr
}

// Evaluate re-runs the gate for a stored record, e.g. when the history
// screen regains focus.
func (s *Service) Evaluate(ctx context.Context, userID, recordID string) (*EvaluateOutcome, error) {
	st, err := s.store(ctx, userID)
	if err != nil {
		return nil, err
	}
	rec, ok := st.Get(recordID)
	if !ok {
		return nil, history.ErrRecordNotFound
	}
	res, err := s.evaluate(ctx, userID, rec, st)
	out := &EvaluateOutcome{Result: res}
	if err != nil {
		out.Warnings = append(out.Warnings, scan.AlertFor(err))
	}
	return out, nil
}

// Records returns the user's local history, newest first.
func (s *Service) Records(ctx context.Context, userID string) ([]scan.Record, error) {
	st, err := s.store(ctx, userID)
	if err != nil {
		return nil, err
	}
	return st.All(), nil
}

func (s *Service) Record(ctx context.Context, userID, recordID string) (scan.Record, error) {
	st, err := s.store(ctx, userID)
	if err != nil {
		return scan.Record{}, err
	}
	rec, ok := st.Get(recordID)
	if !ok {
		return scan.Record{}, history.ErrRecordNotFound
	}
	return rec, nil
}

// History returns the reconciled medical history view.
func (s *Service) History(ctx context.Context, userID string, f history.Filter) (history.View, error) {
	local, err := s.Records(ctx, userID)
	if err != nil {
		return history.View{}, err
	}
	return s.cfg.Reconciler.Reconcile(ctx, userID, local, f), nil
}

// Wait blocks until background gate evaluations have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}
