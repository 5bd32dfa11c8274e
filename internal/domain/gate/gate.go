// Package gate decides, once per scan record, whether the record describes a
// medical condition worth keeping in the user's medical history, and creates
// that entry at most once.
package gate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/animus/animus/internal/domain/medicalhistory"
	"github.com/animus/animus/internal/domain/scan"
)

// State is a record's position in the gate lifecycle.
type State string

const (
	StatePending   State = "pending"
	StateRequested State = "requested"
	StatePersisted State = "persisted"
	StateSkipped   State = "skipped"
	// StateFailed is not cached; the next Evaluate retries.
	StateFailed State = "failed"
)

// Terminal reports whether s ends the lifecycle.
func (s State) Terminal() bool {
	return s == StatePersisted || s == StateSkipped
}

// Classifier calls the recommendation service.
type Classifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (Classification, error)
}

// EntryCreator persists a medical history entry.
type EntryCreator interface {
	Create(ctx context.Context, e *medicalhistory.Entry) error
}

// Result is the outcome of one evaluation.
type Result struct {
	RecordID       string                `json:"recordId"`
	State          State                 `json:"state"`
	Entry          *medicalhistory.Entry `json:"entry,omitempty"`
	Classification *Classification       `json:"classification,omitempty"`
}

// DefaultFlightTimeout bounds one shared classification flight.
const DefaultFlightTimeout = 30 * time.Second

// Gate tracks per-record state for the lifetime of the process. State is
// keyed by owner and record id; records are only unique within a user.
type Gate struct {
	classifier    Classifier
	entries       EntryCreator
	logger        zerolog.Logger
	now           func() time.Time
	flightTimeout time.Duration

	flights singleflight.Group

	mu      sync.Mutex
	states  map[string]State
	results map[string]Result
}

func New(classifier Classifier, entries EntryCreator, logger zerolog.Logger) *Gate {
	return &Gate{
		classifier:    classifier,
		entries:       entries,
		logger:        logger,
		now:           time.Now,
		flightTimeout: DefaultFlightTimeout,
		states:        make(map[string]State),
		results:       make(map[string]Result),
	}
}

func key(userID, recordID string) string {
	return userID + "\x00" + recordID
}

// State returns the current state of the user's record.
func (g *Gate) State(userID, recordID string) State {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.states[key(userID, recordID)]; ok {
		return s
	}
	return StatePending
}

// Result returns the cached terminal result for the user's record, if any.
func (g *Gate) Result(userID, recordID string) (Result, bool) {
	return g.cached(key(userID, recordID))
}

func (g *Gate) set(k string, s State) {
	g.mu.Lock()
	g.states[k] = s
	g.mu.Unlock()
}

func (g *Gate) finish(userID string, rec scan.Record, r Result) Result {
	k := key(userID, rec.ID)
	g.mu.Lock()
	g.states[k] = r.State
	if r.State.Terminal() {
		g.results[k] = r
	}
	g.mu.Unlock()
	g.logger.Info().
		Str("user_id", userID).
		Str("record_id", rec.ID).
		Str("scan_type", string(rec.Type)).
		Str("state", string(r.State)).
		Msg("gate evaluated")
	return r
}

func (g *Gate) cached(k string) (Result, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.results[k]
	return r, ok
}

// Evaluate runs the gate for rec. existing is the already-fetched medical
// history list; an entry referencing rec short-circuits to persisted without
// a network call. Concurrent calls for the same record share one flight,
// which runs detached from any single caller and is bounded by the flight
// timeout. A caller whose ctx ends stops waiting without cancelling it.
// A classification or write failure returns StateFailed with a
// *scan.RecommendationFetchError.
func (g *Gate) Evaluate(ctx context.Context, userID string, rec scan.Record, existing []medicalhistory.Entry) (Result, error) {
	if rec.ID == "" {
		return Result{}, fmt.Errorf("record id is required")
	}
	if e, ok := medicalhistory.FindByReference(existing, rec.ID); ok {
		return g.finish(userID, rec, Result{RecordID: rec.ID, State: StatePersisted, Entry: &e}), nil
	}
	k := key(userID, rec.ID)
	if r, ok := g.cached(k); ok {
		return r, nil
	}

	ch := g.flights.DoChan(k, func() (interface{}, error) {
		if r, ok := g.cached(k); ok {
			return r, nil
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.flightTimeout)
		defer cancel()
		return g.run(fctx, userID, rec)
	})
	select {
	case res := <-ch:
		r, _ := res.Val.(Result)
		return r, res.Err
	case <-ctx.Done():
		return Result{RecordID: rec.ID, State: g.State(userID, rec.ID)}, ctx.Err()
	}
}

func (g *Gate) run(ctx context.Context, userID string, rec scan.Record) (Result, error) {
	text := rec.Analysis.ClassificationText()
	if text == "" {
		return g.finish(userID, rec, Result{RecordID: rec.ID, State: StateSkipped}), nil
	}

	req := ClassifyRequest{
		Analysis: text,
		UserID:   userID,
		ScanType: rec.Type,
		ScanData: rec.Data,
	}
	if rec.Type == scan.TypeVitals {
		req.VitalsID = rec.ID
	}

	g.set(key(userID, rec.ID), StateRequested)
	cls, err := g.classifier.Classify(ctx, req)
	if err != nil {
		g.logger.Warn().Err(err).Str("record_id", rec.ID).Msg("classification failed")
		g.finish(userID, rec, Result{RecordID: rec.ID, State: StateFailed})
		return Result{RecordID: rec.ID, State: StateFailed}, &scan.RecommendationFetchError{RecordID: rec.ID, Err: err}
	}
	if !cls.IsMedicalCondition {
		return g.finish(userID, rec, Result{RecordID: rec.ID, State: StateSkipped, Classification: &cls}), nil
	}

	entry := g.entryFor(userID, rec, cls)
	if err := g.entries.Create(ctx, entry); err != nil {
		g.logger.Warn().Err(err).Str("record_id", rec.ID).Msg("medical history write failed")
		g.finish(userID, rec, Result{RecordID: rec.ID, State: StateFailed, Classification: &cls})
		return Result{RecordID: rec.ID, State: StateFailed, Classification: &cls},
			&scan.RecommendationFetchError{RecordID: rec.ID, Err: err}
	}
	return g.finish(userID, rec, Result{RecordID: rec.ID, State: StatePersisted, Entry: entry, Classification: &cls}), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func (g *Gate) entryFor(userID string, rec scan.Record, cls Classification) *medicalhistory.Entry {
	diagnosed := rec.Date
	if diagnosed.IsZero() {
		diagnosed = g.now().UTC()
	}
	return &medicalhistory.Entry{
		UserID:        userID,
		Condition:     firstNonEmpty(cls.Condition, rec.Analysis.Summary, rec.Analysis.Headline(), string(rec.Type)),
		Description:   firstNonEmpty(string(cls.Recommendations), string(cls.Insights), rec.Analysis.Insights, rec.Analysis.Explanation),
		DateDiagnosed: &diagnosed,
		IsActive:      true,
		ReferenceID:   rec.ID,
	}
}
