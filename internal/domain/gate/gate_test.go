package gate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/animus/animus/internal/domain/medicalhistory"
	"github.com/animus/animus/internal/domain/scan"
)

type fakeClassifier struct {
	calls atomic.Int32
	resp  Classification
	err   error
	last  ClassifyRequest
	mu    sync.Mutex
	block chan struct{}
	// ctxErr is the request context's error once the call unblocks.
	ctxErr error
}

func (f *fakeClassifier) Classify(ctx context.Context, req ClassifyRequest) (Classification, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.ctxErr = ctx.Err()
	f.mu.Unlock()
	return f.resp, f.err
}

type fakeEntries struct {
	mu      sync.Mutex
	created []*medicalhistory.Entry
	err     error
}

func (f *fakeEntries) Create(_ context.Context, e *medicalhistory.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	e.ID = "entry-1"
	f.created = append(f.created, e)
	return nil
}

func newTestGate(c *fakeClassifier, e *fakeEntries) *Gate {
	return New(c, e, zerolog.New(io.Discard))
}

func skinRecord(id string) scan.Record {
	return scan.Record{
		ID:       id,
		Date:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Type:     scan.TypeSkin,
		Data:     scan.SkinData{ImageContext: scan.ImageContext{ImageURL: "https://img/x.jpg"}},
		Analysis: scan.Analysis{Summary: "Dry patches on forearm", Insights: "Use emollients"},
	}
}

func TestEvaluate_ExistingEntryShortCircuits(t *testing.T) {
	c := &fakeClassifier{}
	g := newTestGate(c, &fakeEntries{})
	existing := []medicalhistory.Entry{{ID: "e1", ReferenceID: "R1", Condition: "Eczema"}}
	r, err := g.Evaluate(context.Background(), "u1", skinRecord("R1"), existing)
	if err != nil {
		t.Fatal(err)
	}
	if r.State != StatePersisted || r.Entry.ID != "e1" {
		t.Errorf("expected persisted with existing entry, got %+v", r)
	}
	if c.calls.Load() != 0 {
		t.Errorf("expected no classification call, got %d", c.calls.Load())
	}
}

func TestEvaluate_MedicalConditionPersists(t *testing.T) {
	c := &fakeClassifier{resp: Classification{IsMedicalCondition: true, Condition: "Eczema", Recommendations: "Moisturize twice daily"}}
	e := &fakeEntries{}
	g := newTestGate(c, e)
	r, err := g.Evaluate(context.Background(), "u1", skinRecord("R2"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if r.State != StatePersisted {
		t.Fatalf("expected persisted, got %s", r.State)
	}
	if len(e.created) != 1 {
		t.Fatalf("expected one entry, got %d", len(e.created))
	}
	got := e.created[0]
	if got.Condition != "Eczema" || got.Description != "Moisturize twice daily" {
		t.Errorf("unexpected entry %+v", got)
	}
	if got.ReferenceID != "R2" || !got.IsActive || got.UserID != "u1" {
		t.Errorf("unexpected entry linkage %+v", got)
	}
	if !got.DateDiagnosed.Equal(skinRecord("R2").Date) {
		t.Errorf("expected record date as dateDiagnosed, got %v", got.DateDiagnosed)
	}
	if g.State("u1", "R2") != StatePersisted {
		t.Errorf("expected State persisted, got %s", g.State("u1", "R2"))
	}

	// A second evaluation is served from the cached terminal state.
	if _, err := g.Evaluate(context.Background(), "u1", skinRecord("R2"), nil); err != nil {
		t.Fatal(err)
	}
	if c.calls.Load() != 1 || len(e.created) != 1 {
		t.Errorf("expected no further calls, got %d classify, %d create", c.calls.Load(), len(e.created))
	}
}

func TestEvaluate_FallsBackToRecordText(t *testing.T) {
	c := &fakeClassifier{resp: Classification{IsMedicalCondition: true}}
	e := &fakeEntries{}
	g := newTestGate(c, e)
	g.Evaluate(context.Background(), "u1", skinRecord("R3"), nil)
	got := e.created[0]
	if got.Condition != "Dry patches on forearm" || got.Description != "Use emollients" {
		t.Errorf("expected record summary and insights, got %+v", got)
	}
}

func TestEvaluate_NotMedicalSkips(t *testing.T) {
	c := &fakeClassifier{resp: Classification{IsMedicalCondition: false}}
	e := &fakeEntries{}
	g := newTestGate(c, e)
	r, err := g.Evaluate(context.Background(), "u1", skinRecord("R4"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if r.State != StateSkipped || len(e.created) != 0 {
		t.Errorf("expected skipped with no entry, got %s and %d entries", r.State, len(e.created))
	}
	g.Evaluate(context.Background(), "u1", skinRecord("R4"), nil)
	if c.calls.Load() != 1 {
		t.Errorf("skipped is terminal, expected 1 call, got %d", c.calls.Load())
	}
}

func TestEvaluate_FailureIsRetried(t *testing.T) {
	c := &fakeClassifier{err: errors.New("timeout")}
	g := newTestGate(c, &fakeEntries{})
	r, err := g.Evaluate(context.Background(), "u1", skinRecord("R5"), nil)
	var rfe *scan.RecommendationFetchError
	if !errors.As(err, &rfe) {
		t.Fatalf("expected RecommendationFetchError, got %v", err)
	}
	if r.State != StateFailed || g.State("u1", "R5") != StateFailed {
		t.Errorf("expected failed, got %s", r.State)
	}

	c.err = nil
	c.resp = Classification{IsMedicalCondition: false}
	r, err = g.Evaluate(context.Background(), "u1", skinRecord("R5"), nil)
	if err != nil || r.State != StateSkipped {
		t.Errorf("expected retry to succeed, got %s %v", r.State, err)
	}
	if c.calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", c.calls.Load())
	}
}

func TestEvaluate_EntryWriteFailure(t *testing.T) {
	c := &fakeClassifier{resp: Classification{IsMedicalCondition: true}}
	g := newTestGate(c, &fakeEntries{err: errors.New("503")})
	r, err := g.Evaluate(context.Background(), "u1", skinRecord("R6"), nil)
	if err == nil || r.State != StateFailed {
		t.Errorf("expected failed on write error, got %s %v", r.State, err)
	}
}

func TestEvaluate_ConcurrentCallsShareOneFlight(t *testing.T) {
	c := &fakeClassifier{resp: Classification{IsMedicalCondition: true, Condition: "Eczema"}, block: make(chan struct{})}
	e := &fakeEntries{}
	g := newTestGate(c, e)

	var wg sync.WaitGroup
	results := make([]Result, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = g.Evaluate(context.Background(), "u1", skinRecord("R7"), nil)
		}(i)
	}
	// Wait until the first flight is in the classifier.
	for c.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	if g.State("u1", "R7") != StateRequested {
		t.Errorf("expected requested while in flight, got %s", g.State("u1", "R7"))
	}
	time.Sleep(10 * time.Millisecond)
	close(c.block)
	wg.Wait()

	if len(e.created) != 1 {
		t.Errorf("expected exactly one entry, got %d", len(e.created))
	}
	for i, r := range results {
		if r.State != StatePersisted {
			t.Errorf("result %d: expected persisted, got %s", i, r.State)
		}
	}
}

func TestEvaluate_VitalsIDOnlyForVitals(t *testing.T) {
	c := &fakeClassifier{resp: Classification{}}
	g := newTestGate(c, &fakeEntries{})
	g.Evaluate(context.Background(), "u1", skinRecord("S1"), nil)
	if c.last.VitalsID != "" {
		t.Errorf("expected no vitalsId for skin, got %q", c.last.VitalsID)
	}

	vitals := scan.Record{ID: "V1", Type: scan.TypeVitals, Data: scan.VitalsData{HeartRate: 72},
		Analysis: scan.Analysis{Analysis: "Normal vitals"}}
	g.Evaluate(context.Background(), "u1", vitals, nil)
	if c.last.VitalsID != "V1" || c.last.Analysis != "Normal vitals" {
		t.Errorf("unexpected vitals request %+v", c.last)
	}
}

func TestEvaluate_NoTextSkipsWithoutCall(t *testing.T) {
	c := &fakeClassifier{}
	g := newTestGate(c, &fakeEntries{})
	r, _ := g.Evaluate(context.Background(), "u1", scan.Record{ID: "N1", Type: scan.TypeSymptom}, nil)
	if r.State != StateSkipped || c.calls.Load() != 0 {
		t.Errorf("expected skip without call, got %s, %d calls", r.State, c.calls.Load())
	}
}

func TestEvaluate_SameRecordIDIsolatedPerUser(t *testing.T) {
	c := &fakeClassifier{resp: Classification{IsMedicalCondition: true, Condition: "Eczema"}}
	e := &fakeEntries{}
	g := newTestGate(c, e)

	alice, err := g.Evaluate(context.Background(), "alice", skinRecord("same-id"), nil)
	if err != nil {
		t.Fatal(err)
	}
	bob, err := g.Evaluate(context.Background(), "bob", skinRecord("same-id"), nil)
	if err != nil {
		t.Fatal(err)
	}

	if c.calls.Load() != 2 || len(e.created) != 2 {
		t.Fatalf("expected one classification and entry per user, got %d calls, %d entries", c.calls.Load(), len(e.created))
	}
	if alice.Entry.UserID != "alice" || bob.Entry.UserID != "bob" {
		t.Errorf("entries crossed users: alice=%q bob=%q", alice.Entry.UserID, bob.Entry.UserID)
	}
	if r, ok := g.Result("bob", "same-id"); !ok || r.Entry.UserID != "bob" {
		t.Errorf("unexpected cached result for bob: %+v %v", r, ok)
	}
	if g.State("carol", "same-id") != StatePending {
		t.Error("a third user must not see another user's state")
	}
}

func TestEvaluate_CancelledCallerDoesNotCancelFlight(t *testing.T) {
	c := &fakeClassifier{resp: Classification{IsMedicalCondition: true, Condition: "Eczema"}, block: make(chan struct{})}
	e := &fakeEntries{}
	g := newTestGate(c, e)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := g.Evaluate(ctx, "u1", skinRecord("R8"), nil)
		firstErr <- err
	}()
	for c.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	second := make(chan Result, 1)
	go func() {
		r, _ := g.Evaluate(context.Background(), "u1", skinRecord("R8"), nil)
		second <- r
	}()

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("expected the cancelled caller to stop waiting, got %v", err)
	}
	close(c.block)

	r := <-second
	if r.State != StatePersisted {
		t.Errorf("expected the shared flight to finish, got %s", r.State)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctxErr != nil {
		t.Errorf("classifier context was cancelled with the first caller: %v", c.ctxErr)
	}
	if c.calls.Load() != 1 || len(e.created) != 1 {
		t.Errorf("expected one flight, got %d calls, %d entries", c.calls.Load(), len(e.created))
	}
}

func TestState_UnknownIsPending(t *testing.T) {
	g := newTestGate(&fakeClassifier{}, &fakeEntries{})
	if g.State("u1", "nope") != StatePending {
		t.Error("expected pending")
	}
}

func TestClassification_Decode(t *testing.T) {
	tests := []struct {
		body string
		want bool
	}{
		{`{"isMedicalCondition":1}`, true},
		{`{"isMedicalCondition":0}`, false},
		{`{"isMedicalCondition":true}`, true},
		{`{"isMedicalCondition":"1"}`, true},
		{`{"isMedicalCondition":"0"}`, false},
		{`{"isMedicalCondition":null}`, false},
		{`{}`, false},
	}
	for _, tt := range tests {
		var c Classification
		if err := json.Unmarshal([]byte(tt.body), &c); err != nil {
			t.Fatalf("%s: %v", tt.body, err)
		}
		if bool(c.IsMedicalCondition) != tt.want {
			t.Errorf("%s: expected %v", tt.body, tt.want)
		}
	}

	var c Classification
	if err := json.Unmarshal([]byte(`{"recommendations":["Rest","Hydrate"],"insights":" ok "}`), &c); err != nil {
		t.Fatal(err)
	}
	if c.Recommendations != "Rest\nHydrate" || c.Insights != "ok" {
		t.Errorf("unexpected text decoding %+v", c)
	}
	if err := json.Unmarshal([]byte(`{"isMedicalCondition":"maybe"}`), &c); err == nil {
		t.Error("expected error for invalid flag")
	}
}
