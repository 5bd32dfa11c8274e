package medicalhistory

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
)

type mockRepo struct {
	store map[string]*Entry
	order []string
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[string]*Entry)}
}

func (m *mockRepo) Create(_ context.Context, e *Entry) (bool, error) {
	if e.ReferenceID != "" {
		for _, existing := range m.store {
			if existing.UserID == e.UserID && existing.ReferenceID == e.ReferenceID {
				*e = *existing
				return false, nil
			}
		}
	}
	e.ID = uuid.NewString()
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	cp := *e
	m.store[e.ID] = &cp
	m.order = append(m.order, e.ID)
	return true, nil
}

func (m *mockRepo) GetByID(_ context.Context, id string) (*Entry, error) {
	e, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *mockRepo) GetByReference(_ context.Context, userID, referenceID string) (*Entry, error) {
	for _, e := range m.store {
		if e.UserID == userID && e.ReferenceID == referenceID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) ListByUser(_ context.Context, userID, condition string, limit, offset int) ([]*Entry, int, error) {
	var result []*Entry
	for _, id := range m.order {
		e := m.store[id]
		if e.UserID != userID || (condition != "" && e.Condition != condition) {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].EffectiveDate().After(result[j].EffectiveDate())
	})
	return result, len(result), nil
}

func (m *mockRepo) SetActive(_ context.Context, id string, active bool) error {
	e, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	e.IsActive = active
	return nil
}

func newTestService() *Service {
	return NewService(newMockRepo())
}

func TestService_CreateEntry(t *testing.T) {
	svc := newTestService()
	e := &Entry{UserID: "u1", Condition: " Eczema ", ReferenceID: "r1", IsActive: true}
	created, err := svc.CreateEntry(context.Background(), e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("expected created")
	}
	if e.ID == "" {
		t.Error("expected ID to be set")
	}
	if e.Condition != "Eczema" {
		t.Errorf("expected trimmed condition, got %q", e.Condition)
	}
	if e.DateDiagnosed == nil {
		t.Error("expected dateDiagnosed default")
	}
}

func TestService_CreateEntry_Validation(t *testing.T) {
	svc := newTestService()
	if _, err := svc.CreateEntry(context.Background(), &Entry{Condition: "Flu"}); err == nil {
		t.Error("expected error for missing userId")
	}
	if _, err := svc.CreateEntry(context.Background(), &Entry{UserID: "u1", Condition: "  "}); err == nil {
		t.Error("expected error for blank condition")
	}
}

func TestService_CreateEntry_DuplicateReference(t *testing.T) {
	svc := newTestService()
	first := &Entry{UserID: "u1", Condition: "Flu", ReferenceID: "r1"}
	if _, err := svc.CreateEntry(context.Background(), first); err != nil {
		t.Fatal(err)
	}
	second := &Entry{UserID: "u1", Condition: "Cold", ReferenceID: "r1"}
	created, err := svc.CreateEntry(context.Background(), second)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("expected existing entry to be returned")
	}
	if second.ID != first.ID || second.Condition != "Flu" {
		t.Errorf("expected first entry, got %+v", second)
	}
	all, _ := svc.List(context.Background(), "u1")
	if len(all) != 1 {
		t.Errorf("expected 1 entry, got %d", len(all))
	}
}

func TestService_GetEntry_OtherUser(t *testing.T) {
	svc := newTestService()
	e := &Entry{UserID: "u1", Condition: "Flu"}
	svc.CreateEntry(context.Background(), e)
	if _, err := svc.GetEntry(context.Background(), "u2", e.ID); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_ListEntries_AllFilter(t *testing.T) {
	svc := newTestService()
	svc.CreateEntry(context.Background(), &Entry{UserID: "u1", Condition: "Flu"})
	svc.CreateEntry(context.Background(), &Entry{UserID: "u1", Condition: "Eczema"})
	items, total, err := svc.ListEntries(context.Background(), "u1", "All", 20, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(items) != 2 {
		t.Errorf("expected 2 entries, got %d", total)
	}
	items, _, _ = svc.ListEntries(context.Background(), "u1", "Flu", 20, 0)
	if len(items) != 1 {
		t.Errorf("expected 1 Flu entry, got %d", len(items))
	}
}

func TestService_SetActive(t *testing.T) {
	svc := newTestService()
	e := &Entry{UserID: "u1", Condition: "Flu", IsActive: true}
	svc.CreateEntry(context.Background(), e)
	got, err := svc.SetActive(context.Background(), "u1", e.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if got.IsActive {
		t.Error("expected inactive")
	}
}

func TestEntry_EffectiveDate(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	diagnosed := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	e := Entry{CreatedAt: created}
	if !e.EffectiveDate().Equal(created) {
		t.Error("expected createdAt fallback")
	}
	e.DateDiagnosed = &diagnosed
	if !e.EffectiveDate().Equal(diagnosed) {
		t.Error("expected dateDiagnosed")
	}
}

func TestFindByReference(t *testing.T) {
	entries := []Entry{{ID: "e1", ReferenceID: "r1"}, {ID: "e2"}}
	if e, ok := FindByReference(entries, "r1"); !ok || e.ID != "e1" {
		t.Errorf("expected e1, got %+v %v", e, ok)
	}
	if _, ok := FindByReference(entries, ""); ok {
		t.Error("empty id must not match")
	}
	if _, ok := FindByReference(entries, "e2"); ok {
		t.Error("entry id must not match a reference lookup")
	}
}
