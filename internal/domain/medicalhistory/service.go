package medicalhistory

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// listAllLimit bounds the unpaginated list used by the reconciler and gate.
const listAllLimit = 1000

// Service provides business logic for medical history entries.
type Service struct {
	entries Repository
	now     func() time.Time
}

// NewService creates a new medical history service.
func NewService(r Repository) *Service {
	return &Service{entries: r, now: time.Now}
}

func (s *Service) CreateEntry(ctx context.Context, e *Entry) (bool, error) {
	if e.UserID == "" {
		return false, fmt.Errorf("%w: userId is required", ErrInvalidEntry)
	}
	e.Condition = strings.TrimSpace(e.Condition)
	if e.Condition == "" {
		return false, fmt.Errorf("%w: condition is required", ErrInvalidEntry)
	}
	if e.DateDiagnosed == nil {
		now := s.now().UTC()
		e.DateDiagnosed = &now
	}
	return s.entries.Create(ctx, e)
}

// GetEntry returns the entry only when it belongs to userID.
func (s *Service) GetEntry(ctx context.Context, userID, id string) (*Entry, error) {
	e, err := s.entries.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.UserID != userID {
		return nil, ErrNotFound
	}
	return e, nil
}

func (s *Service) ListEntries(ctx context.Context, userID, condition string, limit, offset int) ([]*Entry, int, error) {
	if strings.EqualFold(condition, "all") {
		condition = ""
	}
	return s.entries.ListByUser(ctx, userID, condition, limit, offset)
}

func (s *Service) SetActive(ctx context.Context, userID, id string, active bool) (*Entry, error) {
	if _, err := s.GetEntry(ctx, userID, id); err != nil {
		return nil, err
	}
	if err := s.entries.SetActive(ctx, id, active); err != nil {
		return nil, err
	}
	return s.entries.GetByID(ctx, id)
}

// List implements Store.
func (s *Service) List(ctx context.Context, userID string) ([]Entry, error) {
	items, _, err := s.entries.ListByUser(ctx, userID, "", listAllLimit, 0)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(items))
	for _, e := range items {
		out = append(out, *e)
	}
	return out, nil
}

// Create implements Store. An existing entry for the same reference is
// returned in place of a duplicate.
func (s *Service) Create(ctx context.Context, e *Entry) error {
	_, err := s.CreateEntry(ctx, e)
	return err
}
