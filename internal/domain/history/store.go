package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/animus/animus/internal/domain/scan"
)

// StorageKey is the key the history list is mirrored under.
const StorageKey = "history"

var (
	ErrDuplicateRecord = errors.New("history: record already exists")
	ErrRecordNotFound  = errors.New("history: record not found")
)

// KV is the whole-blob key/value persistence the store mirrors to.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// EventKind identifies a store change.
type EventKind string

const (
	EventAppended EventKind = "appended"
	EventUpdated  EventKind = "updated"
)

// Event is delivered to subscribers after a change is applied.
type Event struct {
	Kind   EventKind   `json:"kind"`
	Record scan.Record `json:"record"`
}

type subscription struct {
	fn     func(Event)
	active atomic.Bool
}

// Store is one user's local scan history, newest first. All mutations go
// through a single locked path that mirrors the full list to KV before the
// in-memory list is replaced.
type Store struct {
	// write serializes mutations and event delivery; it is always acquired
	// before mu.
	write sync.Mutex

	mu      sync.Mutex
	records []scan.Record
	subs    map[int]*subscription
	nextSub int

	kv     KV
	logger zerolog.Logger
}

// Load reads the mirrored list from kv. A missing key yields an empty store.
func Load(ctx context.Context, kv KV, logger zerolog.Logger) (*Store, error) {
	s := &Store{kv: kv, logger: logger, subs: make(map[int]*subscription)}
	raw, ok, err := kv.Get(ctx, StorageKey)
	if err != nil {
		return nil, &scan.StorageError{Op: "read", Key: StorageKey, Err: err}
	}
	if ok && len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.records); err != nil {
			return nil, &scan.StorageError{Op: "decode", Key: StorageKey, Err: err}
		}
	}
	return s, nil
}

// Append prepends rec. When mirroring fails the record is still kept in
// memory and a *scan.StorageError is returned as a warning.
func (s *Store) Append(ctx context.Context, rec scan.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record id is required")
	}
	s.write.Lock()
	defer s.write.Unlock()
	s.mu.Lock()
	for _, r := range s.records {
		if r.ID == rec.ID {
			s.mu.Unlock()
			return ErrDuplicateRecord
		}
	}
	next := make([]scan.Record, 0, len(s.records)+1)
	next = append(next, rec)
	next = append(next, s.records...)
	return s.commit(ctx, next, Event{Kind: EventAppended, Record: rec})
}

// AttachMedicalHistory records the id of the entry persisted for recordID.
func (s *Store) AttachMedicalHistory(ctx context.Context, recordID, entryID string) error {
	s.write.Lock()
	defer s.write.Unlock()
	s.mu.Lock()
	idx := s.indexOf(recordID)
	if idx < 0 {
		s.mu.Unlock()
		return ErrRecordNotFound
	}
	if s.records[idx].MedicalHistoryID == entryID {
		s.mu.Unlock()
		return nil
	}
	next := make([]scan.Record, len(s.records))
	copy(next, s.records)
	next[idx].MedicalHistoryID = entryID
	return s.commit(ctx, next, Event{Kind: EventUpdated, Record: next[idx]})
}

// commit is called with s.write and s.mu held. It mirrors next to KV,
// then swaps it in and delivers ev with s.mu released.
func (s *Store) commit(ctx context.Context, next []scan.Record, ev Event) error {
	s.mu.Unlock()

	var warn error
	data, err := json.Marshal(next)
	if err == nil {
		err = s.kv.Set(ctx, StorageKey, data)
	}
	if err != nil {
		warn = &scan.StorageError{Op: "write", Key: StorageKey, Err: err}
		s.logger.Error().Err(err).Str("record_id", ev.Record.ID).Msg("history mirror failed")
	}

	s.mu.Lock()
	s.records = next
	subs := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		if sub.active.Load() {
			sub.fn(ev)
		}
	}
	return warn
}

func (s *Store) indexOf(id string) int {
	for i := range s.records {
		if s.records[i].ID == id {
			return i
		}
	}
	return -1
}

// All returns a copy of the history, newest first.
func (s *Store) All() []scan.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]scan.Record, len(s.records))
	copy(out, s.records)
	return out
}

func (s *Store) Get(id string) (scan.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.records[i], true
	}
	return scan.Record{}, false
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Subscribe registers fn for future events. After cancel returns fn is not
// called again. fn must not mutate the store.
func (s *Store) Subscribe(fn func(Event)) (cancel func()) {
	sub := &subscription{fn: fn}
	sub.active.Store(true)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = sub
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.active.Store(false)
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}
