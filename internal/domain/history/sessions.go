package history

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Sessions owns one Store per user, loading each lazily on first use.
type Sessions struct {
	mu     sync.Mutex
	stores map[string]*Store
	open   func(userID string) KV
	logger zerolog.Logger
}

// NewSessions creates a registry; open returns the KV view for a user.
func NewSessions(open func(userID string) KV, logger zerolog.Logger) *Sessions {
	return &Sessions{stores: make(map[string]*Store), open: open, logger: logger}
}

// For returns the user's store, loading it from KV if needed.
func (s *Sessions) For(ctx context.Context, userID string) (*Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.stores[userID]; ok {
		return st, nil
	}
	st, err := Load(ctx, s.open(userID), s.logger.With().Str("user_id", userID).Logger())
	if err != nil {
		return nil, err
	}
	s.stores[userID] = st
	return st, nil
}
