package medicalhistory

import (
	"context"
	"time"
)

// Entry is a server-persisted condition record derived from a scan. JSON tags
// follow the upstream API so entries round-trip between both stores.
type Entry struct {
	ID            string     `db:"id" json:"_id,omitempty"`
	UserID        string     `db:"user_id" json:"userId,omitempty"`
	Condition     string     `db:"condition" json:"condition"`
	Description   string     `db:"description" json:"description"`
	DateDiagnosed *time.Time `db:"date_diagnosed" json:"dateDiagnosed,omitempty"`
	IsActive      bool       `db:"is_active" json:"isActive"`
	ReferenceID   string     `db:"reference_id" json:"referenceId,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updatedAt"`
}

// Key is the identifier used to match an entry to a scan record: the
// reference id when present, otherwise the entry's own id.
func (e *Entry) Key() string {
	if e.ReferenceID != "" {
		return e.ReferenceID
	}
	return e.ID
}

// EffectiveDate is dateDiagnosed when present, else createdAt.
func (e *Entry) EffectiveDate() time.Time {
	if e.DateDiagnosed != nil && !e.DateDiagnosed.IsZero() {
		return *e.DateDiagnosed
	}
	return e.CreatedAt
}

// FindByReference returns the entry whose reference id equals recordID.
func FindByReference(entries []Entry, recordID string) (Entry, bool) {
	if recordID == "" {
		return Entry{}, false
	}
	for _, e := range entries {
		if e.ReferenceID == recordID {
			return e, true
		}
	}
	return Entry{}, false
}

// Store is the medical-history collaborator used by the scan pipeline. It is
// implemented by Service (PostgreSQL) and by the upstream API client.
type Store interface {
	List(ctx context.Context, userID string) ([]Entry, error)
	Create(ctx context.Context, e *Entry) error
}
