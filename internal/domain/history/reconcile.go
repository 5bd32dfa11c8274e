// Package history produces the user's scan history: a session-scoped local
// store of scan records and a reconciler that merges it with the remote
// medical-history list.
package history

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/animus/animus/internal/domain/medicalhistory"
	"github.com/animus/animus/internal/domain/scan"
)

// Status distinguishes where a history item came from.
type Status string

const (
	// StatusSynced is a local record with a remote counterpart.
	StatusSynced Status = "synced"
	// StatusPending is a local record not yet persisted remotely.
	StatusPending Status = "pending"
	// StatusRemote is a remote entry with no local record.
	StatusRemote Status = "remote"
)

// Item is one row of the reconciled history.
type Item struct {
	ID            string       `json:"id"`
	ScanType      scan.Type    `json:"scanType,omitempty"`
	Date          time.Time    `json:"date"`
	Condition     string       `json:"condition"`
	Description   string       `json:"description"`
	IsActive      bool         `json:"isActive"`
	DateDiagnosed *time.Time   `json:"dateDiagnosed,omitempty"`
	Record        *scan.Record `json:"record,omitempty"`
	EntryID       string       `json:"entryId,omitempty"`
	Status        Status       `json:"status"`
}

// EffectiveDate is dateDiagnosed when present, else the record or entry date.
func (it Item) EffectiveDate() time.Time {
	if it.DateDiagnosed != nil && !it.DateDiagnosed.IsZero() {
		return *it.DateDiagnosed
	}
	return it.Date
}

// Merge combines local records (newest first) with remote entries. Remote
// values win for condition, description, isActive and dateDiagnosed; the
// local record is always kept so payload fields the remote store does not
// echo survive. Remote entries without a local record are appended as
// StatusRemote. The result is sorted by effective date descending, with
// ties kept in input order.
func Merge(local []scan.Record, remote []medicalhistory.Entry) []Item {
	byKey := make(map[string]int, len(remote))
	for i := range remote {
		k := remote[i].Key()
		if _, dup := byKey[k]; !dup {
			byKey[k] = i
		}
	}

	matched := make(map[int]bool, len(remote))
	items := make([]Item, 0, len(local)+len(remote))
	for i := range local {
		rec := local[i]
		it := Item{
			ID:          rec.ID,
			ScanType:    rec.Type,
			Date:        rec.Date,
			Condition:   rec.Analysis.Headline(),
			Description: rec.Analysis.Insights,
			Record:      &rec,
			Status:      StatusPending,
		}
		if j, ok := byKey[rec.ID]; ok {
			e := remote[j]
			matched[j] = true
			it.Condition = e.Condition
			it.Description = e.Description
			it.IsActive = e.IsActive
			it.DateDiagnosed = e.DateDiagnosed
			it.EntryID = e.ID
			it.Status = StatusSynced
		}
		items = append(items, it)
	}

	for j := range remote {
		if matched[j] {
			continue
		}
		e := remote[j]
		items = append(items, Item{
			ID:            e.Key(),
			Date:          e.CreatedAt,
			Condition:     e.Condition,
			Description:   e.Description,
			IsActive:      e.IsActive,
			DateDiagnosed: e.DateDiagnosed,
			EntryID:       e.ID,
			Status:        StatusRemote,
		})
	}

	sort.SliceStable(items, func(a, b int) bool {
		return items[a].EffectiveDate().After(items[b].EffectiveDate())
	})
	return items
}

// Filter narrows a reconciled list. Zero values match everything.
type Filter struct {
	// Condition matches case-insensitively; "All" disables it.
	Condition string
	ScanType  scan.Type
}

func (f Filter) matches(it Item) bool {
	if c := strings.TrimSpace(f.Condition); c != "" && !strings.EqualFold(c, "all") {
		if !strings.EqualFold(it.Condition, c) {
			return false
		}
	}
	if f.ScanType != "" && it.ScanType != f.ScanType {
		return false
	}
	return true
}

// Apply returns the items matching f in a new slice.
func (f Filter) Apply(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if f.matches(it) {
			out = append(out, it)
		}
	}
	return out
}

// Lister fetches the remote medical-history list for a user.
type Lister interface {
	List(ctx context.Context, userID string) ([]medicalhistory.Entry, error)
}

// View is the reconciled history returned to callers.
type View struct {
	Items []Item `json:"items"`
	// Degraded is set when the remote list could not be fetched and Items
	// holds local records only.
	Degraded bool   `json:"degraded"`
	Warning  string `json:"warning,omitempty"`
	// Remote is the fetched list, nil when Degraded.
	Remote []medicalhistory.Entry `json:"-"`
}

// Reconciler merges local history with the remote list.
type Reconciler struct {
	remote Lister
	logger zerolog.Logger
}

func NewReconciler(remote Lister, logger zerolog.Logger) *Reconciler {
	return &Reconciler{remote: remote, logger: logger}
}

// Reconcile never fails: a remote fetch error degrades the view to local
// records only.
func (r *Reconciler) Reconcile(ctx context.Context, userID string, local []scan.Record, f Filter) View {
	remote, err := r.remote.List(ctx, userID)
	if err != nil {
		r.logger.Warn().Err(err).Str("user_id", userID).Msg("medical history fetch failed, showing local history")
		return View{
			Items:    f.Apply(Merge(local, nil)),
			Degraded: true,
			Warning:  "Could not load medical history. Showing saved scans only.",
		}
	}
	return View{Items: f.Apply(Merge(local, remote)), Remote: remote}
}
