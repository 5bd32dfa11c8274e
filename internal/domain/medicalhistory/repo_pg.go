package medicalhistory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ db queryable }

// NewRepoPG returns a Repository backed by the medical_history table.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{db: pool}
}

const entryCols = `id::text, user_id, condition, description, date_diagnosed,
	is_active, reference_id, created_at, updated_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var ref *string
	err := row.Scan(&e.ID, &e.UserID, &e.Condition, &e.Description, &e.DateDiagnosed,
		&e.IsActive, &ref, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if ref != nil {
		e.ReferenceID = *ref
	}
	return &e, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *repoPG) Create(ctx context.Context, e *Entry) (bool, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO medical_history (id, user_id, condition, description, date_diagnosed,
			is_active, reference_id)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, reference_id) WHERE reference_id IS NOT NULL DO NOTHING
		RETURNING created_at, updated_at`,
		e.ID, e.UserID, e.Condition, e.Description, e.DateDiagnosed,
		e.IsActive, nullIfEmpty(e.ReferenceID)).Scan(&e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, gerr := r.GetByReference(ctx, e.UserID, e.ReferenceID)
		if gerr != nil {
			return false, fmt.Errorf("load existing entry for reference %s: %w", e.ReferenceID, gerr)
		}
		*e = *existing
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *repoPG) GetByID(ctx context.Context, id string) (*Entry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return scanEntry(r.db.QueryRow(ctx, `SELECT `+entryCols+` FROM medical_history WHERE id = $1::uuid`, id))
}

func (r *repoPG) GetByReference(ctx context.Context, userID, referenceID string) (*Entry, error) {
	return scanEntry(r.db.QueryRow(ctx,
		`SELECT `+entryCols+` FROM medical_history WHERE user_id = $1 AND reference_id = $2`, userID, referenceID))
}

func (r *repoPG) ListByUser(ctx context.Context, userID, condition string, limit, offset int) ([]*Entry, int, error) {
	where := `WHERE user_id = $1`
	args := []interface{}{userID}
	if condition != "" {
		where += ` AND lower(condition) = lower($2)`
		args = append(args, condition)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM medical_history `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM medical_history %s
		ORDER BY COALESCE(date_diagnosed, created_at) DESC, created_at DESC
		LIMIT $%d OFFSET $%d`, entryCols, where, n+1, n+2)
	rows, err := r.db.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}

func (r *repoPG) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE medical_history SET is_active = $2, updated_at = NOW() WHERE id = $1::uuid`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
