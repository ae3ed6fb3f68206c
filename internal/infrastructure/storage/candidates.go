package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"EthnoCards/internal/domain"
	"EthnoCards/internal/ports"
)

var candidateColumns = []string{"id", "latin", "status", "locked_at", "card_ref", "updated_at"}

// CandidateRepository persists candidates.
type CandidateRepository struct {
	store *Store
}

var _ ports.CandidateStore = (*CandidateRepository)(nil)

// ListNew returns up to limit candidates with status=new. Locked rows are
// included; the caller re-checks lockedAt.
func (r *CandidateRepository) ListNew(ctx context.Context, limit int) ([]domain.Candidate, error) {
	q := r.store.builder.Select(candidateColumns...).
		From("candidates").
		Where(sq.Eq{"status": string(domain.CandidateNew)}).
		OrderBy("id")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return r.list(ctx, q)
}

// ListAll returns every candidate.
func (r *CandidateRepository) ListAll(ctx context.Context) ([]domain.Candidate, error) {
	return r.list(ctx, r.store.builder.Select(candidateColumns...).From("candidates").OrderBy("id"))
}

// TryLock sets locked_at only while the row is new and unlocked.
func (r *CandidateRepository) TryLock(ctx context.Context, id string, now time.Time) (bool, error) {
	now = now.UTC()
	n, err := r.store.exec(ctx, r.store.builder.Update("candidates").
		Set("locked_at", now).
		Set("updated_at", now).
		Where(sq.Eq{"id": id, "status": string(domain.CandidateNew), "locked_at": nil}))
	if err != nil {
		return false, fmt.Errorf("lock candidate %s: %w", id, err)
	}
	return n == 1, nil
}

// MarkHasCard links the card and clears the lock. Repeating it is harmless.
func (r *CandidateRepository) MarkHasCard(ctx context.Context, id, cardRef string, now time.Time) error {
	_, err := r.store.exec(ctx, r.store.builder.Update("candidates").
		Set("status", string(domain.CandidateHasCard)).
		Set("card_ref", cardRef).
		Set("locked_at", nil).
		Set("updated_at", now.UTC()).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("mark candidate %s: %w", id, err)
	}
	return nil
}

// Unlock clears locked_at and leaves status untouched.
func (r *CandidateRepository) Unlock(ctx context.Context, id string, now time.Time) error {
	_, err := r.store.exec(ctx, r.store.builder.Update("candidates").
		Set("locked_at", nil).
		Set("updated_at", now.UTC()).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("unlock candidate %s: %w", id, err)
	}
	return nil
}

// ReleaseStale unlocks candidates locked before the cutoff.
func (r *CandidateRepository) ReleaseStale(ctx context.Context, lockedBefore, now time.Time) (int64, error) {
	n, err := r.store.exec(ctx, r.store.builder.Update("candidates").
		Set("locked_at", nil).
		Set("updated_at", now.UTC()).
		Where(sq.Eq{"status": string(domain.CandidateNew)}).
		Where(sq.Lt{"locked_at": lockedBefore.UTC()}))
	if err != nil {
		return 0, fmt.Errorf("release stale locks: %w", err)
	}
	return n, nil
}

// AddNew inserts a new candidate; an existing id is left as is.
func (r *CandidateRepository) AddNew(ctx context.Context, id, latin string, now time.Time) (bool, error) {
	now = now.UTC()
	n, err := r.store.exec(ctx, r.store.builder.Insert("candidates").
		Columns("id", "latin", "status", "added_at", "updated_at").
		Values(id, latin, string(domain.CandidateNew), now, now).
		Suffix("ON CONFLICT (id) DO NOTHING"))
	if err != nil {
		return false, fmt.Errorf("insert candidate %s: %w", id, err)
	}
	return n == 1, nil
}

func (r *CandidateRepository) list(ctx context.Context, q sq.SelectBuilder) ([]domain.Candidate, error) {
	rows, err := r.store.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	var out []domain.Candidate
	for rows.Next() {
		var (
			c         domain.Candidate
			status    string
			lockedAt  sql.NullTime
			cardRef   sql.NullString
			updatedAt sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.Latin, &status, &lockedAt, &cardRef, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		c.Status = domain.CandidateStatus(status)
		c.LockedAt = nullTime(lockedAt)
		c.CardRef = cardRef.String
		if updatedAt.Valid {
			c.UpdatedAt = updatedAt.Time.UTC()
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}
