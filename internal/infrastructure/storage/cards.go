package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"EthnoCards/internal/domain"
	"EthnoCards/internal/ports"
)

var cardColumns = []string{
	"id", "latin", "plant_id", "status", "cooldown_days",
	"disabled", "posted_count", "last_posted_at", "payload",
}

// CardRepository persists cards keyed by slug.
type CardRepository struct {
	store *Store
}

var _ ports.CardStore = (*CardRepository)(nil)

// storedPayload reads image fragments written by older pipeline versions.
type storedPayload struct {
	domain.Payload
	Image json.RawMessage `json:"image"`
}

// UpsertCard writes the card; a second write for the same slug overwrites it.
func (r *CardRepository) UpsertCard(ctx context.Context, card domain.Card) error {
	if card.ID == "" {
		return fmt.Errorf("upsert card: empty id")
	}

	payload, err := json.Marshal(card.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload %s: %w", card.ID, err)
	}

	var lastPostedAt any
	if card.LastPostedAt != nil {
		lastPostedAt = card.LastPostedAt.UTC()
	}

	_, err = r.store.exec(ctx, r.store.builder.Insert("cards").
		Columns(append(cardColumns, "updated_at")...).
		Values(
			card.ID,
			card.Latin,
			card.PlantID,
			string(card.Status),
			card.CooldownDays,
			card.Disabled,
			card.PostedCount,
			lastPostedAt,
			string(payload),
			time.Now().UTC(),
		).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			latin = excluded.latin,
			plant_id = excluded.plant_id,
			status = excluded.status,
			cooldown_days = excluded.cooldown_days,
			disabled = excluded.disabled,
			posted_count = excluded.posted_count,
			last_posted_at = excluded.last_posted_at,
			payload = excluded.payload,
			updated_at = excluded.updated_at`))
	if err != nil {
		return fmt.Errorf("upsert card %s: %w", card.ID, err)
	}
	return nil
}

// GetCard loads one card or returns domain.ErrNotFound.
func (r *CardRepository) GetCard(ctx context.Context, id string) (domain.Card, error) {
	cards, err := r.list(ctx, r.store.builder.Select(cardColumns...).From("cards").Where(sq.Eq{"id": id}))
	if err != nil {
		return domain.Card{}, err
	}
	if len(cards) == 0 {
		return domain.Card{}, fmt.Errorf("card %s: %w", id, domain.ErrNotFound)
	}
	return cards[0], nil
}

// ListCards returns all cards regardless of state; eligibility is the scheduler's call.
func (r *CardRepository) ListCards(ctx context.Context) ([]domain.Card, error) {
	return r.list(ctx, r.store.builder.Select(cardColumns...).From("cards").OrderBy("id"))
}

// ClaimPost is the compare-and-swap on posted_count.
func (r *CardRepository) ClaimPost(ctx context.Context, id string, expected int, now time.Time) (bool, error) {
	n, err := r.store.exec(ctx, r.store.builder.Update("cards").
		Set("posted_count", sq.Expr("posted_count + 1")).
		Set("last_posted_at", now.UTC()).
		Where(sq.Eq{"id": id, "posted_count": expected}))
	if err != nil {
		return false, fmt.Errorf("claim card %s: %w", id, err)
	}
	return n == 1, nil
}

// ReleasePost reverts a claim as long as nobody advanced the counter since.
func (r *CardRepository) ReleasePost(ctx context.Context, id string, claimed int, previous *time.Time) (bool, error) {
	var prev any
	if previous != nil {
		prev = previous.UTC()
	}
	n, err := r.store.exec(ctx, r.store.builder.Update("cards").
		Set("posted_count", sq.Expr("posted_count - 1")).
		Set("last_posted_at", prev).
		Where(sq.Eq{"id": id, "posted_count": claimed}))
	if err != nil {
		return false, fmt.Errorf("release card %s: %w", id, err)
	}
	return n == 1, nil
}

// SetCooldown rewrites cooldown_days on every card.
func (r *CardRepository) SetCooldown(ctx context.Context, days int) (int64, error) {
	if days < 0 {
		return 0, fmt.Errorf("cooldown must be >= 0, got %d", days)
	}
	n, err := r.store.exec(ctx, r.store.builder.Update("cards").Set("cooldown_days", days))
	if err != nil {
		return 0, fmt.Errorf("set cooldown: %w", err)
	}
	return n, nil
}

func (r *CardRepository) list(ctx context.Context, q sq.SelectBuilder) ([]domain.Card, error) {
	rows, err := r.store.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query cards: %w", err)
	}
	defer rows.Close()

	var out []domain.Card
	for rows.Next() {
		var (
			c            domain.Card
			status       string
			cooldown     sql.NullInt64
			lastPostedAt sql.NullTime
			payload      string
		)
		if err := rows.Scan(
			&c.ID, &c.Latin, &c.PlantID, &status, &cooldown,
			&c.Disabled, &c.PostedCount, &lastPostedAt, &payload,
		); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}

		c.Status = domain.CardStatus(status)
		c.CooldownDays = domain.DefaultCooldownDays
		if cooldown.Valid {
			c.CooldownDays = int(cooldown.Int64)
		}
		c.LastPostedAt = nullTime(lastPostedAt)

		p, err := decodePayload(payload)
		if err != nil {
			return nil, fmt.Errorf("card %s: %w", c.ID, err)
		}
		c.Payload = p
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func decodePayload(raw string) (domain.Payload, error) {
	if raw == "" {
		return domain.Payload{}, nil
	}
	var sp storedPayload
	if err := json.Unmarshal([]byte(raw), &sp); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return domain.Payload{}, fmt.Errorf("decode payload at offset %d: %w", syntaxErr.Offset, err)
		}
		return domain.Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	p := sp.Payload
	p.Image = domain.NormalizeImage(domain.ParseImageJSON(sp.Image))
	return p, nil
}
