package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"EthnoCards/internal/domain"
	"EthnoCards/internal/ports"
)

// pickOverscan is how many rows PickAndLock reads per requested candidate;
// locked rows and lost races are skipped.
const pickOverscan = 3

// MaxPickLimit bounds one batch.
const MaxPickLimit = 50

// Lifecycle owns the new -> locked -> {hasCard | new} transitions.
type Lifecycle struct {
	store  ports.CandidateStore
	now    func() time.Time
	logger *slog.Logger
}

// NewLifecycle wires the candidate store.
func NewLifecycle(store ports.CandidateStore, now func() time.Time, logger *slog.Logger) *Lifecycle {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{store: store, now: now, logger: logger}
}

// PickAndLock locks up to limit new candidates. Each lock is a conditional
// write, so a candidate lost to a concurrent run is skipped, not shared.
func (l *Lifecycle) PickAndLock(ctx context.Context, limit int) ([]domain.PickedCandidate, error) {
	if limit <= 0 {
		return nil, nil
	}
	limit = min(limit, MaxPickLimit)

	rows, err := l.store.ListNew(ctx, pickOverscan*limit)
	if err != nil {
		return nil, fmt.Errorf("list new candidates: %w", err)
	}

	picked := make([]domain.PickedCandidate, 0, limit)
	for _, c := range rows {
		if len(picked) == limit {
			break
		}
		if c.Locked() || c.Status != domain.CandidateNew {
			continue
		}
		ok, err := l.store.TryLock(ctx, c.ID, l.now())
		if err != nil {
			l.unlockAll(ctx, picked)
			return nil, err
		}
		if !ok {
			l.logger.Debug("candidate taken by another run", "candidate_id", c.ID)
			continue
		}
		picked = append(picked, domain.PickedCandidate{ID: c.ID, Latin: c.Latin})
	}
	return picked, nil
}

// MarkDone records the card and releases the lock. Safe to repeat.
func (l *Lifecycle) MarkDone(ctx context.Context, id, cardSlug string) error {
	return l.store.MarkHasCard(ctx, id, domain.CardRef(cardSlug), l.now())
}

// Unlock returns the candidate to the pool; status stays new.
func (l *Lifecycle) Unlock(ctx context.Context, id string) error {
	return l.store.Unlock(ctx, id, l.now())
}

// ReleaseStale unlocks candidates whose lock is older than age, recovering
// runs that died between pick and unlock.
func (l *Lifecycle) ReleaseStale(ctx context.Context, age time.Duration) (int64, error) {
	now := l.now()
	n, err := l.store.ReleaseStale(ctx, now.Add(-age), now)
	if err != nil {
		return 0, fmt.Errorf("release stale locks: %w", err)
	}
	return n, nil
}

// AddSummary reports a candidate import.
type AddSummary struct {
	Added    []string `json:"added"`
	Existing []string `json:"existing"`
	Invalid  []string `json:"invalid"`
}

// Add inserts names as new candidates. Names are title-cased first; anything
// that is not a binomial or trinomial is reported as invalid.
func (l *Lifecycle) Add(ctx context.Context, names []string) (AddSummary, error) {
	var sum AddSummary
	seen := map[string]struct{}{}
	for _, raw := range names {
		name := domain.TitleCaseLatin(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if !domain.ValidLatin(name) {
			sum.Invalid = append(sum.Invalid, raw)
			continue
		}
		id := domain.CandidateID(name)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		added, err := l.store.AddNew(ctx, id, name, l.now())
		if err != nil {
			return sum, fmt.Errorf("add candidate %s: %w", name, err)
		}
		if added {
			sum.Added = append(sum.Added, name)
		} else {
			sum.Existing = append(sum.Existing, name)
		}
	}
	return sum, nil
}

func (l *Lifecycle) unlockAll(ctx context.Context, picked []domain.PickedCandidate) {
	ctx = context.WithoutCancel(ctx)
	for _, p := range picked {
		if err := l.Unlock(ctx, p.ID); err != nil {
			l.logger.Error("unlock after failed pick", "candidate_id", p.ID, "error", err)
		}
	}
}
