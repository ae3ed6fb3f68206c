package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"EthnoCards/internal/domain"
	"EthnoCards/internal/ports"
)

const reconcileSample = 10

// Inventory holds the operator tools that look at both collections.
type Inventory struct {
	candidates ports.CandidateStore
	cards      ports.CardStore
	now        func() time.Time
	logger     *slog.Logger
}

// NewInventory wires both stores.
func NewInventory(candidates ports.CandidateStore, cards ports.CardStore, now func() time.Time, logger *slog.Logger) *Inventory {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Inventory{candidates: candidates, cards: cards, now: now, logger: logger}
}

// ReconcileReport summarises a reconcile run.
type ReconcileReport struct {
	TotalCandidates int      `json:"totalCandidates"`
	TotalCards      int      `json:"totalCards"`
	Matched         int      `json:"matched"`
	Updated         int      `json:"updated"`
	Skipped         int      `json:"skipped"`
	DryRun          bool     `json:"dryRun"`
	Sample          []string `json:"sampleUpdated"`
}

// Reconcile marks candidates whose card already exists as hasCard. Without
// apply nothing is written.
func (inv *Inventory) Reconcile(ctx context.Context, apply bool) (ReconcileReport, error) {
	cands, cards, err := inv.loadBoth(ctx)
	if err != nil {
		return ReconcileReport{}, err
	}

	report := ReconcileReport{
		TotalCandidates: len(cands),
		TotalCards:      len(cards),
		DryRun:          !apply,
		Sample:          []string{},
	}

	bySlug := make(map[string]string, len(cards))
	for _, c := range cards {
		latin := c.Latin
		if latin == "" {
			latin = c.Payload.Latin
		}
		if latin != "" {
			bySlug[domain.CardSlug(domain.TitleCaseLatin(latin))] = c.ID
		}
		bySlug[c.ID] = c.ID
	}

	for _, cand := range cands {
		cardID, ok := bySlug[domain.CardSlug(domain.TitleCaseLatin(cand.Latin))]
		if !ok {
			report.Skipped++
			continue
		}
		report.Matched++
		if cand.Status == domain.CandidateHasCard && cand.CardRef != "" {
			report.Skipped++
			continue
		}
		if apply {
			if err := inv.candidates.MarkHasCard(ctx, cand.ID, domain.CardRef(cardID), inv.now()); err != nil {
				return report, fmt.Errorf("reconcile %s: %w", cand.ID, err)
			}
		}
		report.Updated++
		if len(report.Sample) < reconcileSample {
			report.Sample = append(report.Sample, cand.ID)
		}
	}

	inv.logger.Info("reconcile finished",
		"matched", report.Matched, "updated", report.Updated, "dry_run", report.DryRun)
	return report, nil
}

// CardStats counts cards by posting state at a given instant.
type CardStats struct {
	Total    int `json:"total"`
	Ready    int `json:"ready"`
	Disabled int `json:"disabled"`
	Eligible int `json:"eligible"`
}

// Stats reports how many cards could be posted now.
func (inv *Inventory) Stats(ctx context.Context) (CardStats, error) {
	cards, err := inv.cards.ListCards(ctx)
	if err != nil {
		return CardStats{}, fmt.Errorf("list cards: %w", err)
	}
	now := inv.now()
	stats := CardStats{Total: len(cards)}
	for _, raw := range cards {
		c := NormalizeCard(raw)
		if c.Status == domain.CardReady {
			stats.Ready++
		}
		if c.Disabled {
			stats.Disabled++
		}
		if Eligible(c, now) {
			stats.Eligible++
		}
	}
	return stats, nil
}

func (inv *Inventory) loadBoth(ctx context.Context) ([]domain.Candidate, []domain.Card, error) {
	var (
		cands []domain.Candidate
		cards []domain.Card
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cands, err = inv.candidates.ListAll(gctx)
		if err != nil {
			return fmt.Errorf("list candidates: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		cards, err = inv.cards.ListCards(gctx)
		if err != nil {
			return fmt.Errorf("list cards: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return cands, cards, nil
}
