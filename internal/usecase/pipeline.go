package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"EthnoCards/internal/domain"
	"EthnoCards/internal/ports"
	"EthnoCards/internal/vocab"
)

const (
	defaultSourcesLimit = 5
	modeCandidates      = "candidates"
	modeNames           = "names"
)

// PipelineDeps wires all driven adapters into the enrichment pipeline.
// Affiliate and Images may be nil; the corresponding stages are skipped.
type PipelineDeps struct {
	Lifecycle    *Lifecycle
	Cards        ports.CardStore
	Sources      ports.SourceFetcher
	Narrative    ports.NarrativeGenerator
	Images       ports.ImageResolver
	Affiliate    ports.AffiliateFinder
	Gate         ports.QualityGate
	Catalog      *vocab.Catalog
	SourcesLimit int
	CooldownDays int
	Logger       *slog.Logger
}

// Orchestrator runs candidates through the enrichment stages.
type Orchestrator struct {
	lifecycle    *Lifecycle
	cards        ports.CardStore
	sources      ports.SourceFetcher
	narrative    ports.NarrativeGenerator
	images       ports.ImageResolver
	affiliate    ports.AffiliateFinder
	gate         ports.QualityGate
	catalog      *vocab.Catalog
	sourcesLimit int
	cooldownDays int
	logger       *slog.Logger
}

// NewOrchestrator constructs the pipeline.
func NewOrchestrator(deps PipelineDeps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := deps.SourcesLimit
	if limit <= 0 {
		limit = defaultSourcesLimit
	}
	cooldown := deps.CooldownDays
	if cooldown <= 0 {
		cooldown = domain.DefaultCooldownDays
	}
	return &Orchestrator{
		lifecycle:    deps.Lifecycle,
		cards:        deps.Cards,
		sources:      deps.Sources,
		narrative:    deps.Narrative,
		images:       deps.Images,
		affiliate:    deps.Affiliate,
		gate:         deps.Gate,
		catalog:      deps.Catalog,
		sourcesLimit: limit,
		cooldownDays: cooldown,
		logger:       logger,
	}
}

// Outcome is the per-candidate line of a batch summary.
type Outcome struct {
	Latin       string `json:"latin"`
	CandidateID string `json:"candidateId,omitempty"`
	CardID      string `json:"cardId,omitempty"`
	OK          bool   `json:"ok"`
	Reason      string `json:"reason,omitempty"`
}

// BatchSummary reports counts without per-candidate stack traces.
type BatchSummary struct {
	Mode     string    `json:"mode"`
	Picked   int       `json:"picked"`
	Ready    int       `json:"ready"`
	Failed   int       `json:"failed"`
	Outcomes []Outcome `json:"outcomes"`
}

// RunBatch picks and locks up to limit candidates and processes them one by
// one. Every locked candidate ends either marked hasCard or unlocked.
func (o *Orchestrator) RunBatch(ctx context.Context, limit int) (BatchSummary, error) {
	sum := BatchSummary{Mode: modeCandidates, Outcomes: []Outcome{}}
	if o.lifecycle == nil {
		return sum, fmt.Errorf("run batch: no candidate lifecycle configured")
	}
	if limit <= 0 {
		limit = 1
	}
	if _, err := o.catalog.Get(ctx); err != nil {
		return sum, fmt.Errorf("run batch: %w", err)
	}

	picked, err := o.lifecycle.PickAndLock(ctx, limit)
	if err != nil {
		return sum, fmt.Errorf("pick candidates: %w", err)
	}
	sum.Picked = len(picked)
	o.logger.Info("candidates picked", "count", len(picked), "limit", limit)

	// Unlocks must land even when the caller's context is cancelled mid-batch.
	release := context.WithoutCancel(ctx)

	for _, cand := range picked {
		out := Outcome{Latin: cand.Latin, CandidateID: cand.ID}
		log := o.logger.With("latin", cand.Latin, "candidate_id", cand.ID)

		if ctx.Err() != nil {
			out.Reason = "cancelled"
			o.unlock(release, log, cand.ID)
			sum.add(out)
			continue
		}

		card, err := o.process(ctx, cand.Latin)
		if err != nil {
			out.Reason = reasonOf(err)
			log.Warn("candidate failed", "reason", out.Reason, "error", err)
			o.unlock(release, log, cand.ID)
			sum.add(out)
			continue
		}

		out.CardID = card.ID
		if err := o.lifecycle.MarkDone(release, cand.ID, card.ID); err != nil {
			out.Reason = "mark-done"
			log.Error("mark candidate done", "card_id", card.ID, "error", err)
			o.unlock(release, log, cand.ID)
			sum.add(out)
			continue
		}
		out.OK = true
		log.Info("candidate has card", "card_ref", domain.CardRef(card.ID))
		sum.add(out)
	}

	o.logger.Info("batch finished", "ready", sum.Ready, "failed", sum.Failed)
	return sum, nil
}

// RunNames processes explicit names without touching candidate records.
func (o *Orchestrator) RunNames(ctx context.Context, names []string) (BatchSummary, error) {
	sum := BatchSummary{Mode: modeNames, Outcomes: []Outcome{}}
	if _, err := o.catalog.Get(ctx); err != nil {
		return sum, fmt.Errorf("run names: %w", err)
	}

	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		sum.Picked++
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		out := Outcome{Latin: name}
		card, err := o.process(ctx, name)
		if err != nil {
			out.Reason = reasonOf(err)
			o.logger.Warn("name failed", "latin", name, "reason", out.Reason, "error", err)
		} else {
			out.OK = true
			out.CardID = card.ID
		}
		sum.add(out)
	}
	o.logger.Info("names finished", "ready", sum.Ready, "failed", sum.Failed)
	return sum, nil
}

func (s *BatchSummary) add(out Outcome) {
	if out.OK {
		s.Ready++
	} else {
		s.Failed++
	}
	s.Outcomes = append(s.Outcomes, out)
}

func (o *Orchestrator) unlock(ctx context.Context, log *slog.Logger, id string) {
	if err := o.lifecycle.Unlock(ctx, id); err != nil {
		log.Error("unlock candidate", "error", err)
	}
}

// process converts a panic anywhere in the stages into a gating failure.
func (o *Orchestrator) process(ctx context.Context, latin string) (card domain.Card, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &StageError{Stage: StagePanic, Reason: "uncaught", Err: fmt.Errorf("%v", r)}
		}
	}()
	return o.ProcessOne(ctx, latin)
}

// ProcessOne runs the stages for one name and persists the card. Gating
// failures are returned as *StageError; nothing is written in that case.
func (o *Orchestrator) ProcessOne(ctx context.Context, latin string) (domain.Card, error) {
	name := strings.TrimSpace(latin)
	if name == "" {
		return domain.Card{}, &StageError{Stage: StageNarrative, Reason: "empty-latin"}
	}
	log := o.logger.With("latin", name)

	data, err := o.catalog.Get(ctx)
	if err != nil {
		return domain.Card{}, &StageError{Stage: StageReference, Reason: "reference-data", Err: err}
	}

	var sources []domain.Source
	if o.sources != nil {
		sources = o.sources.FetchSources(ctx, name, o.sourcesLimit)
	}
	if sources == nil {
		sources = []domain.Source{}
	}
	log.Debug("sources fetched", "count", len(sources))

	if o.narrative == nil {
		return domain.Card{}, &StageError{Stage: StageNarrative, Reason: "llm-error", Err: errors.New("no generator configured")}
	}
	res, err := o.narrative.Generate(ctx, ports.NarrativeRequest{
		Latin:        name,
		Sources:      sources,
		VocabularyID: data.Vocabulary.IDs(),
	})
	if err != nil {
		return domain.Card{}, &StageError{Stage: StageNarrative, Reason: "llm-error", Err: err}
	}
	obj := parseNarrative(res)
	if obj == nil {
		return domain.Card{}, &StageError{Stage: StageNarrative, Reason: "invalid-json"}
	}
	d, reason := checkNarrativeShape(obj)
	if reason != "" {
		return domain.Card{}, &StageError{Stage: StageNarrative, Reason: reason}
	}

	payload := domain.Payload{
		Latin:     name,
		Narrative: d.narrative,
		Effects:   ExtractEffects(d.narrative, d.effects, data.Vocabulary),
		Sources:   sources,
	}

	if o.images != nil {
		payload.Image = domain.NormalizeImage(o.images.Resolve(ctx, name))
	}
	log.Info("image resolved", "has_image", payload.Image != nil && payload.Image.URL != "")

	if o.affiliate != nil {
		payload.Affiliate = o.findAffiliate(ctx, log, name, d.narrative.Title)
	}

	card := domain.Card{
		ID:           domain.CardSlug(name),
		Latin:        name,
		PlantID:      domain.PlantID(name),
		Status:       domain.CardReady,
		CooldownDays: o.cooldownDays,
		Disabled:     false,
		PostedCount:  0,
		LastPostedAt: nil,
		Payload:      payload,
	}

	if o.gate != nil {
		verdict := o.gate.Check(card)
		if !verdict.OK {
			var detail error
			if len(verdict.Details) > 0 {
				detail = errors.New(strings.Join(verdict.Details, "; "))
			}
			return domain.Card{}, &StageError{Stage: StageGate, Reason: verdict.Reason, Err: detail}
		}
	}

	if err := o.cards.UpsertCard(ctx, card); err != nil {
		return domain.Card{}, &StageError{Stage: StagePersist, Reason: "store", Err: err}
	}
	log.Info("card saved", "card_id", card.ID, "effects", len(payload.Effects), "sources", len(sources))
	return card, nil
}

// findAffiliate is best-effort; any failure leaves the card without a link.
func (o *Orchestrator) findAffiliate(ctx context.Context, log *slog.Logger, latin string, title domain.Text) *domain.Affiliate {
	query := latin
	if query == "" {
		query = title.EN
	}
	if query == "" {
		query = title.RU
	}
	aff, err := o.affiliate.FindAffiliate(ctx, query)
	if err != nil {
		log.Debug("affiliate skipped", "error", err)
		return nil
	}
	return aff
}

func reasonOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage + ":" + se.Reason
	}
	return "error"
}
