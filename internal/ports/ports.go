package ports

import (
	"context"
	"time"

	"EthnoCards/internal/domain"
)

// CandidateStore is the record-store view the lifecycle manager needs.
// TryLock must be a conditional write: it succeeds only while the candidate is
// unlocked and new.
type CandidateStore interface {
	ListNew(ctx context.Context, limit int) ([]domain.Candidate, error)
	ListAll(ctx context.Context) ([]domain.Candidate, error)
	TryLock(ctx context.Context, id string, now time.Time) (bool, error)
	MarkHasCard(ctx context.Context, id, cardRef string, now time.Time) error
	Unlock(ctx context.Context, id string, now time.Time) error
	ReleaseStale(ctx context.Context, lockedBefore, now time.Time) (int64, error)
	AddNew(ctx context.Context, id, latin string, now time.Time) (bool, error)
}

// CardStore persists finished cards and their posting state.
type CardStore interface {
	UpsertCard(ctx context.Context, card domain.Card) error
	GetCard(ctx context.Context, id string) (domain.Card, error)
	ListCards(ctx context.Context) ([]domain.Card, error)
	// ClaimPost increments postedCount and sets lastPostedAt only if the stored
	// postedCount still equals expected.
	ClaimPost(ctx context.Context, id string, expected int, now time.Time) (bool, error)
	// ReleasePost undoes a claim whose send failed.
	ReleasePost(ctx context.Context, id string, claimed int, previous *time.Time) (bool, error)
	SetCooldown(ctx context.Context, days int) (int64, error)
}

// SourceFetcher proposes allowlisted reference URLs for a name. It never fails;
// network problems shrink the list.
type SourceFetcher interface {
	FetchSources(ctx context.Context, latin string, maxItems int) []domain.Source
}

// NarrativeRequest is the generator input.
type NarrativeRequest struct {
	Latin        string
	Sources      []domain.Source
	VocabularyID []string
}

// NarrativeResult is either an already structured object or raw (possibly
// partial) JSON text; parsing belongs to the orchestrator.
type NarrativeResult struct {
	Object map[string]any
	Raw    string
}

// NarrativeGenerator is the external text generator.
type NarrativeGenerator interface {
	Generate(ctx context.Context, req NarrativeRequest) (NarrativeResult, error)
}

// ImageResolver runs the provider fallback chain. It never fails; total failure
// is the explicit missing marker.
type ImageResolver interface {
	Resolve(ctx context.Context, latin string) domain.ImageResult
}

// AffiliateFinder looks up a vendor link; nil with no error means none.
type AffiliateFinder interface {
	FindAffiliate(ctx context.Context, query string) (*domain.Affiliate, error)
}

// QualityVerdict is the gate outcome.
type QualityVerdict struct {
	OK      bool
	Reason  string
	Details []string
}

// QualityGate validates a draft card before persistence.
type QualityGate interface {
	Check(card domain.Card) QualityVerdict
}

// Publisher is the outbound transport.
type Publisher interface {
	SendPhoto(ctx context.Context, channel, imageURL, caption string) (int64, error)
	SendText(ctx context.Context, channel, text string) (int64, error)
}

// Scheduler triggers a recurring job until stopped.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
