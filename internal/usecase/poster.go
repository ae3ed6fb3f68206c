package usecase

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"EthnoCards/internal/domain"
	"EthnoCards/internal/ports"
)

const (
	ReasonNoEligible = "NO_ELIGIBLE_CARDS"
	ReasonUncaught   = "UNCAUGHT"
	ReasonConflict   = "CONFLICT"

	defaultClaimAttempts = 3
	msPerDay             = int64(24 * time.Hour / time.Millisecond)
)

// Channel is one posting destination.
type Channel struct {
	ID   string `json:"channelId"`
	Lang string `json:"lang"`
}

// LoadFunc returns every card the scheduler may choose from.
type LoadFunc func(ctx context.Context) ([]domain.Card, error)

// SendFunc posts a selected card and returns the transport message id.
type SendFunc func(ctx context.Context, card domain.Card, ch Channel, caption string) (int64, error)

// PostResult is the outcome of one SelectAndPost call. It is never an error.
type PostResult struct {
	OK         bool   `json:"ok"`
	Reason     string `json:"reason,omitempty"`
	Count      int    `json:"count,omitempty"`
	Error      string `json:"error,omitempty"`
	CardID     string `json:"cardId,omitempty"`
	Latin      string `json:"latin,omitempty"`
	MessageID  int64  `json:"messageId,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
}

// PosterDeps wires the posting scheduler. Load defaults to Cards.ListCards.
type PosterDeps struct {
	Cards       ports.CardStore
	Load        LoadFunc
	Send        SendFunc
	Rand        *rand.Rand
	Now         func() time.Time
	MaxAttempts int
	Logger      *slog.Logger
}

// Poster selects one eligible card per call and records the post.
type Poster struct {
	cards    ports.CardStore
	load     LoadFunc
	send     SendFunc
	now      func() time.Time
	attempts int
	logger   *slog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewPoster constructs the scheduler.
func NewPoster(deps PosterDeps) *Poster {
	p := &Poster{
		cards:    deps.Cards,
		load:     deps.Load,
		send:     deps.Send,
		now:      deps.Now,
		attempts: deps.MaxAttempts,
		logger:   deps.Logger,
		rnd:      deps.Rand,
	}
	if p.load == nil && p.cards != nil {
		p.load = p.cards.ListCards
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.attempts <= 0 {
		p.attempts = defaultClaimAttempts
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.rnd == nil {
		p.rnd = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
	}
	return p
}

// SelectAndPost posts at most one card to ch. The selected card is claimed by
// compare-and-swap on postedCount before sending; a lost claim reloads and
// reselects, and a failed send releases the claim.
func (p *Poster) SelectAndPost(ctx context.Context, ch Channel) (res PostResult) {
	started := time.Now()
	log := p.logger.With("channel_id", ch.ID, "lang", ch.Lang)

	defer func() {
		if r := recover(); r != nil {
			log.Error("posting panicked", "panic", r)
			res = PostResult{Reason: ReasonUncaught, Error: fmt.Sprint(r)}
		}
	}()

	if err := p.validate(ch); err != nil {
		return uncaught(err)
	}

	for attempt := 1; attempt <= p.attempts; attempt++ {
		raw, err := p.load(ctx)
		if err != nil {
			return uncaught(fmt.Errorf("load cards: %w", err))
		}
		now := p.now()

		cards := make([]domain.Card, 0, len(raw))
		for _, c := range raw {
			cards = append(cards, NormalizeCard(c))
		}
		eligible := make([]domain.Card, 0, len(cards))
		for _, c := range cards {
			if Eligible(c, now) {
				eligible = append(eligible, c)
			}
		}
		if len(eligible) == 0 {
			log.Info("no eligible cards", "count", len(cards))
			return PostResult{Reason: ReasonNoEligible, Count: len(cards)}
		}

		selected := p.order(eligible)[0]

		claimed, err := p.cards.ClaimPost(ctx, selected.ID, selected.PostedCount, now)
		if err != nil {
			return uncaught(err)
		}
		if !claimed {
			log.Warn("card claimed concurrently, reselecting", "card_id", selected.ID, "attempt", attempt)
			continue
		}

		msgID, err := p.safeSend(ctx, selected, ch)
		if err != nil {
			p.release(ctx, log, selected)
			return uncaught(fmt.Errorf("send card %s: %w", selected.ID, err))
		}

		log.Info("card posted", "card_id", selected.ID, "latin", selected.Latin, "message_id", msgID)
		return PostResult{
			OK:         true,
			CardID:     selected.ID,
			Latin:      selected.Latin,
			MessageID:  msgID,
			DurationMs: time.Since(started).Milliseconds(),
		}
	}
	return PostResult{Reason: ReasonConflict, Error: domain.ErrLockLost.Error()}
}

func (p *Poster) validate(ch Channel) error {
	switch {
	case strings.TrimSpace(ch.ID) == "":
		return errors.New("channel id is required")
	case p.load == nil:
		return errors.New("no card loader configured")
	case p.cards == nil:
		return errors.New("no card store configured")
	case p.send == nil:
		return errors.New("no sender configured")
	}
	return nil
}

// safeSend turns a panicking sender into an error so the claim is released.
func (p *Poster) safeSend(ctx context.Context, card domain.Card, ch Channel) (id int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panicked: %v", r)
		}
	}()
	return p.send(ctx, card, ch, Caption(card, ch.Lang))
}

func (p *Poster) release(ctx context.Context, log *slog.Logger, card domain.Card) {
	ok, err := p.cards.ReleasePost(context.WithoutCancel(ctx), card.ID, card.PostedCount+1, card.LastPostedAt)
	if err != nil || !ok {
		log.Error("claim not released", "card_id", card.ID, "released", ok, "error", err)
	}
}

// order shuffles first so exact ties come out in random order, then sorts
// stably by postedCount and lastPostedAt.
func (p *Poster) order(cards []domain.Card) []domain.Card {
	p.mu.Lock()
	p.rnd.Shuffle(len(cards), func(i, j int) { cards[i], cards[j] = cards[j], cards[i] })
	p.mu.Unlock()

	slices.SortStableFunc(cards, func(a, b domain.Card) int {
		if c := cmp.Compare(a.PostedCount, b.PostedCount); c != 0 {
			return c
		}
		return cmp.Compare(postedMillis(a), postedMillis(b))
	})
	return cards
}

func postedMillis(c domain.Card) int64 {
	if c.LastPostedAt == nil {
		return 0
	}
	return c.LastPostedAt.UnixMilli()
}

func uncaught(err error) PostResult {
	return PostResult{Reason: ReasonUncaught, Error: err.Error()}
}

// NormalizeCard fills posting defaults on a loaded card and gives it a
// stable id: the stored id, else the latin slug, else a random uuid.
func NormalizeCard(c domain.Card) domain.Card {
	if c.PostedCount < 0 {
		c.PostedCount = 0
	}
	if c.CooldownDays < 0 {
		c.CooldownDays = domain.DefaultCooldownDays
	}
	if c.Status == "" {
		c.Status = domain.CardReady
	}
	if c.ID == "" {
		if latin := strings.TrimSpace(c.Latin); latin != "" {
			c.ID = domain.CardSlug(latin)
		} else {
			c.ID = uuid.NewString()
		}
	}
	return c
}

// Eligible reports whether c may be posted at now. The cooldown compares
// whole days, computed as the floor of elapsed milliseconds over a day.
func Eligible(c domain.Card, now time.Time) bool {
	if c.Disabled || c.Status != domain.CardReady {
		return false
	}
	if c.LastPostedAt == nil {
		return true
	}
	return DaysBetween(*c.LastPostedAt, now) >= int64(c.CooldownDays)
}

// DaysBetween is floor((to - from) / 1 day) in milliseconds.
func DaysBetween(from, to time.Time) int64 {
	diff := to.UnixMilli() - from.UnixMilli()
	q := diff / msPerDay
	if diff%msPerDay != 0 && diff < 0 {
		q--
	}
	return q
}
