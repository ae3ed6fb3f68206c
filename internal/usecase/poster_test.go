package usecase

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EthnoCards/internal/domain"
)

var ruChannel = Channel{ID: "@ethno_ru", Lang: "ru"}

func readyCard(id string, posted int, last *time.Time) domain.Card {
	return domain.Card{
		ID:           id,
		Latin:        id,
		Status:       domain.CardReady,
		CooldownDays: 7,
		PostedCount:  posted,
		LastPostedAt: last,
		Payload: domain.Payload{Narrative: domain.Narrative{
			Title:   domain.Text{RU: "Название " + id, EN: "Title " + id},
			Summary: domain.Text{RU: "Кратко о " + id, EN: "About " + id},
		}},
	}
}

func daysAgo(d int) *time.Time {
	t := fixedNow.Add(-time.Duration(d) * 24 * time.Hour)
	return &t
}

type recordingSender struct {
	cards    []string
	captions []string
	err      error
	panic    string
}

func (r *recordingSender) send(_ context.Context, card domain.Card, _ Channel, caption string) (int64, error) {
	if r.panic != "" {
		panic(r.panic)
	}
	if r.err != nil {
		return 0, r.err
	}
	r.cards = append(r.cards, card.ID)
	r.captions = append(r.captions, caption)
	return int64(len(r.cards)), nil
}

func newTestPoster(cards *memCards, sender *recordingSender, seed uint64) *Poster {
	return NewPoster(PosterDeps{
		Cards:  cards,
		Send:   sender.send,
		Rand:   rand.New(rand.NewPCG(seed, seed)),
		Now:    clock,
		Logger: discardLogger(),
	})
}

func TestDaysBetweenFloors(t *testing.T) {
	assert.EqualValues(t, 0, DaysBetween(fixedNow, fixedNow.Add(24*time.Hour-time.Millisecond)))
	assert.EqualValues(t, 1, DaysBetween(fixedNow, fixedNow.Add(24*time.Hour)))
	assert.EqualValues(t, 0, DaysBetween(fixedNow, fixedNow.Add(2*time.Minute)))
	assert.EqualValues(t, -1, DaysBetween(fixedNow, fixedNow.Add(-time.Millisecond)))
	assert.EqualValues(t, 7, DaysBetween(*daysAgo(7), fixedNow))
}

func TestEligibleCooldownBoundary(t *testing.T) {
	assert.True(t, Eligible(readyCard("never", 0, nil), fixedNow))
	assert.False(t, Eligible(readyCard("six", 1, daysAgo(6)), fixedNow))
	assert.True(t, Eligible(readyCard("seven", 1, daysAgo(7)), fixedNow))

	almost := fixedNow.Add(-7*24*time.Hour + time.Millisecond)
	assert.False(t, Eligible(readyCard("almost", 1, &almost), fixedNow))

	disabled := readyCard("off", 0, nil)
	disabled.Disabled = true
	assert.False(t, Eligible(disabled, fixedNow))

	draft := readyCard("draft", 0, nil)
	draft.Status = "draft"
	assert.False(t, Eligible(draft, fixedNow))

	noCooldown := readyCard("zero", 5, &fixedNow)
	noCooldown.CooldownDays = 0
	assert.True(t, Eligible(noCooldown, fixedNow))
}

func TestSelectAndPostPrefersLeastPosted(t *testing.T) {
	cards := newMemCards(
		readyCard("often", 3, daysAgo(30)),
		readyCard("rare", 0, nil),
	)
	sender := &recordingSender{}
	p := newTestPoster(cards, sender, 1)

	res := p.SelectAndPost(context.Background(), ruChannel)
	require.True(t, res.OK, res.Error)
	assert.Equal(t, "rare", res.CardID)
	assert.EqualValues(t, 1, res.MessageID)

	stored, err := cards.GetCard(context.Background(), "rare")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.PostedCount)
	require.NotNil(t, stored.LastPostedAt)
	assert.True(t, stored.LastPostedAt.Equal(fixedNow))

	require.Len(t, sender.captions, 1)
	assert.Equal(t, "Название rare (rare)\n\nКратко: Кратко о rare", sender.captions[0])
}

func TestSelectAndPostOlderPostWinsOnEqualCount(t *testing.T) {
	cards := newMemCards(
		readyCard("recent", 2, daysAgo(8)),
		readyCard("stale", 2, daysAgo(40)),
	)
	p := newTestPoster(cards, &recordingSender{}, 7)

	res := p.SelectAndPost(context.Background(), ruChannel)
	require.True(t, res.OK)
	assert.Equal(t, "stale", res.CardID)
}

func TestSelectAndPostBreaksTiesRandomly(t *testing.T) {
	seen := map[string]bool{}
	for seed := uint64(0); seed < 64; seed++ {
		cards := newMemCards(readyCard("a", 0, nil), readyCard("b", 0, nil), readyCard("c", 0, nil))
		res := newTestPoster(cards, &recordingSender{}, seed).SelectAndPost(context.Background(), ruChannel)
		require.True(t, res.OK)
		seen[res.CardID] = true
	}
	assert.Len(t, seen, 3)
}

func TestSelectAndPostNoEligible(t *testing.T) {
	off := readyCard("off", 0, nil)
	off.Disabled = true
	cards := newMemCards(readyCard("cooling", 1, daysAgo(2)), off)
	sender := &recordingSender{}

	res := newTestPoster(cards, sender, 1).SelectAndPost(context.Background(), ruChannel)
	assert.False(t, res.OK)
	assert.Equal(t, ReasonNoEligible, res.Reason)
	assert.Equal(t, 2, res.Count)
	assert.Empty(t, sender.cards)

	res = newTestPoster(newMemCards(), sender, 1).SelectAndPost(context.Background(), ruChannel)
	assert.Equal(t, ReasonNoEligible, res.Reason)
	assert.Equal(t, 0, res.Count)
}

func TestSelectAndPostReselectsAfterLostClaim(t *testing.T) {
	cards := newMemCards(readyCard("a", 0, nil), readyCard("b", 1, daysAgo(10)))
	// A concurrent invocation posts "a" right before our claim.
	cards.beforeClaim = func(id string, all map[string]domain.Card) {
		if id != "a" {
			return
		}
		c := all[id]
		if c.PostedCount == 0 {
			c.PostedCount = 1
			now := fixedNow
			c.LastPostedAt = &now
			all[id] = c
		}
	}
	sender := &recordingSender{}

	res := newTestPoster(cards, sender, 3).SelectAndPost(context.Background(), ruChannel)
	require.True(t, res.OK, res.Error)
	assert.Equal(t, "b", res.CardID)
	assert.Equal(t, []string{"b"}, sender.cards)

	a, err := cards.GetCard(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 1, a.PostedCount, "concurrent post counted once")
}

func TestSelectAndPostGivesUpAfterRepeatedConflicts(t *testing.T) {
	cards := newMemCards(readyCard("a", 0, nil))
	cards.beforeClaim = func(id string, all map[string]domain.Card) {
		c := all[id]
		c.PostedCount++
		all[id] = c
	}
	sender := &recordingSender{}

	res := newTestPoster(cards, sender, 1).SelectAndPost(context.Background(), ruChannel)
	assert.False(t, res.OK)
	assert.Equal(t, ReasonConflict, res.Reason)
	assert.Empty(t, sender.cards)
}

func TestSelectAndPostReleasesClaimWhenSendFails(t *testing.T) {
	last := daysAgo(9)
	for name, sender := range map[string]*recordingSender{
		"error": {err: errors.New("telegram 400: chat not found")},
		"panic": {panic: "boom"},
	} {
		t.Run(name, func(t *testing.T) {
			cards := newMemCards(readyCard("a", 4, last))

			res := newTestPoster(cards, sender, 1).SelectAndPost(context.Background(), ruChannel)
			assert.False(t, res.OK)
			assert.Equal(t, ReasonUncaught, res.Reason)
			assert.NotEmpty(t, res.Error)

			a, err := cards.GetCard(context.Background(), "a")
			require.NoError(t, err)
			assert.Equal(t, 4, a.PostedCount)
			require.NotNil(t, a.LastPostedAt)
			assert.True(t, a.LastPostedAt.Equal(*last))
		})
	}
}

func TestSelectAndPostRequiresChannel(t *testing.T) {
	res := newTestPoster(newMemCards(readyCard("a", 0, nil)), &recordingSender{}, 1).
		SelectAndPost(context.Background(), Channel{Lang: "ru"})
	assert.Equal(t, ReasonUncaught, res.Reason)
	assert.Contains(t, res.Error, "channel id")
}

func TestSelectAndPostLoadFailure(t *testing.T) {
	p := NewPoster(PosterDeps{
		Cards:  newMemCards(),
		Load:   func(context.Context) ([]domain.Card, error) { return nil, errors.New("db down") },
		Send:   (&recordingSender{}).send,
		Now:    clock,
		Logger: discardLogger(),
	})
	res := p.SelectAndPost(context.Background(), ruChannel)
	assert.Equal(t, ReasonUncaught, res.Reason)
	assert.Contains(t, res.Error, "db down")
}

func TestNormalizeCard(t *testing.T) {
	c := NormalizeCard(domain.Card{Latin: "Rhodiola rosea", PostedCount: -2, CooldownDays: -1})
	assert.Equal(t, "rhodiola-rosea", c.ID)
	assert.Equal(t, 0, c.PostedCount)
	assert.Equal(t, domain.DefaultCooldownDays, c.CooldownDays)
	assert.Equal(t, domain.CardReady, c.Status)

	anon := NormalizeCard(domain.Card{})
	_, err := uuid.Parse(anon.ID)
	assert.NoError(t, err)

	kept := NormalizeCard(domain.Card{ID: "x", Status: "draft"})
	assert.Equal(t, "x", kept.ID)
	assert.Equal(t, domain.CardStatus("draft"), kept.Status)
}
