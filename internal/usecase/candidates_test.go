package usecase

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EthnoCards/internal/domain"
)

func TestPickAndLockSkipsLockedAndHonoursLimit(t *testing.T) {
	earlier := fixedNow.Add(-time.Minute)
	store := newMemCandidates(
		domain.Candidate{ID: "a_a", Latin: "A a", LockedAt: &earlier},
		domain.Candidate{ID: "b_b", Latin: "B b"},
		domain.Candidate{ID: "c_c", Latin: "C c", Status: domain.CandidateHasCard},
		domain.Candidate{ID: "d_d", Latin: "D d"},
		domain.Candidate{ID: "e_e", Latin: "E e"},
	)
	lc := NewLifecycle(store, clock, discardLogger())

	picked, err := lc.PickAndLock(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []domain.PickedCandidate{{ID: "b_b", Latin: "B b"}, {ID: "d_d", Latin: "D d"}}, picked)

	require.NotNil(t, store.get("b_b").LockedAt)
	assert.True(t, store.get("b_b").LockedAt.Equal(fixedNow))
	assert.Nil(t, store.get("e_e").LockedAt)

	none, err := lc.PickAndLock(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPickAndLockBoundsHugeLimit(t *testing.T) {
	store := newMemCandidates(domain.Candidate{ID: "a_a", Latin: "A a"})
	lc := NewLifecycle(store, clock, discardLogger())

	picked, err := lc.PickAndLock(context.Background(), math.MaxInt)
	require.NoError(t, err)
	assert.Len(t, picked, 1)
	assert.Equal(t, pickOverscan*MaxPickLimit, store.lastLimit)
}

func TestPickAndLockLosesRaceToConcurrentRun(t *testing.T) {
	store := newMemCandidates(
		domain.Candidate{ID: "a_a", Latin: "A a"},
		domain.Candidate{ID: "b_b", Latin: "B b"},
	)
	// Another run locks a_a between our read and our conditional write.
	store.beforeLock = func(id string, rows map[string]domain.Candidate) {
		if id != "a_a" {
			return
		}
		c := rows[id]
		other := fixedNow.Add(-time.Second)
		c.LockedAt = &other
		rows[id] = c
	}
	lc := NewLifecycle(store, clock, discardLogger())

	picked, err := lc.PickAndLock(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []domain.PickedCandidate{{ID: "b_b", Latin: "B b"}}, picked)
}

func TestMarkDoneAndUnlock(t *testing.T) {
	store := newMemCandidates(domain.Candidate{ID: "a_a", Latin: "A a"}, domain.Candidate{ID: "b_b", Latin: "B b"})
	lc := NewLifecycle(store, clock, discardLogger())
	_, err := lc.PickAndLock(context.Background(), 2)
	require.NoError(t, err)

	require.NoError(t, lc.MarkDone(context.Background(), "a_a", "a-a"))
	require.NoError(t, lc.MarkDone(context.Background(), "a_a", "a-a"))
	require.NoError(t, lc.Unlock(context.Background(), "b_b"))

	a := store.get("a_a")
	assert.Equal(t, domain.CandidateHasCard, a.Status)
	assert.Equal(t, "cards/a-a", a.CardRef)
	assert.Nil(t, a.LockedAt)

	b := store.get("b_b")
	assert.Equal(t, domain.CandidateNew, b.Status)
	assert.Nil(t, b.LockedAt)
}

func TestReleaseStale(t *testing.T) {
	old := fixedNow.Add(-2 * time.Hour)
	recent := fixedNow.Add(-5 * time.Minute)
	store := newMemCandidates(
		domain.Candidate{ID: "old", Latin: "Old one", LockedAt: &old},
		domain.Candidate{ID: "recent", Latin: "Recent one", LockedAt: &recent},
	)
	lc := NewLifecycle(store, clock, discardLogger())

	n, err := lc.ReleaseStale(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Nil(t, store.get("old").LockedAt)
	assert.NotNil(t, store.get("recent").LockedAt)
}

func TestAddCandidates(t *testing.T) {
	store := newMemCandidates(domain.Candidate{ID: "withania_somnifera", Latin: "Withania somnifera"})
	lc := NewLifecycle(store, clock, discardLogger())

	sum, err := lc.Add(context.Background(), []string{
		"withania SOMNIFERA",
		"rhodiola rosea",
		"Rhodiola rosea",
		"Ginseng",
		"  ",
		"Hypericum perforatum subsp. veronense",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Rhodiola rosea"}, sum.Added)
	assert.Equal(t, []string{"Withania somnifera"}, sum.Existing)
	assert.Equal(t, []string{"Ginseng", "Hypericum perforatum subsp. veronense"}, sum.Invalid)

	added := store.get("rhodiola_rosea")
	assert.Equal(t, "Rhodiola rosea", added.Latin)
	assert.Equal(t, domain.CandidateNew, added.Status)
}
